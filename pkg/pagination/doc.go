// Package pagination walks Stripe's cursor-based list endpoints.
//
// Stripe lists objects newest first and pages with limit/starting_after, so
// every request depends on the last id of the previous page and pages are
// fetched strictly one after another.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(stripeClient, pagination.DefaultConfig())
//
//	window, err := pagination.ParseDateWindow("2018-03-07", "2018-03-10")
//	if err != nil {
//		return err
//	}
//	fees, err := fetcher.BetweenDates(ctx, pagination.DateQuery{
//		Resource: "applicationFees",
//		Window:   window,
//	})
//
//	latest, err := fetcher.WithLimit(ctx, pagination.LimitQuery{
//		Resource: "charges",
//		Limit:    500,
//	})
//
// BetweenDates stops once the oldest item seen predates the window. Both
// operations also stop on an empty page, a cursor that does not advance or
// has_more=false, and fail with ErrMaxPagesExceeded after Config.MaxPages.
package pagination
