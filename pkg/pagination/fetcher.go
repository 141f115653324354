package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/stripe-helpers/pkg/resource"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultPageSize is the page size used when a query does not set one.
	DefaultPageSize = resource.MaxPageSize

	// DefaultLimit is the item limit of WithLimit when a query does not set one.
	DefaultLimit = 500

	// DefaultMaxPages caps a single walk over a collection.
	DefaultMaxPages = 10000

	// dateLayout is the calendar date format accepted by ParseDateWindow.
	dateLayout = "2006-01-02"

	modeDateWindow = "date_window"
	modeLimit      = "limit"
)

var (
	// ErrMaxPagesExceeded is returned when a walk hits Config.MaxPages.
	ErrMaxPagesExceeded = errors.New("pagination: max pages exceeded")

	// ErrInvalidWindow is returned for zero or inverted date windows.
	ErrInvalidWindow = errors.New("pagination: invalid date window")
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "stripe_pages_fetched_total",
	Help: "Total list pages fetched by resource and pagination mode",
}, []string{"resource", "mode"})

// PageLister fetches one page of a resource collection, newest first.
// *client.Client implements it.
type PageLister interface {
	List(ctx context.Context, name string, params resource.ListParams, account string) (*resource.Page, error)
}

// Config holds fetcher configuration.
type Config struct {
	// PageSize used when a query leaves it zero (clamped to 1-100).
	PageSize int

	// MaxPages bounds the number of pages a single call may fetch.
	MaxPages int
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{
		PageSize: DefaultPageSize,
		MaxPages: DefaultMaxPages,
	}
}

// Fetcher walks Stripe list cursors. It holds no per-call state and is safe
// for concurrent use.
type Fetcher struct {
	lister PageLister
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new fetcher.
func NewFetcher(lister PageLister, config Config) *Fetcher {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	config.PageSize = resource.ClampPageSize(config.PageSize)
	if config.MaxPages <= 0 {
		config.MaxPages = DefaultMaxPages
	}

	return &Fetcher{
		lister: lister,
		config: config,
		logger: log.With().Str("component", "pagination").Logger(),
	}
}

// DateWindow is an inclusive range of UTC calendar days.
type DateWindow struct {
	Start time.Time
	End   time.Time
}

// NewDateWindow truncates start and end to UTC days and validates start <= end.
func NewDateWindow(start, end time.Time) (DateWindow, error) {
	if start.IsZero() || end.IsZero() {
		return DateWindow{}, fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	w := DateWindow{Start: resource.Day(start), End: resource.Day(end)}
	if w.End.Before(w.Start) {
		return DateWindow{}, fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidWindow, w.Start.Format(dateLayout), w.End.Format(dateLayout))
	}
	return w, nil
}

// ParseDateWindow parses two YYYY-MM-DD dates into a window.
func ParseDateWindow(start, end string) (DateWindow, error) {
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return DateWindow{}, fmt.Errorf("%w: start date %q: %v", ErrInvalidWindow, start, err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return DateWindow{}, fmt.Errorf("%w: end date %q: %v", ErrInvalidWindow, end, err)
	}
	return NewDateWindow(s, e)
}

// Contains reports whether the UTC day of t lies within the window.
func (w DateWindow) Contains(t time.Time) bool {
	day := resource.Day(t)
	return !day.Before(w.Start) && !day.After(w.End)
}

// String formats the window as "start..end".
func (w DateWindow) String() string {
	return w.Start.Format(dateLayout) + ".." + w.End.Format(dateLayout)
}

// DateQuery selects the items of a resource created within a window.
type DateQuery struct {
	// Resource is the collection name, e.g. "charges" or "applicationFees".
	Resource string

	Window DateWindow

	// Account is the connected account to list on behalf of ("" for the platform).
	Account string

	// PageSize overrides Config.PageSize when positive.
	PageSize int

	// Filters are passed to every list call.
	Filters map[string]string
}

// LimitQuery selects up to Limit of the newest items of a resource.
type LimitQuery struct {
	Resource string

	// Limit is the number of items wanted (default 500).
	Limit int

	Account  string
	PageSize int
	Filters  map[string]string
}

// BetweenDates returns the items of q.Resource whose created day lies within
// q.Window, newest first and without duplicate ids.
//
// Pages are requested until the oldest item seen is older than the window
// start. The walk also ends on an empty page, a cursor that does not advance,
// or has_more=false. Any remote failure aborts the call and no partial result
// is returned.
func (f *Fetcher) BetweenDates(ctx context.Context, q DateQuery) ([]resource.Item, error) {
	window, err := NewDateWindow(q.Window.Start, q.Window.End)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	params := f.firstPage(q.PageSize, q.Filters)

	var accumulated []resource.Item
	pages, err := f.walk(ctx, modeDateWindow, q.Resource, q.Account, params, func(items []resource.Item) bool {
		accumulated = append(accumulated, items...)
		oldest := items[len(items)-1].CreatedDay()
		return !oldest.Before(window.Start)
	})
	if err != nil {
		return nil, err
	}

	result := finalize(accumulated, window)

	f.logger.Info().
		Str("resource", q.Resource).
		Str("account", q.Account).
		Str("window", window.String()).
		Int("pages", pages).
		Int("fetched", len(accumulated)).
		Int("items", len(result)).
		Dur("duration", time.Since(start)).
		Msg("Date window fetch complete")

	return result, nil
}

// WithLimit returns the q.Limit newest items of q.Resource, or all of them
// when fewer exist.
func (f *Fetcher) WithLimit(ctx context.Context, q LimitQuery) ([]resource.Item, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	start := time.Now()
	params := f.firstPage(q.PageSize, q.Filters)

	accumulated := make([]resource.Item, 0, limit)
	pages, err := f.walk(ctx, modeLimit, q.Resource, q.Account, params, func(items []resource.Item) bool {
		accumulated = append(accumulated, items...)
		return len(accumulated) < limit
	})
	if err != nil {
		return nil, err
	}

	if len(accumulated) > limit {
		accumulated = accumulated[:limit]
	}

	f.logger.Info().
		Str("resource", q.Resource).
		Str("account", q.Account).
		Int("limit", limit).
		Int("pages", pages).
		Int("items", len(accumulated)).
		Dur("duration", time.Since(start)).
		Msg("Limit fetch complete")

	return accumulated, nil
}

func (f *Fetcher) firstPage(pageSize int, filters map[string]string) resource.ListParams {
	if pageSize <= 0 {
		pageSize = f.config.PageSize
	}
	params := resource.NewListParams(pageSize)
	for k, v := range filters {
		params = params.WithFilter(k, v)
	}
	return params
}

// walk follows the list cursor starting at params. step receives every
// non-empty page and returns whether another page is wanted. Each step
// derives fresh params; the caller's value is never modified.
func (f *Fetcher) walk(
	ctx context.Context,
	mode, name, account string,
	params resource.ListParams,
	step func(items []resource.Item) bool,
) (int, error) {
	label := resource.Normalize(name)
	cursor := params.StartingAfter
	pages := 0

	for {
		if pages >= f.config.MaxPages {
			f.logger.Error().
				Str("resource", name).
				Int("max_pages", f.config.MaxPages).
				Msg("Pagination aborted at page cap")
			return pages, fmt.Errorf("%w: %s after %d pages", ErrMaxPagesExceeded, name, pages)
		}

		page, err := f.lister.List(ctx, name, params, account)
		if err != nil {
			return pages, fmt.Errorf("fetch %s page %d: %w", name, pages+1, err)
		}
		pages++
		pagesFetchedTotal.WithLabelValues(label, mode).Inc()

		if len(page.Data) == 0 {
			f.logger.Debug().Str("resource", name).Int("page", pages).Msg("Empty page, stopping")
			return pages, nil
		}

		if !step(page.Data) {
			return pages, nil
		}

		if !page.HasMore {
			f.logger.Debug().Str("resource", name).Int("page", pages).Msg("Collection exhausted")
			return pages, nil
		}

		last := page.Last().ID()
		if last == "" || last == cursor {
			f.logger.Warn().
				Str("resource", name).
				Str("cursor", cursor).
				Int("page", pages).
				Msg("Cursor did not advance, stopping")
			return pages, nil
		}

		cursor = last
		params = params.WithStartingAfter(last)

		if pages%50 == 0 {
			f.logger.Info().
				Str("resource", name).
				Int("pages", pages).
				Str("cursor", cursor).
				Msg("Fetch progress")
		}
	}
}

// finalize keeps the items inside window, first occurrence of each id wins.
func finalize(items []resource.Item, window DateWindow) []resource.Item {
	seen := make(map[string]struct{}, len(items))
	result := make([]resource.Item, 0, len(items))
	for _, item := range items {
		if !window.Contains(item.CreatedDay()) {
			continue
		}
		id := item.ID()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result = append(result, item)
	}
	return result
}
