package pagination

import (
	"context"
	"testing"
	"time"

	"github.com/Sternrassler/stripe-helpers/internal/testutil"
	"github.com/Sternrassler/stripe-helpers/pkg/client"
	"github.com/Sternrassler/stripe-helpers/pkg/resource"
)

func TestBetweenDates_AgainstMockStripe(t *testing.T) {
	mock := testutil.NewMockStripe()
	defer mock.Close()

	var fees []resource.Item
	for day := 1; day <= 15; day++ {
		created := time.Date(2018, 3, day, 9, 0, 0, 0, time.UTC)
		fees = append(fees,
			testutil.NewItem(idFor("fee", day, 0), created, nil),
			testutil.NewItem(idFor("fee", day, 1), created.Add(time.Hour), nil),
		)
	}
	mock.SetObjects("application_fees", fees)

	cfg := client.DefaultConfig("sk_test_123")
	cfg.BaseURL = mock.URL()
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	defer c.Close()

	fetcher := NewFetcher(c, DefaultConfig())

	got, err := fetcher.BetweenDates(context.Background(), DateQuery{
		Resource: "applicationFees",
		Window:   mustWindow(t, "2018-03-07", "2018-03-10"),
		PageSize: 3,
	})
	if err != nil {
		t.Fatalf("BetweenDates() error = %v", err)
	}

	if len(got) != 8 {
		t.Fatalf("len = %d, want 8", len(got))
	}
	if first, last := got[0].ID(), got[len(got)-1].ID(); first != idFor("fee", 10, 1) || last != idFor("fee", 7, 0) {
		t.Errorf("range = %s..%s, want %s..%s", first, last, idFor("fee", 10, 1), idFor("fee", 7, 0))
	}

	// 30 fees newest first, 3 per page; page 7 ends with a fee from 03-05
	if calls := mock.GetPathCount("/v1/application_fees"); calls != 7 {
		t.Errorf("list calls = %d, want 7", calls)
	}
}

func idFor(prefix string, day, n int) string {
	return prefix + "_" + time.Date(2018, 3, day, 0, 0, 0, 0, time.UTC).Format("0102") + "_" + string(rune('a'+n))
}
