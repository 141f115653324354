package resource

import "testing"

func TestClampPageSize(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-1, 100},
		{0, 100},
		{1, 1},
		{50, 50},
		{100, 100},
		{101, 100},
		{1000, 100},
	}

	for _, tt := range tests {
		if got := ClampPageSize(tt.in); got != tt.want {
			t.Errorf("ClampPageSize(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestListParams_Immutable(t *testing.T) {
	base := NewListParams(10).WithFilter("customer", "cus_1")

	next := base.WithStartingAfter("ch_9").WithFilter("created[gte]", "1520380800").WithLimit(500)

	if base.StartingAfter != "" {
		t.Errorf("base StartingAfter = %q, want empty", base.StartingAfter)
	}
	if base.Limit != 10 {
		t.Errorf("base Limit = %d, want 10", base.Limit)
	}
	if len(base.Filters) != 1 {
		t.Errorf("base Filters = %v, want only customer", base.Filters)
	}

	if next.StartingAfter != "ch_9" {
		t.Errorf("next StartingAfter = %q, want ch_9", next.StartingAfter)
	}
	if next.Limit != MaxPageSize {
		t.Errorf("next Limit = %d, want %d", next.Limit, MaxPageSize)
	}
	if len(next.Filters) != 2 {
		t.Errorf("next Filters = %v, want 2 entries", next.Filters)
	}
}

func TestListParams_Values(t *testing.T) {
	p := NewListParams(3).
		WithStartingAfter("fee_2").
		WithFilter("created[lte]", "1520726399")

	v := p.Values()

	if got := v.Get("limit"); got != "3" {
		t.Errorf("limit = %q, want 3", got)
	}
	if got := v.Get("starting_after"); got != "fee_2" {
		t.Errorf("starting_after = %q, want fee_2", got)
	}
	if got := v.Get("created[lte]"); got != "1520726399" {
		t.Errorf("created[lte] = %q, want 1520726399", got)
	}

	empty := ListParams{}.Values()
	if len(empty) != 0 {
		t.Errorf("zero params Values() = %v, want empty", empty)
	}
}

func TestPage_Last(t *testing.T) {
	var nilPage *Page
	if nilPage.Last() != nil {
		t.Error("nil page Last() should be nil")
	}
	if (&Page{}).Last() != nil {
		t.Error("empty page Last() should be nil")
	}

	p := &Page{Data: []Item{{"id": "a"}, {"id": "b"}}}
	if got := p.Last().ID(); got != "b" {
		t.Errorf("Last() = %q, want b", got)
	}
}
