package view

import (
	"math/big"
	"reflect"
	"testing"

	"github.com/nftbay/marketd/internal/domain"
	"github.com/nftbay/marketd/internal/wei"
)

func eth(t *testing.T, s string) *big.Int {
	t.Helper()
	n, err := wei.ToBaseUnits(s)
	if err != nil {
		t.Fatalf("ToBaseUnits(%q): %v", s, err)
	}
	return n
}

func testItems(t *testing.T) []domain.Item {
	t.Helper()
	return []domain.Item{
		{ID: 1, Name: "Sunset Dunes", Collection: "Landscapes", Owner: "0xAb01", Category: "art", Price: eth(t, "0.5")},
		{ID: 2, Name: "Pixel Knight", Collection: "Heroes", Owner: "0xAb02", Category: "gaming", Price: eth(t, "1")},
		{ID: 3, Name: "Blue Meridian", Collection: "Landscapes", Owner: "0xAb03", Category: "art", Price: eth(t, "1")},
		{ID: 4, Name: "Synthwave Loop", Collection: "Audio", Owner: "0xAb04", Category: "music", Price: eth(t, "3")},
		{ID: 5, Name: "Crimson Meridian", Collection: "Landscapes", Owner: "0xAb05", Category: "art", Price: eth(t, "3")},
		{ID: 6, Name: "Golden Hour", Collection: "Landscapes", Owner: "0xAb06", Category: "art", Price: eth(t, "6")},
	}
}

func ids(items []domain.Item) []uint64 {
	out := make([]uint64, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestFilterConjunction(t *testing.T) {
	items := testItems(t)

	// Category + inclusive price range, as on the marketplace page:
	// art items priced [1, 5] out of {0.5, 1, 3, 6} leaves exactly 1 and 3 ETH.
	got := Filter(items, Criteria{
		Category: "art",
		MinPrice: eth(t, "1"),
		MaxPrice: eth(t, "5"),
	})
	Sort(got, SortPriceAsc)
	if want := []uint64{3, 5}; !reflect.DeepEqual(ids(got), want) {
		t.Fatalf("filtered ids = %v, want %v", ids(got), want)
	}
	if got[0].Price.Cmp(eth(t, "1")) != 0 || got[1].Price.Cmp(eth(t, "3")) != 0 {
		t.Fatalf("filtered prices = %s, %s; want 1 and 3 ETH", got[0].Price, got[1].Price)
	}
}

func TestFilterSearch(t *testing.T) {
	items := testItems(t)

	cases := []struct {
		search string
		want   []uint64
	}{
		{"meridian", []uint64{3, 5}},  // name, case-insensitive
		{"LANDSCAPES", []uint64{1, 3, 5, 6}}, // collection
		{"0xab02", []uint64{2}},       // owner
		{"", []uint64{1, 2, 3, 4, 5, 6}},
		{"zzz", nil},
	}
	for _, tc := range cases {
		got := Filter(items, Criteria{Search: tc.search})
		if len(got) == 0 && len(tc.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(ids(got), tc.want) {
			t.Errorf("search %q: ids = %v, want %v", tc.search, ids(got), tc.want)
		}
	}
}

func TestSortDeterminism(t *testing.T) {
	items := testItems(t)

	Sort(items, SortPriceAsc)
	// 2 and 3 are both 1 ETH, 4 and 5 both 3 ETH: ascending id breaks ties.
	if want := []uint64{1, 2, 3, 4, 5, 6}; !reflect.DeepEqual(ids(items), want) {
		t.Fatalf("price asc ids = %v, want %v", ids(items), want)
	}

	Sort(items, SortPriceDesc)
	if want := []uint64{6, 4, 5, 2, 3, 1}; !reflect.DeepEqual(ids(items), want) {
		t.Fatalf("price desc ids = %v, want %v", ids(items), want)
	}

	Sort(items, SortRecent)
	if want := []uint64{6, 5, 4, 3, 2, 1}; !reflect.DeepEqual(ids(items), want) {
		t.Fatalf("recent ids = %v, want %v", ids(items), want)
	}

	Sort(items, SortName)
	if want := []uint64{3, 5, 6, 2, 1, 4}; !reflect.DeepEqual(ids(items), want) {
		t.Fatalf("name ids = %v, want %v", ids(items), want)
	}

	// Identical input, identical output.
	again := testItems(t)
	Sort(again, SortName)
	if !reflect.DeepEqual(ids(again), ids(items)) {
		t.Fatal("sort is not deterministic across runs")
	}
}

func TestPaginate(t *testing.T) {
	items := testItems(t)
	Sort(items, SortPriceAsc)

	p1 := Paginate(items, PageSpec{Page: 1, PageSize: 4})
	if p1.TotalPages != 2 || p1.TotalItems != 6 || len(p1.Items) != 4 {
		t.Fatalf("page 1: total_pages=%d total_items=%d len=%d", p1.TotalPages, p1.TotalItems, len(p1.Items))
	}
	p2 := Paginate(items, PageSpec{Page: 2, PageSize: 4})
	if len(p2.Items) != 2 {
		t.Fatalf("page 2: len=%d, want 2", len(p2.Items))
	}

	// Pages partition the sequence: page counts sum to a single full page.
	all := Paginate(items, PageSpec{Page: 1, PageSize: len(items)})
	if len(p1.Items)+len(p2.Items) != len(all.Items) {
		t.Fatalf("page sizes %d+%d != %d", len(p1.Items), len(p2.Items), len(all.Items))
	}

	// Beyond the last page: empty page, not an error.
	p3 := Paginate(items, PageSpec{Page: p1.TotalPages + 1, PageSize: 4})
	if len(p3.Items) != 0 {
		t.Fatalf("page beyond end returned %d items", len(p3.Items))
	}
	if p3.TotalPages != 2 {
		t.Fatalf("page beyond end: total_pages=%d, want 2", p3.TotalPages)
	}
}

func TestApplyHonoursFilter(t *testing.T) {
	items := testItems(t)
	page := Apply(items, Criteria{Category: "art"}, SortPriceAsc, PageSpec{Page: 1, PageSize: 10})
	for _, it := range page.Items {
		if it.Category != "art" {
			t.Fatalf("item %d leaked through category filter", it.ID)
		}
	}
	if page.TotalItems != 4 {
		t.Fatalf("total_items = %d, want 4", page.TotalItems)
	}
}

func TestAggregate(t *testing.T) {
	items := testItems(t)
	stats := Aggregate(items)

	if stats.ItemCount != 6 {
		t.Fatalf("item count = %d, want 6", stats.ItemCount)
	}
	if want := eth(t, "14.5"); stats.TotalVolume.Cmp(want) != 0 {
		t.Fatalf("total volume = %s, want %s", stats.TotalVolume, want)
	}
	if want := eth(t, "0.5"); stats.FloorPrice.Cmp(want) != 0 {
		t.Fatalf("floor price = %s, want %s", stats.FloorPrice, want)
	}

	empty := Aggregate(nil)
	if empty.FloorPrice != nil {
		t.Fatal("floor price of empty set should be nil")
	}
	if empty.TotalVolume.Sign() != 0 || empty.ItemCount != 0 {
		t.Fatal("empty set stats should be zero")
	}
}

func TestPageWindow(t *testing.T) {
	cases := []struct {
		current, total int
		want           []int
	}{
		{1, 0, nil},
		{1, 1, []int{1}},
		{2, 3, []int{1, 2, 3}},
		{1, 10, []int{1, 2, 3, 4, 5}},
		{5, 10, []int{3, 4, 5, 6, 7}},
		{10, 10, []int{6, 7, 8, 9, 10}},
		{9, 10, []int{6, 7, 8, 9, 10}},
		{3, 4, []int{1, 2, 3, 4}},
		{99, 10, []int{6, 7, 8, 9, 10}}, // clamped
		{0, 10, []int{1, 2, 3, 4, 5}},   // clamped
	}
	for _, tc := range cases {
		got := PageWindow(tc.current, tc.total)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("PageWindow(%d, %d) = %v, want %v", tc.current, tc.total, got, tc.want)
		}
	}
}
