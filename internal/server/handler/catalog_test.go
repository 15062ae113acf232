package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/nftbay/marketd/internal/view"
)

func TestParseBrowseQueryDefaultsToPriceAscending(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/listings", nil)

	_, key, page, err := parseBrowseQuery(r)
	if err != nil {
		t.Fatalf("parseBrowseQuery: %v", err)
	}
	if key != view.SortPriceAsc {
		t.Errorf("default sort key = %q, want %q", key, view.SortPriceAsc)
	}
	if page.Page != 1 || page.PageSize != defaultPageSize {
		t.Errorf("page = %+v, want page 1 size %d", page, defaultPageSize)
	}
}

func TestParseBrowseQueryHonoursExplicitSort(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/listings?sort=recent&page=3&page_size=24", nil)

	_, key, page, err := parseBrowseQuery(r)
	if err != nil {
		t.Fatalf("parseBrowseQuery: %v", err)
	}
	if key != view.SortRecent {
		t.Errorf("sort key = %q, want %q", key, view.SortRecent)
	}
	if page.Page != 3 || page.PageSize != 24 {
		t.Errorf("page = %+v, want page 3 size 24", page)
	}
}

func TestParseBrowseQueryPriceBounds(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/listings?min_price=0.5&max_price=2", nil)

	criteria, _, _, err := parseBrowseQuery(r)
	if err != nil {
		t.Fatalf("parseBrowseQuery: %v", err)
	}
	if criteria.MinPrice == nil || criteria.MinPrice.String() != "500000000000000000" {
		t.Errorf("min price = %v, want 0.5 ETH in base units", criteria.MinPrice)
	}
	if criteria.MaxPrice == nil || criteria.MaxPrice.String() != "2000000000000000000" {
		t.Errorf("max price = %v, want 2 ETH in base units", criteria.MaxPrice)
	}

	bad := httptest.NewRequest("GET", "/api/listings?min_price=abc", nil)
	if _, _, _, err := parseBrowseQuery(bad); err == nil {
		t.Error("malformed min_price should fail")
	}
}
