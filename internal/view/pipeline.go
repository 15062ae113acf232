// Package view implements the catalog derivation pipeline: a pure
// filter -> sort -> paginate transform over mirrored marketplace items,
// plus aggregate stats. Re-running any function on unchanged input yields
// byte-identical output.
package view

import (
	"math/big"
	"sort"
	"strings"

	"github.com/nftbay/marketd/internal/domain"
)

// SortKey selects the catalog ordering. Ties always break by ascending id
// so the output order is total and deterministic.
type SortKey string

const (
	SortPriceAsc  SortKey = "price_asc"
	SortPriceDesc SortKey = "price_desc"
	SortName      SortKey = "name"
	SortRecent    SortKey = "recent" // higher id = newer
)

// Criteria is a predicate conjunction; zero values match everything.
type Criteria struct {
	// Search matches case-insensitively as a substring of the item name,
	// collection, or owner.
	Search string

	// Category must equal the item category exactly; empty matches all.
	Category string

	// MinPrice/MaxPrice bound the price inclusively, in base units.
	// A nil bound is open.
	MinPrice *big.Int
	MaxPrice *big.Int
}

// PageSpec selects one page of the filtered, sorted sequence.
type PageSpec struct {
	Page     int // 1-based
	PageSize int
}

// Page is one page of catalog results.
type Page struct {
	Items      []domain.Item `json:"items"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalItems int           `json:"total_items"`
	TotalPages int           `json:"total_pages"`
}

// Stats aggregates the unfiltered active set.
type Stats struct {
	FloorPrice  *big.Int `json:"floor_price"` // nil when the set is empty
	TotalVolume *big.Int `json:"total_volume"`
	ItemCount   int      `json:"item_count"`
}

// Apply runs the full pipeline: filter, sort, paginate.
func Apply(items []domain.Item, c Criteria, key SortKey, p PageSpec) Page {
	filtered := Filter(items, c)
	Sort(filtered, key)
	return Paginate(filtered, p)
}

// Filter returns the items matching every criterion, preserving input
// order. The input slice is not modified.
func Filter(items []domain.Item, c Criteria) []domain.Item {
	search := strings.ToLower(strings.TrimSpace(c.Search))

	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if search != "" && !matchesSearch(it, search) {
			continue
		}
		if c.Category != "" && it.Category != c.Category {
			continue
		}
		price := it.Price
		if price == nil {
			price = new(big.Int)
		}
		if c.MinPrice != nil && price.Cmp(c.MinPrice) < 0 {
			continue
		}
		if c.MaxPrice != nil && price.Cmp(c.MaxPrice) > 0 {
			continue
		}
		out = append(out, it)
	}
	return out
}

func matchesSearch(it domain.Item, lowered string) bool {
	return strings.Contains(strings.ToLower(it.Name), lowered) ||
		strings.Contains(strings.ToLower(it.Collection), lowered) ||
		strings.Contains(strings.ToLower(it.Owner), lowered)
}

// Sort orders items in place by the given key, breaking ties by ascending
// id. An unknown key falls back to ascending price.
func Sort(items []domain.Item, key SortKey) {
	less := func(a, b domain.Item) bool {
		switch key {
		case SortPriceDesc:
			if c := cmpPrice(a, b); c != 0 {
				return c > 0
			}
		case SortName:
			an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
			if an != bn {
				return an < bn
			}
		case SortRecent:
			if a.ID != b.ID {
				return a.ID > b.ID
			}
		default: // SortPriceAsc
			if c := cmpPrice(a, b); c != 0 {
				return c < 0
			}
		}
		return a.ID < b.ID
	}
	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })
}

func cmpPrice(a, b domain.Item) int {
	ap, bp := a.Price, b.Price
	if ap == nil {
		ap = new(big.Int)
	}
	if bp == nil {
		bp = new(big.Int)
	}
	return ap.Cmp(bp)
}

// Paginate slices one page out of the sequence. A page beyond the end is
// an empty page, not an error. Page and PageSize are clamped to 1.
func Paginate(items []domain.Item, p PageSpec) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 1
	}

	total := len(items)
	totalPages := (total + p.PageSize - 1) / p.PageSize

	start := (p.Page - 1) * p.PageSize
	end := start + p.PageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	out := make([]domain.Item, end-start)
	copy(out, items[start:end])

	return Page{
		Items:      out,
		Page:       p.Page,
		PageSize:   p.PageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

// Aggregate computes floor price, total volume, and item count over the
// given (unfiltered) set.
func Aggregate(items []domain.Item) Stats {
	stats := Stats{TotalVolume: new(big.Int), ItemCount: len(items)}
	for _, it := range items {
		price := it.Price
		if price == nil {
			price = new(big.Int)
		}
		stats.TotalVolume.Add(stats.TotalVolume, price)
		if stats.FloorPrice == nil || price.Cmp(stats.FloorPrice) < 0 {
			stats.FloorPrice = new(big.Int).Set(price)
		}
	}
	return stats
}

// PageWindow returns up to five contiguous page numbers containing
// current, clamped to [1, total]. The window centres on current where
// possible and shrinks to 1..total when fewer than five pages exist.
func PageWindow(current, total int) []int {
	if total < 1 {
		return nil
	}
	if current < 1 {
		current = 1
	}
	if current > total {
		current = total
	}

	const width = 5
	start := current - width/2
	if start < 1 {
		start = 1
	}
	if start+width-1 > total {
		start = total - width + 1
		if start < 1 {
			start = 1
		}
	}

	n := width
	if total < width {
		n = total
	}
	window := make([]int, n)
	for i := range window {
		window[i] = start + i
	}
	return window
}
