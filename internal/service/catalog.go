// Package service composes the mirror, view pipeline, and stores into
// the operations the HTTP handlers expose.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftbay/marketd/internal/domain"
	"github.com/nftbay/marketd/internal/view"
)

// marketMirror is the mirror surface the catalog reads. The mirror
// satisfies it.
type marketMirror interface {
	Snapshot() domain.Snapshot
	Listing(ctx context.Context, id uint64) (domain.Listing, error)
	Auction(ctx context.Context, id uint64) (domain.Auction, error)
	Offer(ctx context.Context, id uint64) (domain.Offer, error)
	UserListings(ctx context.Context, user common.Address) ([]domain.Listing, error)
	OffersForNFT(ctx context.Context, nftContract common.Address, tokenID uint64) ([]domain.Offer, error)
	RefreshAll(ctx context.Context) (domain.RefreshReport, error)
}

// Catalog serves marketplace read queries from the mirrored state.
type Catalog struct {
	mirror marketMirror
	logger *slog.Logger
}

// NewCatalog creates a Catalog over the given mirror.
func NewCatalog(m marketMirror, logger *slog.Logger) *Catalog {
	return &Catalog{mirror: m, logger: logger.With(slog.String("component", "catalog"))}
}

// BrowseResult is one page of the catalog plus the pagination window the
// UI renders.
type BrowseResult struct {
	view.Page
	PageWindow []int `json:"page_window"`
}

// Overview summarises the marketplace for the landing view.
type Overview struct {
	FeeBasisPoints int        `json:"fee_basis_points"`
	Paused         bool       `json:"paused"`
	ListingCounter uint64     `json:"listing_counter"`
	OfferCounter   uint64     `json:"offer_counter"`
	Stats          view.Stats `json:"stats"`
	RefreshedAt    time.Time  `json:"refreshed_at"`
}

// OfferView is an offer decorated with its display status, which may
// differ from the stored status once the expiry has passed.
type OfferView struct {
	domain.Offer
	EffectiveStatus domain.OfferStatus `json:"effective_status"`
}

func decorateOffer(o domain.Offer, now time.Time) OfferView {
	return OfferView{Offer: o, EffectiveStatus: o.EffectiveStatus(now)}
}

// items flattens the snapshot's active listings and live auctions into
// catalog rows.
func items(snap domain.Snapshot) []domain.Item {
	out := make([]domain.Item, 0, len(snap.Listings)+len(snap.Auctions))
	for _, l := range snap.Listings {
		if l.Active {
			out = append(out, domain.ItemFromListing(l))
		}
	}
	for _, a := range snap.Auctions {
		if !a.Settled {
			out = append(out, domain.ItemFromAuction(a))
		}
	}
	return out
}

// Browse runs the filter, sort, and paginate pipeline over the current
// snapshot.
func (c *Catalog) Browse(ctx context.Context, criteria view.Criteria, key view.SortKey, page view.PageSpec) (BrowseResult, error) {
	result := view.Apply(items(c.mirror.Snapshot()), criteria, key, page)
	return BrowseResult{
		Page:       result,
		PageWindow: view.PageWindow(result.Page, result.TotalPages),
	}, nil
}

// MarketOverview returns the marketplace scalars and aggregate stats.
func (c *Catalog) MarketOverview(ctx context.Context) (Overview, error) {
	snap := c.mirror.Snapshot()
	return Overview{
		FeeBasisPoints: snap.FeeBasisPoints,
		Paused:         snap.Paused,
		ListingCounter: snap.ListingCounter,
		OfferCounter:   snap.OfferCounter,
		Stats:          view.Aggregate(items(snap)),
		RefreshedAt:    snap.RefreshedAt,
	}, nil
}

// ListingDetail returns one listing by id.
func (c *Catalog) ListingDetail(ctx context.Context, id uint64) (domain.Listing, error) {
	return c.mirror.Listing(ctx, id)
}

// AuctionDetail returns one auction by id.
func (c *Catalog) AuctionDetail(ctx context.Context, id uint64) (domain.Auction, error) {
	return c.mirror.Auction(ctx, id)
}

// OfferDetail returns one offer by id, decorated with its display
// status.
func (c *Catalog) OfferDetail(ctx context.Context, id uint64) (OfferView, error) {
	o, err := c.mirror.Offer(ctx, id)
	if err != nil {
		return OfferView{}, err
	}
	return decorateOffer(o, time.Now()), nil
}

// UserListings returns every listing created by the given address.
func (c *Catalog) UserListings(ctx context.Context, addr string) ([]domain.Listing, error) {
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("catalog: invalid address %q: %w", addr, domain.ErrInvalidParams)
	}
	return c.mirror.UserListings(ctx, common.HexToAddress(addr))
}

// NFTOffers returns the offers on one NFT, decorated with display
// statuses.
func (c *Catalog) NFTOffers(ctx context.Context, contract string, tokenID uint64) ([]OfferView, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("catalog: invalid contract address %q: %w", contract, domain.ErrInvalidParams)
	}
	offers, err := c.mirror.OffersForNFT(ctx, common.HexToAddress(contract), tokenID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	out := make([]OfferView, len(offers))
	for i, o := range offers {
		out[i] = decorateOffer(o, now)
	}
	return out, nil
}

// Refresh triggers a full mirror refresh and reports which subsets
// succeeded.
func (c *Catalog) Refresh(ctx context.Context) (domain.RefreshReport, error) {
	return c.mirror.RefreshAll(ctx)
}
