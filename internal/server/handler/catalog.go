package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/nftbay/marketd/internal/domain"
	"github.com/nftbay/marketd/internal/service"
	"github.com/nftbay/marketd/internal/view"
	"github.com/nftbay/marketd/internal/wei"
)

// CatalogService defines what the catalog handler needs from the service
// layer. Declared locally so the handler package does not depend on the
// concrete implementation.
type CatalogService interface {
	Browse(ctx context.Context, criteria view.Criteria, key view.SortKey, page view.PageSpec) (service.BrowseResult, error)
	MarketOverview(ctx context.Context) (service.Overview, error)
	ListingDetail(ctx context.Context, id uint64) (domain.Listing, error)
	AuctionDetail(ctx context.Context, id uint64) (domain.Auction, error)
	OfferDetail(ctx context.Context, id uint64) (service.OfferView, error)
	UserListings(ctx context.Context, addr string) ([]domain.Listing, error)
	NFTOffers(ctx context.Context, contract string, tokenID uint64) ([]service.OfferView, error)
	Refresh(ctx context.Context) (domain.RefreshReport, error)
}

// CatalogHandler serves the marketplace read endpoints.
type CatalogHandler struct {
	catalog CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler creates a CatalogHandler.
func NewCatalogHandler(catalog CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

const (
	defaultPageSize = 12
	maxPageSize     = 100
)

// parseBrowseQuery maps the catalog query string onto pipeline inputs.
// Price bounds arrive as decimal ETH strings and convert to base units.
func parseBrowseQuery(r *http.Request) (view.Criteria, view.SortKey, view.PageSpec, error) {
	q := r.URL.Query()

	criteria := view.Criteria{
		Search:   q.Get("search"),
		Category: q.Get("category"),
	}

	var err error
	if criteria.MinPrice, err = parsePriceBound(q.Get("min_price")); err != nil {
		return view.Criteria{}, "", view.PageSpec{}, err
	}
	if criteria.MaxPrice, err = parsePriceBound(q.Get("max_price")); err != nil {
		return view.Criteria{}, "", view.PageSpec{}, err
	}

	key := view.SortKey(q.Get("sort"))
	if key == "" {
		key = view.SortPriceAsc
	}

	page := view.PageSpec{Page: 1, PageSize: defaultPageSize}
	if v := q.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page.Page = n
		}
	}
	if v := q.Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page.PageSize = n
		}
	}
	if page.PageSize > maxPageSize {
		page.PageSize = maxPageSize
	}

	return criteria, key, page, nil
}

func parsePriceBound(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	return wei.ToBaseUnits(s)
}

// ListCatalog returns one filtered, sorted page of the catalog.
// GET /api/listings?search=&category=&min_price=&max_price=&sort=&page=&page_size=
func (h *CatalogHandler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	criteria, key, page, err := parseBrowseQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := h.catalog.Browse(r.Context(), criteria, key, page)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: browse failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetMarket returns the marketplace overview.
// GET /api/market
func (h *CatalogHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	overview, err := h.catalog.MarketOverview(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// RefreshMarket triggers a full mirror refresh.
// POST /api/market/refresh
func (h *CatalogHandler) RefreshMarket(w http.ResponseWriter, r *http.Request) {
	report, err := h.catalog.Refresh(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: refresh failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetListing returns a single listing.
// GET /api/listings/{id}
func (h *CatalogHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	listing, err := h.catalog.ListingDetail(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// GetAuction returns a single auction.
// GET /api/auctions/{id}
func (h *CatalogHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	auction, err := h.catalog.AuctionDetail(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auction)
}

// GetOffer returns a single offer with its display status.
// GET /api/offers/{id}
func (h *CatalogHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offer, err := h.catalog.OfferDetail(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// ListUserListings returns every listing created by an address.
// GET /api/users/{addr}/listings
func (h *CatalogHandler) ListUserListings(w http.ResponseWriter, r *http.Request) {
	listings, err := h.catalog.UserListings(r.Context(), pathParam(r, "addr"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// ListNFTOffers returns the offers on one NFT.
// GET /api/nfts/{contract}/{tokenId}/offers
func (h *CatalogHandler) ListNFTOffers(w http.ResponseWriter, r *http.Request) {
	tokenID, err := pathID(r, "tokenId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offers, err := h.catalog.NFTOffers(r.Context(), pathParam(r, "contract"), tokenID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}
