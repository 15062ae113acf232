package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftbay/marketd/internal/domain"
	"github.com/nftbay/marketd/internal/view"
)

type fakeMirror struct {
	snap domain.Snapshot
}

func (f *fakeMirror) Snapshot() domain.Snapshot { return f.snap.Clone() }

func (f *fakeMirror) Listing(ctx context.Context, id uint64) (domain.Listing, error) {
	if l, ok := f.snap.Listings[id]; ok {
		return l, nil
	}
	return domain.Listing{}, domain.ErrNotFound
}

func (f *fakeMirror) Auction(ctx context.Context, id uint64) (domain.Auction, error) {
	if a, ok := f.snap.Auctions[id]; ok {
		return a, nil
	}
	return domain.Auction{}, domain.ErrNotFound
}

func (f *fakeMirror) Offer(ctx context.Context, id uint64) (domain.Offer, error) {
	if o, ok := f.snap.Offers[id]; ok {
		return o, nil
	}
	return domain.Offer{}, domain.ErrNotFound
}

func (f *fakeMirror) UserListings(ctx context.Context, user common.Address) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range f.snap.Listings {
		if l.Seller == user {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeMirror) OffersForNFT(ctx context.Context, nftContract common.Address, tokenID uint64) ([]domain.Offer, error) {
	var out []domain.Offer
	for _, o := range f.snap.Offers {
		if o.NFTContract == nftContract && o.TokenID == tokenID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeMirror) RefreshAll(ctx context.Context) (domain.RefreshReport, error) {
	return domain.RefreshReport{At: time.Now()}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func marketSnapshot() domain.Snapshot {
	snap := domain.NewSnapshot()
	snap.FeeBasisPoints = 250
	snap.ListingCounter = 3
	snap.Listings[1] = domain.Listing{ID: 1, Price: eth(1), Active: true, Name: "Sunset", Category: "art"}
	snap.Listings[2] = domain.Listing{ID: 2, Price: eth(3), Active: true, Name: "Pixel Cat", Category: "collectibles"}
	snap.Listings[3] = domain.Listing{ID: 3, Price: eth(9), Active: false, Name: "Gone", Category: "art"}
	snap.Auctions[4] = domain.Auction{
		ID: 4, StartingPrice: eth(2), CurrentBid: eth(5),
		EndTime: time.Now().Add(time.Hour), Name: "Dusk", Category: "art",
	}
	snap.Auctions[5] = domain.Auction{ID: 5, StartingPrice: eth(1), Settled: true, Name: "Done"}
	return snap
}

func TestBrowseExcludesInactiveAndSettled(t *testing.T) {
	c := NewCatalog(&fakeMirror{snap: marketSnapshot()}, testLogger())

	result, err := c.Browse(context.Background(), view.Criteria{}, view.SortPriceAsc, view.PageSpec{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if result.TotalItems != 3 {
		t.Fatalf("total = %d, want 3 (inactive listing and settled auction excluded)", result.TotalItems)
	}
	for _, it := range result.Items {
		if it.ID == 3 || (it.Kind == domain.KindAuction && it.ID == 5) {
			t.Errorf("excluded item %d/%s in results", it.ID, it.Kind)
		}
	}
	if len(result.PageWindow) != 1 || result.PageWindow[0] != 1 {
		t.Errorf("page window = %v, want [1]", result.PageWindow)
	}
}

func TestBrowseAuctionsPricedAtBestBid(t *testing.T) {
	c := NewCatalog(&fakeMirror{snap: marketSnapshot()}, testLogger())

	result, err := c.Browse(context.Background(), view.Criteria{MinPrice: eth(4)}, view.SortPriceAsc, view.PageSpec{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("Browse: %v", err)
	}
	if result.TotalItems != 1 || result.Items[0].Kind != domain.KindAuction || result.Items[0].ID != 4 {
		t.Fatalf("items = %+v, want only auction 4 at its current bid", result.Items)
	}
}

func TestMarketOverviewAggregates(t *testing.T) {
	c := NewCatalog(&fakeMirror{snap: marketSnapshot()}, testLogger())

	ov, err := c.MarketOverview(context.Background())
	if err != nil {
		t.Fatalf("MarketOverview: %v", err)
	}
	if ov.FeeBasisPoints != 250 {
		t.Errorf("fee = %d, want 250", ov.FeeBasisPoints)
	}
	if ov.Stats.ItemCount != 3 {
		t.Errorf("item count = %d, want 3", ov.Stats.ItemCount)
	}
	if ov.Stats.FloorPrice == nil || ov.Stats.FloorPrice.Cmp(eth(1)) != 0 {
		t.Errorf("floor = %v, want 1 ETH", ov.Stats.FloorPrice)
	}
	// 1 + 3 + 5 (auction counts at its current bid)
	if ov.Stats.TotalVolume.Cmp(eth(9)) != 0 {
		t.Errorf("volume = %v, want 9 ETH", ov.Stats.TotalVolume)
	}
}

func TestOfferDetailDerivesExpiredStatus(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.Offers[7] = domain.Offer{
		ID: 7, Amount: eth(1), Status: domain.OfferOpen,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	c := NewCatalog(&fakeMirror{snap: snap}, testLogger())

	ov, err := c.OfferDetail(context.Background(), 7)
	if err != nil {
		t.Fatalf("OfferDetail: %v", err)
	}
	if ov.EffectiveStatus != domain.OfferExpired {
		t.Errorf("effective status = %s, want expired", ov.EffectiveStatus)
	}
	if ov.Status != domain.OfferOpen {
		t.Errorf("stored status = %s, must stay open", ov.Status)
	}
}

func TestUserListingsRejectsBadAddress(t *testing.T) {
	c := NewCatalog(&fakeMirror{snap: domain.NewSnapshot()}, testLogger())

	if _, err := c.UserListings(context.Background(), "not-an-address"); err == nil {
		t.Fatal("expected error for malformed address")
	}
}

type fakeBlob struct {
	path string
	body bytes.Buffer
}

func (f *fakeBlob) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	f.path = path
	_, err := io.Copy(&f.body, data)
	return err
}

type memActivity struct {
	entries []domain.ActivityEntry
	deleted int64
}

func (m *memActivity) Record(ctx context.Context, e domain.ActivityEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memActivity) List(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	return m.entries, nil
}

func (m *memActivity) ListBefore(ctx context.Context, before time.Time) ([]domain.ActivityEntry, error) {
	var out []domain.ActivityEntry
	for _, e := range m.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memActivity) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	kept := m.entries[:0]
	for _, e := range m.entries {
		if e.CreatedAt.Before(before) {
			m.deleted++
		} else {
			kept = append(kept, e)
		}
	}
	m.entries = kept
	return m.deleted, nil
}

func TestArchiveExportsAndPrunes(t *testing.T) {
	store := &memActivity{}
	cutoff := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store.entries = []domain.ActivityEntry{
		{ID: "a", Kind: domain.TxCreateListing, State: domain.TxConfirmed, CreatedAt: cutoff.Add(-time.Hour)},
		{ID: "b", Kind: domain.TxPlaceBid, State: domain.TxFailed, CreatedAt: cutoff.Add(-2 * time.Hour)},
		{ID: "c", Kind: domain.TxMakeOffer, State: domain.TxConfirmed, CreatedAt: cutoff.Add(time.Hour)},
	}
	blob := &fakeBlob{}
	a := NewActivity(store, blob, testLogger())

	result, err := a.Archive(context.Background(), cutoff, true)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.Entries != 2 || result.Pruned != 2 {
		t.Fatalf("result = %+v, want 2 exported and 2 pruned", result)
	}
	if !strings.HasPrefix(blob.path, "archive/activity/") {
		t.Errorf("path = %q", blob.path)
	}
	if lines := strings.Count(blob.body.String(), "\n"); lines != 2 {
		t.Errorf("archive lines = %d, want 2", lines)
	}
	if len(store.entries) != 1 || store.entries[0].ID != "c" {
		t.Errorf("remaining entries = %+v, want only c", store.entries)
	}
}

func TestArchiveNothingToDo(t *testing.T) {
	blob := &fakeBlob{}
	a := NewActivity(&memActivity{}, blob, testLogger())

	result, err := a.Archive(context.Background(), time.Now(), true)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if result.Entries != 0 || blob.path != "" {
		t.Errorf("empty archive must not upload, result = %+v, path = %q", result, blob.path)
	}
}
