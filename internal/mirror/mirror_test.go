package mirror

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftbay/marketd/internal/domain"
)

// fakeLedger implements domain.LedgerReader with overridable hooks and
// call counting.
type fakeLedger struct {
	fee      int
	paused   bool
	listings []domain.Listing
	auctions []domain.Auction

	getListing func(ctx context.Context, id uint64) (domain.Listing, error)
	getOffer   func(ctx context.Context, id uint64) (domain.Offer, error)
	listErr    error

	getListingCalls atomic.Int64
}

func (f *fakeLedger) MarketplaceFee(ctx context.Context) (int, error) { return f.fee, nil }
func (f *fakeLedger) ListingCounter(ctx context.Context) (uint64, error) {
	return uint64(len(f.listings)), nil
}
func (f *fakeLedger) OfferCounter(ctx context.Context) (uint64, error) { return 0, nil }
func (f *fakeLedger) Paused(ctx context.Context) (bool, error)         { return f.paused, nil }

func (f *fakeLedger) GetListing(ctx context.Context, id uint64) (domain.Listing, error) {
	f.getListingCalls.Add(1)
	if f.getListing != nil {
		return f.getListing(ctx, id)
	}
	for _, l := range f.listings {
		if l.ID == id {
			return l, nil
		}
	}
	return domain.Listing{}, domain.ErrNotFound
}

func (f *fakeLedger) GetAuction(ctx context.Context, id uint64) (domain.Auction, error) {
	for _, a := range f.auctions {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Auction{}, domain.ErrNotFound
}

func (f *fakeLedger) GetOffer(ctx context.Context, id uint64) (domain.Offer, error) {
	if f.getOffer != nil {
		return f.getOffer(ctx, id)
	}
	return domain.Offer{}, domain.ErrNotFound
}

func (f *fakeLedger) ActiveListings(ctx context.Context, offset, limit int) ([]domain.Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return pageOf(f.listings, offset, limit), nil
}

func (f *fakeLedger) ActiveAuctions(ctx context.Context, offset, limit int) ([]domain.Auction, error) {
	return pageOf(f.auctions, offset, limit), nil
}

func (f *fakeLedger) UserListings(ctx context.Context, user common.Address) ([]domain.Listing, error) {
	var out []domain.Listing
	for _, l := range f.listings {
		if l.Seller == user {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLedger) OffersForNFT(ctx context.Context, nftContract common.Address, tokenID uint64) ([]domain.Offer, error) {
	return nil, nil
}

func pageOf[T any](all []T, offset, limit int) []T {
	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func testListing(id uint64) domain.Listing {
	return domain.Listing{
		ID:       id,
		Seller:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		TokenID:  id,
		Price:    eth(int64(id)),
		Active:   true,
		Name:     "item",
		Category: "art",
	}
}

func newTestMirror(ledger domain.LedgerReader) *Mirror {
	return New(ledger, nil, nil, testLogger(), Options{BaseBackoff: time.Millisecond})
}

func TestRefreshAllPopulatesSnapshot(t *testing.T) {
	ledger := &fakeLedger{
		fee:      250,
		listings: []domain.Listing{testListing(1), testListing(2)},
		auctions: []domain.Auction{{ID: 7, StartingPrice: eth(1), CurrentBid: big.NewInt(0)}},
	}
	m := newTestMirror(ledger)

	report, err := m.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if !report.Complete() {
		t.Fatalf("expected complete refresh, failed: %v", report.Failed)
	}

	snap := m.Snapshot()
	if snap.FeeBasisPoints != 250 {
		t.Errorf("fee = %d, want 250", snap.FeeBasisPoints)
	}
	if len(snap.Listings) != 2 {
		t.Errorf("listings = %d, want 2", len(snap.Listings))
	}
	if len(snap.Auctions) != 1 {
		t.Errorf("auctions = %d, want 1", len(snap.Auctions))
	}
	if snap.RefreshedAt.IsZero() {
		t.Error("RefreshedAt not set")
	}
}

func TestRefreshAllPartialFailureKeepsOldData(t *testing.T) {
	ledger := &fakeLedger{
		fee:      100,
		listings: []domain.Listing{testListing(1)},
	}
	m := newTestMirror(ledger)
	if _, err := m.RefreshAll(context.Background()); err != nil {
		t.Fatalf("seed refresh: %v", err)
	}

	ledger.listErr = domain.ErrLedgerUnavailable
	report, err := m.RefreshAll(context.Background())
	if err != nil {
		t.Fatalf("partial refresh should not error when some subsets succeed: %v", err)
	}
	if report.Complete() {
		t.Fatal("expected a failed subset")
	}
	if _, ok := report.Failed[domain.SubsetListings]; !ok {
		t.Fatalf("failed = %v, want listings subset", report.Failed)
	}

	snap := m.Snapshot()
	if _, ok := snap.Listings[1]; !ok {
		t.Error("failed subset should keep previous listings")
	}
	if snap.FeeBasisPoints != 100 {
		t.Errorf("scalars should still refresh, fee = %d", snap.FeeBasisPoints)
	}
}

func TestListingRetriesOnUnavailable(t *testing.T) {
	var calls atomic.Int64
	ledger := &fakeLedger{}
	ledger.getListing = func(ctx context.Context, id uint64) (domain.Listing, error) {
		if calls.Add(1) < 3 {
			return domain.Listing{}, domain.ErrLedgerUnavailable
		}
		return testListing(id), nil
	}
	m := newTestMirror(ledger)

	l, err := m.Listing(context.Background(), 9)
	if err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if l.ID != 9 {
		t.Errorf("id = %d, want 9", l.ID)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("ledger calls = %d, want 3", got)
	}
}

func TestListingNotFoundDoesNotRetry(t *testing.T) {
	ledger := &fakeLedger{}
	m := newTestMirror(ledger)

	_, err := m.Listing(context.Background(), 404)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := ledger.getListingCalls.Load(); got != 1 {
		t.Errorf("ledger calls = %d, want 1 (no retry on not found)", got)
	}
}

func TestListingCoalescesConcurrentFetches(t *testing.T) {
	gate := make(chan struct{})
	var calls atomic.Int64
	ledger := &fakeLedger{}
	ledger.getListing = func(ctx context.Context, id uint64) (domain.Listing, error) {
		calls.Add(1)
		<-gate
		return testListing(id), nil
	}
	m := newTestMirror(ledger)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.Listing(context.Background(), 5)
		}(i)
	}

	// Let the goroutines pile up on the in-flight fetch before releasing.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("ledger calls = %d, want 1 (coalesced)", got)
	}
}

func TestListingServedFromSnapshotAfterRefresh(t *testing.T) {
	ledger := &fakeLedger{listings: []domain.Listing{testListing(1)}}
	m := newTestMirror(ledger)
	if _, err := m.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	if _, err := m.Listing(context.Background(), 1); err != nil {
		t.Fatalf("Listing: %v", err)
	}
	if got := ledger.getListingCalls.Load(); got != 0 {
		t.Errorf("ledger calls = %d, want 0 (served from snapshot)", got)
	}
}

func TestRefreshEntityReplacesAndEvicts(t *testing.T) {
	ledger := &fakeLedger{listings: []domain.Listing{testListing(3)}}
	m := newTestMirror(ledger)

	if err := m.RefreshEntity(context.Background(), domain.KindListing, 3); err != nil {
		t.Fatalf("RefreshEntity: %v", err)
	}
	if _, ok := m.Snapshot().Listings[3]; !ok {
		t.Fatal("entity not stored after refresh")
	}

	// The ledger no longer knows the listing; the mirror must drop it.
	ledger.listings = nil
	err := m.RefreshEntity(context.Background(), domain.KindListing, 3)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, ok := m.Snapshot().Listings[3]; ok {
		t.Error("entity should be evicted after not found")
	}
}

func TestSubscribeReceivesRefreshEvents(t *testing.T) {
	ledger := &fakeLedger{listings: []domain.Listing{testListing(1)}}
	m := newTestMirror(ledger)

	ch, cancel := m.Subscribe()
	defer cancel()

	if _, err := m.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	select {
	case ev := <-ch:
		if !ev.Full {
			t.Errorf("event = %+v, want full refresh", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no refresh event received")
	}

	if err := m.RefreshEntity(context.Background(), domain.KindListing, 1); err != nil {
		t.Fatalf("RefreshEntity: %v", err)
	}
	select {
	case ev := <-ch:
		if ev.Full || ev.Kind != domain.KindListing || ev.ID != 1 {
			t.Errorf("event = %+v, want listing 1", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no entity event received")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	ledger := &fakeLedger{listings: []domain.Listing{testListing(1)}}
	m := newTestMirror(ledger)
	if _, err := m.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	snap := m.Snapshot()
	delete(snap.Listings, 1)

	if _, ok := m.Snapshot().Listings[1]; !ok {
		t.Error("mutating a returned snapshot must not affect the mirror")
	}
}
