package txmgr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftbay/marketd/internal/domain"
)

type fakeWriter struct {
	submitErr   error
	receipt     domain.Receipt
	confirmErr  error
	confirmGate chan struct{} // when set, WaitConfirmed blocks until closed

	submitCalls atomic.Int64
}

func (f *fakeWriter) Submit(ctx context.Context, kind domain.TxKind, params domain.TxParams) (string, error) {
	f.submitCalls.Add(1)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "0xabc123", nil
}

func (f *fakeWriter) WaitConfirmed(ctx context.Context, hash string) (domain.Receipt, error) {
	if f.confirmGate != nil {
		select {
		case <-f.confirmGate:
		case <-ctx.Done():
			return domain.Receipt{}, ctx.Err()
		}
	}
	if f.confirmErr != nil {
		return domain.Receipt{}, f.confirmErr
	}
	r := f.receipt
	if r.Hash == "" {
		r.Hash = hash
	}
	return r, nil
}

type fakeIdentity struct {
	connected bool
}

func (f fakeIdentity) Address() (common.Address, bool) {
	return common.HexToAddress("0x2222222222222222222222222222222222222222"), f.connected
}

type fakeState struct {
	snap     domain.Snapshot
	refreshd atomic.Int64
}

func (f *fakeState) Snapshot() domain.Snapshot { return f.snap.Clone() }

func (f *fakeState) Listing(ctx context.Context, id uint64) (domain.Listing, error) {
	if l, ok := f.snap.Listings[id]; ok {
		return l, nil
	}
	return domain.Listing{}, domain.ErrNotFound
}

func (f *fakeState) Auction(ctx context.Context, id uint64) (domain.Auction, error) {
	if a, ok := f.snap.Auctions[id]; ok {
		return a, nil
	}
	return domain.Auction{}, domain.ErrNotFound
}

func (f *fakeState) Offer(ctx context.Context, id uint64) (domain.Offer, error) {
	if o, ok := f.snap.Offers[id]; ok {
		return o, nil
	}
	return domain.Offer{}, domain.ErrNotFound
}

func (f *fakeState) RefreshEntity(ctx context.Context, kind domain.EntityKind, id uint64) error {
	f.refreshd.Add(1)
	return nil
}

type fakeActivity struct {
	entries chan domain.ActivityEntry
}

func newFakeActivity() *fakeActivity {
	return &fakeActivity{entries: make(chan domain.ActivityEntry, 16)}
}

func (f *fakeActivity) Record(ctx context.Context, e domain.ActivityEntry) error {
	f.entries <- e
	return nil
}

func (f *fakeActivity) List(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	return nil, nil
}

func (f *fakeActivity) ListBefore(ctx context.Context, before time.Time) ([]domain.ActivityEntry, error) {
	return nil, nil
}

func (f *fakeActivity) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func testManager(w *fakeWriter, s *fakeState, a domain.ActivityStore) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(w, fakeIdentity{connected: true}, s, a, nil, logger, Options{ConfirmTimeout: 2 * time.Second})
}

func createListingParams() domain.TxParams {
	return domain.TxParams{
		NFTContract: common.HexToAddress("0x3333333333333333333333333333333333333333"),
		TokenID:     1,
		Amount:      eth(1),
	}
}

// waitForState polls until the slot reaches want or the deadline passes.
func waitForState(t *testing.T, m *Manager, kind domain.TxKind, want domain.TxState) domain.TxStatus {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := m.Status(kind)
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.State == want {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	status, _ := m.Status(kind)
	t.Fatalf("slot %s never reached %s, last state %s", kind, want, status.State)
	return domain.TxStatus{}
}

func TestInvokeConfirmedLifecycle(t *testing.T) {
	w := &fakeWriter{receipt: domain.Receipt{EntityID: 42, Kind: domain.KindListing, BlockNumber: 10}}
	s := &fakeState{snap: domain.NewSnapshot()}
	a := newFakeActivity()
	m := testManager(w, s, a)

	status, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams())
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if status.State != domain.TxSubmitted {
		t.Fatalf("state = %s, want submitted", status.State)
	}
	if status.Hash == "" || status.AttemptID == "" {
		t.Fatalf("submitted status missing hash or attempt id: %+v", status)
	}

	final := waitForState(t, m, domain.TxCreateListing, domain.TxConfirmed)
	if final.EntityID != 42 {
		t.Errorf("entity id = %d, want 42", final.EntityID)
	}

	select {
	case entry := <-a.entries:
		if entry.State != domain.TxConfirmed || entry.Kind != domain.TxCreateListing {
			t.Errorf("activity entry = %+v", entry)
		}
	case <-time.After(time.Second):
		t.Fatal("no activity entry recorded")
	}
	if s.refreshd.Load() == 0 {
		t.Error("confirmed write should refresh the affected entity")
	}
}

func TestInvokeWhileInFlightIsRejected(t *testing.T) {
	gate := make(chan struct{})
	w := &fakeWriter{confirmGate: gate}
	m := testManager(w, &fakeState{snap: domain.NewSnapshot()}, nil)

	if _, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams()); err != nil {
		t.Fatalf("first Invoke: %v", err)
	}

	_, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams())
	if !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("err = %v, want ErrOperationInProgress", err)
	}
	if got := w.submitCalls.Load(); got != 1 {
		t.Errorf("submit calls = %d, want 1", got)
	}

	close(gate)
	waitForState(t, m, domain.TxCreateListing, domain.TxConfirmed)
}

func TestTerminalSlotRequiresReset(t *testing.T) {
	w := &fakeWriter{}
	m := testManager(w, &fakeState{snap: domain.NewSnapshot()}, nil)

	if _, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	waitForState(t, m, domain.TxCreateListing, domain.TxConfirmed)

	_, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams())
	if !errors.Is(err, domain.ErrOperationInProgress) {
		t.Fatalf("err = %v, want ErrOperationInProgress on terminal slot", err)
	}

	if _, err := m.Reset(context.Background(), domain.TxCreateListing); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams()); err != nil {
		t.Fatalf("Invoke after reset: %v", err)
	}
	waitForState(t, m, domain.TxCreateListing, domain.TxConfirmed)
}

func TestConfirmTimeoutFailsSlot(t *testing.T) {
	gate := make(chan struct{}) // never closed; confirmation hangs
	w := &fakeWriter{confirmGate: gate}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(w, fakeIdentity{connected: true}, &fakeState{snap: domain.NewSnapshot()}, nil, nil, logger,
		Options{ConfirmTimeout: 30 * time.Millisecond})

	if _, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	final := waitForState(t, m, domain.TxCreateListing, domain.TxFailed)
	if final.Error == nil || final.Error.Reason != domain.ReasonTimeout {
		t.Errorf("error = %+v, want timeout reason", final.Error)
	}
}

func TestRevertedReceiptFailsSlot(t *testing.T) {
	w := &fakeWriter{receipt: domain.Receipt{Reverted: true}}
	m := testManager(w, &fakeState{snap: domain.NewSnapshot()}, nil)

	if _, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	final := waitForState(t, m, domain.TxCreateListing, domain.TxFailed)
	if final.Error == nil || final.Error.Reason != domain.ReasonLedgerReverted {
		t.Errorf("error = %+v, want ledger_reverted reason", final.Error)
	}
	if final.Error != nil && !strings.Contains(final.Error.Message, domain.ErrLedgerReverted.Error()) {
		t.Errorf("message = %q, want it to name the revert", final.Error.Message)
	}
}

func TestValidationFailsBeforeSubmit(t *testing.T) {
	w := &fakeWriter{}
	m := testManager(w, &fakeState{snap: domain.NewSnapshot()}, nil)

	params := createListingParams()
	params.Amount = big.NewInt(0)
	_, err := m.Invoke(context.Background(), domain.TxCreateListing, params)
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams", err)
	}
	if got := w.submitCalls.Load(); got != 0 {
		t.Errorf("submit calls = %d, want 0", got)
	}

	// The slot must be untouched so a corrected retry can start at once.
	status, err := m.Status(domain.TxCreateListing)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != domain.TxIdle {
		t.Errorf("state = %s, want idle after validation failure", status.State)
	}
}

func TestWalletNotConnectedBlocksWrites(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := New(&fakeWriter{}, fakeIdentity{connected: false}, &fakeState{snap: domain.NewSnapshot()}, nil, nil, logger, Options{})

	_, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams())
	if !errors.Is(err, domain.ErrWalletNotConnected) {
		t.Fatalf("err = %v, want ErrWalletNotConnected", err)
	}
}

func TestPausedMarketBlocksWrites(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.Paused = true
	m := testManager(&fakeWriter{}, &fakeState{snap: snap}, nil)

	_, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams())
	if !errors.Is(err, domain.ErrMarketPaused) {
		t.Fatalf("err = %v, want ErrMarketPaused", err)
	}
}

func TestBidMustExceedCurrentBid(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.Auctions[5] = domain.Auction{
		ID:            5,
		StartingPrice: eth(1),
		CurrentBid:    eth(2),
		EndTime:       time.Now().Add(time.Hour),
	}
	m := testManager(&fakeWriter{}, &fakeState{snap: snap}, nil)

	_, err := m.Invoke(context.Background(), domain.TxPlaceBid, domain.TxParams{AuctionID: 5, Amount: eth(2)})
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams for bid equal to current", err)
	}

	if _, err := m.Invoke(context.Background(), domain.TxPlaceBid, domain.TxParams{AuctionID: 5, Amount: eth(3)}); err != nil {
		t.Fatalf("higher bid should pass validation: %v", err)
	}
}

func TestPurchaseMustMatchListingPrice(t *testing.T) {
	snap := domain.NewSnapshot()
	snap.Listings[9] = domain.Listing{ID: 9, Price: eth(2), Active: true}
	m := testManager(&fakeWriter{}, &fakeState{snap: snap}, nil)

	_, err := m.Invoke(context.Background(), domain.TxPurchaseListing, domain.TxParams{ListingID: 9, Amount: eth(1)})
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Fatalf("err = %v, want ErrInvalidParams for short payment", err)
	}
}

func TestDuplicateConfirmationIsNoOp(t *testing.T) {
	w := &fakeWriter{receipt: domain.Receipt{EntityID: 7, Kind: domain.KindListing}}
	s := &fakeState{snap: domain.NewSnapshot()}
	a := newFakeActivity()
	m := testManager(w, s, a)

	if _, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	final := waitForState(t, m, domain.TxCreateListing, domain.TxConfirmed)

	select {
	case <-a.entries:
	case <-time.After(time.Second):
		t.Fatal("no activity entry for the first confirmation")
	}
	refreshes := s.refreshd.Load()

	// A second confirmation for the same attempt must leave the slot
	// untouched and produce no further side effects.
	m.confirm(domain.TxCreateListing, final.AttemptID, final.Hash,
		common.HexToAddress("0x2222222222222222222222222222222222222222"))

	status, err := m.Status(domain.TxCreateListing)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != domain.TxConfirmed || status.EntityID != 7 {
		t.Errorf("status = %+v, want confirmed with entity 7", status)
	}
	select {
	case entry := <-a.entries:
		t.Errorf("duplicate confirmation recorded activity: %+v", entry)
	default:
	}
	if got := s.refreshd.Load(); got != refreshes {
		t.Errorf("refresh calls = %d, want %d after duplicate confirmation", got, refreshes)
	}
}

func TestResetOrphansInFlightConfirmation(t *testing.T) {
	gate := make(chan struct{})
	w := &fakeWriter{confirmGate: gate, receipt: domain.Receipt{EntityID: 1, Kind: domain.KindListing}}
	a := newFakeActivity()
	m := testManager(w, &fakeState{snap: domain.NewSnapshot()}, a)

	if _, err := m.Invoke(context.Background(), domain.TxCreateListing, createListingParams()); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if _, err := m.Reset(context.Background(), domain.TxCreateListing); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	close(gate)

	// The stale confirmation must not resurrect the slot or log activity.
	time.Sleep(50 * time.Millisecond)
	status, err := m.Status(domain.TxCreateListing)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.State != domain.TxIdle {
		t.Errorf("state = %s, want idle after reset", status.State)
	}
	select {
	case entry := <-a.entries:
		t.Errorf("unexpected activity entry after reset: %+v", entry)
	default:
	}
}
