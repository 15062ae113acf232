// Package txmgr drives the lifecycle of marketplace write operations.
// Each transaction kind owns one slot that moves through
// awaiting_signature, submitted, and a terminal confirmed or failed
// state. Terminal slots stay put until an explicit reset, so the UI can
// show the outcome for as long as it needs to.
package txmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/nftbay/marketd/internal/domain"
)

// stateView is the read surface the manager needs for pre-submit
// validation and post-confirm refresh. The mirror satisfies it.
type stateView interface {
	Snapshot() domain.Snapshot
	Listing(ctx context.Context, id uint64) (domain.Listing, error)
	Auction(ctx context.Context, id uint64) (domain.Auction, error)
	Offer(ctx context.Context, id uint64) (domain.Offer, error)
	RefreshEntity(ctx context.Context, kind domain.EntityKind, id uint64) error
}

// Options tune the manager. Zero values fall back to defaults.
type Options struct {
	// ConfirmTimeout bounds the wait for a submitted transaction to mine.
	ConfirmTimeout time.Duration
}

const defaultConfirmTimeout = 3 * time.Minute

// Manager owns the per-kind transaction slots. Activity store and signal
// bus are optional.
type Manager struct {
	ledger   domain.LedgerWriter
	identity domain.Identity
	state    stateView
	activity domain.ActivityStore
	bus      domain.SignalBus
	logger   *slog.Logger
	opts     Options

	mu    sync.Mutex
	slots map[domain.TxKind]*domain.TxStatus
}

// New creates a Manager.
func New(ledger domain.LedgerWriter, identity domain.Identity, state stateView, activity domain.ActivityStore, bus domain.SignalBus, logger *slog.Logger, opts Options) *Manager {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}
	return &Manager{
		ledger:   ledger,
		identity: identity,
		state:    state,
		activity: activity,
		bus:      bus,
		logger:   logger.With(slog.String("component", "txmgr")),
		opts:     opts,
		slots:    make(map[domain.TxKind]*domain.TxStatus),
	}
}

// Invoke starts the write operation for kind. It validates the params,
// claims the kind's slot, submits the transaction, and confirms it in
// the background. The returned status reflects the submitted state; the
// caller observes the terminal outcome via Status or the signal bus.
func (m *Manager) Invoke(ctx context.Context, kind domain.TxKind, params domain.TxParams) (domain.TxStatus, error) {
	if !domain.ValidTxKind(kind) {
		return domain.TxStatus{}, fmt.Errorf("txmgr: unknown kind %q: %w", kind, domain.ErrInvalidParams)
	}

	account, connected := m.identity.Address()
	if !connected {
		return domain.TxStatus{}, domain.ErrWalletNotConnected
	}
	if m.state.Snapshot().Paused {
		return domain.TxStatus{}, domain.ErrMarketPaused
	}
	if err := m.validate(ctx, kind, params); err != nil {
		return domain.TxStatus{}, err
	}

	attemptID := uuid.NewString()
	now := time.Now().UTC()

	m.mu.Lock()
	if cur, ok := m.slots[kind]; ok && cur.State != domain.TxIdle {
		status := *cur
		m.mu.Unlock()
		return status, fmt.Errorf("txmgr: %s slot is %s: %w", kind, status.State, domain.ErrOperationInProgress)
	}
	slot := &domain.TxStatus{
		Kind:      kind,
		State:     domain.TxAwaitingSignature,
		AttemptID: attemptID,
		StartedAt: now,
		UpdatedAt: now,
	}
	m.slots[kind] = slot
	status := *slot
	m.mu.Unlock()
	m.publish(ctx, status)

	hash, err := m.ledger.Submit(ctx, kind, params)
	if err != nil {
		status = m.fail(ctx, kind, attemptID, "", account, err)
		return status, err
	}

	status, _ = m.transition(kind, attemptID, func(s *domain.TxStatus) {
		s.State = domain.TxSubmitted
		s.Hash = hash
	})
	m.publish(ctx, status)

	go m.confirm(kind, attemptID, hash, account)
	return status, nil
}

// validate enforces per-kind parameter rules before anything is signed.
// Rules that need current marketplace state read through the mirror.
func (m *Manager) validate(ctx context.Context, kind domain.TxKind, p domain.TxParams) error {
	positive := func(name string) error {
		if p.Amount == nil || p.Amount.Sign() <= 0 {
			return fmt.Errorf("txmgr: %s must be positive: %w", name, domain.ErrInvalidParams)
		}
		return nil
	}

	switch kind {
	case domain.TxCreateListing:
		if p.NFTContract == (common.Address{}) {
			return fmt.Errorf("txmgr: nft contract required: %w", domain.ErrInvalidParams)
		}
		return positive("price")

	case domain.TxCancelListing:
		if p.ListingID == 0 {
			return fmt.Errorf("txmgr: listing id required: %w", domain.ErrInvalidParams)
		}
		return nil

	case domain.TxPurchaseListing:
		if p.ListingID == 0 {
			return fmt.Errorf("txmgr: listing id required: %w", domain.ErrInvalidParams)
		}
		if err := positive("payment"); err != nil {
			return err
		}
		l, err := m.state.Listing(ctx, p.ListingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("txmgr: listing %d: %w", p.ListingID, domain.ErrInvalidParams)
			}
			return err
		}
		if !l.Active {
			return fmt.Errorf("txmgr: listing %d is not active: %w", p.ListingID, domain.ErrInvalidParams)
		}
		if p.Amount.Cmp(l.Price) != 0 {
			return fmt.Errorf("txmgr: payment must equal listing price: %w", domain.ErrInvalidParams)
		}
		return nil

	case domain.TxCreateAuction:
		if p.NFTContract == (common.Address{}) {
			return fmt.Errorf("txmgr: nft contract required: %w", domain.ErrInvalidParams)
		}
		if p.Duration <= 0 {
			return fmt.Errorf("txmgr: auction duration must be positive: %w", domain.ErrInvalidParams)
		}
		return positive("starting price")

	case domain.TxPlaceBid:
		if p.AuctionID == 0 {
			return fmt.Errorf("txmgr: auction id required: %w", domain.ErrInvalidParams)
		}
		if err := positive("bid"); err != nil {
			return err
		}
		a, err := m.state.Auction(ctx, p.AuctionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("txmgr: auction %d: %w", p.AuctionID, domain.ErrInvalidParams)
			}
			return err
		}
		if a.Settled || !time.Now().Before(a.EndTime) {
			return fmt.Errorf("txmgr: auction %d has ended: %w", p.AuctionID, domain.ErrInvalidParams)
		}
		if p.Amount.Cmp(a.StartingPrice) < 0 {
			return fmt.Errorf("txmgr: bid below starting price: %w", domain.ErrInvalidParams)
		}
		if a.CurrentBid != nil && a.CurrentBid.Sign() > 0 && p.Amount.Cmp(a.CurrentBid) <= 0 {
			return fmt.Errorf("txmgr: bid must exceed current bid: %w", domain.ErrInvalidParams)
		}
		return nil

	case domain.TxEndAuction:
		if p.AuctionID == 0 {
			return fmt.Errorf("txmgr: auction id required: %w", domain.ErrInvalidParams)
		}
		return nil

	case domain.TxMakeOffer:
		if p.NFTContract == (common.Address{}) {
			return fmt.Errorf("txmgr: nft contract required: %w", domain.ErrInvalidParams)
		}
		if p.Duration <= 0 {
			return fmt.Errorf("txmgr: offer validity must be positive: %w", domain.ErrInvalidParams)
		}
		return positive("offer amount")

	case domain.TxAcceptOffer, domain.TxCancelOffer:
		if p.OfferID == 0 {
			return fmt.Errorf("txmgr: offer id required: %w", domain.ErrInvalidParams)
		}
		o, err := m.state.Offer(ctx, p.OfferID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fmt.Errorf("txmgr: offer %d: %w", p.OfferID, domain.ErrInvalidParams)
			}
			return err
		}
		if o.EffectiveStatus(time.Now()) != domain.OfferOpen {
			return fmt.Errorf("txmgr: offer %d is not open: %w", p.OfferID, domain.ErrInvalidParams)
		}
		return nil
	}
	return nil
}

// confirm waits for the submitted transaction to mine and drives the
// slot to its terminal state. It runs detached from the request context;
// ConfirmTimeout bounds the wait.
func (m *Manager) confirm(kind domain.TxKind, attemptID, hash string, account common.Address) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ConfirmTimeout)
	defer cancel()

	receipt, err := m.ledger.WaitConfirmed(ctx, hash)
	if err != nil {
		m.fail(ctx, kind, attemptID, hash, account, err)
		return
	}
	if receipt.Reverted {
		m.fail(ctx, kind, attemptID, hash, account,
			fmt.Errorf("txmgr: transaction reverted on chain: %w", domain.ErrLedgerReverted))
		return
	}

	status, applied := m.transition(kind, attemptID, func(s *domain.TxStatus) {
		s.State = domain.TxConfirmed
		s.EntityID = receipt.EntityID
		s.Error = nil
	})
	if !applied {
		// Slot was reset, superseded, or already terminal; nothing to
		// report.
		return
	}

	m.logger.InfoContext(ctx, "transaction confirmed",
		slog.String("kind", string(kind)),
		slog.String("hash", hash),
		slog.Uint64("entity_id", receipt.EntityID),
		slog.Uint64("block", receipt.BlockNumber),
	)

	if receipt.Kind != "" && receipt.EntityID != 0 {
		if err := m.state.RefreshEntity(ctx, receipt.Kind, receipt.EntityID); err != nil &&
			!errors.Is(err, domain.ErrNotFound) {
			m.logger.WarnContext(ctx, "post-confirm refresh failed",
				slog.String("kind", string(receipt.Kind)),
				slog.Uint64("id", receipt.EntityID),
				slog.String("error", err.Error()),
			)
		}
	}

	m.record(ctx, status, account)
	m.publish(ctx, status)
}

// fail moves the slot to Failed with a classified reason and returns the
// resulting status.
func (m *Manager) fail(ctx context.Context, kind domain.TxKind, attemptID, hash string, account common.Address, cause error) domain.TxStatus {
	info := &domain.ErrorInfo{Reason: classify(cause), Message: cause.Error()}
	status, applied := m.transition(kind, attemptID, func(s *domain.TxStatus) {
		s.State = domain.TxFailed
		s.Hash = hash
		s.Error = info
	})
	if !applied {
		return status
	}

	m.logger.WarnContext(ctx, "transaction failed",
		slog.String("kind", string(kind)),
		slog.String("reason", string(info.Reason)),
		slog.String("error", cause.Error()),
	)
	m.record(ctx, status, account)
	m.publish(ctx, status)
	return status
}

// classify maps a failure to the machine-readable reason surfaced to the
// UI.
func classify(err error) domain.FailReason {
	switch {
	case errors.Is(err, domain.ErrWalletNotConnected):
		return domain.ReasonUserRejected
	case errors.Is(err, domain.ErrLedgerReverted), errors.Is(err, domain.ErrInvalidParams):
		return domain.ReasonLedgerReverted
	case errors.Is(err, context.DeadlineExceeded):
		return domain.ReasonTimeout
	default:
		return domain.ReasonUnknown
	}
}

// transition applies fn to the kind's slot if it still belongs to the
// given attempt and has not reached a terminal state. It returns a copy
// of the slot afterwards and whether fn ran; a terminal slot is never
// modified, so a duplicate confirmation or failure is a no-op.
func (m *Manager) transition(kind domain.TxKind, attemptID string, fn func(*domain.TxStatus)) (domain.TxStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[kind]
	if !ok || slot.AttemptID != attemptID || slot.State.Terminal() {
		if ok {
			return *slot, false
		}
		return domain.TxStatus{Kind: kind, State: domain.TxIdle}, false
	}
	fn(slot)
	slot.UpdatedAt = time.Now().UTC()
	return *slot, true
}

// Status returns the current state of the kind's slot. A kind that has
// never been invoked reports Idle.
func (m *Manager) Status(kind domain.TxKind) (domain.TxStatus, error) {
	if !domain.ValidTxKind(kind) {
		return domain.TxStatus{}, fmt.Errorf("txmgr: unknown kind %q: %w", kind, domain.ErrInvalidParams)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if slot, ok := m.slots[kind]; ok {
		return *slot, nil
	}
	return domain.TxStatus{Kind: kind, State: domain.TxIdle}, nil
}

// Statuses returns every slot that has been invoked this session.
func (m *Manager) Statuses() []domain.TxStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TxStatus, 0, len(m.slots))
	for _, slot := range m.slots {
		out = append(out, *slot)
	}
	return out
}

// Reset returns the kind's slot to Idle. A confirmation still in flight
// for the old attempt becomes a no-op. Reset of an idle slot is
// harmless.
func (m *Manager) Reset(ctx context.Context, kind domain.TxKind) (domain.TxStatus, error) {
	if !domain.ValidTxKind(kind) {
		return domain.TxStatus{}, fmt.Errorf("txmgr: unknown kind %q: %w", kind, domain.ErrInvalidParams)
	}
	m.mu.Lock()
	slot := &domain.TxStatus{Kind: kind, State: domain.TxIdle, UpdatedAt: time.Now().UTC()}
	m.slots[kind] = slot
	status := *slot
	m.mu.Unlock()

	m.publish(ctx, status)
	return status, nil
}

// record persists a terminal outcome to the activity store, when one is
// configured.
func (m *Manager) record(ctx context.Context, status domain.TxStatus, account common.Address) {
	if m.activity == nil {
		return
	}
	entry := domain.ActivityEntry{
		ID:        status.AttemptID,
		Kind:      status.Kind,
		State:     status.State,
		Hash:      status.Hash,
		EntityID:  status.EntityID,
		Account:   account.Hex(),
		CreatedAt: time.Now().UTC(),
	}
	if status.Error != nil {
		entry.Detail = map[string]any{
			"reason":  string(status.Error.Reason),
			"message": status.Error.Message,
		}
	}
	if err := m.activity.Record(ctx, entry); err != nil {
		m.logger.WarnContext(ctx, "activity record failed",
			slog.String("attempt_id", status.AttemptID),
			slog.String("error", err.Error()),
		)
	}
}

// publish pushes the slot state onto the signal bus, when one is
// configured.
func (m *Manager) publish(ctx context.Context, status domain.TxStatus) {
	if m.bus == nil {
		return
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := m.bus.Publish(ctx, domain.ChannelTx, payload); err != nil {
		m.logger.WarnContext(ctx, "publish tx event failed",
			slog.String("error", err.Error()),
		)
	}
}
