// Package mirror maintains the locally queryable copy of the on-chain
// marketplace state. It owns the snapshot, coordinates batch and
// per-entity refreshes, coalesces duplicate in-flight fetches, and
// notifies subscribers after every change. All snapshot swaps are atomic
// from a reader's perspective.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nftbay/marketd/internal/domain"
)

// Options tune refresh behaviour. Zero values fall back to defaults.
type Options struct {
	// MaxAttempts bounds read retries on ErrLedgerUnavailable.
	MaxAttempts int

	// BaseBackoff is the first retry delay; it doubles per attempt.
	BaseBackoff time.Duration

	// PageSize is the ledger list page size used during batch refresh.
	PageSize int
}

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 250 * time.Millisecond
)

// Mirror is the marketplace state mirror. Cache and bus are optional;
// a nil cache disables write-through, a nil bus disables event fan-out.
type Mirror struct {
	ledger domain.LedgerReader
	cache  domain.SnapshotCache
	bus    domain.SignalBus
	logger *slog.Logger
	opts   Options

	mu   sync.RWMutex
	snap domain.Snapshot

	group singleflight.Group

	subMu   sync.Mutex
	subs    map[int]chan domain.RefreshEvent
	nextSub int
}

// New creates a Mirror over the given ledger reader.
func New(ledger domain.LedgerReader, cache domain.SnapshotCache, bus domain.SignalBus, logger *slog.Logger, opts Options) *Mirror {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = defaultBaseBackoff
	}
	if opts.PageSize <= 0 || opts.PageSize > domain.MaxPageLimit {
		opts.PageSize = domain.MaxPageLimit
	}
	return &Mirror{
		ledger: ledger,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "mirror")),
		opts:   opts,
		snap:   domain.NewSnapshot(),
		subs:   make(map[int]chan domain.RefreshEvent),
	}
}

// withRetry runs op, retrying with bounded exponential backoff while the
// failure is ErrLedgerUnavailable. Other errors return immediately.
func (m *Mirror) withRetry(ctx context.Context, op func() error) error {
	delay := m.opts.BaseBackoff
	var err error
	for attempt := 1; ; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, domain.ErrLedgerUnavailable) {
			return err
		}
		if attempt >= m.opts.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("mirror: retry interrupted: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// RefreshAll fetches the scalar batch and the active listing/auction sets
// in one coordinated refresh. Subsets are fetched concurrently; a failed
// subset keeps its previous snapshot data and is reported in the result.
// The snapshot is swapped once, after every fetch has settled, so readers
// never observe a mix of pre- and mid-refresh data.
func (m *Mirror) RefreshAll(ctx context.Context) (domain.RefreshReport, error) {
	var (
		fee            int
		paused         bool
		listingCounter uint64
		offerCounter   uint64
		listings       []domain.Listing
		auctions       []domain.Auction
		scalarsErr     error
		listingsErr    error
		auctionsErr    error
	)

	var g errgroup.Group
	g.Go(func() error {
		scalarsErr = m.withRetry(ctx, func() error {
			var err error
			if fee, err = m.ledger.MarketplaceFee(ctx); err != nil {
				return err
			}
			if paused, err = m.ledger.Paused(ctx); err != nil {
				return err
			}
			if listingCounter, err = m.ledger.ListingCounter(ctx); err != nil {
				return err
			}
			offerCounter, err = m.ledger.OfferCounter(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		listingsErr = m.withRetry(ctx, func() error {
			var err error
			listings, err = m.fetchAllListings(ctx)
			return err
		})
		return nil
	})
	g.Go(func() error {
		auctionsErr = m.withRetry(ctx, func() error {
			var err error
			auctions, err = m.fetchAllAuctions(ctx)
			return err
		})
		return nil
	})
	_ = g.Wait()

	report := domain.RefreshReport{At: time.Now().UTC(), Failed: map[domain.RefreshSubset]string{}}

	m.mu.Lock()
	next := m.snap.Clone()
	if scalarsErr == nil {
		next.FeeBasisPoints = fee
		next.Paused = paused
		next.ListingCounter = listingCounter
		next.OfferCounter = offerCounter
		report.Refreshed = append(report.Refreshed, domain.SubsetScalars)
	} else {
		report.Failed[domain.SubsetScalars] = scalarsErr.Error()
	}
	if listingsErr == nil {
		next.Listings = make(map[uint64]domain.Listing, len(listings))
		for _, l := range listings {
			next.Listings[l.ID] = l
		}
		report.Refreshed = append(report.Refreshed, domain.SubsetListings)
	} else {
		report.Failed[domain.SubsetListings] = listingsErr.Error()
	}
	if auctionsErr == nil {
		next.Auctions = make(map[uint64]domain.Auction, len(auctions))
		for _, a := range auctions {
			next.Auctions[a.ID] = a
		}
		report.Refreshed = append(report.Refreshed, domain.SubsetAuctions)
	} else {
		report.Failed[domain.SubsetAuctions] = auctionsErr.Error()
	}
	next.RefreshedAt = report.At
	m.snap = next
	m.mu.Unlock()

	if len(report.Failed) == 0 {
		report.Failed = nil
	} else {
		m.logger.WarnContext(ctx, "partial refresh",
			slog.Int("failed_subsets", len(report.Failed)),
		)
	}

	m.fillCache(ctx, listings, auctions)
	m.notify(ctx, domain.RefreshEvent{Full: true, At: report.At})

	if report.Failed != nil && len(report.Refreshed) == 0 {
		return report, fmt.Errorf("mirror: refresh failed for all subsets: %w", domain.ErrLedgerUnavailable)
	}
	return report, nil
}

func (m *Mirror) fetchAllListings(ctx context.Context) ([]domain.Listing, error) {
	var all []domain.Listing
	for offset := 0; ; offset += m.opts.PageSize {
		page, err := m.ledger.ActiveListings(ctx, offset, m.opts.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < m.opts.PageSize {
			return all, nil
		}
	}
}

func (m *Mirror) fetchAllAuctions(ctx context.Context) ([]domain.Auction, error) {
	var all []domain.Auction
	for offset := 0; ; offset += m.opts.PageSize {
		page, err := m.ledger.ActiveAuctions(ctx, offset, m.opts.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < m.opts.PageSize {
			return all, nil
		}
	}
}

// fillCache writes refreshed entities through to the session cache.
// Cache failures are logged and otherwise ignored; the cache expires on
// its own.
func (m *Mirror) fillCache(ctx context.Context, listings []domain.Listing, auctions []domain.Auction) {
	if m.cache == nil {
		return
	}
	for _, l := range listings {
		if err := m.cache.SetListing(ctx, l); err != nil {
			m.logger.WarnContext(ctx, "cache fill failed",
				slog.Uint64("listing_id", l.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
	for _, a := range auctions {
		if err := m.cache.SetAuction(ctx, a); err != nil {
			m.logger.WarnContext(ctx, "cache fill failed",
				slog.Uint64("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// RefreshEntity re-fetches a single entity after a confirmed write and
// replaces exactly that entry. A NotFound result removes the entry.
func (m *Mirror) RefreshEntity(ctx context.Context, kind domain.EntityKind, id uint64) error {
	err := m.withRetry(ctx, func() error {
		switch kind {
		case domain.KindListing:
			l, err := m.ledger.GetListing(ctx, id)
			if err != nil {
				return err
			}
			m.storeListing(ctx, l)
		case domain.KindAuction:
			a, err := m.ledger.GetAuction(ctx, id)
			if err != nil {
				return err
			}
			m.storeAuction(ctx, a)
		case domain.KindOffer:
			o, err := m.ledger.GetOffer(ctx, id)
			if err != nil {
				return err
			}
			m.storeOffer(ctx, o)
		default:
			return fmt.Errorf("mirror: unknown entity kind %q: %w", kind, domain.ErrInvalidParams)
		}
		return nil
	})

	if errors.Is(err, domain.ErrNotFound) {
		m.evict(ctx, kind, id)
		return err
	}
	if err != nil {
		return err
	}

	m.notify(ctx, domain.RefreshEvent{Kind: kind, ID: id, At: time.Now().UTC()})
	return nil
}

func (m *Mirror) storeListing(ctx context.Context, l domain.Listing) {
	m.mu.Lock()
	m.snap.Listings[l.ID] = l
	m.mu.Unlock()
	if m.cache != nil {
		if err := m.cache.SetListing(ctx, l); err != nil {
			m.logger.WarnContext(ctx, "cache set failed", slog.String("error", err.Error()))
		}
	}
}

func (m *Mirror) storeAuction(ctx context.Context, a domain.Auction) {
	m.mu.Lock()
	m.snap.Auctions[a.ID] = a
	m.mu.Unlock()
	if m.cache != nil {
		if err := m.cache.SetAuction(ctx, a); err != nil {
			m.logger.WarnContext(ctx, "cache set failed", slog.String("error", err.Error()))
		}
	}
}

func (m *Mirror) storeOffer(ctx context.Context, o domain.Offer) {
	m.mu.Lock()
	m.snap.Offers[o.ID] = o
	m.mu.Unlock()
	if m.cache != nil {
		if err := m.cache.SetOffer(ctx, o); err != nil {
			m.logger.WarnContext(ctx, "cache set failed", slog.String("error", err.Error()))
		}
	}
}

func (m *Mirror) evict(ctx context.Context, kind domain.EntityKind, id uint64) {
	m.mu.Lock()
	switch kind {
	case domain.KindListing:
		delete(m.snap.Listings, id)
	case domain.KindAuction:
		delete(m.snap.Auctions, id)
	case domain.KindOffer:
		delete(m.snap.Offers, id)
	}
	m.mu.Unlock()
	if m.cache != nil {
		if err := m.cache.Invalidate(ctx, kind, id); err != nil {
			m.logger.WarnContext(ctx, "cache invalidate failed", slog.String("error", err.Error()))
		}
	}
}

// Listing returns the cached listing or lazily fetches a missing one.
// Concurrent callers for the same id share a single underlying read.
func (m *Mirror) Listing(ctx context.Context, id uint64) (domain.Listing, error) {
	m.mu.RLock()
	l, ok := m.snap.Listings[id]
	m.mu.RUnlock()
	if ok {
		return l, nil
	}

	v, err, _ := m.group.Do(flightKey(domain.KindListing, id), func() (any, error) {
		if m.cache != nil {
			if cached, err := m.cache.GetListing(ctx, id); err == nil {
				m.storeListing(ctx, cached)
				return cached, nil
			}
		}
		var fetched domain.Listing
		err := m.withRetry(ctx, func() error {
			var err error
			fetched, err = m.ledger.GetListing(ctx, id)
			return err
		})
		if err != nil {
			return domain.Listing{}, err
		}
		m.storeListing(ctx, fetched)
		return fetched, nil
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return v.(domain.Listing), nil
}

// Auction returns the cached auction or lazily fetches a missing one.
func (m *Mirror) Auction(ctx context.Context, id uint64) (domain.Auction, error) {
	m.mu.RLock()
	a, ok := m.snap.Auctions[id]
	m.mu.RUnlock()
	if ok {
		return a, nil
	}

	v, err, _ := m.group.Do(flightKey(domain.KindAuction, id), func() (any, error) {
		if m.cache != nil {
			if cached, err := m.cache.GetAuction(ctx, id); err == nil {
				m.storeAuction(ctx, cached)
				return cached, nil
			}
		}
		var fetched domain.Auction
		err := m.withRetry(ctx, func() error {
			var err error
			fetched, err = m.ledger.GetAuction(ctx, id)
			return err
		})
		if err != nil {
			return domain.Auction{}, err
		}
		m.storeAuction(ctx, fetched)
		return fetched, nil
	})
	if err != nil {
		return domain.Auction{}, err
	}
	return v.(domain.Auction), nil
}

// Offer returns the cached offer or lazily fetches a missing one.
func (m *Mirror) Offer(ctx context.Context, id uint64) (domain.Offer, error) {
	m.mu.RLock()
	o, ok := m.snap.Offers[id]
	m.mu.RUnlock()
	if ok {
		return o, nil
	}

	v, err, _ := m.group.Do(flightKey(domain.KindOffer, id), func() (any, error) {
		if m.cache != nil {
			if cached, err := m.cache.GetOffer(ctx, id); err == nil {
				m.storeOffer(ctx, cached)
				return cached, nil
			}
		}
		var fetched domain.Offer
		err := m.withRetry(ctx, func() error {
			var err error
			fetched, err = m.ledger.GetOffer(ctx, id)
			return err
		})
		if err != nil {
			return domain.Offer{}, err
		}
		m.storeOffer(ctx, fetched)
		return fetched, nil
	})
	if err != nil {
		return domain.Offer{}, err
	}
	return v.(domain.Offer), nil
}

func flightKey(kind domain.EntityKind, id uint64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

// UserListings reads a user's listings from the ledger with retry and
// folds them into the snapshot.
func (m *Mirror) UserListings(ctx context.Context, user common.Address) ([]domain.Listing, error) {
	var listings []domain.Listing
	err := m.withRetry(ctx, func() error {
		var err error
		listings, err = m.ledger.UserListings(ctx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	for _, l := range listings {
		m.snap.Listings[l.ID] = l
	}
	m.mu.Unlock()
	return listings, nil
}

// OffersForNFT reads the offers on one NFT with retry and folds them
// into the snapshot.
func (m *Mirror) OffersForNFT(ctx context.Context, nftContract common.Address, tokenID uint64) ([]domain.Offer, error) {
	var offers []domain.Offer
	err := m.withRetry(ctx, func() error {
		var err error
		offers, err = m.ledger.OffersForNFT(ctx, nftContract, tokenID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	for _, o := range offers {
		m.snap.Offers[o.ID] = o
	}
	m.mu.Unlock()
	return offers, nil
}

// Snapshot returns a copy of the current snapshot.
func (m *Mirror) Snapshot() domain.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone()
}

// Subscribe registers a refresh-event listener. The returned cancel
// function releases the subscription; events are dropped rather than
// blocking a slow subscriber.
func (m *Mirror) Subscribe() (<-chan domain.RefreshEvent, func()) {
	ch := make(chan domain.RefreshEvent, 16)

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Mirror) notify(ctx context.Context, ev domain.RefreshEvent) {
	m.subMu.Lock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	m.subMu.Unlock()

	if m.bus != nil {
		payload, err := json.Marshal(ev)
		if err == nil {
			if err := m.bus.Publish(ctx, domain.ChannelRefresh, payload); err != nil {
				m.logger.WarnContext(ctx, "publish refresh event failed", slog.String("error", err.Error()))
			}
		}
	}
}
