package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nftbay/marketd/internal/domain"
)

// defaultEntityTTL bounds how stale a cached entity may be served.
const defaultEntityTTL = 2 * time.Minute

// SnapshotCache implements domain.SnapshotCache using JSON-serialized
// entities under per-kind keys.
//
// Key schema:
//
//	listing:{id}
//	auction:{id}
//	offer:{id}
type SnapshotCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
// A non-positive ttl falls back to the default.
func NewSnapshotCache(c *Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultEntityTTL
	}
	return &SnapshotCache{rdb: c.Underlying(), ttl: ttl}
}

func entityKey(kind domain.EntityKind, id uint64) string {
	return string(kind) + ":" + strconv.FormatUint(id, 10)
}

func (sc *SnapshotCache) set(ctx context.Context, kind domain.EntityKind, id uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis: marshal %s %d: %w", kind, id, err)
	}
	if err := sc.rdb.Set(ctx, entityKey(kind, id), data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s %d: %w", kind, id, err)
	}
	return nil
}

func (sc *SnapshotCache) get(ctx context.Context, kind domain.EntityKind, id uint64, v any) error {
	data, err := sc.rdb.Get(ctx, entityKey(kind, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("redis: get %s %d: %w", kind, id, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("redis: unmarshal %s %d: %w", kind, id, err)
	}
	return nil
}

// SetListing caches one listing.
func (sc *SnapshotCache) SetListing(ctx context.Context, l domain.Listing) error {
	return sc.set(ctx, domain.KindListing, l.ID, l)
}

// SetAuction caches one auction.
func (sc *SnapshotCache) SetAuction(ctx context.Context, a domain.Auction) error {
	return sc.set(ctx, domain.KindAuction, a.ID, a)
}

// SetOffer caches one offer.
func (sc *SnapshotCache) SetOffer(ctx context.Context, o domain.Offer) error {
	return sc.set(ctx, domain.KindOffer, o.ID, o)
}

// GetListing retrieves a cached listing, or domain.ErrNotFound on a miss.
func (sc *SnapshotCache) GetListing(ctx context.Context, id uint64) (domain.Listing, error) {
	var l domain.Listing
	if err := sc.get(ctx, domain.KindListing, id, &l); err != nil {
		return domain.Listing{}, err
	}
	return l, nil
}

// GetAuction retrieves a cached auction, or domain.ErrNotFound on a miss.
func (sc *SnapshotCache) GetAuction(ctx context.Context, id uint64) (domain.Auction, error) {
	var a domain.Auction
	if err := sc.get(ctx, domain.KindAuction, id, &a); err != nil {
		return domain.Auction{}, err
	}
	return a, nil
}

// GetOffer retrieves a cached offer, or domain.ErrNotFound on a miss.
func (sc *SnapshotCache) GetOffer(ctx context.Context, id uint64) (domain.Offer, error) {
	var o domain.Offer
	if err := sc.get(ctx, domain.KindOffer, id, &o); err != nil {
		return domain.Offer{}, err
	}
	return o, nil
}

// Invalidate removes one cached entity. A missing key is not an error.
func (sc *SnapshotCache) Invalidate(ctx context.Context, kind domain.EntityKind, id uint64) error {
	if err := sc.rdb.Del(ctx, entityKey(kind, id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate %s %d: %w", kind, id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
