package domain

import (
	"context"
	"io"
)

// SnapshotCache is a TTL-bounded, session-scoped cache the mirror writes
// through on refresh. Misses return ErrNotFound. Implementations must not
// serve entries older than their TTL.
type SnapshotCache interface {
	SetListing(ctx context.Context, l Listing) error
	SetAuction(ctx context.Context, a Auction) error
	SetOffer(ctx context.Context, o Offer) error
	GetListing(ctx context.Context, id uint64) (Listing, error)
	GetAuction(ctx context.Context, id uint64) (Auction, error)
	GetOffer(ctx context.Context, id uint64) (Offer, error)
	Invalidate(ctx context.Context, kind EntityKind, id uint64) error
}

// SignalBus fans out state-change events (tx slot transitions, snapshot
// refreshes) to interested consumers such as the websocket hub.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// Well-known signal bus channels.
const (
	ChannelTx      = "ch:tx"
	ChannelRefresh = "ch:refresh"
)

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
