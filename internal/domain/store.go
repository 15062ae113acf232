package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ActivityEntry is one recorded terminal write: a transaction that reached
// Confirmed or Failed.
type ActivityEntry struct {
	ID        string         `json:"id"` // uuid
	Kind      TxKind         `json:"kind"`
	State     TxState        `json:"state"`
	Hash      string         `json:"hash,omitempty"`
	EntityID  uint64         `json:"entity_id,omitempty"`
	Account   string         `json:"account"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ActivityStore persists the write history of the session's account.
type ActivityStore interface {
	Record(ctx context.Context, e ActivityEntry) error
	List(ctx context.Context, opts ListOpts) ([]ActivityEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]ActivityEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
