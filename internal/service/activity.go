package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nftbay/marketd/internal/domain"
)

// Activity serves the session's write history and archives aged entries
// to blob storage.
type Activity struct {
	store  domain.ActivityStore
	blob   domain.BlobWriter
	logger *slog.Logger
}

// NewActivity creates an Activity service. blob may be nil, which
// disables archiving.
func NewActivity(store domain.ActivityStore, blob domain.BlobWriter, logger *slog.Logger) *Activity {
	return &Activity{store: store, blob: blob, logger: logger.With(slog.String("component", "activity"))}
}

// List returns recorded entries, newest first.
func (a *Activity) List(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error) {
	return a.store.List(ctx, opts)
}

// ArchiveResult summarises one archive run.
type ArchiveResult struct {
	Entries int    `json:"entries"`
	Path    string `json:"path,omitempty"`
	Pruned  int64  `json:"pruned"`
}

// Archive exports every entry recorded before the cutoff as one JSONL
// object in blob storage and, when prune is set, deletes the exported
// rows. Entries are only deleted after the upload succeeds.
func (a *Activity) Archive(ctx context.Context, before time.Time, prune bool) (ArchiveResult, error) {
	if a.blob == nil {
		return ArchiveResult{}, fmt.Errorf("activity: no blob storage configured")
	}

	entries, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("activity: list entries: %w", err)
	}
	if len(entries) == 0 {
		return ArchiveResult{}, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return ArchiveResult{}, fmt.Errorf("activity: encode entry %s: %w", e.ID, err)
		}
	}

	path := fmt.Sprintf("archive/activity/%s.jsonl", before.UTC().Format("20060102T150405"))
	if err := a.blob.Put(ctx, path, &buf, "application/x-ndjson"); err != nil {
		return ArchiveResult{}, fmt.Errorf("activity: upload archive: %w", err)
	}

	result := ArchiveResult{Entries: len(entries), Path: path}
	if prune {
		pruned, err := a.store.DeleteBefore(ctx, before)
		if err != nil {
			return result, fmt.Errorf("activity: prune archived entries: %w", err)
		}
		result.Pruned = pruned
	}

	a.logger.InfoContext(ctx, "activity archived",
		slog.Int("entries", result.Entries),
		slog.String("path", path),
		slog.Int64("pruned", result.Pruned),
	)
	return result, nil
}
