package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nftbay/marketd/internal/domain"
	"github.com/nftbay/marketd/internal/service"
)

// ActivityService defines what the activity handler needs from the
// service layer.
type ActivityService interface {
	List(ctx context.Context, opts domain.ListOpts) ([]domain.ActivityEntry, error)
	Archive(ctx context.Context, before time.Time, prune bool) (service.ArchiveResult, error)
}

// ActivityHandler serves the write-history endpoints.
type ActivityHandler struct {
	activity ActivityService
	logger   *slog.Logger
}

// NewActivityHandler creates an ActivityHandler.
func NewActivityHandler(activity ActivityService, logger *slog.Logger) *ActivityHandler {
	return &ActivityHandler{activity: activity, logger: logger}
}

// ListActivity returns recorded transaction outcomes, newest first.
// GET /api/activity?limit=50&offset=0
func (h *ActivityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.activity.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list activity failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// archiveRequest is the JSON body of an archive call.
type archiveRequest struct {
	Before time.Time `json:"before"`
	Prune  bool      `json:"prune"`
}

// ArchiveActivity exports aged entries to blob storage.
// POST /api/activity/archive
func (h *ActivityHandler) ArchiveActivity(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Before.IsZero() {
		writeError(w, http.StatusBadRequest, "before timestamp required")
		return
	}

	result, err := h.activity.Archive(r.Context(), req.Before, req.Prune)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: archive failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "archive failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
