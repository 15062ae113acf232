package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/nftbay/marketd/internal/domain"
	"github.com/nftbay/marketd/internal/wei"
)

// TxService defines what the transaction handler needs from the
// lifecycle manager.
type TxService interface {
	Invoke(ctx context.Context, kind domain.TxKind, params domain.TxParams) (domain.TxStatus, error)
	Status(kind domain.TxKind) (domain.TxStatus, error)
	Statuses() []domain.TxStatus
	Reset(ctx context.Context, kind domain.TxKind) (domain.TxStatus, error)
}

// TxHandler serves the transaction lifecycle endpoints.
type TxHandler struct {
	txs    TxService
	logger *slog.Logger
}

// NewTxHandler creates a TxHandler.
func NewTxHandler(txs TxService, logger *slog.Logger) *TxHandler {
	return &TxHandler{txs: txs, logger: logger}
}

// txRequest is the JSON body of an invoke call. Amount is a decimal ETH
// string; duration is in seconds.
type txRequest struct {
	NFTContract     string `json:"nft_contract,omitempty"`
	TokenID         uint64 `json:"token_id,omitempty"`
	ListingID       uint64 `json:"listing_id,omitempty"`
	AuctionID       uint64 `json:"auction_id,omitempty"`
	OfferID         uint64 `json:"offer_id,omitempty"`
	Amount          string `json:"amount,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
}

func (req txRequest) toParams() (domain.TxParams, error) {
	params := domain.TxParams{
		TokenID:   req.TokenID,
		ListingID: req.ListingID,
		AuctionID: req.AuctionID,
		OfferID:   req.OfferID,
		Duration:  time.Duration(req.DurationSeconds) * time.Second,
	}
	if req.NFTContract != "" {
		if !common.IsHexAddress(req.NFTContract) {
			return domain.TxParams{}, fmt.Errorf("invalid nft contract address: %w", domain.ErrInvalidParams)
		}
		params.NFTContract = common.HexToAddress(req.NFTContract)
	}
	if req.Amount != "" {
		amount, err := wei.ToBaseUnits(req.Amount)
		if err != nil {
			return domain.TxParams{}, err
		}
		params.Amount = amount
	}
	return params, nil
}

// Invoke starts the write operation named by the path.
// POST /api/tx/{kind}
func (h *TxHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	kind := domain.TxKind(pathParam(r, "kind"))

	var req txRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	params, err := req.toParams()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status, err := h.txs.Invoke(r.Context(), kind, params)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: invoke failed",
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, status)
}

// GetStatus returns the state of one transaction slot.
// GET /api/tx/{kind}
func (h *TxHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.txs.Status(domain.TxKind(pathParam(r, "kind")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// ListStatuses returns every slot invoked this session.
// GET /api/tx
func (h *TxHandler) ListStatuses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"slots": h.txs.Statuses()})
}

// Reset returns a slot to idle so the kind can be invoked again.
// POST /api/tx/{kind}/reset
func (h *TxHandler) Reset(w http.ResponseWriter, r *http.Request) {
	status, err := h.txs.Reset(r.Context(), domain.TxKind(pathParam(r, "kind")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
