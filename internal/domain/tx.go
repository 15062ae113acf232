package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxKind identifies a marketplace write operation. Each kind owns one
// transaction slot: at most one write per kind is in flight at a time.
type TxKind string

const (
	TxCreateListing   TxKind = "create_listing"
	TxCancelListing   TxKind = "cancel_listing"
	TxPurchaseListing TxKind = "purchase_listing"
	TxCreateAuction   TxKind = "create_auction"
	TxPlaceBid        TxKind = "place_bid"
	TxEndAuction      TxKind = "end_auction"
	TxMakeOffer       TxKind = "make_offer"
	TxAcceptOffer     TxKind = "accept_offer"
	TxCancelOffer     TxKind = "cancel_offer"
)

// ValidTxKind reports whether k names a known write operation.
func ValidTxKind(k TxKind) bool {
	switch k {
	case TxCreateListing, TxCancelListing, TxPurchaseListing,
		TxCreateAuction, TxPlaceBid, TxEndAuction,
		TxMakeOffer, TxAcceptOffer, TxCancelOffer:
		return true
	}
	return false
}

// TxState is a transaction slot's lifecycle state.
//
//	Idle -> AwaitingSignature -> Submitted -> Confirmed
//	                    \            \-----> Failed
//	                     \----------------> Failed
//
// Confirmed and Failed are terminal and leave only via an explicit reset.
type TxState string

const (
	TxIdle              TxState = "idle"
	TxAwaitingSignature TxState = "awaiting_signature"
	TxSubmitted         TxState = "submitted"
	TxConfirmed         TxState = "confirmed"
	TxFailed            TxState = "failed"
)

// Terminal reports whether the state only leaves via reset.
func (s TxState) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// FailReason is the machine-readable cause recorded on a failed
// transaction.
type FailReason string

const (
	ReasonUserRejected   FailReason = "user_rejected"
	ReasonLedgerReverted FailReason = "ledger_reverted"
	ReasonTimeout        FailReason = "timeout"
	ReasonUnknown        FailReason = "unknown"
)

// ErrorInfo carries the failure cause surfaced to the UI.
type ErrorInfo struct {
	Reason  FailReason `json:"reason"`
	Message string     `json:"message"`
}

// TxParams carries the inputs of a write operation. Fields irrelevant to a
// given kind are ignored by validation.
type TxParams struct {
	NFTContract common.Address `json:"nft_contract,omitempty"`
	TokenID     uint64         `json:"token_id,omitempty"`
	ListingID   uint64         `json:"listing_id,omitempty"`
	AuctionID   uint64         `json:"auction_id,omitempty"`
	OfferID     uint64         `json:"offer_id,omitempty"`

	// Amount is the price, bid, or offer amount in base units.
	Amount *big.Int `json:"amount,omitempty"`

	// Duration bounds an auction's bidding window or an offer's validity.
	Duration time.Duration `json:"duration,omitempty"`
}

// TxStatus is the observable state of one transaction slot.
type TxStatus struct {
	Kind      TxKind     `json:"kind"`
	State     TxState    `json:"state"`
	AttemptID string     `json:"attempt_id,omitempty"`
	Hash      string     `json:"hash,omitempty"`
	EntityID  uint64     `json:"entity_id,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at,omitzero"`
	UpdatedAt time.Time  `json:"updated_at,omitzero"`
}

// Receipt is the confirmation result of a submitted write.
type Receipt struct {
	Hash        string `json:"hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	Reverted    bool   `json:"reverted"`

	// EntityID is the listing/auction/offer id assigned or affected by the
	// transaction, decoded from the contract event logs. Zero when the
	// logs carried no recognisable event.
	EntityID uint64     `json:"entity_id,omitempty"`
	Kind     EntityKind `json:"entity_kind,omitempty"`
}
