package domain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// MaxPageLimit caps the page size of ledger list reads to bound response
// size, mirroring the contract-side cap.
const MaxPageLimit = 50

// LedgerReader wraps the read surface of the marketplace contract. Reads
// are side-effect-free and safe to retry; transient connectivity failures
// surface as ErrLedgerUnavailable and are retried by the caller (the
// mirror), not here. A missing single-entity id surfaces as ErrNotFound.
type LedgerReader interface {
	MarketplaceFee(ctx context.Context) (int, error) // basis points
	ListingCounter(ctx context.Context) (uint64, error)
	OfferCounter(ctx context.Context) (uint64, error)
	Paused(ctx context.Context) (bool, error)

	GetListing(ctx context.Context, id uint64) (Listing, error)
	GetAuction(ctx context.Context, id uint64) (Auction, error)
	GetOffer(ctx context.Context, id uint64) (Offer, error)

	ActiveListings(ctx context.Context, offset, limit int) ([]Listing, error)
	ActiveAuctions(ctx context.Context, offset, limit int) ([]Auction, error)
	UserListings(ctx context.Context, user common.Address) ([]Listing, error)
	OffersForNFT(ctx context.Context, nftContract common.Address, tokenID uint64) ([]Offer, error)
}

// LedgerWriter submits marketplace write operations. Submit signs and
// broadcasts the transaction for the given kind and returns its hash;
// WaitConfirmed blocks until the transaction is mined or ctx expires.
// Writes are never retried internally: resubmitting a write could
// duplicate a financial action.
type LedgerWriter interface {
	Submit(ctx context.Context, kind TxKind, params TxParams) (hash string, err error)
	WaitConfirmed(ctx context.Context, hash string) (Receipt, error)
}

// Ledger is the full contract boundary.
type Ledger interface {
	LedgerReader
	LedgerWriter
}

// Identity exposes the connected account, when one is configured. The
// second return is false when no wallet is connected, which disables all
// write operations; that is a state, not an error.
type Identity interface {
	Address() (common.Address, bool)
}
