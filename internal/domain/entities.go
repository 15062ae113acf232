// Package domain defines the marketplace entities mirrored from the on-chain
// ledger, the transaction lifecycle types, and the interfaces implemented by
// the infrastructure packages (ledger adapter, stores, caches).
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EntityKind partitions mirrored marketplace entities.
type EntityKind string

const (
	KindListing EntityKind = "listing"
	KindAuction EntityKind = "auction"
	KindOffer   EntityKind = "offer"
)

// Listing is a fixed-price sale of one NFT. Immutable once created except
// Active, which flips to false on cancel or purchase.
type Listing struct {
	ID          uint64         `json:"id"`
	Seller      common.Address `json:"seller"`
	NFTContract common.Address `json:"nft_contract"`
	TokenID     uint64         `json:"token_id"`
	Price       *big.Int       `json:"price"` // base units (wei)
	Active      bool           `json:"active"`
	CreatedAt   time.Time      `json:"created_at"`

	// Token metadata surfaced by the marketplace contract alongside the
	// listing, used by the catalog view.
	Name       string `json:"name"`
	Collection string `json:"collection"`
	Category   string `json:"category"`
	ImageURL   string `json:"image_url"`
}

// Auction is a time-bounded bidding process for one NFT. CurrentBid is
// monotonically non-decreasing; Settled is terminal.
type Auction struct {
	ID            uint64          `json:"id"`
	Seller        common.Address  `json:"seller"`
	NFTContract   common.Address  `json:"nft_contract"`
	TokenID       uint64          `json:"token_id"`
	StartingPrice *big.Int        `json:"starting_price"` // base units
	CurrentBid    *big.Int        `json:"current_bid"`    // base units, >= StartingPrice once bid on
	HighBidder    *common.Address `json:"high_bidder,omitempty"`
	EndTime       time.Time       `json:"end_time"`
	Settled       bool            `json:"settled"`

	Name       string `json:"name"`
	Collection string `json:"collection"`
	Category   string `json:"category"`
	ImageURL   string `json:"image_url"`
}

// BestPrice returns the price an auction currently trades at: the highest
// bid when one exists, the starting price otherwise.
func (a Auction) BestPrice() *big.Int {
	if a.CurrentBid != nil && a.CurrentBid.Sign() > 0 {
		return a.CurrentBid
	}
	return a.StartingPrice
}

// OfferStatus is the ledger-held lifecycle state of an offer. Any value
// other than Open is terminal.
type OfferStatus string

const (
	OfferOpen      OfferStatus = "open"
	OfferAccepted  OfferStatus = "accepted"
	OfferCancelled OfferStatus = "cancelled"
	OfferExpired   OfferStatus = "expired"
)

// Offer is a buyer-initiated bid on an NFT, with an expiry.
type Offer struct {
	ID          uint64         `json:"id"`
	Buyer       common.Address `json:"buyer"`
	NFTContract common.Address `json:"nft_contract"`
	TokenID     uint64         `json:"token_id"`
	Amount      *big.Int       `json:"amount"` // base units
	ExpiresAt   time.Time      `json:"expires_at"`
	Status      OfferStatus    `json:"status"`
}

// EffectiveStatus derives the display status at the given instant. The
// stored status is ledger-authoritative and is never mutated here: an
// open offer past its expiry reports Expired without a state transition.
func (o Offer) EffectiveStatus(now time.Time) OfferStatus {
	if o.Status == OfferOpen && !now.Before(o.ExpiresAt) {
		return OfferExpired
	}
	return o.Status
}

// Item is a catalog row fed to the view pipeline. Listings and auctions
// collapse into the same shape; Price is the comparable base-unit amount.
type Item struct {
	ID         uint64     `json:"id"`
	Kind       EntityKind `json:"kind"`
	Name       string     `json:"name"`
	Collection string     `json:"collection"`
	Owner      string     `json:"owner"`
	Category   string     `json:"category"`
	Price      *big.Int   `json:"price"`
	ImageURL   string     `json:"image_url"`
}

// ItemFromListing projects a listing into a catalog item.
func ItemFromListing(l Listing) Item {
	return Item{
		ID:         l.ID,
		Kind:       KindListing,
		Name:       l.Name,
		Collection: l.Collection,
		Owner:      l.Seller.Hex(),
		Category:   l.Category,
		Price:      l.Price,
		ImageURL:   l.ImageURL,
	}
}

// ItemFromAuction projects an auction into a catalog item.
func ItemFromAuction(a Auction) Item {
	return Item{
		ID:         a.ID,
		Kind:       KindAuction,
		Name:       a.Name,
		Collection: a.Collection,
		Owner:      a.Seller.Hex(),
		Category:   a.Category,
		Price:      a.BestPrice(),
		ImageURL:   a.ImageURL,
	}
}
