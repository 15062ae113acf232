package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/nftbay/marketd/internal/domain"
)

// Raw ABI return shapes. Field names must match the tuple component names
// in marketplaceABI (capitalised) for UnpackIntoInterface.

type rawListing struct {
	Id          *big.Int
	Seller      common.Address
	NftContract common.Address
	TokenId     *big.Int
	Price       *big.Int
	Active      bool
	CreatedAt   *big.Int
	Name        string
	Collection  string
	Category    string
	ImageUrl    string
}

type rawAuction struct {
	Id            *big.Int
	Seller        common.Address
	NftContract   common.Address
	TokenId       *big.Int
	StartingPrice *big.Int
	CurrentBid    *big.Int
	HighBidder    common.Address
	EndTime       *big.Int
	Settled       bool
	Name          string
	Collection    string
	Category      string
	ImageUrl      string
}

type rawOffer struct {
	Id          *big.Int
	Buyer       common.Address
	NftContract common.Address
	TokenId     *big.Int
	Amount      *big.Int
	ExpiresAt   *big.Int
	Status      uint8
}

// offer status codes as stored by the contract.
var offerStatusByCode = [...]domain.OfferStatus{
	domain.OfferOpen,
	domain.OfferAccepted,
	domain.OfferCancelled,
	domain.OfferExpired,
}

func (r rawListing) toDomain() domain.Listing {
	return domain.Listing{
		ID:          r.Id.Uint64(),
		Seller:      r.Seller,
		NFTContract: r.NftContract,
		TokenID:     r.TokenId.Uint64(),
		Price:       r.Price,
		Active:      r.Active,
		CreatedAt:   time.Unix(r.CreatedAt.Int64(), 0).UTC(),
		Name:        r.Name,
		Collection:  r.Collection,
		Category:    r.Category,
		ImageURL:    r.ImageUrl,
	}
}

func (r rawAuction) toDomain() domain.Auction {
	a := domain.Auction{
		ID:            r.Id.Uint64(),
		Seller:        r.Seller,
		NFTContract:   r.NftContract,
		TokenID:       r.TokenId.Uint64(),
		StartingPrice: r.StartingPrice,
		CurrentBid:    r.CurrentBid,
		EndTime:       time.Unix(r.EndTime.Int64(), 0).UTC(),
		Settled:       r.Settled,
		Name:          r.Name,
		Collection:    r.Collection,
		Category:      r.Category,
		ImageURL:      r.ImageUrl,
	}
	if r.HighBidder != (common.Address{}) {
		bidder := r.HighBidder
		a.HighBidder = &bidder
	}
	return a
}

func (r rawOffer) toDomain() domain.Offer {
	status := domain.OfferOpen
	if int(r.Status) < len(offerStatusByCode) {
		status = offerStatusByCode[r.Status]
	}
	return domain.Offer{
		ID:          r.Id.Uint64(),
		Buyer:       r.Buyer,
		NFTContract: r.NftContract,
		TokenID:     r.TokenId.Uint64(),
		Amount:      r.Amount,
		ExpiresAt:   time.Unix(r.ExpiresAt.Int64(), 0).UTC(),
		Status:      status,
	}
}

// callView packs args, performs an eth_call against the contract, and
// returns the raw return data. Reads never mutate ledger state.
func (c *Client) callView(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("evm: pack %s: %w", method, err)
	}

	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, classifyReadErr(err, method)
	}
	return out, nil
}

// MarketplaceFee returns the marketplace fee in basis points.
func (c *Client) MarketplaceFee(ctx context.Context) (int, error) {
	n, err := c.callUint(ctx, "marketplaceFee")
	return int(n), err
}

// ListingCounter returns the upper bound on assigned listing ids.
func (c *Client) ListingCounter(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "listingCounter")
}

// OfferCounter returns the upper bound on assigned offer ids.
func (c *Client) OfferCounter(ctx context.Context) (uint64, error) {
	return c.callUint(ctx, "offerCounter")
}

func (c *Client) callUint(ctx context.Context, method string) (uint64, error) {
	out, err := c.callView(ctx, method)
	if err != nil {
		return 0, err
	}
	var n *big.Int
	if err := c.abi.UnpackIntoInterface(&n, method, out); err != nil {
		return 0, fmt.Errorf("evm: unpack %s: %w", method, err)
	}
	return n.Uint64(), nil
}

// Paused reports whether the marketplace contract is paused.
func (c *Client) Paused(ctx context.Context) (bool, error) {
	out, err := c.callView(ctx, "paused")
	if err != nil {
		return false, err
	}
	var paused bool
	if err := c.abi.UnpackIntoInterface(&paused, "paused", out); err != nil {
		return false, fmt.Errorf("evm: unpack paused: %w", err)
	}
	return paused, nil
}

// GetListing fetches one listing by id.
func (c *Client) GetListing(ctx context.Context, id uint64) (domain.Listing, error) {
	out, err := c.callView(ctx, "getListing", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Listing{}, err
	}
	var raw rawListing
	if err := c.abi.UnpackIntoInterface(&raw, "getListing", out); err != nil {
		return domain.Listing{}, fmt.Errorf("evm: unpack getListing: %w", err)
	}
	return raw.toDomain(), nil
}

// GetAuction fetches one auction by id.
func (c *Client) GetAuction(ctx context.Context, id uint64) (domain.Auction, error) {
	out, err := c.callView(ctx, "getAuction", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Auction{}, err
	}
	var raw rawAuction
	if err := c.abi.UnpackIntoInterface(&raw, "getAuction", out); err != nil {
		return domain.Auction{}, fmt.Errorf("evm: unpack getAuction: %w", err)
	}
	return raw.toDomain(), nil
}

// GetOffer fetches one offer by id.
func (c *Client) GetOffer(ctx context.Context, id uint64) (domain.Offer, error) {
	out, err := c.callView(ctx, "getOffer", new(big.Int).SetUint64(id))
	if err != nil {
		return domain.Offer{}, err
	}
	var raw rawOffer
	if err := c.abi.UnpackIntoInterface(&raw, "getOffer", out); err != nil {
		return domain.Offer{}, fmt.Errorf("evm: unpack getOffer: %w", err)
	}
	return raw.toDomain(), nil
}

// clampPage validates and caps list pagination inputs.
func clampPage(offset, limit int) (int, int, error) {
	if offset < 0 || limit < 0 {
		return 0, 0, fmt.Errorf("evm: negative offset/limit: %w", domain.ErrInvalidParams)
	}
	if limit == 0 || limit > domain.MaxPageLimit {
		limit = domain.MaxPageLimit
	}
	return offset, limit, nil
}

// ActiveListings returns a page of currently active listings.
func (c *Client) ActiveListings(ctx context.Context, offset, limit int) ([]domain.Listing, error) {
	offset, limit, err := clampPage(offset, limit)
	if err != nil {
		return nil, err
	}
	out, err := c.callView(ctx, "getActiveListings", big.NewInt(int64(offset)), big.NewInt(int64(limit)))
	if err != nil {
		return nil, err
	}
	var raw []rawListing
	if err := c.abi.UnpackIntoInterface(&raw, "getActiveListings", out); err != nil {
		return nil, fmt.Errorf("evm: unpack getActiveListings: %w", err)
	}
	listings := make([]domain.Listing, len(raw))
	for i, r := range raw {
		listings[i] = r.toDomain()
	}
	return listings, nil
}

// ActiveAuctions returns a page of unsettled auctions.
func (c *Client) ActiveAuctions(ctx context.Context, offset, limit int) ([]domain.Auction, error) {
	offset, limit, err := clampPage(offset, limit)
	if err != nil {
		return nil, err
	}
	out, err := c.callView(ctx, "getActiveAuctions", big.NewInt(int64(offset)), big.NewInt(int64(limit)))
	if err != nil {
		return nil, err
	}
	var raw []rawAuction
	if err := c.abi.UnpackIntoInterface(&raw, "getActiveAuctions", out); err != nil {
		return nil, fmt.Errorf("evm: unpack getActiveAuctions: %w", err)
	}
	auctions := make([]domain.Auction, len(raw))
	for i, r := range raw {
		auctions[i] = r.toDomain()
	}
	return auctions, nil
}

// UserListings returns every listing created by the given address.
func (c *Client) UserListings(ctx context.Context, user common.Address) ([]domain.Listing, error) {
	out, err := c.callView(ctx, "getUserListings", user)
	if err != nil {
		return nil, err
	}
	var raw []rawListing
	if err := c.abi.UnpackIntoInterface(&raw, "getUserListings", out); err != nil {
		return nil, fmt.Errorf("evm: unpack getUserListings: %w", err)
	}
	listings := make([]domain.Listing, len(raw))
	for i, r := range raw {
		listings[i] = r.toDomain()
	}
	return listings, nil
}

// OffersForNFT returns all offers on one NFT.
func (c *Client) OffersForNFT(ctx context.Context, nftContract common.Address, tokenID uint64) ([]domain.Offer, error) {
	out, err := c.callView(ctx, "getOffersForNFT", nftContract, new(big.Int).SetUint64(tokenID))
	if err != nil {
		return nil, err
	}
	var raw []rawOffer
	if err := c.abi.UnpackIntoInterface(&raw, "getOffersForNFT", out); err != nil {
		return nil, fmt.Errorf("evm: unpack getOffersForNFT: %w", err)
	}
	offers := make([]domain.Offer, len(raw))
	for i, r := range raw {
		offers[i] = r.toDomain()
	}
	return offers, nil
}

// Compile-time interface check.
var _ domain.LedgerReader = (*Client)(nil)
