// Package evm implements the domain ledger interfaces against an EVM
// marketplace contract over JSON-RPC, using go-ethereum for transport,
// ABI encoding, and transaction signing.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/nftbay/marketd/internal/domain"
	"github.com/nftbay/marketd/internal/wallet"
)

// ClientConfig holds chain connection parameters.
type ClientConfig struct {
	// RPCURL is the JSON-RPC endpoint of the chain node.
	RPCURL string

	// ContractAddress is the deployed marketplace contract.
	ContractAddress string

	// ChainID guards against signing for the wrong network.
	ChainID int64

	// CallTimeout bounds each individual read call.
	CallTimeout time.Duration

	// ConfirmPollInterval is the receipt polling cadence for WaitConfirmed.
	ConfirmPollInterval time.Duration
}

// Client talks to the marketplace contract. It implements domain.Ledger.
type Client struct {
	eth      *ethclient.Client
	contract common.Address
	abi      abi.ABI
	wallet   *wallet.Wallet
	chainID  int64
	cfg      ClientConfig
	logger   *slog.Logger

	// eventEntity maps event topic0 to the entity kind the event's first
	// indexed topic identifies, for receipt decoding.
	eventEntity map[common.Hash]domain.EntityKind
}

// Dial connects to the chain node, verifies the chain id, and prepares
// the contract ABI. w may be nil for a read-only session.
func Dial(ctx context.Context, cfg ClientConfig, w *wallet.Wallet, logger *slog.Logger) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(marketplaceABI))
	if err != nil {
		return nil, fmt.Errorf("evm: parse contract ABI: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}
	if chainID.Int64() != cfg.ChainID {
		eth.Close()
		return nil, fmt.Errorf("evm: node reports chain id %d, config expects %d", chainID.Int64(), cfg.ChainID)
	}

	events := map[common.Hash]domain.EntityKind{}
	for name, kind := range map[string]domain.EntityKind{
		"ListingCreated":   domain.KindListing,
		"ListingCancelled": domain.KindListing,
		"ListingPurchased": domain.KindListing,
		"AuctionCreated":   domain.KindAuction,
		"BidPlaced":        domain.KindAuction,
		"AuctionEnded":     domain.KindAuction,
		"OfferCreated":     domain.KindOffer,
		"OfferAccepted":    domain.KindOffer,
		"OfferCancelled":   domain.KindOffer,
	} {
		ev, ok := parsed.Events[name]
		if !ok {
			eth.Close()
			return nil, fmt.Errorf("evm: event %s missing from ABI", name)
		}
		events[ev.ID] = kind
	}

	return &Client{
		eth:         eth,
		contract:    common.HexToAddress(cfg.ContractAddress),
		abi:         parsed,
		wallet:      w,
		chainID:     cfg.ChainID,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "evm")),
		eventEntity: events,
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// classifyReadErr maps transport-level failures to ErrLedgerUnavailable
// and contract reverts (missing entity) to ErrNotFound.
func classifyReadErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("evm: %s: %w", op, domain.ErrContextDone)
	case isRevert(err):
		return fmt.Errorf("evm: %s: %w", op, domain.ErrNotFound)
	case errors.Is(err, context.DeadlineExceeded), isTransient(err):
		return fmt.Errorf("evm: %s: %v: %w", op, err, domain.ErrLedgerUnavailable)
	default:
		return fmt.Errorf("evm: %s: %v: %w", op, err, domain.ErrLedgerUnavailable)
	}
}

func isRevert(err error) bool {
	return strings.Contains(err.Error(), "execution reverted")
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF")
}

// receiptFromLogs extracts the affected entity from the contract event
// logs of a mined transaction.
func (c *Client) receiptFromLogs(r *types.Receipt) domain.Receipt {
	out := domain.Receipt{
		Hash:        r.TxHash.Hex(),
		BlockNumber: r.BlockNumber.Uint64(),
		GasUsed:     r.GasUsed,
		Reverted:    r.Status == types.ReceiptStatusFailed,
	}
	for _, lg := range r.Logs {
		if lg.Address != c.contract || len(lg.Topics) < 2 {
			continue
		}
		kind, ok := c.eventEntity[lg.Topics[0]]
		if !ok {
			continue
		}
		out.Kind = kind
		out.EntityID = lg.Topics[1].Big().Uint64()
		break
	}
	return out
}
