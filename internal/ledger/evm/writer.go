package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/nftbay/marketd/internal/domain"
)

// callSpec is the packed form of one write operation.
type callSpec struct {
	method string
	args   []any
	value  *big.Int // payable amount, nil for nonpayable methods
}

// specFor maps a transaction kind and its params onto the contract call.
// Parameter validation is the lifecycle manager's job; this only shapes
// the calldata.
func specFor(kind domain.TxKind, p domain.TxParams) (callSpec, error) {
	switch kind {
	case domain.TxCreateListing:
		return callSpec{"createListing", []any{p.NFTContract, u256(p.TokenID), p.Amount}, nil}, nil
	case domain.TxCancelListing:
		return callSpec{"cancelListing", []any{u256(p.ListingID)}, nil}, nil
	case domain.TxPurchaseListing:
		return callSpec{"purchaseListing", []any{u256(p.ListingID)}, p.Amount}, nil
	case domain.TxCreateAuction:
		return callSpec{"createAuction", []any{p.NFTContract, u256(p.TokenID), p.Amount, big.NewInt(int64(p.Duration.Seconds()))}, nil}, nil
	case domain.TxPlaceBid:
		return callSpec{"placeBid", []any{u256(p.AuctionID)}, p.Amount}, nil
	case domain.TxEndAuction:
		return callSpec{"endAuction", []any{u256(p.AuctionID)}, nil}, nil
	case domain.TxMakeOffer:
		return callSpec{"makeOffer", []any{p.NFTContract, u256(p.TokenID), big.NewInt(int64(p.Duration.Seconds()))}, p.Amount}, nil
	case domain.TxAcceptOffer:
		return callSpec{"acceptOffer", []any{u256(p.OfferID)}, nil}, nil
	case domain.TxCancelOffer:
		return callSpec{"cancelOffer", []any{u256(p.OfferID)}, nil}, nil
	default:
		return callSpec{}, fmt.Errorf("evm: unknown tx kind %q: %w", kind, domain.ErrInvalidParams)
	}
}

func u256(n uint64) *big.Int { return new(big.Int).SetUint64(n) }

// Submit signs and broadcasts the write operation, returning the
// transaction hash. It never retries: resubmitting could duplicate a
// financial action. Gas is estimated up front, so a call the contract
// would revert fails here without broadcasting.
func (c *Client) Submit(ctx context.Context, kind domain.TxKind, params domain.TxParams) (string, error) {
	from, ok := c.wallet.Address()
	if !ok {
		return "", domain.ErrWalletNotConnected
	}

	spec, err := specFor(kind, params)
	if err != nil {
		return "", err
	}
	data, err := c.abi.Pack(spec.method, spec.args...)
	if err != nil {
		return "", fmt.Errorf("evm: pack %s: %w", spec.method, err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("evm: nonce: %v: %w", err, domain.ErrLedgerUnavailable)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("evm: gas price: %v: %w", err, domain.ErrLedgerUnavailable)
	}

	msg := ethereum.CallMsg{
		From:  from,
		To:    &c.contract,
		Value: spec.value,
		Data:  data,
	}
	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		if isRevert(err) {
			return "", fmt.Errorf("evm: %s would revert: %v: %w", spec.method, err, domain.ErrLedgerReverted)
		}
		return "", fmt.Errorf("evm: estimate gas: %v: %w", err, domain.ErrLedgerUnavailable)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.contract,
		Value:    spec.value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := c.wallet.SignTx(tx)
	if err != nil {
		return "", err
	}

	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("evm: send %s: %v: %w", spec.method, err, domain.ErrLedgerUnavailable)
	}

	hash := signed.Hash().Hex()
	c.logger.InfoContext(ctx, "transaction submitted",
		slog.String("kind", string(kind)),
		slog.String("hash", hash),
		slog.Uint64("nonce", nonce),
	)
	return hash, nil
}

// WaitConfirmed polls for the transaction receipt until the transaction
// is mined or ctx expires. The caller bounds the wait with a deadline.
func (c *Client) WaitConfirmed(ctx context.Context, hash string) (domain.Receipt, error) {
	interval := c.cfg.ConfirmPollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	txHash := common.HexToHash(hash)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.eth.TransactionReceipt(ctx, txHash)
		switch {
		case err == nil:
			return c.receiptFromLogs(receipt), nil
		case errors.Is(err, ethereum.NotFound):
			// Not mined yet; keep polling.
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return domain.Receipt{}, err
		default:
			c.logger.WarnContext(ctx, "receipt poll failed",
				slog.String("hash", hash),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return domain.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Compile-time interface check.
var _ domain.Ledger = (*Client)(nil)
