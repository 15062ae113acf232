package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidParams       = errors.New("invalid parameters")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrLedgerUnavailable   = errors.New("ledger unavailable")
	ErrLedgerReverted      = errors.New("transaction reverted on ledger")
	ErrOperationInProgress = errors.New("operation already in progress")
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrMarketPaused        = errors.New("marketplace is paused")
	ErrContextDone         = errors.New("context cancelled")
)
