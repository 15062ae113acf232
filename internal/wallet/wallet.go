package wallet

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/nftbay/marketd/internal/domain"
)

// Wallet holds the session signing key. The zero value (or a nil *Wallet)
// is a disconnected wallet: Address reports no account and Sign fails.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// Open resolves the private key from cfg and derives the account address.
// When no key source is configured it returns (nil, nil): a disconnected
// session, not an error.
func Open(cfg KeyConfig, chainID int64) (*Wallet, error) {
	if !cfg.Configured() {
		return nil, nil
	}

	keyHex, err := loadKeyHex(cfg)
	if err != nil {
		return nil, err
	}
	key, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("wallet: parsing private key: %w", err)
	}

	return &Wallet{
		key:     key,
		address: ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
	}, nil
}

// Address returns the connected account. The second return is false when
// no wallet is connected.
func (w *Wallet) Address() (common.Address, bool) {
	if w == nil || w.key == nil {
		return common.Address{}, false
	}
	return w.address, true
}

// SignTx signs a transaction with the session key using the EIP-155
// signer for the configured chain.
func (w *Wallet) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	if w == nil || w.key == nil {
		return nil, domain.ErrWalletNotConnected
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign tx: %w", err)
	}
	return signed, nil
}

// Compile-time interface check.
var _ domain.Identity = (*Wallet)(nil)
