package evm

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

// Wallet signs Ethereum transactions. Implementations can be local keys,
// hardware wallets, or remote signing services.
type Wallet interface {
	// Address returns the account the wallet signs for.
	Address() common.Address

	// SignTx signs the transaction for the given chain ID.
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// LocalWallet signs with an in-memory secp256k1 private key.
type LocalWallet struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

var _ Wallet = (*LocalWallet)(nil)

// NewLocalWallet creates a wallet from a hex-encoded private key, with or
// without the 0x prefix.
func NewLocalWallet(privateKeyHex string) (*LocalWallet, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}
	return NewLocalWalletFromKey(key), nil
}

// NewLocalWalletFromKey wraps an existing private key.
func NewLocalWalletFromKey(key *ecdsa.PrivateKey) *LocalWallet {
	return &LocalWallet{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Address returns the wallet's account address.
func (w *LocalWallet) Address() common.Address {
	return w.address
}

// SignTx signs the transaction with the wallet's key using the latest
// signer for the chain.
func (w *LocalWallet) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), w.privateKey)
}
