package svm

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

// Wallet is the signing capability the builder needs: an address and the
// ability to add the owner's signature to a transaction. Key material never
// crosses this interface.
type Wallet interface {
	// PublicKey returns the wallet's public key, which owns the source token
	// account the payment draws from.
	PublicKey() solana.PublicKey

	// SignTransaction adds the wallet's signature to the transaction,
	// leaving other required signatures (the fee payer's) empty.
	SignTransaction(tx *solana.Transaction) error
}

// LocalWallet is a Wallet backed by an in-process ed25519 private key.
type LocalWallet struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewLocalWallet creates a wallet from a base58-encoded private key.
func NewLocalWallet(privateKeyBase58 string) (*LocalWallet, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, x402.ErrInvalidKey
	}
	return NewLocalWalletFromKey(privateKey), nil
}

// NewLocalWalletFromKey creates a wallet from an existing private key.
func NewLocalWalletFromKey(key solana.PrivateKey) *LocalWallet {
	return &LocalWallet{
		privateKey: key,
		publicKey:  key.PublicKey(),
	}
}

// NewLocalWalletFromKeygenFile creates a wallet from a Solana keygen JSON
// file containing a 64-byte key array.
func NewLocalWalletFromKeygenFile(path string) (*LocalWallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrInvalidKey, err)
	}

	var keyBytes []byte
	if err := json.Unmarshal(data, &keyBytes); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON format", x402.ErrInvalidKey)
	}

	if len(keyBytes) != 64 {
		return nil, fmt.Errorf("%w: invalid key length (expected 64 bytes)", x402.ErrInvalidKey)
	}

	return NewLocalWalletFromKey(solana.PrivateKey(keyBytes)), nil
}

// PublicKey returns the wallet's public key.
func (w *LocalWallet) PublicKey() solana.PublicKey {
	return w.publicKey
}

// SignTransaction partially signs the transaction with the wallet key only.
// Signature slots for other required signers stay zeroed.
func (w *LocalWallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.publicKey) {
			return &w.privateKey
		}
		return nil
	})
	return err
}
