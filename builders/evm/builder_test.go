package evm

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

const (
	testRecipient = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"
	testToken     = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

// mockRPC implements RPCClient with canned nonce and gas price.
type mockRPC struct {
	nonce    uint64
	gasPrice *big.Int
	nonceErr error
}

func (m *mockRPC) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	if m.nonceErr != nil {
		return 0, m.nonceErr
	}
	return m.nonce, nil
}

func (m *mockRPC) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return m.gasPrice, nil
}

func newTestWallet(t *testing.T) *LocalWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewLocalWalletFromKey(key)
}

func newTestBuilder(t *testing.T, wallet Wallet, opts ...Option) *Builder {
	t.Helper()
	mock := &mockRPC{nonce: 7, gasPrice: big.NewInt(2_000_000_000)}
	builder, err := NewBuilder(x402.NetworkBase, wallet, append([]Option{WithRPCClient(mock)}, opts...)...)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	return builder
}

func requirement(asset, amount string) *x402.PaymentRequirement {
	return &x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkBase,
		MaxAmountRequired: amount,
		Asset:             asset,
		PayTo:             testRecipient,
		Resource:          "https://api.example.com/weather",
		MaxTimeoutSeconds: 300,
	}
}

func decodeSignedTx(t *testing.T, payload *x402.PaymentPayload) *types.Transaction {
	t.Helper()
	if !strings.HasPrefix(payload.Payload.Transaction, "0x") {
		t.Fatalf("transaction %q is not 0x-prefixed hex", payload.Payload.Transaction)
	}
	raw, err := hexutil.Decode(payload.Payload.Transaction)
	if err != nil {
		t.Fatalf("decode hex: %v", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(raw); err != nil {
		t.Fatalf("unmarshal transaction: %v", err)
	}
	return &tx
}

func TestBuildERC20Transfer(t *testing.T) {
	wallet := newTestWallet(t)
	builder := newTestBuilder(t, wallet)

	payload, err := builder.Build(context.Background(), requirement(testToken, "10000"))
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}
	if payload.Network != x402.NetworkBase || payload.Scheme != x402.SchemeExact {
		t.Errorf("envelope = %+v", payload)
	}

	tx := decodeSignedTx(t, payload)

	if tx.To() == nil || *tx.To() != common.HexToAddress(testToken) {
		t.Errorf("to = %v, want token contract", tx.To())
	}
	if tx.Value().Sign() != 0 {
		t.Errorf("value = %s, want 0", tx.Value())
	}
	if tx.Gas() != tokenTransferGas {
		t.Errorf("gas = %d, want %d", tx.Gas(), tokenTransferGas)
	}
	if tx.Nonce() != 7 {
		t.Errorf("nonce = %d, want 7", tx.Nonce())
	}
	if tx.GasPrice().Cmp(big.NewInt(2_000_000_000)) != 0 {
		t.Errorf("gas price = %s", tx.GasPrice())
	}

	// Calldata: transfer selector, padded recipient, padded amount.
	data := tx.Data()
	if len(data) != 4+32+32 {
		t.Fatalf("calldata length = %d", len(data))
	}
	wantSelector := crypto.Keccak256([]byte("transfer(address,uint256)"))[:4]
	if !strings.EqualFold(hexutil.Encode(data[:4]), hexutil.Encode(wantSelector)) {
		t.Errorf("selector = %x, want %x", data[:4], wantSelector)
	}
	if got := common.BytesToAddress(data[4:36]); got != common.HexToAddress(testRecipient) {
		t.Errorf("calldata recipient = %s", got)
	}
	if got := new(big.Int).SetBytes(data[36:]); got.Cmp(big.NewInt(10000)) != 0 {
		t.Errorf("calldata amount = %s", got)
	}

	// The signature must recover to the wallet for the configured chain.
	signer := types.LatestSignerForChainID(big.NewInt(8453))
	sender, err := types.Sender(signer, tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != wallet.Address() {
		t.Errorf("sender = %s, want %s", sender, wallet.Address())
	}
}

func TestBuildNativeTransfer(t *testing.T) {
	wallet := newTestWallet(t)
	builder := newTestBuilder(t, wallet)

	// An absent asset and the zero-address sentinel both mean the chain's
	// native unit.
	tests := []struct {
		name  string
		asset string
	}{
		{name: "empty asset", asset: ""},
		{name: "zero address", asset: x402.NativeAsset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := builder.Build(context.Background(), requirement(tt.asset, "5000"))
			if err != nil {
				t.Fatalf("Build() unexpected error: %v", err)
			}
			tx := decodeSignedTx(t, payload)

			if *tx.To() != common.HexToAddress(testRecipient) {
				t.Errorf("to = %s, want recipient", tx.To())
			}
			if tx.Value().Cmp(big.NewInt(5000)) != 0 {
				t.Errorf("value = %s, want 5000", tx.Value())
			}
			if tx.Gas() != nativeTransferGas {
				t.Errorf("gas = %d, want %d", tx.Gas(), nativeTransferGas)
			}
			if len(tx.Data()) != 0 {
				t.Errorf("native transfer should carry no calldata")
			}
		})
	}
}

func TestBuildEVMErrors(t *testing.T) {
	wallet := newTestWallet(t)

	tests := []struct {
		name    string
		mutate  func(req *x402.PaymentRequirement)
		wantErr error
	}{
		{
			name:    "missing destination",
			mutate:  func(req *x402.PaymentRequirement) { req.PayTo = "" },
			wantErr: x402.ErrMissingDestination,
		},
		{
			name:    "invalid destination",
			mutate:  func(req *x402.PaymentRequirement) { req.PayTo = "not-an-address" },
			wantErr: x402.ErrInvalidRequirements,
		},
		{
			name:    "invalid token address",
			mutate:  func(req *x402.PaymentRequirement) { req.Asset = "not-a-token" },
			wantErr: x402.ErrInvalidRequirements,
		},
		{
			name:    "zero amount",
			mutate:  func(req *x402.PaymentRequirement) { req.MaxAmountRequired = "0" },
			wantErr: x402.ErrInvalidAmount,
		},
		{
			name:    "fractional amount",
			mutate:  func(req *x402.PaymentRequirement) { req.MaxAmountRequired = "0.5" },
			wantErr: x402.ErrInvalidAmount,
		},
		{
			name:    "wrong network",
			mutate:  func(req *x402.PaymentRequirement) { req.Network = x402.NetworkPolygon },
			wantErr: x402.ErrNoSuitableRequirement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := newTestBuilder(t, wallet)
			req := requirement(testToken, "10000")
			tt.mutate(req)

			_, err := builder.Build(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildEVMMaxAmount(t *testing.T) {
	wallet := newTestWallet(t)
	builder := newTestBuilder(t, wallet, WithMaxAmount(big.NewInt(10000)))

	if _, err := builder.Build(context.Background(), requirement(testToken, "10001")); !errors.Is(err, x402.ErrAmountExceeded) {
		t.Errorf("Build() error = %v, want ErrAmountExceeded", err)
	}
	if _, err := builder.Build(context.Background(), requirement(testToken, "10000")); err != nil {
		t.Errorf("Build() at exact limit should succeed: %v", err)
	}
}

func TestNewBuilderEVMValidation(t *testing.T) {
	wallet := newTestWallet(t)

	if _, err := NewBuilder(x402.NetworkSolanaMainnet, wallet, WithRPCClient(&mockRPC{})); !errors.Is(err, x402.ErrInvalidNetwork) {
		t.Errorf("solana network error = %v, want ErrInvalidNetwork", err)
	}
	if _, err := NewBuilder(x402.NetworkBase, nil, WithRPCClient(&mockRPC{})); !errors.Is(err, x402.ErrWalletCapability) {
		t.Errorf("nil wallet error = %v, want ErrWalletCapability", err)
	}
}

func TestLocalWalletFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyHex := hexutil.Encode(crypto.FromECDSA(key))

	for _, input := range []string{keyHex, strings.TrimPrefix(keyHex, "0x")} {
		wallet, err := NewLocalWallet(input)
		if err != nil {
			t.Fatalf("NewLocalWallet(%q): %v", input, err)
		}
		if wallet.Address() != crypto.PubkeyToAddress(key.PublicKey) {
			t.Errorf("address mismatch for %q", input)
		}
	}

	if _, err := NewLocalWallet("zzzz"); !errors.Is(err, x402.ErrInvalidKey) {
		t.Errorf("invalid key error = %v, want ErrInvalidKey", err)
	}
}
