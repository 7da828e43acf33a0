package svm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

// mockRPC implements RPCClient against an in-memory account set.
type mockRPC struct {
	blockhash solana.Hash
	accounts  map[solana.PublicKey]*rpc.Account
}

func (m *mockRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: m.blockhash},
	}, nil
}

func (m *mockRPC) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	acct, ok := m.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: acct}, nil
}

func encodeMintAccount(t *testing.T, owner solana.PublicKey, decimals uint8) *rpc.Account {
	t.Helper()
	mintState := token.Mint{
		Decimals:      decimals,
		IsInitialized: true,
		Supply:        1_000_000_000,
	}
	buf := new(bytes.Buffer)
	if err := bin.NewBinEncoder(buf).Encode(&mintState); err != nil {
		t.Fatalf("encode mint: %v", err)
	}
	return &rpc.Account{
		Owner: owner,
		Data:  rpc.DataBytesOrJSONFromBytes(buf.Bytes()),
	}
}

type fixture struct {
	builder   *Builder
	wallet    *LocalWallet
	rpc       *mockRPC
	mint      solana.PublicKey
	recipient solana.PublicKey
	feePayer  solana.PublicKey
	sourceATA solana.PublicKey
}

func newFixture(t *testing.T, tokenProgram solana.PublicKey, opts ...Option) *fixture {
	t.Helper()

	wallet := NewLocalWalletFromKey(solana.NewWallet().PrivateKey)
	mint := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()
	feePayer := solana.NewWallet().PublicKey()

	sourceATA, err := deriveTokenAccount(wallet.PublicKey(), mint, tokenProgram)
	if err != nil {
		t.Fatalf("derive source: %v", err)
	}

	mock := &mockRPC{
		blockhash: solana.Hash{1, 2, 3},
		accounts: map[solana.PublicKey]*rpc.Account{
			mint:      encodeMintAccount(t, tokenProgram, 6),
			sourceATA: {Owner: tokenProgram},
		},
	}

	builder, err := NewBuilder(x402.NetworkSolanaDevnet, wallet, append([]Option{WithRPCClient(mock)}, opts...)...)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	return &fixture{
		builder:   builder,
		wallet:    wallet,
		rpc:       mock,
		mint:      mint,
		recipient: recipient,
		feePayer:  feePayer,
		sourceATA: sourceATA,
	}
}

func (f *fixture) requirement(amount string) *x402.PaymentRequirement {
	req := &x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           x402.NetworkSolanaDevnet,
		MaxAmountRequired: amount,
		Asset:             f.mint.String(),
		PayTo:             f.recipient.String(),
		Resource:          "https://api.example.com/weather",
		MaxTimeoutSeconds: 300,
	}
	req.SetFeePayer(f.feePayer.String())
	return req
}

func decodeTransaction(t *testing.T, payload *x402.PaymentPayload) *solana.Transaction {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(payload.Payload.Transaction)
	if err != nil {
		t.Fatalf("transaction is not base64: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		t.Fatalf("decode transaction: %v", err)
	}
	return tx
}

func TestBuild(t *testing.T) {
	f := newFixture(t, solana.TokenProgramID)

	payload, err := f.builder.Build(context.Background(), f.requirement("1500000"))
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	if payload.X402Version != x402.X402Version || payload.Scheme != x402.SchemeExact {
		t.Errorf("envelope = %+v", payload)
	}
	if payload.Network != x402.NetworkSolanaDevnet {
		t.Errorf("network = %s", payload.Network)
	}

	tx := decodeTransaction(t, payload)

	// The fee payer is the transaction payer, with its signature slot empty
	// for the facilitator to fill.
	if !tx.Message.AccountKeys[0].Equals(f.feePayer) {
		t.Errorf("transaction payer = %s, want fee payer %s", tx.Message.AccountKeys[0], f.feePayer)
	}
	if len(tx.Signatures) != 2 {
		t.Fatalf("signature count = %d, want 2", len(tx.Signatures))
	}
	if !tx.Signatures[0].IsZero() {
		t.Error("fee payer signature slot should be empty")
	}
	if tx.Signatures[1].IsZero() {
		t.Error("owner signature missing")
	}

	if len(tx.Message.Instructions) != 4 {
		t.Fatalf("instruction count = %d, want 4", len(tx.Message.Instructions))
	}

	program := func(i int) solana.PublicKey {
		return tx.Message.AccountKeys[tx.Message.Instructions[i].ProgramIDIndex]
	}

	if !program(0).Equals(ComputeBudgetProgramID) || tx.Message.Instructions[0].Data[0] != 2 {
		t.Error("instruction 0 should be SetComputeUnitLimit")
	}
	if !program(1).Equals(ComputeBudgetProgramID) || tx.Message.Instructions[1].Data[0] != 3 {
		t.Error("instruction 1 should be SetComputeUnitPrice")
	}
	if !program(2).Equals(solana.SPLAssociatedTokenAccountProgramID) {
		t.Error("instruction 2 should be the associated token account create")
	}
	if !bytes.Equal(tx.Message.Instructions[2].Data, []byte{1}) {
		t.Error("instruction 2 should be CreateIdempotent")
	}
	if !program(3).Equals(solana.TokenProgramID) {
		t.Error("instruction 3 should run under the token program")
	}

	transferData := tx.Message.Instructions[3].Data
	if transferData[0] != 12 {
		t.Errorf("transfer discriminator = %d, want 12", transferData[0])
	}
	if amount := binary.LittleEndian.Uint64(transferData[1:9]); amount != 1500000 {
		t.Errorf("transfer amount = %d, want 1500000", amount)
	}
	if transferData[9] != 6 {
		t.Errorf("transfer decimals = %d, want 6", transferData[9])
	}
}

func TestBuildToken2022(t *testing.T) {
	f := newFixture(t, Token2022ProgramID)

	payload, err := f.builder.Build(context.Background(), f.requirement("1000"))
	if err != nil {
		t.Fatalf("Build() unexpected error: %v", err)
	}

	tx := decodeTransaction(t, payload)
	last := tx.Message.Instructions[len(tx.Message.Instructions)-1]
	if !tx.Message.AccountKeys[last.ProgramIDIndex].Equals(Token2022ProgramID) {
		t.Error("transfer should run under the Token-2022 program")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *fixture, req *x402.PaymentRequirement)
		wantErr error
	}{
		{
			name:    "missing fee payer",
			mutate:  func(f *fixture, req *x402.PaymentRequirement) { req.Extra = nil },
			wantErr: x402.ErrMissingFeePayer,
		},
		{
			name:    "missing destination",
			mutate:  func(f *fixture, req *x402.PaymentRequirement) { req.PayTo = "" },
			wantErr: x402.ErrMissingDestination,
		},
		{
			name:    "zero amount",
			mutate:  func(f *fixture, req *x402.PaymentRequirement) { req.MaxAmountRequired = "0" },
			wantErr: x402.ErrInvalidAmount,
		},
		{
			name:    "malformed amount",
			mutate:  func(f *fixture, req *x402.PaymentRequirement) { req.MaxAmountRequired = "1.5" },
			wantErr: x402.ErrInvalidAmount,
		},
		{
			name: "amount beyond u64",
			mutate: func(f *fixture, req *x402.PaymentRequirement) {
				req.MaxAmountRequired = "18446744073709551616"
			},
			wantErr: x402.ErrAmountExceeded,
		},
		{
			name:    "wrong network",
			mutate:  func(f *fixture, req *x402.PaymentRequirement) { req.Network = x402.NetworkSolanaMainnet },
			wantErr: x402.ErrNoSuitableRequirement,
		},
		{
			name:    "wrong scheme",
			mutate:  func(f *fixture, req *x402.PaymentRequirement) { req.Scheme = "upto" },
			wantErr: x402.ErrNoSuitableRequirement,
		},
		{
			name: "source account missing",
			mutate: func(f *fixture, req *x402.PaymentRequirement) {
				delete(f.rpc.accounts, f.sourceATA)
			},
			wantErr: x402.ErrSourceAccountNotFound,
		},
		{
			name: "mint missing",
			mutate: func(f *fixture, req *x402.PaymentRequirement) {
				delete(f.rpc.accounts, f.mint)
			},
			wantErr: x402.ErrInvalidRequirements,
		},
		{
			name: "mint owned by foreign program",
			mutate: func(f *fixture, req *x402.PaymentRequirement) {
				f.rpc.accounts[f.mint].Owner = solana.SystemProgramID
			},
			wantErr: x402.ErrInvalidRequirements,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, solana.TokenProgramID)
			req := f.requirement("1000")
			tt.mutate(f, req)

			_, err := f.builder.Build(context.Background(), req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildMaxAmount(t *testing.T) {
	f := newFixture(t, solana.TokenProgramID, WithMaxAmount(big.NewInt(1000)))

	if _, err := f.builder.Build(context.Background(), f.requirement("1001")); !errors.Is(err, x402.ErrAmountExceeded) {
		t.Errorf("Build() error = %v, want ErrAmountExceeded", err)
	}
	if _, err := f.builder.Build(context.Background(), f.requirement("1000")); err != nil {
		t.Errorf("Build() at exact limit should succeed: %v", err)
	}
}

func TestNewBuilderValidation(t *testing.T) {
	wallet := NewLocalWalletFromKey(solana.NewWallet().PrivateKey)

	if _, err := NewBuilder(x402.NetworkBase, wallet); !errors.Is(err, x402.ErrInvalidNetwork) {
		t.Errorf("EVM network error = %v, want ErrInvalidNetwork", err)
	}
	if _, err := NewBuilder("nope", wallet); !errors.Is(err, x402.ErrInvalidNetwork) {
		t.Errorf("malformed network error = %v, want ErrInvalidNetwork", err)
	}
	if _, err := NewBuilder(x402.NetworkSolanaDevnet, nil); !errors.Is(err, x402.ErrWalletCapability) {
		t.Errorf("nil wallet error = %v, want ErrWalletCapability", err)
	}
}

func TestCanBuild(t *testing.T) {
	f := newFixture(t, solana.TokenProgramID)

	if !f.builder.CanBuild(f.requirement("1")) {
		t.Error("CanBuild should accept a matching requirement")
	}
	if f.builder.CanBuild(nil) {
		t.Error("CanBuild should reject nil")
	}
	other := f.requirement("1")
	other.Network = x402.NetworkBase
	if f.builder.CanBuild(other) {
		t.Error("CanBuild should reject other networks")
	}
}

func TestLocalWalletPartialSign(t *testing.T) {
	wallet := NewLocalWalletFromKey(solana.NewWallet().PrivateKey)
	feePayer := solana.NewWallet().PublicKey()

	mint := solana.NewWallet().PublicKey()
	source := solana.NewWallet().PublicKey()
	destination := solana.NewWallet().PublicKey()
	transfer := buildTransferCheckedInstruction(source, mint, destination, wallet.PublicKey(), solana.TokenProgramID, 1, 6)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{transfer},
		solana.Hash{9},
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		t.Fatalf("NewTransaction: %v", err)
	}

	if err := wallet.SignTransaction(tx); err != nil {
		t.Fatalf("SignTransaction: %v", err)
	}
	if !tx.Signatures[0].IsZero() {
		t.Error("fee payer slot should stay empty")
	}
	if tx.Signatures[1].IsZero() {
		t.Error("wallet signature missing")
	}
}
