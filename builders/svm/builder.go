// Package svm builds sponsored SPL token transfers for the x402 "exact"
// scheme on Solana networks.
//
// The produced transaction is partially signed: the wallet signs as the
// token owner, and the fee payer named in the requirement signs later, on
// the facilitator side, before broadcast.
package svm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

// RPCClient is the interface for the Solana RPC operations the builder
// needs. *rpc.Client satisfies it; tests inject fakes.
type RPCClient interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
}

// Builder implements x402.Builder for Solana token-account chains.
type Builder struct {
	wallet    Wallet
	network   string
	chain     x402.ChainConfig
	rpcClient RPCClient
	maxAmount *big.Int
}

var _ x402.Builder = (*Builder)(nil)

// Option configures a Builder.
type Option func(*Builder) error

// WithRPCClient sets a custom RPC client, replacing the network default.
func WithRPCClient(client RPCClient) Option {
	return func(b *Builder) error {
		b.rpcClient = client
		return nil
	}
}

// WithRPCURL points the builder at a custom RPC endpoint.
func WithRPCURL(url string) Option {
	return func(b *Builder) error {
		b.rpcClient = rpc.New(url)
		return nil
	}
}

// WithMaxAmount sets the per-call spending limit in atomic units.
func WithMaxAmount(amount *big.Int) Option {
	return func(b *Builder) error {
		b.maxAmount = amount
		return nil
	}
}

// NewBuilder creates a Solana payment builder for the given CAIP-2 network.
func NewBuilder(network string, wallet Wallet, opts ...Option) (*Builder, error) {
	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return nil, err
	}
	if networkType != x402.NetworkTypeSVM {
		return nil, fmt.Errorf("%w: expected Solana network, got %s", x402.ErrInvalidNetwork, network)
	}

	if wallet == nil {
		return nil, x402.ErrWalletCapability
	}

	chain, err := x402.GetChainConfig(network)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		wallet:  wallet,
		network: network,
		chain:   chain,
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	if b.rpcClient == nil {
		b.rpcClient = rpc.New(chain.RPCURL)
	}

	return b, nil
}

// Network returns the CAIP-2 network identifier.
func (b *Builder) Network() string {
	return b.network
}

// Scheme returns the payment scheme identifier.
func (b *Builder) Scheme() string {
	return x402.SchemeExact
}

// MaxAmount returns the per-call spending limit, or nil if none is set.
func (b *Builder) MaxAmount() *big.Int {
	return b.maxAmount
}

// CanBuild reports whether the requirement targets this builder's network
// and scheme.
func (b *Builder) CanBuild(requirement *x402.PaymentRequirement) bool {
	if requirement == nil {
		return false
	}
	return requirement.Scheme == x402.SchemeExact && requirement.Network == b.network
}

// Build constructs and signs the sponsored token transfer.
//
// The transaction is assembled in the protocol-mandated instruction order:
// compute unit limit, compute unit price, idempotent destination account
// creation funded by the fee payer, then the checked transfer. The sender's
// token account must already exist. The fee payer is the transaction payer;
// its signature slot is left empty for the facilitator.
func (b *Builder) Build(ctx context.Context, requirement *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	if !b.CanBuild(requirement) {
		return nil, x402.ErrNoSuitableRequirement
	}

	if requirement.PayTo == "" {
		return nil, x402.ErrMissingDestination
	}
	feePayerStr := requirement.FeePayer()
	if feePayerStr == "" {
		return nil, x402.ErrMissingFeePayer
	}

	amount, err := x402.ParseAtomic(requirement.MaxAmountRequired)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, x402.ErrInvalidAmount
	}
	if !amount.IsUint64() {
		return nil, x402.ErrAmountExceeded
	}
	if b.maxAmount != nil && amount.Cmp(b.maxAmount) > 0 {
		return nil, x402.ErrAmountExceeded
	}

	mintStr := requirement.Asset
	if mintStr == "" {
		mintStr = b.chain.DefaultAsset
	}
	mint, err := solana.PublicKeyFromBase58(mintStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid mint address: %v", x402.ErrInvalidRequirements, err)
	}

	recipient, err := solana.PublicKeyFromBase58(requirement.PayTo)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid recipient address: %v", x402.ErrInvalidRequirements, err)
	}

	feePayer, err := solana.PublicKeyFromBase58(feePayerStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid fee payer address: %v", x402.ErrInvalidRequirements, err)
	}

	owner := b.wallet.PublicKey()
	if owner.IsZero() {
		return nil, x402.ErrMissingWalletAddress
	}

	// The mint account's owning program decides the token program variant;
	// never assume the classic program.
	tokenProgram, decimals, err := b.inspectMint(ctx, mint)
	if err != nil {
		return nil, err
	}

	sourceAccount, err := deriveTokenAccount(owner, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	if err := b.requireAccountExists(ctx, sourceAccount); err != nil {
		return nil, err
	}

	destinationAccount, err := deriveTokenAccount(recipient, mint, tokenProgram)
	if err != nil {
		return nil, err
	}

	createDestination, err := buildCreateIdempotentTokenAccountInstruction(feePayer, recipient, mint, tokenProgram)
	if err != nil {
		return nil, err
	}

	recent, err := b.rpcClient.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, fmt.Errorf("failed to get blockhash: %w", err)
	}

	instructions := []solana.Instruction{
		buildSetComputeUnitLimitInstruction(DefaultComputeUnits),
		buildSetComputeUnitPriceInstruction(DefaultComputeUnitPrice),
		createDestination,
		buildTransferCheckedInstruction(sourceAccount, mint, destinationAccount, owner, tokenProgram, amount.Uint64(), decimals),
	}

	tx, err := solana.NewTransaction(
		instructions,
		recent.Value.Blockhash,
		solana.TransactionPayer(feePayer),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	if err := b.wallet.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}

	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	return &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     b.network,
		Payload: x402.ExactPayload{
			Transaction: base64.StdEncoding.EncodeToString(txBytes),
		},
	}, nil
}

// inspectMint fetches the mint account and returns its owning token program
// and its reported decimals.
func (b *Builder) inspectMint(ctx context.Context, mint solana.PublicKey) (solana.PublicKey, uint8, error) {
	info, err := b.rpcClient.GetAccountInfo(ctx, mint)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return solana.PublicKey{}, 0, fmt.Errorf("%w: mint %s does not exist", x402.ErrInvalidRequirements, mint)
		}
		return solana.PublicKey{}, 0, fmt.Errorf("failed to fetch mint %s: %w", mint, err)
	}
	if info == nil || info.Value == nil {
		return solana.PublicKey{}, 0, fmt.Errorf("%w: mint %s does not exist", x402.ErrInvalidRequirements, mint)
	}

	tokenProgram := info.Value.Owner
	switch {
	case tokenProgram.Equals(solana.TokenProgramID), tokenProgram.Equals(Token2022ProgramID):
	default:
		return solana.PublicKey{}, 0, fmt.Errorf("%w: account %s is not a token mint (owner %s)", x402.ErrInvalidRequirements, mint, tokenProgram)
	}

	var mintState token.Mint
	if err := bin.NewBinDecoder(info.Value.Data.GetBinary()).Decode(&mintState); err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to decode mint %s: %w", mint, err)
	}

	return tokenProgram, mintState.Decimals, nil
}

// requireAccountExists fails with ErrSourceAccountNotFound if the sender's
// token account is missing. The builder never creates the sender's account.
func (b *Builder) requireAccountExists(ctx context.Context, account solana.PublicKey) error {
	info, err := b.rpcClient.GetAccountInfo(ctx, account)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return fmt.Errorf("%w: %s", x402.ErrSourceAccountNotFound, account)
		}
		return fmt.Errorf("failed to fetch token account %s: %w", account, err)
	}
	if info == nil || info.Value == nil {
		return fmt.Errorf("%w: %s", x402.ErrSourceAccountNotFound, account)
	}
	return nil
}
