// Package evm builds raw signed transfer transactions for the x402 "exact"
// scheme on EVM networks.
//
// Payments are either a native value transfer or an ERC-20 transfer call,
// selected by the requirement's asset. The signed transaction is serialized
// and handed to the facilitator for broadcast; no EIP-3009 authorization is
// involved.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

const (
	// nativeTransferGas is the fixed gas cost of a plain value transfer.
	nativeTransferGas = 21000

	// tokenTransferGas is a conservative limit for ERC-20 transfer calls.
	tokenTransferGas = 100000
)

const erc20TransferABI = `[{"name":"transfer","type":"function","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}]`

var transferABI = mustParseABI(erc20TransferABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// RPCClient is the interface for the Ethereum RPC operations the builder
// needs. *ethclient.Client satisfies it; tests inject fakes.
type RPCClient interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Builder implements x402.Builder for EVM nonce/gas chains.
type Builder struct {
	wallet    Wallet
	network   string
	chainID   *big.Int
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
		client, err := ethclient.Dial(url)
		if err != nil {
			return fmt.Errorf("%w: %v", x402.ErrConfiguration, err)
		}
		b.rpcClient = client
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

// NewBuilder creates an EVM payment builder for the given CAIP-2 network.
func NewBuilder(network string, wallet Wallet, opts ...Option) (*Builder, error) {
	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return nil, err
	}
	if networkType != x402.NetworkTypeEVM {
		return nil, fmt.Errorf("%w: expected EVM network, got %s", x402.ErrInvalidNetwork, network)
	}

	if wallet == nil {
		return nil, x402.ErrWalletCapability
	}

	chain, err := x402.GetChainConfig(network)
	if err != nil {
		return nil, err
	}
	chainID, err := x402.GetChainID(network)
	if err != nil {
		return nil, err
	}

	b := &Builder{
		wallet:  wallet,
		network: network,
		chainID: big.NewInt(chainID),
	}

	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}

	if b.rpcClient == nil {
		client, err := ethclient.Dial(chain.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", x402.ErrConfiguration, err)
		}
		b.rpcClient = client
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

// Build constructs and signs the transfer transaction.
//
// An absent or zero-address asset means a native value transfer; anything
// else is treated as an ERC-20 contract and paid via a transfer call. The nonce and
// gas price come from the chain at build time, so a payload is only valid
// until the account's pending nonce moves.
func (b *Builder) Build(ctx context.Context, requirement *x402.PaymentRequirement) (*x402.PaymentPayload, error) {
	if !b.CanBuild(requirement) {
		return nil, x402.ErrNoSuitableRequirement
	}

	if requirement.PayTo == "" {
		return nil, x402.ErrMissingDestination
	}
	if !common.IsHexAddress(requirement.PayTo) {
		return nil, fmt.Errorf("%w: invalid recipient address %s", x402.ErrInvalidRequirements, requirement.PayTo)
	}
	recipient := common.HexToAddress(requirement.PayTo)

	amount, err := x402.ParseAtomic(requirement.MaxAmountRequired)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, x402.ErrInvalidAmount
	}
	if b.maxAmount != nil && amount.Cmp(b.maxAmount) > 0 {
		return nil, x402.ErrAmountExceeded
	}

	sender := b.wallet.Address()
	if sender == (common.Address{}) {
		return nil, x402.ErrMissingWalletAddress
	}

	nonce, err := b.rpcClient.PendingNonceAt(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := b.rpcClient.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	// An absent or zero-address asset is the chain's native unit; there is
	// no default-token substitution here.
	asset := requirement.Asset
	var tx *types.Transaction
	if x402.IsNativeAsset(asset) {
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &recipient,
			Value:    amount,
			Gas:      nativeTransferGas,
			GasPrice: gasPrice,
		})
	} else {
		if !common.IsHexAddress(asset) {
			return nil, fmt.Errorf("%w: invalid token address %s", x402.ErrInvalidRequirements, asset)
		}
		contract := common.HexToAddress(asset)
		callData, err := transferABI.Pack("transfer", recipient, amount)
		if err != nil {
			return nil, fmt.Errorf("failed to encode transfer call: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &contract,
			Value:    big.NewInt(0),
			Gas:      tokenTransferGas,
			GasPrice: gasPrice,
			Data:     callData,
		})
	}

	signedTx, err := b.wallet.SignTx(tx, b.chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}

	rawTx, err := signedTx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transaction: %w", err)
	}

	return &x402.PaymentPayload{
		X402Version: x402.X402Version,
		Scheme:      x402.SchemeExact,
		Network:     b.network,
		Payload: x402.ExactPayload{
			Transaction: hexutil.Encode(rawTx),
		},
	}, nil
}
