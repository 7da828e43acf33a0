package x402

import (
	"fmt"
	"strconv"
	"strings"
)

// NetworkType represents the blockchain account model family.
type NetworkType int

const (
	// NetworkTypeUnknown represents an unrecognized network.
	NetworkTypeUnknown NetworkType = iota
	// NetworkTypeEVM represents nonce/gas account-balance chains.
	NetworkTypeEVM
	// NetworkTypeSVM represents Solana token-account chains.
	NetworkTypeSVM
)

// NativeAsset is the zero-address sentinel selecting the chain's native
// currency on EVM networks.
const NativeAsset = "0x0000000000000000000000000000000000000000"

// IsNativeAsset reports whether the asset field selects the native unit.
func IsNativeAsset(asset string) bool {
	return asset == "" || strings.EqualFold(asset, NativeAsset)
}

// CAIP-2 network identifiers.
const (
	// EVM Mainnets
	NetworkBase     = "eip155:8453"
	NetworkPolygon  = "eip155:137"
	NetworkEthereum = "eip155:1"

	// EVM Testnets
	NetworkBaseSepolia = "eip155:84532"
	NetworkSepolia     = "eip155:11155111"

	// Solana networks (genesis hash as reference per CAIP-2)
	NetworkSolanaMainnet = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	NetworkSolanaDevnet  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
)

// ChainConfig holds per-network defaults. The table below is immutable;
// callers needing a custom RPC endpoint or default asset pass overrides at
// construction rather than mutating package state.
type ChainConfig struct {
	// Network is the CAIP-2 network identifier.
	Network string

	// DefaultAsset is the asset used when a requirement does not name one:
	// the official Circle USDC contract or mint address.
	DefaultAsset string

	// Decimals is the number of decimal places for the default asset.
	Decimals uint8

	// RPCURL is the public RPC endpoint used when no custom endpoint is
	// configured.
	RPCURL string
}

// Predefined chain configurations.
var (
	// BaseMainnet is the configuration for Base mainnet.
	BaseMainnet = ChainConfig{
		Network:      NetworkBase,
		DefaultAsset: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Decimals:     6,
		RPCURL:       "https://mainnet.base.org",
	}

	// BaseSepolia is the configuration for Base Sepolia testnet.
	BaseSepolia = ChainConfig{
		Network:      NetworkBaseSepolia,
		DefaultAsset: "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Decimals:     6,
		RPCURL:       "https://sepolia.base.org",
	}

	// PolygonMainnet is the configuration for Polygon PoS mainnet.
	PolygonMainnet = ChainConfig{
		Network:      NetworkPolygon,
		DefaultAsset: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		Decimals:     6,
		RPCURL:       "https://polygon-rpc.com",
	}

	// EthereumMainnet is the configuration for Ethereum mainnet.
	EthereumMainnet = ChainConfig{
		Network:      NetworkEthereum,
		DefaultAsset: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		Decimals:     6,
		RPCURL:       "https://eth.llamarpc.com",
	}

	// Sepolia is the configuration for Ethereum Sepolia testnet.
	Sepolia = ChainConfig{
		Network:      NetworkSepolia,
		DefaultAsset: "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		Decimals:     6,
		RPCURL:       "https://ethereum-sepolia-rpc.publicnode.com",
	}

	// SolanaMainnet is the configuration for Solana mainnet.
	SolanaMainnet = ChainConfig{
		Network:      NetworkSolanaMainnet,
		DefaultAsset: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Decimals:     6,
		RPCURL:       "https://api.mainnet-beta.solana.com",
	}

	// SolanaDevnet is the configuration for Solana devnet.
	SolanaDevnet = ChainConfig{
		Network:      NetworkSolanaDevnet,
		DefaultAsset: "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Decimals:     6,
		RPCURL:       "https://api.devnet.solana.com",
	}
)

// chainConfigByNetwork maps CAIP-2 network identifiers to configurations.
var chainConfigByNetwork = map[string]ChainConfig{
	NetworkBase:          BaseMainnet,
	NetworkBaseSepolia:   BaseSepolia,
	NetworkPolygon:       PolygonMainnet,
	NetworkEthereum:      EthereumMainnet,
	NetworkSepolia:       Sepolia,
	NetworkSolanaMainnet: SolanaMainnet,
	NetworkSolanaDevnet:  SolanaDevnet,
}

// GetChainConfig returns the configuration for a CAIP-2 network identifier.
func GetChainConfig(network string) (ChainConfig, error) {
	config, ok := chainConfigByNetwork[network]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: %s", ErrInvalidNetwork, network)
	}
	return config, nil
}

// ValidateNetwork validates a CAIP-2 network identifier and returns its
// chain family. Returns NetworkTypeEVM for EIP-155 chains, NetworkTypeSVM
// for Solana chains, or NetworkTypeUnknown with an error otherwise.
func ValidateNetwork(network string) (NetworkType, error) {
	if network == "" {
		return NetworkTypeUnknown, fmt.Errorf("%w: network cannot be empty", ErrInvalidNetwork)
	}

	parts := strings.SplitN(network, ":", 2)
	if len(parts) != 2 {
		return NetworkTypeUnknown, fmt.Errorf("%w: invalid CAIP-2 format: %s", ErrInvalidNetwork, network)
	}

	namespace := parts[0]
	reference := parts[1]

	if reference == "" {
		return NetworkTypeUnknown, fmt.Errorf("%w: missing network reference: %s", ErrInvalidNetwork, network)
	}

	switch namespace {
	case "eip155":
		if _, err := strconv.ParseInt(reference, 10, 64); err != nil {
			return NetworkTypeUnknown, fmt.Errorf("%w: invalid EIP-155 chain ID: %s", ErrInvalidNetwork, reference)
		}
		return NetworkTypeEVM, nil
	case "solana":
		// Genesis hash reference is base58, 32-44 chars.
		if len(reference) < 32 || len(reference) > 44 {
			return NetworkTypeUnknown, fmt.Errorf("%w: invalid Solana genesis hash length: %s", ErrInvalidNetwork, reference)
		}
		return NetworkTypeSVM, nil
	default:
		return NetworkTypeUnknown, fmt.Errorf("%w: unsupported namespace: %s", ErrInvalidNetwork, namespace)
	}
}

// GetChainID extracts the chain ID from a CAIP-2 EVM network identifier.
func GetChainID(network string) (int64, error) {
	parts := strings.SplitN(network, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: invalid CAIP-2 format: %s", ErrInvalidNetwork, network)
	}

	if parts[0] != "eip155" {
		return 0, fmt.Errorf("%w: not an EVM network: %s", ErrInvalidNetwork, network)
	}

	chainID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid chain ID: %s", ErrInvalidNetwork, parts[1])
	}

	return chainID, nil
}

// GetSolanaGenesisHash extracts the genesis hash from a CAIP-2 Solana
// network identifier.
func GetSolanaGenesisHash(network string) (string, error) {
	parts := strings.SplitN(network, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: invalid CAIP-2 format: %s", ErrInvalidNetwork, network)
	}

	if parts[0] != "solana" {
		return "", fmt.Errorf("%w: not a Solana network: %s", ErrInvalidNetwork, network)
	}

	return parts[1], nil
}
