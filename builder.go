package x402

import (
	"context"
	"math/big"
)

// Builder turns a payment requirement into a signed, chain-correct transfer.
// There is one implementation per chain family: builders/svm for Solana
// token-account chains and builders/evm for nonce/gas chains. Both produce a
// PaymentPayload whose scheme and network match the requirement.
//
// Builders are immutable after construction and safe for concurrent use.
type Builder interface {
	// Network returns the CAIP-2 network identifier this builder pays on.
	Network() string

	// Scheme returns the payment scheme identifier (always "exact").
	Scheme() string

	// CanBuild reports whether this builder can satisfy the requirement's
	// scheme and network. It performs no I/O.
	CanBuild(requirement *PaymentRequirement) bool

	// Build constructs and signs the transfer transaction. All blocking work
	// (RPC reads, wallet signing) honors ctx.
	Build(ctx context.Context, requirement *PaymentRequirement) (*PaymentPayload, error)

	// MaxAmount returns the per-call spending limit in atomic units, or nil
	// if no limit is configured.
	MaxAmount() *big.Int
}
