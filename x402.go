// Package x402 implements the x402 "pay-per-call HTTP" payment protocol.
//
// A resource server answers unpaid requests with 402 Payment Required and a
// list of payment requirements. The client picks a requirement it can
// satisfy, builds and signs a blockchain transfer for the exact amount, and
// retries the request with the signed payment attached as an opaque header.
// The server hands the payment to a facilitator service for verification and
// settlement.
//
// The package is organized around a small set of wire types (this file), a
// per-chain-family transaction Builder (builders/evm, builders/svm), a header
// codec (encoding), and HTTP client/server plumbing (http).
package x402

// X402Version is the protocol version carried in every envelope.
const X402Version = 1

// SchemeExact is the only payment scheme this implementation supports:
// the client transfers exactly the required amount, no more, no less.
const SchemeExact = "exact"

// FeePayerKey is the key under PaymentRequirement.Extra that carries the
// address sponsoring network fees.
const FeePayerKey = "feePayer"

// PaymentRequirement describes one acceptable way to pay for a resource.
// It is an element of the "accepts" array in a 402 response body and is
// ephemeral: servers mint one per request attempt and never persist it.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier. Only "exact" is defined.
	Scheme string `json:"scheme"`

	// Network is the blockchain network in CAIP-2 format (e.g. "eip155:8453").
	Network string `json:"network"`

	// MaxAmountRequired is the price in atomic units of Asset, as a
	// non-negative integer decimal string. Never a float.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address (EVM) or mint address (Solana).
	// Empty or the zero address selects the network's native unit where the
	// chain family has one.
	Asset string `json:"asset,omitempty"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// Resource is the URL of the protected resource.
	Resource string `json:"resource"`

	// Description is an optional human-readable description of the resource.
	Description string `json:"description,omitempty"`

	// MimeType is the content type of the protected resource.
	MimeType string `json:"mimeType,omitempty"`

	// MaxTimeoutSeconds is the validity window for the payment.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// OutputSchema optionally documents the response shape of the resource.
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`

	// Extra carries scheme-specific additional data. For sponsored transfers
	// it must contain the fee payer address under "feePayer" before a
	// transaction can be built.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// FeePayer returns the fee payer address from Extra, or "" if unset.
func (r *PaymentRequirement) FeePayer() string {
	if r.Extra == nil {
		return ""
	}
	feePayer, _ := r.Extra[FeePayerKey].(string)
	return feePayer
}

// SetFeePayer records the fee payer address in Extra.
func (r *PaymentRequirement) SetFeePayer(address string) {
	if r.Extra == nil {
		r.Extra = make(map[string]interface{})
	}
	r.Extra[FeePayerKey] = address
}

// ExactPayload carries the chain-encoded signed transaction for the "exact"
// scheme: base64 of the serialized transaction on Solana, 0x-prefixed hex of
// the RLP-encoded transaction on EVM chains.
type ExactPayload struct {
	Transaction string `json:"transaction"`
}

// PaymentPayload is the wire envelope a client attaches to the retried
// request. It is created once per payment attempt and discarded after
// settlement. Scheme and Network must match the requirement that produced it.
type PaymentPayload struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier.
	Scheme string `json:"scheme"`

	// Network is the blockchain network in CAIP-2 format.
	Network string `json:"network"`

	// Payload holds the signed transaction.
	Payload ExactPayload `json:"payload"`
}

// PaymentRequiredResponse is the 402 response body sent by resource servers.
type PaymentRequiredResponse struct {
	// X402Version is the protocol version.
	X402Version int `json:"x402Version"`

	// Accepts lists the payment options the server will accept, in priority
	// order. Clients take the first entry they can satisfy.
	Accepts []PaymentRequirement `json:"accepts"`

	// Error is a human-readable reason why payment is (still) required.
	Error string `json:"error,omitempty"`
}

// VerifyResponse is returned by the facilitator /verify endpoint.
type VerifyResponse struct {
	// IsValid indicates whether the payment satisfies the requirement.
	IsValid bool `json:"isValid"`

	// InvalidReason provides a short error code if the payment is invalid.
	InvalidReason string `json:"invalidReason,omitempty"`

	// Payer is the address transferring value, when the facilitator can
	// determine it.
	Payer string `json:"payer,omitempty"`
}

// SettleResponse is returned by the facilitator /settle endpoint.
type SettleResponse struct {
	// Success indicates whether the payment was broadcast and finalized.
	Success bool `json:"success"`

	// ErrorReason provides a short error code if settlement failed.
	ErrorReason string `json:"errorReason,omitempty"`

	// Transaction is the blockchain transaction hash or signature.
	Transaction string `json:"transaction,omitempty"`

	// Network is the network the payment settled on (CAIP-2 format).
	Network string `json:"network,omitempty"`

	// Payer is the address that made the payment.
	Payer string `json:"payer,omitempty"`
}

// SupportedKind describes one payment type a facilitator can process.
type SupportedKind struct {
	// X402Version is the protocol version supported.
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier.
	Scheme string `json:"scheme"`

	// Network is the blockchain network in CAIP-2 format.
	Network string `json:"network"`

	// Extra carries scheme-specific data, notably the fee payer address the
	// facilitator signs sponsored transactions with.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// FeePayer returns the facilitator's fee payer address for this kind, or "".
func (k *SupportedKind) FeePayer() string {
	if k.Extra == nil {
		return ""
	}
	feePayer, _ := k.Extra[FeePayerKey].(string)
	return feePayer
}

// SupportedResponse is returned by the facilitator /supported endpoint.
type SupportedResponse struct {
	// Kinds lists the payment types the facilitator supports.
	Kinds []SupportedKind `json:"kinds"`
}
