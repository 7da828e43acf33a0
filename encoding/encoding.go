// Package encoding provides the transport codec for x402 payment data.
// Payment envelopes and settlement receipts travel in HTTP headers as
// base64-encoded JSON; this package owns both directions of that mapping.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

// EncodePayment converts a PaymentPayload to a base64-encoded JSON token
// suitable for the X-PAYMENT request header. The signed transaction inside
// the payload round-trips bit-exact through DecodePayment.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment converts a base64-encoded JSON token back to a
// PaymentPayload. Tokens that are not valid base64, do not parse as JSON, or
// carry a scheme other than "exact" are rejected with ErrMalformedHeader or
// ErrUnsupportedScheme.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payment, fmt.Errorf("%w: invalid base64: %v", x402.ErrMalformedHeader, err)
	}

	if err := json.Unmarshal(decoded, &payment); err != nil {
		return payment, fmt.Errorf("%w: invalid JSON: %v", x402.ErrMalformedHeader, err)
	}

	if payment.Scheme != x402.SchemeExact {
		return x402.PaymentPayload{}, fmt.Errorf("%w: %q", x402.ErrUnsupportedScheme, payment.Scheme)
	}

	return payment, nil
}

// EncodeSettlement converts a SettleResponse to a base64-encoded JSON string
// for the X-PAYMENT-RESPONSE response header.
func EncodeSettlement(settlement x402.SettleResponse) (string, error) {
	settlementJSON, err := json.Marshal(settlement)
	if err != nil {
		return "", fmt.Errorf("failed to marshal settlement: %w", err)
	}
	return base64.StdEncoding.EncodeToString(settlementJSON), nil
}

// DecodeSettlement converts a base64-encoded JSON string to a SettleResponse.
func DecodeSettlement(encoded string) (x402.SettleResponse, error) {
	var settlement x402.SettleResponse

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return settlement, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(decoded, &settlement); err != nil {
		return settlement, fmt.Errorf("failed to unmarshal settlement: %w", err)
	}

	return settlement, nil
}
