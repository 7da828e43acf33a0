// Package validation provides validation utilities for x402 payment data.
// It validates addresses, amounts, networks (CAIP-2 format), and payment
// structures before they hit a builder or a facilitator.
package validation

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/xeipuuv/gojsonschema"

	x402 "github.com/xgrain402/xgrain402-sdk"
)

var (
	// evmAddressRegex matches Ethereum-style addresses (0x followed by 40 hex chars)
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// solanaAddressRegex matches Solana base58 addresses (32-44 chars, base58 charset)
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

	// caip2Regex matches CAIP-2 network identifiers (namespace:reference)
	caip2Regex = regexp.MustCompile(`^[a-z0-9]+:[a-zA-Z0-9]+$`)
)

// ValidateAmount validates that an amount string is a valid non-negative
// integer in atomic units.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}

	if _, err := x402.ParseAtomic(amount); err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}

	return nil
}

// ValidateNetwork validates a CAIP-2 network identifier.
func ValidateNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("network cannot be empty")
	}

	if !caip2Regex.MatchString(network) {
		return fmt.Errorf("invalid CAIP-2 network format: %s (expected namespace:reference)", network)
	}

	_, err := x402.ValidateNetwork(network)
	return err
}

// ValidateAddress validates an address based on the network's chain family.
func ValidateAddress(address string, network string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	networkType, err := x402.ValidateNetwork(network)
	if err != nil {
		return fmt.Errorf("cannot validate address: %w", err)
	}

	switch networkType {
	case x402.NetworkTypeEVM:
		if !evmAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
		}
		return nil

	case x402.NetworkTypeSVM:
		if !solanaAddressRegex.MatchString(address) {
			return fmt.Errorf("invalid Solana address format: %s (expected base58 string 32-44 chars)", address)
		}
		return nil

	default:
		return fmt.Errorf("unsupported network type for address validation: %d", networkType)
	}
}

// ValidateOutputSchema checks that an outputSchema field compiles as a JSON
// Schema. A nil schema is valid (the field is optional).
func ValidateOutputSchema(schema map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	loader := gojsonschema.NewGoLoader(schema)
	if _, err := gojsonschema.NewSchema(loader); err != nil {
		return fmt.Errorf("invalid output schema: %w", err)
	}

	return nil
}

// ValidateRequirement performs comprehensive validation of a payment
// requirement: amount, network, addresses, scheme, resource URL, timeout,
// and output schema.
func ValidateRequirement(req x402.PaymentRequirement) error {
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateNetwork(req.Network); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	if err := ValidateAddress(req.PayTo, req.Network); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}

	// Asset is optional; absent or zero-address means the native unit or the
	// network default. When present and not the sentinel, it must be a valid
	// address for the chain family.
	if !x402.IsNativeAsset(req.Asset) {
		if err := ValidateAddress(req.Asset, req.Network); err != nil {
			return fmt.Errorf("invalid requirement: asset %w", err)
		}
	}

	switch req.Scheme {
	case x402.SchemeExact:
	case "":
		return fmt.Errorf("invalid requirement: scheme cannot be empty")
	default:
		return fmt.Errorf("invalid requirement: unsupported scheme %s", req.Scheme)
	}

	if req.Resource == "" {
		return fmt.Errorf("invalid requirement: resource URL cannot be empty")
	}
	if _, err := url.Parse(req.Resource); err != nil {
		return fmt.Errorf("invalid requirement: resource %w", err)
	}

	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}

	if err := ValidateOutputSchema(req.OutputSchema); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}

	return nil
}

// ValidatePayload validates a payment envelope: version, scheme, network,
// and the presence of a signed transaction.
func ValidatePayload(payload x402.PaymentPayload) error {
	if payload.X402Version != x402.X402Version {
		return fmt.Errorf("%w: %d (expected %d)", x402.ErrUnsupportedVersion, payload.X402Version, x402.X402Version)
	}

	if payload.Scheme != x402.SchemeExact {
		return fmt.Errorf("%w: %q", x402.ErrUnsupportedScheme, payload.Scheme)
	}

	if _, err := x402.ValidateNetwork(payload.Network); err != nil {
		return fmt.Errorf("invalid payload network: %w", err)
	}

	if payload.Payload.Transaction == "" {
		return fmt.Errorf("payload transaction cannot be empty")
	}

	return nil
}

// ValidatePaymentRequired validates a complete 402 response body.
func ValidatePaymentRequired(pr x402.PaymentRequiredResponse) error {
	if pr.X402Version != x402.X402Version {
		return fmt.Errorf("%w: %d (expected %d)", x402.ErrUnsupportedVersion, pr.X402Version, x402.X402Version)
	}

	if len(pr.Accepts) == 0 {
		return fmt.Errorf("invalid payment required: accepts cannot be empty")
	}

	for i, req := range pr.Accepts {
		if err := ValidateRequirement(req); err != nil {
			return fmt.Errorf("invalid payment required: accepts[%d] %w", i, err)
		}
	}

	return nil
}
