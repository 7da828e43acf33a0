package x402

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToAtomic converts a human-readable decimal amount string to atomic units.
// For example, "1.5" with 6 decimals becomes 1500000. The conversion is
// exact: amounts are never routed through floating point, and an amount with
// more fractional digits than the asset supports is rejected rather than
// rounded. Returns ErrInvalidAmount for negative amounts, negative decimals,
// or malformed input.
func ToAtomic(amount string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrInvalidAmount
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if value.IsNegative() {
		return nil, ErrInvalidAmount
	}

	shifted := value.Shift(int32(decimals))
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, ErrInvalidAmount
	}

	return shifted.BigInt(), nil
}

// FromAtomic converts atomic units back to a human-readable decimal string.
// For example, 2500000 with 6 decimals becomes "2.5". Trailing zeros are not
// emitted, so FromAtomic(ToAtomic(a, d), d) == a for canonical inputs.
func FromAtomic(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -int32(decimals)).String()
}

// ParseAtomic parses an atomic-unit amount string as used in
// PaymentRequirement.MaxAmountRequired: a non-negative integer in base 10.
func ParseAtomic(amount string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	if value.Sign() < 0 {
		return nil, ErrInvalidAmount
	}
	return value, nil
}
