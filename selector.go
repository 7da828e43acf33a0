package x402

import "strings"

// SelectRequirement picks the payment option the client will satisfy.
//
// Server order is priority order: the first entry whose scheme is "exact"
// and whose network one of the builders supports wins. No cost or latency
// optimization is attempted. Returns ErrNoSuitableRequirement if nothing
// matches, and ErrAmountExceeded if the selected entry's price is above the
// matched builder's per-call limit — checked here, before any transaction is
// built or signed.
func SelectRequirement(builders []Builder, accepts []PaymentRequirement) (Builder, *PaymentRequirement, error) {
	if len(builders) == 0 {
		return nil, nil, NewPaymentError(ErrCodeNoSuitableRequirement, "no payment builders configured", ErrNoSuitableRequirement)
	}
	if len(accepts) == 0 {
		return nil, nil, NewPaymentError(ErrCodeInvalidRequirements, "no payment requirements provided", ErrInvalidRequirements)
	}

	for i := range accepts {
		requirement := &accepts[i]
		for _, builder := range builders {
			if !builder.CanBuild(requirement) {
				continue
			}

			amount, err := ParseAtomic(requirement.MaxAmountRequired)
			if err != nil {
				return nil, nil, NewPaymentError(ErrCodeInvalidRequirements, "invalid amount in requirement", err).
					WithDetails("network", requirement.Network).
					WithDetails("maxAmountRequired", requirement.MaxAmountRequired)
			}

			if limit := builder.MaxAmount(); limit != nil && amount.Cmp(limit) > 0 {
				return nil, nil, NewPaymentError(ErrCodeAmountExceeded, "requirement exceeds per-call limit", ErrAmountExceeded).
					WithDetails("maxAmountRequired", requirement.MaxAmountRequired).
					WithDetails("limit", limit.String())
			}

			return builder, requirement, nil
		}
	}

	options := make([]string, 0, len(accepts))
	for _, requirement := range accepts {
		options = append(options, requirement.Network+":"+requirement.Scheme)
	}
	return nil, nil, NewPaymentError(ErrCodeNoSuitableRequirement, "no builder can satisfy any payment requirement", ErrNoSuitableRequirement).
		WithDetails("options", strings.Join(options, ", "))
}

// MatchRequirement finds the requirement a payment envelope was built from
// by scheme and network. Servers use it to re-derive which of their accepted
// options an incoming payment claims to satisfy.
func MatchRequirement(payment *PaymentPayload, accepts []PaymentRequirement) (*PaymentRequirement, error) {
	for i := range accepts {
		requirement := &accepts[i]
		if requirement.Network == payment.Network && requirement.Scheme == payment.Scheme {
			return requirement, nil
		}
	}
	return nil, NewPaymentError(ErrCodeUnsupportedScheme, "no matching requirement for network and scheme", ErrUnsupportedScheme).
		WithDetails("network", payment.Network).
		WithDetails("scheme", payment.Scheme)
}
