package x402

import "errors"

// Sentinel errors for x402 payment operations.
var (
	// ErrNoSuitableRequirement indicates no accepted payment option matches
	// the client's supported scheme and networks. Terminal; no retry.
	ErrNoSuitableRequirement = errors.New("x402: no suitable payment requirement")

	// ErrAmountExceeded indicates the quoted price exceeds the configured
	// per-call limit. Raised before any transaction is built or signed.
	ErrAmountExceeded = errors.New("x402: payment amount exceeds per-call limit")

	// ErrInvalidRequirements indicates the payment requirements from the
	// server are malformed.
	ErrInvalidRequirements = errors.New("x402: invalid payment requirements")

	// ErrInvalidAmount indicates an amount string that is not a valid
	// non-negative integer in atomic units.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidNetwork indicates an unsupported or malformed network
	// identifier.
	ErrInvalidNetwork = errors.New("x402: invalid or unsupported network")

	// ErrMissingFeePayer indicates a requirement without the fee payer
	// address needed for a sponsored transfer.
	ErrMissingFeePayer = errors.New("x402: missing fee payer in requirement")

	// ErrMissingDestination indicates a requirement without a payTo address.
	ErrMissingDestination = errors.New("x402: missing payment destination")

	// ErrMissingWalletAddress indicates no wallet address is available to
	// draw the payment from.
	ErrMissingWalletAddress = errors.New("x402: missing wallet address")

	// ErrWalletCapability indicates the supplied wallet lacks the signing
	// capability the builder needs.
	ErrWalletCapability = errors.New("x402: wallet does not support signing")

	// ErrSourceAccountNotFound indicates the sender's token account does not
	// exist. The builder never creates the sender's account.
	ErrSourceAccountNotFound = errors.New("x402: source token account not found")

	// ErrSigningFailed indicates the wallet rejected or failed the signing
	// request.
	ErrSigningFailed = errors.New("x402: payment signing failed")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("x402: invalid private key")

	// ErrConfiguration indicates fatal configuration, such as a network the
	// facilitator has no fee payer for. Never retried.
	ErrConfiguration = errors.New("x402: configuration error")

	// ErrValidation indicates missing or malformed fields, such as an
	// unresolvable resource URL.
	ErrValidation = errors.New("x402: validation error")

	// ErrFacilitatorUnavailable indicates the facilitator service could not
	// be reached.
	ErrFacilitatorUnavailable = errors.New("x402: facilitator service unavailable")

	// ErrMalformedHeader indicates the payment header could not be decoded.
	ErrMalformedHeader = errors.New("x402: malformed payment header")

	// ErrUnsupportedVersion indicates an unsupported protocol version.
	ErrUnsupportedVersion = errors.New("x402: unsupported protocol version")

	// ErrUnsupportedScheme indicates a payment scheme other than "exact".
	ErrUnsupportedScheme = errors.New("x402: unsupported payment scheme")
)

// ErrorCode represents payment error codes for programmatic handling.
type ErrorCode string

const (
	// ErrCodeNoSuitableRequirement indicates no accepted option matches.
	ErrCodeNoSuitableRequirement ErrorCode = "NO_SUITABLE_REQUIREMENT"

	// ErrCodeAmountExceeded indicates the price exceeds the per-call limit.
	ErrCodeAmountExceeded ErrorCode = "AMOUNT_EXCEEDED"

	// ErrCodeInvalidRequirements indicates malformed server requirements.
	ErrCodeInvalidRequirements ErrorCode = "INVALID_REQUIREMENTS"

	// ErrCodeSigningFailed indicates the signing operation failed.
	ErrCodeSigningFailed ErrorCode = "SIGNING_FAILED"

	// ErrCodeConfiguration indicates fatal configuration.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"

	// ErrCodeValidation indicates missing or malformed fields.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeSourceAccountNotFound indicates a missing sender token account.
	ErrCodeSourceAccountNotFound ErrorCode = "SOURCE_ACCOUNT_NOT_FOUND"

	// ErrCodeNetworkError indicates a network communication error.
	ErrCodeNetworkError ErrorCode = "NETWORK_ERROR"

	// ErrCodeUnsupportedScheme indicates an unsupported scheme or network.
	ErrCodeUnsupportedScheme ErrorCode = "UNSUPPORTED_SCHEME"

	// ErrCodeUnsupportedVersion indicates an unsupported protocol version.
	ErrCodeUnsupportedVersion ErrorCode = "UNSUPPORTED_VERSION"
)

// PaymentError provides structured error information.
type PaymentError struct {
	// Code is the error code for programmatic handling.
	Code ErrorCode

	// Message is the human-readable error message.
	Message string

	// Details contains additional error context.
	Details map[string]interface{}

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a new PaymentError with the given code and message.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds additional context to the error.
// Lazily initializes the Details map if nil.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}
