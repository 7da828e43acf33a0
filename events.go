package x402

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates a payment is being attempted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates a payment succeeded.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates a payment failed.
	PaymentEventFailure PaymentEventType = "failure"
)

// PaymentEvent describes one step of a payment attempt's lifecycle. The HTTP
// transport emits these so callers can log or meter spending without
// wrapping the client.
type PaymentEvent struct {
	// Type is the event type (attempt, success, failure).
	Type PaymentEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// URL is the protected resource being paid for.
	URL string

	// Amount is the payment amount in atomic units.
	Amount string

	// Asset is the token or asset address.
	Asset string

	// Network is the blockchain network identifier (CAIP-2 format).
	Network string

	// Scheme is the payment scheme.
	Scheme string

	// Recipient is the payment recipient address.
	Recipient string

	// Payer is the address that made the payment (available on success).
	Payer string

	// Transaction is the settled transaction hash (available on success).
	Transaction string

	// Error contains failure details (available on failure).
	Error error

	// Duration is the time taken for the payment operation.
	Duration time.Duration
}

// PaymentCallback handles payment events. Callbacks run synchronously during
// payment processing and should return quickly.
type PaymentCallback func(PaymentEvent)
