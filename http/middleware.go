package http

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	x402 "github.com/xgrain402/xgrain402-sdk"
	"github.com/xgrain402/xgrain402-sdk/http/internal/helpers"
)

// MiddlewareConfig configures the payment middleware.
type MiddlewareConfig struct {
	// Processor configures pricing and the facilitator connection.
	Processor Config

	// Route overrides processor defaults for the wrapped routes. A zero
	// Resource is derived from each incoming request.
	Route RouteConfig

	// VerifyOnly skips settlement if true (payments are verified but never
	// broadcast).
	VerifyOnly bool

	// Logger receives structured request-level payment logs. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key for storing verified payment
// information.
const PaymentContextKey = contextKey("x402_payment")

// NewPaymentMiddleware creates a payment-gating middleware around a
// Processor.
//
// Construction is fail-closed: for sponsored-transfer networks the fee payer
// must resolve, from the explicit override or the facilitator's /supported
// endpoint, or the constructor errors instead of minting requirements no
// client could ever satisfy.
func NewPaymentMiddleware(config MiddlewareConfig) (func(http.Handler) http.Handler, error) {
	processor, err := NewProcessor(config.Processor)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), processor.facilitator.Timeouts.RequestTimeout)
	defer cancel()
	if _, err := processor.ResolveFeePayer(ctx); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := config.Route
			if route.Resource == "" {
				route.Resource = helpers.BuildResourceURL(r)
			}

			requirement, err := processor.CreateRequirement(r.Context(), route)
			if err != nil {
				logger.Error("failed to create payment requirement", "error", err, "path", r.URL.Path)
				http.Error(w, "Payment configuration error", http.StatusInternalServerError)
				return
			}
			accepts := []x402.PaymentRequirement{*requirement}

			paymentHeader := processor.ExtractPayment(r.Header)
			if paymentHeader == "" {
				logger.Info("no payment header provided", "path", r.URL.Path)
				if err := helpers.SendPaymentRequired(w, accepts, "Payment required"); err != nil {
					logger.Error("failed to send payment required response", "error", err)
				}
				return
			}

			payment, err := processor.DecodePayment(paymentHeader)
			if err != nil {
				logger.Warn("invalid payment header", "error", err)
				if err := helpers.SendPaymentRequired(w, accepts, "Invalid payment header"); err != nil {
					logger.Error("failed to send payment required response", "error", err)
				}
				return
			}

			matched, err := x402.MatchRequirement(payment, accepts)
			if err != nil {
				logger.Warn("payment does not match requirement", "network", payment.Network, "scheme", payment.Scheme)
				if err := helpers.SendPaymentRequired(w, accepts, "No matching payment requirement"); err != nil {
					logger.Error("failed to send payment required response", "error", err)
				}
				return
			}

			verifyResp := processor.VerifyPayment(r.Context(), payment, matched)
			if !verifyResp.IsValid {
				logger.Warn("payment verification failed", "reason", verifyResp.InvalidReason)
				if err := helpers.SendPaymentRequired(w, accepts, verifyResp.InvalidReason); err != nil {
					logger.Error("failed to send payment required response", "error", err)
				}
				return
			}

			logger.Info("payment verified", "payer", verifyResp.Payer, "network", payment.Network)

			ctx := context.WithValue(r.Context(), PaymentContextKey, verifyResp)
			r = r.WithContext(ctx)

			interceptor := &settlementInterceptor{
				w: w,
				settleFunc: func() bool {
					if config.VerifyOnly {
						return true
					}

					settlementResp := processor.SettlePayment(r.Context(), payment, matched)
					if !settlementResp.Success {
						logger.Warn("settlement unsuccessful", "reason", settlementResp.ErrorReason)
						if err := helpers.SendPaymentRequired(w, accepts, settlementResp.ErrorReason); err != nil {
							logger.Error("failed to send payment required response", "error", err)
						}
						return false
					}

					logger.Info("payment settled", "transaction", settlementResp.Transaction)

					if err := helpers.AddPaymentResponseHeader(w, settlementResp); err != nil {
						// The payment went through; the header is best effort.
						logger.Warn("failed to add payment response header", "error", err)
					}
					return true
				},
				onFailure: func(statusCode int) {
					logger.Warn("handler returned non-success, skipping settlement", "status", statusCode)
				},
			}
			next.ServeHTTP(interceptor, r)
		})
	}, nil
}

// settlementInterceptor wraps the ResponseWriter to settle at the moment the
// handler commits to a success status. Billing only happens for responses
// the caller actually gets.
type settlementInterceptor struct {
	w http.ResponseWriter
	// settleFunc performs settlement; a false return means it already wrote
	// an error response.
	settleFunc func() bool
	// onFailure is an internal logging callback.
	onFailure func(statusCode int)
	committed bool
	hijacked  bool
}

func (i *settlementInterceptor) Header() http.Header {
	return i.w.Header()
}

func (i *settlementInterceptor) Write(b []byte) (int, error) {
	// Write without WriteHeader implies 200 OK; run the settlement check now.
	if !i.committed {
		i.WriteHeader(http.StatusOK)
	}

	// After a failed settlement the error response is already on the wire.
	// Discard the handler's payload to avoid a mixed response.
	if i.hijacked {
		return len(b), nil
	}

	return i.w.Write(b)
}

func (i *settlementInterceptor) WriteHeader(statusCode int) {
	if i.committed {
		return
	}
	i.committed = true

	// Handler errors pass through unsettled.
	if statusCode >= 400 {
		if i.onFailure != nil {
			i.onFailure(statusCode)
		}
		i.w.WriteHeader(statusCode)
		return
	}

	if !i.settleFunc() {
		i.hijacked = true
		return
	}

	i.w.WriteHeader(statusCode)
}

// Flush implements http.Flusher to support streaming responses.
func (i *settlementInterceptor) Flush() {
	if flusher, ok := i.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker to support connection hijacking.
func (i *settlementInterceptor) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := i.w.(http.Hijacker); ok {
		// Settle before handing over the connection (e.g. WebSocket
		// upgrades).
		if !i.committed {
			i.committed = true
			if !i.settleFunc() {
				i.hijacked = true
				return nil, nil, errors.New("payment settlement failed")
			}
		}
		return hijacker.Hijack()
	}
	return nil, nil, errors.New("hijacking not supported")
}

// Push implements http.Pusher to support HTTP/2 server push.
func (i *settlementInterceptor) Push(target string, opts *http.PushOptions) error {
	if pusher, ok := i.w.(http.Pusher); ok {
		return pusher.Push(target, opts)
	}
	return http.ErrNotSupported
}

// GetPaymentFromContext extracts the verified payment information from the
// request context. Returns nil if no payment was verified.
func GetPaymentFromContext(ctx context.Context) *x402.VerifyResponse {
	value := ctx.Value(PaymentContextKey)
	resp, ok := value.(*x402.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}
