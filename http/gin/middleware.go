// Package gin provides Gin-compatible middleware for x402 payment gating.
// It is a thin adapter that translates gin.Context to stdlib http patterns
// and delegates payment verification and settlement to the http package.
package gin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	x402 "github.com/xgrain402/xgrain402-sdk"
	x402http "github.com/xgrain402/xgrain402-sdk/http"
	"github.com/xgrain402/xgrain402-sdk/http/internal/helpers"
)

// MiddlewareConfig is an alias for the http package's middleware
// configuration.
type MiddlewareConfig = x402http.MiddlewareConfig

// PaymentContextKey is the gin context key for verified payment information.
const PaymentContextKey = "x402_payment"

// NewPaymentMiddleware creates a payment-gating middleware for Gin.
//
// The middleware answers requests without a valid X-PAYMENT header with 402
// and a freshly minted requirement, verifies payments with the facilitator,
// settles before running the handler chain, and stores the verification
// result under PaymentContextKey. Like the net/http variant, construction is
// fail-closed when the fee payer cannot be resolved.
//
// Settlement happens before c.Next() rather than at first write: gin's
// ResponseWriter does not tolerate being swapped for an interceptor, so the
// stdlib middleware's settle-on-commit refinement is unavailable here.
func NewPaymentMiddleware(config MiddlewareConfig) (gin.HandlerFunc, error) {
	processor, err := x402http.NewProcessor(config.Processor)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), x402.DefaultTimeouts.RequestTimeout)
	defer cancel()
	if _, err := processor.ResolveFeePayer(ctx); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(c *gin.Context) {
		route := config.Route
		if route.Resource == "" {
			route.Resource = helpers.BuildResourceURL(c.Request)
		}

		requirement, err := processor.CreateRequirement(c.Request.Context(), route)
		if err != nil {
			logger.Error("failed to create payment requirement", "error", err, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"x402Version": x402.X402Version,
				"error":       "Payment configuration error",
			})
			return
		}
		accepts := []x402.PaymentRequirement{*requirement}

		paymentHeader := processor.ExtractPayment(c.Request.Header)
		if paymentHeader == "" {
			logger.Info("no payment header provided", "path", c.Request.URL.Path)
			sendPaymentRequired(c, accepts, "Payment required")
			return
		}

		payment, err := processor.DecodePayment(paymentHeader)
		if err != nil {
			logger.Warn("invalid payment header", "error", err)
			sendPaymentRequired(c, accepts, "Invalid payment header")
			return
		}

		matched, err := x402.MatchRequirement(payment, accepts)
		if err != nil {
			logger.Warn("payment does not match requirement", "network", payment.Network, "scheme", payment.Scheme)
			sendPaymentRequired(c, accepts, "No matching payment requirement")
			return
		}

		verifyResp := processor.VerifyPayment(c.Request.Context(), payment, matched)
		if !verifyResp.IsValid {
			logger.Warn("payment verification failed", "reason", verifyResp.InvalidReason)
			sendPaymentRequired(c, accepts, verifyResp.InvalidReason)
			return
		}

		logger.Info("payment verified", "payer", verifyResp.Payer)

		if !config.VerifyOnly {
			settlementResp := processor.SettlePayment(c.Request.Context(), payment, matched)
			if !settlementResp.Success {
				logger.Warn("settlement unsuccessful", "reason", settlementResp.ErrorReason)
				sendPaymentRequired(c, accepts, settlementResp.ErrorReason)
				return
			}

			logger.Info("payment settled", "transaction", settlementResp.Transaction)

			if err := helpers.AddPaymentResponseHeader(c.Writer, settlementResp); err != nil {
				// The payment went through; the header is best effort.
				logger.Warn("failed to add payment response header", "error", err)
			}
		}

		c.Set(PaymentContextKey, verifyResp)

		// Also store in the stdlib context for the http package helpers.
		ctx := context.WithValue(c.Request.Context(), x402http.PaymentContextKey, verifyResp)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}, nil
}

// sendPaymentRequired sends a 402 Payment Required response and aborts the
// handler chain.
func sendPaymentRequired(c *gin.Context, requirements []x402.PaymentRequirement, errMsg string) {
	response := x402.PaymentRequiredResponse{
		X402Version: x402.X402Version,
		Accepts:     requirements,
		Error:       errMsg,
	}

	c.AbortWithStatusJSON(http.StatusPaymentRequired, response)
}

// GetPaymentFromContext extracts the verified payment information from the
// Gin context. Returns nil if no payment was verified.
func GetPaymentFromContext(c *gin.Context) *x402.VerifyResponse {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	resp, ok := value.(*x402.VerifyResponse)
	if !ok {
		return nil
	}
	return resp
}
