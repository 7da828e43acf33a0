// Package http provides the client interceptor and server middleware for
// the x402 payment protocol.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	x402 "github.com/xgrain402/xgrain402-sdk"
	"github.com/xgrain402/xgrain402-sdk/retry"
)

// AuthorizationProvider is a function that returns an Authorization header
// value. This is useful for dynamic tokens (e.g., JWT refresh) where the
// value may change.
//
// Thread-safety: the provider function is called on each HTTP request,
// including retry attempts, and is not serialized by FacilitatorClient.
type AuthorizationProvider func(*http.Request) string

// OnBeforeFunc is a callback invoked before a verify or settle operation.
// Return an error to abort the operation.
type OnBeforeFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirement) error

// OnAfterVerifyFunc is a callback invoked after a Verify operation
// completes, for logging or metrics.
type OnAfterVerifyFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirement, *x402.VerifyResponse)

// OnAfterSettleFunc is a callback invoked after a Settle operation
// completes, for logging or metrics.
type OnAfterSettleFunc func(context.Context, x402.PaymentPayload, x402.PaymentRequirement, *x402.SettleResponse)

// verifyRequest is the body of POST /verify.
type verifyRequest struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}

// settleRequest is the body of POST /settle.
type settleRequest struct {
	X402Version         int                     `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirement `json:"paymentRequirements"`
}

// FacilitatorClient talks to an x402 facilitator service.
//
// Verify and Settle never fail with an error for transport or HTTP problems:
// an unreachable or erroring facilitator degrades to a rejecting response
// (IsValid=false, Success=false) with a reason, so a resource server always
// has a definite deny-by-default answer.
type FacilitatorClient struct {
	// BaseURL is the facilitator service URL (e.g., "https://facilitator.x402.org").
	BaseURL string

	// Client is the HTTP client to use for requests. If nil,
	// http.DefaultClient is used.
	Client *http.Client

	// Timeouts contains timeout configuration for payment operations.
	Timeouts x402.TimeoutConfig

	// MaxRetries is the maximum number of retry attempts for unavailable
	// facilitators (default 0, no retries).
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	// (default 100ms). Exponential backoff with a multiplier of 2.0.
	RetryDelay time.Duration

	// Authorization is a static Authorization header value. If
	// AuthorizationProvider is also set, the provider takes precedence.
	Authorization string

	// AuthorizationProvider returns an Authorization header value per
	// request. Takes precedence over the static Authorization field.
	AuthorizationProvider AuthorizationProvider

	// Fallback is an optional backup facilitator, consulted when the
	// primary cannot be reached. Rejections from a reachable primary are
	// final and never retried against the fallback.
	Fallback *FacilitatorClient

	// OnBeforeVerify aborts the Verify operation if it returns an error.
	OnBeforeVerify OnBeforeFunc

	// OnAfterVerify is called with every Verify result.
	OnAfterVerify OnAfterVerifyFunc

	// OnBeforeSettle aborts the Settle operation if it returns an error.
	OnBeforeSettle OnBeforeFunc

	// OnAfterSettle is called with every Settle result.
	OnAfterSettle OnAfterSettleFunc
}

const (
	reasonFacilitatorUnreachable = "facilitator_unreachable"
	reasonVerifyAborted          = "verify_aborted"
	reasonSettleAborted          = "settle_aborted"
)

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return http.DefaultClient
}

// setAuthorizationHeader sets the Authorization header on the request if
// configured. Called per-request so provider tokens stay fresh.
func (c *FacilitatorClient) setAuthorizationHeader(req *http.Request) {
	var authValue string
	if c.AuthorizationProvider != nil {
		authValue = c.AuthorizationProvider(req)
	} else if c.Authorization != "" {
		authValue = c.Authorization
	}
	if authValue != "" {
		req.Header.Set("Authorization", authValue)
	}
}

func (c *FacilitatorClient) retryConfig() retry.Config {
	retryDelay := c.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 100 * time.Millisecond
	}

	maxRetries := c.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return retry.Config{
		// MaxRetries counts retries, MaxAttempts counts attempts.
		MaxAttempts:  maxRetries + 1,
		InitialDelay: retryDelay,
		MaxDelay:     retryDelay * 4,
		Multiplier:   2.0,
	}
}

// withTimeout applies the given timeout unless the context already carries a
// deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// Verify asks the facilitator whether a payment satisfies a requirement
// without executing it. Transport failures and facilitator errors come back
// as IsValid=false with a reason.
func (c *FacilitatorClient) Verify(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirement) *x402.VerifyResponse {
	result := c.verify(ctx, payload, requirement)
	if c.Fallback != nil && result.InvalidReason == reasonFacilitatorUnreachable {
		result = c.Fallback.Verify(ctx, payload, requirement)
	}
	if c.OnAfterVerify != nil {
		c.OnAfterVerify(ctx, payload, requirement, result)
	}
	return result
}

func (c *FacilitatorClient) verify(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirement) *x402.VerifyResponse {
	if c.OnBeforeVerify != nil {
		if err := c.OnBeforeVerify(ctx, payload, requirement); err != nil {
			return &x402.VerifyResponse{IsValid: false, InvalidReason: reasonVerifyAborted}
		}
	}

	body := verifyRequest{
		X402Version:         x402.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirement,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: "invalid_payload"}
	}

	resp, err := retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailableError, func() (*x402.VerifyResponse, error) {
		reqCtx, cancel := withTimeout(ctx, c.Timeouts.VerifyTimeout)
		defer cancel()

		var verifyResp x402.VerifyResponse
		if err := c.postJSON(reqCtx, "/verify", data, &verifyResp); err != nil {
			return nil, err
		}
		return &verifyResp, nil
	})
	if err != nil {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: failureReason(err)}
	}
	return resp
}

// Settle asks the facilitator to broadcast a verified payment. Transport
// failures and facilitator errors come back as Success=false with a reason.
func (c *FacilitatorClient) Settle(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirement) *x402.SettleResponse {
	result := c.settle(ctx, payload, requirement)
	if c.Fallback != nil && result.ErrorReason == reasonFacilitatorUnreachable {
		result = c.Fallback.Settle(ctx, payload, requirement)
	}
	if c.OnAfterSettle != nil {
		c.OnAfterSettle(ctx, payload, requirement, result)
	}
	return result
}

func (c *FacilitatorClient) settle(ctx context.Context, payload x402.PaymentPayload, requirement x402.PaymentRequirement) *x402.SettleResponse {
	if c.OnBeforeSettle != nil {
		if err := c.OnBeforeSettle(ctx, payload, requirement); err != nil {
			return &x402.SettleResponse{Success: false, ErrorReason: reasonSettleAborted}
		}
	}

	body := settleRequest{
		X402Version:         x402.X402Version,
		PaymentPayload:      payload,
		PaymentRequirements: requirement,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: "invalid_payload"}
	}

	resp, err := retry.WithRetry(ctx, c.retryConfig(), isFacilitatorUnavailableError, func() (*x402.SettleResponse, error) {
		reqCtx, cancel := withTimeout(ctx, c.Timeouts.SettleTimeout)
		defer cancel()

		var settleResp x402.SettleResponse
		if err := c.postJSON(reqCtx, "/settle", data, &settleResp); err != nil {
			return nil, err
		}
		return &settleResp, nil
	})
	if err != nil {
		return &x402.SettleResponse{Success: false, ErrorReason: failureReason(err)}
	}
	return resp
}

// postJSON posts data to the facilitator and decodes the 200 response into
// out. Non-200 statuses and transport failures return an error carrying any
// reason the facilitator included.
func (c *FacilitatorClient) postJSON(ctx context.Context, path string, data []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.setAuthorizationHeader(httpReq)

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return parseErrorResponse(httpResp)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// Supported queries the facilitator for the payment kinds it can process.
func (c *FacilitatorClient) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	reqCtx, cancel := withTimeout(ctx, c.Timeouts.VerifyTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.BaseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setAuthorizationHeader(httpReq)

	httpResp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrFacilitatorUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("supported endpoint failed: status %d", httpResp.StatusCode)
	}

	var supportedResp x402.SupportedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&supportedResp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}

	return &supportedResp, nil
}

// DiscoverFeePayer finds the facilitator's fee payer address for the given
// network. A network the facilitator does not sponsor is a configuration
// error: there is no fallback address, and the caller must fail closed.
func (c *FacilitatorClient) DiscoverFeePayer(ctx context.Context, network string) (string, error) {
	supported, err := c.Supported(ctx)
	if err != nil {
		return "", err
	}

	for _, kind := range supported.Kinds {
		if kind.Network != network || kind.Scheme != x402.SchemeExact {
			continue
		}
		if feePayer := kind.FeePayer(); feePayer != "" {
			return feePayer, nil
		}
	}

	return "", x402.NewPaymentError(x402.ErrCodeConfiguration, "facilitator has no fee payer for network", x402.ErrConfiguration).
		WithDetails("network", network)
}

// parseErrorResponse extracts error details from a non-200 HTTP response.
func parseErrorResponse(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var errBody map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &errBody); err == nil {
		if reason, ok := errBody["invalidReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", x402.ErrFacilitatorUnavailable, resp.StatusCode, reason)
		}
		if reason, ok := errBody["errorReason"].(string); ok && reason != "" {
			return fmt.Errorf("%w: status %d, reason: %s", x402.ErrFacilitatorUnavailable, resp.StatusCode, reason)
		}
	}

	if len(bodyBytes) > 0 && len(bodyBytes) < 500 {
		return fmt.Errorf("%w: status %d, body: %s", x402.ErrFacilitatorUnavailable, resp.StatusCode, string(bodyBytes))
	}

	return fmt.Errorf("%w: status %d", x402.ErrFacilitatorUnavailable, resp.StatusCode)
}

// failureReason maps a facilitator communication error to the short reason
// code reported in degraded responses.
func failureReason(err error) string {
	if errors.Is(err, x402.ErrFacilitatorUnavailable) {
		return reasonFacilitatorUnreachable
	}
	return err.Error()
}

func isFacilitatorUnavailableError(err error) bool {
	return errors.Is(err, x402.ErrFacilitatorUnavailable)
}
