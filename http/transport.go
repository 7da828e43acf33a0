package http

import (
	"bytes"
	"io"
	"net/http"
	"time"

	x402 "github.com/xgrain402/xgrain402-sdk"
	"github.com/xgrain402/xgrain402-sdk/http/internal/helpers"
)

// Transport is a RoundTripper that handles x402 payment flows. It wraps an
// existing http.RoundTripper and transparently pays for 402 Payment Required
// responses: the first 402 triggers exactly one payment and one retry, and
// the retry's response is returned as-is even if it is another 402.
type Transport struct {
	// Base is the underlying RoundTripper (typically http.DefaultTransport).
	Base http.RoundTripper

	// Builders is the list of available payment builders. Order matters only
	// as a tiebreak; the server's accepts order decides selection.
	Builders []x402.Builder

	// OnPaymentAttempt is called when a payment attempt is made.
	OnPaymentAttempt x402.PaymentCallback

	// OnPaymentSuccess is called when a payment settles.
	OnPaymentSuccess x402.PaymentCallback

	// OnPaymentFailure is called when a payment fails.
	OnPaymentFailure x402.PaymentCallback
}

// RoundTrip implements http.RoundTripper.
//
// The request body is buffered up front so the paid retry can reissue the
// original method and body verbatim.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Read once; RoundTrip must not mutate the Transport under concurrent
	// callers.
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	// Buffer the body before the first attempt. Clone does not duplicate a
	// consumed body, so without this the retry would send an empty one.
	if req.Body != nil && req.GetBody == nil {
		bodyBytes, err := io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
		req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(bodyBytes)), nil
		}
	}

	reqCopy, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := base.RoundTrip(reqCopy)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusPaymentRequired {
		return resp, nil
	}

	paymentReq, err := helpers.ParsePaymentRequirements(resp)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	builder, requirement, err := x402.SelectRequirement(t.Builders, paymentReq.Accepts)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	if t.OnPaymentAttempt != nil {
		t.OnPaymentAttempt(x402.PaymentEvent{
			Type:      x402.PaymentEventAttempt,
			Timestamp: startTime,
			URL:       req.URL.String(),
			Network:   requirement.Network,
			Scheme:    requirement.Scheme,
			Amount:    requirement.MaxAmountRequired,
			Asset:     requirement.Asset,
			Recipient: requirement.PayTo,
		})
	}

	payment, err := builder.Build(req.Context(), requirement)
	if err != nil {
		t.emitFailure(req, requirement, err, time.Since(startTime))
		return nil, err
	}

	paymentHeader, err := helpers.BuildPaymentHeader(payment)
	if err != nil {
		t.emitFailure(req, requirement, err, time.Since(startTime))
		return nil, x402.NewPaymentError(x402.ErrCodeSigningFailed, "failed to build payment header", err)
	}

	reqRetry, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	reqRetry.Header.Set(helpers.PaymentHeader, paymentHeader)

	respRetry, err := base.RoundTrip(reqRetry)
	duration := time.Since(startTime)
	if err != nil {
		t.emitFailure(req, requirement, err, duration)
		return nil, err
	}

	settlement := helpers.ParseSettlement(respRetry.Header.Get(helpers.PaymentResponseHeader))
	if settlement != nil && settlement.Success && t.OnPaymentSuccess != nil {
		t.OnPaymentSuccess(x402.PaymentEvent{
			Type:        x402.PaymentEventSuccess,
			Timestamp:   time.Now(),
			URL:         req.URL.String(),
			Network:     requirement.Network,
			Scheme:      requirement.Scheme,
			Amount:      requirement.MaxAmountRequired,
			Asset:       requirement.Asset,
			Recipient:   requirement.PayTo,
			Transaction: settlement.Transaction,
			Payer:       settlement.Payer,
			Duration:    duration,
		})
	}

	return respRetry, nil
}

func (t *Transport) emitFailure(req *http.Request, requirement *x402.PaymentRequirement, err error, duration time.Duration) {
	if t.OnPaymentFailure == nil {
		return
	}
	event := x402.PaymentEvent{
		Type:      x402.PaymentEventFailure,
		Timestamp: time.Now(),
		URL:       req.URL.String(),
		Error:     err,
		Duration:  duration,
	}
	if requirement != nil {
		event.Network = requirement.Network
		event.Scheme = requirement.Scheme
		event.Amount = requirement.MaxAmountRequired
		event.Asset = requirement.Asset
		event.Recipient = requirement.PayTo
	}
	t.OnPaymentFailure(event)
}

// cloneRequest copies the request with a fresh body from GetBody, so each
// attempt sends the complete original payload.
func cloneRequest(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}
