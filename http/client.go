package http

import (
	"fmt"
	"net/http"

	x402 "github.com/xgrain402/xgrain402-sdk"
	"github.com/xgrain402/xgrain402-sdk/http/internal/helpers"
)

// Client is an HTTP client that automatically pays for 402 responses. It
// wraps a standard http.Client with a payment-handling RoundTripper, so it
// drops into any code that takes an *http.Client.
type Client struct {
	*http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client) error

// NewClient creates a payment-enabled HTTP client. At least one builder must
// be configured via WithBuilder for payments to happen; without builders the
// client passes 402 responses through untouched.
func NewClient(opts ...ClientOption) (*Client, error) {
	client := &Client{
		Client: &http.Client{},
	}
	if client.Transport == nil {
		client.Transport = http.DefaultTransport
	}

	for _, opt := range opts {
		if err := opt(client); err != nil {
			return nil, err
		}
	}

	return client, nil
}

// WithHTTPClient sets a custom underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) error {
		c.Client = httpClient
		if c.Transport == nil {
			c.Transport = http.DefaultTransport
		}
		return nil
	}
}

// WithBuilder adds a payment builder to the client. Multiple builders can be
// added; the server's accepts order picks among them.
func WithBuilder(builder x402.Builder) ClientOption {
	return func(c *Client) error {
		if builder == nil {
			return fmt.Errorf("%w: nil builder", x402.ErrConfiguration)
		}
		getOrCreateTransport(c).Builders = append(getOrCreateTransport(c).Builders, builder)
		return nil
	}
}

// WithPaymentCallback sets a callback for a specific payment event type.
func WithPaymentCallback(eventType x402.PaymentEventType, callback x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		transport := getOrCreateTransport(c)

		switch eventType {
		case x402.PaymentEventAttempt:
			transport.OnPaymentAttempt = callback
		case x402.PaymentEventSuccess:
			transport.OnPaymentSuccess = callback
		case x402.PaymentEventFailure:
			transport.OnPaymentFailure = callback
		default:
			return fmt.Errorf("unknown payment event type: %s", eventType)
		}

		return nil
	}
}

// WithPaymentCallbacks sets all payment callbacks at once. Pass nil for any
// callback you don't want to set.
func WithPaymentCallbacks(onAttempt, onSuccess, onFailure x402.PaymentCallback) ClientOption {
	return func(c *Client) error {
		transport := getOrCreateTransport(c)

		if onAttempt != nil {
			transport.OnPaymentAttempt = onAttempt
		}
		if onSuccess != nil {
			transport.OnPaymentSuccess = onSuccess
		}
		if onFailure != nil {
			transport.OnPaymentFailure = onFailure
		}

		return nil
	}
}

// getOrCreateTransport gets the payment Transport, wrapping the current one
// if needed.
func getOrCreateTransport(c *Client) *Transport {
	transport, ok := c.Transport.(*Transport)
	if !ok {
		transport = &Transport{
			Base: c.Transport,
		}
		c.Transport = transport
	}
	return transport
}

// GetSettlement extracts settlement information from an HTTP response.
// Returns nil if no settlement header is present or if parsing fails.
func GetSettlement(resp *http.Response) *x402.SettleResponse {
	return helpers.ParseSettlement(resp.Header.Get(helpers.PaymentResponseHeader))
}
