package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-playground/validator/v10"

	x402 "github.com/xgrain402/xgrain402-sdk"
	"github.com/xgrain402/xgrain402-sdk/http/internal/helpers"
	"github.com/xgrain402/xgrain402-sdk/validation"
)

// Config configures a server-side payment Processor.
type Config struct {
	// FacilitatorURL is the facilitator endpoint used for verification and
	// settlement.
	FacilitatorURL string `validate:"required,url"`

	// Network is the CAIP-2 network payments must settle on.
	Network string `validate:"required"`

	// PayTo is the address payments are sent to.
	PayTo string `validate:"required"`

	// Amount is the default price in display units (e.g. "0.10" USDC).
	// Routes can override it.
	Amount string `validate:"required"`

	// Asset overrides the network's default payment token. Decimals are
	// taken from the chain table, or from AssetDecimals when set.
	Asset string

	// AssetDecimals is the decimal count for a custom Asset. Ignored when
	// Asset is empty.
	AssetDecimals int `validate:"gte=0"`

	// Description describes the protected resource in 402 responses.
	Description string

	// MimeType is the content type of the protected resource.
	MimeType string

	// MaxTimeoutSeconds is the payment validity window. Defaults to 300.
	MaxTimeoutSeconds int `validate:"gte=0"`

	// FeePayerOverride pins the sponsored-transfer fee payer instead of
	// discovering it from the facilitator. Required when the facilitator
	// does not advertise one for Network.
	FeePayerOverride string

	// FacilitatorAuthorization is a static Authorization header value for
	// facilitator requests.
	FacilitatorAuthorization string

	// FacilitatorAuthorizationProvider returns an Authorization header value
	// per facilitator request. Takes precedence over the static value.
	FacilitatorAuthorizationProvider AuthorizationProvider

	// FallbackFacilitatorURL is an optional backup facilitator, consulted
	// only when the primary cannot be reached.
	FallbackFacilitatorURL string `validate:"omitempty,url"`

	// FallbackFacilitatorAuthorization is a static Authorization header
	// value for the fallback facilitator.
	FallbackFacilitatorAuthorization string

	// Timeouts configures facilitator operation timeouts. Zero values use
	// DefaultTimeouts.
	Timeouts x402.TimeoutConfig

	// MaxRetries is forwarded to the facilitator client.
	MaxRetries int
}

// RouteConfig overrides processor defaults for a single route.
type RouteConfig struct {
	// Amount is the price in display units. Falls back to Config.Amount.
	Amount string

	// Resource is the URL of the protected resource. If empty, the
	// processor derives it from the incoming request.
	Resource string

	// Description overrides Config.Description.
	Description string

	// MimeType overrides Config.MimeType.
	MimeType string

	// MaxTimeoutSeconds overrides Config.MaxTimeoutSeconds when positive.
	MaxTimeoutSeconds int

	// OutputSchema documents the response shape of the resource.
	OutputSchema map[string]interface{}
}

const defaultMaxTimeoutSeconds = 300

// Processor mints payment requirements for a resource server and delegates
// verification and settlement to a facilitator. The verify-then-settle
// ordering is the caller's job; the bundled middleware enforces it.
type Processor struct {
	config      Config
	chain       x402.ChainConfig
	networkType x402.NetworkType
	facilitator *FacilitatorClient

	mu       sync.Mutex
	feePayer string
}

var configValidator = validator.New()

// NewProcessor validates the configuration and builds a Processor. The fee
// payer is resolved lazily on the first requirement; use ResolveFeePayer to
// fail at startup instead.
func NewProcessor(config Config) (*Processor, error) {
	if err := configValidator.Struct(config); err != nil {
		return nil, fmt.Errorf("%w: %v", x402.ErrConfiguration, err)
	}

	networkType, err := x402.ValidateNetwork(config.Network)
	if err != nil {
		return nil, err
	}
	chain, err := x402.GetChainConfig(config.Network)
	if err != nil {
		return nil, err
	}

	if config.MaxTimeoutSeconds == 0 {
		config.MaxTimeoutSeconds = defaultMaxTimeoutSeconds
	}

	timeouts := config.Timeouts
	if timeouts.VerifyTimeout == 0 {
		timeouts = x402.DefaultTimeouts
	}

	facilitator := &FacilitatorClient{
		BaseURL:               config.FacilitatorURL,
		Client:                &http.Client{Timeout: timeouts.RequestTimeout},
		Timeouts:              timeouts,
		MaxRetries:            config.MaxRetries,
		Authorization:         config.FacilitatorAuthorization,
		AuthorizationProvider: config.FacilitatorAuthorizationProvider,
	}
	if config.FallbackFacilitatorURL != "" {
		facilitator.Fallback = &FacilitatorClient{
			BaseURL:       config.FallbackFacilitatorURL,
			Client:        &http.Client{Timeout: timeouts.RequestTimeout},
			Timeouts:      timeouts,
			MaxRetries:    config.MaxRetries,
			Authorization: config.FallbackFacilitatorAuthorization,
		}
	}

	return &Processor{
		config:      config,
		chain:       chain,
		networkType: networkType,
		facilitator: facilitator,
	}, nil
}

// Facilitator exposes the underlying facilitator client, e.g. to install
// before/after hooks.
func (p *Processor) Facilitator() *FacilitatorClient {
	return p.facilitator
}

// ExtractPayment returns the encoded payment envelope from the request
// headers, or "" if none is present. Lookup is case-insensitive and takes
// the first value of a multi-valued header.
func (p *Processor) ExtractPayment(header http.Header) string {
	return header.Get(helpers.PaymentHeader)
}

// ResolveFeePayer resolves and caches the fee payer for sponsored-transfer
// networks. With no override configured and no fee payer advertised by the
// facilitator, it fails; there is no fallback address.
func (p *Processor) ResolveFeePayer(ctx context.Context) (string, error) {
	if p.networkType != x402.NetworkTypeSVM {
		return "", nil
	}
	if p.config.FeePayerOverride != "" {
		return p.config.FeePayerOverride, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.feePayer != "" {
		return p.feePayer, nil
	}

	feePayer, err := p.facilitator.DiscoverFeePayer(ctx, p.config.Network)
	if err != nil {
		return "", err
	}
	p.feePayer = feePayer
	return feePayer, nil
}

// CreateRequirement mints the payment requirement for one request attempt.
// Route settings override processor defaults. The price is converted from
// display units to atomic units using the asset's decimals. A resolvable
// resource URL is required.
func (p *Processor) CreateRequirement(ctx context.Context, route RouteConfig) (*x402.PaymentRequirement, error) {
	amount := route.Amount
	if amount == "" {
		amount = p.config.Amount
	}

	asset := p.config.Asset
	decimals := int(p.chain.Decimals)
	if asset == "" {
		asset = p.chain.DefaultAsset
	} else if p.config.AssetDecimals > 0 {
		decimals = p.config.AssetDecimals
	}

	atomic, err := x402.ToAtomic(amount, decimals)
	if err != nil {
		return nil, err
	}

	resource := route.Resource
	if resource == "" {
		return nil, x402.NewPaymentError(x402.ErrCodeValidation, "resource URL is required", x402.ErrValidation)
	}
	if _, err := url.ParseRequestURI(resource); err != nil {
		return nil, x402.NewPaymentError(x402.ErrCodeValidation, "invalid resource URL", x402.ErrValidation).
			WithDetails("resource", resource)
	}

	description := route.Description
	if description == "" {
		description = p.config.Description
	}
	mimeType := route.MimeType
	if mimeType == "" {
		mimeType = p.config.MimeType
	}
	maxTimeout := route.MaxTimeoutSeconds
	if maxTimeout <= 0 {
		maxTimeout = p.config.MaxTimeoutSeconds
	}

	requirement := &x402.PaymentRequirement{
		Scheme:            x402.SchemeExact,
		Network:           p.config.Network,
		MaxAmountRequired: atomic.String(),
		Asset:             asset,
		PayTo:             p.config.PayTo,
		Resource:          resource,
		Description:       description,
		MimeType:          mimeType,
		MaxTimeoutSeconds: maxTimeout,
		OutputSchema:      route.OutputSchema,
	}

	feePayer, err := p.ResolveFeePayer(ctx)
	if err != nil {
		return nil, err
	}
	if feePayer != "" {
		requirement.SetFeePayer(feePayer)
	}

	if err := validation.ValidateRequirement(*requirement); err != nil {
		return nil, err
	}

	return requirement, nil
}

// Build402 assembles the 402 response body for a requirement. Pure; no I/O.
func (p *Processor) Build402(requirement *x402.PaymentRequirement, errMsg string) *x402.PaymentRequiredResponse {
	return &x402.PaymentRequiredResponse{
		X402Version: x402.X402Version,
		Accepts:     []x402.PaymentRequirement{*requirement},
		Error:       errMsg,
	}
}

// DecodePayment decodes and version-checks an extracted payment header
// value.
func (p *Processor) DecodePayment(headerValue string) (*x402.PaymentPayload, error) {
	return helpers.DecodePaymentValue(headerValue)
}

// VerifyPayment checks a payment against a requirement via the facilitator.
// Always returns a definite response; facilitator trouble reads as invalid.
func (p *Processor) VerifyPayment(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) *x402.VerifyResponse {
	return p.facilitator.Verify(ctx, *payment, *requirement)
}

// SettlePayment executes a verified payment via the facilitator. Always
// returns a definite response; facilitator trouble reads as failed.
func (p *Processor) SettlePayment(ctx context.Context, payment *x402.PaymentPayload, requirement *x402.PaymentRequirement) *x402.SettleResponse {
	return p.facilitator.Settle(ctx, *payment, *requirement)
}
