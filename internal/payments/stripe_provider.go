package payments

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// ProviderStripe is the registration key of the Stripe adapter.
const ProviderStripe = "stripe"

// StripeLogger receives structured events from the Stripe adapter.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

// stripeIntents is the slice of the PaymentIntents client the adapter calls.
type stripeIntents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider. AccountID routes calls to a connected
// account when set.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time

	intents stripeIntents
}

// StripeProvider creates and tracks delivery payments as Stripe Payment Intents.
type StripeProvider struct {
	intents stripeIntents
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider builds the adapter from an API key.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	intents := cfg.intents
	if intents == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(key, cfg.Backends).PaymentIntents
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		intents: intents,
		account: strings.TrimSpace(cfg.AccountID),
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// CreateIntent opens a Payment Intent with automatic payment methods for the order amount.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(upperOr(req.Currency, "USD"))),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: maps.Clone(req.Metadata),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	p.scope(ctx, &params.Params)

	pi, err := p.intents.New(params)
	if err != nil {
		return Intent{}, mapStripeError("create payment intent", err)
	}
	intent := p.toIntent(pi)
	intent.ClientSecret = pi.ClientSecret
	p.logger(ctx, "payments.stripe.intent_created", map[string]any{
		"intentId": intent.ID,
		"amount":   intent.Amount,
		"currency": intent.Currency,
	})
	return intent, nil
}

// FetchIntent reads a Payment Intent with its latest charge so refunds are visible.
func (p *StripeProvider) FetchIntent(ctx context.Context, id string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.AddExpand("latest_charge")
	p.scope(ctx, &params.Params)

	pi, err := p.intents.Get(id, params)
	if err != nil {
		return Intent{}, mapStripeError("fetch payment intent", err)
	}
	return p.toIntent(pi), nil
}

// CancelIntent cancels an uncaptured Payment Intent.
func (p *StripeProvider) CancelIntent(ctx context.Context, id string, reason CancelReason) (Intent, error) {
	params := &stripe.PaymentIntentCancelParams{}
	if reason != "" {
		params.CancellationReason = stripe.String(string(reason))
	}
	p.scope(ctx, &params.Params)

	pi, err := p.intents.Cancel(id, params)
	if err != nil {
		return Intent{}, mapStripeError("cancel payment intent", err)
	}
	intent := p.toIntent(pi)
	p.logger(ctx, "payments.stripe.intent_canceled", map[string]any{
		"intentId": intent.ID,
		"reason":   string(reason),
	})
	return intent, nil
}

func (p *StripeProvider) scope(ctx context.Context, params *stripe.Params) {
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
}

func (p *StripeProvider) toIntent(pi *stripe.PaymentIntent) Intent {
	if pi == nil {
		return Intent{}
	}
	intent := Intent{
		ID:        pi.ID,
		Provider:  ProviderStripe,
		Status:    StatusPending,
		Amount:    pi.Amount,
		Currency:  strings.ToUpper(string(pi.Currency)),
		CreatedAt: p.clock(),
	}
	if pi.Created != 0 {
		intent.CreatedAt = time.Unix(pi.Created, 0).UTC()
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusProcessing:
		intent.Status = StatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		intent.Status = StatusCanceled
	case stripe.PaymentIntentStatusSucceeded:
		intent.Status = StatusSucceeded
	}
	if charge := pi.LatestCharge; charge != nil && charge.Captured {
		captured := time.Unix(charge.Created, 0).UTC()
		intent.CapturedAt = &captured
		if charge.Refunded {
			intent.Status = StatusRefunded
		}
	}
	return intent
}

// mapStripeError turns Stripe's error codes into the package sentinels and keeps the original
// error in the chain.
func mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeResourceMissing:
			return fmt.Errorf("stripe: %s: %w: %w", op, ErrIntentNotFound, err)
		case stripe.ErrorCodePaymentIntentUnexpectedState:
			return fmt.Errorf("stripe: %s: %w: %w", op, ErrIntentNotCancelable, err)
		}
	}
	return fmt.Errorf("stripe: %s: %w", op, err)
}
