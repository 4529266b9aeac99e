package services

import (
	"context"
	"time"

	domain "github.com/lmdhub/api/internal/domain"
)

type (
	ServiceLevel    = domain.ServiceLevel
	Terrain         = domain.Terrain
	ShipmentRequest = domain.ShipmentRequest
	DistanceResult  = domain.DistanceResult
	Quote           = domain.Quote
	PricingTable    = domain.PricingTable
	DiscountCatalog = domain.DiscountCatalog
	DiscountCode    = domain.DiscountCode
	Coupon          = domain.Coupon
	Referral        = domain.Referral
	ReferralKind    = domain.ReferralKind
	AppliedCoupon   = domain.AppliedCoupon
	AppliedReferral = domain.AppliedReferral
	PricedOrder     = domain.PricedOrder
)

// NormalizeDiscountCode upper-cases and trims a code for catalog lookups.
func NormalizeDiscountCode(code string) string {
	return domain.NormalizeDiscountCode(code)
}

// DistanceResolver resolves the road distance between two addresses. Implementations own their
// timeout and retry policy.
type DistanceResolver interface {
	ResolveDistance(ctx context.Context, origin, destination string) (DistanceResult, error)
}

// QuoteService resolves distance for a shipment and prices it.
type QuoteService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error)
	PricingTable() PricingTable
}

// CheckoutService applies discount codes to a quote and hands the payable amount to the payment
// processor.
type CheckoutService interface {
	PriceOrder(ctx context.Context, cmd PriceOrderCommand) (PricedOrderResult, error)
	CreatePaymentIntent(ctx context.Context, cmd PaymentIntentCommand) (PaymentIntentResult, error)
	GetPaymentIntent(ctx context.Context, provider, intentID string) (PaymentIntentStatus, error)
	CancelPaymentIntent(ctx context.Context, cmd CancelPaymentIntentCommand) (PaymentIntentStatus, error)
	LookupDiscount(ctx context.Context, code string) (DiscountCode, error)
	IssueReferralCode(ctx context.Context, cmd IssueReferralCommand) (IssuedReferral, error)
}

// QuoteCommand is the raw shipment request plus caller metadata.
type QuoteCommand struct {
	Shipment ShipmentRequest
}

// QuoteResult carries the priced quote and the distance it was priced with.
type QuoteResult struct {
	ID       string
	Shipment ShipmentRequest
	Distance DistanceResult
	Quote    Quote
	Currency string
}

// PriceOrderCommand prices either a shipment (resolved through the quote service) or a bare
// BaseAmount when Shipment is nil.
type PriceOrderCommand struct {
	Shipment   *ShipmentRequest
	BaseAmount int64
	Codes      DiscountCodes
}

// PricedOrderResult wraps the priced order with the quote metadata when a shipment was priced.
type PricedOrderResult struct {
	QuoteID  string
	Distance *DistanceResult
	Order    PricedOrder
	Currency string
}

// PaymentIntentCommand asks for a payment intent covering a priced order.
type PaymentIntentCommand struct {
	PriceOrderCommand
	Provider       string
	Currency       string
	CustomerEmail  string
	International  bool
	IdempotencyKey string
}

// PaymentIntentResult describes the intent created with the payment processor.
type PaymentIntentResult struct {
	Priced       PricedOrderResult
	Provider     string
	IntentID     string
	ClientSecret string
	Status       string
	Amount       int64
	Currency     string
	FeeEstimate  int64
}

// CancelPaymentIntentCommand abandons an intent before it is captured. Provider may be blank to
// use the default processor.
type CancelPaymentIntentCommand struct {
	Provider string
	IntentID string
	Reason   string
}

// PaymentIntentStatus is the processor's current view of an intent.
type PaymentIntentStatus struct {
	Provider   string
	IntentID   string
	Status     string
	Amount     int64
	Currency   string
	CreatedAt  time.Time
	CapturedAt *time.Time
}

// IssueReferralCommand asks for a shareable code tying a user to a referral program.
type IssueReferralCommand struct {
	Program string
	UserID  string
}

// IssuedReferral is a code minted for one user. ExpiresAt is nil for programs that never expire.
type IssuedReferral struct {
	Code      string
	Program   string
	Kind      ReferralKind
	IssuedAt  time.Time
	ExpiresAt *time.Time
}
