package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/lmdhub/api/internal/domain"
	"github.com/lmdhub/api/internal/payments"
	"github.com/lmdhub/api/internal/platform/textutil"
)

// PaymentStatusNotRequired marks checkouts whose discounts cover the whole order.
const PaymentStatusNotRequired = "not_required"

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are not configured.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the payment processor could not create an intent.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrDiscountsDisabled is returned when codes are supplied while discounts are switched off.
	ErrDiscountsDisabled = errors.New("checkout: discount codes are disabled")
	// ErrPaymentIntentNotFound is returned when the processor does not know the intent.
	ErrPaymentIntentNotFound = errors.New("checkout: payment intent not found")
	// ErrPaymentIntentNotCancelable is returned when the intent already completed or was canceled.
	ErrPaymentIntentNotCancelable = errors.New("checkout: payment intent can no longer be canceled")
)

// paymentIntentManager abstracts payments.Manager for easier testing.
type paymentIntentManager interface {
	CreateIntent(ctx context.Context, provider string, req payments.IntentRequest) (payments.Intent, error)
	FetchIntent(ctx context.Context, provider, id string) (payments.Intent, error)
	CancelIntent(ctx context.Context, provider, id string, reason payments.CancelReason) (payments.Intent, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Quotes           QuoteService
	Discounts        *DiscountResolver
	Payments         paymentIntentManager
	Currency         string
	DiscountsEnabled bool
	IDGenerator      func() string
	// NonceGenerator supplies the random tail of issued referral codes.
	NonceGenerator   func() string
	Clock            func() time.Time
	Logger           func(ctx context.Context, event string, fields map[string]any)
	Meter            metric.Meter
}

type checkoutService struct {
	quotes           QuoteService
	discounts        *DiscountResolver
	payments         paymentIntentManager
	currency         string
	discountsEnabled bool
	newID            func() string
	nonce            func() string
	now              func() time.Time
	logger           func(ctx context.Context, event string, fields map[string]any)
	rejected         metric.Int64Counter
	applied          metric.Int64Counter
}

// NewCheckoutService constructs the checkout flow over the quote service, the discount resolver
// and the payments manager.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Quotes == nil {
		return nil, errors.New("checkout service: quote service is required")
	}
	if deps.Discounts == nil {
		return nil, errors.New("checkout service: discount resolver is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	nonce := deps.NonceGenerator
	if nonce == nil {
		nonce = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	rejected, err := meter.Int64Counter("discounts.rejected", metric.WithDescription("Discount codes rejected at checkout"))
	if err != nil {
		return nil, fmt.Errorf("checkout service: register counter: %w", err)
	}
	applied, err := meter.Int64Counter("discounts.applied", metric.WithDescription("Discount codes applied at checkout"))
	if err != nil {
		return nil, fmt.Errorf("checkout service: register counter: %w", err)
	}

	return &checkoutService{
		quotes:           deps.Quotes,
		discounts:        deps.Discounts,
		payments:         deps.Payments,
		currency:         currency,
		discountsEnabled: deps.DiscountsEnabled,
		newID:            newID,
		nonce:            nonce,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		rejected: rejected,
		applied:  applied,
	}, nil
}

func (s *checkoutService) PriceOrder(ctx context.Context, cmd PriceOrderCommand) (PricedOrderResult, error) {
	if !s.discountsEnabled && !cmd.Codes.Empty() {
		return PricedOrderResult{}, ErrDiscountsDisabled
	}

	result := PricedOrderResult{Currency: s.currency}
	var (
		order PricedOrder
		err   error
	)
	if cmd.Shipment != nil {
		quoted, quoteErr := s.quotes.Quote(ctx, QuoteCommand{Shipment: *cmd.Shipment})
		if quoteErr != nil {
			return PricedOrderResult{}, quoteErr
		}
		result.QuoteID = quoted.ID
		result.Distance = &quoted.Distance
		result.Currency = quoted.Currency
		order, err = s.discounts.ApplyToQuote(quoted.Quote, cmd.Codes)
	} else {
		if cmd.BaseAmount <= 0 {
			return PricedOrderResult{}, fmt.Errorf("%w: a shipment or a positive base amount is required", ErrCheckoutInvalidInput)
		}
		order, err = s.discounts.Apply(cmd.BaseAmount, cmd.Codes)
	}
	if err != nil {
		var discountErr *DiscountError
		if errors.As(err, &discountErr) && discountErr.Currency == "" {
			discountErr.Currency = result.Currency
		}
		s.recordRejection(ctx, err)
		return PricedOrderResult{}, err
	}

	if order.AppliedCoupon != nil {
		s.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "coupon")))
	}
	if order.AppliedReferral != nil {
		s.applied.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(order.AppliedReferral.Kind))))
	}
	result.Order = order
	return result, nil
}

func (s *checkoutService) CreatePaymentIntent(ctx context.Context, cmd PaymentIntentCommand) (PaymentIntentResult, error) {
	if s.payments == nil {
		return PaymentIntentResult{}, ErrCheckoutUnavailable
	}
	priced, err := s.PriceOrder(ctx, cmd.PriceOrderCommand)
	if err != nil {
		return PaymentIntentResult{}, err
	}

	// Amounts are minor units of the priced currency.
	currency := priced.Currency
	if requested := strings.ToUpper(strings.TrimSpace(cmd.Currency)); requested != "" && requested != currency {
		return PaymentIntentResult{}, fmt.Errorf("%w: currency %s does not match the priced currency %s", ErrCheckoutInvalidInput, requested, currency)
	}
	result := PaymentIntentResult{
		Priced:   priced,
		Amount:   priced.Order.FinalAmount,
		Currency: currency,
	}
	if priced.Order.FinalAmount == 0 {
		result.Status = PaymentStatusNotRequired
		s.logger(ctx, "checkout.payment_not_required", map[string]any{
			"quoteId":       priced.QuoteID,
			"discountTotal": priced.Order.DiscountTotal,
		})
		return result, nil
	}

	idempotencyKey := strings.TrimSpace(cmd.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = s.newID()
	}
	req := payments.IntentRequest{
		Amount:         priced.Order.FinalAmount,
		Currency:       currency,
		Description:    intentDescription(cmd.PriceOrderCommand),
		ReceiptEmail:   strings.TrimSpace(cmd.CustomerEmail),
		Metadata:       intentMetadata(priced),
		IdempotencyKey: idempotencyKey,
	}
	intent, err := s.payments.CreateIntent(ctx, cmd.Provider, req)
	if err != nil {
		if errors.Is(err, payments.ErrUnsupportedProvider) || errors.Is(err, payments.ErrInvalidAmount) {
			return PaymentIntentResult{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
		}
		s.logger(ctx, "checkout.payment_intent_failed", map[string]any{
			"quoteId": priced.QuoteID,
			"amount":  req.Amount,
			"error":   err.Error(),
		})
		return PaymentIntentResult{}, fmt.Errorf("%w: %w", ErrCheckoutPaymentFailed, err)
	}

	result.Provider = intent.Provider
	result.IntentID = intent.ID
	result.ClientSecret = intent.ClientSecret
	result.Status = string(intent.Status)
	result.FeeEstimate = payments.EstimateProcessingFee(req.Amount, cmd.International)

	s.logger(ctx, "checkout.payment_intent_created", map[string]any{
		"quoteId":  priced.QuoteID,
		"intentId": intent.ID,
		"provider": intent.Provider,
		"amount":   req.Amount,
		"at":       s.now().Format(time.RFC3339),
	})
	return result, nil
}

func (s *checkoutService) GetPaymentIntent(ctx context.Context, provider, intentID string) (PaymentIntentStatus, error) {
	if s.payments == nil {
		return PaymentIntentStatus{}, ErrCheckoutUnavailable
	}
	intent, err := s.payments.FetchIntent(ctx, provider, intentID)
	if err != nil {
		return PaymentIntentStatus{}, s.intentError(ctx, "checkout.payment_intent_lookup_failed", intentID, err)
	}
	return newPaymentIntentStatus(intent), nil
}

func (s *checkoutService) CancelPaymentIntent(ctx context.Context, cmd CancelPaymentIntentCommand) (PaymentIntentStatus, error) {
	if s.payments == nil {
		return PaymentIntentStatus{}, ErrCheckoutUnavailable
	}
	reason, err := payments.ParseCancelReason(cmd.Reason)
	if err != nil {
		return PaymentIntentStatus{}, fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	}
	intent, err := s.payments.CancelIntent(ctx, cmd.Provider, cmd.IntentID, reason)
	if err != nil {
		return PaymentIntentStatus{}, s.intentError(ctx, "checkout.payment_intent_cancel_failed", cmd.IntentID, err)
	}
	s.logger(ctx, "checkout.payment_intent_canceled", map[string]any{
		"intentId": intent.ID,
		"provider": intent.Provider,
		"reason":   string(reason),
	})
	return newPaymentIntentStatus(intent), nil
}

func (s *checkoutService) intentError(ctx context.Context, event, intentID string, err error) error {
	switch {
	case errors.Is(err, payments.ErrUnsupportedProvider):
		return fmt.Errorf("%w: %w", ErrCheckoutInvalidInput, err)
	case errors.Is(err, payments.ErrIntentNotFound):
		return fmt.Errorf("%w: %w", ErrPaymentIntentNotFound, err)
	case errors.Is(err, payments.ErrIntentNotCancelable):
		return fmt.Errorf("%w: %w", ErrPaymentIntentNotCancelable, err)
	}
	s.logger(ctx, event, map[string]any{
		"intentId": intentID,
		"error":    err.Error(),
	})
	return fmt.Errorf("%w: %w", ErrCheckoutPaymentFailed, err)
}

func newPaymentIntentStatus(intent payments.Intent) PaymentIntentStatus {
	return PaymentIntentStatus{
		Provider:   intent.Provider,
		IntentID:   intent.ID,
		Status:     string(intent.Status),
		Amount:     intent.Amount,
		Currency:   intent.Currency,
		CreatedAt:  intent.CreatedAt,
		CapturedAt: intent.CapturedAt,
	}
}

func (s *checkoutService) LookupDiscount(_ context.Context, code string) (DiscountCode, error) {
	normalized := NormalizeDiscountCode(code)
	if normalized == "" {
		return DiscountCode{}, fmt.Errorf("%w: code is required", ErrCheckoutInvalidInput)
	}
	discount, ok := s.discounts.Catalog().Lookup(normalized)
	if !ok {
		return DiscountCode{}, &DiscountError{Kind: DiscountErrorUnknownCode, Field: "discount", Code: normalized}
	}
	return discount, nil
}

func (s *checkoutService) IssueReferralCode(ctx context.Context, cmd IssueReferralCommand) (IssuedReferral, error) {
	if !s.discountsEnabled {
		return IssuedReferral{}, ErrDiscountsDisabled
	}
	programCode := NormalizeDiscountCode(cmd.Program)
	if programCode == "" {
		return IssuedReferral{}, fmt.Errorf("%w: program is required", ErrCheckoutInvalidInput)
	}
	catalog := s.discounts.Catalog()
	if _, issued := catalog.ReferralIssuedAt(programCode); issued {
		return IssuedReferral{}, &DiscountError{Kind: DiscountErrorUnknownCode, Field: "referral", Code: programCode}
	}
	program, ok := catalog.LookupReferral(programCode)
	if !ok {
		return IssuedReferral{}, &DiscountError{Kind: DiscountErrorUnknownCode, Field: "referral", Code: programCode}
	}

	issuedAt := s.now().Truncate(time.Millisecond)
	code := domain.IssueReferralCode(program, cmd.UserID, issuedAt, s.nonce())
	if code == "" {
		return IssuedReferral{}, fmt.Errorf("%w: userId must contain letters or digits", ErrCheckoutInvalidInput)
	}
	result := IssuedReferral{
		Code:     code,
		Program:  program.Code,
		Kind:     program.Kind,
		IssuedAt: issuedAt,
	}
	if expires, ok := domain.ReferralExpiry(program, issuedAt); ok {
		result.ExpiresAt = &expires
	}
	s.logger(ctx, "checkout.referral_issued", map[string]any{
		"program": program.Code,
		"kind":    string(program.Kind),
	})
	return result, nil
}

func (s *checkoutService) recordRejection(ctx context.Context, err error) {
	var discountErr *DiscountError
	if !errors.As(err, &discountErr) {
		return
	}
	s.rejected.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(discountErr.Kind)),
		attribute.String("condition", discountErr.Condition),
	))
	s.logger(ctx, "checkout.discount_rejected", map[string]any{
		"code":      discountErr.Code,
		"field":     discountErr.Field,
		"kind":      string(discountErr.Kind),
		"condition": discountErr.Condition,
	})
}

func intentDescription(cmd PriceOrderCommand) string {
	if cmd.Shipment == nil {
		return "Delivery order"
	}
	return fmt.Sprintf("%s delivery", cmd.Shipment.ServiceLevel)
}

func intentMetadata(priced PricedOrderResult) map[string]string {
	values := map[string]string{
		"quote_id":       priced.QuoteID,
		"base_amount":    strconv.FormatInt(priced.Order.BaseAmount, 10),
		"discount_total": strconv.FormatInt(priced.Order.DiscountTotal, 10),
	}
	if coupon := priced.Order.AppliedCoupon; coupon != nil {
		values["coupon_code"] = coupon.Code
	}
	if referral := priced.Order.AppliedReferral; referral != nil {
		values["referral_code"] = referral.Code
		values["referral_kind"] = string(referral.Kind)
	}
	// Stripe rejects empty metadata values.
	for key, value := range values {
		if strings.TrimSpace(value) == "" {
			delete(values, key)
		}
	}
	return textutil.NormalizeStringMap(values)
}
