package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/lmdhub/api/internal/services"
)

type stubQuoteService struct {
	quoteFunc func(ctx context.Context, cmd services.QuoteCommand) (services.QuoteResult, error)
	table     services.PricingTable
}

func (s *stubQuoteService) Quote(ctx context.Context, cmd services.QuoteCommand) (services.QuoteResult, error) {
	if s.quoteFunc != nil {
		return s.quoteFunc(ctx, cmd)
	}
	return services.QuoteResult{}, nil
}

func (s *stubQuoteService) PricingTable() services.PricingTable {
	return s.table
}

type stubCheckoutService struct {
	priceFunc  func(ctx context.Context, cmd services.PriceOrderCommand) (services.PricedOrderResult, error)
	intentFunc func(ctx context.Context, cmd services.PaymentIntentCommand) (services.PaymentIntentResult, error)
	lookupFunc func(ctx context.Context, code string) (services.DiscountCode, error)
	getFunc    func(ctx context.Context, provider, intentID string) (services.PaymentIntentStatus, error)
	cancelFunc func(ctx context.Context, cmd services.CancelPaymentIntentCommand) (services.PaymentIntentStatus, error)
	issueFunc  func(ctx context.Context, cmd services.IssueReferralCommand) (services.IssuedReferral, error)
}

func (s *stubCheckoutService) PriceOrder(ctx context.Context, cmd services.PriceOrderCommand) (services.PricedOrderResult, error) {
	if s.priceFunc != nil {
		return s.priceFunc(ctx, cmd)
	}
	return services.PricedOrderResult{}, nil
}

func (s *stubCheckoutService) CreatePaymentIntent(ctx context.Context, cmd services.PaymentIntentCommand) (services.PaymentIntentResult, error) {
	if s.intentFunc != nil {
		return s.intentFunc(ctx, cmd)
	}
	return services.PaymentIntentResult{}, nil
}

func (s *stubCheckoutService) LookupDiscount(ctx context.Context, code string) (services.DiscountCode, error) {
	if s.lookupFunc != nil {
		return s.lookupFunc(ctx, code)
	}
	return services.DiscountCode{}, nil
}

func (s *stubCheckoutService) GetPaymentIntent(ctx context.Context, provider, intentID string) (services.PaymentIntentStatus, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, provider, intentID)
	}
	return services.PaymentIntentStatus{}, nil
}

func (s *stubCheckoutService) CancelPaymentIntent(ctx context.Context, cmd services.CancelPaymentIntentCommand) (services.PaymentIntentStatus, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return services.PaymentIntentStatus{}, nil
}

func (s *stubCheckoutService) IssueReferralCode(ctx context.Context, cmd services.IssueReferralCommand) (services.IssuedReferral, error) {
	if s.issueFunc != nil {
		return s.issueFunc(ctx, cmd)
	}
	return services.IssuedReferral{}, nil
}

func sampleQuote() services.Quote {
	return services.Quote{
		BasePrice:     1000,
		MileageCharge: 600,
		TerrainFee:    2500,
		MultiStopFee:  1200,
		HeavyItemFee:  800,
		TotalPrice:    6100,
	}
}

func serve(t *testing.T, register func(chi.Router), method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	register(router)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	return payload
}
