package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/lmdhub/api/internal/domain"
	"github.com/lmdhub/api/internal/platform/httpx"
	"github.com/lmdhub/api/internal/services"
)

const idempotencyHeader = "Idempotency-Key"

// CheckoutHandlers applies discount codes and opens payment intents.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout/price", h.priceOrder)
	r.Post("/checkout/payment-intents", h.createPaymentIntent)
	r.Get("/checkout/payment-intents/{intentID}", h.getPaymentIntent)
	r.Post("/checkout/payment-intents/{intentID}/cancel", h.cancelPaymentIntent)
}

type priceOrderRequest struct {
	Shipment     *shipmentPayload `json:"shipment"`
	BaseAmount   json.Number      `json:"baseAmount"`
	CouponCode   string           `json:"couponCode"`
	ReferralCode string           `json:"referralCode"`
}

type paymentIntentRequest struct {
	priceOrderRequest
	Provider       string `json:"provider"`
	Currency       string `json:"currency"`
	CustomerEmail  string `json:"customerEmail"`
	International  bool   `json:"international"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type appliedCouponPayload struct {
	Code string `json:"code"`
	moneyPayload
}

type appliedReferralPayload struct {
	Code         string        `json:"code"`
	Kind         string        `json:"kind"`
	Discount     moneyPayload  `json:"discount"`
	CourierBonus *moneyPayload `json:"courierBonus,omitempty"`
	Reward       *moneyPayload `json:"reward,omitempty"`
}

type pricedOrderResponse struct {
	QuoteID       string                  `json:"quoteId,omitempty"`
	Currency      string                  `json:"currency"`
	Distance      *distancePayload        `json:"distance,omitempty"`
	Quote         []quoteLinePayload      `json:"quote,omitempty"`
	BaseAmount    moneyPayload            `json:"baseAmount"`
	Coupon        *appliedCouponPayload   `json:"coupon,omitempty"`
	Referral      *appliedReferralPayload `json:"referral,omitempty"`
	DiscountTotal moneyPayload            `json:"discountTotal"`
	FinalAmount   moneyPayload            `json:"finalAmount"`
}

type paymentIntentResponse struct {
	IntentID     string              `json:"intentId,omitempty"`
	Provider     string              `json:"provider,omitempty"`
	Status       string              `json:"status"`
	ClientSecret string              `json:"clientSecret,omitempty"`
	Currency     string              `json:"currency"`
	Amount       moneyPayload        `json:"amount"`
	FeeEstimate  moneyPayload        `json:"feeEstimate"`
	Order        pricedOrderResponse `json:"order"`
}

type cancelIntentRequest struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

type intentStatusResponse struct {
	IntentID   string       `json:"intentId"`
	Provider   string       `json:"provider"`
	Status     string       `json:"status"`
	Currency   string       `json:"currency"`
	Amount     moneyPayload `json:"amount"`
	CreatedAt  string       `json:"createdAt,omitempty"`
	CapturedAt string       `json:"capturedAt,omitempty"`
}

func newIntentStatusResponse(status services.PaymentIntentStatus) intentStatusResponse {
	resp := intentStatusResponse{
		IntentID: status.IntentID,
		Provider: status.Provider,
		Status:   status.Status,
		Currency: status.Currency,
		Amount:   newMoneyPayload(status.Amount, status.Currency),
	}
	if !status.CreatedAt.IsZero() {
		resp.CreatedAt = status.CreatedAt.UTC().Format(time.RFC3339)
	}
	if status.CapturedAt != nil {
		resp.CapturedAt = status.CapturedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func (h *CheckoutHandlers) priceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req priceOrderRequest
	if err := httpx.DecodeJSON(r, &req, maxRequestBody); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	cmd, apiErr := req.toCommand()
	if apiErr != nil {
		httpx.WriteError(ctx, w, *apiErr)
		return
	}

	result, err := h.checkout.PriceOrder(ctx, cmd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newPricedOrderResponse(result))
}

func (h *CheckoutHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req paymentIntentRequest
	if err := httpx.DecodeJSON(r, &req, maxRequestBody); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	priceCmd, apiErr := req.toCommand()
	if apiErr != nil {
		httpx.WriteError(ctx, w, *apiErr)
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if idempotencyKey == "" {
		idempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	}

	result, err := h.checkout.CreatePaymentIntent(ctx, services.PaymentIntentCommand{
		PriceOrderCommand: priceCmd,
		Provider:          strings.TrimSpace(req.Provider),
		Currency:          strings.TrimSpace(req.Currency),
		CustomerEmail:     req.CustomerEmail,
		International:     req.International,
		IdempotencyKey:    idempotencyKey,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Status == services.PaymentStatusNotRequired {
		status = http.StatusOK
	}
	httpx.WriteJSON(w, status, paymentIntentResponse{
		IntentID:     result.IntentID,
		Provider:     result.Provider,
		Status:       result.Status,
		ClientSecret: result.ClientSecret,
		Currency:     result.Currency,
		Amount:       newMoneyPayload(result.Amount, result.Currency),
		FeeEstimate:  newMoneyPayload(result.FeeEstimate, result.Currency),
		Order:        newPricedOrderResponse(result.Priced),
	})
}

func (h *CheckoutHandlers) getPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	provider := strings.TrimSpace(r.URL.Query().Get("provider"))
	status, err := h.checkout.GetPaymentIntent(ctx, provider, chi.URLParam(r, "intentID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newIntentStatusResponse(status))
}

func (h *CheckoutHandlers) cancelPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	// The body is optional; an empty one cancels through the default provider.
	var req cancelIntentRequest
	if err := httpx.DecodeJSON(r, &req, maxRequestBody); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		writeDecodeError(w, r, err)
		return
	}
	provider := strings.TrimSpace(req.Provider)
	if provider == "" {
		provider = strings.TrimSpace(r.URL.Query().Get("provider"))
	}

	status, err := h.checkout.CancelPaymentIntent(ctx, services.CancelPaymentIntentCommand{
		Provider: provider,
		IntentID: chi.URLParam(r, "intentID"),
		Reason:   req.Reason,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newIntentStatusResponse(status))
}

// toCommand accepts either a shipment to quote or a bare base amount, never both.
func (req priceOrderRequest) toCommand() (services.PriceOrderCommand, *httpx.Error) {
	cmd := services.PriceOrderCommand{
		Codes: services.DiscountCodes{
			Coupon:   req.CouponCode,
			Referral: req.ReferralCode,
		},
	}
	rawAmount := strings.TrimSpace(req.BaseAmount.String())
	switch {
	case req.Shipment != nil && rawAmount != "":
		apiErr := httpx.NewError("invalid_request", "provide either shipment or baseAmount, not both", http.StatusBadRequest)
		return cmd, &apiErr
	case req.Shipment != nil:
		shipment, err := req.Shipment.toRequest()
		if err != nil {
			apiErr := httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
			return cmd, &apiErr
		}
		cmd.Shipment = &shipment
	case rawAmount != "":
		amount, err := domain.ParseAmount(rawAmount)
		if err != nil {
			apiErr := httpx.NewError("invalid_request", "baseAmount: "+err.Error(), http.StatusBadRequest)
			return cmd, &apiErr
		}
		cmd.BaseAmount = amount
	}
	return cmd, nil
}

func newPricedOrderResponse(result services.PricedOrderResult) pricedOrderResponse {
	currency := result.Currency
	order := result.Order
	resp := pricedOrderResponse{
		QuoteID:       result.QuoteID,
		Currency:      currency,
		BaseAmount:    newMoneyPayload(order.BaseAmount, currency),
		DiscountTotal: newMoneyPayload(order.DiscountTotal, currency),
		FinalAmount:   newMoneyPayload(order.FinalAmount, currency),
	}
	if result.Distance != nil {
		resp.Distance = &distancePayload{
			Miles:           result.Distance.Miles,
			DurationMinutes: result.Distance.DurationMinutes,
		}
	}
	if order.Quote != nil {
		resp.Quote = quoteLines(*order.Quote, currency)
	}
	if coupon := order.AppliedCoupon; coupon != nil {
		resp.Coupon = &appliedCouponPayload{
			Code:         coupon.Code,
			moneyPayload: newMoneyPayload(coupon.Amount, currency),
		}
	}
	if referral := order.AppliedReferral; referral != nil {
		resp.Referral = &appliedReferralPayload{
			Code:         referral.Code,
			Kind:         string(referral.Kind),
			Discount:     newMoneyPayload(referral.Amount, currency),
			CourierBonus: optionalMoney(referral.CourierBonus, currency),
			Reward:       optionalMoney(referral.RewardAmount, currency),
		}
	}
	return resp
}
