package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lmdhub/api/internal/platform/httpx"
	"github.com/lmdhub/api/internal/services"
)

const defaultDiscountCurrency = "USD"

// DiscountHandlers exposes the public coupon and referral lookup.
type DiscountHandlers struct {
	checkout services.CheckoutService
	currency string
}

// NewDiscountHandlers constructs discount handlers. Amounts are displayed in currency.
func NewDiscountHandlers(checkout services.CheckoutService, currency string) *DiscountHandlers {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultDiscountCurrency
	}
	return &DiscountHandlers{checkout: checkout, currency: currency}
}

// Routes registers discount endpoints under the provided router.
func (h *DiscountHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/discounts/{code}", h.getDiscount)
	r.Post("/referrals", h.issueReferral)
}

type issueReferralRequest struct {
	Program string `json:"program"`
	UserID  string `json:"userId"`
}

type issuedReferralResponse struct {
	Code      string `json:"code"`
	Program   string `json:"program"`
	Kind      string `json:"referralKind"`
	IssuedAt  string `json:"issuedAt"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type discountResponse struct {
	Code            string        `json:"code"`
	Kind            string        `json:"kind"`
	Description     string        `json:"description,omitempty"`
	DiscountPercent string        `json:"discountPercent,omitempty"`
	MaxDiscount     *moneyPayload `json:"maxDiscount,omitempty"`
	MinOrder        *moneyPayload `json:"minOrder,omitempty"`
	ValidUntil      string        `json:"validUntil,omitempty"`
	ReferralKind    string        `json:"referralKind,omitempty"`
	Bonus           *moneyPayload `json:"bonus,omitempty"`
	Reward          *moneyPayload `json:"reward,omitempty"`
	MinDeliveries   int           `json:"minDeliveries,omitempty"`
	ExpirationDays  int           `json:"expirationDays,omitempty"`
}

func (h *DiscountHandlers) getDiscount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	code := strings.TrimSpace(chi.URLParam(r, "code"))
	if code == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "discount code is required", http.StatusBadRequest))
		return
	}

	discount, err := h.checkout.LookupDiscount(ctx, code)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.newDiscountResponse(discount))
}

func (h *DiscountHandlers) issueReferral(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req issueReferralRequest
	if err := httpx.DecodeJSON(r, &req, maxRequestBody); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Program) == "" || strings.TrimSpace(req.UserID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "program and userId are required", http.StatusBadRequest))
		return
	}

	issued, err := h.checkout.IssueReferralCode(ctx, services.IssueReferralCommand{
		Program: req.Program,
		UserID:  req.UserID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := issuedReferralResponse{
		Code:     issued.Code,
		Program:  issued.Program,
		Kind:     string(issued.Kind),
		IssuedAt: issued.IssuedAt.UTC().Format(time.RFC3339),
	}
	if issued.ExpiresAt != nil {
		resp.ExpiresAt = issued.ExpiresAt.UTC().Format(time.RFC3339)
	}
	httpx.WriteJSON(w, http.StatusCreated, resp)
}

func (h *DiscountHandlers) newDiscountResponse(discount services.DiscountCode) discountResponse {
	resp := discountResponse{
		Code: discount.Code(),
		Kind: string(discount.Kind),
	}
	if coupon := discount.Coupon; coupon != nil {
		resp.Description = coupon.Description
		if !coupon.DiscountPercent.IsZero() {
			resp.DiscountPercent = coupon.DiscountPercent.String()
		}
		resp.MaxDiscount = optionalMoney(coupon.MaxDiscountAmount, h.currency)
		resp.MinOrder = optionalMoney(coupon.MinOrderAmount, h.currency)
		if coupon.ValidUntil != nil {
			resp.ValidUntil = coupon.ValidUntil.UTC().Format(time.RFC3339)
		}
	}
	if referral := discount.Referral; referral != nil {
		resp.Description = referral.Description
		resp.ReferralKind = string(referral.Kind)
		if !referral.DiscountPercent.IsZero() {
			resp.DiscountPercent = referral.DiscountPercent.String()
		}
		resp.MinOrder = optionalMoney(referral.MinOrderAmount, h.currency)
		resp.Bonus = optionalMoney(referral.BonusAmount, h.currency)
		resp.Reward = optionalMoney(referral.RewardAmount, h.currency)
		resp.MinDeliveries = referral.MinDeliveries
		resp.ExpirationDays = referral.ExpirationDays
	}
	return resp
}
