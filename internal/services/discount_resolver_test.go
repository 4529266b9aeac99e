package services

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/lmdhub/api/internal/domain"
)

var testNow = time.Date(2024, 11, 15, 9, 0, 0, 0, time.UTC)

func testCatalog() DiscountCatalog {
	holidayEnd := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
	return domain.NewDiscountCatalog(
		[]Coupon{
			{Code: "FIRSTTIME", DiscountPercent: decimal.NewFromInt(20), MaxDiscountAmount: 5000, MinOrderAmount: 3000, UsageLimit: 1},
			{Code: "BUSINESS", DiscountPercent: decimal.NewFromInt(15), MaxDiscountAmount: 10000, MinOrderAmount: 5000, UsageLimit: 5},
			{Code: "HOLIDAY", DiscountPercent: decimal.NewFromInt(12), MaxDiscountAmount: 7500, MinOrderAmount: 4000, UsageLimit: 3, ValidUntil: &holidayEnd},
			{Code: "BIGCAP", DiscountPercent: decimal.NewFromInt(75), MaxDiscountAmount: 1500},
		},
		[]Referral{
			{Code: "SENDER", Kind: domain.ReferralKindSender, DiscountPercent: decimal.NewFromInt(10), RewardAmount: 500, MinOrderAmount: 2500, ExpirationDays: 90},
			{Code: "COURIER", Kind: domain.ReferralKindCourier, BonusAmount: 2500, RewardAmount: 1500, MinDeliveries: 5, ExpirationDays: 180},
			{Code: "SENDCOURIER", Kind: domain.ReferralKindSenderToCourier, DiscountPercent: decimal.NewFromInt(15), RewardAmount: 1000, MinDeliveries: 3, ExpirationDays: 120},
			{Code: "FLATTEN", Kind: domain.ReferralKindSender, BonusAmount: 1000},
		},
	)
}

func newTestResolver(now time.Time) *DiscountResolver {
	return NewDiscountResolver(DiscountResolverDeps{
		Catalog: testCatalog(),
		Clock:   func() time.Time { return now },
	})
}

func TestDiscountResolver_EndToEndBusinessCoupon(t *testing.T) {
	engine := newTestEngine(t)
	quote, err := engine.ComputeQuote(ShipmentRequest{
		ServiceLevel:    domain.ServiceLevelSameDay,
		Terrain:         domain.TerrainMountainous,
		AdditionalStops: []string{"stop"},
		ItemWeightLbs:   weight(60),
	}, DistanceResult{Miles: 18})
	if err != nil {
		t.Fatalf("ComputeQuote error: %v", err)
	}

	order, err := newTestResolver(testNow).ApplyToQuote(quote, DiscountCodes{Coupon: "business"})
	if err != nil {
		t.Fatalf("ApplyToQuote error: %v", err)
	}
	if order.AppliedCoupon == nil || order.AppliedCoupon.Code != "BUSINESS" || order.AppliedCoupon.Amount != 915 {
		t.Fatalf("unexpected coupon %+v", order.AppliedCoupon)
	}
	if order.DiscountTotal != 915 || order.FinalAmount != 5185 {
		t.Fatalf("expected discount 915 final 5185, got %+v", order)
	}
	if order.Quote == nil || order.Quote.TotalPrice != 6100 {
		t.Fatalf("expected quote to be carried on the order")
	}
}

func TestDiscountResolver_CouponCappedAtMax(t *testing.T) {
	order, err := newTestResolver(testNow).Apply(100000, DiscountCodes{Coupon: "FIRSTTIME"})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if order.AppliedCoupon.Amount != 5000 {
		t.Fatalf("expected capped discount 5000, got %d", order.AppliedCoupon.Amount)
	}
	if order.FinalAmount != 95000 {
		t.Fatalf("expected final 95000, got %d", order.FinalAmount)
	}
}

func TestDiscountResolver_CouponBelowMinimumIsIneligible(t *testing.T) {
	_, err := newTestResolver(testNow).Apply(2500, DiscountCodes{Coupon: "FIRSTTIME"})
	if !errors.Is(err, ErrIneligibleOrder) {
		t.Fatalf("expected ErrIneligibleOrder, got %v", err)
	}
	var discountErr *DiscountError
	if !errors.As(err, &discountErr) {
		t.Fatalf("expected *DiscountError, got %T", err)
	}
	if discountErr.Condition != ConditionMinOrderAmount || discountErr.Required != 3000 || discountErr.Actual != 2500 {
		t.Fatalf("unexpected error detail %+v", discountErr)
	}
	if errors.Is(err, ErrUnknownCode) {
		t.Fatalf("ineligible error must not match ErrUnknownCode")
	}
}

func TestDiscountResolver_CouponAtMinimumIsEligible(t *testing.T) {
	order, err := newTestResolver(testNow).Apply(3000, DiscountCodes{Coupon: " firsttime "})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if order.AppliedCoupon.Amount != 600 {
		t.Fatalf("expected 600, got %d", order.AppliedCoupon.Amount)
	}
}

func TestDiscountResolver_ExpiredCoupon(t *testing.T) {
	resolver := newTestResolver(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	_, err := resolver.Apply(10000, DiscountCodes{Coupon: "HOLIDAY"})
	var discountErr *DiscountError
	if !errors.As(err, &discountErr) || discountErr.Condition != ConditionExpired {
		t.Fatalf("expected expired condition, got %v", err)
	}
	if !errors.Is(err, ErrIneligibleOrder) {
		t.Fatalf("expected ErrIneligibleOrder, got %v", err)
	}

	order, err := newTestResolver(testNow).Apply(10000, DiscountCodes{Coupon: "HOLIDAY"})
	if err != nil {
		t.Fatalf("Apply before expiry error: %v", err)
	}
	if order.AppliedCoupon.Amount != 1200 {
		t.Fatalf("expected 1200, got %d", order.AppliedCoupon.Amount)
	}
}

func TestDiscountResolver_UnknownCodes(t *testing.T) {
	resolver := newTestResolver(testNow)
	cases := []DiscountCodes{
		{Coupon: "NOTAREALCODE"},
		{Referral: "NOTAREALCODE"},
		{Coupon: "SENDER"},
		{Referral: "BUSINESS"},
	}
	for _, codes := range cases {
		_, err := resolver.Apply(10000, codes)
		if !errors.Is(err, ErrUnknownCode) {
			t.Fatalf("%+v: expected ErrUnknownCode, got %v", codes, err)
		}
	}
}

func TestDiscountResolver_BlankCodesAreIgnored(t *testing.T) {
	order, err := newTestResolver(testNow).Apply(4200, DiscountCodes{Coupon: "  ", Referral: ""})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if order.AppliedCoupon != nil || order.AppliedReferral != nil {
		t.Fatalf("expected no discounts, got %+v", order)
	}
	if order.DiscountTotal != 0 || order.FinalAmount != 4200 {
		t.Fatalf("unexpected totals %+v", order)
	}
}

func TestDiscountResolver_Referrals(t *testing.T) {
	cases := []struct {
		name         string
		code         string
		base         int64
		amount       int64
		courierBonus int64
		reward       int64
	}{
		{name: "sender percent", code: "sender", base: 6100, amount: 610, reward: 500},
		{name: "sender to courier percent", code: "SENDCOURIER", base: 6100, amount: 915, reward: 1000},
		{name: "courier bonus is not a payer discount", code: "COURIER", base: 6100, amount: 0, courierBonus: 2500, reward: 1500},
		{name: "flat bonus", code: "FLATTEN", base: 6100, amount: 1000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order, err := newTestResolver(testNow).Apply(tc.base, DiscountCodes{Referral: tc.code})
			if err != nil {
				t.Fatalf("Apply error: %v", err)
			}
			applied := order.AppliedReferral
			if applied == nil {
				t.Fatalf("expected referral to be recorded")
			}
			if applied.Amount != tc.amount || applied.CourierBonus != tc.courierBonus || applied.RewardAmount != tc.reward {
				t.Fatalf("unexpected referral %+v", applied)
			}
			if order.DiscountTotal != tc.amount || order.FinalAmount != tc.base-tc.amount {
				t.Fatalf("unexpected totals %+v", order)
			}
		})
	}
}

func TestDiscountResolver_ReferralMinimumOrder(t *testing.T) {
	_, err := newTestResolver(testNow).Apply(2000, DiscountCodes{Referral: "SENDER"})
	var discountErr *DiscountError
	if !errors.As(err, &discountErr) || discountErr.Condition != ConditionReferralMinOrderAmount {
		t.Fatalf("expected referral minimum order failure, got %v", err)
	}
}

func TestDiscountResolver_StackingClampsAtZero(t *testing.T) {
	order, err := newTestResolver(testNow).Apply(2000, DiscountCodes{Coupon: "BIGCAP", Referral: "FLATTEN"})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if order.AppliedCoupon.Amount != 1500 || order.AppliedReferral.Amount != 1000 {
		t.Fatalf("unexpected components %+v %+v", order.AppliedCoupon, order.AppliedReferral)
	}
	if order.DiscountTotal != 2000 {
		t.Fatalf("expected discount clamped to base 2000, got %d", order.DiscountTotal)
	}
	if order.FinalAmount != 0 {
		t.Fatalf("expected final 0, got %d", order.FinalAmount)
	}
}

func TestDiscountResolver_StacksCouponAndReferral(t *testing.T) {
	order, err := newTestResolver(testNow).Apply(10000, DiscountCodes{Coupon: "BUSINESS", Referral: "SENDER"})
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if order.DiscountTotal != 2500 || order.FinalAmount != 7500 {
		t.Fatalf("expected 1500+1000 stacked, got %+v", order)
	}
}

func TestDiscountResolver_CouponFailureStopsResolution(t *testing.T) {
	order, err := newTestResolver(testNow).Apply(1000, DiscountCodes{Coupon: "FIRSTTIME", Referral: "FLATTEN"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if order != (PricedOrder{}) {
		t.Fatalf("expected zero order on failure, got %+v", order)
	}
}

func TestDiscountResolver_NegativeBase(t *testing.T) {
	if _, err := newTestResolver(testNow).Apply(-1, DiscountCodes{}); !errors.Is(err, ErrInvalidBaseAmount) {
		t.Fatalf("expected ErrInvalidBaseAmount, got %v", err)
	}
}

func TestApplyDiscount_FreeFunction(t *testing.T) {
	order, err := ApplyDiscount(100000, DiscountCodes{Coupon: "firsttime"}, testCatalog(), testNow)
	if err != nil {
		t.Fatalf("ApplyDiscount error: %v", err)
	}
	if order.AppliedCoupon.Amount != 5000 || order.FinalAmount != 95000 {
		t.Fatalf("unexpected order %+v", order)
	}
	if _, err := ApplyDiscount(10000, DiscountCodes{Coupon: "NOTAREALCODE"}, testCatalog(), testNow); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("expected ErrUnknownCode, got %v", err)
	}
}

func TestApplyDiscount_EvaluatesExpiryAtGivenTime(t *testing.T) {
	codes := DiscountCodes{Coupon: "HOLIDAY"}
	if _, err := ApplyDiscount(10000, codes, testCatalog(), testNow); err != nil {
		t.Fatalf("expected HOLIDAY to apply before year end, got %v", err)
	}

	afterEnd := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := ApplyDiscount(10000, codes, testCatalog(), afterEnd)
	var discountErr *DiscountError
	if !errors.As(err, &discountErr) || discountErr.Condition != ConditionExpired {
		t.Fatalf("expected expired condition, got %v", err)
	}
}
