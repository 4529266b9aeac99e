package services

import (
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/lmdhub/api/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DiscountCodes are the optional codes a payer enters at checkout. Blank fields are ignored.
type DiscountCodes struct {
	Coupon   string
	Referral string
}

// Empty reports whether no code was supplied.
func (c DiscountCodes) Empty() bool {
	return NormalizeDiscountCode(c.Coupon) == "" && NormalizeDiscountCode(c.Referral) == ""
}

// DiscountResolverDeps bundles the catalog and the clock used for validity windows.
type DiscountResolverDeps struct {
	Catalog DiscountCatalog
	Clock   func() time.Time
}

// DiscountResolver turns a base amount plus optional codes into a priced order. It is stateless
// apart from the immutable catalog and is safe for concurrent use.
type DiscountResolver struct {
	catalog DiscountCatalog
	clock   func() time.Time
}

// NewDiscountResolver wires a resolver against the supplied catalog.
func NewDiscountResolver(deps DiscountResolverDeps) *DiscountResolver {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &DiscountResolver{
		catalog: deps.Catalog,
		clock:   func() time.Time { return clock().UTC() },
	}
}

// Catalog exposes the catalog used for lookups.
func (r *DiscountResolver) Catalog() DiscountCatalog {
	return r.catalog
}

// Apply resolves the codes against baseAmount (cents).
func (r *DiscountResolver) Apply(baseAmount int64, codes DiscountCodes) (PricedOrder, error) {
	return applyDiscount(baseAmount, codes, r.catalog, r.clock())
}

// ApplyToQuote resolves the codes against the quote total and keeps the quote on the result.
func (r *DiscountResolver) ApplyToQuote(quote Quote, codes DiscountCodes) (PricedOrder, error) {
	order, err := r.Apply(quote.TotalPrice, codes)
	if err != nil {
		return PricedOrder{}, err
	}
	order.Quote = &quote
	return order, nil
}

// ApplyDiscount resolves codes against a catalog, evaluating coupon validity windows at now.
func ApplyDiscount(baseAmount int64, codes DiscountCodes, catalog DiscountCatalog, now time.Time) (PricedOrder, error) {
	return applyDiscount(baseAmount, codes, catalog, now.UTC())
}

func applyDiscount(baseAmount int64, codes DiscountCodes, catalog DiscountCatalog, now time.Time) (PricedOrder, error) {
	if baseAmount < 0 {
		return PricedOrder{}, ErrInvalidBaseAmount
	}

	order := PricedOrder{BaseAmount: baseAmount}
	var payerDiscount int64

	if code := NormalizeDiscountCode(codes.Coupon); code != "" {
		coupon, ok := catalog.LookupCoupon(code)
		if !ok {
			return PricedOrder{}, &DiscountError{Kind: DiscountErrorUnknownCode, Field: "coupon", Code: code}
		}
		amount, err := couponDiscount(coupon, baseAmount, now)
		if err != nil {
			return PricedOrder{}, err
		}
		order.AppliedCoupon = &AppliedCoupon{Code: coupon.Code, Amount: amount}
		payerDiscount += amount
	}

	if code := NormalizeDiscountCode(codes.Referral); code != "" {
		referral, ok := catalog.LookupReferral(code)
		issuedAt, issued := catalog.ReferralIssuedAt(code)
		if !ok || (issued && issuedAt.After(now)) {
			return PricedOrder{}, &DiscountError{Kind: DiscountErrorUnknownCode, Field: "referral", Code: code}
		}
		if expires, ok := domain.ReferralExpiry(referral, issuedAt); issued && ok && now.After(expires) {
			return PricedOrder{}, &DiscountError{
				Kind:      DiscountErrorIneligibleOrder,
				Field:     "referral",
				Code:      code,
				Condition: ConditionExpired,
				Actual:    baseAmount,
			}
		}
		applied, err := referralDiscount(referral, baseAmount)
		if err != nil {
			return PricedOrder{}, err
		}
		applied.Code = code
		order.AppliedReferral = &applied
		payerDiscount += applied.Amount
	}

	if payerDiscount > baseAmount {
		payerDiscount = baseAmount
	}
	order.DiscountTotal = payerDiscount
	order.FinalAmount = baseAmount - payerDiscount
	return order, nil
}

func couponDiscount(coupon Coupon, baseAmount int64, now time.Time) (int64, error) {
	if coupon.ValidUntil != nil && now.After(*coupon.ValidUntil) {
		return 0, &DiscountError{
			Kind:      DiscountErrorIneligibleOrder,
			Field:     "coupon",
			Code:      coupon.Code,
			Condition: ConditionExpired,
			Actual:    baseAmount,
		}
	}
	if baseAmount < coupon.MinOrderAmount {
		return 0, &DiscountError{
			Kind:      DiscountErrorIneligibleOrder,
			Field:     "coupon",
			Code:      coupon.Code,
			Condition: ConditionMinOrderAmount,
			Required:  coupon.MinOrderAmount,
			Actual:    baseAmount,
		}
	}
	amount := percentOf(baseAmount, coupon.DiscountPercent)
	if coupon.MaxDiscountAmount > 0 && amount > coupon.MaxDiscountAmount {
		amount = coupon.MaxDiscountAmount
	}
	return amount, nil
}

// referralDiscount only fills Amount for programs that discount the current payer. Courier
// programs surface their signup bonus separately.
func referralDiscount(referral Referral, baseAmount int64) (AppliedReferral, error) {
	applied := AppliedReferral{
		Code:         referral.Code,
		Kind:         referral.Kind,
		RewardAmount: referral.RewardAmount,
	}
	if !referral.Kind.DiscountsPayer() {
		applied.CourierBonus = referral.BonusAmount
		return applied, nil
	}
	if baseAmount < referral.MinOrderAmount {
		return AppliedReferral{}, &DiscountError{
			Kind:      DiscountErrorIneligibleOrder,
			Field:     "referral",
			Code:      referral.Code,
			Condition: ConditionReferralMinOrderAmount,
			Required:  referral.MinOrderAmount,
			Actual:    baseAmount,
		}
	}
	if referral.DiscountPercent.IsPositive() {
		applied.Amount = percentOf(baseAmount, referral.DiscountPercent)
	} else {
		applied.Amount = referral.BonusAmount
	}
	return applied, nil
}

// percentOf returns amount × percent / 100 rounded half up to the cent.
func percentOf(amount int64, percent decimal.Decimal) int64 {
	if !percent.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).Round(0).IntPart()
}
