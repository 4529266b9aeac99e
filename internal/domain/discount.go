package domain

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// DiscountKind tags the variant held by a DiscountCode.
type DiscountKind string

const (
	DiscountKindCoupon   DiscountKind = "coupon"
	DiscountKindReferral DiscountKind = "referral"
)

// ReferralKind selects who benefits from a referral program.
type ReferralKind string

const (
	// ReferralKindSender discounts a new sender's order.
	ReferralKindSender ReferralKind = "sender_referral"
	// ReferralKindCourier credits a signup bonus to a referred courier; the order payer gets nothing.
	ReferralKindCourier ReferralKind = "courier_referral"
	// ReferralKindSenderToCourier discounts a sender who was referred by a courier.
	ReferralKindSenderToCourier ReferralKind = "sender_to_courier_referral"
)

// Valid reports whether the kind is known.
func (k ReferralKind) Valid() bool {
	switch k {
	case ReferralKindSender, ReferralKindCourier, ReferralKindSenderToCourier:
		return true
	}
	return false
}

// DiscountsPayer reports whether the referral reduces the amount the order payer owes.
func (k ReferralKind) DiscountsPayer() bool {
	return k == ReferralKindSender || k == ReferralKindSenderToCourier
}

// DiscountCode is a tagged union: exactly one of Coupon or Referral is set, matching Kind.
type DiscountCode struct {
	Kind     DiscountKind
	Coupon   *Coupon
	Referral *Referral
}

// Code returns the catalog code of whichever variant is populated.
func (d DiscountCode) Code() string {
	switch {
	case d.Coupon != nil:
		return d.Coupon.Code
	case d.Referral != nil:
		return d.Referral.Code
	}
	return ""
}

// Coupon is a percentage discount capped at MaxDiscountAmount.
// UsageLimit is declared but not enforced because no order history is kept.
type Coupon struct {
	Code              string
	Description       string
	DiscountPercent   decimal.Decimal
	MaxDiscountAmount int64
	MinOrderAmount    int64
	UsageLimit        int
	ValidUntil        *time.Time
}

// Referral is a referral program. Payer facing programs use either DiscountPercent or a flat
// BonusAmount; courier programs carry BonusAmount as the signup bonus credited to the courier.
type Referral struct {
	Code            string
	Kind            ReferralKind
	Description     string
	DiscountPercent decimal.Decimal
	BonusAmount     int64
	RewardAmount    int64
	MinOrderAmount  int64
	MinDeliveries   int
	ExpirationDays  int
}

// DiscountCatalog indexes the coupons and referral programs known to the system.
type DiscountCatalog struct {
	coupons   map[string]Coupon
	referrals map[string]Referral
}

// NewDiscountCatalog builds a catalog keyed by the upper-cased codes.
func NewDiscountCatalog(coupons []Coupon, referrals []Referral) DiscountCatalog {
	catalog := DiscountCatalog{
		coupons:   make(map[string]Coupon, len(coupons)),
		referrals: make(map[string]Referral, len(referrals)),
	}
	for _, coupon := range coupons {
		key := NormalizeDiscountCode(coupon.Code)
		if key == "" {
			continue
		}
		coupon.Code = key
		catalog.coupons[key] = coupon
	}
	for _, referral := range referrals {
		key := NormalizeDiscountCode(referral.Code)
		if key == "" {
			continue
		}
		referral.Code = key
		catalog.referrals[key] = referral
	}
	return catalog
}

// LookupCoupon finds a coupon by code, ignoring case and surrounding whitespace.
func (c DiscountCatalog) LookupCoupon(code string) (Coupon, bool) {
	coupon, ok := c.coupons[NormalizeDiscountCode(code)]
	return coupon, ok
}

// LookupReferral finds a referral program by code, ignoring case and surrounding whitespace.
// Codes issued with IssueReferralCode resolve to the program they were issued for.
func (c DiscountCatalog) LookupReferral(code string) (Referral, bool) {
	key := NormalizeDiscountCode(code)
	if referral, ok := c.referrals[key]; ok {
		return referral, true
	}
	referral, _, ok := c.issuedReferral(key)
	return referral, ok
}

// ReferralIssuedAt returns the issue time embedded in an issued referral code. Program codes
// carry none.
func (c DiscountCatalog) ReferralIssuedAt(code string) (time.Time, bool) {
	key := NormalizeDiscountCode(code)
	if _, ok := c.referrals[key]; ok {
		return time.Time{}, false
	}
	_, issuedAt, ok := c.issuedReferral(key)
	return issuedAt, ok
}

// issuedReferral matches the longest program code that prefixes key and is followed by a
// non-empty user segment, a stamp and a nonce.
func (c DiscountCatalog) issuedReferral(key string) (Referral, time.Time, bool) {
	var (
		best     Referral
		issuedAt time.Time
		found    bool
	)
	for prefix, referral := range c.referrals {
		if found && len(prefix) <= len(best.Code) {
			continue
		}
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok || len(rest) <= referralStampLen+referralNonceLen {
			continue
		}
		tail := rest[len(rest)-referralStampLen-referralNonceLen:]
		millis, err := strconv.ParseInt(strings.ToLower(tail[:referralStampLen]), 36, 64)
		if err != nil || !isAlphanumeric(tail[referralStampLen:]) {
			continue
		}
		best, issuedAt, found = referral, time.UnixMilli(millis).UTC(), true
	}
	return best, issuedAt, found
}

const (
	referralStampLen = 8
	referralNonceLen = 5
)

// IssueReferralCode builds the shareable code for one user of program: the program code, the
// user id reduced to letters and digits, the issue time as base36 milliseconds and a nonce.
// The result is upper-cased. It returns "" when userID or nonce has no usable characters.
func IssueReferralCode(program Referral, userID string, issuedAt time.Time, nonce string) string {
	user := alphanumericOnly(userID)
	nonce = alphanumericOnly(nonce)
	if user == "" || len(nonce) < referralNonceLen {
		return ""
	}
	stamp := strconv.FormatInt(issuedAt.UnixMilli(), 36)
	if len(stamp) < referralStampLen {
		stamp = strings.Repeat("0", referralStampLen-len(stamp)) + stamp
	}
	code := NormalizeDiscountCode(program.Code) + user + stamp + nonce[len(nonce)-referralNonceLen:]
	return strings.ToUpper(code)
}

// ReferralExpiry returns when a code issued at issuedAt stops applying. Programs without an
// expiration never expire.
func ReferralExpiry(program Referral, issuedAt time.Time) (time.Time, bool) {
	if program.ExpirationDays <= 0 {
		return time.Time{}, false
	}
	return issuedAt.AddDate(0, 0, program.ExpirationDays), true
}

func alphanumericOnly(value string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(value) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlphanumeric(value string) bool {
	return value != "" && alphanumericOnly(value) == strings.ToUpper(value)
}

// Lookup resolves a code against both coupons and referrals, coupons first.
func (c DiscountCatalog) Lookup(code string) (DiscountCode, bool) {
	if coupon, ok := c.LookupCoupon(code); ok {
		return DiscountCode{Kind: DiscountKindCoupon, Coupon: &coupon}, true
	}
	if referral, ok := c.LookupReferral(code); ok {
		return DiscountCode{Kind: DiscountKindReferral, Referral: &referral}, true
	}
	return DiscountCode{}, false
}

// Coupons returns the coupons in no particular order.
func (c DiscountCatalog) Coupons() []Coupon {
	out := make([]Coupon, 0, len(c.coupons))
	for _, coupon := range c.coupons {
		out = append(out, coupon)
	}
	return out
}

// Referrals returns the referral programs in no particular order.
func (c DiscountCatalog) Referrals() []Referral {
	out := make([]Referral, 0, len(c.referrals))
	for _, referral := range c.referrals {
		out = append(out, referral)
	}
	return out
}

// NormalizeDiscountCode upper-cases and trims a code for lookup.
func NormalizeDiscountCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// AppliedCoupon records the coupon that contributed to a priced order.
type AppliedCoupon struct {
	Code   string
	Amount int64
}

// AppliedReferral records the referral program used for a priced order. Amount is the part
// deducted from the payer; CourierBonus and RewardAmount are credited elsewhere and never reduce
// FinalAmount.
type AppliedReferral struct {
	Code         string
	Kind         ReferralKind
	Amount       int64
	CourierBonus int64
	RewardAmount int64
}

// PricedOrder is the result of applying discount codes to a quote total.
type PricedOrder struct {
	Quote           *Quote
	BaseAmount      int64
	AppliedCoupon   *AppliedCoupon
	AppliedReferral *AppliedReferral
	DiscountTotal   int64
	FinalAmount     int64
}
