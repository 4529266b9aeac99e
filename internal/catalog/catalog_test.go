package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domain "github.com/lmdhub/api/internal/domain"
)

func TestDefaultMatchesRateCard(t *testing.T) {
	cat := Default()

	want := domain.DefaultPricingTable()
	got := cat.Pricing
	for _, level := range domain.ServiceLevels {
		if got.BasePrices[level] != want.BasePrices[level] {
			t.Fatalf("%s: expected base %d got %d", level, want.BasePrices[level], got.BasePrices[level])
		}
		if got.ServiceWindows[level] != want.ServiceWindows[level] {
			t.Fatalf("%s: expected window %q got %q", level, want.ServiceWindows[level], got.ServiceWindows[level])
		}
	}
	for _, terrain := range domain.Terrains {
		if got.TerrainFees[terrain] != want.TerrainFees[terrain] {
			t.Fatalf("%s: expected fee %d got %d", terrain, want.TerrainFees[terrain], got.TerrainFees[terrain])
		}
	}
	if got.PerMileRate != 75 || !got.FreeMiles.Equal(want.FreeMiles) {
		t.Fatalf("unexpected mileage settings %d / %s", got.PerMileRate, got.FreeMiles)
	}
	if got.PerStopFee != 1200 || got.HeavyItemFee != 800 || got.RushFee != 1000 {
		t.Fatalf("unexpected surcharges %+v", got)
	}
	if !got.IsRush(domain.ServiceLevelEmergency) || !got.IsRush(domain.ServiceLevelUrgent) || got.IsRush(domain.ServiceLevelSameDay) {
		t.Fatalf("unexpected rush levels %v", got.RushLevels)
	}
	if got.Currency != "USD" {
		t.Fatalf("expected USD, got %q", got.Currency)
	}
}

func TestDefaultDiscounts(t *testing.T) {
	discounts := Default().Discounts

	business, ok := discounts.LookupCoupon("business")
	if !ok {
		t.Fatalf("expected BUSINESS coupon")
	}
	if business.MaxDiscountAmount != 10000 || business.MinOrderAmount != 5000 || business.UsageLimit != 5 {
		t.Fatalf("unexpected BUSINESS coupon %+v", business)
	}
	if business.DiscountPercent.String() != "15" {
		t.Fatalf("expected 15 percent, got %s", business.DiscountPercent)
	}

	holiday, ok := discounts.LookupCoupon("HOLIDAY")
	if !ok || holiday.ValidUntil == nil {
		t.Fatalf("expected HOLIDAY with a validity window")
	}
	if want := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC); !holiday.ValidUntil.Equal(want) {
		t.Fatalf("expected %s got %s", want, holiday.ValidUntil)
	}

	courier, ok := discounts.LookupReferral("courier")
	if !ok || courier.Kind != domain.ReferralKindCourier || courier.BonusAmount != 2500 || courier.RewardAmount != 1500 {
		t.Fatalf("unexpected COURIER referral %+v", courier)
	}
	sender, ok := discounts.LookupReferral("SENDER")
	if !ok || sender.MinOrderAmount != 2500 || sender.ExpirationDays != 90 {
		t.Fatalf("unexpected SENDER referral %+v", sender)
	}
	if _, ok := discounts.LookupReferral("SENDCOURIER"); !ok {
		t.Fatalf("expected SENDCOURIER referral")
	}
	if len(discounts.Coupons()) != 4 || len(discounts.Referrals()) != 3 {
		t.Fatalf("unexpected catalog size %d/%d", len(discounts.Coupons()), len(discounts.Referrals()))
	}
}

func TestParseOverridesDiscountsOnly(t *testing.T) {
	cat, err := Parse([]byte(`
coupons:
  - code: spring
    discount_percent: "5%"
    max_discount: "10"
`))
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cat.Pricing.BasePrices[domain.ServiceLevelEmergency] != 2500 {
		t.Fatalf("expected default pricing to be kept")
	}
	spring, ok := cat.Discounts.LookupCoupon("SPRING")
	if !ok || spring.MaxDiscountAmount != 1000 || spring.DiscountPercent.String() != "5" {
		t.Fatalf("unexpected coupon %+v", spring)
	}
	if _, ok := cat.Discounts.LookupCoupon("BUSINESS"); ok {
		t.Fatalf("expected supplied discounts to replace the defaults")
	}
}

func TestParseRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"bad yaml":         "coupons: [",
		"unknown kind":     "referrals:\n  - code: X\n    kind: friend\n    bonus: \"5\"\n",
		"percent range":    "coupons:\n  - code: X\n    discount_percent: \"150\"\n",
		"duplicate":        "coupons:\n  - code: X\n  - code: x\n",
		"bad amount":       "coupons:\n  - code: X\n    min_order: abc\n",
		"missing terrain":  "pricing:\n  free_miles: \"10\"\n  per_mile_rate: \"0.75\"\n  per_stop_fee: \"12\"\n  heavy_item: {threshold_lbs: \"50\", fee: \"8\"}\n  rush: {fee: \"10\"}\n  service_levels:\n    emergency: {base: \"25\"}\n    urgent: {base: \"15\"}\n    same-day: {base: \"10\"}\n    next-day: {base: \"8\"}\n    scheduled: {base: \"6\"}\n  terrain:\n    flat: \"0\"\n",
		"payer no benefit": "referrals:\n  - code: X\n    kind: sender_referral\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); !errors.Is(err, ErrInvalidCatalog) {
				t.Fatalf("expected ErrInvalidCatalog, got %v", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("Load default error: %v", err)
	}
	if _, ok := cat.Discounts.LookupCoupon("VOLUME"); !ok {
		t.Fatalf("expected default catalog")
	}

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	doc := "currency: usd\nreferrals:\n  - code: pal\n    kind: sender_referral\n    bonus: \"7.50\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	cat, err = Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	pal, ok := cat.Discounts.LookupReferral("PAL")
	if !ok || pal.BonusAmount != 750 {
		t.Fatalf("unexpected referral %+v", pal)
	}
	if cat.Pricing.Currency != "USD" {
		t.Fatalf("expected currency to be upper-cased, got %q", cat.Pricing.Currency)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
