// Package catalog loads the pricing table and the discount catalog from YAML.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domain "github.com/lmdhub/api/internal/domain"
)

//go:embed default.yaml
var defaultDocument []byte

// ErrInvalidCatalog wraps every parse and validation failure.
var ErrInvalidCatalog = errors.New("catalog: invalid document")

// Catalog is the parsed configuration consumed by the quote engine and the discount resolver.
type Catalog struct {
	Pricing   domain.PricingTable
	Discounts domain.DiscountCatalog
}

type document struct {
	Currency  string          `yaml:"currency"`
	Pricing   *pricingSection `yaml:"pricing"`
	Coupons   []couponEntry   `yaml:"coupons"`
	Referrals []referralEntry `yaml:"referrals"`
}

type pricingSection struct {
	FreeMiles     string                       `yaml:"free_miles"`
	PerMileRate   string                       `yaml:"per_mile_rate"`
	PerStopFee    string                       `yaml:"per_stop_fee"`
	HeavyItem     heavyItemSection             `yaml:"heavy_item"`
	Rush          rushSection                  `yaml:"rush"`
	ServiceLevels map[string]serviceLevelEntry `yaml:"service_levels"`
	Terrain       map[string]string            `yaml:"terrain"`
}

type heavyItemSection struct {
	ThresholdLbs string `yaml:"threshold_lbs"`
	Fee          string `yaml:"fee"`
}

type rushSection struct {
	Fee    string   `yaml:"fee"`
	Levels []string `yaml:"levels"`
}

type serviceLevelEntry struct {
	Base   string `yaml:"base"`
	Window string `yaml:"window"`
}

type couponEntry struct {
	Code            string `yaml:"code"`
	Description     string `yaml:"description"`
	DiscountPercent string `yaml:"discount_percent"`
	MaxDiscount     string `yaml:"max_discount"`
	MinOrder        string `yaml:"min_order"`
	UsageLimit      int    `yaml:"usage_limit"`
	ValidUntil      string `yaml:"valid_until"`
}

type referralEntry struct {
	Code            string `yaml:"code"`
	Kind            string `yaml:"kind"`
	Description     string `yaml:"description"`
	DiscountPercent string `yaml:"discount_percent"`
	Bonus           string `yaml:"bonus"`
	Reward          string `yaml:"reward"`
	MinOrder        string `yaml:"min_order"`
	MinDeliveries   int    `yaml:"min_deliveries"`
	ExpirationDays  int    `yaml:"expiration_days"`
}

// Default returns the built-in catalog.
func Default() Catalog {
	cat, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default is invalid: %v", err))
	}
	return cat
}

// Load reads a catalog file. An empty path yields the built-in catalog.
func Load(path string) (Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a catalog document. A document without a pricing section keeps the built-in
// rate card; one without coupons and referrals keeps the built-in discounts.
func Parse(data []byte) (Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	table := domain.DefaultPricingTable()
	if doc.Pricing != nil {
		parsed, err := parsePricing(*doc.Pricing)
		if err != nil {
			return Catalog{}, err
		}
		table = parsed
	}
	if currency := strings.ToUpper(strings.TrimSpace(doc.Currency)); currency != "" {
		table.Currency = currency
	}
	if err := table.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	cat := Catalog{Pricing: table}
	if len(doc.Coupons) == 0 && len(doc.Referrals) == 0 {
		cat.Discounts = Default().Discounts
		return cat, nil
	}

	coupons := make([]domain.Coupon, 0, len(doc.Coupons))
	seen := make(map[string]struct{})
	for i, entry := range doc.Coupons {
		coupon, err := parseCoupon(entry)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: coupons[%d]: %w", ErrInvalidCatalog, i, err)
		}
		if _, dup := seen[coupon.Code]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate code %q", ErrInvalidCatalog, coupon.Code)
		}
		seen[coupon.Code] = struct{}{}
		coupons = append(coupons, coupon)
	}
	referrals := make([]domain.Referral, 0, len(doc.Referrals))
	for i, entry := range doc.Referrals {
		referral, err := parseReferral(entry)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: referrals[%d]: %w", ErrInvalidCatalog, i, err)
		}
		if _, dup := seen[referral.Code]; dup {
			return Catalog{}, fmt.Errorf("%w: duplicate code %q", ErrInvalidCatalog, referral.Code)
		}
		seen[referral.Code] = struct{}{}
		referrals = append(referrals, referral)
	}
	cat.Discounts = domain.NewDiscountCatalog(coupons, referrals)
	return cat, nil
}

func parsePricing(section pricingSection) (domain.PricingTable, error) {
	table := domain.PricingTable{
		BasePrices:     make(map[domain.ServiceLevel]int64, len(section.ServiceLevels)),
		ServiceWindows: make(map[domain.ServiceLevel]string, len(section.ServiceLevels)),
		TerrainFees:    make(map[domain.Terrain]int64, len(section.Terrain)),
		Currency:       "USD",
	}
	var errs []error
	amount := func(field, raw string) int64 {
		cents, err := domain.ParseAmount(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return 0
		}
		return cents
	}
	quantity := func(field, raw string) decimal.Decimal {
		value, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return decimal.Zero
		}
		return value
	}

	table.FreeMiles = quantity("free_miles", section.FreeMiles)
	table.PerMileRate = amount("per_mile_rate", section.PerMileRate)
	table.PerStopFee = amount("per_stop_fee", section.PerStopFee)
	table.HeavyItemThresholdLbs = quantity("heavy_item.threshold_lbs", section.HeavyItem.ThresholdLbs)
	table.HeavyItemFee = amount("heavy_item.fee", section.HeavyItem.Fee)
	table.RushFee = amount("rush.fee", section.Rush.Fee)

	for _, raw := range section.Rush.Levels {
		level, err := domain.ParseServiceLevel(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("rush.levels: %w", err))
			continue
		}
		table.RushLevels = append(table.RushLevels, level)
	}
	for raw, entry := range section.ServiceLevels {
		level, err := domain.ParseServiceLevel(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("service_levels: %w", err))
			continue
		}
		table.BasePrices[level] = amount("service_levels."+raw+".base", entry.Base)
		table.ServiceWindows[level] = strings.TrimSpace(entry.Window)
	}
	for raw, fee := range section.Terrain {
		terrain, err := domain.ParseTerrain(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("terrain: %w", err))
			continue
		}
		table.TerrainFees[terrain] = amount("terrain."+raw, fee)
	}

	if len(errs) > 0 {
		return domain.PricingTable{}, fmt.Errorf("%w: pricing: %w", ErrInvalidCatalog, errors.Join(errs...))
	}
	return table, nil
}

func parseCoupon(entry couponEntry) (domain.Coupon, error) {
	code := domain.NormalizeDiscountCode(entry.Code)
	if code == "" {
		return domain.Coupon{}, errors.New("code is required")
	}
	percent, err := parsePercent(entry.DiscountPercent)
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("%s: %w", code, err)
	}
	coupon := domain.Coupon{
		Code:            code,
		Description:     strings.TrimSpace(entry.Description),
		DiscountPercent: percent,
		UsageLimit:      entry.UsageLimit,
	}
	if coupon.MaxDiscountAmount, err = optionalAmount(entry.MaxDiscount); err != nil {
		return domain.Coupon{}, fmt.Errorf("%s: max_discount: %w", code, err)
	}
	if coupon.MinOrderAmount, err = optionalAmount(entry.MinOrder); err != nil {
		return domain.Coupon{}, fmt.Errorf("%s: min_order: %w", code, err)
	}
	if raw := strings.TrimSpace(entry.ValidUntil); raw != "" {
		day, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			return domain.Coupon{}, fmt.Errorf("%s: valid_until: %w", code, err)
		}
		// The whole final day stays valid.
		end := day.Add(24*time.Hour - time.Second)
		coupon.ValidUntil = &end
	}
	return coupon, nil
}

func parseReferral(entry referralEntry) (domain.Referral, error) {
	code := domain.NormalizeDiscountCode(entry.Code)
	if code == "" {
		return domain.Referral{}, errors.New("code is required")
	}
	kind := domain.ReferralKind(strings.ToLower(strings.TrimSpace(entry.Kind)))
	if !kind.Valid() {
		return domain.Referral{}, fmt.Errorf("%s: unknown referral kind %q", code, entry.Kind)
	}
	percent, err := parsePercent(entry.DiscountPercent)
	if err != nil {
		return domain.Referral{}, fmt.Errorf("%s: %w", code, err)
	}
	referral := domain.Referral{
		Code:            code,
		Kind:            kind,
		Description:     strings.TrimSpace(entry.Description),
		DiscountPercent: percent,
		MinDeliveries:   entry.MinDeliveries,
		ExpirationDays:  entry.ExpirationDays,
	}
	if referral.BonusAmount, err = optionalAmount(entry.Bonus); err != nil {
		return domain.Referral{}, fmt.Errorf("%s: bonus: %w", code, err)
	}
	if referral.RewardAmount, err = optionalAmount(entry.Reward); err != nil {
		return domain.Referral{}, fmt.Errorf("%s: reward: %w", code, err)
	}
	if referral.MinOrderAmount, err = optionalAmount(entry.MinOrder); err != nil {
		return domain.Referral{}, fmt.Errorf("%s: min_order: %w", code, err)
	}
	if kind.DiscountsPayer() && !referral.DiscountPercent.IsPositive() && referral.BonusAmount == 0 {
		return domain.Referral{}, fmt.Errorf("%s: payer referral needs discount_percent or bonus", code)
	}
	return referral, nil
}

func parsePercent(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("discount_percent: %w", err)
	}
	if value.IsNegative() || value.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("discount_percent %s out of range", value)
	}
	return value, nil
}

func optionalAmount(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	cents, err := domain.ParseAmount(raw)
	if err != nil {
		return 0, err
	}
	if cents < 0 {
		return 0, fmt.Errorf("amount %q is negative", raw)
	}
	return cents, nil
}
