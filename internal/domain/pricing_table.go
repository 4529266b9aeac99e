package domain

import (
	"errors"
	"fmt"
	"maps"

	"github.com/shopspring/decimal"
)

// PricingTable holds every constant the quote engine prices with. Money amounts are cents.
type PricingTable struct {
	Currency              string
	BasePrices            map[ServiceLevel]int64
	ServiceWindows        map[ServiceLevel]string
	FreeMiles             decimal.Decimal
	PerMileRate           int64
	TerrainFees           map[Terrain]int64
	PerStopFee            int64
	HeavyItemThresholdLbs decimal.Decimal
	HeavyItemFee          int64
	RushFee               int64
	RushLevels            []ServiceLevel
}

// DefaultPricingTable returns the canonical rate card.
func DefaultPricingTable() PricingTable {
	return PricingTable{
		Currency: "USD",
		BasePrices: map[ServiceLevel]int64{
			ServiceLevelEmergency: 2500,
			ServiceLevelUrgent:    1500,
			ServiceLevelSameDay:   1000,
			ServiceLevelNextDay:   800,
			ServiceLevelScheduled: 600,
		},
		ServiceWindows: map[ServiceLevel]string{
			ServiceLevelEmergency: "1 hour",
			ServiceLevelUrgent:    "2-4 hours",
			ServiceLevelSameDay:   "4-8 hours",
			ServiceLevelNextDay:   "24 hours",
			ServiceLevelScheduled: "Custom timing",
		},
		FreeMiles:   decimal.NewFromInt(10),
		PerMileRate: 75,
		TerrainFees: map[Terrain]int64{
			TerrainFlat:        0,
			TerrainHilly:       1500,
			TerrainMountainous: 2500,
			TerrainRural:       2000,
		},
		PerStopFee:            1200,
		HeavyItemThresholdLbs: decimal.NewFromInt(50),
		HeavyItemFee:          800,
		RushFee:               1000,
		RushLevels:            []ServiceLevel{ServiceLevelEmergency, ServiceLevelUrgent},
	}
}

// IsRush reports whether the level carries the rush surcharge.
func (t PricingTable) IsRush(level ServiceLevel) bool {
	for _, candidate := range t.RushLevels {
		if candidate == level {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hold the table without sharing its maps.
func (t PricingTable) Clone() PricingTable {
	out := t
	out.BasePrices = maps.Clone(t.BasePrices)
	out.ServiceWindows = maps.Clone(t.ServiceWindows)
	out.TerrainFees = maps.Clone(t.TerrainFees)
	out.RushLevels = append([]ServiceLevel(nil), t.RushLevels...)
	return out
}

// Validate checks that every enumeration member is priced and no amount is negative.
func (t PricingTable) Validate() error {
	var errs []error
	for _, level := range ServiceLevels {
		price, ok := t.BasePrices[level]
		if !ok {
			errs = append(errs, fmt.Errorf("base price missing for %s", level))
			continue
		}
		if price < 0 {
			errs = append(errs, fmt.Errorf("base price for %s is negative", level))
		}
	}
	for _, terrain := range Terrains {
		fee, ok := t.TerrainFees[terrain]
		if !ok {
			errs = append(errs, fmt.Errorf("terrain fee missing for %s", terrain))
			continue
		}
		if fee < 0 {
			errs = append(errs, fmt.Errorf("terrain fee for %s is negative", terrain))
		}
	}
	for _, level := range t.RushLevels {
		if !level.Valid() {
			errs = append(errs, fmt.Errorf("rush level %q is not a service level", level))
		}
	}
	if t.FreeMiles.IsNegative() {
		errs = append(errs, errors.New("free miles is negative"))
	}
	if t.HeavyItemThresholdLbs.IsNegative() {
		errs = append(errs, errors.New("heavy item threshold is negative"))
	}
	if t.PerMileRate < 0 || t.PerStopFee < 0 || t.HeavyItemFee < 0 || t.RushFee < 0 {
		errs = append(errs, errors.New("surcharges must not be negative"))
	}
	return errors.Join(errs...)
}
