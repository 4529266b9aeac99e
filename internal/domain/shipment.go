package domain

import (
	"fmt"
	"strings"
)

// ServiceLevel selects the delivery window and the base price of a shipment.
type ServiceLevel string

const (
	ServiceLevelEmergency ServiceLevel = "emergency"
	ServiceLevelUrgent    ServiceLevel = "urgent"
	ServiceLevelSameDay   ServiceLevel = "same-day"
	ServiceLevelNextDay   ServiceLevel = "next-day"
	ServiceLevelScheduled ServiceLevel = "scheduled"
)

// ServiceLevels lists every service level, fastest first.
var ServiceLevels = []ServiceLevel{
	ServiceLevelEmergency,
	ServiceLevelUrgent,
	ServiceLevelSameDay,
	ServiceLevelNextDay,
	ServiceLevelScheduled,
}

// Valid reports whether the level is a member of the enumeration.
func (l ServiceLevel) Valid() bool {
	for _, candidate := range ServiceLevels {
		if l == candidate {
			return true
		}
	}
	return false
}

// ParseServiceLevel accepts the canonical identifiers plus the spellings clients commonly send
// ("SameDay", "same_day", "NEXT DAY").
func ParseServiceLevel(raw string) (ServiceLevel, error) {
	normalized := normalizeEnum(raw)
	switch normalized {
	case "emergency":
		return ServiceLevelEmergency, nil
	case "urgent":
		return ServiceLevelUrgent, nil
	case "sameday":
		return ServiceLevelSameDay, nil
	case "nextday":
		return ServiceLevelNextDay, nil
	case "scheduled", "scheduledroute":
		return ServiceLevelScheduled, nil
	}
	return "", fmt.Errorf("unknown service level %q", raw)
}

// Terrain describes the route difficulty surcharge band.
type Terrain string

const (
	TerrainFlat        Terrain = "flat"
	TerrainHilly       Terrain = "hilly"
	TerrainMountainous Terrain = "mountainous"
	TerrainRural       Terrain = "rural"
)

// Terrains lists every terrain band.
var Terrains = []Terrain{
	TerrainFlat,
	TerrainHilly,
	TerrainMountainous,
	TerrainRural,
}

// Valid reports whether the terrain is a member of the enumeration.
func (t Terrain) Valid() bool {
	for _, candidate := range Terrains {
		if t == candidate {
			return true
		}
	}
	return false
}

// ParseTerrain normalises case and whitespace before matching.
func ParseTerrain(raw string) (Terrain, error) {
	normalized := Terrain(normalizeEnum(raw))
	if normalized.Valid() {
		return normalized, nil
	}
	return "", fmt.Errorf("unknown terrain %q", raw)
}

func normalizeEnum(raw string) string {
	replacer := strings.NewReplacer("-", "", "_", "", " ", "")
	return replacer.Replace(strings.ToLower(strings.TrimSpace(raw)))
}

// ShipmentRequest captures the caller supplied parameters of a delivery.
// Pickup, Dropoff and AdditionalStops are opaque address strings; only their count matters for
// pricing.
type ShipmentRequest struct {
	Pickup          string
	Dropoff         string
	ServiceLevel    ServiceLevel
	AdditionalStops []string
	Terrain         Terrain
	ItemWeightLbs   *float64
}

// DistanceResult is the road distance between pickup and dropoff as reported by a distance
// provider.
type DistanceResult struct {
	Miles           float64
	DurationMinutes float64
}

// Quote is the itemised price of a shipment. Amounts are in cents.
type Quote struct {
	BasePrice     int64
	MileageCharge int64
	TerrainFee    int64
	MultiStopFee  int64
	HeavyItemFee  int64
	RushFee       int64
	TotalPrice    int64
}

// Components returns the fee lines in display order, omitting nothing.
func (q Quote) Components() []QuoteLine {
	return []QuoteLine{
		{Name: "base_price", Amount: q.BasePrice},
		{Name: "mileage_charge", Amount: q.MileageCharge},
		{Name: "terrain_fee", Amount: q.TerrainFee},
		{Name: "multi_stop_fee", Amount: q.MultiStopFee},
		{Name: "heavy_item_fee", Amount: q.HeavyItemFee},
		{Name: "rush_fee", Amount: q.RushFee},
	}
}

// QuoteLine is a single named fee of a quote.
type QuoteLine struct {
	Name   string
	Amount int64
}
