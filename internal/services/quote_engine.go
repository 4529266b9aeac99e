package services

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ErrInvalidRequest signals structurally malformed shipment input such as an unknown service level,
// a negative weight or a negative distance.
var ErrInvalidRequest = errors.New("quote engine: invalid request")

// QuoteEngine prices shipments against an immutable pricing table. It holds no mutable state and
// is safe for concurrent use.
type QuoteEngine struct {
	table PricingTable
}

// NewQuoteEngine validates the table and keeps a private copy of it.
func NewQuoteEngine(table PricingTable) (*QuoteEngine, error) {
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("quote engine: invalid pricing table: %w", err)
	}
	return &QuoteEngine{table: table.Clone()}, nil
}

// Table returns a copy of the pricing table the engine was built with.
func (e *QuoteEngine) Table() PricingTable {
	return e.table.Clone()
}

// ComputeQuote prices the request for an already resolved distance.
func (e *QuoteEngine) ComputeQuote(req ShipmentRequest, distance DistanceResult) (Quote, error) {
	return ComputeQuote(req, distance, e.table)
}

// ComputeQuote is the table driven pricing function behind QuoteEngine. It performs no I/O and
// yields identical quotes for identical inputs.
func ComputeQuote(req ShipmentRequest, distance DistanceResult, table PricingTable) (Quote, error) {
	if err := validateShipment(req, distance); err != nil {
		return Quote{}, err
	}

	base, ok := table.BasePrices[req.ServiceLevel]
	if !ok {
		return Quote{}, fmt.Errorf("%w: service level %q has no base price", ErrInvalidRequest, req.ServiceLevel)
	}
	terrainFee, ok := table.TerrainFees[req.Terrain]
	if !ok {
		return Quote{}, fmt.Errorf("%w: terrain %q has no fee", ErrInvalidRequest, req.Terrain)
	}

	quote := Quote{
		BasePrice:     base,
		MileageCharge: mileageCharge(distance.Miles, table),
		TerrainFee:    terrainFee,
		MultiStopFee:  int64(len(req.AdditionalStops)) * table.PerStopFee,
	}
	if req.ItemWeightLbs != nil && decimal.NewFromFloat(*req.ItemWeightLbs).GreaterThan(table.HeavyItemThresholdLbs) {
		quote.HeavyItemFee = table.HeavyItemFee
	}
	if table.IsRush(req.ServiceLevel) {
		quote.RushFee = table.RushFee
	}
	quote.TotalPrice = quote.BasePrice +
		quote.MileageCharge +
		quote.TerrainFee +
		quote.MultiStopFee +
		quote.HeavyItemFee +
		quote.RushFee

	return quote, nil
}

// MaxRouteMiles caps the billable route length of a single delivery.
const MaxRouteMiles = 10000

func validateShipment(req ShipmentRequest, distance DistanceResult) error {
	if !req.ServiceLevel.Valid() {
		return fmt.Errorf("%w: unknown service level %q", ErrInvalidRequest, req.ServiceLevel)
	}
	if !req.Terrain.Valid() {
		return fmt.Errorf("%w: unknown terrain %q", ErrInvalidRequest, req.Terrain)
	}
	if req.ItemWeightLbs != nil && !isNonNegativeFinite(*req.ItemWeightLbs) {
		return fmt.Errorf("%w: item weight must be a non-negative number", ErrInvalidRequest)
	}
	if !isNonNegativeFinite(distance.Miles) {
		return fmt.Errorf("%w: distance must be a non-negative number of miles", ErrInvalidRequest)
	}
	if distance.Miles > MaxRouteMiles {
		return fmt.Errorf("%w: distance exceeds %d miles", ErrInvalidRequest, MaxRouteMiles)
	}
	if !isNonNegativeFinite(distance.DurationMinutes) {
		return fmt.Errorf("%w: duration must be a non-negative number of minutes", ErrInvalidRequest)
	}
	return nil
}

func isNonNegativeFinite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0) && value >= 0
}

// mileageCharge bills every mile past the free allowance, rounded half up to the cent once.
func mileageCharge(miles float64, table PricingTable) int64 {
	excess := decimal.NewFromFloat(miles).Sub(table.FreeMiles)
	if !excess.IsPositive() {
		return 0
	}
	return excess.Mul(decimal.NewFromInt(table.PerMileRate)).Round(0).IntPart()
}
