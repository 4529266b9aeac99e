package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lmdhub/api/internal/platform/textutil"
)

const instrumentationName = "github.com/lmdhub/api/internal/services"

var (
	// ErrQuoteEngineMissing indicates the service was built without a quote engine.
	ErrQuoteEngineMissing = errors.New("quote service: quote engine is not configured")
	// ErrDistanceResolverMissing indicates the service was built without a distance resolver.
	ErrDistanceResolverMissing = errors.New("quote service: distance resolver is not configured")
	// ErrDistanceUnavailable wraps failures returned by the distance collaborator.
	ErrDistanceUnavailable = errors.New("quote service: distance unavailable")
	// ErrOutsideServiceArea is returned when the route is longer than the configured service radius.
	ErrOutsideServiceArea = errors.New("quote service: outside service area")
)

// QuoteServiceDeps bundles dependencies for the quote service.
type QuoteServiceDeps struct {
	Engine             *QuoteEngine
	Distance           DistanceResolver
	ServiceRadiusMiles float64
	IDGenerator        func() string
	Clock              func() time.Time
	Logger             func(context.Context, string, map[string]any)
	Meter              metric.Meter
	Tracer             trace.Tracer
}

type quoteService struct {
	engine   *QuoteEngine
	distance DistanceResolver
	radius   float64
	newID    func() string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
	tracer   trace.Tracer
	computed metric.Int64Counter
	rejected metric.Int64Counter
}

// NewQuoteService wires the quote flow: clean addresses, resolve distance, price.
func NewQuoteService(deps QuoteServiceDeps) (QuoteService, error) {
	if deps.Engine == nil {
		return nil, ErrQuoteEngineMissing
	}
	if deps.Distance == nil {
		return nil, ErrDistanceResolverMissing
	}
	if deps.ServiceRadiusMiles < 0 {
		return nil, fmt.Errorf("quote service: service radius must not be negative")
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(instrumentationName)
	}
	computed, err := meter.Int64Counter("quotes.computed", metric.WithDescription("Quotes priced successfully"))
	if err != nil {
		return nil, fmt.Errorf("quote service: register counter: %w", err)
	}
	rejected, err := meter.Int64Counter("quotes.rejected", metric.WithDescription("Quote requests rejected before pricing"))
	if err != nil {
		return nil, fmt.Errorf("quote service: register counter: %w", err)
	}

	return &quoteService{
		engine:   deps.Engine,
		distance: deps.Distance,
		radius:   deps.ServiceRadiusMiles,
		newID:    newID,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
		tracer:   tracer,
		computed: computed,
		rejected: rejected,
	}, nil
}

func (s *quoteService) PricingTable() PricingTable {
	return s.engine.Table()
}

func (s *quoteService) Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error) {
	ctx, span := s.tracer.Start(ctx, "quote.compute")
	defer span.End()

	shipment := cleanShipment(cmd.Shipment)
	span.SetAttributes(
		attribute.String("quote.service_level", string(shipment.ServiceLevel)),
		attribute.String("quote.terrain", string(shipment.Terrain)),
		attribute.Int("quote.additional_stops", len(shipment.AdditionalStops)),
	)

	if err := s.validateAddresses(shipment); err != nil {
		return QuoteResult{}, s.reject(ctx, span, "invalid_request", err)
	}
	// Enum and weight checks run before the network call so bad input never reaches the provider.
	if err := validateShipment(shipment, DistanceResult{}); err != nil {
		return QuoteResult{}, s.reject(ctx, span, "invalid_request", err)
	}

	started := s.clock()
	distance, err := s.distance.ResolveDistance(ctx, shipment.Pickup, shipment.Dropoff)
	if err != nil {
		s.logger(ctx, "quote.distance_failed", map[string]any{
			"error":      err.Error(),
			"durationMs": s.clock().Sub(started).Milliseconds(),
		})
		return QuoteResult{}, s.reject(ctx, span, "distance_unavailable", fmt.Errorf("%w: %w", ErrDistanceUnavailable, err))
	}
	if s.radius > 0 && distance.Miles > s.radius {
		return QuoteResult{}, s.reject(ctx, span, "outside_service_area",
			fmt.Errorf("%w: %.1f miles exceeds the %.0f mile radius", ErrOutsideServiceArea, distance.Miles, s.radius))
	}

	quote, err := s.engine.ComputeQuote(shipment, distance)
	if err != nil {
		return QuoteResult{}, s.reject(ctx, span, "invalid_request", err)
	}

	result := QuoteResult{
		ID:       s.newID(),
		Shipment: shipment,
		Distance: distance,
		Quote:    quote,
		Currency: s.engine.table.Currency,
	}

	attrs := metric.WithAttributes(attribute.String("service_level", string(shipment.ServiceLevel)))
	s.computed.Add(ctx, 1, attrs)
	span.SetAttributes(
		attribute.String("quote.id", result.ID),
		attribute.Float64("quote.miles", distance.Miles),
		attribute.Int64("quote.total_cents", quote.TotalPrice),
	)
	s.logger(ctx, "quote.computed", map[string]any{
		"quoteId":      result.ID,
		"serviceLevel": string(shipment.ServiceLevel),
		"miles":        distance.Miles,
		"totalCents":   quote.TotalPrice,
	})
	return result, nil
}

func (s *quoteService) validateAddresses(shipment ShipmentRequest) error {
	var missing []string
	if shipment.Pickup == "" {
		missing = append(missing, "pickup")
	}
	if shipment.Dropoff == "" {
		missing = append(missing, "dropoff")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s address is required", ErrInvalidRequest, strings.Join(missing, " and "))
	}
	return nil
}

func (s *quoteService) reject(ctx context.Context, span trace.Span, reason string, err error) error {
	s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	s.logger(ctx, "quote.rejected", map[string]any{
		"reason": reason,
		"error":  err.Error(),
	})
	return err
}

// cleanShipment returns a sanitised copy; the caller's request is never modified.
func cleanShipment(in ShipmentRequest) ShipmentRequest {
	out := in
	out.Pickup = textutil.CleanAddress(in.Pickup)
	out.Dropoff = textutil.CleanAddress(in.Dropoff)
	out.AdditionalStops = textutil.CleanAddresses(in.AdditionalStops)
	if in.ItemWeightLbs != nil {
		weight := *in.ItemWeightLbs
		out.ItemWeightLbs = &weight
	}
	return out
}
