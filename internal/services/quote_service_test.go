package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/lmdhub/api/internal/domain"
)

type fakeDistanceResolver struct {
	result DistanceResult
	err    error
	calls  int
	origin string
	dest   string
}

func (f *fakeDistanceResolver) ResolveDistance(ctx context.Context, origin, destination string) (DistanceResult, error) {
	f.calls++
	f.origin = origin
	f.dest = destination
	return f.result, f.err
}

type recordedLog struct {
	event  string
	fields map[string]any
}

func newTestQuoteService(t *testing.T, distance DistanceResolver, radius float64, logs *[]recordedLog) QuoteService {
	t.Helper()
	svc, err := NewQuoteService(QuoteServiceDeps{
		Engine:             newTestEngine(t),
		Distance:           distance,
		ServiceRadiusMiles: radius,
		IDGenerator:        func() string { return "quote_1" },
		Logger: func(_ context.Context, event string, fields map[string]any) {
			if logs != nil {
				*logs = append(*logs, recordedLog{event: event, fields: fields})
			}
		},
	})
	if err != nil {
		t.Fatalf("NewQuoteService error: %v", err)
	}
	return svc
}

func TestQuoteService_ResolvesDistanceAndPrices(t *testing.T) {
	distance := &fakeDistanceResolver{result: DistanceResult{Miles: 18, DurationMinutes: 45}}
	var logs []recordedLog
	svc := newTestQuoteService(t, distance, 50, &logs)

	result, err := svc.Quote(context.Background(), QuoteCommand{Shipment: ShipmentRequest{
		Pickup:          "  <b>Salt Lake City</b>, UT ",
		Dropoff:         "Sandy, UT",
		ServiceLevel:    domain.ServiceLevelSameDay,
		AdditionalStops: []string{"West Jordan, UT", "  "},
		Terrain:         domain.TerrainMountainous,
		ItemWeightLbs:   weight(60),
	}})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}

	if distance.calls != 1 {
		t.Fatalf("expected one distance lookup, got %d", distance.calls)
	}
	if distance.origin != "Salt Lake City, UT" || distance.dest != "Sandy, UT" {
		t.Fatalf("expected cleaned addresses, got %q -> %q", distance.origin, distance.dest)
	}
	if result.ID != "quote_1" || result.Currency != "USD" {
		t.Fatalf("unexpected metadata %+v", result)
	}
	if result.Quote.TotalPrice != 6100 {
		t.Fatalf("expected total 6100, got %d", result.Quote.TotalPrice)
	}
	if len(result.Shipment.AdditionalStops) != 1 {
		t.Fatalf("expected blank stop to be dropped, got %v", result.Shipment.AdditionalStops)
	}
	if len(logs) == 0 || logs[len(logs)-1].event != "quote.computed" {
		t.Fatalf("expected quote.computed log, got %+v", logs)
	}
}

func TestQuoteService_ValidatesBeforeLookup(t *testing.T) {
	distance := &fakeDistanceResolver{}
	svc := newTestQuoteService(t, distance, 0, nil)

	cases := []ShipmentRequest{
		{Pickup: "", Dropoff: "Provo", ServiceLevel: domain.ServiceLevelUrgent, Terrain: domain.TerrainFlat},
		{Pickup: "Sandy", Dropoff: "Provo", ServiceLevel: "warp", Terrain: domain.TerrainFlat},
		{Pickup: "Sandy", Dropoff: "Provo", ServiceLevel: domain.ServiceLevelUrgent, Terrain: "lava"},
		{Pickup: "Sandy", Dropoff: "Provo", ServiceLevel: domain.ServiceLevelUrgent, Terrain: domain.TerrainFlat, ItemWeightLbs: weight(-2)},
	}
	for _, shipment := range cases {
		_, err := svc.Quote(context.Background(), QuoteCommand{Shipment: shipment})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%+v: expected ErrInvalidRequest, got %v", shipment, err)
		}
	}
	if distance.calls != 0 {
		t.Fatalf("expected no distance lookups for invalid input, got %d", distance.calls)
	}
}

func TestQuoteService_DistanceFailure(t *testing.T) {
	upstream := errors.New("maps timeout")
	svc := newTestQuoteService(t, &fakeDistanceResolver{err: upstream}, 0, nil)

	_, err := svc.Quote(context.Background(), QuoteCommand{Shipment: ShipmentRequest{
		Pickup: "Sandy", Dropoff: "Provo", ServiceLevel: domain.ServiceLevelNextDay, Terrain: domain.TerrainFlat,
	}})
	if !errors.Is(err, ErrDistanceUnavailable) || !errors.Is(err, upstream) {
		t.Fatalf("expected wrapped distance failure, got %v", err)
	}
}

func TestQuoteService_ServiceRadius(t *testing.T) {
	shipment := ShipmentRequest{Pickup: "Salt Lake City", Dropoff: "St. George", ServiceLevel: domain.ServiceLevelScheduled, Terrain: domain.TerrainRural}

	svc := newTestQuoteService(t, &fakeDistanceResolver{result: DistanceResult{Miles: 300}}, 50, nil)
	if _, err := svc.Quote(context.Background(), QuoteCommand{Shipment: shipment}); !errors.Is(err, ErrOutsideServiceArea) {
		t.Fatalf("expected ErrOutsideServiceArea, got %v", err)
	}

	unlimited := newTestQuoteService(t, &fakeDistanceResolver{result: DistanceResult{Miles: 300}}, 0, nil)
	result, err := unlimited.Quote(context.Background(), QuoteCommand{Shipment: shipment})
	if err != nil {
		t.Fatalf("expected radius 0 to disable the check, got %v", err)
	}
	if result.Quote.MileageCharge != 290*75 {
		t.Fatalf("unexpected mileage %d", result.Quote.MileageCharge)
	}
}

func TestQuoteService_NegativeDistanceFromProvider(t *testing.T) {
	svc := newTestQuoteService(t, &fakeDistanceResolver{result: DistanceResult{Miles: -4}}, 0, nil)
	_, err := svc.Quote(context.Background(), QuoteCommand{Shipment: ShipmentRequest{
		Pickup: "a", Dropoff: "b", ServiceLevel: domain.ServiceLevelNextDay, Terrain: domain.TerrainFlat,
	}})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNewQuoteService_RequiresDependencies(t *testing.T) {
	if _, err := NewQuoteService(QuoteServiceDeps{Distance: &fakeDistanceResolver{}}); !errors.Is(err, ErrQuoteEngineMissing) {
		t.Fatalf("expected ErrQuoteEngineMissing, got %v", err)
	}
	if _, err := NewQuoteService(QuoteServiceDeps{Engine: newTestEngine(t)}); !errors.Is(err, ErrDistanceResolverMissing) {
		t.Fatalf("expected ErrDistanceResolverMissing, got %v", err)
	}
}
