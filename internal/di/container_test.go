package di

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/lmdhub/api/internal/domain"
	"github.com/lmdhub/api/internal/payments"
	"github.com/lmdhub/api/internal/platform/config"
	"github.com/lmdhub/api/internal/services"
)

var fixedNow = time.Date(2024, 11, 15, 9, 0, 0, 0, time.UTC)

func loadConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load(context.Background(), config.WithoutSystemEnv(), config.WithEnvMap(env))
	if err != nil {
		t.Fatalf("config.Load error: %v", err)
	}
	return cfg
}

func TestNewContainer_DefaultsWireStaticDistanceAndSimulatedPayments(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	container, err := NewContainer(context.Background(), cfg, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewContainer error: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	if len(container.Checks) != 0 {
		t.Fatalf("expected no readiness checks without redis, got %v", container.Checks)
	}

	weight := 60.0
	shipment := services.ShipmentRequest{
		Pickup:          "Salt Lake City, UT",
		Dropoff:         "Sandy, UT",
		ServiceLevel:    domain.ServiceLevelSameDay,
		AdditionalStops: []string{"West Jordan, UT"},
		Terrain:         domain.TerrainMountainous,
		ItemWeightLbs:   &weight,
	}
	quote, err := container.Services.Quotes.Quote(context.Background(), services.QuoteCommand{Shipment: shipment})
	if err != nil {
		t.Fatalf("Quote error: %v", err)
	}
	if quote.Distance.Miles != 15 {
		t.Fatalf("expected static distance 15, got %v", quote.Distance.Miles)
	}
	if quote.Quote.TotalPrice != 5875 {
		t.Fatalf("expected total 5875, got %d", quote.Quote.TotalPrice)
	}

	result, err := container.Services.Checkout.CreatePaymentIntent(context.Background(), services.PaymentIntentCommand{
		PriceOrderCommand: services.PriceOrderCommand{BaseAmount: 10000, Codes: services.DiscountCodes{Coupon: "BUSINESS"}},
	})
	if err != nil {
		t.Fatalf("CreatePaymentIntent error: %v", err)
	}
	if result.Provider != payments.ProviderSimulated || result.IntentID == "" {
		t.Fatalf("expected simulated intent, got %+v", result)
	}
	if result.Amount != 8500 {
		t.Fatalf("expected 8500 after BUSINESS, got %d", result.Amount)
	}
}

func TestNewContainer_DiscountsFeatureFlag(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"LMD_FEATURE_DISCOUNTS": "false"})
	container, err := NewContainer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewContainer error: %v", err)
	}

	_, err = container.Services.Checkout.PriceOrder(context.Background(), services.PriceOrderCommand{
		BaseAmount: 10000,
		Codes:      services.DiscountCodes{Coupon: "BUSINESS"},
	})
	if !errors.Is(err, services.ErrDiscountsDisabled) {
		t.Fatalf("expected ErrDiscountsDisabled, got %v", err)
	}
}

func TestNewContainer_RedisURLRegistersReadinessCheck(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"LMD_DISTANCE_REDIS_URL": "redis://localhost:6379/0"})
	container, err := NewContainer(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewContainer error: %v", err)
	}
	if _, ok := container.Checks["redis"]; !ok {
		t.Fatalf("expected redis readiness check, got %v", container.Checks)
	}
	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if err := container.Close(context.Background()); err != nil {
		t.Fatalf("second Close error: %v", err)
	}
}

func TestNewContainer_RejectsBadCatalogPath(t *testing.T) {
	cfg := loadConfig(t, map[string]string{})
	cfg.Pricing.CatalogPath = "testdata/does-not-exist.yaml"
	if _, err := NewContainer(context.Background(), cfg); err == nil {
		t.Fatalf("expected catalog load error")
	}
}

type fixedDistance struct {
	miles float64
}

func (f fixedDistance) ResolveDistance(context.Context, string, string) (domain.DistanceResult, error) {
	return domain.DistanceResult{Miles: f.miles}, nil
}

func TestNewContainer_ServiceRadiusFromConfig(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"LMD_PRICING_SERVICE_RADIUS_MILES": "20"})
	container, err := NewContainer(context.Background(), cfg, WithDistanceResolver(fixedDistance{miles: 45}))
	if err != nil {
		t.Fatalf("NewContainer error: %v", err)
	}

	_, err = container.Services.Quotes.Quote(context.Background(), services.QuoteCommand{Shipment: services.ShipmentRequest{
		Pickup:       "Salt Lake City, UT",
		Dropoff:      "Provo, UT",
		ServiceLevel: domain.ServiceLevelNextDay,
		Terrain:      domain.TerrainFlat,
	}})
	if !errors.Is(err, services.ErrOutsideServiceArea) {
		t.Fatalf("expected ErrOutsideServiceArea, got %v", err)
	}
}
