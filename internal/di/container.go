package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lmdhub/api/internal/catalog"
	"github.com/lmdhub/api/internal/distance"
	"github.com/lmdhub/api/internal/payments"
	"github.com/lmdhub/api/internal/platform/config"
	"github.com/lmdhub/api/internal/platform/observability"
	"github.com/lmdhub/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Quotes   services.QuoteService
	Checkout services.CheckoutService
}

// ReadinessCheck probes a runtime dependency.
type ReadinessCheck func(ctx context.Context) error

// Container wires the catalog, the distance and payment collaborators, and the services.
type Container struct {
	Config   config.Config
	Catalog  catalog.Catalog
	Services Services
	Checks   map[string]ReadinessCheck

	redis *redis.Client
}

type options struct {
	logger    *zap.Logger
	clock     func() time.Time
	distance  distance.Resolver
	providers map[string]payments.Provider
}

// Option customises container construction.
type Option func(*options)

// WithLogger sets the base logger adapted into the services' event hooks.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock used for coupon validity and payment timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithDistanceResolver replaces the configured distance provider. The cache decorator still
// applies.
func WithDistanceResolver(resolver distance.Resolver) Option {
	return func(o *options) {
		o.distance = resolver
	}
}

// WithPaymentProviders replaces the configured payment providers.
func WithPaymentProviders(providers map[string]payments.Provider) Option {
	return func(o *options) {
		o.providers = providers
	}
}

// NewContainer constructs the runtime dependencies from configuration.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (*Container, error) {
	o := options{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	cat, err := catalog.Load(cfg.Pricing.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if currency := strings.ToUpper(strings.TrimSpace(cfg.Pricing.Currency)); currency != "" {
		cat.Pricing.Currency = currency
	}

	c := &Container{
		Config:  cfg,
		Catalog: cat,
		Checks:  make(map[string]ReadinessCheck),
	}

	resolver, err := c.buildDistance(cfg, o)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	manager, err := buildPayments(cfg, o)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}

	svc, err := buildServices(cfg, cat, resolver, manager, o)
	if err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	c.Services = svc
	return c, nil
}

// Close releases resources such as the Redis connection pool.
func (c *Container) Close(_ context.Context) error {
	if c == nil || c.redis == nil {
		return nil
	}
	err := c.redis.Close()
	c.redis = nil
	return err
}

func (c *Container) buildDistance(cfg config.Config, o options) (distance.Resolver, error) {
	upstream := o.distance
	if upstream == nil {
		switch cfg.Distance.Provider {
		case config.DistanceProviderGoogle:
			google, err := distance.NewGoogleMatrixResolver(distance.GoogleMatrixConfig{
				APIKey:  cfg.Distance.MapsAPIKey,
				Timeout: cfg.Distance.Timeout,
			})
			if err != nil {
				return nil, fmt.Errorf("build distance resolver: %w", err)
			}
			upstream = google
		default:
			upstream = distance.NewStaticResolver()
		}
	}

	var store distance.Store
	if url := strings.TrimSpace(cfg.Distance.RedisURL); url != "" {
		redisStore, client, err := distance.NewRedisStoreFromURL(url)
		if err != nil {
			return nil, fmt.Errorf("build distance cache: %w", err)
		}
		c.redis = client
		c.Checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}
		store = redisStore
	} else {
		store = distance.NewMemoryStore(o.clock)
	}

	cached, err := distance.NewCachedResolver(upstream, store,
		distance.WithTTL(cfg.Distance.CacheTTL),
		distance.WithLookupTimeout(cfg.Distance.Timeout),
		distance.WithLogger(observability.EventLogger(o.logger.Named("distance"))),
	)
	if err != nil {
		return nil, fmt.Errorf("build distance cache: %w", err)
	}
	return cached, nil
}

func buildPayments(cfg config.Config, o options) (*payments.Manager, error) {
	providers := o.providers
	defaultProvider := ""
	if len(providers) == 0 {
		providers = make(map[string]payments.Provider, 2)
		if key := strings.TrimSpace(cfg.PSP.StripeAPIKey); key != "" {
			stripe, err := payments.NewStripeProvider(payments.StripeProviderConfig{
				APIKey:    key,
				AccountID: cfg.PSP.StripeAccountID,
				Logger:    observability.EventLogger(o.logger.Named("stripe")),
				Clock:     o.clock,
			})
			if err != nil {
				return nil, fmt.Errorf("build stripe provider: %w", err)
			}
			providers[payments.ProviderStripe] = stripe
			defaultProvider = payments.ProviderStripe
		} else {
			o.logger.Warn("stripe api key not configured; using simulated payments")
			providers[payments.ProviderSimulated] = payments.NewSimulatedProvider(o.clock)
			defaultProvider = payments.ProviderSimulated
		}
	}

	var managerOpts []payments.ManagerOption
	if defaultProvider != "" {
		managerOpts = append(managerOpts, payments.WithDefaultProvider(defaultProvider))
	}
	manager, err := payments.NewManager(providers, managerOpts...)
	if err != nil {
		return nil, fmt.Errorf("build payments manager: %w", err)
	}
	return manager, nil
}

func buildServices(cfg config.Config, cat catalog.Catalog, resolver distance.Resolver, manager *payments.Manager, o options) (Services, error) {
	if resolver == nil {
		return Services{}, errors.New("distance resolver is required")
	}

	engine, err := services.NewQuoteEngine(cat.Pricing)
	if err != nil {
		return Services{}, fmt.Errorf("build quote engine: %w", err)
	}

	quotes, err := services.NewQuoteService(services.QuoteServiceDeps{
		Engine:             engine,
		Distance:           resolver,
		ServiceRadiusMiles: cfg.Pricing.ServiceRadiusMiles,
		Clock:              o.clock,
		Logger:             observability.EventLogger(o.logger.Named("quotes")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build quote service: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Quotes: quotes,
		Discounts: services.NewDiscountResolver(services.DiscountResolverDeps{
			Catalog: cat.Discounts,
			Clock:   o.clock,
		}),
		Payments:         manager,
		Currency:         cat.Pricing.Currency,
		DiscountsEnabled: cfg.Features.EnableDiscounts,
		Clock:            o.clock,
		Logger:           observability.EventLogger(o.logger.Named("checkout")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}

	return Services{
		Quotes:   quotes,
		Checkout: checkout,
	}, nil
}
