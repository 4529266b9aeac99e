package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	domain "github.com/lmdhub/api/internal/domain"
)

const (
	defaultCacheTTL      = 6 * time.Hour
	defaultLookupTimeout = 10 * time.Second
	redisKeyPrefix       = "lmd:distance:"
	metricNamespace      = "github.com/lmdhub/api/internal/distance"
)

// Store persists resolved distances between lookups.
type Store interface {
	Get(ctx context.Context, key string) (domain.DistanceResult, bool, error)
	Set(ctx context.Context, key string, value domain.DistanceResult, ttl time.Duration) error
}

// CacheOption customises a CachedResolver.
type CacheOption func(*CachedResolver)

// WithTTL overrides how long resolved distances are kept.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *CachedResolver) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLookupTimeout bounds a shared upstream lookup. The lookup runs detached from the caller that
// started it so one canceled request cannot fail the others waiting on the same route.
func WithLookupTimeout(timeout time.Duration) CacheOption {
	return func(c *CachedResolver) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithMeter injects a custom OpenTelemetry meter.
func WithMeter(m metric.Meter) CacheOption {
	return func(c *CachedResolver) {
		c.meter = m
	}
}

// WithLogger receives cache backend failures, which are otherwise swallowed.
func WithLogger(logger func(context.Context, string, map[string]any)) CacheOption {
	return func(c *CachedResolver) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// CachedResolver decorates a Resolver with a key/value cache and collapses concurrent lookups of
// the same route into one upstream call. Cache failures fall through to the upstream resolver.
type CachedResolver struct {
	next    Resolver
	store   Store
	ttl     time.Duration
	timeout time.Duration
	group   singleflight.Group
	logger  func(context.Context, string, map[string]any)

	meter   metric.Meter
	latency metric.Float64Histogram
	lookups metric.Int64Counter
}

// NewCachedResolver wraps next with store.
func NewCachedResolver(next Resolver, store Store, opts ...CacheOption) (*CachedResolver, error) {
	if next == nil {
		return nil, errors.New("distance: upstream resolver is required")
	}
	if store == nil {
		return nil, errors.New("distance: cache store is required")
	}
	c := &CachedResolver{
		next:    next,
		store:   store,
		ttl:     defaultCacheTTL,
		timeout: defaultLookupTimeout,
		logger:  func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.meter == nil {
		c.meter = otel.GetMeterProvider().Meter(metricNamespace)
	}
	latency, err := c.meter.Float64Histogram(
		"distance.lookup.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for upstream distance lookups"),
	)
	if err != nil {
		return nil, fmt.Errorf("distance: register histogram: %w", err)
	}
	lookups, err := c.meter.Int64Counter(
		"distance.lookups",
		metric.WithDescription("Distance lookups partitioned by cache result"),
	)
	if err != nil {
		return nil, fmt.Errorf("distance: register counter: %w", err)
	}
	c.latency = latency
	c.lookups = lookups
	return c, nil
}

// ResolveDistance serves from the cache when possible.
func (c *CachedResolver) ResolveDistance(ctx context.Context, origin, destination string) (domain.DistanceResult, error) {
	key := CacheKey(origin, destination)
	if cached, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger(ctx, "distance.cache.get_failed", map[string]any{"error": err.Error()})
	} else if ok {
		c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "hit")))
		return cached, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		started := time.Now()
		result, err := c.next.ResolveDistance(lookupCtx, origin, destination)
		c.latency.Record(lookupCtx, float64(time.Since(started))/float64(time.Millisecond),
			metric.WithAttributes(attribute.Bool("error", err != nil)))
		if err != nil {
			return domain.DistanceResult{}, err
		}
		if setErr := c.store.Set(lookupCtx, key, result, c.ttl); setErr != nil {
			c.logger(lookupCtx, "distance.cache.set_failed", map[string]any{"error": setErr.Error()})
		}
		return result, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return domain.DistanceResult{}, ctx.Err()
	}
	outcome := "miss"
	if res.Shared {
		outcome = "shared"
	}
	c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome)))
	if res.Err != nil {
		return domain.DistanceResult{}, res.Err
	}
	return res.Val.(domain.DistanceResult), nil
}

// CacheKey normalises case and whitespace so equivalent spellings share an entry.
func CacheKey(origin, destination string) string {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	}
	return normalize(origin) + "|" + normalize(destination)
}

// MemoryStore is an in-process TTL store.
type MemoryStore struct {
	now func() time.Time
	mu  sync.RWMutex
	m   map[string]memoryEntry
}

type memoryEntry struct {
	value   domain.DistanceResult
	expires time.Time
}

// NewMemoryStore builds an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now: now,
		m:   make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (domain.DistanceResult, bool, error) {
	s.mu.RLock()
	entry, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return domain.DistanceResult{}, false, nil
	}
	if s.now().After(entry.expires) {
		s.mu.Lock()
		delete(s.m, key)
		s.mu.Unlock()
		return domain.DistanceResult{}, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value domain.DistanceResult, ttl time.Duration) error {
	s.mu.Lock()
	s.m[key] = memoryEntry{value: value, expires: s.now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore shares resolved distances between instances.
type RedisStore struct {
	client redisClient
	prefix string
}

// NewRedisStore wraps a go-redis client (or anything with the same Get/Set surface).
func NewRedisStore(client redisClient) *RedisStore {
	return &RedisStore{client: client, prefix: redisKeyPrefix}
}

// NewRedisStoreFromURL parses a redis:// URL and connects lazily.
func NewRedisStoreFromURL(rawURL string) (*RedisStore, *redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("distance: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	return NewRedisStore(client), client, nil
}

type redisEntry struct {
	Miles           float64 `json:"miles"`
	DurationMinutes float64 `json:"durationMinutes"`
}

func (s *RedisStore) Get(ctx context.Context, key string) (domain.DistanceResult, bool, error) {
	raw, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return domain.DistanceResult{}, false, nil
	}
	if err != nil {
		return domain.DistanceResult{}, false, fmt.Errorf("distance: redis get: %w", err)
	}
	var entry redisEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return domain.DistanceResult{}, false, fmt.Errorf("distance: decode cached entry: %w", err)
	}
	return domain.DistanceResult{Miles: entry.Miles, DurationMinutes: entry.DurationMinutes}, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value domain.DistanceResult, ttl time.Duration) error {
	payload, err := json.Marshal(redisEntry{Miles: value.Miles, DurationMinutes: value.DurationMinutes})
	if err != nil {
		return fmt.Errorf("distance: encode cached entry: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("distance: redis set: %w", err)
	}
	return nil
}
