package distance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/lmdhub/api/internal/domain"
)

type countingResolver struct {
	mu     sync.Mutex
	calls  int
	result domain.DistanceResult
	err    error
}

func (c *countingResolver) ResolveDistance(ctx context.Context, origin, destination string) (domain.DistanceResult, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.result, c.err
}

func (c *countingResolver) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestCachedResolverMemoryHitAndExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	upstream := &countingResolver{result: domain.DistanceResult{Miles: 12, DurationMinutes: 30}}
	store := NewMemoryStore(func() time.Time { return now })
	cached, err := NewCachedResolver(upstream, store, WithTTL(time.Hour))
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}

	ctx := context.Background()
	first, err := cached.ResolveDistance(ctx, "Sandy, UT", "Provo, UT")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := cached.ResolveDistance(ctx, "  sandy,   ut", "PROVO, UT ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first != second {
		t.Fatalf("expected cached value, got %+v and %+v", first, second)
	}
	if upstream.count() != 1 {
		t.Fatalf("expected one upstream call, got %d", upstream.count())
	}

	now = now.Add(2 * time.Hour)
	if _, err := cached.ResolveDistance(ctx, "Sandy, UT", "Provo, UT"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if upstream.count() != 2 {
		t.Fatalf("expected expiry to trigger a new lookup, got %d calls", upstream.count())
	}
}

func TestCachedResolverDoesNotCacheErrors(t *testing.T) {
	upstream := &countingResolver{err: ErrNoRoute}
	cached, err := NewCachedResolver(upstream, NewMemoryStore(nil))
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := cached.ResolveDistance(context.Background(), "a", "b"); !errors.Is(err, ErrNoRoute) {
			t.Fatalf("expected ErrNoRoute, got %v", err)
		}
	}
	if upstream.count() != 2 {
		t.Fatalf("expected failures to bypass the cache, got %d calls", upstream.count())
	}
}

type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	getErr  error
	setErr  error
	lastTTL time.Duration
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = string(value.([]byte))
	f.lastTTL = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	client := &fakeRedis{}
	store := NewRedisStore(client)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := store.Set(ctx, "k", domain.DistanceResult{Miles: 35, DurationMinutes: 87}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := client.values[redisKeyPrefix+"k"]; !ok {
		t.Fatalf("expected prefixed key, got %v", client.values)
	}
	if client.lastTTL != time.Minute {
		t.Fatalf("expected ttl to be forwarded, got %s", client.lastTTL)
	}
	got, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if got.Miles != 35 || got.DurationMinutes != 87 {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestCachedResolverFallsThroughOnRedisFailure(t *testing.T) {
	client := &fakeRedis{getErr: errors.New("connection refused"), setErr: errors.New("connection refused")}
	upstream := &countingResolver{result: domain.DistanceResult{Miles: 4}}
	var events []string
	cached, err := NewCachedResolver(upstream, NewRedisStore(client), WithLogger(func(_ context.Context, event string, _ map[string]any) {
		events = append(events, event)
	}))
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}

	got, err := cached.ResolveDistance(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("expected upstream result despite cache failure, got %v", err)
	}
	if got.Miles != 4 {
		t.Fatalf("unexpected result %+v", got)
	}
	if len(events) != 2 || events[0] != "distance.cache.get_failed" || events[1] != "distance.cache.set_failed" {
		t.Fatalf("unexpected events %v", events)
	}
}

type blockingResolver struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (b *blockingResolver) ResolveDistance(ctx context.Context, origin, destination string) (domain.DistanceResult, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	b.ctxErr <- ctx.Err()
	if _, ok := ctx.Deadline(); !ok {
		return domain.DistanceResult{}, errors.New("expected a lookup deadline")
	}
	return domain.DistanceResult{Miles: 7}, nil
}

func TestCachedResolverSharedLookupSurvivesCanceledCaller(t *testing.T) {
	upstream := &blockingResolver{
		started: make(chan struct{}),
		release: make(chan struct{}),
		ctxErr:  make(chan error, 2),
	}
	cached, err := NewCachedResolver(upstream, NewMemoryStore(nil), WithLookupTimeout(time.Minute))
	if err != nil {
		t.Fatalf("new cached resolver: %v", err)
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cached.ResolveDistance(firstCtx, "Sandy, UT", "Provo, UT")
		firstErr <- err
	}()
	<-upstream.started

	waiter := make(chan error, 1)
	var got domain.DistanceResult
	go func() {
		var err error
		got, err = cached.ResolveDistance(context.Background(), "Sandy, UT", "Provo, UT")
		waiter <- err
	}()

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the canceled caller to return context.Canceled, got %v", err)
	}
	// Give the waiter time to join the in-flight lookup before it completes.
	time.Sleep(20 * time.Millisecond)
	close(upstream.release)

	if err := <-upstream.ctxErr; err != nil {
		t.Fatalf("expected upstream context to stay live, got %v", err)
	}
	if err := <-waiter; err != nil {
		t.Fatalf("waiter: %v", err)
	}
	if got.Miles != 7 {
		t.Fatalf("expected 7 miles, got %+v", got)
	}
}

func TestNewCachedResolverValidation(t *testing.T) {
	if _, err := NewCachedResolver(nil, NewMemoryStore(nil)); err == nil {
		t.Fatalf("expected error without upstream")
	}
	if _, err := NewCachedResolver(&countingResolver{}, nil); err == nil {
		t.Fatalf("expected error without store")
	}
}

func TestCacheKey(t *testing.T) {
	if CacheKey(" a  b ", "c") != CacheKey("A B", " C") {
		t.Fatalf("expected normalised keys to match")
	}
	if CacheKey("a", "b") == CacheKey("b", "a") {
		t.Fatalf("expected direction to matter")
	}
}
