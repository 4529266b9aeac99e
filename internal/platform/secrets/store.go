// Package secrets resolves secret:// references against Google Secret Manager. Values are cached
// in memory, and a local file answers when Secret Manager cannot be reached.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const meterName = "github.com/lmdhub/api/internal/platform/secrets"

// ErrSecretNotFound is returned when neither Secret Manager nor the fallback file has a value.
var ErrSecretNotFound = errors.New("secrets: secret not found")

// Client is the part of the Secret Manager API a Store calls.
type Client interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

var newClient = func(ctx context.Context, opts ...option.ClientOption) (Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

// Settings selects projects, versions and the local fallback for a Store.
type Settings struct {
	// Environment picks entries from Projects and environment-scoped VersionPins.
	Environment    string
	DefaultProject string
	Projects       map[string]string
	// VersionPins maps a reference to a version. A key may be scoped to one environment with
	// an "<env>:" prefix, e.g. "prod:secret://stripe_api_key".
	VersionPins     map[string]string
	FallbackFile    string
	CredentialsFile string
	// CacheTTL bounds how long a resolved value is reused. Zero keeps it for the process lifetime.
	CacheTTL time.Duration
}

// Deps are optional collaborators. A nil Client makes Open dial Secret Manager itself.
type Deps struct {
	Client Client
	Logger *zap.Logger
	Meter  metric.Meter
	Clock  func() time.Time
}

// Store resolves secret references. It is safe for concurrent use.
type Store struct {
	client    Client
	ownClient bool
	logger    *zap.Logger
	now       func() time.Time

	env            string
	defaultProject string
	projects       map[string]string
	pins           map[string]string
	ttl            time.Duration
	fallback       *fallbackFile

	mu       sync.Mutex
	cached   map[string]cachedSecret
	inflight singleflight.Group

	duration metric.Float64Histogram
}

type cachedSecret struct {
	value   string
	expires time.Time
}

// Open builds a Store. When Secret Manager cannot be dialled, for example on a laptop without
// credentials, the store answers from the fallback file only.
func Open(ctx context.Context, settings Settings, deps Deps) (*Store, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Meter == nil {
		deps.Meter = otel.GetMeterProvider().Meter(meterName)
	}
	duration, err := deps.Meter.Float64Histogram("secrets.resolve.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent resolving a secret reference, by source"),
	)
	if err != nil {
		return nil, fmt.Errorf("secrets: register metrics: %w", err)
	}

	env := strings.ToLower(strings.TrimSpace(settings.Environment))
	if env == "" {
		env = "local"
	}
	s := &Store{
		client:         deps.Client,
		logger:         deps.Logger,
		now:            deps.Clock,
		env:            env,
		defaultProject: strings.TrimSpace(settings.DefaultProject),
		projects:       make(map[string]string, len(settings.Projects)),
		pins:           make(map[string]string, len(settings.VersionPins)),
		ttl:            settings.CacheTTL,
		fallback:       newFallbackFile(strings.TrimSpace(settings.FallbackFile)),
		cached:         make(map[string]cachedSecret),
		duration:       duration,
	}
	for name, project := range settings.Projects {
		s.projects[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(project)
	}
	for key, version := range settings.VersionPins {
		pin, err := pinKey(key)
		if err != nil {
			return nil, err
		}
		s.pins[pin] = strings.TrimSpace(version)
	}

	if s.client == nil {
		var opts []option.ClientOption
		if file := strings.TrimSpace(settings.CredentialsFile); file != "" {
			opts = append(opts, option.WithCredentialsFile(file))
		}
		client, err := newClient(ctx, opts...)
		if err != nil {
			s.logger.Warn("secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			s.client = client
			s.ownClient = true
		}
	}
	return s, nil
}

// Close releases the Secret Manager client when Open created it.
func (s *Store) Close() error {
	if s.ownClient {
		return s.client.Close()
	}
	return nil
}

// Resolve returns the value behind ref from the cache, Secret Manager or the fallback file, in
// that order. Concurrent lookups of the same reference share one fetch, which is not canceled
// when a single caller gives up.
func (s *Store) Resolve(ctx context.Context, ref string) (string, error) {
	started := s.now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	version := s.versionFor(parsed)
	key := parsed.canonical + "#" + version

	if value, ok := s.lookupCache(key); ok {
		s.observe(ctx, started, "cache")
		return value, nil
	}

	ch := s.inflight.DoChan(key, func() (any, error) {
		value, source, err := s.fetch(context.WithoutCancel(ctx), parsed, version)
		if err != nil {
			s.observe(ctx, started, "error")
			return "", err
		}
		s.store(key, value)
		s.observe(ctx, started, source)
		return value, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate forgets every cached version of ref.
func (s *Store) Invalidate(ref string) {
	parsed, err := parseReference(ref)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.cached {
		if strings.HasPrefix(key, parsed.canonical+"#") {
			delete(s.cached, key)
		}
	}
}

func (s *Store) lookupCache(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cached[key]
	if !ok {
		return "", false
	}
	if !entry.expires.IsZero() && !s.now().Before(entry.expires) {
		delete(s.cached, key)
		return "", false
	}
	return entry.value, true
}

func (s *Store) store(key, value string) {
	entry := cachedSecret{value: value}
	if s.ttl > 0 {
		entry.expires = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.cached[key] = entry
	s.mu.Unlock()
}

func (s *Store) fetch(ctx context.Context, ref reference, version string) (string, string, error) {
	if project := s.projectFor(ref); project != "" && s.client != nil {
		resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
			Name: "projects/" + project + "/secrets/" + ref.secret + "/versions/" + version,
		})
		if err == nil {
			if resp.GetPayload() == nil {
				return "", "remote", fmt.Errorf("secrets: %s has an empty payload", ref.canonical)
			}
			return string(resp.GetPayload().GetData()), "remote", nil
		}
		if !unreachable(err) {
			return "", "remote", fmt.Errorf("secrets: access %s: %w", ref.canonical, err)
		}
		s.logger.Debug("secret manager unreachable, trying fallback file",
			zap.String("secret", maskReference(ref.canonical)), zap.Error(err))
	}

	value, ok, err := s.fallback.lookup(ref.canonical, version)
	switch {
	case err != nil:
		return "", "fallback", err
	case !ok:
		return "", "fallback", fmt.Errorf("%w: %s", ErrSecretNotFound, ref.canonical)
	}
	return value, "fallback", nil
}

func (s *Store) projectFor(ref reference) string {
	if ref.project != "" {
		return ref.project
	}
	if project := s.projects[s.env]; project != "" {
		return project
	}
	return s.defaultProject
}

func (s *Store) versionFor(ref reference) string {
	if ref.version != "" {
		return ref.version
	}
	for _, key := range []string{s.env + ":" + ref.canonical, ref.canonical} {
		if pin := s.pins[key]; pin != "" {
			return pin
		}
	}
	return "latest"
}

func (s *Store) observe(ctx context.Context, started time.Time, source string) {
	s.duration.Record(ctx, s.now().Sub(started).Seconds(), metric.WithAttributes(attribute.String("source", source)))
}

// unreachable separates "cannot reach Secret Manager from here" from "the secret is missing".
func unreachable(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
