// Package config reads LMD_* settings from the process environment, an optional .env file and
// explicit overrides, then resolves secret references and validates the result.
package config

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const envPrefix = "LMD_"

// Distance providers understood by the loader.
const (
	DistanceProviderStatic = "static"
	DistanceProviderGoogle = "google"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment   string              `env:"ENVIRONMENT" envDefault:"local"`
	Server        ServerConfig        `envPrefix:"SERVER_"`
	Pricing       PricingConfig       `envPrefix:"PRICING_"`
	Distance      DistanceConfig      `envPrefix:"DISTANCE_"`
	PSP           PSPConfig           `envPrefix:"PSP_"`
	Features      FeatureFlags        `envPrefix:"FEATURE_"`
	Observability ObservabilityConfig `envPrefix:"OBSERVABILITY_"`
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"2m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// QuoteRateLimit caps quote requests per client within QuoteRateWindow. Zero disables it.
	QuoteRateLimit  int           `env:"QUOTE_RATE_LIMIT" envDefault:"60"`
	QuoteRateWindow time.Duration `env:"QUOTE_RATE_WINDOW" envDefault:"1m"`
}

type PricingConfig struct {
	// CatalogPath is a YAML file overriding the embedded catalog. Empty uses the embedded one.
	CatalogPath string `env:"CATALOG_PATH"`
	Currency    string `env:"CURRENCY" envDefault:"USD"`
	// ServiceRadiusMiles rejects quotes beyond this distance. Zero disables the check.
	ServiceRadiusMiles float64 `env:"SERVICE_RADIUS_MILES" envDefault:"50"`
}

type DistanceConfig struct {
	Provider   string        `env:"PROVIDER" envDefault:"static"`
	MapsAPIKey string        `env:"MAPS_API_KEY"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"5s"`
	CacheTTL   time.Duration `env:"CACHE_TTL" envDefault:"6h"`
	// RedisURL enables the shared cache. Empty keeps distances in process memory.
	RedisURL string `env:"REDIS_URL"`
}

type PSPConfig struct {
	StripeAPIKey    string `env:"STRIPE_API_KEY"`
	StripeAccountID string `env:"STRIPE_ACCOUNT_ID"`
}

type FeatureFlags struct {
	EnableDiscounts bool `env:"DISCOUNTS" envDefault:"true"`
}

// ObservabilityConfig carries the Cloud project used to format trace identifiers.
type ObservabilityConfig struct {
	ProjectID string `env:"PROJECT_ID"`
}

// Load assembles the configuration from the layered environment, resolves secret references
// in the secret-backed fields and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := options.environment()
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := parseInto(&cfg, values, envPrefix); err != nil {
		return Config{}, err
	}
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.Pricing.Currency = strings.ToUpper(strings.TrimSpace(cfg.Pricing.Currency))
	cfg.Distance.Provider = strings.ToLower(strings.TrimSpace(cfg.Distance.Provider))

	resolved := make(map[string]string, 3)
	for name, field := range map[string]*string{
		"PSP.StripeAPIKey":    &cfg.PSP.StripeAPIKey,
		"Distance.MapsAPIKey": &cfg.Distance.MapsAPIKey,
		"Distance.RedisURL":   &cfg.Distance.RedisURL,
	} {
		value, err := resolveSecret(ctx, options.secret, *field)
		if err != nil {
			return Config{}, err
		}
		*field = value
		resolved[name] = strings.TrimSpace(value)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if missing := missingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	check(cfg.Server.ShutdownTimeout > 0, "Server.ShutdownTimeout")
	check(cfg.Server.QuoteRateLimit >= 0, "Server.QuoteRateLimit")
	check(cfg.Server.QuoteRateLimit == 0 || cfg.Server.QuoteRateWindow > 0, "Server.QuoteRateWindow")
	check(len(cfg.Pricing.Currency) == 3, "Pricing.Currency")
	check(cfg.Pricing.ServiceRadiusMiles >= 0, "Pricing.ServiceRadiusMiles")
	switch cfg.Distance.Provider {
	case DistanceProviderStatic:
	case DistanceProviderGoogle:
		check(strings.TrimSpace(cfg.Distance.MapsAPIKey) != "", "Distance.MapsAPIKey")
	default:
		invalid = append(invalid, "Distance.Provider")
	}
	check(cfg.Distance.Timeout > 0, "Distance.Timeout")
	check(cfg.Distance.CacheTTL > 0, "Distance.CacheTTL")

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

// parseInto decodes values into target. Booleans also accept on/off and yes/no.
func parseInto(target any, values map[string]string, prefix string) error {
	err := env.ParseWithOptions(target, env.Options{
		Environment: values,
		Prefix:      prefix,
		FuncMap: map[reflect.Type]env.ParserFunc{
			reflect.TypeOf(false): parseSwitch,
		},
	})
	if err != nil {
		return fmt.Errorf("config: parse environment: %w", err)
	}
	return nil
}

func parseSwitch(value string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true, nil
	case "false", "0", "no", "off":
		return false, nil
	}
	return nil, fmt.Errorf("invalid boolean %q", value)
}
