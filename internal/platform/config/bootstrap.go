package config

import "strings"

// Bootstrap holds what the process needs before secrets can be resolved: the log level, build
// metadata and the secret store settings.
type Bootstrap struct {
	Environment      string `env:"LMD_ENVIRONMENT" envDefault:"local"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	DistanceProvider string `env:"LMD_DISTANCE_PROVIDER"`
	StripeAPIKey     string `env:"LMD_PSP_STRIPE_API_KEY"`

	Build   BuildInfo
	Secrets SecretSettings `envPrefix:"LMD_SECRET_"`
}

type BuildInfo struct {
	Version   string `env:"LMD_BUILD_VERSION" envDefault:"dev"`
	CommitSHA string `env:"LMD_BUILD_COMMIT_SHA" envDefault:"unknown"`
}

// SecretSettings configures the Secret Manager backed resolver.
type SecretSettings struct {
	FallbackFile   string `env:"FALLBACK_FILE" envDefault:".secrets.local"`
	DefaultProject string `env:"DEFAULT_PROJECT_ID"`
	// Projects maps an environment name to its project, e.g. "prod=lmd-prod,staging=lmd-stg".
	Projects map[string]string `env:"PROJECT_IDS" envKeyValSeparator:"="`
	// VersionPins maps a reference, optionally prefixed with "<env>:", to a version.
	VersionPins     map[string]string `env:"VERSION_PINS" envKeyValSeparator:"="`
	CredentialsFile string            `env:"CREDENTIALS_FILE"`
}

// LoadBootstrap reads the bootstrap settings from the same layered environment as Load.
func LoadBootstrap(opts ...Option) (Bootstrap, error) {
	values, err := newLoaderOptions(opts).environment()
	if err != nil {
		return Bootstrap{}, err
	}
	var boot Bootstrap
	if err := parseInto(&boot, values, ""); err != nil {
		return Bootstrap{}, err
	}
	boot.Environment = strings.ToLower(strings.TrimSpace(boot.Environment))
	return boot, nil
}

// RequiredSecrets names the secret-backed fields that must resolve for the configured
// providers: the Stripe key once one is referenced and the Maps key for Google distances.
func (b Bootstrap) RequiredSecrets() []string {
	var required []string
	if strings.TrimSpace(b.StripeAPIKey) != "" {
		required = append(required, "PSP.StripeAPIKey")
	}
	if strings.EqualFold(strings.TrimSpace(b.DistanceProvider), DistanceProviderGoogle) {
		required = append(required, "Distance.MapsAPIKey")
	}
	return required
}
