// Package config loads runtime settings from the environment, a local .env file, and
// Secret Manager references.
package config

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultEnvironment       = "local"
	defaultShopifyAPIVersion = "2025-10"
	defaultShopifyTimeout    = 15 * time.Second
	defaultSessionCollection = "shopSessions"
	defaultKeyCollection     = "submissionKeys"
	defaultReplayWindow      = 24 * time.Hour
	defaultAppProxyClockSkew = 5 * time.Minute
	defaultValidationStatus  = http.StatusUnprocessableEntity
	defaultCustomerTag       = "HCP_PENDING"
	defaultCORSOrigin        = "*"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig
	Shopify   ShopifyConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Security  SecurityConfig
	HCP       HCPConfig
	CORS      CORSConfig
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ShopifyConfig holds the app credentials and Admin API settings. AdminAccessToken and
// ShopDomain together configure a single-shop deployment without stored sessions.
type ShopifyConfig struct {
	APIKey           string
	APISecret        string
	APIVersion       string
	AdminAccessToken string
	ShopDomain       string
	RequestTimeout   time.Duration
}

// FirestoreConfig names the project and the collections the service owns.
type FirestoreConfig struct {
	ProjectID         string
	EmulatorHost      string
	SessionCollection string
	KeyCollection     string
}

// PubSubConfig configures submission event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	SubmissionsTopic string
}

// SecurityConfig groups request authentication settings.
type SecurityConfig struct {
	Environment       string
	AppProxyClockSkew time.Duration
}

// HCPConfig controls the intake pipeline.
type HCPConfig struct {
	ValidationStatus int
	CustomerTag      string
	// ReplayWindow is how long a response stays replayable under its Idempotency-Key.
	ReplayWindow time.Duration
}

// CORSConfig lists origins allowed to post intake forms from the storefront.
type CORSConfig struct {
	AllowedOrigins []string
}

// ValidationError lists the config fields that are missing or out of range.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return "config: missing or invalid fields [" + strings.Join(e.fields, ", ") + "]"
}

// Fields returns the offending field names in check order.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

func newLoaderOptions(opts []Option) loaderOptions {
	o := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithEnvFile sets the .env path. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies values that win over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver resolves secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets fails Load when the named fields (e.g. "Shopify.APISecret") end up empty.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// EnvironmentValues returns every variable visible to Load, merged with Load's precedence.
// main reads the secret fetcher settings from it before Load runs.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	e, err := newEnv(newLoaderOptions(opts))
	if err != nil {
		return nil, err
	}
	return e.merged(), nil
}

// Load reads, resolves and validates the configuration.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	o := newLoaderOptions(opts)
	e, err := newEnv(o)
	if err != nil {
		return Config{}, err
	}

	cfg := fromEnv(e)
	missing, err := resolveSecrets(ctx, o.secret, []secretField{
		{name: "Shopify.APISecret", value: &cfg.Shopify.APISecret},
		{name: "Shopify.AdminAccessToken", value: &cfg.Shopify.AdminAccessToken},
	}, o.requiredSecrets)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func fromEnv(e env) Config {
	cfg := Config{
		Server: ServerConfig{
			Port:         e.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  e.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: e.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  e.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Shopify: ShopifyConfig{
			APIKey:           e.value("API_SHOPIFY_API_KEY"),
			APISecret:        e.value("API_SHOPIFY_API_SECRET"),
			APIVersion:       e.str("API_SHOPIFY_API_VERSION", defaultShopifyAPIVersion),
			AdminAccessToken: e.value("API_SHOPIFY_ADMIN_ACCESS_TOKEN"),
			ShopDomain:       strings.ToLower(e.value("API_SHOPIFY_SHOP_DOMAIN")),
			RequestTimeout:   e.duration("API_SHOPIFY_REQUEST_TIMEOUT", defaultShopifyTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:         e.value("API_FIRESTORE_PROJECT_ID"),
			EmulatorHost:      e.value("API_FIRESTORE_EMULATOR_HOST"),
			SessionCollection: e.str("API_FIRESTORE_SESSION_COLLECTION", defaultSessionCollection),
			KeyCollection:     e.str("API_FIRESTORE_KEY_COLLECTION", defaultKeyCollection),
		},
		PubSub: PubSubConfig{
			ProjectID:        e.value("API_PUBSUB_PROJECT_ID"),
			SubmissionsTopic: e.value("API_PUBSUB_SUBMISSIONS_TOPIC"),
		},
		Security: SecurityConfig{
			Environment:       strings.ToLower(e.str("API_SECURITY_ENVIRONMENT", defaultEnvironment)),
			AppProxyClockSkew: e.duration("API_SECURITY_APP_PROXY_CLOCK_SKEW", defaultAppProxyClockSkew),
		},
		HCP: HCPConfig{
			ValidationStatus: e.integer("API_HCP_VALIDATION_STATUS", defaultValidationStatus),
			CustomerTag:      e.str("API_HCP_CUSTOMER_TAG", defaultCustomerTag),
			ReplayWindow:     e.duration("API_HCP_REPLAY_WINDOW", defaultReplayWindow),
		},
		CORS: CORSConfig{
			AllowedOrigins: e.list("API_CORS_ALLOWED_ORIGINS"),
		},
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{defaultCORSOrigin}
	}
	return cfg
}

func (c Config) validate() error {
	checks := []struct {
		field string
		ok    bool
	}{
		{"Server.Port", c.Server.Port != ""},
		{"Shopify.APIKey", c.Shopify.APIKey != ""},
		{"Shopify.APIVersion", c.Shopify.APIVersion != ""},
		{"Shopify.RequestTimeout", c.Shopify.RequestTimeout > 0},
		{"Shopify.ShopDomain", c.Shopify.AdminAccessToken == "" || c.Shopify.ShopDomain != ""},
		{"Firestore.ProjectID", c.Firestore.ProjectID != ""},
		{"Security.AppProxyClockSkew", c.Security.AppProxyClockSkew > 0},
		{"HCP.ValidationStatus", c.HCP.ValidationStatus == http.StatusBadRequest || c.HCP.ValidationStatus == http.StatusUnprocessableEntity},
		{"HCP.CustomerTag", c.HCP.CustomerTag != ""},
		{"HCP.ReplayWindow", c.HCP.ReplayWindow > 0},
	}
	var bad []string
	for _, check := range checks {
		if !check.ok {
			bad = append(bad, check.field)
		}
	}
	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}
