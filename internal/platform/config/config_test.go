package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func minimalEnv() map[string]string {
	return map[string]string{
		"API_SHOPIFY_API_KEY":      "app-key",
		"API_FIRESTORE_PROJECT_ID": "hcp-dev",
	}
}

func loadMap(t *testing.T, values map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(values), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := loadMap(t, minimalEnv())
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	require.Equal(t, defaultShopifyAPIVersion, cfg.Shopify.APIVersion)
	require.Equal(t, defaultShopifyTimeout, cfg.Shopify.RequestTimeout)
	require.Equal(t, "shopSessions", cfg.Firestore.SessionCollection)
	require.Equal(t, "submissionKeys", cfg.Firestore.KeyCollection)
	require.Equal(t, "hcp-dev", cfg.PubSub.ProjectID, "pubsub project follows firestore")
	require.Empty(t, cfg.PubSub.SubmissionsTopic)
	require.Equal(t, "local", cfg.Security.Environment)
	require.Equal(t, 5*time.Minute, cfg.Security.AppProxyClockSkew)
	require.Equal(t, 422, cfg.HCP.ValidationStatus)
	require.Equal(t, "HCP_PENDING", cfg.HCP.CustomerTag)
	require.Equal(t, 24*time.Hour, cfg.HCP.ReplayWindow)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	values := map[string]string{
		"API_SERVER_PORT":                   "9090",
		"API_SERVER_IDLE_TIMEOUT":           "2m",
		"API_SHOPIFY_API_KEY":               "app-key",
		"API_SHOPIFY_API_SECRET":            "secret://shopify/api-secret",
		"API_SHOPIFY_API_VERSION":           "2024-10",
		"API_SHOPIFY_ADMIN_ACCESS_TOKEN":    "sm://shopify/admin-token",
		"API_SHOPIFY_SHOP_DOMAIN":           "Clinic-Samples.myshopify.com",
		"API_SHOPIFY_REQUEST_TIMEOUT":       "8s",
		"API_FIRESTORE_PROJECT_ID":          "hcp-prod",
		"API_FIRESTORE_SESSION_COLLECTION":  "sessions",
		"API_FIRESTORE_KEY_COLLECTION":      "keys",
		"API_PUBSUB_PROJECT_ID":             "hcp-events",
		"API_PUBSUB_SUBMISSIONS_TOPIC":      "hcp-submissions",
		"API_SECURITY_ENVIRONMENT":          "PROD",
		"API_SECURITY_APP_PROXY_CLOCK_SKEW": "90s",
		"API_HCP_VALIDATION_STATUS":         "400",
		"API_HCP_CUSTOMER_TAG":              "HCP_REVIEW",
		"API_HCP_REPLAY_WINDOW":             "1h",
		"API_CORS_ALLOWED_ORIGINS":          "https://clinic.example.com, ,https://samples.example.com",
	}
	stored := map[string]string{
		"secret://shopify/api-secret":  "shpss_123",
		"secret://shopify/admin-token": "shpat_456",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := stored[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := loadMap(t, values, WithSecretResolver(resolver))
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, 2*time.Minute, cfg.Server.IdleTimeout)
	require.Equal(t, "shpss_123", cfg.Shopify.APISecret)
	require.Equal(t, "shpat_456", cfg.Shopify.AdminAccessToken, "sm:// resolves like secret://")
	require.Equal(t, "clinic-samples.myshopify.com", cfg.Shopify.ShopDomain)
	require.Equal(t, 8*time.Second, cfg.Shopify.RequestTimeout)
	require.Equal(t, "sessions", cfg.Firestore.SessionCollection)
	require.Equal(t, "keys", cfg.Firestore.KeyCollection)
	require.Equal(t, PubSubConfig{ProjectID: "hcp-events", SubmissionsTopic: "hcp-submissions"}, cfg.PubSub)
	require.Equal(t, "prod", cfg.Security.Environment)
	require.Equal(t, 90*time.Second, cfg.Security.AppProxyClockSkew)
	require.Equal(t, 400, cfg.HCP.ValidationStatus)
	require.Equal(t, "HCP_REVIEW", cfg.HCP.CustomerTag)
	require.Equal(t, time.Hour, cfg.HCP.ReplayWindow)
	require.Equal(t, []string{"https://clinic.example.com", "https://samples.example.com"}, cfg.CORS.AllowedOrigins)
}

func TestLoadDotEnvFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_SHOPIFY_API_KEY=dot-key\nAPI_FIRESTORE_PROJECT_ID=\"hcp-dot\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(context.Background(), WithEnvFile(path), WithoutSystemEnv())
	require.NoError(t, err)
	require.Equal(t, "7070", cfg.Server.Port)
	require.Equal(t, "hcp-dot", cfg.Firestore.ProjectID)

	_, err = Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithEnvMap(minimalEnv()), WithoutSystemEnv())
	require.NoError(t, err, "a missing .env file is not an error")
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]struct {
		values map[string]string
		fields []string
	}{
		"empty environment": {
			values: map[string]string{},
			fields: []string{"Shopify.APIKey", "Firestore.ProjectID"},
		},
		"unsupported validation status": {
			values: map[string]string{"API_HCP_VALIDATION_STATUS": "418"},
			fields: []string{"HCP.ValidationStatus"},
		},
		"static token without shop": {
			values: map[string]string{"API_SHOPIFY_ADMIN_ACCESS_TOKEN": "shpat_plain"},
			fields: []string{"Shopify.ShopDomain"},
		},
		"zero replay window": {
			values: map[string]string{"API_HCP_REPLAY_WINDOW": "0s"},
			fields: []string{"HCP.ReplayWindow"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			values := tc.values
			if name != "empty environment" {
				values = minimalEnv()
				for k, v := range tc.values {
					values[k] = v
				}
			}
			_, err := loadMap(t, values)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			require.Equal(t, tc.fields, validationErr.Fields())
		})
	}
}

func TestLoadSecretResolution(t *testing.T) {
	t.Run("no resolver", func(t *testing.T) {
		values := minimalEnv()
		values["API_SHOPIFY_API_SECRET"] = "secret://missing"
		_, err := loadMap(t, values)
		var secretErr *SecretError
		require.ErrorAs(t, err, &secretErr)
		require.Equal(t, "secret://missing", secretErr.Ref)
		require.ErrorIs(t, err, errNoSecretResolver)
	})

	t.Run("resolver failure", func(t *testing.T) {
		values := minimalEnv()
		values["API_SHOPIFY_API_SECRET"] = "sm://shopify/api-secret"
		boom := errors.New("permission denied")
		_, err := loadMap(t, values, WithSecretResolver(SecretResolverFunc(func(context.Context, string) (string, error) {
			return "", boom
		})))
		var secretErr *SecretError
		require.ErrorAs(t, err, &secretErr)
		require.Equal(t, "secret://shopify/api-secret", secretErr.Ref)
		require.ErrorIs(t, err, boom)
	})

	t.Run("required secret missing", func(t *testing.T) {
		_, err := loadMap(t, minimalEnv(), WithRequiredSecrets("Shopify.APISecret", "Shopify.APISecret", " "))
		var missing *MissingSecretsError
		require.ErrorAs(t, err, &missing)
		require.Equal(t, []string{"Shopify.APISecret"}, missing.Names())
		require.Equal(t, []string{redactSecretName("Shopify.APISecret")}, missing.RedactedNames())
		require.NotContains(t, err.Error(), "Shopify.APISecret")
	})

	t.Run("required secret given in plain text", func(t *testing.T) {
		values := minimalEnv()
		values["API_SHOPIFY_API_SECRET"] = " shpss_plain "
		cfg, err := loadMap(t, values, WithRequiredSecrets("Shopify.APISecret"))
		require.NoError(t, err)
		require.Equal(t, "shpss_plain", cfg.Shopify.APISecret)
	})
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.test")
	content := "API_FIRESTORE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("API_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_CACHE_TTL", "30s")

	values, err := EnvironmentValues(WithEnvFile(path), WithEnvMap(map[string]string{
		"API_FIRESTORE_PROJECT_ID": "override-project",
	}))
	require.NoError(t, err)
	require.Equal(t, "override-project", values["API_FIRESTORE_PROJECT_ID"])
	require.Equal(t, ".dot.local", values["API_SECRET_FALLBACK_FILE"])
	require.Equal(t, "30s", values["API_SECRET_CACHE_TTL"])
}
