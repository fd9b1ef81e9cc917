package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hcp-portal/api/internal/di"
	"github.com/hcp-portal/api/internal/handlers"
	"github.com/hcp-portal/api/internal/platform/auth"
	"github.com/hcp-portal/api/internal/platform/config"
	pfirestore "github.com/hcp-portal/api/internal/platform/firestore"
	"github.com/hcp-portal/api/internal/platform/idempotency"
	"github.com/hcp-portal/api/internal/platform/jobs"
	"github.com/hcp-portal/api/internal/platform/observability"
	"github.com/hcp-portal/api/internal/platform/secrets"
	"github.com/hcp-portal/api/internal/platform/shopify"
	"github.com/hcp-portal/api/internal/repositories"
	firestoreRepo "github.com/hcp-portal/api/internal/repositories/firestore"
	"github.com/hcp-portal/api/internal/services"
)

const (
	secretHealthReference = "secret://system-healthz?version=latest"
	shutdownTimeout       = 10 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := secrets.NewFetcher(ctx, secretFetcherOptions(logger, envValues)...)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Shopify.APISecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	closers := []func(context.Context) error{
		func(context.Context) error { return fetcher.Close() },
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	closers = append(closers, firestoreProvider.Close)

	sessions, err := firestoreRepo.NewSessionRepository(firestoreProvider, cfg.Firestore.SessionCollection)
	if err != nil {
		logger.Fatal("failed to initialise session repository", zap.Error(err))
	}

	tokens := shopify.FirstAvailable(
		shopify.StaticTokenSource(cfg.Shopify.ShopDomain, cfg.Shopify.AdminAccessToken),
		sessions,
	)
	adminClients, err := shopify.NewFactory(cfg.Shopify.APIVersion, tokens,
		shopify.WithHTTPClient(&http.Client{Timeout: cfg.Shopify.RequestTimeout}),
		shopify.WithCallObserver(metrics.ObserveAdminCall),
	)
	if err != nil {
		logger.Fatal("failed to initialise admin api factory", zap.Error(err))
	}

	probes := []repositories.Probe{
		{Name: "firestore", Critical: true, Timeout: 1500 * time.Millisecond, Check: sessions.Ping},
		{Name: "secretManager", Timeout: time.Second, Check: secretProbe(fetcher)},
	}

	var events services.SubmissionPublisher
	if topicName := strings.TrimSpace(cfg.PubSub.SubmissionsTopic); topicName != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := client.Topic(topicName)
		publisher, err := jobs.NewPubSubSubmissionPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise submission publisher", zap.Error(err))
		}
		events = publisher
		probes = append(probes, repositories.Probe{Name: "pubsub", Timeout: time.Second, Check: topicProbe(topic)})
		closers = append(closers, func(context.Context) error {
			topic.Stop()
			return client.Close()
		})
	} else {
		logger.Info("submission events disabled; no pubsub topic configured")
	}

	healthRepo, err := repositories.NewProbeHealthRepository(probes)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}

	container, err := di.NewContainer(cfg, di.Deps{
		Admin:   adminClients,
		Events:  events,
		Health:  healthRepo,
		Build:   buildInfo,
		Logger:  logger.Named("hcp"),
		Closers: closers,
	})
	if err != nil {
		logger.Fatal("failed to initialise container", zap.Error(err))
	}

	authLogger := observability.NewPrintfAdapter(logger.Named("auth"))
	appProxy := auth.NewAppProxyVerifier(cfg.Shopify.APISecret,
		auth.WithAppProxyClockSkew(cfg.Security.AppProxyClockSkew),
		auth.WithAppProxyLogger(authLogger),
		auth.WithAppProxyMetrics(metrics),
	)
	sessionTokens := auth.NewSessionTokenVerifier(cfg.Shopify.APIKey, cfg.Shopify.APISecret,
		auth.WithSessionTokenLogger(authLogger),
		auth.WithSessionTokenMetrics(metrics),
	)

	intake := handlers.NewHCPHandlers(container,
		handlers.WithValidationStatus(cfg.HCP.ValidationStatus),
		handlers.WithCustomerTag(cfg.HCP.CustomerTag),
		handlers.WithSubmissionRecorder(metrics),
		handlers.WithHCPLogger(logger.Named("hcp")),
	)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(container.System),
	)

	submissionKeys, err := idempotency.NewFirestoreStore(firestoreProvider, cfg.Firestore.KeyCollection)
	if err != nil {
		logger.Fatal("failed to initialise submission key store", zap.Error(err))
	}
	replayGuard := idempotency.Middleware(submissionKeys,
		idempotency.WithTTL(cfg.HCP.ReplayWindow),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	httpLogger := logger.Named("http")
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLogger(httpLogger),
			observability.RecoveryMiddleware(httpLogger),
			observability.MetricsMiddleware(metrics),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMetricsHandler(metrics.Handler()),
		handlers.WithAllowedOrigins(cfg.CORS.AllowedOrigins...),
		handlers.WithProxyRoutes(intake.Routes, appProxy.RequireAppProxy(), replayGuard),
		handlers.WithAdminRoutes(intake.Routes, sessionTokens.RequireSessionToken(), replayGuard),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("hcp api listening",
			zap.String("version", buildInfo.Version),
			zap.String("environment", buildInfo.Environment),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("closing dependencies", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

// secretFetcherOptions reads the fetcher settings before config.Load so that Load can resolve
// secret references through it.
func secretFetcherOptions(logger *zap.Logger, env map[string]string) []secrets.Option {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallback := lookup("API_SECRET_FALLBACK_FILE")
	if fallback == "" {
		fallback = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(project),
		secrets.WithFallbackFile(fallback),
	}
	if ttl, err := time.ParseDuration(lookup("API_SECRET_CACHE_TTL")); err == nil && ttl > 0 {
		opts = append(opts, secrets.WithCacheTTL(ttl))
	}
	if credentials := lookup("API_SECRET_CREDENTIALS_FILE"); credentials != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentials)))
	}
	return opts
}

// secretProbe accepts NotFound for the probe secret.
func secretProbe(fetcher *secrets.Fetcher) func(context.Context) error {
	return func(ctx context.Context) error {
		err := fetcher.Ping(ctx, secretHealthReference)
		if err == nil {
			return nil
		}
		if st, ok := status.FromError(err); ok && st.Code() == codes.NotFound {
			return nil
		}
		return err
	}
}

func topicProbe(topic *pubsub.Topic) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("pubsub topic %s does not exist", topic.ID())
		}
		return nil
	}
}
