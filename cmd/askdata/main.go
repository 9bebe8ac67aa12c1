package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/askdata/pkg/analysis"
	"github.com/platinummonkey/askdata/pkg/api"
	"github.com/platinummonkey/askdata/pkg/async"
	"github.com/platinummonkey/askdata/pkg/auth"
	"github.com/platinummonkey/askdata/pkg/billing"
	"github.com/platinummonkey/askdata/pkg/config"
	"github.com/platinummonkey/askdata/pkg/history"
	"github.com/platinummonkey/askdata/pkg/observability"
	"github.com/platinummonkey/askdata/pkg/subscription"
	"github.com/platinummonkey/askdata/pkg/tiers"
	"github.com/platinummonkey/askdata/pkg/usage"
)

func main() {
	startup := logrus.New()
	startup.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.LoadConfig()
	if err != nil {
		startup.WithError(err).Fatal("Invalid configuration")
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx := context.Background()

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		startup.WithError(err).Fatal("Failed to initialize OpenTelemetry")
	}

	// Storage backends
	var (
		db           *sql.DB
		usageStore   usage.Store
		historyStore history.Store
	)
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		db, err = sql.Open("postgres", cfg.Storage.PostgresURL)
		if err != nil {
			startup.WithError(err).Fatal("Failed to open database")
		}
		db.SetMaxOpenConns(cfg.Storage.MaxConns)
		db.SetConnMaxIdleTime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			startup.WithError(err).Fatal("Database unreachable")
		}

		pgUsage := usage.NewPostgresStore(db)
		if metrics != nil {
			pgUsage = pgUsage.WithMetrics(metrics)
		}
		if err := pgUsage.EnsureSchema(ctx); err != nil {
			startup.WithError(err).Fatal("Failed to ensure usage schema")
		}

		pgHistory := history.NewPostgresStore(db)
		if err := pgHistory.EnsureSchema(ctx); err != nil {
			startup.WithError(err).Fatal("Failed to ensure history schema")
		}

		usageStore, historyStore = pgUsage, pgHistory
		startup.Info("Using postgres storage")
	default:
		usageStore = usage.NewMemoryStore()
		historyStore = history.NewMemoryStore()
		startup.Warn("Using in-memory storage; state is lost on restart")
	}

	// Webhook dedup: Redis when configured, in-process LRU otherwise.
	var (
		redisClient *redis.Client
		deduper     billing.Deduper
	)
	if cfg.Storage.RedisURL != "" {
		redisClient, err = billing.NewRedisClient(cfg.Storage.RedisURL, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
		if err != nil {
			startup.WithError(err).Fatal("Failed to connect to Redis")
		}
		deduper = billing.NewRedisDeduper(redisClient, cfg.Retention.DedupWindow)
		startup.Info("Using Redis webhook dedup")
	} else {
		deduper, err = billing.NewMemoryDeduper(billing.DefaultDedupCapacity)
		if err != nil {
			startup.WithError(err).Fatal("Failed to create webhook deduper")
		}
		startup.Info("Using in-memory webhook dedup")
	}

	// Domain components
	catalog := tiers.NewCatalog(cfg.Limits.FreeDailyLimit)
	ledger := usage.NewLedger(usageStore, catalog, logger)
	lifecycle := subscription.NewLifecycle(usageStore, logger)

	verifier := billing.NewStripeVerifier(cfg.Stripe.WebhookSecret)
	processor := billing.NewProcessor(verifier, deduper, lifecycle, usageStore, logger)
	if metrics != nil {
		processor = processor.WithMetrics(metrics)
	}

	var checkout api.CheckoutCreator
	if cfg.Stripe.SecretKey != "" && cfg.Stripe.ProPriceID != "" {
		checkout = billing.NewStripeClient(billing.StripeConfig{
			APIBase:    cfg.Stripe.APIBase,
			SecretKey:  cfg.Stripe.SecretKey,
			PriceID:    cfg.Stripe.ProPriceID,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
		}, logger)
	} else {
		startup.Warn("Stripe checkout disabled; secret key or price ID not configured")
	}

	var answerer analysis.Answerer
	if cfg.Answerer.Endpoint != "" {
		answerer = analysis.NewHTTPAnswerer(cfg.Answerer.Endpoint).WithTimeout(cfg.Answerer.Timeout)
	} else {
		startup.Fatal("ASKDATA_ANSWERER_ENDPOINT is required")
	}

	orchestrator := analysis.NewOrchestrator(ledger, historyStore, answerer, logger)
	if metrics != nil {
		orchestrator = orchestrator.WithMetrics(metrics)
	}

	authProvider, err := buildAuthProvider(ctx, cfg)
	if err != nil {
		startup.WithError(err).Fatal("Failed to initialize auth provider")
	}

	sweeper := history.NewRetentionSweeper(historyStore, usageStore, catalog, logger)
	if metrics != nil {
		sweeper = sweeper.WithMetrics(metrics)
	}
	if err := sweeper.Start(cfg.Retention.SweepSchedule); err != nil {
		startup.WithError(err).Fatal("Invalid retention sweep schedule")
	}
	async.SafeGo(ctx, 10*time.Minute, "startup retention sweep", func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	})

	// HTTP servers: API on the main port, probes and metrics on the
	// health port.
	apiServer := &http.Server{
		Addr: cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: api.NewServer(api.Deps{
			Logger:       logger,
			Metrics:      metrics,
			Auth:         authProvider,
			Orchestrator: orchestrator,
			Ledger:       ledger,
			History:      historyStore,
			Webhooks:     processor,
			Checkout:     checkout,
		}).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	var group errgroup.Group
	group.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	shutdown := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return healthServer.Shutdown(ctx)
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		sweeper.Stop()
		return nil
	})
	if db != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return db.Close()
		})
	}
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return redisClient.Close()
		})
	}
	if otelProviders != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, otelProviders, logger)
		})
	}

	group.Go(shutdown.WaitForShutdown)

	if err := group.Wait(); err != nil {
		startup.WithError(err).Fatal("Server exited with error")
	}
	logger.Info("Shutdown complete")
}

// buildAuthProvider selects the identity provider from configuration.
func buildAuthProvider(ctx context.Context, cfg *config.Config) (auth.Provider, error) {
	switch cfg.Auth.Mode {
	case config.AuthOIDC:
		return auth.NewOIDCProvider(ctx, cfg.Auth.Issuer, cfg.Auth.ClientID, cfg.Auth.ClientSecret, cfg.Auth.RedirectURL)
	default:
		return auth.NewStaticProvider(auth.User{
			ID:    cfg.Auth.StaticUserID,
			Email: cfg.Auth.StaticUserEmail,
		}), nil
	}
}
