package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/eventostec/eventostec/pkg/authsvc"
	"github.com/eventostec/eventostec/pkg/config"
	"github.com/eventostec/eventostec/pkg/directory"
	"github.com/eventostec/eventostec/pkg/identity"
	"github.com/eventostec/eventostec/pkg/observability"
	"github.com/eventostec/eventostec/pkg/orgassign"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(observability.ParseLevel(cfg.Observability.LogLevel), os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && err != context.Canceled {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	// Database
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Redis is optional; without it the rate limiter is disabled and
	// readiness reports healthy on the database alone.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unavailable at startup, continuing without it")
		}
	}

	// Lookup tables
	tables := config.NewTableSource(nil)
	if cfg.Auth.TablesPath != "" {
		loaded, err := config.LoadTables(cfg.Auth.TablesPath)
		if err != nil {
			return fmt.Errorf("failed to load auth tables: %w", err)
		}
		tables.Replace(loaded)
	}

	// Token verifier
	var verifier identity.TokenVerifier
	verificationMode := "oidc"
	if cfg.Auth.RequireVerification {
		oidcVerifier, err := identity.NewOIDCVerifier(ctx, cfg.Auth.IssuerURL, cfg.Auth.ClientID)
		if err != nil {
			return fmt.Errorf("failed to initialize OIDC verifier: %w", err)
		}
		verifier = oidcVerifier
	} else {
		logger.Warn("token verification is DISABLED, tokens are decoded without signature checks")
		verifier = identity.NewUnverifiedDecoder()
		verificationMode = "unverified"
	}

	// Observability
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	tracerProvider, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:        cfg.Observability.TracingEnabled,
		Endpoint:       cfg.Observability.TracingEndpoint,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Insecure:       cfg.Observability.TracingInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			tracerProvider.Shutdown(shutdownCtx)
		}()
	}

	// Domain services
	users, err := directory.NewUserStore(db)
	if err != nil {
		return err
	}
	assigner, err := orgassign.NewAssigner(db, tables, logger, metrics)
	if err != nil {
		return err
	}

	service := authsvc.NewService(verifier, tables, users, assigner, logger)

	var limiter *authsvc.LoginRateLimiter
	if redisClient != nil {
		limiter = authsvc.NewLoginRateLimiter(redisClient,
			cfg.Auth.RateLimitPerWindow, cfg.Auth.RateLimitWindow, logger)
	}

	handler := authsvc.NewHandler(service, limiter, metrics, logger, cfg.Environment, verificationMode)

	// API router
	router := mux.NewRouter()
	router.Use(authsvc.RequestIDMiddleware)
	router.Use(authsvc.LoggingMiddleware(logger))
	if metrics != nil {
		router.Use(metrics.HTTPMiddleware)
	}
	if tracerProvider != nil {
		router.Use(func(next http.Handler) http.Handler {
			return observability.TraceMiddleware(next, cfg.Observability.ServiceName)
		})
	}
	handler.Register(router)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port
	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", healthChecker.Liveness)
	healthMux.HandleFunc("/readyz", healthChecker.Readiness)
	if metrics != nil {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("starting API server")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("starting health server")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.Auth.WatchTables && cfg.Auth.TablesPath != "" {
		watcher, err := config.NewTableWatcher(cfg.Auth.TablesPath, tables)
		if err != nil {
			return fmt.Errorf("failed to start tables watcher: %w", err)
		}
		watcher.OnReload = func(*config.Tables) {
			logger.WithField("path", cfg.Auth.TablesPath).Info("auth tables reloaded")
		}
		watcher.OnError = func(err error) {
			logger.WithError(err).Warn("auth tables reload failed, keeping previous tables")
		}
		group.Go(func() error {
			err := watcher.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		apiServer.Shutdown(shutdownCtx)
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	return group.Wait()
}
