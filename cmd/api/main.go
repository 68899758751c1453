package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/klinikdesk/platform/cmd/mainconfig"
	"github.com/klinikdesk/platform/internal/api/router"
	appconfig "github.com/klinikdesk/platform/internal/config"
	"github.com/klinikdesk/platform/internal/docstore"
	"github.com/klinikdesk/platform/internal/http/handlers"
	"github.com/klinikdesk/platform/internal/identity"
	"github.com/klinikdesk/platform/internal/observability/metrics"
	"github.com/klinikdesk/platform/internal/visits"
	"github.com/klinikdesk/platform/pkg/logging"
)

func main() {
	// Load .env for local development; a missing file is fine.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting klinikdesk API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic_id", cfg.ClinicID,
	)

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	store := docstore.NewDynamoStore(dynamoClient)

	visitMetrics := metrics.NewVisitMetrics(nil)
	recorder := visits.NewRecorder(store, cfg.VisitAuditsTable, logger, visitMetrics)
	service := visits.NewService(store, visits.Collections{
		Patients: cfg.PatientsTable,
		Visits:   cfg.VisitsTable,
	}, recorder, logger, visitMetrics)

	resolver, err := buildResolver(cfg, store, logger)
	if err != nil {
		logger.Error("failed to build identity resolver", "error", err)
		os.Exit(1)
	}

	r := router.New(&router.Config{
		Logger:             logger,
		VisitsHandler:      handlers.NewVisitsHandler(service, logger),
		Resolver:           resolver,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSec,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildResolver selects the auth strategy once at startup: the session
// resolver in real deployments, the static resolver only when bypass is
// enabled outside production.
func buildResolver(cfg *appconfig.Config, store docstore.Store, logger *logging.Logger) (identity.Resolver, error) {
	if cfg.AuthBypass {
		role, err := identity.ParseRole(cfg.AuthBypassRole)
		if err != nil {
			return nil, err
		}
		logger.Warn("auth bypass enabled, all requests run as a static actor",
			"role", string(role),
			"user_id", cfg.AuthBypassUserID,
		)
		return identity.NewStaticResolver(cfg.AuthBypassUserID, "", role, cfg.ClinicID), nil
	}

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		cache = redis.NewClient(opts)
	}

	return identity.NewSessionResolver(
		cfg.SessionJWTSecret,
		store,
		cfg.MembershipsTable,
		cfg.ClinicID,
		cache,
		cfg.MembershipCacheTTL,
		logger,
	), nil
}
