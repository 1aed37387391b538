package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/api/router"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/availability"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/backend"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/bookings"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/catalog"
	appconfig "github.com/shazamohamed705/ghym-medical-clea-sub000/internal/config"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/observability/metrics"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/otp"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/submission"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/internal/wizard"
	"github.com/shazamohamed705/ghym-medical-clea-sub000/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"backend", cfg.BackendBaseURL,
		"dry_run", cfg.BookingDryRun,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}
	redisClient := connectRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	metricsHandler, bookingMetrics := setupMetrics()
	app := buildApp(cfg, logger, bookingMetrics, pool, redisClient)
	go app.registry.Run(ctx, time.Minute)

	handler := router.New(&router.Config{
		Logger:             logger,
		WizardHandler:      app.handler,
		MetricsHandler:     metricsHandler,
		Readiness:          readiness(pool, redisClient),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthJWTSecret:      cfg.AuthJWTSecret,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	// No write timeout: the availability stream is a long-lived websocket.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type application struct {
	registry *wizard.Registry
	handler  *wizard.Handler
}

// buildApp wires the booking engine. pool and redisClient are optional.
func buildApp(cfg *appconfig.Config, logger *logging.Logger, m *metrics.BookingMetrics, pool *pgxpool.Pool, redisClient *redis.Client) *application {
	client := backend.NewClient(cfg.BackendBaseURL, logger,
		backend.WithTimeout(cfg.BackendTimeout),
		backend.WithDryRun(cfg.BookingDryRun),
	)

	var store *catalog.Store
	if redisClient != nil {
		store = catalog.NewStore(redisClient, cfg.CatalogCacheTTL)
	}
	cat := catalog.New(client, store, logger)

	submitOpts := []submission.Option{
		submission.WithMetrics(m),
		submission.WithDefaultDoctorName(cfg.DefaultDoctorName),
	}
	otpOpts := []otp.Option{
		otp.WithRefresher(client),
		otp.WithMetrics(m),
		otp.WithMaxAttempts(cfg.OTPMaxAttempts),
	}
	if redisClient != nil {
		otpOpts = append(otpOpts, otp.WithAttempts(otp.NewRedisAttempts(redisClient, cfg.OTPAttemptWindow)))
	} else {
		otpOpts = append(otpOpts, otp.WithAttempts(otp.NewMemoryAttempts(cfg.OTPAttemptWindow)))
	}
	var handlerOpts []wizard.HandlerOption
	if pool != nil {
		ledger := bookings.NewRepository(pool, logger)
		submitOpts = append(submitOpts, submission.WithLedger(ledger))
		otpOpts = append(otpOpts, otp.WithLedger(ledger))
		handlerOpts = append(handlerOpts, wizard.WithBatches(ledger))
	}

	deps := wizard.Deps{
		Catalog:   cat,
		Submitter: submission.NewOrchestrator(client, logger, submitOpts...),
		NewResolver: func() *availability.Resolver {
			return availability.NewResolver(client, logger,
				availability.WithConcurrency(cfg.ProbeConcurrency),
				availability.WithRateLimit(cfg.ProbeRatePerSecond),
				availability.WithProbeTimeout(cfg.ProbeTimeout),
				availability.WithMetrics(m),
			)
		},
		ContactBase: cfg.ContactChannelURL,
		Logger:      logger,
		Now:         time.Now,
	}
	registry := wizard.NewRegistry(deps, cfg.SessionTTL)
	verifier := otp.NewVerifier(client, logger, otpOpts...)

	return &application{
		registry: registry,
		handler:  wizard.NewHandler(registry, cat, verifier, logger, handlerOpts...),
	}
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewBookingMetrics(reg)
}

func connectPostgresPool(ctx context.Context, dsn string, logger *logging.Logger) *pgxpool.Pool {
	if dsn == "" {
		logger.Warn("DATABASE_URL not set; booking ledger disabled")
		return nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("postgres ping failed; booking ledger disabled", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	if cfg.RedisAddr == "" {
		logger.Warn("REDIS_ADDR not set; catalog cache disabled")
		return nil
	}
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("redis ping failed; catalog cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

func readiness(pool *pgxpool.Pool, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				return err
			}
		}
		if redisClient != nil {
			if err := redisClient.Ping(ctx).Err(); err != nil {
				return err
			}
		}
		return nil
	}
}
