package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/scheduler/internal/config"
	"github.com/clinic/scheduler/internal/domain/appointment"
	"github.com/clinic/scheduler/internal/domain/doctor"
	"github.com/clinic/scheduler/internal/domain/patient"
	"github.com/clinic/scheduler/internal/domain/prescription"
	"github.com/clinic/scheduler/internal/platform/auth"
	"github.com/clinic/scheduler/internal/platform/db"
	"github.com/clinic/scheduler/internal/platform/metrics"
	"github.com/clinic/scheduler/internal/platform/middleware"
	"github.com/clinic/scheduler/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "scheduler-server",
		Short: "Clinic appointment scheduling server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(hashPasswordCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	var dir string
	var schema string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	var target int
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			n, err := newMigrator(pool, dirOrConfig(dir, cfg)).UpTo(ctx, schema, target)
			if err != nil {
				return fmt.Errorf("migrate up (%d applied before failure): %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to schema %s\n", n, schema)
			return nil
		},
	}
	upCmd.Flags().IntVar(&target, "to", 0, "apply up to and including this version (0 = all)")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer pool.Close()

			statuses, err := newMigrator(pool, dirOrConfig(dir, cfg)).Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-8s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				state, at := "pending", ""
				if s.Applied {
					state = "applied"
					at = s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%-8d %-40s %-10s %s\n", s.Version, s.Name, state, at)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&dir, "dir", "", "read migrations from this directory instead of the embedded set")
	cmd.PersistentFlags().StringVar(&schema, "schema", "public", "target schema")
	cmd.AddCommand(upCmd, statusCmd)
	return cmd
}

func hashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func dirOrConfig(flag string, cfg *config.Config) string {
	if flag != "" {
		return flag
	}
	return cfg.MigrationsDir
}

// newMigrator uses the migrations compiled into the binary unless dir is set.
func newMigrator(pool db.Pool, dir string) *db.Migrator {
	if dir == "" {
		return db.NewMigratorFS(pool, migrations.FS)
	}
	return db.NewMigrator(pool, dir)
}

// serverDeps are the long-lived resources the HTTP server is built from.
type serverDeps struct {
	pool     db.Pool
	pinger   db.Pinger
	stats    func() *db.PoolStats
	redis    *redis.Client
	registry *prometheus.Registry
	logger   zerolog.Logger
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "" || os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests without a bearer token act as X-Dev-Principal or admin")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Redis is optional. Without it revocations and rate limits stay in process.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		logger.Info().Msg("connected to redis")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e := newServer(cfg, serverDeps{
		pool:     pool,
		pinger:   pool,
		stats:    func() *db.PoolStats { return db.GetPoolStats(pool) },
		redis:    rdb,
		registry: reg,
		logger:   logger,
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(cfg *config.Config, d serverDeps) *echo.Echo {
	logger := d.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := metrics.NewHTTPMetrics(d.registry)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Dev-Principal"},
	}))
	e.Use(httpMetrics.Middleware())
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	// Token revocation is shared through Redis when it is configured.
	var revoked auth.RevocationList = auth.NewMemoryRevocationList()
	if d.redis != nil {
		revoked = auth.NewRedisRevocationList(d.redis)
	}
	tokens := auth.NewTokens(cfg.TokenConfig(), revoked)

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(tokens, auth.AuthSkipper))
	} else {
		e.Use(auth.Middleware(tokens, auth.AuthSkipper))
	}

	// Health and metrics
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(d.pinger, d.stats))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})))

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Booking writes get a second, cluster-wide budget when Redis is around.
	var bookingMW []echo.MiddlewareFunc
	if d.redis != nil {
		limiter := middleware.NewRedisRateLimiter(d.redis, cfg.BookingRateLimit, time.Minute, "rl:booking")
		bookingMW = append(bookingMW, limiter.WriteLimit(logger))
	}

	// Scheduling engine
	apptStore := appointment.NewStorePG(d.pool)
	apptSvc := appointment.NewService(apptStore, logger, metrics.NewSchedulingMetrics(d.registry))
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1, bookingMW...)

	// Doctors
	doctorSvc := doctor.NewService(doctor.NewRepo(d.pool), apptSvc, tokens, logger)
	doctor.NewHandler(doctorSvc, logger).RegisterRoutes(apiV1)

	// Patients
	patientSvc := patient.NewService(patient.NewRepo(d.pool), tokens, logger)
	patient.NewHandler(patientSvc, logger).RegisterRoutes(apiV1)

	// Prescriptions
	rxSvc := prescription.NewService(prescription.NewRepo(d.pool), apptSvc, logger)
	prescription.NewHandler(rxSvc, logger).RegisterRoutes(apiV1)

	// Auth
	if cfg.AdminUsername == "" {
		logger.Warn().Msg("ADMIN_USERNAME not set, admin login will reject every attempt")
	}
	auth.RegisterAdminLogin(apiV1, auth.AdminCredentials{
		Username:     cfg.AdminUsername,
		PasswordHash: cfg.AdminPasswordHash,
	}, tokens, logger)
	auth.RegisterRevocationRoutes(apiV1, tokens, revoked)

	return e
}
