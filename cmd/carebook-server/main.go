package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carebook/carebook/internal/config"
	"github.com/carebook/carebook/internal/domain/booking"
	"github.com/carebook/carebook/internal/domain/identity"
	"github.com/carebook/carebook/internal/domain/registration"
	"github.com/carebook/carebook/internal/domain/verification"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/blobstore"
	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/internal/platform/middleware"
	"github.com/carebook/carebook/internal/platform/notification"
	"github.com/carebook/carebook/internal/platform/telemetry"
)

const version = "0.1.0"

// accountDirectory adapts the identity account repository to the
// booking.Directory interface, avoiding a circular import between the booking
// and identity packages.
type accountDirectory struct {
	accounts identity.AccountRepository
}

func (d *accountDirectory) ContactFor(ctx context.Context, accountID uuid.UUID) (booking.Contact, error) {
	acct, err := d.accounts.GetByID(ctx, accountID)
	if err != nil {
		return booking.Contact{}, err
	}
	return booking.Contact{Name: acct.FullName(), Email: acct.Email}, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "carebook-server",
		Short: "Appointment booking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// resolveJWTSecret returns the configured HMAC secret. In development a
// missing secret is replaced by a random per-process key so the server still
// starts; Validate() refuses that outside development.
func resolveJWTSecret(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random JWT secret: %w", err)
	}
	logger.Warn().Msg("JWT_SECRET not set; generated a random per-process secret")
	return []byte(hex.EncodeToString(key)), nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Telemetry
	tp := telemetry.NewProvider(telemetry.Config{
		ServiceName:    "carebook-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
	})
	defer tp.Shutdown(ctx)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", "10M"))
	e.Use(tp.TracingMiddleware())
	e.Use(tp.MetricsMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Token signing
	secret, err := resolveJWTSecret(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve JWT secret")
	}
	issuer := &auth.TokenIssuer{
		SigningKey: secret,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.AuthAudience,
		TTL:        time.Duration(cfg.JWTTTLMinutes) * time.Minute,
	}

	// API groups. Registration, login and the public doctor directory are
	// unauthenticated; everything else requires a token.
	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Authenticate before rate limiting so the limiter keys on the token
	// subject rather than the shared client IP.
	protected := e.Group("/api/v1")
	if cfg.UsesExternalAuth() {
		protected.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	} else {
		protected.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: secret,
		}))
	}
	protected.Use(middleware.RateLimit(rateLimitCfg))

	// Health and metrics
	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", tp.PrometheusHandler())

	// Notifications
	tpl := notification.NewTemplateEngine()
	notifier := notification.NewManager(
		&notification.LogEmailSender{Logger: logger},
		&notification.LogSMSSender{Logger: logger},
		tpl,
	)

	// Identity domain
	accountRepo := identity.NewAccountRepoPG(pool)
	patientRepo := identity.NewPatientProfileRepoPG(pool)
	doctorRepo := identity.NewDoctorProfileRepoPG(pool)
	txRunner := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	identitySvc := identity.NewService(accountRepo, patientRepo, doctorRepo, issuer, registration.NewZerologSink(logger), txRunner)
	identityHandler := identity.NewHandler(identitySvc)
	identityHandler.RegisterRoutes(apiV1, protected)

	// Booking domain
	availabilityRepo := booking.NewAvailabilityRepoPG(pool)
	slotRepo := booking.NewSlotRepoPG(pool)
	appointmentRepo := booking.NewAppointmentRepoPG(pool)
	directory := &accountDirectory{accounts: accountRepo}
	bookingSvc := booking.NewService(availabilityRepo, slotRepo, appointmentRepo, notifier, directory, logger)
	bookingHandler := booking.NewHandler(bookingSvc)
	bookingHandler.RegisterRoutes(protected)

	// Verification domain
	docStore := blobstore.NewPGBlobStore(pool)
	verificationSvc := verification.NewService(docStore, doctorRepo, accountRepo, notifier, logger)
	verificationHandler := verification.NewHandler(verificationSvc)
	verificationHandler.RegisterRoutes(protected)

	// Periodic gauge refresh for the metrics endpoint.
	gaugeCtx, gaugeCancel := context.WithCancel(ctx)
	defer gaugeCancel()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gaugeCtx.Done():
				return
			case <-ticker.C:
				stats := db.GetPoolStats(pool)
				tp.HealthMetrics().SetDBPoolActive(int64(stats.AcquiredConns))
				tp.HealthMetrics().SetDBPoolIdle(int64(stats.IdleConns))
				if counts, err := appointmentRepo.CountByStatus(gaugeCtx); err == nil {
					var total int64
					for _, n := range counts {
						total += int64(n)
					}
					tp.HealthMetrics().SetAppointmentsTotal(total)
				}
			}
		}
	}()

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")

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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
