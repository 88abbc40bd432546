package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicops/clinicops/internal/config"
	"github.com/clinicops/clinicops/internal/domain/annotation"
	"github.com/clinicops/clinicops/internal/domain/catalog"
	"github.com/clinicops/clinicops/internal/domain/lock"
	"github.com/clinicops/clinicops/internal/domain/patient"
	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/auth"
	"github.com/clinicops/clinicops/internal/platform/db"
	"github.com/clinicops/clinicops/internal/platform/logging"
	"github.com/clinicops/clinicops/internal/platform/metrics"
	"github.com/clinicops/clinicops/internal/platform/middleware"
	"github.com/clinicops/clinicops/internal/platform/websocket"
	"github.com/clinicops/clinicops/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicops-server",
		Short: "Clinic billing sheet server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(clinicCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the sheet API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

// openPool loads the config and connects, for the one-shot subcommands.
func openPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return cfg, pool, nil
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:         cfg.DatabaseURL,
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		MaxLifetime: time.Hour,
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			_, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
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
	})

	return cmd
}

func clinicCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clinic",
		Short: "Manage clinic data",
	}

	seedCmd := &cobra.Command{
		Use:   "seed-lookups",
		Short: "Copy the default status colors and billing codes into a clinic",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinicID, _ := cmd.Flags().GetString("clinic")
			if !db.ValidClinicID(clinicID) {
				return fmt.Errorf("--clinic is required and must be alphanumeric")
			}

			ctx := context.Background()
			cfg, pool, err := openPool(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			defaults, err := catalog.LoadDefaults(cfg.LookupDefaultsFile)
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogFormat, cfg.LogLevel)
			svc := catalog.NewService(catalog.NewRepoPG(pool), defaults, cfg.CatalogCacheTTL, logger)

			n, err := svc.Seed(ctx, clinicID)
			if err != nil {
				return fmt.Errorf("seed lookups: %w", err)
			}
			fmt.Printf("Seeded %d lookup entries for clinic %s.\n", n, clinicID)
			return nil
		},
	}
	seedCmd.Flags().String("clinic", "", "Clinic identifier")
	cmd.AddCommand(seedCmd)

	return cmd
}

// server is the wired application.
type server struct {
	echo   *echo.Echo
	sheets *sheet.Service
	hub    *websocket.Hub
}

// newServer builds every service and registers the routes. It does not touch
// the database until a request arrives.
func newServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger) (*server, error) {
	defaults, err := catalog.LoadDefaults(cfg.LookupDefaultsFile)
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger)

	patients := patient.NewDirectory(patient.NewRepoPG(pool), cfg.PatientCacheTTL, logger)
	catalogSvc := catalog.NewService(catalog.NewRepoPG(pool), defaults, cfg.CatalogCacheTTL, logger)
	lockSvc := lock.NewService(lock.NewRepoPG(pool), hub, logger)
	annotationSvc := annotation.NewService(annotation.NewRepoPG(pool), hub, logger)

	sheets := sheet.NewService(sheet.Config{
		MinRows:          cfg.SheetMinRows,
		SaveDebounce:     cfg.SaveDebounce,
		SaveTimeout:      cfg.SaveTimeout,
		IdleTTL:          cfg.SessionIdleTTL,
		DefaultHighlight: cfg.DefaultHighlightColor,
		ReservedColor:    cfg.ReservedHighlightColor,
	}, sheet.Deps{
		Rows:        sheet.NewRowRepoPG(pool),
		Patients:    patients,
		Catalog:     catalogSvc,
		Locks:       lockSvc,
		Annotations: annotationSvc,
		Events:      hub,
		Logger:      logger,
	})

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, "X-Clinic-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if cfg.RequestTimeout > 0 {
		e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	}

	// Unauthenticated endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool, 2*time.Second))
	}
	e.GET("/metrics", metrics.Handler())

	// API
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthJWTSecret),
	}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(cfg.DefaultClinic, jwtCfg)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1",
		authMW,
		db.ClinicMiddleware(cfg.DefaultClinic),
		middleware.RateLimit(rateLimitCfg),
		middleware.Audit(logger),
	)

	sheet.NewHandler(sheets).RegisterRoutes(apiV1)
	patient.NewHandler(patients).RegisterRoutes(apiV1)
	catalog.NewHandler(catalogSvc).RegisterRoutes(apiV1)
	lock.NewHandler(lockSvc).RegisterRoutes(apiV1)
	annotation.NewHandler(annotationSvc, cfg.DefaultHighlightColor).RegisterRoutes(apiV1)
	websocket.NewHandler(hub).RegisterRoutes(apiV1)

	return &server{echo: e, sheets: sheets, hub: hub}, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	format := cfg.LogFormat
	if cfg.TextLogs() {
		format = "text"
	}
	logger := logging.Setup(format, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if cfg.IsDev() {
		n, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int("applied", n).Msg("migrations up to date")
	}

	srv, err := newServer(cfg, pool, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go srv.sheets.Run(runCtx)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SaveTimeout+10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	// flush pending sheet saves before the pool closes
	cancelRun()
	if err := srv.sheets.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("sheet shutdown incomplete")
	}
	logger.Info().Msg("server stopped")
	return nil
}
