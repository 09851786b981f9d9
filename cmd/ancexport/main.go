package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/ancexport/internal/config"
	"github.com/ehr/ancexport/internal/domain/antenatal"
	"github.com/ehr/ancexport/internal/domain/fhirexport"
	"github.com/ehr/ancexport/internal/platform/blobstore"
	"github.com/ehr/ancexport/internal/platform/db"
	"github.com/ehr/ancexport/internal/platform/middleware"
	"github.com/ehr/ancexport/migrations"
)

const version = "0.1.0"

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ancexport",
		Short:        "Antenatal clinic records with FHIR R4 Patient export",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("env-file", config.DefaultEnvFile, "dotenv file merged into the environment")

	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(exportCmd())
	return root
}

// loadConfig reads and validates configuration using the --env-file flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.LoadFrom(envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Str("service", "ancexport").Logger()
}

// newArchive returns the store every emitted file is copied to, or nil when
// archiving is off.
func newArchive(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, error) {
	switch cfg.ExportArchive {
	case config.ArchiveMemory:
		return blobstore.NewInMemoryBlobStore(), nil
	case config.ArchiveS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return blobstore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.ExportS3Bucket, cfg.ExportS3Prefix), nil
	default:
		return nil, nil
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

// database is what the server needs from the pool.
type database interface {
	db.Querier
	db.Pinger
}

type serverDeps struct {
	cfg       *config.Config
	logger    zerolog.Logger
	db        database
	poolStats func() *db.PoolStats
	archive   blobstore.BlobStore
	registry  *prometheus.Registry
}

func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	if d.cfg.MetricsEnabled {
		e.Use(middleware.NewHTTPMetrics(d.registry).Middleware())
	}
	e.Use(middleware.Logger(d.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  d.cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderContentType, middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition, middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(d.db, d.poolStats))

	metrics := fhirexport.NewMetrics(d.registry)
	if d.cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{Registry: d.registry})))
	}

	apiV1 := e.Group("/api/v1")
	fhirGroup := e.Group("/fhir")

	patients := antenatal.NewService(antenatal.NewPatientRepoPG(d.db))
	antenatal.NewHandler(patients).RegisterRoutes(apiV1)

	var archive fhirexport.Sink
	if d.archive != nil {
		archive = fhirexport.NewArchiveSink(d.archive, map[string]string{"origin": "http"})
		blobstore.NewBlobHandler(d.archive).RegisterRoutes(apiV1)
	}
	exports := fhirexport.NewService(patients, metrics)
	emitter := fhirexport.NewEmitter(nil, d.logger, metrics)
	fhirexport.NewHandler(exports, emitter, archive, d.logger, metrics).RegisterRoutes(fhirGroup)

	return e
}

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure export archive")
	}
	logger.Info().Str("archive", cfg.ExportArchive).Msg("export archive configured")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e := newServer(serverDeps{
		cfg:       cfg,
		logger:    logger,
		db:        pool,
		poolStats: func() *db.PoolStats { return db.GetPoolStats(pool) },
		archive:   archive,
		registry:  reg,
	})

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
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
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
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
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to schema %s.\n", count, schema)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd, schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.Files
	}
	return os.DirFS(dir)
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *db.Migrator, string) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrationSource(dir)), cfg.DBSchema)
}

func printStatus(cmd *cobra.Command, schema string, statuses []db.MigrationStatus) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
