package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	catalogsync "github.com/goliatone/go-catalog-sync"
	"github.com/goliatone/go-catalog-sync/adapters/gocommand"
	"github.com/goliatone/go-catalog-sync/adapters/gologger"
	catalogcommand "github.com/goliatone/go-catalog-sync/command"
	"github.com/goliatone/go-catalog-sync/core"
	catalogmigrations "github.com/goliatone/go-catalog-sync/migrations"
	"github.com/goliatone/go-command"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var (
		configPath string
		logLevel   string
		runOnce    bool
		fullSync   bool
	)
	flag.StringVar(&configPath, "config", getEnv("CATALOG_SYNC_CONFIG", "config.yaml"), "path to a YAML config file")
	flag.StringVar(&logLevel, "log-level", getEnv("CATALOG_SYNC_LOG_LEVEL", "info"), "log level")
	flag.BoolVar(&runOnce, "run-once", false, "run one reconciliation and exit")
	flag.BoolVar(&fullSync, "full", false, "with -run-once, ignore stored cursors")
	flag.Parse()

	provider := gologger.NewJSONLogger(os.Stdout, logLevel)
	logger := provider.GetLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, configPath, provider, runOnce, fullSync); err != nil {
		logger.Error("catalog sync exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, provider core.LoggerProvider, runOnce bool, fullSync bool) error {
	logger := provider.GetLogger("main")

	cfg, err := core.LoadConfig(ctx, core.DefaultConfig(),
		core.FileConfigLoader{Path: configPath},
		core.EnvConfigLoader{},
	)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("database close failed", "error", closeErr)
		}
	}()

	pipeline, err := catalogsync.NewFromPersistence(cfg, client, catalogsync.WithLoggerProvider(provider))
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	registry := gocommand.NewRegistryAdapter(command.NewRegistry())
	subscriptions, err := pipeline.RegisterCommands(registry)
	if err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	defer subscriptions.Unsubscribe()
	if err := registry.Initialize(); err != nil {
		return fmt.Errorf("initialize command registry: %w", err)
	}

	if runOnce {
		result, err := gocommand.RunReconciliation(ctx, catalogcommand.RunReconciliationMessage{Full: fullSync})
		logger.Info("reconciliation finished",
			"full", result.Full,
			"pages", result.Pages,
			"products", result.Upsert.ProductsUpserted,
			"collections", result.Upsert.CollectionsUpserted,
		)
		return err
	}

	if err := pipeline.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           pipeline.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr, "webhook_path", cfg.Webhook.Path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
		defer cancel()

		logger.Info("shutting down")
		serverErr := server.Shutdown(shutdownCtx)
		pipelineErr := pipeline.Stop(shutdownCtx)
		return errors.Join(serverErr, pipelineErr)
	})
	return group.Wait()
}

func openDatabase(ctx context.Context, cfg core.DatabaseConfig) (*persistence.Client, error) {
	driver := cfg.GetDriver()
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	migrationTarget := catalogmigrations.DialectForDriver(driver)
	var dialect schema.Dialect = pgdialect.New()
	if migrationTarget == catalogmigrations.DialectSQLite {
		dialect = sqlitedialect.New()
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	if _, err := catalogmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect == migrationTarget {
			client.RegisterSQLMigrations(fsys)
		}
		return nil
	}, catalogmigrations.WithValidationTargets(migrationTarget)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

func getEnv(key string, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
