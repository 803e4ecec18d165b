package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"poolwatch/internal/config"
	"poolwatch/internal/ingest"
	"poolwatch/internal/pool"
	"poolwatch/internal/storage"
	"poolwatch/internal/storage/postgres"
	"poolwatch/internal/storage/sqlite"
)

func main() {
	root := &cobra.Command{
		Use:          "poolwatch",
		Short:        "Mining pool earnings scraper and ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("db", "./data/pool.db", "sqlite database path")
	root.PersistentFlags().String("pg-dsn", "", "Postgres DSN (overrides sqlite)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the polling ingest loop",
		RunE:  runPoller,
	}
	runCmd.Flags().String("account", "", "pool account (payout address)")
	runCmd.Flags().String("pool-root", pool.DefaultRootURL, "pool web root URL")
	runCmd.Flags().Duration("period", 10*time.Minute, "polling period")
	runCmd.Flags().Duration("http-timeout", 30*time.Second, "HTTP request timeout")
	runCmd.Flags().Int("max-retries", 2, "maximum fetch retry attempts per cycle")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial fetch retry backoff")
	runCmd.Flags().String("cursor", "./data/cursor.json", "ingest cursor file path")
	runCmd.Flags().Bool("cursor-enabled", true, "enable the ingest cursor")
	root.AddCommand(runCmd)

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the ledger schema if absent",
		RunE:  runSetup,
	}
	root.AddCommand(setupCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print current earnings totals",
		RunE:  runReport,
	}
	reportCmd.Flags().String("cursor", "./data/cursor.json", "ingest cursor file path")
	root.AddCommand(reportCmd)

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Dump all balance snapshots",
		RunE:  runSnapshots,
	}
	root.AddCommand(snapshotsCmd)

	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as JSONL files",
		RunE:  runExport,
	}
	exportCmd.Flags().String("out-dir", "./data", "output directory")
	root.AddCommand(exportCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only reporting API",
		RunE:  runServe,
	}
	serveCmd.Flags().String("listen", ":8080", "listen address")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runPoller(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Account == "" {
		return fmt.Errorf("account is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Setup(ctx); err != nil {
		return err
	}

	engine := ingest.NewEngine(store)
	client := pool.NewClient(pool.ClientConfig{
		RootURL: cfg.PoolRoot,
		Timeout: cfg.HTTPTimeout,
	})
	cursor := ingest.NewCursorStore(cfg.Cursor, cfg.CursorEnabled)

	poller := ingest.NewPoller(ingest.PollerConfig{
		Account:      cfg.Account,
		Period:       cfg.Period,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, engine, cursor, logger)

	logger.Info("poolwatch start",
		zap.String("pool_root", cfg.PoolRoot),
		zap.String("account", cfg.Account),
		zap.Duration("period", cfg.Period),
		zap.String("db", storeLabel(cfg)),
	)

	err = poller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func runSetup(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Setup(ctx); err != nil {
		return err
	}

	logger.Info("schema ready", zap.String("db", storeLabel(cfg)))
	return nil
}

// openStore selects the storage backend: Postgres when a DSN is set,
// otherwise the local sqlite file.
func openStore(ctx context.Context, cfg config.Config, readOnly bool) (storage.Store, error) {
	if cfg.PGDSN != "" {
		if readOnly {
			return postgres.NewReadOnlyStore(ctx, cfg.PGDSN)
		}
		return postgres.NewStore(ctx, cfg.PGDSN)
	}
	if readOnly {
		return sqlite.OpenReadOnly(cfg.DBPath)
	}
	return sqlite.Open(cfg.DBPath)
}

func storeLabel(cfg config.Config) string {
	if cfg.PGDSN != "" {
		return "postgres"
	}
	return cfg.DBPath
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
