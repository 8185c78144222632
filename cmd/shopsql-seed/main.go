package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopsql/shopsql/internal/config"
	"github.com/shopsql/shopsql/internal/demo/seed"
	"github.com/shopsql/shopsql/internal/migrations"
	"github.com/shopsql/shopsql/internal/observability"
	"github.com/shopsql/shopsql/internal/warehouse"
)

func main() {
	direction := flag.String("direction", "up", "schema direction: up|down")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	schemaOnly := flag.Bool("schema-only", false, "apply the schema without loading demo rows")
	flag.Parse()

	cfg, err := config.LoadFromEnv("shopsql-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	seedCfg, err := seed.LoadConfigFromEnv(os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed config error: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg, os.Stdout)

	dialect, err := warehouse.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		logger.Error("invalid database dialect", slog.Any("error", err))
		os.Exit(1)
	}
	if dialect == warehouse.DialectSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			logger.Error("failed to create database directory", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := warehouse.Open(ctx, warehouse.DBConfig{
		Dialect:     dialect,
		DSN:         cfg.Database.DSN,
		PingTimeout: cfg.Database.PingTimeout,
	})
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	runner := migrations.NewRunner(dialect)
	switch *direction {
	case "up":
		applied, err := runner.Up(ctx, db, *steps)
		if err != nil {
			logger.Error("schema up failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("schema applied", slog.Int("migrations", applied))
	case "down":
		rolledBack, err := runner.Down(ctx, db, *steps)
		if err != nil {
			logger.Error("schema down failed", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("schema rolled back", slog.Int("migrations", rolledBack))
		return
	default:
		fmt.Fprintf(os.Stderr, "invalid direction: %s\n", *direction)
		os.Exit(1)
	}
	if *schemaOnly {
		return
	}

	data := seed.NewGenerator(seedCfg).Generate()
	if _, err := seed.NewSeeder(dialect, logger).Load(ctx, db, data); err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}
