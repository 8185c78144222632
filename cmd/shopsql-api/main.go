package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/shopsql/shopsql/internal/api"
	"github.com/shopsql/shopsql/internal/config"
	"github.com/shopsql/shopsql/internal/inference"
	"github.com/shopsql/shopsql/internal/nl2sql"
	"github.com/shopsql/shopsql/internal/observability"
	"github.com/shopsql/shopsql/internal/pipeline"
	"github.com/shopsql/shopsql/internal/query/sqldb"
	"github.com/shopsql/shopsql/internal/storage"
	s3store "github.com/shopsql/shopsql/internal/storage/s3"
	"github.com/shopsql/shopsql/internal/warehouse"
)

func main() {
	cfg, err := config.LoadFromEnv("shopsql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	dialect, err := warehouse.ParseDialect(cfg.Database.Dialect)
	if err != nil {
		logger.Error("invalid database dialect", slog.Any("error", err))
		os.Exit(1)
	}
	db, err := warehouse.Open(context.Background(), warehouse.DBConfig{
		Dialect:         dialect,
		DSN:             cfg.Database.DSN,
		ReadOnly:        cfg.Database.ReadOnly,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		PingTimeout:     cfg.Database.PingTimeout,
	})
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var modelStore storage.ObjectStore
	if strings.TrimSpace(cfg.ModelStore.Endpoint) != "" {
		store, err := s3store.New(context.Background(), s3store.Config{
			Endpoint:        cfg.ModelStore.Endpoint,
			Region:          cfg.ModelStore.Region,
			Bucket:          cfg.ModelStore.Bucket,
			AccessKeyID:     cfg.ModelStore.AccessKeyID,
			SecretAccessKey: cfg.ModelStore.SecretAccessKey,
			UseSSL:          cfg.ModelStore.UseSSL,
			Prefix:          cfg.ModelStore.Prefix,
		})
		if err != nil {
			logger.Error("failed to initialize model store", slog.Any("error", err))
			os.Exit(1)
		}
		modelStore = store
	}

	loader, resolver, err := newLoader(cfg, modelStore, logger)
	if err != nil {
		logger.Error("failed to initialize model backend", slog.Any("error", err))
		os.Exit(1)
	}
	engine := inference.NewEngine(loader, inference.Options{
		ModelPath:      cfg.Model.Path,
		ContextWindow:  cfg.Model.ContextWindow,
		Threads:        cfg.Model.Threads,
		GPULayers:      cfg.Model.GPULayers,
		RetryInterval:  cfg.Model.RetryInterval,
		StartupTimeout: cfg.Model.StartupTimeout,
		Resolver:       resolver,
	}, logger)
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("failed to close inference engine", slog.Any("error", err))
		}
	}()

	if cfg.Model.EagerInit {
		initCtx, cancel := context.WithTimeout(context.Background(), cfg.Model.StartupTimeout)
		if err := engine.Initialize(initCtx); err != nil {
			logger.Warn("model not loaded at startup; serving fallback queries until it is",
				slog.String("backend", cfg.Model.Backend),
				slog.String("model", cfg.Model.Path),
				slog.Any("error", err),
			)
		}
		cancel()
	}

	introspector := warehouse.NewIntrospector(db, dialect)
	name := modelName(cfg)
	generator := nl2sql.NewGenerator(nl2sql.GeneratorConfig{
		Schema:          introspector,
		Completer:       engine,
		Model:           name,
		GenerateTimeout: cfg.Model.GenerateTimeout,
		Options: inference.GenerateOptions{
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
		},
		Logger: logger,
	})
	service := pipeline.NewService(generator, sqldb.NewEngine(db, logger), cfg.Query.RowLimit, logger)

	handler := api.NewHandler(cfg, api.Dependencies{
		Logger:        logger,
		Schema:        introspector,
		Questions:     service,
		ModelName:     name,
		DatabaseCheck: api.CheckDatabase(db),
		Readiness: api.CombineReadinessChecks(
			api.CheckDatabase(db),
			api.CheckModel(engine),
		),
		DependencyTimeout: time.Second,
	})
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dialect", string(dialect)),
			slog.String("backend", cfg.Model.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
	}
}

// newLoader picks the completion backend. Only llamacpp reads a local
// artifact, so the resolver is nil for the hosted backends.
func newLoader(cfg config.Config, store storage.ObjectStore, logger *slog.Logger) (inference.Loader, inference.Resolver, error) {
	switch cfg.Model.Backend {
	case config.BackendLlamaCPP:
		loader := inference.NewLlamaCPPLoader(inference.LlamaCPPConfig{
			Binary:         cfg.Model.ServerBinary,
			Addr:           cfg.Model.ServerAddr,
			StartupTimeout: cfg.Model.StartupTimeout,
		}, logger)
		return loader, inference.NewArtifactResolver(store, cfg.Model.CacheDir, logger), nil
	case config.BackendOpenAI:
		loader, err := inference.NewOpenAILoader(inference.OpenAIConfig{
			BaseURL: cfg.Model.BaseURL,
			APIKey:  cfg.Model.APIKey,
			Model:   cfg.Model.Name,
		})
		return loader, nil, err
	case config.BackendGemini:
		loader, err := inference.NewGeminiLoader(inference.GeminiConfig{
			APIKey: cfg.Model.APIKey,
			Model:  cfg.Model.Name,
		})
		return loader, nil, err
	default:
		return nil, nil, fmt.Errorf("unsupported model backend %q", cfg.Model.Backend)
	}
}

func modelName(cfg config.Config) string {
	if name := strings.TrimSpace(cfg.Model.Name); name != "" {
		return name
	}
	switch cfg.Model.Backend {
	case config.BackendOpenAI:
		return inference.DefaultOpenAIModel
	case config.BackendGemini:
		return inference.DefaultGeminiModel
	}
	base := filepath.Base(strings.TrimSpace(cfg.Model.Path))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
