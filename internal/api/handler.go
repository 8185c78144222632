package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shopsql/shopsql/internal/config"
	"github.com/shopsql/shopsql/internal/inference"
	"github.com/shopsql/shopsql/internal/nl2sql"
	"github.com/shopsql/shopsql/internal/observability"
	"github.com/shopsql/shopsql/internal/pipeline"
)

type ReadinessCheck func(ctx context.Context) error

// QuestionService is satisfied by *pipeline.Service.
type QuestionService interface {
	Translate(ctx context.Context, question string) nl2sql.Result
	Ask(ctx context.Context, question string) pipeline.Answer
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DatabaseCheck     ReadinessCheck
	DependencyTimeout time.Duration
	Schema            nl2sql.SchemaDescriber
	Questions         QuestionService
	ModelName         string
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": cfg.Service.Name,
			"endpoints": map[string]string{
				"GET /v1/health":           "service, model and database status",
				"GET /v1/ready":            "readiness of database and model",
				"GET /v1/metrics":          "prometheus metrics",
				"GET /v1/schema":           "tables and columns of the warehouse",
				"POST /v1/query/translate": "translate a question into SQL",
				"POST /v1/query":           "answer a question with SQL results",
			},
		})
	})

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		database := "connected"
		if deps.DatabaseCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout(deps))
			defer cancel()
			if err := deps.DatabaseCheck(ctx); err != nil {
				database = "unavailable"
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"service":  cfg.Service.Name,
			"model":    deps.ModelName,
			"database": database,
		})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), dependencyTimeout(deps))
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	mux.HandleFunc("POST /v1/query/translate", func(w http.ResponseWriter, r *http.Request) {
		handleTranslate(deps, w, r)
	})
	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoverMiddleware(observability.LoggerOrDiscard(deps.Logger)))
	return chain(mux, middlewares...)
}

type pinger interface {
	PingContext(ctx context.Context) error
}

// CheckDatabase pings db. *sql.DB satisfies pinger.
func CheckDatabase(db pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database is not configured")
		}
		return db.PingContext(ctx)
	}
}

type readier interface {
	Ready() bool
}

func CheckModel(model readier) ReadinessCheck {
	return func(_ context.Context) error {
		if model == nil || !model.Ready() {
			return inference.ErrModelUnavailable
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func dependencyTimeout(deps Dependencies) time.Duration {
	if deps.DependencyTimeout <= 0 {
		return 2 * time.Second
	}
	return deps.DependencyTimeout
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
