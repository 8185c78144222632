package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopsql/shopsql/internal/inference"
	"github.com/shopsql/shopsql/internal/observability"
	"github.com/shopsql/shopsql/internal/warehouse"
)

const (
	ReasonDatabaseUnavailable = "database_unavailable"
	ReasonModelUnavailable    = "model_unavailable"
	ReasonInvalidQuery        = "invalid_query"
	ReasonTimeout             = "timeout"
	ReasonPanic               = "panic"
	ReasonGenerationError     = "generation_error"
)

var errGenerationPanic = errors.New("generation panicked")

type GeneratorConfig struct {
	Schema          SchemaDescriber
	Completer       Completer
	Model           string
	GenerateTimeout time.Duration
	Options         inference.GenerateOptions
	Logger          *slog.Logger
}

// Generator turns questions into validated SQL, falling back to canned
// queries whenever the model path fails.
type Generator struct {
	schema          SchemaDescriber
	completer       Completer
	model           string
	generateTimeout time.Duration
	options         inference.GenerateOptions
	logger          *slog.Logger
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	return &Generator{
		schema:          cfg.Schema,
		completer:       cfg.Completer,
		model:           strings.TrimSpace(cfg.Model),
		generateTimeout: cfg.GenerateTimeout,
		options:         cfg.Options,
		logger:          observability.LoggerOrDiscard(cfg.Logger),
	}
}

// GenerateSQL always returns a read-only statement.
func (g *Generator) GenerateSQL(ctx context.Context, question string) string {
	return g.Translate(ctx, question).SQL
}

func (g *Generator) Translate(ctx context.Context, question string) (result Result) {
	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = g.fallback(ctx, question, fmt.Errorf("%w: %v", errGenerationPanic, recovered))
		}
		result.Duration = time.Since(start)
		observability.ObserveGeneration(result.Source, result.Reason, result.Duration)
	}()

	sql, err := g.generate(ctx, question)
	if err != nil {
		return g.fallback(ctx, question, err)
	}
	return Result{SQL: sql, Source: SourceModel, Model: g.model}
}

func (g *Generator) generate(ctx context.Context, question string) (string, error) {
	if g.schema == nil {
		return "", fmt.Errorf("describe schema: %w: no introspector configured", warehouse.ErrUnavailable)
	}
	if g.completer == nil {
		return "", fmt.Errorf("generate: %w: no engine configured", inference.ErrModelUnavailable)
	}

	schema, err := g.schema.DescribeSchema(ctx)
	if err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	prompt := BuildPrompt(question, schema)

	genCtx := ctx
	if g.generateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, g.generateTimeout)
		defer cancel()
	}
	raw, err := g.completer.Generate(genCtx, prompt, g.options)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	sql, err := Clean(raw)
	if err != nil {
		return "", fmt.Errorf("clean model output %q: %w", raw, err)
	}
	return sql, nil
}

func (g *Generator) fallback(ctx context.Context, question string, cause error) Result {
	rule := matchFallback(question)
	reason := fallbackReason(cause)
	g.logger.WarnContext(ctx, "sql generation failed, using fallback",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("question", question),
		slog.String("error", cause.Error()),
		slog.String("reason", reason),
		slog.String("rule", rule.name),
	)
	return Result{
		SQL:    rule.sql,
		Source: SourceFallback,
		Rule:   rule.name,
		Reason: reason,
	}
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, errGenerationPanic):
		return ReasonPanic
	case errors.Is(err, warehouse.ErrUnavailable):
		return ReasonDatabaseUnavailable
	case errors.Is(err, inference.ErrModelUnavailable):
		return ReasonModelUnavailable
	case errors.Is(err, ErrInvalidQuery):
		return ReasonInvalidQuery
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonGenerationError
	}
}
