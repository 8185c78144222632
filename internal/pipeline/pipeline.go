package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopsql/shopsql/internal/nl2sql"
	"github.com/shopsql/shopsql/internal/observability"
	"github.com/shopsql/shopsql/internal/query"
)

// Answer carries either Result or Error, never both.
type Answer struct {
	Question    string                `json:"question"`
	Translation nl2sql.Result         `json:"translation"`
	Result      *query.Result         `json:"result,omitempty"`
	Error       *query.ExecutionError `json:"-"`
}

func (a Answer) SQL() string {
	return a.Translation.SQL
}

type Service struct {
	translator nl2sql.Translator
	executor   query.Engine
	rowLimit   int
	logger     *slog.Logger
}

func NewService(translator nl2sql.Translator, executor query.Engine, rowLimit int, logger *slog.Logger) *Service {
	return &Service{
		translator: translator,
		executor:   executor,
		rowLimit:   rowLimit,
		logger:     observability.LoggerOrDiscard(logger),
	}
}

func (s *Service) Translate(ctx context.Context, question string) nl2sql.Result {
	return s.translator.Translate(ctx, question)
}

// Ask generates SQL for question and runs it. It does not return an error:
// execution failures are reported through Answer.Error.
func (s *Service) Ask(ctx context.Context, question string) Answer {
	translation := s.translator.Translate(ctx, question)
	answer := Answer{Question: question, Translation: translation}

	result, err := s.executor.Execute(ctx, query.Request{SQL: translation.SQL, RowLimit: s.rowLimit})
	if err != nil {
		var execErr *query.ExecutionError
		if !errors.As(err, &execErr) {
			execErr = &query.ExecutionError{Message: err.Error(), SQL: translation.SQL, Err: err}
		}
		answer.Error = execErr
		return answer
	}

	s.logger.DebugContext(ctx, "question answered",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("question", question),
		slog.String("sql", translation.SQL),
		slog.String("source", translation.Source),
		slog.Int("rows", len(result.Rows)),
		slog.String("duration", result.Duration.String()),
	)
	answer.Result = &result
	return answer
}
