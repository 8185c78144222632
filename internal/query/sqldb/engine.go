package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopsql/shopsql/internal/observability"
	"github.com/shopsql/shopsql/internal/query"
)

var errMultipleStatements = errors.New("only one statement may be executed")

// Engine executes statements on scoped connections from a shared pool.
type Engine struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewEngine(db *sql.DB, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: observability.LoggerOrDiscard(logger)}
}

// Execute never panics; every failure is a *query.ExecutionError.
func (e *Engine) Execute(ctx context.Context, request query.Request) (result query.Result, err error) {
	start := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			result = query.Result{}
			err = &query.ExecutionError{
				Message: fmt.Sprintf("query execution panicked: %v", recovered),
				SQL:     request.SQL,
			}
		}
		observability.ObserveQueryExecution(err, time.Since(start))
		if err != nil {
			e.logger.WarnContext(ctx, "query execution failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("sql", request.SQL),
				slog.String("error", err.Error()),
			)
		}
	}()

	result, err = e.execute(ctx, request)
	if err != nil {
		var execErr *query.ExecutionError
		if !errors.As(err, &execErr) {
			err = &query.ExecutionError{Message: err.Error(), SQL: request.SQL, Err: err}
		}
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func (e *Engine) execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if strings.Contains(sqlText, ";") {
		return query.Result{}, errMultipleStatements
	}
	if e.db == nil {
		return query.Result{}, fmt.Errorf("no database configured")
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, err
	}
	columns = uniqueColumns(columns)

	resultRows := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if request.RowLimit > 0 && len(resultRows) == request.RowLimit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, err
		}
		resultRows = append(resultRows, rowMap(columns, values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, err
	}

	return query.Result{Columns: columns, Rows: resultRows, Truncated: truncated}, nil
}

// uniqueColumns suffixes repeated result column names (`product_id:1`) so
// every column keeps its own key in a row map.
func uniqueColumns(columns []string) []string {
	unique := make([]string, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, column := range columns {
		seen[column] = true
	}
	used := make(map[string]bool, len(columns))
	for _, column := range columns {
		name := column
		for n := 1; used[name]; n++ {
			if candidate := fmt.Sprintf("%s:%d", column, n); !used[candidate] && !seen[candidate] {
				name = candidate
			}
		}
		used[name] = true
		unique = append(unique, name)
	}
	return unique
}

func rowMap(columns []string, values []any) map[string]any {
	row := make(map[string]any, len(columns))
	for i, column := range columns {
		switch typed := values[i].(type) {
		case []byte:
			row[column] = string(typed)
		default:
			row[column] = typed
		}
	}
	return row
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
