package query

import (
	"context"
	"time"
)

// RowLimit caps the rows fetched; zero fetches everything.
type Request struct {
	SQL      string
	RowLimit int
}

// Result holds every fetched row keyed by column name. Repeated column names
// are suffixed with `:n`. Truncated reports that RowLimit stopped the fetch.
type Result struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated"`
	Duration  time.Duration    `json:"-"`
}

// ExecutionError is the only error an Engine returns. Message carries the
// database's own text and SQL the statement that was attempted.
type ExecutionError struct {
	Message string
	SQL     string
	Err     error
}

func (e *ExecutionError) Error() string {
	return e.Message
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
