package nl2sql

import (
	"context"
	"time"

	"github.com/shopsql/shopsql/internal/inference"
	"github.com/shopsql/shopsql/internal/warehouse"
)

const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

type Result struct {
	SQL      string        `json:"sql"`
	Source   string        `json:"source"`
	Rule     string        `json:"rule,omitempty"`
	Reason   string        `json:"fallback_reason,omitempty"`
	Model    string        `json:"model,omitempty"`
	Duration time.Duration `json:"-"`
}

type SchemaDescriber interface {
	DescribeSchema(ctx context.Context) (warehouse.Schema, error)
}

// Completer produces a raw completion for a prompt. *inference.Engine satisfies it.
type Completer interface {
	Generate(ctx context.Context, prompt string, opts inference.GenerateOptions) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, question string) Result
}
