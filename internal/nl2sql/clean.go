package nl2sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var ErrInvalidQuery = errors.New("invalid query")

var (
	leadingFence   = regexp.MustCompile("(?i)^\\s*```(?:sqlite|sql|postgresql|postgres|mysql|duckdb)?")
	trailingFence  = regexp.MustCompile("```\\s*$")
	readStatement  = regexp.MustCompile(`(?i)^\s*(select|with)\b`)
	mutatingTokens = regexp.MustCompile(`(?i)\b(insert|update|delete|drop)\b`)
)

// Clean turns raw model output into a single read-only statement ending in
// exactly one semicolon. Every rejection wraps ErrInvalidQuery.
func Clean(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == ";" {
		return "", fmt.Errorf("%w: empty statement", ErrInvalidQuery)
	}

	statement := firstStatement(stripMarkdownSQL(trimmed))
	if statement == ";" {
		return "", fmt.Errorf("%w: empty statement", ErrInvalidQuery)
	}
	statement = NormalizeAliases(statement)

	if !readStatement.MatchString(statement) {
		return "", fmt.Errorf("%w: only SELECT or WITH statements are allowed", ErrInvalidQuery)
	}
	if match := mutatingTokens.FindString(statement); match != "" {
		return "", fmt.Errorf("%w: forbidden keyword %q", ErrInvalidQuery, strings.ToUpper(match))
	}
	return statement, nil
}

func stripMarkdownSQL(value string) string {
	value = leadingFence.ReplaceAllString(value, "")
	value = trailingFence.ReplaceAllString(value, "")
	return strings.TrimSpace(value)
}

// firstStatement keeps everything before the first semicolon, including one
// inside a string literal.
func firstStatement(value string) string {
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value) + ";"
}
