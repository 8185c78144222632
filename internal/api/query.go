package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopsql/shopsql/internal/warehouse"
)

type questionRequest struct {
	Question string `json:"question"`
}

type translateResponse struct {
	SQL            string `json:"sql"`
	Source         string `json:"source"`
	Rule           string `json:"rule,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`
	Model          string `json:"model,omitempty"`
	DurationMs     int64  `json:"duration_ms"`
}

type queryResult struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

type queryResponse struct {
	Question string         `json:"question"`
	SQL      string         `json:"sql"`
	Source   string         `json:"source"`
	Result   queryResult    `json:"result"`
	Stats    map[string]any `json:"stats"`
}

type schemaTable struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema introspection is not configured", false, nil)
		return
	}

	schema, err := deps.Schema.DescribeSchema(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, warehouse.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(r.Context(), w, status, "SCHEMA_FETCH_FAILED", "failed to load schema", true, map[string]any{"details": err.Error()})
		return
	}

	tables := make([]schemaTable, 0, len(schema.Tables))
	for _, table := range schema.Tables {
		columns := table.Columns
		if columns == nil {
			columns = []string{}
		}
		tables = append(tables, schemaTable{Name: table.Name, Columns: columns})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": tables,
		"prompt": schema.String(),
	})
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Questions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}

	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	translation := deps.Questions.Translate(r.Context(), question)
	writeJSON(w, http.StatusOK, translateResponse{
		SQL:            translation.SQL,
		Source:         translation.Source,
		Rule:           translation.Rule,
		FallbackReason: translation.Reason,
		Model:          translation.Model,
		DurationMs:     translation.Duration.Milliseconds(),
	})
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Questions == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	question, ok := decodeQuestion(w, r)
	if !ok {
		return
	}

	answer := deps.Questions.Ask(r.Context(), question)
	if answer.Error != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "SQL execution failed", false, map[string]any{
			"details": answer.Error.Error(),
			"sql":     answer.SQL(),
		})
		return
	}
	if answer.Result == nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_EXECUTION_FAILED", "query produced no result", false, map[string]any{"sql": answer.SQL()})
		return
	}

	rows := answer.Result.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Question: answer.Question,
		SQL:      answer.SQL(),
		Source:   answer.Translation.Source,
		Result: queryResult{
			Columns: answer.Result.Columns,
			Rows:    rows,
		},
		Stats: map[string]any{
			"generation_ms": answer.Translation.Duration.Milliseconds(),
			"execution_ms":  answer.Result.Duration.Milliseconds(),
			"row_count":     len(rows),
			"truncated":     answer.Result.Truncated,
		},
	})
}

func decodeQuestion(w http.ResponseWriter, r *http.Request) (string, bool) {
	var request questionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid question request body", false, map[string]any{"details": err.Error()})
		return "", false
	}
	question := strings.TrimSpace(request.Question)
	if question == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return "", false
	}
	return question, true
}
