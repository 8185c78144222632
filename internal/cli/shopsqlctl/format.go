package shopsqlctl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type askResponse struct {
	SQL    string `json:"sql"`
	Source string `json:"source"`
	Result struct {
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	} `json:"result"`
}

type schemaResponse struct {
	Tables []struct {
		Name    string   `json:"name"`
		Columns []string `json:"columns"`
	} `json:"tables"`
}

// renderTable formats a successful response body for terminal output. It
// reports false when the body does not decode into the expected shape.
func renderTable(command string, raw []byte) (string, bool) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	switch command {
	case "ask":
		var response askResponse
		if err := decoder.Decode(&response); err != nil {
			return "", false
		}
		return renderAnswer(response), true
	case "schema":
		var response schemaResponse
		if err := decoder.Decode(&response); err != nil {
			return "", false
		}
		rows := make([]table.Row, 0, len(response.Tables))
		for _, t := range response.Tables {
			rows = append(rows, table.Row{t.Name, strings.Join(t.Columns, ", ")})
		}
		return renderRows(table.Row{"table", "columns"}, rows), true
	default:
		var fields map[string]any
		if err := decoder.Decode(&fields); err != nil {
			return "", false
		}
		return renderFields(fields), true
	}
}

func renderAnswer(response askResponse) string {
	header := make(table.Row, 0, len(response.Result.Columns))
	for _, column := range response.Result.Columns {
		header = append(header, column)
	}
	rows := make([]table.Row, 0, len(response.Result.Rows))
	for _, values := range response.Result.Rows {
		row := make(table.Row, 0, len(response.Result.Columns))
		for _, column := range response.Result.Columns {
			row = append(row, formatValue(values[column]))
		}
		rows = append(rows, row)
	}

	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "-- %s (%s)\n", response.SQL, response.Source)
	b.WriteString(renderRows(header, rows))
	_, _ = fmt.Fprintf(&b, "\n(%d %s)", len(rows), plural(len(rows), "row", "rows"))
	return b.String()
}

func renderFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]table.Row, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, table.Row{key, formatValue(fields[key])})
	}
	return renderRows(table.Row{"field", "value"}, rows)
}

func renderRows(header table.Row, rows []table.Row) string {
	t := table.NewWriter()
	t.AppendHeader(header)
	t.AppendRows(rows)
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	return t.Render()
}

func formatValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case json.Number:
		return v.String()
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	default:
		return fmt.Sprint(v)
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
