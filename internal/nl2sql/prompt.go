package nl2sql

import (
	"strings"

	"github.com/shopsql/shopsql/internal/warehouse"
)

// BuildPrompt is pure: the same question and schema always yield the same bytes.
func BuildPrompt(question string, schema warehouse.Schema) string {
	var b strings.Builder
	b.WriteString("### Database Schema (Use EXACTLY these column names):\n")
	b.WriteString(schema.String())
	b.WriteString("\n\n")
	b.WriteString("### Examples:\n")
	b.WriteString("Good: SELECT SUM(total_sales) FROM total_sales_metrics;\n")
	b.WriteString("Bad: SELECT ProductName FROM... (never use approximate column names)\n\n")
	b.WriteString("### Question:\n")
	b.WriteString(strings.TrimSpace(question))
	b.WriteString("\n\n")
	b.WriteString("### Rules:\n")
	b.WriteString("1. Use ONLY the tables/columns shown above\n")
	b.WriteString("2. Return JUST the SQL query ending with ;\n")
	b.WriteString("3. Never explain or add comments\n")
	b.WriteString("4. For aggregates, use explicit column names (e.g., SUM(total_sales))\n\n")
	b.WriteString("### SQL Query:\n")
	return b.String()
}
