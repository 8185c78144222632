package nl2sql

import "regexp"

type columnAlias struct {
	name    string
	pattern *regexp.Regexp
	actual  string
}

// Applied in order. No replacement produces another alias, which keeps
// NormalizeAliases idempotent.
var columnAliases = []columnAlias{
	{name: "product_name", pattern: regexp.MustCompile(`(?i)\bproduct_name\b`), actual: "product_id"},
	{name: "cpc", pattern: regexp.MustCompile(`(?i)\bcpc\b`), actual: "cost_per_click"},
	{name: "roas", pattern: regexp.MustCompile(`(?i)\broas\b`), actual: "return_on_ad_spend"},
}

// NormalizeAliases rewrites common column-name variants to the real column names.
func NormalizeAliases(sql string) string {
	for _, alias := range columnAliases {
		sql = alias.pattern.ReplaceAllLiteralString(sql, alias.actual)
	}
	return sql
}

// AliasedNames lists the names NormalizeAliases rewrites. A warehouse column
// with one of these names would be unreachable from model output.
func AliasedNames() []string {
	names := make([]string, 0, len(columnAliases))
	for _, alias := range columnAliases {
		names = append(names, alias.name)
	}
	return names
}
