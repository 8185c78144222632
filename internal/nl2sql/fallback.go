package nl2sql

import "strings"

type fallbackRule struct {
	name     string
	keywords []string
	sql      string
}

var fallbackRules = []fallbackRule{
	{
		name:     "total_sales",
		keywords: []string{"total", "sum", "sales"},
		sql:      "SELECT SUM(total_sales) FROM total_sales_metrics;",
	},
	{
		name:     "highest_cpc",
		keywords: []string{"highest cpc"},
		sql:      "SELECT product_id, MAX(cost_per_click) FROM ad_sales_metrics GROUP BY product_id ORDER BY MAX(cost_per_click) DESC LIMIT 1;",
	},
	{
		name:     "roas",
		keywords: []string{"roas"},
		sql:      "SELECT SUM(ad_sales)/SUM(ad_spend) AS return_on_ad_spend FROM ad_sales_metrics;",
	},
	{
		name:     "count",
		keywords: []string{"count"},
		sql:      "SELECT COUNT(*) FROM products;",
	},
}

var defaultFallback = fallbackRule{
	name: "default",
	sql:  "SELECT * FROM total_sales_metrics LIMIT 5;",
}

// FallbackFor picks a canned query by keyword. It never fails.
func FallbackFor(question string) string {
	return matchFallback(question).sql
}

// FallbackRule names the rule FallbackFor would use.
func FallbackRule(question string) string {
	return matchFallback(question).name
}

func matchFallback(question string) fallbackRule {
	lowered := strings.ToLower(question)
	for _, rule := range fallbackRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lowered, keyword) {
				return rule
			}
		}
	}
	return defaultFallback
}
