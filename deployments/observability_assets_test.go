package deployments

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGrafanaDashboardJSONIsValid(t *testing.T) {
	root := repoRoot(t)
	path := filepath.Join(root, "deployments", "observability", "grafana", "shopsql_dashboard.json")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read dashboard file: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("dashboard JSON parse error: %v", err)
	}

	title, _ := decoded["title"].(string)
	if strings.TrimSpace(title) == "" {
		t.Fatal("dashboard title is required")
	}
	panels, ok := decoded["panels"].([]any)
	if !ok || len(panels) == 0 {
		t.Fatal("dashboard must include at least one panel")
	}
}

func TestPrometheusRulesContainExpectedAlerts(t *testing.T) {
	text := readAsset(t, "prometheus", "shopsql_rules.yaml")

	requiredAlerts := []string{
		"ShopSQLModelNotReady",
		"ShopSQLFallbackRatioHigh",
		"ShopSQLGenerationLatencyP95High",
		"ShopSQLQueryErrorRatioHigh",
		"ShopSQLHTTPErrorRateHigh",
	}
	for _, alertName := range requiredAlerts {
		if !strings.Contains(text, "alert: "+alertName) {
			t.Fatalf("rules missing alert %q", alertName)
		}
	}
}

func TestPrometheusRecordingRulesContainExpectedRecords(t *testing.T) {
	text := readAsset(t, "prometheus", "shopsql_recording_rules.yaml")

	requiredRecords := []string{
		"shopsql:slo_fallback_ratio_15m",
		"shopsql:slo_generation_latency_seconds_p95",
		"shopsql:slo_query_error_ratio_15m",
		"shopsql:slo_query_latency_seconds_p95",
		"shopsql:slo_model_ready",
		"shopsql:slo_http_error_rate_5m",
	}
	for _, recordName := range requiredRecords {
		if !strings.Contains(text, "record: "+recordName) {
			t.Fatalf("recording rules missing record %q", recordName)
		}
	}

	// Records must be built from metrics the service actually exports.
	exported := []string{
		"shopsql_generation_total",
		"shopsql_generation_duration_seconds_bucket",
		"shopsql_query_executions_total",
		"shopsql_query_duration_seconds_bucket",
		"shopsql_model_ready",
		"shopsql_http_requests_total",
	}
	for _, metricName := range exported {
		if !strings.Contains(text, metricName) {
			t.Fatalf("recording rules never reference %q", metricName)
		}
	}
}

func TestPrometheusScrapeExampleContainsMetricsPathAndRules(t *testing.T) {
	text := readAsset(t, "prometheus", "prometheus-scrape.example.yaml")

	requiredTokens := []string{
		"metrics_path: /v1/metrics",
		"shopsql_rules.yaml",
		"shopsql_recording_rules.yaml",
		"job_name: shopsql-api",
	}
	for _, token := range requiredTokens {
		if !strings.Contains(text, token) {
			t.Fatalf("scrape example missing %q", token)
		}
	}
}

func readAsset(t *testing.T, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{repoRoot(t), "deployments", "observability"}, parts...)...)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(content)
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), ".."))
}
