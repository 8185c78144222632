package seed

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopsql/shopsql/internal/migrations"
	"github.com/shopsql/shopsql/internal/nl2sql"
	"github.com/shopsql/shopsql/internal/query"
	"github.com/shopsql/shopsql/internal/query/sqldb"
	"github.com/shopsql/shopsql/internal/warehouse"
)

func TestSeederLoadsAndFallbacksRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ecommerce.db")
	db, err := warehouse.Open(ctx, warehouse.DBConfig{Dialect: warehouse.DialectSQLite, DSN: path})
	if err != nil {
		t.Fatalf("warehouse.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := migrations.NewRunner(warehouse.DialectSQLite).Up(ctx, db, 0); err != nil {
		t.Fatalf("migrations Up() error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.Products = 6
	cfg.Days = 5
	data := NewGenerator(cfg).Generate()
	seeder := NewSeeder(warehouse.DialectSQLite, nil)

	// Loading twice must replace, not append.
	for i := 0; i < 2; i++ {
		summary, err := seeder.Load(ctx, db, data)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if summary.Products != 6 || summary.AdSales != 30 || summary.TotalSales != 30 || summary.Eligibility != 6 {
			t.Fatalf("summary = %+v", summary)
		}
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM total_sales_metrics").Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 30 {
		t.Fatalf("total_sales_metrics rows = %d, want 30", count)
	}

	schema, err := warehouse.NewIntrospector(db, warehouse.DialectSQLite).DescribeSchema(ctx)
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	for _, table := range schema.Tables {
		for _, column := range table.Columns {
			for _, alias := range nl2sql.AliasedNames() {
				if strings.EqualFold(column, alias) {
					t.Fatalf("column %s.%s is rewritten by NormalizeAliases", table.Name, column)
				}
			}
		}
	}

	engine := sqldb.NewEngine(db, nil)
	questions := []string{
		"What is total sales?",
		"What is highest CPC?",
		"Calculate the RoAS",
		"count the products",
		"anything else",
	}
	for _, question := range questions {
		result, err := engine.Execute(ctx, query.Request{SQL: nl2sql.FallbackFor(question)})
		if err != nil {
			t.Fatalf("fallback for %q failed on seeded warehouse: %v", question, err)
		}
		if len(result.Rows) == 0 {
			t.Fatalf("fallback for %q returned no rows", question)
		}
	}
}

func TestInsertSQLUsesDialectPlaceholders(t *testing.T) {
	tests := []struct {
		dialect warehouse.Dialect
		want    string
	}{
		{dialect: warehouse.DialectSQLite, want: "INSERT INTO t (a, b) VALUES (?, ?)"},
		{dialect: warehouse.DialectPostgres, want: "INSERT INTO t (a, b) VALUES ($1, $2)"},
	}
	for _, tt := range tests {
		got := NewSeeder(tt.dialect, nil).insertSQL("t", []string{"a", "b"})
		if got != tt.want {
			t.Fatalf("insertSQL(%s) = %q, want %q", tt.dialect, got, tt.want)
		}
	}
}
