package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"

	"github.com/shopsql/shopsql/internal/warehouse"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/000001_one.down.sql": {Data: []byte("SELECT -1;")},
		"sql/README.md":           {Data: []byte("ignored")},
	}

	items, err := loadMigrations(fsys)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEcommerceMigrationContainsRequiredTables(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_ecommerce.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sqlText := string(body)
	requiredSnippets := []string{
		"CREATE TABLE products",
		"CREATE TABLE eligibility_table",
		"CREATE TABLE ad_sales_metrics",
		"CREATE TABLE total_sales_metrics",
		"cost_per_click",
		"total_sales",
	}
	for _, snippet := range requiredSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("migration missing required snippet: %s", snippet)
		}
	}
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\n  ;CREATE TABLE b (y INT);  \n")
	if len(got) != 2 || got[0] != "CREATE TABLE a (x INT)" || got[1] != "CREATE TABLE b (y INT)" {
		t.Fatalf("splitStatements() = %#v", got)
	}
}

func TestRunnerUpDownSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "ecommerce.db"))
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	runner := NewRunner(warehouse.DialectSQLite)
	applied, err := runner.Up(ctx, db, 0)
	if err != nil {
		t.Fatalf("runner.Up() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("runner.Up() applied %d migrations, want 1", applied)
	}

	again, err := runner.Up(ctx, db, 0)
	if err != nil || again != 0 {
		t.Fatalf("second runner.Up() = %d, %v", again, err)
	}

	schema, err := warehouse.NewIntrospector(db, warehouse.DialectSQLite).DescribeSchema(ctx)
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	for _, name := range []string{"products", "eligibility_table", "ad_sales_metrics", "total_sales_metrics", migrationTable} {
		if _, ok := schema.Table(name); !ok {
			t.Fatalf("table %q missing after Up; schema:\n%s", name, schema)
		}
	}

	rolledBack, err := runner.Down(ctx, db, 1)
	if err != nil {
		t.Fatalf("runner.Down() error = %v", err)
	}
	if rolledBack != 1 {
		t.Fatalf("runner.Down() rolled back %d migrations, want 1", rolledBack)
	}
	schema, err = warehouse.NewIntrospector(db, warehouse.DialectSQLite).DescribeSchema(ctx)
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	if _, ok := schema.Table("total_sales_metrics"); ok {
		t.Fatal("total_sales_metrics still present after Down")
	}
}
