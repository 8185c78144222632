package pipeline

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/shopsql/shopsql/internal/inference"
	"github.com/shopsql/shopsql/internal/nl2sql"
	"github.com/shopsql/shopsql/internal/query/sqldb"
	"github.com/shopsql/shopsql/internal/warehouse"
)

type stubCompleter struct {
	out string
	err error
}

func (s stubCompleter) Generate(context.Context, string, inference.GenerateOptions) (string, error) {
	return s.out, s.err
}

func TestAskEndToEndWithModel(t *testing.T) {
	db := openSeededWarehouse(t)
	service := newService(db, stubCompleter{out: "SELECT SUM(total_sales) AS total FROM total_sales_metrics"}, 0)

	answer := service.Ask(context.Background(), "What is my total sales?")
	if answer.Error != nil {
		t.Fatalf("Ask() error = %v", answer.Error)
	}
	if answer.Translation.Source != nl2sql.SourceModel {
		t.Fatalf("Source = %q", answer.Translation.Source)
	}
	if answer.SQL() != "SELECT SUM(total_sales) AS total FROM total_sales_metrics;" {
		t.Fatalf("SQL = %q", answer.SQL())
	}
	if len(answer.Result.Rows) != 1 || answer.Result.Rows[0]["total"] != 60.0 {
		t.Fatalf("rows = %#v", answer.Result.Rows)
	}
}

func TestAskEndToEndWithModelUnavailable(t *testing.T) {
	db := openSeededWarehouse(t)
	engine := inference.NewEngine(nil, inference.Options{}, nil)
	service := newService(db, engine, 0)

	answer := service.Ask(context.Background(), "What is total sales?")
	if answer.Error != nil {
		t.Fatalf("Ask() error = %v", answer.Error)
	}
	if answer.Translation.Source != nl2sql.SourceFallback {
		t.Fatalf("Source = %q", answer.Translation.Source)
	}
	if answer.SQL() != "SELECT SUM(total_sales) FROM total_sales_metrics;" {
		t.Fatalf("SQL = %q", answer.SQL())
	}
	if len(answer.Result.Columns) != 1 || len(answer.Result.Rows) != 1 {
		t.Fatalf("result = %#v", answer.Result)
	}
	if got := answer.Result.Rows[0][answer.Result.Columns[0]]; got != 60.0 {
		t.Fatalf("sum = %#v", got)
	}
}

func TestAskReportsExecutionError(t *testing.T) {
	db := openSeededWarehouse(t)
	service := newService(db, stubCompleter{out: "SELECT * FROM nonexistent_table"}, 0)

	answer := service.Ask(context.Background(), "show me the secret table")
	if answer.Result != nil {
		t.Fatalf("Result = %#v, want nil", answer.Result)
	}
	if answer.Error == nil {
		t.Fatal("expected execution error")
	}
	if answer.Error.SQL != "SELECT * FROM nonexistent_table;" {
		t.Fatalf("Error.SQL = %q", answer.Error.SQL)
	}
}

func TestAskAppliesRowLimit(t *testing.T) {
	db := openSeededWarehouse(t)
	service := newService(db, stubCompleter{out: "SELECT * FROM total_sales_metrics"}, 2)

	answer := service.Ask(context.Background(), "list sales rows")
	if answer.Error != nil {
		t.Fatalf("Ask() error = %v", answer.Error)
	}
	if len(answer.Result.Rows) != 2 || !answer.Result.Truncated {
		t.Fatalf("rows = %d truncated = %v, want 2 and true", len(answer.Result.Rows), answer.Result.Truncated)
	}
}

func TestAskWithDatabaseGoneStillAnswers(t *testing.T) {
	db := openSeededWarehouse(t)
	service := newService(db, stubCompleter{out: "SELECT 1"}, 0)
	_ = db.Close()

	answer := service.Ask(context.Background(), "What is total sales?")
	if answer.Translation.Source != nl2sql.SourceFallback || answer.Translation.Reason != nl2sql.ReasonDatabaseUnavailable {
		t.Fatalf("translation = %#v", answer.Translation)
	}
	if answer.Error == nil || answer.Result != nil {
		t.Fatalf("answer = %#v, want execution error", answer)
	}
	if answer.Error.SQL != answer.SQL() {
		t.Fatalf("Error.SQL = %q", answer.Error.SQL)
	}
}

func newService(db *sql.DB, completer nl2sql.Completer, rowLimit int) *Service {
	generator := nl2sql.NewGenerator(nl2sql.GeneratorConfig{
		Schema:    warehouse.NewIntrospector(db, warehouse.DialectSQLite),
		Completer: completer,
	})
	return NewService(generator, sqldb.NewEngine(db, nil), rowLimit, nil)
}

func openSeededWarehouse(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ecommerce.db")
	seed, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	for _, statement := range []string{
		`CREATE TABLE total_sales_metrics (date TEXT, item_id INTEGER, total_sales REAL)`,
		`INSERT INTO total_sales_metrics VALUES ('2025-06-01', 1, 10), ('2025-06-01', 2, 20), ('2025-06-02', 1, 30)`,
		`CREATE TABLE products (product_id INTEGER PRIMARY KEY, eligibility INTEGER)`,
	} {
		if _, err := seed.Exec(statement); err != nil {
			t.Fatalf("seed %q: %v", statement, err)
		}
	}
	_ = seed.Close()

	db, err := warehouse.Open(context.Background(), warehouse.DBConfig{
		Dialect:  warehouse.DialectSQLite,
		DSN:      path,
		ReadOnly: true,
	})
	if err != nil {
		t.Fatalf("warehouse.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
