package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestDescribeSchemaSQLiteOrdersColumnsByCatalog(t *testing.T) {
	db, mock := newSQLMock(t)
	introspector := NewIntrospector(db, DialectSQLite)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("total_sales_metrics").AddRow("ad_sales_metrics"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM pragma_table_info(?) ORDER BY cid`)).
		WithArgs("total_sales_metrics").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("date").AddRow("item_id").AddRow("total_sales"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM pragma_table_info(?) ORDER BY cid`)).
		WithArgs("ad_sales_metrics").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("product_id").AddRow("cost_per_click"))

	schema, err := introspector.DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	want := "total_sales_metrics(date, item_id, total_sales)\nad_sales_metrics(product_id, cost_per_click)"
	if got := schema.String(); got != want {
		t.Fatalf("Schema.String() = %q, want %q", got, want)
	}
	assertSQLMock(t, mock)
}

func TestDescribeSchemaPostgresUsesInformationSchema(t *testing.T) {
	db, mock := newSQLMock(t)
	introspector := NewIntrospector(db, DialectPostgres)

	mock.ExpectQuery(`FROM information_schema\.tables\s+WHERE table_schema = 'public'`).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("products"))
	mock.ExpectQuery(`FROM information_schema\.columns\s+WHERE table_schema = 'public' AND table_name = \$1`).
		WithArgs("products").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("product_id").AddRow("name"))

	schema, err := introspector.DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	table, ok := schema.Table("PRODUCTS")
	if !ok {
		t.Fatal("expected products table")
	}
	if len(table.Columns) != 2 || table.Columns[0] != "product_id" {
		t.Fatalf("Columns = %#v", table.Columns)
	}
	assertSQLMock(t, mock)
}

func TestDescribeSchemaEmptyDatabase(t *testing.T) {
	db, mock := newSQLMock(t)
	mock.ExpectQuery(`sqlite_master`).WillReturnRows(sqlmock.NewRows([]string{"name"}))

	schema, err := NewIntrospector(db, DialectSQLite).DescribeSchema(context.Background())
	if err != nil {
		t.Fatalf("DescribeSchema() error = %v", err)
	}
	if len(schema.Tables) != 0 || schema.String() != "" {
		t.Fatalf("schema = %#v", schema)
	}
	assertSQLMock(t, mock)
}

func TestDescribeSchemaFailuresWrapUnavailable(t *testing.T) {
	t.Run("tables", func(t *testing.T) {
		db, mock := newSQLMock(t)
		mock.ExpectQuery(`sqlite_master`).WillReturnError(errors.New("disk I/O error"))

		_, err := NewIntrospector(db, DialectSQLite).DescribeSchema(context.Background())
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("DescribeSchema() error = %v, want ErrUnavailable", err)
		}
		assertSQLMock(t, mock)
	})

	t.Run("columns", func(t *testing.T) {
		db, mock := newSQLMock(t)
		mock.ExpectQuery(`sqlite_master`).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("products"))
		mock.ExpectQuery(`pragma_table_info`).WithArgs("products").WillReturnError(errors.New("database is locked"))

		_, err := NewIntrospector(db, DialectSQLite).DescribeSchema(context.Background())
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("DescribeSchema() error = %v, want ErrUnavailable", err)
		}
		assertSQLMock(t, mock)
	})

	t.Run("closed pool", func(t *testing.T) {
		db, _ := newSQLMock(t)
		_ = db.Close()
		_, err := NewIntrospector(db, DialectSQLite).DescribeSchema(context.Background())
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("DescribeSchema() error = %v, want ErrUnavailable", err)
		}
	})

	t.Run("nil db", func(t *testing.T) {
		_, err := NewIntrospector(nil, DialectSQLite).DescribeSchema(context.Background())
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("DescribeSchema() error = %v, want ErrUnavailable", err)
		}
	})
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
