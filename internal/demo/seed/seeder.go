package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopsql/shopsql/internal/observability"
	"github.com/shopsql/shopsql/internal/warehouse"
)

type Summary struct {
	Products    int
	Eligibility int
	AdSales     int
	TotalSales  int
}

// Seeder replaces the contents of the demo tables with a Dataset.
type Seeder struct {
	dialect warehouse.Dialect
	logger  *slog.Logger
}

func NewSeeder(dialect warehouse.Dialect, logger *slog.Logger) *Seeder {
	return &Seeder{dialect: dialect, logger: observability.LoggerOrDiscard(logger)}
}

// Load writes data in one transaction, deleting previous rows first.
func (s *Seeder) Load(ctx context.Context, db *sql.DB, data Dataset) (Summary, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Summary{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"total_sales_metrics", "ad_sales_metrics", "eligibility_table", "products"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return Summary{}, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	var summary Summary
	summary.Products, err = s.insert(ctx, tx, "products",
		[]string{"product_id", "category", "eligibility"},
		len(data.Products), func(i int) []any {
			p := data.Products[i]
			return []any{p.ID, p.Category, p.Eligibility}
		})
	if err != nil {
		return Summary{}, err
	}
	summary.Eligibility, err = s.insert(ctx, tx, "eligibility_table",
		[]string{"eligibility_datetime_utc", "product_id", "eligibility", "message"},
		len(data.Eligibility), func(i int) []any {
			e := data.Eligibility[i]
			return []any{e.CheckedAt, e.ProductID, e.Eligibility, e.Message}
		})
	if err != nil {
		return Summary{}, err
	}
	summary.AdSales, err = s.insert(ctx, tx, "ad_sales_metrics",
		[]string{"date", "product_id", "ad_sales", "impressions", "ad_spend", "clicks", "units_sold", "cost_per_click"},
		len(data.AdSales), func(i int) []any {
			a := data.AdSales[i]
			return []any{a.Date, a.ProductID, a.AdSales, a.Impressions, a.AdSpend, a.Clicks, a.UnitsSold, a.CostPerClick}
		})
	if err != nil {
		return Summary{}, err
	}
	summary.TotalSales, err = s.insert(ctx, tx, "total_sales_metrics",
		[]string{"date", "product_id", "total_sales", "total_units_ordered"},
		len(data.TotalSales), func(i int) []any {
			t := data.TotalSales[i]
			return []any{t.Date, t.ProductID, t.TotalSales, t.TotalUnitsOrdered}
		})
	if err != nil {
		return Summary{}, err
	}

	if err := tx.Commit(); err != nil {
		return Summary{}, fmt.Errorf("commit seed: %w", err)
	}
	s.logger.InfoContext(ctx, "seeded demo warehouse",
		slog.String("dialect", string(s.dialect)),
		slog.Int("products", summary.Products),
		slog.Int("eligibility_rows", summary.Eligibility),
		slog.Int("ad_sales_rows", summary.AdSales),
		slog.Int("total_sales_rows", summary.TotalSales),
	)
	return summary, nil
}

func (s *Seeder) insert(ctx context.Context, tx *sql.Tx, table string, columns []string, n int, row func(int) []any) (int, error) {
	stmt, err := tx.PrepareContext(ctx, s.insertSQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return i, fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return n, nil
}

func (s *Seeder) insertSQL(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = s.dialect.Placeholder(i + 1)
	}
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
}
