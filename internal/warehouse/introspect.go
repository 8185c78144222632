package warehouse

import (
	"context"
	"database/sql"
	"fmt"
)

type catalogQueries struct {
	tables  string
	columns string
}

var dialectCatalog = map[Dialect]catalogQueries{
	DialectSQLite: {
		tables:  `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`,
		columns: `SELECT name FROM pragma_table_info(?) ORDER BY cid`,
	},
	DialectDuckDB: {
		tables: `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
ORDER BY table_name`,
		columns: `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = 'main' AND table_name = ?
ORDER BY ordinal_position`,
	},
	DialectPostgres: {
		tables: `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`,
		columns: `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`,
	},
	DialectMySQL: {
		tables: `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
ORDER BY table_name`,
		columns: `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = DATABASE() AND table_name = ?
ORDER BY ordinal_position`,
	},
}

type Introspector struct {
	db      *sql.DB
	dialect Dialect
}

func NewIntrospector(db *sql.DB, dialect Dialect) *Introspector {
	if dialect == "" {
		dialect = DialectSQLite
	}
	return &Introspector{db: db, dialect: dialect}
}

func (i *Introspector) Dialect() Dialect {
	return i.dialect
}

// DescribeSchema reads the catalog on every call. Any failure fails the whole
// call and wraps ErrUnavailable.
func (i *Introspector) DescribeSchema(ctx context.Context) (Schema, error) {
	if i == nil || i.db == nil {
		return Schema{}, fmt.Errorf("describe schema: %w: no database configured", ErrUnavailable)
	}
	queries, ok := dialectCatalog[i.dialect]
	if !ok {
		return Schema{}, fmt.Errorf("describe schema: %w: unsupported dialect %q", ErrUnavailable, i.dialect)
	}

	conn, err := i.db.Conn(ctx)
	if err != nil {
		return Schema{}, fmt.Errorf("acquire connection: %w: %w", ErrUnavailable, err)
	}
	defer func() { _ = conn.Close() }()

	names, err := queryStrings(ctx, conn, queries.tables)
	if err != nil {
		return Schema{}, fmt.Errorf("list tables: %w: %w", ErrUnavailable, err)
	}

	schema := Schema{Tables: make([]Table, 0, len(names))}
	for _, name := range names {
		columns, err := queryStrings(ctx, conn, queries.columns, name)
		if err != nil {
			return Schema{}, fmt.Errorf("list columns for %q: %w: %w", name, ErrUnavailable, err)
		}
		schema.Tables = append(schema.Tables, Table{Name: name, Columns: columns})
	}
	return schema, nil
}

func queryStrings(ctx context.Context, conn *sql.Conn, query string, args ...any) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	values := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}
