package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectDuckDB   Dialect = "duckdb"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

type DBConfig struct {
	Dialect         Dialect
	DSN             string
	ReadOnly        bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
}

func ParseDialect(raw string) (Dialect, error) {
	switch dialect := Dialect(strings.ToLower(strings.TrimSpace(raw))); dialect {
	case DialectSQLite, DialectDuckDB, DialectPostgres, DialectMySQL:
		return dialect, nil
	case "":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", raw)
	}
}

func (d Dialect) driverName() string {
	switch d {
	case DialectDuckDB:
		return "duckdb"
	case DialectPostgres:
		return "pgx"
	case DialectMySQL:
		return "mysql"
	default:
		return "sqlite"
	}
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	if d == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Open returns a pinged pool for the configured warehouse. Failures wrap ErrUnavailable.
func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse dsn is required")
	}
	dialect, err := ParseDialect(string(cfg.Dialect))
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if cfg.ReadOnly {
		dsn = readOnlyDSN(dialect, dsn)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s warehouse: %w: %w", dialect, ErrUnavailable, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s warehouse: %w: %w", dialect, ErrUnavailable, err)
	}

	return db, nil
}

// readOnlyDSN only rewrites file-backed dialects; server dialects rely on grants.
func readOnlyDSN(dialect Dialect, dsn string) string {
	switch dialect {
	case DialectSQLite:
		if strings.Contains(dsn, "mode=") || dsn == ":memory:" {
			return dsn
		}
		if !strings.HasPrefix(dsn, "file:") {
			dsn = "file:" + dsn
		}
		return appendParam(dsn, "mode=ro")
	case DialectDuckDB:
		if dsn == "" || strings.Contains(dsn, "access_mode=") {
			return dsn
		}
		return appendParam(dsn, "access_mode=read_only")
	default:
		return dsn
	}
}

func appendParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}
