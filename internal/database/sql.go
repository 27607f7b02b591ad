// Package database opens the relational connection behind the SQL remote
// store. MySQL, PostgreSQL and SQLite share one wrapper; statements are
// written with "?" placeholders and rebound for PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/rzpsarthak13/cardtable/internal/config"
	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Dialect names.
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgresql"
	DialectSQLite   = "sqlite"
)

// SQLDatabase implements core.Database over database/sql.
type SQLDatabase struct {
	db      *sql.DB
	dialect string
	logger  *zap.Logger
	closed  atomic.Bool
}

// Open connects to the configured database, applies the pool settings and
// pings it.
func Open(cfg config.DatabaseConfig, logger *zap.Logger) (*SQLDatabase, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	driver, dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.Driver == DialectSQLite {
		// One writer; SQLite serializes writes anyway.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected", zap.String("dialect", cfg.Driver))
	return New(db, cfg.Driver, logger), nil
}

// New wraps an open *sql.DB.
func New(db *sql.DB, dialect string, logger *zap.Logger) *SQLDatabase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLDatabase{db: db, dialect: dialect, logger: logger}
}

// DSN returns the driver name and data source name for cfg.
func DSN(cfg config.DatabaseConfig) (string, string, error) {
	switch cfg.Driver {
	case DialectMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.Username
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
		mc.DBName = cfg.Database
		mc.ParseTime = true
		mc.Timeout = cfg.ConnectionTimeout
		return "mysql", mc.FormatDSN(), nil
	case DialectPostgres:
		sslMode := cfg.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.Username, cfg.Password),
			Host:     cfg.Host + ":" + strconv.Itoa(cfg.Port),
			Path:     "/" + cfg.Database,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		if cfg.ConnectionTimeout > 0 {
			u.RawQuery += "&connect_timeout=" + strconv.Itoa(int(cfg.ConnectionTimeout.Seconds()))
		}
		return "postgres", u.String(), nil
	case DialectSQLite:
		path := strings.TrimSpace(cfg.Path)
		if path == "" {
			return "", "", fmt.Errorf("sqlite path is required")
		}
		if path == ":memory:" {
			return "sqlite", ":memory:?_pragma=foreign_keys(1)", nil
		}
		return "sqlite", path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Rebind rewrites "?" placeholders for the dialect. Only PostgreSQL needs
// numbered placeholders. Statements must not carry literal question marks.
func Rebind(dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Dialect returns the SQL flavour of the connection.
func (d *SQLDatabase) Dialect() string {
	return d.dialect
}

// Query executes a SELECT query and returns rows.
func (d *SQLDatabase) Query(ctx context.Context, query string, args ...interface{}) (core.Rows, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("database is %w", core.ErrClosed)
	}
	query = Rebind(d.dialect, query)
	d.logger.Debug("query", zap.String("sql", query), zap.Int("args", len(args)))
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		d.logger.Error("query failed", zap.String("sql", query), zap.Error(err))
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &sqlRows{rows: rows}, nil
}

// Exec executes a non-query statement and returns a result.
func (d *SQLDatabase) Exec(ctx context.Context, query string, args ...interface{}) (core.ExecResult, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("database is %w", core.ErrClosed)
	}
	query = Rebind(d.dialect, query)
	d.logger.Debug("exec", zap.String("sql", query), zap.Int("args", len(args)))
	result, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		d.logger.Error("exec failed", zap.String("sql", query), zap.Error(err))
		return nil, fmt.Errorf("failed to execute statement: %w", err)
	}
	return result, nil
}

// BeginTx starts a new transaction.
func (d *SQLDatabase) BeginTx(ctx context.Context) (core.Transaction, error) {
	if d.closed.Load() {
		return nil, fmt.Errorf("database is %w", core.ErrClosed)
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlTransaction{tx: tx, dialect: d.dialect}, nil
}

// Close closes the database connection.
func (d *SQLDatabase) Close() error {
	if d.closed.Swap(true) {
		return nil
	}
	return d.db.Close()
}

// sqlRows wraps sql.Rows to implement core.Rows.
type sqlRows struct {
	rows *sql.Rows
}

func (r *sqlRows) Next() bool                     { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...interface{}) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Close() error                   { return r.rows.Close() }
func (r *sqlRows) Err() error                     { return r.rows.Err() }

// sqlTransaction wraps sql.Tx to implement core.Transaction.
type sqlTransaction struct {
	tx      *sql.Tx
	dialect string
}

func (t *sqlTransaction) Commit() error   { return t.tx.Commit() }
func (t *sqlTransaction) Rollback() error { return t.tx.Rollback() }

func (t *sqlTransaction) Query(ctx context.Context, query string, args ...interface{}) (core.Rows, error) {
	rows, err := t.tx.QueryContext(ctx, Rebind(t.dialect, query), args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTransaction) Exec(ctx context.Context, query string, args ...interface{}) (core.ExecResult, error) {
	return t.tx.ExecContext(ctx, Rebind(t.dialect, query), args...)
}
