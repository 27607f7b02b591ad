package core

import "context"

// Database is the relational connection the SQL remote store runs on.
type Database interface {
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)

	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, query string, args ...interface{}) (ExecResult, error)

	// BeginTx starts a transaction.
	BeginTx(ctx context.Context) (Transaction, error)

	// Dialect names the SQL flavour: "mysql", "postgresql" or "sqlite".
	Dialect() string

	// Close closes the database connection.
	Close() error
}

// Rows iterates over a query result.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// ExecResult summarizes an executed statement.
type ExecResult interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Transaction groups statements that commit or roll back together.
type Transaction interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	Exec(ctx context.Context, query string, args ...interface{}) (ExecResult, error)
	Commit() error
	Rollback() error
}
