package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Execer runs a write. Stores take one per call so a Persister can pass the
// transaction that covers a whole transfer.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

// Selecter is enough for read-only reports such as reconciliation.
type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

// Querier is the read side of the database.
type Querier interface {
	Getter
	Selecter
}

type DB interface {
	Execer
	Querier
}

var (
	_ DB     = (*sqlx.DB)(nil)
	_ Execer = (*sqlx.Tx)(nil)
)
