package handlers

import (
	"context"
	"net/http"

	"dispense/internal/catalog"
	"dispense/internal/ledger"
	"dispense/internal/models"
	"dispense/internal/store"
)

type Bank interface {
	Lookup(name string) (int, error)
	Account(id int) (models.Account, error)
	Iterate(q ledger.Query) *ledger.Iterator
}

type Verifier interface {
	CheckPassword(ctx context.Context, username, password string) (bool, error)
}

type Engine interface {
	Give(ctx context.Context, acting, src, dst int, amount int64, reason string) error
	AdminAdjust(ctx context.Context, acting, target int, amount int64, reason string) error
}

type Catalog interface {
	Items() []catalog.Item
}

type LedgerStore interface {
	ListByAccount(ctx context.Context, accountID, limit, offset int) ([]store.LedgerEntry, error)
}

type AuditStore interface {
	List(ctx context.Context, limit, offset int) ([]store.AuditLog, error)
}

type Metrics interface {
	Handler() http.Handler
}
