package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"dispense/internal/models"
)

func TestAccountStoreCreate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO accounts") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 6 {
				t.Fatalf("expected 6 args, got %d", len(args))
			}
			if args[0] != 2 || args[1] != "alice" || args[2] != int64(1001) || args[4] != models.FlagCoke {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAccountStore(stubDB{})
	account := models.Account{ID: 2, Name: "alice", UnixID: 1001, Flags: models.FlagCoke, LastSeen: time.Now()}
	if err := store.Create(ctx, execer, account); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreList(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "ORDER BY id") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*[]models.Account) = []models.Account{{ID: 0, Name: models.SalesAccountName}}
			return nil
		},
	})
	rows, err := store.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 || rows[0].Name != models.SalesAccountName {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestAccountStoreGetByName(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(stubDB{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE name = $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 1 || args[0] != "alice" {
				t.Fatalf("unexpected args: %#v", args)
			}
			*dest.(*models.Account) = models.Account{ID: 2, Name: "alice"}
			return nil
		},
	})
	row, err := store.GetByName(ctx, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.ID != 2 {
		t.Fatalf("unexpected row: %#v", row)
	}
}

func TestAccountStoreGetByNameNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(stubDB{
		getFn: func(context.Context, any, string, ...any) error {
			return sql.ErrNoRows
		},
	})
	if _, err := store.GetByName(ctx, "nobody"); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestAccountStoreUpdateBalance(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(stubDB{})
	tx := expectExec(t, "SET balance = $1", 1, int64(-350), 2)
	if err := store.UpdateBalance(ctx, tx, 2, -350); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreUpdateFlags(t *testing.T) {
	ctx := context.Background()
	store := NewAccountStore(stubDB{})
	tx := expectExec(t, "SET flags = $1", 1, models.FlagWheel|models.FlagDoor, 9)
	if err := store.UpdateFlags(ctx, tx, 9, models.FlagWheel|models.FlagDoor); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAccountStoreUpdateLastSeen(t *testing.T) {
	ctx := context.Background()
	seen := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "SET last_seen = $1") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 2 || !args[0].(time.Time).Equal(seen) || args[1] != 4 {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewAccountStore(stubDB{})
	if err := store.UpdateLastSeen(ctx, execer, 4, seen); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
