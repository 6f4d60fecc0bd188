package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dispense/internal/auth"
	"dispense/internal/catalog"
	"dispense/internal/config"
	"dispense/internal/ledger"
	"dispense/internal/models"
	"dispense/internal/services"
	"dispense/internal/store"
	"dispense/internal/websocket"
)

type memPersister struct{}

func (p *memPersister) LoadAccounts(context.Context) ([]models.Account, error) { return nil, nil }

func (p *memPersister) InsertAccount(context.Context, models.Account, int) error { return nil }

func (p *memPersister) UpdateFlags(context.Context, int, models.Flags, int) error { return nil }

func (p *memPersister) UpdateLastSeen(context.Context, int, time.Time) error { return nil }

func (p *memPersister) CommitTransfer(context.Context, models.TransferRecord) error { return nil }

type stubReconcileDB struct {
	selectFn func(ctx context.Context, dest any, query string, args ...any) error
}

func (s stubReconcileDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.selectFn == nil {
		return nil
	}
	return s.selectFn(ctx, dest, query, args...)
}

type stubVerifier struct {
	checkFn func(ctx context.Context, username, password string) (bool, error)
}

func (s stubVerifier) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	if s.checkFn == nil {
		return false, nil
	}
	return s.checkFn(ctx, username, password)
}

type stubLedgerStore struct {
	listFn func(ctx context.Context, accountID, limit, offset int) ([]store.LedgerEntry, error)
}

func (s stubLedgerStore) ListByAccount(ctx context.Context, accountID, limit, offset int) ([]store.LedgerEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, accountID, limit, offset)
}

type stubAuditStore struct {
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditLog, error)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type testEnv struct {
	t       *testing.T
	bank    *ledger.Bank
	handler *Handler
	router  http.Handler
}

type testDeps struct {
	reconcileDB store.Selecter
	verifier    Verifier
	ledger      LedgerStore
	audit       AuditStore
}

func newTestEnv(t *testing.T, deps testDeps) *testEnv {
	t.Helper()
	ctx := context.Background()
	bank, err := ledger.Open(ctx, &memPersister{})
	if err != nil {
		t.Fatalf("open bank: %v", err)
	}
	cat, err := catalog.New([]catalog.Item{
		{Handler: catalog.PseudoHandlerName, ID: 1, Price: 150, Name: "Cola"},
	}, catalog.Pseudo{})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	engine, err := services.NewDispenser(bank, cat, services.DispenserOptions{})
	if err != nil {
		t.Fatalf("dispenser: %v", err)
	}
	if deps.reconcileDB == nil {
		deps.reconcileDB = stubReconcileDB{}
	}
	if deps.verifier == nil {
		deps.verifier = stubVerifier{}
	}
	if deps.ledger == nil {
		deps.ledger = stubLedgerStore{}
	}
	if deps.audit == nil {
		deps.audit = stubAuditStore{}
	}
	cfg := config.Default()
	cfg.AppEnv = "test"
	cfg.JWTSecret = "secret"
	h := New(deps.reconcileDB, cfg, bank, deps.verifier, engine, cat, deps.ledger, deps.audit, nil, websocket.NewHub())
	env := &testEnv{t: t, bank: bank, handler: h, router: h.Routes()}
	env.account("alice", 1001, 0, 1000)
	env.account("bob", 1002, 0, 0)
	env.account("cokey", 1003, models.FlagCoke, 0)
	env.account("wheelie", 1004, models.FlagWheel|models.FlagCoke, 0)
	env.account("gone", 1005, models.FlagDisabled, 0)
	return env
}

func (e *testEnv) account(name string, uid int64, flags models.Flags, balance int64) int {
	e.t.Helper()
	ctx := context.Background()
	id, err := e.bank.CreateAccount(ctx, name, uid)
	if err != nil {
		e.t.Fatalf("create %s: %v", name, err)
	}
	if flags != 0 {
		if err := e.bank.SetFlags(ctx, id, flags, flags); err != nil {
			e.t.Fatalf("flags %s: %v", name, err)
		}
	}
	if balance != 0 {
		liability, _ := e.bank.Lookup(models.LiabilityAccountName)
		if _, err := e.bank.Transfer(ctx, liability, id, balance, "seed"); err != nil {
			e.t.Fatalf("seed %s: %v", name, err)
		}
	}
	return id
}

func (e *testEnv) balance(name string) int64 {
	e.t.Helper()
	id, err := e.bank.Lookup(name)
	if err != nil {
		e.t.Fatalf("lookup %s: %v", name, err)
	}
	balance, err := e.bank.GetBalance(id)
	if err != nil {
		e.t.Fatalf("balance %s: %v", name, err)
	}
	return balance
}

// serve sends a request through the full router, authenticated as username
// when it is non-empty.
func (e *testEnv) serve(method, path string, body any, username string) *httptest.ResponseRecorder {
	e.t.Helper()
	var payload bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			payload.WriteString(raw)
		} else if err := json.NewEncoder(&payload).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &payload)
	if username != "" {
		token, err := auth.GenerateToken("secret", username, time.Minute)
		if err != nil {
			e.t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}
