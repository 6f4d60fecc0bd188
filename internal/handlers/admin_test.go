package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"dispense/internal/auth"
	"dispense/internal/store"
)

func TestListAuditLogsRequiresWheel(t *testing.T) {
	env := newTestEnv(t, testDeps{audit: stubAuditStore{
		listFn: func(context.Context, int, int) ([]store.AuditLog, error) {
			t.Fatalf("audit store should not be called")
			return nil, nil
		},
	}})
	if rr := env.serve(http.MethodGet, "/admin/audit", nil, "cokey"); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestListAuditLogs(t *testing.T) {
	var gotLimit, gotOffset int
	env := newTestEnv(t, testDeps{audit: stubAuditStore{
		listFn: func(_ context.Context, limit, offset int) ([]store.AuditLog, error) {
			gotLimit, gotOffset = limit, offset
			return []store.AuditLog{{ID: "a-1", Action: "transfer", EntityType: "transfer", EntityID: "t-1"}}, nil
		},
	}})
	rr := env.serve(http.MethodGet, "/admin/audit?limit=5&page=3", nil, "wheelie")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if gotLimit != 5 || gotOffset != 10 {
		t.Fatalf("unexpected paging: limit=%d offset=%d", gotLimit, gotOffset)
	}
	rows := decode[[]store.AuditLog](t, rr)
	if len(rows) != 1 || rows[0].Action != "transfer" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestReconcile(t *testing.T) {
	var env *testEnv
	env = newTestEnv(t, testDeps{reconcileDB: stubReconcileDB{
		selectFn: func(_ context.Context, dest any, _ string, _ ...any) error {
			value := reflect.ValueOf(dest)
			if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Slice {
				return nil
			}
			aliceID, _ := env.bank.Lookup("alice")
			slice := reflect.MakeSlice(value.Elem().Type(), 1, 1)
			row := slice.Index(0)
			row.FieldByName("AccountID").SetInt(int64(aliceID))
			row.FieldByName("Name").SetString("alice")
			row.FieldByName("LedgerSum").SetInt(1000)
			row.FieldByName("AccountBalance").SetInt(1000)
			row.FieldByName("Difference").SetInt(0)
			value.Elem().Set(slice)
			return nil
		},
	}})
	rr := env.serve(http.MethodGet, "/admin/reconcile", nil, "wheelie")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	rows := decode[[]map[string]any](t, rr)
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if rows[0]["live_balance"] != "10.00" || rows[0]["in_sync"] != true {
		t.Fatalf("unexpected row: %v", rows[0])
	}
}

func TestWSBalancesMissingToken(t *testing.T) {
	env := newTestEnv(t, testDeps{})
	req := httptest.NewRequest(http.MethodGet, "/ws/balances", nil)
	rr := httptest.NewRecorder()
	env.handler.WSBalances(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWSBalancesInvalidToken(t *testing.T) {
	env := newTestEnv(t, testDeps{})
	req := httptest.NewRequest(http.MethodGet, "/ws/balances?token=invalid", nil)
	rr := httptest.NewRecorder()
	env.handler.WSBalances(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestWSBalancesOtherAccountNeedsCoke(t *testing.T) {
	env := newTestEnv(t, testDeps{})
	token, err := auth.GenerateToken("secret", "alice", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	for _, account := range []string{"bob", "*"} {
		req := httptest.NewRequest(http.MethodGet, "/ws/balances?token="+token+"&account="+account, nil)
		rr := httptest.NewRecorder()
		env.handler.WSBalances(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", account, rr.Code)
		}
	}
}

func TestWSBalancesUnknownWatchedAccount(t *testing.T) {
	env := newTestEnv(t, testDeps{})
	token, err := auth.GenerateToken("secret", "cokey", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/ws/balances?token="+token+"&account=nobody", nil)
	rr := httptest.NewRecorder()
	env.handler.WSBalances(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
