package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"dispense/internal/auth"
	"dispense/internal/catalog"
	"dispense/internal/ledger"
	"dispense/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	transfers []models.TransferRecord
	failNext  error
}

func (p *memPersister) LoadAccounts(context.Context) ([]models.Account, error) { return nil, nil }

func (p *memPersister) InsertAccount(context.Context, models.Account, int) error { return nil }

func (p *memPersister) UpdateFlags(context.Context, int, models.Flags, int) error { return nil }

func (p *memPersister) UpdateLastSeen(context.Context, int, time.Time) error { return nil }

func (p *memPersister) CommitTransfer(ctx context.Context, rec models.TransferRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.failNext; err != nil {
		p.failNext = nil
		return err
	}
	p.transfers = append(p.transfers, rec)
	return nil
}

type stubHandler struct {
	canErr    error
	doErr     error
	dispensed int
	beforeDo  func()
}

func (h *stubHandler) Name() string { return "soda" }

func (h *stubHandler) CanDispense(context.Context, int, int) error { return h.canErr }

func (h *stubHandler) DoDispense(context.Context, int, int) error {
	if h.beforeDo != nil {
		h.beforeDo()
	}
	if h.doErr != nil {
		return h.doErr
	}
	h.dispensed++
	return nil
}

type countingMetrics map[string]int

func (m countingMetrics) ObserveDispense(outcome string) { m[outcome]++ }

type fixture struct {
	bank      *ledger.Bank
	persister *memPersister
	handler   *stubHandler
	catalog   *catalog.Catalog
	dispenser *Dispenser
	metrics   countingMetrics
	sales     int
	liability int
}

func newFixture(t *testing.T, testMode bool) *fixture {
	t.Helper()
	p := &memPersister{}
	bank, err := ledger.Open(context.Background(), p)
	require.NoError(t, err)
	handler := &stubHandler{}
	cat, err := catalog.New([]catalog.Item{
		{Handler: "soda", ID: 1, Price: 150, Name: "Cola"},
		{Handler: "soda", ID: 2, Price: 0, Name: "Water"},
	}, handler)
	require.NoError(t, err)
	metrics := countingMetrics{}
	d, err := NewDispenser(bank, cat, DispenserOptions{TestMode: testMode, Metrics: metrics})
	require.NoError(t, err)
	sales, err := bank.Lookup(models.SalesAccountName)
	require.NoError(t, err)
	liability, err := bank.Lookup(models.LiabilityAccountName)
	require.NoError(t, err)
	return &fixture{
		bank:      bank,
		persister: p,
		handler:   handler,
		catalog:   cat,
		dispenser: d,
		metrics:   metrics,
		sales:     sales,
		liability: liability,
	}
}

func (f *fixture) account(t *testing.T, name string, balance int64) int {
	t.Helper()
	ctx := context.Background()
	id, err := f.bank.CreateAccount(ctx, name, 1000+int64(len(name)))
	require.NoError(t, err)
	if balance != 0 {
		_, err = f.bank.Transfer(ctx, f.liability, id, balance, "opening balance")
		require.NoError(t, err)
	}
	return id
}

func (f *fixture) item(t *testing.T, key string) catalog.Item {
	t.Helper()
	item, err := f.catalog.Lookup(key)
	require.NoError(t, err)
	return item
}

func (f *fixture) balance(t *testing.T, id int) int64 {
	t.Helper()
	b, err := f.bank.GetBalance(id)
	require.NoError(t, err)
	return b
}

func TestDispenseChargesSales(t *testing.T) {
	f := newFixture(t, false)
	alice := f.account(t, "alice", 500)

	require.NoError(t, f.dispenser.DispenseItem(context.Background(), alice, alice, f.item(t, "soda:1")))

	assert.Equal(t, int64(350), f.balance(t, alice))
	assert.Equal(t, int64(150), f.balance(t, f.sales))
	last := f.persister.transfers[len(f.persister.transfers)-1]
	assert.Contains(t, last.Reason, "soda:1")
	assert.Equal(t, alice, last.Actor)
	assert.Equal(t, 1, f.handler.dispensed)
	assert.Equal(t, 1, f.metrics["ok"])
}

func TestDispenseExactBalanceReachesZero(t *testing.T) {
	f := newFixture(t, false)
	alice := f.account(t, "alice", 150)

	require.NoError(t, f.dispenser.DispenseItem(context.Background(), alice, alice, f.item(t, "soda:1")))
	assert.Equal(t, int64(0), f.balance(t, alice))
}

func TestDispenseOneShortIsRefused(t *testing.T) {
	f := newFixture(t, false)
	alice := f.account(t, "alice", 149)

	err := f.dispenser.DispenseItem(context.Background(), alice, alice, f.item(t, "soda:1"))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(149), f.balance(t, alice))
	assert.Equal(t, 0, f.handler.dispensed)
	assert.Equal(t, 1, f.metrics["insufficient_funds"])
}

func TestDispenseUnavailableMovesNoMoney(t *testing.T) {
	f := newFixture(t, false)
	alice := f.account(t, "alice", 500)
	f.handler.canErr = errors.New("slot empty")

	err := f.dispenser.DispenseItem(context.Background(), alice, alice, f.item(t, "soda:1"))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int64(500), f.balance(t, alice))
}

func TestDispenseFailureMovesNoMoney(t *testing.T) {
	f := newFixture(t, false)
	alice := f.account(t, "alice", 500)
	f.handler.doErr = errors.New("motor jammed")
	committed := len(f.persister.transfers)

	err := f.dispenser.DispenseItem(context.Background(), alice, alice, f.item(t, "soda:1"))
	assert.ErrorIs(t, err, ErrDispenseFailed)
	assert.Equal(t, int64(500), f.balance(t, alice))
	assert.Equal(t, committed, len(f.persister.transfers))
	assert.Equal(t, 1, f.metrics["failed"])
}

func TestDispenseChargeLostAfterDispense(t *testing.T) {
	f := newFixture(t, false)
	alice := f.account(t, "alice", 150)
	bob := f.account(t, "bob", 0)
	f.handler.beforeDo = func() {
		_, err := f.bank.Transfer(context.Background(), alice, bob, 100, "drain")
		require.NoError(t, err)
	}

	err := f.dispenser.DispenseItem(context.Background(), alice, alice, f.item(t, "soda:1"))
	assert.ErrorIs(t, err, ErrDispenseFailed)
	assert.Equal(t, int64(50), f.balance(t, alice))
	assert.Equal(t, int64(0), f.balance(t, f.sales))
}

func TestDispenseChargesWhenCallerCancelsMidway(t *testing.T) {
	f := newFixture(t, false)
	alice := f.account(t, "alice", 500)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.handler.beforeDo = cancel

	require.NoError(t, f.dispenser.DispenseItem(ctx, alice, alice, f.item(t, "soda:1")))
	assert.Equal(t, 1, f.handler.dispensed)
	assert.Equal(t, int64(350), f.balance(t, alice))
	assert.Equal(t, int64(150), f.balance(t, f.sales))
}

func TestDispenseOnBehalfChargesTarget(t *testing.T) {
	f := newFixture(t, false)
	admin := f.account(t, "admin", 0)
	bob := f.account(t, "bob", 200)

	require.NoError(t, f.dispenser.DispenseItem(context.Background(), admin, bob, f.item(t, "soda:1")))
	assert.Equal(t, int64(50), f.balance(t, bob))
	assert.Equal(t, int64(0), f.balance(t, admin))
	last := f.persister.transfers[len(f.persister.transfers)-1]
	assert.Equal(t, admin, last.Actor)
	assert.Equal(t, bob, last.Source)
}

func TestDispenseFreeItemAndTestMode(t *testing.T) {
	f := newFixture(t, false)
	alice := f.account(t, "alice", 0)
	require.NoError(t, f.dispenser.DispenseItem(context.Background(), alice, alice, f.item(t, "soda:2")))

	tm := newFixture(t, true)
	bob := tm.account(t, "bob", 0)
	require.NoError(t, tm.dispenser.DispenseItem(context.Background(), bob, bob, tm.item(t, "soda:1")))
	assert.Equal(t, int64(0), tm.balance(t, bob))
	assert.Equal(t, 1, tm.handler.dispensed)
}

func TestGive(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	alice := f.account(t, "alice", 100)
	bob := f.account(t, "bob", 0)

	assert.ErrorIs(t, f.dispenser.Give(ctx, alice, alice, bob, 0, "nothing"), ErrInvalidAmount)
	assert.ErrorIs(t, f.dispenser.Give(ctx, alice, alice, bob, -5, "steal"), ErrInvalidAmount)
	assert.ErrorIs(t, f.dispenser.Give(ctx, alice, alice, bob, 101, "too much"), ErrInsufficientFunds)
	require.NoError(t, f.dispenser.Give(ctx, alice, alice, bob, 60, "lunch"))
	assert.Equal(t, int64(40), f.balance(t, alice))
	assert.Equal(t, int64(60), f.balance(t, bob))
}

func TestAdminAdjustAndSetBalance(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	admin := f.account(t, "admin", 0)
	bob := f.account(t, "bob", 0)

	require.NoError(t, f.dispenser.AdminAdjust(ctx, admin, bob, 500, "cash"))
	assert.Equal(t, int64(500), f.balance(t, bob))
	assert.ErrorIs(t, f.dispenser.AdminAdjust(ctx, admin, bob, -501, "oops"), ErrInsufficientFunds)

	require.NoError(t, f.dispenser.AdminSetBalance(ctx, admin, bob, 42, "correction"))
	assert.Equal(t, int64(42), f.balance(t, bob))
	assert.ErrorIs(t, f.dispenser.AdminSetBalance(ctx, admin, bob, -1, "below floor"), ErrInsufficientFunds)
	assert.Equal(t, int64(42), f.balance(t, bob))
}

func TestDonateAndRefund(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	alice := f.account(t, "alice", 300)
	liabilityBefore := f.balance(t, f.liability)

	assert.ErrorIs(t, f.dispenser.Donate(ctx, alice, alice, 0, "nothing"), ErrInvalidAmount)
	require.NoError(t, f.dispenser.Donate(ctx, alice, alice, 100, "thanks"))
	assert.Equal(t, int64(200), f.balance(t, alice))
	assert.Equal(t, liabilityBefore+100, f.balance(t, f.liability))

	require.NoError(t, f.dispenser.DispenseItem(ctx, alice, alice, f.item(t, "soda:1")))
	require.NoError(t, f.dispenser.Refund(ctx, alice, alice, f.item(t, "soda:1"), -1))
	assert.Equal(t, int64(200), f.balance(t, alice))
	assert.Equal(t, int64(0), f.balance(t, f.sales))
}

func TestDirectoryResolveCreatesOnFirstUse(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	dir := NewDirectory(f.bank, auth.LocalIdentity{})

	id, err := dir.Resolve(ctx, "carol")
	require.NoError(t, err)
	again, err := dir.Resolve(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = dir.Create(ctx, id, "carol")
	assert.ErrorIs(t, err, ledger.ErrExists)

	_, err = dir.Resolve(ctx, "")
	assert.ErrorIs(t, err, ErrUnknownUser)
}
