package protocol

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"dispense/internal/auth"
	"dispense/internal/catalog"
	"dispense/internal/ledger"
	"dispense/internal/models"
	"dispense/internal/services"

	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu        sync.Mutex
	transfers []models.TransferRecord
}

func (p *memPersister) LoadAccounts(context.Context) ([]models.Account, error) { return nil, nil }

func (p *memPersister) InsertAccount(context.Context, models.Account, int) error { return nil }

func (p *memPersister) UpdateFlags(context.Context, int, models.Flags, int) error { return nil }

func (p *memPersister) UpdateLastSeen(context.Context, int, time.Time) error { return nil }

func (p *memPersister) CommitTransfer(_ context.Context, rec models.TransferRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transfers = append(p.transfers, rec)
	return nil
}

func (p *memPersister) last() models.TransferRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transfers[len(p.transfers)-1]
}

type keyMap map[string]string

func (k keyMap) SecretKey(_ context.Context, username string) (string, error) {
	key, ok := k[username]
	if !ok {
		return "", sql.ErrNoRows
	}
	return key, nil
}

type commandCounter map[string]int

func (c commandCounter) ObserveCommand(command string, code int) {
	c[fmt.Sprintf("%s %d", command, code)]++
}

type harness struct {
	t          *testing.T
	bank       *ledger.Bank
	persister  *memPersister
	directory  *services.Directory
	dispatcher *Dispatcher
	passwords  map[string]string
	metrics    commandCounter
	salts      int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	p := &memPersister{}
	bank, err := ledger.Open(ctx, p)
	require.NoError(t, err)
	cat, err := catalog.New([]catalog.Item{
		{Handler: catalog.PseudoHandlerName, ID: 1, Price: 150, Name: "Cola"},
		{Handler: catalog.PseudoHandlerName, ID: 2, Price: 80, Name: "Chips"},
		{Handler: "door", ID: 0, Price: 0, Name: "Door"},
	})
	require.NoError(t, err)
	engine, err := services.NewDispenser(bank, cat, services.DispenserOptions{})
	require.NoError(t, err)

	h := &harness{
		t:         t,
		bank:      bank,
		persister: p,
		directory: services.NewDirectory(bank, auth.LocalIdentity{}),
		passwords: map[string]string{},
		metrics:   commandCounter{},
	}
	keys := keyMap{}
	for _, name := range []string{"alice", "bob", "carol", "wheelie", "cokey"} {
		password := name + "-password"
		h.passwords[name] = password
		keys[name] = auth.HashPassword(name, password)
	}
	h.dispatcher = NewDispatcher(Deps{
		Bank:      bank,
		Catalog:   cat,
		Verifier:  auth.NewVerifier(keys, false),
		Engine:    engine,
		Directory: h.directory,
		Metrics:   h.metrics,
		NewSalt: func() (string, error) {
			h.salts++
			return fmt.Sprintf("salt%04d", h.salts), nil
		},
	})
	return h
}

// account opens name with the given balance and role flags.
func (h *harness) account(name string, balance int64, flags models.Flags) int {
	h.t.Helper()
	ctx := context.Background()
	id, err := h.directory.Resolve(ctx, name)
	require.NoError(h.t, err)
	if balance != 0 {
		liability, err := h.bank.Lookup(models.LiabilityAccountName)
		require.NoError(h.t, err)
		_, err = h.bank.Transfer(ctx, liability, id, balance, "opening balance")
		require.NoError(h.t, err)
	}
	if flags != 0 {
		require.NoError(h.t, h.bank.SetFlags(ctx, id, flags, flags))
	}
	return id
}

func (h *harness) balance(name string) int64 {
	h.t.Helper()
	id, err := h.bank.Lookup(name)
	require.NoError(h.t, err)
	b, err := h.bank.GetBalance(id)
	require.NoError(h.t, err)
	return b
}

func (h *harness) send(s *Session, line string) Reply {
	return h.dispatcher.Dispatch(context.Background(), s, line)
}

// login runs USER and PASS with the right password.
func (h *harness) login(name string) *Session {
	h.t.Helper()
	s := NewSession(1, "192.0.2.10:40000", false)
	r := h.send(s, "USER "+name)
	require.Equal(h.t, 100, r.Code())
	salt := strings.TrimPrefix(r.Lines[0].Text, "SALT ")
	response := auth.ChallengeResponse(auth.DeriveKey(name, h.passwords[name]), salt)
	r = h.send(s, "PASS "+response)
	require.Equal(h.t, "200 Auth OK\n", r.String())
	return s
}
