package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"dispense/internal/models"
)

var (
	ErrNotFound          = errors.New("account not found")
	ErrExists            = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrSameAccount       = errors.New("cannot transfer to same account")
)

// NoFloor is the minimum balance of accounts that may go arbitrarily negative.
const NoFloor int64 = math.MinInt64

const (
	wheelFloor int64 = -10000
	cokeFloor  int64 = -2000
)

// Persister makes ledger changes durable. The bank calls it while holding its
// write lock and only updates memory once the call succeeds.
type Persister interface {
	LoadAccounts(ctx context.Context) ([]models.Account, error)
	InsertAccount(ctx context.Context, account models.Account, actor int) error
	UpdateFlags(ctx context.Context, accountID int, flags models.Flags, actor int) error
	UpdateLastSeen(ctx context.Context, accountID int, seen time.Time) error
	CommitTransfer(ctx context.Context, rec models.TransferRecord) error
}

// GroupResolver reports role flags granted by membership of external groups.
type GroupResolver interface {
	GroupFlags(username string) models.Flags
}

// TransferEvent is handed to observers after a transfer commits.
type TransferEvent struct {
	Record      models.TransferRecord
	SourceName  string
	DestName    string
	SourceFlags models.Flags
	DestFlags   models.Flags
}

type Observer interface {
	TransferCommitted(ctx context.Context, event TransferEvent)
}

type Metrics interface {
	ObserveTransfer(result string)
}

type Option func(*Bank)

func WithGroups(groups GroupResolver) Option {
	return func(b *Bank) { b.groups = groups }
}

func WithObserver(observer Observer) Option {
	return func(b *Bank) { b.observers = append(b.observers, observer) }
}

func WithMetrics(metrics Metrics) Option {
	return func(b *Bank) { b.metrics = metrics }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bank) { b.now = now }
}

// Bank holds every account in memory behind a single RWMutex. Writers are
// serialized; readers never see half of a transfer.
type Bank struct {
	mu        sync.RWMutex
	persister Persister
	groups    GroupResolver
	observers []Observer
	metrics   Metrics
	now       func() time.Time

	accounts map[int]*models.Account
	byName   map[string]int
	nextID   int
}

// Open loads all accounts and makes sure the sales and liability accounts
// exist.
func Open(ctx context.Context, persister Persister, opts ...Option) (*Bank, error) {
	b := &Bank{
		persister: persister,
		now:       time.Now,
		accounts:  make(map[int]*models.Account),
		byName:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	rows, err := persister.LoadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		acct := rows[i]
		b.accounts[acct.ID] = &acct
		b.byName[acct.Name] = acct.ID
		if acct.ID >= b.nextID {
			b.nextID = acct.ID + 1
		}
	}
	pseudo := []struct {
		name     string
		identity int64
	}{
		{models.SalesAccountName, models.SalesIdentity},
		{models.LiabilityAccountName, models.LiabilityIdentity},
	}
	for _, p := range pseudo {
		if _, ok := b.byName[p.name]; ok {
			continue
		}
		if _, err := b.create(ctx, p.name, p.identity, models.FlagInternal); err != nil {
			return nil, fmt.Errorf("create %s: %w", p.name, err)
		}
		log.Printf("ledger: created pseudo account %s", p.name)
	}
	return b, nil
}

// CreateAccount registers a new account for name and returns its id.
func (b *Bank) CreateAccount(ctx context.Context, name string, unixID int64) (int, error) {
	return b.create(ctx, name, unixID, 0)
}

func (b *Bank) create(ctx context.Context, name string, unixID int64, flags models.Flags) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.byName[name]; ok {
		return 0, ErrExists
	}
	acct := models.Account{
		ID:       b.nextID,
		Name:     name,
		UnixID:   unixID,
		Flags:    flags,
		LastSeen: b.now().UTC(),
	}
	if err := b.persister.InsertAccount(ctx, acct, ActorFromContext(ctx)); err != nil {
		return 0, err
	}
	b.accounts[acct.ID] = &acct
	b.byName[name] = acct.ID
	b.nextID++
	return acct.ID, nil
}

func (b *Bank) Lookup(name string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byName[name]
	if !ok {
		return 0, ErrNotFound
	}
	return id, nil
}

// Account returns a copy of the account with its effective flags.
func (b *Bank) Account(id int) (models.Account, error) {
	b.mu.RLock()
	acct, ok := b.accounts[id]
	var snapshot models.Account
	if ok {
		snapshot = *acct
	}
	b.mu.RUnlock()
	if !ok {
		return models.Account{}, ErrNotFound
	}
	snapshot.Flags = b.effectiveFlags(snapshot, b.groupFlags(snapshot))
	return snapshot, nil
}

func (b *Bank) AccountName(id int) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if acct, ok := b.accounts[id]; ok {
		return acct.Name
	}
	return ""
}

func (b *Bank) GetBalance(id int) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acct, ok := b.accounts[id]
	if !ok {
		return 0, ErrNotFound
	}
	return acct.Balance, nil
}

// GetFlags returns the stored flags merged with flags derived from the
// account's identity. The merge is recomputed on every call.
func (b *Bank) GetFlags(id int) (models.Flags, error) {
	acct, err := b.Account(id)
	if err != nil {
		return 0, err
	}
	return acct.Flags, nil
}

// SetFlags replaces the bits selected by mask with value. Accounts bound to
// the superuser or a pseudo identity are left untouched.
func (b *Bank) SetFlags(ctx context.Context, id int, mask, value models.Flags) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if acct.UnixID <= models.SuperuserIdentity {
		return nil
	}
	flags := acct.Flags&^mask | value&mask
	if flags == acct.Flags {
		return nil
	}
	if err := b.persister.UpdateFlags(ctx, id, flags, ActorFromContext(ctx)); err != nil {
		return err
	}
	acct.Flags = flags
	return nil
}

// Touch records that the account was just used.
func (b *Bank) Touch(ctx context.Context, id int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.accounts[id]
	if !ok {
		return ErrNotFound
	}
	seen := b.now().UTC()
	if err := b.persister.UpdateLastSeen(ctx, id, seen); err != nil {
		return err
	}
	acct.LastSeen = seen
	return nil
}

// MinAllowedBalance is the lowest balance the account may reach.
func (b *Bank) MinAllowedBalance(id int) (int64, error) {
	flags, err := b.GetFlags(id)
	if err != nil {
		return 0, err
	}
	return Floor(flags), nil
}

// Floor maps role flags onto an overdraft floor.
func Floor(flags models.Flags) int64 {
	if flags.Has(models.FlagInternal) {
		return NoFloor
	}
	switch tier := flags.Tier(); {
	case tier >= models.TierWheel:
		return wheelFloor
	case tier == models.TierCoke:
		return cokeFloor
	default:
		return 0
	}
}

func (b *Bank) groupFlags(acct models.Account) models.Flags {
	if b.groups == nil || acct.UnixID <= models.SuperuserIdentity {
		return 0
	}
	return b.groups.GroupFlags(acct.Name)
}

func (b *Bank) effectiveFlags(acct models.Account, extra models.Flags) models.Flags {
	flags := acct.Flags | extra
	if acct.UnixID == models.SuperuserIdentity {
		flags |= models.FlagWheel | models.FlagCoke
	}
	return flags
}
