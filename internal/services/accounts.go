package services

import (
	"context"
	"errors"

	"dispense/internal/auth"
	"dispense/internal/ledger"
)

var ErrUnknownUser = errors.New("unknown user")

type AccountLedger interface {
	Lookup(name string) (int, error)
	CreateAccount(ctx context.Context, name string, unixID int64) (int, error)
}

// Directory turns usernames into account ids, opening an account the first
// time a known identity is referenced.
type Directory struct {
	ledger     AccountLedger
	identities auth.IdentityResolver
}

func NewDirectory(l AccountLedger, identities auth.IdentityResolver) *Directory {
	return &Directory{ledger: l, identities: identities}
}

func (d *Directory) Resolve(ctx context.Context, name string) (int, error) {
	id, err := d.ledger.Lookup(name)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return 0, err
	}
	id, err = d.create(ctx, name)
	if errors.Is(err, ledger.ErrExists) {
		// Lost a race with another connection opening the same account.
		return d.ledger.Lookup(name)
	}
	return id, err
}

// Create opens an account for name and fails if one already exists.
func (d *Directory) Create(ctx context.Context, acting int, name string) (int, error) {
	return d.create(ledger.WithActor(ctx, acting), name)
}

func (d *Directory) create(ctx context.Context, name string) (int, error) {
	unixID, err := d.identities.Resolve(name)
	if errors.Is(err, auth.ErrUnknownUser) {
		return 0, ErrUnknownUser
	}
	if err != nil {
		return 0, err
	}
	return d.ledger.CreateAccount(ctx, name, unixID)
}
