package protocol

import (
	"context"
	"strings"

	"dispense/internal/auth"
	"dispense/internal/catalog"
	"dispense/internal/ledger"
	"dispense/internal/models"
)

type Bank interface {
	Lookup(name string) (int, error)
	Account(id int) (models.Account, error)
	SetFlags(ctx context.Context, id int, mask, value models.Flags) error
	Touch(ctx context.Context, id int) error
	Iterate(q ledger.Query) *ledger.Iterator
}

type Catalog interface {
	Items() []catalog.Item
	Lookup(key string) (catalog.Item, error)
}

type Verifier interface {
	Verify(ctx context.Context, salt, username, response string) (bool, error)
}

type Engine interface {
	DispenseItem(ctx context.Context, acting, target int, item catalog.Item) error
	Give(ctx context.Context, acting, src, dst int, amount int64, reason string) error
	AdminAdjust(ctx context.Context, acting, target int, amount int64, reason string) error
	AdminSetBalance(ctx context.Context, acting, target int, balance int64, reason string) error
	Donate(ctx context.Context, acting, src int, amount int64, reason string) error
	Refund(ctx context.Context, acting, target int, item catalog.Item, price int64) error
}

type Directory interface {
	Resolve(ctx context.Context, name string) (int, error)
	Create(ctx context.Context, acting int, name string) (int, error)
}

type Metrics interface {
	ObserveCommand(command string, code int)
}

type Deps struct {
	Bank      Bank
	Catalog   Catalog
	Verifier  Verifier
	Engine    Engine
	Directory Directory
	Metrics   Metrics
	// NewSalt defaults to auth.NewSalt.
	NewSalt func() (string, error)
}

// HandlerFunc runs one command against a session.
type HandlerFunc func(ctx context.Context, s *Session, args string) Reply

// Dispatcher routes command lines through a fixed command table.
type Dispatcher struct {
	bank      Bank
	catalog   Catalog
	verifier  Verifier
	engine    Engine
	directory Directory
	metrics   Metrics
	newSalt   func() (string, error)
	commands  map[string]HandlerFunc
}

func NewDispatcher(deps Deps) *Dispatcher {
	d := &Dispatcher{
		bank:      deps.Bank,
		catalog:   deps.Catalog,
		verifier:  deps.Verifier,
		engine:    deps.Engine,
		directory: deps.Directory,
		metrics:   deps.Metrics,
		newSalt:   deps.NewSalt,
	}
	if d.newSalt == nil {
		d.newSalt = auth.NewSalt
	}
	d.commands = map[string]HandlerFunc{
		"USER":       d.cmdUser,
		"PASS":       d.cmdPass,
		"AUTOAUTH":   d.cmdAutoAuth,
		"SETEUSER":   d.cmdSetEUser,
		"ENUM_ITEMS": d.cmdEnumItems,
		"ITEM_INFO":  d.cmdItemInfo,
		"DISPENSE":   d.cmdDispense,
		"REFUND":     d.cmdRefund,
		"GIVE":       d.cmdGive,
		"DONATE":     d.cmdDonate,
		"ADD":        d.cmdAdd,
		"SET":        d.cmdSet,
		"ENUM_USERS": d.cmdEnumUsers,
		"USER_INFO":  d.cmdUserInfo,
		"USER_ADD":   d.cmdUserAdd,
		"USER_FLAGS": d.cmdUserFlags,
	}
	return d
}

// Dispatch parses one line and runs the matching command. Command names
// are matched exactly.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, line string) Reply {
	name, args, _ := strings.Cut(strings.TrimRight(line, "\r\n"), " ")
	handler, ok := d.commands[name]
	if !ok {
		d.observe("unknown", replyUnknownCommand)
		return replyUnknownCommand
	}
	if s.authenticated {
		ctx = ledger.WithActor(ctx, s.accountID)
	}
	r := handler(ctx, s, args)
	d.observe(name, r)
	return r
}

func (d *Dispatcher) observe(command string, r Reply) {
	if d.metrics != nil {
		d.metrics.ObserveCommand(command, r.Code())
	}
}

// requireTier checks the authenticated account's role. The returned reply
// is only meaningful when ok is false.
func (d *Dispatcher) requireTier(s *Session, tier models.Tier, denied Reply) (models.Account, Reply, bool) {
	if !s.authenticated {
		return models.Account{}, replyNotAuthenticated, false
	}
	acct, err := d.bank.Account(s.accountID)
	if err != nil {
		return models.Account{}, internalError("Account lookup failed"), false
	}
	if acct.Flags.Tier() < tier {
		return acct, denied, false
	}
	return acct, Reply{}, true
}

// splitFields takes n space-delimited fields and returns the remainder as
// free text.
func splitFields(args string, n int) ([]string, string, bool) {
	fields := make([]string, 0, n)
	rest := strings.TrimLeft(args, " ")
	for len(fields) < n {
		if rest == "" {
			return fields, "", false
		}
		field, tail, _ := strings.Cut(rest, " ")
		fields = append(fields, field)
		rest = strings.TrimLeft(tail, " ")
	}
	return fields, rest, true
}
