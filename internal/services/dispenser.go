package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"dispense/internal/catalog"
	"dispense/internal/ledger"
	"dispense/internal/models"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = ledger.ErrInsufficientFunds
	ErrUnavailable       = errors.New("unable to dispense")
	ErrDispenseFailed    = errors.New("dispense failed")
)

type Ledger interface {
	Lookup(name string) (int, error)
	AccountName(id int) string
	GetBalance(id int) (int64, error)
	CanTransfer(src, dst int, amount int64) error
	Transfer(ctx context.Context, src, dst int, amount int64, reason string) (models.TransferRecord, error)
	SetBalance(ctx context.Context, target, counterparty int, balance int64, reason string) (models.TransferRecord, error)
}

type HandlerSource interface {
	HandlerFor(item catalog.Item) catalog.Handler
}

type DispenseMetrics interface {
	ObserveDispense(outcome string)
}

type DispenserOptions struct {
	// TestMode performs dispenses without charging anyone.
	TestMode bool
	Metrics  DispenseMetrics
}

// Dispenser orchestrates ledger transfers around item dispenses. It keeps no
// state beyond the ids of the two pseudo accounts.
type Dispenser struct {
	ledger    Ledger
	handlers  HandlerSource
	metrics   DispenseMetrics
	testMode  bool
	sales     int
	liability int
}

func NewDispenser(l Ledger, handlers HandlerSource, opts DispenserOptions) (*Dispenser, error) {
	sales, err := l.Lookup(models.SalesAccountName)
	if err != nil {
		return nil, fmt.Errorf("sales account: %w", err)
	}
	liability, err := l.Lookup(models.LiabilityAccountName)
	if err != nil {
		return nil, fmt.Errorf("liability account: %w", err)
	}
	return &Dispenser{
		ledger:    l,
		handlers:  handlers,
		metrics:   opts.Metrics,
		testMode:  opts.TestMode,
		sales:     sales,
		liability: liability,
	}, nil
}

// DispenseItem charges target for item on behalf of acting. The charge is
// checked first, then the item is dispensed, then the charge is committed,
// so a failed dispense never moves money.
func (s *Dispenser) DispenseItem(ctx context.Context, acting, target int, item catalog.Item) error {
	ctx = ledger.WithActor(ctx, acting)
	charge := item.Price
	if s.testMode {
		charge = 0
	}
	err := s.dispense(ctx, target, item, charge)
	s.logDispense(acting, target, item, charge, err)
	return err
}

func (s *Dispenser) dispense(ctx context.Context, target int, item catalog.Item, charge int64) error {
	if charge != 0 {
		if err := s.ledger.CanTransfer(target, s.sales, charge); err != nil {
			if errors.Is(err, ledger.ErrInsufficientFunds) {
				return ErrInsufficientFunds
			}
			return err
		}
	}
	handler := s.handlers.HandlerFor(item)
	if err := handler.CanDispense(ctx, target, item.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := handler.DoDispense(ctx, target, item.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrDispenseFailed, err)
	}
	if charge == 0 {
		return nil
	}
	reason := fmt.Sprintf("dispense - %s %s", item.Key(), item.Name)
	// The item is out, so the charge commits even if the caller has gone.
	if _, err := s.ledger.Transfer(context.WithoutCancel(ctx), target, s.sales, charge, reason); err != nil {
		return fmt.Errorf("%w: charge after dispense: %v", ErrDispenseFailed, err)
	}
	return nil
}

func (s *Dispenser) logDispense(acting, target int, item catalog.Item, charge int64, err error) {
	balance, _ := s.ledger.GetBalance(target)
	actor := s.ledger.AccountName(acting)
	payer := s.ledger.AccountName(target)
	outcome := "ok"
	switch {
	case err == nil:
		log.Printf("dispense %s (%s) by %s for %s [cost %d, balance %d]", item.Name, item.Key(), actor, payer, charge, balance)
	case errors.Is(err, ErrInsufficientFunds):
		outcome = "insufficient_funds"
		log.Printf("dispense %s (%s) by %s for %s refused: insufficient funds [cost %d, balance %d]", item.Name, item.Key(), actor, payer, charge, balance)
	case errors.Is(err, ErrUnavailable):
		outcome = "unavailable"
		log.Printf("dispense %s (%s) by %s for %s refused: %v [balance %d]", item.Name, item.Key(), actor, payer, err, balance)
	default:
		outcome = "failed"
		log.Printf("ERROR: dispense %s (%s) by %s for %s failed: %v [cost %d, balance %d]", item.Name, item.Key(), actor, payer, err, charge, balance)
	}
	if s.metrics != nil {
		s.metrics.ObserveDispense(outcome)
	}
}

// Give moves a positive amount between two accounts.
func (s *Dispenser) Give(ctx context.Context, acting, src, dst int, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if _, err := s.ledger.Transfer(ledger.WithActor(ctx, acting), src, dst, amount, reason); err != nil {
		return err
	}
	log.Printf("give %d to %s from %s by %s (%s)", amount, s.ledger.AccountName(dst), s.ledger.AccountName(src), s.ledger.AccountName(acting), reason)
	return nil
}

// AdminAdjust funds target from the liability account. A negative amount
// takes money back.
func (s *Dispenser) AdminAdjust(ctx context.Context, acting, target int, amount int64, reason string) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if _, err := s.ledger.Transfer(ledger.WithActor(ctx, acting), s.liability, target, amount, reason); err != nil {
		return err
	}
	log.Printf("add %d to %s by %s (%s)", amount, s.ledger.AccountName(target), s.ledger.AccountName(acting), reason)
	return nil
}

// AdminSetBalance makes target's balance exactly balance, settling the
// difference against the liability account.
func (s *Dispenser) AdminSetBalance(ctx context.Context, acting, target int, balance int64, reason string) error {
	rec, err := s.ledger.SetBalance(ledger.WithActor(ctx, acting), target, s.liability, balance, reason)
	if err != nil {
		return err
	}
	log.Printf("set %s to %d (was %d) by %s (%s)", s.ledger.AccountName(target), balance, rec.DestBefore, s.ledger.AccountName(acting), reason)
	return nil
}

// Donate gives money from src to the club.
func (s *Dispenser) Donate(ctx context.Context, acting, src int, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if _, err := s.ledger.Transfer(ledger.WithActor(ctx, acting), src, s.liability, amount, reason); err != nil {
		return err
	}
	log.Printf("donate %d from %s (%s)", amount, s.ledger.AccountName(src), reason)
	return nil
}

// Refund returns price to target from the sales account. A negative price
// means the item's own price.
func (s *Dispenser) Refund(ctx context.Context, acting, target int, item catalog.Item, price int64) error {
	if price < 0 {
		price = item.Price
	}
	if price == 0 {
		return ErrInvalidAmount
	}
	reason := fmt.Sprintf("refund - %s %s", item.Key(), item.Name)
	if _, err := s.ledger.Transfer(ledger.WithActor(ctx, acting), s.sales, target, price, reason); err != nil {
		return err
	}
	log.Printf("refund %s (%s) to %s by %s [%d]", item.Name, item.Key(), s.ledger.AccountName(target), s.ledger.AccountName(acting), price)
	return nil
}
