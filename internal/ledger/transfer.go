package ledger

import (
	"context"
	"errors"
	"log"
	"math"

	"dispense/internal/models"

	"github.com/google/uuid"
)

// Transfer moves amount from src to dst. Both accounts must stay at or above
// their floors afterwards; amount may be negative, in which case money flows
// the other way and the same two checks apply.
func (b *Bank) Transfer(ctx context.Context, src, dst int, amount int64, reason string) (models.TransferRecord, error) {
	if amount == math.MinInt64 {
		return models.TransferRecord{}, ErrInvalidAmount
	}
	if src == dst {
		return models.TransferRecord{}, ErrSameAccount
	}
	srcExtra, dstExtra := b.pairGroupFlags(src, dst)

	b.mu.Lock()
	event, err := b.transferLocked(ctx, src, dst, amount, reason, srcExtra, dstExtra)
	b.mu.Unlock()

	b.finish(ctx, event, err)
	return event.Record, err
}

// CanTransfer reports whether Transfer would currently succeed, without
// changing anything.
func (b *Bank) CanTransfer(src, dst int, amount int64) error {
	if amount == math.MinInt64 {
		return ErrInvalidAmount
	}
	if src == dst {
		return ErrSameAccount
	}
	srcExtra, dstExtra := b.pairGroupFlags(src, dst)

	b.mu.RLock()
	defer b.mu.RUnlock()
	from, ok := b.accounts[src]
	if !ok {
		return ErrNotFound
	}
	to, ok := b.accounts[dst]
	if !ok {
		return ErrNotFound
	}
	return b.check(from, to, amount, srcExtra, dstExtra)
}

// SetBalance brings target to balance by transferring the difference from
// counterparty. The difference is computed under the write lock.
func (b *Bank) SetBalance(ctx context.Context, target, counterparty int, balance int64, reason string) (models.TransferRecord, error) {
	if target == counterparty {
		return models.TransferRecord{}, ErrSameAccount
	}
	srcExtra, dstExtra := b.pairGroupFlags(counterparty, target)

	b.mu.Lock()
	var (
		event TransferEvent
		err   error
	)
	if acct, ok := b.accounts[target]; !ok {
		err = ErrNotFound
	} else {
		delta, ok := sub(balance, acct.Balance)
		if !ok || delta == math.MinInt64 {
			err = ErrInvalidAmount
		} else {
			event, err = b.transferLocked(ctx, counterparty, target, delta, reason, srcExtra, dstExtra)
		}
	}
	b.mu.Unlock()

	b.finish(ctx, event, err)
	return event.Record, err
}

func (b *Bank) transferLocked(ctx context.Context, src, dst int, amount int64, reason string, srcExtra, dstExtra models.Flags) (TransferEvent, error) {
	from, ok := b.accounts[src]
	if !ok {
		return TransferEvent{}, ErrNotFound
	}
	to, ok := b.accounts[dst]
	if !ok {
		return TransferEvent{}, ErrNotFound
	}
	if err := b.check(from, to, amount, srcExtra, dstExtra); err != nil {
		return TransferEvent{}, err
	}
	rec := models.TransferRecord{
		ID:           uuid.NewString(),
		Actor:        ActorFromContext(ctx),
		Source:       src,
		Destination:  dst,
		Amount:       amount,
		Reason:       reason,
		SourceBefore: from.Balance,
		DestBefore:   to.Balance,
		SourceAfter:  from.Balance - amount,
		DestAfter:    to.Balance + amount,
		CommittedAt:  b.now().UTC(),
	}
	if err := b.persister.CommitTransfer(ctx, rec); err != nil {
		return TransferEvent{}, err
	}
	from.Balance = rec.SourceAfter
	to.Balance = rec.DestAfter
	return TransferEvent{
		Record:      rec,
		SourceName:  from.Name,
		DestName:    to.Name,
		SourceFlags: b.effectiveFlags(*from, srcExtra),
		DestFlags:   b.effectiveFlags(*to, dstExtra),
	}, nil
}

func (b *Bank) check(from, to *models.Account, amount int64, srcExtra, dstExtra models.Flags) error {
	if !within(from.Balance, -amount, Floor(b.effectiveFlags(*from, srcExtra))) {
		return ErrInsufficientFunds
	}
	if !within(to.Balance, amount, Floor(b.effectiveFlags(*to, dstExtra))) {
		return ErrInsufficientFunds
	}
	return nil
}

func (b *Bank) finish(ctx context.Context, event TransferEvent, err error) {
	switch {
	case err == nil:
		rec := event.Record
		log.Printf("transfer %d #%d{%d} > #%d{%d} [%d, %d] (%s)",
			rec.Amount, rec.Source, rec.SourceBefore, rec.Destination, rec.DestBefore,
			rec.SourceAfter, rec.DestAfter, rec.Reason)
		b.observe("ok")
		for _, observer := range b.observers {
			observer.TransferCommitted(ctx, event)
		}
	case errors.Is(err, ErrInsufficientFunds):
		b.observe("insufficient_funds")
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidAmount):
		b.observe("rejected")
	default:
		log.Printf("transfer failed: %v", err)
		b.observe("error")
	}
}

func (b *Bank) observe(result string) {
	if b.metrics != nil {
		b.metrics.ObserveTransfer(result)
	}
}

// pairGroupFlags resolves group memberships before any lock is taken; names
// never change so the answer stays valid for the locked section.
func (b *Bank) pairGroupFlags(src, dst int) (models.Flags, models.Flags) {
	if b.groups == nil {
		return 0, 0
	}
	b.mu.RLock()
	var from, to models.Account
	if acct, ok := b.accounts[src]; ok {
		from = *acct
	}
	if acct, ok := b.accounts[dst]; ok {
		to = *acct
	}
	b.mu.RUnlock()
	return b.groupFlags(from), b.groupFlags(to)
}

func within(balance, delta, floor int64) bool {
	next, ok := add(balance, delta)
	if !ok {
		return false
	}
	return next >= floor
}

func add(a, b int64) (int64, bool) {
	c := a + b
	if (b > 0 && c < a) || (b < 0 && c > a) {
		return 0, false
	}
	return c, true
}

func sub(a, b int64) (int64, bool) {
	c := a - b
	if (b > 0 && c > a) || (b < 0 && c < a) {
		return 0, false
	}
	return c, true
}
