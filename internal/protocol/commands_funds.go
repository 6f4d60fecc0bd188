package protocol

import (
	"context"
	"errors"
	"strconv"

	"dispense/internal/ledger"
	"dispense/internal/models"
	"dispense/internal/services"
)

func parseAmount(raw string) (int64, bool) {
	amount, err := strconv.ParseInt(raw, 10, 64)
	return amount, err == nil
}

func missingFields(expected int, got []string) Reply {
	return reply(StatusBadArgument, 407, "Invalid Argument, expected %d parameters, %d encountered", expected, len(got))
}

func (d *Dispatcher) cmdGive(ctx context.Context, s *Session, args string) Reply {
	if !s.authenticated {
		return replyNotAuthenticated
	}
	fields, reason, ok := splitFields(args, 2)
	if !ok || reason == "" {
		return missingFields(3, fields)
	}
	target, err := d.bank.Lookup(fields[0])
	if err != nil {
		return reply(StatusNotFound, 404, "Invalid target user")
	}
	amount, ok := parseAmount(fields[1])
	if !ok || amount <= 0 {
		return reply(StatusBadArgument, 407, "Invalid Argument, amount must be > zero")
	}
	switch err := d.engine.Give(ctx, s.accountID, s.payer(), target, amount, reason); {
	case err == nil:
		return reply(StatusOK, 200, "Give OK")
	case errors.Is(err, services.ErrInsufficientFunds):
		return reply(StatusConflict, 402, "Poor You")
	case errors.Is(err, ledger.ErrSameAccount):
		return reply(StatusBadArgument, 407, "Invalid Argument, cannot give to yourself")
	default:
		return internalError("Unknown error")
	}
}

func (d *Dispatcher) cmdDonate(ctx context.Context, s *Session, args string) Reply {
	if !s.authenticated {
		return replyNotAuthenticated
	}
	fields, reason, ok := splitFields(args, 1)
	if !ok || reason == "" {
		return missingFields(2, fields)
	}
	amount, ok := parseAmount(fields[0])
	if !ok || amount <= 0 {
		return reply(StatusBadArgument, 407, "Invalid Argument, amount must be > zero")
	}
	switch err := d.engine.Donate(ctx, s.accountID, s.payer(), amount, reason); {
	case err == nil:
		return reply(StatusOK, 200, "Donation Registered")
	case errors.Is(err, services.ErrInsufficientFunds):
		return reply(StatusConflict, 402, "Poor You")
	default:
		return internalError("Unknown error")
	}
}

// adminFunds handles ADD and SET, which share their argument shape and
// permission check.
func (d *Dispatcher) adminFunds(ctx context.Context, s *Session, args string, apply func(acting, target int, amount int64, reason string) error) Reply {
	if _, denied, ok := d.requireTier(s, models.TierCoke, replyNotCoke); !ok {
		return denied
	}
	fields, reason, ok := splitFields(args, 2)
	if !ok || reason == "" {
		return missingFields(3, fields)
	}
	target, err := d.bank.Lookup(fields[0])
	if err != nil {
		return reply(StatusNotFound, 404, "Invalid user")
	}
	amount, ok := parseAmount(fields[1])
	if !ok {
		return reply(StatusBadArgument, 407, "Invalid Argument, amount must be an integer")
	}
	switch err := apply(s.accountID, target, amount, reason); {
	case err == nil:
		return reply(StatusOK, 200, "Add OK")
	case errors.Is(err, services.ErrInsufficientFunds):
		return reply(StatusConflict, 402, "Poor Guy")
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAmount):
		return reply(StatusBadArgument, 407, "Invalid Argument, amount must be non-zero")
	case errors.Is(err, ledger.ErrSameAccount):
		return reply(StatusBadArgument, 407, "Invalid Argument, cannot adjust that account")
	default:
		return internalError("Unknown error")
	}
}

func (d *Dispatcher) cmdAdd(ctx context.Context, s *Session, args string) Reply {
	return d.adminFunds(ctx, s, args, func(acting, target int, amount int64, reason string) error {
		return d.engine.AdminAdjust(ctx, acting, target, amount, reason)
	})
}

func (d *Dispatcher) cmdSet(ctx context.Context, s *Session, args string) Reply {
	return d.adminFunds(ctx, s, args, func(acting, target int, balance int64, reason string) error {
		return d.engine.AdminSetBalance(ctx, acting, target, balance, reason)
	})
}
