package protocol

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"dispense/internal/catalog"
	"dispense/internal/models"
	"dispense/internal/services"
)

func itemLine(item catalog.Item) Line {
	return Line{Code: 202, Text: "Item " + item.Key() + " " + strconv.FormatInt(item.Price, 10) + " " + item.Name}
}

func (d *Dispatcher) cmdEnumItems(context.Context, *Session, string) Reply {
	items := d.catalog.Items()
	lines := make([]Line, 0, len(items)+2)
	lines = append(lines, Line{Code: 201, Text: "Items " + strconv.Itoa(len(items))})
	for _, item := range items {
		lines = append(lines, itemLine(item))
	}
	lines = append(lines, Line{Code: 200, Text: "List end"})
	return Reply{Status: StatusOKData, Lines: lines}
}

func (d *Dispatcher) cmdItemInfo(_ context.Context, _ *Session, args string) Reply {
	item, err := d.catalog.Lookup(strings.TrimSpace(args))
	if err != nil {
		return replyBadItem
	}
	return Reply{Status: StatusOKData, Lines: []Line{itemLine(item)}}
}

func (d *Dispatcher) cmdDispense(ctx context.Context, s *Session, args string) Reply {
	if !s.authenticated {
		return replyNotAuthenticated
	}
	item, err := d.catalog.Lookup(strings.TrimSpace(args))
	if err != nil {
		return replyBadItem
	}
	switch err := d.engine.DispenseItem(ctx, s.accountID, s.payer(), item); {
	case err == nil:
		return reply(StatusOK, 200, "Dispense OK")
	case errors.Is(err, services.ErrUnavailable):
		return reply(StatusConflict, 501, "Unable to dispense")
	case errors.Is(err, services.ErrInsufficientFunds):
		return reply(StatusConflict, 402, "Poor You")
	default:
		return internalError("Dispense Error")
	}
}

func (d *Dispatcher) cmdRefund(ctx context.Context, s *Session, args string) Reply {
	if _, denied, ok := d.requireTier(s, models.TierWheel, replyNotWheel); !ok {
		return denied
	}
	fields, rest, ok := splitFields(args, 2)
	if !ok {
		return reply(StatusBadArgument, 407, "Invalid Argument, expected 2 or 3 parameters, %d encountered", len(fields))
	}
	price := int64(-1)
	if rest != "" {
		parsed, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || parsed <= 0 {
			return reply(StatusBadArgument, 407, "Invalid Argument, price must be a positive integer")
		}
		price = parsed
	}
	target, err := d.bank.Lookup(fields[0])
	if err != nil {
		return reply(StatusNotFound, 404, "Unknown user")
	}
	item, err := d.catalog.Lookup(fields[1])
	if err != nil {
		return replyBadItem
	}
	switch err := d.engine.Refund(ctx, s.accountID, target, item, price); {
	case err == nil:
		return reply(StatusOK, 200, "Item Refunded")
	case errors.Is(err, services.ErrInvalidAmount):
		return reply(StatusBadArgument, 407, "Invalid Argument, nothing to refund")
	case errors.Is(err, services.ErrInsufficientFunds):
		return reply(StatusConflict, 402, "Poor Guy")
	default:
		return internalError("Unknown error")
	}
}
