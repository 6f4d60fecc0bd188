package protocol

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"dispense/internal/ledger"
	"dispense/internal/models"
	"dispense/internal/services"
	"dispense/internal/validator"
)

func userLine(acct models.Account) Line {
	return Line{Code: 202, Text: "User " + acct.Name + " " + strconv.FormatInt(acct.Balance, 10) + " " + acct.Flags.String()}
}

func (d *Dispatcher) cmdEnumUsers(_ context.Context, s *Session, args string) Reply {
	if !s.authenticated {
		return replyNotAuthenticated
	}
	q, bad := parseUserQuery(args)
	if bad != "" {
		return reply(StatusBadArgument, 407, "Unknown argument '%s'", bad)
	}
	it := d.bank.Iterate(q)
	lines := make([]Line, 0, it.Len()+2)
	lines = append(lines, Line{Code: 201, Text: "Users " + strconv.Itoa(it.Len())})
	for acct, ok := it.Next(); ok; acct, ok = it.Next() {
		lines = append(lines, userLine(acct))
	}
	lines = append(lines, Line{Code: 200, Text: "List End"})
	return Reply{Status: StatusOKData, Lines: lines}
}

// parseUserQuery reads ENUM_USERS filters of the form key:value.
func parseUserQuery(args string) (ledger.Query, string) {
	var q ledger.Query
	for _, arg := range strings.Fields(args) {
		key, value, ok := strings.Cut(arg, ":")
		if !ok {
			return q, arg
		}
		switch key {
		case "min_balance", "max_balance":
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return q, arg
			}
			if key == "min_balance" {
				q.MinBalance = &n
			} else {
				q.MaxBalance = &n
			}
		case "flags":
			mask, values, _, ok := parseFlagEdits(value)
			if !ok {
				return q, arg
			}
			q.FlagMask, q.FlagValues = mask, values
		case "last_seen_before", "last_seen_after":
			secs, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return q, arg
			}
			if key == "last_seen_before" {
				q.SeenBefore = time.Unix(secs, 0)
			} else {
				q.SeenAfter = time.Unix(secs, 0)
			}
		case "sort":
			name, desc := strings.CutSuffix(value, "-desc")
			sortKey, ok := ledger.ParseSortKey(name)
			if !ok {
				return q, arg
			}
			q.Sort, q.Descending = sortKey, desc
		default:
			return q, arg
		}
	}
	return q, ""
}

func (d *Dispatcher) cmdUserInfo(_ context.Context, s *Session, args string) Reply {
	if !s.authenticated {
		return replyNotAuthenticated
	}
	id, err := d.bank.Lookup(strings.TrimSpace(args))
	if err != nil {
		return reply(StatusNotFound, 404, "User not found")
	}
	acct, err := d.bank.Account(id)
	if err != nil {
		return reply(StatusNotFound, 404, "User not found")
	}
	return Reply{Status: StatusOKData, Lines: []Line{userLine(acct)}}
}

func (d *Dispatcher) cmdUserAdd(ctx context.Context, s *Session, args string) Reply {
	if _, denied, ok := d.requireTier(s, models.TierWheel, replyNotWheel); !ok {
		return denied
	}
	username := strings.TrimSpace(args)
	if err := validator.ValidateUsername(username); err != nil {
		return reply(StatusBadArgument, 407, "Invalid username")
	}
	switch _, err := d.directory.Create(ctx, s.accountID, username); {
	case err == nil:
		log.Printf("client %d: account %s created by %s", s.clientID, username, s.username)
		return reply(StatusOK, 200, "User Added")
	case errors.Is(err, ledger.ErrExists):
		return reply(StatusConflict, 404, "User already exists")
	case errors.Is(err, services.ErrUnknownUser):
		return reply(StatusBadArgument, 407, "Invalid username")
	default:
		log.Printf("client %d: create account %s: %v", s.clientID, username, err)
		return internalError("Unable to create user")
	}
}

func (d *Dispatcher) cmdUserFlags(ctx context.Context, s *Session, args string) Reply {
	if _, denied, ok := d.requireTier(s, models.TierWheel, replyNotWheel); !ok {
		return denied
	}
	fields, edits, ok := splitFields(args, 1)
	if !ok || edits == "" {
		return missingFields(2, fields)
	}
	target, err := d.bank.Lookup(fields[0])
	if err != nil {
		return reply(StatusNotFound, 404, "User '%s' not found", fields[0])
	}
	mask, value, bad, ok := parseFlagEdits(edits)
	if !ok {
		return reply(StatusBadArgument, 407, "Unknown flag value '%s'", bad)
	}
	if err := d.bank.SetFlags(ctx, target, mask, value); err != nil {
		log.Printf("client %d: set flags on %s: %v", s.clientID, fields[0], err)
		return internalError("Unable to update user")
	}
	return reply(StatusOK, 200, "User Updated")
}
