package protocol

import (
	"context"
	"errors"
	"log"
	"strings"

	"dispense/internal/models"
	"dispense/internal/services"
)

func (d *Dispatcher) cmdUser(_ context.Context, s *Session, args string) Reply {
	username := strings.TrimSpace(args)
	if username == "" {
		return reply(StatusBadArgument, 407, "USER expects an argument")
	}
	salt, err := d.newSalt()
	if err != nil {
		log.Printf("client %d: salt generation failed: %v", s.clientID, err)
		return internalError("Salt generation failed")
	}
	s.identify(username, salt)
	return reply(StatusOKData, 100, "SALT %s", salt)
}

func (d *Dispatcher) cmdPass(ctx context.Context, s *Session, args string) Reply {
	response := strings.TrimSpace(args)
	if response == "" {
		return reply(StatusBadArgument, 407, "PASS expects an argument")
	}
	if s.username == "" || s.salt == "" {
		return replyAuthFailure
	}
	ok, err := d.verifier.Verify(ctx, s.salt, s.username, response)
	if err != nil {
		log.Printf("client %d: verify %s: %v", s.clientID, s.username, err)
		return internalError("Authentication unavailable")
	}
	if !ok {
		return replyAuthFailure
	}
	return d.login(ctx, s, s.username)
}

func (d *Dispatcher) cmdAutoAuth(ctx context.Context, s *Session, args string) Reply {
	username, _, _ := strings.Cut(strings.TrimSpace(args), " ")
	if !s.trusted {
		log.Printf("client %d: untrusted client attempting AUTOAUTH", s.clientID)
		return reply(StatusForbidden, 401, "Untrusted")
	}
	if username == "" {
		return reply(StatusBadArgument, 407, "AUTOAUTH expects an argument")
	}
	return d.login(ctx, s, username)
}

// login binds the session to username's account once its credential has
// been accepted.
func (d *Dispatcher) login(ctx context.Context, s *Session, username string) Reply {
	id, err := d.directory.Resolve(ctx, username)
	if err != nil {
		if !errors.Is(err, services.ErrUnknownUser) {
			log.Printf("client %d: resolve %s: %v", s.clientID, username, err)
		}
		return replyAuthFailure
	}
	acct, err := d.bank.Account(id)
	if err != nil {
		return replyAuthFailure
	}
	if acct.Flags.Has(models.FlagInternal) {
		return replyAuthFailure
	}
	if acct.Flags.Has(models.FlagDisabled) {
		return reply(StatusForbidden, 403, "Account disabled")
	}
	s.authenticate(username, id)
	if err := d.bank.Touch(ctx, id); err != nil {
		log.Printf("client %d: update last seen for %s: %v", s.clientID, username, err)
	}
	log.Printf("client %d: authenticated as %s (#%d)", s.clientID, username, id)
	return replyAuthOK
}

func (d *Dispatcher) cmdSetEUser(_ context.Context, s *Session, args string) Reply {
	if _, denied, ok := d.requireTier(s, models.TierCoke, replyNotCoke); !ok {
		return denied
	}
	username := strings.TrimSpace(args)
	if username == "" {
		return reply(StatusBadArgument, 407, "SETEUSER expects an argument")
	}
	id, err := d.bank.Lookup(username)
	if err != nil {
		return reply(StatusNotFound, 404, "User not found")
	}
	s.effectiveID = id
	return reply(StatusOK, 200, "User set")
}
