package middleware

import (
	"context"
	"errors"
	"net/http"

	"dispense/internal/ledger"
	"dispense/internal/models"
)

type AccountSource interface {
	Lookup(name string) (int, error)
	Account(id int) (models.Account, error)
}

func AccountFromContext(ctx context.Context) (models.Account, bool) {
	acct, ok := ctx.Value(accountKey).(models.Account)
	return acct, ok
}

// RequireTier resolves the token's username to a ledger account and
// rejects disabled or internal accounts and those below tier. The account
// is stored in the request context.
func RequireTier(accounts AccountSource, tier models.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, ok := UsernameFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			id, err := accounts.Lookup(username)
			if err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					http.Error(w, "unknown account", http.StatusForbidden)
					return
				}
				http.Error(w, "unable to verify account", http.StatusInternalServerError)
				return
			}
			acct, err := accounts.Account(id)
			if err != nil {
				http.Error(w, "unable to verify account", http.StatusInternalServerError)
				return
			}
			if acct.Flags.Has(models.FlagDisabled) || acct.Flags.Has(models.FlagInternal) {
				http.Error(w, "account disabled", http.StatusForbidden)
				return
			}
			if acct.Flags.Tier() < tier {
				http.Error(w, "insufficient privileges", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), accountKey, acct)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
