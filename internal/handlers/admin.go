package handlers

import (
	"net/http"

	"dispense/internal/auth"
	"dispense/internal/middleware"
	"dispense/internal/models"
	"dispense/internal/money"
	"dispense/internal/websocket"
)

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	rows, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// Reconcile compares each stored balance with the sum of its ledger entries
// and with the balance the running ledger holds.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	type reconRow struct {
		AccountID      int    `db:"account_id"`
		Name           string `db:"name"`
		LedgerSum      int64  `db:"ledger_sum"`
		AccountBalance int64  `db:"account_balance"`
		Difference     int64  `db:"difference"`
	}
	var rows []reconRow
	query := `
		SELECT a.id AS account_id,
		       a.name,
		       COALESCE(SUM(l.amount), 0) AS ledger_sum,
		       a.balance AS account_balance,
		       (a.balance - COALESCE(SUM(l.amount), 0)) AS difference
		FROM accounts a
		LEFT JOIN ledger_entries l ON l.account_id = a.id
		GROUP BY a.id, a.name, a.balance
		ORDER BY a.id
	`
	if err := h.reconcileDB.SelectContext(r.Context(), &rows, query); err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile balances")
		return
	}
	normalized := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entry := map[string]any{
			"account_id":      row.AccountID,
			"name":            row.Name,
			"ledger_sum":      money.FormatMinor(row.LedgerSum),
			"account_balance": money.FormatMinor(row.AccountBalance),
			"difference":      money.FormatMinor(row.Difference),
			"in_sync":         row.Difference == 0,
		}
		if acct, err := h.bank.Account(row.AccountID); err == nil {
			entry["live_balance"] = money.FormatMinor(acct.Balance)
			entry["in_sync"] = row.Difference == 0 && acct.Balance == row.AccountBalance
		}
		normalized = append(normalized, entry)
	}
	respondJSON(w, http.StatusOK, normalized)
}

// WSBalances subscribes to balance pushes. The token may come from the
// query string since browsers cannot set headers on websocket upgrades.
// Watching another account, or every account with "*", needs coke.
func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	account := r.URL.Query().Get("account")
	if account == "" {
		account = claims.Username
	}
	if account != claims.Username {
		id, err := h.bank.Lookup(claims.Username)
		if err != nil {
			respondError(w, http.StatusForbidden, "access denied")
			return
		}
		caller, err := h.bank.Account(id)
		if err != nil || caller.Flags.Tier() < models.TierCoke || caller.Flags.Has(models.FlagDisabled) {
			respondError(w, http.StatusForbidden, "access denied")
			return
		}
		if account != websocket.AllAccounts {
			if _, err := h.bank.Lookup(account); err != nil {
				respondError(w, http.StatusNotFound, "account not found")
				return
			}
		}
	}
	h.ws.Serve(w, r, account)
}
