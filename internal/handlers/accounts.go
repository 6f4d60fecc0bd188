package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"dispense/internal/ledger"
	"dispense/internal/middleware"
	"dispense/internal/models"
	"dispense/internal/money"
	"dispense/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := ledger.Query{Descending: query.Get("desc") == "true"}
	if raw := query.Get("sort"); raw != "" {
		key, ok := ledger.ParseSortKey(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "invalid sort")
			return
		}
		q.Sort = key
	}
	it := h.bank.Iterate(q)
	accounts := make([]accountView, 0, it.Len())
	for acct, ok := it.Next(); ok; acct, ok = it.Next() {
		accounts = append(accounts, viewAccount(acct))
	}
	respondJSON(w, http.StatusOK, accounts)
}

// target resolves the {name} path parameter. Accounts below coke may only
// see themselves.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (models.Account, bool) {
	caller, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return models.Account{}, false
	}
	name := chi.URLParam(r, "name")
	if name != caller.Name && caller.Flags.Tier() < models.TierCoke {
		respondError(w, http.StatusForbidden, "access denied")
		return models.Account{}, false
	}
	id, err := h.bank.Lookup(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found")
		return models.Account{}, false
	}
	acct, err := h.bank.Account(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found")
		return models.Account{}, false
	}
	return acct, true
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.target(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, viewAccount(acct))
}

func (h *Handler) AccountHistory(w http.ResponseWriter, r *http.Request) {
	acct, ok := h.target(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	limit := parseInt(query.Get("limit"), 50)
	page := parseInt(query.Get("page"), 1)
	offset := (page - 1) * limit
	entries, err := h.ledger.ListByAccount(r.Context(), acct.ID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load history")
		return
	}
	normalized := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		normalized = append(normalized, map[string]any{
			"id":            entry.ID,
			"transfer_id":   entry.TransferID,
			"amount":        money.FormatMinor(entry.Amount),
			"balance_after": money.FormatMinor(entry.BalanceAfter),
			"description":   entry.Description,
			"created_at":    entry.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}

func (h *Handler) AddFunds(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req fundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || validateRequest(req) != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	target, err := h.bank.Lookup(chi.URLParam(r, "name"))
	if err != nil {
		respondError(w, http.StatusNotFound, "account not found")
		return
	}
	if err := h.engine.AdminAdjust(r.Context(), caller.ID, target, amount, req.Reason); err != nil {
		respondFundsError(w, err)
		return
	}
	acct, _ := h.bank.Account(target)
	respondJSON(w, http.StatusOK, viewAccount(acct))
}

func respondFundsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		respondError(w, http.StatusPaymentRequired, "insufficient_funds")
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, ledger.ErrSameAccount):
		respondError(w, http.StatusBadRequest, "same_account")
	case errors.Is(err, ledger.ErrNotFound):
		respondError(w, http.StatusNotFound, "account not found")
	default:
		respondError(w, http.StatusInternalServerError, "transfer failed")
	}
}
