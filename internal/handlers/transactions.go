package handlers

import (
	"encoding/json"
	"net/http"

	"dispense/internal/middleware"
	"dispense/internal/money"
)

func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || validateRequest(req) != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	dst, err := h.bank.Lookup(req.To)
	if err != nil {
		respondError(w, http.StatusNotFound, "recipient not found")
		return
	}
	if err := h.engine.Give(r.Context(), caller.ID, caller.ID, dst, amount, req.Reason); err != nil {
		respondFundsError(w, err)
		return
	}
	acct, _ := h.bank.Account(caller.ID)
	respondJSON(w, http.StatusOK, viewAccount(acct))
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items := h.catalog.Items()
	normalized := make([]map[string]any, 0, len(items))
	for _, item := range items {
		normalized = append(normalized, map[string]any{
			"key":   item.Key(),
			"name":  item.Name,
			"price": money.FormatMinor(item.Price),
		})
	}
	respondJSON(w, http.StatusOK, normalized)
}
