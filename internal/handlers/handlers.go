package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dispense/internal/models"
	"dispense/internal/money"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func parseInt(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

type accountView struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	UnixID       int64  `json:"unix_id"`
	Balance      string `json:"balance"`
	BalanceMinor int64  `json:"balance_minor"`
	Flags        string `json:"flags"`
	LastSeen     any    `json:"last_seen"`
}

func viewAccount(acct models.Account) accountView {
	var lastSeen any
	if !acct.LastSeen.IsZero() {
		lastSeen = acct.LastSeen
	}
	return accountView{
		ID:           acct.ID,
		Name:         acct.Name,
		UnixID:       acct.UnixID,
		Balance:      money.FormatMinor(acct.Balance),
		BalanceMinor: acct.Balance,
		Flags:        acct.Flags.String(),
		LastSeen:     lastSeen,
	}
}
