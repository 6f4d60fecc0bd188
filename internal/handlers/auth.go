package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"dispense/internal/auth"
	"dispense/internal/middleware"
)

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validateRequest(req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	ok, err := h.verifier.CheckPassword(r.Context(), req.Username, req.Password)
	if err != nil {
		log.Printf("http login %s: %v", req.Username, err)
		respondError(w, http.StatusInternalServerError, "login failed")
		return
	}
	if !ok {
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	token, err := auth.GenerateToken(h.cfg.JWTSecret, req.Username, h.cfg.TokenTTL())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"token": token,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	acct, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	respondJSON(w, http.StatusOK, viewAccount(acct))
}
