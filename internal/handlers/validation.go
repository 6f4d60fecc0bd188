package handlers

import (
	"errors"

	"dispense/internal/money"
	"dispense/internal/validator"
)

var errInvalidAmount = errors.New("invalid amount")

// parseAmountMinor accepts "1.50" style amounts. Negative amounts are only
// allowed when signed is true.
func parseAmountMinor(raw string, signed bool) (int64, error) {
	amount, err := money.ParseMinor(raw)
	if err != nil || amount == 0 || (!signed && amount < 0) {
		return 0, errInvalidAmount
	}
	return amount, nil
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=128"`
}

type fundsRequest struct {
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,max=200"`
}

type transferRequest struct {
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required,max=200"`
}

func validateRequest(req any) error {
	return validator.Struct(req)
}
