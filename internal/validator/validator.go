package validator

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidUsername = errors.New("invalid username")
	ErrInvalidPassword = errors.New("invalid password")
)

// Account names follow Unix login rules.
var usernameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_-]*$`)

var validate = validator.New()

func ValidateUsername(username string) error {
	if err := validate.Var(username, "required,max=32"); err != nil {
		return ErrInvalidUsername
	}
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if err := validate.Var(password, "min=8,max=128"); err != nil {
		return ErrInvalidPassword
	}
	return nil
}

// Struct validates a tagged struct with the shared validator instance.
func Struct(v any) error {
	return validate.Struct(v)
}
