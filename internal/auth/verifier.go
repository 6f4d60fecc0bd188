package auth

import (
	"context"
	"crypto/hmac"
	"database/sql"
	"encoding/hex"
	"errors"
	"log"
	"strings"
)

// legacyUsers always pass authentication when the bypass is switched on.
var legacyUsers = map[string]bool{
	"tpg":  true,
	"root": true,
}

type KeyStore interface {
	SecretKey(ctx context.Context, username string) (string, error)
}

// Verifier checks PASS responses against the stored per-user key.
type Verifier struct {
	keys         KeyStore
	legacyBypass bool
}

func NewVerifier(keys KeyStore, legacyBypass bool) *Verifier {
	return &Verifier{keys: keys, legacyBypass: legacyBypass}
}

// Verify reports whether response answers salt for username. Unknown users
// and wrong responses both come back as false with a nil error.
func (v *Verifier) Verify(ctx context.Context, salt, username, response string) (bool, error) {
	if v.legacyBypass && legacyUsers[username] {
		log.Printf("auth: legacy bypass used for %s", username)
		return true, nil
	}
	stored, err := v.keys.SecretKey(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	key, err := hex.DecodeString(stored)
	if err != nil {
		return false, nil
	}
	got, err := hex.DecodeString(strings.ToLower(response))
	if err != nil {
		return false, nil
	}
	want, _ := hex.DecodeString(ChallengeResponse(key, salt))
	return hmac.Equal(got, want), nil
}

// CheckPassword verifies a plain password, as used by the HTTP login.
func (v *Verifier) CheckPassword(ctx context.Context, username, password string) (bool, error) {
	stored, err := v.keys.SecretKey(ctx, username)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return CheckPassword(stored, username, password), nil
}
