package auth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyIterations = 4096
	keyLength     = sha1.Size
	keySaltPrefix = "dispense:"
)

// DeriveKey stretches a password into the per-user secret kept in the
// credentials table. Clients derive the same key to answer a challenge.
func DeriveKey(username, password string) []byte {
	return pbkdf2.Key([]byte(password), []byte(keySaltPrefix+username), keyIterations, keyLength, sha1.New)
}

// HashPassword returns the hex encoded key for storage.
func HashPassword(username, password string) string {
	return hex.EncodeToString(DeriveKey(username, password))
}

// ChallengeResponse is what a client sends with PASS: hex(HMAC-SHA1(key, salt)).
func ChallengeResponse(key []byte, salt string) string {
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(salt))
	return hex.EncodeToString(mac.Sum(nil))
}

// CheckPassword compares a plain password against a stored hex key.
func CheckPassword(storedKey, username, password string) bool {
	want, err := hex.DecodeString(storedKey)
	if err != nil {
		return false
	}
	return hmac.Equal(want, DeriveKey(username, password))
}
