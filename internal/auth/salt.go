package auth

import "crypto/rand"

const SaltLength = 8

// NewSalt returns a fresh challenge of printable characters in '!'..'`'.
func NewSalt() (string, error) {
	buf := make([]byte, SaltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = 0x21 + b&0x3F
	}
	return string(buf), nil
}
