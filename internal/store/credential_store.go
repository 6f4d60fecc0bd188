package store

import (
	"context"
	"time"
)

type CredentialStore struct {
	db DB
}

func NewCredentialStore(db DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// SecretKey returns the hex encoded key stored for username, or
// sql.ErrNoRows when none has been set.
func (s *CredentialStore) SecretKey(ctx context.Context, username string) (string, error) {
	var key string
	err := s.db.GetContext(ctx, &key, `
		SELECT secret_key
		FROM credentials
		WHERE username = $1
	`, username)
	return key, err
}

func (s *CredentialStore) SetSecretKey(ctx context.Context, username, key string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (username, secret_key, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET secret_key = excluded.secret_key, updated_at = excluded.updated_at
	`, username, key, time.Now().UTC())
	return err
}
