package store

import (
	"context"
	"time"

	"dispense/internal/models"
)

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, account models.Account) error {
	query := `
		INSERT INTO accounts (id, name, unix_id, balance, flags, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query, account.ID, account.Name, account.UnixID, account.Balance, account.Flags, account.LastSeen.UTC())
	return err
}

func (s *AccountStore) List(ctx context.Context) ([]models.Account, error) {
	var rows []models.Account
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, name, unix_id, balance, flags, last_seen
		FROM accounts
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) GetByName(ctx context.Context, name string) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, unix_id, balance, flags, last_seen
		FROM accounts
		WHERE name = $1
	`, name)
	if err != nil {
		return models.Account{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountID int, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1
		WHERE id = $2
	`, balance, accountID)
	return err
}

func (s *AccountStore) UpdateFlags(ctx context.Context, tx Execer, accountID int, flags models.Flags) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET flags = $1
		WHERE id = $2
	`, flags, accountID)
	return err
}

func (s *AccountStore) UpdateLastSeen(ctx context.Context, tx Execer, accountID int, seen time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET last_seen = $1
		WHERE id = $2
	`, seen.UTC(), accountID)
	return err
}
