package store

import (
	"context"
	"time"
)

type LedgerStore struct {
	db DB
}

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

type LedgerEntryInput struct {
	ID           string
	TransferID   string
	AccountID    int
	Amount       int64
	BalanceAfter int64
	Description  string
	CreatedAt    time.Time
}

type LedgerEntry struct {
	ID           string    `db:"id" json:"id"`
	TransferID   string    `db:"transfer_id" json:"transfer_id"`
	AccountID    int       `db:"account_id" json:"account_id"`
	Amount       int64     `db:"amount" json:"amount"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	Description  string    `db:"description" json:"description"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (s *LedgerStore) InsertEntries(ctx context.Context, tx Execer, entries []LedgerEntryInput) error {
	query := `
		INSERT INTO ledger_entries (id, transfer_id, account_id, amount, balance_after, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query, entry.ID, entry.TransferID, entry.AccountID, entry.Amount, entry.BalanceAfter, entry.Description, entry.CreatedAt.UTC()); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerStore) ListByAccount(ctx context.Context, accountID, limit, offset int) ([]LedgerEntry, error) {
	var rows []LedgerEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, transfer_id, account_id, amount, balance_after, description, created_at
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// SumByAccount totals every entry for an account. Accounts open at zero,
// so the sum must equal the stored balance.
func (s *LedgerStore) SumByAccount(ctx context.Context, accountID int) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`, accountID)
	return sum, err
}
