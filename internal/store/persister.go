package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dispense/internal/db"
	"dispense/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Persister writes ledger state changes to the database. Each call is one
// transaction, so a transfer's two balances, its ledger entries and its
// audit row land together or not at all.
type Persister struct {
	txRunner db.TxRunner
	accounts *AccountStore
	ledger   *LedgerStore
	audit    *AuditStore
}

func NewPersister(txRunner db.TxRunner, accounts *AccountStore, ledger *LedgerStore, audit *AuditStore) *Persister {
	return &Persister{
		txRunner: txRunner,
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
	}
}

func (p *Persister) LoadAccounts(ctx context.Context) ([]models.Account, error) {
	accounts, err := p.accounts.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	return accounts, nil
}

func (p *Persister) InsertAccount(ctx context.Context, account models.Account, actor int) error {
	return p.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := p.accounts.Create(ctx, tx, account); err != nil {
			return fmt.Errorf("insert account %q: %w", account.Name, err)
		}
		data, _ := json.Marshal(map[string]any{
			"name":    account.Name,
			"unix_id": account.UnixID,
			"flags":   uint32(account.Flags),
		})
		return p.audit.Log(ctx, tx, actor, "create_account", "account", strconv.Itoa(account.ID), string(data))
	})
}

func (p *Persister) UpdateFlags(ctx context.Context, accountID int, flags models.Flags, actor int) error {
	return p.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := p.accounts.UpdateFlags(ctx, tx, accountID, flags); err != nil {
			return fmt.Errorf("update flags: %w", err)
		}
		data, _ := json.Marshal(map[string]any{
			"flags": flags.String(),
		})
		return p.audit.Log(ctx, tx, actor, "set_flags", "account", strconv.Itoa(accountID), string(data))
	})
}

func (p *Persister) UpdateLastSeen(ctx context.Context, accountID int, seen time.Time) error {
	return p.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		return p.accounts.UpdateLastSeen(ctx, tx, accountID, seen)
	})
}

func (p *Persister) CommitTransfer(ctx context.Context, rec models.TransferRecord) error {
	entries := []LedgerEntryInput{
		{
			ID:           uuid.NewString(),
			TransferID:   rec.ID,
			AccountID:    rec.Source,
			Amount:       -rec.Amount,
			BalanceAfter: rec.SourceAfter,
			Description:  rec.Reason,
			CreatedAt:    rec.CommittedAt,
		},
		{
			ID:           uuid.NewString(),
			TransferID:   rec.ID,
			AccountID:    rec.Destination,
			Amount:       rec.Amount,
			BalanceAfter: rec.DestAfter,
			Description:  rec.Reason,
			CreatedAt:    rec.CommittedAt,
		},
	}
	if err := ensureBalanced(entries); err != nil {
		return err
	}
	return p.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := p.accounts.UpdateBalance(ctx, tx, rec.Source, rec.SourceAfter); err != nil {
			return fmt.Errorf("update source balance: %w", err)
		}
		if err := p.accounts.UpdateBalance(ctx, tx, rec.Destination, rec.DestAfter); err != nil {
			return fmt.Errorf("update destination balance: %w", err)
		}
		if err := p.ledger.InsertEntries(ctx, tx, entries); err != nil {
			return fmt.Errorf("insert ledger entries: %w", err)
		}
		data, _ := json.Marshal(map[string]any{
			"source":        rec.Source,
			"destination":   rec.Destination,
			"amount":        rec.Amount,
			"reason":        rec.Reason,
			"source_before": rec.SourceBefore,
			"source_after":  rec.SourceAfter,
			"dest_before":   rec.DestBefore,
			"dest_after":    rec.DestAfter,
		})
		return p.audit.Log(ctx, tx, rec.Actor, "transfer", "transfer", rec.ID, string(data))
	})
}

func ensureBalanced(entries []LedgerEntryInput) error {
	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}
	if sum != 0 {
		return errors.New("ledger entries are not balanced")
	}
	return nil
}
