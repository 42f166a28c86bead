package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"donate-app/internal/models"
)

// TransactionStore is the append-only ledger of inbound bank webhooks.
// Rows are never mutated after insert except to record which memo code
// they were matched to.
type TransactionStore struct {
	db *sqlx.DB
}

func NewTransactionStore(db *sqlx.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Insert stores one webhook delivery. Deduplication by the gateway's own
// reference code happens inside the INSERT (unique constraint + ON
// CONFLICT DO NOTHING), not as a read-then-write, so two concurrent
// redeliveries cannot both land. Returns false when the row already
// existed. Rows without an external reference cannot be deduplicated and
// are always kept.
func (s *TransactionStore) Insert(ctx context.Context, tx *models.BankTransaction) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `INSERT INTO bank_transactions
	            (gateway, account_number, amount, description, external_reference_code, transaction_time, raw_payload)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (external_reference_code) DO NOTHING
	          RETURNING id`
	err := s.db.QueryRowxContext(ctx, query,
		tx.Gateway, tx.AccountNumber, tx.Amount, tx.Description,
		tx.ExternalReferenceCode, tx.TransactionTime, tx.RawPayload,
	).Scan(&tx.ID)
	if err != nil {
		// DO NOTHING suppresses the RETURNING row for duplicates.
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to store bank transaction: %w", err)
	}
	return true, nil
}

// SetMatchedMemo records which memo code a transaction was reconciled to.
func (s *TransactionStore) SetMatchedMemo(ctx context.Context, id int, memoCode string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`UPDATE bank_transactions SET matched_memo_code = $1 WHERE id = $2`, memoCode, id)
	if err != nil {
		return fmt.Errorf("failed to record matched memo: %w", err)
	}
	return nil
}

// ListRecent returns the newest delivery per gateway reference, newest
// first. The history view should show each real transfer once even when
// the gateway redelivered before the dedup constraint existed.
func (s *TransactionStore) ListRecent(ctx context.Context, limit int) ([]models.BankTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	query := `SELECT * FROM (
	            SELECT DISTINCT ON (external_reference_code) *
	            FROM bank_transactions
	            ORDER BY external_reference_code, created_at DESC
	          ) t
	          ORDER BY created_at DESC
	          LIMIT $1`
	var txs []models.BankTransaction
	if err := s.db.SelectContext(ctx, &txs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}
