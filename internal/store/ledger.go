// ABOUTME: SQLite implementation for the billing transaction ledger
// ABOUTME: Append-only records, one per accepted message

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RecordTransaction appends a billing entry to the ledger.
func (s *SQLiteStore) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (id, owner_id, amount, type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		tx.ID,
		tx.OwnerID,
		tx.Amount,
		tx.Type,
		tx.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}

	s.logger.Debug("recorded transaction",
		"id", tx.ID,
		"owner_id", tx.OwnerID,
		"amount", tx.Amount,
		"type", tx.Type,
	)
	return nil
}

// ListTransactionsByOwner retrieves all ledger entries for a user,
// oldest first.
func (s *SQLiteStore) ListTransactionsByOwner(ctx context.Context, ownerID string) ([]*Transaction, error) {
	query := `
		SELECT id, owner_id, amount, type, created_at
		FROM transactions
		WHERE owner_id = ?
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var txs []*Transaction
	for rows.Next() {
		var tx Transaction
		var createdAt string
		if err := rows.Scan(&tx.ID, &tx.OwnerID, &tx.Amount, &tx.Type, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning transaction row: %w", err)
		}
		tx.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		txs = append(txs, &tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transaction rows: %w", err)
	}

	return txs, nil
}

// Ensure SQLiteStore implements LedgerStore.
var _ LedgerStore = (*SQLiteStore)(nil)
