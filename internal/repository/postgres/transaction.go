package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chainpay/internal/domain"
	"chainpay/pkg/errors"
)

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// insertTransaction is shared between the repository and the atomic store
// writer so both paths use identical SQL.
func insertTransaction(ctx context.Context, ext sqlx.ExtContext, tx *domain.Transaction) error {
	query := `
        INSERT INTO transactions (
            id, user_id, type, amount, currency, chain, network,
            from_address, to_address, tx_hash, status, details,
            created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
        )
    `

	_, err := ext.ExecContext(ctx, query,
		tx.ID, tx.UserID, tx.Type, tx.Amount, tx.Currency, tx.Chain, tx.Network,
		tx.FromAddress, tx.ToAddress, tx.TxHash, tx.Status, tx.Details,
		tx.CreatedAt, tx.UpdatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return errors.ErrTransactionAlreadyExists
		}
		return errors.Wrap(err, "failed to create transaction")
	}
	return nil
}

const transactionColumns = `
	id, user_id, type, amount, currency, chain, network,
	COALESCE(from_address, '') AS from_address,
	COALESCE(to_address, '') AS to_address,
	COALESCE(tx_hash, '') AS tx_hash,
	status, details, created_at, updated_at
`

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	return insertTransaction(ctx, r.db, tx)
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	err := r.db.GetContext(ctx, &tx, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find transaction")
	}
	return &tx, nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	var txs []*domain.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &txs, query, userID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}
	return txs, nil
}

// UpdateStatus flips one row's settlement state. Historical rows are never
// otherwise rewritten.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	query := `UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return errors.Wrap(err, "failed to update transaction status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrTransactionNotFound
	}
	return nil
}

// FindPending returns the oldest unresolved rows for the confirmation
// watcher.
func (r *TransactionRepository) FindPending(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	var txs []*domain.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &txs, query, domain.TransactionStatusPending, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find pending transactions")
	}
	return txs, nil
}

// FindOrphanSends returns send rows older than olderThan with no
// fee-collection row referencing them. The atomic send path cannot produce
// these; they surface legacy data or manual interference.
func (r *TransactionRepository) FindOrphanSends(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = 500
	}

	var txs []*domain.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.type = $1
		  AND t.created_at < $2
		  AND NOT EXISTS (
			SELECT 1 FROM transactions f
			WHERE f.type = $3
			  AND f.details->>'original_transaction_id' = t.id::text
		  )
		ORDER BY t.created_at ASC
		LIMIT $4
	`

	err := r.db.SelectContext(ctx, &txs, query,
		domain.TransactionTypeSend,
		time.Now().Add(-olderThan),
		domain.TransactionTypeFeeCollection,
		limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find orphan sends")
	}
	return txs, nil
}
