// Package postgres implements the persistence layer on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"chainpay/internal/domain"
	"chainpay/internal/pipeline"
	"chainpay/pkg/errors"
)

// Connect opens and verifies a PostgreSQL connection pool.
func Connect(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Store opens atomic units of work for the transaction pipeline. The ledger
// rows and the fee record of one send commit together or not at all.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Transact runs fn inside one database transaction, rolling back on error.
func (s *Store) Transact(ctx context.Context, fn func(w pipeline.Writer) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err := fn(&txWriter{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrap(err, "rollback failed: "+rbErr.Error())
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// txWriter satisfies pipeline.Writer against one open transaction.
type txWriter struct {
	tx *sqlx.Tx
}

func (w *txWriter) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return insertTransaction(ctx, w.tx, tx)
}

func (w *txWriter) CreateFee(ctx context.Context, record *domain.Fee) error {
	return insertFee(ctx, w.tx, record)
}
