package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chainpay/internal/domain"
	"chainpay/pkg/errors"
)

type TransactionAuthRepository struct {
	db *sqlx.DB
}

func NewTransactionAuthRepository(db *sqlx.DB) *TransactionAuthRepository {
	return &TransactionAuthRepository{db: db}
}

func (r *TransactionAuthRepository) Get(ctx context.Context, userID uuid.UUID) (*domain.TransactionAuth, error) {
	var auth domain.TransactionAuth
	query := `
		SELECT user_id, pin_hash, totp_secret, created_at, updated_at
		FROM transaction_auth
		WHERE user_id = $1
	`

	err := r.db.GetContext(ctx, &auth, query, userID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPinNotSet
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load transaction auth")
	}
	return &auth, nil
}

func (r *TransactionAuthRepository) Upsert(ctx context.Context, auth *domain.TransactionAuth) error {
	query := `
        INSERT INTO transaction_auth (user_id, pin_hash, totp_secret, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id) DO UPDATE
        SET pin_hash = EXCLUDED.pin_hash,
            totp_secret = EXCLUDED.totp_secret,
            updated_at = EXCLUDED.updated_at
    `

	_, err := r.db.ExecContext(ctx, query,
		auth.UserID, auth.PinHash, auth.TOTPSecret, auth.CreatedAt, auth.UpdatedAt,
	)
	return errors.Wrap(err, "failed to store transaction auth")
}
