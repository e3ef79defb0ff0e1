package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chainpay/internal/domain"
	"chainpay/pkg/errors"
)

type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	query := `
        INSERT INTO wallets (
            id, user_id, chain, network, address, encrypted_private_key,
            label, is_default, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := r.db.ExecContext(ctx, query,
		w.ID, w.UserID, w.Chain, w.Network, w.Address, w.EncryptedPrivateKey,
		w.Label, w.IsDefault, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return errors.ErrWalletAlreadyExists
		}
		return errors.Wrap(err, "failed to create wallet")
	}
	return nil
}

const walletColumns = `
	id, user_id, chain, network, address, encrypted_private_key,
	COALESCE(label, '') AS label, is_default, created_at, updated_at
`

func (r *WalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	var w domain.Wallet
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE id = $1`

	err := r.db.GetContext(ctx, &w, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrWalletNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find wallet")
	}
	return &w, nil
}

// GetDefault returns the user's default wallet on a chain/network.
func (r *WalletRepository) GetDefault(ctx context.Context, userID uuid.UUID, chain domain.Chain, network domain.Network) (*domain.Wallet, error) {
	var w domain.Wallet
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = $1 AND chain = $2 AND network = $3 AND is_default = TRUE
	`

	err := r.db.GetContext(ctx, &w, query, userID, chain, network)
	if err == sql.ErrNoRows {
		return nil, errors.ErrWalletNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find default wallet")
	}
	return &w, nil
}

func (r *WalletRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Wallet, error) {
	var wallets []*domain.Wallet
	query := `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = $1
		ORDER BY created_at ASC
	`

	if err := r.db.SelectContext(ctx, &wallets, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to list wallets")
	}
	return wallets, nil
}
