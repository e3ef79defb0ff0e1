// Package wallet manages per-user chain wallets and address resolution.
package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"chainpay/internal/domain"
	"chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

// Repository persists wallets.
type Repository interface {
	Create(ctx context.Context, w *domain.Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	GetDefault(ctx context.Context, userID uuid.UUID, chain domain.Chain, network domain.Network) (*domain.Wallet, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Wallet, error)
}

// KeyProvider generates keypairs for a chain. Implementations own the key
// material handling; the service only stores what it returns.
type KeyProvider interface {
	Generate(ctx context.Context, chain domain.Chain, network domain.Network) (address string, encryptedKey string, err error)
}

// Service registers wallets and resolves sending addresses for transfers.
type Service struct {
	repo   Repository
	keys   KeyProvider
	logger logger.Logger
}

func NewService(repo Repository, keys KeyProvider, log logger.Logger) *Service {
	return &Service{repo: repo, keys: keys, logger: log}
}

// RegisterParams describes a wallet registration request.
type RegisterParams struct {
	UserID  uuid.UUID
	Chain   domain.Chain
	Network domain.Network
	Label   string
}

// Register creates a wallet for the user on the given chain and network.
// The first wallet on a chain/network pair becomes the user's default there.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*domain.Wallet, error) {
	if params.UserID == uuid.Nil {
		return nil, errors.NewValidation("user_id", "user id is required")
	}
	if !params.Chain.Valid() {
		return nil, errors.NewValidation("chain", "unsupported chain")
	}
	if !params.Network.Valid() {
		return nil, errors.NewValidation("network", "unsupported network")
	}

	address, encryptedKey, err := s.keys.Generate(ctx, params.Chain, params.Network)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate wallet keypair")
	}

	isDefault := false
	if _, err := s.repo.GetDefault(ctx, params.UserID, params.Chain, params.Network); err != nil {
		if !errors.Is(err, errors.ErrWalletNotFound) {
			return nil, errors.Wrap(err, "failed to check existing default wallet")
		}
		isDefault = true
	}

	now := time.Now()
	w := &domain.Wallet{
		ID:                  uuid.New(),
		UserID:              params.UserID,
		Chain:               params.Chain,
		Network:             params.Network,
		Address:             address,
		EncryptedPrivateKey: encryptedKey,
		Label:               strings.TrimSpace(params.Label),
		IsDefault:           isDefault,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Create(ctx, w); err != nil {
		return nil, errors.Wrap(err, "failed to create wallet")
	}

	s.logger.Info("wallet registered", map[string]interface{}{
		"wallet_id":  w.ID,
		"user_id":    params.UserID,
		"chain":      params.Chain,
		"network":    params.Network,
		"is_default": isDefault,
	})
	return w, nil
}

// Get returns a wallet by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	if id == uuid.Nil {
		return nil, errors.NewValidation("wallet_id", "wallet id is required")
	}
	return s.repo.GetByID(ctx, id)
}

// List returns all wallets owned by the user.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*domain.Wallet, error) {
	if userID == uuid.Nil {
		return nil, errors.NewValidation("user_id", "user id is required")
	}
	return s.repo.ListByUser(ctx, userID)
}

// ResolveAddress returns the user's default sending address on a chain and
// network. Transfers use this as the from side when the caller does not pin
// a specific wallet.
func (s *Service) ResolveAddress(ctx context.Context, userID uuid.UUID, chain domain.Chain, network domain.Network) (string, error) {
	w, err := s.repo.GetDefault(ctx, userID, chain, network)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(w.Address), nil
}
