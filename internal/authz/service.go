// Package authz verifies transaction authorization credentials: an optional
// transaction PIN and an optional TOTP second factor. It is a precondition
// collaborator for money movement, not part of the transfer logic itself.
package authz

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"chainpay/internal/domain"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

// Repository persists per-user authorization credentials.
type Repository interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.TransactionAuth, error)
	Upsert(ctx context.Context, auth *domain.TransactionAuth) error
}

// Service manages and verifies transaction PINs and TOTP secrets.
type Service struct {
	repo   Repository
	logger logger.Logger
	issuer string
}

func NewService(repo Repository, log logger.Logger, issuer string) *Service {
	if issuer == "" {
		issuer = "chainpay"
	}
	return &Service{repo: repo, logger: log, issuer: issuer}
}

// SetPin hashes and stores the user's transaction PIN.
func (s *Service) SetPin(ctx context.Context, userID uuid.UUID, pin string) error {
	if len(pin) < 4 || len(pin) > 12 {
		return pkgerrors.NewValidation("pin", "pin must be 4 to 12 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to hash pin")
	}

	auth, err := s.repo.Get(ctx, userID)
	if err != nil {
		if !pkgerrors.Is(err, pkgerrors.ErrPinNotSet) {
			return err
		}
		auth = &domain.TransactionAuth{UserID: userID, CreatedAt: time.Now()}
	}
	auth.PinHash = string(hash)
	auth.UpdatedAt = time.Now()

	if err := s.repo.Upsert(ctx, auth); err != nil {
		return pkgerrors.Wrap(err, "failed to store pin")
	}

	s.logger.Info("transaction pin set", map[string]interface{}{
		"user_id": userID,
	})
	return nil
}

// EnrollTOTP generates a TOTP secret for the user and returns the
// provisioning URL for authenticator apps. The PIN must already be set.
func (s *Service) EnrollTOTP(ctx context.Context, userID uuid.UUID, account string) (string, error) {
	auth, err := s.repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: account,
	})
	if err != nil {
		return "", pkgerrors.Wrap(err, "failed to generate totp secret")
	}

	secret := key.Secret()
	auth.TOTPSecret = &secret
	auth.UpdatedAt = time.Now()
	if err := s.repo.Upsert(ctx, auth); err != nil {
		return "", pkgerrors.Wrap(err, "failed to store totp secret")
	}

	s.logger.Info("totp enrolled", map[string]interface{}{
		"user_id": userID,
	})
	return key.URL(), nil
}

// Authorize checks the PIN and, when the user enrolled one, the TOTP code.
// Users without a stored PIN get ErrPinNotSet; callers decide whether that
// blocks the operation.
func (s *Service) Authorize(ctx context.Context, userID uuid.UUID, pin, totpCode string) error {
	auth, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if auth.PinHash == "" {
		return pkgerrors.ErrPinNotSet
	}

	if err := bcrypt.CompareHashAndPassword([]byte(auth.PinHash), []byte(pin)); err != nil {
		s.logger.Warn("transaction pin rejected", map[string]interface{}{
			"user_id": userID,
		})
		return pkgerrors.ErrInvalidPin
	}

	if auth.TOTPSecret != nil && *auth.TOTPSecret != "" {
		if !totp.Validate(totpCode, *auth.TOTPSecret) {
			s.logger.Warn("totp code rejected", map[string]interface{}{
				"user_id": userID,
			})
			return pkgerrors.ErrInvalidTOTPCode
		}
	}
	return nil
}

// HasPin reports whether the user has a transaction PIN configured.
func (s *Service) HasPin(ctx context.Context, userID uuid.UUID) (bool, error) {
	auth, err := s.repo.Get(ctx, userID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.ErrPinNotSet) {
			return false, nil
		}
		return false, err
	}
	return auth.PinHash != "", nil
}
