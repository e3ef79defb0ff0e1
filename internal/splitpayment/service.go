// Package splitpayment manages one-sender-many-recipients payment templates
// and their executions.
package splitpayment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chainpay/internal/domain"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

// Repository persists templates, recipients, executions, and results.
type Repository interface {
	CreateTemplate(ctx context.Context, sp *domain.SplitPayment, recipients []*domain.SplitPaymentRecipient) error
	GetTemplate(ctx context.Context, id uuid.UUID) (*domain.SplitPayment, error)
	ListTemplates(ctx context.Context, userID uuid.UUID) ([]*domain.SplitPayment, error)
	UpdateTemplateStatus(ctx context.Context, id uuid.UUID, status domain.SplitPaymentStatus) error
	SetRecipientActive(ctx context.Context, templateID, recipientID uuid.UUID, active bool) error
	RecordTemplateRun(ctx context.Context, id uuid.UUID, at time.Time) error

	CreateExecution(ctx context.Context, exec *domain.SplitPaymentExecution, results []*domain.SplitPaymentExecutionResult) error
	UpdateExecutionStatus(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error
	UpdateResult(ctx context.Context, result *domain.SplitPaymentExecutionResult) error
	FinalizeExecution(ctx context.Context, exec *domain.SplitPaymentExecution) error
	GetExecution(ctx context.Context, id uuid.UUID) (*domain.SplitPaymentExecution, error)
	ListExecutions(ctx context.Context, templateID uuid.UUID) ([]*domain.SplitPaymentExecution, error)
}

// RecipientParams describes one payee when creating a template.
type RecipientParams struct {
	Address string          `json:"address" validate:"required"`
	Name    string          `json:"name"`
	Amount  decimal.Decimal `json:"amount"`
}

// CreateParams describes a new template.
type CreateParams struct {
	UserID      uuid.UUID
	Title       string
	Chain       domain.Chain
	Network     domain.Network
	FromAddress string
	Recipients  []RecipientParams
}

// Service owns template lifecycle. Execution lives in Executor.
type Service struct {
	repo          Repository
	logger        logger.Logger
	maxRecipients int
}

// NewService builds a Service. maxRecipients caps template size; zero means
// the default of 200.
func NewService(repo Repository, log logger.Logger, maxRecipients int) *Service {
	if maxRecipients <= 0 {
		maxRecipients = 200
	}
	return &Service{repo: repo, logger: log, maxRecipients: maxRecipients}
}

// Create validates and persists a template with its recipients.
func (s *Service) Create(ctx context.Context, params CreateParams) (*domain.SplitPayment, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.NewValidation("user_id", "user id is required")
	}
	if strings.TrimSpace(params.Title) == "" {
		return nil, pkgerrors.NewValidation("title", "title is required")
	}
	if !params.Chain.Valid() {
		return nil, pkgerrors.NewValidation("chain", "unsupported chain")
	}
	if !params.Network.Valid() {
		return nil, pkgerrors.NewValidation("network", "unsupported network")
	}
	if len(params.Recipients) == 0 {
		return nil, pkgerrors.NewValidation("recipients", "at least one recipient is required")
	}
	if len(params.Recipients) > s.maxRecipients {
		return nil, pkgerrors.NewValidation("recipients", "too many recipients")
	}

	now := time.Now()
	sp := &domain.SplitPayment{
		ID:              uuid.New(),
		UserID:          params.UserID,
		Title:           strings.TrimSpace(params.Title),
		Chain:           params.Chain,
		Network:         params.Network,
		FromAddress:     params.FromAddress,
		Status:          domain.SplitPaymentStatusActive,
		TotalRecipients: len(params.Recipients),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	total := decimal.Zero
	recipients := make([]*domain.SplitPaymentRecipient, 0, len(params.Recipients))
	for _, r := range params.Recipients {
		if strings.TrimSpace(r.Address) == "" {
			return nil, pkgerrors.NewValidation("recipients", "recipient address is required")
		}
		if !r.Amount.IsPositive() {
			return nil, pkgerrors.NewValidation("recipients", "recipient amount must be greater than zero")
		}
		recipients = append(recipients, &domain.SplitPaymentRecipient{
			ID:               uuid.New(),
			SplitPaymentID:   sp.ID,
			RecipientAddress: strings.TrimSpace(r.Address),
			RecipientName:    strings.TrimSpace(r.Name),
			Amount:           r.Amount,
			IsActive:         true,
			CreatedAt:        now,
		})
		total = total.Add(r.Amount)
	}
	sp.TotalAmount = total
	sp.Recipients = recipients

	if err := s.repo.CreateTemplate(ctx, sp, recipients); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create split payment")
	}

	s.logger.Info("split payment created", map[string]interface{}{
		"split_payment_id": sp.ID,
		"user_id":          sp.UserID,
		"recipients":       len(recipients),
		"total_amount":     total.String(),
	})
	return sp, nil
}

// Get returns a template with its recipients.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.SplitPayment, error) {
	return s.repo.GetTemplate(ctx, id)
}

// List returns the user's templates, deleted ones included so history stays
// visible.
func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]*domain.SplitPayment, error) {
	return s.repo.ListTemplates(ctx, userID)
}

// SetStatus moves a template between active and inactive.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status domain.SplitPaymentStatus) error {
	if status != domain.SplitPaymentStatusActive && status != domain.SplitPaymentStatusInactive {
		return pkgerrors.NewValidation("status", "status must be active or inactive")
	}
	sp, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if sp.Status == domain.SplitPaymentStatusDeleted {
		return pkgerrors.ErrSplitPaymentNotFound
	}
	return s.repo.UpdateTemplateStatus(ctx, id, status)
}

// Delete soft-deletes a template. Executions are historical records and
// survive the deletion.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	sp, err := s.repo.GetTemplate(ctx, id)
	if err != nil {
		return err
	}
	if sp.Status == domain.SplitPaymentStatusDeleted {
		return nil
	}
	if err := s.repo.UpdateTemplateStatus(ctx, id, domain.SplitPaymentStatusDeleted); err != nil {
		return pkgerrors.Wrap(err, "failed to delete split payment")
	}
	s.logger.Info("split payment deleted", map[string]interface{}{
		"split_payment_id": id,
	})
	return nil
}

// SetRecipientActive soft-removes or restores one recipient for future
// executions.
func (s *Service) SetRecipientActive(ctx context.Context, templateID, recipientID uuid.UUID, active bool) error {
	return s.repo.SetRecipientActive(ctx, templateID, recipientID, active)
}

// GetExecution returns one execution with its per-recipient results.
func (s *Service) GetExecution(ctx context.Context, id uuid.UUID) (*domain.SplitPaymentExecution, error) {
	return s.repo.GetExecution(ctx, id)
}

// ListExecutions returns a template's execution history.
func (s *Service) ListExecutions(ctx context.Context, templateID uuid.UUID) ([]*domain.SplitPaymentExecution, error) {
	if _, err := s.repo.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	return s.repo.ListExecutions(ctx, templateID)
}
