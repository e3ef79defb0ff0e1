package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chainpay/internal/domain"
	"chainpay/pkg/errors"
)

type SplitPaymentRepository struct {
	db *sqlx.DB
}

func NewSplitPaymentRepository(db *sqlx.DB) *SplitPaymentRepository {
	return &SplitPaymentRepository{db: db}
}

// CreateTemplate inserts the template and all its recipients in one
// transaction.
func (r *SplitPaymentRepository) CreateTemplate(ctx context.Context, sp *domain.SplitPayment, recipients []*domain.SplitPaymentRecipient) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
        INSERT INTO split_payments (
            id, user_id, title, chain, network, from_address,
            total_amount, total_recipients, status, execution_count,
            created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `
	_, err = tx.ExecContext(ctx, query,
		sp.ID, sp.UserID, sp.Title, sp.Chain, sp.Network, sp.FromAddress,
		sp.TotalAmount, sp.TotalRecipients, sp.Status, sp.ExecutionCount,
		sp.CreatedAt, sp.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create split payment")
	}

	recipientQuery := `
        INSERT INTO split_payment_recipients (
            id, split_payment_id, recipient_address, recipient_name,
            amount, is_active, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	for _, rec := range recipients {
		_, err = tx.ExecContext(ctx, recipientQuery,
			rec.ID, rec.SplitPaymentID, rec.RecipientAddress, rec.RecipientName,
			rec.Amount, rec.IsActive, rec.CreatedAt,
		)
		if err != nil {
			return errors.Wrap(err, "failed to create split payment recipient")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit split payment")
}

const splitPaymentColumns = `
	id, user_id, title, chain, network,
	COALESCE(from_address, '') AS from_address,
	total_amount, total_recipients, status, execution_count,
	last_executed_at, created_at, updated_at
`

// GetTemplate loads a template with its recipients.
func (r *SplitPaymentRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*domain.SplitPayment, error) {
	var sp domain.SplitPayment
	query := `SELECT ` + splitPaymentColumns + ` FROM split_payments WHERE id = $1`

	err := r.db.GetContext(ctx, &sp, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSplitPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find split payment")
	}

	recipientQuery := `
		SELECT id, split_payment_id, recipient_address,
		       COALESCE(recipient_name, '') AS recipient_name,
		       amount, is_active, created_at
		FROM split_payment_recipients
		WHERE split_payment_id = $1
		ORDER BY created_at ASC, id ASC
	`
	if err := r.db.SelectContext(ctx, &sp.Recipients, recipientQuery, id); err != nil {
		return nil, errors.Wrap(err, "failed to load split payment recipients")
	}

	return &sp, nil
}

func (r *SplitPaymentRepository) ListTemplates(ctx context.Context, userID uuid.UUID) ([]*domain.SplitPayment, error) {
	var sps []*domain.SplitPayment
	query := `
		SELECT ` + splitPaymentColumns + `
		FROM split_payments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	if err := r.db.SelectContext(ctx, &sps, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to list split payments")
	}
	return sps, nil
}

func (r *SplitPaymentRepository) UpdateTemplateStatus(ctx context.Context, id uuid.UUID, status domain.SplitPaymentStatus) error {
	query := `UPDATE split_payments SET status = $1, updated_at = NOW() WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return errors.Wrap(err, "failed to update split payment status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrSplitPaymentNotFound
	}
	return nil
}

func (r *SplitPaymentRepository) SetRecipientActive(ctx context.Context, templateID, recipientID uuid.UUID, active bool) error {
	query := `
		UPDATE split_payment_recipients
		SET is_active = $1
		WHERE id = $2 AND split_payment_id = $3
	`

	res, err := r.db.ExecContext(ctx, query, active, recipientID, templateID)
	if err != nil {
		return errors.Wrap(err, "failed to update recipient")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrSplitPaymentNotFound
	}
	return nil
}

// RecordTemplateRun bumps the execution counter after a run with at least
// one successful payment.
func (r *SplitPaymentRepository) RecordTemplateRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE split_payments
		SET execution_count = execution_count + 1,
		    last_executed_at = $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, at, id)
	return errors.Wrap(err, "failed to record template run")
}

// CreateExecution inserts the execution and its pending result rows in one
// transaction so an execution is never observable without its results.
func (r *SplitPaymentRepository) CreateExecution(ctx context.Context, exec *domain.SplitPaymentExecution, results []*domain.SplitPaymentExecutionResult) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	query := `
        INSERT INTO split_payment_executions (
            id, split_payment_id, total_amount, total_recipients,
            successful_payments, failed_payments, status, total_fees,
            error_message, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err = tx.ExecContext(ctx, query,
		exec.ID, exec.SplitPaymentID, exec.TotalAmount, exec.TotalRecipients,
		exec.SuccessfulPayments, exec.FailedPayments, exec.Status, exec.TotalFees,
		exec.ErrorMessage, exec.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}

	resultQuery := `
        INSERT INTO split_payment_execution_results (
            id, execution_id, recipient_address, amount, status,
            tx_hash, fees, error_message
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	for _, res := range results {
		_, err = tx.ExecContext(ctx, resultQuery,
			res.ID, res.ExecutionID, res.RecipientAddress, res.Amount, res.Status,
			res.TxHash, res.Fees, res.ErrorMessage,
		)
		if err != nil {
			return errors.Wrap(err, "failed to create execution result")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit execution")
}

func (r *SplitPaymentRepository) UpdateExecutionStatus(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error {
	query := `UPDATE split_payment_executions SET status = $1 WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return errors.Wrap(err, "failed to update execution status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrExecutionNotFound
	}
	return nil
}

// UpdateResult records one recipient's terminal outcome.
func (r *SplitPaymentRepository) UpdateResult(ctx context.Context, result *domain.SplitPaymentExecutionResult) error {
	query := `
		UPDATE split_payment_execution_results
		SET status = $1, tx_hash = $2, fees = $3, error_message = $4, processed_at = $5
		WHERE id = $6
	`

	_, err := r.db.ExecContext(ctx, query,
		result.Status, result.TxHash, result.Fees, result.ErrorMessage,
		result.ProcessedAt, result.ID,
	)
	return errors.Wrap(err, "failed to update execution result")
}

// FinalizeExecution persists the aggregate rollup and terminal status.
func (r *SplitPaymentRepository) FinalizeExecution(ctx context.Context, exec *domain.SplitPaymentExecution) error {
	query := `
		UPDATE split_payment_executions
		SET status = $1, successful_payments = $2, failed_payments = $3,
		    total_fees = $4, error_message = $5, completed_at = $6
		WHERE id = $7
	`

	_, err := r.db.ExecContext(ctx, query,
		exec.Status, exec.SuccessfulPayments, exec.FailedPayments,
		exec.TotalFees, exec.ErrorMessage, exec.CompletedAt, exec.ID,
	)
	return errors.Wrap(err, "failed to finalize execution")
}

const executionColumns = `
	id, split_payment_id, total_amount, total_recipients,
	successful_payments, failed_payments, status, total_fees,
	COALESCE(error_message, '') AS error_message, created_at, completed_at
`

// GetExecution loads one execution with its per-recipient results.
func (r *SplitPaymentRepository) GetExecution(ctx context.Context, id uuid.UUID) (*domain.SplitPaymentExecution, error) {
	var exec domain.SplitPaymentExecution
	query := `SELECT ` + executionColumns + ` FROM split_payment_executions WHERE id = $1`

	err := r.db.GetContext(ctx, &exec, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrExecutionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find execution")
	}

	resultQuery := `
		SELECT id, execution_id, recipient_address, amount, status,
		       COALESCE(tx_hash, '') AS tx_hash, fees,
		       COALESCE(error_message, '') AS error_message, processed_at
		FROM split_payment_execution_results
		WHERE execution_id = $1
		ORDER BY recipient_address ASC
	`
	if err := r.db.SelectContext(ctx, &exec.Results, resultQuery, id); err != nil {
		return nil, errors.Wrap(err, "failed to load execution results")
	}

	return &exec, nil
}

func (r *SplitPaymentRepository) ListExecutions(ctx context.Context, templateID uuid.UUID) ([]*domain.SplitPaymentExecution, error) {
	var execs []*domain.SplitPaymentExecution
	query := `
		SELECT ` + executionColumns + `
		FROM split_payment_executions
		WHERE split_payment_id = $1
		ORDER BY created_at DESC
	`

	if err := r.db.SelectContext(ctx, &execs, query, templateID); err != nil {
		return nil, errors.Wrap(err, "failed to list executions")
	}
	return execs, nil
}
