package splitpayment

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chainpay/internal/domain"
	"chainpay/internal/pipeline"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

// Sender is the transfer path one recipient's payment runs through. The
// transaction pipeline implements it.
type Sender interface {
	Send(ctx context.Context, req pipeline.SendRequest) (*pipeline.Receipt, error)
}

// ProgressEvent is emitted after each recipient resolves, for live execution
// streams.
type ProgressEvent struct {
	ExecutionID      uuid.UUID           `json:"execution_id"`
	RecipientAddress string              `json:"recipient_address"`
	Status           domain.ResultStatus `json:"status"`
	TxHash           string              `json:"tx_hash,omitempty"`
	Error            string              `json:"error,omitempty"`
	Completed        int                 `json:"completed"`
	Total            int                 `json:"total"`
}

// ProgressSink receives per-recipient progress. Implementations must not
// block; slow consumers drop events, they never stall the execution.
type ProgressSink interface {
	ExecutionProgress(ev ProgressEvent)
}

type nopSink struct{}

func (nopSink) ExecutionProgress(ProgressEvent) {}

// Executor runs a template: fan-out over active recipients through a bounded
// worker pool, one result row per recipient, aggregate rollup at the end.
type Executor struct {
	repo        Repository
	sender      Sender
	logger      logger.Logger
	sink        ProgressSink
	concurrency int
}

// NewExecutor builds an Executor. concurrency bounds in-flight recipient
// sends; zero means the default of 5.
func NewExecutor(repo Repository, sender Sender, log logger.Logger, concurrency int) *Executor {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Executor{
		repo:        repo,
		sender:      sender,
		logger:      log,
		sink:        nopSink{},
		concurrency: concurrency,
	}
}

// WithProgressSink attaches a progress consumer, replacing the no-op default.
func (e *Executor) WithProgressSink(sink ProgressSink) *Executor {
	if sink != nil {
		e.sink = sink
	}
	return e
}

// Execute runs one template end to end and returns the finished execution.
//
// Each recipient resolves independently; one failure never aborts siblings.
// Cancellation is cooperative: it is honored between recipients, and
// recipients already in flight finish. Two concurrent executions of the same
// template are allowed and produce independent execution records.
func (e *Executor) Execute(ctx context.Context, splitPaymentID uuid.UUID) (*domain.SplitPaymentExecution, error) {
	sp, err := e.repo.GetTemplate(ctx, splitPaymentID)
	if err != nil {
		return nil, err
	}
	if sp.Status != domain.SplitPaymentStatusActive {
		if sp.Status == domain.SplitPaymentStatusDeleted {
			return nil, pkgerrors.ErrSplitPaymentNotFound
		}
		return nil, pkgerrors.ErrSplitPaymentInactive
	}

	var active []*domain.SplitPaymentRecipient
	for _, r := range sp.Recipients {
		if r.IsActive {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return nil, pkgerrors.ErrNoActiveRecipients
	}

	total := decimal.Zero
	for _, r := range active {
		total = total.Add(r.Amount)
	}

	exec := &domain.SplitPaymentExecution{
		ID:              uuid.New(),
		SplitPaymentID:  sp.ID,
		TotalAmount:     total,
		TotalRecipients: len(active),
		Status:          domain.ExecutionStatusPending,
		CreatedAt:       time.Now(),
	}
	results := make([]*domain.SplitPaymentExecutionResult, len(active))
	for i, r := range active {
		results[i] = &domain.SplitPaymentExecutionResult{
			ID:               uuid.New(),
			ExecutionID:      exec.ID,
			RecipientAddress: r.RecipientAddress,
			Amount:           r.Amount,
			Status:           domain.ResultStatusPending,
		}
	}
	if err := e.repo.CreateExecution(ctx, exec, results); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create execution")
	}

	if err := e.repo.UpdateExecutionStatus(ctx, exec.ID, domain.ExecutionStatusProcessing); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to start execution")
	}
	exec.Status = domain.ExecutionStatusProcessing

	e.logger.Info("split payment execution started", map[string]interface{}{
		"execution_id":     exec.ID,
		"split_payment_id": sp.ID,
		"recipients":       len(active),
		"total_amount":     total.String(),
	})

	e.fanOut(ctx, sp, active, exec, results)
	e.finalize(ctx, sp, exec, results)

	return exec, nil
}

type recipientJob struct {
	index     int
	recipient *domain.SplitPaymentRecipient
}

// fanOut processes every recipient through a bounded pool of workers.
// Result rows are mutated in place; tally bookkeeping happens in finalize.
func (e *Executor) fanOut(
	ctx context.Context,
	sp *domain.SplitPayment,
	active []*domain.SplitPaymentRecipient,
	exec *domain.SplitPaymentExecution,
	results []*domain.SplitPaymentExecutionResult,
) {
	workers := e.concurrency
	if workers > len(active) {
		workers = len(active)
	}

	jobs := make(chan recipientJob)
	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				e.processRecipient(ctx, sp, exec, job.recipient, results[job.index])

				mu.Lock()
				completed++
				done := completed
				mu.Unlock()

				res := results[job.index]
				e.sink.ExecutionProgress(ProgressEvent{
					ExecutionID:      exec.ID,
					RecipientAddress: res.RecipientAddress,
					Status:           res.Status,
					TxHash:           res.TxHash,
					Error:            res.ErrorMessage,
					Completed:        done,
					Total:            len(active),
				})
			}
		}()
	}

	// Cancellation is checked only here, between recipients. A recipient
	// already handed to a worker always finishes.
	cancelled := false
	for i, r := range active {
		if !cancelled {
			select {
			case <-ctx.Done():
				cancelled = true
			default:
			}
		}
		if cancelled {
			e.markSkipped(ctx, results[i])
			continue
		}
		jobs <- recipientJob{index: i, recipient: r}
	}
	close(jobs)
	wg.Wait()
}

// processRecipient runs one recipient's send and records its result row.
// Errors are captured into the row, never returned.
func (e *Executor) processRecipient(
	ctx context.Context,
	sp *domain.SplitPayment,
	exec *domain.SplitPaymentExecution,
	r *domain.SplitPaymentRecipient,
	result *domain.SplitPaymentExecutionResult,
) {
	receipt, err := e.sender.Send(ctx, pipeline.SendRequest{
		UserID:    sp.UserID,
		Amount:    r.Amount,
		ToAddress: r.RecipientAddress,
		Chain:     sp.Chain,
		Network:   sp.Network,
	})

	now := time.Now()
	result.ProcessedAt = &now
	if err != nil {
		result.Status = domain.ResultStatusFailed
		result.ErrorMessage = err.Error()
		e.logger.Warn("recipient payment failed", map[string]interface{}{
			"execution_id": exec.ID,
			"recipient":    r.RecipientAddress,
			"amount":       r.Amount.String(),
			"error":        err.Error(),
		})
	} else {
		result.Status = domain.ResultStatusSuccess
		result.TxHash = receipt.RecipientTxHash
		result.Fees = receipt.Fee
	}

	if err := e.repo.UpdateResult(context.WithoutCancel(ctx), result); err != nil {
		e.logger.Error("failed to persist recipient result", map[string]interface{}{
			"execution_id": exec.ID,
			"result_id":    result.ID,
			"error":        err.Error(),
		})
	}
}

// markSkipped resolves a recipient that was never attempted because the
// caller cancelled. The row still transitions exactly once.
func (e *Executor) markSkipped(ctx context.Context, result *domain.SplitPaymentExecutionResult) {
	now := time.Now()
	result.Status = domain.ResultStatusFailed
	result.ErrorMessage = "execution cancelled before send"
	result.ProcessedAt = &now
	// The caller's context is already cancelled here; the row must still be
	// persisted so the execution reaches a terminal state.
	if err := e.repo.UpdateResult(context.WithoutCancel(ctx), result); err != nil {
		e.logger.Error("failed to persist skipped result", map[string]interface{}{
			"result_id": result.ID,
			"error":     err.Error(),
		})
	}
}

// finalize rolls the per-recipient outcomes into the execution's terminal
// state and bumps the template counters when at least one payment landed.
func (e *Executor) finalize(
	ctx context.Context,
	sp *domain.SplitPayment,
	exec *domain.SplitPaymentExecution,
	results []*domain.SplitPaymentExecutionResult,
) {
	// Survives caller cancellation; an execution must always reach a
	// terminal state once started.
	ctx = context.WithoutCancel(ctx)

	successful, failed := 0, 0
	totalFees := decimal.Zero
	for _, r := range results {
		switch r.Status {
		case domain.ResultStatusSuccess:
			successful++
			totalFees = totalFees.Add(r.Fees)
		default:
			failed++
		}
	}

	switch {
	case failed == 0:
		exec.Status = domain.ExecutionStatusCompleted
	case successful == 0:
		exec.Status = domain.ExecutionStatusFailed
		exec.ErrorMessage = "all recipient payments failed"
	default:
		exec.Status = domain.ExecutionStatusPartiallyFailed
	}

	now := time.Now()
	exec.SuccessfulPayments = successful
	exec.FailedPayments = failed
	exec.TotalFees = totalFees
	exec.CompletedAt = &now
	exec.Results = results

	if err := e.repo.FinalizeExecution(ctx, exec); err != nil {
		e.logger.Error("failed to finalize execution", map[string]interface{}{
			"execution_id": exec.ID,
			"error":        err.Error(),
		})
	}

	if successful > 0 {
		if err := e.repo.RecordTemplateRun(ctx, sp.ID, now); err != nil {
			e.logger.Error("failed to record template run", map[string]interface{}{
				"split_payment_id": sp.ID,
				"error":            err.Error(),
			})
		}
	}

	e.logger.Info("split payment execution finished", map[string]interface{}{
		"execution_id": exec.ID,
		"status":       exec.Status,
		"successful":   successful,
		"failed":       failed,
		"total_fees":   totalFees.String(),
	})
}
