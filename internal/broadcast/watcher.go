package broadcast

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chainpay/internal/domain"
	"chainpay/pkg/logger"
)

// LedgerRepository is the slice of the transaction store the watcher needs.
type LedgerRepository interface {
	FindPending(ctx context.Context, limit int) ([]*domain.Transaction, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error
}

// Watcher polls pending ledger rows and resolves them against the chain.
// Rows older than the confirmation timeout are marked failed so downstream
// reconciliation can pick them up.
type Watcher struct {
	repo        LedgerRepository
	broadcaster Broadcaster
	logger      logger.Logger

	interval  time.Duration
	timeout   time.Duration
	batchSize int
}

// NewWatcher builds a Watcher. Interval and timeout fall back to sane
// defaults when zero.
func NewWatcher(repo LedgerRepository, b Broadcaster, log logger.Logger, interval, timeout time.Duration) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Watcher{
		repo:        repo,
		broadcaster: b,
		logger:      log,
		interval:    interval,
		timeout:     timeout,
		batchSize:   100,
	}
}

// Run blocks until ctx is cancelled, sweeping pending rows on every tick.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("confirmation watcher started", map[string]interface{}{
		"interval": w.interval.String(),
		"timeout":  w.timeout.String(),
	})

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("confirmation watcher stopped", nil)
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				w.logger.Error("confirmation sweep failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

// Sweep resolves one batch of pending rows. Exposed separately so the
// reconcile command can run a single pass without the ticker loop.
func (w *Watcher) Sweep(ctx context.Context) error {
	pending, err := w.repo.FindPending(ctx, w.batchSize)
	if err != nil {
		return err
	}

	for _, tx := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		w.resolve(ctx, tx)
	}
	return nil
}

func (w *Watcher) resolve(ctx context.Context, tx *domain.Transaction) {
	if tx.TxHash == "" || time.Since(tx.CreatedAt) > w.timeout {
		w.fail(ctx, tx)
		return
	}

	confirmed, err := w.broadcaster.CheckConfirmation(ctx, tx.Chain, tx.Network, tx.TxHash)
	if err != nil {
		w.logger.Warn("confirmation check failed", map[string]interface{}{
			"transaction_id": tx.ID,
			"tx_hash":        tx.TxHash,
			"error":          err.Error(),
		})
		return
	}
	if !confirmed {
		return
	}

	if err := w.repo.UpdateStatus(ctx, tx.ID, domain.TransactionStatusConfirmed); err != nil {
		w.logger.Error("failed to confirm transaction", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
		return
	}
	w.logger.Info("transaction confirmed", map[string]interface{}{
		"transaction_id": tx.ID,
		"tx_hash":        tx.TxHash,
		"chain":          tx.Chain,
	})
}

func (w *Watcher) fail(ctx context.Context, tx *domain.Transaction) {
	if err := w.repo.UpdateStatus(ctx, tx.ID, domain.TransactionStatusFailed); err != nil {
		w.logger.Error("failed to mark transaction failed", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
		return
	}
	w.logger.Warn("transaction marked failed", map[string]interface{}{
		"transaction_id": tx.ID,
		"tx_hash":        tx.TxHash,
		"age":            time.Since(tx.CreatedAt).String(),
	})
}
