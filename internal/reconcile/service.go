// Package reconcile audits the ledger for inconsistencies the atomic send
// path cannot produce but legacy data or operator intervention can: recipient
// rows missing their fee-collection leg, and confirmations stuck pending.
package reconcile

import (
	"context"
	"time"

	"chainpay/internal/domain"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

// Auditor is the read side of the ledger the sweep needs.
type Auditor interface {
	FindOrphanSends(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Transaction, error)
}

// ConfirmationSweeper re-drives pending confirmations. The broadcast watcher
// implements it.
type ConfirmationSweeper interface {
	Sweep(ctx context.Context) error
}

// Report summarizes one reconciliation pass.
type Report struct {
	OrphanSends     int       `json:"orphan_sends"`
	RedrovePending  bool      `json:"redrove_pending"`
	StartedAt       time.Time `json:"started_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}

// Service runs reconciliation passes. Orphans are reported loudly and never
// deleted; repairing them is an operator decision.
type Service struct {
	auditor Auditor
	sweeper ConfirmationSweeper
	logger  logger.Logger

	minAge time.Duration
	limit  int
}

func NewService(auditor Auditor, sweeper ConfirmationSweeper, log logger.Logger) *Service {
	return &Service{
		auditor: auditor,
		sweeper: sweeper,
		logger:  log,
		minAge:  time.Hour,
		limit:   500,
	}
}

// Run performs one full pass: orphan detection then confirmation re-drive.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	started := time.Now()
	report := &Report{StartedAt: started}

	orphans, err := s.auditor.FindOrphanSends(ctx, s.minAge, s.limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to scan for orphan sends")
	}
	report.OrphanSends = len(orphans)

	for _, tx := range orphans {
		s.logger.Error("send without fee-collection leg", map[string]interface{}{
			"transaction_id": tx.ID,
			"user_id":        tx.UserID,
			"amount":         tx.Amount.String(),
			"chain":          tx.Chain,
			"network":        tx.Network,
			"created_at":     tx.CreatedAt,
		})
	}

	if err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("confirmation re-drive failed", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		report.RedrovePending = true
	}

	report.DurationSeconds = time.Since(started).Seconds()
	s.logger.Info("reconciliation pass finished", map[string]interface{}{
		"orphan_sends":    report.OrphanSends,
		"redrove_pending": report.RedrovePending,
		"duration":        time.Since(started).String(),
	})
	return report, nil
}
