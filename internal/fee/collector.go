package fee

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chainpay/internal/domain"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

// Repository persists fee records and serves aggregate queries.
type Repository interface {
	Create(ctx context.Context, fee *domain.Fee) error
	Aggregate(ctx context.Context, filter StatsFilter) (*AggregateRow, error)
}

// StatsFilter narrows fee aggregation to a window and/or chain.
type StatsFilter struct {
	Chain   domain.Chain   `json:"chain,omitempty"`
	Network domain.Network `json:"network,omitempty"`
	From    *time.Time     `json:"from,omitempty"`
	To      *time.Time     `json:"to,omitempty"`
}

// AggregateRow is the raw SQL aggregate the repository returns.
type AggregateRow struct {
	TransactionCount int64           `db:"transaction_count"`
	TotalFees        decimal.Decimal `db:"total_fees"`
	TotalVolume      decimal.Decimal `db:"total_volume"`
}

// Stats is the reporting view computed from an AggregateRow.
type Stats struct {
	TransactionCount   int64           `json:"transaction_count"`
	TotalFeesCollected decimal.Decimal `json:"total_fees_collected"`
	TotalVolume        decimal.Decimal `json:"total_volume"`
	AverageFee         decimal.Decimal `json:"average_fee"`
	EffectiveRate      decimal.Decimal `json:"effective_rate"`
}

// BalanceCheck is the result of a pre-flight balance guard.
type BalanceCheck struct {
	Valid     bool            `json:"valid"`
	Required  decimal.Decimal `json:"required"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// RecordFeeParams carries everything needed to persist one fee record.
type RecordFeeParams struct {
	UserID        uuid.UUID
	TransactionID *uuid.UUID
	Calculation   *Calculation
	Chain         domain.Chain
	Network       domain.Network
	Currency      string
}

// Collector records collected fees and serves fee analytics.
type Collector struct {
	repo   Repository
	logger logger.Logger
}

// NewCollector builds a Collector.
func NewCollector(repo Repository, log logger.Logger) *Collector {
	return &Collector{repo: repo, logger: log}
}

// NewRecord builds the immutable fee record for a calculation without
// persisting it. The metadata snapshots the payer-model figures so historical
// reports survive formula changes. The transaction pipeline uses this to
// write the record inside the same database transaction as the ledger rows.
func NewRecord(params RecordFeeParams) *domain.Fee {
	calc := params.Calculation
	return &domain.Fee{
		ID:            uuid.New(),
		UserID:        params.UserID,
		TransactionID: params.TransactionID,
		Amount:        calc.Amount,
		FeeAmount:     calc.Fee,
		Total:         calc.Total,
		Tier:          calc.Tier,
		FeePercentage: calc.FeePercentage,
		FeeType:       calc.FeeType,
		Currency:      params.Currency,
		Chain:         params.Chain,
		Network:       params.Network,
		Metadata: domain.Metadata{
			"recipient_receives": calc.RecipientReceives.String(),
			"sender_pays":        calc.SenderPays.String(),
		},
		CreatedAt: time.Now(),
	}
}

// RecordFee inserts one immutable fee record.
func (c *Collector) RecordFee(ctx context.Context, params RecordFeeParams) (*domain.Fee, error) {
	record := NewRecord(params)

	if err := c.repo.Create(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to record fee")
	}

	c.logger.Debug("Fee recorded", map[string]interface{}{
		"fee_id": record.ID,
		"amount": record.Amount.String(),
		"fee":    record.FeeAmount.String(),
		"tier":   record.Tier,
	})

	return record, nil
}

// FeeStats aggregates recorded fees over a filtered window.
func (c *Collector) FeeStats(ctx context.Context, filter StatsFilter) (*Stats, error) {
	row, err := c.repo.Aggregate(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to aggregate fees")
	}

	stats := &Stats{
		TransactionCount:   row.TransactionCount,
		TotalFeesCollected: row.TotalFees,
		TotalVolume:        row.TotalVolume,
	}
	if row.TransactionCount > 0 {
		stats.AverageFee = row.TotalFees.Div(decimal.NewFromInt(row.TransactionCount)).Round(2)
	}
	if row.TotalVolume.IsPositive() {
		stats.EffectiveRate = row.TotalFees.Div(row.TotalVolume).Mul(hundred).Round(4)
	}

	return stats, nil
}

// ValidateSufficientBalance is a pure guard checked before any ledger write.
func ValidateSufficientBalance(balance, amount, fee decimal.Decimal) BalanceCheck {
	required := amount.Add(fee)
	check := BalanceCheck{Required: required}
	if balance.GreaterThanOrEqual(required) {
		check.Valid = true
		return check
	}
	check.Shortfall = required.Sub(balance)
	return check
}
