package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"chainpay/internal/domain"
	"chainpay/internal/fee"
	"chainpay/pkg/errors"
)

type FeeRepository struct {
	db *sqlx.DB
}

func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

func insertFee(ctx context.Context, ext sqlx.ExtContext, record *domain.Fee) error {
	query := `
        INSERT INTO fees (
            id, user_id, transaction_id, amount, fee_amount, total,
            tier, fee_percentage, fee_type, currency, chain, network,
            metadata, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
        )
    `

	_, err := ext.ExecContext(ctx, query,
		record.ID, record.UserID, record.TransactionID, record.Amount,
		record.FeeAmount, record.Total, record.Tier, record.FeePercentage,
		record.FeeType, record.Currency, record.Chain, record.Network,
		record.Metadata, record.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create fee record")
	}
	return nil
}

func (r *FeeRepository) Create(ctx context.Context, record *domain.Fee) error {
	return insertFee(ctx, r.db, record)
}

// Aggregate computes the raw fee totals over a filtered window. Zero-row
// windows come back as zero values, never NULL, thanks to COALESCE.
func (r *FeeRepository) Aggregate(ctx context.Context, filter fee.StatsFilter) (*fee.AggregateRow, error) {
	query := `
		SELECT
			COUNT(*) AS transaction_count,
			COALESCE(SUM(fee_amount), 0) AS total_fees,
			COALESCE(SUM(amount), 0) AS total_volume
		FROM fees
		WHERE 1=1
	`

	args := []interface{}{}
	idx := 1
	if filter.Chain != "" {
		query += fmt.Sprintf(" AND chain = $%d", idx)
		args = append(args, filter.Chain)
		idx++
	}
	if filter.Network != "" {
		query += fmt.Sprintf(" AND network = $%d", idx)
		args = append(args, filter.Network)
		idx++
	}
	if filter.From != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", idx)
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		query += fmt.Sprintf(" AND created_at < $%d", idx)
		args = append(args, *filter.To)
		idx++
	}

	var row fee.AggregateRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to aggregate fees")
	}
	return &row, nil
}
