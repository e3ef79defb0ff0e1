// Package fee implements tiered fee calculation and fee-record bookkeeping.
package fee

import (
	"github.com/shopspring/decimal"

	"chainpay/pkg/config"
	"chainpay/pkg/errors"
)

// Calculation is the full fee breakdown for one amount. The sender pays the
// fee on top: RecipientReceives == Amount and SenderPays == Total.
type Calculation struct {
	Amount            decimal.Decimal `json:"amount"`
	Fee               decimal.Decimal `json:"fee"`
	Total             decimal.Decimal `json:"total"`
	Tier              string          `json:"tier"`
	FeeType           string          `json:"fee_type"`
	FeePercentage     decimal.Decimal `json:"fee_percentage"`
	RecipientReceives decimal.Decimal `json:"recipient_receives"`
	SenderPays        decimal.Decimal `json:"sender_pays"`
}

// BatchSummary aggregates fee calculations for a set of amounts.
type BatchSummary struct {
	Count             int             `json:"count"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	TotalFees         decimal.Decimal `json:"total_fees"`
	TotalPayable      decimal.Decimal `json:"total_payable"`
	AveragePercentage decimal.Decimal `json:"average_percentage"`
}

const (
	feeTypeFlat       = "flat"
	feeTypePercentage = "percentage"
)

var hundred = decimal.NewFromInt(100)

// Calculator computes tiered fees from an injected tier table. It is pure and
// safe for concurrent use.
type Calculator struct {
	tiers    []config.FeeTier
	currency string
}

// NewCalculator builds a Calculator. The tier table is assumed validated at
// startup via config.ValidateFeeTiers.
func NewCalculator(cfg config.FeeConfig) *Calculator {
	return &Calculator{tiers: cfg.Tiers, currency: cfg.Currency}
}

// Tiers returns the immutable tier table.
func (c *Calculator) Tiers() []config.FeeTier {
	out := make([]config.FeeTier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Currency returns the currency the tier table is denominated in.
func (c *Calculator) Currency() string {
	return c.currency
}

// Calculate returns the fee breakdown for amount. Negative amounts are a
// caller error and are rejected, never clamped.
func (c *Calculator) Calculate(amount decimal.Decimal) (*Calculation, error) {
	if amount.IsNegative() {
		return nil, errors.NewValidation("amount", "must not be negative")
	}

	tier := c.tierFor(amount)

	var fee decimal.Decimal
	feeType := feeTypeFlat
	if tier.FlatFee != nil {
		fee = *tier.FlatFee
	} else {
		feeType = feeTypePercentage
		// Round only the final result to avoid compounding rounding error.
		fee = amount.Mul(*tier.Percentage).Round(2)
	}

	total := amount.Add(fee)

	effective := decimal.Zero
	if amount.IsPositive() {
		effective = fee.Div(amount).Mul(hundred).Round(4)
	}

	return &Calculation{
		Amount:            amount,
		Fee:               fee,
		Total:             total,
		Tier:              tier.Label,
		FeeType:           feeType,
		FeePercentage:     effective,
		RecipientReceives: amount,
		SenderPays:        total,
	}, nil
}

// CalculateFromTotal solves amount + fee(amount) = total, for callers that
// collect a fee-inclusive figure. Flat tiers have a closed form; the
// percentage tier falls back to a binary search when rounding breaks the
// algebraic inverse.
func (c *Calculator) CalculateFromTotal(total decimal.Decimal) (*Calculation, error) {
	if total.IsNegative() {
		return nil, errors.NewValidation("total", "must not be negative")
	}

	for _, tier := range c.tiers {
		var candidate decimal.Decimal
		if tier.FlatFee != nil {
			candidate = total.Sub(*tier.FlatFee)
		} else {
			one := decimal.NewFromInt(1)
			candidate = total.Div(one.Add(*tier.Percentage)).Round(2)
		}
		if candidate.IsNegative() || !c.inTier(tier, candidate) {
			continue
		}

		calc, err := c.Calculate(candidate)
		if err != nil {
			return nil, err
		}
		if calc.Total.Sub(total).Abs().LessThanOrEqual(decimal.NewFromFloat(0.01)) {
			return calc, nil
		}
		if tier.Percentage != nil {
			return c.searchInTier(tier, total)
		}
	}

	return nil, errors.NewValidation("total", "no amount resolves to this total")
}

// searchInTier binary-searches the percentage tier for the amount whose
// fee-inclusive total matches, within a cent.
func (c *Calculator) searchInTier(tier config.FeeTier, total decimal.Decimal) (*Calculation, error) {
	lo := tier.Min
	hi := total
	cent := decimal.NewFromFloat(0.01)
	two := decimal.NewFromInt(2)

	for i := 0; i < 64; i++ {
		mid := lo.Add(hi).Div(two).Round(2)
		calc, err := c.Calculate(mid)
		if err != nil {
			return nil, err
		}
		diff := calc.Total.Sub(total)
		if diff.Abs().LessThanOrEqual(cent) {
			return calc, nil
		}
		if diff.IsPositive() {
			hi = mid
		} else {
			lo = mid
		}
	}

	return nil, errors.NewValidation("total", "no amount resolves to this total")
}

// CalculateBatch returns per-amount breakdowns, failing on the first invalid
// amount.
func (c *Calculator) CalculateBatch(amounts []decimal.Decimal) ([]*Calculation, error) {
	calcs := make([]*Calculation, 0, len(amounts))
	for _, amount := range amounts {
		calc, err := c.Calculate(amount)
		if err != nil {
			return nil, err
		}
		calcs = append(calcs, calc)
	}
	return calcs, nil
}

// CalculateBatchSummary aggregates fees across a set of amounts.
func (c *Calculator) CalculateBatchSummary(amounts []decimal.Decimal) (*BatchSummary, error) {
	calcs, err := c.CalculateBatch(amounts)
	if err != nil {
		return nil, err
	}

	summary := &BatchSummary{Count: len(calcs)}
	for _, calc := range calcs {
		summary.TotalAmount = summary.TotalAmount.Add(calc.Amount)
		summary.TotalFees = summary.TotalFees.Add(calc.Fee)
	}
	summary.TotalPayable = summary.TotalAmount.Add(summary.TotalFees)
	if summary.TotalAmount.IsPositive() {
		summary.AveragePercentage = summary.TotalFees.Div(summary.TotalAmount).Mul(hundred).Round(4)
	}
	return summary, nil
}

// MinimumTransactionAmount returns the smallest amount whose fee does not
// exceed the amount itself, used as a UI floor.
func (c *Calculator) MinimumTransactionAmount() decimal.Decimal {
	for _, tier := range c.tiers {
		if tier.FlatFee != nil {
			candidate := tier.Min
			if tier.FlatFee.GreaterThan(candidate) {
				candidate = *tier.FlatFee
			}
			if c.inTier(tier, candidate) {
				return candidate
			}
			continue
		}
		// A percentage below 100% keeps fee <= amount everywhere in the band.
		if tier.Percentage.LessThanOrEqual(decimal.NewFromInt(1)) {
			return tier.Min
		}
	}
	return decimal.Zero
}

// tierFor selects the unique tier containing amount. Bands are closed-open,
// so a boundary amount belongs to the upper tier.
func (c *Calculator) tierFor(amount decimal.Decimal) config.FeeTier {
	for _, tier := range c.tiers {
		if c.inTier(tier, amount) {
			return tier
		}
	}
	// The table partitions [0, inf); the last tier is unbounded.
	return c.tiers[len(c.tiers)-1]
}

func (c *Calculator) inTier(tier config.FeeTier, amount decimal.Decimal) bool {
	if amount.LessThan(tier.Min) {
		return false
	}
	if tier.Max != nil && amount.GreaterThanOrEqual(*tier.Max) {
		return false
	}
	return true
}
