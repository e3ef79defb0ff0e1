package fee

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainpay/pkg/config"
	pkgerrors "chainpay/pkg/errors"
)

func newTestCalculator() *Calculator {
	return NewCalculator(config.FeeConfig{
		Tiers:    config.DefaultFeeTiers(),
		Currency: "USD",
	})
}

func TestCalculateFlatTiers(t *testing.T) {
	calc := newTestCalculator()

	tests := []struct {
		amount float64
		fee    string
		tier   string
	}{
		{0, "0", "$0-$10"},
		{5, "0", "$0-$10"},
		{9.99, "0", "$0-$10"},
		{10, "0.1", "$10.01-$50"},
		{49.99, "0.1", "$10.01-$50"},
		{50, "0.25", "$51-$100"},
		{75, "0.25", "$51-$100"},
		{100, "0.5", "$101-$500"},
		{500, "1", "$501-$1,000"},
		{999.99, "1", "$501-$1,000"},
	}

	for _, tc := range tests {
		c, err := calc.Calculate(decimal.NewFromFloat(tc.amount))
		require.NoError(t, err)
		assert.Equal(t, tc.fee, c.Fee.String(), "amount %v", tc.amount)
		assert.Equal(t, tc.tier, c.Tier, "amount %v", tc.amount)
		assert.True(t, c.Total.Equal(c.Amount.Add(c.Fee)))
		assert.True(t, c.RecipientReceives.Equal(c.Amount))
		assert.True(t, c.SenderPays.Equal(c.Total))
	}
}

func TestCalculatePercentageTier(t *testing.T) {
	calc := newTestCalculator()

	c, err := calc.Calculate(decimal.NewFromInt(1500))
	require.NoError(t, err)
	assert.Equal(t, "7.5", c.Fee.String())
	assert.Equal(t, "$1,001+", c.Tier)
	assert.Equal(t, feeTypePercentage, c.FeeType)
	assert.Equal(t, "1507.5", c.Total.String())

	// Rounding applies only to the final result.
	c, err = calc.Calculate(decimal.NewFromFloat(1234.56))
	require.NoError(t, err)
	assert.Equal(t, "6.17", c.Fee.String())
}

func TestCalculateRejectsNegative(t *testing.T) {
	calc := newTestCalculator()

	_, err := calc.Calculate(decimal.NewFromInt(-1))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestTierPartitionHasNoGapsOrOverlaps(t *testing.T) {
	calc := newTestCalculator()
	tiers := calc.Tiers()

	// Sweep [0, 2000] in cents plus the exact boundaries; every amount must
	// match exactly one tier.
	probe := func(amount decimal.Decimal) {
		matches := 0
		for _, tier := range tiers {
			if calc.inTier(tier, amount) {
				matches++
			}
		}
		assert.Equal(t, 1, matches, "amount %s matched %d tiers", amount, matches)
	}

	for cents := int64(0); cents <= 200000; cents += 37 {
		probe(decimal.New(cents, -2))
	}
	for _, tier := range tiers {
		probe(tier.Min)
		if tier.Max != nil {
			probe(*tier.Max)
			probe(tier.Max.Sub(decimal.New(1, -2)))
		}
	}
}

func TestBoundaryBelongsToUpperTier(t *testing.T) {
	calc := newTestCalculator()

	lower, err := calc.Calculate(decimal.NewFromFloat(9.99))
	require.NoError(t, err)
	upper, err := calc.Calculate(decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.Equal(t, "$0-$10", lower.Tier)
	assert.Equal(t, "$10.01-$50", upper.Tier)

	// Repeated calls resolve identically.
	for i := 0; i < 10; i++ {
		again, err := calc.Calculate(decimal.NewFromInt(10))
		require.NoError(t, err)
		assert.Equal(t, upper.Tier, again.Tier)
	}
}

func TestCalculateFromTotalRoundTrip(t *testing.T) {
	calc := newTestCalculator()
	tolerance := decimal.NewFromFloat(0.01)

	for _, amount := range []float64{0, 5, 10, 42.50, 75, 250, 999, 1500, 87654.32} {
		orig, err := calc.Calculate(decimal.NewFromFloat(amount))
		require.NoError(t, err)

		inverted, err := calc.CalculateFromTotal(orig.Total)
		require.NoError(t, err, "total %s", orig.Total)
		assert.True(t, inverted.Amount.Sub(orig.Amount).Abs().LessThanOrEqual(tolerance),
			"amount %v inverted to %s", amount, inverted.Amount)
	}
}

func TestCalculateBatchSummary(t *testing.T) {
	calc := newTestCalculator()

	amounts := []decimal.Decimal{
		decimal.NewFromInt(5),    // fee 0
		decimal.NewFromInt(75),   // fee 0.25
		decimal.NewFromInt(1500), // fee 7.50
	}

	summary, err := calc.CalculateBatchSummary(amounts)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, "1580", summary.TotalAmount.String())
	assert.Equal(t, "7.75", summary.TotalFees.String())
	assert.Equal(t, "1587.75", summary.TotalPayable.String())
	assert.True(t, summary.AveragePercentage.IsPositive())
}

func TestMinimumTransactionAmount(t *testing.T) {
	calc := newTestCalculator()
	// The lowest band is free, so any non-negative amount covers its fee.
	assert.True(t, calc.MinimumTransactionAmount().IsZero())
}

func TestTiersIsIdempotent(t *testing.T) {
	calc := newTestCalculator()

	first := calc.Tiers()
	second := calc.Tiers()
	require.Equal(t, first, second)

	// Mutating the returned slice must not affect the calculator.
	first[0].Label = "mutated"
	assert.Equal(t, second[0].Label, calc.Tiers()[0].Label)
}
