package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tierCfg(tiers []FeeTier) *Config {
	return &Config{Fees: FeeConfig{Tiers: tiers, Currency: "USD"}}
}

func TestDefaultFeeTiersAreValid(t *testing.T) {
	require.NoError(t, tierCfg(DefaultFeeTiers()).ValidateFeeTiers())
}

func TestValidateFeeTiersRejectsBrokenTables(t *testing.T) {
	five := decimal.NewFromInt(5)
	ten := decimal.NewFromInt(10)
	twenty := decimal.NewFromInt(20)
	zero := decimal.Zero

	tests := []struct {
		name  string
		tiers []FeeTier
	}{
		{name: "empty table", tiers: nil},
		{
			name: "first tier not at zero",
			tiers: []FeeTier{
				{Min: five, FlatFee: &zero, Label: "a"},
			},
		},
		{
			name: "gap between tiers",
			tiers: []FeeTier{
				{Min: decimal.Zero, Max: &five, FlatFee: &zero, Label: "a"},
				{Min: ten, FlatFee: &zero, Label: "b"},
			},
		},
		{
			name: "overlap between tiers",
			tiers: []FeeTier{
				{Min: decimal.Zero, Max: &twenty, FlatFee: &zero, Label: "a"},
				{Min: ten, FlatFee: &zero, Label: "b"},
			},
		},
		{
			name: "bounded last tier",
			tiers: []FeeTier{
				{Min: decimal.Zero, Max: &ten, FlatFee: &zero, Label: "a"},
				{Min: ten, Max: &twenty, FlatFee: &zero, Label: "b"},
			},
		},
		{
			name: "tier with no formula",
			tiers: []FeeTier{
				{Min: decimal.Zero, Label: "a"},
			},
		},
		{
			name: "tier with both formulas",
			tiers: []FeeTier{
				{Min: decimal.Zero, FlatFee: &zero, Percentage: &zero, Label: "a"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tierCfg(tc.tiers).ValidateFeeTiers())
		})
	}
}

func TestValidateCoreRequiresSecrets(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/x"},
		JWT:      JWTConfig{Secret: "change-this-secret"},
		Executor: ExecutorConfig{Concurrency: 5},
		Fees:     FeeConfig{Tiers: DefaultFeeTiers()},
	}
	assert.Error(t, cfg.ValidateCore())

	cfg.JWT.Secret = "real-secret"
	assert.NoError(t, cfg.ValidateCore())

	cfg.Database.URL = ""
	assert.Error(t, cfg.ValidateCore())
}
