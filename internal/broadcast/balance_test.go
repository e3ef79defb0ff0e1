package broadcast

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainpay/internal/domain"
	"chainpay/pkg/logger"
)

func TestSimulatedBalanceSource(t *testing.T) {
	src := NewSimulatedBalanceSource(decimal.RequireFromString("1000"))

	bal, err := src.FetchBalance(context.Background(), domain.ChainEthereum, domain.NetworkTestnet, "0xabc")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.RequireFromString("1000")))

	_, err = src.FetchBalance(context.Background(), domain.ChainEthereum, domain.NetworkTestnet, "")
	assert.Error(t, err)
}

func TestCachedBalanceProviderWithoutCache(t *testing.T) {
	src := NewSimulatedBalanceSource(decimal.RequireFromString("12.5"))
	provider := NewCachedBalanceProvider(src, nil, 0, logger.NewNop())

	bal, err := provider.Balance(context.Background(), domain.ChainSolana, domain.NetworkMainnet, "addr")
	require.NoError(t, err)
	assert.Equal(t, "12.5", bal.String())
}
