package broadcast

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chainpay/internal/domain"
	"chainpay/pkg/logger"
)

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) FindPending(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func TestSimulatedBroadcastHashShape(t *testing.T) {
	b := NewSimulated()

	evmHash, err := b.Broadcast(context.Background(), Request{
		Chain:       domain.ChainEthereum,
		Network:     domain.NetworkTestnet,
		FromAddress: "0x1111111111111111111111111111111111111111",
		ToAddress:   "0x2222222222222222222222222222222222222222",
		Amount:      decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(evmHash, "0x"))
	assert.Len(t, evmHash, 66)

	solHash, err := b.Broadcast(context.Background(), Request{
		Chain:     domain.ChainSolana,
		Network:   domain.NetworkTestnet,
		ToAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Amount:    decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(solHash, "0x"))
	assert.Len(t, solHash, 64)

	// Tron txids are bare hex, unlike its EVM-style contract layer.
	tronHash, err := b.Broadcast(context.Background(), Request{
		Chain:     domain.ChainTron,
		Network:   domain.NetworkTestnet,
		ToAddress: "TJRabPrwbZy45sbavfcjinPJC18kjpRTv8",
		Amount:    decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(tronHash, "0x"))
	assert.Len(t, tronHash, 64)

	_, err = b.Broadcast(context.Background(), Request{Chain: domain.ChainEthereum})
	assert.Error(t, err)
}

func TestWatcherConfirmsPendingRows(t *testing.T) {
	repo := new(MockLedgerRepository)
	txID := uuid.New()
	pending := []*domain.Transaction{
		{
			ID:        txID,
			Chain:     domain.ChainEthereum,
			Network:   domain.NetworkTestnet,
			TxHash:    "0xabc",
			Status:    domain.TransactionStatusPending,
			CreatedAt: time.Now(),
		},
	}
	repo.On("FindPending", mock.Anything, 100).Return(pending, nil)
	repo.On("UpdateStatus", mock.Anything, txID, domain.TransactionStatusConfirmed).Return(nil)

	w := NewWatcher(repo, NewSimulated(), logger.NewNop(), time.Second, time.Minute)
	require.NoError(t, w.Sweep(context.Background()))

	repo.AssertExpectations(t)
}

func TestWatcherFailsStaleRows(t *testing.T) {
	repo := new(MockLedgerRepository)
	staleID := uuid.New()
	noHashID := uuid.New()
	pending := []*domain.Transaction{
		{
			ID:        staleID,
			Chain:     domain.ChainEthereum,
			Network:   domain.NetworkTestnet,
			TxHash:    "0xdef",
			Status:    domain.TransactionStatusPending,
			CreatedAt: time.Now().Add(-2 * time.Hour),
		},
		{
			ID:        noHashID,
			Chain:     domain.ChainEthereum,
			Network:   domain.NetworkTestnet,
			Status:    domain.TransactionStatusPending,
			CreatedAt: time.Now(),
		},
	}
	repo.On("FindPending", mock.Anything, 100).Return(pending, nil)
	repo.On("UpdateStatus", mock.Anything, staleID, domain.TransactionStatusFailed).Return(nil)
	repo.On("UpdateStatus", mock.Anything, noHashID, domain.TransactionStatusFailed).Return(nil)

	w := NewWatcher(repo, NewSimulated(), logger.NewNop(), time.Second, time.Minute)
	require.NoError(t, w.Sweep(context.Background()))

	repo.AssertExpectations(t)
}

func TestWatcherHonorsCancellation(t *testing.T) {
	repo := new(MockLedgerRepository)
	pending := []*domain.Transaction{
		{ID: uuid.New(), TxHash: "0xabc", CreatedAt: time.Now()},
	}
	repo.On("FindPending", mock.Anything, 100).Return(pending, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewWatcher(repo, NewSimulated(), logger.NewNop(), time.Second, time.Minute)
	err := w.Sweep(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}
