package reconcile

import (
	"context"
	"errors"
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

type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) FindOrphanSends(ctx context.Context, olderThan time.Duration, limit int) ([]*domain.Transaction, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Sweep(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestRunReportsOrphansAndRedrives(t *testing.T) {
	auditor := new(MockAuditor)
	sweeper := new(MockSweeper)

	orphans := []*domain.Transaction{
		{ID: uuid.New(), Type: domain.TransactionTypeSend, Amount: decimal.NewFromInt(40)},
		{ID: uuid.New(), Type: domain.TransactionTypeSend, Amount: decimal.NewFromInt(15)},
	}
	auditor.On("FindOrphanSends", mock.Anything, time.Hour, 500).Return(orphans, nil)
	sweeper.On("Sweep", mock.Anything).Return(nil)

	report, err := NewService(auditor, sweeper, logger.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.OrphanSends)
	assert.True(t, report.RedrovePending)
	auditor.AssertExpectations(t)
	sweeper.AssertExpectations(t)
}

func TestRunSweepFailureStillReports(t *testing.T) {
	auditor := new(MockAuditor)
	sweeper := new(MockSweeper)

	auditor.On("FindOrphanSends", mock.Anything, time.Hour, 500).Return([]*domain.Transaction{}, nil)
	sweeper.On("Sweep", mock.Anything).Return(errors.New("db down"))

	report, err := NewService(auditor, sweeper, logger.NewNop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.OrphanSends)
	assert.False(t, report.RedrovePending)
}

func TestRunAuditFailure(t *testing.T) {
	auditor := new(MockAuditor)
	sweeper := new(MockSweeper)

	auditor.On("FindOrphanSends", mock.Anything, time.Hour, 500).Return(nil, errors.New("db down"))

	_, err := NewService(auditor, sweeper, logger.NewNop()).Run(context.Background())
	assert.Error(t, err)
	sweeper.AssertNotCalled(t, "Sweep", mock.Anything)
}
