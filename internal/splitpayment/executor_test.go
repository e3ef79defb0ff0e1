package splitpayment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainpay/internal/domain"
	"chainpay/internal/pipeline"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

// fakeRepository is a thread-safe in-memory Repository used across the
// package tests.
type fakeRepository struct {
	mu         sync.Mutex
	templates  map[uuid.UUID]*domain.SplitPayment
	executions map[uuid.UUID]*domain.SplitPaymentExecution
	results    map[uuid.UUID]*domain.SplitPaymentExecutionResult
	runBumps   map[uuid.UUID]int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		templates:  make(map[uuid.UUID]*domain.SplitPayment),
		executions: make(map[uuid.UUID]*domain.SplitPaymentExecution),
		results:    make(map[uuid.UUID]*domain.SplitPaymentExecutionResult),
		runBumps:   make(map[uuid.UUID]int),
	}
}

func (f *fakeRepository) CreateTemplate(ctx context.Context, sp *domain.SplitPayment, recipients []*domain.SplitPaymentRecipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp.Recipients = recipients
	f.templates[sp.ID] = sp
	return nil
}

func (f *fakeRepository) GetTemplate(ctx context.Context, id uuid.UUID) (*domain.SplitPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.templates[id]
	if !ok {
		return nil, pkgerrors.ErrSplitPaymentNotFound
	}
	return sp, nil
}

func (f *fakeRepository) ListTemplates(ctx context.Context, userID uuid.UUID) ([]*domain.SplitPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SplitPayment
	for _, sp := range f.templates {
		if sp.UserID == userID {
			out = append(out, sp)
		}
	}
	return out, nil
}

func (f *fakeRepository) UpdateTemplateStatus(ctx context.Context, id uuid.UUID, status domain.SplitPaymentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.templates[id]
	if !ok {
		return pkgerrors.ErrSplitPaymentNotFound
	}
	sp.Status = status
	return nil
}

func (f *fakeRepository) SetRecipientActive(ctx context.Context, templateID, recipientID uuid.UUID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.templates[templateID]
	if !ok {
		return pkgerrors.ErrSplitPaymentNotFound
	}
	for _, r := range sp.Recipients {
		if r.ID == recipientID {
			r.IsActive = active
			return nil
		}
	}
	return pkgerrors.ErrSplitPaymentNotFound
}

func (f *fakeRepository) RecordTemplateRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sp, ok := f.templates[id]
	if !ok {
		return pkgerrors.ErrSplitPaymentNotFound
	}
	sp.ExecutionCount++
	sp.LastExecutedAt = &at
	f.runBumps[id]++
	return nil
}

func (f *fakeRepository) CreateExecution(ctx context.Context, exec *domain.SplitPaymentExecution, results []*domain.SplitPaymentExecutionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[exec.ID] = exec
	for _, r := range results {
		f.results[r.ID] = r
	}
	return nil
}

func (f *fakeRepository) UpdateExecutionStatus(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec, ok := f.executions[id]
	if !ok {
		return pkgerrors.ErrExecutionNotFound
	}
	exec.Status = status
	return nil
}

func (f *fakeRepository) UpdateResult(ctx context.Context, result *domain.SplitPaymentExecutionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[result.ID] = result
	return nil
}

func (f *fakeRepository) FinalizeExecution(ctx context.Context, exec *domain.SplitPaymentExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions[exec.ID] = exec
	return nil
}

func (f *fakeRepository) GetExecution(ctx context.Context, id uuid.UUID) (*domain.SplitPaymentExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec, ok := f.executions[id]
	if !ok {
		return nil, pkgerrors.ErrExecutionNotFound
	}
	return exec, nil
}

func (f *fakeRepository) ListExecutions(ctx context.Context, templateID uuid.UUID) ([]*domain.SplitPaymentExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SplitPaymentExecution
	for _, exec := range f.executions {
		if exec.SplitPaymentID == templateID {
			out = append(out, exec)
		}
	}
	return out, nil
}

func (f *fakeRepository) resultsFor(executionID uuid.UUID) []*domain.SplitPaymentExecutionResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.SplitPaymentExecutionResult
	for _, r := range f.results {
		if r.ExecutionID == executionID {
			out = append(out, r)
		}
	}
	return out
}

// scriptedSender fails sends to addresses listed in failFor and tracks the
// number of concurrently running sends.
type scriptedSender struct {
	failFor    map[string]error
	delay      time.Duration
	inFlight   atomic.Int64
	maxFlight  atomic.Int64
	totalCalls atomic.Int64
}

func (s *scriptedSender) Send(ctx context.Context, req pipeline.SendRequest) (*pipeline.Receipt, error) {
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		max := s.maxFlight.Load()
		if cur <= max || s.maxFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	s.totalCalls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if err, ok := s.failFor[req.ToAddress]; ok {
		return nil, err
	}
	return &pipeline.Receipt{
		TransactionID:   uuid.New(),
		RecipientTxHash: "0xhash-" + req.ToAddress,
		Fee:             decimal.RequireFromString("0.10"),
	}, nil
}

func seedTemplate(t *testing.T, repo *fakeRepository, recipients int) *domain.SplitPayment {
	t.Helper()
	svc := NewService(repo, logger.NewNop(), 0)
	params := CreateParams{
		UserID:  uuid.New(),
		Title:   "payroll",
		Chain:   domain.ChainEthereum,
		Network: domain.NetworkTestnet,
	}
	for i := 0; i < recipients; i++ {
		params.Recipients = append(params.Recipients, RecipientParams{
			Address: recipientAddr(i),
			Name:    "employee",
			Amount:  decimal.NewFromInt(20),
		})
	}
	sp, err := svc.Create(context.Background(), params)
	require.NoError(t, err)
	return sp
}

func recipientAddr(i int) string {
	return "0xrecipient" + strings.Repeat("0", 3) + string(rune('a'+i))
}

func TestExecutePartialFailure(t *testing.T) {
	repo := newFakeRepository()
	sp := seedTemplate(t, repo, 5)
	sender := &scriptedSender{failFor: map[string]error{
		recipientAddr(2): errors.New("rpc timeout"),
	}}

	exec, err := NewExecutor(repo, sender, logger.NewNop(), 5).Execute(context.Background(), sp.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusPartiallyFailed, exec.Status)
	assert.Equal(t, 4, exec.SuccessfulPayments)
	assert.Equal(t, 1, exec.FailedPayments)
	require.NotNil(t, exec.CompletedAt)

	rows := repo.resultsFor(exec.ID)
	require.Len(t, rows, 5)
	success, failed := 0, 0
	for _, r := range rows {
		require.NotNil(t, r.ProcessedAt)
		switch r.Status {
		case domain.ResultStatusSuccess:
			success++
			assert.NotEmpty(t, r.TxHash)
		case domain.ResultStatusFailed:
			failed++
			assert.Equal(t, recipientAddr(2), r.RecipientAddress)
			assert.Contains(t, r.ErrorMessage, "rpc timeout")
		}
	}
	assert.Equal(t, 4, success)
	assert.Equal(t, 1, failed)

	// One success is enough to count the run.
	tpl, err := repo.GetTemplate(context.Background(), sp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tpl.ExecutionCount)
	assert.NotNil(t, tpl.LastExecutedAt)
}

func TestExecuteAllFailures(t *testing.T) {
	repo := newFakeRepository()
	sp := seedTemplate(t, repo, 3)
	sender := &scriptedSender{failFor: map[string]error{
		recipientAddr(0): errors.New("boom"),
		recipientAddr(1): errors.New("boom"),
		recipientAddr(2): errors.New("boom"),
	}}

	exec, err := NewExecutor(repo, sender, logger.NewNop(), 2).Execute(context.Background(), sp.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Equal(t, 0, exec.SuccessfulPayments)
	assert.Equal(t, 3, exec.FailedPayments)
	assert.NotEmpty(t, exec.ErrorMessage)

	tpl, err := repo.GetTemplate(context.Background(), sp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, tpl.ExecutionCount)
	assert.Nil(t, tpl.LastExecutedAt)
}

func TestExecuteAllSucceed(t *testing.T) {
	repo := newFakeRepository()
	sp := seedTemplate(t, repo, 4)
	sender := &scriptedSender{}

	exec, err := NewExecutor(repo, sender, logger.NewNop(), 2).Execute(context.Background(), sp.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, 4, exec.SuccessfulPayments)
	assert.Equal(t, 0, exec.FailedPayments)
	assert.Equal(t, "0.4", exec.TotalFees.String())
	assert.True(t, exec.TotalAmount.Equal(decimal.NewFromInt(80)))
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	repo := newFakeRepository()
	sp := seedTemplate(t, repo, 12)
	sender := &scriptedSender{delay: 10 * time.Millisecond}

	_, err := NewExecutor(repo, sender, logger.NewNop(), 3).Execute(context.Background(), sp.ID)
	require.NoError(t, err)

	assert.Equal(t, int64(12), sender.totalCalls.Load())
	assert.LessOrEqual(t, sender.maxFlight.Load(), int64(3))
}

func TestExecuteSkipsInactiveRecipients(t *testing.T) {
	repo := newFakeRepository()
	sp := seedTemplate(t, repo, 3)
	require.NoError(t, repo.SetRecipientActive(context.Background(), sp.ID, sp.Recipients[1].ID, false))
	sender := &scriptedSender{}

	exec, err := NewExecutor(repo, sender, logger.NewNop(), 2).Execute(context.Background(), sp.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, exec.TotalRecipients)
	assert.True(t, exec.TotalAmount.Equal(decimal.NewFromInt(40)))
	assert.Len(t, repo.resultsFor(exec.ID), 2)
}

func TestExecutePreconditions(t *testing.T) {
	repo := newFakeRepository()
	sender := &scriptedSender{}
	executor := NewExecutor(repo, sender, logger.NewNop(), 2)

	_, err := executor.Execute(context.Background(), uuid.New())
	assert.ErrorIs(t, err, pkgerrors.ErrSplitPaymentNotFound)

	inactive := seedTemplate(t, repo, 2)
	require.NoError(t, repo.UpdateTemplateStatus(context.Background(), inactive.ID, domain.SplitPaymentStatusInactive))
	_, err = executor.Execute(context.Background(), inactive.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrSplitPaymentInactive)

	deleted := seedTemplate(t, repo, 2)
	require.NoError(t, repo.UpdateTemplateStatus(context.Background(), deleted.ID, domain.SplitPaymentStatusDeleted))
	_, err = executor.Execute(context.Background(), deleted.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrSplitPaymentNotFound)

	drained := seedTemplate(t, repo, 1)
	require.NoError(t, repo.SetRecipientActive(context.Background(), drained.ID, drained.Recipients[0].ID, false))
	_, err = executor.Execute(context.Background(), drained.ID)
	assert.ErrorIs(t, err, pkgerrors.ErrNoActiveRecipients)

	assert.Equal(t, int64(0), sender.totalCalls.Load())
}

func TestExecuteCancelledBeforeStart(t *testing.T) {
	repo := newFakeRepository()
	sp := seedTemplate(t, repo, 4)
	sender := &scriptedSender{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec, err := NewExecutor(repo, sender, logger.NewNop(), 2).Execute(ctx, sp.ID)
	require.NoError(t, err)

	// Every recipient still resolves to exactly one terminal result.
	assert.Equal(t, domain.ExecutionStatusFailed, exec.Status)
	assert.Equal(t, 4, exec.FailedPayments)
	rows := repo.resultsFor(exec.ID)
	require.Len(t, rows, 4)
	for _, r := range rows {
		assert.Equal(t, domain.ResultStatusFailed, r.Status)
		assert.Contains(t, r.ErrorMessage, "cancelled")
	}
	assert.Equal(t, int64(0), sender.totalCalls.Load())
}

type capturingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (c *capturingSink) ExecutionProgress(ev ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestExecuteEmitsProgress(t *testing.T) {
	repo := newFakeRepository()
	sp := seedTemplate(t, repo, 3)
	sender := &scriptedSender{}
	sink := &capturingSink{}

	exec, err := NewExecutor(repo, sender, logger.NewNop(), 1).WithProgressSink(sink).Execute(context.Background(), sp.ID)
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.events, 3)
	last := sink.events[len(sink.events)-1]
	assert.Equal(t, exec.ID, last.ExecutionID)
	assert.Equal(t, 3, last.Completed)
	assert.Equal(t, 3, last.Total)
}
