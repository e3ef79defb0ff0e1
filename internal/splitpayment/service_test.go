package splitpayment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainpay/internal/domain"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

func validCreateParams() CreateParams {
	return CreateParams{
		UserID:  uuid.New(),
		Title:   "  team payroll  ",
		Chain:   domain.ChainEthereum,
		Network: domain.NetworkTestnet,
		Recipients: []RecipientParams{
			{Address: "0xaaa", Name: "alice", Amount: decimal.NewFromInt(30)},
			{Address: "0xbbb", Name: "bob", Amount: decimal.RequireFromString("12.50")},
		},
	}
}

func TestCreateTemplate(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewNop(), 0)

	sp, err := svc.Create(context.Background(), validCreateParams())
	require.NoError(t, err)

	assert.Equal(t, "team payroll", sp.Title)
	assert.Equal(t, domain.SplitPaymentStatusActive, sp.Status)
	assert.Equal(t, 2, sp.TotalRecipients)
	assert.Equal(t, "42.5", sp.TotalAmount.String())
	assert.Equal(t, 0, sp.ExecutionCount)
	require.Len(t, sp.Recipients, 2)
	for _, r := range sp.Recipients {
		assert.True(t, r.IsActive)
		assert.Equal(t, sp.ID, r.SplitPaymentID)
	}
}

func TestCreateTemplateValidation(t *testing.T) {
	svc := NewService(newFakeRepository(), logger.NewNop(), 3)

	tests := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"missing user", func(p *CreateParams) { p.UserID = uuid.Nil }},
		{"blank title", func(p *CreateParams) { p.Title = "   " }},
		{"bad chain", func(p *CreateParams) { p.Chain = "dogecoin" }},
		{"bad network", func(p *CreateParams) { p.Network = "devnet" }},
		{"no recipients", func(p *CreateParams) { p.Recipients = nil }},
		{"too many recipients", func(p *CreateParams) {
			p.Recipients = make([]RecipientParams, 4)
			for i := range p.Recipients {
				p.Recipients[i] = RecipientParams{Address: "0xabc", Amount: decimal.NewFromInt(1)}
			}
		}},
		{"blank recipient address", func(p *CreateParams) { p.Recipients[0].Address = " " }},
		{"zero recipient amount", func(p *CreateParams) { p.Recipients[1].Amount = decimal.Zero }},
		{"negative recipient amount", func(p *CreateParams) { p.Recipients[1].Amount = decimal.NewFromInt(-3) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validCreateParams()
			tt.mutate(&params)
			_, err := svc.Create(context.Background(), params)
			assert.True(t, pkgerrors.IsValidation(err))
		})
	}
}

func TestDeleteIsSoft(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewNop(), 0)

	sp, err := svc.Create(context.Background(), validCreateParams())
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), sp.ID))

	// The row survives with deleted status; executions stay reachable.
	stored, err := repo.GetTemplate(context.Background(), sp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SplitPaymentStatusDeleted, stored.Status)

	// Deleting again is a no-op.
	require.NoError(t, svc.Delete(context.Background(), sp.ID))
}

func TestSetStatus(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, logger.NewNop(), 0)

	sp, err := svc.Create(context.Background(), validCreateParams())
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(context.Background(), sp.ID, domain.SplitPaymentStatusInactive))
	stored, _ := repo.GetTemplate(context.Background(), sp.ID)
	assert.Equal(t, domain.SplitPaymentStatusInactive, stored.Status)

	err = svc.SetStatus(context.Background(), sp.ID, domain.SplitPaymentStatusDeleted)
	assert.True(t, pkgerrors.IsValidation(err))

	require.NoError(t, svc.Delete(context.Background(), sp.ID))
	err = svc.SetStatus(context.Background(), sp.ID, domain.SplitPaymentStatusActive)
	assert.ErrorIs(t, err, pkgerrors.ErrSplitPaymentNotFound)
}

func TestListExecutionsUnknownTemplate(t *testing.T) {
	svc := NewService(newFakeRepository(), logger.NewNop(), 0)
	_, err := svc.ListExecutions(context.Background(), uuid.New())
	assert.ErrorIs(t, err, pkgerrors.ErrSplitPaymentNotFound)
}
