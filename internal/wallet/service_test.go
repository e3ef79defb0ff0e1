package wallet

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chainpay/internal/domain"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
	"chainpay/pkg/validator"
)

type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockWalletRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) GetDefault(ctx context.Context, userID uuid.UUID, chain domain.Chain, network domain.Network) (*domain.Wallet, error) {
	args := m.Called(ctx, userID, chain, network)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Wallet), args.Error(1)
}

func (m *MockWalletRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Wallet), args.Error(1)
}

func testKeyProvider(t *testing.T) *LocalKeyProvider {
	t.Helper()
	p, err := NewLocalKeyProvider(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	return p
}

func TestRegisterFirstWalletBecomesDefault(t *testing.T) {
	repo := new(MockWalletRepository)
	userID := uuid.New()

	repo.On("GetDefault", mock.Anything, userID, domain.ChainEthereum, domain.NetworkTestnet).
		Return(nil, pkgerrors.ErrWalletNotFound)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(w *domain.Wallet) bool {
		return w.UserID == userID && w.IsDefault && strings.HasPrefix(w.Address, "0x")
	})).Return(nil)

	svc := NewService(repo, testKeyProvider(t), logger.NewNop())
	w, err := svc.Register(context.Background(), RegisterParams{
		UserID:  userID,
		Chain:   domain.ChainEthereum,
		Network: domain.NetworkTestnet,
		Label:   "  primary  ",
	})

	require.NoError(t, err)
	assert.True(t, w.IsDefault)
	assert.Equal(t, "primary", w.Label)
	assert.NotEmpty(t, w.EncryptedPrivateKey)
	assert.NotEqual(t, uuid.Nil, w.ID)
	repo.AssertExpectations(t)
}

func TestRegisterSecondWalletNotDefault(t *testing.T) {
	repo := new(MockWalletRepository)
	userID := uuid.New()
	existing := &domain.Wallet{ID: uuid.New(), UserID: userID, IsDefault: true}

	repo.On("GetDefault", mock.Anything, userID, domain.ChainEthereum, domain.NetworkTestnet).
		Return(existing, nil)
	repo.On("Create", mock.Anything, mock.MatchedBy(func(w *domain.Wallet) bool {
		return !w.IsDefault
	})).Return(nil)

	svc := NewService(repo, testKeyProvider(t), logger.NewNop())
	w, err := svc.Register(context.Background(), RegisterParams{
		UserID:  userID,
		Chain:   domain.ChainEthereum,
		Network: domain.NetworkTestnet,
	})

	require.NoError(t, err)
	assert.False(t, w.IsDefault)
	repo.AssertExpectations(t)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc := NewService(new(MockWalletRepository), testKeyProvider(t), logger.NewNop())

	_, err := svc.Register(context.Background(), RegisterParams{
		Chain:   domain.ChainEthereum,
		Network: domain.NetworkTestnet,
	})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = svc.Register(context.Background(), RegisterParams{
		UserID:  uuid.New(),
		Chain:   "dogecoin",
		Network: domain.NetworkTestnet,
	})
	assert.True(t, pkgerrors.IsValidation(err))

	_, err = svc.Register(context.Background(), RegisterParams{
		UserID:  uuid.New(),
		Chain:   domain.ChainEthereum,
		Network: "devnet",
	})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestResolveAddress(t *testing.T) {
	repo := new(MockWalletRepository)
	userID := uuid.New()
	repo.On("GetDefault", mock.Anything, userID, domain.ChainEthereum, domain.NetworkMainnet).
		Return(&domain.Wallet{Address: " 0xabc "}, nil)

	svc := NewService(repo, testKeyProvider(t), logger.NewNop())
	addr, err := svc.ResolveAddress(context.Background(), userID, domain.ChainEthereum, domain.NetworkMainnet)

	require.NoError(t, err)
	assert.Equal(t, "0xabc", addr)
}

func TestResolveAddressMissingWallet(t *testing.T) {
	repo := new(MockWalletRepository)
	userID := uuid.New()
	repo.On("GetDefault", mock.Anything, userID, domain.ChainSolana, domain.NetworkMainnet).
		Return(nil, pkgerrors.ErrWalletNotFound)

	svc := NewService(repo, testKeyProvider(t), logger.NewNop())
	_, err := svc.ResolveAddress(context.Background(), userID, domain.ChainSolana, domain.NetworkMainnet)

	assert.ErrorIs(t, err, pkgerrors.ErrWalletNotFound)
}

func TestLocalKeyProviderAddressShapes(t *testing.T) {
	p := testKeyProvider(t)

	tests := []struct {
		chain domain.Chain
		check func(t *testing.T, addr string)
	}{
		{domain.ChainEthereum, func(t *testing.T, addr string) {
			assert.True(t, strings.HasPrefix(addr, "0x"))
			assert.Len(t, addr, 42)
		}},
		{domain.ChainStarknet, func(t *testing.T, addr string) {
			assert.True(t, strings.HasPrefix(addr, "0x"))
			assert.Len(t, addr, 66)
		}},
		{domain.ChainStellar, func(t *testing.T, addr string) {
			assert.True(t, strings.HasPrefix(addr, "G"))
			assert.Len(t, addr, 56)
		}},
		{domain.ChainSolana, func(t *testing.T, addr string) {
			assert.NotEmpty(t, addr)
			assert.False(t, strings.HasPrefix(addr, "0x"))
		}},
		{domain.ChainTron, func(t *testing.T, addr string) {
			assert.NotEmpty(t, addr)
			assert.False(t, strings.HasPrefix(addr, "0x"))
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.chain), func(t *testing.T) {
			addr, sealed, err := p.Generate(context.Background(), tt.chain, domain.NetworkTestnet)
			require.NoError(t, err)
			tt.check(t, addr)
			assert.NotEmpty(t, sealed)
		})
	}
}

// Generated addresses must be accepted by the request validation their chain
// enforces, or a registered wallet could never receive a send.
func TestGeneratedAddressesPassChainValidation(t *testing.T) {
	p := testKeyProvider(t)
	val := validator.New()

	type addressPayload struct {
		Chain   string `validate:"required"`
		Address string `validate:"required,chain_address"`
	}

	chains := []domain.Chain{
		domain.ChainEthereum,
		domain.ChainBitcoin,
		domain.ChainSolana,
		domain.ChainStarknet,
		domain.ChainStellar,
		domain.ChainPolkadot,
		domain.ChainTron,
	}
	for _, chain := range chains {
		t.Run(string(chain), func(t *testing.T) {
			addr, _, err := p.Generate(context.Background(), chain, domain.NetworkTestnet)
			require.NoError(t, err)

			errs := val.ValidateStructured(&addressPayload{Chain: string(chain), Address: addr})
			assert.Nil(t, errs, "address %s rejected: %v", addr, errs)
		})
	}
}
