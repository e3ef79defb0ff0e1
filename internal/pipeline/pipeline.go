// Package pipeline orchestrates a single peer-to-peer send: fee calculation,
// treasury resolution, balance guard, broadcast, and the atomic ledger writes.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"chainpay/internal/broadcast"
	"chainpay/internal/domain"
	"chainpay/internal/fee"
	pkgerrors "chainpay/pkg/errors"
	"chainpay/pkg/logger"
)

// Writer is the slice of the store usable inside one database transaction.
type Writer interface {
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	CreateFee(ctx context.Context, record *domain.Fee) error
}

// Store opens atomic units of work. The recipient ledger row, the
// fee-collection ledger row, and the fee record are committed together or
// not at all, so an orphaned leg is unobservable.
type Store interface {
	Transact(ctx context.Context, fn func(w Writer) error) error
}

// TreasuryDirectory resolves the platform fee-collection wallet.
type TreasuryDirectory interface {
	TreasuryWallet(chain domain.Chain, network domain.Network) (string, error)
}

// AddressResolver returns the sender's wallet address on a chain/network.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, userID uuid.UUID, chain domain.Chain, network domain.Network) (string, error)
}

// BalanceProvider reports the spendable balance of an address.
type BalanceProvider interface {
	Balance(ctx context.Context, chain domain.Chain, network domain.Network, address string) (decimal.Decimal, error)
}

// BalanceInvalidator is implemented by balance providers that cache reads.
// The pipeline drops the sender's cached balance after a committed send so
// the next read reflects the spend.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, chain domain.Chain, network domain.Network, address string)
}

// SendRequest is one transfer submitted to the pipeline.
type SendRequest struct {
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	ToAddress string          `json:"to_address"`
	Chain     domain.Chain    `json:"chain"`
	Network   domain.Network  `json:"network"`
}

// Receipt bundles both ledger rows and the fee breakdown for one send.
type Receipt struct {
	TransactionID     uuid.UUID        `json:"transaction_id"`
	FeeTransactionID  uuid.UUID        `json:"fee_transaction_id"`
	FeeRecordID       uuid.UUID        `json:"fee_record_id"`
	RecipientTxHash   string           `json:"recipient_tx_hash"`
	FeeTxHash         string           `json:"fee_tx_hash"`
	TreasuryAddress   string           `json:"treasury_address"`
	RecipientReceives decimal.Decimal  `json:"recipient_receives"`
	Fee               decimal.Decimal  `json:"fee"`
	SenderPays        decimal.Decimal  `json:"sender_pays"`
	Tier              string           `json:"tier"`
	Breakdown         *fee.Calculation `json:"breakdown"`
}

// Pipeline executes the send path. Steps before the first write are
// side-effect free and fail fast.
type Pipeline struct {
	store       Store
	calculator  *fee.Calculator
	treasury    TreasuryDirectory
	resolver    AddressResolver
	balances    BalanceProvider
	broadcaster broadcast.Broadcaster
	logger      logger.Logger
	currency    string
}

// NewPipeline wires the send path from its collaborators.
func NewPipeline(
	store Store,
	calculator *fee.Calculator,
	treasury TreasuryDirectory,
	resolver AddressResolver,
	balances BalanceProvider,
	broadcaster broadcast.Broadcaster,
	log logger.Logger,
	currency string,
) *Pipeline {
	if currency == "" {
		currency = "USD"
	}
	return &Pipeline{
		store:       store,
		calculator:  calculator,
		treasury:    treasury,
		resolver:    resolver,
		balances:    balances,
		broadcaster: broadcaster,
		logger:      log,
		currency:    currency,
	}
}

// Send performs one transfer end to end and returns its receipt.
//
// Order matters: validation, fee calculation, treasury resolution, and the
// balance guard all run before any write, so their failures leave no ledger
// state behind. The two ledger rows and the fee record are written in one
// database transaction after both broadcasts succeed.
func (p *Pipeline) Send(ctx context.Context, req SendRequest) (*Receipt, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	calc, err := p.calculator.Calculate(req.Amount)
	if err != nil {
		return nil, err
	}

	treasuryAddr, err := p.treasury.TreasuryWallet(req.Chain, req.Network)
	if err != nil {
		return nil, err
	}

	fromAddr, err := p.resolver.ResolveAddress(ctx, req.UserID, req.Chain, req.Network)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to resolve sender address")
	}

	balance, err := p.balances.Balance(ctx, req.Chain, req.Network, fromAddr)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to fetch sender balance")
	}
	if check := fee.ValidateSufficientBalance(balance, calc.Amount, calc.Fee); !check.Valid {
		return nil, &pkgerrors.InsufficientBalanceError{
			Required:  check.Required,
			Available: balance,
			Shortfall: check.Shortfall,
		}
	}

	recipientHash, err := p.broadcaster.Broadcast(ctx, broadcast.Request{
		Chain:       req.Chain,
		Network:     req.Network,
		FromAddress: fromAddr,
		ToAddress:   req.ToAddress,
		Amount:      calc.RecipientReceives,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrBroadcastFailed, err.Error())
	}

	feeHash := ""
	if calc.Fee.IsPositive() {
		feeHash, err = p.broadcaster.Broadcast(ctx, broadcast.Request{
			Chain:       req.Chain,
			Network:     req.Network,
			FromAddress: fromAddr,
			ToAddress:   treasuryAddr,
			Amount:      calc.Fee,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ErrBroadcastFailed, err.Error())
		}
	}

	now := time.Now()
	recipientTx := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Type:        domain.TransactionTypeSend,
		Amount:      calc.RecipientReceives,
		Currency:    p.currency,
		Chain:       req.Chain,
		Network:     req.Network,
		FromAddress: fromAddr,
		ToAddress:   req.ToAddress,
		TxHash:      recipientHash,
		Status:      domain.TransactionStatusPending,
		Details: domain.Metadata{
			"tier":        calc.Tier,
			"fee":         calc.Fee.String(),
			"sender_pays": calc.SenderPays.String(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	feeTx := &domain.Transaction{
		ID:          uuid.New(),
		UserID:      req.UserID,
		Type:        domain.TransactionTypeFeeCollection,
		Amount:      calc.Fee,
		Currency:    p.currency,
		Chain:       req.Chain,
		Network:     req.Network,
		FromAddress: fromAddr,
		ToAddress:   treasuryAddr,
		TxHash:      feeHash,
		Status:      domain.TransactionStatusPending,
		Details: domain.Metadata{
			"original_transaction_id": recipientTx.ID.String(),
			"tier":                    calc.Tier,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if calc.Fee.IsZero() {
		// Nothing moved on-chain for a zero fee; the bookkeeping row is
		// settled immediately.
		feeTx.Status = domain.TransactionStatusConfirmed
	}

	record := fee.NewRecord(fee.RecordFeeParams{
		UserID:        req.UserID,
		TransactionID: &recipientTx.ID,
		Calculation:   calc,
		Chain:         req.Chain,
		Network:       req.Network,
		Currency:      p.currency,
	})

	err = p.store.Transact(ctx, func(w Writer) error {
		if err := w.CreateTransaction(ctx, recipientTx); err != nil {
			return pkgerrors.NewLedgerWrite("create recipient transaction", err)
		}
		if err := w.CreateTransaction(ctx, feeTx); err != nil {
			return pkgerrors.NewLedgerWrite("create fee transaction", err)
		}
		if err := w.CreateFee(ctx, record); err != nil {
			return pkgerrors.NewLedgerWrite("create fee record", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if inv, ok := p.balances.(BalanceInvalidator); ok {
		inv.Invalidate(ctx, req.Chain, req.Network, fromAddr)
	}

	p.logger.Info("transfer recorded", map[string]interface{}{
		"transaction_id":     recipientTx.ID,
		"fee_transaction_id": feeTx.ID,
		"user_id":            req.UserID,
		"chain":              req.Chain,
		"network":            req.Network,
		"amount":             calc.RecipientReceives.String(),
		"fee":                calc.Fee.String(),
		"tier":               calc.Tier,
	})

	return &Receipt{
		TransactionID:     recipientTx.ID,
		FeeTransactionID:  feeTx.ID,
		FeeRecordID:       record.ID,
		RecipientTxHash:   recipientHash,
		FeeTxHash:         feeHash,
		TreasuryAddress:   treasuryAddr,
		RecipientReceives: calc.RecipientReceives,
		Fee:               calc.Fee,
		SenderPays:        calc.SenderPays,
		Tier:              calc.Tier,
		Breakdown:         calc,
	}, nil
}

func (p *Pipeline) validate(req SendRequest) error {
	if req.UserID == uuid.Nil {
		return pkgerrors.NewValidation("user_id", "user id is required")
	}
	if !req.Amount.IsPositive() {
		return pkgerrors.NewValidation("amount", "amount must be greater than zero")
	}
	if req.ToAddress == "" {
		return pkgerrors.NewValidation("to_address", "recipient address is required")
	}
	if !req.Chain.Valid() {
		return pkgerrors.NewValidation("chain", "unsupported chain")
	}
	if !req.Network.Valid() {
		return pkgerrors.NewValidation("network", "unsupported network")
	}
	return nil
}
