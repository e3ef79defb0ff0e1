// Package domain defines the entities shared across services.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Chain identifies a supported blockchain.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainBitcoin  Chain = "bitcoin"
	ChainSolana   Chain = "solana"
	ChainStarknet Chain = "starknet"
	ChainStellar  Chain = "stellar"
	ChainPolkadot Chain = "polkadot"
	ChainTron     Chain = "tron"
)

// Valid reports whether the chain is one we support.
func (c Chain) Valid() bool {
	switch c {
	case ChainEthereum, ChainBitcoin, ChainSolana, ChainStarknet, ChainStellar, ChainPolkadot, ChainTron:
		return true
	}
	return false
}

// Network identifies the chain environment.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
)

// Valid reports whether the network is recognized.
func (n Network) Valid() bool {
	return n == NetworkMainnet || n == NetworkTestnet
}

// Metadata is a JSON-compatible map
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &m)
}

// Wallet is a user's registered address on one chain/network. Key material is
// produced by an external provider and stored encrypted, never in the clear.
type Wallet struct {
	ID                  uuid.UUID `json:"id" db:"id"`
	UserID              uuid.UUID `json:"user_id" db:"user_id"`
	Chain               Chain     `json:"chain" db:"chain"`
	Network             Network   `json:"network" db:"network"`
	Address             string    `json:"address" db:"address"`
	EncryptedPrivateKey string    `json:"-" db:"encrypted_private_key"`
	Label               string    `json:"label" db:"label"`
	IsDefault           bool      `json:"is_default" db:"is_default"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// TransactionType classifies a ledger row.
type TransactionType string

const (
	TransactionTypeSend          TransactionType = "send"
	TransactionTypeFeeCollection TransactionType = "fee_collection"
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypeWithdrawal    TransactionType = "withdrawal"
)

// TransactionStatus is the settlement state of a ledger row.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is an append-only ledger row representing one money movement.
// Historical rows are never rewritten; only Status and TxHash change during
// confirmation.
type Transaction struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	UserID      uuid.UUID         `json:"user_id" db:"user_id"`
	Type        TransactionType   `json:"type" db:"type"`
	Amount      decimal.Decimal   `json:"amount" db:"amount"`
	Currency    string            `json:"currency" db:"currency"`
	Chain       Chain             `json:"chain" db:"chain"`
	Network     Network           `json:"network" db:"network"`
	FromAddress string            `json:"from_address" db:"from_address"`
	ToAddress   string            `json:"to_address" db:"to_address"`
	TxHash      string            `json:"tx_hash" db:"tx_hash"`
	Status      TransactionStatus `json:"status" db:"status"`
	Details     Metadata          `json:"details" db:"details"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

// Fee is the immutable per-transaction fee record used for reporting. The
// metadata snapshots recipient_receives/sender_pays so historical reports
// survive later tier changes.
type Fee struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	UserID        uuid.UUID       `json:"user_id" db:"user_id"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty" db:"transaction_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	FeeAmount     decimal.Decimal `json:"fee_amount" db:"fee_amount"`
	Total         decimal.Decimal `json:"total" db:"total"`
	Tier          string          `json:"tier" db:"tier"`
	FeePercentage decimal.Decimal `json:"fee_percentage" db:"fee_percentage"`
	FeeType       string          `json:"fee_type" db:"fee_type"`
	Currency      string          `json:"currency" db:"currency"`
	Chain         Chain           `json:"chain" db:"chain"`
	Network       Network         `json:"network" db:"network"`
	Metadata      Metadata        `json:"metadata" db:"metadata"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// SplitPaymentStatus is the lifecycle state of a template.
type SplitPaymentStatus string

const (
	SplitPaymentStatusActive   SplitPaymentStatus = "active"
	SplitPaymentStatusInactive SplitPaymentStatus = "inactive"
	SplitPaymentStatusDeleted  SplitPaymentStatus = "deleted"
)

// SplitPayment is a reusable one-sender-many-recipients template. Templates
// are never physically deleted; status moves to deleted instead so historical
// executions keep their parent.
type SplitPayment struct {
	ID              uuid.UUID          `json:"id" db:"id"`
	UserID          uuid.UUID          `json:"user_id" db:"user_id"`
	Title           string             `json:"title" db:"title"`
	Chain           Chain              `json:"chain" db:"chain"`
	Network         Network            `json:"network" db:"network"`
	FromAddress     string             `json:"from_address" db:"from_address"`
	TotalAmount     decimal.Decimal    `json:"total_amount" db:"total_amount"`
	TotalRecipients int                `json:"total_recipients" db:"total_recipients"`
	Status          SplitPaymentStatus `json:"status" db:"status"`
	ExecutionCount  int                `json:"execution_count" db:"execution_count"`
	LastExecutedAt  *time.Time         `json:"last_executed_at,omitempty" db:"last_executed_at"`
	CreatedAt       time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at" db:"updated_at"`

	Recipients []*SplitPaymentRecipient `json:"recipients,omitempty" db:"-"`
}

// SplitPaymentRecipient is one payee of a template. Immutable after creation
// except IsActive, which soft-removes it from future executions.
type SplitPaymentRecipient struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	SplitPaymentID   uuid.UUID       `json:"split_payment_id" db:"split_payment_id"`
	RecipientAddress string          `json:"recipient_address" db:"recipient_address"`
	RecipientName    string          `json:"recipient_name" db:"recipient_name"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	IsActive         bool            `json:"is_active" db:"is_active"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// ExecutionStatus is the aggregate state of one run of a template.
type ExecutionStatus string

const (
	ExecutionStatusPending         ExecutionStatus = "PENDING"
	ExecutionStatusProcessing      ExecutionStatus = "PROCESSING"
	ExecutionStatusCompleted       ExecutionStatus = "COMPLETED"
	ExecutionStatusPartiallyFailed ExecutionStatus = "PARTIALLY_FAILED"
	ExecutionStatusFailed          ExecutionStatus = "FAILED"
)

// Terminal reports whether the status is final. Executions are never retried
// in place; a new execution is created instead.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusPartiallyFailed, ExecutionStatusFailed:
		return true
	}
	return false
}

// SplitPaymentExecution is one concrete run of a template.
type SplitPaymentExecution struct {
	ID                 uuid.UUID       `json:"id" db:"id"`
	SplitPaymentID     uuid.UUID       `json:"split_payment_id" db:"split_payment_id"`
	TotalAmount        decimal.Decimal `json:"total_amount" db:"total_amount"`
	TotalRecipients    int             `json:"total_recipients" db:"total_recipients"`
	SuccessfulPayments int             `json:"successful_payments" db:"successful_payments"`
	FailedPayments     int             `json:"failed_payments" db:"failed_payments"`
	Status             ExecutionStatus `json:"status" db:"status"`
	TotalFees          decimal.Decimal `json:"total_fees" db:"total_fees"`
	ErrorMessage       string          `json:"error_message" db:"error_message"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty" db:"completed_at"`

	Results []*SplitPaymentExecutionResult `json:"results,omitempty" db:"-"`
}

// ResultStatus is the state of one recipient within one execution.
type ResultStatus string

const (
	ResultStatusPending ResultStatus = "PENDING"
	ResultStatusSuccess ResultStatus = "SUCCESS"
	ResultStatusFailed  ResultStatus = "FAILED"
)

// SplitPaymentExecutionResult records the outcome for one recipient. It is
// created PENDING, transitions exactly once, and is immutable afterwards.
type SplitPaymentExecutionResult struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	ExecutionID      uuid.UUID       `json:"execution_id" db:"execution_id"`
	RecipientAddress string          `json:"recipient_address" db:"recipient_address"`
	Amount           decimal.Decimal `json:"amount" db:"amount"`
	Status           ResultStatus    `json:"status" db:"status"`
	TxHash           string          `json:"tx_hash" db:"tx_hash"`
	Fees             decimal.Decimal `json:"fees" db:"fees"`
	ErrorMessage     string          `json:"error_message" db:"error_message"`
	ProcessedAt      *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}

// TransactionAuth holds a user's transaction authorization credentials.
type TransactionAuth struct {
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	PinHash    string    `json:"-" db:"pin_hash"`
	TOTPSecret *string   `json:"-" db:"totp_secret"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}
