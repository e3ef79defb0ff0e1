// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common errors
var (
	ErrWalletNotFound           = errors.New("wallet not found")
	ErrWalletAlreadyExists      = errors.New("wallet already exists")
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrFeeNotFound              = errors.New("fee record not found")
	ErrSplitPaymentNotFound     = errors.New("split payment not found")
	ErrSplitPaymentInactive     = errors.New("split payment is not active")
	ErrNoActiveRecipients       = errors.New("split payment has no active recipients")
	ErrExecutionNotFound        = errors.New("split payment execution not found")
	ErrDuplicateRequest         = errors.New("duplicate request")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrPinNotSet                = errors.New("transaction pin not set")
	ErrInvalidPin               = errors.New("invalid transaction pin")
	ErrInvalidTOTPCode          = errors.New("invalid totp code")
	ErrBroadcastFailed          = errors.New("blockchain broadcast failed")
	ErrTransactionAlreadyExists = errors.New("transaction already exists")
)

// ValidationError signals bad caller input. It is never retried and always
// maps to a 4xx response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidation builds a ValidationError for a field.
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ConfigurationError signals missing operator configuration, such as an
// unconfigured treasury wallet. No writes occur when it is returned.
type ConfigurationError struct {
	Key     string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error (%s): %s", e.Key, e.Message)
}

// NewConfiguration builds a ConfigurationError for a config key.
func NewConfiguration(key, message string) *ConfigurationError {
	return &ConfigurationError{Key: key, Message: message}
}

// IsConfiguration reports whether err is a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// InsufficientBalanceError carries the amount the sender was short by.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s (short %s)",
		e.Required.String(), e.Available.String(), e.Shortfall.String())
}

// IsInsufficientBalance reports whether err is an InsufficientBalanceError.
func IsInsufficientBalance(err error) bool {
	var ie *InsufficientBalanceError
	return errors.As(err, &ie)
}

// LedgerWriteError wraps a storage failure during a ledger write.
type LedgerWriteError struct {
	Op  string
	Err error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger write failed (%s): %v", e.Op, e.Err)
}

func (e *LedgerWriteError) Unwrap() error { return e.Err }

// NewLedgerWrite wraps err as a LedgerWriteError for the given operation.
func NewLedgerWrite(op string, err error) *LedgerWriteError {
	return &LedgerWriteError{Op: op, Err: err}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target's type.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
