package ledger

import (
	"errors"
	"fmt"
)

// Error categories. Every domain error returned by Service wraps exactly one of them.
var (
	ErrNotFound               = errors.New("not found")
	ErrDuplicateTransactionID = errors.New("duplicate transaction id")
	ErrInvalidTransition      = errors.New("invalid transition")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrValidation             = errors.New("validation error")
)

// Domain-level error values returned by the ledger service.
var (
	ErrWalletNotFound               = fmt.Errorf("wallet %w", ErrNotFound)
	ErrTransactionNotFound          = fmt.Errorf("transaction %w", ErrNotFound)
	ErrInvalidUserID                = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidTransactionID         = fmt.Errorf("%w: invalid transaction id", ErrValidation)
	ErrMissingExternalTransactionID = fmt.Errorf("%w: external transaction id is required", ErrValidation)
	ErrInvalidAmount                = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidTransactionType       = fmt.Errorf("%w: invalid transaction type", ErrValidation)
	ErrInvalidStatus                = fmt.Errorf("%w: invalid transaction status", ErrValidation)
	ErrInvalidMetadata              = fmt.Errorf("%w: invalid metadata", ErrValidation)
	ErrInvalidListLimit             = fmt.Errorf("%w: invalid list limit", ErrValidation)
	ErrSelfTransfer                 = fmt.Errorf("%w: sender and receiver must differ", ErrValidation)
	ErrAmountOverrideNotAllowed     = fmt.Errorf("%w: amount override is only allowed when settling a recharge", ErrValidation)
	ErrInvalidServiceConfig         = errors.New("invalid service config")

	// ErrWalletVersionConflict reports a lost optimistic-concurrency race on a wallet row.
	// Service retries the whole atomic unit when a store returns it.
	ErrWalletVersionConflict = errors.New("wallet version conflict")
)

// Stable category codes.
const (
	CategoryNotFound               = "not_found"
	CategoryDuplicateTransactionID = "duplicate_transaction_id"
	CategoryInvalidTransition      = "invalid_transition"
	CategoryInsufficientBalance    = "insufficient_balance"
	CategoryValidation             = "validation_error"
	CategoryInternal               = "internal"
)

// Category maps an error onto the caller-facing taxonomy. Anything outside it is internal.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CategoryValidation
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrDuplicateTransactionID):
		return CategoryDuplicateTransactionID
	case errors.Is(err, ErrInvalidTransition):
		return CategoryInvalidTransition
	case errors.Is(err, ErrInsufficientBalance):
		return CategoryInsufficientBalance
	default:
		return CategoryInternal
	}
}

// IsBusinessError reports whether err is an expected, caller-recoverable outcome.
func IsBusinessError(err error) bool {
	category := Category(err)
	return category != "" && category != CategoryInternal
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
