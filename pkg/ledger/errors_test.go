package ledger

import (
	"errors"
	"fmt"
	"testing"
)

const (
	operationName    = "store"
	subjectName      = "wallet"
	codeName         = "update"
	baseErrorMessage = "base error"
)

func TestOperationErrorFormatting(test *testing.T) {
	test.Parallel()
	baseError := errors.New(baseErrorMessage)
	wrappedError := WrapError(operationName, subjectName, codeName, baseError)
	if wrappedError == nil {
		test.Fatalf("expected wrapped error")
	}
	expected := operationName + "." + subjectName + "." + codeName + ": " + baseErrorMessage
	if wrappedError.Error() != expected {
		test.Fatalf("expected %q, got %q", expected, wrappedError.Error())
	}
	var operationError OperationError
	if !errors.As(wrappedError, &operationError) || operationError.Code() != codeName {
		test.Fatalf("expected OperationError with code %q", codeName)
	}
}

func TestWrapErrorNil(test *testing.T) {
	test.Parallel()
	if WrapError(operationName, subjectName, codeName, nil) != nil {
		test.Fatalf("expected nil wrapped error")
	}
}

func TestCategoryTaxonomyIsDistinct(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		err  error
		want string
	}{
		{err: ErrWalletNotFound, want: CategoryNotFound},
		{err: ErrTransactionNotFound, want: CategoryNotFound},
		{err: WrapError(operationName, subjectName, codeName, fmt.Errorf("%w: ext-1", ErrDuplicateTransactionID)), want: CategoryDuplicateTransactionID},
		{err: fmt.Errorf("%w: pending -> pending", ErrInvalidTransition), want: CategoryInvalidTransition},
		{err: ErrInsufficientBalance, want: CategoryInsufficientBalance},
		{err: ErrMissingExternalTransactionID, want: CategoryValidation},
		{err: ErrAmountOverrideNotAllowed, want: CategoryValidation},
		{err: ErrWalletVersionConflict, want: CategoryInternal},
		{err: errors.New("connection refused"), want: CategoryInternal},
		{err: nil, want: ""},
	}
	for _, testCase := range testCases {
		if got := Category(testCase.err); got != testCase.want {
			test.Fatalf("Category(%v): expected %q, got %q", testCase.err, testCase.want, got)
		}
	}
	if IsBusinessError(errors.New("boom")) || !IsBusinessError(ErrInsufficientBalance) {
		test.Fatalf("unexpected IsBusinessError classification")
	}
}
