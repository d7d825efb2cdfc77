package oplog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	userIDValue        = "user-1"
	transactionIDValue = "ext-1"
)

func TestLogOperationLevels(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name         string
		err          error
		wantLevel    zapcore.Level
		wantCategory string
	}{
		{name: "success", wantLevel: zapcore.InfoLevel},
		{name: "duplicate", err: ledger.ErrDuplicateTransactionID, wantLevel: zapcore.WarnLevel, wantCategory: ledger.CategoryDuplicateTransactionID},
		{name: "insufficient", err: fmt.Errorf("purchase: %w", ledger.ErrInsufficientBalance), wantLevel: zapcore.WarnLevel, wantCategory: ledger.CategoryInsufficientBalance},
		{name: "validation", err: ledger.ErrInvalidAmount, wantLevel: zapcore.WarnLevel, wantCategory: ledger.CategoryValidation},
		{name: "internal", err: errors.New("connection reset"), wantLevel: zapcore.ErrorLevel, wantCategory: ledger.CategoryInternal},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			core, logs := observer.New(zapcore.DebugLevel)
			logger := New(zap.New(core))
			userID, _ := ledger.NewUserID(userIDValue)
			transactionID, _ := ledger.NewTransactionID(transactionIDValue)
			logger.LogOperation(context.Background(), ledger.OperationLog{
				Operation:       "recharge",
				UserID:          userID,
				TransactionID:   transactionID,
				TransactionType: ledger.TransactionRecharge,
				Amount:          100,
				Attempts:        1,
				Status:          "ok",
				Error:           testCase.err,
			})
			entries := logs.All()
			if len(entries) != 1 {
				test.Fatalf("expected one entry, got %d", len(entries))
			}
			entry := entries[0]
			if entry.Level != testCase.wantLevel {
				test.Fatalf("expected level %s, got %s", testCase.wantLevel, entry.Level)
			}
			fields := entry.ContextMap()
			if fields["operation"] != "recharge" || fields["user_id"] != userIDValue || fields["transaction_id"] != transactionIDValue {
				test.Fatalf("unexpected fields %v", fields)
			}
			if fields["amount"] != int64(100) || fields["transaction_type"] != "recharge" {
				test.Fatalf("unexpected amount fields %v", fields)
			}
			category, hasCategory := fields["category"]
			if testCase.wantCategory == "" && hasCategory {
				test.Fatalf("unexpected category %v", category)
			}
			if testCase.wantCategory != "" && category != testCase.wantCategory {
				test.Fatalf("expected category %s, got %v", testCase.wantCategory, category)
			}
		})
	}
}

func TestLogOperationSkipsDisabledLevels(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.WarnLevel)
	logger := New(zap.New(core))
	logger.LogOperation(context.Background(), ledger.OperationLog{Operation: "settle", Status: "ok"})
	if logs.Len() != 0 {
		test.Fatalf("info entry should be filtered, got %d", logs.Len())
	}
	New(nil).LogOperation(context.Background(), ledger.OperationLog{Operation: "settle"})
}
