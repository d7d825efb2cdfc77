// Package oplog writes ledger operation records to zap.
package oplog

import (
	"context"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const messageOperation = "ledger operation"

// Logger implements ledger.OperationLogger.
type Logger struct {
	logger *zap.Logger
}

// New wraps logger. A nil logger discards entries.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation logs successes at info, business rejections at warn and everything else at error.
func (operationLogger *Logger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	level := levelFor(entry.Error)
	checked := operationLogger.logger.Check(level, messageOperation)
	if checked == nil {
		return
	}
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if !entry.UserID.IsZero() {
		fields = append(fields, zap.String("user_id", entry.UserID.String()))
	}
	if !entry.TransactionID.IsZero() {
		fields = append(fields, zap.String("transaction_id", entry.TransactionID.String()))
	}
	if entry.TransactionType != "" {
		fields = append(fields, zap.String("transaction_type", entry.TransactionType.String()))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount.Int64()))
	}
	if entry.Attempts > 0 {
		fields = append(fields, zap.Int("attempts", entry.Attempts))
	}
	if entry.Error != nil {
		fields = append(fields, zap.String("category", ledger.Category(entry.Error)), zap.Error(entry.Error))
	}
	checked.Write(fields...)
}

func levelFor(err error) zapcore.Level {
	switch {
	case err == nil:
		return zapcore.InfoLevel
	case ledger.IsBusinessError(err):
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
