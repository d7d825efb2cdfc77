package ledger

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing ledger operation.
type OperationLog struct {
	Operation       string
	UserID          UserID
	TransactionID   TransactionID
	TransactionType TransactionType
	Amount          Points
	Attempts        int
	Status          string
	Error           error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
// Repeated use fans entries out to every logger.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		if logger != nil {
			service.loggers = append(service.loggers, logger)
		}
	}
}

// WithNotifier wires the sink informed after committed balance changes.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithFeeSchedule wires the cashout fee collaborator.
func WithFeeSchedule(fees FeeSchedule) ServiceOption {
	return func(service *Service) {
		service.fees = fees
	}
}

// WithMaxAttempts bounds optimistic retries of one atomic unit.
func WithMaxAttempts(maxAttempts int) ServiceOption {
	return func(service *Service) {
		service.maxAttempts = maxAttempts
	}
}

// WithIDGenerator replaces the internal transaction id generator.
func WithIDGenerator(generator func(prefix string, nowUnixUTC int64) string) ServiceOption {
	return func(service *Service) {
		service.idFn = generator
	}
}
