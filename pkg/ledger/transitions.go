package ledger

import "fmt"

type transitionKind int

const (
	transitionSettle transitionKind = iota + 1
	transitionCancel
	transitionRefund
)

type transitionKey struct {
	from TransactionStatus
	to   TransactionStatus
}

// transitionTable lists every legal status change apart from the cashout refund.
var transitionTable = map[transitionKey]transitionKind{
	{from: StatusPending, to: StatusSuccessful}: transitionSettle,
	{from: StatusPending, to: StatusCompleted}:  transitionSettle,
	{from: StatusPending, to: StatusCancelled}:  transitionCancel,
}

// resolveTransition decides what moving a transaction of transactionType from one status to another means.
// A settled cashout may be cancelled once, which refunds the debited points.
func resolveTransition(transactionType TransactionType, from TransactionStatus, to TransactionStatus) (transitionKind, error) {
	if transactionType == TransactionCashout && from.IsSettled() && to == StatusCancelled {
		return transitionRefund, nil
	}
	kind, ok := transitionTable[transitionKey{from: from, to: to}]
	if !ok {
		return 0, fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, transactionType, from, to)
	}
	return kind, nil
}

// CanTransition reports whether a transaction of transactionType may move from one status to another.
func CanTransition(transactionType TransactionType, from TransactionStatus, to TransactionStatus) bool {
	_, err := resolveTransition(transactionType, from, to)
	return err == nil
}

// ParseSettlementOutcome validates a requested settlement outcome.
func ParseSettlementOutcome(raw string) (TransactionStatus, error) {
	status, err := ParseTransactionStatus(raw)
	if err != nil {
		return "", err
	}
	if status == StatusPending {
		return "", fmt.Errorf("%w: pending is not an outcome", ErrInvalidStatus)
	}
	return status, nil
}
