package ledger

import "context"

// Notification is delivered to the notification emitter after a committed ledger change.
type Notification struct {
	UserID  UserID
	Title   string
	Message string
	Data    map[string]string
}

// Notifier is the fire-and-forget notification emitter. Its failures never affect ledger outcomes.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// CashoutFee is the fee quoted for a cashout.
type CashoutFee struct {
	Percent string
	Amount  Points
}

// FeeSchedule quotes cashout fees. It is owned by the settings collaborator.
type FeeSchedule interface {
	CashoutFee(ctx context.Context, amount Points) (CashoutFee, error)
}

type zeroFeeSchedule struct{}

func (zeroFeeSchedule) CashoutFee(context.Context, Points) (CashoutFee, error) {
	return CashoutFee{Percent: "0", Amount: 0}, nil
}

// Store is the persistence contract used by Service.
// Implementations must make WithTx all-or-nothing and must reject UpdateWallet
// with ErrWalletVersionConflict when the stored version differs from previousVersion.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	EnsureWallet(ctx context.Context, userID UserID, createdUnixUTC int64) (Wallet, error)
	GetWallet(ctx context.Context, userID UserID) (Wallet, error)
	UpdateWallet(ctx context.Context, previousVersion int64, wallet Wallet) error
	TransactionExists(ctx context.Context, transactionID TransactionID) (bool, error)
	InsertTransaction(ctx context.Context, transaction Transaction) error
	GetTransaction(ctx context.Context, transactionID TransactionID) (Transaction, error)
	UpdateTransactionStatus(ctx context.Context, update StatusUpdate) error
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	SumSettledAmounts(ctx context.Context, userID UserID) (Points, error)
	WalletTotals(ctx context.Context) (WalletTotals, error)
	CountTransactions(ctx context.Context, sinceUnixUTC int64) (TransactionCounts, error)
}
