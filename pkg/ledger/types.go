package ledger

import (
	"fmt"
	"strings"
)

// Points is the platform currency. One point equals one external currency unit.
type Points int64

// MaxPoints bounds the magnitude of any single movement.
const MaxPoints Points = 1_000_000_000_000

// Int64 returns the raw value.
func (points Points) Int64() int64 {
	return int64(points)
}

// Abs returns the absolute value.
func (points Points) Abs() Points {
	if points < 0 {
		return -points
	}
	return points
}

// NewPositivePoints validates an amount and ensures it is strictly positive.
func NewPositivePoints(raw int64) (Points, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if err := checkMagnitude(Points(raw)); err != nil {
		return 0, err
	}
	return Points(raw), nil
}

// NewNonZeroPoints validates a signed amount and rejects zero.
func NewNonZeroPoints(raw int64) (Points, error) {
	if raw == 0 {
		return 0, fmt.Errorf("%w: must not be zero", ErrInvalidAmount)
	}
	if err := checkMagnitude(Points(raw)); err != nil {
		return 0, err
	}
	return Points(raw), nil
}

func checkMagnitude(points Points) error {
	if points > MaxPoints || points < -MaxPoints {
		return fmt.Errorf("%w: magnitude exceeds %d", ErrInvalidAmount, MaxPoints)
	}
	return nil
}

// UserID identifies a wallet owner.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// IsZero reports whether the id was never initialized.
func (id UserID) IsZero() bool {
	return id.value == ""
}

// TransactionID identifies a transaction, either supplied by a payment provider or generated internally.
type TransactionID struct {
	value string
}

// NewTransactionID validates and normalizes a transaction id.
func NewTransactionID(raw string) (TransactionID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return TransactionID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TransactionID) String() string {
	return id.value
}

// IsZero reports whether the id was never initialized.
func (id TransactionID) IsZero() bool {
	return id.value == ""
}

// TransactionType enumerates transaction kinds.
type TransactionType string

const (
	TransactionRecharge        TransactionType = "recharge"
	TransactionPostPayment     TransactionType = "post_payment"
	TransactionPostEarning     TransactionType = "post_earning"
	TransactionCashout         TransactionType = "cashout"
	TransactionAdminAdjustment TransactionType = "admin_adjustment"
	TransactionTransfer        TransactionType = "transfer"
)

// ParseTransactionType validates a stored or requested transaction type.
func ParseTransactionType(raw string) (TransactionType, error) {
	switch TransactionType(strings.TrimSpace(raw)) {
	case TransactionRecharge:
		return TransactionRecharge, nil
	case TransactionPostPayment:
		return TransactionPostPayment, nil
	case TransactionPostEarning:
		return TransactionPostEarning, nil
	case TransactionCashout:
		return TransactionCashout, nil
	case TransactionAdminAdjustment:
		return TransactionAdminAdjustment, nil
	case TransactionTransfer:
		return TransactionTransfer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTransactionType, raw)
	}
}

// String returns the type name.
func (transactionType TransactionType) String() string {
	return string(transactionType)
}

// signed applies the fixed sign convention of the type to amount.
func (transactionType TransactionType) signed(amount Points) Points {
	switch transactionType {
	case TransactionRecharge, TransactionPostEarning:
		return amount.Abs()
	case TransactionPostPayment, TransactionCashout:
		return -amount.Abs()
	default:
		return amount
	}
}

// TransactionStatus defines the transaction lifecycle.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusSuccessful TransactionStatus = "successful"
	StatusCompleted  TransactionStatus = "completed"
	StatusCancelled  TransactionStatus = "cancelled"
)

// ParseTransactionStatus validates a stored or requested status.
func ParseTransactionStatus(raw string) (TransactionStatus, error) {
	switch TransactionStatus(strings.TrimSpace(raw)) {
	case StatusPending:
		return StatusPending, nil
	case StatusSuccessful:
		return StatusSuccessful, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// String returns the status name.
func (status TransactionStatus) String() string {
	return string(status)
}

// IsSettled reports whether transactions in this status count towards the balance.
func (status TransactionStatus) IsSettled() bool {
	return status == StatusSuccessful || status == StatusCompleted
}

// Wallet is the per-user balance record.
type Wallet struct {
	UserID         UserID
	Balance        Points
	TotalEarnings  Points
	TotalSpent     Points
	TotalCashouts  Points
	Version        int64
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// NewWallet returns a zeroed wallet for userID.
func NewWallet(userID UserID, createdUnixUTC int64) Wallet {
	return Wallet{
		UserID:         userID,
		CreatedUnixUTC: createdUnixUTC,
		UpdatedUnixUTC: createdUnixUTC,
	}
}

// Transaction is a single ledger record. It is mutated only through status transitions.
type Transaction struct {
	ID             TransactionID
	UserID         UserID
	Type           TransactionType
	Amount         Points
	Status         TransactionStatus
	Description    string
	RelatedPostID  string
	RelatedUserID  string
	Metadata       Metadata
	CreatedUnixUTC int64
	UpdatedUnixUTC int64
}

// StatusUpdate describes a conditional status transition persisted by a Store.
// The update only applies while the stored status still equals From.
type StatusUpdate struct {
	TransactionID  TransactionID
	From           TransactionStatus
	To             TransactionStatus
	Amount         Points
	UpdatedUnixUTC int64
}

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	UserID        UserID
	Type          TransactionType
	Status        TransactionStatus
	BeforeUnixUTC int64
	Limit         int
}

// WalletTotals aggregates every wallet.
type WalletTotals struct {
	WalletCount  int64
	TotalBalance Points
}

// TransactionCounts aggregates the transaction log.
type TransactionCounts struct {
	Total    int64
	Today    int64
	ByStatus map[TransactionStatus]int64
	ByType   map[TransactionType]int64
}

// Statistics is the reporting snapshot returned by Service.Statistics.
type Statistics struct {
	WalletCount      int64
	TotalBalance     Points
	Transactions     TransactionCounts
	GeneratedUnixUTC int64
}

// BalanceReport compares the stored balance with the sum of settled transactions.
type BalanceReport struct {
	UserID     UserID
	Stored     Points
	Computed   Points
	Consistent bool
}
