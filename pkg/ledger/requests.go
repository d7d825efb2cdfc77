package ledger

import (
	"fmt"
	"strings"
)

// RechargeRequest credits a wallet once the external payment it references settles.
type RechargeRequest struct {
	UserID                UserID
	Amount                Points
	Description           string
	ExternalTransactionID string
	PaymentMethodRef      string
}

func (request RechargeRequest) validate() (TransactionID, error) {
	if request.UserID.IsZero() {
		return TransactionID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if request.Amount <= 0 {
		return TransactionID{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if err := checkMagnitude(request.Amount); err != nil {
		return TransactionID{}, err
	}
	if strings.TrimSpace(request.ExternalTransactionID) == "" {
		return TransactionID{}, ErrMissingExternalTransactionID
	}
	return NewTransactionID(request.ExternalTransactionID)
}

// SettleRequest moves a transaction to a terminal status.
// AmountOverride replaces the requested amount of a pending recharge.
type SettleRequest struct {
	TransactionID  TransactionID
	Outcome        TransactionStatus
	AmountOverride *Points
}

func (request SettleRequest) validate() error {
	if request.TransactionID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	if _, err := ParseSettlementOutcome(request.Outcome.String()); err != nil {
		return err
	}
	if request.AmountOverride == nil {
		return nil
	}
	if *request.AmountOverride <= 0 {
		return fmt.Errorf("%w: override must be greater than zero", ErrInvalidAmount)
	}
	return checkMagnitude(*request.AmountOverride)
}

// CashoutRequest asks for points to be paid out. The wallet is debited when the cashout completes.
type CashoutRequest struct {
	UserID          UserID
	Amount          Points
	PayoutMethodRef string
	Description     string
}

func (request CashoutRequest) validate() error {
	if request.UserID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if request.Amount <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return checkMagnitude(request.Amount)
}

// PurchaseRequest pays for a post: the buyer is debited and the seller credited.
type PurchaseRequest struct {
	BuyerID     UserID
	SellerID    UserID
	Amount      Points
	PostID      string
	Description string
}

// TransferRequest moves points between two users.
type TransferRequest struct {
	FromUserID  UserID
	ToUserID    UserID
	Amount      Points
	Description string
}

// AdjustmentRequest applies an administrative signed correction.
type AdjustmentRequest struct {
	UserID UserID
	Amount Points
	Reason string
}

func (request AdjustmentRequest) validate() error {
	if request.UserID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if request.Amount == 0 {
		return fmt.Errorf("%w: must not be zero", ErrInvalidAmount)
	}
	return checkMagnitude(request.Amount)
}

// TransferResult holds both legs of a two-wallet movement.
type TransferResult struct {
	Debit  Transaction
	Credit Transaction
}

type transferLegs struct {
	operation    string
	fromUserID   UserID
	toUserID     UserID
	amount       Points
	debitType    TransactionType
	creditType   TransactionType
	debitPrefix  string
	creditPrefix string
	postID       string
	description  string
}

func (legs transferLegs) validate() error {
	if legs.fromUserID.IsZero() || legs.toUserID.IsZero() {
		return fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	if legs.fromUserID == legs.toUserID {
		return ErrSelfTransfer
	}
	if legs.amount <= 0 {
		return fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return checkMagnitude(legs.amount)
}
