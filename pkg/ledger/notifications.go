package ledger

import (
	"fmt"
	"strconv"
)

const (
	notificationKeyTransactionID = "transactionId"
	notificationKeyType          = "type"
	notificationKeyStatus        = "status"
	notificationKeyAmount        = "amount"
	notificationKeyCounterparty  = "otherUserId"
	notificationKeyPostID        = "postId"
)

func transactionNotificationData(transaction Transaction) map[string]string {
	return map[string]string{
		notificationKeyTransactionID: transaction.ID.String(),
		notificationKeyType:          transaction.Type.String(),
		notificationKeyStatus:        transaction.Status.String(),
		notificationKeyAmount:        strconv.FormatInt(transaction.Amount.Int64(), 10),
	}
}

func settlementNotification(transaction Transaction, kind transitionKind) Notification {
	notification := Notification{
		UserID: transaction.UserID,
		Data:   transactionNotificationData(transaction),
	}
	switch {
	case kind == transitionRefund:
		notification.Title = "Cashout refunded"
		notification.Message = fmt.Sprintf("%d points were returned to your wallet.", transaction.Amount.Abs())
	case kind == transitionCancel:
		notification.Title = "Transaction cancelled"
		notification.Message = fmt.Sprintf("Your %s transaction was cancelled.", transaction.Type)
	case transaction.Type == TransactionRecharge:
		notification.Title = "Recharge successful"
		notification.Message = fmt.Sprintf("%d points were added to your wallet.", transaction.Amount.Abs())
	case transaction.Type == TransactionCashout:
		notification.Title = "Cashout completed"
		notification.Message = fmt.Sprintf("%d points were cashed out.", transaction.Amount.Abs())
	default:
		notification.Title = "Transaction completed"
		notification.Message = fmt.Sprintf("Your %s transaction of %d points was completed.", transaction.Type, transaction.Amount)
	}
	return notification
}

func transferNotifications(result TransferResult, postID string) []Notification {
	debitData := transactionNotificationData(result.Debit)
	debitData[notificationKeyCounterparty] = result.Credit.UserID.String()
	creditData := transactionNotificationData(result.Credit)
	creditData[notificationKeyCounterparty] = result.Debit.UserID.String()
	if postID != "" {
		debitData[notificationKeyPostID] = postID
		creditData[notificationKeyPostID] = postID
	}
	debitTitle, creditTitle := "Points sent", "Points received"
	if result.Debit.Type == TransactionPostPayment {
		debitTitle, creditTitle = "Purchase completed", "Post sold"
	}
	return []Notification{
		{
			UserID:  result.Debit.UserID,
			Title:   debitTitle,
			Message: fmt.Sprintf("%d points were deducted from your wallet.", result.Debit.Amount.Abs()),
			Data:    debitData,
		},
		{
			UserID:  result.Credit.UserID,
			Title:   creditTitle,
			Message: fmt.Sprintf("%d points were added to your wallet.", result.Credit.Amount.Abs()),
			Data:    creditData,
		},
	}
}

func adjustmentNotification(transaction Transaction) Notification {
	direction := "added to"
	if transaction.Amount < 0 {
		direction = "deducted from"
	}
	return Notification{
		UserID:  transaction.UserID,
		Title:   "Balance adjusted",
		Message: fmt.Sprintf("%d points were %s your wallet by an administrator.", transaction.Amount.Abs(), direction),
		Data:    transactionNotificationData(transaction),
	}
}

func notificationTransactionID(notification Notification) TransactionID {
	transactionID, err := NewTransactionID(notification.Data[notificationKeyTransactionID])
	if err != nil {
		return TransactionID{}
	}
	return transactionID
}
