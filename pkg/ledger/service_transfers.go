package ledger

import (
	"context"
	"errors"
	"fmt"
)

// Purchase debits the buyer and credits the seller for a post in one atomic unit.
// Both legs are recorded as completed transactions with internally generated ids.
func (service *Service) Purchase(ctx context.Context, request PurchaseRequest) (TransferResult, error) {
	return service.moveFunds(ctx, transferLegs{
		operation:    operationPurchase,
		fromUserID:   request.BuyerID,
		toUserID:     request.SellerID,
		amount:       request.Amount,
		debitType:    TransactionPostPayment,
		creditType:   TransactionPostEarning,
		debitPrefix:  internalIDPrefixPay,
		creditPrefix: internalIDPrefixEarn,
		postID:       request.PostID,
		description:  request.Description,
	})
}

// Transfer moves points from one user to another in one atomic unit.
func (service *Service) Transfer(ctx context.Context, request TransferRequest) (TransferResult, error) {
	return service.moveFunds(ctx, transferLegs{
		operation:    operationTransfer,
		fromUserID:   request.FromUserID,
		toUserID:     request.ToUserID,
		amount:       request.Amount,
		debitType:    TransactionTransfer,
		creditType:   TransactionTransfer,
		debitPrefix:  internalIDPrefixOut,
		creditPrefix: internalIDPrefixIn,
		description:  request.Description,
	})
}

func (service *Service) moveFunds(ctx context.Context, legs transferLegs) (TransferResult, error) {
	var result TransferResult
	attempts, operationError := service.runAtomic(ctx, legs.validate(), func(ctx context.Context, transactionStore Store) error {
		result = TransferResult{}
		sender, err := transactionStore.GetWallet(ctx, legs.fromUserID)
		if errors.Is(err, ErrWalletNotFound) {
			return fmt.Errorf("%w: %s has no wallet", ErrInsufficientBalance, legs.fromUserID.String())
		}
		if err != nil {
			return err
		}
		if sender.Balance < legs.amount {
			return fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientBalance, sender.Balance, legs.amount)
		}
		nowUnixUTC := service.nowFn()
		debitID, err := service.newTransactionID(legs.debitPrefix, nowUnixUTC)
		if err != nil {
			return err
		}
		creditID, err := service.newTransactionID(legs.creditPrefix, nowUnixUTC)
		if err != nil {
			return err
		}
		debit := Transaction{
			ID:            debitID,
			UserID:        legs.fromUserID,
			Type:          legs.debitType,
			Amount:        -legs.amount,
			Status:        StatusCompleted,
			Description:   legs.description,
			RelatedPostID: legs.postID,
			RelatedUserID: legs.toUserID.String(),
			Metadata: TransferMetadata{
				CounterpartyUserID: legs.toUserID.String(),
				CounterpartyTxID:   creditID.String(),
				PostID:             legs.postID,
			},
			CreatedUnixUTC: nowUnixUTC,
			UpdatedUnixUTC: nowUnixUTC,
		}
		credit := Transaction{
			ID:            creditID,
			UserID:        legs.toUserID,
			Type:          legs.creditType,
			Amount:        legs.amount,
			Status:        StatusCompleted,
			Description:   legs.description,
			RelatedPostID: legs.postID,
			RelatedUserID: legs.fromUserID.String(),
			Metadata: TransferMetadata{
				CounterpartyUserID: legs.fromUserID.String(),
				CounterpartyTxID:   debitID.String(),
				PostID:             legs.postID,
			},
			CreatedUnixUTC: nowUnixUTC,
			UpdatedUnixUTC: nowUnixUTC,
		}
		if err := transactionStore.InsertTransaction(ctx, debit); err != nil {
			return err
		}
		if err := service.applyWalletDelta(ctx, transactionStore, legs.fromUserID, debit.Amount, bucketSpent, nowUnixUTC); err != nil {
			return err
		}
		if err := transactionStore.InsertTransaction(ctx, credit); err != nil {
			return err
		}
		if err := service.applyWalletDelta(ctx, transactionStore, legs.toUserID, credit.Amount, bucketEarnings, nowUnixUTC); err != nil {
			return err
		}
		result = TransferResult{Debit: debit, Credit: credit}
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:       legs.operation,
		UserID:          legs.fromUserID,
		TransactionID:   result.Debit.ID,
		TransactionType: legs.debitType,
		Amount:          legs.amount,
		Attempts:        attempts,
		Error:           operationError,
	})
	if operationError != nil {
		return TransferResult{}, operationError
	}
	for _, notification := range transferNotifications(result, legs.postID) {
		service.notify(ctx, notification)
	}
	return result, nil
}

// AdjustBalance records a completed admin adjustment and applies it immediately.
// Negative adjustments are subject to the same no-negative-balance rule as any debit.
func (service *Service) AdjustBalance(ctx context.Context, request AdjustmentRequest) (Transaction, error) {
	var recorded Transaction
	attempts, operationError := service.runAtomic(ctx, request.validate(), func(ctx context.Context, transactionStore Store) error {
		recorded = Transaction{}
		nowUnixUTC := service.nowFn()
		transactionID, err := service.newTransactionID(internalIDPrefixAdjust, nowUnixUTC)
		if err != nil {
			return err
		}
		transaction := Transaction{
			ID:          transactionID,
			UserID:      request.UserID,
			Type:        TransactionAdminAdjustment,
			Amount:      request.Amount,
			Status:      StatusCompleted,
			Description: request.Reason,
			Metadata: AdjustmentMetadata{
				OriginalAmount: request.Amount,
				Reason:         request.Reason,
			},
			CreatedUnixUTC: nowUnixUTC,
			UpdatedUnixUTC: nowUnixUTC,
		}
		if err := service.applyWalletDelta(ctx, transactionStore, request.UserID, request.Amount, bucketFor(TransactionAdminAdjustment, request.Amount), nowUnixUTC); err != nil {
			return err
		}
		if err := transactionStore.InsertTransaction(ctx, transaction); err != nil {
			return err
		}
		recorded = transaction
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationAdjust,
		UserID:          request.UserID,
		TransactionID:   recorded.ID,
		TransactionType: TransactionAdminAdjustment,
		Amount:          request.Amount,
		Attempts:        attempts,
		Error:           operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	service.notify(ctx, adjustmentNotification(recorded))
	return recorded, nil
}

// RequestCashout records a pending cashout. The wallet is debited when the cashout is settled as completed.
func (service *Service) RequestCashout(ctx context.Context, request CashoutRequest) (Transaction, error) {
	var recorded Transaction
	validationError := request.validate()
	var fee CashoutFee
	if validationError == nil {
		quoted, err := service.fees.CashoutFee(ctx, request.Amount)
		if err != nil {
			validationError = fmt.Errorf("cashout fee: %w", err)
		}
		fee = quoted
	}
	if validationError == nil && (fee.Amount < 0 || fee.Amount >= request.Amount) {
		validationError = fmt.Errorf("%w: amount %d does not cover fee %d", ErrInvalidAmount, request.Amount, fee.Amount)
	}
	attempts, operationError := service.runAtomic(ctx, validationError, func(ctx context.Context, transactionStore Store) error {
		recorded = Transaction{}
		wallet, err := transactionStore.GetWallet(ctx, request.UserID)
		if errors.Is(err, ErrWalletNotFound) {
			return fmt.Errorf("%w: %s has no wallet", ErrInsufficientBalance, request.UserID.String())
		}
		if err != nil {
			return err
		}
		if wallet.Balance < request.Amount {
			return fmt.Errorf("%w: balance %d, cashout %d", ErrInsufficientBalance, wallet.Balance, request.Amount)
		}
		nowUnixUTC := service.nowFn()
		transactionID, err := service.newTransactionID(internalIDPrefixCash, nowUnixUTC)
		if err != nil {
			return err
		}
		transaction := Transaction{
			ID:          transactionID,
			UserID:      request.UserID,
			Type:        TransactionCashout,
			Amount:      0,
			Status:      StatusPending,
			Description: request.Description,
			Metadata: CashoutMetadata{
				OriginalAmount:  request.Amount,
				FeePercent:      fee.Percent,
				FeeAmount:       fee.Amount,
				NetAmount:       request.Amount - fee.Amount,
				PayoutMethodRef: request.PayoutMethodRef,
			},
			CreatedUnixUTC: nowUnixUTC,
			UpdatedUnixUTC: nowUnixUTC,
		}
		if err := transactionStore.InsertTransaction(ctx, transaction); err != nil {
			return err
		}
		recorded = transaction
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationCashoutRequest,
		UserID:          request.UserID,
		TransactionID:   recorded.ID,
		TransactionType: TransactionCashout,
		Amount:          request.Amount,
		Attempts:        attempts,
		Error:           operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return recorded, nil
}
