package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Service is the ledger engine. Every state-changing operation runs as one Store transaction
// spanning the transaction log write and the wallet update(s), retried on wallet version conflicts.
type Service struct {
	store       Store
	nowFn       func() int64
	loggers     []OperationLogger
	notifier    Notifier
	fees        FeeSchedule
	idFn        func(prefix string, nowUnixUTC int64) string
	maxAttempts int
}

// NewService wires a Service.
func NewService(store Store, now func() int64, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:       store,
		nowFn:       now,
		fees:        zeroFeeSchedule{},
		idFn:        defaultTransactionID,
		maxAttempts: defaultMaxAttempts,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	if service.maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: max attempts must be positive", ErrInvalidServiceConfig)
	}
	if service.fees == nil {
		return nil, fmt.Errorf("%w: fee schedule is nil", ErrInvalidServiceConfig)
	}
	if service.idFn == nil {
		return nil, fmt.Errorf("%w: id generator is nil", ErrInvalidServiceConfig)
	}
	return service, nil
}

// EnsureWallet creates the wallet for userID if it does not exist yet and returns it.
func (service *Service) EnsureWallet(ctx context.Context, userID UserID) (Wallet, error) {
	var wallet Wallet
	var validationError error
	if userID.IsZero() {
		validationError = fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	attempts, operationError := service.runAtomic(ctx, validationError, func(ctx context.Context, transactionStore Store) error {
		ensured, err := transactionStore.EnsureWallet(ctx, userID, service.nowFn())
		if err != nil {
			return err
		}
		wallet = ensured
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation: operationEnsureWallet,
		UserID:    userID,
		Attempts:  attempts,
		Error:     operationError,
	})
	if operationError != nil {
		return Wallet{}, operationError
	}
	return wallet, nil
}

// Recharge records a pending recharge keyed by the payment provider's transaction id.
// The stored amount stays zero and the balance is untouched until the recharge settles.
func (service *Service) Recharge(ctx context.Context, request RechargeRequest) (Transaction, error) {
	var recorded Transaction
	transactionID, validationError := request.validate()
	attempts, operationError := service.runAtomic(ctx, validationError, func(ctx context.Context, transactionStore Store) error {
		exists, err := transactionStore.TransactionExists(ctx, transactionID)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTransactionID, transactionID.String())
		}
		nowUnixUTC := service.nowFn()
		if _, err := transactionStore.EnsureWallet(ctx, request.UserID, nowUnixUTC); err != nil {
			return err
		}
		transaction := Transaction{
			ID:          transactionID,
			UserID:      request.UserID,
			Type:        TransactionRecharge,
			Amount:      0,
			Status:      StatusPending,
			Description: request.Description,
			Metadata: RechargeMetadata{
				OriginalAmount:   request.Amount,
				PaymentMethodRef: request.PaymentMethodRef,
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
		Operation:       operationRecharge,
		UserID:          request.UserID,
		TransactionID:   transactionID,
		TransactionType: TransactionRecharge,
		Amount:          request.Amount,
		Attempts:        attempts,
		Error:           operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	return recorded, nil
}

// SettleTransaction moves a pending transaction to its outcome and applies the balance effect.
// A settled cashout cancelled here is refunded to the wallet.
func (service *Service) SettleTransaction(ctx context.Context, request SettleRequest) (Transaction, error) {
	var (
		settled Transaction
		kind    transitionKind
	)
	validationError := request.validate()
	attempts, operationError := service.runAtomic(ctx, validationError, func(ctx context.Context, transactionStore Store) error {
		kind = 0
		current, err := transactionStore.GetTransaction(ctx, request.TransactionID)
		if err != nil {
			return err
		}
		settled = current
		kind, err = resolveTransition(current.Type, current.Status, request.Outcome)
		if err != nil {
			return err
		}
		if request.AmountOverride != nil && (kind != transitionSettle || current.Type != TransactionRecharge) {
			return ErrAmountOverrideNotAllowed
		}
		nowUnixUTC := service.nowFn()
		update := StatusUpdate{
			TransactionID:  current.ID,
			From:           current.Status,
			To:             request.Outcome,
			UpdatedUnixUTC: nowUnixUTC,
		}
		switch kind {
		case transitionSettle:
			amount, err := settlementAmount(current, request.AmountOverride)
			if err != nil {
				return err
			}
			signed := current.Type.signed(amount)
			if err := service.applyWalletDelta(ctx, transactionStore, current.UserID, signed, bucketFor(current.Type, signed), nowUnixUTC); err != nil {
				return err
			}
			update.Amount = signed
		case transitionCancel:
			update.Amount = 0
		case transitionRefund:
			if err := service.applyWalletDelta(ctx, transactionStore, current.UserID, current.Amount.Abs(), bucketCashoutRefund, nowUnixUTC); err != nil {
				return err
			}
			update.Amount = current.Amount
		}
		if err := transactionStore.UpdateTransactionStatus(ctx, update); err != nil {
			return err
		}
		settled.Status = update.To
		settled.Amount = update.Amount
		settled.UpdatedUnixUTC = nowUnixUTC
		return nil
	})
	operation := operationSettle
	if kind == transitionRefund {
		operation = operationRefund
	}
	service.logOperation(ctx, OperationLog{
		Operation:       operation,
		UserID:          settled.UserID,
		TransactionID:   request.TransactionID,
		TransactionType: settled.Type,
		Amount:          settled.Amount,
		Attempts:        attempts,
		Error:           operationError,
	})
	if operationError != nil {
		return Transaction{}, operationError
	}
	service.notify(ctx, settlementNotification(settled, kind))
	return settled, nil
}

// applyWalletDelta ensures the wallet exists, applies amount, and writes it back conditioned on its version.
func (service *Service) applyWalletDelta(ctx context.Context, transactionStore Store, userID UserID, amount Points, bucket totalsBucket, nowUnixUTC int64) error {
	wallet, err := transactionStore.EnsureWallet(ctx, userID, nowUnixUTC)
	if err != nil {
		return err
	}
	next, err := applyDelta(wallet, amount, bucket, nowUnixUTC)
	if err != nil {
		return err
	}
	return transactionStore.UpdateWallet(ctx, wallet.Version, next)
}

// runAtomic executes fn in a store transaction, retrying the whole unit when a wallet write loses a race.
// A non-nil validationError short-circuits without touching the store.
func (service *Service) runAtomic(ctx context.Context, validationError error, fn func(ctx context.Context, transactionStore Store) error) (int, error) {
	if validationError != nil {
		return 0, validationError
	}
	var lastConflict error
	for attempt := 1; attempt <= service.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		err := service.store.WithTx(ctx, fn)
		if !errors.Is(err, ErrWalletVersionConflict) {
			return attempt, err
		}
		lastConflict = err
	}
	return service.maxAttempts, WrapError(errorOperationService, errorSubjectWallet, errorCodeRetryExhausted, lastConflict)
}

func (service *Service) newTransactionID(prefix string, nowUnixUTC int64) (TransactionID, error) {
	return NewTransactionID(service.idFn(prefix, nowUnixUTC))
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if len(service.loggers) == 0 {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	for _, logger := range service.loggers {
		logger.LogOperation(ctx, entry)
	}
}

func (service *Service) notify(ctx context.Context, notification Notification) {
	if service.notifier == nil || notification.UserID.IsZero() {
		return
	}
	if err := service.notifier.Notify(context.WithoutCancel(ctx), notification); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation:     operationNotify,
			UserID:        notification.UserID,
			TransactionID: notificationTransactionID(notification),
			Error:         err,
		})
	}
}

func settlementAmount(transaction Transaction, override *Points) (Points, error) {
	if override != nil {
		return *override, nil
	}
	if transaction.Metadata == nil {
		return 0, fmt.Errorf("%w: %s has no pending amount", ErrInvalidMetadata, transaction.ID.String())
	}
	amount, ok := transaction.Metadata.PendingAmount()
	if !ok {
		return 0, fmt.Errorf("%w: %s has no pending amount", ErrInvalidMetadata, transaction.ID.String())
	}
	return amount, nil
}

func defaultTransactionID(prefix string, nowUnixUTC int64) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:internalIDSuffixLength]
	return prefix + internalIDDelimiter + strconv.FormatInt(nowUnixUTC, 10) + internalIDDelimiter + suffix
}
