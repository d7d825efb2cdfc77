package ledger

import (
	"context"
	"fmt"
)

// Wallet returns the stored wallet for userID.
func (service *Service) Wallet(ctx context.Context, userID UserID) (Wallet, error) {
	if userID.IsZero() {
		return Wallet{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return service.store.GetWallet(ctx, userID)
}

// Transaction returns a single transaction record.
func (service *Service) Transaction(ctx context.Context, transactionID TransactionID) (Transaction, error) {
	if transactionID.IsZero() {
		return Transaction{}, fmt.Errorf("%w: empty value", ErrInvalidTransactionID)
	}
	return service.store.GetTransaction(ctx, transactionID)
}

// ListTransactions lists transactions newest first.
func (service *Service) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	limit, err := normalizeListLimit(filter.Limit)
	if err != nil {
		return nil, err
	}
	filter.Limit = limit
	if filter.BeforeUnixUTC <= 0 {
		filter.BeforeUnixUTC = service.nowFn() + 1
	}
	return service.store.ListTransactions(ctx, filter)
}

// Statistics aggregates wallets and the transaction log. It is not linearizable with concurrent writes.
func (service *Service) Statistics(ctx context.Context) (Statistics, error) {
	nowUnixUTC := service.nowFn()
	walletTotals, err := service.store.WalletTotals(ctx)
	if err != nil {
		return Statistics{}, err
	}
	counts, err := service.store.CountTransactions(ctx, startOfDayUnixUTC(nowUnixUTC))
	if err != nil {
		return Statistics{}, err
	}
	return Statistics{
		WalletCount:      walletTotals.WalletCount,
		TotalBalance:     walletTotals.TotalBalance,
		Transactions:     counts,
		GeneratedUnixUTC: nowUnixUTC,
	}, nil
}

// VerifyWallet recomputes the balance of userID from its settled transactions.
func (service *Service) VerifyWallet(ctx context.Context, userID UserID) (BalanceReport, error) {
	wallet, err := service.Wallet(ctx, userID)
	if err != nil {
		return BalanceReport{}, err
	}
	computed, err := service.store.SumSettledAmounts(ctx, userID)
	if err != nil {
		return BalanceReport{}, err
	}
	return BalanceReport{
		UserID:     userID,
		Stored:     wallet.Balance,
		Computed:   computed,
		Consistent: wallet.Balance == computed,
	}, nil
}

func normalizeListLimit(limit int) (int, error) {
	if limit <= 0 {
		return defaultListLimit, nil
	}
	if limit > maxListLimit {
		return 0, fmt.Errorf("%w: limit exceeds maximum: %d > %d", ErrInvalidListLimit, limit, maxListLimit)
	}
	return limit, nil
}

func startOfDayUnixUTC(nowUnixUTC int64) int64 {
	return nowUnixUTC - nowUnixUTC%secondsPerDay
}

// NewTransactionCounts returns counts with initialized maps.
func NewTransactionCounts() TransactionCounts {
	return TransactionCounts{
		ByStatus: map[TransactionStatus]int64{},
		ByType:   map[TransactionType]int64{},
	}
}
