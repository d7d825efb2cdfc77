package ledger

import (
	"fmt"
	"math"
)

type totalsBucket int

const (
	bucketEarnings totalsBucket = iota + 1
	bucketSpent
	bucketCashouts
	bucketCashoutRefund
)

// bucketFor picks the running total a settled amount of transactionType accrues to.
func bucketFor(transactionType TransactionType, amount Points) totalsBucket {
	if transactionType == TransactionCashout {
		return bucketCashouts
	}
	if amount < 0 {
		return bucketSpent
	}
	return bucketEarnings
}

// applyDelta returns the wallet after adding amount to its balance.
// Debits that would leave a negative balance fail with ErrInsufficientBalance.
// Credits that would overflow the balance or a running total fail with ErrInvalidAmount.
func applyDelta(wallet Wallet, amount Points, bucket totalsBucket, nowUnixUTC int64) (Wallet, error) {
	if amount == math.MinInt64 {
		return Wallet{}, fmt.Errorf("%w: amount %d out of range", ErrInvalidAmount, amount)
	}
	if amount > 0 && !fitsAdd(wallet.Balance, amount) {
		return Wallet{}, fmt.Errorf("%w: credit %d overflows balance %d", ErrInvalidAmount, amount, wallet.Balance)
	}
	next := wallet
	next.Balance = wallet.Balance + amount
	if amount < 0 && next.Balance < 0 {
		return Wallet{}, fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientBalance, wallet.Balance, amount.Abs())
	}
	var total *Points
	switch bucket {
	case bucketEarnings:
		total = &next.TotalEarnings
	case bucketSpent:
		total = &next.TotalSpent
	case bucketCashouts:
		total = &next.TotalCashouts
	case bucketCashoutRefund:
		next.TotalCashouts -= amount.Abs()
		if next.TotalCashouts < 0 {
			next.TotalCashouts = 0
		}
	}
	if total != nil {
		if !fitsAdd(*total, amount.Abs()) {
			return Wallet{}, fmt.Errorf("%w: amount %d overflows running total %d", ErrInvalidAmount, amount.Abs(), *total)
		}
		*total += amount.Abs()
	}
	next.Version = wallet.Version + 1
	next.UpdatedUnixUTC = nowUnixUTC
	return next, nil
}

// fitsAdd reports whether base+delta stays within int64 for a non-negative delta.
func fitsAdd(base Points, delta Points) bool {
	return base <= math.MaxInt64-delta
}
