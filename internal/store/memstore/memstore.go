// Package memstore implements ledger.Store in memory. Transactions work on a private snapshot and
// commit only if every wallet they wrote still carries the version they read.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
)

const (
	errorOperationStore     = "store"
	errorSubjectWallet      = "wallet"
	errorSubjectTransaction = "transaction"
	errorCodeGet            = "get"
	errorCodeUpdate         = "update"
	errorCodeInsert         = "insert"
	errorCodeUpdateStatus   = "update_status"
	errorCodeCommit         = "commit"
)

type state struct {
	wallets      map[string]ledger.Wallet
	transactions map[string]ledger.Transaction
	order        []string
}

func newState() *state {
	return &state{
		wallets:      map[string]ledger.Wallet{},
		transactions: map[string]ledger.Transaction{},
	}
}

func (source *state) clone() *state {
	copied := &state{
		wallets:      make(map[string]ledger.Wallet, len(source.wallets)),
		transactions: make(map[string]ledger.Transaction, len(source.transactions)),
		order:        append([]string(nil), source.order...),
	}
	for key, wallet := range source.wallets {
		copied.wallets[key] = wallet
	}
	for key, transaction := range source.transactions {
		copied.transactions[key] = transaction
	}
	return copied
}

type walletWrite struct {
	existedInBase   bool
	expectedVersion int64
	updated         bool
}

type txState struct {
	snapshot      *state
	walletWrites  map[string]walletWrite
	inserted      []string
	statusUpdates map[string]ledger.TransactionStatus
}

// Store is an in-memory ledger.Store.
type Store struct {
	mu   *sync.Mutex
	base *state
	tx   *txState
}

// New returns an empty Store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, base: newState()}
}

// Ping always succeeds.
func (store *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// WithTx runs fn against a snapshot and commits its writes atomically.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.tx != nil {
		return fn(ctx, store)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	store.mu.Lock()
	transaction := &txState{
		snapshot:      store.base.clone(),
		walletWrites:  map[string]walletWrite{},
		statusUpdates: map[string]ledger.TransactionStatus{},
	}
	store.mu.Unlock()

	transactionStore := &Store{mu: store.mu, base: store.base, tx: transaction}
	if err := fn(ctx, transactionStore); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.commit(transaction)
}

func (store *Store) commit(transaction *txState) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	for userID, write := range transaction.walletWrites {
		current, exists := store.base.wallets[userID]
		switch {
		case write.existedInBase && (!exists || current.Version != write.expectedVersion):
			return wrapStoreError(errorSubjectWallet, errorCodeCommit, ledger.ErrWalletVersionConflict)
		case !write.existedInBase && exists && write.updated:
			return wrapStoreError(errorSubjectWallet, errorCodeCommit, ledger.ErrWalletVersionConflict)
		}
	}
	for _, transactionID := range transaction.inserted {
		if _, exists := store.base.transactions[transactionID]; exists {
			return wrapStoreError(errorSubjectTransaction, errorCodeCommit, ledger.ErrDuplicateTransactionID)
		}
	}
	for transactionID, from := range transaction.statusUpdates {
		current, exists := store.base.transactions[transactionID]
		if !exists || current.Status != from {
			return wrapStoreError(errorSubjectTransaction, errorCodeCommit, ledger.ErrInvalidTransition)
		}
	}

	for userID, write := range transaction.walletWrites {
		if _, exists := store.base.wallets[userID]; exists && !write.existedInBase && !write.updated {
			continue
		}
		store.base.wallets[userID] = transaction.snapshot.wallets[userID]
	}
	for _, transactionID := range transaction.inserted {
		store.base.transactions[transactionID] = transaction.snapshot.transactions[transactionID]
		store.base.order = append(store.base.order, transactionID)
	}
	for transactionID := range transaction.statusUpdates {
		store.base.transactions[transactionID] = transaction.snapshot.transactions[transactionID]
	}
	return nil
}

// view runs fn against the snapshot inside a transaction or the locked base state outside one.
func (store *Store) view(fn func(current *state) error) error {
	if store.tx != nil {
		return fn(store.tx.snapshot)
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	return fn(store.base)
}

func (store *Store) EnsureWallet(ctx context.Context, userID ledger.UserID, createdUnixUTC int64) (ledger.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Wallet{}, err
	}
	var wallet ledger.Wallet
	err := store.view(func(current *state) error {
		existing, exists := current.wallets[userID.String()]
		if exists {
			wallet = existing
			return nil
		}
		wallet = ledger.NewWallet(userID, createdUnixUTC)
		current.wallets[userID.String()] = wallet
		if store.tx != nil {
			store.tx.walletWrites[userID.String()] = walletWrite{existedInBase: false}
		}
		return nil
	})
	return wallet, err
}

func (store *Store) GetWallet(ctx context.Context, userID ledger.UserID) (ledger.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Wallet{}, err
	}
	var wallet ledger.Wallet
	err := store.view(func(current *state) error {
		existing, exists := current.wallets[userID.String()]
		if !exists {
			return wrapStoreError(errorSubjectWallet, errorCodeGet, ledger.ErrWalletNotFound)
		}
		wallet = existing
		return nil
	})
	return wallet, err
}

func (store *Store) UpdateWallet(ctx context.Context, previousVersion int64, wallet ledger.Wallet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.view(func(current *state) error {
		key := wallet.UserID.String()
		existing, exists := current.wallets[key]
		if !exists {
			return wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrWalletNotFound)
		}
		if existing.Version != previousVersion {
			return wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrWalletVersionConflict)
		}
		next := wallet
		next.Version = previousVersion + 1
		next.CreatedUnixUTC = existing.CreatedUnixUTC
		current.wallets[key] = next
		if store.tx != nil {
			write, tracked := store.tx.walletWrites[key]
			if !tracked {
				write = walletWrite{existedInBase: true, expectedVersion: previousVersion}
			}
			write.updated = true
			store.tx.walletWrites[key] = write
		}
		return nil
	})
}

func (store *Store) TransactionExists(ctx context.Context, transactionID ledger.TransactionID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var exists bool
	err := store.view(func(current *state) error {
		_, exists = current.transactions[transactionID.String()]
		return nil
	})
	return exists, err
}

func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := ledger.EncodeMetadata(transaction.Type, transaction.Metadata); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return store.view(func(current *state) error {
		key := transaction.ID.String()
		if _, exists := current.transactions[key]; exists {
			return wrapStoreError(errorSubjectTransaction, errorCodeInsert, fmt.Errorf("%w: %s", ledger.ErrDuplicateTransactionID, key))
		}
		current.transactions[key] = transaction
		current.order = append(current.order, key)
		if store.tx != nil {
			store.tx.inserted = append(store.tx.inserted, key)
		}
		return nil
	})
}

func (store *Store) GetTransaction(ctx context.Context, transactionID ledger.TransactionID) (ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Transaction{}, err
	}
	var transaction ledger.Transaction
	err := store.view(func(current *state) error {
		existing, exists := current.transactions[transactionID.String()]
		if !exists {
			return wrapStoreError(errorSubjectTransaction, errorCodeGet, ledger.ErrTransactionNotFound)
		}
		transaction = existing
		return nil
	})
	return transaction, err
}

func (store *Store) UpdateTransactionStatus(ctx context.Context, update ledger.StatusUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.view(func(current *state) error {
		key := update.TransactionID.String()
		existing, exists := current.transactions[key]
		if !exists {
			return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, ledger.ErrTransactionNotFound)
		}
		if existing.Status != update.From {
			return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, fmt.Errorf("%w: stored status is %s", ledger.ErrInvalidTransition, existing.Status))
		}
		existing.Status = update.To
		existing.Amount = update.Amount
		existing.UpdatedUnixUTC = update.UpdatedUnixUTC
		current.transactions[key] = existing
		if store.tx != nil {
			if _, tracked := store.tx.statusUpdates[key]; !tracked && !store.insertedInTx(key) {
				store.tx.statusUpdates[key] = update.From
			}
		}
		return nil
	})
}

func (store *Store) insertedInTx(transactionID string) bool {
	for _, inserted := range store.tx.inserted {
		if inserted == transactionID {
			return true
		}
	}
	return false
}

func (store *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var transactions []ledger.Transaction
	err := store.view(func(current *state) error {
		for index := len(current.order) - 1; index >= 0; index-- {
			transaction := current.transactions[current.order[index]]
			if matchesFilter(transaction, filter) {
				transactions = append(transactions, transaction)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(transactions, func(left, right int) bool {
		return transactions[left].CreatedUnixUTC > transactions[right].CreatedUnixUTC
	})
	if filter.Limit > 0 && len(transactions) > filter.Limit {
		transactions = transactions[:filter.Limit]
	}
	return transactions, nil
}

func matchesFilter(transaction ledger.Transaction, filter ledger.TransactionFilter) bool {
	if !filter.UserID.IsZero() && transaction.UserID != filter.UserID {
		return false
	}
	if filter.Type != "" && transaction.Type != filter.Type {
		return false
	}
	if filter.Status != "" && transaction.Status != filter.Status {
		return false
	}
	if filter.BeforeUnixUTC > 0 && transaction.CreatedUnixUTC >= filter.BeforeUnixUTC {
		return false
	}
	return true
}

func (store *Store) SumSettledAmounts(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var total ledger.Points
	err := store.view(func(current *state) error {
		for _, transaction := range current.transactions {
			if transaction.UserID == userID && transaction.Status.IsSettled() {
				total += transaction.Amount
			}
		}
		return nil
	})
	return total, err
}

func (store *Store) WalletTotals(ctx context.Context) (ledger.WalletTotals, error) {
	if err := ctx.Err(); err != nil {
		return ledger.WalletTotals{}, err
	}
	var totals ledger.WalletTotals
	err := store.view(func(current *state) error {
		for _, wallet := range current.wallets {
			totals.WalletCount++
			totals.TotalBalance += wallet.Balance
		}
		return nil
	})
	return totals, err
}

func (store *Store) CountTransactions(ctx context.Context, sinceUnixUTC int64) (ledger.TransactionCounts, error) {
	if err := ctx.Err(); err != nil {
		return ledger.TransactionCounts{}, err
	}
	counts := ledger.NewTransactionCounts()
	err := store.view(func(current *state) error {
		for _, transaction := range current.transactions {
			counts.Total++
			counts.ByStatus[transaction.Status]++
			counts.ByType[transaction.Type]++
			if transaction.CreatedUnixUTC >= sinceUnixUTC {
				counts.Today++
			}
		}
		return nil
	})
	return counts, err
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}
