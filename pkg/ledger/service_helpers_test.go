package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MarkoPoloResearchLab/pointsledger/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
)

const (
	fixedNowUnixUTC = int64(1_700_000_000)

	buyerIDValue   = "buyer"
	sellerIDValue  = "seller"
	creatorIDValue = "creator"
)

var errInjected = errors.New("injected failure")

func fixedClock() int64 {
	return fixedNowUnixUTC
}

func mustNewService(test *testing.T, store ledger.Store, options ...ledger.ServiceOption) *ledger.Service {
	test.Helper()
	service, err := ledger.NewService(store, fixedClock, options...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return service
}

func mustUserID(test *testing.T, raw string) ledger.UserID {
	test.Helper()
	userID, err := ledger.NewUserID(raw)
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	return userID
}

func mustTransactionID(test *testing.T, raw string) ledger.TransactionID {
	test.Helper()
	transactionID, err := ledger.NewTransactionID(raw)
	if err != nil {
		test.Fatalf("transaction id: %v", err)
	}
	return transactionID
}

// mustFund recharges and settles amount points into userID under externalID.
func mustFund(test *testing.T, service *ledger.Service, userID ledger.UserID, amount ledger.Points, externalID string) {
	test.Helper()
	ctx := context.Background()
	if _, err := service.Recharge(ctx, ledger.RechargeRequest{
		UserID:                userID,
		Amount:                amount,
		ExternalTransactionID: externalID,
	}); err != nil {
		test.Fatalf("recharge %s: %v", externalID, err)
	}
	if _, err := service.SettleTransaction(ctx, ledger.SettleRequest{
		TransactionID: mustTransactionID(test, externalID),
		Outcome:       ledger.StatusSuccessful,
	}); err != nil {
		test.Fatalf("settle %s: %v", externalID, err)
	}
}

func mustBalance(test *testing.T, service *ledger.Service, userID ledger.UserID) ledger.Points {
	test.Helper()
	wallet, err := service.Wallet(context.Background(), userID)
	if err != nil {
		test.Fatalf("wallet %s: %v", userID.String(), err)
	}
	return wallet.Balance
}

func requireConsistent(test *testing.T, service *ledger.Service, userID ledger.UserID) {
	test.Helper()
	report, err := service.VerifyWallet(context.Background(), userID)
	if err != nil {
		test.Fatalf("verify %s: %v", userID.String(), err)
	}
	if !report.Consistent {
		test.Fatalf("wallet %s drifted: stored %d, computed %d", userID.String(), report.Stored, report.Computed)
	}
}

// faultPlan counts store calls made inside transactions and fails the configured ones.
type faultPlan struct {
	mu                 sync.Mutex
	failUpdateWalletOn int
	failInsertOn       int
	conflictAlways     bool
	conflictsRemaining int
	updateWalletCalls  int
	insertCalls        int
	withTxCalls        int
}

// faultyStore decorates a ledger.Store, including the transaction-scoped store handed to WithTx callbacks.
type faultyStore struct {
	ledger.Store
	plan *faultPlan
}

func (store *faultyStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	store.plan.mu.Lock()
	store.plan.withTxCalls++
	conflict := store.plan.conflictAlways || store.plan.conflictsRemaining > 0
	if store.plan.conflictsRemaining > 0 {
		store.plan.conflictsRemaining--
	}
	store.plan.mu.Unlock()
	if conflict {
		return ledger.WrapError("store", "wallet", "commit", ledger.ErrWalletVersionConflict)
	}
	return store.Store.WithTx(ctx, func(ctx context.Context, txStore ledger.Store) error {
		return fn(ctx, &faultyStore{Store: txStore, plan: store.plan})
	})
}

func (store *faultyStore) UpdateWallet(ctx context.Context, previousVersion int64, wallet ledger.Wallet) error {
	store.plan.mu.Lock()
	store.plan.updateWalletCalls++
	fail := store.plan.failUpdateWalletOn != 0 && store.plan.updateWalletCalls == store.plan.failUpdateWalletOn
	store.plan.mu.Unlock()
	if fail {
		return errInjected
	}
	return store.Store.UpdateWallet(ctx, previousVersion, wallet)
}

func (store *faultyStore) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	store.plan.mu.Lock()
	store.plan.insertCalls++
	fail := store.plan.failInsertOn != 0 && store.plan.insertCalls == store.plan.failInsertOn
	store.plan.mu.Unlock()
	if fail {
		return errInjected
	}
	return store.Store.InsertTransaction(ctx, transaction)
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []ledger.OperationLog
}

func (logger *recordingLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recordingLogger) snapshot() []ledger.OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return append([]ledger.OperationLog(nil), logger.entries...)
}

type recordingNotifier struct {
	mu            sync.Mutex
	err           error
	notifications []ledger.Notification
}

func (notifier *recordingNotifier) Notify(ctx context.Context, notification ledger.Notification) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	notifier.notifications = append(notifier.notifications, notification)
	return notifier.err
}

func (notifier *recordingNotifier) snapshot() []ledger.Notification {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	return append([]ledger.Notification(nil), notifier.notifications...)
}

type fixedFeeSchedule struct {
	fee ledger.CashoutFee
	err error
}

func (schedule fixedFeeSchedule) CashoutFee(context.Context, ledger.Points) (ledger.CashoutFee, error) {
	return schedule.fee, schedule.err
}

func newMemoryService(test *testing.T, options ...ledger.ServiceOption) (*ledger.Service, *memstore.Store) {
	test.Helper()
	store := memstore.New()
	return mustNewService(test, store, options...), store
}

func newStoreForTest() ledger.Store {
	return memstore.New()
}
