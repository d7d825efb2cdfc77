package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
)

func TestStatisticsSnapshot(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	service, _ := newMemoryService(test)
	buyer := mustUserID(test, buyerIDValue)
	seller := mustUserID(test, sellerIDValue)
	mustFund(test, service, buyer, 100, externalIDFirst)
	if _, err := service.Purchase(ctx, ledger.PurchaseRequest{BuyerID: buyer, SellerID: seller, Amount: 30}); err != nil {
		test.Fatalf("purchase: %v", err)
	}
	if _, err := service.Recharge(ctx, ledger.RechargeRequest{UserID: seller, Amount: 5, ExternalTransactionID: externalIDSecond}); err != nil {
		test.Fatalf("recharge: %v", err)
	}

	statistics, err := service.Statistics(ctx)
	if err != nil {
		test.Fatalf("statistics: %v", err)
	}
	if statistics.WalletCount != 2 || statistics.TotalBalance != 100 {
		test.Fatalf("unexpected wallet aggregates %+v", statistics)
	}
	counts := statistics.Transactions
	if counts.Total != 4 || counts.Today != 4 {
		test.Fatalf("unexpected transaction totals %+v", counts)
	}
	if counts.ByStatus[ledger.StatusPending] != 1 || counts.ByStatus[ledger.StatusSuccessful] != 1 || counts.ByStatus[ledger.StatusCompleted] != 2 {
		test.Fatalf("unexpected status breakdown %+v", counts.ByStatus)
	}
	if counts.ByType[ledger.TransactionRecharge] != 2 || counts.ByType[ledger.TransactionPostPayment] != 1 || counts.ByType[ledger.TransactionPostEarning] != 1 {
		test.Fatalf("unexpected type breakdown %+v", counts.ByType)
	}
	if statistics.GeneratedUnixUTC != fixedNowUnixUTC {
		test.Fatalf("expected generation time %d, got %d", fixedNowUnixUTC, statistics.GeneratedUnixUTC)
	}
}

func TestListTransactionsFiltersAndLimits(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	service, _ := newMemoryService(test)
	buyer := mustUserID(test, buyerIDValue)
	seller := mustUserID(test, sellerIDValue)
	mustFund(test, service, buyer, 100, externalIDFirst)
	if _, err := service.Purchase(ctx, ledger.PurchaseRequest{BuyerID: buyer, SellerID: seller, Amount: 10}); err != nil {
		test.Fatalf("purchase: %v", err)
	}

	testCases := []struct {
		name      string
		filter    ledger.TransactionFilter
		wantCount int
		wantFirst ledger.TransactionType
	}{
		{name: "buyer history newest first", filter: ledger.TransactionFilter{UserID: buyer}, wantCount: 2, wantFirst: ledger.TransactionPostPayment},
		{name: "seller history", filter: ledger.TransactionFilter{UserID: seller}, wantCount: 1, wantFirst: ledger.TransactionPostEarning},
		{name: "by type", filter: ledger.TransactionFilter{Type: ledger.TransactionRecharge}, wantCount: 1, wantFirst: ledger.TransactionRecharge},
		{name: "by status", filter: ledger.TransactionFilter{Status: ledger.StatusCompleted}, wantCount: 2, wantFirst: ledger.TransactionPostEarning},
		{name: "limit", filter: ledger.TransactionFilter{Limit: 1}, wantCount: 1, wantFirst: ledger.TransactionPostEarning},
		{name: "before excludes everything", filter: ledger.TransactionFilter{BeforeUnixUTC: fixedNowUnixUTC}, wantCount: 0},
	}
	for _, testCase := range testCases {
		transactions, err := service.ListTransactions(ctx, testCase.filter)
		if err != nil {
			test.Fatalf("%s: %v", testCase.name, err)
		}
		if len(transactions) != testCase.wantCount {
			test.Fatalf("%s: expected %d transactions, got %d", testCase.name, testCase.wantCount, len(transactions))
		}
		if testCase.wantCount > 0 && transactions[0].Type != testCase.wantFirst {
			test.Fatalf("%s: expected first %s, got %s", testCase.name, testCase.wantFirst, transactions[0].Type)
		}
	}

	if _, err := service.ListTransactions(ctx, ledger.TransactionFilter{Limit: 201}); !errors.Is(err, ledger.ErrInvalidListLimit) {
		test.Fatalf("expected list limit rejection, got %v", err)
	}
}

func TestQueriesRejectUnknownRecords(test *testing.T) {
	test.Parallel()
	ctx := context.Background()
	service, _ := newMemoryService(test)
	if _, err := service.Wallet(ctx, mustUserID(test, "ghost")); !errors.Is(err, ledger.ErrWalletNotFound) {
		test.Fatalf("expected wallet not found, got %v", err)
	}
	if _, err := service.Transaction(ctx, mustTransactionID(test, "ghost")); !errors.Is(err, ledger.ErrTransactionNotFound) {
		test.Fatalf("expected transaction not found, got %v", err)
	}
	if _, err := service.VerifyWallet(ctx, mustUserID(test, "ghost")); ledger.Category(err) != ledger.CategoryNotFound {
		test.Fatalf("expected not found category, got %v", err)
	}
	if _, err := service.Wallet(ctx, ledger.UserID{}); !errors.Is(err, ledger.ErrInvalidUserID) {
		test.Fatalf("expected invalid user id, got %v", err)
	}
}
