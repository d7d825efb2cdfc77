package httpapi

import "github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"

type rechargeRequest struct {
	UserID                string `json:"userId"`
	Amount                int64  `json:"amount"`
	Description           string `json:"description"`
	ExternalTransactionID string `json:"externalTransactionId"`
	PaymentMethodRef      string `json:"paymentMethodRef"`
}

type cashoutRequest struct {
	UserID          string `json:"userId"`
	Amount          int64  `json:"amount"`
	PayoutMethodRef string `json:"payoutMethodRef"`
	Description     string `json:"description"`
}

type settleRequest struct {
	Outcome        string `json:"outcome"`
	AmountOverride *int64 `json:"amountOverride"`
}

type purchaseRequest struct {
	BuyerID     string `json:"buyerId"`
	SellerID    string `json:"sellerId"`
	Amount      int64  `json:"amount"`
	PostID      string `json:"postId"`
	Description string `json:"description"`
}

type transferRequest struct {
	FromUserID  string `json:"fromUserId"`
	ToUserID    string `json:"toUserId"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type adjustmentRequest struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

type walletPayload struct {
	UserID         string `json:"userId"`
	Balance        int64  `json:"balance"`
	TotalEarnings  int64  `json:"totalEarnings"`
	TotalSpent     int64  `json:"totalSpent"`
	TotalCashouts  int64  `json:"totalCashouts"`
	Version        int64  `json:"version"`
	CreatedUnixUTC int64  `json:"createdUnixUtc"`
	UpdatedUnixUTC int64  `json:"updatedUnixUtc"`
}

type transactionPayload struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	Type           string         `json:"type"`
	Amount         int64          `json:"amount"`
	Status         string         `json:"status"`
	Description    string         `json:"description"`
	RelatedPostID  string         `json:"relatedPostId,omitempty"`
	RelatedUserID  string         `json:"relatedUserId,omitempty"`
	Metadata       map[string]any `json:"metadata"`
	CreatedUnixUTC int64          `json:"createdUnixUtc"`
	UpdatedUnixUTC int64          `json:"updatedUnixUtc"`
}

type transferPayload struct {
	Debit  transactionPayload `json:"debit"`
	Credit transactionPayload `json:"credit"`
}

type balanceReportPayload struct {
	UserID     string `json:"userId"`
	Stored     int64  `json:"stored"`
	Computed   int64  `json:"computed"`
	Consistent bool   `json:"consistent"`
}

type statisticsPayload struct {
	WalletCount       int64            `json:"walletCount"`
	TotalBalance      int64            `json:"totalBalance"`
	TotalTransactions int64            `json:"totalTransactions"`
	TodayTransactions int64            `json:"todayTransactions"`
	ByStatus          map[string]int64 `json:"byStatus"`
	ByType            map[string]int64 `json:"byType"`
	GeneratedUnixUTC  int64            `json:"generatedUnixUtc"`
}

func newWalletPayload(wallet ledger.Wallet) walletPayload {
	return walletPayload{
		UserID:         wallet.UserID.String(),
		Balance:        wallet.Balance.Int64(),
		TotalEarnings:  wallet.TotalEarnings.Int64(),
		TotalSpent:     wallet.TotalSpent.Int64(),
		TotalCashouts:  wallet.TotalCashouts.Int64(),
		Version:        wallet.Version,
		CreatedUnixUTC: wallet.CreatedUnixUTC,
		UpdatedUnixUTC: wallet.UpdatedUnixUTC,
	}
}

func newTransactionPayload(transaction ledger.Transaction) transactionPayload {
	return transactionPayload{
		ID:             transaction.ID.String(),
		UserID:         transaction.UserID.String(),
		Type:           transaction.Type.String(),
		Amount:         transaction.Amount.Int64(),
		Status:         transaction.Status.String(),
		Description:    transaction.Description,
		RelatedPostID:  transaction.RelatedPostID,
		RelatedUserID:  transaction.RelatedUserID,
		Metadata:       ledger.MetadataMap(transaction.Metadata),
		CreatedUnixUTC: transaction.CreatedUnixUTC,
		UpdatedUnixUTC: transaction.UpdatedUnixUTC,
	}
}

func newTransferPayload(result ledger.TransferResult) transferPayload {
	return transferPayload{
		Debit:  newTransactionPayload(result.Debit),
		Credit: newTransactionPayload(result.Credit),
	}
}

func newStatisticsPayload(statistics ledger.Statistics) statisticsPayload {
	byStatus := make(map[string]int64, len(statistics.Transactions.ByStatus))
	for status, count := range statistics.Transactions.ByStatus {
		byStatus[status.String()] = count
	}
	byType := make(map[string]int64, len(statistics.Transactions.ByType))
	for transactionType, count := range statistics.Transactions.ByType {
		byType[transactionType.String()] = count
	}
	return statisticsPayload{
		WalletCount:       statistics.WalletCount,
		TotalBalance:      statistics.TotalBalance.Int64(),
		TotalTransactions: statistics.Transactions.Total,
		TodayTransactions: statistics.Transactions.Today,
		ByStatus:          byStatus,
		ByType:            byType,
		GeneratedUnixUTC:  statistics.GeneratedUnixUTC,
	}
}
