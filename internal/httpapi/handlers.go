package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	errorCodeInvalidPayload = "invalid_payload"
	errorCodeInvalidQuery   = "invalid_query"
	messageInternalError    = "internal error"

	queryUserID = "user_id"
	queryType   = "type"
	queryStatus = "status"
	queryBefore = "before"
	queryLimit  = "limit"
)

type httpHandler struct {
	logger  *zap.Logger
	service Ledger
	cfg     Config
}

func (handler *httpHandler) handleWallet(ctx *gin.Context) {
	userID, ok := handler.userIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	wallet, err := handler.service.Wallet(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"wallet": newWalletPayload(wallet)})
}

func (handler *httpHandler) handleVerifyWallet(ctx *gin.Context) {
	userID, ok := handler.userIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	report, err := handler.service.VerifyWallet(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"report": balanceReportPayload{
		UserID:     report.UserID.String(),
		Stored:     report.Stored.Int64(),
		Computed:   report.Computed.Int64(),
		Consistent: report.Consistent,
	}})
}

func (handler *httpHandler) handleRecharge(ctx *gin.Context) {
	var request rechargeRequest
	if !bindJSON(ctx, &request) {
		return
	}
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.service.Recharge(requestCtx, ledger.RechargeRequest{
		UserID:                userID,
		Amount:                ledger.Points(request.Amount),
		Description:           request.Description,
		ExternalTransactionID: request.ExternalTransactionID,
		PaymentMethodRef:      request.PaymentMethodRef,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handleCashout(ctx *gin.Context) {
	var request cashoutRequest
	if !bindJSON(ctx, &request) {
		return
	}
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.service.RequestCashout(requestCtx, ledger.CashoutRequest{
		UserID:          userID,
		Amount:          ledger.Points(request.Amount),
		PayoutMethodRef: request.PayoutMethodRef,
		Description:     request.Description,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handleSettle(ctx *gin.Context) {
	transactionID, ok := handler.transactionIDParam(ctx)
	if !ok {
		return
	}
	var request settleRequest
	if !bindJSON(ctx, &request) {
		return
	}
	outcome, err := ledger.ParseSettlementOutcome(request.Outcome)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	settle := ledger.SettleRequest{TransactionID: transactionID, Outcome: outcome}
	if request.AmountOverride != nil {
		override := ledger.Points(*request.AmountOverride)
		settle.AmountOverride = &override
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.service.SettleTransaction(requestCtx, settle)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handleTransaction(ctx *gin.Context) {
	transactionID, ok := handler.transactionIDParam(ctx)
	if !ok {
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.service.Transaction(requestCtx, transactionID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handleListTransactions(ctx *gin.Context) {
	filter, err := parseTransactionFilter(ctx)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidQuery, err.Error()))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transactions, err := handler.service.ListTransactions(requestCtx, filter)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payloads := make([]transactionPayload, 0, len(transactions))
	for _, transaction := range transactions {
		payloads = append(payloads, newTransactionPayload(transaction))
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payloads})
}

func (handler *httpHandler) handlePurchase(ctx *gin.Context) {
	var request purchaseRequest
	if !bindJSON(ctx, &request) {
		return
	}
	buyerID, err := ledger.NewUserID(request.BuyerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	sellerID, err := ledger.NewUserID(request.SellerID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.Purchase(requestCtx, ledger.PurchaseRequest{
		BuyerID:     buyerID,
		SellerID:    sellerID,
		Amount:      ledger.Points(request.Amount),
		PostID:      request.PostID,
		Description: request.Description,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, newTransferPayload(result))
}

func (handler *httpHandler) handleTransfer(ctx *gin.Context) {
	var request transferRequest
	if !bindJSON(ctx, &request) {
		return
	}
	fromUserID, err := ledger.NewUserID(request.FromUserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	toUserID, err := ledger.NewUserID(request.ToUserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	result, err := handler.service.Transfer(requestCtx, ledger.TransferRequest{
		FromUserID:  fromUserID,
		ToUserID:    toUserID,
		Amount:      ledger.Points(request.Amount),
		Description: request.Description,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, newTransferPayload(result))
}

func (handler *httpHandler) handleAdjustment(ctx *gin.Context) {
	var request adjustmentRequest
	if !bindJSON(ctx, &request) {
		return
	}
	userID, err := ledger.NewUserID(request.UserID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	transaction, err := handler.service.AdjustBalance(requestCtx, ledger.AdjustmentRequest{
		UserID: userID,
		Amount: ledger.Points(request.Amount),
		Reason: request.Reason,
	})
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"transaction": newTransactionPayload(transaction)})
}

func (handler *httpHandler) handleStatistics(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	statistics, err := handler.service.Statistics(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"statistics": newStatisticsPayload(statistics)})
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.cfg.RequestTimeout)
}

func (handler *httpHandler) userIDParam(ctx *gin.Context) (ledger.UserID, bool) {
	userID, err := ledger.NewUserID(ctx.Param("userId"))
	if err != nil {
		handler.respondError(ctx, err)
		return ledger.UserID{}, false
	}
	return userID, true
}

func (handler *httpHandler) transactionIDParam(ctx *gin.Context) (ledger.TransactionID, bool) {
	transactionID, err := ledger.NewTransactionID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return ledger.TransactionID{}, false
	}
	return transactionID, true
}

// respondError maps the ledger taxonomy onto HTTP statuses. Internal errors are logged, not echoed.
func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	category := ledger.Category(err)
	status := statusForCategory(category)
	if status == http.StatusInternalServerError {
		handler.logger.Error("ledger request failed",
			zap.String("route", ctx.FullPath()),
			zap.Error(err),
		)
		ctx.JSON(status, errorResponse(ledger.CategoryInternal, messageInternalError))
		return
	}
	ctx.JSON(status, errorResponse(category, err.Error()))
}

func statusForCategory(category string) int {
	switch category {
	case ledger.CategoryValidation:
		return http.StatusBadRequest
	case ledger.CategoryNotFound:
		return http.StatusNotFound
	case ledger.CategoryDuplicateTransactionID, ledger.CategoryInvalidTransition:
		return http.StatusConflict
	case ledger.CategoryInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func bindJSON(ctx *gin.Context, target any) bool {
	if err := ctx.ShouldBindJSON(target); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalidPayload, "expected JSON body"))
		return false
	}
	return true
}

func parseTransactionFilter(ctx *gin.Context) (ledger.TransactionFilter, error) {
	filter := ledger.TransactionFilter{}
	if raw := strings.TrimSpace(ctx.Query(queryUserID)); raw != "" {
		userID, err := ledger.NewUserID(raw)
		if err != nil {
			return filter, err
		}
		filter.UserID = userID
	}
	if raw := strings.TrimSpace(ctx.Query(queryType)); raw != "" {
		transactionType, err := ledger.ParseTransactionType(raw)
		if err != nil {
			return filter, err
		}
		filter.Type = transactionType
	}
	if raw := strings.TrimSpace(ctx.Query(queryStatus)); raw != "" {
		status, err := ledger.ParseTransactionStatus(raw)
		if err != nil {
			return filter, err
		}
		filter.Status = status
	}
	if raw := strings.TrimSpace(ctx.Query(queryBefore)); raw != "" {
		before, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || before < 0 {
			return filter, fmt.Errorf("%s must be a non-negative unix timestamp", queryBefore)
		}
		filter.BeforeUnixUTC = before
	}
	if raw := strings.TrimSpace(ctx.Query(queryLimit)); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("%s must be an integer", queryLimit)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}
