package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/pointsledger/internal/metrics"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	fixedNowUnixUTC = int64(1_700_000_000)
	buyerIDValue    = "buyer"
	sellerIDValue   = "seller"
	externalIDValue = "ext-1"
	allowedOrigin   = "http://localhost:8000"
	statusMismatch  = "expected status %d, got %d: %s"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type transactionEnvelope struct {
	Transaction transactionPayload `json:"transaction"`
}

type walletEnvelope struct {
	Wallet walletPayload `json:"wallet"`
}

func newTestRouter(test *testing.T) *gin.Engine {
	test.Helper()
	service, err := ledger.NewService(memstore.New(), func() int64 { return fixedNowUnixUTC })
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	return newRouterFor(test, service)
}

func newRouterFor(test *testing.T, service Ledger) *gin.Engine {
	test.Helper()
	cfg := Config{AllowedOrigins: []string{allowedOrigin}}
	if err := cfg.Validate(); err != nil {
		test.Fatalf("config: %v", err)
	}
	return NewRouter(cfg, zap.NewNop(), service, WithMetrics(metrics.New()))
}

func perform(test *testing.T, router http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	test.Helper()
	var reader *bytes.Reader
	switch typed := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(typed))
	default:
		encoded, err := json.Marshal(body)
		if err != nil {
			test.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func mustStatus(test *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	test.Helper()
	if recorder.Code != expected {
		test.Fatalf(statusMismatch, expected, recorder.Code, recorder.Body.String())
	}
}

func mustDecode(test *testing.T, recorder *httptest.ResponseRecorder, target any) {
	test.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		test.Fatalf("decode %s: %v", recorder.Body.String(), err)
	}
}

func mustFund(test *testing.T, router http.Handler, userID string, externalID string, amount int64) string {
	test.Helper()
	recorder := perform(test, router, http.MethodPost, "/api/recharges", rechargeRequest{UserID: userID, Amount: amount, ExternalTransactionID: externalID})
	mustStatus(test, recorder, http.StatusCreated)
	var created transactionEnvelope
	mustDecode(test, recorder, &created)
	recorder = perform(test, router, http.MethodPost, "/api/transactions/"+created.Transaction.ID+"/settle", settleRequest{Outcome: "successful"})
	mustStatus(test, recorder, http.StatusOK)
	return created.Transaction.ID
}

func TestPurchaseScenarioOverHTTP(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test)

	recorder := perform(test, router, http.MethodPost, "/api/recharges", rechargeRequest{UserID: buyerIDValue, Amount: 100, ExternalTransactionID: externalIDValue})
	mustStatus(test, recorder, http.StatusCreated)
	var created transactionEnvelope
	mustDecode(test, recorder, &created)
	if created.Transaction.Status != "pending" || created.Transaction.Amount != 0 || created.Transaction.Metadata["originalAmount"] != float64(100) {
		test.Fatalf("unexpected pending recharge %+v", created.Transaction)
	}

	recorder = perform(test, router, http.MethodPost, "/api/transactions/"+externalIDValue+"/settle", settleRequest{Outcome: "successful"})
	mustStatus(test, recorder, http.StatusOK)

	recorder = perform(test, router, http.MethodPost, "/api/purchases", purchaseRequest{BuyerID: buyerIDValue, SellerID: sellerIDValue, Amount: 30, PostID: "post-1"})
	mustStatus(test, recorder, http.StatusCreated)
	var purchase transferPayload
	mustDecode(test, recorder, &purchase)
	if purchase.Debit.Amount != -30 || purchase.Credit.Amount != 30 || purchase.Credit.UserID != sellerIDValue {
		test.Fatalf("unexpected purchase legs %+v", purchase)
	}

	recorder = perform(test, router, http.MethodPost, "/api/recharges", rechargeRequest{UserID: buyerIDValue, Amount: 100, ExternalTransactionID: externalIDValue})
	mustStatus(test, recorder, http.StatusConflict)
	var duplicate errorEnvelope
	mustDecode(test, recorder, &duplicate)
	if duplicate.Error.Code != ledger.CategoryDuplicateTransactionID {
		test.Fatalf("unexpected error code %s", duplicate.Error.Code)
	}

	recorder = perform(test, router, http.MethodGet, "/api/wallets/"+buyerIDValue, nil)
	mustStatus(test, recorder, http.StatusOK)
	var wallet walletEnvelope
	mustDecode(test, recorder, &wallet)
	if wallet.Wallet.Balance != 70 || wallet.Wallet.TotalEarnings != 100 || wallet.Wallet.TotalSpent != 30 {
		test.Fatalf("unexpected wallet %+v", wallet.Wallet)
	}

	recorder = perform(test, router, http.MethodGet, "/api/wallets/"+sellerIDValue+"/verify", nil)
	mustStatus(test, recorder, http.StatusOK)
	var report struct {
		Report balanceReportPayload `json:"report"`
	}
	mustDecode(test, recorder, &report)
	if !report.Report.Consistent || report.Report.Stored != 30 {
		test.Fatalf("unexpected report %+v", report.Report)
	}

	recorder = perform(test, router, http.MethodGet, "/api/transactions?user_id="+buyerIDValue+"&limit=10", nil)
	mustStatus(test, recorder, http.StatusOK)
	var listed struct {
		Transactions []transactionPayload `json:"transactions"`
	}
	mustDecode(test, recorder, &listed)
	if len(listed.Transactions) != 2 {
		test.Fatalf("expected two buyer transactions, got %d", len(listed.Transactions))
	}

	recorder = perform(test, router, http.MethodGet, "/api/statistics", nil)
	mustStatus(test, recorder, http.StatusOK)
	var statistics struct {
		Statistics statisticsPayload `json:"statistics"`
	}
	mustDecode(test, recorder, &statistics)
	if statistics.Statistics.TotalBalance != 100 || statistics.Statistics.WalletCount != 2 || statistics.Statistics.TotalTransactions != 3 {
		test.Fatalf("unexpected statistics %+v", statistics.Statistics)
	}
	if statistics.Statistics.ByType["recharge"] != 1 || statistics.Statistics.ByStatus["completed"] != 2 {
		test.Fatalf("unexpected breakdown %+v", statistics.Statistics)
	}
}

func TestCashoutRefundOverHTTP(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test)
	mustFund(test, router, sellerIDValue, externalIDValue, 100)

	recorder := perform(test, router, http.MethodPost, "/api/cashouts", cashoutRequest{UserID: sellerIDValue, Amount: 40, PayoutMethodRef: "iban"})
	mustStatus(test, recorder, http.StatusCreated)
	var cashout transactionEnvelope
	mustDecode(test, recorder, &cashout)
	settlePath := "/api/transactions/" + cashout.Transaction.ID + "/settle"

	mustStatus(test, perform(test, router, http.MethodPost, settlePath, settleRequest{Outcome: "completed"}), http.StatusOK)
	recorder = perform(test, router, http.MethodGet, "/api/wallets/"+sellerIDValue, nil)
	var wallet walletEnvelope
	mustDecode(test, recorder, &wallet)
	if wallet.Wallet.Balance != 60 || wallet.Wallet.TotalCashouts != 40 {
		test.Fatalf("unexpected wallet after cashout %+v", wallet.Wallet)
	}

	recorder = perform(test, router, http.MethodPost, settlePath, settleRequest{Outcome: "cancelled"})
	mustStatus(test, recorder, http.StatusOK)
	var refunded transactionEnvelope
	mustDecode(test, recorder, &refunded)
	if refunded.Transaction.Status != "cancelled" {
		test.Fatalf("expected cancelled cashout, got %+v", refunded.Transaction)
	}
	recorder = perform(test, router, http.MethodGet, "/api/wallets/"+sellerIDValue, nil)
	mustDecode(test, recorder, &wallet)
	if wallet.Wallet.Balance != 100 || wallet.Wallet.TotalCashouts != 0 {
		test.Fatalf("unexpected wallet after refund %+v", wallet.Wallet)
	}

	recorder = perform(test, router, http.MethodPost, settlePath, settleRequest{Outcome: "cancelled"})
	mustStatus(test, recorder, http.StatusConflict)
}

func TestTransferAndAdjustmentOverHTTP(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test)
	mustFund(test, router, buyerIDValue, externalIDValue, 50)

	mustStatus(test, perform(test, router, http.MethodPost, "/api/transfers", transferRequest{FromUserID: buyerIDValue, ToUserID: sellerIDValue, Amount: 20}), http.StatusCreated)
	mustStatus(test, perform(test, router, http.MethodPost, "/api/adjustments", adjustmentRequest{UserID: sellerIDValue, Amount: -5, Reason: "chargeback"}), http.StatusCreated)
	mustStatus(test, perform(test, router, http.MethodPost, "/api/adjustments", adjustmentRequest{UserID: sellerIDValue, Amount: -500}), http.StatusUnprocessableEntity)

	recorder := perform(test, router, http.MethodGet, "/api/wallets/"+sellerIDValue, nil)
	var wallet walletEnvelope
	mustDecode(test, recorder, &wallet)
	if wallet.Wallet.Balance != 15 {
		test.Fatalf("expected balance 15, got %+v", wallet.Wallet)
	}
}

func TestErrorMapping(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test)
	mustFund(test, router, buyerIDValue, externalIDValue, 10)

	testCases := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{name: "missing external id", method: http.MethodPost, path: "/api/recharges", body: rechargeRequest{UserID: buyerIDValue, Amount: 10}, wantStatus: http.StatusBadRequest, wantCode: ledger.CategoryValidation},
		{name: "zero amount", method: http.MethodPost, path: "/api/recharges", body: rechargeRequest{UserID: buyerIDValue, ExternalTransactionID: "ext-2"}, wantStatus: http.StatusBadRequest, wantCode: ledger.CategoryValidation},
		{name: "blank user", method: http.MethodPost, path: "/api/recharges", body: rechargeRequest{UserID: " ", Amount: 10, ExternalTransactionID: "ext-3"}, wantStatus: http.StatusBadRequest, wantCode: ledger.CategoryValidation},
		{name: "malformed json", method: http.MethodPost, path: "/api/recharges", body: "{", wantStatus: http.StatusBadRequest, wantCode: errorCodeInvalidPayload},
		{name: "unknown transaction", method: http.MethodPost, path: "/api/transactions/ghost/settle", body: settleRequest{Outcome: "successful"}, wantStatus: http.StatusNotFound, wantCode: ledger.CategoryNotFound},
		{name: "pending is not an outcome", method: http.MethodPost, path: "/api/transactions/" + externalIDValue + "/settle", body: settleRequest{Outcome: "pending"}, wantStatus: http.StatusBadRequest, wantCode: ledger.CategoryValidation},
		{name: "settled twice", method: http.MethodPost, path: "/api/transactions/" + externalIDValue + "/settle", body: settleRequest{Outcome: "successful"}, wantStatus: http.StatusConflict, wantCode: ledger.CategoryInvalidTransition},
		{name: "insufficient purchase", method: http.MethodPost, path: "/api/purchases", body: purchaseRequest{BuyerID: buyerIDValue, SellerID: sellerIDValue, Amount: 11}, wantStatus: http.StatusUnprocessableEntity, wantCode: ledger.CategoryInsufficientBalance},
		{name: "oversized adjustment", method: http.MethodPost, path: "/api/adjustments", body: adjustmentRequest{UserID: buyerIDValue, Amount: math.MaxInt64, Reason: "bonus"}, wantStatus: http.StatusBadRequest, wantCode: ledger.CategoryValidation},
		{name: "self purchase", method: http.MethodPost, path: "/api/purchases", body: purchaseRequest{BuyerID: buyerIDValue, SellerID: buyerIDValue, Amount: 1}, wantStatus: http.StatusBadRequest, wantCode: ledger.CategoryValidation},
		{name: "cashout without wallet", method: http.MethodPost, path: "/api/cashouts", body: cashoutRequest{UserID: sellerIDValue, Amount: 5}, wantStatus: http.StatusUnprocessableEntity, wantCode: ledger.CategoryInsufficientBalance},
		{name: "unknown wallet", method: http.MethodGet, path: "/api/wallets/ghost", wantStatus: http.StatusNotFound, wantCode: ledger.CategoryNotFound},
		{name: "unknown transaction lookup", method: http.MethodGet, path: "/api/transactions/ghost", wantStatus: http.StatusNotFound, wantCode: ledger.CategoryNotFound},
		{name: "limit above maximum", method: http.MethodGet, path: "/api/transactions?limit=500", wantStatus: http.StatusBadRequest, wantCode: ledger.CategoryValidation},
		{name: "unknown type filter", method: http.MethodGet, path: "/api/transactions?type=bonus", wantStatus: http.StatusBadRequest, wantCode: errorCodeInvalidQuery},
		{name: "bad before filter", method: http.MethodGet, path: "/api/transactions?before=yesterday", wantStatus: http.StatusBadRequest, wantCode: errorCodeInvalidQuery},
	}
	for _, testCase := range testCases {
		recorder := perform(test, router, testCase.method, testCase.path, testCase.body)
		if recorder.Code != testCase.wantStatus {
			test.Fatalf("%s: "+statusMismatch, testCase.name, testCase.wantStatus, recorder.Code, recorder.Body.String())
		}
		var envelope errorEnvelope
		mustDecode(test, recorder, &envelope)
		if envelope.Error.Code != testCase.wantCode {
			test.Fatalf("%s: expected code %s, got %s", testCase.name, testCase.wantCode, envelope.Error.Code)
		}
	}
}

type failingLedger struct {
	Ledger
	err error
}

func (service failingLedger) Statistics(context.Context) (ledger.Statistics, error) {
	return ledger.Statistics{}, service.err
}

func TestInternalErrorsAreNotEchoed(test *testing.T) {
	test.Parallel()
	router := newRouterFor(test, failingLedger{err: errors.New("pq: password authentication failed")})
	recorder := perform(test, router, http.MethodGet, "/api/statistics", nil)
	mustStatus(test, recorder, http.StatusInternalServerError)
	var envelope errorEnvelope
	mustDecode(test, recorder, &envelope)
	if envelope.Error.Code != ledger.CategoryInternal || envelope.Error.Message != messageInternalError {
		test.Fatalf("unexpected envelope %+v", envelope)
	}
}

func TestHealthMetricsAndCORS(test *testing.T) {
	test.Parallel()
	router := newTestRouter(test)

	recorder := perform(test, router, http.MethodGet, "/healthz", nil)
	mustStatus(test, recorder, http.StatusOK)
	if !strings.Contains(recorder.Body.String(), `"ok"`) {
		test.Fatalf("unexpected health body %s", recorder.Body.String())
	}

	recorder = perform(test, router, http.MethodGet, "/metrics", nil)
	mustStatus(test, recorder, http.StatusOK)
	if !strings.Contains(recorder.Body.String(), "pointsledger_http_requests_total") {
		test.Fatalf("metrics scrape is missing http counters")
	}

	request := httptest.NewRequest(http.MethodOptions, "/api/statistics", nil)
	request.Header.Set("Origin", allowedOrigin)
	request.Header.Set("Access-Control-Request-Method", http.MethodGet)
	preflight := httptest.NewRecorder()
	router.ServeHTTP(preflight, request)
	if preflight.Header().Get("Access-Control-Allow-Origin") != allowedOrigin {
		test.Fatalf("missing cors header: %v", preflight.Header())
	}
}
