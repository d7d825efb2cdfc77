package ledger

const (
	operationEnsureWallet   = "ensure_wallet"
	operationRecharge       = "recharge"
	operationSettle         = "settle"
	operationRefund         = "refund"
	operationCashoutRequest = "cashout_request"
	operationPurchase       = "purchase"
	operationTransfer       = "transfer"
	operationAdjust         = "adjust"
	operationNotify         = "notify"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	errorOperationService   = "service"
	errorSubjectWallet      = "wallet"
	errorSubjectTransaction = "transaction"
	errorCodeRetryExhausted = "retry_exhausted"

	internalIDDelimiter    = "_"
	internalIDSuffixLength = 12
	internalIDPrefixPay    = "pay"
	internalIDPrefixEarn   = "earn"
	internalIDPrefixOut    = "xfer_out"
	internalIDPrefixIn     = "xfer_in"
	internalIDPrefixAdjust = "adj"
	internalIDPrefixCash   = "cash"

	defaultMaxAttempts = 5
	defaultListLimit   = 50
	maxListLimit       = 200
	secondsPerDay      = 86400
)
