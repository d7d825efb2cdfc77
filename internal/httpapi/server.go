// Package httpapi exposes the points ledger as an admin JSON API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/pointsledger/internal/metrics"
	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Ledger is the service surface served over HTTP.
type Ledger interface {
	Wallet(ctx context.Context, userID ledger.UserID) (ledger.Wallet, error)
	VerifyWallet(ctx context.Context, userID ledger.UserID) (ledger.BalanceReport, error)
	Recharge(ctx context.Context, request ledger.RechargeRequest) (ledger.Transaction, error)
	RequestCashout(ctx context.Context, request ledger.CashoutRequest) (ledger.Transaction, error)
	SettleTransaction(ctx context.Context, request ledger.SettleRequest) (ledger.Transaction, error)
	Transaction(ctx context.Context, transactionID ledger.TransactionID) (ledger.Transaction, error)
	ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error)
	Purchase(ctx context.Context, request ledger.PurchaseRequest) (ledger.TransferResult, error)
	Transfer(ctx context.Context, request ledger.TransferRequest) (ledger.TransferResult, error)
	AdjustBalance(ctx context.Context, request ledger.AdjustmentRequest) (ledger.Transaction, error)
	Statistics(ctx context.Context) (ledger.Statistics, error)
}

// RouterOption customizes NewRouter.
type RouterOption func(*routerOptions)

type routerOptions struct {
	metrics *metrics.Collectors
}

// WithMetrics instruments every route and serves /metrics.
func WithMetrics(collectors *metrics.Collectors) RouterOption {
	return func(options *routerOptions) {
		options.metrics = collectors
	}
}

// NewRouter builds the gin engine. cfg must already be validated.
func NewRouter(cfg Config, logger *zap.Logger, service Ledger, options ...RouterOption) *gin.Engine {
	settings := routerOptions{}
	for _, option := range options {
		option(&settings)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if settings.metrics != nil {
		router.Use(settings.metrics.Middleware())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if settings.metrics != nil {
		router.GET("/metrics", gin.WrapH(settings.metrics.Handler()))
	}

	handler := &httpHandler{
		logger:  logger,
		service: service,
		cfg:     cfg,
	}
	api := router.Group("/api")
	api.GET("/wallets/:userId", handler.handleWallet)
	api.GET("/wallets/:userId/verify", handler.handleVerifyWallet)
	api.POST("/recharges", handler.handleRecharge)
	api.POST("/cashouts", handler.handleCashout)
	api.GET("/transactions", handler.handleListTransactions)
	api.GET("/transactions/:id", handler.handleTransaction)
	api.POST("/transactions/:id/settle", handler.handleSettle)
	api.POST("/purchases", handler.handlePurchase)
	api.POST("/transfers", handler.handleTransfer)
	api.POST("/adjustments", handler.handleAdjustment)
	api.GET("/statistics", handler.handleStatistics)

	return router
}

// Run serves handler until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, logger *zap.Logger, handler http.Handler) error {
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("http server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
