package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	constraintTransactionPrimary = "transactions_pkey"
	defaultMetadataJSON          = "{}"
	pgUniqueViolationCode        = "23505"
	sqliteConstraintCode         = 19
	errorOperationStore          = "store"
	errorSubjectWallet           = "wallet"
	errorSubjectTransaction      = "transaction"
	errorSubjectStatistics       = "statistics"
	errorSubjectDatabase         = "database"
	errorCodeCount               = "count"
	errorCodeDuplicate           = "duplicate"
	errorCodeEnsure              = "ensure"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeLookup              = "lookup"
	errorCodePing                = "ping"
	errorCodeSumSettled          = "sum_settled"
	errorCodeUpdate              = "update"
	errorCodeUpdateStatus        = "update_status"
)

// Store implements ledger.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// Ping checks the underlying connection pool.
func (store *Store) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return wrapStoreError(errorSubjectDatabase, errorCodePing, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return wrapStoreError(errorSubjectDatabase, errorCodePing, err)
	}
	return nil
}

func (store *Store) EnsureWallet(ctx context.Context, userID ledger.UserID, createdUnixUTC int64) (ledger.Wallet, error) {
	created := unixToTime(createdUnixUTC)
	record := WalletRecord{UserID: userID.String(), CreatedAt: created, UpdatedAt: created}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&record).Error
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeEnsure, err)
	}
	return store.GetWallet(ctx, userID)
}

func (store *Store) GetWallet(ctx context.Context, userID ledger.UserID) (ledger.Wallet, error) {
	var record WalletRecord
	err := store.db.WithContext(ctx).Where("user_id = ?", userID.String()).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, ledger.ErrWalletNotFound)
		}
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	wallet, err := mapWallet(record)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	return wallet, nil
}

func (store *Store) UpdateWallet(ctx context.Context, previousVersion int64, wallet ledger.Wallet) error {
	result := store.db.WithContext(ctx).
		Model(&WalletRecord{}).
		Where("user_id = ? AND version = ?", wallet.UserID.String(), previousVersion).
		Updates(map[string]any{
			"balance":        wallet.Balance.Int64(),
			"total_earnings": wallet.TotalEarnings.Int64(),
			"total_spent":    wallet.TotalSpent.Int64(),
			"total_cashouts": wallet.TotalCashouts.Int64(),
			"version":        previousVersion + 1,
			"updated_at":     unixToTime(wallet.UpdatedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetWallet(ctx, wallet.UserID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrWalletVersionConflict)
	}
	return nil
}

func (store *Store) TransactionExists(ctx context.Context, transactionID ledger.TransactionID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&TransactionRecord{}).
		Where("id = ?", transactionID.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, err)
	}
	return count > 0, nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	metadata, err := ledger.EncodeMetadata(transaction.Type, transaction.Metadata)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	record := TransactionRecord{
		ID:            transaction.ID.String(),
		UserID:        transaction.UserID.String(),
		Type:          transaction.Type.String(),
		Amount:        transaction.Amount.Int64(),
		Status:        transaction.Status.String(),
		Description:   transaction.Description,
		RelatedPostID: transaction.RelatedPostID,
		RelatedUserID: transaction.RelatedUserID,
		Metadata:      datatypesJSON(metadata),
		CreatedAt:     unixToTime(transaction.CreatedUnixUTC),
		UpdatedAt:     unixToTime(transaction.UpdatedUnixUTC),
	}
	err = store.db.WithContext(ctx).Create(&record).Error
	if isDuplicateTransaction(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateTransactionID)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetTransaction(ctx context.Context, transactionID ledger.TransactionID) (ledger.Transaction, error) {
	var record TransactionRecord
	err := store.db.WithContext(ctx).Where("id = ?", transactionID.String()).Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, ledger.ErrTransactionNotFound)
		}
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, err)
	}
	transaction, err := mapTransaction(record)
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transaction, nil
}

func (store *Store) UpdateTransactionStatus(ctx context.Context, update ledger.StatusUpdate) error {
	result := store.db.WithContext(ctx).
		Model(&TransactionRecord{}).
		Where("id = ? AND status = ?", update.TransactionID.String(), update.From.String()).
		Updates(map[string]any{
			"status":     update.To.String(),
			"amount":     update.Amount.Int64(),
			"updated_at": unixToTime(update.UpdatedUnixUTC),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := store.GetTransaction(ctx, update.TransactionID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, ledger.ErrInvalidTransition)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	query := store.db.WithContext(ctx).Model(&TransactionRecord{})
	if !filter.UserID.IsZero() {
		query = query.Where("user_id = ?", filter.UserID.String())
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type.String())
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status.String())
	}
	if filter.BeforeUnixUTC > 0 {
		query = query.Where("created_at < ?", unixToTime(filter.BeforeUnixUTC))
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []TransactionRecord
	if err := query.Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	transactions := make([]ledger.Transaction, 0, len(rows))
	for _, row := range rows {
		transaction, err := mapTransaction(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
		}
		transactions = append(transactions, transaction)
	}
	return transactions, nil
}

func (store *Store) SumSettledAmounts(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&TransactionRecord{}).
		Select("coalesce(sum(amount),0) as total").
		Where("user_id = ? AND status IN ?", userID.String(), settledStatuses()).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectWallet, errorCodeSumSettled, err)
	}
	return ledger.Points(sum.Total), nil
}

func (store *Store) WalletTotals(ctx context.Context) (ledger.WalletTotals, error) {
	var totals walletTotalsRow
	err := store.db.WithContext(ctx).
		Model(&WalletRecord{}).
		Select("count(*) as wallet_count, coalesce(sum(balance),0) as total_balance").
		Scan(&totals).Error
	if err != nil {
		return ledger.WalletTotals{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	return ledger.WalletTotals{WalletCount: totals.WalletCount, TotalBalance: ledger.Points(totals.TotalBalance)}, nil
}

func (store *Store) CountTransactions(ctx context.Context, sinceUnixUTC int64) (ledger.TransactionCounts, error) {
	var groups []transactionGroupRow
	err := store.db.WithContext(ctx).
		Model(&TransactionRecord{}).
		Select("status, type, count(*) as total").
		Group("status, type").
		Scan(&groups).Error
	if err != nil {
		return ledger.TransactionCounts{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	counts := ledger.NewTransactionCounts()
	for _, group := range groups {
		counts.Total += group.Total
		counts.ByStatus[ledger.TransactionStatus(group.Status)] += group.Total
		counts.ByType[ledger.TransactionType(group.Type)] += group.Total
	}
	err = store.db.WithContext(ctx).
		Model(&TransactionRecord{}).
		Where("created_at >= ?", unixToTime(sinceUnixUTC)).
		Count(&counts.Today).Error
	if err != nil {
		return ledger.TransactionCounts{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	return counts, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

type walletTotalsRow struct {
	WalletCount  int64
	TotalBalance int64
}

type transactionGroupRow struct {
	Status string
	Type   string
	Total  int64
}

func settledStatuses() []string {
	return []string{ledger.StatusSuccessful.String(), ledger.StatusCompleted.String()}
}

func mapWallet(record WalletRecord) (ledger.Wallet, error) {
	userID, err := ledger.NewUserID(record.UserID)
	if err != nil {
		return ledger.Wallet{}, err
	}
	return ledger.Wallet{
		UserID:         userID,
		Balance:        ledger.Points(record.Balance),
		TotalEarnings:  ledger.Points(record.TotalEarnings),
		TotalSpent:     ledger.Points(record.TotalSpent),
		TotalCashouts:  ledger.Points(record.TotalCashouts),
		Version:        record.Version,
		CreatedUnixUTC: record.CreatedAt.Unix(),
		UpdatedUnixUTC: record.UpdatedAt.Unix(),
	}, nil
}

func mapTransaction(record TransactionRecord) (ledger.Transaction, error) {
	transactionID, err := ledger.NewTransactionID(record.ID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	userID, err := ledger.NewUserID(record.UserID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	transactionType, err := ledger.ParseTransactionType(record.Type)
	if err != nil {
		return ledger.Transaction{}, err
	}
	status, err := ledger.ParseTransactionStatus(record.Status)
	if err != nil {
		return ledger.Transaction{}, err
	}
	metadata, err := ledger.DecodeMetadata(transactionType, string(record.Metadata))
	if err != nil {
		return ledger.Transaction{}, err
	}
	return ledger.Transaction{
		ID:             transactionID,
		UserID:         userID,
		Type:           transactionType,
		Amount:         ledger.Points(record.Amount),
		Status:         status,
		Description:    record.Description,
		RelatedPostID:  record.RelatedPostID,
		RelatedUserID:  record.RelatedUserID,
		Metadata:       metadata,
		CreatedUnixUTC: record.CreatedAt.Unix(),
		UpdatedUnixUTC: record.UpdatedAt.Unix(),
	}, nil
}

func unixToTime(unixUTC int64) time.Time {
	return time.Unix(unixUTC, 0).UTC()
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isDuplicateTransaction(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintTransactionPrimary
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
