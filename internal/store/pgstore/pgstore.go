package pgstore

import (
	"context"
	_ "embed"
	"errors"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const (
	constraintTransactionPrimary = "transactions_pkey"
	constraintWalletBalance      = "wallets_balance_check"
	pgUniqueViolationCode        = "23505"
	pgCheckViolationCode         = "23514"
	errorOperationStore          = "store"
	errorSubjectWallet           = "wallet"
	errorSubjectTransaction      = "transaction"
	errorSubjectStatistics       = "statistics"
	errorSubjectDatabase         = "database"
	errorCodeBegin               = "begin"
	errorCodeCommit              = "commit"
	errorCodeCount               = "count"
	errorCodeDuplicate           = "duplicate"
	errorCodeEnsure              = "ensure"
	errorCodeGet                 = "get"
	errorCodeInsert              = "insert"
	errorCodeInvalid             = "invalid"
	errorCodeList                = "list"
	errorCodeLookup              = "lookup"
	errorCodePing                = "ping"
	errorCodeSchema              = "schema"
	errorCodeSumSettled          = "sum_settled"
	errorCodeUpdate              = "update"
	errorCodeUpdateStatus        = "update_status"

	sqlEnsureWallet = `
		insert into wallets(user_id, created_at, updated_at)
		values($1, to_timestamp($2), to_timestamp($2))
		on conflict (user_id) do nothing
	`

	sqlSelectWallet = `
		select
			user_id,
			balance,
			total_earnings,
			total_spent,
			total_cashouts,
			version,
			extract(epoch from created_at)::bigint,
			extract(epoch from updated_at)::bigint
		from wallets
		where user_id = $1
	`

	sqlUpdateWallet = `
		update wallets
		set balance = $3, total_earnings = $4, total_spent = $5, total_cashouts = $6,
			version = $2::bigint + 1, updated_at = to_timestamp($7)
		where user_id = $1 and version = $2::bigint
	`

	sqlTransactionExists = `select exists(select 1 from transactions where id = $1)`

	sqlInsertTransaction = `
		insert into transactions(
			id, user_id, type, amount, status, description, related_post_id, related_user_id, metadata, created_at, updated_at
		)
		values(
			$1, $2, $3, $4, $5, $6, $7, $8,
			coalesce(nullif($9,''),'{}')::jsonb,
			to_timestamp($10),
			to_timestamp($11)
		)
	`

	sqlSelectTransactionColumns = `
		select
			id,
			user_id,
			type,
			amount,
			status,
			description,
			related_post_id,
			related_user_id,
			coalesce(metadata::text,'{}'),
			extract(epoch from created_at)::bigint,
			extract(epoch from updated_at)::bigint
		from transactions
	`

	sqlSelectTransaction = sqlSelectTransactionColumns + ` where id = $1`

	sqlListTransactions = sqlSelectTransactionColumns + `
		where ($1 = '' or user_id = $1)
		and ($2 = '' or type = $2)
		and ($3 = '' or status = $3)
		and ($4::bigint = 0 or created_at < to_timestamp($4::bigint))
		order by created_at desc, id desc
		limit nullif($5::bigint, 0)
	`

	sqlUpdateTransactionStatus = `
		update transactions
		set status = $3, amount = $4, updated_at = to_timestamp($5)
		where id = $1 and status = $2
	`

	sqlSumSettled = `
		select coalesce(sum(amount),0)::bigint from transactions
		where user_id = $1 and status in ('successful','completed')
	`

	sqlWalletTotals = `select count(*), coalesce(sum(balance),0)::bigint from wallets`

	sqlCountTransactionGroups = `select status, type, count(*) from transactions group by status, type`

	sqlCountTransactionsSince = `select count(*) from transactions where created_at >= to_timestamp($1)`
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements ledger.Store using a pgx connection pool.
// Outside WithTx every statement autocommits.
type Store struct {
	pool *pgxpool.Pool
	db   querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// EnsureSchema creates the wallets and transactions tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return wrapStoreError(errorSubjectDatabase, errorCodeSchema, err)
	}
	return nil
}

// Ping checks the pool.
func (store *Store) Ping(ctx context.Context) error {
	if store.pool == nil {
		return nil
	}
	if err := store.pool.Ping(ctx); err != nil {
		return wrapStoreError(errorSubjectDatabase, errorCodePing, err)
	}
	return nil
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore ledger.Store) error) error {
	if store.pool == nil {
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, err)
	}
	transactionStore := &Store{db: tx}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) EnsureWallet(ctx context.Context, userID ledger.UserID, createdUnixUTC int64) (ledger.Wallet, error) {
	if _, err := store.db.Exec(ctx, sqlEnsureWallet, userID.String(), createdUnixUTC); err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeEnsure, err)
	}
	return store.GetWallet(ctx, userID)
}

func (store *Store) GetWallet(ctx context.Context, userID ledger.UserID) (ledger.Wallet, error) {
	var (
		userIDValue   string
		balance       int64
		totalEarnings int64
		totalSpent    int64
		totalCashouts int64
		wallet        ledger.Wallet
	)
	err := store.db.QueryRow(ctx, sqlSelectWallet, userID.String()).Scan(
		&userIDValue,
		&balance,
		&totalEarnings,
		&totalSpent,
		&totalCashouts,
		&wallet.Version,
		&wallet.CreatedUnixUTC,
		&wallet.UpdatedUnixUTC,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, ledger.ErrWalletNotFound)
	}
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeGet, err)
	}
	parsedUserID, err := ledger.NewUserID(userIDValue)
	if err != nil {
		return ledger.Wallet{}, wrapStoreError(errorSubjectWallet, errorCodeInvalid, err)
	}
	wallet.UserID = parsedUserID
	wallet.Balance = ledger.Points(balance)
	wallet.TotalEarnings = ledger.Points(totalEarnings)
	wallet.TotalSpent = ledger.Points(totalSpent)
	wallet.TotalCashouts = ledger.Points(totalCashouts)
	return wallet, nil
}

func (store *Store) UpdateWallet(ctx context.Context, previousVersion int64, wallet ledger.Wallet) error {
	tag, err := store.db.Exec(ctx, sqlUpdateWallet,
		wallet.UserID.String(),
		previousVersion,
		wallet.Balance.Int64(),
		wallet.TotalEarnings.Int64(),
		wallet.TotalSpent.Int64(),
		wallet.TotalCashouts.Int64(),
		wallet.UpdatedUnixUTC,
	)
	if isBalanceViolation(err) {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrInsufficientBalance)
	}
	if err != nil {
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := store.GetWallet(ctx, wallet.UserID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectWallet, errorCodeUpdate, ledger.ErrWalletVersionConflict)
	}
	return nil
}

func (store *Store) TransactionExists(ctx context.Context, transactionID ledger.TransactionID) (bool, error) {
	var exists bool
	if err := store.db.QueryRow(ctx, sqlTransactionExists, transactionID.String()).Scan(&exists); err != nil {
		return false, wrapStoreError(errorSubjectTransaction, errorCodeLookup, err)
	}
	return exists, nil
}

func (store *Store) InsertTransaction(ctx context.Context, transaction ledger.Transaction) error {
	metadata, err := ledger.EncodeMetadata(transaction.Type, transaction.Metadata)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	_, err = store.db.Exec(ctx, sqlInsertTransaction,
		transaction.ID.String(),
		transaction.UserID.String(),
		transaction.Type.String(),
		transaction.Amount.Int64(),
		transaction.Status.String(),
		transaction.Description,
		transaction.RelatedPostID,
		transaction.RelatedUserID,
		metadata,
		transaction.CreatedUnixUTC,
		transaction.UpdatedUnixUTC,
	)
	if isDuplicateTransaction(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeDuplicate, ledger.ErrDuplicateTransactionID)
	}
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetTransaction(ctx context.Context, transactionID ledger.TransactionID) (ledger.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlSelectTransaction, transactionID.String())
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, err)
	}
	defer rows.Close()
	transactions, err := scanTransactions(rows)
	if err != nil {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	if len(transactions) == 0 {
		return ledger.Transaction{}, wrapStoreError(errorSubjectTransaction, errorCodeGet, ledger.ErrTransactionNotFound)
	}
	return transactions[0], nil
}

func (store *Store) UpdateTransactionStatus(ctx context.Context, update ledger.StatusUpdate) error {
	tag, err := store.db.Exec(ctx, sqlUpdateTransactionStatus,
		update.TransactionID.String(),
		update.From.String(),
		update.To.String(),
		update.Amount.Int64(),
		update.UpdatedUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := store.GetTransaction(ctx, update.TransactionID); err != nil {
			return err
		}
		return wrapStoreError(errorSubjectTransaction, errorCodeUpdateStatus, ledger.ErrInvalidTransition)
	}
	return nil
}

func (store *Store) ListTransactions(ctx context.Context, filter ledger.TransactionFilter) ([]ledger.Transaction, error) {
	rows, err := store.db.Query(ctx, sqlListTransactions,
		filter.UserID.String(),
		filter.Type.String(),
		filter.Status.String(),
		filter.BeforeUnixUTC,
		filter.Limit,
	)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeList, err)
	}
	defer rows.Close()
	transactions, err := scanTransactions(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectTransaction, errorCodeInvalid, err)
	}
	return transactions, nil
}

func (store *Store) SumSettledAmounts(ctx context.Context, userID ledger.UserID) (ledger.Points, error) {
	var sum int64
	if err := store.db.QueryRow(ctx, sqlSumSettled, userID.String()).Scan(&sum); err != nil {
		return 0, wrapStoreError(errorSubjectWallet, errorCodeSumSettled, err)
	}
	return ledger.Points(sum), nil
}

func (store *Store) WalletTotals(ctx context.Context) (ledger.WalletTotals, error) {
	var (
		walletCount  int64
		totalBalance int64
	)
	if err := store.db.QueryRow(ctx, sqlWalletTotals).Scan(&walletCount, &totalBalance); err != nil {
		return ledger.WalletTotals{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	return ledger.WalletTotals{WalletCount: walletCount, TotalBalance: ledger.Points(totalBalance)}, nil
}

func (store *Store) CountTransactions(ctx context.Context, sinceUnixUTC int64) (ledger.TransactionCounts, error) {
	rows, err := store.db.Query(ctx, sqlCountTransactionGroups)
	if err != nil {
		return ledger.TransactionCounts{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	defer rows.Close()
	counts := ledger.NewTransactionCounts()
	for rows.Next() {
		var (
			status string
			kind   string
			total  int64
		)
		if err := rows.Scan(&status, &kind, &total); err != nil {
			return ledger.TransactionCounts{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
		}
		counts.Total += total
		counts.ByStatus[ledger.TransactionStatus(status)] += total
		counts.ByType[ledger.TransactionType(kind)] += total
	}
	if err := rows.Err(); err != nil {
		return ledger.TransactionCounts{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	if err := store.db.QueryRow(ctx, sqlCountTransactionsSince, sinceUnixUTC).Scan(&counts.Today); err != nil {
		return ledger.TransactionCounts{}, wrapStoreError(errorSubjectStatistics, errorCodeCount, err)
	}
	return counts, nil
}

func scanTransactions(rows pgx.Rows) ([]ledger.Transaction, error) {
	var transactions []ledger.Transaction
	for rows.Next() {
		var (
			idValue       string
			userIDValue   string
			typeValue     string
			amount        int64
			statusValue   string
			description   string
			relatedPostID string
			relatedUserID string
			metadataValue string
			createdUnix   int64
			updatedUnix   int64
		)
		if err := rows.Scan(
			&idValue,
			&userIDValue,
			&typeValue,
			&amount,
			&statusValue,
			&description,
			&relatedPostID,
			&relatedUserID,
			&metadataValue,
			&createdUnix,
			&updatedUnix,
		); err != nil {
			return nil, err
		}
		transactionID, err := ledger.NewTransactionID(idValue)
		if err != nil {
			return nil, err
		}
		userID, err := ledger.NewUserID(userIDValue)
		if err != nil {
			return nil, err
		}
		transactionType, err := ledger.ParseTransactionType(typeValue)
		if err != nil {
			return nil, err
		}
		status, err := ledger.ParseTransactionStatus(statusValue)
		if err != nil {
			return nil, err
		}
		metadata, err := ledger.DecodeMetadata(transactionType, metadataValue)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, ledger.Transaction{
			ID:             transactionID,
			UserID:         userID,
			Type:           transactionType,
			Amount:         ledger.Points(amount),
			Status:         status,
			Description:    description,
			RelatedPostID:  relatedPostID,
			RelatedUserID:  relatedUserID,
			Metadata:       metadata,
			CreatedUnixUTC: createdUnix,
			UpdatedUnixUTC: updatedUnix,
		})
	}
	return transactions, rows.Err()
}

func wrapStoreError(subject string, code string, err error) error {
	return ledger.WrapError(errorOperationStore, subject, code, err)
}

func isDuplicateTransaction(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode && pgErr.ConstraintName == constraintTransactionPrimary
	}
	return false
}

func isBalanceViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgCheckViolationCode && pgErr.ConstraintName == constraintWalletBalance
	}
	return false
}
