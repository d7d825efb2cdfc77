package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/pointsledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/store/memstore"
	"github.com/MarkoPoloResearchLab/pointsledger/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	memoryURL         = "memory://"
	sqliteURLPrefix   = "sqlite://"
	sqliteInMemory    = ":memory:"
	defaultSQLiteFile = "pointsd.db"
)

// storeBackend names the ledger.Store implementation a database URL resolves to.
type storeBackend string

const (
	backendMemory       storeBackend = "memory"
	backendGormPostgres storeBackend = "gorm-postgres"
	backendGormSQLite   storeBackend = "gorm-sqlite"
	backendPgx          storeBackend = "pgx"
)

// storeTarget is a resolved database URL. location is the postgres DSN or the sqlite file.
type storeTarget struct {
	backend  storeBackend
	location string
}

type healthCheckedStore interface {
	ledger.Store
	Ping(ctx context.Context) error
}

func openStore(ctx context.Context, cfg *runtimeConfig, logger *zap.Logger) (healthCheckedStore, func(), error) {
	target, err := resolveStoreTarget(cfg.DatabaseURL, cfg.StoreDriver)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("opening store", zap.String("backend", string(target.backend)))

	switch target.backend {
	case backendMemory:
		logger.Warn("memory store selected, balances are lost on restart")
		return memstore.New(), func() {}, nil
	case backendPgx:
		return openPgxStore(ctx, target.location)
	}

	db, cleanup, err := openGorm(target)
	if err != nil {
		return nil, nil, err
	}
	if err := gormstore.Migrate(db); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("auto migrate: %w", err)
	}
	return gormstore.New(db), cleanup, nil
}

func openPgxStore(ctx context.Context, databaseURL string) (healthCheckedStore, func(), error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pgstore.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pgstore.New(pool), pool.Close, nil
}

// openGorm returns a handle with no context bound; store methods scope each call.
func openGorm(target storeTarget) (*gorm.DB, func(), error) {
	var dialector gorm.Dialector
	switch target.backend {
	case backendGormPostgres:
		dialector = postgres.Open(target.location)
	case backendGormSQLite:
		if target.location != sqliteInMemory {
			if err := os.MkdirAll(filepath.Dir(target.location), 0o755); err != nil {
				return nil, nil, fmt.Errorf("sqlite directory: %w", err)
			}
		}
		dialector = sqlite.Open(target.location)
	default:
		return nil, nil, fmt.Errorf("backend %q is not served by gorm", target.backend)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if target.backend == backendGormSQLite {
		// sqlite allows a single writer.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, func() { _ = sqlDB.Close() }, nil
}

func isPostgresURL(databaseURL string) bool {
	return strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://")
}

// resolveStoreTarget maps the configured database URL and store driver onto one backend.
// It touches no files, so config validation can call it.
func resolveStoreTarget(databaseURL string, storeDriver string) (storeTarget, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	switch {
	case databaseURL == memoryURL || databaseURL == string(backendMemory):
		return storeTarget{backend: backendMemory}, nil
	case isPostgresURL(databaseURL) && storeDriver == storeDriverPgx:
		return storeTarget{backend: backendPgx, location: databaseURL}, nil
	case isPostgresURL(databaseURL):
		return storeTarget{backend: backendGormPostgres, location: databaseURL}, nil
	case storeDriver == storeDriverPgx:
		return storeTarget{}, fmt.Errorf("%s=%s requires a postgres %s", flagStoreDriver, storeDriverPgx, flagDatabaseURL)
	}
	file, err := sqliteFile(databaseURL)
	if err != nil {
		return storeTarget{}, err
	}
	return storeTarget{backend: backendGormSQLite, location: file}, nil
}

// sqliteFile accepts sqlite://host/path, sqlite:///abs/path or a bare file path.
func sqliteFile(databaseURL string) (string, error) {
	location := databaseURL
	if strings.HasPrefix(databaseURL, sqliteURLPrefix) {
		parsed, err := url.Parse(databaseURL)
		if err != nil {
			return "", fmt.Errorf("parse sqlite url: %w", err)
		}
		location = parsed.Host + parsed.Path
	}
	switch {
	case location == "" || location == "/":
		return defaultSQLiteFile, nil
	case location == sqliteInMemory || filepath.IsAbs(location):
		return location, nil
	default:
		return filepath.Clean(location), nil
	}
}
