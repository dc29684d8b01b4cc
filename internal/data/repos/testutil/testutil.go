package testutil

import (
	"os"
	"sync"
	"testing"

	"gorm.io/gorm"

	catalogdb "github.com/yungbote/imagerag/internal/data/db"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens a fresh catalog per test: in-memory sqlite by default, or the Postgres
// database named by TEST_POSTGRES_DSN.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := catalogdb.Config{Driver: catalogdb.DriverSQLite, DSN: "file::memory:"}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		cfg = catalogdb.Config{Driver: catalogdb.DriverPostgres, DSN: dsn}
	}
	db, err := catalogdb.Open(nil, cfg)
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	if cfg.Driver == catalogdb.DriverSQLite {
		tb.Cleanup(func() { _ = catalogdb.Close(db) })
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
