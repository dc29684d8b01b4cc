package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver string
	// DSN overrides the POSTGRES_* parts when set. For sqlite it is the file path or
	// "file::memory:?cache=shared".
	DSN string

	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxOpenConns int
	MaxIdleConns int
}

func ConfigFromEnv() Config {
	return Config{
		Driver:       strings.ToLower(envutil.String("CATALOG_DRIVER", DriverSQLite)),
		DSN:          envutil.String("CATALOG_DSN", ""),
		Host:         envutil.String("POSTGRES_HOST", "localhost"),
		Port:         envutil.String("POSTGRES_PORT", "5432"),
		User:         envutil.String("POSTGRES_USER", "postgres"),
		Password:     envutil.String("POSTGRES_PASSWORD", ""),
		Name:         envutil.String("POSTGRES_NAME", "imagerag"),
		SSLMode:      envutil.String("POSTGRES_SSLMODE", "disable"),
		MaxOpenConns: envutil.Int("CATALOG_MAX_OPEN_CONNS", 10),
		MaxIdleConns: envutil.Int("CATALOG_MAX_IDLE_CONNS", 5),
	}
}

func (c Config) dialector() (gorm.Dialector, error) {
	switch c.Driver {
	case DriverPostgres:
		dsn := c.DSN
		if dsn == "" {
			dsn = fmt.Sprintf(
				"postgres://%s:%s@%s:%s/%s?sslmode=%s",
				c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
			)
		}
		return postgres.Open(dsn), nil
	case DriverSQLite, "":
		dsn := c.DSN
		if dsn == "" {
			dsn = "imagerag.db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unknown CATALOG_DRIVER %q (want postgres or sqlite)", c.Driver)
	}
}

// Open connects the catalog database and migrates its schema.
func Open(logg *logger.Logger, cfg Config) (*gorm.DB, error) {
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to catalog (%s): %w", cfg.Driver, err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// sqlite serializes writers; one connection also keeps in-memory databases shared.
		if cfg.Driver != DriverPostgres {
			cfg.MaxOpenConns = 1
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	if err := AutoMigrateAll(db); err != nil {
		return nil, fmt.Errorf("catalog migrate: %w", err)
	}
	if logg != nil {
		logg.With("service", "CatalogDB").Info("catalog ready", "driver", cfg.Driver)
	}
	return db, nil
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
