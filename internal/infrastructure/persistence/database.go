package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/remittance/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database is the ledger's PostgreSQL connection
type Database struct {
	DB    *gorm.DB
	sqlDB *sql.DB
}

// Open connects to the ledger database and verifies it answers within ctx.
// A nil gormLogger keeps GORM silent.
func Open(ctx context.Context, cfg *config.DatabaseConfig, gormLogger gormlogger.Interface) (*Database, error) {
	if gormLogger == nil {
		gormLogger = gormlogger.Discard
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormLogger,
		// ledger writes already run in explicit transactions
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ledger database: %w", err)
	}

	d, err := wrap(db, cfg)
	if err != nil {
		return nil, err
	}
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("ping ledger database: %w", err)
	}
	return d, nil
}

// wrap applies the pool settings of cfg to an open connection
func wrap(db *gorm.DB, cfg *config.DatabaseConfig) (*Database, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger connection pool: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	return &Database{DB: db, sqlDB: sqlDB}, nil
}

// SQLDB returns the connection pool
func (d *Database) SQLDB() *sql.DB {
	return d.sqlDB
}

// PingContext implements the readiness check
func (d *Database) PingContext(ctx context.Context) error {
	return d.sqlDB.PingContext(ctx)
}

// Close closes the connection pool
func (d *Database) Close() error {
	return d.sqlDB.Close()
}

// Ledger returns the remittance ledger backed by this connection
func (d *Database) Ledger() *GormLedger {
	return NewGormLedger(d.DB)
}
