package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/satonic/roomtrade/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id UUID PRIMARY KEY,
	kind TEXT NOT NULL,
	account TEXT NOT NULL DEFAULT '',
	nft_id TEXT NOT NULL DEFAULT '',
	seller_wallet TEXT NOT NULL DEFAULT '',
	buyer_wallet TEXT NOT NULL DEFAULT '',
	offer_ids TEXT[] NOT NULL DEFAULT '{}',
	brokered BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS ledger_events_seller_idx ON ledger_events (seller_wallet, created_at DESC);
CREATE INDEX IF NOT EXISTS ledger_events_buyer_idx ON ledger_events (buyer_wallet, created_at DESC);
CREATE INDEX IF NOT EXISTS ledger_events_account_idx ON ledger_events (account, created_at DESC);
`

// Database represents a database connection
type Database struct {
	db *sqlx.DB
}

// NewDatabase creates a new database connection and ensures the schema
func NewDatabase(cfg config.DatabaseConfig) (*Database, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name,
	)

	db, err := sqlx.Connect(driver, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := NewDatabaseFromDB(db)
	if err := d.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// NewDatabaseFromDB wraps an existing connection
func NewDatabaseFromDB(db *sqlx.DB) *Database {
	return &Database{db: db}
}

// EnsureSchema creates the activity tables if they do not exist
func (d *Database) EnsureSchema() error {
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// GetDB returns the sqlx.DB instance
func (d *Database) GetDB() *sqlx.DB {
	return d.db
}

// Transaction executes a function within a transaction
func (d *Database) Transaction(fn func(*sqlx.Tx) error) error {
	tx, err := d.db.Beginx()
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}
