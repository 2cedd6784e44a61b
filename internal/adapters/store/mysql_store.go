package store

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

// The source_subject assignment must come first: MySQL applies the
// assignments left to right, so it still sees the old event_date
var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			email VARCHAR(255) PRIMARY KEY,
			status VARCHAR(32) NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS account_events (
			account_email VARCHAR(255) NOT NULL,
			event_type VARCHAR(32) NOT NULL,
			event_date BIGINT NOT NULL,
			source_subject TEXT NOT NULL,
			PRIMARY KEY (account_email, event_type)
		)`,
	},
	upsertEvent: `
		INSERT INTO account_events (account_email, event_type, event_date, source_subject)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			source_subject = IF(VALUES(event_date) < event_date, VALUES(source_subject), source_subject),
			event_date = LEAST(event_date, VALUES(event_date))
	`,
	upsertAccount: `
		INSERT INTO accounts (email, status, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE
			status = VALUES(status),
			updated_at = VALUES(updated_at)
	`,
}

// NewMySQLStore connects to a MySQL account store
func NewMySQLStore(dsn string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	store, err := NewMySQLStoreFromDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewMySQLStoreFromDB creates the store on an already opened connection pool
func NewMySQLStoreFromDB(db *sql.DB, logger *zap.Logger) (*SQLStore, error) {
	return newSQLStore(db, mysqlDialect, logger)
}
