package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			email TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS account_events (
			account_email TEXT NOT NULL,
			event_type TEXT NOT NULL,
			event_date INTEGER NOT NULL,
			source_subject TEXT NOT NULL,
			PRIMARY KEY (account_email, event_type)
		)`,
	},
	upsertEvent: `
		INSERT INTO account_events (account_email, event_type, event_date, source_subject)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_email, event_type) DO UPDATE SET
			event_date = excluded.event_date,
			source_subject = excluded.source_subject
		WHERE excluded.event_date < account_events.event_date
	`,
	upsertAccount: `
		INSERT INTO accounts (email, status, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`,
}

// NewSQLiteStore opens (and if needed creates) a SQLite account store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := newSQLStore(db, sqliteDialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
