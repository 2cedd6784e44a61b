package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// dialect holds the statements that differ between drivers
type dialect struct {
	name          string
	schema        []string
	upsertEvent   string
	upsertAccount string
}

// SQLStore is the authoritative account store and event repository backed
// by a SQL database
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
	now     func() time.Time
}

func newSQLStore(db *sql.DB, d dialect, logger *zap.Logger) (*SQLStore, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{db: db, dialect: d, logger: logger, now: time.Now}, nil
}

// ListAccounts returns every account email ordered by address
func (s *SQLStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT email FROM accounts ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// GetAuthoritativeStatus returns the stored status of an account
func (s *SQLStore) GetAuthoritativeStatus(ctx context.Context, accountEmail string) (core.Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM accounts WHERE email = ?
	`, normalizeEmail(accountEmail)).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", core.ErrAccountNotFound
		}
		return "", fmt.Errorf("failed to query status: %w", err)
	}
	return core.Status(status), nil
}

// UpsertAccount creates or updates an account and its status. The scan
// engine never calls this; it exists for provisioning and the CLI.
func (s *SQLStore) UpsertAccount(ctx context.Context, accountEmail string, status core.Status) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsertAccount,
		normalizeEmail(accountEmail), string(status), s.now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// SaveEvents stores events, keeping the earliest date per account and type
func (s *SQLStore) SaveEvents(ctx context.Context, events []core.AccountEmailEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsertEvent)
	if err != nil {
		return fmt.Errorf("failed to prepare event upsert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx,
			normalizeEmail(ev.AccountEmail),
			string(ev.EventType),
			ev.EventDate.UTC().UnixNano(),
			ev.SourceSubject,
		); err != nil {
			return fmt.Errorf("failed to upsert event %s for %s: %w", ev.EventType, ev.AccountEmail, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}

	s.logger.Debug("Stored lifecycle events", zap.Int("count", len(events)))
	return nil
}

// LoadEvents returns the stored events of an account ordered by date
func (s *SQLStore) LoadEvents(ctx context.Context, accountEmail string) ([]core.AccountEmailEvent, error) {
	email := normalizeEmail(accountEmail)
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_type, event_date, source_subject
		FROM account_events
		WHERE account_email = ?
		ORDER BY event_date
	`, email)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	var events []core.AccountEmailEvent
	for rows.Next() {
		var (
			eventType string
			eventDate int64
			subject   string
		)
		if err := rows.Scan(&eventType, &eventDate, &subject); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		et, err := core.ParseEventType(eventType)
		if err != nil {
			s.logger.Warn("Skipping stored event with unknown type",
				zap.String("account", email),
				zap.String("event_type", eventType))
			continue
		}
		events = append(events, core.AccountEmailEvent{
			AccountEmail:  email,
			EventType:     et,
			EventDate:     time.Unix(0, eventDate).UTC(),
			SourceSubject: subject,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	return events, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
