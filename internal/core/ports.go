package core

import (
	"context"
	"time"
)

// MailboxSource supplies raw messages per account mailbox
type MailboxSource interface {
	// ListMessages returns the messages of one mailbox, optionally only those
	// dated at or after since
	ListMessages(ctx context.Context, accountEmail, mailboxID string, since *time.Time) ([]RawMessage, error)
}

// AccountStore is the authoritative owner of the scan universe and statuses
type AccountStore interface {
	// ListAccounts returns every account email to scan
	ListAccounts(ctx context.Context) ([]string, error)

	// GetAuthoritativeStatus returns the stored status of an account
	GetAuthoritativeStatus(ctx context.Context, accountEmail string) (Status, error)
}

// EventRepository persists classified events across restarts
type EventRepository interface {
	// SaveEvents stores events, keeping the earliest date per account and type
	SaveEvents(ctx context.Context, events []AccountEmailEvent) error

	// LoadEvents returns the stored events of an account
	LoadEvents(ctx context.Context, accountEmail string) ([]AccountEmailEvent, error)
}

// SnapshotRepository persists cache entries so the last-known-good view
// survives restarts
type SnapshotRepository interface {
	// Get retrieves the entry stored under key
	Get(ctx context.Context, key string) (*CacheEntry, error)

	// Set stores an entry, replacing any previous one with the same key
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes an entry
	Delete(ctx context.Context, key string) error

	// Cleanup removes entries past their retention
	Cleanup(ctx context.Context) error
}

// RiskAdvisor supplies qualitative risk factor labels for an account
type RiskAdvisor interface {
	// AssessAccount returns factor labels drawn from the input vocabulary
	AssessAccount(ctx context.Context, input *AdvisorInput) ([]string, error)
}

// ScanObserver receives scan telemetry
type ScanObserver interface {
	ScanCompleted(result *ScanResult, elapsed time.Duration)
	ScanFailed(err error)
	CacheServed(state string)
}
