package core

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// EventType is a semantic lifecycle event classified from a mailbox message
type EventType string

const (
	EventAccountCreated EventType = "account_created"
	EventBgcSubmitted   EventType = "bgc_submitted"
	EventBgcInfoNeeded  EventType = "bgc_info_needed"
	EventBgcComplete    EventType = "bgc_complete"
	EventBgcConsider    EventType = "bgc_consider"
	EventFirstPackage   EventType = "first_package"
	EventDeactivated    EventType = "deactivated"
)

// AllEventTypes returns every event type in declaration order
func AllEventTypes() []EventType {
	return []EventType{
		EventAccountCreated,
		EventBgcSubmitted,
		EventBgcInfoNeeded,
		EventBgcComplete,
		EventBgcConsider,
		EventFirstPackage,
		EventDeactivated,
	}
}

// ParseEventType validates a stored or configured event type name
func ParseEventType(s string) (EventType, error) {
	candidate := EventType(strings.ToLower(strings.TrimSpace(s)))
	for _, et := range AllEventTypes() {
		if et == candidate {
			return et, nil
		}
	}
	return "", fmt.Errorf("unknown event type: %q", s)
}

// Stage is the derived lifecycle phase of an account
type Stage string

const (
	StageRegistered       Stage = "registered"
	StageIdentityVerified Stage = "identity_verified"
	StageBgcPending       Stage = "bgc_pending"
	StageBgcClear         Stage = "bgc_clear"
	StageBgcConsider      Stage = "bgc_consider"
	StageActive           Stage = "active"
	StageDeactivated      Stage = "deactivated"
)

// Status is the authoritative account status owned by the event store
type Status string

const (
	StatusRegistered Status = "registered"
	StatusInProgress Status = "in_progress"
	StatusActive     Status = "active"
	StatusClosed     Status = "closed"
)

// Sender is the resolved "From" of a message
type Sender struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// ParseSender resolves a raw From header into a Sender. Unparseable input
// is kept verbatim as the address.
func ParseSender(raw string) Sender {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Sender{}
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return Sender{Name: addr.Name, Address: strings.ToLower(addr.Address)}
	}

	// Fall back to the "Name <addr>" shape without RFC 5322 validation
	start := strings.LastIndex(raw, "<")
	end := strings.LastIndex(raw, ">")
	if start >= 0 && end > start {
		return Sender{
			Name:    strings.Trim(strings.TrimSpace(raw[:start]), `"`),
			Address: strings.ToLower(strings.TrimSpace(raw[start+1 : end])),
		}
	}
	return Sender{Address: strings.ToLower(raw)}
}

// Domain returns the lower-cased domain part of the address
func (s Sender) Domain() string {
	at := strings.LastIndex(s.Address, "@")
	if at < 0 || at == len(s.Address)-1 {
		return ""
	}
	return strings.ToLower(s.Address[at+1:])
}

// RawMessage is a mailbox message as supplied by a MailboxSource
type RawMessage struct {
	Subject string
	Sender  Sender
	Date    time.Time
	Folder  string
}

// AccountEmailEvent is a classified lifecycle event. Immutable once created.
type AccountEmailEvent struct {
	AccountEmail  string    `json:"account_email"`
	EventType     EventType `json:"event_type"`
	EventDate     time.Time `json:"event_date"`
	SourceSubject string    `json:"source_subject"`
}

// AccountLifecycleView is the derived per-account view served to consumers
type AccountLifecycleView struct {
	AccountEmail      string      `json:"account_email"`
	InferredStage     Stage       `json:"inferred_stage"`
	FirstEventPerType FirstEvents `json:"first_event_per_type"`
	Mismatch          *string     `json:"mismatch,omitempty"`
	RiskScore         *int        `json:"risk_score,omitempty"`
	RiskBand          string      `json:"risk_band,omitempty"`
	LastScannedAt     time.Time   `json:"last_scanned_at"`
	ScanFailed        bool        `json:"scan_failed,omitempty"`
}

// RiskScoreEntry is the risk score computed for one account in one scan cycle
type RiskScoreEntry struct {
	AccountEmail string    `json:"account_email"`
	Score        int       `json:"score"`
	Factors      []string  `json:"factors"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// TrendBucket counts terminal events inside one 7-day window
type TrendBucket struct {
	WeekStart   time.Time `json:"week_start"`
	Label       string    `json:"label"`
	BgcComplete int       `json:"bgc_complete"`
	BgcConsider int       `json:"bgc_consider"`
	Deactivated int       `json:"deactivated"`
}

// DurationTrendStats holds the time-windowed aggregates of a scan
type DurationTrendStats struct {
	AvgDurationDays    float64       `json:"avg_duration_days"`
	QualifyingAccounts int           `json:"qualifying_accounts"`
	WeeklyTrend        []TrendBucket `json:"weekly_trend"`
	ComputedAt         time.Time     `json:"computed_at"`
}

// ScanMode selects how far back a scan reads each mailbox
type ScanMode string

const (
	ScanFull        ScanMode = "full"
	ScanIncremental ScanMode = "incremental"
)

// AccountFailure records why one account was excluded from a scan cycle
type AccountFailure struct {
	AccountEmail string    `json:"account_email"`
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
}

// ScanResult summarizes one scan execution
type ScanResult struct {
	ScanID          string           `json:"scan_id"`
	Mode            ScanMode         `json:"mode"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	AccountsScanned int              `json:"accounts_scanned"`
	MessagesScanned int              `json:"messages_scanned"`
	NewEventsFound  int              `json:"new_events_found"`
	Errors          int              `json:"errors"`
	FailedAccounts  []AccountFailure `json:"failed_accounts,omitempty"`
}

// Snapshot is the payload produced by one successful scan
type Snapshot struct {
	Views  []AccountLifecycleView `json:"views"`
	Risks  []RiskScoreEntry       `json:"risks"`
	Stats  DurationTrendStats     `json:"stats"`
	Result ScanResult             `json:"result"`
}

// View returns the view for an account, if the snapshot holds one
func (s *Snapshot) View(accountEmail string) (AccountLifecycleView, bool) {
	if s == nil {
		return AccountLifecycleView{}, false
	}
	for _, v := range s.Views {
		if v.AccountEmail == accountEmail {
			return v, true
		}
	}
	return AccountLifecycleView{}, false
}

// CacheEntry wraps a snapshot with its freshness metadata
type CacheEntry struct {
	Key        string        `json:"key"`
	Payload    *Snapshot     `json:"payload"`
	ComputedAt time.Time     `json:"computed_at"`
	TTL        time.Duration `json:"ttl"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// Age returns how old the entry is at the given instant
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.ComputedAt)
}

// IsStale reports whether the entry has outlived its TTL
func (e *CacheEntry) IsStale(now time.Time) bool {
	return e.Age(now) >= e.TTL
}

// LifecycleReport is what consumers get from GetLifecycleView
type LifecycleReport struct {
	Views      []AccountLifecycleView `json:"views"`
	Errors     int                    `json:"errors"`
	ComputedAt time.Time              `json:"computed_at"`
	Stale      bool                   `json:"stale"`
	LastError  string                 `json:"last_error,omitempty"`
}
