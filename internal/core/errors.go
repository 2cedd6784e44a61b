package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies scan failures for reporting
type ErrorKind string

const (
	KindSourceUnavailable  ErrorKind = "source_unavailable"
	KindStoreUnavailable   ErrorKind = "store_unavailable"
	KindScanPartialFailure ErrorKind = "scan_partial_failure"
)

var (
	// ErrSourceUnavailable is returned when the mailbox source cannot be reached
	ErrSourceUnavailable = errors.New("mailbox source unavailable")
	// ErrStoreUnavailable is returned when the event store cannot be reached
	ErrStoreUnavailable = errors.New("event store unavailable")
	// ErrScanPartialFailure is returned when some accounts failed to scan
	ErrScanPartialFailure = errors.New("scan partially failed")
	// ErrCacheEmpty is returned when no scan has ever succeeded
	ErrCacheEmpty = errors.New("lifecycle cache is empty")
	// ErrAccountNotFound is returned by stores for unknown accounts
	ErrAccountNotFound = errors.New("account not found")
	// ErrSnapshotNotFound is returned by snapshot repositories on a miss
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

// ScanError is a failure attributed to one account (or to the whole scan
// when Account is empty). A scan where every account failed carries its
// Result so callers can still report the failure count.
type ScanError struct {
	Kind    ErrorKind
	Account string
	Err     error
	Result  *ScanResult
}

func (e *ScanError) Error() string {
	if e.Account == "" {
		return fmt.Sprintf("[%s] %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Account, e.Err)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind
func (e *ScanError) Is(target error) bool {
	switch e.Kind {
	case KindSourceUnavailable:
		return target == ErrSourceUnavailable
	case KindStoreUnavailable:
		return target == ErrStoreUnavailable
	case KindScanPartialFailure:
		return target == ErrScanPartialFailure
	}
	return false
}

// SourceUnavailable wraps a mailbox transport failure for an account
func SourceUnavailable(account string, err error) *ScanError {
	return &ScanError{Kind: KindSourceUnavailable, Account: account, Err: err}
}

// StoreUnavailable wraps an event store failure for an account
func StoreUnavailable(account string, err error) *ScanError {
	return &ScanError{Kind: KindStoreUnavailable, Account: account, Err: err}
}

// FailedResult returns the scan result carried by err, if any
func FailedResult(err error) *ScanResult {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Result
	}
	return nil
}

// KindOf returns the ErrorKind carried by err, defaulting to source_unavailable
func KindOf(err error) ErrorKind {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr.Kind
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return KindStoreUnavailable
	}
	return KindSourceUnavailable
}
