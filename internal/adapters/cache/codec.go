package cache

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// ErrNotFound is returned when no snapshot is stored under a key
var ErrNotFound = core.ErrSnapshotNotFound

func encodeEntry(entry *core.CacheEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*core.CacheEntry, error) {
	var entry core.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if entry.Payload == nil {
		return nil, fmt.Errorf("failed to decode snapshot: empty payload")
	}
	return &entry, nil
}

// purgeAfter is when a stored entry may be removed
func purgeAfter(entry *core.CacheEntry, retention time.Duration) time.Time {
	return entry.ExpiresAt.Add(retention)
}
