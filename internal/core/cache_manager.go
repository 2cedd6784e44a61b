package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Cache states reported to observers
const (
	CacheStateFresh = "fresh"
	CacheStateStale = "stale"
	CacheStateEmpty = "empty"
)

// DefaultCacheKey is the key of the global lifecycle snapshot
const DefaultCacheKey = "global_bgc_scan"

// ScanFunc produces a new snapshot from the previous one
type ScanFunc func(ctx context.Context, mode ScanMode, prev *Snapshot) (*Snapshot, error)

// CacheOptions tunes the cache manager
type CacheOptions struct {
	Key            string
	TTL            time.Duration
	ScanTimeout    time.Duration
	PersistTimeout time.Duration
}

// CacheOption sets an optional collaborator
type CacheOption func(*CacheManager)

// WithSnapshotRepository persists every good snapshot
func WithSnapshotRepository(repo SnapshotRepository) CacheOption {
	return func(m *CacheManager) { m.repo = repo }
}

// WithScanObserver reports scans and cache reads
func WithScanObserver(observer ScanObserver) CacheOption {
	return func(m *CacheManager) { m.observer = observer }
}

// WithCacheClock overrides the manager's notion of now
func WithCacheClock(now func() time.Time) CacheOption {
	return func(m *CacheManager) { m.now = now }
}

// CacheManager serves the last good snapshot and refreshes it with
// stale-while-revalidate semantics. At most one scan runs at a time.
type CacheManager struct {
	scan     ScanFunc
	repo     SnapshotRepository
	observer ScanObserver
	logger   *zap.Logger
	opts     CacheOptions
	now      func() time.Time

	mu         sync.RWMutex
	entry      *CacheEntry
	forceStale bool
	refreshing bool
	lastErr    error
	lastFailed *ScanResult

	group singleflight.Group
	wg    sync.WaitGroup
}

// NewCacheManager creates a cache manager around a scan function
func NewCacheManager(scan ScanFunc, logger *zap.Logger, opts CacheOptions, options ...CacheOption) *CacheManager {
	if opts.Key == "" {
		opts.Key = DefaultCacheKey
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = 10 * time.Minute
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &CacheManager{
		scan:   scan,
		logger: logger,
		opts:   opts,
		now:    time.Now,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Get returns the current entry and whether it is stale. A stale read
// triggers one background incremental refresh and returns immediately.
// With no entry at all, Get blocks on the first scan.
func (m *CacheManager) Get(ctx context.Context) (*CacheEntry, bool, error) {
	m.mu.Lock()
	entry := m.entry
	if entry == nil {
		m.mu.Unlock()
		m.served(CacheStateEmpty)

		if _, err := m.Refresh(ctx, ScanFull); err != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrCacheEmpty, err)
		}

		m.mu.RLock()
		defer m.mu.RUnlock()
		if m.entry == nil {
			return nil, false, ErrCacheEmpty
		}
		return m.entry, false, nil
	}

	stale := m.forceStale || entry.IsStale(m.now())
	if stale && !m.refreshing {
		m.refreshing = true
		m.wg.Add(1)
		go m.backgroundRefresh()
	}
	m.mu.Unlock()

	if stale {
		m.served(CacheStateStale)
	} else {
		m.served(CacheStateFresh)
	}
	return entry, stale, nil
}

// Current returns the entry without triggering any scan
func (m *CacheManager) Current() (*CacheEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.entry == nil {
		return nil, false
	}
	return m.entry, m.forceStale || m.entry.IsStale(m.now())
}

// LastError returns the error of the most recent failed scan, cleared by the
// next success
func (m *CacheManager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// LastFailedResult returns the result of the most recent scan when every
// account in it failed, cleared by the next success
func (m *CacheManager) LastFailedResult() *ScanResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastFailed
}

type flight struct {
	mode   ScanMode
	result *ScanResult
}

// Refresh bypasses the TTL and blocks until a scan completes. A caller
// arriving while a scan is in flight joins that scan, except that a full
// request finding an incremental scan in flight waits for it and then runs
// its own full scan. When every account fails, the returned
// result carries the failure count alongside the error.
func (m *CacheManager) Refresh(ctx context.Context, mode ScanMode) (*ScanResult, error) {
	for {
		ch := m.group.DoChan(m.opts.Key, func() (interface{}, error) {
			result, err := m.runScan(mode)
			return flight{mode: mode, result: result}, err
		})

		var res singleflight.Result
		select {
		case res = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		f := res.Val.(flight)
		if mode == ScanFull && f.mode != ScanFull {
			continue
		}
		return f.result, res.Err
	}
}

// Warm loads the last persisted snapshot. It is served as stale until the
// next successful scan.
func (m *CacheManager) Warm(ctx context.Context) error {
	if m.repo == nil {
		return nil
	}

	entry, err := m.repo.Get(ctx, m.opts.Key)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			m.logger.Info("No persisted snapshot to warm from", zap.String("key", m.opts.Key))
			return nil
		}
		return fmt.Errorf("failed to load persisted snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entry != nil {
		return nil
	}
	m.entry = entry
	m.forceStale = true

	m.logger.Info("Warmed lifecycle cache from persisted snapshot",
		zap.String("key", entry.Key),
		zap.Time("computed_at", entry.ComputedAt))
	return nil
}

// Wait blocks until background refreshes have finished
func (m *CacheManager) Wait() {
	m.wg.Wait()
}

func (m *CacheManager) backgroundRefresh() {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		m.refreshing = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ScanTimeout)
	defer cancel()

	if _, err := m.Refresh(ctx, ScanIncremental); err != nil {
		m.logger.Warn("Background refresh failed, serving stale snapshot", zap.Error(err))
	}
}

// runScan is shared by every caller of one flight. It is detached from the
// callers' contexts so one caller giving up does not cancel the others.
func (m *CacheManager) runScan(mode ScanMode) (*ScanResult, error) {
	m.mu.RLock()
	var prev *Snapshot
	if m.entry != nil {
		prev = m.entry.Payload
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.ScanTimeout)
	defer cancel()

	started := m.now()
	snapshot, err := m.scan(ctx, mode, prev)
	if err == nil && snapshot == nil {
		err = errors.New("scan returned no snapshot")
	}
	if err != nil {
		failed := FailedResult(err)
		m.mu.Lock()
		m.lastErr = err
		if failed != nil {
			m.lastFailed = failed
		}
		m.mu.Unlock()
		if m.observer != nil {
			m.observer.ScanFailed(err)
		}
		m.logger.Error("Lifecycle scan failed", zap.String("mode", string(mode)), zap.Error(err))
		return failed, err
	}

	computedAt := m.now()
	entry := &CacheEntry{
		Key:        m.opts.Key,
		Payload:    snapshot,
		ComputedAt: computedAt,
		TTL:        m.opts.TTL,
		ExpiresAt:  computedAt.Add(m.opts.TTL),
	}

	m.mu.Lock()
	m.entry = entry
	m.forceStale = false
	m.lastErr = nil
	m.lastFailed = nil
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.ScanCompleted(&snapshot.Result, computedAt.Sub(started))
	}
	m.persist(entry)

	return &snapshot.Result, nil
}

func (m *CacheManager) persist(entry *CacheEntry) {
	if m.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.PersistTimeout)
	defer cancel()
	if err := m.repo.Set(ctx, entry); err != nil {
		m.logger.Warn("Failed to persist snapshot", zap.String("key", entry.Key), zap.Error(err))
	}
}

func (m *CacheManager) served(state string) {
	if m.observer != nil {
		m.observer.CacheServed(state)
	}
}
