package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// RefreshTarget runs a scan that bypasses the cache TTL
type RefreshTarget interface {
	Refresh(ctx context.Context, mode core.ScanMode) (*core.ScanResult, error)
}

// Refresher keeps the lifecycle cache warm with periodic incremental scans
// and a slower periodic full rescan
type Refresher struct {
	target       RefreshTarget
	interval     time.Duration
	fullInterval time.Duration
	timeout      time.Duration
	logger       *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewRefresher creates a refresher. A zero interval disables that schedule.
func NewRefresher(target RefreshTarget, interval, fullInterval, timeout time.Duration, logger *zap.Logger) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Refresher{
		target:       target,
		interval:     interval,
		fullInterval: fullInterval,
		timeout:      timeout,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// Start starts the refresh loop
func (r *Refresher) Start() error {
	r.logger.Info("Starting lifecycle refresher",
		zap.Duration("interval", r.interval),
		zap.Duration("full_interval", r.fullInterval))

	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop stops the refresh loop and waits for a running refresh to return
func (r *Refresher) Stop() error {
	r.once.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	return nil
}

func (r *Refresher) run() {
	defer r.wg.Done()

	incremental := tick(r.interval)
	defer incremental.Stop()
	full := tick(r.fullInterval)
	defer full.Stop()

	for {
		select {
		case <-incremental.C:
			r.refresh(core.ScanIncremental)
		case <-full.C:
			r.refresh(core.ScanFull)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Refresher) refresh(mode core.ScanMode) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	result, err := r.target.Refresh(ctx, mode)
	if err != nil {
		r.logger.Warn("Scheduled refresh failed", zap.String("mode", string(mode)), zap.Error(err))
		return
	}
	r.logger.Info("Scheduled refresh completed",
		zap.String("mode", string(mode)),
		zap.String("scan_id", result.ScanID),
		zap.Int("accounts_scanned", result.AccountsScanned),
		zap.Int("errors", result.Errors))
}

// ticker wraps time.Ticker so a disabled schedule never fires
type ticker struct {
	t *time.Ticker
	C <-chan time.Time
}

func tick(d time.Duration) ticker {
	if d <= 0 {
		return ticker{C: make(chan time.Time)}
	}
	t := time.NewTicker(d)
	return ticker{t: t, C: t.C}
}

func (t ticker) Stop() {
	if t.t != nil {
		t.t.Stop()
	}
}
