package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

type recordingTarget struct {
	mu    sync.Mutex
	modes []core.ScanMode
	err   error
}

func (r *recordingTarget) Refresh(ctx context.Context, mode core.ScanMode) (*core.ScanResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modes = append(r.modes, mode)
	if r.err != nil {
		return nil, r.err
	}
	return &core.ScanResult{ScanID: "s", Mode: mode}, nil
}

func (r *recordingTarget) count(mode core.ScanMode) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.modes {
		if m == mode {
			n++
		}
	}
	return n
}

func (r *recordingTarget) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.modes)
}

func TestRefresher_RunsBothSchedules(t *testing.T) {
	target := &recordingTarget{}
	r := NewRefresher(target, 10*time.Millisecond, 30*time.Millisecond, time.Second, zap.NewNop())
	require.NoError(t, r.Start())

	assert.Eventually(t, func() bool {
		return target.count(core.ScanIncremental) >= 2 && target.count(core.ScanFull) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Stop())
	stopped := target.total()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, target.total())

	assert.NoError(t, r.Stop())
}

func TestRefresher_DisabledSchedules(t *testing.T) {
	target := &recordingTarget{}
	r := NewRefresher(target, 0, 0, 0, nil)
	require.NoError(t, r.Start())
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, r.Stop())
	assert.Zero(t, target.total())
}

func TestRefresher_FailuresKeepRunning(t *testing.T) {
	target := &recordingTarget{err: errors.New("source down")}
	r := NewRefresher(target, 5*time.Millisecond, 0, time.Second, zap.NewNop())
	require.NoError(t, r.Start())
	defer r.Stop()

	assert.Eventually(t, func() bool { return target.total() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestRefresher_DrivesCacheManager(t *testing.T) {
	var mu sync.Mutex
	var modes []core.ScanMode
	scan := func(ctx context.Context, mode core.ScanMode, prev *core.Snapshot) (*core.Snapshot, error) {
		mu.Lock()
		defer mu.Unlock()
		modes = append(modes, mode)
		return &core.Snapshot{Result: core.ScanResult{Mode: mode}}, nil
	}
	cache := core.NewCacheManager(scan, zap.NewNop(), core.CacheOptions{TTL: time.Hour})

	r := NewRefresher(cache, 10*time.Millisecond, 0, time.Second, nil)
	require.NoError(t, r.Start())

	assert.Eventually(t, func() bool {
		_, stale := cache.Current()
		return !stale && cache.LastError() == nil && func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(modes) > 0
		}()
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, r.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, core.ScanIncremental, modes[0])
}
