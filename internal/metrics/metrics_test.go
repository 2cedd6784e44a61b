package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_ScanCompleted(t *testing.T) {
	m := New()
	finished := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	m.ScanCompleted(&core.ScanResult{
		Mode:            core.ScanFull,
		FinishedAt:      finished,
		AccountsScanned: 3,
		MessagesScanned: 40,
		NewEventsFound:  5,
		Errors:          1,
	}, 2*time.Second)

	out := scrape(t, m)
	assert.Contains(t, out, `bgc_lifecycle_scan_runs_total{mode="full"} 1`)
	assert.Contains(t, out, `bgc_lifecycle_scan_accounts_scanned 3`)
	assert.Contains(t, out, `bgc_lifecycle_scan_accounts_failed_total 1`)
	assert.Contains(t, out, `bgc_lifecycle_scan_messages_scanned_total 40`)
	assert.Contains(t, out, `bgc_lifecycle_scan_new_events_total 5`)
	assert.Contains(t, out, `bgc_lifecycle_scan_duration_seconds_count{mode="full"} 1`)
}

func TestMetrics_FailuresAndCacheReads(t *testing.T) {
	m := New()

	m.ScanFailed(&core.ScanError{Kind: core.KindScanPartialFailure})
	m.ScanFailed(core.StoreUnavailable("", io.EOF))
	m.CacheServed(core.CacheStateStale)
	m.CacheServed(core.CacheStateStale)
	m.CacheServed(core.CacheStateFresh)

	out := scrape(t, m)
	assert.Contains(t, out, `bgc_lifecycle_scan_failures_total{kind="scan_partial_failure"} 1`)
	assert.Contains(t, out, `bgc_lifecycle_scan_failures_total{kind="store_unavailable"} 1`)
	assert.Contains(t, out, `bgc_lifecycle_cache_reads_total{state="stale"} 2`)
	assert.Contains(t, out, `bgc_lifecycle_cache_reads_total{state="fresh"} 1`)
}

func TestMetrics_RuntimeCollectors(t *testing.T) {
	m := New()
	var _ core.ScanObserver = m

	assert.True(t, strings.Contains(scrape(t, m), "go_goroutines"))
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer(New(), "127.0.0.1:0", nil)
	require.NoError(t, s.Start())
	assert.NoError(t, s.Stop())
}
