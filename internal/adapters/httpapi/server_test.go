package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

type fakeAPI struct {
	report   *core.LifecycleReport
	err      error
	rescans  int
	rescanID string
	failed   *core.ScanResult
}

func (f *fakeAPI) GetLifecycleView(ctx context.Context) (*core.LifecycleReport, error) {
	return f.report, f.err
}

func (f *fakeAPI) GetAccountView(ctx context.Context, accountEmail string) (*core.AccountLifecycleView, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, v := range f.report.Views {
		if v.AccountEmail == accountEmail {
			return &v, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", accountEmail, core.ErrAccountNotFound)
}

func (f *fakeAPI) GetDurationAndTrendStats(ctx context.Context) (*core.DurationTrendStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.DurationTrendStats{
		AvgDurationDays:    4,
		QualifyingAccounts: 1,
		WeeklyTrend:        []core.TrendBucket{{WeekStart: t0, BgcComplete: 2, Deactivated: 1}},
		ComputedAt:         t0,
	}, nil
}

func (f *fakeAPI) GetRiskScores(ctx context.Context) ([]core.RiskScoreEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []core.RiskScoreEntry{{AccountEmail: "a@x.com", Score: 55, Factors: []string{"status_drift"}, CalculatedAt: t0}}, nil
}

func (f *fakeAPI) ForceRescan(ctx context.Context) (*core.ScanResult, error) {
	if f.err != nil {
		return f.failed, f.err
	}
	f.rescans++
	return &core.ScanResult{ScanID: f.rescanID, Mode: core.ScanFull, AccountsScanned: 1}, nil
}

func testReport() *core.LifecycleReport {
	mismatch := core.DriftShouldBeInProgress
	score := 55
	return &core.LifecycleReport{
		Views: []core.AccountLifecycleView{{
			AccountEmail:  "a@x.com",
			InferredStage: core.StageBgcClear,
			FirstEventPerType: core.FirstEvents{
				core.EventBgcSubmitted: t0.Add(-96 * time.Hour),
				core.EventBgcComplete:  t0,
			},
			Mismatch:  &mismatch,
			RiskScore: &score,
			RiskBand:  core.RiskMedium,
		}},
		Errors:     1,
		ComputedAt: t0,
	}
}

func newTestServer(t *testing.T, api *fakeAPI) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	roles, err := core.NewRoleRegistry(map[string][]string{
		"admin":   {"all"},
		"support": {"view_lifecycle"},
		"analyst": {"view_lifecycle", "view_stats", "view_risk", "view_drift"},
	})
	require.NoError(t, err)
	return NewServer(api, roles, "127.0.0.1:0", "", zap.NewNop())
}

func do(s *Server, method, path, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		req.Header.Set(DefaultRoleHeader, role)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	rec := do(newTestServer(t, &fakeAPI{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestServer_LifecycleRedaction(t *testing.T) {
	s := newTestServer(t, &fakeAPI{report: testReport()})

	rec := do(s, http.MethodGet, "/api/v1/lifecycle", "support")
	require.Equal(t, http.StatusOK, rec.Code)

	var report core.LifecycleReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Views, 1)
	view := report.Views[0]
	assert.Equal(t, 1, report.Errors)
	assert.True(t, view.FirstEventPerType.Has(core.EventBgcSubmitted))
	assert.False(t, view.FirstEventPerType.Has(core.EventBgcComplete))
	assert.Nil(t, view.Mismatch)
	assert.Nil(t, view.RiskScore)

	rec = do(s, http.MethodGet, "/api/v1/lifecycle", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	view = report.Views[0]
	assert.True(t, view.FirstEventPerType.Has(core.EventBgcComplete))
	require.NotNil(t, view.Mismatch)
	assert.Equal(t, core.DriftShouldBeInProgress, *view.Mismatch)
	require.NotNil(t, view.RiskScore)
	assert.Equal(t, 55, *view.RiskScore)
}

func TestServer_Forbidden(t *testing.T) {
	s := newTestServer(t, &fakeAPI{report: testReport()})

	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/api/v1/lifecycle", "").Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/api/v1/lifecycle", "intruder").Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/api/v1/stats", "support").Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodGet, "/api/v1/risks", "support").Code)
	assert.Equal(t, http.StatusForbidden, do(s, http.MethodPost, "/api/v1/rescan", "analyst").Code)
}

func TestServer_AccountView(t *testing.T) {
	s := newTestServer(t, &fakeAPI{report: testReport()})

	rec := do(s, http.MethodGet, "/api/v1/lifecycle/a@x.com", "analyst")
	require.Equal(t, http.StatusOK, rec.Code)
	var view core.AccountLifecycleView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, core.StageBgcPending, view.InferredStage, "bgc_clear is masked without view_bgc_complete")
	assert.NotNil(t, view.Mismatch)

	rec = do(s, http.MethodGet, "/api/v1/lifecycle/a@x.com", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, core.StageBgcClear, view.InferredStage)

	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/lifecycle/z@x.com", "analyst").Code)
}

func TestServer_StatsRisksRescan(t *testing.T) {
	api := &fakeAPI{report: testReport(), rescanID: "scan-9"}
	s := newTestServer(t, api)

	rec := do(s, http.MethodGet, "/api/v1/stats", "analyst")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats core.DurationTrendStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Zero(t, stats.AvgDurationDays)
	require.Len(t, stats.WeeklyTrend, 1)
	assert.Zero(t, stats.WeeklyTrend[0].BgcComplete)
	assert.Equal(t, 1, stats.WeeklyTrend[0].Deactivated)

	rec = do(s, http.MethodGet, "/api/v1/stats", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 4.0, stats.AvgDurationDays)
	assert.Equal(t, 2, stats.WeeklyTrend[0].BgcComplete)

	rec = do(s, http.MethodGet, "/api/v1/risks", "analyst")
	require.Equal(t, http.StatusOK, rec.Code)
	var risks struct {
		Risks []core.RiskScoreEntry `json:"risks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &risks))
	require.Len(t, risks.Risks, 1)
	assert.Equal(t, 55, risks.Risks[0].Score)

	rec = do(s, http.MethodPost, "/api/v1/rescan", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var result core.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "scan-9", result.ScanID)
	assert.Equal(t, 1, api.rescans)
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"cache empty", fmt.Errorf("%w: boom", core.ErrCacheEmpty), http.StatusServiceUnavailable},
		{"partial failure", &core.ScanError{Kind: core.KindScanPartialFailure}, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &fakeAPI{err: tt.err})
			assert.Equal(t, tt.want, do(s, http.MethodGet, "/api/v1/lifecycle", "admin").Code)
		})
	}
}

func TestServer_RescanAllAccountsFailed(t *testing.T) {
	api := &fakeAPI{
		report: testReport(),
		err:    &core.ScanError{Kind: core.KindScanPartialFailure, Err: fmt.Errorf("all 2 accounts failed to scan")},
		failed: &core.ScanResult{ScanID: "scan-10", Mode: core.ScanFull, Errors: 2},
	}
	s := newTestServer(t, api)

	rec := do(s, http.MethodPost, "/api/v1/rescan", "admin")
	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body struct {
		Error  string          `json:"error"`
		Result core.ScanResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "all 2 accounts failed")
	assert.Equal(t, 2, body.Result.Errors)
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t, &fakeAPI{report: testReport()})
	require.NoError(t, s.Start())
	assert.NoError(t, s.Stop())
}
