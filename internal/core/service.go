package core

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// LifecycleService is the consumer-facing API over the cached scan results
type LifecycleService struct {
	cache  *CacheManager
	logger *zap.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(cache *CacheManager, logger *zap.Logger) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		cache:  cache,
		logger: logger,
	}
}

// GetLifecycleView returns every account view from the last good scan
func (s *LifecycleService) GetLifecycleView(ctx context.Context) (*LifecycleReport, error) {
	entry, stale, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]AccountLifecycleView, len(entry.Payload.Views))
	copy(views, entry.Payload.Views)

	report := &LifecycleReport{
		Views:      views,
		Errors:     entry.Payload.Result.Errors,
		ComputedAt: entry.ComputedAt,
		Stale:      stale,
	}
	if lastErr := s.cache.LastError(); lastErr != nil {
		report.LastError = lastErr.Error()
	}
	// A scan where every account failed leaves the old views in place but
	// its failure count is the one consumers need to see
	if failed := s.cache.LastFailedResult(); failed != nil {
		report.Errors = failed.Errors
	}
	return report, nil
}

// GetAccountView returns the view of one account
func (s *LifecycleService) GetAccountView(ctx context.Context, accountEmail string) (*AccountLifecycleView, error) {
	entry, _, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	view, ok := entry.Payload.View(strings.ToLower(strings.TrimSpace(accountEmail)))
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &view, nil
}

// GetDurationAndTrendStats returns the aggregates of the last good scan
func (s *LifecycleService) GetDurationAndTrendStats(ctx context.Context) (*DurationTrendStats, error) {
	entry, _, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	stats := entry.Payload.Stats
	stats.WeeklyTrend = append([]TrendBucket(nil), stats.WeeklyTrend...)
	return &stats, nil
}

// GetRiskScores returns the risk entries of the last good scan
func (s *LifecycleService) GetRiskScores(ctx context.Context) ([]RiskScoreEntry, error) {
	entry, _, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	risks := make([]RiskScoreEntry, len(entry.Payload.Risks))
	copy(risks, entry.Payload.Risks)
	return risks, nil
}

// ForceRescan runs a full scan now, bypassing the TTL. When every account
// fails, the result is returned together with the error.
func (s *LifecycleService) ForceRescan(ctx context.Context) (*ScanResult, error) {
	s.logger.Info("Forced rescan requested")
	return s.cache.Refresh(ctx, ScanFull)
}

// Warm preloads the last persisted snapshot
func (s *LifecycleService) Warm(ctx context.Context) error {
	return s.cache.Warm(ctx)
}
