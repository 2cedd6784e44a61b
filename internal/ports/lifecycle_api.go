package ports

import (
	"context"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

// LifecycleAPI is the read and rescan surface offered to consumers
type LifecycleAPI interface {
	// GetLifecycleView returns every account view of the current snapshot
	GetLifecycleView(ctx context.Context) (*core.LifecycleReport, error)

	// GetAccountView returns the view of a single account
	GetAccountView(ctx context.Context, accountEmail string) (*core.AccountLifecycleView, error)

	// GetDurationAndTrendStats returns the aggregate statistics
	GetDurationAndTrendStats(ctx context.Context) (*core.DurationTrendStats, error)

	// GetRiskScores returns one entry per successfully scanned account
	GetRiskScores(ctx context.Context) ([]core.RiskScoreEntry, error)

	// ForceRescan runs a full scan, joining one already in flight
	ForceRescan(ctx context.Context) (*core.ScanResult, error)
}
