package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mikey/bgc-lifecycle/internal/adapters/store"
	"github.com/mikey/bgc-lifecycle/internal/core"
	"github.com/mikey/bgc-lifecycle/internal/di"
)

// report is the JSON document printed with -json
type report struct {
	Result *core.ScanResult            `json:"result"`
	Views  []core.AccountLifecycleView `json:"views"`
	Stats  *core.DurationTrendStats    `json:"stats"`
	Risks  []core.RiskScoreEntry       `json:"risks"`
}

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(func(logger *zap.Logger, svc *core.LifecycleService, accounts *store.SQLStore) error {
		defer logger.Sync()
		defer accounts.Close()
		return scan(svc, flags.JSONOutput)
	}); err != nil {
		fmt.Printf("Scan failed: %v\n", err)
		os.Exit(1)
	}
}

func scan(svc *core.LifecycleService, asJSON bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	result, err := svc.ForceRescan(ctx)
	if err != nil && result != nil {
		return fmt.Errorf("%d accounts failed to scan: %w", result.Errors, err)
	}
	if err != nil {
		return err
	}
	view, err := svc.GetLifecycleView(ctx)
	if err != nil {
		return err
	}
	stats, err := svc.GetDurationAndTrendStats(ctx)
	if err != nil {
		return err
	}
	risks, err := svc.GetRiskScores(ctx)
	if err != nil {
		return err
	}

	out := report{Result: result, Views: view.Views, Stats: stats, Risks: risks}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printReport(out)
	return nil
}

func printReport(r report) {
	fmt.Printf("Scan %s (%s): %d accounts, %d messages, %d new events, %d errors\n",
		r.Result.ScanID, r.Result.Mode, r.Result.AccountsScanned,
		r.Result.MessagesScanned, r.Result.NewEventsFound, r.Result.Errors)
	for _, f := range r.Result.FailedAccounts {
		fmt.Printf("  failed: %s (%s)\n", f.AccountEmail, f.Kind)
	}
	fmt.Println()

	fmt.Printf("%-36s %-18s %-6s %-8s %s\n", "ACCOUNT", "STAGE", "RISK", "BAND", "MISMATCH")
	for _, v := range r.Views {
		risk, mismatch := "-", "-"
		if v.RiskScore != nil {
			risk = fmt.Sprintf("%d", *v.RiskScore)
		}
		if v.Mismatch != nil {
			mismatch = *v.Mismatch
		}
		if v.ScanFailed {
			mismatch += " (scan failed)"
		}
		fmt.Printf("%-36s %-18s %-6s %-8s %s\n", v.AccountEmail, v.InferredStage, risk, v.RiskBand, mismatch)
	}
	fmt.Println()

	fmt.Printf("Average background check duration: %.1f days over %d accounts\n",
		r.Stats.AvgDurationDays, r.Stats.QualifyingAccounts)
	fmt.Println("Weekly trend (complete/consider/deactivated):")
	for _, b := range r.Stats.WeeklyTrend {
		fmt.Printf("  %-12s %d/%d/%d\n", b.Label, b.BgcComplete, b.BgcConsider, b.Deactivated)
	}
}
