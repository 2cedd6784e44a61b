package core

import (
	"sort"
	"strings"
	"time"
)

// Factor labels. These strings are part of the contract with consumers and
// audit tooling; do not rename.
const (
	FactorDeactivated       = "deactivated"
	FactorBgcConsider       = "bgc_consider"
	FactorBgcInfoNeeded     = "bgc_info_needed"
	FactorBgcPendingStale   = "bgc_pending_stale"
	FactorSlowBgc           = "slow_bgc"
	FactorActivationStalled = "activation_stalled"
	FactorStatusDrift       = "status_drift"

	ExternalFactorPrefix = "external:"
)

// Risk bands
const (
	RiskHigh   = "high"
	RiskMedium = "medium"
	RiskLow    = "low"
)

// RiskBand maps a score to its band
func RiskBand(score int) string {
	switch {
	case score >= 70:
		return RiskHigh
	case score >= 40:
		return RiskMedium
	default:
		return RiskLow
	}
}

// RiskPolicy configures the weighting function
type RiskPolicy struct {
	Weights               map[string]int
	DefaultExternalWeight int
	PendingStaleDays      int
	SlowBgcDays           int
	ActivationStaleDays   int
}

// DefaultRiskPolicy returns the built-in weights
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{
		Weights: map[string]int{
			FactorDeactivated:       60,
			FactorBgcConsider:       45,
			FactorBgcInfoNeeded:     15,
			FactorBgcPendingStale:   20,
			FactorSlowBgc:           10,
			FactorActivationStalled: 15,
			FactorStatusDrift:       15,
		},
		DefaultExternalWeight: 10,
		PendingStaleDays:      14,
		SlowBgcDays:           30,
		ActivationStaleDays:   30,
	}
}

// RiskInput is everything the scorer looks at for one account
type RiskInput struct {
	AccountEmail    string
	First           FirstEvents
	Drifted         bool
	ExternalFactors []string
	AsOf            time.Time
}

// RiskScorer computes deterministic weighted risk scores
type RiskScorer struct {
	policy RiskPolicy
}

// NewRiskScorer creates a scorer; missing weights fall back to the defaults
func NewRiskScorer(policy RiskPolicy) *RiskScorer {
	defaults := DefaultRiskPolicy()
	weights := make(map[string]int, len(defaults.Weights)+len(policy.Weights))
	for k, v := range defaults.Weights {
		weights[k] = v
	}
	for k, v := range policy.Weights {
		weights[k] = v
	}
	policy.Weights = weights
	if policy.DefaultExternalWeight <= 0 {
		policy.DefaultExternalWeight = defaults.DefaultExternalWeight
	}
	if policy.PendingStaleDays <= 0 {
		policy.PendingStaleDays = defaults.PendingStaleDays
	}
	if policy.SlowBgcDays <= 0 {
		policy.SlowBgcDays = defaults.SlowBgcDays
	}
	if policy.ActivationStaleDays <= 0 {
		policy.ActivationStaleDays = defaults.ActivationStaleDays
	}
	return &RiskScorer{policy: policy}
}

// Score evaluates the factors in a fixed order and clamps the sum to [0,100].
// The same input always yields the same entry.
func (s *RiskScorer) Score(input RiskInput) RiskScoreEntry {
	first := input.First
	factors := make([]string, 0, 8)

	if first.Has(EventDeactivated) {
		factors = append(factors, FactorDeactivated)
	}
	if first.Has(EventBgcConsider) {
		factors = append(factors, FactorBgcConsider)
	}
	if first.Has(EventBgcInfoNeeded) {
		factors = append(factors, FactorBgcInfoNeeded)
	}
	if InferStage(first) == StageBgcPending && s.pendingSince(first, input.AsOf) >= s.days(s.policy.PendingStaleDays) {
		factors = append(factors, FactorBgcPendingStale)
	}
	if submitted, ok := first[EventBgcSubmitted]; ok {
		if complete, ok := first[EventBgcComplete]; ok && complete.Sub(submitted) >= s.days(s.policy.SlowBgcDays) {
			factors = append(factors, FactorSlowBgc)
		}
	}
	if complete, ok := first[EventBgcComplete]; ok && !first.Has(EventFirstPackage) && !first.Has(EventDeactivated) {
		if input.AsOf.Sub(complete) >= s.days(s.policy.ActivationStaleDays) {
			factors = append(factors, FactorActivationStalled)
		}
	}
	if input.Drifted {
		factors = append(factors, FactorStatusDrift)
	}
	factors = append(factors, normalizeExternal(input.ExternalFactors)...)

	score := 0
	for _, f := range factors {
		score += s.weight(f)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return RiskScoreEntry{
		AccountEmail: input.AccountEmail,
		Score:        score,
		Factors:      factors,
		CalculatedAt: input.AsOf,
	}
}

func (s *RiskScorer) weight(factor string) int {
	if w, ok := s.policy.Weights[factor]; ok {
		return w
	}
	if strings.HasPrefix(factor, ExternalFactorPrefix) {
		if w, ok := s.policy.Weights[strings.TrimPrefix(factor, ExternalFactorPrefix)]; ok {
			return w
		}
		return s.policy.DefaultExternalWeight
	}
	return 0
}

func (s *RiskScorer) days(n int) time.Duration {
	return time.Duration(n) * day
}

// pendingSince is how long the earliest pending event has been open
func (s *RiskScorer) pendingSince(first FirstEvents, asOf time.Time) time.Duration {
	var start time.Time
	for _, et := range []EventType{EventBgcSubmitted, EventBgcInfoNeeded} {
		if ts, ok := first[et]; ok && (start.IsZero() || ts.Before(start)) {
			start = ts
		}
	}
	if start.IsZero() {
		return 0
	}
	return asOf.Sub(start)
}

// normalizeExternal lower-cases, de-duplicates and sorts advisor labels so
// their order never depends on the advisor's reply
func normalizeExternal(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(l, ExternalFactorPrefix)))
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, ExternalFactorPrefix+l)
	}
	sort.Strings(out)
	return out
}
