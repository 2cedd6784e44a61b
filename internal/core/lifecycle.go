package core

import (
	"sort"
	"strings"
	"time"
)

// FirstEvents holds the earliest timestamp seen per event type
type FirstEvents map[EventType]time.Time

// Deduplicate keeps the earliest occurrence of each event type. The result
// depends only on the set of events, so re-running it is a no-op.
func Deduplicate(events []AccountEmailEvent) FirstEvents {
	first := make(FirstEvents, len(events))
	for _, ev := range events {
		if existing, ok := first[ev.EventType]; !ok || ev.EventDate.Before(existing) {
			first[ev.EventType] = ev.EventDate
		}
	}
	return first
}

// Merge folds other into a copy of f and reports how many entries were
// added or moved earlier
func (f FirstEvents) Merge(other FirstEvents) (FirstEvents, int) {
	merged := f.Clone()
	changed := 0
	for et, ts := range other {
		if existing, ok := merged[et]; !ok || ts.Before(existing) {
			merged[et] = ts
			changed++
		}
	}
	return merged, changed
}

// Clone returns an independent copy
func (f FirstEvents) Clone() FirstEvents {
	out := make(FirstEvents, len(f))
	for et, ts := range f {
		out[et] = ts
	}
	return out
}

// Has reports whether the event type was observed
func (f FirstEvents) Has(et EventType) bool {
	_, ok := f[et]
	return ok
}

// Events expands the map back into events ordered by date, then type
func (f FirstEvents) Events(accountEmail string) []AccountEmailEvent {
	events := make([]AccountEmailEvent, 0, len(f))
	for et, ts := range f {
		events = append(events, AccountEmailEvent{AccountEmail: accountEmail, EventType: et, EventDate: ts})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].EventDate.Equal(events[j].EventDate) {
			return events[i].EventType < events[j].EventType
		}
		return events[i].EventDate.Before(events[j].EventDate)
	})
	return events
}

// InferStage derives the lifecycle stage from the event types present.
// Later business states win even when earlier events are also present.
func InferStage(first FirstEvents) Stage {
	switch {
	case first.Has(EventDeactivated):
		return StageDeactivated
	case first.Has(EventFirstPackage):
		return StageActive
	case first.Has(EventBgcComplete):
		return StageBgcClear
	case first.Has(EventBgcConsider):
		return StageBgcConsider
	case first.Has(EventBgcSubmitted), first.Has(EventBgcInfoNeeded):
		return StageBgcPending
	default:
		// account_created and the empty set both land here
		return StageRegistered
	}
}

// Drift descriptions surfaced for human review
const (
	DriftShouldBeClosed     = "status should be closed"
	DriftShouldBeActive     = "status should be active"
	DriftShouldBeInProgress = "status should be in-progress"
)

// DetectDrift compares the inferred stage with the authoritative status.
// Advisory only: callers must never write the status back.
func DetectDrift(stage Stage, status Status) (string, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(string(status))))
	switch {
	case stage == StageDeactivated && normalized != StatusClosed:
		return DriftShouldBeClosed, true
	case stage == StageActive && normalized != StatusActive:
		return DriftShouldBeActive, true
	case stage == StageBgcPending && normalized == StatusRegistered:
		return DriftShouldBeInProgress, true
	}
	return "", false
}
