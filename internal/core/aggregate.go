package core

import (
	"time"
)

const (
	day  = 24 * time.Hour
	week = 7 * day

	// TrendWeeks is the number of 7-day windows in the weekly trend
	TrendWeeks = 4

	// MaxPlausibleBgcDays excludes implausibly long checks as data-quality outliers
	MaxPlausibleBgcDays = 90
)

// BgcDurationDays returns the whole days between the first submission and
// the first completion. Only spans strictly between 0 and 90 days qualify.
func BgcDurationDays(first FirstEvents) (int, bool) {
	submitted, ok := first[EventBgcSubmitted]
	if !ok {
		return 0, false
	}
	complete, ok := first[EventBgcComplete]
	if !ok {
		return 0, false
	}

	days := int(complete.Sub(submitted) / day)
	if days <= 0 || days >= MaxPlausibleBgcDays {
		return 0, false
	}
	return days, true
}

// AverageBgcDuration averages the qualifying durations; 0 when none qualify
func AverageBgcDuration(accounts []FirstEvents) (float64, int) {
	total, count := 0, 0
	for _, first := range accounts {
		if days, ok := BgcDurationDays(first); ok {
			total += days
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	return float64(total) / float64(count), count
}

// WeeklyTrend buckets events dated in (now-28d, now] into four 7-day
// windows ordered oldest to newest. Each bucket is labeled by the date its
// window starts.
func WeeklyTrend(events []AccountEmailEvent, now time.Time) []TrendBucket {
	buckets := make([]TrendBucket, TrendWeeks)
	for i := range buckets {
		start := now.Add(-time.Duration(TrendWeeks-i) * week)
		buckets[i] = TrendBucket{
			WeekStart: start,
			Label:     start.Format("2006-01-02"),
		}
	}

	for _, ev := range events {
		age := now.Sub(ev.EventDate)
		if age < 0 || age >= TrendWeeks*week {
			continue
		}
		// age in [0, 7d) is the newest window
		idx := TrendWeeks - 1 - int(age/week)
		switch ev.EventType {
		case EventBgcComplete:
			buckets[idx].BgcComplete++
		case EventBgcConsider:
			buckets[idx].BgcConsider++
		case EventDeactivated:
			buckets[idx].Deactivated++
		}
	}
	return buckets
}

// ComputeStats derives the duration and trend aggregates for one scan cycle
func ComputeStats(accounts map[string]FirstEvents, now time.Time) DurationTrendStats {
	firsts := make([]FirstEvents, 0, len(accounts))
	var events []AccountEmailEvent
	for email, first := range accounts {
		firsts = append(firsts, first)
		events = append(events, first.Events(email)...)
	}

	avg, qualifying := AverageBgcDuration(firsts)
	return DurationTrendStats{
		AvgDurationDays:    avg,
		QualifyingAccounts: qualifying,
		WeeklyTrend:        WeeklyTrend(events, now),
		ComputedAt:         now,
	}
}
