package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bgc(submitted, complete time.Time) FirstEvents {
	return FirstEvents{EventBgcSubmitted: submitted, EventBgcComplete: complete}
}

func TestBgcDurationDays_Bounds(t *testing.T) {
	days, ok := BgcDurationDays(bgc(t0, t0.Add(4*day)))
	require.True(t, ok)
	assert.Equal(t, 4, days)

	// Partial days are floored
	days, ok = BgcDurationDays(bgc(t0, t0.Add(4*day+20*time.Hour)))
	require.True(t, ok)
	assert.Equal(t, 4, days)

	_, ok = BgcDurationDays(bgc(t0, t0.Add(-2*day)))
	assert.False(t, ok, "negative spans are excluded")

	_, ok = BgcDurationDays(bgc(t0, t0.Add(120*day)))
	assert.False(t, ok, "implausible spans are excluded")

	_, ok = BgcDurationDays(bgc(t0, t0.Add(90*day)))
	assert.False(t, ok, "90 days is the exclusive upper bound")

	_, ok = BgcDurationDays(bgc(t0, t0.Add(12*time.Hour)))
	assert.False(t, ok, "same-day completion is not counted")

	_, ok = BgcDurationDays(FirstEvents{EventBgcComplete: t0})
	assert.False(t, ok)
}

func TestAverageBgcDuration(t *testing.T) {
	avg, n := AverageBgcDuration([]FirstEvents{
		bgc(t0, t0.Add(4*day)),
		bgc(t0, t0.Add(8*day)),
		bgc(t0, t0.Add(-1*day)),
		bgc(t0, t0.Add(120*day)),
		{EventBgcSubmitted: t0},
	})
	assert.Equal(t, 2, n)
	assert.InDelta(t, 6.0, avg, 0.0001)

	avg, n = AverageBgcDuration(nil)
	assert.Equal(t, 0, n)
	assert.Zero(t, avg)
}

func TestWeeklyTrend_Partition(t *testing.T) {
	now := t0
	var events []AccountEmailEvent
	// One bgc_complete per day for the last 28 days, plus out-of-window noise
	for d := 0; d < 28; d++ {
		events = append(events, AccountEmailEvent{EventType: EventBgcComplete, EventDate: now.Add(-time.Duration(d)*day - time.Hour)})
	}
	events = append(events,
		AccountEmailEvent{EventType: EventBgcComplete, EventDate: now.Add(-29 * day)},
		AccountEmailEvent{EventType: EventBgcComplete, EventDate: now.Add(time.Hour)},
		AccountEmailEvent{EventType: EventBgcSubmitted, EventDate: now.Add(-time.Hour)},
	)

	buckets := WeeklyTrend(events, now)
	require.Len(t, buckets, TrendWeeks)

	total := 0
	for i, b := range buckets {
		assert.Equal(t, 7, b.BgcComplete, "bucket %d", i)
		assert.Equal(t, b.WeekStart.Format("2006-01-02"), b.Label)
		if i > 0 {
			assert.True(t, b.WeekStart.After(buckets[i-1].WeekStart), "buckets ordered oldest first")
			assert.Equal(t, week, b.WeekStart.Sub(buckets[i-1].WeekStart))
		}
		total += b.BgcComplete
	}
	assert.Equal(t, 28, total, "every event in the window lands in exactly one bucket")
	assert.Equal(t, now.Add(-28*day), buckets[0].WeekStart)
}

func TestWeeklyTrend_CountsByType(t *testing.T) {
	now := t0
	buckets := WeeklyTrend([]AccountEmailEvent{
		{EventType: EventBgcConsider, EventDate: now.Add(-2 * day)},
		{EventType: EventDeactivated, EventDate: now.Add(-9 * day)},
		{EventType: EventDeactivated, EventDate: now.Add(-27 * day)},
	}, now)

	assert.Equal(t, 1, buckets[3].BgcConsider)
	assert.Equal(t, 1, buckets[2].Deactivated)
	assert.Equal(t, 1, buckets[0].Deactivated)
	assert.Zero(t, buckets[1].Deactivated+buckets[1].BgcConsider+buckets[1].BgcComplete)
}

func TestComputeStats(t *testing.T) {
	now := t0
	stats := ComputeStats(map[string]FirstEvents{
		"a@x.com": bgc(now.Add(-10*day), now.Add(-6*day)),
		"b@x.com": {EventBgcSubmitted: now.Add(-3 * day)},
	}, now)

	assert.InDelta(t, 4.0, stats.AvgDurationDays, 0.0001)
	assert.Equal(t, 1, stats.QualifyingAccounts)
	assert.Equal(t, now, stats.ComputedAt)
	require.Len(t, stats.WeeklyTrend, TrendWeeks)
	assert.Equal(t, 1, stats.WeeklyTrend[3].BgcComplete)
}
