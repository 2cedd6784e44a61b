package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRiskBand(t *testing.T) {
	assert.Equal(t, RiskHigh, RiskBand(75))
	assert.Equal(t, RiskHigh, RiskBand(70))
	assert.Equal(t, RiskMedium, RiskBand(69))
	assert.Equal(t, RiskMedium, RiskBand(55))
	assert.Equal(t, RiskMedium, RiskBand(40))
	assert.Equal(t, RiskLow, RiskBand(39))
	assert.Equal(t, RiskLow, RiskBand(10))
	assert.Equal(t, RiskLow, RiskBand(0))
}

func TestRiskScorer_Bands(t *testing.T) {
	scorer := NewRiskScorer(RiskPolicy{})

	high := scorer.Score(RiskInput{
		AccountEmail: "a@x.com",
		First:        FirstEvents{EventDeactivated: t0.Add(-day)},
		Drifted:      true,
		AsOf:         t0,
	})
	assert.Equal(t, 75, high.Score)
	assert.Equal(t, RiskHigh, RiskBand(high.Score))
	assert.Equal(t, []string{FactorDeactivated, FactorStatusDrift}, high.Factors)

	medium := scorer.Score(RiskInput{
		AccountEmail:    "b@x.com",
		First:           FirstEvents{EventBgcSubmitted: t0.Add(-3 * day), EventBgcConsider: t0.Add(-day)},
		ExternalFactors: []string{"manual_review"},
		AsOf:            t0,
	})
	assert.Equal(t, 55, medium.Score)
	assert.Equal(t, RiskMedium, RiskBand(medium.Score))
	assert.Equal(t, []string{FactorBgcConsider, "external:manual_review"}, medium.Factors)

	low := scorer.Score(RiskInput{
		AccountEmail:    "c@x.com",
		First:           FirstEvents{EventBgcComplete: t0.Add(-2 * day), EventFirstPackage: t0.Add(-day)},
		ExternalFactors: []string{"document_mismatch"},
		AsOf:            t0,
	})
	assert.Equal(t, 10, low.Score)
	assert.Equal(t, RiskLow, RiskBand(low.Score))
}

func TestRiskScorer_TimeFactors(t *testing.T) {
	scorer := NewRiskScorer(DefaultRiskPolicy())

	stale := scorer.Score(RiskInput{
		First: FirstEvents{EventBgcSubmitted: t0.Add(-20 * day)},
		AsOf:  t0,
	})
	assert.Contains(t, stale.Factors, FactorBgcPendingStale)

	fresh := scorer.Score(RiskInput{
		First: FirstEvents{EventBgcSubmitted: t0.Add(-2 * day)},
		AsOf:  t0,
	})
	assert.Empty(t, fresh.Factors)
	assert.Zero(t, fresh.Score)

	slow := scorer.Score(RiskInput{
		First: FirstEvents{
			EventBgcSubmitted: t0.Add(-60 * day),
			EventBgcComplete:  t0.Add(-25 * day),
			EventFirstPackage: t0.Add(-20 * day),
		},
		AsOf: t0,
	})
	assert.Equal(t, []string{FactorSlowBgc}, slow.Factors)

	stalled := scorer.Score(RiskInput{
		First: FirstEvents{EventBgcComplete: t0.Add(-45 * day)},
		AsOf:  t0,
	})
	assert.Equal(t, []string{FactorActivationStalled}, stalled.Factors)
}

func TestRiskScorer_ClampsAndIsDeterministic(t *testing.T) {
	scorer := NewRiskScorer(RiskPolicy{})
	input := RiskInput{
		AccountEmail: "a@x.com",
		First: FirstEvents{
			EventDeactivated:   t0.Add(-day),
			EventBgcConsider:   t0.Add(-10 * day),
			EventBgcInfoNeeded: t0.Add(-12 * day),
		},
		Drifted:         true,
		ExternalFactors: []string{"B", "a", "external:b", " "},
		AsOf:            t0,
	}

	first := scorer.Score(input)
	second := scorer.Score(input)
	assert.Equal(t, 100, first.Score)
	assert.Equal(t, first, second)
	assert.Equal(t, []string{
		FactorDeactivated,
		FactorBgcConsider,
		FactorBgcInfoNeeded,
		FactorStatusDrift,
		"external:a",
		"external:b",
	}, first.Factors)
}

func TestRiskScorer_CustomWeights(t *testing.T) {
	scorer := NewRiskScorer(RiskPolicy{Weights: map[string]int{
		FactorBgcInfoNeeded: 30,
		"identity_gap":      25,
	}})

	entry := scorer.Score(RiskInput{
		First:           FirstEvents{EventBgcInfoNeeded: t0.Add(-day)},
		ExternalFactors: []string{"identity_gap"},
		AsOf:            t0,
	})
	assert.Equal(t, 55, entry.Score)
}
