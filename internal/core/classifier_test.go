package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(nil, nil)
	require.NoError(t, err)
	return c
}

func TestClassifier_Classify(t *testing.T) {
	c := newTestClassifier(t)

	tests := []struct {
		subject string
		want    EventType
	}{
		{"Welcome to Swift Couriers!", EventAccountCreated},
		{"Your background check was submitted", EventBgcSubmitted},
		{"More information needed: background check", EventBgcInfoNeeded},
		{"Your Background-Check is COMPLETE!!", EventBgcComplete},
		{"Pre-Adverse Action Notice", EventBgcConsider},
		{"Congrats on your first delivery", EventFirstPackage},
		{"Your account has been deactivated", EventDeactivated},
		{"Vérification: background check complete", EventBgcComplete},
		{"  background\tcheck   has been completed ", EventBgcComplete},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			got, ok := c.Classify(RawMessage{Subject: tt.subject})
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	c := newTestClassifier(t)

	// Mentions both a welcome and a completed check; the terminal rule comes first
	got, ok := c.Classify(RawMessage{Subject: "Welcome to the team: your background check is complete"})
	require.True(t, ok)
	assert.Equal(t, EventBgcComplete, got)
}

func TestClassifier_Unmatched(t *testing.T) {
	c := newTestClassifier(t)

	for _, subject := range []string{"", "   ", "Weekly newsletter", "!!!"} {
		_, ok := c.Classify(RawMessage{Subject: subject})
		assert.False(t, ok, subject)
	}
}

func TestClassifier_SubstringPattern(t *testing.T) {
	c, err := NewClassifier([]ClassifierRule{
		{EventType: EventFirstPackage, Patterns: []string{"Route Started"}},
	}, nil)
	require.NoError(t, err)

	got, ok := c.Classify(RawMessage{Subject: "Today: route-started at 9am"})
	require.True(t, ok)
	assert.Equal(t, EventFirstPackage, got)
}

func TestNewClassifier_RejectsBadRules(t *testing.T) {
	_, err := NewClassifier([]ClassifierRule{{EventType: "bogus", Patterns: []string{"x"}}}, nil)
	assert.Error(t, err)

	_, err = NewClassifier([]ClassifierRule{{EventType: EventDeactivated, Patterns: []string{"* *"}}}, nil)
	assert.Error(t, err)

	_, err = NewClassifier([]ClassifierRule{{EventType: EventDeactivated}}, nil)
	assert.Error(t, err)
}

func TestClassifier_Events(t *testing.T) {
	c := newTestClassifier(t)
	date := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	events := c.Events("a@example.com", []RawMessage{
		{Subject: "Welcome to Swift", Date: date},
		{Subject: "Lunch?", Date: date},
		{Subject: "Background check submitted", Date: date.Add(time.Hour)},
	})

	require.Len(t, events, 2)
	assert.Equal(t, EventAccountCreated, events[0].EventType)
	assert.Equal(t, "a@example.com", events[0].AccountEmail)
	assert.Equal(t, "Welcome to Swift", events[0].SourceSubject)
	assert.Equal(t, EventBgcSubmitted, events[1].EventType)
	assert.Equal(t, date.Add(time.Hour), events[1].EventDate)
}

func TestGlobMatch(t *testing.T) {
	assert.True(t, globMatch("*check*complete*", "your check is complete now"))
	assert.True(t, globMatch("check*", "check"))
	assert.True(t, globMatch("*a*b", "xxaxxab"))
	assert.False(t, globMatch("*a*b", "xxaxxa"))
	assert.False(t, globMatch("check", "checks"))
}
