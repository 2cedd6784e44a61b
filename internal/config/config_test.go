package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/bgc-lifecycle/internal/core"
)

func loadYAML(t *testing.T, doc string) *Config {
	t.Helper()
	v := NewEmptyViper()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return NewFromViper(v)
}

func TestDefaults(t *testing.T) {
	cfg := NewFromViper(NewEmptyViper())

	engine, err := cfg.GetEngine()
	require.NoError(t, err)
	assert.Equal(t, 8, engine.Workers)
	assert.Equal(t, 15*time.Second, engine.CallTimeout)
	assert.Equal(t, 24*time.Hour, engine.IncrementalOverlap)

	refresh, err := cfg.GetRefresh()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, refresh.Interval)
	assert.Equal(t, 24*time.Hour, refresh.FullInterval)

	cache, err := cfg.GetCache()
	require.NoError(t, err)
	assert.Equal(t, core.DefaultCacheKey, cache.Key)
	assert.Equal(t, 5*time.Minute, cache.TTL)

	source, err := cfg.GetSource()
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX"}, source.Mailboxes)

	roles, err := cfg.GetRoles()
	require.NoError(t, err)
	assert.Equal(t, []string{"all"}, roles["admin"])

	rules, err := cfg.GetClassifierRules()
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestLoadYAML(t *testing.T) {
	cfg := loadYAML(t, `
engine:
  workers: 2
  call_timeout: 3s
risk:
  advisor: openai
  external_factors: [manual_review]
  weights:
    bgc_consider: 50
roles:
  auditor: [view_lifecycle, view_bgc_complete]
classifier:
  rules:
    - event_type: deactivated
      patterns: ["*offboarded*"]
`)

	engine, err := cfg.GetEngine()
	require.NoError(t, err)
	assert.Equal(t, 2, engine.Workers)
	assert.Equal(t, 3*time.Second, engine.CallTimeout)

	risk, err := cfg.GetRisk()
	require.NoError(t, err)
	assert.Equal(t, "openai", risk.Advisor)
	assert.Equal(t, []string{"manual_review"}, risk.ExternalFactors)
	assert.Equal(t, 50, risk.Policy.Weights[core.FactorBgcConsider])
	assert.Equal(t, 14, risk.Policy.PendingStaleDays)

	roles, err := cfg.GetRoles()
	require.NoError(t, err)
	assert.Equal(t, []string{"view_lifecycle", "view_bgc_complete"}, roles["auditor"])

	rules, err := cfg.GetClassifierRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, core.EventDeactivated, rules[0].EventType)
	assert.Equal(t, []string{"*offboarded*"}, rules[0].Patterns)
}

func TestInvalidDuration(t *testing.T) {
	cfg := loadYAML(t, "cache:\n  ttl: soon\n")
	_, err := cfg.GetCache()
	assert.Error(t, err)
}
