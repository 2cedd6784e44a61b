package core

import (
	"fmt"
	"sort"
	"strings"
)

// Capability is a permission a role may hold over lifecycle data
type Capability string

const (
	CapViewLifecycle   Capability = "view_lifecycle"
	CapViewBgcComplete Capability = "view_bgc_complete"
	CapViewDrift       Capability = "view_drift"
	CapViewRisk        Capability = "view_risk"
	CapViewStats       Capability = "view_stats"
	CapForceRescan     Capability = "force_rescan"
)

// AllCapabilities returns the closed set of capabilities
func AllCapabilities() []Capability {
	return []Capability{
		CapViewLifecycle,
		CapViewBgcComplete,
		CapViewDrift,
		CapViewRisk,
		CapViewStats,
		CapForceRescan,
	}
}

// CapabilitySet is the set of capabilities granted to a role
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet validates names and builds a set
func NewCapabilitySet(names ...string) (CapabilitySet, error) {
	set := make(CapabilitySet, len(names))
	for _, name := range names {
		c := Capability(strings.ToLower(strings.TrimSpace(name)))
		if c == "all" {
			for _, all := range AllCapabilities() {
				set[all] = struct{}{}
			}
			continue
		}
		if !c.valid() {
			return nil, fmt.Errorf("unknown capability: %q", name)
		}
		set[c] = struct{}{}
	}
	return set, nil
}

func (c Capability) valid() bool {
	for _, known := range AllCapabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// Has reports whether the set grants c
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities sorted by name
func (s CapabilitySet) List() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	sort.Strings(out)
	return out
}

// Role is a named capability set
type Role struct {
	Name         string
	Capabilities CapabilitySet
}

// RoleRegistry resolves role names to capability sets
type RoleRegistry struct {
	roles map[string]Role
}

// NewRoleRegistry builds a registry from role name -> capability names
func NewRoleRegistry(definitions map[string][]string) (*RoleRegistry, error) {
	roles := make(map[string]Role, len(definitions))
	for name, caps := range definitions {
		set, err := NewCapabilitySet(caps...)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", name, err)
		}
		key := strings.ToLower(strings.TrimSpace(name))
		roles[key] = Role{Name: key, Capabilities: set}
	}
	return &RoleRegistry{roles: roles}, nil
}

// Lookup returns the role; unknown roles hold no capabilities
func (r *RoleRegistry) Lookup(name string) (Role, bool) {
	role, ok := r.roles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Role{Name: name, Capabilities: CapabilitySet{}}, false
	}
	return role, true
}

// RedactView strips the parts of a view the capability set does not grant
func RedactView(view AccountLifecycleView, caps CapabilitySet) AccountLifecycleView {
	out := view
	out.FirstEventPerType = view.FirstEventPerType.Clone()
	if !caps.Has(CapViewBgcComplete) {
		delete(out.FirstEventPerType, EventBgcComplete)
		// bgc_clear is only reachable through a completed check
		if out.InferredStage == StageBgcClear {
			out.InferredStage = StageBgcPending
		}
	}
	if !caps.Has(CapViewDrift) {
		out.Mismatch = nil
	}
	if !caps.Has(CapViewRisk) {
		out.RiskScore = nil
		out.RiskBand = ""
	}
	return out
}

// RedactStats strips the aggregates derived from completed checks when the
// capability set does not grant them
func RedactStats(stats DurationTrendStats, caps CapabilitySet) DurationTrendStats {
	out := stats
	out.WeeklyTrend = append([]TrendBucket(nil), stats.WeeklyTrend...)
	if caps.Has(CapViewBgcComplete) {
		return out
	}
	out.AvgDurationDays = 0
	out.QualifyingAccounts = 0
	for i := range out.WeeklyTrend {
		out.WeeklyTrend[i].BgcComplete = 0
	}
	return out
}
