// Package permission maps user tiers to the memory operations, scopes and
// kinds they may use.
package permission

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rcliao/tiered-memory/internal/model"
)

// ErrDenied is returned by Check when a tier may not perform a request.
var ErrDenied = errors.New("permission denied")

// Operation is a memory operation subject to authorization.
type Operation string

const (
	OpRead      Operation = "read"
	OpWrite     Operation = "write"
	OpDelete    Operation = "delete"
	OpSearch    Operation = "search"
	OpAnalytics Operation = "analytics"
)

// AllOperations lists every operation.
func AllOperations() []Operation {
	return []Operation{OpRead, OpWrite, OpDelete, OpSearch, OpAnalytics}
}

// Reach controls how far a tier's analytics extend.
type Reach string

const (
	// ReachOwner limits analytics to the caller's own memories.
	ReachOwner Reach = "owner"
	// ReachGlobal spans every owner within the allowed scopes.
	ReachGlobal Reach = "global"
)

// Permission is the capability record for one tier.
type Permission struct {
	CanRead        bool
	CanWrite       bool
	CanDelete      bool
	CanSearch      bool
	CanAnalytics   bool
	AllowedScopes  map[model.Scope]bool
	AllowedKinds   map[model.Kind]bool
	AnalyticsReach Reach
}

// Allows reports whether the operation flag is set.
func (p Permission) Allows(op Operation) bool {
	switch op {
	case OpRead:
		return p.CanRead
	case OpWrite:
		return p.CanWrite
	case OpDelete:
		return p.CanDelete
	case OpSearch:
		return p.CanSearch
	case OpAnalytics:
		return p.CanAnalytics
	}
	return false
}

// None reports whether the tier has no memory capability at all.
func (p Permission) None() bool {
	for _, op := range AllOperations() {
		if p.Allows(op) {
			return false
		}
	}
	return true
}

// Scopes returns the allowed scopes in canonical order.
func (p Permission) Scopes() []model.Scope {
	var out []model.Scope
	for _, s := range model.AllScopes() {
		if p.AllowedScopes[s] {
			out = append(out, s)
		}
	}
	return out
}

// Kinds returns the allowed kinds in canonical order.
func (p Permission) Kinds() []model.Kind {
	var out []model.Kind
	for _, k := range model.AllKinds() {
		if p.AllowedKinds[k] {
			out = append(out, k)
		}
	}
	return out
}

// Visible reports whether a stored memory falls inside the allowed sets.
func (p Permission) Visible(m *model.Memory) bool {
	return p.AllowedScopes[m.Scope] && p.AllowedKinds[m.Kind]
}

func (p Permission) clone() Permission {
	c := p
	c.AllowedScopes = make(map[model.Scope]bool, len(p.AllowedScopes))
	for k, v := range p.AllowedScopes {
		c.AllowedScopes[k] = v
	}
	c.AllowedKinds = make(map[model.Kind]bool, len(p.AllowedKinds))
	for k, v := range p.AllowedKinds {
		c.AllowedKinds[k] = v
	}
	return c
}

// Matrix is an immutable tier -> permission table.
type Matrix struct {
	table map[model.Tier]Permission
}

// New builds a matrix from a table. Every key must be a known tier and
// every scope/kind in the records must be valid. TIER_1 is denied
// unconditionally, so a tier_1 record granting any operation is rejected.
func New(table map[model.Tier]Permission) (*Matrix, error) {
	m := &Matrix{table: make(map[model.Tier]Permission, len(table))}
	for tier, p := range table {
		if !tier.Valid() {
			return nil, fmt.Errorf("unknown tier %q in permission table", tier)
		}
		if tier == model.Tier1 && !p.None() {
			return nil, fmt.Errorf("tier %s may not be granted any operation", tier)
		}
		for s := range p.AllowedScopes {
			if !s.Valid() {
				return nil, fmt.Errorf("tier %s: unknown scope %q", tier, s)
			}
		}
		for k := range p.AllowedKinds {
			if !k.Valid() {
				return nil, fmt.Errorf("tier %s: unknown kind %q", tier, k)
			}
		}
		switch p.AnalyticsReach {
		case "":
			p.AnalyticsReach = ReachOwner
		case ReachOwner, ReachGlobal:
		default:
			return nil, fmt.Errorf("tier %s: unknown analytics reach %q", tier, p.AnalyticsReach)
		}
		m.table[tier] = p.clone()
	}
	return m, nil
}

// Permission returns a copy of the tier's record. Unknown tiers get the
// all-deny record.
func (m *Matrix) Permission(tier model.Tier) Permission {
	p, ok := m.table[tier]
	if !ok {
		return Permission{AnalyticsReach: ReachOwner}
	}
	return p.clone()
}

// Authorize answers whether tier may perform op. A nil scope or kind is
// not checked.
func (m *Matrix) Authorize(tier model.Tier, op Operation, scope *model.Scope, kind *model.Kind) bool {
	return m.Check(tier, op, scope, kind) == nil
}

// Check is Authorize with a reason. The returned error wraps ErrDenied.
func (m *Matrix) Check(tier model.Tier, op Operation, scope *model.Scope, kind *model.Kind) error {
	p, ok := m.table[tier]
	if !ok {
		return fmt.Errorf("%w: unknown tier %q", ErrDenied, tier)
	}
	if !p.Allows(op) {
		return fmt.Errorf("%w: tier %s may not %s", ErrDenied, tier, op)
	}
	if scope != nil && !p.AllowedScopes[*scope] {
		return fmt.Errorf("%w: tier %s may not use scope %s", ErrDenied, tier, *scope)
	}
	if kind != nil && !p.AllowedKinds[*kind] {
		return fmt.Errorf("%w: tier %s may not use kind %s", ErrDenied, tier, *kind)
	}
	return nil
}

// Tiers returns the configured tiers, weakest first.
func (m *Matrix) Tiers() []model.Tier {
	out := make([]model.Tier, 0, len(m.table))
	for t := range m.table {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank() < out[j].Rank() })
	return out
}

func scopes(ss ...model.Scope) map[model.Scope]bool {
	out := make(map[model.Scope]bool, len(ss))
	for _, s := range ss {
		out[s] = true
	}
	return out
}

func kinds(ks ...model.Kind) map[model.Kind]bool {
	out := make(map[model.Kind]bool, len(ks))
	for _, k := range ks {
		out[k] = true
	}
	return out
}

// DefaultTable is the built-in tier table.
func DefaultTable() map[model.Tier]Permission {
	return map[model.Tier]Permission{
		model.Tier1: {AnalyticsReach: ReachOwner},
		model.Tier2: {
			CanRead:        true,
			CanWrite:       true,
			CanSearch:      true,
			AllowedScopes:  scopes(model.ScopePersonal),
			AllowedKinds:   kinds(model.KindFactual, model.KindEpisodic, model.KindPreference),
			AnalyticsReach: ReachOwner,
		},
		model.Tier3: {
			CanRead:        true,
			CanWrite:       true,
			CanDelete:      true,
			CanSearch:      true,
			CanAnalytics:   true,
			AllowedScopes:  scopes(model.ScopePersonal, model.ScopeProject, model.ScopeTeam),
			AllowedKinds:   kinds(model.KindFactual, model.KindEpisodic, model.KindSemantic, model.KindPreference),
			AnalyticsReach: ReachOwner,
		},
		model.Staff: {
			CanRead:        true,
			CanWrite:       true,
			CanDelete:      true,
			CanSearch:      true,
			CanAnalytics:   true,
			AllowedScopes:  scopes(model.ScopeProject, model.ScopeTeam, model.ScopeOrganization),
			AllowedKinds:   kinds(model.AllKinds()...),
			AnalyticsReach: ReachGlobal,
		},
		model.Admin: {
			CanRead:        true,
			CanWrite:       true,
			CanDelete:      true,
			CanSearch:      true,
			CanAnalytics:   true,
			AllowedScopes:  scopes(model.AllScopes()...),
			AllowedKinds:   kinds(model.AllKinds()...),
			AnalyticsReach: ReachGlobal,
		},
	}
}

// Default returns the matrix built from DefaultTable.
func Default() *Matrix {
	m, err := New(DefaultTable())
	if err != nil {
		panic(err)
	}
	return m
}
