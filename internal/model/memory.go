// Package model defines the core memory data types.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrInvalidValue is returned when an enum value or required field fails validation.
var ErrInvalidValue = errors.New("invalid value")

// Memory represents a stored memory entry.
type Memory struct {
	ID             string     `json:"id"`
	OwnerID        string     `json:"owner_id"`
	Content        string     `json:"content"`
	Kind           Kind       `json:"kind"`
	Scope          Scope      `json:"scope"`
	Priority       Priority   `json:"priority"`
	Tags           []string   `json:"tags,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	RelevanceScore float64    `json:"relevance_score"`
	AccessCount    int        `json:"access_count"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	Partition      string     `json:"-"`
}

// Kind is the semantic category of a memory.
type Kind string

const (
	KindFactual    Kind = "factual"
	KindEpisodic   Kind = "episodic"
	KindSemantic   Kind = "semantic"
	KindWorking    Kind = "working"
	KindPreference Kind = "preference"
)

// Scope is the isolation boundary of a memory.
type Scope string

const (
	ScopePersonal     Scope = "personal"
	ScopeProject      Scope = "project"
	ScopeTeam         Scope = "team"
	ScopeOrganization Scope = "organization"
	ScopeSystem       Scope = "system"
)

// Priority is informational and only feeds analytics.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// AllKinds lists every kind in declaration order.
func AllKinds() []Kind {
	return []Kind{KindFactual, KindEpisodic, KindSemantic, KindWorking, KindPreference}
}

// AllScopes lists every scope from narrowest to broadest.
func AllScopes() []Scope {
	return []Scope{ScopePersonal, ScopeProject, ScopeTeam, ScopeOrganization, ScopeSystem}
}

// AllPriorities lists every priority from most to least urgent.
func AllPriorities() []Priority {
	return []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
}

// ParseKind parses a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range AllKinds() {
		if k == v {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: kind %q (valid: factual, episodic, semantic, working, preference)", ErrInvalidValue, s)
}

// ParseScope parses a scope name case-insensitively.
func ParseScope(s string) (Scope, error) {
	sc := Scope(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range AllScopes() {
		if sc == v {
			return sc, nil
		}
	}
	return "", fmt.Errorf("%w: scope %q (valid: personal, project, team, organization, system)", ErrInvalidValue, s)
}

// ParsePriority parses a priority name case-insensitively.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range AllPriorities() {
		if p == v {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: priority %q (valid: critical, high, medium, low)", ErrInvalidValue, s)
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, v := range AllKinds() {
		if k == v {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	for _, v := range AllScopes() {
		if s == v {
			return true
		}
	}
	return false
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	for _, v := range AllPriorities() {
		if p == v {
			return true
		}
	}
	return false
}

// NormalizeTags trims, de-duplicates and sorts tags. Tags are an unordered set.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// HasTagPrefix reports whether any tag starts with prefix.
func (m *Memory) HasTagPrefix(prefix string) bool {
	for _, t := range m.Tags {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}

// Validate checks the fields every stored memory must carry.
func (m *Memory) Validate() error {
	if strings.TrimSpace(m.OwnerID) == "" {
		return fmt.Errorf("%w: owner_id is required", ErrInvalidValue)
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidValue)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: kind %q", ErrInvalidValue, m.Kind)
	}
	if !m.Scope.Valid() {
		return fmt.Errorf("%w: scope %q", ErrInvalidValue, m.Scope)
	}
	if !m.Priority.Valid() {
		return fmt.Errorf("%w: priority %q", ErrInvalidValue, m.Priority)
	}
	return nil
}
