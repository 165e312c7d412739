package model

import (
	"fmt"
	"strings"
)

// Tier is a caller's capability level.
type Tier string

const (
	Tier1 Tier = "tier_1"
	Tier2 Tier = "tier_2"
	Tier3 Tier = "tier_3"
	Staff Tier = "staff"
	Admin Tier = "admin"
)

// AllTiers lists every tier from weakest to strongest.
func AllTiers() []Tier {
	return []Tier{Tier1, Tier2, Tier3, Staff, Admin}
}

// ParseTier parses a tier name. Both "tier_2" and "TIER_2" are accepted,
// as is the short form "2".
func ParseTier(s string) (Tier, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "1", "2", "3":
		v = "tier_" + v
	}
	t := Tier(v)
	if t.Valid() {
		return t, nil
	}
	return "", fmt.Errorf("%w: tier %q (valid: tier_1, tier_2, tier_3, staff, admin)", ErrInvalidValue, s)
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// Rank orders tiers by capability; 0 means unknown.
// STAFF and TIER_3 differ in scope, so rank only orders operation breadth.
func (t Tier) Rank() int {
	switch t {
	case Tier1:
		return 1
	case Tier2:
		return 2
	case Tier3:
		return 3
	case Staff:
		return 4
	case Admin:
		return 5
	}
	return 0
}
