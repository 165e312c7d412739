package permission

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/tiered-memory/internal/model"
)

// fileTable is the on-disk shape of a permission table:
//
//	tiers:
//	  tier_2:
//	    operations: [read, write, search]
//	    scopes: [personal]
//	    kinds: [factual, episodic, preference]
//	    analytics_reach: owner
type fileTable struct {
	Tiers map[string]fileRecord `yaml:"tiers"`
}

type fileRecord struct {
	Operations     []string `yaml:"operations"`
	Scopes         []string `yaml:"scopes"`
	Kinds          []string `yaml:"kinds"`
	AnalyticsReach string   `yaml:"analytics_reach,omitempty"`
}

// Load reads a YAML permission table. An empty path returns Default().
// Tiers missing from the file deny everything.
func Load(path string) (*Matrix, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permissions: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML permission table and validates every entry.
func Parse(data []byte) (*Matrix, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var ft fileTable
	if err := dec.Decode(&ft); err != nil {
		return nil, fmt.Errorf("parse permissions: %w", err)
	}

	table := make(map[model.Tier]Permission, len(ft.Tiers))
	for name, rec := range ft.Tiers {
		tier, err := model.ParseTier(name)
		if err != nil {
			return nil, err
		}
		p, err := rec.permission()
		if err != nil {
			return nil, fmt.Errorf("tier %s: %w", tier, err)
		}
		table[tier] = p
	}
	return New(table)
}

func (r fileRecord) permission() (Permission, error) {
	p := Permission{
		AllowedScopes:  map[model.Scope]bool{},
		AllowedKinds:   map[model.Kind]bool{},
		AnalyticsReach: Reach(r.AnalyticsReach),
	}
	for _, op := range r.Operations {
		switch Operation(op) {
		case OpRead:
			p.CanRead = true
		case OpWrite:
			p.CanWrite = true
		case OpDelete:
			p.CanDelete = true
		case OpSearch:
			p.CanSearch = true
		case OpAnalytics:
			p.CanAnalytics = true
		default:
			return p, fmt.Errorf("unknown operation %q", op)
		}
	}
	for _, s := range r.Scopes {
		sc, err := model.ParseScope(s)
		if err != nil {
			return p, err
		}
		p.AllowedScopes[sc] = true
	}
	for _, k := range r.Kinds {
		kd, err := model.ParseKind(k)
		if err != nil {
			return p, err
		}
		p.AllowedKinds[kd] = true
	}
	return p, nil
}

// Marshal renders the matrix in the same YAML shape Load accepts.
func (m *Matrix) Marshal() ([]byte, error) {
	ft := fileTable{Tiers: make(map[string]fileRecord, len(m.table))}
	for _, tier := range m.Tiers() {
		p := m.table[tier]
		rec := fileRecord{
			Operations:     []string{},
			Scopes:         []string{},
			Kinds:          []string{},
			AnalyticsReach: string(p.AnalyticsReach),
		}
		for _, op := range AllOperations() {
			if p.Allows(op) {
				rec.Operations = append(rec.Operations, string(op))
			}
		}
		for _, s := range p.Scopes() {
			rec.Scopes = append(rec.Scopes, string(s))
		}
		for _, k := range p.Kinds() {
			rec.Kinds = append(rec.Kinds, string(k))
		}
		ft.Tiers[string(tier)] = rec
	}
	return yaml.Marshal(ft)
}
