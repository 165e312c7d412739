// Package analytics aggregates stored memories into distribution and health
// reports.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/permission"
)

const (
	RecentWindow       = 7 * 24 * time.Hour
	OutdatedAge        = 90 * 24 * time.Hour
	LowRelevance       = 0.3
	TopAccessedLimit   = 10
	PreviewRunes       = 100
	associationClient  = "client:"
	associationProject = "project:"
)

// ErrUnavailable is returned when no source could be read.
var ErrUnavailable = errors.New("analytics source unavailable")

// ErrOwnerRequired is returned when an owner-reach query has no owner.
var ErrOwnerRequired = errors.New("owner id required for owner-scoped analytics")

// Query describes one analysis. Permission decides the pre-scoping: reach
// owner restricts to OwnerID, reach global spans every owner unless
// FilterOwner narrows it.
type Query struct {
	Permission  permission.Permission
	OwnerID     string
	FilterOwner string
	Kind        *model.Kind
}

// Report is the result of an analysis.
type Report struct {
	Total          int                    `json:"total"`
	ByKind         map[model.Kind]int     `json:"by_kind"`
	ByPriority     map[model.Priority]int `json:"by_priority"`
	ByOwner        map[string]int         `json:"by_owner"`
	ByScope        map[model.Scope]int    `json:"by_scope"`
	RecentActivity []Activity             `json:"recent_activity"`
	TopAccessed    []Accessed             `json:"top_accessed"`
	Health         Health                 `json:"health"`
	GeneratedAt    time.Time              `json:"generated_at"`
	Source         string                 `json:"source"`
}

// Activity is a recently created memory.
type Activity struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"owner_id"`
	Kind      model.Kind  `json:"kind"`
	Scope     model.Scope `json:"scope"`
	Preview   string      `json:"preview"`
	CreatedAt time.Time   `json:"created_at"`
}

// Accessed is an entry of the most-accessed list.
type Accessed struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Preview     string `json:"preview"`
	AccessCount int    `json:"access_count"`
}

// Health counts memories that likely need attention.
type Health struct {
	Outdated     int `json:"outdated"`
	LowRelevance int `json:"low_relevance"`
	Orphaned     int `json:"orphaned"`
}

// Engine reads from the first source that answers.
type Engine struct {
	sources     []Source
	now         func() time.Time
	recentLimit int
	log         zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRecentLimit caps the recent activity list. Zero or less lists every
// memory created inside RecentWindow.
func WithRecentLimit(n int) Option {
	return func(e *Engine) { e.recentLimit = n }
}

// New builds an engine that tries sources in order.
func New(log zerolog.Logger, sources []Source, opts ...Option) *Engine {
	e := &Engine{
		sources: sources,
		now:     time.Now,
		log:     log.With().Str("component", "analytics").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Analyze builds a report over the memories visible to the query.
func (e *Engine) Analyze(ctx context.Context, q Query) (*Report, error) {
	f, err := scopeFilter(q)
	if err != nil {
		return nil, err
	}

	if len(f.Scopes) == 0 {
		return build(nil, e.now(), "none", e.recentLimit), nil
	}

	var lastErr error
	for _, src := range e.sources {
		mems, err := src.Memories(ctx, f)
		if err != nil {
			e.log.Warn().Stack().Err(err).Str("source", src.Name()).Msg("analytics source failed")
			lastErr = err
			continue
		}
		return build(visible(mems, q, f), e.now(), src.Name(), e.recentLimit), nil
	}
	if lastErr == nil {
		return nil, fmt.Errorf("%w: no sources", ErrUnavailable)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// scopeFilter pre-scopes a query. Global reach spans every allowed scope;
// owner reach only aggregates the caller's personal memories.
func scopeFilter(q Query) (Filter, error) {
	var f Filter
	if q.Kind != nil {
		f.Kind = *q.Kind
	}
	switch q.Permission.AnalyticsReach {
	case permission.ReachGlobal:
		f.Scopes = q.Permission.Scopes()
		f.OwnerID = q.FilterOwner
	default:
		if q.OwnerID == "" {
			return f, ErrOwnerRequired
		}
		if q.Permission.AllowedScopes[model.ScopePersonal] {
			f.Scopes = []model.Scope{model.ScopePersonal}
		}
		f.OwnerID = q.OwnerID
	}
	return f, nil
}

// visible re-applies the filter to whatever a source returned.
func visible(mems []model.Memory, q Query, f Filter) []model.Memory {
	scopes := make(map[model.Scope]bool, len(f.Scopes))
	for _, s := range f.Scopes {
		scopes[s] = true
	}
	out := mems[:0:0]
	for i := range mems {
		m := &mems[i]
		if !scopes[m.Scope] {
			continue
		}
		if f.OwnerID != "" && m.OwnerID != f.OwnerID {
			continue
		}
		if f.Kind != "" && m.Kind != f.Kind {
			continue
		}
		if !q.Permission.Visible(m) {
			continue
		}
		out = append(out, *m)
	}
	return out
}

func build(mems []model.Memory, now time.Time, source string, recentLimit int) *Report {
	r := &Report{
		Total:          len(mems),
		ByKind:         map[model.Kind]int{},
		ByPriority:     map[model.Priority]int{},
		ByOwner:        map[string]int{},
		ByScope:        map[model.Scope]int{},
		RecentActivity: []Activity{},
		TopAccessed:    []Accessed{},
		GeneratedAt:    now.UTC(),
		Source:         source,
	}

	for i := range mems {
		m := &mems[i]
		r.ByKind[m.Kind]++
		r.ByPriority[m.Priority]++
		r.ByOwner[m.OwnerID]++
		r.ByScope[m.Scope]++

		age := now.Sub(m.CreatedAt)
		if age <= RecentWindow {
			r.RecentActivity = append(r.RecentActivity, Activity{
				ID:        m.ID,
				OwnerID:   m.OwnerID,
				Kind:      m.Kind,
				Scope:     m.Scope,
				Preview:   preview(m.Content),
				CreatedAt: m.CreatedAt,
			})
		}
		if age > OutdatedAge {
			r.Health.Outdated++
		}
		if m.RelevanceScore < LowRelevance {
			r.Health.LowRelevance++
		}
		if Orphaned(m) {
			r.Health.Orphaned++
		}
	}

	sort.SliceStable(r.RecentActivity, func(i, j int) bool {
		return r.RecentActivity[i].CreatedAt.After(r.RecentActivity[j].CreatedAt)
	})
	if recentLimit > 0 && len(r.RecentActivity) > recentLimit {
		r.RecentActivity = r.RecentActivity[:recentLimit]
	}

	ranked := make([]*model.Memory, len(mems))
	for i := range mems {
		ranked[i] = &mems[i]
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].AccessCount > ranked[j].AccessCount
	})
	for _, m := range ranked {
		if len(r.TopAccessed) == TopAccessedLimit {
			break
		}
		r.TopAccessed = append(r.TopAccessed, Accessed{
			ID:          m.ID,
			OwnerID:     m.OwnerID,
			Preview:     preview(m.Content),
			AccessCount: m.AccessCount,
		})
	}
	return r
}

// Orphaned reports whether a memory has no owning client or project. Personal
// memories are associated through their owner; shared ones need a
// "client:" or "project:" tag.
func Orphaned(m *model.Memory) bool {
	if m.OwnerID == "" {
		return true
	}
	if m.Scope == model.ScopePersonal {
		return false
	}
	return !m.HasTagPrefix(associationClient) && !m.HasTagPrefix(associationProject)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= PreviewRunes {
		return s
	}
	return string(r[:PreviewRunes])
}
