package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/partition"
)

// Metadata is the wire form of a memory's tagged fields.
type Metadata struct {
	Kind        string   `json:"kind"`
	Scope       string   `json:"scope"`
	Priority    string   `json:"priority,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	OwnerID     string   `json:"owner_id"`
	AccessCount int      `json:"access_count,omitempty"`
}

// Record is one memory as returned by the service.
type Record struct {
	ID        string    `json:"id"`
	Memory    string    `json:"memory"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Score     float64   `json:"score,omitempty"`
}

type createRequest struct {
	Content  string   `json:"content"`
	Metadata Metadata `json:"metadata"`
}

// CreateResult is the service's acknowledgement of a create.
type CreateResult struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchRequest is the body of POST /memories/search. Scope is an optional
// filter the service may ignore; callers re-filter results.
type SearchRequest struct {
	Query   string `json:"query"`
	OwnerID string `json:"owner_id,omitempty"`
	Scope   string `json:"scope,omitempty"`
	Limit   int    `json:"limit"`
}

type listResponse struct {
	Memories []Record `json:"memories"`
}

// UpdateRequest is the body of PUT /memories/{id}. Nil fields are unchanged.
type UpdateRequest struct {
	Content  *string   `json:"content,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// ListRequest filters GET /memories.
type ListRequest struct {
	OwnerID string
	Scopes  []model.Scope
	Kind    model.Kind
}

// Create stores a memory remotely and returns the assigned id.
func (g *Gateway) Create(ctx context.Context, m *model.Memory) (*CreateResult, error) {
	var out CreateResult
	err := g.do(ctx, call{
		op:     OpCreate,
		method: http.MethodPost,
		path:   "/memories",
		body: createRequest{
			Content:  m.Content,
			Metadata: metadataOf(m),
		},
		result: &out,
	})
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%w: create: response has no id", ErrUnavailable)
	}
	return &out, nil
}

// Search runs a query against the service.
func (g *Gateway) Search(ctx context.Context, req SearchRequest) ([]model.Memory, error) {
	var out listResponse
	err := g.do(ctx, call{
		op:     OpSearch,
		method: http.MethodPost,
		path:   "/memories/search",
		body:   req,
		result: &out,
	})
	if err != nil {
		return nil, err
	}
	return toModels(OpSearch, out.Memories)
}

// Get fetches one memory by id.
func (g *Gateway) Get(ctx context.Context, id string) (*model.Memory, error) {
	var out Record
	err := g.do(ctx, call{
		op:     OpGet,
		method: http.MethodGet,
		path:   "/memories/" + url.PathEscape(id),
		result: &out,
	})
	if err != nil {
		return nil, err
	}
	m, err := out.toModel()
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	return m, nil
}

// Update changes a memory's content and/or metadata.
func (g *Gateway) Update(ctx context.Context, id string, req UpdateRequest) (*model.Memory, error) {
	var out Record
	err := g.do(ctx, call{
		op:     OpUpdate,
		method: http.MethodPut,
		path:   "/memories/" + url.PathEscape(id),
		body:   req,
		result: &out,
	})
	if err != nil {
		return nil, err
	}
	m, err := out.toModel()
	if err != nil {
		return nil, fmt.Errorf("%w: update: %v", ErrUnavailable, err)
	}
	return m, nil
}

// Delete removes a memory. A missing id yields ErrNotFound.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	return g.do(ctx, call{
		op:     OpDelete,
		method: http.MethodDelete,
		path:   "/memories/" + url.PathEscape(id),
	})
}

// List returns every memory matching the filter.
func (g *Gateway) List(ctx context.Context, req ListRequest) ([]model.Memory, error) {
	q := map[string]string{}
	if req.OwnerID != "" {
		q["owner_id"] = req.OwnerID
	}
	if len(req.Scopes) > 0 {
		names := make([]string, len(req.Scopes))
		for i, s := range req.Scopes {
			names[i] = string(s)
		}
		q["scope"] = strings.Join(names, ",")
	}
	if req.Kind != "" {
		q["kind"] = string(req.Kind)
	}

	var out listResponse
	err := g.do(ctx, call{
		op:     OpList,
		method: http.MethodGet,
		path:   "/memories",
		query:  q,
		result: &out,
	})
	if err != nil {
		return nil, err
	}
	return toModels(OpList, out.Memories)
}

// metadataOf renders a memory's tagged fields for the wire.
func metadataOf(m *model.Memory) Metadata {
	return Metadata{
		Kind:     string(m.Kind),
		Scope:    string(m.Scope),
		Priority: string(m.Priority),
		Tags:     m.Tags,
		OwnerID:  m.OwnerID,
	}
}

// MetadataFor builds the metadata block of an update request.
func MetadataFor(m *model.Memory) *Metadata {
	md := metadataOf(m)
	return &md
}

func toModels(op Op, recs []Record) ([]model.Memory, error) {
	out := make([]model.Memory, 0, len(recs))
	for i, r := range recs {
		m, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: record %d: %v", ErrUnavailable, op, i, err)
		}
		out = append(out, *m)
	}
	return out, nil
}

// toModel validates a wire record. Unknown kinds or scopes are rejected
// rather than passed through.
func (r Record) toModel() (*model.Memory, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	kind, err := model.ParseKind(r.Metadata.Kind)
	if err != nil {
		return nil, err
	}
	scope, err := model.ParseScope(r.Metadata.Scope)
	if err != nil {
		return nil, err
	}
	prio := model.PriorityMedium
	if r.Metadata.Priority != "" {
		if prio, err = model.ParsePriority(r.Metadata.Priority); err != nil {
			return nil, err
		}
	}

	m := &model.Memory{
		ID:             r.ID,
		OwnerID:        r.Metadata.OwnerID,
		Content:        r.Memory,
		Kind:           kind,
		Scope:          scope,
		Priority:       prio,
		Tags:           model.NormalizeTags(r.Metadata.Tags),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		RelevanceScore: r.Score,
		AccessCount:    r.Metadata.AccessCount,
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	if m.OwnerID != "" {
		m.Partition = partition.MustKey(m.OwnerID, m.Scope)
	}
	return m, nil
}
