// Package memory is the tiered memory client. Every call is authorized
// against the permission matrix, then served by the remote memory service
// with the local store as fallback.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/tiered-memory/internal/analytics"
	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/partition"
	"github.com/rcliao/tiered-memory/internal/permission"
	"github.com/rcliao/tiered-memory/internal/remote"
	"github.com/rcliao/tiered-memory/internal/store"
)

// LocalBackend is the partition-addressed fallback store.
type LocalBackend interface {
	Create(ctx context.Context, partition string, m *model.Memory) (string, error)
	Search(ctx context.Context, p store.SearchParams) ([]model.Memory, error)
	Get(ctx context.Context, partition, id string) (*model.Memory, error)
	Update(ctx context.Context, partition, id string, p store.UpdateParams) (*model.Memory, error)
	Delete(ctx context.Context, partition, id string, kinds ...model.Kind) (bool, error)
	Clear(ctx context.Context, partition string, kinds ...model.Kind) (int, error)
}

// RemoteBackend is the external memory service.
type RemoteBackend interface {
	Configured() bool
	Create(ctx context.Context, m *model.Memory) (*remote.CreateResult, error)
	Search(ctx context.Context, req remote.SearchRequest) ([]model.Memory, error)
	Get(ctx context.Context, id string) (*model.Memory, error)
	Update(ctx context.Context, id string, req remote.UpdateRequest) (*model.Memory, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, req remote.ListRequest) ([]model.Memory, error)
}

// Options configures a Client. Local and Remote are both optional.
type Options struct {
	Matrix    *permission.Matrix
	Local     LocalBackend
	Remote    RemoteBackend
	Analytics *analytics.Engine
	// FailUnsupported surfaces ErrNotSupported for remote operations the
	// service does not implement instead of falling back to local.
	FailUnsupported bool
	Logger          zerolog.Logger
}

// Client is the tiered memory facade. It holds no locks across remote calls.
type Client struct {
	matrix          *permission.Matrix
	local           LocalBackend
	remote          RemoteBackend
	analytics       *analytics.Engine
	failUnsupported bool
	log             zerolog.Logger
}

// New builds a Client. A nil matrix means the built-in table.
func New(opts Options) *Client {
	m := opts.Matrix
	if m == nil {
		m = permission.Default()
	}
	return &Client{
		matrix:          m,
		local:           opts.Local,
		remote:          opts.Remote,
		analytics:       opts.Analytics,
		failUnsupported: opts.FailUnsupported,
		log:             opts.Logger.With().Str("component", "memory").Logger(),
	}
}

// CreateRequest is the input of CreateMemory. An empty priority means medium.
type CreateRequest struct {
	OwnerID  string
	Tier     model.Tier
	Content  string
	Kind     model.Kind
	Scope    model.Scope
	Priority model.Priority
	Tags     []string
}

// SearchRequest is the input of SearchMemories. A nil Scope searches every
// scope the tier may use.
type SearchRequest struct {
	OwnerID string
	Tier    model.Tier
	Query   string
	Scope   *model.Scope
	Kind    *model.Kind
	Limit   int
}

// UpdateRequest is the input of UpdateMemory. Nil fields are unchanged.
type UpdateRequest struct {
	OwnerID  string
	Tier     model.Tier
	ID       string
	Content  *string
	Kind     *model.Kind
	Priority *model.Priority
	Tags     *[]string
}

// AnalyticsRequest is the input of GetAnalytics. FilterOwner and Kind narrow
// a report further; FilterOwner only matters to tiers with global reach.
type AnalyticsRequest struct {
	OwnerID     string
	Tier        model.Tier
	FilterOwner string
	Kind        *model.Kind
}

// CreateMemory stores a memory and returns it with its assigned id. Success
// means a backend acknowledged the write.
func (c *Client) CreateMemory(ctx context.Context, req CreateRequest) (_ *model.Memory, err error) {
	backend := backendNone
	defer c.observe("create", time.Now(), &backend, &err)

	if _, err := c.authorize(req.Tier, permission.OpWrite, nil, nil); err != nil {
		return nil, err
	}

	m := &model.Memory{
		OwnerID:  strings.TrimSpace(req.OwnerID),
		Content:  req.Content,
		Kind:     req.Kind,
		Scope:    req.Scope,
		Priority: req.Priority,
		Tags:     model.NormalizeTags(req.Tags),
	}
	if m.Priority == "" {
		m.Priority = model.PriorityMedium
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := c.authorize(req.Tier, permission.OpWrite, &m.Scope, &m.Kind); err != nil {
		return nil, err
	}

	key, err := partition.Key(m.OwnerID, m.Scope)
	if err != nil {
		return nil, invalid("%v", err)
	}

	var cause error
	if c.remoteReady() {
		res, rerr := c.remote.Create(ctx, m)
		if rerr == nil {
			backend = backendRemote
			m.ID = res.ID
			m.CreatedAt = res.CreatedAt
			if m.CreatedAt.IsZero() {
				m.CreatedAt = time.Now().UTC()
			}
			m.UpdatedAt = m.CreatedAt
			m.RelevanceScore = store.DefaultRelevance
			m.Partition = key
			return m, nil
		}
		if err := c.absorb("create", rerr); err != nil {
			return nil, err
		}
		cause = rerr
	}

	if c.local == nil {
		return nil, unavailable("create", cause)
	}
	if _, err := c.local.Create(ctx, key, m); err != nil {
		return nil, localErr(err)
	}
	backend = backendLocal
	return m, nil
}

// SearchMemories returns the caller's memories matching the query, best
// first. Results come from a single backend and are re-filtered against the
// tier's allowed scopes and kinds.
func (c *Client) SearchMemories(ctx context.Context, req SearchRequest) (_ []model.Memory, err error) {
	backend := backendNone
	defer c.observe("search", time.Now(), &backend, &err)

	perm, err := c.authorize(req.Tier, permission.OpSearch, nil, nil)
	if err != nil {
		return nil, err
	}
	owner, err := requireOwner(req.OwnerID)
	if err != nil {
		return nil, err
	}
	if req.Scope != nil && !req.Scope.Valid() {
		return nil, invalid("scope %q", *req.Scope)
	}
	if req.Kind != nil && !req.Kind.Valid() {
		return nil, invalid("kind %q", *req.Kind)
	}
	if _, err := c.authorize(req.Tier, permission.OpSearch, req.Scope, req.Kind); err != nil {
		return nil, err
	}

	scopes := perm.Scopes()
	if req.Scope != nil {
		scopes = []model.Scope{*req.Scope}
	}
	keys, allowed, err := partitions(owner, scopes)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	limit := req.Limit
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	keep := func(m *model.Memory) bool {
		if !allowed[m.Partition] || !perm.Visible(m) {
			return false
		}
		return req.Kind == nil || m.Kind == *req.Kind
	}

	var cause error
	if c.remoteReady() {
		sr := remote.SearchRequest{Query: req.Query, OwnerID: owner, Limit: limit}
		if req.Scope != nil {
			sr.Scope = string(*req.Scope)
		}
		got, rerr := c.remote.Search(ctx, sr)
		if rerr == nil {
			backend = backendRemote
			return rank(filter(got, keep), req.Query, limit), nil
		}
		if err := c.absorb("search", rerr); err != nil {
			return nil, err
		}
		cause = rerr
	}

	if c.local == nil {
		return nil, unavailable("search", cause)
	}
	var all []model.Memory
	for _, key := range keys {
		got, err := c.local.Search(ctx, store.SearchParams{Partition: key, Query: req.Query, Limit: limit})
		if err != nil {
			return nil, localErr(err)
		}
		all = append(all, got...)
	}
	backend = backendLocal
	return rank(filter(all, keep), req.Query, limit), nil
}

// GetMemory fetches one of the caller's memories by id.
func (c *Client) GetMemory(ctx context.Context, ownerID string, tier model.Tier, id string) (_ *model.Memory, err error) {
	backend := backendNone
	defer c.observe("get", time.Now(), &backend, &err)

	perm, err := c.authorize(tier, permission.OpRead, nil, nil)
	if err != nil {
		return nil, err
	}
	owner, err := requireOwner(ownerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, invalid("id is required")
	}
	keys, allowed, err := partitions(owner, perm.Scopes())
	if err != nil {
		return nil, err
	}

	var cause error
	if c.remoteReady() {
		m, rerr := c.remote.Get(ctx, id)
		switch {
		case rerr == nil:
			backend = backendRemote
			if !allowed[m.Partition] || !perm.Visible(m) {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return m, nil
		case errors.Is(rerr, remote.ErrNotFound):
			backend = backendRemote
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := c.absorb("get", rerr); err != nil {
			return nil, err
		}
		cause = rerr
	}

	if c.local == nil {
		return nil, unavailable("get", cause)
	}
	backend = backendLocal
	for _, key := range keys {
		m, err := c.local.Get(ctx, key, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, localErr(err)
		}
		if !perm.Visible(m) {
			break
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// UpdateMemory changes content and/or metadata of one of the caller's
// memories. Scope and owner never change.
func (c *Client) UpdateMemory(ctx context.Context, req UpdateRequest) (_ *model.Memory, err error) {
	backend := backendNone
	defer c.observe("update", time.Now(), &backend, &err)

	perm, err := c.authorize(req.Tier, permission.OpWrite, nil, nil)
	if err != nil {
		return nil, err
	}
	owner, err := requireOwner(req.OwnerID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ID) == "" {
		return nil, invalid("id is required")
	}
	if req.Content == nil && req.Kind == nil && req.Priority == nil && req.Tags == nil {
		return nil, invalid("nothing to update")
	}
	if req.Content != nil && strings.TrimSpace(*req.Content) == "" {
		return nil, invalid("content must not be empty")
	}
	if req.Kind != nil && !req.Kind.Valid() {
		return nil, invalid("kind %q", *req.Kind)
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return nil, invalid("priority %q", *req.Priority)
	}
	if _, err := c.authorize(req.Tier, permission.OpWrite, nil, req.Kind); err != nil {
		return nil, err
	}
	keys, allowed, err := partitions(owner, perm.Scopes())
	if err != nil {
		return nil, err
	}
	if len(perm.Kinds()) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.ID)
	}

	var cause error
	if c.remoteReady() {
		cur, rerr := c.remote.Get(ctx, req.ID)
		if rerr == nil {
			if !allowed[cur.Partition] || !perm.Visible(cur) {
				backend = backendRemote
				return nil, fmt.Errorf("%w: %s", ErrNotFound, req.ID)
			}
			next := *cur
			applyUpdate(&next, req)
			var m *model.Memory
			m, rerr = c.remote.Update(ctx, req.ID, remote.UpdateRequest{
				Content:  req.Content,
				Metadata: remote.MetadataFor(&next),
			})
			if rerr == nil {
				backend = backendRemote
				if m.Partition == "" {
					m.Partition = cur.Partition
				}
				return m, nil
			}
		}
		if errors.Is(rerr, remote.ErrNotFound) {
			backend = backendRemote
			return nil, fmt.Errorf("%w: %s", ErrNotFound, req.ID)
		}
		if err := c.absorb("update", rerr); err != nil {
			return nil, err
		}
		cause = rerr
	}

	if c.local == nil {
		return nil, unavailable("update", cause)
	}
	backend = backendLocal
	params := store.UpdateParams{
		Content:  req.Content,
		Kind:     req.Kind,
		Priority: req.Priority,
		Tags:     req.Tags,
		Kinds:    perm.Kinds(),
	}
	for _, key := range keys {
		m, err := c.local.Update(ctx, key, req.ID, params)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, localErr(err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, req.ID)
}

// DeleteMemory removes one of the caller's memories. Deleting an absent id
// returns ErrNotFound and changes nothing.
func (c *Client) DeleteMemory(ctx context.Context, ownerID string, tier model.Tier, id string) (err error) {
	backend := backendNone
	defer c.observe("delete", time.Now(), &backend, &err)

	perm, err := c.authorize(tier, permission.OpDelete, nil, nil)
	if err != nil {
		return err
	}
	owner, err := requireOwner(ownerID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return invalid("id is required")
	}
	keys, allowed, err := partitions(owner, perm.Scopes())
	if err != nil {
		return err
	}
	// An empty kind guard would match every kind.
	if len(perm.Kinds()) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var cause error
	if c.remoteReady() {
		// The service deletes by bare id, so ownership is checked first.
		cur, rerr := c.remote.Get(ctx, id)
		if rerr == nil {
			if !allowed[cur.Partition] || !perm.Visible(cur) {
				backend = backendRemote
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			if rerr = c.remote.Delete(ctx, id); rerr == nil {
				backend = backendRemote
				return nil
			}
		}
		if errors.Is(rerr, remote.ErrNotFound) {
			backend = backendRemote
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := c.absorb("delete", rerr); err != nil {
			return err
		}
		cause = rerr
	}

	if c.local == nil {
		return unavailable("delete", cause)
	}
	backend = backendLocal
	for _, key := range keys {
		ok, err := c.local.Delete(ctx, key, id, perm.Kinds()...)
		if err != nil {
			return localErr(err)
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ClearMemories removes every memory of a readable kind the caller owns in
// one scope and returns how many were removed.
func (c *Client) ClearMemories(ctx context.Context, ownerID string, tier model.Tier, scope model.Scope) (_ int, err error) {
	backend := backendNone
	defer c.observe("clear", time.Now(), &backend, &err)

	perm, err := c.authorize(tier, permission.OpDelete, nil, nil)
	if err != nil {
		return 0, err
	}
	owner, err := requireOwner(ownerID)
	if err != nil {
		return 0, err
	}
	if !scope.Valid() {
		return 0, invalid("scope %q", scope)
	}
	if _, err := c.authorize(tier, permission.OpDelete, &scope, nil); err != nil {
		return 0, err
	}
	key, err := partition.Key(owner, scope)
	if err != nil {
		return 0, invalid("%v", err)
	}
	if len(perm.Kinds()) == 0 {
		return 0, nil
	}

	var cause error
	if c.remoteReady() {
		n, rerr := c.clearRemote(ctx, perm, owner, scope, key)
		if rerr == nil {
			backend = backendRemote
			return n, nil
		}
		if n > 0 {
			backend = backendRemote
			return n, c.partial(rerr, n)
		}
		if err := c.absorb("clear", rerr); err != nil {
			return 0, err
		}
		cause = rerr
	}

	if c.local == nil {
		return 0, unavailable("clear", cause)
	}
	n, err := c.local.Clear(ctx, key, perm.Kinds()...)
	if err != nil {
		return 0, localErr(err)
	}
	backend = backendLocal
	return n, nil
}

// clearRemote lists the partition and deletes the visible entries one by
// one. It returns the number removed before any failure.
func (c *Client) clearRemote(ctx context.Context, perm permission.Permission, ownerID string, scope model.Scope, key string) (int, error) {
	mems, err := c.remote.List(ctx, remote.ListRequest{OwnerID: ownerID, Scopes: []model.Scope{scope}})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range mems {
		if m.Partition != key || !perm.Visible(&m) {
			continue
		}
		if err := c.remote.Delete(ctx, m.ID); err != nil {
			if errors.Is(err, remote.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (c *Client) partial(rerr error, n int) error {
	if errors.Is(rerr, remote.ErrNotSupported) && c.failUnsupported {
		return fmt.Errorf("%w: clear stopped after %d: %v", ErrNotSupported, n, rerr)
	}
	return fmt.Errorf("%w: clear stopped after %d: %v", ErrStorageUnavailable, n, rerr)
}

// GetAnalytics reports on the memories the tier may aggregate over. Tiers
// with owner reach see only their own memories.
func (c *Client) GetAnalytics(ctx context.Context, req AnalyticsRequest) (_ *analytics.Report, err error) {
	backend := backendNone
	defer c.observe("analytics", time.Now(), &backend, &err)

	perm, err := c.authorize(req.Tier, permission.OpAnalytics, nil, nil)
	if err != nil {
		return nil, err
	}
	if req.Kind != nil && !req.Kind.Valid() {
		return nil, invalid("kind %q", *req.Kind)
	}
	if _, err := c.authorize(req.Tier, permission.OpAnalytics, nil, req.Kind); err != nil {
		return nil, err
	}
	if c.analytics == nil {
		return nil, unavailable("analytics", nil)
	}

	rep, err := c.analytics.Analyze(ctx, analytics.Query{
		Permission:  perm,
		OwnerID:     strings.TrimSpace(req.OwnerID),
		FilterOwner: strings.TrimSpace(req.FilterOwner),
		Kind:        req.Kind,
	})
	if err != nil {
		return nil, localErr(err)
	}
	backend = rep.Source
	return rep, nil
}

func (c *Client) authorize(tier model.Tier, op permission.Operation, scope *model.Scope, kind *model.Kind) (permission.Permission, error) {
	if err := c.matrix.Check(tier, op, scope, kind); err != nil {
		return permission.Permission{}, denied(err)
	}
	return c.matrix.Permission(tier), nil
}

func (c *Client) remoteReady() bool {
	return c.remote != nil && c.remote.Configured()
}

// absorb decides whether a remote failure falls back to local. A nil return
// means fall back.
func (c *Client) absorb(op string, rerr error) error {
	if errors.Is(rerr, remote.ErrNotSupported) && c.failUnsupported {
		return fmt.Errorf("%w: %s: %v", ErrNotSupported, op, rerr)
	}
	fallbacksTotal.WithLabelValues(op).Inc()
	c.log.Warn().Stack().Err(rerr).Str("op", op).Msg("remote failed, falling back to local store")
	return nil
}

func (c *Client) observe(op string, start time.Time, backend *string, err *error) {
	outcome := outcomeOK
	switch {
	case *err == nil:
	case errors.Is(*err, ErrPermissionDenied):
		outcome = outcomeDenied
	case errors.Is(*err, ErrNotFound):
		outcome = outcomeNotFound
	default:
		outcome = outcomeError
	}
	operationsTotal.WithLabelValues(op, *backend, outcome).Inc()
	operationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	ev := c.log.Debug()
	if outcome == outcomeError {
		ev = c.log.Error().Stack().Err(*err)
	}
	ev.Str("op", op).
		Str("backend", *backend).
		Str("outcome", outcome).
		Dur("elapsed", time.Since(start)).
		Msg("memory op")
}

func unavailable(op string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s: no backend configured", ErrStorageUnavailable, op)
	}
	return fmt.Errorf("%w: %s: remote failed and no local store: %v", ErrStorageUnavailable, op, cause)
}

// requireOwner returns the trimmed owner id. Every operation derives
// partitions from the trimmed form so padded ids address the same data.
func requireOwner(ownerID string) (string, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return "", invalid("owner_id is required")
	}
	return owner, nil
}

// partitions derives the keys of an owner's scopes, in scope order.
func partitions(ownerID string, scopes []model.Scope) ([]string, map[string]bool, error) {
	keys := make([]string, 0, len(scopes))
	set := make(map[string]bool, len(scopes))
	for _, s := range scopes {
		k, err := partition.Key(ownerID, s)
		if err != nil {
			return nil, nil, invalid("%v", err)
		}
		keys = append(keys, k)
		set[k] = true
	}
	return keys, set, nil
}

func applyUpdate(m *model.Memory, req UpdateRequest) {
	if req.Content != nil {
		m.Content = *req.Content
	}
	if req.Kind != nil {
		m.Kind = *req.Kind
	}
	if req.Priority != nil {
		m.Priority = *req.Priority
	}
	if req.Tags != nil {
		m.Tags = model.NormalizeTags(*req.Tags)
	}
}
