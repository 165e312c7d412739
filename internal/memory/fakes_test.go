package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/tiered-memory/internal/analytics"
	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/partition"
	"github.com/rcliao/tiered-memory/internal/remote"
	"github.com/rcliao/tiered-memory/internal/store"
)

// countingLocal wraps a real SQLite store and counts calls per operation.
type countingLocal struct {
	inner *store.SQLiteStore
	mu    sync.Mutex
	calls map[string]int
}

func newLocal(t *testing.T) *countingLocal {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return &countingLocal{inner: s, calls: map[string]int{}}
}

func (c *countingLocal) hit(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
}

func (c *countingLocal) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *countingLocal) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func (c *countingLocal) Create(ctx context.Context, p string, m *model.Memory) (string, error) {
	c.hit("create")
	return c.inner.Create(ctx, p, m)
}

func (c *countingLocal) Search(ctx context.Context, p store.SearchParams) ([]model.Memory, error) {
	c.hit("search")
	return c.inner.Search(ctx, p)
}

func (c *countingLocal) Get(ctx context.Context, p, id string) (*model.Memory, error) {
	c.hit("get")
	return c.inner.Get(ctx, p, id)
}

func (c *countingLocal) Update(ctx context.Context, p, id string, u store.UpdateParams) (*model.Memory, error) {
	c.hit("update")
	return c.inner.Update(ctx, p, id, u)
}

func (c *countingLocal) Delete(ctx context.Context, p, id string, kinds ...model.Kind) (bool, error) {
	c.hit("delete")
	return c.inner.Delete(ctx, p, id, kinds...)
}

func (c *countingLocal) Clear(ctx context.Context, p string, kinds ...model.Kind) (int, error) {
	c.hit("clear")
	return c.inner.Clear(ctx, p, kinds...)
}

func (c *countingLocal) List(ctx context.Context, p store.ListParams) ([]model.Memory, error) {
	c.hit("list")
	return c.inner.List(ctx, p)
}

// fakeRemote is an in-memory stand-in for the remote memory service.
type fakeRemote struct {
	mu           sync.Mutex
	unconfigured bool
	err          error
	opErr        map[string]error
	calls        map[string]int
	mems         map[string]*model.Memory
	order        []string
	seq          int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		opErr: map[string]error{},
		calls: map[string]int{},
		mems:  map[string]*model.Memory{},
	}
}

// failing returns a remote whose every call reports an outage.
func failingRemote() *fakeRemote {
	f := newFakeRemote()
	f.err = fmt.Errorf("%w: connection refused", remote.ErrUnavailable)
	return f
}

func (f *fakeRemote) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if err := f.opErr[op]; err != nil {
		return err
	}
	return f.err
}

func (f *fakeRemote) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRemote) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

// seed stores a record as the service would return it, bypassing the client.
func (f *fakeRemote) seed(m model.Memory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.OwnerID != "" {
		m.Partition = partition.MustKey(m.OwnerID, m.Scope)
	}
	f.mems[m.ID] = &m
	f.order = append(f.order, m.ID)
}

func (f *fakeRemote) Configured() bool { return !f.unconfigured }

func (f *fakeRemote) Create(_ context.Context, m *model.Memory) (*remote.CreateResult, error) {
	if err := f.enter("create"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.seq++
	id := fmt.Sprintf("r-%d", f.seq)
	f.mu.Unlock()

	cp := *m
	cp.ID = id
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	f.seed(cp)
	return &remote.CreateResult{ID: id, CreatedAt: cp.CreatedAt}, nil
}

func (f *fakeRemote) Search(_ context.Context, req remote.SearchRequest) ([]model.Memory, error) {
	if err := f.enter("search"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Memory
	for _, id := range f.order {
		m, ok := f.mems[id]
		if !ok {
			continue
		}
		if req.OwnerID != "" && m.OwnerID != req.OwnerID {
			continue
		}
		if req.Scope != "" && string(m.Scope) != req.Scope {
			continue
		}
		if req.Query != "" && !strings.Contains(strings.ToLower(m.Content), strings.ToLower(req.Query)) {
			continue
		}
		cp := *m
		cp.RelevanceScore = 0.8
		out = append(out, cp)
	}
	return out, nil
}

func (f *fakeRemote) Get(_ context.Context, id string) (*model.Memory, error) {
	if err := f.enter("get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mems[id]
	if !ok {
		return nil, fmt.Errorf("%w: /memories/%s", remote.ErrNotFound, id)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeRemote) Update(_ context.Context, id string, req remote.UpdateRequest) (*model.Memory, error) {
	if err := f.enter("update"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.mems[id]
	if !ok {
		return nil, fmt.Errorf("%w: /memories/%s", remote.ErrNotFound, id)
	}
	if req.Content != nil {
		m.Content = *req.Content
	}
	if md := req.Metadata; md != nil {
		m.Kind = model.Kind(md.Kind)
		m.Priority = model.Priority(md.Priority)
		m.Tags = md.Tags
	}
	m.UpdatedAt = time.Now().UTC()
	cp := *m
	cp.Partition = ""
	return &cp, nil
}

func (f *fakeRemote) Delete(_ context.Context, id string) error {
	if err := f.enter("delete"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.mems[id]; !ok {
		return fmt.Errorf("%w: /memories/%s", remote.ErrNotFound, id)
	}
	delete(f.mems, id)
	return nil
}

func (f *fakeRemote) List(_ context.Context, req remote.ListRequest) ([]model.Memory, error) {
	if err := f.enter("list"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	scopes := map[model.Scope]bool{}
	for _, s := range req.Scopes {
		scopes[s] = true
	}
	var out []model.Memory
	for _, id := range f.order {
		m, ok := f.mems[id]
		if !ok {
			continue
		}
		if req.OwnerID != "" && m.OwnerID != req.OwnerID {
			continue
		}
		if len(scopes) > 0 && !scopes[m.Scope] {
			continue
		}
		if req.Kind != "" && m.Kind != req.Kind {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

// newClient wires a client the way the app does. Either backend may be nil.
func newClient(local *countingLocal, rem *fakeRemote, opts ...func(*Options)) *Client {
	o := Options{Logger: zerolog.Nop()}
	var sources []analytics.Source
	if rem != nil {
		o.Remote = rem
		sources = append(sources, analytics.RemoteSource(rem))
	}
	if local != nil {
		o.Local = local
		sources = append(sources, analytics.LocalSource(local))
	}
	o.Analytics = analytics.New(zerolog.Nop(), sources)
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func scopePtr(s model.Scope) *model.Scope { return &s }
func kindPtr(k model.Kind) *model.Kind    { return &k }
func strPtr(s string) *string             { return &s }
