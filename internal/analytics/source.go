package analytics

import (
	"context"
	"fmt"

	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/remote"
	"github.com/rcliao/tiered-memory/internal/store"
)

// Filter is the pre-scoped read an engine asks of a source. An empty OwnerID
// spans every owner.
type Filter struct {
	OwnerID string
	Scopes  []model.Scope
	Kind    model.Kind
}

// Source supplies the memories an analysis aggregates over.
type Source interface {
	Name() string
	Memories(ctx context.Context, f Filter) ([]model.Memory, error)
}

// RemoteLister is the part of the remote gateway analytics reads through.
type RemoteLister interface {
	Configured() bool
	List(ctx context.Context, req remote.ListRequest) ([]model.Memory, error)
}

type remoteSource struct {
	g RemoteLister
}

// RemoteSource adapts the remote gateway's list endpoint.
func RemoteSource(g RemoteLister) Source {
	return remoteSource{g: g}
}

func (remoteSource) Name() string { return "remote" }

func (r remoteSource) Memories(ctx context.Context, f Filter) ([]model.Memory, error) {
	if r.g == nil || !r.g.Configured() {
		return nil, fmt.Errorf("%w: not configured", remote.ErrUnavailable)
	}
	return r.g.List(ctx, remote.ListRequest{OwnerID: f.OwnerID, Scopes: f.Scopes, Kind: f.Kind})
}

// LocalLister is the part of the local store analytics reads through.
type LocalLister interface {
	List(ctx context.Context, p store.ListParams) ([]model.Memory, error)
}

type localSource struct {
	s LocalLister
}

// LocalSource adapts the local fallback store.
func LocalSource(s LocalLister) Source {
	return localSource{s: s}
}

func (localSource) Name() string { return "local" }

func (l localSource) Memories(ctx context.Context, f Filter) ([]model.Memory, error) {
	return l.s.List(ctx, store.ListParams{OwnerID: f.OwnerID, Scopes: f.Scopes, Kind: f.Kind})
}
