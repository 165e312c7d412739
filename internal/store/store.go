// Package store provides the local fallback memory store and its SQLite
// implementation. Every operation is addressed by a partition key.
package store

import (
	"context"
	"errors"

	"github.com/rcliao/tiered-memory/internal/model"
)

var (
	// ErrNotFound is returned when an id is absent from the partition.
	ErrNotFound = errors.New("memory not found")
	// ErrUnavailable is returned when the storage medium cannot be used.
	ErrUnavailable = errors.New("local storage unavailable")
	// ErrDuplicate is returned when creating a memory whose id already exists.
	ErrDuplicate = errors.New("memory id already exists")
)

// SearchParams holds parameters for searching a partition.
type SearchParams struct {
	Partition string
	Query     string
	Limit     int
}

// UpdateParams holds the fields an update may change. Nil fields are kept.
// A non-empty Kinds only matches memories currently of one of those kinds.
type UpdateParams struct {
	Content  *string
	Kind     *model.Kind
	Priority *model.Priority
	Tags     *[]string
	Kinds    []model.Kind
}

// ListParams filters a read across partitions. Used by analytics and export.
type ListParams struct {
	Partition string
	OwnerID   string
	Scopes    []model.Scope
	Kind      model.Kind
}

// PartitionStats holds per-partition counts.
type PartitionStats struct {
	Partition string      `json:"partition"`
	OwnerID   string      `json:"owner_id"`
	Scope     model.Scope `json:"scope"`
	Count     int         `json:"count"`
}

// Store defines the local memory storage interface.
type Store interface {
	// Create appends a memory to the partition, assigning an id if absent.
	Create(ctx context.Context, partition string, m *model.Memory) (string, error)

	// Search returns partition memories matching the query, best first.
	Search(ctx context.Context, p SearchParams) ([]model.Memory, error)

	// Get returns a memory and counts the access.
	Get(ctx context.Context, partition, id string) (*model.Memory, error)

	// Update changes content and/or metadata and bumps updated_at.
	Update(ctx context.Context, partition, id string, p UpdateParams) (*model.Memory, error)

	// Delete removes a memory. It reports false if the id was absent or,
	// when kinds are given, of another kind.
	Delete(ctx context.Context, partition, id string, kinds ...model.Kind) (bool, error)

	// Clear removes every memory in the partition, or only those of the
	// given kinds, and returns the count.
	Clear(ctx context.Context, partition string, kinds ...model.Kind) (int, error)

	// List returns memories matching the filter in insertion order.
	List(ctx context.Context, p ListParams) ([]model.Memory, error)

	// Close closes the store.
	Close() error
}
