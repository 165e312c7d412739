package store

import (
	"context"
	"strings"

	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/partition"
)

// List returns memories matching the filter in insertion order. It does not
// count as an access.
func (s *SQLiteStore) List(ctx context.Context, p ListParams) ([]model.Memory, error) {
	where := []string{"1 = 1"}
	args := []interface{}{}

	if p.Partition != "" {
		where = append(where, "partition = ?")
		args = append(args, p.Partition)
	}
	if p.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, p.OwnerID)
	}
	if len(p.Scopes) > 0 {
		marks := make([]string, len(p.Scopes))
		for i, sc := range p.Scopes {
			marks[i] = "?"
			args = append(args, string(sc))
		}
		where = append(where, "scope IN ("+strings.Join(marks, ", ")+")")
	}
	if p.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(p.Kind))
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list", err)
	}
	defer rows.Close()

	var memories []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, unavailable("scan", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", err)
	}
	return memories, nil
}

// Partitions returns per-partition memory counts, largest first.
func (s *SQLiteStore) Partitions(ctx context.Context) ([]PartitionStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT partition, owner_id, scope, COUNT(*) AS cnt
		FROM memories GROUP BY partition, owner_id, scope ORDER BY cnt DESC, partition`)
	if err != nil {
		return nil, unavailable("partitions", err)
	}
	defer rows.Close()

	var out []PartitionStats
	for rows.Next() {
		var ps PartitionStats
		var scope string
		if err := rows.Scan(&ps.Partition, &ps.OwnerID, &scope, &ps.Count); err != nil {
			return nil, unavailable("scan", err)
		}
		ps.Scope = model.Scope(scope)
		out = append(out, ps)
	}
	return out, rows.Err()
}

// Verify checks that every stored row lives in the partition derived from its
// own owner and scope. It returns the ids of rows that do not.
func (s *SQLiteStore) Verify(ctx context.Context) ([]string, error) {
	all, err := s.List(ctx, ListParams{})
	if err != nil {
		return nil, err
	}
	var bad []string
	for _, m := range all {
		want, err := partition.Key(m.OwnerID, m.Scope)
		if err != nil || want != m.Partition {
			bad = append(bad, m.ID)
		}
	}
	return bad, nil
}
