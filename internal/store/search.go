package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rcliao/tiered-memory/internal/model"
)

// DefaultLimit caps search results when no limit is given.
const DefaultLimit = 20

// Scorer rates how well content matches a non-empty query. A score of zero
// means no match.
type Scorer interface {
	Score(content, query string) float64
}

// SubstringScorer scores case-insensitive substring occurrences as
// min(0.99, 0.5 + 0.1*count).
type SubstringScorer struct{}

func (SubstringScorer) Score(content, query string) float64 {
	n := strings.Count(strings.ToLower(content), strings.ToLower(query))
	if n == 0 {
		return 0
	}
	return math.Min(0.99, 0.5+0.1*float64(n))
}

// Search finds partition memories whose content matches the query. An empty
// query returns the newest memories first. Every returned memory has its
// access count bumped.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]model.Memory, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	order := "ASC"
	if p.Query == "" {
		order = "DESC"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE partition = ? ORDER BY seq `+order, p.Partition)
	if err != nil {
		return nil, unavailable("search", err)
	}

	var results []model.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			rows.Close()
			return nil, unavailable("scan", err)
		}
		if p.Query != "" {
			score := s.scorer.Score(m.Content, p.Query)
			if score <= 0 {
				continue
			}
			m.RelevanceScore = score
		}
		results = append(results, m)
		if p.Query == "" && len(results) == limit {
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, unavailable("search", err)
	}

	if p.Query != "" {
		// Stable sort keeps insertion order among equal scores.
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].RelevanceScore > results[j].RelevanceScore
		})
		if len(results) > limit {
			results = results[:limit]
		}
	}

	if len(results) == 0 {
		return nil, nil
	}

	// Access tracking runs in its own write transaction.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("begin", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for i := range results {
		m := &results[i]
		if p.Query != "" {
			_, err = tx.ExecContext(ctx,
				`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ?, relevance_score = ?
				 WHERE partition = ? AND id = ?`, formatTime(now), m.RelevanceScore, p.Partition, m.ID)
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE memories SET access_count = access_count + 1, last_accessed_at = ?
				 WHERE partition = ? AND id = ?`, formatTime(now), p.Partition, m.ID)
		}
		if err != nil {
			return nil, unavailable("track access", err)
		}
		m.AccessCount++
		m.LastAccessedAt = &now
	}

	if err := tx.Commit(); err != nil {
		return nil, unavailable("commit", err)
	}
	return results, nil
}
