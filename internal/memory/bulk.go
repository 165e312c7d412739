package memory

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rcliao/tiered-memory/internal/model"
)

// ItemResult is the outcome of one item of a bulk call.
type ItemResult struct {
	ID  string
	Err error
}

// OK reports whether the item succeeded.
func (r ItemResult) OK() bool { return r.Err == nil }

func (r ItemResult) MarshalJSON() ([]byte, error) {
	out := struct {
		ID     string `json:"id,omitempty"`
		OK     bool   `json:"ok"`
		Error  string `json:"error,omitempty"`
		Status int    `json:"status"`
	}{ID: r.ID, OK: r.OK(), Status: StatusCode(r.Err)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// BulkCreate creates each request independently. Result i belongs to
// request i; a failed item never stops the rest.
func (c *Client) BulkCreate(ctx context.Context, reqs []CreateRequest) []ItemResult {
	out := make([]ItemResult, len(reqs))
	for i, req := range reqs {
		m, err := c.CreateMemory(ctx, req)
		if err != nil {
			out[i] = ItemResult{Err: err}
			continue
		}
		out[i] = ItemResult{ID: m.ID}
	}
	return out
}

// BulkDelete deletes each id independently and reports per id.
func (c *Client) BulkDelete(ctx context.Context, ownerID string, tier model.Tier, ids []string) map[string]ItemResult {
	out := make(map[string]ItemResult, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		out[id] = ItemResult{ID: id, Err: c.DeleteMemory(ctx, ownerID, tier, id)}
	}
	return out
}

func filter(mems []model.Memory, keep func(*model.Memory) bool) []model.Memory {
	out := mems[:0:0]
	for i := range mems {
		if keep(&mems[i]) {
			out = append(out, mems[i])
		}
	}
	return out
}

// rank orders results by score, or newest first for an empty query. The sort
// is stable so equal scores keep backend order.
func rank(mems []model.Memory, query string, limit int) []model.Memory {
	if query != "" {
		sort.SliceStable(mems, func(i, j int) bool {
			return mems[i].RelevanceScore > mems[j].RelevanceScore
		})
	} else {
		sort.SliceStable(mems, func(i, j int) bool {
			return mems[i].CreatedAt.After(mems[j].CreatedAt)
		})
	}
	if len(mems) > limit {
		mems = mems[:limit]
	}
	return mems
}
