package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/tiered-memory/internal/logger"
	"github.com/rcliao/tiered-memory/internal/model"
	"github.com/rcliao/tiered-memory/internal/permission"
	"github.com/rcliao/tiered-memory/internal/remote"
)

func paris(owner string, tier model.Tier) CreateRequest {
	return CreateRequest{
		OwnerID: owner,
		Tier:    tier,
		Content: "Paris is the capital of France",
		Kind:    model.KindFactual,
		Scope:   model.ScopePersonal,
	}
}

func TestTier1_EveryOperationDeniedWithoutBackendCalls(t *testing.T) {
	local := newLocal(t)
	rem := newFakeRemote()
	c := newClient(local, rem)
	ctx := context.Background()

	_, err := c.CreateMemory(ctx, paris("u1", model.Tier1))
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier1, Query: "France"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = c.GetMemory(ctx, "u1", model.Tier1, "x")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier1, ID: "x", Content: strPtr("y")})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.ErrorIs(t, c.DeleteMemory(ctx, "u1", model.Tier1, "x"), ErrPermissionDenied)

	_, err = c.ClearMemories(ctx, "u1", model.Tier1, model.ScopePersonal)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = c.GetAnalytics(ctx, AnalyticsRequest{OwnerID: "u1", Tier: model.Tier1})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Zero(t, local.total())
	assert.Zero(t, rem.total())
}

func TestTier1_DeniedEvenWithInvalidInput(t *testing.T) {
	local := newLocal(t)
	c := newClient(local, nil)

	_, err := c.CreateMemory(context.Background(), CreateRequest{Tier: model.Tier1})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, local.total())
}

func TestUnknownTierDenied(t *testing.T) {
	local := newLocal(t)
	c := newClient(local, nil)
	_, err := c.CreateMemory(context.Background(), paris("u1", model.Tier("root")))
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, local.total())
}

func TestCreate_DeniedScopeAndKind(t *testing.T) {
	local := newLocal(t)
	c := newClient(local, nil)
	ctx := context.Background()

	req := paris("u1", model.Tier2)
	req.Scope = model.ScopeTeam
	_, err := c.CreateMemory(ctx, req)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	req = paris("u1", model.Tier2)
	req.Kind = model.KindSemantic
	_, err = c.CreateMemory(ctx, req)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Zero(t, local.total())
}

func TestCreate_InvalidInput(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	req := paris("", model.Admin)
	_, err := c.CreateMemory(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidInput)

	req = paris("u1", model.Admin)
	req.Kind = "dream"
	_, err = c.CreateMemory(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidInput)

	req = paris("u1", model.Admin)
	req.Content = "   "
	_, err = c.CreateMemory(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEndToEnd_Tier2PersonalFactual(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	m, err := c.CreateMemory(ctx, paris("u1", model.Tier2))
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, model.PriorityMedium, m.Priority)

	hits, err := c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier2, Query: "France"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, m.ID, hits[0].ID)
	assert.GreaterOrEqual(t, hits[0].RelevanceScore, 0.5)

	hits, err = c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier2, Query: "Tokyo"})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRoundTrip_GetIncrementsAccessCountByOne(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	created, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
	require.NoError(t, err)

	got, err := c.GetMemory(ctx, "u1", model.Tier3, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Content, got.Content)
	assert.Equal(t, created.Kind, got.Kind)
	assert.Equal(t, created.Scope, got.Scope)
	assert.Equal(t, created.AccessCount+1, got.AccessCount)

	again, err := c.GetMemory(ctx, "u1", model.Tier3, created.ID)
	require.NoError(t, err)
	assert.Equal(t, got.AccessCount+1, again.AccessCount)
}

func TestGet_OtherOwnerIsNotFound(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	m, err := c.CreateMemory(ctx, paris("alice", model.Tier2))
	require.NoError(t, err)

	_, err = c.GetMemory(ctx, "bob", model.Tier2, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_Idempotent(t *testing.T) {
	local := newLocal(t)
	c := newClient(local, nil)
	ctx := context.Background()

	m, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
	require.NoError(t, err)
	keep, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
	require.NoError(t, err)

	require.NoError(t, c.DeleteMemory(ctx, "u1", model.Tier3, m.ID))
	assert.ErrorIs(t, c.DeleteMemory(ctx, "u1", model.Tier3, m.ID), ErrNotFound)
	assert.ErrorIs(t, c.DeleteMemory(ctx, "u1", model.Tier3, "missing"), ErrNotFound)

	_, err = c.GetMemory(ctx, "u1", model.Tier3, keep.ID)
	assert.NoError(t, err)
}

func TestDelete_Tier2CannotDelete(t *testing.T) {
	local := newLocal(t)
	c := newClient(local, nil)
	before := local.total()
	assert.ErrorIs(t, c.DeleteMemory(context.Background(), "u1", model.Tier2, "x"), ErrPermissionDenied)
	assert.Equal(t, before, local.total())
}

func TestDelete_HiddenKindIsNotFound(t *testing.T) {
	local := newLocal(t)
	c := newClient(local, nil)
	ctx := context.Background()

	req := paris("u1", model.Admin)
	req.Kind = model.KindWorking
	m, err := c.CreateMemory(ctx, req)
	require.NoError(t, err)

	// TIER_3 may delete personal memories but not see working ones.
	assert.ErrorIs(t, c.DeleteMemory(ctx, "u1", model.Tier3, m.ID), ErrNotFound)
	_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier3, ID: m.ID, Content: strPtr("y")})
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := c.ClearMemories(ctx, "u1", model.Tier3, model.ScopePersonal)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := c.GetMemory(ctx, "u1", model.Admin, m.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Content, got.Content)
	require.NoError(t, c.DeleteMemory(ctx, "u1", model.Admin, m.ID))
}

func TestDelete_RemoteHiddenKindIsNotFound(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(model.Memory{
		ID:       "r-9",
		OwnerID:  "u1",
		Content:  "scratch",
		Kind:     model.KindWorking,
		Scope:    model.ScopePersonal,
		Priority: model.PriorityLow,
	})
	c := newClient(newLocal(t), rem)

	assert.ErrorIs(t, c.DeleteMemory(context.Background(), "u1", model.Tier3, "r-9"), ErrNotFound)
	assert.Zero(t, rem.count("delete"))
}

func TestOwnerIDIsTrimmedEverywhere(t *testing.T) {
	local := newLocal(t)
	c := newClient(local, nil)
	ctx := context.Background()

	m, err := c.CreateMemory(ctx, paris(" u1 ", model.Tier3))
	require.NoError(t, err)
	assert.Equal(t, "personal/u1", m.Partition)

	for _, owner := range []string{" u1 ", "u1"} {
		got, err := c.GetMemory(ctx, owner, model.Tier3, m.ID)
		require.NoError(t, err, "get as %q", owner)
		assert.Equal(t, "u1", got.OwnerID)

		hits, err := c.SearchMemories(ctx, SearchRequest{OwnerID: owner, Tier: model.Tier3, Query: "Paris"})
		require.NoError(t, err)
		assert.Len(t, hits, 1, "search as %q", owner)
	}

	_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "\tu1", Tier: model.Tier3, ID: m.ID, Content: strPtr("Paris, France")})
	require.NoError(t, err)
	require.NoError(t, c.DeleteMemory(ctx, " u1 ", model.Tier3, m.ID))

	_, err = c.CreateMemory(ctx, paris(" u1 ", model.Tier3))
	require.NoError(t, err)
	n, err := c.ClearMemories(ctx, "u1 ", model.Tier3, model.ScopePersonal)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestErrorsAreLoggedWithStack(t *testing.T) {
	var buf bytes.Buffer
	c := New(Options{
		Remote: failingRemote(),
		Logger: logger.NewWithWriter(&buf, "test", "debug"),
	})

	_, err := c.CreateMemory(context.Background(), paris("u1", model.Tier2))
	require.ErrorIs(t, err, ErrStorageUnavailable)

	var sawStack bool
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry map[string]interface{}
		require.NoError(t, dec.Decode(&entry))
		if entry["level"] == "error" {
			_, sawStack = entry["stack"]
		}
	}
	assert.True(t, sawStack, "error event should carry a stack")
}

func TestFallback_RemoteAlwaysFails(t *testing.T) {
	local := newLocal(t)
	rem := failingRemote()
	c := newClient(local, rem)
	ctx := context.Background()

	m, err := c.CreateMemory(ctx, paris("u1", model.Tier2))
	require.NoError(t, err)
	assert.Equal(t, 1, rem.count("create"))
	assert.Equal(t, 1, local.count("create"))

	got, err := local.inner.Get(ctx, m.Partition, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)

	viaClient, err := c.GetMemory(ctx, "u1", model.Tier2, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, viaClient.ID)

	hits, err := c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier2, Query: "france"})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFallback_RemoteSucceedsNeverWritesLocal(t *testing.T) {
	local := newLocal(t)
	rem := newFakeRemote()
	c := newClient(local, rem)
	ctx := context.Background()

	m, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
	require.NoError(t, err)
	assert.Equal(t, "r-1", m.ID)
	assert.Equal(t, "personal/u1", m.Partition)

	hits, err := c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier3, Query: "France"})
	require.NoError(t, err)
	require.Len(t, hits, 1)

	_, err = c.GetMemory(ctx, "u1", model.Tier3, m.ID)
	require.NoError(t, err)
	_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier3, ID: m.ID, Content: strPtr("Paris, France")})
	require.NoError(t, err)
	require.NoError(t, c.DeleteMemory(ctx, "u1", model.Tier3, m.ID))

	assert.Zero(t, local.total())
}

func TestRemoteUnconfiguredGoesStraightToLocal(t *testing.T) {
	local := newLocal(t)
	rem := newFakeRemote()
	rem.unconfigured = true
	c := newClient(local, rem)

	_, err := c.CreateMemory(context.Background(), paris("u1", model.Tier2))
	require.NoError(t, err)
	assert.Zero(t, rem.total())
	assert.Equal(t, 1, local.count("create"))
}

func TestNoBackends_StorageUnavailable(t *testing.T) {
	c := newClient(nil, failingRemote())
	ctx := context.Background()

	_, err := c.CreateMemory(ctx, paris("u1", model.Tier2))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.NotErrorIs(t, err, ErrPermissionDenied)

	_, err = c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier2, Query: "x"})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	c = newClient(nil, nil)
	_, err = c.CreateMemory(ctx, paris("u1", model.Tier2))
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestRemoteNotFoundIsAuthoritative(t *testing.T) {
	local := newLocal(t)
	rem := newFakeRemote()
	c := newClient(local, rem)
	ctx := context.Background()

	_, err := c.GetMemory(ctx, "u1", model.Tier3, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.DeleteMemory(ctx, "u1", model.Tier3, "nope"), ErrNotFound)
	assert.Zero(t, local.total())
}

func TestUnsupportedPolicy(t *testing.T) {
	notSupported := fmt.Errorf("%w: update disabled", remote.ErrNotSupported)
	ctx := context.Background()

	t.Run("fail", func(t *testing.T) {
		local := newLocal(t)
		rem := newFakeRemote()
		rem.opErr["update"] = notSupported
		c := newClient(local, rem, func(o *Options) { o.FailUnsupported = true })

		m, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
		require.NoError(t, err)
		_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier3, ID: m.ID, Content: strPtr("x")})
		assert.ErrorIs(t, err, ErrNotSupported)
		assert.Equal(t, http.StatusNotImplemented, StatusCode(err))
		assert.Zero(t, local.total())
	})

	t.Run("fallback", func(t *testing.T) {
		local := newLocal(t)
		rem := newFakeRemote()
		rem.opErr["update"] = notSupported
		c := newClient(local, rem)

		m, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
		require.NoError(t, err)
		_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier3, ID: m.ID, Content: strPtr("x")})
		// The record lives remotely, so the local fallback cannot find it.
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, len([]string{"personal", "project", "team"}), local.count("update"))
	})
}

func TestSearch_PostFiltersBackendLeakage(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(model.Memory{ID: "mine", OwnerID: "u1", Content: "France facts", Kind: model.KindFactual, Scope: model.ScopePersonal, Priority: model.PriorityLow})
	rem.seed(model.Memory{ID: "team", OwnerID: "u1", Content: "France team", Kind: model.KindFactual, Scope: model.ScopeTeam, Priority: model.PriorityLow})
	rem.seed(model.Memory{ID: "semantic", OwnerID: "u1", Content: "France concept", Kind: model.KindSemantic, Scope: model.ScopePersonal, Priority: model.PriorityLow})
	rem.seed(model.Memory{ID: "other", OwnerID: "u2", Content: "France other", Kind: model.KindFactual, Scope: model.ScopePersonal, Priority: model.PriorityLow})
	rem.seed(model.Memory{ID: "orphan", Content: "France orphan", Kind: model.KindFactual, Scope: model.ScopePersonal, Priority: model.PriorityLow})

	// The fake filters by owner; strip that to mimic a leaky service.
	leaky := &leakyRemote{fakeRemote: rem}
	c := New(Options{Remote: leaky, Logger: zerolog.Nop()})

	hits, err := c.SearchMemories(context.Background(), SearchRequest{OwnerID: "u1", Tier: model.Tier2, Query: "France"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "mine", hits[0].ID)
}

type leakyRemote struct {
	*fakeRemote
}

func (l *leakyRemote) Search(ctx context.Context, req remote.SearchRequest) ([]model.Memory, error) {
	req.OwnerID = ""
	req.Scope = ""
	return l.fakeRemote.Search(ctx, req)
}

func TestSearch_SpansAllowedScopesOrFiltersOne(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	for _, sc := range []model.Scope{model.ScopePersonal, model.ScopeProject, model.ScopeTeam} {
		req := paris("u1", model.Tier3)
		req.Scope = sc
		req.Content = "France note in " + string(sc)
		_, err := c.CreateMemory(ctx, req)
		require.NoError(t, err)
	}

	hits, err := c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier3, Query: "france"})
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	hits, err = c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier3, Query: "france", Scope: scopePtr(model.ScopeTeam)})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, model.ScopeTeam, hits[0].Scope)

	_, err = c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier3, Scope: scopePtr(model.ScopeOrganization)})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	hits, err = c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier3, Query: "france", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_KindFilter(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	_, err := c.CreateMemory(ctx, paris("u1", model.Tier2))
	require.NoError(t, err)
	ep := paris("u1", model.Tier2)
	ep.Kind = model.KindEpisodic
	ep.Content = "Visited France last summer"
	_, err = c.CreateMemory(ctx, ep)
	require.NoError(t, err)

	hits, err := c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier2, Query: "France", Kind: kindPtr(model.KindEpisodic)})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, model.KindEpisodic, hits[0].Kind)
}

func TestUpdate_Local(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	m, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
	require.NoError(t, err)

	prio := model.PriorityHigh
	tags := []string{"geo", "geo", "europe"}
	got, err := c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier3, ID: m.ID, Priority: &prio, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, []string{"europe", "geo"}, got.Tags)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier3, ID: m.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier2, ID: m.ID, Kind: kindPtr(model.KindSemantic)})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u2", Tier: model.Tier3, ID: m.ID, Content: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_RemoteKeepsScopeAndOwner(t *testing.T) {
	rem := newFakeRemote()
	c := newClient(nil, rem)
	ctx := context.Background()

	m, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
	require.NoError(t, err)

	got, err := c.UpdateMemory(ctx, UpdateRequest{OwnerID: "u1", Tier: model.Tier3, ID: m.ID, Kind: kindPtr(model.KindEpisodic)})
	require.NoError(t, err)
	assert.Equal(t, model.KindEpisodic, got.Kind)
	assert.Equal(t, model.ScopePersonal, got.Scope)
	assert.Equal(t, "personal/u1", got.Partition)
	assert.Equal(t, "Paris is the capital of France", got.Content)
}

func TestRemoteOwnershipChecked(t *testing.T) {
	rem := newFakeRemote()
	rem.seed(model.Memory{ID: "theirs", OwnerID: "u2", Content: "secret", Kind: model.KindFactual, Scope: model.ScopePersonal, Priority: model.PriorityLow})
	c := newClient(nil, rem)
	ctx := context.Background()

	_, err := c.GetMemory(ctx, "u1", model.Admin, "theirs")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, c.DeleteMemory(ctx, "u1", model.Admin, "theirs"), ErrNotFound)
	assert.Zero(t, rem.count("delete"))
}

func TestClear(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		c := newClient(newLocal(t), nil)
		for i := 0; i < 3; i++ {
			_, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
			require.NoError(t, err)
		}
		other := paris("u1", model.Tier3)
		other.Scope = model.ScopeTeam
		_, err := c.CreateMemory(ctx, other)
		require.NoError(t, err)

		n, err := c.ClearMemories(ctx, "u1", model.Tier3, model.ScopePersonal)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		hits, err := c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier3})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, model.ScopeTeam, hits[0].Scope)
	})

	t.Run("remote", func(t *testing.T) {
		rem := newFakeRemote()
		c := newClient(nil, rem)
		for i := 0; i < 2; i++ {
			_, err := c.CreateMemory(ctx, paris("u1", model.Tier3))
			require.NoError(t, err)
		}
		_, err := c.CreateMemory(ctx, paris("u2", model.Tier3))
		require.NoError(t, err)

		n, err := c.ClearMemories(ctx, "u1", model.Tier3, model.ScopePersonal)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 2, rem.count("delete"))
	})

	t.Run("denied scope", func(t *testing.T) {
		c := newClient(newLocal(t), nil)
		_, err := c.ClearMemories(ctx, "u1", model.Tier3, model.ScopeOrganization)
		assert.ErrorIs(t, err, ErrPermissionDenied)
	})
}

func TestBulk(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	bad := paris("u1", model.Tier2)
	bad.Scope = model.ScopeTeam
	res := c.BulkCreate(ctx, []CreateRequest{paris("u1", model.Tier2), bad, paris("u1", model.Tier2)})
	require.Len(t, res, 3)
	assert.True(t, res[0].OK())
	assert.ErrorIs(t, res[1].Err, ErrPermissionDenied)
	assert.True(t, res[2].OK())

	del := c.BulkDelete(ctx, "u1", model.Tier3, []string{res[0].ID, "missing", res[0].ID})
	require.Len(t, del, 2)
	assert.True(t, del[res[0].ID].OK())
	assert.ErrorIs(t, del["missing"].Err, ErrNotFound)

	b, err := del["missing"].MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"ok":false`)
	assert.Contains(t, string(b), `"status":404`)
}

func TestAnalyticsScoping(t *testing.T) {
	local := newLocal(t)
	c := newClient(local, nil)
	ctx := context.Background()

	for _, owner := range []string{"alice", "alice", "bob"} {
		_, err := c.CreateMemory(ctx, paris(owner, model.Admin))
		require.NoError(t, err)
	}
	team := paris("bob", model.Admin)
	team.Scope = model.ScopeTeam
	_, err := c.CreateMemory(ctx, team)
	require.NoError(t, err)
	project := paris("alice", model.Admin)
	project.Scope = model.ScopeProject
	_, err = c.CreateMemory(ctx, project)
	require.NoError(t, err)

	// Owner reach aggregates personal memories only.
	rep, err := c.GetAnalytics(ctx, AnalyticsRequest{OwnerID: "alice", Tier: model.Tier3})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 2}, rep.ByOwner)
	assert.Equal(t, map[model.Scope]int{model.ScopePersonal: 2}, rep.ByScope)
	assert.Equal(t, 2, rep.Total)

	rep, err = c.GetAnalytics(ctx, AnalyticsRequest{OwnerID: "alice", Tier: model.Admin})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 3, "bob": 2}, rep.ByOwner)
	assert.Equal(t, 5, rep.Total)
	assert.Equal(t, "local", rep.Source)

	rep, err = c.GetAnalytics(ctx, AnalyticsRequest{OwnerID: "alice", Tier: model.Staff})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 1}, rep.ByOwner)

	_, err = c.GetAnalytics(ctx, AnalyticsRequest{OwnerID: "alice", Tier: model.Tier2})
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestAnalytics_RemoteThenLocal(t *testing.T) {
	local := newLocal(t)
	rem := failingRemote()
	c := newClient(local, rem)
	ctx := context.Background()

	_, err := c.CreateMemory(ctx, paris("alice", model.Tier3))
	require.NoError(t, err)

	rep, err := c.GetAnalytics(ctx, AnalyticsRequest{OwnerID: "alice", Tier: model.Tier3})
	require.NoError(t, err)
	assert.Equal(t, "local", rep.Source)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 1, rem.count("list"))
}

func TestConcurrentCreatesSamePartition(t *testing.T) {
	c := newClient(newLocal(t), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 20)
	errs := make([]error, 20)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := c.CreateMemory(ctx, paris("u1", model.Tier2))
			errs[i] = err
			if m != nil {
				ids[i] = m.ID
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i, id := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	hits, err := c.SearchMemories(ctx, SearchRequest{OwnerID: "u1", Tier: model.Tier2, Query: "France", Limit: 100})
	require.NoError(t, err)
	assert.Len(t, hits, 20)
}

func TestStatusCode(t *testing.T) {
	cases := map[error]int{
		nil:                   http.StatusOK,
		ErrInvalidInput:       http.StatusBadRequest,
		ErrPermissionDenied:   http.StatusForbidden,
		permission.ErrDenied:  http.StatusForbidden,
		ErrNotFound:           http.StatusNotFound,
		ErrNotSupported:       http.StatusNotImplemented,
		ErrStorageUnavailable: http.StatusServiceUnavailable,
		fmt.Errorf("boom"):    http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, StatusCode(err), "%v", err)
		if err != nil {
			assert.Equal(t, want, StatusCode(fmt.Errorf("wrapped: %w", err)))
		}
	}
}
