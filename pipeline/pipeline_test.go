package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/exec"
	"github.com/dolthub/typeql-core/exec/collect"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/stats"
	"github.com/dolthub/typeql-core/storage/boltstore"
)

// fixedStage replays a fixed sequence of batches in order, then reports
// exhausted — a stand-in upstream link for exercising one stage.Pull in
// isolation, without a compiled executor underneath it.
type fixedStage struct {
	batches []*core.FixedBatch
	idx     int
}

func (s *fixedStage) Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.idx >= len(s.batches) {
		return nil, nil
	}
	b := s.batches[s.idx]
	s.idx++
	return b, nil
}

func longBatch(capacity int, vals ...int64) *core.FixedBatch {
	b := core.NewFixedBatch(1, capacity)
	for _, v := range vals {
		row := core.NewRow(1)
		row[0] = core.ValueCell(core.LongValue(v))
		b.Append(row)
	}
	return b
}

func drainLongs(t *testing.T, s Stage, ctx *core.ExecutionContext) []int64 {
	t.Helper()
	var got []int64
	for {
		b, err := s.Pull(ctx)
		require.NoError(t, err)
		if b == nil {
			return got
		}
		for _, r := range b.Rows() {
			got = append(got, r[0].Value.Data.(int64))
		}
	}
}

func TestOffsetStage_SplitsUpstreamBatchWhenOffsetLandsMidBatch(t *testing.T) {
	upstream := &fixedStage{batches: []*core.FixedBatch{longBatch(8, 1, 2, 3), longBatch(8, 4, 5)}}
	stage := &offsetStage{upstream: upstream, n: 2}
	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	require.Equal(t, []int64{3, 4, 5}, drainLongs(t, stage, ctx))
}

func TestOffsetStage_DropsWholeBatchesBeforeTheOffset(t *testing.T) {
	upstream := &fixedStage{batches: []*core.FixedBatch{longBatch(8, 1, 2), longBatch(8, 3, 4)}}
	stage := &offsetStage{upstream: upstream, n: 2}
	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	require.Equal(t, []int64{3, 4}, drainLongs(t, stage, ctx))
}

func TestLimitStage_SplitsUpstreamBatchWhenLimitLandsMidBatch(t *testing.T) {
	upstream := &fixedStage{batches: []*core.FixedBatch{longBatch(8, 1, 2, 3), longBatch(8, 4, 5)}}
	stage := &limitStage{upstream: upstream, n: 4}
	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	require.Equal(t, []int64{1, 2, 3, 4}, drainLongs(t, stage, ctx))
}

func TestLimitStage_StopsPullingUpstreamOnceSatisfied(t *testing.T) {
	upstream := &fixedStage{batches: []*core.FixedBatch{longBatch(8, 1, 2)}}
	stage := &limitStage{upstream: upstream, n: 1}
	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	require.Equal(t, []int64{1}, drainLongs(t, stage, ctx))
	require.Equal(t, 1, upstream.idx, "limit must not pull a second upstream batch once satisfied from the first")
}

func TestSelectStage_ProjectsOntoDenselyPackedPositions(t *testing.T) {
	b := core.NewFixedBatch(3, 2)
	row := core.NewRow(3)
	row[0] = core.ValueCell(core.LongValue(10))
	row[1] = core.ValueCell(core.LongValue(20))
	row[2] = core.ValueCell(core.LongValue(30))
	b.Append(row)
	upstream := &fixedStage{batches: []*core.FixedBatch{b}}
	stage := &selectStage{upstream: upstream, positions: []core.VariablePosition{2, 0}}
	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}

	out, err := stage.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	require.Equal(t, int64(30), out.Get(0)[0].Value.Data)
	require.Equal(t, int64(10), out.Get(0)[1].Value.Data)
}

func TestCollectingStage_DrainsEveryUpstreamBatchBeforeProducing(t *testing.T) {
	reg := ir.NewRegistry()
	v := reg.Declare("v", ir.CategoryValue, ir.Required)
	upstream := &fixedStage{batches: []*core.FixedBatch{longBatch(8, 3, 1), longBatch(8, 2)}}
	stage := &collectingStage{upstream: upstream, cs: collect.NewSort([]ir.SortKey{{Variable: v, Ascending: true}}), capacity: 8}
	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	require.Equal(t, []int64{1, 2, 3}, drainLongs(t, stage, ctx))
}

// --- End-to-end pipelines over real storage -----------------------------

func openStore(t *testing.T) *boltstore.Store {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWritePipeline_InsertPutsAnEntityVertex(t *testing.T) {
	store := openStore(t)
	snap := store.OpenSnapshot()
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	tm := schema.NewThingManager(types, snap, snap)

	reg := ir.NewRegistry()
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(p, nil, "person"))

	pl := &ir.Pipeline{Stages: []ir.Stage{ir.InsertStage(block)}}

	prepared, err := PrepareWritePipeline(snap, snap, types, tm, ir.NewFunctionRegistry(), stats.New(), nil, pl, exec.DefaultConfig())
	require.NoError(t, err)

	it, ctx := prepared.IntoIterator(core.NewInterrupt())
	out, err := it.Next()
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, 1, out.Len())
	ref := out.Get(0)[p.Position].Thing
	require.Equal(t, core.EntityKind, ref.Kind)
	require.Equal(t, person, ref.Type)

	next, err := it.Next()
	require.NoError(t, err)
	require.Nil(t, next)

	_, err = ctx.Snapshot.(*boltstore.Snapshot).Commit()
	require.NoError(t, err)
}

func TestReadPipeline_MatchSelectsEveryStoredInstanceOfAType(t *testing.T) {
	store := openStore(t)
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	dog := types.DefineType(core.EntityKind, "dog", 0, false)

	setupSnap := store.OpenSnapshot()
	tm := schema.NewThingManager(types, setupSnap, setupSnap)
	p1, err := tm.AllocateObject(core.EntityKind, person)
	require.NoError(t, err)
	p2, err := tm.AllocateObject(core.EntityKind, person)
	require.NoError(t, err)
	_, err = tm.AllocateObject(core.EntityKind, dog)
	require.NoError(t, err)
	_, err = setupSnap.Commit()
	require.NoError(t, err)

	readSnap := store.OpenSnapshot()
	reg := ir.NewRegistry()
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(p, nil, "person"))

	pl := &ir.Pipeline{Stages: []ir.Stage{ir.MatchStage(block), ir.SelectStage([]*ir.Variable{p})}}

	prepared, err := PrepareReadPipeline(readSnap, types, tm, ir.NewFunctionRegistry(), stats.New(), nil, pl, exec.DefaultConfig())
	require.NoError(t, err)

	it, ctx := prepared.IntoIterator(core.NewInterrupt())
	var seen []core.ThingRef
	for {
		b, err := it.Next()
		require.NoError(t, err)
		if b == nil {
			break
		}
		for _, row := range b.Rows() {
			seen = append(seen, row[0].Thing)
		}
	}
	_ = ctx

	require.Len(t, seen, 2)
	foundP1, foundP2 := false, false
	for _, ref := range seen {
		require.Equal(t, person, ref.Type)
		if ref.Equal(p1) {
			foundP1 = true
		}
		if ref.Equal(p2) {
			foundP2 = true
		}
	}
	require.True(t, foundP1)
	require.True(t, foundP2)
}

func TestReadPipeline_MatchFollowsLinksToTheRolePlayer(t *testing.T) {
	store := openStore(t)
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	team := types.DefineType(core.EntityKind, "team", 0, false)
	membership := types.DefineType(core.RelationKind, "membership", 0, false)
	memberRole := types.DefineRole(membership, "member")
	groupRole := types.DefineRole(membership, "group")
	types.DeclareRelates(membership, memberRole)
	types.DeclareRelates(membership, groupRole)
	types.DeclarePlays(person, memberRole)
	types.DeclarePlays(team, groupRole)

	setupSnap := store.OpenSnapshot()
	tm := schema.NewThingManager(types, setupSnap, setupSnap)
	p1, err := tm.AllocateObject(core.EntityKind, person)
	require.NoError(t, err)
	g1, err := tm.AllocateObject(core.EntityKind, team)
	require.NoError(t, err)
	m1, err := tm.AllocateObject(core.RelationKind, membership)
	require.NoError(t, err)
	require.NoError(t, tm.PutRolePlayer(m1, p1, memberRole))
	require.NoError(t, tm.PutRolePlayer(m1, g1, groupRole))
	_, err = setupSnap.Commit()
	require.NoError(t, err)

	readSnap := store.OpenSnapshot()
	reg := ir.NewRegistry()
	m := reg.Declare("m", ir.CategoryThing, ir.Required)
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(m, nil, "membership"))
	block.AddConstraint(ir.NewLinks(m, p, nil, "membership:member"))

	pl := &ir.Pipeline{Stages: []ir.Stage{ir.MatchStage(block), ir.SelectStage([]*ir.Variable{p})}}

	prepared, err := PrepareReadPipeline(readSnap, types, tm, ir.NewFunctionRegistry(), stats.New(), nil, pl, exec.DefaultConfig())
	require.NoError(t, err)

	it, ctx := prepared.IntoIterator(core.NewInterrupt())
	var seen []core.ThingRef
	for {
		b, err := it.Next()
		require.NoError(t, err)
		if b == nil {
			break
		}
		for _, row := range b.Rows() {
			seen = append(seen, row[0].Thing)
		}
	}
	_ = ctx

	require.Len(t, seen, 1)
	require.True(t, seen[0].Equal(p1), "links must resolve the member role to the person, not the team")
}

func TestReadPipeline_MatchFollowsLinksBackwardFromPlayerAndBindsTheRole(t *testing.T) {
	store := openStore(t)
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	team := types.DefineType(core.EntityKind, "team", 0, false)
	membership := types.DefineType(core.RelationKind, "membership", 0, false)
	memberRole := types.DefineRole(membership, "member")
	groupRole := types.DefineRole(membership, "group")
	types.DeclareRelates(membership, memberRole)
	types.DeclareRelates(membership, groupRole)
	types.DeclarePlays(person, memberRole)
	types.DeclarePlays(team, groupRole)

	setupSnap := store.OpenSnapshot()
	tm := schema.NewThingManager(types, setupSnap, setupSnap)
	p1, err := tm.AllocateObject(core.EntityKind, person)
	require.NoError(t, err)
	g1, err := tm.AllocateObject(core.EntityKind, team)
	require.NoError(t, err)
	m1, err := tm.AllocateObject(core.RelationKind, membership)
	require.NoError(t, err)
	require.NoError(t, tm.PutRolePlayer(m1, p1, memberRole))
	require.NoError(t, tm.PutRolePlayer(m1, g1, groupRole))
	_, err = setupSnap.Commit()
	require.NoError(t, err)

	readSnap := store.OpenSnapshot()
	reg := ir.NewRegistry()
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	m := reg.Declare("m", ir.CategoryThing, ir.Required)
	role := reg.Declare("role", ir.CategoryType, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(p, nil, "person"))
	block.AddConstraint(ir.NewLinks(m, p, role, ""))

	pl := &ir.Pipeline{Stages: []ir.Stage{ir.MatchStage(block), ir.SelectStage([]*ir.Variable{m, role})}}

	prepared, err := PrepareReadPipeline(readSnap, types, tm, ir.NewFunctionRegistry(), stats.New(), nil, pl, exec.DefaultConfig())
	require.NoError(t, err)

	it, ctx := prepared.IntoIterator(core.NewInterrupt())
	var rows []core.Row
	for {
		b, err := it.Next()
		require.NoError(t, err)
		if b == nil {
			break
		}
		rows = append(rows, b.Rows()...)
	}
	_ = ctx

	require.Len(t, rows, 1)
	require.True(t, rows[0][0].Thing.Equal(m1))
	require.Equal(t, memberRole, rows[0][1].Type)
}
