package write

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/storage"
	"github.com/dolthub/typeql-core/storage/boltstore"
)

func openStore(t *testing.T) (*boltstore.Store, *boltstore.Snapshot) {
	t.Helper()
	store, err := boltstore.Open(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, store.OpenSnapshot()
}

func TestInsertExecutor_PutObjectThenHas(t *testing.T) {
	_, snap := openStore(t)
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	age := types.DefineType(core.AttributeKind, "age", core.ValueKindLong, false)
	tm := schema.NewThingManager(types, snap, snap)

	reg := ir.NewRegistry()
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	a := reg.Declare("a", ir.CategoryThing, ir.Required)

	plan := InsertPlan{
		Instructions: []InsertInstruction{
			PutObjectInstruction(person, p, false),
			PutAttributeInstructionWithValue(age, a, core.LongValue(30)),
			HasInstruction(p, a),
		},
		OutputWidth: 2,
	}
	exec := NewInsertExecutor(plan)
	ctx := &core.ExecutionContext{Snapshot: snap, Writer: snap, Things: tm, Interrupt: core.NewInterrupt()}

	out, err := exec.Execute(ctx, core.NewRow(2))
	require.NoError(t, err)
	require.Equal(t, core.EntityKind, out[p.Position].Thing.Kind)
	require.Equal(t, core.AttributeKind, out[a.Position].Thing.Kind)
}

func TestInsertExecutor_PutAttributeIsIdempotent(t *testing.T) {
	_, snap := openStore(t)
	types := schema.NewTypeManager()
	age := types.DefineType(core.AttributeKind, "age", core.ValueKindLong, false)
	tm := schema.NewThingManager(types, snap, snap)

	reg := ir.NewRegistry()
	a := reg.Declare("a", ir.CategoryThing, ir.Required)
	plan := InsertPlan{Instructions: []InsertInstruction{PutAttributeInstructionWithValue(age, a, core.LongValue(7))}, OutputWidth: 1}
	exec := NewInsertExecutor(plan)
	ctx := &core.ExecutionContext{Snapshot: snap, Writer: snap, Things: tm, Interrupt: core.NewInterrupt()}

	r1, err := exec.Execute(ctx, core.NewRow(1))
	require.NoError(t, err)
	r2, err := exec.Execute(ctx, core.NewRow(1))
	require.NoError(t, err)
	require.True(t, r1[a.Position].Thing.Equal(r2[a.Position].Thing))
}

func TestDeleteExecutor_CascadesHasEdges(t *testing.T) {
	_, snap := openStore(t)
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	age := types.DefineType(core.AttributeKind, "age", core.ValueKindLong, false)
	tm := schema.NewThingManager(types, snap, snap)

	owner, err := tm.AllocateObject(core.EntityKind, person)
	require.NoError(t, err)
	attr, _, err := tm.PutAttribute(age, core.LongValue(42))
	require.NoError(t, err)
	require.NoError(t, tm.PutHas(owner, attr))

	reg := ir.NewRegistry()
	a := reg.Declare("a", ir.CategoryThing, ir.Required)

	plan := DeletePlan{DeletedPositions: []core.VariablePosition{a.Position}, OutputPositions: nil}
	exec := NewDeleteExecutor(plan)
	ctx := &core.ExecutionContext{Snapshot: snap, Writer: snap, Things: tm, Interrupt: core.NewInterrupt()}

	row := core.NewRow(1)
	row[a.Position] = core.ThingCell(attr)
	_, err = exec.Execute(ctx, row)
	require.NoError(t, err)

	ownerKey := storage.EncodeObjectVertex(owner.Kind, owner.Type, owner.InstanceID)
	attrKey := storage.EncodeAttributeVertex(attr.ValueKind, attr.Type, attr.InstanceID)
	fwdKey := string(storage.EncodeHasEdge(ownerKey, attrKey))

	found := false
	it := snap.IterateBufferedWrites()
	for it.Next() {
		entry := it.Entry()
		if string(entry.Key) == fwdKey {
			found = true
			require.Equal(t, core.WriteDelete, entry.Kind)
		}
	}
	require.True(t, found, "cascade must tombstone the forward has edge")
}
