package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/stats"
	"github.com/dolthub/typeql-core/typeinfer"
)

func buildSchema() (*schema.TypeManager, core.TypeID, core.TypeID) {
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	age := types.DefineType(core.AttributeKind, "age", core.ValueKindLong, false)
	types.DeclareOwns(person, age)
	return types, person, age
}

func TestThingVertex_BoundCollapsesToOne(t *testing.T) {
	types, person, _ := buildSchema()
	st := stats.New()
	st.EntityCounts[person] = 100

	reg := ir.NewRegistry()
	v := reg.Declare("p", ir.CategoryThing, ir.Required)

	tv := NewThingVertex(v, ir.NewTypeSet(person), types, st)
	require.Equal(t, float64(100), tv.ExpectedSize)

	unbound := tv.Cost(map[*ir.Variable]bool{})
	require.Equal(t, 100.0, unbound.BranchingFactor)

	bound := tv.Cost(map[*ir.Variable]bool{v: true})
	require.Equal(t, 1.0, bound.BranchingFactor)
	require.Equal(t, 0.0, bound.PerInput)
}

func TestBuildPlan_OrdersIsaBeforeHas(t *testing.T) {
	types, person, age := buildSchema()
	st := stats.New()
	st.EntityCounts[person] = 10
	st.AttributeCounts[age] = 40
	st.Has[person] = map[core.TypeID]int64{age: 10}
	st.HasReverse[age] = map[core.TypeID]int64{person: 10}

	reg := ir.NewRegistry()
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	a := reg.Declare("a", ir.CategoryThing, ir.Required)

	block := ir.NewBlock(reg)
	isa := ir.NewIsa(p, nil, "person")
	has := ir.NewHas(p, a)
	block.AddConstraint(isa)
	block.AddConstraint(has)

	ann, err := typeinfer.Infer(block, types, nil, ir.NewFunctionRegistry())
	require.NoError(t, err)

	plan := BuildPlan(block, ann, types, st, nil)
	require.Len(t, plan.Steps, 2)
	require.Equal(t, isa, plan.Steps[0].Constraint)
	require.Equal(t, has, plan.Steps[1].Constraint)
	require.Contains(t, plan.Steps[1].BoundBefore, p)
}
