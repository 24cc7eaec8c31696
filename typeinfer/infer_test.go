package typeinfer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/schema"
)

func newMembershipSchema() (*schema.TypeManager, map[string]core.TypeID) {
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	dog := types.DefineType(core.EntityKind, "dog", 0, false)
	team := types.DefineType(core.EntityKind, "team", 0, false)
	membership := types.DefineType(core.RelationKind, "membership", 0, false)
	member := types.DefineRole(membership, "member")
	group := types.DefineRole(membership, "group")
	types.DeclareRelates(membership, member)
	types.DeclareRelates(membership, group)
	types.DeclarePlays(person, member)
	types.DeclarePlays(team, group)

	return types, map[string]core.TypeID{
		"person":     person,
		"dog":        dog,
		"team":       team,
		"membership": membership,
		"member":     member,
		"group":      group,
	}
}

func TestInfer_IsaNarrowsThingToExactlyTheLabeledType(t *testing.T) {
	types, ids := newMembershipSchema()

	reg := ir.NewRegistry()
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(p, nil, "person"))

	ann, err := Infer(block, types, nil, ir.NewFunctionRegistry())
	require.NoError(t, err)
	require.Equal(t, ir.NewTypeSet(ids["person"]), ann.Variables[p])
}

func TestInfer_HasNarrowsBothSidesToCompatiblePairs(t *testing.T) {
	types := schema.NewTypeManager()
	person := types.DefineType(core.EntityKind, "person", 0, false)
	dog := types.DefineType(core.EntityKind, "dog", 0, false)
	name := types.DefineType(core.AttributeKind, "name", core.ValueKindString, false)
	types.DeclareOwns(person, name)

	reg := ir.NewRegistry()
	owner := reg.Declare("owner", ir.CategoryThing, ir.Required)
	attr := reg.Declare("attr", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(owner, nil, "person"))
	block.AddConstraint(ir.NewHas(owner, attr))

	ann, err := Infer(block, types, nil, ir.NewFunctionRegistry())
	require.NoError(t, err)
	require.Equal(t, ir.NewTypeSet(person), ann.Variables[owner])
	require.Equal(t, ir.NewTypeSet(name), ann.Variables[attr])
	_ = dog
}

func TestInfer_LinksWithLiteralRoleLabelNarrowsRelationAndPlayer(t *testing.T) {
	types, ids := newMembershipSchema()

	reg := ir.NewRegistry()
	m := reg.Declare("m", ir.CategoryThing, ir.Required)
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(m, nil, "membership"))
	block.AddConstraint(ir.NewLinks(m, p, nil, "membership:member"))

	ann, err := Infer(block, types, nil, ir.NewFunctionRegistry())
	require.NoError(t, err)
	require.Equal(t, ir.NewTypeSet(ids["membership"]), ann.Variables[m])
	require.Equal(t, ir.NewTypeSet(ids["person"]), ann.Variables[p])
}

func TestInfer_LinksWithOpenRoleBindsOnlyAdmissibleRoles(t *testing.T) {
	types, ids := newMembershipSchema()

	reg := ir.NewRegistry()
	m := reg.Declare("m", ir.CategoryThing, ir.Required)
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	role := reg.Declare("role", ir.CategoryType, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(m, nil, "membership"))
	block.AddConstraint(ir.NewIsa(p, nil, "person"))
	block.AddConstraint(ir.NewLinks(m, p, role, ""))

	ann, err := Infer(block, types, nil, ir.NewFunctionRegistry())
	require.NoError(t, err)
	// person only plays member, never group, so role narrows to member alone
	// even though it started out unconstrained.
	require.Equal(t, ir.NewTypeSet(ids["member"]), ann.Variables[role])
}

func TestInfer_NestedBlockIntersectsOuterVariableCandidates(t *testing.T) {
	types, ids := newMembershipSchema()

	reg := ir.NewRegistry()
	owner := reg.Declare("owner", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	// Outer scope leaves owner unconstrained (any entity/relation/attribute);
	// the nested negation body narrows it to dog, which must propagate back
	// out as an intersection against the outer candidate set.
	nested := ir.NewBlock(reg)
	nested.AddConstraint(ir.NewIsa(owner, nil, "dog"))
	block.Nested = append(block.Nested, &ir.NestedBlock{Kind: ir.ControllerNegation, Body: nested})

	ann, err := Infer(block, types, nil, ir.NewFunctionRegistry())
	require.NoError(t, err)
	require.Equal(t, ir.NewTypeSet(ids["dog"]), ann.Variables[owner])
}

func TestInfer_IncompatibleTypesWhenIsaLabelIsUnknown(t *testing.T) {
	types, _ := newMembershipSchema()

	reg := ir.NewRegistry()
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(p, nil, "unicorn"))

	_, err := Infer(block, types, nil, ir.NewFunctionRegistry())
	require.Error(t, err)
	require.True(t, core.ErrIncompatibleTypes.Is(err))
}

func TestInfer_NoCandidateTypesWhenLinksAdmitsNoPlayer(t *testing.T) {
	types, _ := newMembershipSchema()

	reg := ir.NewRegistry()
	m := reg.Declare("m", ir.CategoryThing, ir.Required)
	p := reg.Declare("p", ir.CategoryThing, ir.Required)
	block := ir.NewBlock(reg)
	block.AddConstraint(ir.NewIsa(m, nil, "membership"))
	// dog plays no role on membership, so p's candidate set must empty out.
	block.AddConstraint(ir.NewIsa(p, nil, "dog"))
	block.AddConstraint(ir.NewLinks(m, p, nil, "membership:member"))

	_, err := Infer(block, types, nil, ir.NewFunctionRegistry())
	require.Error(t, err)
	require.True(t, core.ErrNoCandidateTypes.Is(err))
}
