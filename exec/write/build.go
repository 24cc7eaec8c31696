package write

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/typeinfer"
)

// CompileInsert translates an annotated insert block into an InsertPlan
// (spec.md §4.7): vertex instructions (PutAttribute/PutObject) precede edge
// instructions (Has/RolePlayer) in declared order, mirroring
// original_source's InsertPlan.instructions ordering. Every Isa's variable
// must have resolved to a single candidate type; CompileInsert returns
// ErrAmbiguousInsertType for one that has not.
func CompileInsert(block *ir.Block, ann *typeinfer.Annotations, types *schema.TypeManager) (*InsertPlan, error) {
	var vertex, edge []InsertInstruction

	for _, c := range block.Constraints {
		switch con := c.(type) {
		case *ir.Isa:
			typ, ok := ann.Variables[con.Thing].Single()
			if !ok {
				return nil, core.ErrAmbiguousInsertType.New(con.Thing.Name)
			}
			if con.Thing.Category == ir.CategoryValue {
				vertex = append(vertex, PutAttributeInstruction(typ, con.Thing, nil))
			} else {
				t, _ := types.Type(typ)
				vertex = append(vertex, PutObjectInstruction(typ, con.Thing, t != nil && t.Kind == core.RelationKind))
			}
		case *ir.Has:
			edge = append(edge, HasInstruction(con.Owner, con.Attribute))
		case *ir.Links:
			role, err := resolveRoleType(con, ann, types)
			if err != nil {
				return nil, err
			}
			edge = append(edge, RolePlayerInstruction(con.Relation, con.Player, role))
		}
	}

	instructions := append(vertex, edge...)
	return &InsertPlan{Instructions: instructions, OutputWidth: block.Registry.Width()}, nil
}

// CompileDelete translates an annotated delete block plus the set of
// variables to remove into a DeletePlan, grounded on original_source's
// build_delete_plan: edges first, vertices second, reject role-typed or
// unbound deletes, project every surviving input position through
// unchanged. bound reports which variables are already present in the
// input row (spec.md §4.7 DeletedThingWasNotInInput).
func CompileDelete(block *ir.Block, ann *typeinfer.Annotations, types *schema.TypeManager, deleted []*ir.Variable, bound map[*ir.Variable]bool) (*DeletePlan, error) {
	var edges []DeleteEdgeInstruction

	for _, c := range block.Constraints {
		switch con := c.(type) {
		case *ir.Has:
			edges = append(edges, DeleteHasInstruction(con.Owner, con.Attribute))
		case *ir.Links:
			var roleFromInput *ir.Variable
			var roleType core.TypeID
			if con.Role != nil && bound[con.Role] {
				roleFromInput = con.Role
			} else {
				var err error
				roleType, err = resolveRoleType(con, ann, types)
				if err != nil {
					return nil, err
				}
			}
			edges = append(edges, DeleteRolePlayerInstruction(con.Relation, con.Player, roleFromInput, roleType))
		}
	}

	var deletedPositions []core.VariablePosition
	deletedSet := make(map[core.VariablePosition]bool)
	for _, v := range deleted {
		if !bound[v] {
			return nil, core.ErrDeletedThingWasNotInInput.New(v.Name)
		}
		if variableIsRoleTyped(ann, v, types) {
			return nil, core.ErrIllegalRoleDelete.New(v.Name)
		}
		deletedPositions = append(deletedPositions, v.Position)
		deletedSet[v.Position] = true
	}

	var output []core.VariablePosition
	for _, v := range block.Registry.Variables() {
		if !deletedSet[v.Position] {
			output = append(output, v.Position)
		}
	}

	return &DeletePlan{EdgeInstructions: edges, DeletedPositions: deletedPositions, OutputPositions: output}, nil
}

// resolveRoleType picks the role-type for a Links constraint from (in
// order) its literal role label, or the Role variable's singleton
// candidate-type annotation (spec.md §4.7 "Role-type resolution for
// Links"). A Role variable bound in the input row is handled by
// CompileDelete before this is consulted.
func resolveRoleType(con *ir.Links, ann *typeinfer.Annotations, types *schema.TypeManager) (core.TypeID, error) {
	if con.RoleLabel != "" {
		id, ok := types.Label(con.RoleLabel)
		if !ok {
			return 0, core.ErrCouldNotUniquelyDetermineRoleType.New(con.RoleLabel)
		}
		return id, nil
	}
	if con.Role == nil {
		return 0, core.ErrCouldNotUniquelyDetermineRoleType.New(con.Relation.Name)
	}
	role, ok := ann.Variables[con.Role].Single()
	if !ok {
		return 0, core.ErrCouldNotUniquelyDetermineRoleType.New(con.Role.Name)
	}
	return role, nil
}

func variableIsRoleTyped(ann *typeinfer.Annotations, v *ir.Variable, types *schema.TypeManager) bool {
	for t := range ann.Variables[v] {
		if ty, ok := types.Type(t); ok && ty.Kind == core.RoleKind {
			return true
		}
	}
	return false
}
