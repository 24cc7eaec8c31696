package write

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/storage"
)

// DeleteEdgeKind tags one of the two edge-deletion instructions.
type DeleteEdgeKind uint8

const (
	DeleteHas DeleteEdgeKind = iota
	DeleteRolePlayer
)

// DeleteEdgeInstruction removes one has or role-player edge (spec.md §4.7:
// "processes edges first").
type DeleteEdgeInstruction struct {
	Kind DeleteEdgeKind

	Owner *ir.Variable
	Attr  *ir.Variable

	Relation *ir.Variable
	Player   *ir.Variable
	// Role is resolved at compile time to exactly one of: an input-bound
	// role-type variable (RoleFromInput non-nil), or a type constant
	// (RoleType != 0) — grounded on original_source's
	// compiler/delete/delete.rs TypeSource::{InputVariable,TypeConstant}.
	RoleFromInput *ir.Variable
	RoleType      core.TypeID
}

func DeleteHasInstruction(owner, attr *ir.Variable) DeleteEdgeInstruction {
	return DeleteEdgeInstruction{Kind: DeleteHas, Owner: owner, Attr: attr}
}

func DeleteRolePlayerInstruction(relation, player *ir.Variable, roleFromInput *ir.Variable, roleType core.TypeID) DeleteEdgeInstruction {
	return DeleteEdgeInstruction{Kind: DeleteRolePlayer, Relation: relation, Player: player, RoleFromInput: roleFromInput, RoleType: roleType}
}

// DeletePlan is a compiled delete block: edge instructions (executed
// first), then vertex instructions, then the set of positions the output
// row keeps (every input position not among the deleted variables).
type DeletePlan struct {
	EdgeInstructions []DeleteEdgeInstruction
	DeletedPositions []core.VariablePosition
	OutputPositions  []core.VariablePosition
}

// DeleteExecutor runs a DeletePlan against one input row (spec.md §4.7).
type DeleteExecutor struct {
	Plan DeletePlan
}

func NewDeleteExecutor(plan DeletePlan) *DeleteExecutor {
	return &DeleteExecutor{Plan: plan}
}

// Execute deletes edges, then vertices (cascading an attribute's has edges
// first), then projects the surviving positions into the output row
// (spec.md §4.7).
func (e *DeleteExecutor) Execute(ctx *core.ExecutionContext, input core.Row) (core.Row, error) {
	for _, instr := range e.Plan.EdgeInstructions {
		switch instr.Kind {
		case DeleteHas:
			owner := input[instr.Owner.Position].Thing
			attr := input[instr.Attr.Position].Thing
			if err := ctx.Things.DeleteHas(owner, attr); err != nil {
				return nil, core.WrapConceptWrite(err)
			}
		case DeleteRolePlayer:
			relation := input[instr.Relation.Position].Thing
			player := input[instr.Player.Position].Thing
			role := instr.RoleType
			if instr.RoleFromInput != nil {
				role = input[instr.RoleFromInput.Position].Type
			}
			if err := ctx.Things.DeleteRolePlayer(relation, player, role); err != nil {
				return nil, core.WrapConceptWrite(err)
			}
		}
	}

	for _, pos := range e.Plan.DeletedPositions {
		thing := input[pos].Thing
		if thing.Kind == core.AttributeKind {
			if err := e.cascadeHasEdges(ctx, thing); err != nil {
				return nil, err
			}
		}
		if err := ctx.Things.DeleteThing(thing); err != nil {
			return nil, core.WrapConceptWrite(err)
		}
	}

	out := make(core.Row, len(e.Plan.OutputPositions))
	for i, pos := range e.Plan.OutputPositions {
		out[i] = input[pos]
	}
	return out, nil
}

// cascadeHasEdges scans the has_reverse edges keyed by attr and deletes
// every owning has edge before the attribute vertex itself is removed
// (spec.md §4.7 "deleting an attribute cascades its has edges", Testable
// Property 4). Committed storage and this pipeline's own buffered writes
// are both consulted — a has edge inserted earlier in the same pipeline is
// visible only through the buffer (spec.md §6: iterate_range and
// iterate_buffered_writes are separate interfaces).
func (e *DeleteExecutor) cascadeHasEdges(ctx *core.ExecutionContext, attr core.ThingRef) error {
	attrKey := storage.EncodeAttributeVertex(attr.ValueKind, attr.Type, attr.InstanceID)
	prefix := storage.EncodeHasReverseEdge(attrKey, nil)
	end := prefixUpperBound(prefix)

	owners := make(map[string][]byte)

	it := ctx.Snapshot.Iterate(prefix, end)
	for it.Next() {
		if err := ctx.Interrupt.Check(); err != nil {
			it.Close()
			return err
		}
		_, ownerVertex := storage.DecodeHasReverseEdge(it.Key())
		owners[string(ownerVertex)] = append([]byte(nil), ownerVertex...)
	}
	err := it.Err()
	it.Close()
	if err != nil {
		return core.WrapIterateStorage(err)
	}

	buffered := ctx.Snapshot.IterateBufferedWrites()
	for buffered.Next() {
		entry := buffered.Entry()
		if len(entry.Key) < len(prefix) || string(entry.Key[:len(prefix)]) != string(prefix) {
			continue
		}
		_, ownerVertex := storage.DecodeHasReverseEdge(entry.Key)
		if entry.Kind == core.WriteDelete {
			delete(owners, string(ownerVertex))
			continue
		}
		owners[string(ownerVertex)] = append([]byte(nil), ownerVertex...)
	}
	if err := buffered.Err(); err != nil {
		return core.WrapIterateStorage(err)
	}

	for _, ownerVertex := range owners {
		kind, typ := storage.VertexKindAndType(ownerVertex)
		owner := core.ThingRef{Kind: kind, Type: typ, InstanceID: append([]byte(nil), ownerVertex[3:]...)}
		if err := ctx.Things.DeleteHas(owner, attr); err != nil {
			return core.WrapConceptWrite(err)
		}
	}
	return nil
}

// prefixUpperBound returns the smallest key strictly greater than every key
// beginning with prefix, mirroring exec.prefixUpperBound for the same
// range-scan idiom used by the has-edge cascade here.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
