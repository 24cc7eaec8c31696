// Package write implements the Insert and Delete executors of spec.md §4.7.
// Unlike the pull-based stack machine in package exec, these run each input
// row through a fixed instruction sequence exactly once — grounded on
// original_source's insert_executor.rs InsertExecutor::execute_insert /
// execute_delete, which assert input multiplicity 1 and iterate
// instructions in declared order rather than pulling batches.
package write

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
)

// InsertInstructionKind tags one of the four vertex/edge operations spec.md
// §4.7 names for Insert.
type InsertInstructionKind uint8

const (
	InsertPutAttribute InsertInstructionKind = iota
	InsertPutObject
	InsertHas
	InsertRolePlayer
)

// InsertInstruction is one compiled step of an insert block, executed in
// declared order: vertex instructions (PutAttribute/PutObject) before edge
// instructions (Has/RolePlayer), per spec.md §4.7.
type InsertInstruction struct {
	Kind InsertInstructionKind

	// PutAttribute / PutObject.
	Type    core.TypeID
	WriteTo *ir.Variable

	// PutAttribute takes its value from, in order: Literal if set, else the
	// row cell at ValueFrom (a value variable bound upstream, e.g.
	// `$x isa age; $p has age $x`), else the row cell already bound at
	// WriteTo.
	ValueFrom *ir.Variable
	Literal   *core.Value

	// Has / RolePlayer.
	Owner    *ir.Variable
	Attr     *ir.Variable
	Relation *ir.Variable
	Player   *ir.Variable
	Role     core.TypeID

	// IsRelation distinguishes a PutObject allocating a relation instance
	// from one allocating an entity instance.
	IsRelation bool
}

func PutAttributeInstruction(typ core.TypeID, writeTo, valueFrom *ir.Variable) InsertInstruction {
	return InsertInstruction{Kind: InsertPutAttribute, Type: typ, WriteTo: writeTo, ValueFrom: valueFrom}
}

// PutAttributeInstructionWithValue puts an attribute whose value is a
// literal known at compile time (e.g. `$p has age 30`) rather than bound to
// another variable.
func PutAttributeInstructionWithValue(typ core.TypeID, writeTo *ir.Variable, literal core.Value) InsertInstruction {
	return InsertInstruction{Kind: InsertPutAttribute, Type: typ, WriteTo: writeTo, Literal: &literal}
}

func PutObjectInstruction(typ core.TypeID, writeTo *ir.Variable, isRelation bool) InsertInstruction {
	return InsertInstruction{Kind: InsertPutObject, Type: typ, WriteTo: writeTo, IsRelation: isRelation}
}

func HasInstruction(owner, attr *ir.Variable) InsertInstruction {
	return InsertInstruction{Kind: InsertHas, Owner: owner, Attr: attr}
}

func RolePlayerInstruction(relation, player *ir.Variable, role core.TypeID) InsertInstruction {
	return InsertInstruction{Kind: InsertRolePlayer, Relation: relation, Player: player, Role: role}
}

// InsertPlan is a compiled insert block plus the width of its output row
// (spec.md §4.7: "each execution appends the newly created things to their
// declared row positions").
type InsertPlan struct {
	Instructions []InsertInstruction
	OutputWidth  int
}

// InsertExecutor runs an InsertPlan against exactly one input row (spec.md
// §4.7: "input row multiplicity must be exactly 1").
type InsertExecutor struct {
	Plan InsertPlan
}

func NewInsertExecutor(plan InsertPlan) *InsertExecutor {
	return &InsertExecutor{Plan: plan}
}

// Execute runs every instruction of the plan against input in order,
// mutating a copy of input widened (if needed) to OutputWidth and writing
// each newly created thing to its declared position.
func (e *InsertExecutor) Execute(ctx *core.ExecutionContext, input core.Row) (core.Row, error) {
	out := make(core.Row, e.Plan.OutputWidth)
	copy(out, input)

	for _, instr := range e.Plan.Instructions {
		switch instr.Kind {
		case InsertPutAttribute:
			value := out[instr.WriteTo.Position].Value
			switch {
			case instr.Literal != nil:
				value = *instr.Literal
			case instr.ValueFrom != nil:
				value = out[instr.ValueFrom.Position].Value
			}
			ref, _, err := ctx.Things.PutAttribute(instr.Type, value)
			if err != nil {
				return nil, core.WrapConceptWrite(err)
			}
			out[instr.WriteTo.Position] = core.ThingCell(ref)

		case InsertPutObject:
			kind := core.EntityKind
			if instr.IsRelation {
				kind = core.RelationKind
			}
			ref, err := ctx.Things.AllocateObject(kind, instr.Type)
			if err != nil {
				return nil, core.WrapConceptWrite(err)
			}
			out[instr.WriteTo.Position] = core.ThingCell(ref)

		case InsertHas:
			owner := out[instr.Owner.Position].Thing
			attr := out[instr.Attr.Position].Thing
			if err := ctx.Things.PutHas(owner, attr); err != nil {
				return nil, core.WrapConceptWrite(err)
			}

		case InsertRolePlayer:
			relation := out[instr.Relation.Position].Thing
			player := out[instr.Player.Position].Thing
			if err := ctx.Things.PutRolePlayer(relation, player, instr.Role); err != nil {
				return nil, core.WrapConceptWrite(err)
			}
		}
	}
	return out, nil
}
