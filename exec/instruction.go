// Package exec implements the pull-based pattern-executor stack machine
// (spec.md §4.4): a planner.Plan is compiled into a flat sequence of
// Instructions, and a PatternExecutor drives them forward and backward,
// pulling core.FixedBatch batches one stage at a time.
package exec

import "github.com/dolthub/typeql-core/core"

// InstructionKind tags which of the six instruction shapes spec.md §4.4
// names occupies a given slot in a StackFrame.
type InstructionKind uint8

const (
	InstrPatternStart InstructionKind = iota
	InstrExecutable
	InstrNestedPattern
	InstrCollectingStage
	InstrYield
	InstrReshapeForReturn
)

// Instruction is one slot in a StackFrame's step list. Only the field(s)
// matching Kind are meaningful.
type Instruction struct {
	Kind InstructionKind

	Step ExecutableStep

	Nested     *NestedPatternInstruction
	Collecting CollectingStage

	ReshapePositions []core.VariablePosition
}

func PatternStartInstruction() Instruction { return Instruction{Kind: InstrPatternStart} }

func YieldInstruction() Instruction { return Instruction{Kind: InstrYield} }

func ExecutableInstruction(step ExecutableStep) Instruction {
	return Instruction{Kind: InstrExecutable, Step: step}
}

func NestedPatternInstructionOf(controller NestedPatternController) Instruction {
	return Instruction{Kind: InstrNestedPattern, Nested: &NestedPatternInstruction{Controller: controller}}
}

func CollectingStageInstruction(cs CollectingStage) Instruction {
	return Instruction{Kind: InstrCollectingStage, Collecting: cs}
}

func ReshapeForReturnInstruction(positions []core.VariablePosition) Instruction {
	return Instruction{Kind: InstrReshapeForReturn, ReshapePositions: positions}
}

// NestedPatternInstruction wraps the controller that owns one inner
// pattern (negation body, disjunction branch, inlined function, offset, or
// limit — spec.md §4.5). It also holds its own resume state across a
// runNested call that fills its output batch before every outer row has
// been visited, the same per-instance cursor pattern package exec's
// ExecutableStep implementations use (e.g. IntersectionStep.cursor) — so
// two nested instructions in the same frame never share state.
type NestedPatternInstruction struct {
	Controller NestedPatternController

	batch      *core.FixedBatch // outer batch still being driven through, nil when none in flight
	rowIdx     int              // next outer row to Reset the controller against
	rowOpen    bool             // true once Reset has run for rowIdx and Advance may still have more for it
	pending    core.Row         // a row Advance already produced but the caller's batch had no room for
	hasPending bool
}

// NestedPatternController decides how a subpattern's outputs combine with
// the outer row that triggered it (spec.md §4.5's table). Concrete
// controllers (package exec/controller) each own an inner PatternExecutor
// and reuse it across outer rows rather than rebuild it per row.
type NestedPatternController interface {
	// Reset prepares the controller for a new outer row, resetting its
	// owned inner executor.
	Reset(ctx *core.ExecutionContext, outerRow core.Row) error
	// Advance pulls the controller forward, running its inner executor as
	// many times as needed. ok is false once the controller has nothing
	// left to contribute for the current outer row (spec.md §4.5 "on
	// subpattern exhausted").
	Advance(ctx *core.ExecutionContext) (row core.Row, ok bool, err error)
}

// CollectingStage materializes the full upstream batch, processes it once,
// then streams rows out in subsequent pulls (spec.md §4.6).
type CollectingStage interface {
	// Consume absorbs one upstream batch into the stage's working set.
	Consume(batch *core.FixedBatch) error
	// Produce is called with input exhausted (batch == nil from upstream);
	// it streams materialized output, one batch per call, until done.
	Produce(capacity int) (*core.FixedBatch, error)
}
