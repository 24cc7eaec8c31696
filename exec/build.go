package exec

import (
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/planner"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/typeinfer"
)

// Compile translates a planner.Plan into the flat Instruction list one
// PatternExecutor frame runs (spec.md §4.4). PatternStart/Yield bracket the
// body; each planned constraint becomes one Executable instruction. ann and
// types resolve which Thing variables need a standalone vertex scan (an Isa
// whose variable the plan never binds through a Has/Links edge first).
func Compile(plan *planner.Plan, ann *typeinfer.Annotations, types *schema.TypeManager, evaluator ExpressionEvaluator) []Instruction {
	steps := make([]Instruction, 0, len(plan.Steps)+2)
	steps = append(steps, PatternStartInstruction())
	for _, planned := range plan.Steps {
		steps = append(steps, compileStep(planned, ann, types, evaluator))
	}
	steps = append(steps, YieldInstruction())
	return steps
}

func compileStep(planned planner.PlannedStep, ann *typeinfer.Annotations, types *schema.TypeManager, evaluator ExpressionEvaluator) Instruction {
	switch c := planned.Constraint.(type) {
	case *ir.Comparison:
		return ExecutableInstruction(&CheckStep{Comparison: c})
	case *ir.ExpressionBinding:
		return ExecutableInstruction(&AssignmentStep{Binding: c, Evaluator: evaluator})
	case *ir.Isa:
		if boundBefore(planned.BoundBefore, c.Thing) {
			return ExecutableInstruction(NewIntersectionStep(planned, planned.Constraint.Variables(), types))
		}
		return ExecutableInstruction(NewVertexScanStep(c.Thing.Position, ann.Variables[c.Thing], types))
	default:
		return ExecutableInstruction(NewIntersectionStep(planned, planned.Constraint.Variables(), types))
	}
}

func boundBefore(vars []*ir.Variable, v *ir.Variable) bool {
	for _, b := range vars {
		if b == v {
			return true
		}
	}
	return false
}
