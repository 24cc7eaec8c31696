package planner

import (
	"math"
	"sort"

	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/stats"
	"github.com/dolthub/typeql-core/typeinfer"
)

// Direction picks which side of a Has/Links constraint the executor treats
// as the bound-to-unbound iteration direction when neither variable entered
// the constraint already bound.
type Direction uint8

const (
	DirectionForward Direction = iota
	DirectionBackward
)

// PlannedStep is one constraint in the chosen order, together with the
// variables already bound when it executes and, for Has/Links, which
// unbound direction to iterate.
type PlannedStep struct {
	Constraint  ir.Constraint
	BoundBefore []*ir.Variable
	Direction   Direction
}

// Plan is the ordered execution plan for one match block.
type Plan struct {
	Steps []PlannedStep
}

type costedVertex interface {
	Cost(bound map[*ir.Variable]bool) VertexCost
}

// BuildPlan orders block's constraints greedily: at each step it picks the
// remaining constraint whose incremental cost (per_input, scaled by the
// branching factor accumulated so far along the chosen prefix) is lowest,
// breaking ties by preferring the constraint that binds the most
// currently-unbound variables (spec.md §4.3).
func BuildPlan(block *ir.Block, ann *typeinfer.Annotations, types *schema.TypeManager, statistics *stats.Statistics, preboundVars map[*ir.Variable]bool) *Plan {
	thingVertices := make(map[*ir.Variable]*ThingVertex)
	for _, v := range block.Registry.Variables() {
		if v.Category != ir.CategoryThing {
			continue
		}
		thingVertices[v] = NewThingVertex(v, ann.Variables[v], types, statistics)
	}

	vertices := make([]costedVertex, len(block.Constraints))
	for i, c := range block.Constraints {
		switch con := c.(type) {
		case *ir.Has:
			vertices[i] = NewHasVertex(con, thingVertices[con.Owner], thingVertices[con.Attribute], ann.HasInfo[con.ConstraintID()], statistics)
		case *ir.Links:
			vertices[i] = NewLinksVertex(con, thingVertices[con.Relation], thingVertices[con.Player], ann.LinksInfo[con.ConstraintID()], statistics)
		default:
			vertices[i] = zeroCostVertex{}
		}
	}

	bound := make(map[*ir.Variable]bool, len(preboundVars))
	for v := range preboundVars {
		bound[v] = true
	}

	remaining := make([]int, len(block.Constraints))
	for i := range remaining {
		remaining[i] = i
	}

	plan := &Plan{}
	runningBranching := 1.0

	for len(remaining) > 0 {
		bestIdx, bestScore, bestNewlyBound := -1, math.Inf(1), -1
		for _, idx := range remaining {
			cost := vertices[idx].Cost(bound)
			score := cost.PerInput * runningBranching
			newlyBound := countUnbound(block.Constraints[idx].Variables(), bound)
			if bestIdx == -1 || score < bestScore || (score == bestScore && newlyBound > bestNewlyBound) {
				bestIdx, bestScore, bestNewlyBound = idx, score, newlyBound
			}
		}

		c := block.Constraints[bestIdx]
		step := PlannedStep{Constraint: c, BoundBefore: boundSnapshot(c.Variables(), bound)}
		switch con := c.(type) {
		case *ir.Has:
			hv := vertices[bestIdx].(*HasVertex)
			if !bound[con.Owner] && !bound[con.Attribute] && !hv.UnboundIsForward {
				step.Direction = DirectionBackward
			}
		case *ir.Links:
			lv := vertices[bestIdx].(*LinksVertex)
			if !bound[con.Relation] && !bound[con.Player] && !lv.UnboundIsForward {
				step.Direction = DirectionBackward
			}
		}
		plan.Steps = append(plan.Steps, step)

		cost := vertices[bestIdx].Cost(bound)
		runningBranching *= math.Max(cost.BranchingFactor, 1)
		for _, v := range c.Variables() {
			bound[v] = true
		}
		remaining = removeIdx(remaining, bestIdx)
	}

	return plan
}

// zeroCostVertex covers schema/comparison/expression/function constraints,
// which the cost model does not price: they execute as cheap checks against
// already-bound positions rather than opening new iterators.
type zeroCostVertex struct{}

func (zeroCostVertex) Cost(map[*ir.Variable]bool) VertexCost {
	return VertexCost{PerInput: 0, PerOutput: 0, BranchingFactor: 1}
}

func countUnbound(vars []*ir.Variable, bound map[*ir.Variable]bool) int {
	n := 0
	for _, v := range vars {
		if !bound[v] {
			n++
		}
	}
	return n
}

func boundSnapshot(vars []*ir.Variable, bound map[*ir.Variable]bool) []*ir.Variable {
	var out []*ir.Variable
	for _, v := range vars {
		if bound[v] {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

func removeIdx(s []int, target int) []int {
	out := s[:0]
	for _, v := range s {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
