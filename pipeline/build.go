package pipeline

import (
	"github.com/sirupsen/logrus"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/exec"
	"github.com/dolthub/typeql-core/exec/collect"
	"github.com/dolthub/typeql-core/exec/controller"
	"github.com/dolthub/typeql-core/exec/write"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/planner"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/stats"
	"github.com/dolthub/typeql-core/typeinfer"
)

// deps bundles everything every stage in a pipeline's compilation needs, the
// way the teacher's analyzer/executor builders thread one *sql.Context
// through a whole plan build instead of repeating the same five arguments on
// every call.
type deps struct {
	Types      *schema.TypeManager
	Statistics *stats.Statistics
	Funcs      *ir.FunctionRegistry
	Evaluator  exec.ExpressionEvaluator
	Config     exec.Config
	Log        *logrus.Entry
}

// PreparedPipeline is the compiled, not-yet-iterated form of a parsed
// pipeline (spec.md §4 "Pipeline invocation": prepare_read_pipeline /
// prepare_write_pipeline → (PreparedStage, named_outputs)).
type PreparedPipeline struct {
	root       Stage
	ctx        *core.ExecutionContext
	namedVars  []*ir.Variable
}

// NamedOutputs returns the variables the final stage's rows expose, in
// column order.
func (p *PreparedPipeline) NamedOutputs() []*ir.Variable { return p.namedVars }

// StageIterator is the pull handle returned by IntoIterator (spec.md §4
// "into_iterator(interrupt) → (StageIterator, context) yields batches").
type StageIterator struct {
	root Stage
	ctx  *core.ExecutionContext
}

// Next pulls the next fixed batch, or (nil, nil) once the pipeline is
// exhausted.
func (it *StageIterator) Next() (*core.FixedBatch, error) {
	return it.root.Pull(it.ctx)
}

// IntoIterator arms the prepared pipeline's execution context with interrupt
// and returns the iterator plus the context itself, which the caller commits
// (write pipeline) or drops (read pipeline) once iteration is done (spec.md
// §3 Lifecycles).
func (p *PreparedPipeline) IntoIterator(interrupt core.Interrupt) (*StageIterator, *core.ExecutionContext) {
	p.ctx.Interrupt = interrupt
	return &StageIterator{root: p.root, ctx: p.ctx}, p.ctx
}

// PrepareReadPipeline compiles a parsed, all-Match/collecting/projection
// pipeline against a read-only snapshot (spec.md §4 "prepare_read_pipeline").
func PrepareReadPipeline(
	snapshot core.Readable,
	types *schema.TypeManager,
	things core.ThingManagerAPI,
	funcs *ir.FunctionRegistry,
	statistics *stats.Statistics,
	evaluator exec.ExpressionEvaluator,
	p *ir.Pipeline,
	config exec.Config,
) (*PreparedPipeline, error) {
	d := deps{Types: types, Statistics: statistics, Funcs: funcs, Evaluator: evaluator, Config: config, Log: logrus.WithField("component", "pipeline")}
	ctx := &core.ExecutionContext{Snapshot: snapshot, Things: things, Interrupt: core.NewInterrupt()}
	return prepare(d, ctx, p)
}

// PrepareWritePipeline compiles a pipeline that may contain Insert/Delete
// stages against a writable snapshot (spec.md §4 "prepare_write_pipeline").
// The caller commits ctx's snapshot after fully draining the iterator.
func PrepareWritePipeline(
	snapshot core.Readable,
	writer core.Writable,
	types *schema.TypeManager,
	things core.ThingManagerAPI,
	funcs *ir.FunctionRegistry,
	statistics *stats.Statistics,
	evaluator exec.ExpressionEvaluator,
	p *ir.Pipeline,
	config exec.Config,
) (*PreparedPipeline, error) {
	d := deps{Types: types, Statistics: statistics, Funcs: funcs, Evaluator: evaluator, Config: config, Log: logrus.WithField("component", "pipeline")}
	ctx := &core.ExecutionContext{Snapshot: snapshot, Writer: writer, Things: things, Interrupt: core.NewInterrupt()}
	return prepare(d, ctx, p)
}

func prepare(d deps, ctx *core.ExecutionContext, p *ir.Pipeline) (*PreparedPipeline, error) {
	var (
		current   Stage
		bound     = make(map[*ir.Variable]bool)
		upstream  = make(map[*ir.Variable]ir.TypeSet)
		namedVars []*ir.Variable
	)

	for _, stage := range p.Stages {
		var err error
		current, upstream, bound, namedVars, err = compileStage(d, stage, current, upstream, bound)
		if err != nil {
			d.Log.WithError(err).Warn("pipeline compilation failed")
			return nil, err
		}
	}

	return &PreparedPipeline{root: current, ctx: ctx, namedVars: namedVars}, nil
}

// compileStage extends the chain built so far by one ir.Stage, returning the
// new head, the variable type annotations and bound-set a following stage
// should inherit, and the row layout (namedVars) the new head now exposes.
func compileStage(
	d deps,
	stage ir.Stage,
	upstreamRoot Stage,
	upstreamTypes map[*ir.Variable]ir.TypeSet,
	upstreamBound map[*ir.Variable]bool,
) (Stage, map[*ir.Variable]ir.TypeSet, map[*ir.Variable]bool, []*ir.Variable, error) {
	switch stage.Kind {
	case ir.StageMatch:
		executor, ann, err := compileBlock(d, stage.Match, upstreamTypes, upstreamBound)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		seed := seedRow(upstreamRoot, stage.Match.Registry.Width())
		bound := boundSetOf(stage.Match.Registry.Variables(), upstreamBound)
		return &matchStage{executor: executor, seed: seed}, ann.Variables, bound, stage.Match.Registry.Variables(), nil

	case ir.StageInsert:
		ann, err := typeinfer.Infer(stage.Insert, d.Types, upstreamTypes, d.Funcs)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		plan, err := write.CompileInsert(stage.Insert, ann, d.Types)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		upstream := upstreamRootOrSeed(upstreamRoot, stage.Insert.Registry.Width())
		bound := boundSetOf(stage.Insert.Registry.Variables(), upstreamBound)
		s := &writeStage{upstream: upstream, exec: write.NewInsertExecutor(*plan), outputWidth: plan.OutputWidth}
		return s, ann.Variables, bound, stage.Insert.Registry.Variables(), nil

	case ir.StageDelete:
		ann, err := typeinfer.Infer(stage.Delete, d.Types, upstreamTypes, d.Funcs)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		plan, err := write.CompileDelete(stage.Delete, ann, d.Types, stage.DeletedVars, upstreamBound)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		upstream := upstreamRootOrSeed(upstreamRoot, stage.Delete.Registry.Width())
		s := &writeStage{upstream: upstream, exec: write.NewDeleteExecutor(*plan), outputWidth: len(plan.OutputPositions)}
		outVars := make([]*ir.Variable, 0, len(plan.OutputPositions))
		deletedSet := make(map[*ir.Variable]bool, len(stage.DeletedVars))
		for _, v := range stage.DeletedVars {
			deletedSet[v] = true
		}
		for _, v := range stage.Delete.Registry.Variables() {
			if !deletedSet[v] {
				outVars = append(outVars, v)
			}
		}
		return s, upstreamTypes, upstreamBound, outVars, nil

	case ir.StageSort:
		s := &collectingStage{upstream: upstreamRoot, cs: collect.NewSort(stage.SortKeys), capacity: d.Config.BatchCapacity}
		return s, upstreamTypes, upstreamBound, nil, nil

	case ir.StageOffset:
		return &offsetStage{upstream: upstreamRoot, n: stage.OffsetN}, upstreamTypes, upstreamBound, nil, nil

	case ir.StageLimit:
		return &limitStage{upstream: upstreamRoot, n: stage.LimitN}, upstreamTypes, upstreamBound, nil, nil

	case ir.StageReduce:
		s := &collectingStage{upstream: upstreamRoot, cs: collect.NewReduce(stage.ReduceGroupBy, stage.Reducers), capacity: d.Config.BatchCapacity}
		outVars := make([]*ir.Variable, 0, len(stage.ReduceGroupBy)+len(stage.Reducers))
		outVars = append(outVars, stage.ReduceGroupBy...)
		for _, r := range stage.Reducers {
			outVars = append(outVars, r.Output)
		}
		return s, upstreamTypes, upstreamBound, outVars, nil

	case ir.StageSelect:
		positions := make([]core.VariablePosition, len(stage.SelectKeep))
		for i, v := range stage.SelectKeep {
			positions[i] = v.Position
		}
		return &selectStage{upstream: upstreamRoot, positions: positions}, upstreamTypes, upstreamBound, stage.SelectKeep, nil

	default:
		return upstreamRoot, upstreamTypes, upstreamBound, nil, nil
	}
}

func boundSetOf(vars []*ir.Variable, prior map[*ir.Variable]bool) map[*ir.Variable]bool {
	out := make(map[*ir.Variable]bool, len(prior)+len(vars))
	for v := range prior {
		out[v] = true
	}
	for _, v := range vars {
		out[v] = true
	}
	return out
}

// seedRow seeds the very first stage of a pipeline with a single empty row;
// a Match stage following an earlier stage instead reads that stage's output
// directly (its per-row seed is supplied by the NestedPattern machinery one
// outer row at a time, not here).
func seedRow(upstreamRoot Stage, width int) *core.FixedBatch {
	if upstreamRoot != nil {
		return nil
	}
	return core.SingleRowBatch(core.NewRow(width))
}

// upstreamRootOrSeed returns the upstream stage if this Insert/Delete stage
// follows one, or a one-shot single-empty-row source if it is the pipeline's
// first stage (spec.md §4.7: insert/delete run their instruction sequence
// exactly once per input row, and a pipeline with no Match before it still
// runs its write stage exactly once).
func upstreamRootOrSeed(upstreamRoot Stage, width int) Stage {
	if upstreamRoot != nil {
		return upstreamRoot
	}
	return &seedStage{seed: core.SingleRowBatch(core.NewRow(width))}
}

type seedStage struct {
	seed *core.FixedBatch
	done bool
}

func (s *seedStage) Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.done {
		return nil, nil
	}
	s.done = true
	return s.seed, nil
}

// compileBlock type-infers, plans, and compiles one Match/Negation/
// Disjunction-branch/Offset/Limit body into a PatternExecutor, recursively
// compiling any nested patterns it contains (spec.md §4.4/§4.5).
func compileBlock(d deps, block *ir.Block, upstream map[*ir.Variable]ir.TypeSet, prebound map[*ir.Variable]bool) (*exec.PatternExecutor, *typeinfer.Annotations, error) {
	ann, err := typeinfer.Infer(block, d.Types, upstream, d.Funcs)
	if err != nil {
		return nil, nil, err
	}

	plan := planner.BuildPlan(block, ann, d.Types, d.Statistics, prebound)
	steps := exec.Compile(plan, ann, d.Types, d.Evaluator)

	// Every top-level constraint's variable is bound by the time the flat
	// plan reaches Yield, so nested patterns (which always appear after
	// their outer block's own constraints, spec.md §4.5) run with the whole
	// outer row already resolved.
	fullyBound := make(map[*ir.Variable]bool, len(prebound)+block.Registry.Width())
	for v := range prebound {
		fullyBound[v] = true
	}
	for _, v := range block.Registry.Variables() {
		fullyBound[v] = true
	}

	nested, err := compileNested(d, block, ann.Variables, fullyBound)
	if err != nil {
		return nil, nil, err
	}
	steps = spliceBeforeYield(steps, nested)

	return exec.NewPatternExecutor(steps, d.Config), ann, nil
}

// spliceBeforeYield inserts extra instructions immediately before the
// trailing YieldInstruction every exec.Compile result ends with.
func spliceBeforeYield(steps []exec.Instruction, extra []exec.Instruction) []exec.Instruction {
	if len(extra) == 0 {
		return steps
	}
	out := make([]exec.Instruction, 0, len(steps)+len(extra))
	out = append(out, steps[:len(steps)-1]...)
	out = append(out, extra...)
	out = append(out, steps[len(steps)-1])
	return out
}

// compileNested compiles every nested pattern of block into one
// NestedPatternInstruction each, grouping Disjunction branches that share a
// DisjunctionGroup under one controller (spec.md §4.5).
func compileNested(d deps, block *ir.Block, upstream map[*ir.Variable]ir.TypeSet, bound map[*ir.Variable]bool) ([]exec.Instruction, error) {
	var out []exec.Instruction

	var groupOrder []int
	groups := make(map[int][]*ir.NestedBlock)
	seenGroup := make(map[int]bool)

	for _, n := range block.Nested {
		if n.Kind == ir.ControllerDisjunction {
			if !seenGroup[n.DisjunctionGroup] {
				seenGroup[n.DisjunctionGroup] = true
				groupOrder = append(groupOrder, n.DisjunctionGroup)
			}
			groups[n.DisjunctionGroup] = append(groups[n.DisjunctionGroup], n)
			continue
		}
		instr, err := compileSingleNested(d, n, upstream, bound)
		if err != nil {
			return nil, err
		}
		out = append(out, instr)
	}

	for _, g := range groupOrder {
		var branches []*exec.PatternExecutor
		for _, n := range groups[g] {
			inner, _, err := compileBlock(d, n.Body, upstream, bound)
			if err != nil {
				return nil, err
			}
			branches = append(branches, inner)
		}
		out = append(out, exec.NestedPatternInstructionOf(controller.NewDisjunction(branches...)))
	}

	return out, nil
}

func compileSingleNested(d deps, n *ir.NestedBlock, upstream map[*ir.Variable]ir.TypeSet, bound map[*ir.Variable]bool) (exec.Instruction, error) {
	switch n.Kind {
	case ir.ControllerNegation:
		inner, _, err := compileBlock(d, n.Body, upstream, bound)
		if err != nil {
			return exec.Instruction{}, err
		}
		return exec.NestedPatternInstructionOf(controller.NewNegation(inner)), nil

	case ir.ControllerInlinedFunction:
		sig, ok := d.Funcs.Lookup(n.FunctionID)
		if !ok {
			return exec.Instruction{}, core.ErrUnresolvedFunction.New(n.FunctionID)
		}
		if err := ir.CheckCall(sig, n.ArgumentVars, n.AssignedVars); err != nil {
			return exec.Instruction{}, err
		}
		inner, err := compileFunctionBody(d, sig)
		if err != nil {
			return exec.Instruction{}, err
		}
		return exec.NestedPatternInstructionOf(controller.NewInlinedFunction(inner, n.ArgumentVars, n.AssignedVars)), nil

	case ir.ControllerOffset:
		inner, _, err := compileBlock(d, n.Body, upstream, bound)
		if err != nil {
			return exec.Instruction{}, err
		}
		return exec.NestedPatternInstructionOf(controller.NewOffset(inner, n.Offset)), nil

	case ir.ControllerLimit:
		inner, _, err := compileBlock(d, n.Body, upstream, bound)
		if err != nil {
			return exec.Instruction{}, err
		}
		return exec.NestedPatternInstructionOf(controller.NewLimit(inner, n.Limit)), nil

	default:
		return exec.Instruction{}, core.ErrUnresolvedFunction.New(n.FunctionID)
	}
}

// compileFunctionBody compiles a function's own block in isolation (it has
// no upstream type annotations: its argument variables' candidate types are
// inferred from the body's own constraints; the signature carries only
// their categories) and
// appends a ReshapeForReturn instruction projecting the body's row onto
// sig.ReturnVars before the trailing Yield, so the calling
// controller.InlinedFunction sees exactly one cell per assigned variable.
func compileFunctionBody(d deps, sig *ir.FunctionSignature) (*exec.PatternExecutor, error) {
	ann, err := typeinfer.Infer(sig.Body, d.Types, nil, d.Funcs)
	if err != nil {
		return nil, err
	}
	plan := planner.BuildPlan(sig.Body, ann, d.Types, d.Statistics, nil)
	steps := exec.Compile(plan, ann, d.Types, d.Evaluator)

	bound := make(map[*ir.Variable]bool, sig.Body.Registry.Width())
	for _, v := range sig.Body.Registry.Variables() {
		bound[v] = true
	}
	nested, err := compileNested(d, sig.Body, ann.Variables, bound)
	if err != nil {
		return nil, err
	}
	steps = spliceBeforeYield(steps, nested)

	positions := make([]core.VariablePosition, len(sig.ReturnVars))
	for i, v := range sig.ReturnVars {
		positions[i] = v.Position
	}
	body := append(steps[:len(steps)-1:len(steps)-1], exec.ReshapeForReturnInstruction(positions), exec.YieldInstruction())

	return exec.NewPatternExecutor(body, d.Config), nil
}
