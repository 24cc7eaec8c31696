package exec

import (
	"github.com/opentracing/opentracing-go"

	"github.com/dolthub/typeql-core/core"
)

// Config is the plain tunable struct the core owns in place of a
// file-loaded configuration system (SPEC_FULL.md §2 "Configuration"):
// the fixed batch width and the tracer used for per-stage spans live here,
// not in a config file.
type Config struct {
	BatchCapacity int
	Tracer        opentracing.Tracer
}

func DefaultConfig() Config {
	return Config{BatchCapacity: core.DefaultBatchCapacity, Tracer: opentracing.GlobalTracer()}
}

// StackFrame is the compiled body of one pattern (spec.md §4.4): an ordered
// step list. A nested pattern is not spliced into the same frame slice —
// it is compiled into its own PatternExecutor, owned by the
// NestedPatternController occupying that step, which plays the role the
// spec's growing stack-of-frames plays, one Go-level PatternExecutor per
// nesting level instead of one slice of frames shared by all of them.
type StackFrame struct {
	Steps []Instruction
}

// PatternExecutor is the single-threaded cooperative stack machine that
// pulls fixed batches of answer rows through a compiled instruction list
// (spec.md §4.4). Pull resumes from wherever the previous call left off, so
// repeated calls stream successive result batches; a nil, nil return means
// the pattern is exhausted.
type PatternExecutor struct {
	frame  *StackFrame
	config Config

	started     bool
	currentStep int
	lastBatch   *core.FixedBatch
}

// NewPatternExecutor wraps a compiled step list (normally built by Compile).
func NewPatternExecutor(steps []Instruction, config Config) *PatternExecutor {
	return &PatternExecutor{frame: &StackFrame{Steps: steps}, config: config}
}

// Pull advances the stack machine until it yields its next result batch or
// is exhausted. seed supplies the single upstream input row on the very
// first call (nil for a pattern with no upstream input, e.g. a function
// body with no bound arguments); it is ignored on later calls, which resume
// from the position the previous Pull stopped at.
func (p *PatternExecutor) Pull(ctx *core.ExecutionContext, seed *core.FixedBatch) (*core.FixedBatch, error) {
	if !p.started {
		p.started = true
		if seed != nil {
			p.currentStep, p.lastBatch = 0, seed
		} else {
			p.currentStep, p.lastBatch = len(p.frame.Steps)-1, nil
		}
	} else if p.lastBatch != nil {
		// Resume after a previously yielded batch: ask the step before
		// Yield for the next one.
		p.currentStep--
		p.lastBatch = nil
	}

	for p.currentStep >= 0 && p.currentStep < len(p.frame.Steps) {
		if err := ctx.Interrupt.Check(); err != nil {
			return nil, err
		}

		var (
			next  int
			batch *core.FixedBatch
			err   error
		)
		if p.lastBatch != nil {
			next, batch, err = p.executeForward(ctx, p.currentStep, p.lastBatch)
		} else {
			next, batch, err = p.executeBackward(ctx, p.currentStep)
		}
		if err != nil {
			return nil, err
		}
		p.currentStep, p.lastBatch = next, batch

		if p.currentStep >= len(p.frame.Steps) {
			return p.lastBatch, nil
		}
	}
	return nil, nil
}

// Reset rewinds the executor so the next Pull starts over, used by nested
// pattern controllers that reuse the same inner executor across outer rows
// (spec.md §4.5 supplemented detail: reuse-and-reset rather than rebuild).
func (p *PatternExecutor) Reset() {
	p.started = false
	p.currentStep = 0
	p.lastBatch = nil
}

// executeForward prepares the current instruction with the incoming batch
// and advances it (spec.md §4.4: "prepares it with the incoming batch then
// calls batch_continue; on PatternStart forwards the batch").
func (p *PatternExecutor) executeForward(ctx *core.ExecutionContext, step int, batch *core.FixedBatch) (int, *core.FixedBatch, error) {
	instr := p.frame.Steps[step]

	span := p.startSpan(instr)
	defer span.Finish()

	switch instr.Kind {
	case InstrPatternStart:
		return step + 1, batch, nil

	case InstrExecutable:
		if err := instr.Step.Prepare(ctx, batch); err != nil {
			return 0, nil, err
		}
		out, err := instr.Step.BatchContinue(ctx)
		if err != nil {
			return 0, nil, err
		}
		if out == nil {
			// This input produced nothing; fall back to re-pull more
			// upstream input at the same position.
			return step, nil, nil
		}
		return step + 1, out, nil

	case InstrNestedPattern:
		out, err := p.runNested(ctx, instr.Nested, batch)
		if err != nil {
			return 0, nil, err
		}
		if out == nil {
			return step, nil, nil
		}
		return step + 1, out, nil

	case InstrCollectingStage:
		if err := instr.Collecting.Consume(batch); err != nil {
			return 0, nil, err
		}
		return step, nil, nil

	case InstrReshapeForReturn:
		return step + 1, reshape(batch, instr.ReshapePositions), nil

	case InstrYield:
		// Sentinel at the last position: stop here with this batch as the
		// result. The caller (Pull) recognizes step+1 == len(Steps) as
		// "stop and return".
		return step + 1, batch, nil

	default:
		return step + 1, batch, nil
	}
}

// executeBackward calls batch_continue with no new input, used when the
// previous forward pull exhausted a step and more upstream input (or a
// streamed collecting-stage batch) must be pulled.
func (p *PatternExecutor) executeBackward(ctx *core.ExecutionContext, step int) (int, *core.FixedBatch, error) {
	if step < 0 {
		return -1, nil, nil
	}

	instr := p.frame.Steps[step]

	switch instr.Kind {
	case InstrPatternStart:
		return step - 1, nil, nil

	case InstrExecutable:
		out, err := instr.Step.BatchContinue(ctx)
		if err != nil {
			return 0, nil, err
		}
		if out == nil {
			return step - 1, nil, nil
		}
		return step + 1, out, nil

	case InstrCollectingStage:
		out, err := instr.Collecting.Produce(p.config.BatchCapacity)
		if err != nil {
			return 0, nil, err
		}
		if out == nil {
			return step - 1, nil, nil
		}
		return step + 1, out, nil

	case InstrNestedPattern:
		out, err := p.runNested(ctx, instr.Nested, nil)
		if err != nil {
			return 0, nil, err
		}
		if out == nil {
			return step - 1, nil, nil
		}
		return step + 1, out, nil

	default:
		return step - 1, nil, nil
	}
}

// runNested drives a nested-pattern controller over every row of the
// incoming batch, collecting every row it produces into one output batch
// (spec.md §4.5: each controller decides per-outer-row how the subpattern's
// results combine with it). batch is non-nil only when a fresh outer batch
// arrives from upstream; a nil batch resumes n's in-flight outer batch
// (tracked on n itself) from wherever the previous call filled the output
// batch and had to stop, rather than dropping the remaining outer rows and
// the controller's own in-flight row.
func (p *PatternExecutor) runNested(ctx *core.ExecutionContext, n *NestedPatternInstruction, batch *core.FixedBatch) (*core.FixedBatch, error) {
	if batch != nil {
		n.batch, n.rowIdx, n.rowOpen, n.hasPending = batch, 0, false, false
	}
	if n.batch == nil {
		return nil, nil
	}

	out := core.NewFixedBatch(n.batch.Width, p.config.BatchCapacity)

	if n.hasPending {
		if !out.Append(n.pending) {
			return out, nil
		}
		n.hasPending = false
	}

	for n.rowIdx < n.batch.Len() {
		if err := ctx.Interrupt.Check(); err != nil {
			return nil, err
		}
		if !n.rowOpen {
			if err := n.Controller.Reset(ctx, n.batch.Get(n.rowIdx)); err != nil {
				return nil, err
			}
			n.rowOpen = true
		}
		for {
			row, ok, err := n.Controller.Advance(ctx)
			if err != nil {
				return nil, err
			}
			if !ok {
				n.rowOpen = false
				n.rowIdx++
				break
			}
			if !out.Append(row) {
				n.pending, n.hasPending = row, true
				return out, nil
			}
		}
	}

	n.batch = nil
	if out.Len() == 0 {
		return nil, nil
	}
	return out, nil
}

func reshape(batch *core.FixedBatch, positions []core.VariablePosition) *core.FixedBatch {
	if batch == nil {
		return nil
	}
	out := core.NewFixedBatch(len(positions), batch.Capacity)
	for _, row := range batch.Rows() {
		next := core.NewRow(len(positions))
		for i, pos := range positions {
			next[i] = row[pos]
		}
		out.Append(next)
	}
	return out
}

func (p *PatternExecutor) startSpan(instr Instruction) opentracing.Span {
	name := "exec.step"
	switch instr.Kind {
	case InstrExecutable:
		name = "exec.executable"
	case InstrNestedPattern:
		name = "exec.nested_pattern"
	case InstrCollectingStage:
		name = "exec.collecting_stage"
	}
	return p.config.Tracer.StartSpan(name)
}
