// Package pipeline chains the compiled per-block executors of packages exec,
// exec/collect, and exec/write into one top-level pull stream, spec.md §3's
// "pipeline of stages chained through a shared execution context": a Match
// stage opens the stream, and every subsequent stage (Insert, Delete, Sort,
// Offset, Limit, Reduce, Select) pulls one fixed batch from the stage before
// it. This is the coarse stage-to-stage boundary; within a single Match
// stage's own instruction list, package exec's PatternExecutor is the one
// driving forward/backward through constraints and nested patterns.
package pipeline

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/exec"
)

// Stage is one pulled link in a prepared pipeline.
type Stage interface {
	Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error)
}

// matchStage is the entry stage of a read pipeline (or the first stage after
// a write, when a query both writes and reads back): it drives a compiled
// exec.PatternExecutor, seeded once with a single empty row so matching
// starts from the top of the pattern.
type matchStage struct {
	executor *exec.PatternExecutor
	seed     *core.FixedBatch
}

func (s *matchStage) Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	return s.executor.Pull(ctx, s.seed)
}

// rowExecutor is the shape both write.InsertExecutor and write.DeleteExecutor
// satisfy: run exactly one input row through a compiled instruction plan and
// return its output row (spec.md §4.7: "input row multiplicity must be 1").
type rowExecutor interface {
	Execute(ctx *core.ExecutionContext, input core.Row) (core.Row, error)
}

// writeStage drives a rowExecutor over every row of each upstream batch,
// one row at a time, since write plans assume single-row multiplicity.
type writeStage struct {
	upstream    Stage
	exec        rowExecutor
	outputWidth int
}

func (s *writeStage) Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	in, err := s.upstream.Pull(ctx)
	if err != nil || in == nil {
		return nil, err
	}
	out := core.NewFixedBatch(s.outputWidth, in.Capacity)
	for _, row := range in.Rows() {
		if err := ctx.Interrupt.Check(); err != nil {
			return nil, err
		}
		next, err := s.exec.Execute(ctx, row)
		if err != nil {
			return nil, err
		}
		out.Append(next)
	}
	return out, nil
}

// collectingStage drains every upstream batch into a CollectingStage
// (exec/collect.Sort or Reduce), then streams its materialized output
// (spec.md §4.6).
type collectingStage struct {
	upstream  Stage
	cs        exec.CollectingStage
	capacity  int
	exhausted bool
}

func (s *collectingStage) Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if !s.exhausted {
		for {
			if err := ctx.Interrupt.Check(); err != nil {
				return nil, err
			}
			in, err := s.upstream.Pull(ctx)
			if err != nil {
				return nil, err
			}
			if in == nil {
				break
			}
			if err := s.cs.Consume(in); err != nil {
				return nil, err
			}
		}
		s.exhausted = true
	}
	return s.cs.Produce(s.capacity)
}

// offsetStage drops the first N rows of the upstream stream, across however
// many upstream batches it takes, then passes the rest through unmodified
// (spec.md §4.6 / ir.StageOffset). Unlike exec/controller.Offset, this runs
// once over the whole top-level stream rather than once per outer row.
type offsetStage struct {
	upstream Stage
	n        int
	seen     int
}

func (s *offsetStage) Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	for {
		in, err := s.upstream.Pull(ctx)
		if err != nil || in == nil {
			return in, err
		}
		if s.seen >= s.n {
			return in, nil
		}
		rows := in.Rows()
		if s.seen+len(rows) <= s.n {
			s.seen += len(rows)
			continue
		}
		keep := rows[s.n-s.seen:]
		s.seen = s.n
		out := core.NewFixedBatch(in.Width, in.Capacity)
		for _, r := range keep {
			out.Append(r)
		}
		return out, nil
	}
}

// limitStage passes through up to N rows of the upstream stream total, then
// stops pulling upstream (spec.md §4.6 / ir.StageLimit).
type limitStage struct {
	upstream Stage
	n        int
	emitted  int
	done     bool
}

func (s *limitStage) Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.done || s.emitted >= s.n {
		return nil, nil
	}
	in, err := s.upstream.Pull(ctx)
	if err != nil || in == nil {
		s.done = true
		return nil, err
	}
	rows := in.Rows()
	remaining := s.n - s.emitted
	if len(rows) <= remaining {
		s.emitted += len(rows)
		if s.emitted >= s.n {
			s.done = true
		}
		return in, nil
	}
	out := core.NewFixedBatch(in.Width, in.Capacity)
	for _, r := range rows[:remaining] {
		out.Append(r)
	}
	s.emitted = s.n
	s.done = true
	return out, nil
}

// selectStage projects every row onto a fixed subset of positions (spec.md
// §4.6 / ir.StageSelect's keep-set), reassigning them to new, densely packed
// positions 0..len(Positions)-1.
type selectStage struct {
	upstream  Stage
	positions []core.VariablePosition
}

func (s *selectStage) Pull(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	in, err := s.upstream.Pull(ctx)
	if err != nil || in == nil {
		return nil, err
	}
	out := core.NewFixedBatch(len(s.positions), in.Capacity)
	for _, row := range in.Rows() {
		next := make(core.Row, len(s.positions))
		for i, pos := range s.positions {
			next[i] = row[pos]
		}
		out.Append(next)
	}
	return out, nil
}
