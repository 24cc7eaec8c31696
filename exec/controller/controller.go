// Package controller implements the nested-pattern controllers of spec.md
// §4.5: each owns one inner exec.PatternExecutor and reuses it across outer
// rows, resetting it between them rather than rebuilding it (a supplemented
// detail taken from original_source's nested_pattern_executor.rs
// get_or_next_executing_pattern/process_result split).
package controller

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/exec"
	"github.com/dolthub/typeql-core/ir"
)

// base holds what every controller needs to drive its inner executor once
// per outer row: the outer row itself and the inner PatternExecutor.
type base struct {
	inner    *exec.PatternExecutor
	outerRow core.Row
	seed     *core.FixedBatch
}

func (b *base) reset(ctx *core.ExecutionContext, outerRow core.Row, seed *core.FixedBatch) {
	b.outerRow = outerRow
	b.inner.Reset()
	b.seed = seed
}

// Negation runs its inner pattern to see whether it produces any row at
// all; if it does, the outer row is discarded (negation fails); if the
// inner pattern is exhausted with no result, the outer row is emitted once
// (spec.md §4.5 table).
type Negation struct {
	base
	emitted  bool
	resolved bool
}

func NewNegation(inner *exec.PatternExecutor) *Negation {
	return &Negation{base: base{inner: inner}}
}

func (n *Negation) Reset(ctx *core.ExecutionContext, outerRow core.Row) error {
	n.reset(ctx, outerRow, core.SingleRowBatch(outerRow))
	n.emitted = false
	n.resolved = false
	return nil
}

func (n *Negation) Advance(ctx *core.ExecutionContext) (core.Row, bool, error) {
	if n.emitted {
		return nil, false, nil
	}
	if !n.resolved {
		result, err := n.inner.Pull(ctx, n.seed)
		if err != nil {
			return nil, false, err
		}
		n.resolved = true
		if result != nil && result.Len() > 0 {
			// Short-circuit: the subpattern matched, negation fails.
			n.emitted = true
			return nil, false, nil
		}
	}
	n.emitted = true
	return n.outerRow, true, nil
}

// Disjunction streams every row each branch produces for the outer row,
// unmodified, moving to the next branch once one is exhausted, then stops
// once every branch is exhausted (spec.md §4.5 table: "emit subpattern row"
// / "on subpattern exhausted: emit nothing" — generalized here from one
// branch to the full disjunction group, since a disjunction's branches are
// a set, not a single subpattern).
type Disjunction struct {
	branches []*exec.PatternExecutor
	outerRow core.Row
	seed     *core.FixedBatch
	current  int
	pending  []core.Row
}

// NewDisjunction takes one inner PatternExecutor per branch, in source order.
func NewDisjunction(branches ...*exec.PatternExecutor) *Disjunction {
	return &Disjunction{branches: branches}
}

func (d *Disjunction) Reset(ctx *core.ExecutionContext, outerRow core.Row) error {
	d.outerRow = outerRow
	d.seed = core.SingleRowBatch(outerRow)
	d.current = 0
	d.pending = nil
	for _, b := range d.branches {
		b.Reset()
	}
	return nil
}

func (d *Disjunction) Advance(ctx *core.ExecutionContext) (core.Row, bool, error) {
	for {
		if len(d.pending) > 0 {
			row := d.pending[0]
			d.pending = d.pending[1:]
			return row, true, nil
		}
		if d.current >= len(d.branches) {
			return nil, false, nil
		}
		batch, err := d.branches[d.current].Pull(ctx, d.seed)
		if err != nil {
			return nil, false, err
		}
		if batch == nil {
			d.current++
			continue
		}
		d.pending = append(d.pending, batch.Rows()...)
	}
}

// InlinedFunction projects the outer row onto the function's argument
// positions, runs the function body, and combines each returned row with
// the outer row at the assigned positions (spec.md §4.5 table).
type InlinedFunction struct {
	base
	argumentVars []*ir.Variable
	assignedVars []*ir.Variable
	pending      []core.Row
}

func NewInlinedFunction(inner *exec.PatternExecutor, argumentVars, assignedVars []*ir.Variable) *InlinedFunction {
	return &InlinedFunction{base: base{inner: inner}, argumentVars: argumentVars, assignedVars: assignedVars}
}

func (f *InlinedFunction) Reset(ctx *core.ExecutionContext, outerRow core.Row) error {
	argRow := core.NewRow(len(f.argumentVars))
	for i, v := range f.argumentVars {
		argRow[i] = outerRow[v.Position]
	}
	f.base.reset(ctx, outerRow, core.SingleRowBatch(argRow))
	f.pending = nil
	return nil
}

func (f *InlinedFunction) Advance(ctx *core.ExecutionContext) (core.Row, bool, error) {
	if len(f.pending) == 0 {
		batch, err := f.inner.Pull(ctx, f.seed)
		if err != nil {
			return nil, false, err
		}
		if batch == nil {
			return nil, false, nil
		}
		f.pending = append(f.pending, batch.Rows()...)
		if len(f.pending) == 0 {
			return nil, false, nil
		}
	}
	ret := f.pending[0]
	f.pending = f.pending[1:]

	combined := f.outerRow.Clone()
	for i, v := range f.assignedVars {
		combined[v.Position] = ret[i]
	}
	return combined, true, nil
}

// Offset passes rows through once the running counter reaches k, dropping
// the first k rows seen for this outer row (spec.md §4.5 table). It
// processes row-by-row so a partial batch can be emitted.
type Offset struct {
	base
	k       int
	seen    int
	pending []core.Row
	index   int
}

func NewOffset(inner *exec.PatternExecutor, k int) *Offset {
	return &Offset{base: base{inner: inner}, k: k}
}

func (o *Offset) Reset(ctx *core.ExecutionContext, outerRow core.Row) error {
	o.base.reset(ctx, outerRow, core.SingleRowBatch(outerRow))
	o.seen = 0
	o.pending = nil
	o.index = 0
	return nil
}

func (o *Offset) Advance(ctx *core.ExecutionContext) (core.Row, bool, error) {
	for {
		if o.index < len(o.pending) {
			row := o.pending[o.index]
			o.index++
			if o.seen < o.k {
				o.seen++
				continue
			}
			return row, true, nil
		}
		batch, err := o.inner.Pull(ctx, o.seed)
		if err != nil {
			return nil, false, err
		}
		if batch == nil {
			return nil, false, nil
		}
		o.pending = batch.Rows()
		o.index = 0
	}
}

// Limit passes through up to k rows for this outer row, then short-circuits
// (spec.md §4.5 table).
type Limit struct {
	base
	k       int
	emitted int
	pending []core.Row
	index   int
	done    bool
}

func NewLimit(inner *exec.PatternExecutor, k int) *Limit {
	return &Limit{base: base{inner: inner}, k: k}
}

func (l *Limit) Reset(ctx *core.ExecutionContext, outerRow core.Row) error {
	l.base.reset(ctx, outerRow, core.SingleRowBatch(outerRow))
	l.emitted = 0
	l.pending = nil
	l.index = 0
	l.done = false
	return nil
}

func (l *Limit) Advance(ctx *core.ExecutionContext) (core.Row, bool, error) {
	if l.done || l.emitted >= l.k {
		return nil, false, nil
	}
	if l.index >= len(l.pending) {
		batch, err := l.inner.Pull(ctx, l.seed)
		if err != nil {
			return nil, false, err
		}
		if batch == nil {
			l.done = true
			return nil, false, nil
		}
		l.pending, l.index = batch.Rows(), 0
	}
	row := l.pending[l.index]
	l.index++
	l.emitted++
	if l.emitted >= l.k {
		l.done = true
	}
	return row, true, nil
}
