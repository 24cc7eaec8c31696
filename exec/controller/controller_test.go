package controller

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/exec"
	"github.com/dolthub/typeql-core/ir"
)

// constStep emits exactly one row (built from emit) per Prepare call, or
// nothing at all if emit is nil — enough to drive a controller's inner
// pattern deterministically without a storage dependency.
type constStep struct {
	emit func() core.Row
	done bool
}

func (s *constStep) Prepare(ctx *core.ExecutionContext, input *core.FixedBatch) error {
	s.done = false
	return nil
}

func (s *constStep) BatchContinue(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.done || s.emit == nil {
		return nil, nil
	}
	s.done = true
	return core.SingleRowBatch(s.emit()), nil
}

func newInnerExecutor(emit func() core.Row) *exec.PatternExecutor {
	steps := []exec.Instruction{
		exec.PatternStartInstruction(),
		exec.ExecutableInstruction(&constStep{emit: emit}),
		exec.YieldInstruction(),
	}
	return exec.NewPatternExecutor(steps, exec.DefaultConfig())
}

func TestNegation_EmitsOuterRowWhenSubpatternEmpty(t *testing.T) {
	inner := newInnerExecutor(nil)
	neg := NewNegation(inner)

	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	outer := core.NewRow(1)
	outer[0] = core.ValueCell(core.LongValue(7))

	require.NoError(t, neg.Reset(ctx, outer))
	row, ok, err := neg.Advance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, outer, row)

	_, ok, err = neg.Advance(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNegation_DiscardsOuterRowWhenSubpatternMatches(t *testing.T) {
	inner := newInnerExecutor(func() core.Row { return core.NewRow(1) })
	neg := NewNegation(inner)

	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	outer := core.NewRow(1)

	require.NoError(t, neg.Reset(ctx, outer))
	_, ok, err := neg.Advance(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDisjunction_UnionsAllBranches(t *testing.T) {
	branchA := newInnerExecutor(func() core.Row {
		r := core.NewRow(1)
		r[0] = core.ValueCell(core.LongValue(1))
		return r
	})
	branchB := newInnerExecutor(func() core.Row {
		r := core.NewRow(1)
		r[0] = core.ValueCell(core.LongValue(2))
		return r
	})
	dis := NewDisjunction(branchA, branchB)

	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	outer := core.NewRow(1)

	require.NoError(t, dis.Reset(ctx, outer))

	var got []int64
	for {
		row, ok, err := dis.Advance(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, row[0].Value.Data.(int64))
	}
	require.Equal(t, []int64{1, 2}, got)
}

func TestDisjunction_EmitsNothingWhenEveryBranchEmpty(t *testing.T) {
	dis := NewDisjunction(newInnerExecutor(nil), newInnerExecutor(nil))

	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	require.NoError(t, dis.Reset(ctx, core.NewRow(1)))

	_, ok, err := dis.Advance(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInlinedFunction_CombinesReturnWithOuterRow(t *testing.T) {
	reg := ir.NewRegistry()
	arg := reg.Declare("arg", ir.CategoryValue, ir.Required)
	ret := reg.Declare("ret", ir.CategoryValue, ir.Required)

	inner := newInnerExecutor(func() core.Row {
		r := core.NewRow(1)
		r[0] = core.ValueCell(core.LongValue(99))
		return r
	})
	fn := NewInlinedFunction(inner, []*ir.Variable{arg}, []*ir.Variable{ret})

	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	outer := core.NewRow(2)
	outer[arg.Position] = core.ValueCell(core.LongValue(7))

	require.NoError(t, fn.Reset(ctx, outer))
	row, ok, err := fn.Advance(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), row[arg.Position].Value.Data)
	require.Equal(t, int64(99), row[ret.Position].Value.Data)

	_, ok, err = fn.Advance(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOffset_DropsFirstKRows(t *testing.T) {
	calls := 0
	inner := newInnerExecutor(func() core.Row {
		calls++
		r := core.NewRow(1)
		r[0] = core.ValueCell(core.LongValue(int64(calls)))
		return r
	})
	off := NewOffset(inner, 1)

	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	outer := core.NewRow(1)

	require.NoError(t, off.Reset(ctx, outer))
	_, ok, err := off.Advance(ctx)
	require.NoError(t, err)
	require.False(t, ok, "single-row inner pattern entirely consumed by the offset")
}

func TestOffset_PassesThroughRowsPastK(t *testing.T) {
	rows := []int64{10, 20, 30}
	off := NewOffset(newMultiRowExecutor(rows), 1)
	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	require.NoError(t, off.Reset(ctx, core.NewRow(1)))

	var got []int64
	for {
		row, ok, err := off.Advance(ctx)
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, row[0].Value.Data.(int64))
	}
	require.Equal(t, []int64{20, 30}, got)
}

// multiRowStep emits every row in values, one per BatchContinue call, across
// however many calls it takes, then reports exhausted.
type multiRowStep struct {
	values []int64
	cursor int
}

func (s *multiRowStep) Prepare(ctx *core.ExecutionContext, input *core.FixedBatch) error {
	s.cursor = 0
	return nil
}

func (s *multiRowStep) BatchContinue(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.cursor >= len(s.values) {
		return nil, nil
	}
	r := core.NewRow(1)
	r[0] = core.ValueCell(core.LongValue(s.values[s.cursor]))
	s.cursor++
	return core.SingleRowBatch(r), nil
}

func newMultiRowExecutor(values []int64) *exec.PatternExecutor {
	steps := []exec.Instruction{
		exec.PatternStartInstruction(),
		exec.ExecutableInstruction(&multiRowStep{values: values}),
		exec.YieldInstruction(),
	}
	return exec.NewPatternExecutor(steps, exec.DefaultConfig())
}

func TestLimit_StopsAtK(t *testing.T) {
	calls := 0
	inner := newInnerExecutor(func() core.Row {
		calls++
		r := core.NewRow(1)
		r[0] = core.ValueCell(core.LongValue(int64(calls)))
		return r
	})
	lim := NewLimit(inner, 1)

	ctx := &core.ExecutionContext{Interrupt: core.NewInterrupt()}
	outer := core.NewRow(1)

	require.NoError(t, lim.Reset(ctx, outer))
	_, ok, err := lim.Advance(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lim.Advance(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
