package collect

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
)

func ageVar() *ir.Variable {
	reg := ir.NewRegistry()
	return reg.Declare("age", ir.CategoryValue, ir.Required)
}

func rowOf(v *ir.Variable, value int64) core.Row {
	row := core.NewRow(int(v.Position) + 1)
	row[v.Position] = core.ValueCell(core.LongValue(value))
	return row
}

func TestSort_OrdersAscendingByDefault(t *testing.T) {
	age := ageVar()
	s := NewSort([]ir.SortKey{{Variable: age, Ascending: true}})

	batch := core.NewFixedBatch(1, 8)
	batch.Append(rowOf(age, 30))
	batch.Append(rowOf(age, 10))
	batch.Append(rowOf(age, 20))
	require.NoError(t, s.Consume(batch))
	require.NoError(t, s.Consume(nil))

	out, err := s.Produce(8)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())
	require.Equal(t, int64(10), out.Get(0)[age.Position].Value.Data)
	require.Equal(t, int64(20), out.Get(1)[age.Position].Value.Data)
	require.Equal(t, int64(30), out.Get(2)[age.Position].Value.Data)

	out, err = s.Produce(8)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestSort_Descending(t *testing.T) {
	age := ageVar()
	s := NewSort([]ir.SortKey{{Variable: age, Ascending: false}})

	batch := core.NewFixedBatch(1, 8)
	batch.Append(rowOf(age, 10))
	batch.Append(rowOf(age, 30))
	require.NoError(t, s.Consume(batch))

	out, err := s.Produce(8)
	require.NoError(t, err)
	require.Equal(t, int64(30), out.Get(0)[age.Position].Value.Data)
	require.Equal(t, int64(10), out.Get(1)[age.Position].Value.Data)
}

func TestReduce_CountAndSumPerGroup(t *testing.T) {
	reg := ir.NewRegistry()
	group := reg.Declare("team", ir.CategoryValue, ir.Required)
	score := reg.Declare("score", ir.CategoryValue, ir.Required)

	r := NewReduce([]*ir.Variable{group}, []ir.Reducer{
		{ReducerKind: ir.ReduceCount},
		{ReducerKind: ir.ReduceSum, Input: score},
	})

	mkRow := func(team string, s int64) core.Row {
		row := core.NewRow(2)
		row[group.Position] = core.ValueCell(core.StringValue(team))
		row[score.Position] = core.ValueCell(core.LongValue(s))
		return row
	}

	batch := core.NewFixedBatch(2, 8)
	batch.Append(mkRow("a", 1))
	batch.Append(mkRow("a", 2))
	batch.Append(mkRow("b", 5))
	require.NoError(t, r.Consume(batch))

	out, err := r.Produce(8)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	totals := map[string]int64{}
	counts := map[string]int64{}
	for _, row := range out.Rows() {
		team := row[0].Value.Data.(string)
		counts[team] = row[1].Value.Data.(int64)
		totals[team] = int64(row[2].Value.Data.(float64))
	}
	require.Equal(t, int64(2), counts["a"])
	require.Equal(t, int64(3), totals["a"])
	require.Equal(t, int64(1), counts["b"])
	require.Equal(t, int64(5), totals["b"])
}

func TestReduce_StdIsSquareRootOfVariance(t *testing.T) {
	reg := ir.NewRegistry()
	group := reg.Declare("team", ir.CategoryValue, ir.Required)
	score := reg.Declare("score", ir.CategoryValue, ir.Required)

	r := NewReduce([]*ir.Variable{group}, []ir.Reducer{
		{ReducerKind: ir.ReduceStd, Input: score},
	})

	mkRow := func(s int64) core.Row {
		row := core.NewRow(2)
		row[group.Position] = core.ValueCell(core.StringValue("a"))
		row[score.Position] = core.ValueCell(core.LongValue(s))
		return row
	}

	// population {2, 4, 4, 4, 5, 5, 7, 9} has variance 4, so std must be 2,
	// not 4 (the classic textbook example for catching a missing sqrt).
	batch := core.NewFixedBatch(2, 8)
	for _, v := range []int64{2, 4, 4, 4, 5, 5, 7, 9} {
		batch.Append(mkRow(v))
	}
	require.NoError(t, r.Consume(batch))

	out, err := r.Produce(8)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	require.InDelta(t, 2.0, out.Get(0)[1].Value.Data.(float64), 1e-9)
}
