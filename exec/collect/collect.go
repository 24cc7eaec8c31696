// Package collect implements the materializing collecting stages of
// spec.md §4.6: Sort and Reduce both exhaust their upstream into a growing
// working set before streaming results back out, unlike the row-at-a-time
// Executable steps in package exec.
package collect

import (
	"math"
	"sort"

	"github.com/spf13/cast"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
)

// Sort materializes every upstream row, orders them by a sequence of sort
// keys using the natural ordering of each key's underlying value kind
// (Domain Stack: spf13/cast coerces across kind-compatible value
// representations the same way core.Value.Compare does), and streams the
// result back out in fixed batches. Ties preserve input order (stable
// sort, spec.md §4.6). Keys reuse the compiler-facing ir.SortKey vocabulary
// directly rather than a second, parallel one.
type Sort struct {
	Keys     []ir.SortKey
	Capacity int

	rows   []core.Row
	sorted bool
	cursor int
}

func NewSort(keys []ir.SortKey) *Sort {
	return &Sort{Keys: keys}
}

func (s *Sort) Consume(batch *core.FixedBatch) error {
	if batch == nil {
		return nil
	}
	for _, r := range batch.Rows() {
		s.rows = append(s.rows, r.Clone())
	}
	return nil
}

func (s *Sort) Produce(capacity int) (*core.FixedBatch, error) {
	if !s.sorted {
		sort.SliceStable(s.rows, func(i, j int) bool { return s.less(s.rows[i], s.rows[j]) })
		s.sorted = true
	}
	if s.cursor >= len(s.rows) {
		return nil, nil
	}
	if capacity <= 0 {
		capacity = core.DefaultBatchCapacity
	}
	width := 0
	if len(s.rows) > 0 {
		width = len(s.rows[0])
	}
	out := core.NewFixedBatch(width, capacity)
	for s.cursor < len(s.rows) && out.Append(s.rows[s.cursor]) {
		s.cursor++
	}
	return out, nil
}

func (s *Sort) less(a, b core.Row) bool {
	for _, key := range s.Keys {
		av, bv := a[key.Variable.Position].Value, b[key.Variable.Position].Value
		cmp := av.Compare(bv)
		if cmp == 0 {
			continue
		}
		if !key.Ascending {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

// Reduce groups materialized rows by a set of positions and applies a
// sequence of reducers per group, emitting one output row per distinct
// group-key combination plus the reducer results (spec.md §4.6). Reducers
// reuse the compiler-facing ir.Reducer/ir.ReducerKind vocabulary directly.
type Reduce struct {
	GroupBy  []*ir.Variable
	Reducers []ir.Reducer

	groups   map[string]*group
	order    []string
	produced bool
	cursor   int
}

type group struct {
	key    core.Row
	values map[*ir.Variable][]core.Value
	count  int64
}

func NewReduce(groupBy []*ir.Variable, reducers []ir.Reducer) *Reduce {
	return &Reduce{GroupBy: groupBy, Reducers: reducers, groups: make(map[string]*group)}
}

func (r *Reduce) Consume(batch *core.FixedBatch) error {
	if batch == nil {
		return nil
	}
	for _, row := range batch.Rows() {
		key := r.groupKey(row)
		g, ok := r.groups[key]
		if !ok {
			keyRow := make(core.Row, len(r.GroupBy))
			for i, v := range r.GroupBy {
				keyRow[i] = row[v.Position]
			}
			g = &group{key: keyRow, values: make(map[*ir.Variable][]core.Value)}
			r.groups[key] = g
			r.order = append(r.order, key)
		}
		g.count++
		for _, red := range r.Reducers {
			if red.Input != nil {
				g.values[red.Input] = append(g.values[red.Input], row[red.Input.Position].Value)
			}
		}
	}
	return nil
}

func (r *Reduce) groupKey(row core.Row) string {
	var buf []byte
	for _, v := range r.GroupBy {
		buf = append(buf, []byte(cast.ToString(row[v.Position].Value.Data))...)
		buf = append(buf, 0)
	}
	return string(buf)
}

func (r *Reduce) Produce(capacity int) (*core.FixedBatch, error) {
	if r.produced && r.cursor >= len(r.order) {
		return nil, nil
	}
	r.produced = true
	if capacity <= 0 {
		capacity = core.DefaultBatchCapacity
	}
	width := len(r.GroupBy) + len(r.Reducers)
	out := core.NewFixedBatch(width, capacity)
	for r.cursor < len(r.order) {
		g := r.groups[r.order[r.cursor]]
		row := make(core.Row, width)
		copy(row, g.key)
		for i, red := range r.Reducers {
			row[len(r.GroupBy)+i] = core.ValueCell(applyReducer(red, g))
		}
		if !out.Append(row) {
			break
		}
		r.cursor++
	}
	if out.Len() == 0 {
		return nil, nil
	}
	return out, nil
}

func applyReducer(red ir.Reducer, g *group) core.Value {
	switch red.ReducerKind {
	case ir.ReduceCount:
		return core.LongValue(g.count)
	case ir.ReduceSum:
		var sum float64
		for _, v := range g.values[red.Input] {
			sum += cast.ToFloat64(v.Data)
		}
		return core.DoubleValue(sum)
	case ir.ReduceMean:
		vs := g.values[red.Input]
		if len(vs) == 0 {
			return core.DoubleValue(0)
		}
		var sum float64
		for _, v := range vs {
			sum += cast.ToFloat64(v.Data)
		}
		return core.DoubleValue(sum / float64(len(vs)))
	case ir.ReduceMax:
		return extremum(g.values[red.Input], true)
	case ir.ReduceMin:
		return extremum(g.values[red.Input], false)
	case ir.ReduceMedian:
		return median(g.values[red.Input])
	case ir.ReduceStd:
		return core.DoubleValue(stddev(g.values[red.Input]))
	default:
		return core.Value{}
	}
}

func extremum(values []core.Value, max bool) core.Value {
	if len(values) == 0 {
		return core.Value{}
	}
	best := values[0]
	for _, v := range values[1:] {
		cmp := v.Compare(best)
		if (max && cmp > 0) || (!max && cmp < 0) {
			best = v
		}
	}
	return best
}

// median preserves the input value's kind (spec.md §4.6): for an odd count
// it is the middle value itself, unchanged. For an even count there is no
// single input value sitting at the midpoint, so a Long input whose two
// middle values average to a whole number stays Long; any other case
// widens to Double, the narrowest kind that can always represent the mean.
func median(values []core.Value) core.Value {
	if len(values) == 0 {
		return core.DoubleValue(0)
	}
	sorted := make([]core.Value, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Compare(sorted[j]) < 0 })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	a := cast.ToFloat64(sorted[n/2-1].Data)
	b := cast.ToFloat64(sorted[n/2].Data)
	mean := (a + b) / 2
	if sorted[n/2-1].Kind == core.ValueKindLong && sorted[n/2].Kind == core.ValueKindLong && mean == float64(int64(mean)) {
		return core.LongValue(int64(mean))
	}
	return core.DoubleValue(mean)
}

// stddev is the population standard deviation (spec.md §4.6's "std"
// reducer), not the variance: the square root is the whole point of naming
// it std rather than var.
func stddev(values []core.Value) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += cast.ToFloat64(v.Data)
	}
	mean := sum / float64(len(values))
	var sqDiff float64
	for _, v := range values {
		d := cast.ToFloat64(v.Data) - mean
		sqDiff += d * d
	}
	return math.Sqrt(sqDiff / float64(len(values)))
}
