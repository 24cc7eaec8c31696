package core

// DefaultBatchCapacity is the row capacity a batch gets when none is given.
// The pattern executor pulls
// rows in fixed-size groups rather than one at a time; this is the unit of
// transfer between stages (spec.md glossary: "Fixed batch").
const DefaultBatchCapacity = 64

// FixedBatch is a rectangular buffer of up to Capacity rows, all of Width
// columns. It is the sole unit exchanged between pipeline stages.
type FixedBatch struct {
	Width    int
	Capacity int
	rows     []Row
}

// NewFixedBatch allocates an empty batch of the given row width and capacity.
func NewFixedBatch(width, capacity int) *FixedBatch {
	if capacity <= 0 {
		capacity = DefaultBatchCapacity
	}
	return &FixedBatch{Width: width, Capacity: capacity, rows: make([]Row, 0, capacity)}
}

// SingleRowBatch wraps one row as a batch of capacity 1, used to seed a
// pattern executor from an upstream input row.
func SingleRowBatch(row Row) *FixedBatch {
	b := &FixedBatch{Width: len(row), Capacity: 1, rows: []Row{row}}
	return b
}

func (b *FixedBatch) Len() int { return len(b.rows) }

func (b *FixedBatch) Full() bool { return len(b.rows) >= b.Capacity }

func (b *FixedBatch) Get(i int) Row { return b.rows[i] }

// Append adds a row, returning false if the batch is already at capacity.
func (b *FixedBatch) Append(r Row) bool {
	if b.Full() {
		return false
	}
	b.rows = append(b.rows, r)
	return true
}

// Rows exposes the underlying rows for iteration. Callers that need to hold
// a row past the next mutation of the batch must call Row.Clone first.
func (b *FixedBatch) Rows() []Row { return b.rows }

// Truncate keeps the first n rows and drops the rest, cutting the batch down
// to a partial batch.
func (b *FixedBatch) Truncate(n int) {
	if n < len(b.rows) {
		b.rows = b.rows[:n]
	}
}

// Collect eagerly drains an iterator-like pull function into owned rows,
// the "collect helper that deep-copies for callers that need owning rows"
// called for in spec.md's Design Notes.
func Collect(next func() (*FixedBatch, error)) ([]Row, error) {
	var out []Row
	for {
		batch, err := next()
		if err != nil {
			return out, err
		}
		if batch == nil {
			return out, nil
		}
		for _, r := range batch.Rows() {
			out = append(out, r.Clone())
		}
	}
}
