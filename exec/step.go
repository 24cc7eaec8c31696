package exec

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/planner"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/storage"
)

// ExecutableStep is one Executable instruction body (spec.md §4.4:
// "intersection, assignment, check"). Prepare consumes the upstream batch
// once; BatchContinue is then called repeatedly, returning a non-nil batch
// per pull and nil once this input batch is exhausted.
type ExecutableStep interface {
	Prepare(ctx *core.ExecutionContext, input *core.FixedBatch) error
	BatchContinue(ctx *core.ExecutionContext) (*core.FixedBatch, error)
}

// ExpressionEvaluator is the external scalar-expression collaborator
// (spec.md §1): ir.ExpressionBinding.Expression is an opaque handle this
// evaluates against a row's bound argument values.
type ExpressionEvaluator interface {
	Evaluate(expr interface{}, args []core.Value) (core.Value, error)
}

// --- Intersection -----------------------------------------------------

// IntersectionStep fetches one Thing vertex's or Has/Links edge's
// candidate instances from storage and intersects them against any
// already-bound endpoint, producing one output row per surviving instance
// (spec.md §4.4 "intersection"). Direction/ordering came from the planner.
type IntersectionStep struct {
	Step       planner.PlannedStep
	OutputVars []*ir.Variable // positions this step binds, in declaration order
	Types      *schema.TypeManager // resolves a Links constraint's RoleLabel; unused by Has

	input  *core.FixedBatch
	cursor int
	rowBuf []core.Row
}

func NewIntersectionStep(step planner.PlannedStep, outputVars []*ir.Variable, types *schema.TypeManager) *IntersectionStep {
	return &IntersectionStep{Step: step, OutputVars: outputVars, Types: types}
}

func (s *IntersectionStep) Prepare(ctx *core.ExecutionContext, input *core.FixedBatch) error {
	s.input = input
	s.cursor = 0
	s.rowBuf = nil
	return nil
}

// BatchContinue expands every input row by the constraint's matching
// instances, one storage range scan per input row (the "intersection" of
// the constraint's admissible instances with whatever the row already
// bound). Scans are driven through core.Readable.Iterate over a key prefix
// built from the bound side; storage itself guarantees key order, which is
// the ordering guarantee spec.md §4.4 relies on for stable per-batch output.
func (s *IntersectionStep) BatchContinue(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.input == nil || (s.cursor >= s.input.Len() && len(s.rowBuf) == 0) {
		return nil, nil
	}
	out := core.NewFixedBatch(s.input.Width, core.DefaultBatchCapacity)
	for !out.Full() {
		if len(s.rowBuf) > 0 {
			out.Append(s.rowBuf[0])
			s.rowBuf = s.rowBuf[1:]
			continue
		}
		if s.cursor >= s.input.Len() {
			break
		}
		if err := ctx.Interrupt.Check(); err != nil {
			return nil, err
		}
		row := s.input.Get(s.cursor)
		matches, err := s.expand(ctx, row)
		if err != nil {
			return nil, err
		}
		s.rowBuf = matches
		s.cursor++
	}
	if out.Len() == 0 {
		return nil, nil
	}
	return out, nil
}

// expand produces every row reachable from row by this step's constraint,
// decoding vertex keys off the storage range under the bound endpoint's
// prefix. Non-Has/Links constraints (Isa, Owns, Sub, ...) are resolved by
// the typeinfer-narrowed candidate set rather than a storage scan, since
// they constrain a single Thing variable directly.
func (s *IntersectionStep) expand(ctx *core.ExecutionContext, row core.Row) ([]core.Row, error) {
	switch c := s.Step.Constraint.(type) {
	case *ir.Has:
		return s.expandHas(ctx, row, c)
	case *ir.Links:
		return s.expandLinks(ctx, row, c)
	default:
		// Schema-only constraints (Isa/Sub/Owns/Relates/Plays/Label) narrow
		// candidate sets at compile time; by execution time they impose no
		// further per-row filtering beyond what type inference already
		// guaranteed, so the row passes through unchanged.
		return []core.Row{row}, nil
	}
}

func (s *IntersectionStep) expandHas(ctx *core.ExecutionContext, row core.Row, c *ir.Has) ([]core.Row, error) {
	ownerCell := row[c.Owner.Position]
	attrCell := row[c.Attribute.Position]

	switch {
	case !ownerCell.IsEmpty() && !attrCell.IsEmpty():
		ownerKey := storage.EncodeObjectVertex(ownerCell.Thing.Kind, ownerCell.Thing.Type, ownerCell.Thing.InstanceID)
		attrKey := storage.EncodeAttributeVertex(attrCell.Thing.ValueKind, attrCell.Thing.Type, attrCell.Thing.InstanceID)
		_, ok, err := ctx.Snapshot.Get(storage.EncodeHasEdge(ownerKey, attrKey))
		if err != nil || !ok {
			return nil, core.WrapIterateStorage(err)
		}
		return []core.Row{row}, nil
	case !ownerCell.IsEmpty():
		ownerKey := storage.EncodeObjectVertex(ownerCell.Thing.Kind, ownerCell.Thing.Type, ownerCell.Thing.InstanceID)
		prefixStart := storage.EncodeHasEdge(ownerKey, nil)
		return s.scanHasEdges(ctx, row, c, prefixStart, true)
	case !attrCell.IsEmpty():
		attrKey := storage.EncodeAttributeVertex(attrCell.Thing.ValueKind, attrCell.Thing.Type, attrCell.Thing.InstanceID)
		prefixStart := storage.EncodeHasReverseEdge(attrKey, nil)
		return s.scanHasEdges(ctx, row, c, prefixStart, false)
	default:
		// Neither side bound: iterate every has edge (planner should not
		// normally leave both sides unbound at this point, but a function
		// body compiled in isolation can).
		return s.scanHasEdges(ctx, row, c, []byte{storage.PrefixHasEdge}, true)
	}
}

func (s *IntersectionStep) scanHasEdges(ctx *core.ExecutionContext, row core.Row, c *ir.Has, prefix []byte, forward bool) ([]core.Row, error) {
	end := prefixUpperBound(prefix)
	it := ctx.Snapshot.Iterate(prefix, end)
	defer it.Close()

	var out []core.Row
	for it.Next() {
		if err := ctx.Interrupt.Check(); err != nil {
			return nil, err
		}
		var ownerVertex, attrVertex []byte
		if forward {
			ownerVertex, attrVertex = storage.DecodeHasEdge(it.Key())
		} else {
			attrVertex, ownerVertex = storage.DecodeHasReverseEdge(it.Key())
		}
		next := row.Clone()
		ownerKind, ownerType := storage.VertexKindAndType(ownerVertex)
		_, attrType := storage.VertexKindAndType(attrVertex)
		next[c.Owner.Position] = core.ThingCell(core.ThingRef{Kind: ownerKind, Type: ownerType, InstanceID: core.InstanceID(ownerVertex[3:])})
		next[c.Attribute.Position] = core.ThingCell(core.ThingRef{Kind: core.AttributeKind, Type: attrType, InstanceID: core.InstanceID(attrVertex[3:])})
		out = append(out, next)
	}
	if err := it.Err(); err != nil {
		return nil, core.WrapIterateStorage(err)
	}
	return out, nil
}

// expandLinks resolves $relation (links: $role) $player, scanning the
// role-player/role-player-reverse edge index analogous to expandHas. The
// role dimension is resolved once up front: a literal RoleLabel or an
// already-bound Role variable pins the exact role-type-id the scan filters
// on; otherwise every admissible role is scanned and the discovered
// role-type-id is bound into the Role cell for the caller.
func (s *IntersectionStep) expandLinks(ctx *core.ExecutionContext, row core.Row, c *ir.Links) ([]core.Row, error) {
	relCell := row[c.Relation.Position]
	playerCell := row[c.Player.Position]

	var roleID core.TypeID
	roleKnown := false
	if c.RoleLabel != "" {
		id, ok := s.Types.Label(c.RoleLabel)
		if !ok {
			return nil, nil
		}
		roleID, roleKnown = id, true
	} else if c.Role != nil {
		if rc := row[c.Role.Position]; !rc.IsEmpty() {
			roleID, roleKnown = rc.Type, true
		}
	}

	switch {
	case !relCell.IsEmpty() && !playerCell.IsEmpty():
		relKey := storage.EncodeObjectVertex(relCell.Thing.Kind, relCell.Thing.Type, relCell.Thing.InstanceID)
		playerKey := storage.EncodeObjectVertex(playerCell.Thing.Kind, playerCell.Thing.Type, playerCell.Thing.InstanceID)
		if roleKnown {
			_, ok, err := ctx.Snapshot.Get(storage.EncodeRolePlayerEdge(relKey, playerKey, roleID))
			if err != nil || !ok {
				return nil, core.WrapIterateStorage(err)
			}
			next := row.Clone()
			if c.Role != nil {
				next[c.Role.Position] = core.TypeCell(roleID)
			}
			return []core.Row{next}, nil
		}
		prefix := storage.EncodeRolePlayerEdgePrefix(relKey, playerKey)
		return s.scanLinksEdges(ctx, row, c, prefix, true, roleKnown, roleID)
	case !relCell.IsEmpty():
		relKey := storage.EncodeObjectVertex(relCell.Thing.Kind, relCell.Thing.Type, relCell.Thing.InstanceID)
		prefix := storage.EncodeRolePlayerEdgePrefix(relKey, nil)
		return s.scanLinksEdges(ctx, row, c, prefix, true, roleKnown, roleID)
	case !playerCell.IsEmpty():
		playerKey := storage.EncodeObjectVertex(playerCell.Thing.Kind, playerCell.Thing.Type, playerCell.Thing.InstanceID)
		prefix := storage.EncodeRolePlayerReverseEdgePrefix(playerKey, nil)
		return s.scanLinksEdges(ctx, row, c, prefix, false, roleKnown, roleID)
	default:
		// Neither side bound: iterate every role-player edge (mirrors
		// expandHas's equivalent fallback for a function body compiled in
		// isolation).
		return s.scanLinksEdges(ctx, row, c, []byte{storage.PrefixRolePlayerEdge}, true, roleKnown, roleID)
	}
}

func (s *IntersectionStep) scanLinksEdges(ctx *core.ExecutionContext, row core.Row, c *ir.Links, prefix []byte, forward bool, roleKnown bool, roleID core.TypeID) ([]core.Row, error) {
	end := prefixUpperBound(prefix)
	it := ctx.Snapshot.Iterate(prefix, end)
	defer it.Close()

	var out []core.Row
	for it.Next() {
		if err := ctx.Interrupt.Check(); err != nil {
			return nil, err
		}
		var relVertex, playerVertex []byte
		var role core.TypeID
		if forward {
			relVertex, playerVertex, role = storage.DecodeRolePlayerEdge(it.Key())
		} else {
			playerVertex, relVertex, role = storage.DecodeRolePlayerReverseEdge(it.Key())
		}
		if roleKnown && role != roleID {
			continue
		}
		next := row.Clone()
		relKind, relType := storage.VertexKindAndType(relVertex)
		playerKind, playerType := storage.VertexKindAndType(playerVertex)
		next[c.Relation.Position] = core.ThingCell(core.ThingRef{Kind: relKind, Type: relType, InstanceID: core.InstanceID(relVertex[3:])})
		next[c.Player.Position] = core.ThingCell(core.ThingRef{Kind: playerKind, Type: playerType, InstanceID: core.InstanceID(playerVertex[3:])})
		if c.Role != nil {
			next[c.Role.Position] = core.TypeCell(role)
		}
		out = append(out, next)
	}
	if err := it.Err(); err != nil {
		return nil, core.WrapIterateStorage(err)
	}
	return out, nil
}

// prefixUpperBound returns the smallest key strictly greater than every key
// beginning with prefix, the usual "increment the last byte" range-scan
// upper bound.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff: unbounded scan
}

// --- VertexScan -----------------------------------------------------

// VertexScanStep enumerates every stored instance of one of a small set of
// candidate types, backing a standalone Isa whose Thing variable the plan
// never binds through a prior Has/Links edge scan (spec.md §4.3 ThingVertex
// "unbound: open iterator"). Has/Links never need this themselves — they
// already enumerate their own endpoints off an edge scan.
type VertexScanStep struct {
	Position   core.VariablePosition
	Candidates []vertexCandidate

	input   *core.FixedBatch
	cursor  int
	pending []core.Row
	pendIdx int
}

type vertexCandidate struct {
	typ  core.TypeID
	kind core.ThingKind
}

// NewVertexScanStep resolves each candidate type's storage kind up front.
// Attribute candidates are dropped: a bare isa over an attribute variable
// with no owning Has edge cannot recover its value from this reference
// store's content-addressed key encoding (value decoding belongs to the
// concept layer, an external collaborator per spec.md §1), so such a query
// yields no rows for that candidate rather than a row with a garbage value.
func NewVertexScanStep(position core.VariablePosition, candidates ir.TypeSet, types *schema.TypeManager) *VertexScanStep {
	s := &VertexScanStep{Position: position}
	for typ := range candidates {
		t, ok := types.Type(typ)
		if !ok {
			continue
		}
		if t.Kind == core.EntityKind || t.Kind == core.RelationKind {
			s.Candidates = append(s.Candidates, vertexCandidate{typ: typ, kind: t.Kind})
		}
	}
	return s
}

func (s *VertexScanStep) Prepare(ctx *core.ExecutionContext, input *core.FixedBatch) error {
	s.input, s.cursor, s.pending, s.pendIdx = input, 0, nil, 0
	return nil
}

func (s *VertexScanStep) BatchContinue(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.input == nil {
		return nil, nil
	}
	out := core.NewFixedBatch(s.input.Width, core.DefaultBatchCapacity)
	for {
		if err := ctx.Interrupt.Check(); err != nil {
			return nil, err
		}
		if s.pendIdx >= len(s.pending) {
			if s.cursor >= s.input.Len() {
				break
			}
			row := s.input.Get(s.cursor)
			s.cursor++
			matches, err := s.scan(ctx, row)
			if err != nil {
				return nil, err
			}
			s.pending, s.pendIdx = matches, 0
			continue
		}
		if !out.Append(s.pending[s.pendIdx]) {
			break
		}
		s.pendIdx++
	}
	if out.Len() == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *VertexScanStep) scan(ctx *core.ExecutionContext, row core.Row) ([]core.Row, error) {
	var out []core.Row
	for _, cand := range s.Candidates {
		prefix := storage.EncodeObjectVertex(cand.kind, cand.typ, nil)
		end := prefixUpperBound(prefix)
		it := ctx.Snapshot.Iterate(prefix, end)
		for it.Next() {
			if err := ctx.Interrupt.Check(); err != nil {
				it.Close()
				return nil, err
			}
			key := it.Key()
			next := row.Clone()
			next[s.Position] = core.ThingCell(core.ThingRef{Kind: cand.kind, Type: cand.typ, InstanceID: core.InstanceID(key[3:])})
			out = append(out, next)
		}
		err := it.Err()
		it.Close()
		if err != nil {
			return nil, core.WrapIterateStorage(err)
		}
	}
	return out, nil
}

// --- Assignment ---------------------------------------------------------

// AssignmentStep evaluates an ExpressionBinding against each row's bound
// arguments, writing the result into the assigned position.
type AssignmentStep struct {
	Binding   *ir.ExpressionBinding
	Evaluator ExpressionEvaluator

	input  *core.FixedBatch
	cursor int
}

func (s *AssignmentStep) Prepare(ctx *core.ExecutionContext, input *core.FixedBatch) error {
	s.input, s.cursor = input, 0
	return nil
}

func (s *AssignmentStep) BatchContinue(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.input == nil || s.cursor >= s.input.Len() {
		return nil, nil
	}
	out := core.NewFixedBatch(s.input.Width, core.DefaultBatchCapacity)
	for s.cursor < s.input.Len() && !out.Full() {
		row := s.input.Get(s.cursor).Clone()
		s.cursor++
		args := make([]core.Value, len(s.Binding.Arguments))
		for i, v := range s.Binding.Arguments {
			args[i] = row[v.Position].Value
		}
		result, err := s.Evaluator.Evaluate(s.Binding.Expression, args)
		if err != nil {
			return nil, err
		}
		row[s.Binding.Assigned.Position] = core.ValueCell(result)
		out.Append(row)
	}
	if out.Len() == 0 {
		return nil, nil
	}
	return out, nil
}

// --- Check ----------------------------------------------------------------

// CheckStep filters rows by a Comparison constraint, using core.Value's
// cast-coerced ordering (spec.md §4.4 "check"; Domain Stack: spf13/cast
// coercion across value kinds).
type CheckStep struct {
	Comparison *ir.Comparison

	input  *core.FixedBatch
	cursor int
}

func (s *CheckStep) Prepare(ctx *core.ExecutionContext, input *core.FixedBatch) error {
	s.input, s.cursor = input, 0
	return nil
}

func (s *CheckStep) BatchContinue(ctx *core.ExecutionContext) (*core.FixedBatch, error) {
	if s.input == nil || s.cursor >= s.input.Len() {
		return nil, nil
	}
	out := core.NewFixedBatch(s.input.Width, core.DefaultBatchCapacity)
	for s.cursor < s.input.Len() && !out.Full() {
		if err := ctx.Interrupt.Check(); err != nil {
			return nil, err
		}
		row := s.input.Get(s.cursor)
		s.cursor++
		if s.satisfies(row) {
			out.Append(row)
		}
	}
	if out.Len() == 0 {
		return nil, nil
	}
	return out, nil
}

func (s *CheckStep) satisfies(row core.Row) bool {
	left := row[s.Comparison.Left.Position].Value
	right := row[s.Comparison.Right.Position].Value
	cmp := left.Compare(right)
	switch s.Comparison.Op {
	case ir.Eq:
		return cmp == 0
	case ir.Ne:
		return cmp != 0
	case ir.Lt:
		return cmp < 0
	case ir.Le:
		return cmp <= 0
	case ir.Gt:
		return cmp > 0
	case ir.Ge:
		return cmp >= 0
	default:
		return false
	}
}
