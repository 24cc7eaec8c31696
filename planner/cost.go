// Package planner costs and orders the constraints of a match block
// (spec.md §4.3). Each Thing variable and each Has/Links constraint is
// modeled as a vertex with a VertexCost; the planner picks a permutation of
// constraints, and per constraint which side is already bound, to minimize
// cumulative expected work.
package planner

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/schema"
	"github.com/dolthub/typeql-core/stats"
	"github.com/dolthub/typeql-core/typeinfer"
)

// Relative per-step costs, ported from the vertex cost model: opening a new
// iterator is modeled as 5x the cost of advancing an existing one.
const (
	openIteratorRelativeCost    = 5.0
	advanceIteratorRelativeCost = 1.0
)

// VertexCost is spec.md §4.3's per-vertex cost triple.
type VertexCost struct {
	PerInput        float64
	PerOutput       float64
	BranchingFactor float64
}

// ThingVertex costs a single Thing variable: unbound, it is an open iterator
// over its expected instance count; bound, the cost collapses to an
// already-materialized single row.
type ThingVertex struct {
	Variable     *ir.Variable
	ExpectedSize float64
}

// NewThingVertex sums the statistics instance count over every candidate
// type type inference assigned to variable (ThingPlanner::from_variable).
func NewThingVertex(variable *ir.Variable, candidates ir.TypeSet, types *schema.TypeManager, statistics *stats.Statistics) *ThingVertex {
	var expected float64
	for typeID := range candidates {
		t, ok := types.Type(typeID)
		if !ok {
			continue
		}
		switch t.Kind {
		case core.EntityKind:
			expected += float64(statistics.EntityCounts[typeID])
		case core.RelationKind:
			expected += float64(statistics.RelationCounts[typeID])
		case core.AttributeKind:
			expected += float64(statistics.AttributeCounts[typeID])
		}
	}
	return &ThingVertex{Variable: variable, ExpectedSize: expected}
}

func (t *ThingVertex) Cost(bound map[*ir.Variable]bool) VertexCost {
	if bound[t.Variable] {
		return VertexCost{PerInput: 0, PerOutput: 0, BranchingFactor: 1}
	}
	return VertexCost{PerInput: openIteratorRelativeCost, PerOutput: advanceIteratorRelativeCost, BranchingFactor: t.ExpectedSize}
}

// HasVertex costs a Has constraint over its owner and attribute Thing
// vertices, choosing the cheaper unbound traversal direction when neither
// side is yet bound (spec.md §4.3).
type HasVertex struct {
	Constraint *ir.Has
	Owner      *ThingVertex
	Attribute  *ThingVertex

	expectedSize        float64
	expectedUnboundSize float64
	UnboundIsForward    bool
}

// NewHasVertex derives a HasVertex's expected sizes from the HasAnnotation
// type inference produced and the statistics co-occurrence tables.
func NewHasVertex(c *ir.Has, owner, attribute *ThingVertex, ann *typeinfer.HasAnnotation, statistics *stats.Statistics) *HasVertex {
	var expectedSize float64
	if ann != nil {
		for ownerType, attrs := range ann.OwnerToAttr {
			for attrType := range attrs {
				expectedSize += float64(statistics.HasCount(ownerType, attrType))
			}
		}
	}

	var unboundForward float64
	if ann != nil {
		for ownerType := range ann.OwnerToAttr {
			for _, count := range statistics.Has[ownerType] {
				unboundForward += float64(count)
			}
		}
	}

	var unboundBackward float64
	if ann != nil {
		for attrType := range ann.AttrToOwner {
			for _, count := range statistics.HasReverse[attrType] {
				unboundBackward += float64(count)
			}
		}
	}

	expectedUnbound := unboundForward
	forward := true
	if unboundBackward < unboundForward {
		expectedUnbound = unboundBackward
		forward = false
	}

	return &HasVertex{
		Constraint: c, Owner: owner, Attribute: attribute,
		expectedSize: expectedSize, expectedUnboundSize: expectedUnbound, UnboundIsForward: forward,
	}
}

func (h *HasVertex) Cost(bound map[*ir.Variable]bool) VertexCost {
	ownerBound := bound[h.Owner.Variable]
	attrBound := bound[h.Attribute.Variable]

	perInput := openIteratorRelativeCost
	var perOutput float64
	switch {
	case ownerBound && attrBound:
		perOutput = 0
	case !ownerBound && !attrBound:
		if h.expectedSize != 0 {
			perOutput = advanceIteratorRelativeCost * h.expectedUnboundSize / h.expectedSize
		}
	default:
		perOutput = advanceIteratorRelativeCost
	}

	var branching float64
	switch {
	case ownerBound && attrBound:
		branching = safeDiv(safeDiv(h.expectedSize, h.Owner.ExpectedSize), h.Attribute.ExpectedSize)
	case ownerBound:
		branching = safeDiv(h.expectedSize, h.Owner.ExpectedSize)
	case attrBound:
		branching = safeDiv(h.expectedSize, h.Attribute.ExpectedSize)
	default:
		branching = h.expectedSize
	}
	return VertexCost{PerInput: perInput, PerOutput: perOutput, BranchingFactor: branching}
}

// LinksVertex is the ternary equivalent of HasVertex over relation/player,
// costed the same way (the role side is resolved by type inference, not
// separately bound/unbound in the cost model, since the role candidate set
// has already been narrowed to whatever the relation/player combination
// admits — spec.md §4.3 "Links follows the same pattern").
type LinksVertex struct {
	Constraint *ir.Links
	Relation   *ThingVertex
	Player     *ThingVertex

	expectedSize        float64
	expectedUnboundSize float64
	UnboundIsForward    bool
}

func NewLinksVertex(c *ir.Links, relation, player *ThingVertex, ann *typeinfer.LinksAnnotation, statistics *stats.Statistics) *LinksVertex {
	// expectedSize approximates the joint (relation,role,player) count by
	// summing role-player counts over every admitted (player,role) pair
	// type inference produced, mirroring relation_role_player_counts in
	// the original cost model (a 3-level nested table this codebase
	// flattens into RolePlayer/RelationRole two-level tables).
	var expectedSize float64
	if ann != nil {
		for playerType, roles := range ann.PlayerToRole {
			for roleType := range roles {
				expectedSize += float64(statistics.RolePlayerCount(playerType, roleType))
			}
		}
	}

	var unboundForward float64
	if ann != nil {
		for relationType := range ann.RelationToRole {
			for _, count := range statistics.RelationRole[relationType] {
				unboundForward += float64(count)
			}
		}
	}
	var unboundBackward float64
	if ann != nil {
		for playerType := range ann.PlayerToRole {
			for _, count := range statistics.RolePlayer[playerType] {
				unboundBackward += float64(count)
			}
		}
	}

	expectedUnbound := unboundForward
	forward := true
	if unboundBackward < unboundForward {
		expectedUnbound = unboundBackward
		forward = false
	}

	return &LinksVertex{
		Constraint: c, Relation: relation, Player: player,
		expectedSize: expectedSize, expectedUnboundSize: expectedUnbound, UnboundIsForward: forward,
	}
}

func (l *LinksVertex) Cost(bound map[*ir.Variable]bool) VertexCost {
	relationBound := bound[l.Relation.Variable]
	playerBound := bound[l.Player.Variable]

	perInput := openIteratorRelativeCost
	var perOutput float64
	switch {
	case relationBound && playerBound:
		perOutput = 0
	case !relationBound && !playerBound:
		if l.expectedSize != 0 {
			perOutput = advanceIteratorRelativeCost * l.expectedUnboundSize / l.expectedSize
		}
	default:
		perOutput = advanceIteratorRelativeCost
	}

	var branching float64
	switch {
	case relationBound && playerBound:
		branching = safeDiv(safeDiv(l.expectedSize, l.Relation.ExpectedSize), l.Player.ExpectedSize)
	case relationBound:
		branching = safeDiv(l.expectedSize, l.Relation.ExpectedSize)
	case playerBound:
		branching = safeDiv(l.expectedSize, l.Player.ExpectedSize)
	default:
		branching = l.expectedSize
	}
	return VertexCost{PerInput: perInput, PerOutput: perOutput, BranchingFactor: branching}
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
