// Package typeinfer implements spec.md §4.1: given a block and the
// variable annotations inherited from upstream stages, it computes a
// variable annotation map (finite candidate type set per variable) and a
// constraint annotation map (compatible type combinations per constraint),
// iterating to a fixed point and failing with NoCandidateTypes if any
// variable resolves to the empty set.
package typeinfer

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/ir"
	"github.com/dolthub/typeql-core/schema"
)

// HasAnnotation is the constraint annotation map entry for a Has
// constraint: a left-filtered and right-filtered table mapping owner-type
// → set of attribute-types and vice versa (spec.md §4.1).
type HasAnnotation struct {
	OwnerToAttr map[core.TypeID]ir.TypeSet
	AttrToOwner map[core.TypeID]ir.TypeSet
}

// LinksAnnotation is the three-way equivalent for a Links constraint.
type LinksAnnotation struct {
	RelationToRole map[core.TypeID]ir.TypeSet
	RoleToRelation map[core.TypeID]ir.TypeSet
	PlayerToRole   map[core.TypeID]ir.TypeSet
	RoleToPlayer   map[core.TypeID]ir.TypeSet
}

// Annotations is the result of inferring one block.
type Annotations struct {
	Variables   map[*ir.Variable]ir.TypeSet
	HasInfo     map[int]*HasAnnotation
	LinksInfo   map[int]*LinksAnnotation
}

func newAnnotations() *Annotations {
	return &Annotations{
		Variables: make(map[*ir.Variable]ir.TypeSet),
		HasInfo:   make(map[int]*HasAnnotation),
		LinksInfo: make(map[int]*LinksAnnotation),
	}
}

// defaultThingKinds is the universe a Thing variable starts from before
// any narrowing constraint applies: every object/attribute kind,
// since a bare Thing variable with no Isa could in principle be any of
// them. Role-kind types are intentionally excluded from this default — a
// role only enters a variable's candidate set via an explicit Links/Relates
// role position (spec.md §3: "Role-type instances cannot be surfaced as
// user-visible things").
var defaultThingKinds = []core.ThingKind{core.EntityKind, core.RelationKind, core.AttributeKind}

func universe(types *schema.TypeManager, kinds []core.ThingKind) ir.TypeSet {
	s := make(ir.TypeSet)
	for _, k := range kinds {
		for _, id := range types.TypesOfKind(k) {
			s.Add(id)
		}
	}
	return s
}

// Infer runs type inference over block, seeding from upstream (variables
// already annotated by a prior pipeline stage) and the schema's type
// manager. Returns ErrNoCandidateTypes for the first variable that resolves
// empty.
func Infer(block *ir.Block, types *schema.TypeManager, upstream map[*ir.Variable]ir.TypeSet, funcs *ir.FunctionRegistry) (*Annotations, error) {
	ann := newAnnotations()

	for _, v := range block.Registry.Variables() {
		if up, ok := upstream[v]; ok {
			ann.Variables[v] = cloneSet(up)
			continue
		}
		switch v.Category {
		case ir.CategoryThing:
			ann.Variables[v] = universe(types, defaultThingKinds)
		case ir.CategoryType:
			ann.Variables[v] = universe(types, []core.ThingKind{core.EntityKind, core.RelationKind, core.AttributeKind, core.RoleKind})
		default:
			ann.Variables[v] = nil // Value/List categories are not type-set narrowed here
		}
	}

	const maxIterations = 64
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for _, c := range block.Constraints {
			c2, err := applyConstraint(c, types, ann, funcs)
			if err != nil {
				return nil, err
			}
			if c2 {
				changed = true
			}
		}
		for _, nested := range block.Nested {
			nestedUpstream := mergeUpstream(upstream, ann.Variables)
			nestedAnn, err := Infer(nested.Body, types, nestedUpstream, funcs)
			if err != nil {
				return nil, err
			}
			for v, set := range nestedAnn.Variables {
				if _, owned := ann.Variables[v]; owned && set != nil {
					before := len(ann.Variables[v])
					ann.Variables[v] = ann.Variables[v].Intersect(set)
					if len(ann.Variables[v]) != before {
						changed = true
					}
				}
			}
		}
		if !changed {
			break
		}
	}

	for _, v := range block.Registry.Variables() {
		set := ann.Variables[v]
		if v.Category == ir.CategoryThing || v.Category == ir.CategoryType {
			if len(set) == 0 {
				return nil, core.ErrNoCandidateTypes.New(v.Name)
			}
		}
	}
	return ann, nil
}

func cloneSet(s ir.TypeSet) ir.TypeSet {
	if s == nil {
		return nil
	}
	out := make(ir.TypeSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

func mergeUpstream(outer map[*ir.Variable]ir.TypeSet, inner map[*ir.Variable]ir.TypeSet) map[*ir.Variable]ir.TypeSet {
	out := make(map[*ir.Variable]ir.TypeSet, len(outer)+len(inner))
	for k, v := range outer {
		out[k] = v
	}
	for k, v := range inner {
		if v != nil {
			out[k] = v
		}
	}
	return out
}

// applyConstraint narrows the variable annotation map by one constraint,
// reporting whether anything changed so the fixed-point loop can detect
// convergence.
func applyConstraint(c ir.Constraint, types *schema.TypeManager, ann *Annotations, funcs *ir.FunctionRegistry) (bool, error) {
	switch con := c.(type) {
	case *ir.Isa:
		return applyIsa(con, types, ann)
	case *ir.Sub:
		return applySub(con, types, ann)
	case *ir.Label:
		return applyLabel(con, types, ann)
	case *ir.Has:
		return applyHas(con, types, ann)
	case *ir.Links:
		return applyLinks(con, types, ann)
	case *ir.Owns:
		return applyOwns(con, types, ann)
	case *ir.Relates:
		return applyRelates(con, types, ann)
	case *ir.Plays:
		return applyPlays(con, types, ann)
	case *ir.FunctionCallBinding:
		return applyFunctionCall(con, funcs, ann)
	default:
		// Comparison / ExpressionBinding / RoleName: no type-set narrowing
		// beyond what inference of the operands' own constraints already
		// produced (spec.md §4.1 only names Isa/Sub/Label/Owns/Relates/
		// Plays/Has/Links as type-propagating constraints).
		return false, nil
	}
}

func intersectInto(ann *Annotations, v *ir.Variable, with ir.TypeSet) bool {
	if v == nil {
		return false
	}
	cur := ann.Variables[v]
	if cur == nil {
		ann.Variables[v] = cloneSet(with)
		return len(with) > 0
	}
	before := len(cur)
	next := cur.Intersect(with)
	ann.Variables[v] = next
	return len(next) != before
}

func applyIsa(c *ir.Isa, types *schema.TypeManager, ann *Annotations) (bool, error) {
	var candidates ir.TypeSet
	if c.TypeLabel != "" {
		id, ok := types.Label(c.TypeLabel)
		if !ok {
			return false, core.ErrIncompatibleTypes.New("isa")
		}
		candidates = ir.NewTypeSet(types.SubtypesOrSelf(id)...)
	} else if c.Type != nil {
		typeSet := ann.Variables[c.Type]
		merged := make(ir.TypeSet)
		for id := range typeSet {
			for _, s := range types.SubtypesOrSelf(id) {
				merged.Add(s)
			}
		}
		candidates = merged
	}
	return intersectInto(ann, c.Thing, candidates), nil
}

func applySub(c *ir.Sub, types *schema.TypeManager, ann *Annotations) (bool, error) {
	superSet := ann.Variables[c.Super]
	subCandidates := make(ir.TypeSet)
	for id := range superSet {
		for _, s := range types.SubtypesOrSelf(id) {
			subCandidates.Add(s)
		}
	}
	changedSub := intersectInto(ann, c.Sub, subCandidates)

	subSet := ann.Variables[c.Sub]
	superCandidates := make(ir.TypeSet)
	for id := range subSet {
		for _, s := range types.AncestorsOrSelf(id) {
			superCandidates.Add(s)
		}
	}
	changedSuper := intersectInto(ann, c.Super, superCandidates)
	return changedSub || changedSuper, nil
}

func applyLabel(c *ir.Label, types *schema.TypeManager, ann *Annotations) (bool, error) {
	id, ok := types.Label(c.Label)
	if !ok {
		return false, core.ErrIncompatibleTypes.New(c.Label)
	}
	return intersectInto(ann, c.Type, ir.NewTypeSet(id)), nil
}

func applyHas(c *ir.Has, types *schema.TypeManager, ann *Annotations) (bool, error) {
	owners := ann.Variables[c.Owner]
	attrs := ann.Variables[c.Attribute]

	info := &HasAnnotation{OwnerToAttr: map[core.TypeID]ir.TypeSet{}, AttrToOwner: map[core.TypeID]ir.TypeSet{}}
	validOwners := make(ir.TypeSet)
	validAttrs := make(ir.TypeSet)

	for o := range owners {
		ownedAttrs := make(ir.TypeSet)
		for a := range attrs {
			if types.AdmitsOwns(o, a) {
				ownedAttrs.Add(a)
				validAttrs.Add(a)
				if info.AttrToOwner[a] == nil {
					info.AttrToOwner[a] = make(ir.TypeSet)
				}
				info.AttrToOwner[a].Add(o)
			}
		}
		if len(ownedAttrs) > 0 {
			info.OwnerToAttr[o] = ownedAttrs
			validOwners.Add(o)
		}
	}
	ann.HasInfo[c.ConstraintID()] = info

	changedOwner := intersectInto(ann, c.Owner, validOwners)
	changedAttr := intersectInto(ann, c.Attribute, validAttrs)
	return changedOwner || changedAttr, nil
}

func applyLinks(c *ir.Links, types *schema.TypeManager, ann *Annotations) (bool, error) {
	relations := ann.Variables[c.Relation]
	players := ann.Variables[c.Player]

	var roles ir.TypeSet
	if c.RoleLabel != "" {
		if id, ok := types.Label(c.RoleLabel); ok {
			roles = ir.NewTypeSet(types.SubtypesOrSelf(id)...)
		} else {
			roles = ir.TypeSet{}
		}
	} else if c.Role != nil {
		roles = ann.Variables[c.Role]
	} else {
		roles = universe(types, []core.ThingKind{core.RoleKind})
	}

	info := &LinksAnnotation{
		RelationToRole: map[core.TypeID]ir.TypeSet{}, RoleToRelation: map[core.TypeID]ir.TypeSet{},
		PlayerToRole: map[core.TypeID]ir.TypeSet{}, RoleToPlayer: map[core.TypeID]ir.TypeSet{},
	}
	validRelations := make(ir.TypeSet)
	validPlayers := make(ir.TypeSet)
	validRoles := make(ir.TypeSet)

	for rel := range relations {
		for role := range roles {
			if !types.AdmitsRelates(rel, role) {
				continue
			}
			for player := range players {
				if !types.AdmitsPlays(player, role) {
					continue
				}
				validRelations.Add(rel)
				validPlayers.Add(player)
				validRoles.Add(role)
				addTo(info.RelationToRole, rel, role)
				addTo(info.RoleToRelation, role, rel)
				addTo(info.PlayerToRole, player, role)
				addTo(info.RoleToPlayer, role, player)
			}
		}
	}
	ann.LinksInfo[c.ConstraintID()] = info

	changed := intersectInto(ann, c.Relation, validRelations)
	changed = intersectInto(ann, c.Player, validPlayers) || changed
	if c.Role != nil {
		changed = intersectInto(ann, c.Role, validRoles) || changed
	}
	return changed, nil
}

func addTo(m map[core.TypeID]ir.TypeSet, k, v core.TypeID) {
	if m[k] == nil {
		m[k] = make(ir.TypeSet)
	}
	m[k].Add(v)
}

func applyOwns(c *ir.Owns, types *schema.TypeManager, ann *Annotations) (bool, error) {
	owners := ann.Variables[c.Owner]
	attrs := ann.Variables[c.Attr]
	validOwners, validAttrs := make(ir.TypeSet), make(ir.TypeSet)
	for o := range owners {
		for a := range attrs {
			if types.AdmitsOwns(o, a) {
				validOwners.Add(o)
				validAttrs.Add(a)
			}
		}
	}
	changed := intersectInto(ann, c.Owner, validOwners)
	changed = intersectInto(ann, c.Attr, validAttrs) || changed
	return changed, nil
}

func applyRelates(c *ir.Relates, types *schema.TypeManager, ann *Annotations) (bool, error) {
	relations := ann.Variables[c.Relation]
	roles := ann.Variables[c.Role]
	validRel, validRole := make(ir.TypeSet), make(ir.TypeSet)
	for r := range relations {
		for role := range roles {
			if types.AdmitsRelates(r, role) {
				validRel.Add(r)
				validRole.Add(role)
			}
		}
	}
	changed := intersectInto(ann, c.Relation, validRel)
	changed = intersectInto(ann, c.Role, validRole) || changed
	return changed, nil
}

func applyPlays(c *ir.Plays, types *schema.TypeManager, ann *Annotations) (bool, error) {
	objects := ann.Variables[c.Object]
	roles := ann.Variables[c.Role]
	validObj, validRole := make(ir.TypeSet), make(ir.TypeSet)
	for o := range objects {
		for role := range roles {
			if types.AdmitsPlays(o, role) {
				validObj.Add(o)
				validRole.Add(role)
			}
		}
	}
	changed := intersectInto(ann, c.Object, validObj)
	changed = intersectInto(ann, c.Role, validRole) || changed
	return changed, nil
}

func applyFunctionCall(c *ir.FunctionCallBinding, funcs *ir.FunctionRegistry, ann *Annotations) (bool, error) {
	sig, ok := funcs.Lookup(c.FunctionID)
	if !ok {
		return false, core.ErrUnresolvedFunction.New(c.FunctionID)
	}
	if err := ir.CheckCall(sig, c.Arguments, c.Assigned); err != nil {
		return false, err
	}
	// Only the call's arity is checked here. The function body is
	// type-inferred on its own at compile time in package pipeline, and its
	// return-value type sets are not merged into Assigned: the assigned
	// variables keep the candidate sets their category and the block's
	// other constraints give them.
	return false, nil
}
