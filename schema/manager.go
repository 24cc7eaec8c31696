package schema

import (
	"encoding/binary"
	"fmt"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/dolthub/typeql-core/core"
)

// Schema edge prefixes, from spec.md §6 ("Sub / Owns / Plays / Relates
// edges | 100..107"). Design Notes §9 calls for the type graph to be
// "arena + index" rather than a pointer graph: every edge below is a key in
// an immutable radix tree (github.com/hashicorp/go-immutable-radix),
// resolved by repeated lookup.
const (
	edgeSub          byte = 100
	edgeSubReverse   byte = 101
	edgeOwns         byte = 102
	edgeOwnsReverse  byte = 103
	edgePlays        byte = 104
	edgePlaysReverse byte = 105
	edgeRelates      byte = 106
	edgeRelatesReverse byte = 107
)

func edgeKey(prefix byte, a, b core.TypeID) []byte {
	buf := make([]byte, 1+2+2)
	buf[0] = prefix
	binary.BigEndian.PutUint16(buf[1:3], uint16(a))
	binary.BigEndian.PutUint16(buf[3:5], uint16(b))
	return buf
}

// TypeManager is the arena of types plus the radix-indexed edge set. The
// arena is just a map keyed by small integer TypeID (Design Notes §9:
// "types identified by small integer ids"); the radix tree holds every
// Sub/Owns/Plays/Relates edge (both directions) as a key with no value
// payload beyond presence.
type TypeManager struct {
	arena  map[core.TypeID]*Type
	roles  map[core.TypeID]*RoleType
	labels map[string]core.TypeID
	edges  *iradix.Tree
	nextID uint16
}

func NewTypeManager() *TypeManager {
	return &TypeManager{
		arena:  make(map[core.TypeID]*Type),
		roles:  make(map[core.TypeID]*RoleType),
		labels: make(map[string]core.TypeID),
		edges:  iradix.New(),
		nextID: 1,
	}
}

// DefineType allocates a new type in the arena.
func (m *TypeManager) DefineType(kind core.ThingKind, label string, vk core.ValueKind, independent bool) core.TypeID {
	id := core.TypeID(m.nextID)
	m.nextID++
	m.arena[id] = &Type{ID: id, Kind: kind, Label: label, ValueKind: vk, Independent: independent}
	m.labels[label] = id
	return id
}

// DefineRole allocates a role type scoped to a relation type.
func (m *TypeManager) DefineRole(relationType core.TypeID, label string) core.TypeID {
	id := core.TypeID(m.nextID)
	m.nextID++
	t := &RoleType{Type: Type{ID: id, Kind: core.RoleKind, Label: label}, RelationType: relationType}
	m.roles[id] = t
	m.arena[id] = &t.Type
	fullLabel := fmt.Sprintf("%s:%s", m.arena[relationType].Label, label)
	m.labels[fullLabel] = id
	return id
}

func (m *TypeManager) Type(id core.TypeID) (*Type, bool) {
	t, ok := m.arena[id]
	return t, ok
}

func (m *TypeManager) Label(label string) (core.TypeID, bool) {
	id, ok := m.labels[label]
	return id, ok
}

func (m *TypeManager) insertEdge(prefix byte, a, b core.TypeID) {
	m.edges, _, _ = m.edges.Insert(edgeKey(prefix, a, b), true)
}

func (m *TypeManager) hasEdge(prefix byte, a, b core.TypeID) bool {
	_, ok := m.edges.Get(edgeKey(prefix, a, b))
	return ok
}

// SetSupertype declares sub as a direct subtype of super.
func (m *TypeManager) SetSupertype(sub, super core.TypeID) {
	m.insertEdge(edgeSub, sub, super)
	m.insertEdge(edgeSubReverse, super, sub)
}

// Supertype returns the direct supertype of t, if any.
func (m *TypeManager) Supertype(t core.TypeID) (core.TypeID, bool) {
	var found core.TypeID
	var ok bool
	prefix := edgeKey(edgeSub, t, 0)[:3]
	m.edges.Root().WalkPrefix(prefix, func(k []byte, v interface{}) bool {
		found = core.TypeID(binary.BigEndian.Uint16(k[3:5]))
		ok = true
		return true
	})
	return found, ok
}

// AncestorsOrSelf walks the subtype chain upward iteratively (arena lookup,
// not pointer chasing) and returns t plus every ancestor, self first.
func (m *TypeManager) AncestorsOrSelf(t core.TypeID) []core.TypeID {
	chain := []core.TypeID{t}
	cur := t
	for {
		parent, ok := m.Supertype(cur)
		if !ok {
			return chain
		}
		chain = append(chain, parent)
		cur = parent
	}
}

// IsSubtypeOrSelf reports whether candidate is ancestor itself or one of
// its (transitive) subtypes.
func (m *TypeManager) IsSubtypeOrSelf(candidate, ancestor core.TypeID) bool {
	for _, a := range m.AncestorsOrSelf(candidate) {
		if a == ancestor {
			return true
		}
	}
	return false
}

// DeclareOwns records that ownerType owns attrType.
func (m *TypeManager) DeclareOwns(ownerType, attrType core.TypeID) {
	m.insertEdge(edgeOwns, ownerType, attrType)
	m.insertEdge(edgeOwnsReverse, attrType, ownerType)
}

// DeclarePlays records that objectType plays roleType.
func (m *TypeManager) DeclarePlays(objectType, roleType core.TypeID) {
	m.insertEdge(edgePlays, objectType, roleType)
	m.insertEdge(edgePlaysReverse, roleType, objectType)
}

// DeclareRelates records that relationType relates roleType.
func (m *TypeManager) DeclareRelates(relationType, roleType core.TypeID) {
	m.insertEdge(edgeRelates, relationType, roleType)
	m.insertEdge(edgeRelatesReverse, roleType, relationType)
}

// AdmitsOwns implements spec.md §4.1's propagation rule: "owns(OwnerType,
// AttrType) admits a pair iff OwnerType — or an ancestor — owns AttrType",
// with the usual covariant reading that owning AttrType also permits any
// subtype of AttrType.
func (m *TypeManager) AdmitsOwns(ownerType, attrType core.TypeID) bool {
	owners := m.AncestorsOrSelf(ownerType)
	attrs := m.AncestorsOrSelf(attrType)
	for _, o := range owners {
		for _, a := range attrs {
			if m.hasEdge(edgeOwns, o, a) {
				return true
			}
		}
	}
	return false
}

// AdmitsPlays reports whether objectType (or an ancestor) plays roleType.
func (m *TypeManager) AdmitsPlays(objectType, roleType core.TypeID) bool {
	for _, o := range m.AncestorsOrSelf(objectType) {
		if m.hasEdge(edgePlays, o, roleType) {
			return true
		}
	}
	return false
}

// AdmitsRelates reports whether relationType (or an ancestor) relates roleType.
func (m *TypeManager) AdmitsRelates(relationType, roleType core.TypeID) bool {
	for _, r := range m.AncestorsOrSelf(relationType) {
		if m.hasEdge(edgeRelates, r, roleType) {
			return true
		}
	}
	return false
}

// OwnedAttributeTypes returns every attribute type ownerType (or an
// ancestor) owns — used by type inference to seed an attribute variable's
// candidate set from an owner-side Has constraint.
func (m *TypeManager) OwnedAttributeTypes(ownerType core.TypeID) []core.TypeID {
	seen := map[core.TypeID]bool{}
	var out []core.TypeID
	for _, o := range m.AncestorsOrSelf(ownerType) {
		m.edges.Root().WalkPrefix(edgeKey(edgeOwns, o, 0)[:3], func(k []byte, v interface{}) bool {
			attr := core.TypeID(binary.BigEndian.Uint16(k[3:5]))
			if !seen[attr] {
				seen[attr] = true
				out = append(out, attr)
			}
			return false
		})
	}
	return out
}

// OwnerTypesOf returns every object type that owns attrType (or a subtype).
func (m *TypeManager) OwnerTypesOf(attrType core.TypeID) []core.TypeID {
	seen := map[core.TypeID]bool{}
	var out []core.TypeID
	for _, a := range m.AncestorsOrSelf(attrType) {
		m.edges.Root().WalkPrefix(edgeKey(edgeOwnsReverse, a, 0)[:3], func(k []byte, v interface{}) bool {
			owner := core.TypeID(binary.BigEndian.Uint16(k[3:5]))
			if !seen[owner] {
				seen[owner] = true
				out = append(out, owner)
			}
			return false
		})
	}
	return out
}

// DeleteType purges id from the arena and drops every edge mentioning it in
// either direction (spec.md §3 Lifecycles: "when a type is removed, its
// counts and all edge-count entries mentioning it are purged" — the schema
// side of that purge; stats.Statistics.PurgeType does the count side).
func (m *TypeManager) DeleteType(id core.TypeID) {
	delete(m.arena, id)
	for label, tid := range m.labels {
		if tid == id {
			delete(m.labels, label)
		}
	}
	prefixes := []byte{edgeSub, edgeSubReverse, edgeOwns, edgeOwnsReverse, edgePlays, edgePlaysReverse, edgeRelates, edgeRelatesReverse}
	var toDelete [][]byte
	for _, p := range prefixes {
		m.edges.Root().WalkPrefix([]byte{p}, func(k []byte, v interface{}) bool {
			if binary.BigEndian.Uint16(k[1:3]) == uint16(id) || binary.BigEndian.Uint16(k[3:5]) == uint16(id) {
				toDelete = append(toDelete, k)
			}
			return false
		})
	}
	for _, k := range toDelete {
		m.edges, _, _ = m.edges.Delete(k)
	}
}

// DirectSubtypes returns the direct subtypes of t (children in the subtype
// tree), read off the SubReverse edges.
func (m *TypeManager) DirectSubtypes(t core.TypeID) []core.TypeID {
	var out []core.TypeID
	prefix := edgeKey(edgeSubReverse, t, 0)[:3]
	m.edges.Root().WalkPrefix(prefix, func(k []byte, v interface{}) bool {
		out = append(out, core.TypeID(binary.BigEndian.Uint16(k[3:5])))
		return false
	})
	return out
}

// SubtypesOrSelf enumerates t and every transitive subtype (BFS over the
// arena-indexed subtype tree, not a pointer graph — Design Notes §9).
func (m *TypeManager) SubtypesOrSelf(t core.TypeID) []core.TypeID {
	seen := map[core.TypeID]bool{t: true}
	out := []core.TypeID{t}
	queue := []core.TypeID{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range m.DirectSubtypes(cur) {
			if !seen[child] {
				seen[child] = true
				out = append(out, child)
				queue = append(queue, child)
			}
		}
	}
	return out
}

// TypesOfKind lists every defined type of the given kind — the universe a
// variable with no narrowing constraint defaults to.
func (m *TypeManager) TypesOfKind(kind core.ThingKind) []core.TypeID {
	var out []core.TypeID
	for id, t := range m.arena {
		if t.Kind == kind {
			out = append(out, id)
		}
	}
	return out
}
