package core

// TypeID is the small-integer schema type identifier used throughout the
// key encoding (spec.md §6) and the statistics/planner structures. Kept here
// rather than in package schema so that Row, the lowest-level row-layout
// type, never needs to import the type registry.
type TypeID uint16

// ThingKind distinguishes the four type kinds a Thing variable's candidate
// types may span (spec.md §3). Role-typed things are never user-visible but
// still need a tag so the executor can reject a delete on one (IllegalRoleDelete).
type ThingKind uint8

const (
	EntityKind ThingKind = iota
	RelationKind
	AttributeKind
	RoleKind
)

func (k ThingKind) String() string {
	switch k {
	case EntityKind:
		return "entity"
	case RelationKind:
		return "relation"
	case AttributeKind:
		return "attribute"
	case RoleKind:
		return "role"
	default:
		return "unknown"
	}
}

// InstanceID is the instance-local part of a vertex key: an allocated id for
// objects (entities/relations), or a content-addressed value encoding for
// attributes. Opaque bytes so both allocation strategies share a type.
type InstanceID []byte

// ThingRef identifies one instance: (type-id, instance-id) plus the kind,
// matching spec.md §3's "Instances" definition. ValueKind is only
// meaningful when Kind == AttributeKind — it lets a bare ThingRef produced
// by a match re-derive the attribute vertex key's value-kind prefix byte
// without a round trip through the type registry.
type ThingRef struct {
	Kind       ThingKind
	Type       TypeID
	InstanceID InstanceID
	ValueKind  ValueKind
}

func (t ThingRef) Equal(o ThingRef) bool {
	if t.Kind != o.Kind || t.Type != o.Type {
		return false
	}
	if len(t.InstanceID) != len(o.InstanceID) {
		return false
	}
	for i := range t.InstanceID {
		if t.InstanceID[i] != o.InstanceID[i] {
			return false
		}
	}
	return true
}

// CellKind tags what a Row column currently holds, mirroring the IR's
// Variable categories (Thing / Value / Type / ThingList).
type CellKind uint8

const (
	CellEmpty CellKind = iota
	CellThing
	CellValue
	CellType
	CellThingList
)

// Cell is one column of an answer row. Only the field matching Kind is
// meaningful; the others are zero.
type Cell struct {
	Kind  CellKind
	Thing ThingRef
	Value Value
	Type  TypeID
	List  []ThingRef
}

func ThingCell(t ThingRef) Cell    { return Cell{Kind: CellThing, Thing: t} }
func ValueCell(v Value) Cell       { return Cell{Kind: CellValue, Value: v} }
func TypeCell(t TypeID) Cell       { return Cell{Kind: CellType, Type: t} }
func ThingListCell(l []ThingRef) Cell { return Cell{Kind: CellThingList, List: l} }

func (c Cell) IsEmpty() bool { return c.Kind == CellEmpty }

// Row is a fixed-width answer row: one Cell per variable position in the
// enclosing block's variable registry.
type Row []Cell

// NewRow allocates a row of the given width with every cell empty.
func NewRow(width int) Row {
	return make(Row, width)
}

// Clone deep-copies a row so callers holding a reference across a batch
// boundary (which may be overwritten on the next pull) get an owned copy —
// the "collect helper that deep-copies" spec.md's Design Notes calls for.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for i, c := range r {
		if c.Kind == CellThingList {
			list := make([]ThingRef, len(c.List))
			copy(list, c.List)
			c.List = list
		}
		out[i] = c
	}
	return out
}

// VariablePosition indexes a column within a Row.
type VariablePosition int
