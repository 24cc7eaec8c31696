// Package schema is the type registry consumed by type inference, the
// planner, and the write executors: type kinds, subtype trees, and
// owns/plays/relates declarations (spec.md §3 "Type kinds"). It also
// allocates instance-ids for newly inserted objects and content-addresses
// attribute values (spec.md §3 "Instances"). The schema/type manager and
// concept layer proper are external collaborators per spec.md §1; this
// package is the minimal in-memory reference implementation the rest of the
// core is written against.
package schema

import "github.com/dolthub/typeql-core/core"

// Type describes one schema type. Kind reuses core.ThingKind since the two
// enumerations are the same four kinds (Entity/Relation/Attribute/Role).
type Type struct {
	ID          core.TypeID
	Kind        core.ThingKind
	Label       string
	ValueKind   core.ValueKind // meaningful only when Kind == AttributeKind
	Independent bool           // meaningful only when Kind == AttributeKind
}

// RoleType is a role type label scoped to a relation type declaration, e.g.
// "membership:member". Roles get their own TypeID like any other type but
// are never user-visible as an answer (spec.md §3 invariants).
type RoleType struct {
	Type
	RelationType core.TypeID
}
