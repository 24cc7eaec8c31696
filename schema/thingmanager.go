package schema

import (
	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/storage"
)

// ThingManager is the reference implementation of core.ThingManagerAPI: it
// translates the write executors' vertex/edge operations into the §6 key
// encoding and issues them against a snapshot's Writable capability,
// maintaining the has/has_reverse and role-player/role-player-reverse
// mirroring invariant (spec.md §3).
type ThingManager struct {
	Types    *TypeManager
	Snapshot core.Readable
	Writer   core.Writable
}

func NewThingManager(types *TypeManager, snapshot core.Readable, writer core.Writable) *ThingManager {
	return &ThingManager{Types: types, Snapshot: snapshot, Writer: writer}
}

// AllocateObject implements PutObject: a fresh entity/relation instance
// always gets a new id, so the vertex key is written unconditionally.
func (tm *ThingManager) AllocateObject(kind core.ThingKind, typ core.TypeID) (core.ThingRef, error) {
	if kind != core.EntityKind && kind != core.RelationKind {
		panic("schema: AllocateObject requires entity or relation kind")
	}
	id := NewObjectInstanceID()
	ref := core.ThingRef{Kind: kind, Type: typ, InstanceID: id}
	key := storage.EncodeObjectVertex(kind, typ, id)
	if err := tm.Writer.Insert(key, nil); err != nil {
		return core.ThingRef{}, err
	}
	return ref, nil
}

// PutAttribute implements PutAttribute: content-addressed, idempotent.
// reinsert reports whether the vertex did not already exist (used by
// callers that want to know whether this call actually created the
// instance, e.g. to decide whether to cascade anything).
func (tm *ThingManager) PutAttribute(typ core.TypeID, value core.Value) (core.ThingRef, bool, error) {
	valueID, err := AttributeValueID(value)
	if err != nil {
		return core.ThingRef{}, false, err
	}
	ref := core.ThingRef{Kind: core.AttributeKind, Type: typ, InstanceID: valueID, ValueKind: value.Kind}
	key := storage.EncodeAttributeVertex(value.Kind, typ, valueID)
	_, existed, err := tm.Snapshot.Get(key)
	if err != nil {
		return core.ThingRef{}, false, err
	}
	if err := tm.Writer.PutVal(key, encodeValue(value)); err != nil {
		return core.ThingRef{}, false, err
	}
	return ref, !existed, nil
}

// PutHas implements the Has edge instruction: idempotent put of both the
// forward and reverse edge, keeping them mutually consistent (spec.md §3
// invariant, Testable Property 2).
func (tm *ThingManager) PutHas(owner, attr core.ThingRef) error {
	ownerKey := storage.EncodeObjectVertex(owner.Kind, owner.Type, owner.InstanceID)
	attrKey := storage.EncodeAttributeVertex(attr.ValueKind, attr.Type, attr.InstanceID)
	fwd := storage.EncodeHasEdge(ownerKey, attrKey)
	rev := storage.EncodeHasReverseEdge(attrKey, ownerKey)
	if err := tm.Writer.Put(fwd); err != nil {
		return err
	}
	return tm.Writer.Put(rev)
}

// PutRolePlayer implements the RolePlayer edge instruction.
func (tm *ThingManager) PutRolePlayer(relation, player core.ThingRef, role core.TypeID) error {
	relKey := storage.EncodeObjectVertex(relation.Kind, relation.Type, relation.InstanceID)
	playerKey := storage.EncodeObjectVertex(player.Kind, player.Type, player.InstanceID)
	fwd := storage.EncodeRolePlayerEdge(relKey, playerKey, role)
	rev := storage.EncodeRolePlayerReverseEdge(playerKey, relKey, role)
	if err := tm.Writer.Put(fwd); err != nil {
		return err
	}
	return tm.Writer.Put(rev)
}

// DeleteHas removes both directions of a has edge.
func (tm *ThingManager) DeleteHas(owner, attr core.ThingRef) error {
	ownerKey := storage.EncodeObjectVertex(owner.Kind, owner.Type, owner.InstanceID)
	attrKey := storage.EncodeAttributeVertex(attr.ValueKind, attr.Type, attr.InstanceID)
	if err := tm.Writer.Delete(storage.EncodeHasEdge(ownerKey, attrKey)); err != nil {
		return err
	}
	return tm.Writer.Delete(storage.EncodeHasReverseEdge(attrKey, ownerKey))
}

// DeleteRolePlayer removes both directions of a role-player edge.
func (tm *ThingManager) DeleteRolePlayer(relation, player core.ThingRef, role core.TypeID) error {
	relKey := storage.EncodeObjectVertex(relation.Kind, relation.Type, relation.InstanceID)
	playerKey := storage.EncodeObjectVertex(player.Kind, player.Type, player.InstanceID)
	if err := tm.Writer.Delete(storage.EncodeRolePlayerEdge(relKey, playerKey, role)); err != nil {
		return err
	}
	return tm.Writer.Delete(storage.EncodeRolePlayerReverseEdge(playerKey, relKey, role))
}

// DeleteThing removes a vertex outright. Callers are responsible for first
// cascading edges that reference it (spec.md §4.7: "Processes edges first,
// then vertices").
func (tm *ThingManager) DeleteThing(t core.ThingRef) error {
	var key []byte
	switch t.Kind {
	case core.AttributeKind:
		key = storage.EncodeAttributeVertex(t.ValueKind, t.Type, t.InstanceID)
	default:
		key = storage.EncodeObjectVertex(t.Kind, t.Type, t.InstanceID)
	}
	return tm.Writer.Delete(key)
}

func encodeValue(v core.Value) []byte {
	// A minimal, deterministic encoding sufficient for the reference store;
	// real value encoding lives in the concept layer (out of scope, §1).
	switch v.Kind {
	case core.ValueKindString:
		return []byte(v.Data.(string))
	default:
		id, _ := AttributeValueID(v)
		return id
	}
}
