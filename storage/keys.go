// Package storage specifies the external storage interface this core
// consumes (spec.md §6) and the bit-exact key-encoding prefix layout the
// statistics engine and planner route on. The storage engine itself — the
// MVCC key-value store — is an external collaborator (spec.md §1); this
// package only fixes the wire contract and, in boltstore, provides one
// concrete reference implementation used by tests.
package storage

import (
	"encoding/binary"

	"github.com/dolthub/typeql-core/core"
)

// Prefix bytes, copied verbatim from spec.md §6's key-encoding table. The
// statistics engine's update_write routes purely on these prefixes, so they
// must stay bit-exact.
const (
	PrefixEntityVertex   byte = 30
	PrefixRelationVertex byte = 31

	// Attribute vertices occupy a range, one prefix byte per value kind.
	PrefixAttributeVertexBooleanBase byte = 50

	PrefixHasEdge            byte = 130
	PrefixHasReverseEdge     byte = 131
	PrefixRolePlayerEdge     byte = 132
	PrefixRolePlayerReverse  byte = 133
	PrefixRelationIndex      byte = 140

	PrefixEntityType   byte = 10
	PrefixRelationType byte = 11
	PrefixAttributeType byte = 12
	PrefixRoleType      byte = 15
)

// AttributeVertexPrefix returns the prefix byte for an attribute vertex of
// the given value kind (spec.md §6: "50..99 (per value kind)").
func AttributeVertexPrefix(kind core.ValueKind) byte {
	return PrefixAttributeVertexBooleanBase + byte(kind)
}

// IsAttributeVertexPrefix reports whether b falls in the attribute-vertex
// prefix range.
func IsAttributeVertexPrefix(b byte) bool {
	return b >= 50 && b <= 99
}

func putTypeID(buf []byte, t core.TypeID) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(t))
	return append(buf, tmp[:]...)
}

func getTypeID(b []byte) core.TypeID {
	return core.TypeID(binary.BigEndian.Uint16(b))
}

// EncodeObjectVertex builds an entity/relation vertex key: prefix ‖
// type-id ‖ instance-id.
func EncodeObjectVertex(kind core.ThingKind, typ core.TypeID, instanceID []byte) []byte {
	var prefix byte
	switch kind {
	case core.EntityKind:
		prefix = PrefixEntityVertex
	case core.RelationKind:
		prefix = PrefixRelationVertex
	default:
		panic("storage: EncodeObjectVertex requires entity or relation kind")
	}
	buf := make([]byte, 0, 1+2+len(instanceID))
	buf = append(buf, prefix)
	buf = putTypeID(buf, typ)
	buf = append(buf, instanceID...)
	return buf
}

// EncodeAttributeVertex builds an attribute vertex key: value-kind-prefix ‖
// type-id ‖ value-id, where value-id is the content-addressed encoding of
// the attribute's value.
func EncodeAttributeVertex(valueKind core.ValueKind, typ core.TypeID, valueID []byte) []byte {
	buf := make([]byte, 0, 1+2+len(valueID))
	buf = append(buf, AttributeVertexPrefix(valueKind))
	buf = putTypeID(buf, typ)
	buf = append(buf, valueID...)
	return buf
}

// EncodeHasEdge builds a `has` forward edge key: object-vertex ‖ attribute-vertex.
func EncodeHasEdge(object, attribute []byte) []byte {
	return concat(PrefixHasEdge, object, attribute)
}

// EncodeHasReverseEdge builds the reverse `has_reverse` edge key.
func EncodeHasReverseEdge(attribute, object []byte) []byte {
	return concat(PrefixHasReverseEdge, attribute, object)
}

// EncodeRolePlayerEdge builds a role-player edge key: relation ‖ player ‖ role-type-id.
func EncodeRolePlayerEdge(relation, player []byte, role core.TypeID) []byte {
	buf := concat(PrefixRolePlayerEdge, relation, player)
	return putTypeID(buf, role)
}

// EncodeRolePlayerReverseEdge builds the reverse role-player edge key.
func EncodeRolePlayerReverseEdge(player, relation []byte, role core.TypeID) []byte {
	buf := concat(PrefixRolePlayerReverse, player, relation)
	return putTypeID(buf, role)
}

// EncodeRolePlayerEdgePrefix builds a role-player forward-edge scan prefix
// covering relation, optionally narrowed to one player, leaving the
// trailing role-type-id open for a range scan (player may be nil).
func EncodeRolePlayerEdgePrefix(relation, player []byte) []byte {
	return concat(PrefixRolePlayerEdge, relation, player)
}

// EncodeRolePlayerReverseEdgePrefix is the reverse-edge analog, keyed from
// player optionally narrowed to one relation (relation may be nil).
func EncodeRolePlayerReverseEdgePrefix(player, relation []byte) []byte {
	return concat(PrefixRolePlayerReverse, player, relation)
}

// EncodeRelationIndex builds the materialized two-player relation-index key.
func EncodeRelationIndex(from, to, relation []byte, fromRole, toRole core.TypeID) []byte {
	buf := concat(PrefixRelationIndex, from, to)
	buf = append(buf, relation...)
	buf = putTypeID(buf, fromRole)
	buf = putTypeID(buf, toRole)
	return buf
}

func concat(prefix byte, parts ...[]byte) []byte {
	n := 1
	for _, p := range parts {
		n += len(p)
	}
	buf := make([]byte, 0, n)
	buf = append(buf, prefix)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

// DecodedVertexType extracts the type-id immediately following the prefix
// byte, valid for any vertex key (object or attribute).
func DecodedVertexType(key []byte) core.TypeID {
	return getTypeID(key[1:3])
}

// Vertex keys are fixed-width: objects carry a 16-byte v4 UUID instance-id
// (schema.NewObjectInstanceID), attributes an 8-byte big-endian
// content-address (schema.AttributeValueID). Edge keys concatenate whole
// vertex keys with no length prefix, so decoding an edge back into its
// endpoint vertices relies on these widths being fixed, not on a delimiter.
const (
	objectInstanceIDLen    = 16
	attributeInstanceIDLen = 8

	ObjectVertexLen    = 1 + 2 + objectInstanceIDLen
	AttributeVertexLen = 1 + 2 + attributeInstanceIDLen
)

// VertexKindAndType classifies a whole vertex key (object or attribute) by
// its leading prefix byte and returns its type-id.
func VertexKindAndType(vertexKey []byte) (core.ThingKind, core.TypeID) {
	p := vertexKey[0]
	switch {
	case p == PrefixEntityVertex:
		return core.EntityKind, DecodedVertexType(vertexKey)
	case p == PrefixRelationVertex:
		return core.RelationKind, DecodedVertexType(vertexKey)
	case IsAttributeVertexPrefix(p):
		return core.AttributeKind, DecodedVertexType(vertexKey)
	default:
		panic("storage: VertexKindAndType called on a non-vertex key")
	}
}

// DecodeHasEdge splits a has-edge key back into its owner and attribute
// vertex keys.
func DecodeHasEdge(key []byte) (ownerVertex, attrVertex []byte) {
	return key[1 : 1+ObjectVertexLen], key[1+ObjectVertexLen:]
}

// DecodeHasReverseEdge splits a has_reverse edge key into attribute and
// owner vertex keys.
func DecodeHasReverseEdge(key []byte) (attrVertex, ownerVertex []byte) {
	return key[1 : 1+AttributeVertexLen], key[1+AttributeVertexLen:]
}

// DecodeRolePlayerEdge splits a role-player edge key into its relation
// vertex, player vertex, and role type-id.
func DecodeRolePlayerEdge(key []byte) (relationVertex, playerVertex []byte, role core.TypeID) {
	relationVertex = key[1 : 1+ObjectVertexLen]
	rest := key[1+ObjectVertexLen:]
	playerVertex = rest[:ObjectVertexLen]
	role = getTypeID(rest[ObjectVertexLen:])
	return
}

// DecodeRolePlayerReverseEdge splits a role-player reverse edge key into
// player vertex, relation vertex, and role type-id.
func DecodeRolePlayerReverseEdge(key []byte) (playerVertex, relationVertex []byte, role core.TypeID) {
	playerVertex = key[1 : 1+ObjectVertexLen]
	rest := key[1+ObjectVertexLen:]
	relationVertex = rest[:ObjectVertexLen]
	role = getTypeID(rest[ObjectVertexLen:])
	return
}

// DecodeRelationIndex splits a materialized relation-index key into its two
// player vertices, the relation vertex, and both role type-ids.
func DecodeRelationIndex(key []byte) (fromVertex, toVertex, relationVertex []byte, fromRole, toRole core.TypeID) {
	fromVertex = key[1 : 1+ObjectVertexLen]
	rest := key[1+ObjectVertexLen:]
	toVertex = rest[:ObjectVertexLen]
	rest = rest[ObjectVertexLen:]
	relationVertex = rest[:ObjectVertexLen]
	rest = rest[ObjectVertexLen:]
	fromRole = getTypeID(rest[0:2])
	toRole = getTypeID(rest[2:4])
	return
}
