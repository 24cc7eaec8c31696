package schema

import (
	"encoding/binary"

	"github.com/mitchellh/hashstructure"
	uuid "github.com/satori/go.uuid"

	"github.com/dolthub/typeql-core/core"
)

// NewObjectInstanceID allocates a fresh instance-id for an entity or
// relation. Objects are not content-addressed (spec.md §3: two inserts of
// "the same" object still produce two instances), so each PutObject gets an
// independent v4 UUID rather than a value derived from its fields.
func NewObjectInstanceID() core.InstanceID {
	id := uuid.NewV4()
	return core.InstanceID(id.Bytes())
}

// AttributeValueID derives the content-addressed instance-id for an
// attribute value: two attributes of the same type with the same value
// must resolve to the same instance-id (spec.md §3 invariant, Testable
// Property 3 "Insert idempotence"). hashstructure hashes arbitrary Go
// values (bool/int64/float64/string/time.Time here) into a stable uint64,
// which we encode big-endian so instance-ids still sort consistently with
// the rest of the key encoding.
func AttributeValueID(v core.Value) (core.InstanceID, error) {
	h, err := hashstructure.Hash(v.Data, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, h)
	return core.InstanceID(buf), nil
}
