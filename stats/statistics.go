// Package stats maintains the cardinality statistics the planner costs
// constraint orderings against (spec.md §4.2): total and per-type instance
// counts, has/has_reverse edge co-occurrence counts, role-player/
// role-player-reverse counts, and the materialized relation-index counts.
// The record is snapshotted at a sequence number and updated incrementally
// from committed writes rather than recomputed from a full scan.
package stats

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dolthub/typeql-core/core"
	"github.com/dolthub/typeql-core/storage"
)

// currentVersion tags the persisted record's layout so a future field
// addition can detect and migrate older blobs (spec.md §4.2 "persistable
// with a version tag").
const currentVersion uint32 = 1

// Statistics is a full snapshot of cardinality counts at AtSequenceNumber.
// All maps are nil-safe to read (a missing key means count zero) and are
// grown lazily by UpdateWrites.
type Statistics struct {
	mu sync.RWMutex

	Version          uint32
	AtSequenceNumber core.SequenceNumber

	TotalEntityCount    int64
	TotalRelationCount  int64
	TotalAttributeCount int64
	TotalRoleCount      int64
	TotalHasCount       int64

	EntityCounts    map[core.TypeID]int64
	RelationCounts  map[core.TypeID]int64
	AttributeCounts map[core.TypeID]int64
	// RoleCounts is role-type → number of role-player edges filling that
	// role, not an instance count — role types have no vertex of their own
	// (spec.md §3: role instances are never surfaced as user-visible
	// things), so this is the closest analogue the planner can cost
	// against.
	RoleCounts map[core.TypeID]int64

	// Has and HasReverse are inverses of each other: owner-type → attr-type
	// → count, and attr-type → owner-type → count.
	Has        map[core.TypeID]map[core.TypeID]int64
	HasReverse map[core.TypeID]map[core.TypeID]int64

	// RolePlayer is player-type → role-type → count; RelationRole is
	// relation-type → role-type → count (spec.md §4.2).
	RolePlayer   map[core.TypeID]map[core.TypeID]int64
	RelationRole map[core.TypeID]map[core.TypeID]int64

	// RelationIndex is player1-type → player2-type → count, the
	// materialized two-player shortcut, symmetric when the two players are
	// different types (an edge between A and B increments both (A,B) and
	// (B,A)).
	RelationIndex map[core.TypeID]map[core.TypeID]int64
}

// New returns an empty statistics record at sequence number zero.
func New() *Statistics {
	return &Statistics{
		Version:         currentVersion,
		EntityCounts:    make(map[core.TypeID]int64),
		RelationCounts:  make(map[core.TypeID]int64),
		AttributeCounts: make(map[core.TypeID]int64),
		RoleCounts:      make(map[core.TypeID]int64),
		Has:             make(map[core.TypeID]map[core.TypeID]int64),
		HasReverse:      make(map[core.TypeID]map[core.TypeID]int64),
		RolePlayer:      make(map[core.TypeID]map[core.TypeID]int64),
		RelationRole:    make(map[core.TypeID]map[core.TypeID]int64),
		RelationIndex:   make(map[core.TypeID]map[core.TypeID]int64),
	}
}

// Commit is one committed snapshot in the ordered batch UpdateWrites
// consumes: its assigned commit sequence number and the snapshot itself.
// The snapshot is read twice — once to enumerate its own buffered writes,
// and potentially again, by a later commit in the same batch, to check
// whether it wrote a particular key (the PUT-delta concurrency check) — so
// this holds the snapshot, not a single-use iterator over it.
type Commit struct {
	Seq      core.SequenceNumber
	Snapshot core.Readable
}

func incr(m map[core.TypeID]map[core.TypeID]int64, a, b core.TypeID, delta int64) {
	inner, ok := m[a]
	if !ok {
		inner = make(map[core.TypeID]int64)
		m[a] = inner
	}
	inner[b] = saturatingAdd(inner[b], delta)
	if inner[b] == 0 {
		delete(inner, b)
	}
	if len(inner) == 0 {
		delete(m, a)
	}
}

// saturatingAdd clamps the result at zero: a decrement past zero is a bug
// in the caller's delta resolution, not a value the record should carry
// (spec.md §4.2 "saturate at zero on decrement").
func saturatingAdd(cur, delta int64) int64 {
	next := cur + delta
	if next < 0 {
		logrus.WithFields(logrus.Fields{"current": cur, "delta": delta}).
			Error("statistics: decrement underflowed, saturating at zero")
		return 0
	}
	return next
}

// UpdateWrites applies every commit in order, deriving a signed delta per
// buffered write and routing it to the matching counter (spec.md §4.2). The
// storage engine is consulted only for the PUT fallback case, which
// requires an authoritative existence check at commit-1. commits must
// already be ordered by ascending Seq (the caller's ordered commit map).
func (s *Statistics) UpdateWrites(commits []Commit, eng core.Engine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(commits) == 0 {
		return nil
	}
	lowestCommitSeq := commits[0].Seq

	for i, c := range commits {
		writes := c.Snapshot.IterateBufferedWrites()
		openSeq := c.Snapshot.OpenSequenceNumber()
		for writes.Next() {
			entry := writes.Entry()
			delta, err := s.resolveDelta(entry, openSeq, c.Seq, lowestCommitSeq, commits, i, eng)
			if err != nil {
				return err
			}
			if delta != 0 {
				s.route(entry.Key, delta)
			}
		}
		if err := writes.Err(); err != nil {
			return core.WrapIterateStorage(err)
		}
		s.AtSequenceNumber = c.Seq
	}
	return nil
}

// anyConcurrentCommitWrote reports whether another commit in the batch,
// strictly between writeOpenSeq and writeCommitSeq (exclusive both ends),
// itself wrote key — ported from write_to_delta's "any commit in the set
// of commits modifies the same key" check.
func anyConcurrentCommitWrote(commits []Commit, self int, writeOpenSeq, writeCommitSeq core.SequenceNumber, key []byte) bool {
	for j, other := range commits {
		if j == self {
			continue
		}
		if other.Seq <= writeOpenSeq || other.Seq >= writeCommitSeq {
			continue
		}
		if snapshotHasBufferedWrite(other.Snapshot, key) {
			return true
		}
	}
	return false
}

func snapshotHasBufferedWrite(snap core.Readable, key []byte) bool {
	it := snap.IterateBufferedWrites()
	for it.Next() {
		if string(it.Entry().Key) == string(key) {
			return true
		}
	}
	return false
}

// resolveDelta implements spec.md §4.2's three-way delta rule, ported from
// write_to_delta: Insert is always +1, Delete always −1, and Put requires
// checking whether a concurrent commit in this batch could have written
// the same key before trusting the writer's own cached reinsert flag.
func (s *Statistics) resolveDelta(entry core.BufferedWrite, writeOpenSeq, writeCommitSeq, lowestCommitSeq core.SequenceNumber, commits []Commit, self int, eng core.Engine) (int64, error) {
	switch entry.Kind {
	case core.WriteInsert:
		return 1, nil
	case core.WriteDelete:
		return -1, nil
	case core.WritePut:
		checkStorage := writeOpenSeq < lowestCommitSeq ||
			anyConcurrentCommitWrote(commits, self, writeOpenSeq, writeCommitSeq, entry.Key)
		if checkStorage {
			existed, err := existsAt(eng, entry.Key, writeCommitSeq.Previous())
			if err != nil {
				return 0, err
			}
			if existed {
				return 0, nil
			}
			return 1, nil
		}
		if entry.Reinsert != nil && entry.Reinsert.Load() {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, nil
	}
}

func existsAt(eng core.Engine, key []byte, at core.SequenceNumber) (bool, error) {
	found, err := eng.GetMapped(key, at, func([]byte) bool { return true })
	if err != nil {
		return false, core.WrapIterateStorage(err)
	}
	return found, nil
}

// route decodes key's prefix and applies delta to the matching counter(s).
func (s *Statistics) route(key []byte, delta int64) {
	if len(key) == 0 {
		return
	}
	switch {
	case key[0] == storage.PrefixEntityVertex:
		typ := storage.DecodedVertexType(key)
		s.EntityCounts[typ] = saturatingAdd(s.EntityCounts[typ], delta)
		s.TotalEntityCount = saturatingAdd(s.TotalEntityCount, delta)
	case key[0] == storage.PrefixRelationVertex:
		typ := storage.DecodedVertexType(key)
		s.RelationCounts[typ] = saturatingAdd(s.RelationCounts[typ], delta)
		s.TotalRelationCount = saturatingAdd(s.TotalRelationCount, delta)
	case storage.IsAttributeVertexPrefix(key[0]):
		typ := storage.DecodedVertexType(key)
		s.AttributeCounts[typ] = saturatingAdd(s.AttributeCounts[typ], delta)
		s.TotalAttributeCount = saturatingAdd(s.TotalAttributeCount, delta)
	case key[0] == storage.PrefixHasEdge:
		owner, attr := storage.DecodeHasEdge(key)
		_, ownerType := storage.VertexKindAndType(owner)
		_, attrType := storage.VertexKindAndType(attr)
		incr(s.Has, ownerType, attrType, delta)
		incr(s.HasReverse, attrType, ownerType, delta)
		s.TotalHasCount = saturatingAdd(s.TotalHasCount, delta)
	case key[0] == storage.PrefixHasReverseEdge:
		// Has and its reverse are written as a matched pair by the write
		// executor (spec.md Testable Property 2); the forward edge above
		// already drives both Has and HasReverse, so the reverse edge
		// itself contributes no separate delta.
	case key[0] == storage.PrefixRolePlayerEdge:
		relation, player, role := storage.DecodeRolePlayerEdge(key)
		_, relationType := storage.VertexKindAndType(relation)
		_, playerType := storage.VertexKindAndType(player)
		incr(s.RolePlayer, playerType, role, delta)
		incr(s.RelationRole, relationType, role, delta)
		s.RoleCounts[role] = saturatingAdd(s.RoleCounts[role], delta)
		s.TotalRoleCount = saturatingAdd(s.TotalRoleCount, delta)
	case key[0] == storage.PrefixRolePlayerReverse:
		// Mirrors the forward role-player edge, written as a matched pair;
		// no separate counter (see the has-edge case above).
	case key[0] == storage.PrefixRelationIndex:
		from, to, _, _, _ := storage.DecodeRelationIndex(key)
		_, fromType := storage.VertexKindAndType(from)
		_, toType := storage.VertexKindAndType(to)
		incr(s.RelationIndex, fromType, toType, delta)
		if fromType != toType {
			incr(s.RelationIndex, toType, fromType, delta)
		}
	case key[0] == storage.PrefixEntityType:
		if delta < 0 {
			s.purgeTypeLocked(storage.DecodedVertexType(key))
		}
	case key[0] == storage.PrefixRelationType:
		if delta < 0 {
			s.purgeTypeLocked(storage.DecodedVertexType(key))
		}
	case key[0] == storage.PrefixAttributeType:
		if delta < 0 {
			s.purgeTypeLocked(storage.DecodedVertexType(key))
		}
	case key[0] == storage.PrefixRoleType:
		if delta < 0 {
			s.purgeTypeLocked(storage.DecodedVertexType(key))
		}
	}
}

// PurgeType drops every counter entry mentioning id, following a type
// definition deletion (spec.md §4.2 "type-definition deletions purge the
// type's counts and all co-occurrence entries mentioning that type").
func (s *Statistics) PurgeType(id core.TypeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeTypeLocked(id)
}

// purgeTypeLocked is PurgeType's body, callable from route() which already
// holds s.mu (via UpdateWrites) and must not re-acquire it.
func (s *Statistics) purgeTypeLocked(id core.TypeID) {
	delete(s.EntityCounts, id)
	delete(s.RelationCounts, id)
	delete(s.AttributeCounts, id)
	delete(s.RoleCounts, id)
	purgeCooccurrence(s.Has, id)
	purgeCooccurrence(s.HasReverse, id)
	purgeCooccurrence(s.RolePlayer, id)
	purgeCooccurrence(s.RelationRole, id)
	purgeCooccurrence(s.RelationIndex, id)
}

func purgeCooccurrence(m map[core.TypeID]map[core.TypeID]int64, id core.TypeID) {
	delete(m, id)
	for a, inner := range m {
		delete(inner, id)
		if len(inner) == 0 {
			delete(m, a)
		}
	}
}

// HasCount returns the has(ownerType, attrType) count, 0 if absent.
func (s *Statistics) HasCount(ownerType, attrType core.TypeID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Has[ownerType][attrType]
}

// HasReverseCount returns the has_reverse(attrType, ownerType) count.
func (s *Statistics) HasReverseCount(attrType, ownerType core.TypeID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.HasReverse[attrType][ownerType]
}

// RolePlayerCount returns the role-player(playerType, roleType) count.
func (s *Statistics) RolePlayerCount(playerType, roleType core.TypeID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RolePlayer[playerType][roleType]
}

// RelationRoleCount returns the (relationType, roleType) count.
func (s *Statistics) RelationRoleCount(relationType, roleType core.TypeID) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.RelationRole[relationType][roleType]
}
