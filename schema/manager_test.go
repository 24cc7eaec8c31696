package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dolthub/typeql-core/core"
)

func TestTypeManager_SupertypeIsAbsentForARootType(t *testing.T) {
	m := NewTypeManager()
	animal := m.DefineType(core.EntityKind, "animal", 0, false)

	_, ok := m.Supertype(animal)
	require.False(t, ok)
	require.Equal(t, []core.TypeID{animal}, m.AncestorsOrSelf(animal))
}

func TestTypeManager_AncestorsOrSelfWalksTheFullChain(t *testing.T) {
	m := NewTypeManager()
	animal := m.DefineType(core.EntityKind, "animal", 0, false)
	mammal := m.DefineType(core.EntityKind, "mammal", 0, false)
	dog := m.DefineType(core.EntityKind, "dog", 0, false)
	m.SetSupertype(mammal, animal)
	m.SetSupertype(dog, mammal)

	require.Equal(t, []core.TypeID{dog, mammal, animal}, m.AncestorsOrSelf(dog))
	require.Equal(t, []core.TypeID{mammal, animal}, m.AncestorsOrSelf(mammal))
	require.True(t, m.IsSubtypeOrSelf(dog, animal))
	require.True(t, m.IsSubtypeOrSelf(dog, dog))
	require.False(t, m.IsSubtypeOrSelf(animal, dog))
}

func TestTypeManager_SubtypesOrSelfEnumeratesEveryDescendant(t *testing.T) {
	m := NewTypeManager()
	animal := m.DefineType(core.EntityKind, "animal", 0, false)
	mammal := m.DefineType(core.EntityKind, "mammal", 0, false)
	bird := m.DefineType(core.EntityKind, "bird", 0, false)
	dog := m.DefineType(core.EntityKind, "dog", 0, false)
	cat := m.DefineType(core.EntityKind, "cat", 0, false)
	m.SetSupertype(mammal, animal)
	m.SetSupertype(bird, animal)
	m.SetSupertype(dog, mammal)
	m.SetSupertype(cat, mammal)

	require.Equal(t, []core.TypeID{dog}, m.SubtypesOrSelf(dog))
	require.ElementsMatch(t, []core.TypeID{mammal, dog, cat}, m.SubtypesOrSelf(mammal))
	require.ElementsMatch(t, []core.TypeID{animal, mammal, bird, dog, cat}, m.SubtypesOrSelf(animal))
}

func TestTypeManager_AdmitsOwnsIsCovariantOverBothSidesSubtypeChains(t *testing.T) {
	m := NewTypeManager()
	animal := m.DefineType(core.EntityKind, "animal", 0, false)
	dog := m.DefineType(core.EntityKind, "dog", 0, false)
	m.SetSupertype(dog, animal)

	label := m.DefineType(core.AttributeKind, "label", core.ValueKindString, false)
	shortLabel := m.DefineType(core.AttributeKind, "short-label", core.ValueKindString, false)
	m.SetSupertype(shortLabel, label)

	m.DeclareOwns(animal, label)

	// A subtype of the owner inherits ownership...
	require.True(t, m.AdmitsOwns(dog, label))
	// ...and owning a supertype attribute admits its subtypes too.
	require.True(t, m.AdmitsOwns(animal, shortLabel))
	require.True(t, m.AdmitsOwns(dog, shortLabel))

	unrelated := m.DefineType(core.AttributeKind, "unrelated", 0, false)
	require.False(t, m.AdmitsOwns(dog, unrelated))
}

func TestTypeManager_AdmitsPlaysAndRelatesFollowSubtypeInheritance(t *testing.T) {
	m := NewTypeManager()
	person := m.DefineType(core.EntityKind, "person", 0, false)
	employee := m.DefineType(core.EntityKind, "employee", 0, false)
	m.SetSupertype(employee, person)

	employment := m.DefineType(core.RelationKind, "employment", 0, false)
	contract := m.DefineType(core.RelationKind, "contract", 0, false)
	m.SetSupertype(contract, employment)

	employeeRole := m.DefineRole(employment, "employee")
	m.DeclareRelates(employment, employeeRole)
	m.DeclarePlays(person, employeeRole)

	require.True(t, m.AdmitsPlays(employee, employeeRole), "employee must inherit person's play via its supertype chain")
	require.True(t, m.AdmitsRelates(contract, employeeRole), "contract must inherit employment's relates via its supertype chain")

	bystander := m.DefineType(core.EntityKind, "bystander", 0, false)
	require.False(t, m.AdmitsPlays(bystander, employeeRole))
}

func TestTypeManager_LabelAndRoleLabelLookupRoundTrip(t *testing.T) {
	m := NewTypeManager()
	membership := m.DefineType(core.RelationKind, "membership", 0, false)
	member := m.DefineRole(membership, "member")

	id, ok := m.Label("membership")
	require.True(t, ok)
	require.Equal(t, membership, id)

	id, ok = m.Label("membership:member")
	require.True(t, ok)
	require.Equal(t, member, id)

	_, ok = m.Label("nonexistent")
	require.False(t, ok)
}

func TestTypeManager_OwnedAttributeTypesAndOwnerTypesOfAreInverse(t *testing.T) {
	m := NewTypeManager()
	person := m.DefineType(core.EntityKind, "person", 0, false)
	name := m.DefineType(core.AttributeKind, "name", core.ValueKindString, false)
	age := m.DefineType(core.AttributeKind, "age", core.ValueKindLong, false)
	m.DeclareOwns(person, name)
	m.DeclareOwns(person, age)

	require.ElementsMatch(t, []core.TypeID{name, age}, m.OwnedAttributeTypes(person))
	require.Equal(t, []core.TypeID{person}, m.OwnerTypesOf(name))
}

func TestTypeManager_DeleteTypePurgesLabelAndEveryIncidentEdge(t *testing.T) {
	m := NewTypeManager()
	person := m.DefineType(core.EntityKind, "person", 0, false)
	name := m.DefineType(core.AttributeKind, "name", core.ValueKindString, false)
	m.DeclareOwns(person, name)
	require.True(t, m.AdmitsOwns(person, name))

	m.DeleteType(name)

	_, ok := m.Type(name)
	require.False(t, ok)
	_, ok = m.Label("name")
	require.False(t, ok)
	require.False(t, m.AdmitsOwns(person, name), "deleting the attribute type must also drop the owns edge")
	require.Empty(t, m.OwnedAttributeTypes(person))
}

func TestTypeManager_TypesOfKindFiltersByKindOnly(t *testing.T) {
	m := NewTypeManager()
	person := m.DefineType(core.EntityKind, "person", 0, false)
	dog := m.DefineType(core.EntityKind, "dog", 0, false)
	membership := m.DefineType(core.RelationKind, "membership", 0, false)

	require.ElementsMatch(t, []core.TypeID{person, dog}, m.TypesOfKind(core.EntityKind))
	require.Equal(t, []core.TypeID{membership}, m.TypesOfKind(core.RelationKind))
}
