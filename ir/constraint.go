package ir

import "github.com/dolthub/typeql-core/core"

// ConstraintKind tags the concrete Constraint variant (spec.md §3 "IR
// entities" — Constraint).
type ConstraintKind uint8

const (
	KindIsa ConstraintKind = iota
	KindHas
	KindLinks
	KindLabel
	KindRoleName
	KindOwns
	KindRelates
	KindPlays
	KindExpressionBinding
	KindComparison
	KindSub
	KindFunctionCallBinding
)

// Constraint is one declarative relation over variables. Every variant
// below implements it; ID is a stable identity used to key the constraint
// annotation map type inference produces (spec.md §4.1).
type Constraint interface {
	Kind() ConstraintKind
	ConstraintID() int
	Variables() []*Variable
}

var nextConstraintID = 0

func allocConstraintID() int {
	nextConstraintID++
	return nextConstraintID
}

// Isa asserts that Thing is an instance of a type given either by the
// Type-category variable Type or, when Type is nil, by the label TypeLabel.
type Isa struct {
	id    int
	Thing *Variable
	Type  *Variable // a Type-category variable, or nil if TypeLabel is set
	TypeLabel string
}

func NewIsa(thing, typ *Variable, label string) *Isa {
	return &Isa{id: allocConstraintID(), Thing: thing, Type: typ, TypeLabel: label}
}
func (c *Isa) Kind() ConstraintKind { return KindIsa }
func (c *Isa) ConstraintID() int    { return c.id }
func (c *Isa) Variables() []*Variable {
	if c.Type != nil {
		return []*Variable{c.Thing, c.Type}
	}
	return []*Variable{c.Thing}
}

// Has is `$owner has $attr` (optionally `has attrlabel $attr`).
type Has struct {
	id        int
	Owner     *Variable
	Attribute *Variable
}

func NewHas(owner, attr *Variable) *Has {
	return &Has{id: allocConstraintID(), Owner: owner, Attribute: attr}
}
func (c *Has) Kind() ConstraintKind     { return KindHas }
func (c *Has) ConstraintID() int        { return c.id }
func (c *Has) Variables() []*Variable   { return []*Variable{c.Owner, c.Attribute} }

// Links is the ternary relation↔player via role-type edge (`role-player` in
// spec.md §3). Role may be a bound role-type variable or a literal label.
type Links struct {
	id       int
	Relation *Variable
	Player   *Variable
	Role     *Variable
	RoleLabel string
}

func NewLinks(relation, player, role *Variable, roleLabel string) *Links {
	return &Links{id: allocConstraintID(), Relation: relation, Player: player, Role: role, RoleLabel: roleLabel}
}
func (c *Links) Kind() ConstraintKind { return KindLinks }
func (c *Links) ConstraintID() int    { return c.id }
func (c *Links) Variables() []*Variable {
	vars := []*Variable{c.Relation, c.Player}
	if c.Role != nil {
		vars = append(vars, c.Role)
	}
	return vars
}

// Label binds a Type-category variable to exactly one schema label.
type Label struct {
	id    int
	Type  *Variable
	Label string
}

func NewLabel(typ *Variable, label string) *Label {
	return &Label{id: allocConstraintID(), Type: typ, Label: label}
}
func (c *Label) Kind() ConstraintKind   { return KindLabel }
func (c *Label) ConstraintID() int      { return c.id }
func (c *Label) Variables() []*Variable { return []*Variable{c.Type} }

// RoleName binds a role-type variable to a role name scoped within its
// owning relation type (disambiguated later during inference).
type RoleName struct {
	id       int
	Role     *Variable
	RoleName string
}

func NewRoleName(role *Variable, name string) *RoleName {
	return &RoleName{id: allocConstraintID(), Role: role, RoleName: name}
}
func (c *RoleName) Kind() ConstraintKind   { return KindRoleName }
func (c *RoleName) ConstraintID() int      { return c.id }
func (c *RoleName) Variables() []*Variable { return []*Variable{c.Role} }

// Owns is a schema constraint: OwnerType owns AttrType.
type Owns struct {
	id    int
	Owner *Variable
	Attr  *Variable
}

func NewOwns(owner, attr *Variable) *Owns {
	return &Owns{id: allocConstraintID(), Owner: owner, Attr: attr}
}
func (c *Owns) Kind() ConstraintKind   { return KindOwns }
func (c *Owns) ConstraintID() int      { return c.id }
func (c *Owns) Variables() []*Variable { return []*Variable{c.Owner, c.Attr} }

// Relates is a schema constraint: RelationType relates RoleType.
type Relates struct {
	id       int
	Relation *Variable
	Role     *Variable
}

func NewRelates(relation, role *Variable) *Relates {
	return &Relates{id: allocConstraintID(), Relation: relation, Role: role}
}
func (c *Relates) Kind() ConstraintKind   { return KindRelates }
func (c *Relates) ConstraintID() int      { return c.id }
func (c *Relates) Variables() []*Variable { return []*Variable{c.Relation, c.Role} }

// Plays is a schema constraint: ObjectType plays RoleType.
type Plays struct {
	id     int
	Object *Variable
	Role   *Variable
}

func NewPlays(object, role *Variable) *Plays {
	return &Plays{id: allocConstraintID(), Object: object, Role: role}
}
func (c *Plays) Kind() ConstraintKind   { return KindPlays }
func (c *Plays) ConstraintID() int      { return c.id }
func (c *Plays) Variables() []*Variable { return []*Variable{c.Object, c.Role} }

// Sub is a schema constraint: SubType is a (direct or transitive) subtype
// of SuperType.
type Sub struct {
	id    int
	Sub   *Variable
	Super *Variable
}

func NewSub(sub, super *Variable) *Sub {
	return &Sub{id: allocConstraintID(), Sub: sub, Super: super}
}
func (c *Sub) Kind() ConstraintKind   { return KindSub }
func (c *Sub) ConstraintID() int      { return c.id }
func (c *Sub) Variables() []*Variable { return []*Variable{c.Sub, c.Super} }

// ComparisonOp is the relational operator of a Comparison constraint.
type ComparisonOp uint8

const (
	Eq ComparisonOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Comparison compares two Value-category variables with Op. The scalar expression evaluator is an external collaborator
// (spec.md §1); the IR only records which operator and operands.
type Comparison struct {
	id    int
	Left  *Variable
	Right *Variable
	Op    ComparisonOp
}

func NewComparison(left, right *Variable, op ComparisonOp) *Comparison {
	return &Comparison{id: allocConstraintID(), Left: left, Right: right, Op: op}
}
func (c *Comparison) Kind() ConstraintKind   { return KindComparison }
func (c *Comparison) ConstraintID() int      { return c.id }
func (c *Comparison) Variables() []*Variable { return []*Variable{c.Left, c.Right} }

// ExpressionBinding assigns the result of an opaque scalar expression
// (evaluated by the external expression core, spec.md §1) to Assigned.
type ExpressionBinding struct {
	id         int
	Assigned   *Variable
	Arguments  []*Variable
	Expression interface{} // opaque handle into the expression/function core
}

func NewExpressionBinding(assigned *Variable, args []*Variable, expr interface{}) *ExpressionBinding {
	return &ExpressionBinding{id: allocConstraintID(), Assigned: assigned, Arguments: args, Expression: expr}
}
func (c *ExpressionBinding) Kind() ConstraintKind { return KindExpressionBinding }
func (c *ExpressionBinding) ConstraintID() int    { return c.id }
func (c *ExpressionBinding) Variables() []*Variable {
	return append(append([]*Variable{}, c.Arguments...), c.Assigned)
}

// FunctionCallBinding invokes a named function, binding its return values
// (in declaration order) to Assigned.
type FunctionCallBinding struct {
	id         int
	FunctionID string
	Arguments  []*Variable
	Assigned   []*Variable
}

func NewFunctionCallBinding(functionID string, args, assigned []*Variable) *FunctionCallBinding {
	return &FunctionCallBinding{id: allocConstraintID(), FunctionID: functionID, Arguments: args, Assigned: assigned}
}
func (c *FunctionCallBinding) Kind() ConstraintKind { return KindFunctionCallBinding }
func (c *FunctionCallBinding) ConstraintID() int    { return c.id }
func (c *FunctionCallBinding) Variables() []*Variable {
	return append(append([]*Variable{}, c.Arguments...), c.Assigned...)
}

// TypeSet is a finite set of candidate schema types, the unit type
// inference assigns to every variable (spec.md §4.1).
type TypeSet map[core.TypeID]struct{}

func NewTypeSet(ids ...core.TypeID) TypeSet {
	s := make(TypeSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s TypeSet) Contains(id core.TypeID) bool {
	_, ok := s[id]
	return ok
}

func (s TypeSet) Add(id core.TypeID) { s[id] = struct{}{} }

func (s TypeSet) Single() (core.TypeID, bool) {
	if len(s) != 1 {
		return 0, false
	}
	for id := range s {
		return id, true
	}
	return 0, false
}

func (s TypeSet) Slice() []core.TypeID {
	out := make([]core.TypeID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

func (s TypeSet) Intersect(other TypeSet) TypeSet {
	out := make(TypeSet)
	for id := range s {
		if other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}
