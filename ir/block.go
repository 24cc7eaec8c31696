package ir

// BlockKind tags how a nested Block combines with its parent (spec.md §4.5
// controllers: Negation/Disjunction/InlinedFunction bodies all nest a
// Block; a plain conjunction nests none).
type BlockKind uint8

const (
	BlockConjunction BlockKind = iota
	BlockNegation
	BlockDisjunctionBranch
	BlockFunctionBody
)

// Block is an ordered sequence of constraints in a scope (spec.md §3 "IR
// entities" — Block). Blocks nest: a Negation constraint-equivalent or a
// disjunction branch is represented as a NestedBlock entry rather than a
// Constraint, since it has sub-structure the stack machine must recurse
// into (spec.md §4.4/§4.5).
type Block struct {
	Registry    *Registry
	Constraints []Constraint
	Nested      []*NestedBlock
}

func NewBlock(reg *Registry) *Block {
	return &Block{Registry: reg}
}

func (b *Block) AddConstraint(c Constraint) {
	b.Constraints = append(b.Constraints, c)
}

// NestedBlock is one negation body, disjunction branch, or inlined function
// call embedded in an outer block (spec.md §4.5).
type NestedBlock struct {
	Kind ControllerKind
	Body *Block

	// Disjunction: one NestedBlock per branch, all with Kind
	// ControllerDisjunction; branches sharing a DisjunctionGroup are
	// compiled by package pipeline into one disjunction controller.
	DisjunctionGroup int

	// InlinedFunction fields.
	FunctionID     string
	ArgumentVars   []*Variable
	AssignedVars   []*Variable

	// Offset/Limit fields.
	Offset int
	Limit  int
}

// ControllerKind names which nested-pattern controller owns this sub-block
// (spec.md §4.5 table).
type ControllerKind uint8

const (
	ControllerNegation ControllerKind = iota
	ControllerDisjunction
	ControllerInlinedFunction
	ControllerOffset
	ControllerLimit
)
