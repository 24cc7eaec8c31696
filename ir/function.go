package ir

import "github.com/dolthub/typeql-core/core"

// FunctionSignature describes a named function: its argument categories
// (for arity/type checking at the call site) and its return arity/category.
// Recursive (tabled) functions are out of scope (spec.md Non-goals); a
// function whose body calls itself transitively is flagged IsTabled so
// typeinfer can reject it (ErrRecursiveFunctionUnsupported) rather than
// attempt a fixed-point evaluation strategy.
type FunctionSignature struct {
	ID         string
	Arguments  []VariableCategory
	ReturnKind []VariableCategory
	Body       *Block
	ReturnVars []*Variable
	IsTabled   bool
}

// FunctionRegistry resolves function-call bindings during type inference
// and compilation.
type FunctionRegistry struct {
	byID map[string]*FunctionSignature
}

func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{byID: make(map[string]*FunctionSignature)}
}

// Define registers a function, returning ErrFunctionNameCollision if the id
// is already taken.
func (r *FunctionRegistry) Define(sig *FunctionSignature) error {
	if _, exists := r.byID[sig.ID]; exists {
		return core.ErrFunctionNameCollision.New(sig.ID)
	}
	r.byID[sig.ID] = sig
	return nil
}

func (r *FunctionRegistry) Lookup(id string) (*FunctionSignature, bool) {
	sig, ok := r.byID[id]
	return sig, ok
}

// CheckCall validates a call site's arity against the signature (spec.md
// §7 FunctionDefinition: argument-count mismatch, return-arg count
// mismatch), and rejects calls into tabled functions (Non-goals).
func CheckCall(sig *FunctionSignature, args, assigned []*Variable) error {
	if sig.IsTabled {
		return core.ErrRecursiveFunctionUnsupported.New(sig.ID)
	}
	if len(args) != len(sig.Arguments) {
		return core.ErrArgumentCountMismatch.New(sig.ID, len(sig.Arguments), len(args))
	}
	if len(assigned) != len(sig.ReturnKind) {
		return core.ErrReturnArgCountMismatch.New(sig.ID, len(sig.ReturnKind), len(assigned))
	}
	return nil
}
