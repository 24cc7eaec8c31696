// Package ir is the annotated intermediate representation a parsed pipeline
// is translated into (spec.md §3 "IR entities"): variables, constraints,
// blocks, and pipeline stages. It carries no execution behavior — planning
// and execution read it, type inference annotates it in place.
package ir

import "github.com/dolthub/typeql-core/core"

// VariableCategory is the kind of value a variable ranges over.
type VariableCategory uint8

const (
	CategoryThing VariableCategory = iota
	CategoryValue
	CategoryType
	CategoryThingList
	CategoryValueList
)

// Optionality marks whether a variable must be bound in every answer row or
// may be absent (spec.md §3 "Variable").
type Optionality uint8

const (
	Required Optionality = iota
	Optional
)

// Variable is an opaque identifier with an assigned category and
// optionality. The variable registry assigns a stable Position used to
// index Row columns.
type Variable struct {
	ID          int
	Name        string
	Category    VariableCategory
	Optionality Optionality
	Position    core.VariablePosition
}

// Registry assigns stable positions to every variable visible in a block's
// scope, shared by reference with nested scopes (spec.md §3 Lifecycles).
type Registry struct {
	vars   []*Variable
	byName map[string]*Variable
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Variable)}
}

// Declare registers a new variable or returns the existing one of the same
// name — nested blocks share an outer variable by reference rather than
// re-declaring it.
func (r *Registry) Declare(name string, category VariableCategory, opt Optionality) *Variable {
	if v, ok := r.byName[name]; ok {
		return v
	}
	v := &Variable{
		ID:          len(r.vars),
		Name:        name,
		Category:    category,
		Optionality: opt,
		Position:    core.VariablePosition(len(r.vars)),
	}
	r.vars = append(r.vars, v)
	r.byName[name] = v
	return v
}

func (r *Registry) Lookup(name string) (*Variable, bool) {
	v, ok := r.byName[name]
	return v, ok
}

func (r *Registry) Width() int { return len(r.vars) }

func (r *Registry) Variables() []*Variable { return r.vars }
