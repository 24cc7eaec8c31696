// Package core holds the value types and error vocabulary shared by every
// other package in this module: rows, fixed batches, the execution context,
// and the tagged error kinds raised across inference, planning, and
// execution.
package core

import (
	"fmt"

	errorskind "gopkg.in/src-d/go-errors.v1"
)

// Error kinds, one per condition named in spec.md §7. Each is a tagged
// *errors.Kind so callers can test membership with Kind.Is(err) instead of
// string-matching messages.
var (
	// Parse wraps a malformed-input error surfaced verbatim from the parser.
	Parse = errorskind.NewKind("parse error: %s")

	// TypeInference covers empty candidate sets, incompatible annotation
	// combinations, and unresolved function references.
	ErrNoCandidateTypes     = errorskind.NewKind("variable %s has no candidate types after inference")
	ErrIncompatibleTypes    = errorskind.NewKind("constraint %s admits no compatible type combination")
	ErrUnresolvedFunction   = errorskind.NewKind("function %s is not defined")
	ErrAmbiguousInsertType  = errorskind.NewKind("variable %s does not have a single determined type for insert")

	// WriteCompilation.
	ErrDeletedThingWasNotInInput          = errorskind.NewKind("variable %s was not bound in the input row")
	ErrIllegalRoleDelete                  = errorskind.NewKind("cannot delete role-typed variable %s")
	ErrCouldNotUniquelyDetermineRoleType  = errorskind.NewKind("could not uniquely determine role type for %s")

	// ReadExecution.
	ErrInterrupted     = errorskind.NewKind("execution interrupted")
	ErrIterateStorage  = errorskind.NewKind("storage iteration failed: %s")

	// WriteExecution.
	ErrConceptWrite = errorskind.NewKind("write constraint violated: %s")

	// ConceptRead.
	ErrConceptRead = errorskind.NewKind("storage read failed: %s")

	// FunctionDefinition.
	ErrFunctionNameCollision    = errorskind.NewKind("function %s redefines an existing name")
	ErrArgumentCountMismatch    = errorskind.NewKind("function %s expects %d arguments, got %d")
	ErrReturnArgCountMismatch   = errorskind.NewKind("function %s returns %d values, got %d")
	ErrUnusedArgument           = errorskind.NewKind("function %s argument %s is never used")
	ErrRecursiveFunctionUnsupported = errorskind.NewKind("recursive (tabled) function %s is not supported")
)

// WrapConceptRead tags a storage-layer read failure as a ConceptRead error,
// preserving the original error as its cause.
func WrapConceptRead(err error) error {
	if err == nil {
		return nil
	}
	return ErrConceptRead.Wrap(err, err.Error())
}

// WrapIterateStorage tags a storage range-iteration failure as ReadExecution.
func WrapIterateStorage(err error) error {
	if err == nil {
		return nil
	}
	return ErrIterateStorage.New(err.Error())
}

// WrapConceptWrite tags a runtime write-constraint failure (cardinality,
// regex, etc.) as WriteExecution.
func WrapConceptWrite(err error) error {
	if err == nil {
		return nil
	}
	return ErrConceptWrite.New(err.Error())
}

// QueryError is the single tagged error the top-level query call returns: a
// kind tag plus the chain of causes that produced it.
type QueryError struct {
	Stage string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError tags err with the pipeline stage name that raised it.
func NewQueryError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &QueryError{Stage: stage, Err: err}
}
