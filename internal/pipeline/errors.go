// Package pipeline defines the error-kind vocabulary shared across the
// marketing-intelligence core, used to classify failures by how they
// should propagate.
package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a PipelineError into one of the error kinds the core
// distinguishes. Kinds determine propagation policy: some degrade to
// a warning at the connector/cache layer, others reject a mutation with
// no state change, and StorageFailure aborts the current operation.
type Kind string

const (
	ConfigInvalid               Kind = "ConfigInvalid"
	QuotaExhausted               Kind = "QuotaExhausted"
	ConnectorUnavailable          Kind = "ConnectorUnavailable"
	ValidationFailed             Kind = "ValidationFailed"
	GuardrailViolation           Kind = "GuardrailViolation"
	StateConflict                Kind = "StateConflict"
	Unauthorized                  Kind = "Unauthorized"
	StorageFailure                Kind = "StorageFailure"
	StatisticalInsufficientData   Kind = "StatisticalInsufficientData"
)

// NonFatal reports whether errors of this kind degrade to a warning
// instead of aborting the caller.
func (k Kind) NonFatal() bool {
	switch k {
	case QuotaExhausted, ConnectorUnavailable, StatisticalInsufficientData:
		return true
	default:
		return false
	}
}

// Error is the single typed-failure carrier used throughout the core:
// {kind, message, context}.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Context)
}

// New builds a PipelineError with optional context pairs (key, value, key, value, ...).
func New(kind Kind, message string, kv ...any) *Error {
	var ctx map[string]any
	if len(kv) > 0 {
		ctx = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, _ := kv[i].(string)
			ctx[key] = kv[i+1]
		}
	}
	return &Error{Kind: kind, Message: message, Context: ctx}
}

// As reports whether err is (or wraps) a *Error and, if so, returns it.
func As(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	pe, ok := As(err)
	return ok && pe.Kind == kind
}

// Named invariant-violation errors surfaced by name, e.g.
// "guard:similarity", "transition:paused→completed".
func Invariant(name string, kv ...any) *Error {
	return New(ValidationFailed, "invariant violated: "+name, kv...)
}

var (
	// ErrNotFound is returned when an entity is not found in a repository.
	ErrNotFound = errors.New("entity not found")
	// ErrAlreadyExists is returned when attempting to create a duplicate entity.
	ErrAlreadyExists = errors.New("entity already exists")
)
