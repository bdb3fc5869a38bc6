package anyclass

import (
	"errors"
	"fmt"

	"github.com/anyclass/anyclass/pkg/store"
)

// ValidationError reports caller input rejected before any engine access:
// a missing or mistyped parameter, malformed field data, or a filter that
// does not compile.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func newValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports that a referenced class or object does not exist.
type NotFoundError struct {
	// Kind is "class" or "object".
	Kind string
	// Name is the class name or object id that was not found.
	Name string
	// Class is the owning class when Kind is "object".
	Class string
}

func (e *NotFoundError) Error() string {
	if e.Kind == "object" && e.Class != "" {
		return fmt.Sprintf("object %q not found in class %q", e.Name, e.Class)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func newClassNotFound(className string) *NotFoundError {
	return &NotFoundError{Kind: "class", Name: className}
}

func newObjectNotFound(className, objectID string) *NotFoundError {
	return &NotFoundError{Kind: "object", Name: objectID, Class: className}
}

// StoreError reports a failure raised by the engine itself: connectivity,
// constraint violations, bulk-write failures. It is never retried here.
type StoreError struct {
	// Op names the engine call that failed, e.g. "insert" or "purgeClass".
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s failed: %v", e.Op, e.Err) }

func (e *StoreError) Unwrap() error { return e.Err }

// wrapStoreErr translates engine sentinels into the caller-facing taxonomy.
// Everything that is not a not-found condition stays a StoreError, including
// the purge guards, which are constraint violations rather than bad input.
func wrapStoreErr(op, className, objectID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrObjectNotFound):
		return newObjectNotFound(className, objectID)
	case errors.Is(err, store.ErrClassNotFound):
		return newClassNotFound(className)
	default:
		return &StoreError{Op: op, Err: err}
	}
}
