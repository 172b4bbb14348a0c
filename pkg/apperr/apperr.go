package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so transport layers can map it to a status
// code without string matching.
type Kind int

const (
	// KindValidation marks malformed caller input.
	KindValidation Kind = iota + 1
	// KindNotFound marks a missing policy, entity or attachment instance.
	KindNotFound
	// KindConflict marks an attachment uniqueness violation.
	KindConflict
	// KindCrossTenant marks a non-shared policy referenced by an entity
	// in a different organization.
	KindCrossTenant
	// KindStore marks an opaque storage or transaction failure.
	KindStore
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindCrossTenant:
		return "cross-tenant violation"
	case KindStore:
		return "store failure"
	}
	return "unknown"
}

// Error carries a kind alongside the message and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Msg == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a KindValidation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a KindNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflict returns a KindConflict error.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

// CrossTenant returns a KindCrossTenant error.
func CrossTenant(format string, args ...any) error {
	return &Error{Kind: KindCrossTenant, Msg: fmt.Sprintf(format, args...)}
}

// Store wraps an opaque storage failure. The cause is preserved for
// logging but never interpreted by callers.
func Store(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStore, Err: err}
}

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return is(err, KindValidation) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return is(err, KindNotFound) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return is(err, KindConflict) }

// IsCrossTenant reports whether err is a cross-tenant violation.
func IsCrossTenant(err error) bool { return is(err, KindCrossTenant) }

// IsStore reports whether err is a store failure.
func IsStore(err error) bool { return is(err, KindStore) }
