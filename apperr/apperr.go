// Package apperr defines the error kinds every core component surfaces.
// Handlers and callers branch on the kind, never on raw storage errors.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	// KindValidation: malformed input, client must correct and retry.
	KindValidation Kind = iota + 1
	// KindNotFound: unknown form/question/option/submission id.
	KindNotFound
	// KindConflict: uniqueness violation detected at commit, safe to
	// retry with corrected input.
	KindConflict
	// KindFatal: missing counter namespace, storage unreachable.
	// Not retryable by adjusting input.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

type Error struct {
	kind Kind
	err  error
}

func (e *Error) Error() string {
	return e.err.Error()
}

func (e *Error) Kind() Kind {
	return e.kind
}

func (e *Error) Unwrap() error {
	return e.err
}

func Validation(format string, args ...any) error {
	return &Error{KindValidation, fmt.Errorf(format, args...)}
}

func NotFound(entity string, id any) error {
	return &Error{KindNotFound, fmt.Errorf("%s not found (%v)", entity, id)}
}

func Conflict(format string, args ...any) error {
	return &Error{KindConflict, fmt.Errorf(format, args...)}
}

func Fatal(err error, msg string) error {
	return &Error{KindFatal, errors.Wrap(err, msg)}
}

// Wrap keeps the kind of an already-classified error while adding
// context; unclassified errors become Fatal.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return &Error{appErr.kind, errors.Wrap(err, msg)}
	}
	return &Error{KindFatal, errors.Wrap(err, msg)}
}

// KindOf classifies any error; non-apperr errors report KindFatal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.kind
	}
	return KindFatal
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsFatal(err error) bool      { return KindOf(err) == KindFatal }
