// Package apperr defines the error taxonomy shared by all services.
// Errors carry an explicit Kind so callers dispatch on the variant
// instead of matching exception subclasses.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// KindValidation covers malformed input. Never retried.
	KindValidation Kind = "validation"
	// KindTransientProvider covers external provider failures that are
	// eligible for retry with backoff.
	KindTransientProvider Kind = "transient_provider"
	// KindPermanentProvider covers non-retryable provider rejections.
	KindPermanentProvider Kind = "permanent_provider"
	// KindIndexConsistency covers vector/lexical index divergence.
	KindIndexConsistency Kind = "index_consistency"
	// KindNotFound covers absent documents, chunks, and tasks.
	KindNotFound Kind = "not_found"
	// KindConflict covers lost races such as a document already being processed.
	KindConflict Kind = "conflict"
	// KindInternal covers everything else.
	KindInternal Kind = "internal"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two apperr values by Kind alone, so callers can
// compare against a bare New(kind, "") sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return KindOf(err) == KindTransientProvider || KindOf(err) == KindIndexConsistency
}
