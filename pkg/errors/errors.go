// ================== pkg/errors/errors.go =================
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	ErrInternal     = errors.New("internal server error")
	ErrDuplicate    = errors.New("resource already exists")
	ErrValidation   = errors.New("validation failed")
	ErrConflict     = errors.New("conflicting state")
	ErrUnavailable  = errors.New("service unavailable")
)

// Kind classifies failures on background paths where the caller degrades
// instead of failing
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUpstream     Kind = "upstream"
	KindTimeout      Kind = "timeout"
	KindInvalidInput Kind = "invalid_input"
	KindStorage      Kind = "storage"
)

// KindError pairs a Kind with the underlying cause
type KindError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *KindError) Unwrap() error {
	return e.Err
}

// E builds a KindError
func E(kind Kind, op string, err error) error {
	return &KindError{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind carried by err, or "" when none is present
func KindOf(err error) Kind {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}

// Is and As re-export the standard helpers so callers only import one package
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
