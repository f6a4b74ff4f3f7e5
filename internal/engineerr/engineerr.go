// Package engineerr defines the abstract error kinds the engine surfaces to
// its host (spec §7). Hosts map these onto transport errors however they
// like; the engine itself never retries and never treats an error as an
// implicit "allow".
package engineerr

import (
	"context"
	"errors"
	"fmt"
)

// Kind is one of the abstract error categories the engine can return.
type Kind string

const (
	UnknownPermission Kind = "UNKNOWN_PERMISSION"
	UnknownRole       Kind = "UNKNOWN_ROLE"
	UnknownPrincipal  Kind = "UNKNOWN_PRINCIPAL"
	InvalidMembership Kind = "INVALID_MEMBERSHIP"
	InvalidCursor     Kind = "INVALID_CURSOR"
	Cancelled         Kind = "CANCELLED"
	StoreUnavailable  Kind = "STORE_UNAVAILABLE"
)

// Error carries one of the abstract kinds plus a human-readable detail.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around a lower-level cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind == kind
	}
	return false
}

// FromStoreError maps an error surfaced by a storage dependency onto one of
// the abstract kinds, so a caller's context cancellation or a store outage
// is never mistaken for a generic internal error further up the stack. An
// err that already carries a Kind (or is nil) passes through unchanged.
func FromStoreError(message string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if asError(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(Cancelled, message, err)
	}
	return Wrap(StoreUnavailable, message, err)
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
