// Copyright 2025 Certen Protocol
//
// Package corerr defines the error kinds the engine surfaces to its callers.
// F.4-style remediation: explicit, wrapped sentinel errors instead of bare
// strings, so callers can branch on kind with errors.Is/errors.As.
package corerr

import (
	"errors"
	"fmt"
)

// Kind identifies one of the engine's documented error categories.
type Kind string

const (
	KindNotInitialised    Kind = "NotInitialised"
	KindAlreadyInitialised Kind = "AlreadyInitialised"
	KindInvalidBlock      Kind = "InvalidBlock"
	KindOrphanBlock       Kind = "OrphanBlock"
	KindAncientBlock      Kind = "AncientBlock"
	KindReorgTooDeep      Kind = "ReorgTooDeep"
	KindStorageError      Kind = "StorageError"
	KindSignerError       Kind = "SignerError"
	KindUnauthorised      Kind = "Unauthorised"
	KindMalformed         Kind = "Malformed"
)

// Error is the concrete type returned at the engine boundary. It always
// carries a Kind so callers can classify failures without string matching.
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so that
// errors.Is(err, corerr.New(KindOrphanBlock, "")) works as a kind check.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// New builds an *Error of the given kind with a plain detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// NotInitialised, etc. are convenience constructors used throughout the
// engine packages. StorageError and SignerError wrap the given cause (may
// be nil); the others carry a plain detail message and no cause.
func NotInitialised(detail string) *Error     { return New(KindNotInitialised, detail) }
func AlreadyInitialised(detail string) *Error { return New(KindAlreadyInitialised, detail) }
func InvalidBlock(detail string) *Error       { return New(KindInvalidBlock, detail) }
func OrphanBlock(detail string) *Error        { return New(KindOrphanBlock, detail) }
func AncientBlock(detail string) *Error       { return New(KindAncientBlock, detail) }
func ReorgTooDeep(detail string) *Error       { return New(KindReorgTooDeep, detail) }
func StorageError(cause error) *Error         { return Wrap(KindStorageError, "", cause) }
func SignerError(cause error) *Error          { return Wrap(KindSignerError, "", cause) }
func Unauthorised(detail string) *Error       { return New(KindUnauthorised, detail) }
func Malformed(detail string) *Error          { return New(KindMalformed, detail) }

// Is is a package-level helper mirroring errors.Is against a Kind, so
// callers can write corerr.Is(err, corerr.KindOrphanBlock) without
// constructing a dummy *Error themselves.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
