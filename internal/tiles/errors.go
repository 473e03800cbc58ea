package tiles

import (
	"errors"
	"fmt"
)

// ErrorKind classifies store failures.
type ErrorKind string

const (
	// KindConnection marks a store that cannot be reached or opened.
	KindConnection ErrorKind = "connection"
	// KindSchema marks a DDL failure not explainable as "already exists".
	KindSchema ErrorKind = "schema"
	// KindFormat marks a connection descriptor that does not match the
	// expected grammar.
	KindFormat ErrorKind = "format"
	// KindNotImplemented marks an operation the backend does not support.
	KindNotImplemented ErrorKind = "not implemented"
)

// Error is the store error type, carrying the failure kind plus backend
// context.
type Error struct {
	Kind    ErrorKind
	Backend string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Backend != "" {
		msg += " (" + e.Backend + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err means the backing store could not be
// reached or opened.
func IsConnectionError(err error) bool {
	return hasKind(err, KindConnection)
}

// IsSchemaError reports whether err is an unrecoverable DDL failure.
func IsSchemaError(err error) bool {
	return hasKind(err, KindSchema)
}

// IsFormatError reports whether err means a malformed connection descriptor.
func IsFormatError(err error) bool {
	return hasKind(err, KindFormat)
}

// IsNotImplemented reports whether err means the backend does not support
// the requested operation.
func IsNotImplemented(err error) bool {
	return hasKind(err, KindNotImplemented)
}

func hasKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func newConnectionError(backend, message string, err error) *Error {
	return &Error{Kind: KindConnection, Backend: backend, Message: message, Err: err}
}

func newSchemaError(backend string, err error) *Error {
	return &Error{Kind: KindSchema, Backend: backend, Message: "schema setup failed", Err: err}
}

func newFormatError(format string, args ...any) *Error {
	return &Error{Kind: KindFormat, Message: fmt.Sprintf(format, args...)}
}

func notImplemented(backend, op string) *Error {
	return &Error{Kind: KindNotImplemented, Backend: backend, Message: op + " is not supported"}
}
