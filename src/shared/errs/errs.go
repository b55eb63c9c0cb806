// Package errs defines the error kinds surfaced to command callers.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for rendering.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindState
	KindNotFound
	KindPermission
	KindConcurrency
	KindGateway
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindPermission:
		return "permission"
	case KindConcurrency:
		return "concurrency"
	case KindGateway:
		return "gateway"
	default:
		return "internal"
	}
}

// GenericMessage is what users see for anything not shown verbatim.
const GenericMessage = "An unknown error occurred, please contact staff."

// Error is a domain error carrying a user-facing message.
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

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) error { return newf(KindValidation, format, args...) }

func State(format string, args ...any) error { return newf(KindState, format, args...) }

func NotFound(format string, args ...any) error { return newf(KindNotFound, format, args...) }

func Permission(format string, args ...any) error { return newf(KindPermission, format, args...) }

func Concurrency(format string, args ...any) error { return newf(KindConcurrency, format, args...) }

// Gateway wraps a chat-platform failure.
func Gateway(msg string, err error) error {
	return &Error{Kind: KindGateway, Msg: msg, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// UserMessage returns the text shown to a user for err.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return GenericMessage
	}
	switch e.Kind {
	case KindValidation, KindState, KindNotFound, KindPermission, KindConcurrency:
		return e.Msg
	default:
		return GenericMessage
	}
}

// Visible reports whether the error message may be shown verbatim.
func Visible(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindState, KindNotFound, KindPermission, KindConcurrency:
		return true
	}
	return false
}
