// Package apperr defines the core's closed error taxonomy.
package apperr

import (
	"errors"
	"fmt"
)

// Kind enumerates the kinds of failure the core can surface. It is not a
// type hierarchy: every failure the core produces carries exactly one Kind.
type Kind int

const (
	// Transport covers I/O failures, peer reset, premature EOF.
	Transport Kind = iota
	// Protocol covers malformed HTTP requests and WebSocket framing errors.
	Protocol
	// InvalidStateChange is raised when the application emits an event
	// illegal for the current protocol state.
	InvalidStateChange
	// InvalidAsgiMessage is raised when the application emits an event that
	// does not belong to the current scope at all.
	InvalidAsgiMessage
	// UnexpectedShutdown means the application or server stopped without
	// completing the phase.
	UnexpectedShutdown
	// DisconnectedClient is raised on a send from the application after the
	// server has torn the bus down.
	DisconnectedClient
	// ApplicationError means the application coroutine raised.
	ApplicationError
	// Custom is a catch-all for embedding-specific failures.
	Custom
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case InvalidStateChange:
		return "invalid_state_change"
	case InvalidAsgiMessage:
		return "invalid_asgi_message"
	case UnexpectedShutdown:
		return "unexpected_shutdown"
	case DisconnectedClient:
		return "disconnected_client"
	case ApplicationError:
		return "application_error"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Error is the concrete error type the core returns. Source/Reason apply
// only to UnexpectedShutdown; for other kinds they are empty.
type Error struct {
	Kind    Kind
	Message string
	Source  string
	Reason  string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == UnexpectedShutdown && (e.Source != "" || e.Reason != ""):
		return fmt.Sprintf("%s shutdown unexpectedly: %s", e.Source, e.Reason)
	default:
		if e.Message == "" && e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return e.Message
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, apperr.ErrDisconnectedClient) style comparisons
// against a bare Kind, using the sentinel *Error values below (no message).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New builds a plain *Error of the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds a *Error of the given kind wrapping an existing error.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NewUnexpectedShutdown builds an UnexpectedShutdown{source, reason} error.
func NewUnexpectedShutdown(source, reason string) *Error {
	return &Error{Kind: UnexpectedShutdown, Source: source, Reason: reason}
}

// NewApplicationError builds an ApplicationError(message) error.
func NewApplicationError(message string) *Error {
	return &Error{Kind: ApplicationError, Message: message}
}

// NewDisconnectedClient builds a DisconnectedClient error.
func NewDisconnectedClient() *Error {
	return &Error{Kind: DisconnectedClient, Message: "disconnected client"}
}

// KindOf extracts the Kind from err, returning (Custom, false) if err is not
// (or does not wrap) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Custom, false
}

// Sentinel instances usable with errors.Is for kind-only comparisons.
var (
	ErrDisconnectedClient   = &Error{Kind: DisconnectedClient}
	ErrInvalidStateChange   = &Error{Kind: InvalidStateChange}
	ErrInvalidAsgiMessage   = &Error{Kind: InvalidAsgiMessage}
	ErrUnexpectedShutdown   = &Error{Kind: UnexpectedShutdown}
)
