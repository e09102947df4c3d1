// Package apperr defines the error taxonomy shared by the HTTP handlers
// and the WebSocket gateway.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	// InvalidRequest covers malformed tokens, missing fields and
	// disallowed uploads. Nothing was mutated.
	InvalidRequest Kind = iota
	// NotFound covers absent rooms and images.
	NotFound
	// NotJoined is returned for connection events sent before a
	// successful join.
	NotJoined
	// StoreUnavailable means the durable store is down or not configured.
	StoreUnavailable
)

// Error carries a kind and a user-safe message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// New creates an Error with the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err, or ok=false for untyped errors.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsKind reports whether err has the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
