package chat

import "errors"

var (
	// ErrValidation marks bad input shape or length; nothing was written.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing session or message.
	ErrNotFound = errors.New("not found")
	// ErrUpstreamUnavailable marks a failed completion call. It is absorbed
	// by the responder and never fails a turn.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStore marks a persistence failure.
	ErrStore = errors.New("store error")
	// ErrUnauthenticated is returned when per-user scoping is enabled and
	// the caller supplied no identity.
	ErrUnauthenticated = errors.New("unauthenticated")
)
