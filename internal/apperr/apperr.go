// Package apperr declares the sentinel error kinds shared across the
// daemon, fetch, and CLI layers.
package apperr

import "errors"

var (
	// ErrNotFound is returned when a repo, revision, file, or peer is
	// absent from local state. Handlers map it to HTTP 404.
	ErrNotFound = errors.New("not found")

	// ErrBadRequest is returned for a malformed range header or peer
	// address. Handlers map it to HTTP 400.
	ErrBadRequest = errors.New("bad request")

	// ErrGatedRepo is returned when an endpoint refuses a fetch because
	// the repo requires authentication. Callers should stop trying
	// further candidates and surface an auth hint.
	ErrGatedRepo = errors.New("repository is gated, login required")

	// ErrConflict is returned when the daemon is already running or its
	// port is already bound.
	ErrConflict = errors.New("conflict")

	// ErrTransport is returned when a single HTTP fetch attempt against a
	// peer or mirror gets a non-success status; timeouts and connection
	// errors are returned as the underlying error instead. Orchestrator
	// layers treat either as a failed attempt and move to the next
	// candidate; it is never propagated to the end user.
	ErrTransport = errors.New("transport error")
)
