package confirm

import "github.com/cockroachdb/errors"

var (
	// ErrConfiguration marks integration defects: an unconfigured spec, an
	// unknown or duplicate confirmer name. It always propagates.
	ErrConfiguration = errors.New("confirmer is not configured")

	// ErrHandlerNotCallable is raised when a confirmation is accepted but the
	// spec has no handler. It is a configuration error as well.
	ErrHandlerNotCallable = errors.Wrap(ErrConfiguration, "confirmer handler is not callable")

	// ErrInvalidState means no pending confirmation exists for a token: it
	// expired with the session, was already used, was never issued or its
	// stored record is unreadable.
	ErrInvalidState = errors.New("no such pending confirmation")

	// ErrAttachment is returned when a confirmer is built without the host or
	// storage it needs.
	ErrAttachment = errors.New("confirmer is not attached to a dialog")
)
