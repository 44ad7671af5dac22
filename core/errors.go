package calls

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyOpened is returned when Open is called more than once
	// on the same session. At most one session may be streaming per
	// caller context; create a fresh Session for a new call.
	ErrAlreadyOpened = errors.New("session can only be opened once")

	ErrNoTransport = errors.New("no session transport configured")
)

// FailureKind categorizes fatal session failures.
type FailureKind string

const (
	// FailureAcquisition: the microphone could not be acquired. Fatal
	// to session start, no resources are retained.
	FailureAcquisition FailureKind = "acquisition"
	// FailureTransportOpen: the live service handshake failed. Fatal
	// to session start; the microphone is released before surfacing.
	FailureTransportOpen FailureKind = "transport_open"
	// FailureTransportRuntime: the transport failed after streaming
	// started. The session tears down exactly as an explicit stop
	// would; there is no automatic retry.
	FailureTransportRuntime FailureKind = "transport_runtime"
)

type SessionError struct {
	Kind FailureKind
	Err  error
}

func (e *SessionError) Error() string {
	var prefix string
	switch e.Kind {
	case FailureAcquisition:
		prefix = "microphone unavailable"
	case FailureTransportOpen:
		prefix = "failed to reach the speech service"
	case FailureTransportRuntime:
		prefix = "speech service connection failed"
	default:
		prefix = "session failed"
	}

	if e.Err == nil {
		return prefix
	}
	return fmt.Sprintf("%s: %s", prefix, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
