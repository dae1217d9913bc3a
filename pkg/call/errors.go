package call

import (
	"errors"
	"fmt"
)

// ErrInvalidSignalingState marks a signaling message that arrived for a
// session not in a state that permits it, such as an answer with no prior
// offer. The reconciler skips the message and continues.
var ErrInvalidSignalingState = errors.New("invalid signaling state")

// ErrDuplicateSession marks an attempt to create a second live session for a
// peer. Creation paths treat it as idempotent success and return the
// existing session; it is exported for callers that need to distinguish.
var ErrDuplicateSession = errors.New("session already exists for peer")

// ErrNoIncomingCall is returned by AcceptIncomingCall when there is no
// pending invitation to accept.
var ErrNoIncomingCall = errors.New("no incoming call to accept")

// TransportError wraps a failed send or poll on the signaling transport.
// Transient by contract: the reconciler retries on the next tick.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("signaling transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MediaError wraps a microphone/camera acquisition failure. Surfaced to the
// caller of StartCall or AcceptIncomingCall and never retried automatically.
type MediaError struct {
	Err error
}

func (e *MediaError) Error() string {
	return fmt.Sprintf("media acquisition: %v", e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }
