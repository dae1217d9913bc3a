package call

// Event is a marker interface for notifications emitted by the Coordinator
// toward the surrounding application. The unexported method ensures only
// types from this package satisfy it.
type Event interface {
	isCallEvent()
}

type event struct{}

func (event) isCallEvent() {}

// IncomingCallEvent is emitted when another participant announces a call in
// the room. The application decides how to present it (ringtone, toast,
// incoming-call screen).
type IncomingCallEvent struct {
	event
	CallerID     string
	CallerName   string
	Kind         Kind
	InvitationID string
}

// SessionStateChangedEvent is emitted on every peer session transition.
type SessionStateChangedEvent struct {
	event
	PeerID string
	State  SessionState
}

// CallAnnouncedEvent is emitted when a room's active call record changes,
// so late joiners can render a join affordance.
type CallAnnouncedEvent struct {
	event
	Record CallRecord
}

// CallFailedEvent is emitted when a session reaches the Failed state, or
// when transport failures persist past the configured threshold.
type CallFailedEvent struct {
	event
	PeerID string
	Err    error
}

var (
	_ Event = (*IncomingCallEvent)(nil)
	_ Event = (*SessionStateChangedEvent)(nil)
	_ Event = (*CallAnnouncedEvent)(nil)
	_ Event = (*CallFailedEvent)(nil)
)
