package call

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// MediaController abstracts microphone/camera handling. The browser or OS
// owns capture and rendering; the coordinator only asks for streams and
// toggles tracks.
type MediaController interface {
	// Acquire requests local media. Failures surface as MediaError to the
	// caller of StartCall/AcceptIncomingCall and are not retried.
	Acquire(ctx context.Context, audio, video bool) error

	// SetAudioEnabled and SetVideoEnabled toggle local tracks. They never
	// touch signaling.
	SetAudioEnabled(enabled bool)
	SetVideoEnabled(enabled bool)

	// Release stops all local tracks.
	Release()
}

// PeerConnection is the slice of a peer media connection the coordinator
// drives. pkg/webrtc provides the pion-backed implementation; tests use
// fakes.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	// OnICECandidate registers the callback for locally gathered candidates
	// that must be forwarded to the remote peer.
	OnICECandidate(f func(webrtc.ICECandidateInit))

	// OnConnectionStateChange reports the underlying connection going live
	// or dying. failed implies not connected.
	OnConnectionStateChange(f func(connected, failed bool))

	Close() error
}

// PeerConnector creates peer connections on demand, one per remote peer.
type PeerConnector interface {
	NewPeerConnection(peerID string) (PeerConnection, error)
}

// Notifier is the outward notification surface: ringtone, title flashing,
// toasts, desktop notifications. Implemented by the application layer.
type Notifier interface {
	IncomingCall(callerID, callerName string, kind Kind, invitationID string)
	CallEnded(roomID string)
}

// NopNotifier ignores all notifications.
type NopNotifier struct{}

func (NopNotifier) IncomingCall(string, string, Kind, string) {}
func (NopNotifier) CallEnded(string)                          {}

// NopMedia is a MediaController for headless use and tests.
type NopMedia struct{}

func (NopMedia) Acquire(context.Context, bool, bool) error { return nil }
func (NopMedia) SetAudioEnabled(bool)                      {}
func (NopMedia) SetVideoEnabled(bool)                      {}
func (NopMedia) Release()                                  {}
