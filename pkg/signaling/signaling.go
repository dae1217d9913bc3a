package signaling

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// OfferEnvelope carries an SDP offer from a remote peer. The description is
// opaque to the coordinator beyond its role tag.
type OfferEnvelope struct {
	SenderID string                    `json:"sender_id"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

// AnswerEnvelope carries an SDP answer from a remote peer.
type AnswerEnvelope struct {
	SenderID string                    `json:"sender_id"`
	Answer   webrtc.SessionDescription `json:"answer"`
}

// CandidateEnvelope carries an ICE candidate from a remote peer.
type CandidateEnvelope struct {
	SenderID  string                  `json:"sender_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// Participant identifies a user present in a room.
type Participant struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Transport is the request/response signaling channel used to exchange
// call setup messages when no persistent socket is available. Poll methods
// drain the caller's pending queue: a message is returned at most once.
//
// Implementations: api.Client (HTTP) and the in-process Hub.
type Transport interface {
	JoinRoom(ctx context.Context, roomID, userID, username string) error
	LeaveRoom(ctx context.Context, roomID, userID string) error

	SendOffer(ctx context.Context, offer webrtc.SessionDescription, receiverID string) error
	SendAnswer(ctx context.Context, answer webrtc.SessionDescription, receiverID string) error
	SendICECandidate(ctx context.Context, candidate webrtc.ICECandidateInit, receiverID string) error

	PollOffers(ctx context.Context) ([]OfferEnvelope, error)
	PollAnswers(ctx context.Context) ([]AnswerEnvelope, error)
	PollICECandidates(ctx context.Context) ([]CandidateEnvelope, error)

	// PollParticipants lists everyone in the room except the polling user.
	PollParticipants(ctx context.Context, roomID string) ([]Participant, error)
}
