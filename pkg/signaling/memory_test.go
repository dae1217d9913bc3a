package signaling

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offer(sdp string) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
}

func TestHub_JoinLeave(t *testing.T) {
	hub := NewHub()

	hub.Join("room-1", "alice", "Alice")
	hub.Join("room-1", "bob", "Bob")
	hub.Join("room-1", "alice", "Alice")

	all := hub.Participants("room-1", "")
	require.Len(t, all, 2)
	assert.Equal(t, "alice", all[0].UserID)
	assert.Equal(t, "bob", all[1].UserID)

	hub.Leave("room-1", "alice")
	assert.Len(t, hub.Participants("room-1", ""), 1)

	hub.Leave("room-1", "bob")
	assert.Empty(t, hub.Participants("room-1", ""))

	// Leaving a room twice, or one that never existed, is harmless.
	hub.Leave("room-1", "bob")
	hub.Leave("missing", "alice")
}

func TestHub_ParticipantsExcludesRequester(t *testing.T) {
	hub := NewHub()
	hub.Join("room-1", "alice", "Alice")
	hub.Join("room-1", "bob", "Bob")

	others := hub.Participants("room-1", "alice")
	require.Len(t, others, 1)
	assert.Equal(t, "bob", others[0].UserID)
}

func TestHub_DrainDeliversOnce(t *testing.T) {
	hub := NewHub()

	hub.PushOffer("alice", "bob", offer("first"))
	hub.PushOffer("carol", "bob", offer("second"))

	offers := hub.DrainOffers("bob")
	require.Len(t, offers, 2)
	assert.Equal(t, "alice", offers[0].SenderID)
	assert.Equal(t, "first", offers[0].Offer.SDP)
	assert.Equal(t, "carol", offers[1].SenderID)

	assert.Empty(t, hub.DrainOffers("bob"))
}

func TestHub_QueuesArePerReceiver(t *testing.T) {
	hub := NewHub()

	hub.PushCandidate("alice", "bob", webrtc.ICECandidateInit{Candidate: "for-bob"})
	hub.PushCandidate("alice", "carol", webrtc.ICECandidateInit{Candidate: "for-carol"})

	bobs := hub.DrainCandidates("bob")
	require.Len(t, bobs, 1)
	assert.Equal(t, "for-bob", bobs[0].Candidate.Candidate)

	carols := hub.DrainCandidates("carol")
	require.Len(t, carols, 1)
	assert.Equal(t, "for-carol", carols[0].Candidate.Candidate)
}

func TestHubClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	alice := hub.Client("alice")
	bob := hub.Client("bob")

	require.NoError(t, alice.JoinRoom(ctx, "room-1", "alice", "Alice"))
	require.NoError(t, bob.JoinRoom(ctx, "room-1", "bob", "Bob"))

	require.NoError(t, alice.SendOffer(ctx, offer("hello"), "bob"))
	offers, err := bob.PollOffers(ctx)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "alice", offers[0].SenderID)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "hi"}
	require.NoError(t, bob.SendAnswer(ctx, answer, "alice"))
	answers, err := alice.PollAnswers(ctx)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.Equal(t, "hi", answers[0].Answer.SDP)

	require.NoError(t, alice.SendICECandidate(ctx, webrtc.ICECandidateInit{Candidate: "c1"}, "bob"))
	candidates, err := bob.PollICECandidates(ctx)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	// Each side sees the other, never itself.
	participants, err := alice.PollParticipants(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, "bob", participants[0].UserID)

	require.NoError(t, bob.LeaveRoom(ctx, "room-1", "bob"))
	participants, err = alice.PollParticipants(ctx, "room-1")
	require.NoError(t, err)
	assert.Empty(t, participants)
}
