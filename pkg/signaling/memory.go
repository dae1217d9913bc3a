package signaling

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Hub is an in-process signaling exchange. It keeps a per-receiver pending
// queue for each message category; polling drains the queue, so every message
// is delivered at most once. Rooms hold their participants in join order and
// disappear when the last participant leaves.
//
// The Hub backs the HTTP signaling service and doubles as a loopback
// transport for tests via Client.
type Hub struct {
	mu sync.Mutex

	rooms             map[string][]Participant
	pendingOffers     map[string][]OfferEnvelope
	pendingAnswers    map[string][]AnswerEnvelope
	pendingCandidates map[string][]CandidateEnvelope
}

// NewHub creates an empty signaling hub.
func NewHub() *Hub {
	return &Hub{
		rooms:             make(map[string][]Participant),
		pendingOffers:     make(map[string][]OfferEnvelope),
		pendingAnswers:    make(map[string][]AnswerEnvelope),
		pendingCandidates: make(map[string][]CandidateEnvelope),
	}
}

// Join adds a user to a room. Joining a room the user is already in is a
// no-op.
func (h *Hub) Join(roomID, userID, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.rooms[roomID] {
		if p.UserID == userID {
			return
		}
	}
	h.rooms[roomID] = append(h.rooms[roomID], Participant{UserID: userID, Username: username})
}

// Leave removes a user from a room, deleting the room once it is empty.
func (h *Hub) Leave(roomID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	participants := h.rooms[roomID]
	remaining := participants[:0]
	for _, p := range participants {
		if p.UserID != userID {
			remaining = append(remaining, p)
		}
	}
	if len(remaining) == 0 {
		delete(h.rooms, roomID)
		return
	}
	h.rooms[roomID] = remaining
}

// Participants returns everyone in the room except exceptUserID.
func (h *Hub) Participants(roomID, exceptUserID string) []Participant {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []Participant
	for _, p := range h.rooms[roomID] {
		if p.UserID != exceptUserID {
			out = append(out, p)
		}
	}
	return out
}

// PushOffer queues an offer for the receiver.
func (h *Hub) PushOffer(senderID, receiverID string, offer webrtc.SessionDescription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pendingOffers[receiverID] = append(h.pendingOffers[receiverID], OfferEnvelope{SenderID: senderID, Offer: offer})
}

// PushAnswer queues an answer for the receiver.
func (h *Hub) PushAnswer(senderID, receiverID string, answer webrtc.SessionDescription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pendingAnswers[receiverID] = append(h.pendingAnswers[receiverID], AnswerEnvelope{SenderID: senderID, Answer: answer})
}

// PushCandidate queues an ICE candidate for the receiver.
func (h *Hub) PushCandidate(senderID, receiverID string, candidate webrtc.ICECandidateInit) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pendingCandidates[receiverID] = append(h.pendingCandidates[receiverID], CandidateEnvelope{SenderID: senderID, Candidate: candidate})
}

// DrainOffers returns and clears the receiver's pending offers, preserving
// insertion order.
func (h *Hub) DrainOffers(receiverID string) []OfferEnvelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pendingOffers[receiverID]
	delete(h.pendingOffers, receiverID)
	return out
}

// DrainAnswers returns and clears the receiver's pending answers.
func (h *Hub) DrainAnswers(receiverID string) []AnswerEnvelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pendingAnswers[receiverID]
	delete(h.pendingAnswers, receiverID)
	return out
}

// DrainCandidates returns and clears the receiver's pending candidates.
func (h *Hub) DrainCandidates(receiverID string) []CandidateEnvelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pendingCandidates[receiverID]
	delete(h.pendingCandidates, receiverID)
	return out
}

// Client returns a Transport bound to the given user, sending and polling
// against this hub directly.
func (h *Hub) Client(userID string) Transport {
	return &hubClient{hub: h, userID: userID}
}

type hubClient struct {
	hub    *Hub
	userID string
}

var _ Transport = (*hubClient)(nil)

func (c *hubClient) JoinRoom(_ context.Context, roomID, userID, username string) error {
	c.hub.Join(roomID, userID, username)
	return nil
}

func (c *hubClient) LeaveRoom(_ context.Context, roomID, userID string) error {
	c.hub.Leave(roomID, userID)
	return nil
}

func (c *hubClient) SendOffer(_ context.Context, offer webrtc.SessionDescription, receiverID string) error {
	c.hub.PushOffer(c.userID, receiverID, offer)
	return nil
}

func (c *hubClient) SendAnswer(_ context.Context, answer webrtc.SessionDescription, receiverID string) error {
	c.hub.PushAnswer(c.userID, receiverID, answer)
	return nil
}

func (c *hubClient) SendICECandidate(_ context.Context, candidate webrtc.ICECandidateInit, receiverID string) error {
	c.hub.PushCandidate(c.userID, receiverID, candidate)
	return nil
}

func (c *hubClient) PollOffers(_ context.Context) ([]OfferEnvelope, error) {
	return c.hub.DrainOffers(c.userID), nil
}

func (c *hubClient) PollAnswers(_ context.Context) ([]AnswerEnvelope, error) {
	return c.hub.DrainAnswers(c.userID), nil
}

func (c *hubClient) PollICECandidates(_ context.Context) ([]CandidateEnvelope, error) {
	return c.hub.DrainCandidates(c.userID), nil
}

func (c *hubClient) PollParticipants(_ context.Context, roomID string) ([]Participant, error) {
	return c.hub.Participants(roomID, c.userID), nil
}
