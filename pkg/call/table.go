package call

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/startuphub/callhub/pkg/concurrency"
)

// TableHooks are the table's outward edges: locally gathered candidates to
// forward, underlying connection transitions, and state change
// notifications. All hooks are invoked synchronously from the mutating
// goroutine and must not call back into the table for the same peer.
type TableHooks struct {
	OnLocalCandidate  func(peerID string, candidate webrtc.ICECandidateInit)
	OnConnectionState func(peerID string, connected, failed bool)
	OnStateChange     func(peerID string, state SessionState)
}

// SessionTable maps peer ids to their single live session and applies
// signaling transitions to them. Mutations for the same peer are serialized
// through a KeyedGuard because the offer/answer exchange is strictly
// ordered; distinct peers proceed independently.
type SessionTable struct {
	localID   string
	connector PeerConnector
	buffer    *CandidateBuffer
	hooks     TableHooks
	guard     *concurrency.KeyedGuard

	mu       sync.RWMutex
	sessions map[string]*PeerSession
}

// NewSessionTable creates an empty table. localID is this side's own peer
// id, used to break glare deterministically.
func NewSessionTable(localID string, connector PeerConnector, buffer *CandidateBuffer, hooks TableHooks) *SessionTable {
	return &SessionTable{
		localID:   localID,
		connector: connector,
		buffer:    buffer,
		hooks:     hooks,
		guard:     concurrency.NewKeyedGuard(),
		sessions:  make(map[string]*PeerSession),
	}
}

// Get returns the live session for a peer, if any.
func (t *SessionTable) Get(peerID string) (*PeerSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[peerID]
	return s, ok
}

// Has reports whether a live session exists for the peer.
func (t *SessionTable) Has(peerID string) bool {
	_, ok := t.Get(peerID)
	return ok
}

// Len returns the number of live sessions.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// PeerIDs returns the ids of all live sessions.
func (t *SessionTable) PeerIDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	return ids
}

// GetOrCreate returns the peer's existing session or creates one in state
// Idle. Creating over a live session is idempotent: the existing session is
// returned and created is false.
func (t *SessionTable) GetOrCreate(peerID string, role Role) (session *PeerSession, created bool, err error) {
	err = t.guard.Execute(peerID, func() error {
		var innerErr error
		session, created, innerErr = t.getOrCreateLocked(peerID, role)
		return innerErr
	})
	return session, created, err
}

func (t *SessionTable) getOrCreateLocked(peerID string, role Role) (*PeerSession, bool, error) {
	if s, ok := t.Get(peerID); ok {
		return s, false, nil
	}

	pc, err := t.newConnection(peerID)
	if err != nil {
		return nil, false, err
	}

	s := newPeerSession(peerID, role, pc)
	t.mu.Lock()
	t.sessions[peerID] = s
	t.mu.Unlock()
	return s, true, nil
}

func (t *SessionTable) newConnection(peerID string) (PeerConnection, error) {
	pc, err := t.connector.NewPeerConnection(peerID)
	if err != nil {
		return nil, fmt.Errorf("create peer connection for %s: %w", peerID, err)
	}
	pc.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		if t.hooks.OnLocalCandidate != nil {
			t.hooks.OnLocalCandidate(peerID, candidate)
		}
	})
	pc.OnConnectionStateChange(func(connected, failed bool) {
		if t.hooks.OnConnectionState != nil {
			t.hooks.OnConnectionState(peerID, connected, failed)
		}
	})
	return pc, nil
}

// ApplyLocalOffer creates and installs the local offer for a freshly
// created caller session, moving it Idle -> OfferSent. The returned
// description is what the caller sends over the transport.
func (t *SessionTable) ApplyLocalOffer(peerID string) (desc webrtc.SessionDescription, err error) {
	err = t.guard.Execute(peerID, func() error {
		s, ok := t.Get(peerID)
		if !ok {
			return fmt.Errorf("%w: no session for %s", ErrInvalidSignalingState, peerID)
		}
		if s.State() != StateIdle {
			return fmt.Errorf("%w: local offer in state %s", ErrInvalidSignalingState, s.State())
		}

		offer, offerErr := s.conn().CreateOffer()
		if offerErr != nil {
			return fmt.Errorf("create offer for %s: %w", peerID, offerErr)
		}
		if setErr := s.conn().SetLocalDescription(offer); setErr != nil {
			return fmt.Errorf("set local offer for %s: %w", peerID, setErr)
		}
		s.setLocal()
		t.transition(s, StateOfferSent)
		desc = offer
		return nil
	})
	return desc, err
}

// ApplyRemoteOffer feeds an inbound offer into the table. It creates a
// callee session when none exists, treats duplicate offers as logged
// no-ops, and resolves glare: when both sides offered simultaneously, the
// lexicographically smaller peer id stays caller and the other side
// restarts as callee. answerNeeded reports whether the caller should now
// produce and send an answer.
func (t *SessionTable) ApplyRemoteOffer(peerID string, desc webrtc.SessionDescription) (answerNeeded bool, err error) {
	err = t.guard.Execute(peerID, func() error {
		s, ok := t.Get(peerID)
		if !ok {
			created, createErr := t.createCallee(peerID)
			if createErr != nil {
				return createErr
			}
			s = created
		}

		switch {
		case s.State() == StateOfferSent:
			if t.localID < peerID {
				// This side wins glare and stays caller; the remote side
				// will discard its own offer and answer ours.
				slog.Info("glare: keeping caller role, discarding remote offer", "peer", peerID)
				return nil
			}
			slog.Info("glare: yielding caller role to peer", "peer", peerID)
			if closeErr := s.conn().Close(); closeErr != nil {
				slog.Warn("closing superseded connection", "peer", peerID, "error", closeErr)
			}
			pc, connErr := t.newConnection(peerID)
			if connErr != nil {
				return connErr
			}
			s.replaceConn(pc)
			s.setRole(RoleCallee)

		case s.RemoteDescriptionSet():
			slog.Info("duplicate offer ignored", "peer", peerID, "state", s.State())
			return nil

		case s.State() != StateIdle:
			return fmt.Errorf("%w: remote offer in state %s", ErrInvalidSignalingState, s.State())
		}

		if setErr := s.conn().SetRemoteDescription(desc); setErr != nil {
			return fmt.Errorf("set remote offer from %s: %w", peerID, setErr)
		}
		s.setRemote()
		t.transition(s, StateOfferReceived)
		t.flushCandidates(s)
		answerNeeded = true
		return nil
	})
	return answerNeeded, err
}

// ApplyLocalAnswer creates and installs the local answer for a session in
// OfferReceived, moving it to AnswerExchanged. The returned description is
// sent back to the offering peer.
func (t *SessionTable) ApplyLocalAnswer(peerID string) (desc webrtc.SessionDescription, err error) {
	err = t.guard.Execute(peerID, func() error {
		s, ok := t.Get(peerID)
		if !ok {
			return fmt.Errorf("%w: no session for %s", ErrInvalidSignalingState, peerID)
		}
		if s.State() != StateOfferReceived {
			return fmt.Errorf("%w: local answer in state %s", ErrInvalidSignalingState, s.State())
		}

		answer, answerErr := s.conn().CreateAnswer()
		if answerErr != nil {
			return fmt.Errorf("create answer for %s: %w", peerID, answerErr)
		}
		if setErr := s.conn().SetLocalDescription(answer); setErr != nil {
			return fmt.Errorf("set local answer for %s: %w", peerID, setErr)
		}
		s.setLocal()
		t.transition(s, StateAnswerExchanged)
		desc = answer
		return nil
	})
	return desc, err
}

// ApplyRemoteAnswer feeds an inbound answer into the table, moving the
// session OfferSent -> AnswerExchanged. An answer for an unknown session or
// a session in the wrong state is an InvalidSignalingState error the
// reconciler skips.
func (t *SessionTable) ApplyRemoteAnswer(peerID string, desc webrtc.SessionDescription) error {
	return t.guard.Execute(peerID, func() error {
		s, ok := t.Get(peerID)
		if !ok {
			return fmt.Errorf("%w: answer for unknown session %s", ErrInvalidSignalingState, peerID)
		}
		if s.State() == StateAnswerExchanged && s.RemoteDescriptionSet() {
			slog.Info("duplicate answer ignored", "peer", peerID)
			return nil
		}
		if s.State() != StateOfferSent {
			return fmt.Errorf("%w: remote answer in state %s", ErrInvalidSignalingState, s.State())
		}

		if setErr := s.conn().SetRemoteDescription(desc); setErr != nil {
			return fmt.Errorf("set remote answer from %s: %w", peerID, setErr)
		}
		s.setRemote()
		t.transition(s, StateAnswerExchanged)
		t.flushCandidates(s)
		return nil
	})
}

// ApplyICECandidate delivers a candidate to the peer's connection when its
// remote description is already set, and buffers it otherwise. Candidates
// are accepted in any state.
func (t *SessionTable) ApplyICECandidate(peerID string, candidate webrtc.ICECandidateInit) error {
	return t.guard.Execute(peerID, func() error {
		s, ok := t.Get(peerID)
		if !ok || !s.RemoteDescriptionSet() {
			t.buffer.Enqueue(peerID, candidate)
			return nil
		}
		if err := s.conn().AddICECandidate(candidate); err != nil {
			return fmt.Errorf("add candidate from %s: %w", peerID, err)
		}
		return nil
	})
}

// MarkConnected records the media layer's report that the underlying
// connection is established, moving AnswerExchanged -> Connected.
func (t *SessionTable) MarkConnected(peerID string) error {
	return t.guard.Execute(peerID, func() error {
		s, ok := t.Get(peerID)
		if !ok {
			return fmt.Errorf("%w: connection report for unknown session %s", ErrInvalidSignalingState, peerID)
		}
		switch s.State() {
		case StateConnected:
			return nil
		case StateAnswerExchanged:
			t.transition(s, StateConnected)
			return nil
		default:
			return fmt.Errorf("%w: connected report in state %s", ErrInvalidSignalingState, s.State())
		}
	})
}

// Fail moves a session to Failed and removes it. Reported upward through
// the state change hook; unknown peers are ignored.
func (t *SessionTable) Fail(peerID string) {
	_ = t.guard.Execute(peerID, func() error {
		s, ok := t.Get(peerID)
		if !ok {
			return nil
		}
		t.removeLocked(s, StateFailed)
		return nil
	})
}

// Close tears a session down: the connection is closed, buffered candidates
// are released, and the table entry is removed. Closing an unknown peer is
// a no-op.
func (t *SessionTable) Close(peerID string) {
	_ = t.guard.Execute(peerID, func() error {
		s, ok := t.Get(peerID)
		if !ok {
			return nil
		}
		t.removeLocked(s, StateClosed)
		return nil
	})
}

// CloseAll tears down every live session.
func (t *SessionTable) CloseAll() {
	for _, peerID := range t.PeerIDs() {
		t.Close(peerID)
	}
}

// FailAll moves every live session to Failed, used when transport failures
// persist past the configured threshold.
func (t *SessionTable) FailAll() {
	for _, peerID := range t.PeerIDs() {
		t.Fail(peerID)
	}
}

func (t *SessionTable) removeLocked(s *PeerSession, terminal SessionState) {
	if !s.State().Terminal() {
		t.transition(s, terminal)
	}
	if err := s.conn().Close(); err != nil {
		slog.Warn("closing peer connection", "peer", s.PeerID, "error", err)
	}
	t.buffer.Clear(s.PeerID)
	t.mu.Lock()
	delete(t.sessions, s.PeerID)
	t.mu.Unlock()
}

func (t *SessionTable) createCallee(peerID string) (*PeerSession, error) {
	s, _, err := t.getOrCreateLocked(peerID, RoleCallee)
	return s, err
}

func (t *SessionTable) transition(s *PeerSession, state SessionState) {
	s.setState(state)
	slog.Debug("session state", "peer", s.PeerID, "state", state.String())
	if t.hooks.OnStateChange != nil {
		t.hooks.OnStateChange(s.PeerID, state)
	}
}

// flushCandidates drains candidates buffered before the remote description
// existed and hands them to the connection, each exactly once.
func (t *SessionTable) flushCandidates(s *PeerSession) {
	for _, candidate := range t.buffer.Drain(s.PeerID) {
		if err := s.conn().AddICECandidate(candidate); err != nil {
			slog.Warn("delivering buffered candidate", "peer", s.PeerID, "error", err)
		}
	}
}
