package call

import (
	"sync"
)

// PeerSession is the negotiation state for exactly one remote peer. At most
// one live session exists per peer id; redundant offers reuse it instead of
// spawning duplicate connections.
//
// Mutations go through the SessionTable, which serializes them per peer.
// The session's own lock only makes reads safe from other goroutines.
type PeerSession struct {
	PeerID string

	mu        sync.Mutex
	role      Role
	state     SessionState
	localSet  bool
	remoteSet bool
	pc        PeerConnection
}

func newPeerSession(peerID string, role Role, pc PeerConnection) *PeerSession {
	return &PeerSession{
		PeerID: peerID,
		role:   role,
		state:  StateIdle,
		pc:     pc,
	}
}

// State returns the session's current negotiation state.
func (s *PeerSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role returns which side of the offer/answer exchange this session plays.
// It can change once: the losing side of a glare exchange becomes callee.
func (s *PeerSession) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

// RemoteDescriptionSet reports whether the remote description has been
// applied, the gate for delivering ICE candidates downstream.
func (s *PeerSession) RemoteDescriptionSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteSet
}

func (s *PeerSession) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *PeerSession) setRole(role Role) {
	s.mu.Lock()
	s.role = role
	s.mu.Unlock()
}

func (s *PeerSession) setLocal() {
	s.mu.Lock()
	s.localSet = true
	s.mu.Unlock()
}

func (s *PeerSession) setRemote() {
	s.mu.Lock()
	s.remoteSet = true
	s.mu.Unlock()
}

func (s *PeerSession) conn() PeerConnection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pc
}

func (s *PeerSession) replaceConn(pc PeerConnection) {
	s.mu.Lock()
	s.pc = pc
	s.localSet = false
	s.remoteSet = false
	s.state = StateIdle
	s.mu.Unlock()
}
