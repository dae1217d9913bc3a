package call

import (
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"
)

// DefaultCandidateCap bounds buffered ICE candidates per peer. Candidates
// that arrive before a peer's remote description is set have nowhere to go
// yet; they wait here. The far end does not re-send dropped candidates, so
// overflow is an accepted lossy degradation, logged rather than hidden.
const DefaultCandidateCap = 64

// CandidateBuffer queues ICE candidates per peer until the corresponding
// session can accept them. Drain hands the candidates over exactly once.
type CandidateBuffer struct {
	mu      sync.Mutex
	cap     int
	pending map[string][]webrtc.ICECandidateInit
}

// NewCandidateBuffer creates a buffer holding at most capPerPeer candidates
// per peer, dropping the oldest on overflow. capPerPeer <= 0 selects
// DefaultCandidateCap.
func NewCandidateBuffer(capPerPeer int) *CandidateBuffer {
	if capPerPeer <= 0 {
		capPerPeer = DefaultCandidateCap
	}
	return &CandidateBuffer{
		cap:     capPerPeer,
		pending: make(map[string][]webrtc.ICECandidateInit),
	}
}

// Enqueue appends a candidate for a peer, evicting the oldest entry when the
// peer's queue is full.
func (b *CandidateBuffer) Enqueue(peerID string, candidate webrtc.ICECandidateInit) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.pending[peerID]
	if len(queue) >= b.cap {
		queue = queue[1:]
		slog.Warn("candidate buffer full, dropping oldest", "peer", peerID, "cap", b.cap)
	}
	b.pending[peerID] = append(queue, candidate)
}

// Drain returns and clears all buffered candidates for a peer in arrival
// order.
func (b *CandidateBuffer) Drain(peerID string) []webrtc.ICECandidateInit {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := b.pending[peerID]
	delete(b.pending, peerID)
	return queue
}

// Clear discards any buffered candidates for a peer.
func (b *CandidateBuffer) Clear(peerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, peerID)
}

// Reset discards buffered candidates for every peer. Candidates can sit
// here for peers that never progressed to a session, so teardown cannot
// rely on per-session clearing alone.
func (b *CandidateBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.pending)
}

// Len reports how many candidates are buffered for a peer.
func (b *CandidateBuffer) Len(peerID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[peerID])
}

// Empty reports whether no peer has buffered candidates.
func (b *CandidateBuffer) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending) == 0
}
