package call

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/startuphub/callhub/pkg/signaling"
)

// fakeConn is a scripted PeerConnection recording everything applied to it.
type fakeConn struct {
	mu         sync.Mutex
	peerID     string
	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool
	onCand     func(webrtc.ICECandidateInit)
	onState    func(connected, failed bool)
}

func (f *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localDesc = &desc
	return nil
}

func (f *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteDesc = &desc
	return nil
}

func (f *fakeConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, candidate)
	return nil
}

func (f *fakeConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCand = fn
}

func (f *fakeConn) OnConnectionStateChange(fn func(connected, failed bool)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) deliveredCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]webrtc.ICECandidateInit, len(f.candidates))
	copy(out, f.candidates)
	return out
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeConnector hands out fakeConns and remembers them per peer, in
// creation order.
type fakeConnector struct {
	mu    sync.Mutex
	conns map[string][]*fakeConn
	fail  bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{conns: make(map[string][]*fakeConn)}
}

func (f *fakeConnector) NewPeerConnection(peerID string) (PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("connector unavailable")
	}
	conn := &fakeConn{peerID: peerID}
	f.conns[peerID] = append(f.conns[peerID], conn)
	return conn, nil
}

// latest returns the most recently created connection for a peer.
func (f *fakeConnector) latest(peerID string) *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	conns := f.conns[peerID]
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

func (f *fakeConnector) created(peerID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns[peerID])
}

// failingTransport errors on every operation, for failure-threshold tests.
type failingTransport struct{}

var _ signaling.Transport = (*failingTransport)(nil)

var errTransportDown = errors.New("transport down")

func (failingTransport) JoinRoom(context.Context, string, string, string) error { return errTransportDown }
func (failingTransport) LeaveRoom(context.Context, string, string) error        { return errTransportDown }
func (failingTransport) SendOffer(context.Context, webrtc.SessionDescription, string) error {
	return errTransportDown
}
func (failingTransport) SendAnswer(context.Context, webrtc.SessionDescription, string) error {
	return errTransportDown
}
func (failingTransport) SendICECandidate(context.Context, webrtc.ICECandidateInit, string) error {
	return errTransportDown
}
func (failingTransport) PollOffers(context.Context) ([]signaling.OfferEnvelope, error) {
	return nil, errTransportDown
}
func (failingTransport) PollAnswers(context.Context) ([]signaling.AnswerEnvelope, error) {
	return nil, errTransportDown
}
func (failingTransport) PollICECandidates(context.Context) ([]signaling.CandidateEnvelope, error) {
	return nil, errTransportDown
}
func (failingTransport) PollParticipants(context.Context, string) ([]signaling.Participant, error) {
	return nil, errTransportDown
}

// countingTransport wraps another transport and counts every call made
// through it.
type countingTransport struct {
	signaling.Transport
	mu    sync.Mutex
	calls int
}

func (c *countingTransport) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *countingTransport) bump() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingTransport) PollOffers(ctx context.Context) ([]signaling.OfferEnvelope, error) {
	c.bump()
	return c.Transport.PollOffers(ctx)
}

func (c *countingTransport) PollAnswers(ctx context.Context) ([]signaling.AnswerEnvelope, error) {
	c.bump()
	return c.Transport.PollAnswers(ctx)
}

func (c *countingTransport) PollICECandidates(ctx context.Context) ([]signaling.CandidateEnvelope, error) {
	c.bump()
	return c.Transport.PollICECandidates(ctx)
}

func (c *countingTransport) PollParticipants(ctx context.Context, roomID string) ([]signaling.Participant, error) {
	c.bump()
	return c.Transport.PollParticipants(ctx, roomID)
}
