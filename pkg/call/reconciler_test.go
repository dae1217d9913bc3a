package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/startuphub/callhub/pkg/signaling"
)

// scriptedTransport serves fixed envelopes and appends every poll to a
// shared trace, so tests can assert the tick's phase order.
type scriptedTransport struct {
	trace *[]string

	offers       []signaling.OfferEnvelope
	answers      []signaling.AnswerEnvelope
	candidates   []signaling.CandidateEnvelope
	participants []signaling.Participant
}

func (s *scriptedTransport) JoinRoom(context.Context, string, string, string) error { return nil }
func (s *scriptedTransport) LeaveRoom(context.Context, string, string) error        { return nil }
func (s *scriptedTransport) SendOffer(context.Context, webrtc.SessionDescription, string) error {
	return nil
}
func (s *scriptedTransport) SendAnswer(context.Context, webrtc.SessionDescription, string) error {
	return nil
}
func (s *scriptedTransport) SendICECandidate(context.Context, webrtc.ICECandidateInit, string) error {
	return nil
}

func (s *scriptedTransport) PollOffers(context.Context) ([]signaling.OfferEnvelope, error) {
	*s.trace = append(*s.trace, "poll offers")
	return s.offers, nil
}

func (s *scriptedTransport) PollAnswers(context.Context) ([]signaling.AnswerEnvelope, error) {
	*s.trace = append(*s.trace, "poll answers")
	return s.answers, nil
}

func (s *scriptedTransport) PollICECandidates(context.Context) ([]signaling.CandidateEnvelope, error) {
	*s.trace = append(*s.trace, "poll candidates")
	return s.candidates, nil
}

func (s *scriptedTransport) PollParticipants(context.Context, string) ([]signaling.Participant, error) {
	*s.trace = append(*s.trace, "poll participants")
	return s.participants, nil
}

// tracingHandler appends every delivery to the shared trace. Scripted
// errors let tests exercise the skip-and-continue path.
type tracingHandler struct {
	trace      *[]string
	offerErr   error
	answerErr  error
	candErr    error
	partsCalls int
}

func (h *tracingHandler) HandleOffer(_ context.Context, e signaling.OfferEnvelope) error {
	*h.trace = append(*h.trace, "offer from "+e.SenderID)
	return h.offerErr
}

func (h *tracingHandler) HandleAnswer(_ context.Context, e signaling.AnswerEnvelope) error {
	*h.trace = append(*h.trace, "answer from "+e.SenderID)
	return h.answerErr
}

func (h *tracingHandler) HandleCandidate(_ context.Context, e signaling.CandidateEnvelope) error {
	*h.trace = append(*h.trace, "candidate from "+e.SenderID)
	return h.candErr
}

func (h *tracingHandler) HandleParticipants(context.Context, []signaling.Participant) error {
	*h.trace = append(*h.trace, "participants")
	h.partsCalls++
	return nil
}

func TestReconciler_TickPhaseOrder(t *testing.T) {
	var trace []string
	transport := &scriptedTransport{
		trace:        &trace,
		offers:       []signaling.OfferEnvelope{{SenderID: "alice"}},
		answers:      []signaling.AnswerEnvelope{{SenderID: "bob"}},
		candidates:   []signaling.CandidateEnvelope{{SenderID: "alice"}, {SenderID: "bob"}},
		participants: []signaling.Participant{{UserID: "carol"}},
	}
	handler := &tracingHandler{trace: &trace}
	r := NewReconciler(transport, handler, "room-1", ReconcilerConfig{})

	require.NoError(t, r.Tick(context.Background()))

	assert.Equal(t, []string{
		"poll offers",
		"offer from alice",
		"poll answers",
		"answer from bob",
		"poll candidates",
		"candidate from alice",
		"candidate from bob",
		"poll participants",
		"participants",
	}, trace)
}

func TestReconciler_ItemErrorsAreSkipped(t *testing.T) {
	var trace []string
	transport := &scriptedTransport{
		trace:      &trace,
		offers:     []signaling.OfferEnvelope{{SenderID: "alice"}, {SenderID: "bob"}},
		candidates: []signaling.CandidateEnvelope{{SenderID: "alice"}},
	}
	handler := &tracingHandler{trace: &trace, offerErr: errors.New("bad sdp")}
	r := NewReconciler(transport, handler, "room-1", ReconcilerConfig{})

	// One bad offer stops neither the remaining offers nor later phases.
	require.NoError(t, r.Tick(context.Background()))
	assert.Contains(t, trace, "offer from bob")
	assert.Contains(t, trace, "candidate from alice")
	assert.Equal(t, 1, handler.partsCalls)
}

func TestReconciler_PollFailureAbortsTick(t *testing.T) {
	var trace []string
	handler := &tracingHandler{trace: &trace}
	r := NewReconciler(failingTransport{}, handler, "room-1", ReconcilerConfig{})

	err := r.Tick(context.Background())
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "poll offers", transportErr.Op)
	assert.Empty(t, trace)
}

func TestReconciler_FailureThresholdFiresOnce(t *testing.T) {
	var trace []string
	handler := &tracingHandler{trace: &trace}
	var fired []int
	r := NewReconciler(failingTransport{}, handler, "room-1", ReconcilerConfig{
		FailureThreshold:   3,
		OnFailureThreshold: func(consecutive int) { fired = append(fired, consecutive) },
	})

	for i := 0; i < 5; i++ {
		r.runTick()
	}

	// Fires exactly when the streak hits the threshold, not on every
	// failure past it.
	assert.Equal(t, []int{3}, fired)
}

func TestReconciler_SuccessResetsFailureStreak(t *testing.T) {
	var trace []string
	handler := &tracingHandler{trace: &trace}
	var fired int
	r := NewReconciler(failingTransport{}, handler, "room-1", ReconcilerConfig{
		FailureThreshold:   3,
		OnFailureThreshold: func(int) { fired++ },
	})

	r.runTick()
	r.runTick()

	// A healthy tick in between starts the count over.
	healthy := &scriptedTransport{trace: &trace}
	r.transport = healthy
	r.runTick()
	r.transport = failingTransport{}
	r.runTick()
	r.runTick()

	assert.Zero(t, fired)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	var trace []string
	r := NewReconciler(&scriptedTransport{trace: &trace}, &tracingHandler{trace: &trace}, "room-1",
		ReconcilerConfig{Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("run did not stop after cancellation")
	}
}
