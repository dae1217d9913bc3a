package call

import (
	"context"
	"log/slog"
	"time"

	"github.com/startuphub/callhub/pkg/signaling"
)

// DefaultPollInterval is the reconciler tick period.
const DefaultPollInterval = time.Second

// DefaultPollTimeout bounds one tick's transport calls so a slow response
// cannot block the next scheduled tick indefinitely.
const DefaultPollTimeout = 5 * time.Second

// DefaultFailureThreshold is how many consecutive failed ticks are
// tolerated before live sessions are failed and the application notified.
const DefaultFailureThreshold = 10

// ReconcilerHandler receives the polled signaling messages, one category at
// a time in the fixed tick order.
type ReconcilerHandler interface {
	HandleOffer(ctx context.Context, envelope signaling.OfferEnvelope) error
	HandleAnswer(ctx context.Context, envelope signaling.AnswerEnvelope) error
	HandleCandidate(ctx context.Context, envelope signaling.CandidateEnvelope) error
	HandleParticipants(ctx context.Context, participants []signaling.Participant) error
}

// Reconciler is the polling loop standing in for a push signaling channel.
// Each tick drains, in order: offers, answers, ICE candidates, then the
// participant list. Answers and candidates presuppose an already-processed
// offer, so offers always come first. A failed poll abandons the tick; the
// next period retries. A failing item is logged and skipped so one
// malformed message cannot stall the tick.
type Reconciler struct {
	transport signaling.Transport
	handler   ReconcilerHandler
	roomID    string

	interval         time.Duration
	pollTimeout      time.Duration
	failureThreshold int

	// onFailureThreshold fires once when consecutive tick failures reach
	// the threshold; the counter resets on the next successful tick.
	onFailureThreshold func(consecutive int)

	consecutiveFailures int
}

// ReconcilerConfig carries the tunables; zero values select defaults.
type ReconcilerConfig struct {
	Interval           time.Duration
	PollTimeout        time.Duration
	FailureThreshold   int
	OnFailureThreshold func(consecutive int)
}

// NewReconciler creates a reconciler polling the transport for roomID and
// feeding the handler.
func NewReconciler(transport signaling.Transport, handler ReconcilerHandler, roomID string, cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	return &Reconciler{
		transport:          transport,
		handler:            handler,
		roomID:             roomID,
		interval:           cfg.Interval,
		pollTimeout:        cfg.PollTimeout,
		failureThreshold:   cfg.FailureThreshold,
		onFailureThreshold: cfg.OnFailureThreshold,
	}
}

// Run executes ticks until ctx is cancelled. Cancellation stops scheduling
// future ticks; an in-flight tick runs to completion under its own poll
// timeout.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runTick()
		}
	}
}

// runTick gives the tick its own deadline, detached from the run context so
// cancellation mid-tick does not cut transport calls short.
func (r *Reconciler) runTick() {
	tickCtx, cancel := context.WithTimeout(context.Background(), r.pollTimeout)
	defer cancel()

	if err := r.Tick(tickCtx); err != nil {
		r.consecutiveFailures++
		// Cap the logging so a long outage does not flood the log.
		if r.consecutiveFailures == 1 || r.consecutiveFailures == r.failureThreshold {
			slog.Warn("reconciler tick failed", "error", err, "consecutive", r.consecutiveFailures)
		}
		if r.consecutiveFailures == r.failureThreshold && r.onFailureThreshold != nil {
			r.onFailureThreshold(r.consecutiveFailures)
		}
		return
	}
	r.consecutiveFailures = 0
}

// Tick performs one reconciliation pass: offers, answers, candidates,
// participants, in that order. Exported for deterministic tests; Run calls
// it on the ticker.
func (r *Reconciler) Tick(ctx context.Context) error {
	offers, err := r.transport.PollOffers(ctx)
	if err != nil {
		return &TransportError{Op: "poll offers", Err: err}
	}
	for _, envelope := range offers {
		if err := r.handler.HandleOffer(ctx, envelope); err != nil {
			slog.Warn("skipping offer", "sender", envelope.SenderID, "error", err)
		}
	}

	answers, err := r.transport.PollAnswers(ctx)
	if err != nil {
		return &TransportError{Op: "poll answers", Err: err}
	}
	for _, envelope := range answers {
		if err := r.handler.HandleAnswer(ctx, envelope); err != nil {
			slog.Warn("skipping answer", "sender", envelope.SenderID, "error", err)
		}
	}

	candidates, err := r.transport.PollICECandidates(ctx)
	if err != nil {
		return &TransportError{Op: "poll candidates", Err: err}
	}
	for _, envelope := range candidates {
		if err := r.handler.HandleCandidate(ctx, envelope); err != nil {
			slog.Warn("skipping candidate", "sender", envelope.SenderID, "error", err)
		}
	}

	participants, err := r.transport.PollParticipants(ctx, r.roomID)
	if err != nil {
		return &TransportError{Op: "poll participants", Err: err}
	}
	if err := r.handler.HandleParticipants(ctx, participants); err != nil {
		slog.Warn("handling participants", "error", err)
	}

	return nil
}
