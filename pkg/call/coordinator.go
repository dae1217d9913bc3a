package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"golang.org/x/sync/errgroup"

	"github.com/startuphub/callhub/pkg/concurrency"
	"github.com/startuphub/callhub/pkg/signaling"
)

// ErrConnectionLost marks a transport-reported terminal connection failure.
var ErrConnectionLost = errors.New("peer connection lost")

// ErrCoordinatorClosed is returned by operations on a coordinator after
// CloseAll.
var ErrCoordinatorClosed = errors.New("coordinator closed")

// Options configures a Coordinator. Transport and Connector are required;
// everything else has a sensible zero value.
type Options struct {
	RoomID   string
	RoomName string
	UserID   string
	Username string
	Kind     Kind

	Transport signaling.Transport
	Connector PeerConnector
	Media     MediaController
	Notifier  Notifier

	// Clock overrides time.Now, letting tests drive registry expiry.
	Clock func() time.Time

	PollInterval       time.Duration
	PollTimeout        time.Duration
	FailureThreshold   int
	CandidateBufferCap int
	CallTTL            time.Duration

	// EventBuffer sizes the outward event channel; emission never blocks
	// and drops with a warning when the application falls behind.
	EventBuffer int
}

// Coordinator owns one room's call state: the session table, the candidate
// buffer, the call registry, and the polling reconciler. It is an explicit
// instance rather than package state so independent coordinators can
// coexist, one per room or per test.
type Coordinator struct {
	opts       Options
	transport  signaling.Transport
	media      MediaController
	notifier   Notifier
	clock      func() time.Time
	buffer     *CandidateBuffer
	table      *SessionTable
	registry   *CallRegistry
	reconciler *Reconciler
	runGuard   *concurrency.ConcurrencyGuard
	events     chan Event

	mu           sync.Mutex
	initiator    bool
	mediaReady   bool
	audioEnabled bool
	videoEnabled bool
	incoming     *IncomingCallEvent
	closed       bool
	cancelRun    context.CancelFunc
}

// NewCoordinator wires up a coordinator from Options.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Transport == nil {
		return nil, errors.New("signaling transport is required")
	}
	if opts.Connector == nil {
		return nil, errors.New("peer connector is required")
	}
	if opts.Media == nil {
		opts.Media = NopMedia{}
	}
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Kind == "" {
		opts.Kind = KindAudio
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 32
	}

	c := &Coordinator{
		opts:         opts,
		transport:    opts.Transport,
		media:        opts.Media,
		notifier:     opts.Notifier,
		clock:        opts.Clock,
		buffer:       NewCandidateBuffer(opts.CandidateBufferCap),
		registry:     NewCallRegistry(opts.CallTTL, opts.Clock),
		runGuard:     concurrency.NewConcurrencyGuard(),
		events:       make(chan Event, opts.EventBuffer),
		audioEnabled: true,
		videoEnabled: opts.Kind == KindVideo,
	}

	c.table = NewSessionTable(opts.UserID, opts.Connector, c.buffer, TableHooks{
		OnLocalCandidate:  c.sendLocalCandidate,
		OnConnectionState: c.handleConnectionHook,
		OnStateChange: func(peerID string, state SessionState) {
			c.emit(SessionStateChangedEvent{PeerID: peerID, State: state})
		},
	})

	c.reconciler = NewReconciler(opts.Transport, c, opts.RoomID, ReconcilerConfig{
		Interval:         opts.PollInterval,
		PollTimeout:      opts.PollTimeout,
		FailureThreshold: opts.FailureThreshold,
		OnFailureThreshold: func(consecutive int) {
			slog.Error("signaling transport failing, failing live sessions", "consecutive", consecutive)
			c.table.FailAll()
			c.emit(CallFailedEvent{Err: fmt.Errorf("signaling unreachable for %d ticks", consecutive)})
		},
	})

	return c, nil
}

// Events is the outward notification stream consumed by the application's
// UI/state layer.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// Run joins the room and drives the polling loop until ctx is cancelled,
// then tears everything down. It returns nil on clean cancellation. At most
// one Run may be active; an overlapping call returns concurrency.ErrBusy.
func (c *Coordinator) Run(ctx context.Context) error {
	return c.runGuard.Execute(func() error { return c.run(ctx) })
}

func (c *Coordinator) run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		return ErrCoordinatorClosed
	}
	c.cancelRun = cancel
	c.mu.Unlock()

	if err := c.transport.JoinRoom(runCtx, c.opts.RoomID, c.opts.UserID, c.opts.Username); err != nil {
		cancel()
		return &TransportError{Op: "join room", Err: err}
	}
	slog.Info("joined room", "room", c.opts.RoomID, "user", c.opts.UserID)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return c.reconciler.Run(gctx)
	})

	err := g.Wait()
	c.CloseAll()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// StartCall negotiates a session toward peerID as caller: acquire media if
// needed, create the session, create and send the offer. Calling it again
// while the session is live is a no-op; exactly one session per peer
// exists at any time.
func (c *Coordinator) StartCall(ctx context.Context, peerID string) error {
	if c.isClosed() {
		return ErrCoordinatorClosed
	}
	if peerID == c.opts.UserID {
		return nil
	}

	if err := c.ensureMedia(ctx); err != nil {
		return err
	}

	_, created, err := c.table.GetOrCreate(peerID, RoleCaller)
	if err != nil {
		return err
	}
	if !created {
		slog.Debug("session already live, ignoring duplicate start", "peer", peerID)
		return nil
	}

	c.mu.Lock()
	c.initiator = true
	c.mu.Unlock()

	offer, err := c.table.ApplyLocalOffer(peerID)
	if err != nil {
		c.table.Fail(peerID)
		return err
	}
	if err := c.transport.SendOffer(ctx, offer, peerID); err != nil {
		c.table.Fail(peerID)
		return &TransportError{Op: "send offer", Err: err}
	}
	slog.Info("offer sent", "peer", peerID)
	return nil
}

// HandleRoomAnnouncement ingests a call-start announcement for a room:
// record it in the registry, surface it to late joiners, and, unless we
// announced it ourselves, raise the incoming-call path. Announcements whose
// invitation id was already consumed are ignored.
func (c *Coordinator) HandleRoomAnnouncement(roomID, callerID, callerName, kind, invitationID, roomName string) {
	if !c.registry.ConsumeInvitation(invitationID, roomID) {
		slog.Debug("invitation already processed", "invitation", invitationID)
		return
	}

	record := CallRecord{
		RoomID:        roomID,
		RoomName:      roomName,
		InitiatorID:   callerID,
		InitiatorName: callerName,
		Kind:          ParseKind(kind),
		InvitationID:  invitationID,
		StartedAt:     c.clock(),
	}
	c.registry.Announce(record)
	c.emit(CallAnnouncedEvent{Record: record})

	if callerID == c.opts.UserID {
		return
	}

	incoming := IncomingCallEvent{
		CallerID:     callerID,
		CallerName:   callerName,
		Kind:         record.Kind,
		InvitationID: invitationID,
	}
	c.mu.Lock()
	c.incoming = &incoming
	c.mu.Unlock()

	c.notifier.IncomingCall(callerID, callerName, record.Kind, invitationID)
	c.emit(incoming)
}

// ActiveCall reports the room's announced call, if one is still fresh, for
// the join-in-progress affordance.
func (c *Coordinator) ActiveCall(roomID string) (CallRecord, bool) {
	return c.registry.Lookup(roomID)
}

// AcceptIncomingCall acquires media for the pending invitation. The actual
// connection arrives through the caller's polled offer.
func (c *Coordinator) AcceptIncomingCall(ctx context.Context) error {
	c.mu.Lock()
	incoming := c.incoming
	c.mu.Unlock()
	if incoming == nil {
		return ErrNoIncomingCall
	}

	c.mu.Lock()
	c.videoEnabled = c.videoEnabled || incoming.Kind == KindVideo
	c.incoming = nil
	c.mu.Unlock()

	return c.ensureMedia(ctx)
}

// DeclineIncomingCall clears the pending invitation without touching any
// session.
func (c *Coordinator) DeclineIncomingCall() {
	c.mu.Lock()
	c.incoming = nil
	c.mu.Unlock()
}

// ToggleAudio enables or disables the local audio tracks. Pass-through to
// the media layer; signaling is unaffected.
func (c *Coordinator) ToggleAudio(enabled bool) {
	c.mu.Lock()
	c.audioEnabled = enabled
	c.mu.Unlock()
	c.media.SetAudioEnabled(enabled)
}

// ToggleVideo enables or disables the local video tracks.
func (c *Coordinator) ToggleVideo(enabled bool) {
	c.mu.Lock()
	c.videoEnabled = enabled
	c.mu.Unlock()
	c.media.SetVideoEnabled(enabled)
}

// HandleConnectionStateChange ingests the media layer's report about a
// peer's underlying connection: established moves the session to Connected,
// anything else fails and removes it.
func (c *Coordinator) HandleConnectionStateChange(peerID string, connected bool) {
	if connected {
		if err := c.table.MarkConnected(peerID); err != nil {
			slog.Warn("ignoring connected report", "peer", peerID, "error", err)
		}
		return
	}
	if !c.table.Has(peerID) {
		return
	}
	c.table.Fail(peerID)
	c.emit(CallFailedEvent{PeerID: peerID, Err: ErrConnectionLost})
}

// CloseAll tears down every session, stops the polling loop, leaves the
// room, and releases media. Idempotent; this is the only teardown path.
func (c *Coordinator) CloseAll() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancelRun
	initiator := c.initiator
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.table.CloseAll()
	c.buffer.Reset()

	leaveCtx, leaveCancel := context.WithTimeout(context.Background(), DefaultPollTimeout)
	defer leaveCancel()
	if err := c.transport.LeaveRoom(leaveCtx, c.opts.RoomID, c.opts.UserID); err != nil {
		slog.Warn("leaving room", "room", c.opts.RoomID, "error", err)
	}

	if initiator {
		c.registry.Clear(c.opts.RoomID)
	}

	c.media.Release()
	c.notifier.CallEnded(c.opts.RoomID)
	slog.Info("coordinator closed", "room", c.opts.RoomID)
}

// HandleOffer implements ReconcilerHandler. Media is acquired before
// answering, matching the callee flow where the answerer needs local tracks
// in place.
func (c *Coordinator) HandleOffer(ctx context.Context, envelope signaling.OfferEnvelope) error {
	if err := c.ensureMedia(ctx); err != nil {
		return err
	}

	answerNeeded, err := c.table.ApplyRemoteOffer(envelope.SenderID, envelope.Offer)
	if err != nil {
		return err
	}
	if !answerNeeded {
		return nil
	}

	answer, err := c.table.ApplyLocalAnswer(envelope.SenderID)
	if err != nil {
		c.table.Fail(envelope.SenderID)
		return err
	}
	if err := c.transport.SendAnswer(ctx, answer, envelope.SenderID); err != nil {
		c.table.Fail(envelope.SenderID)
		return &TransportError{Op: "send answer", Err: err}
	}
	slog.Info("answer sent", "peer", envelope.SenderID)
	return nil
}

// HandleAnswer implements ReconcilerHandler.
func (c *Coordinator) HandleAnswer(ctx context.Context, envelope signaling.AnswerEnvelope) error {
	return c.table.ApplyRemoteAnswer(envelope.SenderID, envelope.Answer)
}

// HandleCandidate implements ReconcilerHandler.
func (c *Coordinator) HandleCandidate(ctx context.Context, envelope signaling.CandidateEnvelope) error {
	return c.table.ApplyICECandidate(envelope.SenderID, envelope.Candidate)
}

// HandleParticipants implements ReconcilerHandler. The call initiator
// starts a call toward every participant that has no session yet, which is
// how late joiners get pulled into a room-wide call.
func (c *Coordinator) HandleParticipants(ctx context.Context, participants []signaling.Participant) error {
	c.mu.Lock()
	initiator := c.initiator
	c.mu.Unlock()
	if !initiator {
		return nil
	}

	for _, p := range participants {
		if p.UserID == c.opts.UserID || c.table.Has(p.UserID) {
			continue
		}
		if err := c.StartCall(ctx, p.UserID); err != nil {
			slog.Warn("starting call toward participant", "peer", p.UserID, "error", err)
		}
	}
	return nil
}

// Reconcile runs a single reconciliation pass immediately, outside the
// periodic loop. Useful for deterministic tests and for hosts that drive
// polling themselves.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	return c.reconciler.Tick(ctx)
}

// SessionCount reports live sessions, used by teardown checks.
func (c *Coordinator) SessionCount() int {
	return c.table.Len()
}

// SessionState returns the state of the session toward peerID.
func (c *Coordinator) SessionState(peerID string) (SessionState, bool) {
	s, ok := c.table.Get(peerID)
	if !ok {
		return StateClosed, false
	}
	return s.State(), true
}

func (c *Coordinator) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ensureMedia acquires local media once. Acquisition failures surface as
// MediaError and are not retried automatically.
func (c *Coordinator) ensureMedia(ctx context.Context) error {
	c.mu.Lock()
	if c.mediaReady {
		c.mu.Unlock()
		return nil
	}
	audio, video := c.audioEnabled, c.videoEnabled
	c.mu.Unlock()

	if err := c.media.Acquire(ctx, audio, video); err != nil {
		return &MediaError{Err: err}
	}

	c.mu.Lock()
	c.mediaReady = true
	c.mu.Unlock()
	return nil
}

// sendLocalCandidate forwards a locally gathered candidate to the peer.
// Fire-and-forget: candidate loss degrades connectivity, never correctness.
func (c *Coordinator) sendLocalCandidate(peerID string, candidate webrtc.ICECandidateInit) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultPollTimeout)
		defer cancel()
		if err := c.transport.SendICECandidate(ctx, candidate, peerID); err != nil {
			slog.Warn("sending candidate", "peer", peerID, "error", err)
		}
	}()
}

// handleConnectionHook adapts the connection-state callback wired into each
// peer connection.
func (c *Coordinator) handleConnectionHook(peerID string, connected, failed bool) {
	switch {
	case connected:
		c.HandleConnectionStateChange(peerID, true)
	case failed:
		c.HandleConnectionStateChange(peerID, false)
	}
}

// emit delivers an event without ever blocking the signaling path. When the
// application falls behind the event is dropped with a warning.
func (c *Coordinator) emit(e Event) {
	select {
	case c.events <- e:
	default:
		slog.Warn("event buffer full, dropping event", "event", fmt.Sprintf("%T", e))
	}
}
