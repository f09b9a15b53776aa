package negotiation

import (
	"context"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	errorBacklog  = 16
	updateBacklog = 32
)

// SessionConfig holds the collaborators of a single session.
type SessionConfig struct {
	Room       RoomID
	Self       ParticipantID
	Channel    Channel
	Media      MediaSource
	Transports TransportFactory
	Logger     *zerolog.Logger
}

// Session is the negotiation actor for one (room, participant) pair. All
// state below the actor marker is only touched by the run goroutine.
type Session struct {
	room       RoomID
	self       ParticipantID
	channel    Channel
	media      MediaSource
	transports TransportFactory
	log        zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	box       *mailbox
	done      chan struct{}
	errs      chan error
	updates   chan Snapshot
	closeOnce sync.Once

	snapMu sync.RWMutex
	snap   Snapshot

	// actor
	role          Role
	state         State
	peer          ParticipantID
	remoteApplied bool
	buffer        *CandidateBuffer
	transport     Transport
	local         MediaHandle
	generation    uint64
	connection    pion.PeerConnectionState
	applied       int
	failed        int
	sent          int
}

// NewSession creates a session in the bootstrap phase and starts its actor.
// Call Start to acquire media and move to New.
func NewSession(parent context.Context, cfg SessionConfig) *Session {
	ctx, cancel := context.WithCancel(parent)

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	s := &Session{
		room:       cfg.Room,
		self:       cfg.Self,
		channel:    cfg.Channel,
		media:      cfg.Media,
		transports: cfg.Transports,
		log: logger.With().
			Str("module", "negotiation").
			Str("room", string(cfg.Room)).
			Str("self", string(cfg.Self)).
			Logger(),
		ctx:     ctx,
		cancel:  cancel,
		box:     newMailbox(),
		done:    make(chan struct{}),
		errs:    make(chan error, errorBacklog),
		updates: make(chan Snapshot, updateBacklog),
		state:   StateBootstrap,
		buffer:  NewCandidateBuffer(),
	}
	s.refreshSnapshot()

	go s.run()
	return s
}

func (s *Session) Room() RoomID        { return s.room }
func (s *Session) Self() ParticipantID { return s.self }

// Start acquires local media and builds the transport. On failure the session
// stays in the bootstrap phase.
func (s *Session) Start(ctx context.Context) error {
	return s.do(ctx, startEvent{})
}

// Reset abandons the current negotiation attempt and returns to New with a
// fresh transport. An initiator immediately re-offers.
func (s *Session) Reset(ctx context.Context) error {
	return s.do(ctx, resetEvent{})
}

// Deliver queues an inbound event. It never blocks; failures other than
// protocol anomalies are reported on Errors.
func (s *Session) Deliver(ev Event) {
	if !s.box.put(command{ev: ev}) {
		s.log.Debug().Str("event", eventName(ev)).Msg("dropped event for closed session")
	}
}

// Process queues ev and waits for its transition to finish.
func (s *Session) Process(ctx context.Context, ev Event) error {
	return s.do(ctx, ev)
}

// Errors reports capability and channel failures raised by delivered events.
func (s *Session) Errors() <-chan error { return s.errs }

// Updates streams snapshots after every transition. Slow readers lose
// intermediate snapshots, never the latest one.
func (s *Session) Updates() <-chan Snapshot { return s.updates }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Close cancels in-flight work, discards buffered candidates, closes the
// transport and releases local media. It is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

func (s *Session) do(ctx context.Context, ev Event) error {
	reply := make(chan error, 1)
	if !s.box.put(command{ev: ev, reply: reply}) {
		return NewError(eventName(ev), ErrSessionClosed, nil)
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return NewError(eventName(ev), ErrSessionClosed, nil)
		}
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.teardown()
			return
		case <-s.box.notify:
		}

		for {
			if s.ctx.Err() != nil {
				break
			}
			cmd, ok := s.box.take()
			if !ok {
				break
			}
			err := s.dispatch(cmd.ev)
			s.refreshSnapshot()
			s.finish(cmd, err)
		}
	}
}

func (s *Session) finish(cmd command, err error) {
	if err != nil && IsKind(err, ErrProtocolAnomaly) {
		s.log.Warn().Err(err).Str("state", s.state.String()).Msg("ignoring signaling message")
		err = nil
	}
	if cmd.reply != nil {
		cmd.reply <- err
		return
	}
	if err != nil {
		s.report(err)
	}
}

func (s *Session) report(err error) {
	s.log.Error().Err(err).Str("state", s.state.String()).Msg("negotiation step failed")
	select {
	case s.errs <- err:
	default:
		s.log.Warn().Msg("error backlog full, dropping error")
	}
}

func (s *Session) teardown() {
	for _, cmd := range s.box.close() {
		if cmd.reply != nil {
			cmd.reply <- NewError(eventName(cmd.ev), ErrSessionClosed, nil)
		}
	}
	s.buffer.Discard()
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close transport")
		}
		s.transport = nil
	}
	if s.local != nil {
		s.local.Release()
		s.local = nil
	}
	s.state = StateClosed
	s.refreshSnapshot()
	s.log.Info().Msg("session closed")
}

func (s *Session) dispatch(ev Event) error {
	s.log.Debug().Str("event", eventName(ev)).Str("state", s.state.String()).Msg("processing event")

	switch e := ev.(type) {
	case startEvent:
		return s.start()
	case assignResponder:
		return s.assignResponder()
	case resetEvent:
		return s.reset(true)
	case PeerJoined:
		return s.onPeerJoined(e)
	case PeerLeft:
		return s.onPeerLeft(e)
	case OfferReceived:
		return s.onOffer(e.Description)
	case AnswerReceived:
		return s.onAnswer(e.Description)
	case CandidateReceived:
		return s.onRemoteCandidate(e)
	case localCandidate:
		return s.onLocalCandidate(e)
	case connectionChanged:
		s.onConnectionChanged(e)
		return nil
	default:
		return anomaly("dispatch", s.room, "unknown event")
	}
}

func (s *Session) setState(next State) {
	if s.state == next {
		return
	}
	s.log.Info().Str("from", s.state.String()).Str("to", next.String()).Str("role", s.role.String()).Msg("signaling state")
	s.state = next
	s.refreshSnapshot()
}

func (s *Session) refreshSnapshot() {
	snap := Snapshot{
		Room:              s.room,
		Self:              s.self,
		Peer:              s.peer,
		Role:              s.role,
		State:             s.state,
		RemoteApplied:     s.remoteApplied,
		Buffered:          s.buffer.Len(),
		AppliedCandidates: s.applied,
		FailedCandidates:  s.failed,
		SentCandidates:    s.sent,
		Connection:        s.connection,
	}

	s.snapMu.Lock()
	changed := snap != s.snap
	s.snap = snap
	s.snapMu.Unlock()
	if !changed {
		return
	}

	select {
	case s.updates <- snap:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- snap:
		default:
		}
	}
}

func (s *Session) start() error {
	if s.state != StateBootstrap {
		return anomaly("start", s.room, "already started")
	}

	if s.local == nil {
		h, err := s.media.Acquire(s.ctx)
		if err != nil {
			return &Error{Op: "acquire media", Room: s.room, Kind: ErrAcquisition, Err: err}
		}
		s.local = h
	}

	if err := s.buildTransport(); err != nil {
		return err
	}
	s.setState(StateNew)
	return nil
}

func (s *Session) buildTransport() error {
	t, err := s.transports.NewTransport(s.ctx, s.room, s.self)
	if err != nil {
		return capabilityError("create transport", s.room, err)
	}
	if err := t.AttachMedia(s.local); err != nil {
		_ = t.Close()
		return capabilityError("attach media", s.room, err)
	}

	s.generation++
	gen := s.generation
	t.OnCandidate(func(c Candidate) {
		s.box.put(command{ev: localCandidate{gen: gen, Candidate: c}})
	})
	t.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		s.box.put(command{ev: connectionChanged{gen: gen, State: state}})
	})
	s.transport = t
	return nil
}

func (s *Session) assignResponder() error {
	if s.state != StateNew || s.role != RoleUnassigned {
		return anomaly("assign role", s.room, "role already decided")
	}
	s.role = RoleResponder
	s.log.Info().Msg("room already occupied, waiting for offer")
	return nil
}

func (s *Session) onPeerJoined(e PeerJoined) error {
	if e.Participant == s.self {
		return anomaly("peer joined", s.room, "own join echoed")
	}
	if s.state != StateNew || s.role != RoleUnassigned {
		return anomaly("peer joined", s.room, "role already assigned in state "+s.state.String())
	}

	s.peer = e.Participant
	return s.sendOffer()
}

func (s *Session) sendOffer() error {
	offer, err := s.transport.CreateOffer(s.ctx)
	if err != nil {
		return capabilityError("create offer", s.room, err)
	}
	if err := s.transport.SetLocalDescription(s.ctx, offer); err != nil {
		return capabilityError("set local description", s.room, err)
	}
	if err := s.channel.Publish(s.ctx, Signal{Kind: SignalOffer, Room: s.room, From: s.self, Description: &offer}); err != nil {
		return channelError("publish offer", s.room, err)
	}

	s.role = RoleInitiator
	s.setState(StateHaveLocalOffer)
	return nil
}

func (s *Session) onOffer(d Description) error {
	if d.Originator == s.self {
		return anomaly("offer", s.room, "self-originated")
	}
	if d.Type != pion.SDPTypeOffer {
		return anomaly("offer", s.room, "description type "+d.Type.String())
	}

	switch s.state {
	case StateNew:
		return s.answer(d)
	case StateHaveLocalOffer:
		return s.resolveGlare(d)
	default:
		return anomaly("offer", s.room, "unexpected in state "+s.state.String())
	}
}

// resolveGlare settles two simultaneous offers: the smaller participant id
// yields its initiator role and answers the remote offer.
func (s *Session) resolveGlare(d Description) error {
	if s.self > d.Originator {
		return anomaly("offer", s.room, "glare: remote side yields")
	}

	s.log.Info().Str("remote", string(d.Originator)).Msg("glare: yielding initiator role")
	if err := s.transport.Rollback(s.ctx); err != nil {
		return capabilityError("rollback local offer", s.room, err)
	}
	s.role = RoleUnassigned
	s.setState(StateNew)
	return s.answer(d)
}

func (s *Session) answer(d Description) error {
	if err := s.transport.SetRemoteDescription(s.ctx, d.SessionDescription); err != nil {
		return capabilityError("set remote description", s.room, err)
	}
	s.setState(StateHaveRemoteOffer)

	answer, err := s.transport.CreateAnswer(s.ctx)
	if err != nil {
		s.setState(StateNew)
		return capabilityError("create answer", s.room, err)
	}
	if err := s.transport.SetLocalDescription(s.ctx, answer); err != nil {
		s.setState(StateNew)
		return capabilityError("set local description", s.room, err)
	}
	if err := s.channel.Publish(s.ctx, Signal{Kind: SignalAnswer, Room: s.room, From: s.self, Description: &answer}); err != nil {
		s.setState(StateNew)
		return channelError("publish answer", s.room, err)
	}

	s.role = RoleResponder
	s.peer = d.Originator
	s.commitRemote()
	s.setState(StateStable)
	return nil
}

func (s *Session) onAnswer(d Description) error {
	if d.Originator == s.self {
		return anomaly("answer", s.room, "self-originated")
	}
	if d.Type != pion.SDPTypeAnswer {
		return anomaly("answer", s.room, "description type "+d.Type.String())
	}
	if s.state != StateHaveLocalOffer {
		return anomaly("answer", s.room, "unexpected in state "+s.state.String())
	}

	if err := s.transport.SetRemoteDescription(s.ctx, d.SessionDescription); err != nil {
		return capabilityError("set remote description", s.room, err)
	}

	s.peer = d.Originator
	s.commitRemote()
	s.setState(StateStable)
	return nil
}

// commitRemote marks the remote description applied and flushes the buffer.
// It runs inside a single actor step, so no candidate can interleave.
func (s *Session) commitRemote() {
	s.remoteApplied = true
	pending := s.buffer.Drain()
	for _, c := range pending {
		if err := s.transport.AddCandidate(s.ctx, c); err != nil {
			s.failed++
			s.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("queued candidate rejected")
			continue
		}
		s.applied++
	}
	if len(pending) > 0 {
		s.log.Info().Int("drained", len(pending)).Int("failed", s.failed).Msg("candidate buffer drained")
	}
}

func (s *Session) onRemoteCandidate(e CandidateReceived) error {
	if e.From == s.self {
		return anomaly("candidate", s.room, "self-originated")
	}
	if s.state == StateClosed {
		return anomaly("candidate", s.room, "session closed")
	}

	if !s.remoteApplied {
		if s.buffer.Push(e.Candidate) {
			s.log.Debug().Int("buffered", s.buffer.Len()).Msg("remote description pending, buffering candidate")
			return nil
		}
	}

	if err := s.transport.AddCandidate(s.ctx, e.Candidate); err != nil {
		s.failed++
		return capabilityError("add candidate", s.room, err)
	}
	s.applied++
	return nil
}

func (s *Session) onLocalCandidate(e localCandidate) error {
	if e.gen != s.generation {
		return nil
	}
	c := e.Candidate
	if err := s.channel.Publish(s.ctx, Signal{Kind: SignalCandidate, Room: s.room, From: s.self, Candidate: &c}); err != nil {
		return channelError("publish candidate", s.room, err)
	}
	s.sent++
	return nil
}

func (s *Session) onConnectionChanged(e connectionChanged) {
	if e.gen != s.generation {
		return
	}
	s.connection = e.State
	ev := s.log.Info()
	if e.State == pion.PeerConnectionStateFailed {
		ev = s.log.Error()
	}
	ev.Str("connection", e.State.String()).Str("state", s.state.String()).Msg("peer connection state")
}

func (s *Session) onPeerLeft(e PeerLeft) error {
	if e.Participant == s.self {
		return anomaly("peer left", s.room, "own leave echoed")
	}
	if s.peer != "" && e.Participant != s.peer {
		return anomaly("peer left", s.room, "unknown participant "+string(e.Participant))
	}
	s.log.Info().Str("peer", string(e.Participant)).Msg("peer left, starting a new attempt")
	return s.reset(false)
}

// reset starts a new negotiation attempt. With keepRole an initiator
// re-offers right away and a responder keeps waiting for an offer.
func (s *Session) reset(keepRole bool) error {
	if s.state == StateBootstrap || s.state == StateClosed {
		return NewError("reset", ErrNotStarted, nil)
	}

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Warn().Err(err).Msg("close transport")
		}
		s.transport = nil
	}
	s.buffer.Discard()
	s.buffer = NewCandidateBuffer()
	s.remoteApplied = false
	s.applied, s.failed, s.sent = 0, 0, 0
	s.connection = pion.PeerConnectionStateNew

	role := s.role
	s.role = RoleUnassigned
	if !keepRole {
		s.peer = ""
	}

	if err := s.buildTransport(); err != nil {
		s.setState(StateBootstrap)
		return err
	}
	s.setState(StateNew)

	switch {
	case keepRole && role == RoleInitiator:
		return s.sendOffer()
	case keepRole && role == RoleResponder:
		s.role = RoleResponder
	}
	return nil
}
