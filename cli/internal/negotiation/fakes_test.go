package negotiation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
)

var errInjected = errors.New("injected")

type fakeHandle struct {
	mu       sync.Mutex
	released int
}

func (h *fakeHandle) Tracks() []pion.TrackLocal { return nil }

func (h *fakeHandle) Release() {
	h.mu.Lock()
	h.released++
	h.mu.Unlock()
}

func (h *fakeHandle) releases() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

type fakeMedia struct {
	mu       sync.Mutex
	err      error
	acquired int
	handle   *fakeHandle
}

func (m *fakeMedia) Acquire(context.Context) (MediaHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.acquired++
	if m.handle == nil {
		m.handle = &fakeHandle{}
	}
	return m.handle, nil
}

// fakeTransport records every call. Entries in fail are consumed by the next
// call of that name.
type fakeTransport struct {
	self ParticipantID

	mu          sync.Mutex
	fail        map[string]error
	calls       []string
	added       []Candidate
	remote      []pion.SessionDescription
	onCandidate func(Candidate)
	onState     func(pion.PeerConnectionState)
	closed      bool
}

func newFakeTransport(self ParticipantID) *fakeTransport {
	return &fakeTransport{self: self, fail: map[string]error{}}
}

func (t *fakeTransport) record(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, name)
	if err, ok := t.fail[name]; ok {
		delete(t.fail, name)
		return err
	}
	return nil
}

func (t *fakeTransport) failNext(name string) {
	t.mu.Lock()
	t.fail[name] = errInjected
	t.mu.Unlock()
}

func (t *fakeTransport) CreateOffer(context.Context) (pion.SessionDescription, error) {
	if err := t.record("CreateOffer"); err != nil {
		return pion.SessionDescription{}, err
	}
	return pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "offer:" + string(t.self)}, nil
}

func (t *fakeTransport) CreateAnswer(context.Context) (pion.SessionDescription, error) {
	if err := t.record("CreateAnswer"); err != nil {
		return pion.SessionDescription{}, err
	}
	return pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "answer:" + string(t.self)}, nil
}

func (t *fakeTransport) SetLocalDescription(context.Context, pion.SessionDescription) error {
	return t.record("SetLocalDescription")
}

func (t *fakeTransport) SetRemoteDescription(_ context.Context, d pion.SessionDescription) error {
	if err := t.record("SetRemoteDescription"); err != nil {
		return err
	}
	t.mu.Lock()
	t.remote = append(t.remote, d)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Rollback(context.Context) error {
	return t.record("Rollback")
}

func (t *fakeTransport) AddCandidate(_ context.Context, c Candidate) error {
	if err := t.record("AddCandidate"); err != nil {
		return err
	}
	t.mu.Lock()
	t.added = append(t.added, c)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) AttachMedia(MediaHandle) error {
	return t.record("AttachMedia")
}

func (t *fakeTransport) OnCandidate(fn func(Candidate)) {
	t.mu.Lock()
	t.onCandidate = fn
	t.mu.Unlock()
}

func (t *fakeTransport) OnConnectionStateChange(fn func(pion.PeerConnectionState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) emitCandidate(c Candidate) {
	t.mu.Lock()
	fn := t.onCandidate
	t.mu.Unlock()
	fn(c)
}

func (t *fakeTransport) emitState(s pion.PeerConnectionState) {
	t.mu.Lock()
	fn := t.onState
	t.mu.Unlock()
	fn(s)
}

func (t *fakeTransport) count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (t *fakeTransport) addedCandidates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.added))
	for i, c := range t.added {
		out[i] = c.Candidate
	}
	return out
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeTransports hands out a new fakeTransport per call and remembers them.
type fakeTransports struct {
	mu    sync.Mutex
	built []*fakeTransport
}

func (f *fakeTransports) NewTransport(_ context.Context, _ RoomID, self ParticipantID) (Transport, error) {
	t := newFakeTransport(self)
	f.mu.Lock()
	f.built = append(f.built, t)
	f.mu.Unlock()
	return t, nil
}

func (f *fakeTransports) last() *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.built) == 0 {
		return nil
	}
	return f.built[len(f.built)-1]
}

func (f *fakeTransports) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.built)
}

// recordingChannel captures published signals.
type recordingChannel struct {
	mu        sync.Mutex
	members   []ParticipantID
	published []Signal
	failNext  error
	joined    int
	left      int
}

func (c *recordingChannel) Join(_ context.Context, room RoomID, _ ParticipantID) (JoinResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined++
	return JoinResult{Room: room, Members: c.members}, nil
}

func (c *recordingChannel) Leave(context.Context, RoomID, ParticipantID) error {
	c.mu.Lock()
	c.left++
	c.mu.Unlock()
	return nil
}

func (c *recordingChannel) Publish(_ context.Context, sig Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return err
	}
	c.published = append(c.published, sig)
	return nil
}

func (c *recordingChannel) kinds() []SignalKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SignalKind, len(c.published))
	for i, s := range c.published {
		out[i] = s.Kind
	}
	return out
}

func (c *recordingChannel) countKind(k SignalKind) int {
	n := 0
	for _, got := range c.kinds() {
		if got == k {
			n++
		}
	}
	return n
}

// bus is an in-memory rendezvous relay connecting coordinators.
type bus struct {
	echo bool

	mu    sync.Mutex
	rooms map[RoomID][]ParticipantID
	peers map[ParticipantID]*Coordinator
}

func newBus(echo bool) *bus {
	return &bus{
		echo:  echo,
		rooms: map[RoomID][]ParticipantID{},
		peers: map[ParticipantID]*Coordinator{},
	}
}

func (b *bus) attach(self ParticipantID, media MediaSource, transports TransportFactory) *Coordinator {
	c := NewCoordinator(&busChannel{bus: b, self: self}, media, transports)
	b.mu.Lock()
	b.peers[self] = c
	b.mu.Unlock()
	return c
}

func (b *bus) deliver(room RoomID, from ParticipantID, ev Event) {
	b.mu.Lock()
	var targets []*Coordinator
	for _, m := range b.rooms[room] {
		if m == from && !b.echo {
			continue
		}
		targets = append(targets, b.peers[m])
	}
	b.mu.Unlock()
	for _, c := range targets {
		c.Dispatch(room, ev)
	}
}

type busChannel struct {
	bus  *bus
	self ParticipantID
}

func (c *busChannel) Join(_ context.Context, room RoomID, self ParticipantID) (JoinResult, error) {
	c.bus.mu.Lock()
	existing := append([]ParticipantID(nil), c.bus.rooms[room]...)
	c.bus.rooms[room] = append(c.bus.rooms[room], self)
	c.bus.mu.Unlock()

	c.bus.deliver(room, self, PeerJoined{Participant: self})
	return JoinResult{Room: room, Members: existing}, nil
}

func (c *busChannel) Leave(_ context.Context, room RoomID, self ParticipantID) error {
	c.bus.mu.Lock()
	members := c.bus.rooms[room][:0]
	for _, m := range c.bus.rooms[room] {
		if m != self {
			members = append(members, m)
		}
	}
	c.bus.rooms[room] = members
	c.bus.mu.Unlock()

	c.bus.deliver(room, self, PeerLeft{Participant: self})
	return nil
}

func (c *busChannel) Publish(_ context.Context, sig Signal) error {
	var ev Event
	switch sig.Kind {
	case SignalOffer:
		ev = OfferReceived{Description: Description{SessionDescription: *sig.Description, Originator: sig.From}}
	case SignalAnswer:
		ev = AnswerReceived{Description: Description{SessionDescription: *sig.Description, Originator: sig.From}}
	case SignalCandidate:
		ev = CandidateReceived{From: sig.From, Candidate: *sig.Candidate}
	}
	c.bus.deliver(sig.Room, sig.From, ev)
	return nil
}

func newTestSession(t *testing.T, self ParticipantID) (*Session, *recordingChannel, *fakeTransports, *fakeMedia) {
	t.Helper()
	ch := &recordingChannel{}
	tf := &fakeTransports{}
	media := &fakeMedia{}
	s := NewSession(context.Background(), SessionConfig{
		Room:       "room",
		Self:       self,
		Channel:    ch,
		Media:      media,
		Transports: tf,
	})
	t.Cleanup(func() { _ = s.Close() })
	return s, ch, tf, media
}

func mustProcess(t *testing.T, s *Session, ev Event) {
	t.Helper()
	if err := s.Process(context.Background(), ev); err != nil {
		t.Fatalf("process %s: %v", eventName(ev), err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func offerFrom(id ParticipantID) OfferReceived {
	return OfferReceived{Description: Description{
		SessionDescription: pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "offer:" + string(id)},
		Originator:         id,
	}}
}

func answerFrom(id ParticipantID) AnswerReceived {
	return AnswerReceived{Description: Description{
		SessionDescription: pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "answer:" + string(id)},
		Originator:         id,
	}}
}

func candidateFrom(id ParticipantID, c string) CandidateReceived {
	return CandidateReceived{From: id, Candidate: Candidate{Candidate: c}}
}
