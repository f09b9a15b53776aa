package negotiation

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type sessionKey struct {
	room RoomID
	self ParticipantID
}

// Coordinator owns every live session of this process and routes inbound
// rendezvous events to them.
type Coordinator struct {
	channel    Channel
	media      MediaSource
	transports TransportFactory
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[sessionKey]*Session
}

type Option func(*Coordinator)

// WithLogger overrides the global zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

func NewCoordinator(ch Channel, media MediaSource, transports TransportFactory, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		channel:    ch,
		media:      media,
		transports: transports,
		log:        log.Logger,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[sessionKey]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Join starts a session for self in room. Local media is acquired before the
// room is joined, so an acquisition failure never reaches the channel. If
// the room already has members, the new session becomes the responder.
func (c *Coordinator) Join(ctx context.Context, room RoomID, self ParticipantID) (*Session, error) {
	key := sessionKey{room: room, self: self}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return nil, NewError("join", ErrSessionClosed, nil)
	}
	if _, ok := c.sessions[key]; ok {
		c.mu.Unlock()
		return nil, &Error{Op: "join", Room: room, Kind: ErrSessionExists}
	}
	logger := c.log
	s := NewSession(c.ctx, SessionConfig{
		Room:       room,
		Self:       self,
		Channel:    c.channel,
		Media:      c.media,
		Transports: c.transports,
		Logger:     &logger,
	})
	c.sessions[key] = s
	c.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		c.drop(key, s)
		return nil, err
	}

	res, err := c.channel.Join(ctx, room, self)
	if err != nil {
		c.drop(key, s)
		return nil, channelError("join room", room, err)
	}

	others := 0
	for _, m := range res.Members {
		if m != self {
			others++
		}
	}
	if others > 0 {
		if err := s.Process(ctx, assignResponder{}); err != nil {
			c.drop(key, s)
			return nil, err
		}
	}

	c.log.Info().
		Str("module", "negotiation").
		Str("room", string(room)).
		Str("self", string(self)).
		Int("members", len(res.Members)).
		Msg("joined room")
	return s, nil
}

// Dispatch delivers ev to every local session in room. It never blocks.
func (c *Coordinator) Dispatch(room RoomID, ev Event) {
	c.mu.RLock()
	targets := make([]*Session, 0, 1)
	for key, s := range c.sessions {
		if key.room == room {
			targets = append(targets, s)
		}
	}
	c.mu.RUnlock()

	if len(targets) == 0 {
		c.log.Debug().Str("module", "negotiation").Str("room", string(room)).Str("event", eventName(ev)).Msg("no session for room")
		return
	}
	for _, s := range targets {
		s.Deliver(ev)
	}
}

// Leave tears the session down and tells the channel. The session is closed
// even when the channel call fails.
func (c *Coordinator) Leave(ctx context.Context, room RoomID, self ParticipantID) error {
	key := sessionKey{room: room, self: self}

	c.mu.Lock()
	s, ok := c.sessions[key]
	delete(c.sessions, key)
	c.mu.Unlock()
	if !ok {
		return &Error{Op: "leave", Room: room, Kind: ErrNotStarted}
	}

	_ = s.Close()
	if err := c.channel.Leave(ctx, room, self); err != nil {
		return channelError("leave room", room, err)
	}
	return nil
}

func (c *Coordinator) Session(room RoomID, self ParticipantID) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionKey{room: room, self: self}]
	return s, ok
}

// Sessions returns snapshots of all live sessions ordered by room and id.
func (c *Coordinator) Sessions() []Snapshot {
	c.mu.RLock()
	out := make([]Snapshot, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s.Snapshot())
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Room != out[j].Room {
			return out[i].Room < out[j].Room
		}
		return out[i].Self < out[j].Self
	})
	return out
}

// Close tears down every session. The channel is left untouched.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.cancel()
	sessions := c.sessions
	c.sessions = make(map[sessionKey]*Session)
	c.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	return nil
}

func (c *Coordinator) drop(key sessionKey, s *Session) {
	c.mu.Lock()
	if c.sessions[key] == s {
		delete(c.sessions, key)
	}
	c.mu.Unlock()
	_ = s.Close()
}
