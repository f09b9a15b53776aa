package callctl

import (
	"fmt"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Conn is the sending half of a data channel.
type Conn interface {
	Send(data []byte) error
}

// Event is reported for every control message received from the peer.
type Event struct {
	Type  string
	Hello *HelloPayload
	Mute  *MutePayload
}

// Controller exchanges control messages on one channel.
type Controller struct {
	conn Conn
	self HelloPayload
	log  zerolog.Logger

	mu     sync.Mutex
	peer   *HelloPayload
	events chan Event
}

func NewController(conn Conn, self HelloPayload) *Controller {
	return &Controller{
		conn:   conn,
		self:   self,
		log:    log.With().Str("module", "callctl").Logger(),
		events: make(chan Event, 16),
	}
}

// Bind wires a controller to a pion data channel: hello is sent on open and
// every message is passed to Handle.
func Bind(dc *pion.DataChannel, self HelloPayload) *Controller {
	c := NewController(dc, self)
	dc.OnOpen(func() {
		if err := c.Hello(); err != nil {
			c.log.Warn().Err(err).Msg("hello failed")
		}
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if err := c.Handle(msg.Data); err != nil {
			c.log.Warn().Err(err).Msg("bad control message")
		}
	})
	dc.OnClose(func() {
		c.log.Debug().Msg("control channel closed")
	})
	return c
}

// Events delivers peer messages. Events are dropped when nobody reads.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Peer returns the peer's hello, if one has arrived.
func (c *Controller) Peer() (HelloPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peer == nil {
		return HelloPayload{}, false
	}
	return *c.peer, true
}

func (c *Controller) Hello() error {
	return c.send(MessageTypeHello, c.self)
}

func (c *Controller) Bye() error {
	return c.send(MessageTypeBye, nil)
}

func (c *Controller) Mute(kind string, muted bool) error {
	return c.send(MessageTypeMute, MutePayload{Kind: kind, Muted: muted})
}

func (c *Controller) send(t string, payload any) error {
	msg, err := NewMessage(t, payload)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.Send(data)
}

// Handle decodes one message from the peer.
func (c *Controller) Handle(data []byte) error {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode control message: %w", err)
	}

	ev := Event{Type: msg.Type}
	switch msg.Type {
	case MessageTypeHello:
		var hello HelloPayload
		if err := msg.DecodePayload(&hello); err != nil {
			return fmt.Errorf("decode hello: %w", err)
		}
		c.mu.Lock()
		c.peer = &hello
		c.mu.Unlock()
		ev.Hello = &hello
		c.log.Info().Str("peer", hello.Name).Str("client", hello.Client).Msg("peer said hello")

	case MessageTypeMute:
		var mute MutePayload
		if err := msg.DecodePayload(&mute); err != nil {
			return fmt.Errorf("decode mute: %w", err)
		}
		ev.Mute = &mute

	case MessageTypeBye:

	default:
		return fmt.Errorf("unknown control message %q", msg.Type)
	}

	select {
	case c.events <- ev:
	default:
		c.log.Debug().Str("type", ev.Type).Msg("control event dropped")
	}
	return nil
}
