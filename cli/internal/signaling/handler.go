package signaling

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
)

// ErrConnectionLost is returned by Run when the server connection drops.
var ErrConnectionLost = errors.New("signaling connection lost")

// Dispatcher receives negotiation events for a room.
type Dispatcher interface {
	Dispatch(room negotiation.RoomID, ev negotiation.Event)
}

// Handler routes incoming signaling messages: request replies go to typed
// channels, negotiation traffic goes to the dispatcher.
type Handler struct {
	client     *Client
	dispatcher Dispatcher
	log        zerolog.Logger

	RoomCreated chan string
	JoinSuccess chan *Message
	Error       chan string
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, d Dispatcher) *Handler {
	return &Handler{
		client:      client,
		dispatcher:  d,
		log:         log.With().Str("module", "signaling").Logger(),
		RoomCreated: make(chan string, 1),
		JoinSuccess: make(chan *Message, 1),
		Error:       make(chan string, 8),
	}
}

// SetDispatcher must be called before Run when the dispatcher is built after
// the handler.
func (h *Handler) SetDispatcher(d Dispatcher) {
	h.dispatcher = d
}

// Run routes messages until the connection ends or ctx is done.
func (h *Handler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-h.client.Incoming():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return ErrConnectionLost
			}
			h.route(ctx, msg)
		}
	}
}

func (h *Handler) route(ctx context.Context, msg *Message) {
	switch msg.Type {
	case MessageTypeRoomCreated:
		deliver(ctx, h.RoomCreated, msg.RoomID)

	case MessageTypeJoinSuccess:
		deliver(ctx, h.JoinSuccess, msg)

	case MessageTypeError:
		h.handleError(msg)

	case MessageTypePeerJoined, MessageTypePeerLeft,
		MessageTypeOffer, MessageTypeAnswer, MessageTypeICECandidate:
		ev, err := DecodeEvent(msg)
		if err != nil {
			h.log.Warn().Err(err).Str("type", msg.Type).Msg("dropping message")
			return
		}
		if h.dispatcher == nil {
			h.log.Warn().Str("type", msg.Type).Msg("no dispatcher, dropping message")
			return
		}
		h.dispatcher.Dispatch(negotiation.RoomID(msg.RoomID), ev)

	default:
		h.log.Debug().Str("type", msg.Type).Msg("ignoring unknown message type")
	}
}

// handleError parses the error message and sends it through the Error channel.
func (h *Handler) handleError(msg *Message) {
	text := "Unknown error from server"
	var p ErrorPayload
	if err := json.Unmarshal(msg.Payload, &p); err == nil && p.Error != "" {
		text = p.Error
	}

	select {
	case h.Error <- text:
	default:
		h.log.Warn().Str("error", text).Msg("server error dropped, nobody listening")
	}
}

// discardErrors drops server errors that arrived while no request was waiting,
// such as a rejected relay, so they are not taken as the next reply.
func (h *Handler) discardErrors() {
	for {
		select {
		case text := <-h.Error:
			h.log.Debug().Str("error", text).Msg("discarding unsolicited server error")
		default:
			return
		}
	}
}

func deliver[T any](ctx context.Context, ch chan T, v T) {
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}
