package signaling

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options tune room capacity and relay behaviour.
type Options struct {
	// MaxPeers is the room capacity.
	MaxPeers int

	// EchoSender relays negotiation messages back to their sender as well.
	EchoSender bool
}

// Hub is the central brain of the signaling server.
// It manages all active rooms and clients from a single goroutine.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client

	// Broadcast carries every inbound client message to the hub.
	Broadcast chan *Message

	snapshots chan chan []RoomInfo
	done      chan struct{}

	opts    Options
	rooms   map[string]*Room
	clients map[*Client]struct{}
	log     zerolog.Logger
}

func NewHub(opts Options) *Hub {
	if opts.MaxPeers < 2 {
		opts.MaxPeers = 2
	}
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan *Message),
		snapshots:  make(chan chan []RoomInfo),
		done:       make(chan struct{}),
		opts:       opts,
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		log:        log.With().Str("module", "signaling").Logger(),
	}
}

// generateRoomID creates a random, memorable room ID using word combinations.
// Format: word-word-word-word (e.g., "kitten-waffle-stardust-happy")
func (h *Hub) generateRoomID() string {
	allWords := [][]string{animals, dishes, names, randomWords, adjectives, extras}

	for {
		// Four distinct lists, one word from each.
		used := make(map[int]bool)
		words := make([]any, 0, 4)
		for len(words) < 4 {
			i := randomIndex(len(allWords))
			if used[i] {
				continue
			}
			used[i] = true
			list := allWords[i]
			words = append(words, list[randomIndex(len(list))])
		}

		id := fmt.Sprintf("%s-%s-%s-%s", words...)
		if _, ok := h.rooms[id]; !ok {
			return id
		}
	}
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic().Err(err).Msg("failed to generate random index")
	}
	return int(n.Int64())
}

// Run starts the hub's main processing loop. It returns when ctx is done,
// after closing every client's send channel.
func (h *Hub) Run(ctx context.Context) error {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.Send)
		}
		h.clients = nil
		h.rooms = nil
	}()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Int("rooms", len(h.rooms)).Msg("hub stopping")
			return nil

		case client := <-h.Register:
			h.clients[client] = struct{}{}
			h.log.Debug().Str("remote", client.addr()).Msg("client registered")

		case client := <-h.Unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			h.leave(client)
			h.dropReservations(client)
			delete(h.clients, client)
			close(client.Send)
			h.log.Debug().Str("remote", client.addr()).Msg("client unregistered")

		case reply := <-h.snapshots:
			reply <- h.roomInfos()

		case message := <-h.Broadcast:
			h.handle(message)
		}
	}
}

// Rooms returns the current rooms and their member counts.
func (h *Hub) Rooms(ctx context.Context) ([]RoomInfo, error) {
	reply := make(chan []RoomInfo, 1)
	select {
	case h.snapshots <- reply:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case rooms := <-reply:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Attach registers a connected client. It fails once the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	select {
	case h.Register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregister(c *Client) {
	select {
	case h.Unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) inbound(m *Message) bool {
	select {
	case h.Broadcast <- m:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) roomInfos() []RoomInfo {
	out := make([]RoomInfo, 0, len(h.rooms))
	for id, room := range h.rooms {
		out = append(out, RoomInfo{ID: id, Members: len(room.Members)})
	}
	return out
}

func (h *Hub) handle(message *Message) {
	client := message.client
	if _, ok := h.clients[client]; !ok {
		return
	}
	h.log.Debug().Str("type", message.Type).Str("remote", client.addr()).Str("room", client.RoomID).Msg("message received")

	switch message.Type {
	case TypeCreateRoom:
		// The room is only reserved; the creator joins it like anyone else.
		roomID := h.generateRoomID()
		h.rooms[roomID] = &Room{ID: roomID, owner: client}
		h.log.Info().Str("room", roomID).Str("remote", client.addr()).Msg("room reserved")
		h.send(client, &Message{Type: TypeRoomCreated, RoomID: roomID})

	case TypeJoinRoom:
		if message.RoomID == "" {
			h.send(client, errorMessage("Room id is required"))
			return
		}
		h.join(client, message.RoomID, message.ParticipantID)

	case TypeLeaveRoom:
		if client.RoomID == "" {
			h.send(client, errorMessage("You must join a room first"))
			return
		}
		h.leave(client)

	case TypeOffer, TypeAnswer, TypeICECandidate:
		h.relay(message)

	default:
		h.log.Warn().Str("type", message.Type).Msg("unknown message type")
		h.send(client, errorMessage("Unknown message type: "+message.Type))
	}
}

// join adds client to roomID, creating the room if needed. Existing members
// are told with peer_joined, the joiner gets join_success with their ids.
func (h *Hub) join(client *Client, roomID, participantID string) bool {
	if participantID == "" {
		participantID = client.ParticipantID
	}
	if participantID == "" {
		participantID = uuid.NewString()
	}

	if client.RoomID != "" {
		h.send(client, errorMessage("Already in room "+client.RoomID))
		return false
	}

	room, ok := h.rooms[roomID]
	if ok {
		if len(room.Members) >= h.opts.MaxPeers {
			h.log.Info().Str("room", roomID).Msg("room join failed: room is full")
			h.send(client, errorMessage("Room is full"))
			return false
		}
		if room.member(participantID) != nil {
			h.send(client, errorMessage("Participant id already in room"))
			return false
		}
	}

	if !ok {
		room = &Room{ID: roomID}
		h.rooms[roomID] = room
		h.log.Info().Str("room", roomID).Msg("room created")
	}

	existing := room.ids()
	for _, peer := range room.Members {
		h.send(peer, &Message{Type: TypePeerJoined, RoomID: roomID, ParticipantID: participantID})
	}
	room.add(client)
	client.RoomID = roomID
	client.ParticipantID = participantID

	h.log.Info().Str("room", roomID).Str("participant", participantID).Int("members", len(room.Members)).Msg("participant joined")
	h.send(client, &Message{Type: TypeJoinSuccess, RoomID: roomID, ParticipantID: participantID, Members: existing})
	return true
}

func (h *Hub) leave(client *Client) {
	if client.RoomID == "" {
		return
	}
	roomID := client.RoomID
	client.RoomID = ""

	room, ok := h.rooms[roomID]
	if !ok || !room.remove(client) {
		return
	}

	if len(room.Members) == 0 {
		delete(h.rooms, roomID)
		h.log.Info().Str("room", roomID).Msg("room deleted")
		return
	}

	h.log.Info().Str("room", roomID).Str("participant", client.ParticipantID).Msg("participant left")
	for _, peer := range room.Members {
		h.send(peer, &Message{Type: TypePeerLeft, RoomID: roomID, ParticipantID: client.ParticipantID})
	}
}

// dropReservations deletes rooms c created that nobody joined.
func (h *Hub) dropReservations(c *Client) {
	for id, room := range h.rooms {
		if room.owner == c && len(room.Members) == 0 {
			delete(h.rooms, id)
			h.log.Info().Str("room", id).Msg("unused room released")
		}
	}
}

// relay stamps the sender's participant id and fans the message out.
func (h *Hub) relay(message *Message) {
	client := message.client
	if client.RoomID == "" {
		h.send(client, errorMessage("You must join a room first"))
		return
	}
	if message.RoomID != "" && message.RoomID != client.RoomID {
		h.send(client, errorMessage("Not a member of room "+message.RoomID))
		return
	}
	room, ok := h.rooms[client.RoomID]
	if !ok {
		h.send(client, errorMessage("Room not found"))
		return
	}

	out := &Message{
		Type:         message.Type,
		Payload:      message.Payload,
		RoomID:       client.RoomID,
		OriginatorID: client.ParticipantID,
	}
	delivered := 0
	for _, peer := range room.Members {
		if peer == client && !h.opts.EchoSender {
			continue
		}
		h.send(peer, out)
		delivered++
	}
	h.log.Debug().Str("type", message.Type).Str("room", room.ID).Str("originator", client.ParticipantID).Int("delivered", delivered).Msg("relayed")
}

// send never blocks the hub; a client that stopped reading loses messages.
func (h *Hub) send(c *Client, m *Message) {
	select {
	case c.Send <- m:
	default:
		h.log.Warn().Str("remote", c.addr()).Str("type", m.Type).Msg("send buffer full, dropping message")
	}
}
