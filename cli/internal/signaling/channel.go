package signaling

import (
	"context"
	"fmt"
	"sync"

	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
)

// Channel adapts the websocket client to negotiation.Channel.
type Channel struct {
	client  *Client
	handler *Handler

	// One request awaiting a reply at a time.
	mu sync.Mutex
}

var _ negotiation.Channel = (*Channel)(nil)

func NewChannel(client *Client, handler *Handler) *Channel {
	return &Channel{client: client, handler: handler}
}

// CreateRoom asks the server to reserve a memorable room id.
func (c *Channel) CreateRoom(ctx context.Context) (negotiation.RoomID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.discardErrors()
	if err := c.client.Send(ctx, &Message{Type: MessageTypeCreateRoom}); err != nil {
		return "", err
	}
	select {
	case id := <-c.handler.RoomCreated:
		return negotiation.RoomID(id), nil
	case text := <-c.handler.Error:
		return "", fmt.Errorf("server: %s", text)
	case <-c.client.Lost():
		return "", ErrConnectionLost
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Channel) Join(ctx context.Context, room negotiation.RoomID, self negotiation.ParticipantID) (negotiation.JoinResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.discardErrors()
	msg := &Message{Type: MessageTypeJoinRoom, RoomID: string(room), ParticipantID: string(self)}
	if err := c.client.Send(ctx, msg); err != nil {
		return negotiation.JoinResult{}, err
	}

	for {
		select {
		case reply := <-c.handler.JoinSuccess:
			if reply.RoomID != string(room) {
				continue
			}
			res := negotiation.JoinResult{Room: room}
			for _, m := range reply.Members {
				res.Members = append(res.Members, negotiation.ParticipantID(m))
			}
			return res, nil
		case text := <-c.handler.Error:
			return negotiation.JoinResult{}, fmt.Errorf("server: %s", text)
		case <-c.client.Lost():
			return negotiation.JoinResult{}, ErrConnectionLost
		case <-ctx.Done():
			return negotiation.JoinResult{}, ctx.Err()
		}
	}
}

func (c *Channel) Leave(ctx context.Context, room negotiation.RoomID, self negotiation.ParticipantID) error {
	return c.client.Send(ctx, &Message{Type: MessageTypeLeaveRoom, RoomID: string(room), ParticipantID: string(self)})
}

func (c *Channel) Publish(ctx context.Context, sig negotiation.Signal) error {
	msg, err := EncodeSignal(sig)
	if err != nil {
		return err
	}
	return c.client.Send(ctx, msg)
}
