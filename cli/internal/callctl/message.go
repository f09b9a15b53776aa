// Package callctl carries small control messages between the two ends of a
// call over the pre-negotiated data channel.
package callctl

import "github.com/vmihailenco/msgpack/v5"

const (
	MessageTypeHello = "hello"
	MessageTypeBye   = "bye"
	MessageTypeMute  = "mute"
)

// Message represents all control channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// HelloPayload is sent by both sides once the channel opens
type HelloPayload struct {
	Name    string `msgpack:"name"`
	Client  string `msgpack:"client"`
	Version string `msgpack:"version"`
}

type MutePayload struct {
	Kind  string `msgpack:"kind"`
	Muted bool   `msgpack:"muted"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}
