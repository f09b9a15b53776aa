package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
)

// Message represents all WebSocket messages between CLI and server.
type Message struct {
	Type          string          `json:"type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RoomID        string          `json:"room_id,omitempty"`
	ParticipantID string          `json:"participant_id,omitempty"`
	OriginatorID  string          `json:"originator_id,omitempty"`
	Members       []string        `json:"members,omitempty"`
}

// Message type constants.
const (
	MessageTypeCreateRoom   = "create_room"
	MessageTypeJoinRoom     = "join_room"
	MessageTypeLeaveRoom    = "leave_room"
	MessageTypeOffer        = "offer"
	MessageTypeAnswer       = "answer"
	MessageTypeICECandidate = "ice_candidate"

	MessageTypeRoomCreated = "room_created"
	MessageTypeJoinSuccess = "join_success"
	MessageTypePeerJoined  = "peer_joined"
	MessageTypePeerLeft    = "peer_left"
	MessageTypeError       = "error"
)

// ErrorPayload represents error messages from server.
type ErrorPayload struct {
	Error string `json:"error"`
}

var ErrMalformed = errors.New("malformed signaling message")

// EncodeSignal turns an outbound negotiation signal into a wire message.
func EncodeSignal(sig negotiation.Signal) (*Message, error) {
	var (
		payload any
		typ     string
	)
	switch sig.Kind {
	case negotiation.SignalOffer, negotiation.SignalAnswer:
		if sig.Description == nil {
			return nil, fmt.Errorf("%w: %s without description", ErrMalformed, sig.Kind)
		}
		typ, payload = sig.Kind.String(), sig.Description
	case negotiation.SignalCandidate:
		if sig.Candidate == nil {
			return nil, fmt.Errorf("%w: candidate without body", ErrMalformed)
		}
		typ, payload = MessageTypeICECandidate, sig.Candidate
	default:
		return nil, fmt.Errorf("%w: unknown signal kind %d", ErrMalformed, sig.Kind)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:         typ,
		RoomID:       string(sig.Room),
		OriginatorID: string(sig.From),
		Payload:      raw,
	}, nil
}

// DecodeEvent turns an inbound relayed message into a negotiation event.
func DecodeEvent(msg *Message) (negotiation.Event, error) {
	from := negotiation.ParticipantID(msg.OriginatorID)

	switch msg.Type {
	case MessageTypePeerJoined:
		return negotiation.PeerJoined{Participant: negotiation.ParticipantID(msg.ParticipantID)}, nil

	case MessageTypePeerLeft:
		return negotiation.PeerLeft{Participant: negotiation.ParticipantID(msg.ParticipantID)}, nil

	case MessageTypeOffer, MessageTypeAnswer:
		var sd pion.SessionDescription
		if err := json.Unmarshal(msg.Payload, &sd); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		d := negotiation.Description{SessionDescription: sd, Originator: from}
		if msg.Type == MessageTypeOffer {
			return negotiation.OfferReceived{Description: d}, nil
		}
		return negotiation.AnswerReceived{Description: d}, nil

	case MessageTypeICECandidate:
		var c negotiation.Candidate
		if err := json.Unmarshal(msg.Payload, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return negotiation.CandidateReceived{From: from, Candidate: c}, nil
	}
	return nil, fmt.Errorf("%w: type %q is not a negotiation event", ErrMalformed, msg.Type)
}
