package signaling

import "encoding/json"

const (
	TypeCreateRoom   = "create_room"
	TypeRoomCreated  = "room_created"
	TypeJoinRoom     = "join_room"
	TypeJoinSuccess  = "join_success"
	TypePeerJoined   = "peer_joined"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice_candidate"
	TypeLeaveRoom    = "leave_room"
	TypePeerLeft     = "peer_left"
	TypeError        = "error"
)

// Message defines the structure for all C2S (Client to Server)
// and S2C (Server to Client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	RoomID  string          `json:"room_id,omitempty"`

	// ParticipantID names the member a join/leave/peer message is about.
	ParticipantID string `json:"participant_id,omitempty"`

	// OriginatorID is stamped by the hub on relayed negotiation messages.
	OriginatorID string `json:"originator_id,omitempty"`

	// Members lists the participants already present, on join_success.
	Members []string `json:"members,omitempty"`

	// client is the client that sent the message.
	// It's used internally by the Hub and not sent over JSON.
	client *Client `json:"-"`
}

// ErrorPayload is the payload of an error message.
type ErrorPayload struct {
	Error string `json:"error"`
}

func errorMessage(text string) *Message {
	payload, _ := json.Marshal(ErrorPayload{Error: text})
	return &Message{Type: TypeError, Payload: payload}
}
