package negotiation

import pion "github.com/pion/webrtc/v4"

// Event is an inbound trigger for a session. The concrete types below are
// the only implementations.
type Event interface {
	event()
}

// PeerJoined reports that another participant joined the room.
type PeerJoined struct {
	Participant ParticipantID
}

// PeerLeft reports that a participant left the room.
type PeerLeft struct {
	Participant ParticipantID
}

// OfferReceived carries a remote offer.
type OfferReceived struct {
	Description Description
}

// AnswerReceived carries a remote answer.
type AnswerReceived struct {
	Description Description
}

// CandidateReceived carries a remote transport candidate.
type CandidateReceived struct {
	From      ParticipantID
	Candidate Candidate
}

type startEvent struct{}

type assignResponder struct{}

type resetEvent struct{}

// localCandidate and connectionChanged come from transport callbacks; gen
// identifies the transport that raised them so stale ones can be dropped.
type localCandidate struct {
	gen       uint64
	Candidate Candidate
}

type connectionChanged struct {
	gen   uint64
	State pion.PeerConnectionState
}

func (PeerJoined) event()        {}
func (PeerLeft) event()          {}
func (OfferReceived) event()     {}
func (AnswerReceived) event()    {}
func (CandidateReceived) event() {}
func (startEvent) event()        {}
func (assignResponder) event()   {}
func (resetEvent) event()        {}
func (localCandidate) event()    {}
func (connectionChanged) event() {}

func eventName(ev Event) string {
	switch ev.(type) {
	case PeerJoined:
		return "peer_joined"
	case PeerLeft:
		return "peer_left"
	case OfferReceived:
		return "offer"
	case AnswerReceived:
		return "answer"
	case CandidateReceived:
		return "ice_candidate"
	case startEvent:
		return "start"
	case assignResponder:
		return "assign_responder"
	case resetEvent:
		return "reset"
	case localCandidate:
		return "local_candidate"
	case connectionChanged:
		return "connection_state"
	default:
		return "unknown"
	}
}
