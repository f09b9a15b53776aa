// Package negotiation implements the per-session offer/answer state machine
// that bootstraps a two-party WebRTC call over a rendezvous channel.
package negotiation

import (
	pion "github.com/pion/webrtc/v4"
)

// RoomID addresses a room on the rendezvous channel.
type RoomID string

// ParticipantID identifies one participant of a room.
type ParticipantID string

// Role is decided once per negotiation attempt.
type Role int

const (
	RoleUnassigned Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unassigned"
	}
}

// State is the signaling state of a session.
type State int

const (
	// StateBootstrap is the phase before local media has been acquired.
	StateBootstrap State = iota
	StateNew
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateStable
	// StateClosed is terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateBootstrap:
		return "bootstrap"
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Candidate is an opaque reachability hint produced by a transport.
type Candidate = pion.ICECandidateInit

// Description is a session description tagged with the participant that
// produced it.
type Description struct {
	pion.SessionDescription
	Originator ParticipantID
}

// SignalKind tags a Signal.
type SignalKind int

const (
	SignalOffer SignalKind = iota + 1
	SignalAnswer
	SignalCandidate
)

func (k SignalKind) String() string {
	switch k {
	case SignalOffer:
		return "offer"
	case SignalAnswer:
		return "answer"
	case SignalCandidate:
		return "ice_candidate"
	default:
		return "unknown"
	}
}

// Signal is an outbound negotiation message published on the channel.
type Signal struct {
	Kind        SignalKind
	Room        RoomID
	From        ParticipantID
	Description *pion.SessionDescription
	Candidate   *Candidate
}

// JoinResult describes the room as observed at join time.
type JoinResult struct {
	Room    RoomID
	Members []ParticipantID
}

// Snapshot is a read-only view of a session for callers and the UI.
type Snapshot struct {
	Room              RoomID
	Self              ParticipantID
	Peer              ParticipantID
	Role              Role
	State             State
	RemoteApplied     bool
	Buffered          int
	AppliedCandidates int
	FailedCandidates  int
	SentCandidates    int
	Connection        pion.PeerConnectionState
}
