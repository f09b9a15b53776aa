package negotiation

import (
	"context"

	pion "github.com/pion/webrtc/v4"
)

//go:generate mockgen -source=capability.go -destination=mocks/mock_capability.go -package=mocks

// MediaHandle is an acquired local media source. It is owned by exactly one
// session and released on teardown.
type MediaHandle interface {
	Tracks() []pion.TrackLocal
	Release()
}

// MediaSource acquires local media for a new session.
type MediaSource interface {
	Acquire(ctx context.Context) (MediaHandle, error)
}

// Transport is the local peer-transport object of one session.
type Transport interface {
	CreateOffer(ctx context.Context) (pion.SessionDescription, error)
	CreateAnswer(ctx context.Context) (pion.SessionDescription, error)
	SetLocalDescription(ctx context.Context, d pion.SessionDescription) error
	SetRemoteDescription(ctx context.Context, d pion.SessionDescription) error
	// Rollback discards a pending local offer.
	Rollback(ctx context.Context) error
	AddCandidate(ctx context.Context, c Candidate) error
	AttachMedia(h MediaHandle) error
	OnCandidate(fn func(Candidate))
	OnConnectionStateChange(fn func(pion.PeerConnectionState))
	Close() error
}

// TransportFactory builds a fresh transport for a session.
type TransportFactory interface {
	NewTransport(ctx context.Context, room RoomID, self ParticipantID) (Transport, error)
}

// TransportFactoryFunc adapts a function to TransportFactory.
type TransportFactoryFunc func(ctx context.Context, room RoomID, self ParticipantID) (Transport, error)

func (f TransportFactoryFunc) NewTransport(ctx context.Context, room RoomID, self ParticipantID) (Transport, error) {
	return f(ctx, room, self)
}

// Channel is the rendezvous relay as seen by the coordinator.
type Channel interface {
	Join(ctx context.Context, room RoomID, self ParticipantID) (JoinResult, error)
	Leave(ctx context.Context, room RoomID, self ParticipantID) error
	Publish(ctx context.Context, sig Signal) error
}
