package rtc

import (
	"context"
	"errors"
	"fmt"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
)

// Transport wraps a pion PeerConnection.
type Transport struct {
	pc      *pion.PeerConnection
	control *pion.DataChannel
	log     zerolog.Logger
}

var _ negotiation.Transport = (*Transport)(nil)

func (t *Transport) CreateOffer(context.Context) (pion.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *Transport) CreateAnswer(context.Context) (pion.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *Transport) SetLocalDescription(_ context.Context, d pion.SessionDescription) error {
	return t.pc.SetLocalDescription(d)
}

func (t *Transport) SetRemoteDescription(_ context.Context, d pion.SessionDescription) error {
	return t.pc.SetRemoteDescription(d)
}

var errNoLocalOffer = errors.New("no pending local offer")

// Rollback returns the signaling state to stable, discarding a local offer.
// pion only fills in an empty SDP for offers and answers, so the pending offer
// is passed along with the rollback.
func (t *Transport) Rollback(context.Context) error {
	pending := t.pc.PendingLocalDescription()
	if pending == nil {
		return errNoLocalOffer
	}
	return t.pc.SetLocalDescription(pion.SessionDescription{Type: pion.SDPTypeRollback, SDP: pending.SDP})
}

func (t *Transport) AddCandidate(_ context.Context, c negotiation.Candidate) error {
	return t.pc.AddICECandidate(c)
}

// AttachMedia adds every track of h and drains RTCP for each sender.
func (t *Transport) AttachMedia(h negotiation.MediaHandle) error {
	for _, track := range h.Tracks() {
		sender, err := t.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

// OnCandidate reports local candidates. The end-of-gathering marker is not
// forwarded.
func (t *Transport) OnCandidate(fn func(negotiation.Candidate)) {
	t.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			t.log.Debug().Msg("candidate gathering complete")
			return
		}
		fn(c.ToJSON())
	})
}

func (t *Transport) OnConnectionStateChange(fn func(pion.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(fn)
}

// Control returns the pre-negotiated control channel.
func (t *Transport) Control() *pion.DataChannel {
	return t.control
}

func (t *Transport) Close() error {
	return t.pc.Close()
}
