package rtc

import (
	"context"
	"fmt"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
)

// ControlLabel names the pre-negotiated data channel both peers open.
const ControlLabel = "control"

// Factory builds pion-backed transports with a shared configuration.
type Factory struct {
	config        pion.Configuration
	net           transport.Net
	mdns          ice.MulticastDNSMode
	loggerFactory logging.LoggerFactory
	timeouts      *iceTimeouts
	onTrack       func(*pion.TrackRemote, *pion.RTPReceiver)
	onControl     func(negotiation.RoomID, *pion.DataChannel)
	log           zerolog.Logger
}

type iceTimeouts struct {
	disconnected, failed, keepAlive time.Duration
}

var _ negotiation.TransportFactory = (*Factory)(nil)

type Option func(*Factory)

// WithNet replaces the host network, typically with a vnet.Net in tests.
func WithNet(n transport.Net) Option {
	return func(f *Factory) { f.net = n }
}

func WithMulticastDNS(mode ice.MulticastDNSMode) Option {
	return func(f *Factory) { f.mdns = mode }
}

// WithLoggerFactory routes pion's internal logging.
func WithLoggerFactory(lf logging.LoggerFactory) Option {
	return func(f *Factory) { f.loggerFactory = lf }
}

func WithICETimeouts(disconnected, failed, keepAlive time.Duration) Option {
	return func(f *Factory) { f.timeouts = &iceTimeouts{disconnected, failed, keepAlive} }
}

// WithTrackHandler is called for every remote track.
func WithTrackHandler(fn func(*pion.TrackRemote, *pion.RTPReceiver)) Option {
	return func(f *Factory) { f.onTrack = fn }
}

// WithControlHandler is called with the control channel of every new
// transport.
func WithControlHandler(fn func(negotiation.RoomID, *pion.DataChannel)) Option {
	return func(f *Factory) { f.onControl = fn }
}

func NewFactory(config pion.Configuration, opts ...Option) *Factory {
	f := &Factory{
		config: config,
		mdns:   ice.MulticastDNSModeQueryOnly,
		log:    log.With().Str("module", "rtc").Logger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) api() (*pion.API, error) {
	var se pion.SettingEngine
	if f.net != nil {
		se.SetNet(f.net)
	}
	se.SetICEMulticastDNSMode(f.mdns)
	if f.loggerFactory != nil {
		se.LoggerFactory = f.loggerFactory
	}
	if f.timeouts != nil {
		se.SetICETimeouts(f.timeouts.disconnected, f.timeouts.failed, f.timeouts.keepAlive)
	}

	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return pion.NewAPI(pion.WithSettingEngine(se), pion.WithMediaEngine(m)), nil
}

// NewTransport creates a peer connection with its control channel.
func (f *Factory) NewTransport(_ context.Context, room negotiation.RoomID, self negotiation.ParticipantID) (negotiation.Transport, error) {
	api, err := f.api()
	if err != nil {
		return nil, err
	}

	pc, err := api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	negotiated := true
	id := uint16(0)
	dc, err := pc.CreateDataChannel(ControlLabel, &pion.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("create control channel: %w", err)
	}

	t := &Transport{
		pc:      pc,
		control: dc,
		log:     f.log.With().Str("room", string(room)).Str("self", string(self)).Logger(),
	}

	if f.onTrack != nil {
		pc.OnTrack(f.onTrack)
	}
	if f.onControl != nil {
		f.onControl(room, dc)
	}

	t.log.Debug().Str("policy", f.config.ICETransportPolicy.String()).Msg("transport created")
	return t, nil
}
