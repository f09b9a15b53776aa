package cmd

import (
	"context"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/BioHazard786/Warpcall/cli/internal/callctl"
	"github.com/BioHazard786/Warpcall/cli/internal/config"
	"github.com/BioHazard786/Warpcall/cli/internal/discovery"
	"github.com/BioHazard786/Warpcall/cli/internal/logging"
	"github.com/BioHazard786/Warpcall/cli/internal/media"
	"github.com/BioHazard786/Warpcall/cli/internal/negotiation"
	"github.com/BioHazard786/Warpcall/cli/internal/rtc"
	"github.com/BioHazard786/Warpcall/cli/internal/signaling"
	"github.com/BioHazard786/Warpcall/cli/internal/ui"
	"github.com/BioHazard786/Warpcall/cli/internal/version"
)

// CallContext holds everything one call needs: the signaling connection,
// the coordinator and the media plumbing around it.
type CallContext struct {
	Config      *config.Config
	Client      *signaling.Client
	Handler     *signaling.Handler
	Channel     *signaling.Channel
	Coordinator *negotiation.Coordinator
	Sink        *media.Sink

	hello   callctl.HelloPayload
	control chan callctl.Event
	lost    chan error

	mu         sync.Mutex
	controller *callctl.Controller

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCallContext connects to the signaling server and wires the coordinator.
func NewCallContext(ctx context.Context, cfg *config.Config, self negotiation.ParticipantID) (*CallContext, error) {
	url, err := signalingURL(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sp := ui.RunConnectionSpinner("Connecting to signaling server...")
	client := signaling.NewClient(url, signaling.WithRetries(cfg.ConnectRetries))
	if err := client.Connect(ctx); err != nil {
		sp.Error("Could not reach the signaling server")
		return nil, newError("connect to server", err)
	}
	sp.Success("Connected to " + url)

	ctx, cancel := context.WithCancel(ctx)
	c := &CallContext{
		Config:  cfg,
		Client:  client,
		Sink:    media.NewSink(),
		hello:   callctl.HelloPayload{Name: string(self), Client: "cli", Version: version.Version},
		control: make(chan callctl.Event, 16),
		lost:    make(chan error, 1),
		ctx:     ctx,
		cancel:  cancel,
	}

	c.Handler = signaling.NewHandler(client, nil)
	c.Channel = signaling.NewChannel(client, c.Handler)

	factory := rtc.NewFactory(rtc.ICEConfiguration(cfg),
		rtc.WithLoggerFactory(&logging.PionFactory{}),
		rtc.WithTrackHandler(c.Sink.HandleTrack),
		rtc.WithControlHandler(c.bindControl),
	)
	c.Coordinator = negotiation.NewCoordinator(c.Channel, media.NewSource(cfg.AudioFile, cfg.VideoFile), factory)
	c.Handler.SetDispatcher(c.Coordinator)

	go func() {
		if err := c.Handler.Run(ctx); err != nil {
			c.lost <- err
		}
	}()
	return c, nil
}

func signalingURL(ctx context.Context, cfg *config.Config) (string, error) {
	if !cfg.Discover {
		return cfg.WebSocketURL(), nil
	}

	sp := ui.RunWaitingSpinner("Looking for a signaling server on the local network...")
	browser, err := discovery.NewBrowser()
	if err != nil {
		sp.Stop()
		return "", newError("discover server", err)
	}
	server, err := browser.First(ctx)
	if err != nil {
		sp.Error("No local signaling server found")
		return "", newError("discover server", err)
	}
	sp.Success("Found " + server.Instance)
	return server.URL(), nil
}

// bindControl runs for every transport the coordinator builds; the newest
// controller is the one used to say goodbye.
func (c *CallContext) bindControl(room negotiation.RoomID, dc *pion.DataChannel) {
	ctl := callctl.Bind(dc, c.hello)
	c.mu.Lock()
	c.controller = ctl
	c.mu.Unlock()

	log.Debug().Str("room", string(room)).Msg("control channel bound")
	go func() {
		for {
			select {
			case <-c.ctx.Done():
				return
			case ev := <-ctl.Events():
				select {
				case c.control <- ev:
				default:
				}
			}
		}
	}()
}

// Control delivers control events from whichever transport is current.
func (c *CallContext) Control() <-chan callctl.Event { return c.control }

// Lost reports the signaling connection dropping.
func (c *CallContext) Lost() <-chan error { return c.lost }

// SayBye tells the peer we are hanging up. Errors are ignored since the
// channel may never have opened.
func (c *CallContext) SayBye() {
	c.mu.Lock()
	ctl := c.controller
	c.mu.Unlock()
	if ctl != nil {
		if err := ctl.Bye(); err != nil {
			log.Debug().Err(err).Msg("bye not sent")
		}
	}
}

func (c *CallContext) Close() {
	if c.Coordinator != nil {
		_ = c.Coordinator.Close()
	}
	c.cancel()
	if c.Client != nil {
		c.Client.Close()
	}
}
