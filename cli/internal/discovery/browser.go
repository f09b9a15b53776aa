// Package discovery finds Warpcall rendezvous servers on the local network.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// Service is the DNS-SD type advertised by the server.
	Service = "_warpcall._tcp"
	Domain  = "local."

	DefaultBrowseTimeout = 3 * time.Second
)

var ErrNoServer = errors.New("no signaling server found on the local network")

// MDNSResolver is the part of zeroconf.Resolver used here.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// Server is one discovered rendezvous server.
type Server struct {
	Instance string
	Host     string
	Port     int
	Path     string
	Version  string
	IPs      []net.IP
}

// URL returns the websocket endpoint, preferring IPv4.
func (s Server) URL() string {
	host := s.Host
	if len(s.IPs) > 0 {
		host = s.IPs[0].String()
	}
	path := s.Path
	if path == "" {
		path = "/ws"
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(strings.TrimSuffix(host, "."), strconv.Itoa(s.Port)), path)
}

type Browser struct {
	resolver MDNSResolver
	timeout  time.Duration
	log      zerolog.Logger
}

type BrowserOption func(*Browser)

func WithResolver(r MDNSResolver) BrowserOption {
	return func(b *Browser) { b.resolver = r }
}

func WithTimeout(d time.Duration) BrowserOption {
	return func(b *Browser) { b.timeout = d }
}

func NewBrowser(opts ...BrowserOption) (*Browser, error) {
	b := &Browser{
		timeout: DefaultBrowseTimeout,
		log:     log.With().Str("module", "discovery").Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolver == nil {
		r, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("create mdns resolver: %w", err)
		}
		b.resolver = r
	}
	return b, nil
}

// Browse collects servers until the timeout, deduplicated by instance and
// sorted by name.
func (b *Browser) Browse(ctx context.Context) ([]Server, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := b.resolver.Browse(ctx, Service, Domain, entries); err != nil {
		return nil, fmt.Errorf("browse %s: %w", Service, err)
	}

	found := map[string]Server{}
	for {
		select {
		case <-ctx.Done():
			return sorted(found), nil
		case e, ok := <-entries:
			if !ok {
				return sorted(found), nil
			}
			if e == nil {
				continue
			}
			s := fromEntry(e)
			b.log.Debug().Str("instance", s.Instance).Str("url", s.URL()).Msg("server found")
			found[s.Instance] = s
		}
	}
}

// First returns the first server by instance name.
func (b *Browser) First(ctx context.Context) (Server, error) {
	servers, err := b.Browse(ctx)
	if err != nil {
		return Server{}, err
	}
	if len(servers) == 0 {
		return Server{}, ErrNoServer
	}
	return servers[0], nil
}

func sorted(m map[string]Server) []Server {
	out := make([]Server, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}

func fromEntry(e *zeroconf.ServiceEntry) Server {
	s := Server{
		Instance: e.Instance,
		Host:     e.HostName,
		Port:     e.Port,
	}
	s.IPs = append(s.IPs, e.AddrIPv4...)
	s.IPs = append(s.IPs, e.AddrIPv6...)

	for _, kv := range e.Text {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch k {
		case "path":
			s.Path = v
		case "version":
			s.Version = v
		}
	}
	return s
}
