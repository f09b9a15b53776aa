package discovery

import (
	"context"
	"fmt"
	"net"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog/log"
)

const (
	// Service is the DNS-SD service type of a Warpcall rendezvous server.
	Service = "_warpcall._tcp"
	Domain  = "local."
)

// MDNSServer is a running registration.
type MDNSServer interface {
	Shutdown()
}

// RegisterFunc matches zeroconf.Register so tests can swap it out.
type RegisterFunc func(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)

func zeroconfRegister(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

type Advertiser struct {
	Instance string
	Port     int
	Path     string
	Version  string

	register RegisterFunc
}

func NewAdvertiser(instance string, port int, version string) *Advertiser {
	return &Advertiser{
		Instance: instance,
		Port:     port,
		Path:     "/ws",
		Version:  version,
		register: zeroconfRegister,
	}
}

func (a *Advertiser) txt() []string {
	return []string{"path=" + a.Path, "version=" + a.Version}
}

// Run advertises the server until ctx is done.
func (a *Advertiser) Run(ctx context.Context) error {
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("invalid port %d", a.Port)
	}

	server, err := a.register(a.Instance, Service, Domain, a.Port, a.txt(), nil)
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}
	log.Info().Str("module", "discovery").Str("instance", a.Instance).Int("port", a.Port).Msg("advertising rendezvous server")

	<-ctx.Done()
	server.Shutdown()
	log.Info().Str("module", "discovery").Msg("mdns advertisement stopped")
	return nil
}
