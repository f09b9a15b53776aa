package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/rs/zerolog/log"
)

// publicDNS are servers to be queried if a local lookup fails.
// These are well-known, high-availability public DNS providers.
var publicDNS = []string{
	"1.0.0.1",              // Cloudflare
	"1.1.1.1",              // Cloudflare
	"2606:4700:4700::1111", // Cloudflare
	"8.8.4.4",              // Google
	"8.8.8.8",              // Google
	"2001:4860:4860::8888", // Google
	"9.9.9.9",              // Quad9
	"149.112.112.112",      // Quad9
	"208.67.220.220",       // Cisco OpenDNS
	"208.67.222.222",       // Cisco OpenDNS
}

var (
	ErrNoAddress = errors.New("no IP addresses found")

	localTimeout  = time.Second
	remoteTimeout = 2 * time.Second
)

// Resolver looks a host up with the system resolver first and races the
// public servers when that fails.
type Resolver struct {
	Servers []string

	local  func(ctx context.Context, host string) ([]string, error)
	remote func(ctx context.Context, host, server string) (string, error)
}

func NewResolver() *Resolver {
	return &Resolver{
		Servers: publicDNS,
		local:   (&net.Resolver{}).LookupHost,
		remote:  queryServer,
	}
}

// Lookup resolves a hostname to an IP address, preferring IPv4.
func Lookup(ctx context.Context, host string) (string, error) {
	return NewResolver().Lookup(ctx, host)
}

func (r *Resolver) Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	ips, err := r.local(lctx, host)
	cancel()
	if err == nil {
		if ip := preferIPv4(ips); ip != "" {
			return ip, nil
		}
	}

	log.Debug().Str("module", "dns").Str("host", host).AnErr("local_err", err).Msg("system DNS failed, racing public resolvers")
	return r.race(ctx, host)
}

// race returns the first successful answer from the public servers.
func (r *Resolver) race(ctx context.Context, host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	results := make(chan result, len(r.Servers))
	for _, server := range r.Servers {
		go func(server string) {
			ip, err := r.remote(ctx, host, server)
			results <- result{ip: ip, err: err}
		}(server)
	}

	failures := 0
	for range r.Servers {
		select {
		case res := <-results:
			if res.err == nil && res.ip != "" {
				return res.ip, nil
			}
			failures++
		case <-ctx.Done():
			return "", fmt.Errorf("DNS lookup for %s timed out during public DNS race", host)
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all %d public DNS servers failed", host, failures)
}

// queryServer asks one server for A records, then AAAA.
func queryServer(ctx context.Context, host, server string) (string, error) {
	client := &mdns.Client{Timeout: remoteTimeout}
	addr := net.JoinHostPort(server, "53")

	for _, qtype := range []uint16{mdns.TypeA, mdns.TypeAAAA} {
		m := new(mdns.Msg)
		m.SetQuestion(mdns.Fqdn(host), qtype)
		m.RecursionDesired = true

		in, _, err := client.ExchangeContext(ctx, m, addr)
		if err != nil {
			return "", err
		}
		if in.Rcode != mdns.RcodeSuccess {
			return "", fmt.Errorf("%s answered %s", server, mdns.RcodeToString[in.Rcode])
		}
		for _, rr := range in.Answer {
			switch v := rr.(type) {
			case *mdns.A:
				return v.A.String(), nil
			case *mdns.AAAA:
				return v.AAAA.String(), nil
			}
		}
	}
	return "", ErrNoAddress
}

func preferIPv4(ips []string) string {
	for _, ip := range ips {
		if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
			return ip
		}
	}
	if len(ips) > 0 {
		return ips[0]
	}
	return ""
}
