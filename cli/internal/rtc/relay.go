package rtc

import (
	"net"
	"strings"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/cli/internal/config"
)

// Carrier grade NAT range, also used by Cloudflare WARP and Tailscale.
var cgnatBlock = func() *net.IPNet {
	_, block, _ := net.ParseCIDR("100.64.0.0/10")
	return block
}()

var tunnelHints = []string{"tun", "tap", "wg", "ppp", "warp"}

// ShouldForceRelay checks if the system is likely behind a restrictive VPN or
// CGNAT, where direct paths rarely work and TURN should be used.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		if looksTunneled(iface.Name, addrs) {
			return true
		}
	}
	return false
}

func looksTunneled(name string, addrs []net.Addr) bool {
	name = strings.ToLower(name)
	for _, hint := range tunnelHints {
		if strings.Contains(name, hint) {
			return true
		}
	}

	for _, addr := range addrs {
		var ip net.IP
		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil && cgnatBlock.Contains(ip) {
			return true
		}
	}
	return false
}

// ICEConfiguration builds the peer connection configuration from the user
// settings. Relay is only forced when a TURN server is available.
func ICEConfiguration(cfg *config.Config) pion.Configuration {
	var servers []pion.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, pion.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, pion.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turn != nil {
		switch cfg.Relay {
		case config.RelayAlways:
			policy = pion.ICETransportPolicyRelay
		case config.RelayAuto:
			if ShouldForceRelay() {
				policy = pion.ICETransportPolicyRelay
			}
		}
	}

	return pion.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}
