package rtc

import (
	"net"
	"testing"

	pion "github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/cli/internal/config"
)

func TestLooksTunneled(t *testing.T) {
	ipnet := func(s string) net.Addr {
		ip, n, _ := net.ParseCIDR(s)
		n.IP = ip
		return n
	}

	tests := []struct {
		name  string
		iface string
		addrs []net.Addr
		want  bool
	}{
		{name: "plain ethernet", iface: "eth0", addrs: []net.Addr{ipnet("192.168.1.10/24")}, want: false},
		{name: "wireguard", iface: "wg0", want: true},
		{name: "openvpn", iface: "TUN3", want: true},
		{name: "cgnat address", iface: "en0", addrs: []net.Addr{ipnet("100.101.2.3/10")}, want: true},
		{name: "ip addr form", iface: "en1", addrs: []net.Addr{&net.IPAddr{IP: net.ParseIP("100.64.0.1")}}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := looksTunneled(tt.iface, tt.addrs); got != tt.want {
				t.Errorf("looksTunneled(%q) = %v, want %v", tt.iface, got, tt.want)
			}
		})
	}
}

func TestICEConfiguration(t *testing.T) {
	tests := []struct {
		name        string
		cfg         config.Config
		wantServers int
		wantPolicy  pion.ICETransportPolicy
	}{
		{
			name:        "stun only",
			cfg:         config.Config{STUNServer: "stun:stun.example.org:3478", Relay: config.RelayAlways},
			wantServers: 1,
			wantPolicy:  pion.ICETransportPolicyAll,
		},
		{
			name:        "forced relay",
			cfg:         config.Config{STUNServer: "stun:s", TURNServer: "turn:t.example.org", Relay: config.RelayAlways},
			wantServers: 2,
			wantPolicy:  pion.ICETransportPolicyRelay,
		},
		{
			name:        "relay disabled",
			cfg:         config.Config{TURNServer: "t.example.org", Relay: config.RelayNever},
			wantServers: 1,
			wantPolicy:  pion.ICETransportPolicyAll,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ICEConfiguration(&tt.cfg)
			if len(got.ICEServers) != tt.wantServers {
				t.Errorf("servers = %d, want %d", len(got.ICEServers), tt.wantServers)
			}
			if got.ICETransportPolicy != tt.wantPolicy {
				t.Errorf("policy = %s, want %s", got.ICETransportPolicy, tt.wantPolicy)
			}
		})
	}
}

func TestICEConfigurationTURNCredentials(t *testing.T) {
	cfg := &config.Config{TURNServer: "turn:relay.example.org", TURNUser: "u", TURNPass: "p", Relay: config.RelayNever}
	got := ICEConfiguration(cfg)
	if len(got.ICEServers) != 1 {
		t.Fatalf("servers = %+v", got.ICEServers)
	}
	s := got.ICEServers[0]
	if s.Username != "u" || s.Credential != "p" {
		t.Errorf("credentials = %q/%v", s.Username, s.Credential)
	}
	if s.URLs[0] != "turn:relay.example.org:3478?transport=udp" {
		t.Errorf("first url = %s", s.URLs[0])
	}
}
