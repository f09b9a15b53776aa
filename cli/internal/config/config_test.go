package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatal(err)
	}
	return fs
}

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, b := range bindings {
		t.Setenv(b.env, "")
		os.Unsetenv(b.env)
	}
}

func TestLoadPriority(t *testing.T) {
	isolate(t)

	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Domain != DefaultDomain || cfg.Relay != RelayAuto || cfg.ConnectRetries != DefaultRetries {
		t.Errorf("defaults not applied: %+v", cfg)
	}

	t.Setenv("DOMAIN", "env.example")
	t.Setenv("TURN_USERNAME", "alice")
	cfg, err = Load(newFlags(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Domain != "env.example" || cfg.TURNUser != "alice" {
		t.Errorf("env not applied: %+v", cfg)
	}

	cfg, err = Load(newFlags(t, "--domain", "flag.example", "--retries", "7"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Domain != "flag.example" || cfg.ConnectRetries != 7 {
		t.Errorf("flags not preferred: %+v", cfg)
	}
}

func TestLoadConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "warpcall.yaml")
	body := "domain: file.example\nrelay: always\naudio_file: /tmp/a.ogg\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(newFlags(t, "--config", path))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Domain != "file.example" || cfg.Relay != RelayAlways || cfg.AudioFile != "/tmp/a.ogg" {
		t.Errorf("file not applied: %+v", cfg)
	}

	if _, err := Load(newFlags(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))); err == nil {
		t.Error("missing explicit config file accepted")
	}
}

func TestLoadValidation(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "relay policy", args: []string{"--relay", "sometimes"}},
		{name: "server scheme", args: []string{"--server", "http://localhost:8080/ws"}},
		{name: "negative retries", args: []string{"--retries", "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(newFlags(t, tt.args...)); err == nil {
				t.Error("Load() accepted invalid config")
			}
		})
	}
}

func TestURLs(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantWS    string
		wantRooms string
	}{
		{
			name:      "domain",
			cfg:       Config{Domain: "warpcall.example"},
			wantWS:    "wss://warpcall.example/ws",
			wantRooms: "https://warpcall.example/api/rooms",
		},
		{
			name:      "local server",
			cfg:       Config{Domain: "warpcall.example", ServerURL: "ws://127.0.0.1:8080/ws"},
			wantWS:    "ws://127.0.0.1:8080/ws",
			wantRooms: "http://127.0.0.1:8080/api/rooms",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.WebSocketURL(); got != tt.wantWS {
				t.Errorf("WebSocketURL() = %q, want %q", got, tt.wantWS)
			}
			if got := tt.cfg.RoomsURL(); got != tt.wantRooms {
				t.Errorf("RoomsURL() = %q, want %q", got, tt.wantRooms)
			}
		})
	}
}

func TestICEServers(t *testing.T) {
	cfg := Config{STUNServer: DefaultSTUN, TURNServer: "turn:relay.example", TURNUser: "u", TURNPass: "p"}

	want := []string{
		"turn:relay.example:3478?transport=udp",
		"turn:relay.example:3478?transport=tcp",
		"turns:relay.example:5349?transport=tcp",
	}
	if got := cfg.GetTURNServers(); !reflect.DeepEqual(got, want) {
		t.Errorf("GetTURNServers() = %v", got)
	}
	if user, pass := cfg.GetTURNCredentials(); user != "u" || pass != "p" {
		t.Errorf("GetTURNCredentials() = %s/%s", user, pass)
	}

	cfg.TURNServer = ""
	if got := cfg.GetTURNServers(); got != nil {
		t.Errorf("GetTURNServers() without TURN = %v", got)
	}
}
