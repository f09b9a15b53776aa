package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default configuration values (production)
const (
	DefaultDomain   = "warpcall.qzz.io"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "turn:warpcall.qzz.io"
	DefaultTURNUser = "warpcall"
	DefaultTURNPass = "warpcall-secret"
	DefaultRetries  = 3
)

// Relay policies for the ICE transport.
const (
	RelayAuto   = "auto"
	RelayAlways = "always"
	RelayNever  = "never"
)

type Config struct {
	Domain string `mapstructure:"domain"`

	// ServerURL overrides the websocket URL derived from Domain.
	ServerURL string `mapstructure:"server_url"`

	STUNServer string `mapstructure:"stun"`
	TURNServer string `mapstructure:"turn"`
	TURNUser   string `mapstructure:"turn_user"`
	TURNPass   string `mapstructure:"turn_pass"`
	Relay      string `mapstructure:"relay"`

	// Name is the participant id; a uuid is generated when empty.
	Name string `mapstructure:"name"`

	AudioFile string `mapstructure:"audio_file"`
	VideoFile string `mapstructure:"video_file"`

	Discover       bool `mapstructure:"discover"`
	ConnectRetries int  `mapstructure:"connect_retries"`
}

// binding ties a config key to its flag and environment variable.
type binding struct {
	key, flag, env string
}

var bindings = []binding{
	{"domain", "domain", "DOMAIN"},
	{"server_url", "server", "SERVER_URL"},
	{"stun", "stun", "STUN_SERVER"},
	{"turn", "turn", "TURN_SERVER"},
	{"turn_user", "turn-user", "TURN_USERNAME"},
	{"turn_pass", "turn-pass", "TURN_PASSWORD"},
	{"relay", "relay", "WARPCALL_RELAY"},
	{"name", "name", "WARPCALL_NAME"},
	{"audio_file", "audio", "WARPCALL_AUDIO"},
	{"video_file", "video", "WARPCALL_VIDEO"},
	{"discover", "discover", "WARPCALL_DISCOVER"},
	{"connect_retries", "retries", "WARPCALL_RETRIES"},
}

// AddFlags registers the persistent connection flags shared by all commands.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (default $XDG_CONFIG_HOME/warpcall/config.yaml)")
	fs.String("domain", "", "signaling server domain")
	fs.String("server", "", "signaling websocket URL, overrides --domain")
	fs.String("stun", "", "STUN server URL")
	fs.String("turn", "", "TURN server host (turn:host)")
	fs.String("turn-user", "", "TURN username")
	fs.String("turn-pass", "", "TURN password")
	fs.String("relay", "", "relay policy: auto, always or never")
	fs.String("name", "", "participant id announced to the room")
	fs.String("audio", "", "Ogg/Opus file to send instead of silence")
	fs.String("video", "", "IVF/VP8 file to send as video")
	fs.Bool("discover", false, "find the signaling server on the local network via mDNS")
	fs.Int("retries", 0, "extra connection attempts to the signaling server")
}

// Load reads configuration with the following priority:
// 1. CLI flags - highest priority
// 2. Environment variables
// 3. Config file
// 4. Hardcoded defaults - lowest priority
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("domain", DefaultDomain)
	v.SetDefault("stun", DefaultSTUN)
	v.SetDefault("turn", DefaultTURN)
	v.SetDefault("turn_user", DefaultTURNUser)
	v.SetDefault("turn_pass", DefaultTURNPass)
	v.SetDefault("relay", RelayAuto)
	v.SetDefault("connect_retries", DefaultRetries)

	for _, b := range bindings {
		if err := v.BindEnv(b.key, b.env); err != nil {
			return nil, err
		}
		if fs == nil {
			continue
		}
		if f := fs.Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	explicit := ""
	if fs != nil {
		explicit, _ = fs.GetString("config")
	}

	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(dir, "warpcall"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Relay {
	case RelayAuto, RelayAlways, RelayNever:
	default:
		return fmt.Errorf("invalid relay policy %q", c.Relay)
	}
	if c.ConnectRetries < 0 {
		return fmt.Errorf("connect_retries must not be negative")
	}
	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("invalid server URL %q", c.ServerURL)
		}
	}
	return nil
}

// WebSocketURL returns the signaling endpoint.
func (c *Config) WebSocketURL() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	return fmt.Sprintf("wss://%s/ws", c.Domain)
}

// RoomsURL returns the HTTP endpoint listing active rooms.
func (c *Config) RoomsURL() string {
	u, err := url.Parse(c.WebSocketURL())
	if err != nil {
		return fmt.Sprintf("https://%s/api/rooms", c.Domain)
	}
	if u.Scheme == "ws" {
		u.Scheme = "http"
	} else {
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/ws") + "/api/rooms"
	return u.String()
}

// GetRoomLink returns the webapp URL for a room ID
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("https://%s/r/%s", c.Domain, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
