package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode         string `mapstructure:"mode"`
	Port         int    `mapstructure:"port"`
	ReadLimit    int64  `mapstructure:"read_limit"`
	MaxPeers     int    `mapstructure:"max_peers"`
	EchoSender   bool   `mapstructure:"echo_sender"`
	Secret       string `mapstructure:"secret"`
	MDNS         bool   `mapstructure:"mdns"`
	MDNSInstance string `mapstructure:"mdns_instance"`
}

// Load reads config/config.<CONFIG_ENV>.yaml when present and lets
// WARPCALL_* environment variables override it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("warpcall")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 64*1024)
	v.SetDefault("max_peers", 2)
	v.SetDefault("echo_sender", false)
	v.SetDefault("secret", "warpcall")
	v.SetDefault("mdns", false)
	v.SetDefault("mdns_instance", "warpcall")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MaxPeers < 2 {
		return nil, fmt.Errorf("max_peers must be at least 2, got %d", cfg.MaxPeers)
	}

	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Int("max_peers", cfg.MaxPeers).
		Bool("echo_sender", cfg.EchoSender).
		Msg("configuration ready")
	return &cfg, nil
}
