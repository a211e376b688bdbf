package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

const defaultPath = "drawledger.toml"

// Config holds all drawledger server configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Redis  RedisConfig  `toml:"redis"`
}

// ServerConfig holds HTTP and storage settings.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`
}

// RedisConfig holds the payoff-quote cache settings. An empty address
// selects the in-process cache.
type RedisConfig struct {
	Addr string `toml:"addr,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			DBPath:     "drawledger.db",
		},
	}
}

// Path returns the config file path, honoring the DRAWLEDGER_CONFIG
// environment variable.
func Path() string {
	if p := os.Getenv("DRAWLEDGER_CONFIG"); p != "" {
		return p
	}
	return defaultPath
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}
