package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every knob the client needs: where the backend lives, how
// the realtime channel reconnects, and how session state is stored.
type Config struct {
	API    *APIConfig    `json:"api"`
	Socket *SocketConfig `json:"socket"`
	Auth   *AuthConfig   `json:"auth"`
	Store  *StoreConfig  `json:"store"`
}

// APIConfig points the shared HTTP pipeline at the backend. No request
// timeout is configured here: the transport relies on caller contexts,
// matching the backend contract.
type APIConfig struct {
	BaseURL string `json:"base_url"`
}

// SocketConfig drives the realtime connection manager.
type SocketConfig struct {
	URL               string        `json:"url"`
	Path              string        `json:"path"`
	ReconnectAttempts int           `json:"reconnect_attempts"`
	ReconnectDelay    time.Duration `json:"reconnect_delay"`
	HandshakeTimeout  time.Duration `json:"handshake_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
}

// AuthConfig drives the token store and the session guard.
type AuthConfig struct {
	TokenDuration time.Duration `json:"token_duration"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

// StoreConfig locates the durable session store.
type StoreConfig struct {
	Path string `json:"path"`
}

// DefaultConfig returns working defaults for local development. Token
// duration is fixed at 15 minutes; the guard sweeps every 60 seconds.
func DefaultConfig() *Config {
	return &Config{
		API: &APIConfig{
			BaseURL: "http://localhost:8080",
		},
		Socket: &SocketConfig{
			URL:               "ws://localhost:8080",
			Path:              "/socket.io",
			ReconnectAttempts: 5,
			ReconnectDelay:    time.Second,
			HandshakeTimeout:  10 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
		Auth: &AuthConfig{
			TokenDuration: 15 * time.Minute,
			SweepInterval: 60 * time.Second,
		},
		Store: &StoreConfig{
			Path: "./classboard.db",
		},
	}
}

// Validate prevents a partially configured client from starting.
func (c *Config) Validate() error {
	if c.API == nil || c.API.BaseURL == "" {
		return fmt.Errorf("API base URL is required")
	}

	if c.Socket == nil {
		return fmt.Errorf("socket configuration is required")
	}

	if c.Socket.URL == "" {
		return fmt.Errorf("socket URL is required")
	}

	if c.Socket.ReconnectAttempts < 0 {
		return fmt.Errorf("socket reconnect attempts cannot be negative")
	}

	if c.Socket.ReconnectDelay <= 0 {
		return fmt.Errorf("socket reconnect delay must be positive")
	}

	if c.Socket.HandshakeTimeout <= 0 {
		return fmt.Errorf("socket handshake timeout must be positive")
	}

	if c.Socket.WriteTimeout <= 0 {
		return fmt.Errorf("socket write timeout must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}

	if c.Auth.TokenDuration <= 0 {
		return fmt.Errorf("token duration must be positive")
	}

	if c.Auth.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}

	if c.Store == nil || c.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}

	return nil
}

// Load reads configuration from the environment, first merging a local
// .env file when one exists. Missing or unparseable variables fall back
// to defaults.
func Load() *Config {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv builds a Config from CLASSBOARD_* environment variables
// layered over DefaultConfig.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if url := os.Getenv("CLASSBOARD_API_URL"); url != "" {
		config.API.BaseURL = url
	}

	if url := os.Getenv("CLASSBOARD_SOCKET_URL"); url != "" {
		config.Socket.URL = url
	}

	if path := os.Getenv("CLASSBOARD_SOCKET_PATH"); path != "" {
		config.Socket.Path = path
	}

	if attempts := os.Getenv("CLASSBOARD_SOCKET_RECONNECT_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			config.Socket.ReconnectAttempts = n
		}
	}

	if delay := os.Getenv("CLASSBOARD_SOCKET_RECONNECT_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Socket.ReconnectDelay = d
		}
	}

	if timeout := os.Getenv("CLASSBOARD_SOCKET_HANDSHAKE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Socket.HandshakeTimeout = d
		}
	}

	if timeout := os.Getenv("CLASSBOARD_SOCKET_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Socket.WriteTimeout = d
		}
	}

	if duration := os.Getenv("CLASSBOARD_TOKEN_DURATION"); duration != "" {
		if d, err := time.ParseDuration(duration); err == nil {
			config.Auth.TokenDuration = d
		}
	}

	if interval := os.Getenv("CLASSBOARD_SWEEP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Auth.SweepInterval = d
		}
	}

	if path := os.Getenv("CLASSBOARD_STORE_PATH"); path != "" {
		config.Store.Path = path
	}

	return config
}
