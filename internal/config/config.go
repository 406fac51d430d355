package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete agent configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Websocket WebsocketConfig `yaml:"websocket"`
	Poll      PollConfig      `yaml:"poll"`
	Logging   LoggingConfig   `yaml:"logging"`
	App       AppConfig       `yaml:"app"`
}

// ServerConfig holds the local HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig holds marketplace backend connection settings. The session
// token is read from the environment variable named by TokenEnv, never from
// the config file.
type BackendConfig struct {
	BaseURL        string        `yaml:"base_url"`
	WebsocketURL   string        `yaml:"websocket_url"`
	TokenEnv       string        `yaml:"token_env"`
	Role           string        `yaml:"role"` // client or worker
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// WebsocketConfig holds realtime channel settings
type WebsocketConfig struct {
	PingInterval  time.Duration   `yaml:"ping_interval"`
	ConfirmWindow time.Duration   `yaml:"confirm_window"`
	Dashboard     ReconnectConfig `yaml:"dashboard"`
	Chat          ReconnectConfig `yaml:"chat"`
}

// ReconnectConfig holds the retry policy for one channel kind. MinDelay equal
// to MaxDelay gives a fixed reconnect interval; MaxFailures zero retries
// forever.
type ReconnectConfig struct {
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	MaxFailures int           `yaml:"max_failures"`
}

// PollConfig holds fallback sweep cadences
type PollConfig struct {
	DashboardInterval time.Duration `yaml:"dashboard_interval"`
	ChatInterval      time.Duration `yaml:"chat_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Load reads and parses the configuration file, filling in defaults for
// every timing left unset.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = 30 * time.Second
	}
	if c.Websocket.PingInterval <= 0 {
		c.Websocket.PingInterval = 30 * time.Second
	}
	if c.Websocket.ConfirmWindow <= 0 {
		c.Websocket.ConfirmWindow = 2 * time.Second
	}
	if c.Websocket.Dashboard.MinDelay <= 0 {
		c.Websocket.Dashboard.MinDelay = 5 * time.Second
	}
	if c.Websocket.Dashboard.MaxDelay <= 0 {
		c.Websocket.Dashboard.MaxDelay = 60 * time.Second
	}
	if c.Websocket.Dashboard.MaxFailures == 0 {
		c.Websocket.Dashboard.MaxFailures = 3
	}
	if c.Websocket.Chat.MinDelay <= 0 {
		c.Websocket.Chat.MinDelay = 3 * time.Second
	}
	if c.Websocket.Chat.MaxDelay <= 0 {
		c.Websocket.Chat.MaxDelay = c.Websocket.Chat.MinDelay
	}
	if c.Poll.DashboardInterval <= 0 {
		c.Poll.DashboardInterval = 10 * time.Second
	}
	if c.Poll.ChatInterval <= 0 {
		c.Poll.ChatInterval = 3 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend base_url is required")
	}

	if c.Backend.WebsocketURL == "" {
		return fmt.Errorf("backend websocket_url is required")
	}

	if c.Backend.TokenEnv == "" {
		return fmt.Errorf("backend token_env is required")
	}

	if c.Backend.Role != "client" && c.Backend.Role != "worker" {
		return fmt.Errorf("backend role must be client or worker, got %q", c.Backend.Role)
	}

	if c.Websocket.Dashboard.MaxDelay < c.Websocket.Dashboard.MinDelay {
		return fmt.Errorf("dashboard max_delay must not be below min_delay")
	}

	if c.Websocket.Chat.MaxDelay < c.Websocket.Chat.MinDelay {
		return fmt.Errorf("chat max_delay must not be below min_delay")
	}

	return nil
}
