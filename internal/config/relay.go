package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Relay is the relay server configuration. Everything here is operational
// tuning; the relay keeps no other persisted state.
type Relay struct {
	Service struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	Bind struct {
		// Address and Port are shared by control (TCP) and audio (UDP).
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"bind"`

	HTTP struct {
		// Address serves /health, /metrics and the /ws bridge.
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	Rooms struct {
		// IdleTimeout evicts rooms that never got a second occupant.
		IdleTimeout   time.Duration `yaml:"idle_timeout"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"rooms"`

	Keepalive struct {
		Interval time.Duration `yaml:"interval"`
		// Misses is how many silent intervals count as peer loss.
		Misses int `yaml:"misses"`
	} `yaml:"keepalive"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// LoadRelay loads the relay configuration from an optional YAML file, then
// applies environment overrides on top of conservative defaults.
func LoadRelay(path string) (*Relay, error) {
	cfg := &Relay{}
	cfg.Service.Name = "office-hours-relay"
	cfg.Service.Environment = "production"
	cfg.Bind.Address = "0.0.0.0"
	cfg.Bind.Port = DefaultRelayPort
	cfg.HTTP.Address = ":8090"
	cfg.HTTP.ReadTimeout = 10 * time.Second
	cfg.HTTP.WriteTimeout = 10 * time.Second
	cfg.HTTP.ShutdownTimeout = 15 * time.Second
	cfg.Rooms.IdleTimeout = 10 * time.Minute
	cfg.Rooms.SweepInterval = time.Minute
	cfg.Keepalive.Interval = 5 * time.Second
	cfg.Keepalive.Misses = 3
	cfg.Log.Level = DefaultLogLevel

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if v := os.Getenv("OH_RELAY_BIND"); v != "" {
		cfg.Bind.Address = v
	}
	if v := os.Getenv("OH_RELAY_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return nil, fmt.Errorf("invalid OH_RELAY_PORT: %q", v)
		}
		cfg.Bind.Port = p
	}
	if v := os.Getenv("OH_RELAY_HTTP"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("OH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	if cfg.Keepalive.Interval <= 0 || cfg.Keepalive.Misses <= 0 {
		return nil, fmt.Errorf("keepalive interval and misses must be positive")
	}
	return cfg, nil
}

// BindAddr returns the control/audio bind address as host:port.
func (c *Relay) BindAddr() string {
	return net.JoinHostPort(c.Bind.Address, strconv.Itoa(c.Bind.Port))
}

// PeerDeadline is how long a session half may stay silent before it is
// considered lost.
func (c *Relay) PeerDeadline() time.Duration {
	return c.Keepalive.Interval * time.Duration(c.Keepalive.Misses)
}
