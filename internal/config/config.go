package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// Default configuration values
const (
	DefaultRelayHost   = "ohinter.com"
	DefaultRelayPort   = 50002
	DefaultControlPort = 50000
	DefaultAudioPort   = 50001
	DefaultLogLevel    = "info"
)

// Config holds the client configuration.
type Config struct {
	// RelayHost / RelayPort locate the public relay. Control (TCP) and
	// audio (UDP) share the port number on different protocols.
	RelayHost string
	RelayPort int

	// ControlPort / AudioPort are the local listening ports for the
	// direct (LAN) path.
	ControlPort int
	AudioPort   int

	LogLevel string
}

// Options carries CLI flag overrides.
type Options struct {
	RelayHost   string
	RelayPort   int
	ControlPort int
	AudioPort   int
	LogLevel    string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	host := opts.RelayHost
	if host == "" {
		host = os.Getenv("OH_RELAY_HOST")
	}
	if host == "" {
		host = DefaultRelayHost
	}

	relayPort, err := resolvePort(opts.RelayPort, "OH_RELAY_PORT", DefaultRelayPort)
	if err != nil {
		return nil, err
	}
	controlPort, err := resolvePort(opts.ControlPort, "OH_CONTROL_PORT", DefaultControlPort)
	if err != nil {
		return nil, err
	}
	audioPort, err := resolvePort(opts.AudioPort, "OH_AUDIO_PORT", DefaultAudioPort)
	if err != nil {
		return nil, err
	}

	level := opts.LogLevel
	if level == "" {
		level = os.Getenv("OH_LOG_LEVEL")
	}
	if level == "" {
		level = DefaultLogLevel
	}

	return &Config{
		RelayHost:   host,
		RelayPort:   relayPort,
		ControlPort: controlPort,
		AudioPort:   audioPort,
		LogLevel:    level,
	}, nil
}

// RelayAddr returns the relay's host:port for dialing.
func (c *Config) RelayAddr() string {
	return net.JoinHostPort(c.RelayHost, strconv.Itoa(c.RelayPort))
}

func resolvePort(flagValue int, envKey string, def int) (int, error) {
	if flagValue != 0 {
		return flagValue, nil
	}
	if v := os.Getenv(envKey); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return 0, fmt.Errorf("invalid %s: %q", envKey, v)
		}
		return p, nil
	}
	return def, nil
}
