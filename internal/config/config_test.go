package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultRelayHost, cfg.RelayHost)
	assert.Equal(t, DefaultRelayPort, cfg.RelayPort)
	assert.Equal(t, DefaultControlPort, cfg.ControlPort)
	assert.Equal(t, DefaultAudioPort, cfg.AudioPort)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("OH_RELAY_HOST", "relay.example.com")
	t.Setenv("OH_RELAY_PORT", "6000")
	t.Setenv("OH_LOG_LEVEL", "debug")

	cfg, err := Load(Options{})
	require.NoError(t, err)
	assert.Equal(t, "relay.example.com", cfg.RelayHost)
	assert.Equal(t, 6000, cfg.RelayPort)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadFlagsBeatEnv(t *testing.T) {
	t.Setenv("OH_RELAY_HOST", "relay.example.com")
	t.Setenv("OH_RELAY_PORT", "6000")

	cfg, err := Load(Options{RelayHost: "10.0.0.5", RelayPort: 7000})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", cfg.RelayHost)
	assert.Equal(t, 7000, cfg.RelayPort)
}

func TestLoadRejectsBadPort(t *testing.T) {
	for _, bad := range []string{"abc", "-1", "0", "70000"} {
		t.Setenv("OH_RELAY_PORT", bad)
		_, err := Load(Options{})
		assert.Error(t, err, "port %q should be rejected", bad)
	}
}

func TestRelayAddr(t *testing.T) {
	cfg := &Config{RelayHost: "relay.example.com", RelayPort: 50002}
	assert.Equal(t, "relay.example.com:50002", cfg.RelayAddr())
}

func TestLoadRelayDefaultsAndEnv(t *testing.T) {
	cfg, err := LoadRelay("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRelayPort, cfg.Bind.Port)
	assert.Positive(t, cfg.Rooms.IdleTimeout)
	assert.Positive(t, cfg.PeerDeadline())

	t.Setenv("OH_RELAY_BIND", "127.0.0.1")
	t.Setenv("OH_RELAY_PORT", "5555")
	cfg, err = LoadRelay("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5555", cfg.BindAddr())
}

func TestLoadRelayFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	body := []byte("bind:\n  address: 192.168.1.10\n  port: 6100\nlog:\n  level: debug\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))

	cfg, err := LoadRelay(path)
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.10", cfg.Bind.Address)
	assert.Equal(t, 6100, cfg.Bind.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRelayMissingFile(t *testing.T) {
	_, err := LoadRelay("/nonexistent/relay.yaml")
	assert.Error(t, err)
}
