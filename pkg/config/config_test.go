package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
relay:
  url: ws://localhost:8080/ws
  endpointId: alice
  displayName: Alice
call:
  ringTimeout: 30s
webrtc:
  iceServers:
    - stun:stun.example.com:3478
log: debug
`

func TestLoadConfigFromString(t *testing.T) {
	config, err := LoadConfigFromString(validConfig)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/ws", config.Relay.URL)
	assert.Equal(t, "alice", config.Relay.EndpointID)
	assert.Equal(t, 30*time.Second, config.Call.RingTimeout)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, config.WebRTC.ICEServers)
	assert.Equal(t, "debug", config.LogLevel)
	assert.False(t, config.Telemetry.Enabled())
}

func TestLoadConfigFromString_RejectsMissingEndpoint(t *testing.T) {
	_, err := LoadConfigFromString("relay:\n  url: ws://localhost:8080/ws\n")
	require.Error(t, err)
}

func TestLoadConfigFromString_RejectsInvalidYAML(t *testing.T) {
	_, err := LoadConfigFromString("relay: [")
	require.Error(t, err)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CONFIG", validConfig)

	config, err := LoadConfig("does-not-exist.yaml")
	require.NoError(t, err)
	assert.Equal(t, "alice", config.Relay.EndpointID)
}
