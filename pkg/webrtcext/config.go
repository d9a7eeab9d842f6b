package webrtcext

import "time"

// Config for the WebRTC API shared by all peer connections of a client.
type Config struct {
	// STUN/TURN servers used for gathering candidates.
	ICEServers []string `yaml:"iceServers"`
	// How long ICE may stay in the transient `disconnected` state before it is
	// declared failed. The pion default of 5s is far too short for relay paths
	// that blip during re-keying or failover; a generous timeout lets ICE
	// recover without the call being torn down.
	DisconnectedTimeout time.Duration `yaml:"disconnectedTimeout"`
	// How long until a disconnected ICE agent is declared failed for good.
	FailedTimeout time.Duration `yaml:"failedTimeout"`
	// Interval of ICE keepalive packets.
	KeepAliveInterval time.Duration `yaml:"keepAliveInterval"`
}

// DefaultConfig returns the timeouts used when the config leaves them zero.
func DefaultConfig() Config {
	return Config{
		ICEServers:          []string{"stun:stun.l.google.com:19302"},
		DisconnectedTimeout: 30 * time.Second,
		FailedTimeout:       120 * time.Second,
		KeepAliveInterval:   2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if len(c.ICEServers) == 0 {
		c.ICEServers = defaults.ICEServers
	}
	if c.DisconnectedTimeout == 0 {
		c.DisconnectedTimeout = defaults.DisconnectedTimeout
	}
	if c.FailedTimeout == 0 {
		c.FailedTimeout = defaults.FailedTimeout
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = defaults.KeepAliveInterval
	}
	return c
}
