package signaling

import (
	"errors"
	"time"
)

// Config of the relay connection and the local identity announced over it.
type Config struct {
	// Websocket URL of the signaling relay.
	URL string `yaml:"url"`
	// Opaque endpoint id this client registers under.
	EndpointID string `yaml:"endpointId"`
	// Display name sent to callees in initiate-call.
	DisplayName string `yaml:"displayName"`
	// Avatar URL sent to callees in initiate-call.
	AvatarURL string `yaml:"avatarUrl"`
	// How often to ping the relay.
	PingInterval time.Duration `yaml:"pingInterval"`
	// After which time without a pong the relay is considered gone.
	PongTimeout time.Duration `yaml:"pongTimeout"`
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("relay URL is required")
	}
	if c.EndpointID == "" {
		return errors.New("endpoint id is required")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.PingInterval == 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout == 0 {
		c.PongTimeout = 10 * time.Second
	}
	return c
}
