// Package signaling connects the client to the relay that forwards named
// events between endpoints. The relay is a dumb pipe: at-most-once delivery,
// best effort, no ordering guarantee across event types. Everything that
// compensates for those properties lives in the call engine, not here.
package signaling

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rivulet-chat/rivulet/pkg/common"
	"github.com/rivulet-chat/rivulet/pkg/event"
	"github.com/sirupsen/logrus"
)

// Signaler is the only surface the call engine needs from the relay layer.
type Signaler interface {
	Send(envelope event.Envelope) error
	EndpointID() string
}

// Client is a websocket connection to the relay.
type Client struct {
	config Config
	conn   *websocket.Conn
	logger *logrus.Entry

	writeMutex sync.Mutex
	events     chan event.Envelope
	pong       chan<- common.Pong

	closeOnce sync.Once
}

// Connect dials the relay and registers under the configured endpoint id.
// The returned client is already reading; consume Events() promptly.
func Connect(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	endpoint, err := url.Parse(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	query := endpoint.Query()
	query.Set("endpoint", config.EndpointID)
	endpoint.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	client := &Client{
		config: config,
		conn:   conn,
		logger: logrus.WithFields(logrus.Fields{"component": "signaling", "endpoint": config.EndpointID}),
		events: make(chan event.Envelope, common.UnboundedChannelSize),
	}

	heartbeat := common.Heartbeat{
		Interval: config.PingInterval,
		Timeout:  config.PongTimeout,
		SendPing: client.sendPing,
		OnTimeout: func() {
			client.logger.Warn("relay stopped answering pings, closing connection")
			client.Close()
		},
	}
	client.pong = heartbeat.Start()
	conn.SetPongHandler(func(string) error {
		client.pong <- common.Pong{}
		return nil
	})

	go client.readLoop()
	return client, nil
}

// Events returns the inbound envelope stream. The channel is closed when the
// relay connection is lost; the consumer must treat that as fatal for any
// active call, since the peer is no longer reachable.
func (c *Client) Events() <-chan event.Envelope {
	return c.events
}

// Send forwards an envelope to the relay, stamped with our endpoint id.
func (c *Client) Send(envelope event.Envelope) error {
	envelope.From = c.config.EndpointID

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := c.conn.WriteJSON(envelope); err != nil {
		return fmt.Errorf("failed to send %s to relay: %w", envelope.Event, err)
	}
	return nil
}

func (c *Client) EndpointID() string { return c.config.EndpointID }

// DisplayName and AvatarURL are the identity the caller introduces itself
// with in initiate-call.
func (c *Client) DisplayName() string { return c.config.DisplayName }
func (c *Client) AvatarURL() string   { return c.config.AvatarURL }

// Close tears down the relay connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}

func (c *Client) sendPing() bool {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	return c.conn.WriteMessage(websocket.PingMessage, nil) == nil
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer c.Close()

	for {
		var envelope event.Envelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.WithError(err).Warn("relay connection lost")
			}
			return
		}

		if envelope.Event == "" {
			c.logger.Warn("ignoring relay frame without an event name")
			continue
		}

		c.events <- envelope
	}
}
