package common

import (
	"time"
)

type Pong struct{}

// Heartbeat keeps an eye on the relay connection. It periodically sends pings
// (using `SendPing`) and expects a pong within `Timeout`; if none arrives the
// connection is considered dead and `OnTimeout` is called. Losing the relay
// is fatal for an active call, so the relay client wires OnTimeout straight
// into its disconnect path.
type Heartbeat struct {
	// How often to send pings.
	Interval time.Duration
	// After which time to consider the communication stalled.
	Timeout time.Duration
	// A closure that is called when a ping is to be sent.
	// Returns `false` if an attempt to send a ping failed.
	SendPing func() bool
	// A closure that is called once `Timeout` is reached.
	OnTimeout func()
}

// Start spawns the heartbeat goroutine. The returned channel is what the
// caller should use to report received pongs; closing it stops the heartbeat.
func (h *Heartbeat) Start() chan<- Pong {
	pong := make(chan Pong, UnboundedChannelSize)

	go func() {
		ticker := time.NewTicker(h.Interval)
		defer ticker.Stop()

		for range ticker.C {
			if !h.sendWithRetry() {
				return
			}

			select {
			case <-time.After(h.Timeout):
				h.OnTimeout()
				return
			case _, ok := <-pong:
				if !ok {
					return
				}
			}
		}
	}()

	return pong
}

// Tries to send a ping message using `SendPing`, retrying on failure.
// Returns `true` if the ping was sent successfully.
func (h *Heartbeat) sendWithRetry() bool {
	const retries = 3
	retryInterval := h.Timeout / retries

	for i := 0; i < retries; i++ {
		if !h.SendPing() {
			time.Sleep(retryInterval)
			continue
		}
		return true
	}

	return false
}
