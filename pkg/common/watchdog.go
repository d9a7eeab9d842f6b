package common

import (
	"sync"
	"time"
)

// Watchdog fires a closure once if nothing pets it within the configured
// timeout. The call engine arms one per outgoing call so that an unanswered
// ring does not hang forever, and disarms it once the callee reacts.
type Watchdog struct {
	timeout   time.Duration
	onTimeout func()

	mutex   sync.Mutex
	channel chan<- struct{}
	closed  bool
}

// NewWatchdog creates a watchdog; it does not run until Start is called.
func NewWatchdog(timeout time.Duration, onTimeout func()) *Watchdog {
	return &Watchdog{timeout: timeout, onTimeout: onTimeout}
}

// Start arms the watchdog. OnTimeout fires at most once, after `timeout` of
// silence. The returned channel is closed when the watchdog goroutine exits.
func (w *Watchdog) Start() <-chan struct{} {
	incoming := make(chan struct{}, UnboundedChannelSize)
	terminated := make(chan struct{})

	w.mutex.Lock()
	w.channel = incoming
	alreadyClosed := w.closed
	w.mutex.Unlock()

	if alreadyClosed {
		close(incoming)
	}

	go func() {
		defer close(terminated)
		for {
			select {
			case _, ok := <-incoming:
				if !ok {
					return
				}
			case <-time.After(w.timeout):
				w.onTimeout()
				return
			}
		}
	}()

	return terminated
}

// Notify pets the watchdog, restarting its timeout. Returns false if the
// watchdog has already been closed.
func (w *Watchdog) Notify() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed || w.channel == nil {
		return false
	}

	w.channel <- struct{}{}
	return true
}

// Close disarms the watchdog. Safe to call multiple times and before Start.
func (w *Watchdog) Close() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return
	}
	w.closed = true
	if w.channel != nil {
		close(w.channel)
	}
}
