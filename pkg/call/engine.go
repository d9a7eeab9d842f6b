// Package call implements the client-side call state machine: it sequences
// initiation, ringing, acceptance, the offer/answer exchange, renegotiation
// for screen share and termination for at most one 1:1 call at a time.
//
// The engine is strictly single-threaded: user commands, relay events, peer
// messages and timeouts are all funneled into one loop, and every handler
// re-validates the session it pertains to at the time it runs. By the time an
// asynchronous continuation resumes, the user may have hung up or started a
// new call; stale work must detect that and discard its result instead of
// mutating a reset session.
package call

import (
	"errors"
	"sync"
	"time"

	"github.com/rivulet-chat/rivulet/pkg/channel"
	"github.com/rivulet-chat/rivulet/pkg/event"
	"github.com/rivulet-chat/rivulet/pkg/peer"
	"github.com/rivulet-chat/rivulet/pkg/signaling"
	"github.com/rivulet-chat/rivulet/pkg/worker"
	"github.com/sirupsen/logrus"
)

var (
	ErrEngineStopped      = errors.New("call engine is stopped")
	ErrCallInProgress     = errors.New("another call is already in progress")
	ErrCallCooldown       = errors.New("previous call is still winding down")
	ErrNoActiveCall       = errors.New("no active call")
	ErrNoPendingCall      = errors.New("no pending incoming call")
	ErrAlreadyAccepted    = errors.New("call was already accepted")
	ErrNotConnected       = errors.New("call is not connected")
	ErrNoSuchTrack        = errors.New("no local track of this kind")
	ErrScreenShareActive  = errors.New("screen share is already active")
	ErrScreenShareStopped = errors.New("screen share is not active")
)

// Engine is the top-level call component the UI layer drives and observes.
type Engine struct {
	config    Config
	signaler  signaling.Signaler
	media     MediaProvider
	negotiate NegotiatorFactory
	callbacks Callbacks
	self      PeerInfo
	logger    *logrus.Entry

	commands     chan func()
	relayEvents  <-chan event.Envelope
	peerMessages chan channel.Message[string, peer.MessageContent]
	relayWorker  *worker.Worker[event.Envelope]

	// Owned by the loop goroutine.
	session     session
	lastEndedAt time.Time

	submitMutex sync.Mutex
	draining    bool

	stopOnce sync.Once
	done     chan struct{}
}

// NewEngine creates the engine and starts its loop. `self` is the identity
// this client introduces itself with when initiating calls; `relayEvents` is
// the inbound envelope stream. When it closes, the engine treats the relay
// as gone and terminates any active call.
func NewEngine(
	config Config,
	signaler signaling.Signaler,
	relayEvents <-chan event.Envelope,
	mediaProvider MediaProvider,
	negotiate NegotiatorFactory,
	self PeerInfo,
	callbacks Callbacks,
) *Engine {
	engine := &Engine{
		config:       config.withDefaults(),
		signaler:     signaler,
		media:        mediaProvider,
		negotiate:    negotiate,
		callbacks:    callbacks,
		self:         self,
		logger:       logrus.WithField("component", "call"),
		commands:     make(chan func(), 100),
		relayEvents:  relayEvents,
		peerMessages: make(chan channel.Message[string, peer.MessageContent], 100),
		done:         make(chan struct{}),
	}

	engine.relayWorker = worker.StartWorker(worker.Config[event.Envelope]{
		ChannelSize: 128,
		Timeout:     time.Hour,
		OnTimeout:   func() {},
		OnTask: func(envelope event.Envelope) {
			if err := signaler.Send(envelope); err != nil {
				engine.logger.WithError(err).Warnf("failed to send %s to relay", envelope.Event)
			}
		},
	})

	go engine.processMessages()
	return engine
}

// Stop shuts the engine down, terminating any active call.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.done)
	})
}

// The main loop. All session state is owned here; everything else posts
// commands or messages and waits.
func (e *Engine) processMessages() {
	defer e.relayWorker.Stop()

	for {
		select {
		case <-e.done:
			e.endCall(true, "client shutting down")
			e.drainCommands()
			return

		case command := <-e.commands:
			command()

		case envelope, ok := <-e.relayEvents:
			if !ok {
				// The relay is gone: the peer can no longer be reached, so
				// an active call cannot survive. Commands keep working so
				// the UI can observe the idle state.
				e.logger.Warn("relay connection lost")
				e.relayEvents = nil
				e.endCall(false, "connection to server lost")
				continue
			}
			e.processRelayEvent(envelope)

		case message := <-e.peerMessages:
			e.processPeerMessage(message)
		}
	}
}

// perform runs f on the engine loop and waits for it to finish.
func (e *Engine) perform(f func()) error {
	executed := make(chan struct{})
	wrapped := func() {
		f()
		close(executed)
	}

	select {
	case e.commands <- wrapped:
	case <-e.done:
		return ErrEngineStopped
	}

	select {
	case <-executed:
		return nil
	case <-e.done:
		return ErrEngineStopped
	}
}

// submit posts f to the engine loop without waiting. Used by asynchronous
// continuations (media acquisition results, watchdog timeouts). Returns false
// when the engine is shutting down and f will never run; the caller then owns
// whatever cleanup f would have done.
func (e *Engine) submit(f func()) bool {
	e.submitMutex.Lock()
	defer e.submitMutex.Unlock()

	if e.draining {
		return false
	}

	select {
	case e.commands <- f:
		return true
	case <-e.done:
		return false
	}
}

// drainCommands runs the continuations that were queued before shutdown. The
// session was already reset, so they find their call gone and release the
// resources they carry. Once draining is flagged, submit stops accepting.
func (e *Engine) drainCommands() {
	e.submitMutex.Lock()
	e.draining = true
	e.submitMutex.Unlock()

	for {
		select {
		case command := <-e.commands:
			command()
		default:
			return
		}
	}
}

// sendEvent queues an outbound envelope on the relay worker, so a slow relay
// write can never stall the loop.
func (e *Engine) sendEvent(name, to string, payload any) {
	envelope, err := event.NewEnvelope(name, to, payload)
	if err != nil {
		e.logger.WithError(err).Errorf("failed to build %s event", name)
		return
	}

	if err := e.relayWorker.Send(envelope); err != nil {
		e.logger.WithError(err).Errorf("dropping %s event, relay queue unavailable", name)
	}
}

func (e *Engine) setStatus(status Status) {
	if e.session.status == status {
		return
	}
	e.session.status = status
	e.notifyStateChange(status)
}

func (e *Engine) notifyStateChange(status Status) {
	if e.callbacks.OnStateChange != nil {
		e.callbacks.OnStateChange(status)
	}
}

func (e *Engine) notifyError(message string) {
	if e.callbacks.OnError != nil {
		e.callbacks.OnError(message)
	}
}
