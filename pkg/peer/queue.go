package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// candidateQueue buffers remote ICE candidates that arrive before the remote
// session description. Applying a candidate before the remote description is
// set is an invalid operation in the negotiation protocol, and the relay
// gives no ordering guarantee between an offer/answer and the candidates that
// logically follow it, so early candidates wait here until the gate opens.
type candidateQueue struct {
	logger *logrus.Entry
	apply  func(webrtc.ICECandidateInit) error

	mutex    sync.Mutex
	gateOpen bool
	pending  []webrtc.ICECandidateInit
}

func newCandidateQueue(apply func(webrtc.ICECandidateInit) error, logger *logrus.Entry) *candidateQueue {
	return &candidateQueue{logger: logger, apply: apply}
}

// Add applies the candidate immediately when the gate is open, otherwise
// queues it in arrival order.
func (q *candidateQueue) Add(candidate webrtc.ICECandidateInit) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if !q.gateOpen {
		q.pending = append(q.pending, candidate)
		return
	}

	q.applyOne(candidate)
}

// OpenGate marks the remote description as applied and synchronously drains
// the queue in FIFO order. Draining happens at most once; candidates added
// afterwards bypass the queue.
func (q *candidateQueue) OpenGate() {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.gateOpen {
		return
	}
	q.gateOpen = true

	for _, candidate := range q.pending {
		q.applyOne(candidate)
	}
	q.pending = nil
}

// Size reports how many candidates are currently waiting for the gate.
func (q *candidateQueue) Size() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.pending)
}

// A malformed or stale candidate is logged and skipped; one bad candidate
// must never abort the drain or the call.
func (q *candidateQueue) applyOne(candidate webrtc.ICECandidateInit) {
	if err := q.apply(candidate); err != nil {
		q.logger.WithError(err).Warn("skipping ICE candidate that failed to apply")
	}
}
