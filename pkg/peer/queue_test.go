package peer

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func candidate(c string) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: c}
}

func testQueue(apply func(webrtc.ICECandidateInit) error) *candidateQueue {
	return newCandidateQueue(apply, logrus.WithField("test", true))
}

func TestCandidateQueue_BuffersUntilGateOpens(t *testing.T) {
	var applied []string
	q := testQueue(func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	})

	// Candidates arriving before the remote description must be queued,
	// not applied and not discarded.
	q.Add(candidate("a"))
	q.Add(candidate("b"))
	q.Add(candidate("c"))
	assert.Empty(t, applied)
	assert.Equal(t, 3, q.Size())

	// Opening the gate drains synchronously, in arrival order.
	q.OpenGate()
	assert.Equal(t, []string{"a", "b", "c"}, applied)
	assert.Equal(t, 0, q.Size())
}

func TestCandidateQueue_BypassAfterGateOpen(t *testing.T) {
	var applied []string
	q := testQueue(func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	})

	q.OpenGate()
	q.Add(candidate("late"))

	assert.Equal(t, []string{"late"}, applied)
	assert.Equal(t, 0, q.Size())
}

func TestCandidateQueue_DrainIsIdempotent(t *testing.T) {
	var applied []string
	q := testQueue(func(c webrtc.ICECandidateInit) error {
		applied = append(applied, c.Candidate)
		return nil
	})

	q.Add(candidate("a"))
	q.OpenGate()
	q.OpenGate()
	q.OpenGate()

	assert.Equal(t, []string{"a"}, applied)
}

func TestCandidateQueue_BadCandidateIsSkippedNotFatal(t *testing.T) {
	var applied []string
	q := testQueue(func(c webrtc.ICECandidateInit) error {
		if c.Candidate == "bad" {
			return errors.New("malformed candidate")
		}
		applied = append(applied, c.Candidate)
		return nil
	})

	q.Add(candidate("a"))
	q.Add(candidate("bad"))
	q.Add(candidate("b"))
	q.OpenGate()

	// The failing candidate must not abort the drain.
	assert.Equal(t, []string{"a", "b"}, applied)
	assert.Equal(t, 0, q.Size())
}
