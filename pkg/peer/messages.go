package peer

import (
	"github.com/pion/webrtc/v4"
)

// MessageContent is what the negotiator posts to its sink. Go has no sum
// types, so the consumer switches on the concrete type at runtime.
type MessageContent = interface{}

// ConnectionEstablished is posted when the underlying connection reaches a
// live state. May be posted more than once; the consumer treats repeats as
// no-ops.
type ConnectionEstablished struct{}

// ConnectionLost is posted only on terminal failure (failed/closed). A
// transient `disconnected` never produces this message; networks blip, and
// ICE is given time to recover.
type ConnectionLost struct {
	State webrtc.PeerConnectionState
}

// NewLocalCandidate carries a locally gathered ICE candidate that must be
// relayed to the remote peer. Fire-and-forget, no acknowledgment expected.
type NewLocalCandidate struct {
	Candidate webrtc.ICECandidateInit
}

// CandidateGatheringComplete is posted once local gathering has finished.
type CandidateGatheringComplete struct{}

// RemoteTrackReceived is posted for each inbound media track. Tracks of a
// call may arrive at different times (audio first, video later); the consumer
// assembles the remote stream incrementally.
type RemoteTrackReceived struct {
	Track *webrtc.TrackRemote
}

// RemoteTrackEnded is posted when an inbound track stops delivering data.
type RemoteTrackEnded struct {
	TrackID string
}
