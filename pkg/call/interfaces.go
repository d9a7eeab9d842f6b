package call

import (
	"github.com/pion/webrtc/v4"
	"github.com/rivulet-chat/rivulet/pkg/channel"
	"github.com/rivulet-chat/rivulet/pkg/media"
	"github.com/rivulet-chat/rivulet/pkg/peer"
)

// MediaProvider acquires local capture streams. Implemented by
// media.Acquirer; faked in tests.
type MediaProvider interface {
	Acquire(video, audio bool) (*media.Stream, error)
	AcquireDisplay() (*media.Stream, error)
}

// Negotiator is the per-session peer connection wrapper. Implemented by
// peer.Peer; faked in tests.
type Negotiator interface {
	AttachLocalTracks(tracks ...webrtc.TrackLocal) error
	CreateOffer(wantVideo bool) (*webrtc.SessionDescription, error)
	ProcessRemoteOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
	ProcessRemoteAnswer(answer webrtc.SessionDescription) error
	AddRemoteCandidate(candidate webrtc.ICECandidateInit)
	ReplaceVideoTrack(track webrtc.TrackLocal) error
	Terminate()
}

// NegotiatorFactory creates the negotiator for a new session. The sink is
// already bound to the session's call id, so every message the negotiator
// posts can be validated against the current session when it is processed.
type NegotiatorFactory func(callID string, sink *channel.Sink[string, peer.MessageContent]) (Negotiator, error)

// Callbacks notify the embedding application (UI layer) about call activity.
// All callbacks run on the engine loop: they must return quickly and must not
// call engine methods synchronously. Nil callbacks are skipped.
type Callbacks struct {
	// An endpoint is ringing us. React with AcceptCall or RejectCall.
	OnIncomingCall func(IncomingCall)
	// The session status changed.
	OnStateChange func(Status)
	// An inbound media track arrived. Audio and video may arrive separately.
	OnRemoteTrack func(*webrtc.TrackRemote)
	// The session was torn down, with a short human-readable reason.
	OnCallEnded func(reason string)
	// A fatal call error, phrased for the user.
	OnError func(message string)
}
