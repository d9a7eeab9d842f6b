// Package peer wraps a single webrtc.PeerConnection for one call session.
// The negotiator learns about the outside world through its public methods
// and informs the outside world by posting typed messages to a sink; it never
// reaches back into the call engine directly.
package peer

import (
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/rivulet-chat/rivulet/pkg/channel"
	"github.com/rivulet-chat/rivulet/pkg/webrtcext"
	"github.com/sirupsen/logrus"
)

var (
	ErrCantCreatePeerConnection = errors.New("can't create peer connection")
	ErrCantSetRemoteDescription = errors.New("can't set remote description")
	ErrCantCreateOffer          = errors.New("can't create offer")
	ErrCantCreateAnswer         = errors.New("can't create answer")
	ErrCantSetLocalDescription  = errors.New("can't set local description")
	ErrCantAttachTrack          = errors.New("can't attach local track")
	ErrNoVideoSender            = errors.New("no outbound video sender on this connection")
)

// Peer is the session negotiator: it owns the peer connection and the
// local/remote description exchange for exactly one call.
type Peer struct {
	logger         *logrus.Entry
	peerConnection *webrtc.PeerConnection
	sink           *channel.Sink[string, MessageContent]
	pending        *candidateQueue
}

// NewPeer creates a negotiator for the given call. The sink's sender is the
// call id, so the consumer can discard messages from a stale negotiator after
// the call has already been torn down.
func NewPeer(
	factory *webrtcext.PeerConnectionFactory,
	sink *channel.Sink[string, MessageContent],
	logger *logrus.Entry,
) (*Peer, error) {
	peerConnection, err := factory.CreatePeerConnection()
	if err != nil {
		logger.WithError(err).Error("failed to create peer connection")
		return nil, ErrCantCreatePeerConnection
	}

	peer := &Peer{
		logger:         logger,
		peerConnection: peerConnection,
		sink:           sink,
	}
	peer.pending = newCandidateQueue(peerConnection.AddICECandidate, logger)

	peerConnection.OnTrack(peer.onRemoteTrackReceived)
	peerConnection.OnICECandidate(peer.onICECandidateGathered)
	peerConnection.OnICEConnectionStateChange(peer.onICEConnectionStateChanged)
	peerConnection.OnConnectionStateChange(peer.onConnectionStateChanged)
	peerConnection.OnSignalingStateChange(peer.onSignalingStateChanged)

	return peer, nil
}

// AttachLocalTracks adds the given local tracks to the connection so they are
// sent to the remote peer. Must happen before the offer/answer is created.
func (p *Peer) AttachLocalTracks(tracks ...webrtc.TrackLocal) error {
	for _, track := range tracks {
		if _, err := p.peerConnection.AddTrack(track); err != nil {
			p.logger.WithError(err).Error("failed to add local track")
			return ErrCantAttachTrack
		}
	}
	return nil
}

// CreateOffer produces the local session description for the initiator side.
// Receive intent is made explicit: even without a local track of a kind we
// still want to receive audio, and video when the call is a video call.
func (p *Peer) CreateOffer(wantVideo bool) (*webrtc.SessionDescription, error) {
	p.ensureReceiveIntent(webrtc.RTPCodecTypeAudio)
	if wantVideo {
		p.ensureReceiveIntent(webrtc.RTPCodecTypeVideo)
	}

	offer, err := p.peerConnection.CreateOffer(nil)
	if err != nil {
		p.logger.WithError(err).Error("failed to create offer")
		return nil, ErrCantCreateOffer
	}

	if err := p.peerConnection.SetLocalDescription(offer); err != nil {
		p.logger.WithError(err).Error("failed to set local description")
		return nil, ErrCantSetLocalDescription
	}

	return p.peerConnection.LocalDescription(), nil
}

// ProcessRemoteOffer applies the initiator's offer, opens the candidate gate
// and produces the answer.
func (p *Peer) ProcessRemoteOffer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := p.peerConnection.SetRemoteDescription(offer); err != nil {
		p.logger.WithError(err).Error("failed to set remote description")
		return nil, ErrCantSetRemoteDescription
	}

	// The remote description is in place: early candidates become applicable
	// right now, before the answer even exists.
	p.pending.OpenGate()

	answer, err := p.peerConnection.CreateAnswer(nil)
	if err != nil {
		p.logger.WithError(err).Error("failed to create answer")
		return nil, ErrCantCreateAnswer
	}

	if err := p.peerConnection.SetLocalDescription(answer); err != nil {
		p.logger.WithError(err).Error("failed to set local description")
		return nil, ErrCantSetLocalDescription
	}

	return p.peerConnection.LocalDescription(), nil
}

// ProcessRemoteAnswer applies the receiver's answer and opens the candidate
// gate.
func (p *Peer) ProcessRemoteAnswer(answer webrtc.SessionDescription) error {
	if err := p.peerConnection.SetRemoteDescription(answer); err != nil {
		p.logger.WithError(err).Error("failed to set remote description")
		return ErrCantSetRemoteDescription
	}

	p.pending.OpenGate()
	return nil
}

// AddRemoteCandidate routes a remote candidate through the pending queue:
// queued while the remote description is missing, applied directly after.
func (p *Peer) AddRemoteCandidate(candidate webrtc.ICECandidateInit) {
	p.pending.Add(candidate)
}

// ReplaceVideoTrack swaps the source feeding the outbound video sender
// without a new offer/answer round. Fails fast when the connection has no
// video sender (audio-only call), since adding one would require a full
// renegotiation, which is out of scope.
func (p *Peer) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	sender := p.videoSender()
	if sender == nil {
		return ErrNoVideoSender
	}

	if err := sender.ReplaceTrack(track); err != nil {
		p.logger.WithError(err).Error("failed to replace outbound video track")
		return err
	}
	return nil
}

// Terminate closes the peer connection and seals the sink; from this moment
// on no new messages are posted from this negotiator.
func (p *Peer) Terminate() {
	if err := p.peerConnection.Close(); err != nil {
		p.logger.WithError(err).Error("failed to close peer connection")
	}
	p.sink.Seal()
}

func (p *Peer) videoSender() *webrtc.RTPSender {
	for _, sender := range p.peerConnection.GetSenders() {
		if track := sender.Track(); track != nil && track.Kind() == webrtc.RTPCodecTypeVideo {
			return sender
		}
	}
	return nil
}

func (p *Peer) ensureReceiveIntent(kind webrtc.RTPCodecType) {
	for _, transceiver := range p.peerConnection.GetTransceivers() {
		if transceiver.Kind() == kind {
			return
		}
	}

	_, err := p.peerConnection.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		p.logger.WithError(err).Warnf("failed to add %s receive transceiver", kind)
	}
}
