package peer

import (
	"errors"
	"io"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const keyFrameInterval = 3 * time.Second

// Called once for each inbound media track. The track data has to be drained
// even though rendering is not this layer's job: an unread track stalls the
// whole transport.
func (p *Peer) onRemoteTrackReceived(remoteTrack *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	p.logger.WithField("kind", remoteTrack.Kind()).Info("remote track received")
	p.sink.Send(RemoteTrackReceived{Track: remoteTrack})

	if remoteTrack.Kind() == webrtc.RTPCodecTypeVideo {
		go p.requestKeyFrames(remoteTrack)
	}

	go func() {
		var firstPacket *rtp.Packet
		for {
			packet, _, readErr := remoteTrack.ReadRTP()
			if readErr != nil {
				if errors.Is(readErr, io.EOF) {
					p.logger.Info("remote track closed")
				} else {
					p.logger.WithError(readErr).Warn("failed to read from remote track")
				}
				p.sink.Send(RemoteTrackEnded{TrackID: remoteTrack.ID()})
				return
			}

			if firstPacket == nil {
				firstPacket = packet
				p.logger.WithField("ssrc", packet.SSRC).Debug("remote track flowing")
			}
		}
	}()
}

// Periodically asks the remote side for a keyframe so inbound video recovers
// from loss without waiting for the encoder's own refresh cycle.
func (p *Peer) requestKeyFrames(remoteTrack *webrtc.TrackRemote) {
	ticker := time.NewTicker(keyFrameInterval)
	defer ticker.Stop()

	for range ticker.C {
		err := p.peerConnection.WriteRTCP([]rtcp.Packet{
			&rtcp.PictureLossIndication{MediaSSRC: uint32(remoteTrack.SSRC())},
		})
		if err != nil {
			return
		}
	}
}

// Called for each locally gathered ICE candidate; nil marks the end of
// gathering. Candidates are relayed to the remote peer fire-and-forget.
func (p *Peer) onICECandidateGathered(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		p.logger.Debug("ICE candidate gathering finished")
		p.sink.Send(CandidateGatheringComplete{})
		return
	}

	p.sink.Send(NewLocalCandidate{Candidate: candidate.ToJSON()})
}

func (p *Peer) onICEConnectionStateChanged(state webrtc.ICEConnectionState) {
	p.logger.Debugf("ICE connection state changed: %v", state)
}

func (p *Peer) onSignalingStateChanged(state webrtc.SignalingState) {
	p.logger.Debugf("signaling state changed: %v", state)
}

func (p *Peer) onConnectionStateChanged(state webrtc.PeerConnectionState) {
	p.logger.Infof("connection state changed: %v", state)

	switch state {
	case webrtc.PeerConnectionStateConnected:
		p.sink.Send(ConnectionEstablished{})
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		p.sink.Send(ConnectionLost{State: state})
	case webrtc.PeerConnectionStateDisconnected:
		// Transient by definition; ICE gets DisconnectedTimeout to recover
		// before pion escalates to failed. Tearing the call down here would
		// turn every network blip into a dropped call.
		p.logger.Warn("connection temporarily disconnected, waiting for ICE to recover")
	}
}
