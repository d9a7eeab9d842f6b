package call

import (
	"context"
	"time"

	"github.com/rivulet-chat/rivulet/pkg/channel"
	"github.com/rivulet-chat/rivulet/pkg/event"
	"github.com/rivulet-chat/rivulet/pkg/peer"
	"github.com/rivulet-chat/rivulet/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// processRelayEvent dispatches one inbound relay envelope. Loop-only. Events
// for calls that are not the current session are logged and dropped; the
// relay is unordered and best-effort, so trailing events from ended calls are
// expected, not exceptional.
func (e *Engine) processRelayEvent(envelope event.Envelope) {
	switch envelope.Event {
	case event.CallInitiated:
		e.onCallInitiated(envelope)
	case event.CallAccepted:
		e.onCallAccepted(envelope)
	case event.CallRejected:
		e.onCallRejected(envelope)
	case event.CallEnded:
		e.onCallEnded(envelope)
	case event.Offer:
		e.onOffer(envelope)
	case event.Answer:
		e.onAnswer(envelope)
	case event.ICECandidate:
		e.onCandidate(envelope)
	case event.PeerStatus:
		e.onPeerStatus(envelope)
	default:
		e.logger.Debugf("ignoring unknown relay event %s", envelope.Event)
	}
}

func (e *Engine) onCallInitiated(envelope event.Envelope) {
	var payload event.InitiateCallPayload
	if err := envelope.Decode(&payload); err != nil {
		e.logger.WithError(err).Warn("dropping malformed call-initiated")
		return
	}

	if e.session.matches(payload.CallID) {
		// Duplicate delivery of a ring we already know about.
		return
	}

	if e.session.active() {
		// Busy: auto-reject without disturbing the call in progress. The
		// current session is left completely untouched.
		e.logger.Infof("busy, auto-rejecting call %s from %s", payload.CallID, envelope.From)
		e.sendEvent(event.RejectCall, envelope.From, event.AnswerCallPayload{CallID: payload.CallID})
		return
	}

	e.session = session{
		callID:         payload.CallID,
		role:           RoleReceiver,
		isVideo:        payload.IsVideoCall,
		remoteEndpoint: envelope.From,
		remotePeer:     PeerInfo{Name: payload.CallerName, AvatarURL: payload.CallerImage},
		trace: telemetry.NewTelemetry(context.Background(), "call",
			attribute.String("call.id", payload.CallID),
			attribute.String("call.role", RoleReceiver.String()),
			attribute.Bool("call.video", payload.IsVideoCall)),
	}
	e.logger.Infof("incoming %s call %s from %s", callKind(payload.IsVideoCall), payload.CallID, envelope.From)
	e.setStatus(StatusRinging)
	e.armRingWatchdog(payload.CallID)

	if e.callbacks.OnIncomingCall != nil {
		e.callbacks.OnIncomingCall(IncomingCall{
			CallID:  payload.CallID,
			From:    envelope.From,
			IsVideo: payload.IsVideoCall,
			Caller:  e.session.remotePeer,
		})
	}
}

func (e *Engine) onCallAccepted(envelope event.Envelope) {
	var payload event.AnswerCallPayload
	if err := envelope.Decode(&payload); err != nil {
		e.logger.WithError(err).Warn("dropping malformed call-accepted")
		return
	}
	if e.session.role != RoleInitiator || !e.session.matches(payload.CallID) || e.session.negotiator == nil {
		e.logger.Debugf("ignoring call-accepted for call %s", payload.CallID)
		return
	}

	e.logger.Infof("call %s was accepted, creating offer", payload.CallID)
	e.session.trace.AddEvent("accepted")

	offer, err := e.session.negotiator.CreateOffer(e.session.isVideo)
	if err != nil {
		e.logger.WithError(err).Error("failed to create offer")
		e.session.trace.Fail(err)
		e.notifyError("Could not negotiate the call")
		e.endCall(true, "offer creation failed")
		return
	}

	e.sendEvent(event.Offer, e.session.remoteEndpoint, event.OfferPayload{
		CallID: payload.CallID,
		Offer:  *offer,
	})
}

func (e *Engine) onCallRejected(envelope event.Envelope) {
	var payload event.AnswerCallPayload
	if err := envelope.Decode(&payload); err != nil {
		e.logger.WithError(err).Warn("dropping malformed call-rejected")
		return
	}
	if e.session.role != RoleInitiator || !e.session.matches(payload.CallID) {
		e.logger.Debugf("ignoring call-rejected for call %s", payload.CallID)
		return
	}

	e.endCall(false, "call rejected by peer")
}

func (e *Engine) onCallEnded(envelope event.Envelope) {
	var payload event.AnswerCallPayload
	if err := envelope.Decode(&payload); err != nil {
		e.logger.WithError(err).Warn("dropping malformed call-ended")
		return
	}
	if !e.session.matches(payload.CallID) {
		e.logger.Debugf("ignoring call-ended for call %s", payload.CallID)
		return
	}

	e.endCall(false, "call ended by peer")
}

func (e *Engine) onOffer(envelope event.Envelope) {
	var payload event.OfferPayload
	if err := envelope.Decode(&payload); err != nil {
		e.logger.WithError(err).Warn("dropping malformed offer")
		return
	}
	if e.session.role != RoleReceiver || !e.session.matches(payload.CallID) {
		e.logger.Debugf("ignoring offer for call %s", payload.CallID)
		return
	}
	if e.session.negotiator == nil {
		// The offer is sent in reaction to our accept-call, which only goes
		// out once media and negotiator exist. Getting here means the peer is
		// not following the protocol.
		e.logger.Warnf("offer for call %s arrived before accept, dropping", payload.CallID)
		return
	}

	answer, err := e.session.negotiator.ProcessRemoteOffer(payload.Offer)
	if err != nil {
		e.logger.WithError(err).Error("failed to process offer")
		e.session.trace.Fail(err)
		e.notifyError("Could not negotiate the call")
		e.endCall(true, "offer processing failed")
		return
	}

	e.sendEvent(event.Answer, e.session.remoteEndpoint, event.AnswerPayload{
		CallID: payload.CallID,
		Answer: *answer,
	})
}

func (e *Engine) onAnswer(envelope event.Envelope) {
	var payload event.AnswerPayload
	if err := envelope.Decode(&payload); err != nil {
		e.logger.WithError(err).Warn("dropping malformed answer")
		return
	}
	if e.session.role != RoleInitiator || !e.session.matches(payload.CallID) {
		e.logger.Debugf("ignoring answer for call %s", payload.CallID)
		return
	}

	if err := e.session.negotiator.ProcessRemoteAnswer(payload.Answer); err != nil {
		e.logger.WithError(err).Error("failed to process answer")
		e.session.trace.Fail(err)
		e.notifyError("Could not negotiate the call")
		e.endCall(true, "answer processing failed")
	}
}

func (e *Engine) onCandidate(envelope event.Envelope) {
	var payload event.CandidatePayload
	if err := envelope.Decode(&payload); err != nil {
		e.logger.WithError(err).Warn("dropping malformed candidate")
		return
	}
	if !e.session.matches(payload.CallID) || e.session.negotiator == nil {
		e.logger.Debugf("ignoring candidate for call %s", payload.CallID)
		return
	}

	// The negotiator buffers candidates internally until the remote
	// description is in place, so out-of-order delivery is safe here.
	e.session.negotiator.AddRemoteCandidate(payload.Candidate)
}

func (e *Engine) onPeerStatus(envelope event.Envelope) {
	var payload event.PeerStatusPayload
	if err := envelope.Decode(&payload); err != nil {
		e.logger.WithError(err).Warn("dropping malformed peer-status")
		return
	}
	if payload.Online || !e.session.active() || payload.EndpointID != e.session.remoteEndpoint {
		return
	}

	// Only cut short calls that are still being set up. Once connected the
	// media path is peer-to-peer and outlives the peer's relay session; ICE
	// failure detection handles a genuinely dead peer.
	if e.session.status == StatusCalling || e.session.status == StatusRinging {
		e.logger.Warnf("peer %s went offline while call %s was pending", payload.EndpointID, e.session.callID)
		e.endCall(false, "peer went offline")
	}
}

// processPeerMessage dispatches one message from the session's negotiator.
// Loop-only. The sender is the call id the sink was bound to, so a trailing
// message from a terminated negotiator is filtered out here.
func (e *Engine) processPeerMessage(message channel.Message[string, peer.MessageContent]) {
	if !e.session.matches(message.Sender) {
		return
	}

	switch content := message.Content.(type) {
	case peer.ConnectionEstablished:
		if e.session.status == StatusConnected {
			return
		}
		e.logger.Infof("call %s connected", e.session.callID)
		e.session.trace.AddEvent("connected")
		if e.session.ringWatchdog != nil {
			e.session.ringWatchdog.Close()
		}
		e.setStatus(StatusConnected)

	case peer.ConnectionLost:
		e.logger.Warnf("call %s lost its connection (%s)", e.session.callID, content.State)
		e.notifyError("Connection to the peer was lost")
		e.endCall(true, "connection failed")

	case peer.NewLocalCandidate:
		e.sendEvent(event.ICECandidate, e.session.remoteEndpoint, event.CandidatePayload{
			CallID:    message.Sender,
			Candidate: content.Candidate,
		})

	case peer.CandidateGatheringComplete:
		e.logger.Debugf("candidate gathering for call %s complete", e.session.callID)

	case peer.RemoteTrackReceived:
		e.logger.Infof("remote %s track arrived on call %s", content.Track.Kind(), e.session.callID)
		e.session.remoteTracks = append(e.session.remoteTracks, content.Track)
		if e.callbacks.OnRemoteTrack != nil {
			e.callbacks.OnRemoteTrack(content.Track)
		}

	case peer.RemoteTrackEnded:
		e.logger.Debugf("remote track %s on call %s ended", content.TrackID, e.session.callID)

	default:
		e.logger.Warnf("unexpected peer message %T", content)
	}
}

// endCall tears the current session down: stops capture, terminates the
// negotiator and resets to idle. Idempotent; the second of two racing
// teardown paths (local hangup vs the peer's call-ended) is a no-op. When
// notifyPeer is set an end-call event is sent first.
func (e *Engine) endCall(notifyPeer bool, reason string) {
	if !e.session.active() || e.session.ending {
		return
	}
	e.session.ending = true

	e.logger.Infof("ending call %s: %s", e.session.callID, reason)

	if notifyPeer {
		e.sendEvent(event.EndCall, e.session.remoteEndpoint, event.AnswerCallPayload{CallID: e.session.callID})
	}

	if e.session.ringWatchdog != nil {
		e.session.ringWatchdog.Close()
	}
	if e.session.screenStream != nil {
		e.session.screenStream.Stop()
	}
	if e.session.localStream != nil {
		e.session.localStream.Stop()
	}
	if e.session.negotiator != nil {
		e.session.negotiator.Terminate()
	}
	if e.session.shareTrace != nil {
		e.session.shareTrace.End()
	}
	if e.session.trace != nil {
		e.session.trace.AddEvent("ended", attribute.String("reason", reason))
		e.session.trace.End()
	}

	e.setStatus(StatusEnded)
	if e.callbacks.OnCallEnded != nil {
		e.callbacks.OnCallEnded(reason)
	}

	e.lastEndedAt = time.Now()
	e.session = session{}
	// The reset itself is a transition the UI must see: Ended is transient,
	// Idle is what the session has actually returned to.
	e.notifyStateChange(StatusIdle)
}
