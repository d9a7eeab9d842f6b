package call

import (
	"context"
	"errors"
	"time"

	"github.com/rivulet-chat/rivulet/pkg/channel"
	"github.com/rivulet-chat/rivulet/pkg/common"
	"github.com/rivulet-chat/rivulet/pkg/event"
	"github.com/rivulet-chat/rivulet/pkg/media"
	"github.com/rivulet-chat/rivulet/pkg/peer"
	"github.com/rivulet-chat/rivulet/pkg/telemetry"
	"github.com/pion/webrtc/v4"
	"go.opentelemetry.io/otel/attribute"
)

// StartCall rings the given endpoint. Capture devices are acquired
// asynchronously; the ring goes out only once local media is ready, so the
// callee is never prompted for a call we cannot actually carry. Returns the
// id of the new call.
func (e *Engine) StartCall(remoteEndpoint string, video bool) (string, error) {
	var callID string
	var resultErr error

	err := e.perform(func() {
		if e.session.active() {
			resultErr = ErrCallInProgress
			return
		}
		if remaining := e.config.EndCooldown - time.Since(e.lastEndedAt); remaining > 0 {
			resultErr = ErrCallCooldown
			return
		}

		callID = newCallID()
		e.session = session{
			callID:         callID,
			role:           RoleInitiator,
			isVideo:        video,
			remoteEndpoint: remoteEndpoint,
			trace: telemetry.NewTelemetry(context.Background(), "call",
				attribute.String("call.id", callID),
				attribute.String("call.role", RoleInitiator.String()),
				attribute.Bool("call.video", video)),
		}
		e.logger.Infof("starting %s call %s to %s", callKind(video), callID, remoteEndpoint)
		e.setStatus(StatusCalling)

		e.acquireMediaAsync(callID, video, func() {
			e.sendEvent(event.InitiateCall, e.session.remoteEndpoint, event.InitiateCallPayload{
				CallID:      callID,
				IsVideoCall: video,
				CallerName:  e.self.Name,
				CallerImage: e.self.AvatarURL,
			})
			e.armRingWatchdog(callID)
		})
	})
	if err != nil {
		return "", err
	}
	return callID, resultErr
}

// AcceptCall answers the pending incoming call. Like StartCall, the wire
// reaction (accept-call) is only sent once local media is ready, so the
// initiator's offer never races our unprepared peer connection.
func (e *Engine) AcceptCall() error {
	var resultErr error

	err := e.perform(func() {
		if e.session.role != RoleReceiver || e.session.status != StatusRinging {
			resultErr = ErrNoPendingCall
			return
		}
		if e.session.accepted {
			resultErr = ErrAlreadyAccepted
			return
		}

		e.session.accepted = true
		callID := e.session.callID
		e.logger.Infof("accepting call %s from %s", callID, e.session.remoteEndpoint)
		e.session.trace.AddEvent("accepted")

		e.acquireMediaAsync(callID, e.session.isVideo, func() {
			e.sendEvent(event.AcceptCall, e.session.remoteEndpoint, event.AnswerCallPayload{CallID: callID})
		})
	})
	if err != nil {
		return err
	}
	return resultErr
}

// RejectCall declines the pending incoming call.
func (e *Engine) RejectCall() error {
	var resultErr error

	err := e.perform(func() {
		if e.session.role != RoleReceiver || e.session.status != StatusRinging || e.session.accepted {
			resultErr = ErrNoPendingCall
			return
		}

		e.logger.Infof("rejecting call %s from %s", e.session.callID, e.session.remoteEndpoint)
		e.sendEvent(event.RejectCall, e.session.remoteEndpoint, event.AnswerCallPayload{CallID: e.session.callID})
		e.endCall(false, "call rejected")
	})
	if err != nil {
		return err
	}
	return resultErr
}

// EndCall hangs up the active call, whatever state it is in.
func (e *Engine) EndCall() error {
	var resultErr error

	err := e.perform(func() {
		if !e.session.active() {
			resultErr = ErrNoActiveCall
			return
		}
		e.endCall(true, "call ended")
	})
	if err != nil {
		return err
	}
	return resultErr
}

// ToggleAudio flips the local microphone mute flag. Purely local: no
// signaling, no renegotiation, the track keeps flowing (silence) so the
// transport stays warm.
func (e *Engine) ToggleAudio(enabled bool) error {
	return e.toggleTrack(webrtc.RTPCodecTypeAudio, enabled)
}

// ToggleVideo flips the local camera mute flag. Same local-only semantics as
// ToggleAudio.
func (e *Engine) ToggleVideo(enabled bool) error {
	return e.toggleTrack(webrtc.RTPCodecTypeVideo, enabled)
}

func (e *Engine) toggleTrack(kind webrtc.RTPCodecType, enabled bool) error {
	var resultErr error

	err := e.perform(func() {
		if !e.session.active() || e.session.localStream == nil {
			resultErr = ErrNoActiveCall
			return
		}

		track := e.session.localStream.AudioTrack()
		if kind == webrtc.RTPCodecTypeVideo {
			track = e.session.localStream.VideoTrack()
		}
		if track == nil {
			resultErr = ErrNoSuchTrack
			return
		}
		track.SetEnabled(enabled)
		e.logger.Debugf("%s track of call %s enabled=%v", kind, e.session.callID, enabled)
	})
	if err != nil {
		return err
	}
	return resultErr
}

// StartScreenShare swaps the outgoing camera track for a display capture
// track. The swap happens on the existing sender, so no renegotiation and no
// signaling round trip is needed. Fails fast on audio-only calls, which have
// no video sender to swap on.
func (e *Engine) StartScreenShare() error {
	var resultErr error

	err := e.perform(func() {
		if e.session.status != StatusConnected {
			resultErr = ErrNotConnected
			return
		}
		if e.session.screenStream != nil {
			resultErr = ErrScreenShareActive
			return
		}
		if e.session.localStream == nil || e.session.localStream.VideoTrack() == nil {
			resultErr = ErrNoSuchTrack
			return
		}

		callID := e.session.callID
		go func() {
			stream, acquireErr := e.media.AcquireDisplay()
			delivered := e.submit(func() {
				e.completeScreenShare(callID, stream, acquireErr)
			})
			if !delivered && stream != nil {
				// Engine stopped while the picker was open; nobody on the loop
				// will release this capture.
				stream.Stop()
			}
		}()
	})
	if err != nil {
		return err
	}
	return resultErr
}

// StopScreenShare restores the camera track and releases the display capture.
func (e *Engine) StopScreenShare() error {
	var resultErr error

	err := e.perform(func() {
		if !e.session.active() || e.session.screenStream == nil {
			resultErr = ErrScreenShareStopped
			return
		}
		e.stopScreenShare()
	})
	if err != nil {
		return err
	}
	return resultErr
}

// Status reports the current session status. StatusIdle when no call is
// active or the engine is stopped.
func (e *Engine) Status() Status {
	var status Status
	if err := e.perform(func() { status = e.session.status }); err != nil {
		return StatusIdle
	}
	return status
}

// ActiveCallID returns the id of the current call, or "" when idle.
func (e *Engine) ActiveCallID() string {
	var callID string
	if err := e.perform(func() {
		if e.session.active() {
			callID = e.session.callID
		}
	}); err != nil {
		return ""
	}
	return callID
}

// acquireMediaAsync starts capture off-loop and resumes on the loop once it
// finishes. The continuation only runs if the session the acquisition was
// started for is still the current one; a stream acquired for a call that has
// meanwhile ended is released immediately.
func (e *Engine) acquireMediaAsync(callID string, video bool, then func()) {
	go func() {
		stream, err := e.media.Acquire(video, true)
		delivered := e.submit(func() {
			if !e.session.matches(callID) {
				if stream != nil {
					stream.Stop()
				}
				return
			}

			if err != nil {
				e.logger.WithError(err).Error("media acquisition failed")
				e.session.trace.Fail(err)
				e.notifyError(captureFailureMessage(err))
				e.endCall(true, "media acquisition failed")
				return
			}

			if !e.bindLocalStream(stream) {
				return
			}
			then()
		})
		if !delivered && stream != nil {
			// Engine stopped while the devices were opening; release them
			// here, the loop is no longer around to do it.
			stream.Stop()
		}
	}()
}

// bindLocalStream wires a freshly acquired stream into the session: creates
// the negotiator and attaches the capture tracks to it.
func (e *Engine) bindLocalStream(stream *media.Stream) bool {
	sink := channel.NewSink[string, peer.MessageContent](e.session.callID, e.peerMessages)
	negotiator, err := e.negotiate(e.session.callID, sink)
	if err != nil {
		stream.Stop()
		e.logger.WithError(err).Error("failed to create peer connection")
		e.session.trace.Fail(err)
		e.notifyError("Could not set up the call connection")
		e.endCall(true, "peer connection setup failed")
		return false
	}

	tracks := make([]webrtc.TrackLocal, 0, len(stream.Tracks()))
	for _, track := range stream.Tracks() {
		tracks = append(tracks, track.Local())
	}
	if err := negotiator.AttachLocalTracks(tracks...); err != nil {
		stream.Stop()
		negotiator.Terminate()
		e.logger.WithError(err).Error("failed to attach local tracks")
		e.session.trace.Fail(err)
		e.notifyError("Could not set up the call connection")
		e.endCall(true, "track attachment failed")
		return false
	}

	e.session.localStream = stream
	e.session.cameraTrack = stream.VideoTrack()
	e.session.negotiator = negotiator
	return true
}

func (e *Engine) completeScreenShare(callID string, stream *media.Stream, acquireErr error) {
	stale := !e.session.matches(callID) || e.session.status != StatusConnected ||
		e.session.screenStream != nil
	if stale {
		if stream != nil {
			stream.Stop()
		}
		return
	}

	if acquireErr != nil {
		// Screen share failing is not fatal to the call; the camera keeps
		// flowing untouched.
		e.logger.WithError(acquireErr).Warn("display capture failed")
		e.notifyError("Could not capture the screen")
		return
	}

	screenTrack := stream.VideoTrack()
	if screenTrack == nil {
		stream.Stop()
		e.logger.Warn("display capture produced no video track")
		e.notifyError("Could not capture the screen")
		return
	}

	if err := e.session.negotiator.ReplaceVideoTrack(screenTrack.Local()); err != nil {
		stream.Stop()
		e.logger.WithError(err).Warn("failed to switch outgoing video to screen capture")
		e.notifyError("Could not switch to screen sharing")
		return
	}

	e.session.screenStream = stream
	e.session.shareTrace = e.session.trace.CreateChild("screen-share")
	e.logger.Infof("screen share started on call %s", callID)

	// The user can end the capture from the OS picker; fold that back into a
	// regular stop so the camera is restored either way.
	screenTrack.OnEnded(func(error) {
		e.submit(func() {
			if e.session.matches(callID) {
				e.stopScreenShare()
			}
		})
	})
}

// stopScreenShare restores the camera on the video sender and releases the
// display capture. Loop-only.
func (e *Engine) stopScreenShare() {
	if e.session.screenStream == nil {
		return
	}

	if e.session.cameraTrack != nil && e.session.negotiator != nil {
		if err := e.session.negotiator.ReplaceVideoTrack(e.session.cameraTrack.Local()); err != nil {
			e.logger.WithError(err).Warn("failed to restore camera track")
		}
	}

	e.session.screenStream.Stop()
	e.session.screenStream = nil
	if e.session.shareTrace != nil {
		e.session.shareTrace.End()
		e.session.shareTrace = nil
	}
	e.logger.Infof("screen share stopped on call %s", e.session.callID)
}

// armRingWatchdog cancels the call if it is still unanswered when the ring
// timeout elapses. Disarmed when the connection establishes or the call ends.
func (e *Engine) armRingWatchdog(callID string) {
	watchdog := common.NewWatchdog(e.config.RingTimeout, func() {
		e.submit(func() {
			if !e.session.matches(callID) || e.session.status == StatusConnected {
				return
			}
			e.logger.Warnf("call %s timed out without an answer", callID)
			e.notifyError("No answer")
			e.endCall(true, "ring timeout")
		})
	})
	e.session.ringWatchdog = watchdog
	watchdog.Start()
}

func captureFailureMessage(err error) string {
	var mediaErr *media.Error
	if errors.As(err, &mediaErr) {
		return mediaErr.UserMessage()
	}
	return "Could not access camera or microphone"
}

func callKind(video bool) string {
	if video {
		return "video"
	}
	return "audio"
}
