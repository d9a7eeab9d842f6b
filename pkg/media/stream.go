package media

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Source is the subset of a mediadevices track the wrapper relies on.
// mediadevices.Track satisfies it.
type Source interface {
	webrtc.TrackLocal
	OnEnded(handler func(error))
	Close() error
}

// Track is one owned capture track. It carries the local mute flag (flipping
// it must never touch the peer connection) and guarantees that the underlying
// device is released exactly once.
type Track struct {
	source Source
	gate   *sendGate
	stop   sync.Once
}

func newTrack(source Source) *Track {
	return &Track{source: source, gate: newSendGate(source)}
}

func (t *Track) ID() string                { return t.source.ID() }
func (t *Track) Kind() webrtc.RTPCodecType { return t.source.Kind() }

// Local exposes the track for attachment to a peer connection. The returned
// track honors the mute flag: while disabled its packets are dropped at the
// RTP writer instead of being sent.
func (t *Track) Local() webrtc.TrackLocal { return t.gate }

// OnEnded registers a handler invoked when the capture source stops on its
// own, e.g. the device was unplugged or the user ended the OS screen-share
// picker. Replaces any previously registered handler.
func (t *Track) OnEnded(handler func(error)) { t.source.OnEnded(handler) }

// SetEnabled flips the local mute flag. This is a mute, not a renegotiation:
// the sender and its transceiver stay exactly as they are, outgoing packets
// just stop leaving while the flag is off.
func (t *Track) SetEnabled(enabled bool) { t.gate.enabled.Store(enabled) }

func (t *Track) Enabled() bool { return t.gate.enabled.Load() }

// Stop releases the capture device. Dropping the reference is not enough;
// the hardware stays locked until the track is closed, so Stop closes it,
// exactly once.
func (t *Track) Stop() {
	t.stop.Do(func() {
		_ = t.source.Close()
	})
}

// sendGate is what the peer connection binds to instead of the raw capture
// source. It interposes on the RTP write stream handed to the source during
// Bind and discards outgoing packets while the track is disabled. The encoder
// pipeline keeps running either way, so re-enabling is instant.
type sendGate struct {
	Source
	enabled atomic.Bool
}

func newSendGate(source Source) *sendGate {
	gate := &sendGate{Source: source}
	gate.enabled.Store(true)
	return gate
}

func (g *sendGate) Bind(context webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	return g.Source.Bind(gatedBindContext{TrackLocalContext: context, enabled: &g.enabled})
}

type gatedBindContext struct {
	webrtc.TrackLocalContext
	enabled *atomic.Bool
}

func (c gatedBindContext) WriteStream() webrtc.TrackLocalWriter {
	return &gatedWriter{writer: c.TrackLocalContext.WriteStream(), enabled: c.enabled}
}

type gatedWriter struct {
	writer  webrtc.TrackLocalWriter
	enabled *atomic.Bool
}

// Dropped packets report success so the writing source never sees an error;
// the samples simply never reach the wire.
func (w *gatedWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	if !w.enabled.Load() {
		return len(payload), nil
	}
	return w.writer.WriteRTP(header, payload)
}

func (w *gatedWriter) Write(b []byte) (int, error) {
	if !w.enabled.Load() {
		return len(b), nil
	}
	return w.writer.Write(b)
}

// Stream is a bundle of owned capture tracks, at most one per kind.
type Stream struct {
	tracks []*Track
}

// NewStream wraps capture sources into an owned stream.
func NewStream(sources ...Source) *Stream {
	stream := &Stream{}
	for _, source := range sources {
		stream.tracks = append(stream.tracks, newTrack(source))
	}
	return stream
}

func (s *Stream) Tracks() []*Track { return s.tracks }

// AudioTrack returns the audio track or nil.
func (s *Stream) AudioTrack() *Track { return s.trackOfKind(webrtc.RTPCodecTypeAudio) }

// VideoTrack returns the video track or nil. Legitimately nil for an
// audio-only capture.
func (s *Stream) VideoTrack() *Track { return s.trackOfKind(webrtc.RTPCodecTypeVideo) }

func (s *Stream) trackOfKind(kind webrtc.RTPCodecType) *Track {
	for _, track := range s.tracks {
		if track.Kind() == kind {
			return track
		}
	}
	return nil
}

// Stop releases every track of the stream.
func (s *Stream) Stop() {
	for _, track := range s.tracks {
		track.Stop()
	}
}
