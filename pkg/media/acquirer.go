// Package media owns local capture: camera, microphone and display. It
// normalizes constraint negotiation (ideal constraints first, one retry with
// defaults) and maps driver failures onto a small error taxonomy the call
// engine can act on.
package media

import (
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// Preferred capture resolution. Devices that cannot satisfy it are retried
// with driver defaults.
const (
	idealWidth  = 1280
	idealHeight = 720

	videoBitRate = 1_500_000 // 1.5 Mbps
)

// Acquirer captures local media through pion/mediadevices with a fixed
// VP8+Opus codec pairing.
type Acquirer struct {
	codecSelector *mediadevices.CodecSelector
	logger        *logrus.Entry
}

func NewAcquirer() (*Acquirer, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = videoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return &Acquirer{
		codecSelector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
		logger: logrus.WithField("component", "media"),
	}, nil
}

// EngineSetup registers the acquirer's codecs on a media engine, so that the
// peer connection negotiates exactly what the encoders produce.
func (a *Acquirer) EngineSetup() func(*webrtc.MediaEngine) error {
	return func(engine *webrtc.MediaEngine) error {
		a.codecSelector.Populate(engine)
		return nil
	}
}

// Acquire captures camera and/or microphone. Preferred constraints are tried
// first; if the devices cannot satisfy them, one retry with driver defaults
// follows before the failure is surfaced, classified.
func (a *Acquirer) Acquire(video, audio bool) (*Stream, error) {
	stream, firstErr := a.getUserMedia(video, audio, true)
	if firstErr == nil {
		return stream, nil
	}

	classified := classify(firstErr)
	if classified.Kind == ErrorPermissionDenied {
		// A retry would just re-prompt; no point.
		return nil, classified
	}

	a.logger.WithError(firstErr).Warn("ideal constraints failed, retrying with defaults")
	stream, retryErr := a.getUserMedia(video, audio, false)
	if retryErr != nil {
		return nil, classify(retryErr)
	}

	return stream, nil
}

// AcquireDisplay captures the screen for sharing. Always a separate capture
// from the camera stream.
func (a *Acquirer) AcquireDisplay() (*Stream, error) {
	captured, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Codec: a.codecSelector,
		Video: func(c *mediadevices.MediaTrackConstraints) {},
	})
	if err != nil {
		return nil, classify(err)
	}

	return a.wrap(captured), nil
}

func (a *Acquirer) getUserMedia(video, audio, ideal bool) (*Stream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: a.codecSelector}

	if video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only: some cameras expose an MJPEG node producing
			// malformed frames that poison the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			if ideal {
				c.Width = prop.IntRanged{Ideal: idealWidth}
				c.Height = prop.IntRanged{Ideal: idealHeight}
			}
		}
	}
	if audio {
		constraints.Audio = func(c *mediadevices.MediaTrackConstraints) {}
	}

	captured, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, err
	}

	return a.wrap(captured), nil
}

func (a *Acquirer) wrap(captured mediadevices.MediaStream) *Stream {
	sources := make([]Source, 0, 2)
	for _, track := range captured.GetTracks() {
		track.OnEnded(func(err error) {
			if err != nil {
				a.logger.WithError(err).Warn("local track ended")
			}
		})
		sources = append(sources, track)
	}
	return NewStream(sources...)
}
