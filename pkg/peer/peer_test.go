package peer_test

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/rivulet-chat/rivulet/pkg/channel"
	"github.com/rivulet-chat/rivulet/pkg/peer"
	"github.com/rivulet-chat/rivulet/pkg/webrtcext"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPeer(t *testing.T, callID string) *peer.Peer {
	t.Helper()

	factory, err := webrtcext.NewPeerConnectionFactory(webrtcext.Config{}, nil)
	require.NoError(t, err)

	// Drain the sink so callback sends never block the test.
	messages := make(chan channel.Message[string, peer.MessageContent], 64)
	go func() {
		for range messages {
		}
	}()

	p, err := peer.NewPeer(factory, channel.NewSink(callID, messages), logrus.WithField("call_id", callID))
	require.NoError(t, err)
	t.Cleanup(p.Terminate)
	return p
}

func TestOfferCarriesReceiveIntent(t *testing.T) {
	audioOnly := testPeer(t, "call-1")
	offer, err := audioOnly.CreateOffer(false)
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "m=audio")
	assert.NotContains(t, offer.SDP, "m=video")

	video := testPeer(t, "call-2")
	offer, err = video.CreateOffer(true)
	require.NoError(t, err)
	assert.Contains(t, offer.SDP, "m=audio")
	assert.Contains(t, offer.SDP, "m=video")
}

func TestOfferAnswerRoundTrip(t *testing.T) {
	initiator := testPeer(t, "call-3")
	receiver := testPeer(t, "call-3")

	// Candidates racing ahead of the offer must be buffered, then drained by
	// ProcessRemoteOffer without aborting the call even when stale.
	receiver.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: "candidate:not-a-candidate"})
	receiver.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: "candidate:also-bogus"})

	offer, err := initiator.CreateOffer(true)
	require.NoError(t, err)

	answer, err := receiver.ProcessRemoteOffer(*offer)
	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	require.NoError(t, initiator.ProcessRemoteAnswer(*answer))

	// Post-gate candidates bypass the queue; a bad one is still non-fatal.
	initiator.AddRemoteCandidate(webrtc.ICECandidateInit{Candidate: "candidate:late-and-bogus"})
}

func TestReplaceVideoTrack(t *testing.T) {
	p := testPeer(t, "call-4")

	// Audio-only connection: replacing the video track must fail fast rather
	// than attempt a track add that would require renegotiation.
	assert.ErrorIs(t, p.ReplaceVideoTrack(nil), peer.ErrNoVideoSender)

	camera, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "camera",
	)
	require.NoError(t, err)
	require.NoError(t, p.AttachLocalTracks(camera))

	screen, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "screen",
	)
	require.NoError(t, err)
	assert.NoError(t, p.ReplaceVideoTrack(screen))
}
