package webrtcext

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// EngineSetup registers codecs on a media engine. The media acquirer supplies
// one backed by its codec selector so that captured tracks and negotiated
// codecs always agree; when nil, pion's default codecs are registered.
type EngineSetup func(*webrtc.MediaEngine) error

// PeerConnectionFactory constructs pre-configured peer connections that all
// share one webrtc.API (codecs, interceptors, ICE timeouts).
type PeerConnectionFactory struct {
	api    *webrtc.API
	config Config
}

func NewPeerConnectionFactory(config Config, setup EngineSetup) (*PeerConnectionFactory, error) {
	config = config.withDefaults()

	api, err := createWebRTCAPI(config, setup)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebRTC API: %w", err)
	}

	return &PeerConnectionFactory{api: api, config: config}, nil
}

// CreatePeerConnection creates a peer connection with the factory's API and
// ICE servers.
func (f *PeerConnectionFactory) CreatePeerConnection() (*webrtc.PeerConnection, error) {
	return f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: f.config.ICEServers}},
	})
}

// Creates pion's WebRTC API with all required extensions configured.
func createWebRTCAPI(config Config, setup EngineSetup) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if setup == nil {
		setup = (*webrtc.MediaEngine).RegisterDefaultCodecs
	}
	if err := setup(mediaEngine); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	// The interceptor registry is the user-configurable RTP/RTCP pipeline
	// (NACKs, RTCP reports and so on). It is enabled by default only when the
	// API is not managed manually, so it has to be registered here.
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to set default interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetICETimeouts(config.DisconnectedTimeout, config.FailedTimeout, config.KeepAliveInterval)

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	), nil
}
