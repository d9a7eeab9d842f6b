package call

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rivulet-chat/rivulet/pkg/common"
	"github.com/rivulet-chat/rivulet/pkg/media"
	"github.com/rivulet-chat/rivulet/pkg/telemetry"
)

// Status is the lifecycle state of a call session. Idle is both the initial
// and the terminal state.
type Status int

const (
	StatusIdle Status = iota
	StatusCalling
	StatusRinging
	StatusConnected
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusCalling:
		return "calling"
	case StatusRinging:
		return "ringing"
	case StatusConnected:
		return "connected"
	case StatusEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Role of this client in a session. Fixed for the session's lifetime; it
// determines who creates the offer and who answers.
type Role int

const (
	RoleNone Role = iota
	RoleInitiator
	RoleReceiver
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleReceiver:
		return "receiver"
	default:
		return "none"
	}
}

// PeerInfo is display metadata of a call participant.
type PeerInfo struct {
	Name      string
	AvatarURL string
}

// IncomingCall is what the UI is handed when another endpoint rings us.
type IncomingCall struct {
	CallID  string
	From    string
	IsVideo bool
	Caller  PeerInfo
}

// session holds the state of the one active or pending call. All fields are
// owned by the engine loop; nothing outside the loop reads or writes them.
type session struct {
	callID         string
	status         Status
	role           Role
	isVideo        bool
	remoteEndpoint string
	remotePeer     PeerInfo

	negotiator   Negotiator
	localStream  *media.Stream
	screenStream *media.Stream
	// The camera track to restore when screen sharing stops.
	cameraTrack  *media.Track
	remoteTracks []*webrtc.TrackRemote

	// Set while the user has been prompted but has not accepted yet.
	accepted bool
	// Guards against double-execution of termination when a local hangup and
	// the peer's call-ended race each other.
	ending bool

	ringWatchdog *common.Watchdog
	trace        *telemetry.Telemetry
	// Child span covering the active screen share, nil outside of one.
	shareTrace *telemetry.Telemetry
}

func (s *session) active() bool {
	return s.status != StatusIdle
}

func (s *session) matches(callID string) bool {
	return s.active() && s.callID == callID
}

// newCallID generates a unique call id. The timestamp keeps ids readable in
// logs, the random suffix disambiguates concurrent attempts between the same
// pair of endpoints.
func newCallID() string {
	return fmt.Sprintf("call-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}
