//go:build linux

package media

// Capture drivers register themselves on import: V4L2 camera, malgo
// microphone and X11 screen grabbing.
import (
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
)
