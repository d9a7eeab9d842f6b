//go:build !linux

package media

// No capture drivers are linked in on this platform; Acquire reports
// ErrorDeviceNotFound at runtime.
