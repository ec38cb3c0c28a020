package capture

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for microphone acquisition. Callers branch on these with
// errors.Is to decide how to surface the failure.
var (
	// ErrDeviceUnavailable means no capture device could be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrPermissionDenied means the OS refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
)

// classifyDeviceError maps a backend init error onto one of the capture
// sentinels, keeping the original error in the chain. miniaudio reports
// failures as result-code strings, so classification is by message.
func classifyDeviceError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "permission"):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case strings.Contains(msg, "no device") ||
		strings.Contains(msg, "device not found") ||
		strings.Contains(msg, "no backend") ||
		strings.Contains(msg, "device type not supported"):
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	default:
		return fmt.Errorf("open capture device: %w", err)
	}
}
