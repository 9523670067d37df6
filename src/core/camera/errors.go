package camera

import (
	"errors"
	"fmt"
)

// AcquireReason classifies stream acquisition failures for user-facing
// messaging. The three device reasons are surfaced verbatim; anything the
// provider reports outside of them collapses to ReasonCameraUnavailable.
type AcquireReason string

const (
	ReasonPermissionDenied  AcquireReason = "PermissionDenied"
	ReasonDeviceNotFound    AcquireReason = "DeviceNotFound"
	ReasonDeviceUnsupported AcquireReason = "DeviceUnsupported"
	ReasonCameraUnavailable AcquireReason = "CameraUnavailable"
)

// AcquireError is a classified, retryable stream acquisition failure.
// It is fatal to the open attempt, never to the process.
type AcquireError struct {
	Reason AcquireReason
	Err    error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("camera acquire failed (%s): %v", e.Reason, e.Err)
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// classifyAcquireError maps a provider error onto the acquisition taxonomy
func classifyAcquireError(err error) *AcquireError {
	reason := ReasonCameraUnavailable
	switch {
	case errors.Is(err, ErrPermissionDenied):
		reason = ReasonPermissionDenied
	case errors.Is(err, ErrDeviceNotFound):
		reason = ReasonDeviceNotFound
	case errors.Is(err, ErrDeviceUnsupported):
		reason = ReasonDeviceUnsupported
	}
	return &AcquireError{Reason: reason, Err: err}
}

// CaptureError is a retryable frame encode failure. The session stays active
// because the camera itself is still usable.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture failed: %v", e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

var (
	// ErrSessionClosed is returned once Close() has run; in-flight results are
	// discarded rather than surfaced to a torn-down caller.
	ErrSessionClosed = errors.New("camera: session closed")

	// ErrSessionNotActive rejects capture on an idle/initializing/error session.
	ErrSessionNotActive = errors.New("camera: session not active")

	// ErrCaptureInProgress rejects overlapping capture calls.
	ErrCaptureInProgress = errors.New("camera: capture already in progress")
)
