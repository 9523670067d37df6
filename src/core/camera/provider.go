package camera

import (
	"context"
	"errors"
	"image"
)

// Provider-surface errors. Implementations return these sentinels (possibly
// wrapped) so the session can classify failures for user-facing messaging.
var (
	ErrPermissionDenied  = errors.New("camera: permission denied")
	ErrDeviceNotFound    = errors.New("camera: no video input device found")
	ErrDeviceUnsupported = errors.New("camera: requested constraints not supported by device")
)

// MediaProvider abstracts the platform camera/media APIs.
//
// Implementations must guarantee:
//   - Devices() enumerates video input devices only
//   - Open() blocks until the stream is negotiated or ctx is cancelled
//   - Open() returns a stream exclusively owned by the caller
type MediaProvider interface {
	// Devices lists the available video input devices.
	Devices(ctx context.Context) ([]DeviceInfo, error)

	// Open acquires a video stream matching the constraints as closely as the
	// device allows. The permission prompt (if any) happens here, so there is
	// no fixed timeout; callers cancel via ctx.
	Open(ctx context.Context, constraints StreamConstraints) (MediaStream, error)
}

// MediaStream is a live video stream held by exactly one session.
//
// Implementations must guarantee:
//   - Frame() returns the current frame at the stream's native resolution
//   - Stop() is idempotent and releases the underlying device lock
type MediaStream interface {
	// Frame decodes the current frame. The returned image is a copy the
	// caller may keep across Stop().
	Frame(ctx context.Context) (image.Image, error)

	// Resolution reports the negotiated native resolution.
	Resolution() (width, height int)

	// Stop releases the device. Safe to call multiple times.
	Stop()
}
