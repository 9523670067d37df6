package camera

// Facing identifies which physical camera a session targets
type Facing string

const (
	FacingFront Facing = "front"
	FacingBack  Facing = "back"
)

// Toggle returns the opposite facing
func (f Facing) Toggle() Facing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// ParseFacing normalizes a configured facing value, defaulting to back
func ParseFacing(s string) Facing {
	if s == string(FacingFront) {
		return FacingFront
	}
	return FacingBack
}

// Status represents the capture session lifecycle state
type Status string

const (
	StatusIdle         Status = "idle"
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusCapturing    Status = "capturing"
	StatusError        Status = "error"
)

// DeviceInfo describes one video input device reported by the provider
type DeviceInfo struct {
	ID     string
	Label  string
	Facing Facing
}

// StreamConstraints is the request shape passed to MediaProvider.Open.
// Width/height are ideal values bounded by device capability, video only.
type StreamConstraints struct {
	Facing       Facing
	IdealWidth   int
	IdealHeight  int
	MaxFrameRate int
}
