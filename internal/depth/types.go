package depth

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

//
// 0) Frames & sources
//

// Frame is one acquisition from a depth camera. Points are camera-space in
// the sensor's native convention (x right, y down, z forward), row-major:
// index = y*Width + x. Zero points mark pixels where depth was not measured.
//
// The Frame and its Points slice belong to the PointSource and are only
// valid until the next call into that source.
type Frame struct {
	Points    []mgl32.Vec3
	Width     int
	Height    int
	Timestamp time.Time
	// Accel is nil when no inertial reading accompanied the frame.
	Accel *AccelSample
}

// NumPoints returns Width*Height.
func (f *Frame) NumPoints() int { return f.Width * f.Height }

// AccelSample is a 3-axis linear acceleration reading in m/s².
type AccelSample struct {
	X, Y, Z float32
}

// Vec3 returns the sample as a vector.
func (a AccelSample) Vec3() mgl32.Vec3 { return mgl32.Vec3{a.X, a.Y, a.Z} }

// DefaultAccel is the reading assumed before the first inertial sample
// arrives.
var DefaultAccel = AccelSample{X: 0, Y: 0, Z: -10}

// PointSource supplies camera-space point frames. Implementations live in
// depth/source; the core only consumes this interface.
type PointSource interface {
	// WaitForFrame blocks until the next frame is ready or ctx is done.
	WaitForFrame(ctx context.Context) (*Frame, error)
	// PollForFrame returns immediately. ok is false when no frame is ready.
	PollForFrame() (f *Frame, ok bool, err error)
}

//
// 1) Output shape
//

// Mode selects the output shape of the mesh builder.
type Mode int

const (
	// ModePoints produces a flat list of accepted point indices.
	ModePoints Mode = iota
	// ModeMesh produces an indexed triangle list, three indices per triangle.
	ModeMesh
)

func (m Mode) String() string {
	switch m {
	case ModePoints:
		return "points"
	case ModeMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// ParseMode parses "points" or "mesh".
func ParseMode(s string) (Mode, bool) {
	switch s {
	case "points", "point":
		return ModePoints, true
	case "mesh":
		return ModeMesh, true
	}
	return ModePoints, false
}

// MarshalText encodes the mode by name for JSON output and tuning files.
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModePoints && m != ModeMesh {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText accepts the names understood by ParseMode.
func (m *Mode) UnmarshalText(b []byte) error {
	v, ok := ParseMode(string(b))
	if !ok {
		return fmt.Errorf("unknown mode %q (want points or mesh)", b)
	}
	*m = v
	return nil
}

// DefaultMaxArea is the default upper bound on the triangle area proxy.
const DefaultMaxArea float32 = 0.001
