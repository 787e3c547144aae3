package source

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/timeutil"
	"github.com/go-gl/mathgl/mgl32"
)

const standardGravity = 9.80665

// Scene describes what the synthetic camera sees: a floor below it and a
// sphere in front of it. Lengths are meters, positions are camera space.
type Scene struct {
	// CameraHeight is the distance from the camera to the floor.
	CameraHeight float32
	// Pitch tilts the camera down toward the floor, in radians.
	Pitch float32

	SphereCenter mgl32.Vec3
	SphereRadius float32
	// SphereSwing moves the sphere sideways by up to this much over time.
	SphereSwing float32

	// MaxRange drops returns further than this.
	MaxRange float32
}

// DefaultScene is a camera 1.2 m above the floor, pitched down 30°, with a
// 0.4 m sphere resting on the floor 2 m ahead.
func DefaultScene() Scene {
	pitch := float32(30 * math.Pi / 180)
	return Scene{
		CameraHeight: 1.2,
		Pitch:        pitch,
		SphereCenter: mgl32.Vec3{0, -0.23, 2},
		SphereRadius: 0.4,
		SphereSwing:  0.5,
		MaxRange:     8,
	}
}

// up returns the world up direction in camera coordinates.
func (s Scene) up() mgl32.Vec3 {
	sin, cos := math.Sincos(float64(s.Pitch))
	return mgl32.Vec3{0, -float32(cos), -float32(sin)}
}

// Gravity is the accelerometer reading of a camera at rest in this scene.
// It uses the flipped y-up convention of the mesh builder, so a level
// camera reads (0, -g, 0).
func (s Scene) Gravity() depth.AccelSample {
	u := s.up()
	return depth.AccelSample{X: -u[0] * standardGravity, Y: u[1] * standardGravity, Z: u[2] * standardGravity}
}

// SyntheticConfig configures a SyntheticSource.
type SyntheticConfig struct {
	Intrinsics Intrinsics
	// Interval is the time between frames.
	Interval time.Duration
	Scene    Scene
	// Accel overrides the gravity reading derived from the scene.
	Accel *depth.AccelSample
	// Clock defaults to the real clock.
	Clock timeutil.Clock
}

// DefaultSyntheticConfig returns a 30 fps 160×120 camera over DefaultScene.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Intrinsics: IntrinsicsForFOV(160, 120, 70),
		Interval:   time.Second / 30,
		Scene:      DefaultScene(),
	}
}

// SyntheticSource renders depth frames of a Scene and deprojects them the
// way a hardware source would. It is not safe for concurrent use.
type SyntheticSource struct {
	cfg   SyntheticConfig
	clock timeutil.Clock

	raw   []uint16
	frame depth.Frame
	accel depth.AccelSample

	next   time.Time
	frames uint64
}

// NewSyntheticSource validates cfg and allocates the frame buffers.
func NewSyntheticSource(cfg SyntheticConfig) (*SyntheticSource, error) {
	if err := cfg.Intrinsics.Validate(); err != nil {
		return nil, err
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("synthetic source: negative frame interval %v", cfg.Interval)
	}
	if cfg.Scene.MaxRange <= 0 {
		return nil, fmt.Errorf("synthetic source: max range must be positive")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	s := &SyntheticSource{
		cfg:   cfg,
		clock: cfg.Clock,
		raw:   make([]uint16, cfg.Intrinsics.NumPixels()),
		accel: cfg.Scene.Gravity(),
	}
	if cfg.Accel != nil {
		s.accel = *cfg.Accel
	}
	s.frame = depth.Frame{
		Points: make([]mgl32.Vec3, cfg.Intrinsics.NumPixels()),
		Width:  cfg.Intrinsics.Width,
		Height: cfg.Intrinsics.Height,
		Accel:  &s.accel,
	}
	return s, nil
}

// Intrinsics returns the camera model.
func (s *SyntheticSource) Intrinsics() Intrinsics { return s.cfg.Intrinsics }

// Frames returns how many frames have been rendered.
func (s *SyntheticSource) Frames() uint64 { return s.frames }

// Raw exposes the most recent raw depth image.
func (s *SyntheticSource) Raw() []uint16 { return s.raw }

// WaitForFrame blocks until the next frame is due, then renders it.
func (s *SyntheticSource) WaitForFrame(ctx context.Context) (*depth.Frame, error) {
	if wait := s.next.Sub(s.clock.Now()); wait > 0 {
		timer := s.clock.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C():
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.render(), nil
}

// PollForFrame renders a frame only if one is due.
func (s *SyntheticSource) PollForFrame() (*depth.Frame, bool, error) {
	if s.clock.Now().Before(s.next) {
		return nil, false, nil
	}
	return s.render(), true, nil
}

func (s *SyntheticSource) render() *depth.Frame {
	now := s.clock.Now()
	s.next = now.Add(s.cfg.Interval)

	scene := s.cfg.Scene
	center := scene.SphereCenter
	center[0] += scene.SphereSwing * float32(math.Sin(float64(s.frames)*0.05))
	renderDepth(s.cfg.Intrinsics, scene, center, s.raw)
	// Deproject cannot fail: both buffers were sized from the same intrinsics.
	_ = s.cfg.Intrinsics.Deproject(s.raw, s.frame.Points)

	s.frames++
	s.frame.Timestamp = now
	return &s.frame
}

// renderDepth ray-casts every pixel against the floor plane and the sphere
// and stores the nearest hit as raw depth units, or 0 for no return.
func renderDepth(in Intrinsics, scene Scene, center mgl32.Vec3, raw []uint16) {
	up := scene.up()
	cc := center.Dot(center) - scene.SphereRadius*scene.SphereRadius
	maxRaw := float32(math.MaxUint16)

	i := 0
	for v := 0; v < in.Height; v++ {
		for u := 0; u < in.Width; u++ {
			d := in.Ray(u, v)
			z := float32(math.Inf(1))

			// Floor: points p with up·p = -height.
			if denom := up.Dot(d); denom < 0 {
				z = -scene.CameraHeight / denom
			}

			a := d.Dot(d)
			b := d.Dot(center)
			if disc := b*b - a*cc; disc >= 0 {
				if t := (b - float32(math.Sqrt(float64(disc)))) / a; t > 0 && t < z {
					z = t
				}
			}

			// d has z = 1, so the ray parameter is the depth.
			if z > scene.MaxRange {
				raw[i] = 0
			} else {
				r := z/in.DepthScale + 0.5
				if r > maxRaw {
					r = maxRaw
				}
				raw[i] = uint16(r)
			}
			i++
		}
	}
}
