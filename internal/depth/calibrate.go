package depth

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Calibrator derives a camera model matrix from the accelerometer. It keeps a
// smoothed up axis that is blended toward the inverted gravity direction on
// every update, then builds a rotation that levels the camera.
type Calibrator struct {
	// Blend is the fraction of the new gravity direction mixed into the up
	// axis per update, in (0, 1].
	Blend float32
	// UpsideDown flips the gravity direction for a camera mounted upside down.
	UpsideDown bool

	up mgl32.Vec3
}

// NewCalibrator returns a calibrator whose up axis starts at +Y.
func NewCalibrator(blend float32, upsideDown bool) (*Calibrator, error) {
	if blend <= 0 || blend > 1 {
		return nil, fmt.Errorf("calibration blend must be in (0, 1], got %f", blend)
	}
	return &Calibrator{Blend: blend, UpsideDown: upsideDown, up: mgl32.Vec3{0, 1, 0}}, nil
}

// Up returns the current smoothed up axis.
func (c *Calibrator) Up() mgl32.Vec3 { return c.up }

// Update blends accel into the up axis and returns the model matrix for a
// camera at pos rotated by rotation radians about world Y. The x axis is
// mirrored to match the sensor's handedness.
func (c *Calibrator) Update(accel AccelSample, pos mgl32.Vec3, rotation float32) mgl32.Mat4 {
	a := accel.Vec3()
	if l := a.Len(); l > 0 {
		sign := float32(-1)
		if c.UpsideDown {
			sign = 1
		}
		a = a.Mul(sign / l)
		c.up = c.up.Add(a.Sub(c.up).Mul(c.Blend))
		if ul := c.up.Len(); ul > 0 {
			c.up = c.up.Mul(1 / ul)
		}
	}
	return c.Matrix(pos, rotation)
}

// Matrix builds the model matrix from the current up axis without updating it.
func (c *Calibrator) Matrix(pos mgl32.Vec3, rotation float32) mgl32.Mat4 {
	xrot := float32(math.Atan2(float64(c.up[2]), float64(c.up[1])))
	zrot := float32(math.Atan2(float64(c.up[0]), float64(c.up[1])))

	m := mgl32.Scale3D(-1, 1, 1)
	m = m.Mul4(mgl32.Translate3D(pos[0], pos[1], pos[2]))
	m = m.Mul4(mgl32.HomogRotate3DY(rotation))
	m = m.Mul4(mgl32.HomogRotate3DZ(-zrot))
	m = m.Mul4(mgl32.HomogRotate3DX(-xrot))
	return m
}
