package source

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Intrinsics is a pinhole model for a depth stream.
type Intrinsics struct {
	Width  int
	Height int
	Fx     float32 // focal length in pixels
	Fy     float32
	Ppx    float32 // principal point
	Ppy    float32
	// DepthScale converts raw depth units to meters.
	DepthScale float32
}

// IntrinsicsForFOV returns a centred pinhole model with the given horizontal
// field of view and square pixels, at millimetre depth resolution.
func IntrinsicsForFOV(width, height int, hfovDeg float64) Intrinsics {
	f := float32(float64(width) / 2 / math.Tan(hfovDeg*math.Pi/360))
	return Intrinsics{
		Width:      width,
		Height:     height,
		Fx:         f,
		Fy:         f,
		Ppx:        float32(width-1) / 2,
		Ppy:        float32(height-1) / 2,
		DepthScale: 0.001,
	}
}

// Validate checks that the model can deproject.
func (in Intrinsics) Validate() error {
	if in.Width <= 0 || in.Height <= 0 {
		return fmt.Errorf("intrinsics: invalid resolution %dx%d", in.Width, in.Height)
	}
	if in.Fx <= 0 || in.Fy <= 0 {
		return fmt.Errorf("intrinsics: focal lengths must be positive, got fx=%g fy=%g", in.Fx, in.Fy)
	}
	if in.DepthScale <= 0 {
		return fmt.Errorf("intrinsics: depth scale must be positive, got %g", in.DepthScale)
	}
	return nil
}

// NumPixels returns Width*Height.
func (in Intrinsics) NumPixels() int { return in.Width * in.Height }

// Ray returns the viewing direction of pixel (u, v) scaled so that z = 1.
func (in Intrinsics) Ray(u, v int) mgl32.Vec3 {
	return mgl32.Vec3{(float32(u) - in.Ppx) / in.Fx, (float32(v) - in.Ppy) / in.Fy, 1}
}

// Deproject converts a row-major raw depth image into camera-space points
// (x right, y down, z forward, meters). A raw value of 0 yields the zero
// point. Both slices must hold NumPixels entries.
func (in Intrinsics) Deproject(depth []uint16, dst []mgl32.Vec3) error {
	n := in.NumPixels()
	if len(depth) < n || len(dst) < n {
		return fmt.Errorf("deproject: need %d pixels, have depth=%d dst=%d", n, len(depth), len(dst))
	}
	i := 0
	for v := 0; v < in.Height; v++ {
		for u := 0; u < in.Width; u++ {
			raw := depth[i]
			if raw == 0 {
				dst[i] = mgl32.Vec3{}
			} else {
				z := float32(raw) * in.DepthScale
				dst[i] = in.Ray(u, v).Mul(z)
			}
			i++
		}
	}
	return nil
}
