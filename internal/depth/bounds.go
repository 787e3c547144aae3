package depth

import "github.com/go-gl/mathgl/mgl32"

// BoundingBox is an axis-aligned world-space box. Geometry is accepted only
// strictly inside it: boundary values are rejected.
type BoundingBox struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// DefaultBoundingBox returns the ±10 box used until a caller supplies one.
func DefaultBoundingBox() BoundingBox {
	return BoundingBox{
		Min: mgl32.Vec3{-10, -10, -10},
		Max: mgl32.Vec3{10, 10, 10},
	}
}

// Contains reports whether p lies in the open interval (Min, Max) on every axis.
func (b BoundingBox) Contains(p mgl32.Vec3) bool {
	return p[0] > b.Min[0] && p[1] > b.Min[1] && p[2] > b.Min[2] &&
		p[0] < b.Max[0] && p[1] < b.Max[1] && p[2] < b.Max[2]
}

// Merge returns b with Min and/or Max replaced by the non-nil arguments.
// Absent sides carry forward.
func (b BoundingBox) Merge(lo, hi *mgl32.Vec3) BoundingBox {
	if lo != nil {
		b.Min = *lo
	}
	if hi != nil {
		b.Max = *hi
	}
	return b
}
