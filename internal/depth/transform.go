package depth

import "github.com/go-gl/mathgl/mgl32"

// ProjectPoint maps a camera-space point into world space: the sensor's
// y-down, z-forward axes are flipped into a right-handed y-up frame and the
// result is multiplied by the column-major transform t. The w component is
// dropped without a perspective divide.
func ProjectPoint(p mgl32.Vec3, t mgl32.Mat4) mgl32.Vec3 {
	return t.Mul4x1(mgl32.Vec4{p[0], -p[1], -p[2], 1}).Vec3()
}

// ProjectCloud projects every point into dst as packed xyz triples.
// len(dst) must be at least 3*len(points). Invalid (zero) points are
// projected like any other.
func ProjectCloud(points []mgl32.Vec3, t mgl32.Mat4, dst []float32) {
	for i, p := range points {
		setVec3(dst, i, ProjectPoint(p, t))
	}
}

// vec3At reads the i-th xyz triple from a packed buffer.
func vec3At(buf []float32, i int) mgl32.Vec3 {
	j := 3 * i
	return mgl32.Vec3{buf[j], buf[j+1], buf[j+2]}
}

// setVec3 writes v as the i-th xyz triple of a packed buffer.
func setVec3(buf []float32, i int, v mgl32.Vec3) {
	j := 3 * i
	buf[j] = v[0]
	buf[j+1] = v[1]
	buf[j+2] = v[2]
}
