package depth

import "github.com/go-gl/mathgl/mgl32"

// Host-facing operations. Each sizes the arena through Ensure first, so a
// change of resolution between calls is handled by reallocation. A cloud
// shorter than width*height, or a negative size, is rejected before the
// arena is touched.

// ProjectAndFilterPoints runs point mode: every point is projected into
// a.Vertices and the indices of those inside bounds are listed in order.
func ProjectAndFilterPoints(a *Arena, points []mgl32.Vec3, width, height int, transform mgl32.Mat4, bounds BoundingBox) ([]uint32, int, error) {
	if err := checkCloud(points, width, height); err != nil {
		return nil, 0, err
	}
	a.Ensure(width, height, ModePoints, false)
	count := BuildMesh(a, points, width, height, MeshParams{
		Mode:      ModePoints,
		Transform: transform,
		Bounds:    bounds,
	})
	return a.Indices, count, nil
}

// BuildTriangleMesh runs mesh mode and returns the arena's buffers.
func BuildTriangleMesh(a *Arena, points []mgl32.Vec3, width, height int, transform mgl32.Mat4, bounds BoundingBox, maxArea float32, withNormals bool) (Mesh, error) {
	if err := checkCloud(points, width, height); err != nil {
		return Mesh{}, err
	}
	a.Ensure(width, height, ModeMesh, withNormals)
	BuildMesh(a, points, width, height, MeshParams{
		Mode:        ModeMesh,
		Transform:   transform,
		Bounds:      bounds,
		MaxArea:     maxArea,
		WithNormals: withNormals,
	})
	return a.Mesh(), nil
}

// AccumulateVoxels decays g and accumulates the first count entries of
// indices into it. g must be sized for its Dims.
func AccumulateVoxels(g *VoxelGrid, p VoxelParams, vertices []float32, indices []uint32, count int) int {
	return g.Accumulate(Mesh{Vertices: vertices, Indices: indices, Count: count}, p)
}
