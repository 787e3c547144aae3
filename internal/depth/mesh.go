package depth

import "github.com/go-gl/mathgl/mgl32"

// Mesh is a view over flat renderer-ready buffers. It aliases the Arena that
// produced it and is overwritten by the next frame.
type Mesh struct {
	Vertices []float32
	Normals  []float32
	Indices  []uint32
	Count    int
	Width    int
	Height   int
	Mode     Mode
}

// ValidIndices returns Indices[:Count].
func (m Mesh) ValidIndices() []uint32 {
	return m.Indices[:m.Count]
}

// Triangles returns the number of triangles in mesh mode, zero otherwise.
func (m Mesh) Triangles() int {
	if m.Mode != ModeMesh {
		return 0
	}
	return m.Count / 3
}

// Vertex returns the world position of vertex i.
func (m Mesh) Vertex(i uint32) mgl32.Vec3 {
	return vec3At(m.Vertices, int(i))
}

// Normal returns the stored normal of vertex i. It is the zero vector when
// normals were never requested.
func (m Mesh) Normal(i uint32) mgl32.Vec3 {
	if len(m.Normals) == 0 {
		return mgl32.Vec3{}
	}
	return vec3At(m.Normals, int(i))
}

// MeshParams carries the per-frame inputs of the mesh builder.
type MeshParams struct {
	Mode      Mode
	Transform mgl32.Mat4
	Bounds    BoundingBox
	// MaxArea is the exclusive upper bound on the triangle area proxy.
	MaxArea     float32
	WithNormals bool
}

// DefaultMeshParams returns point mode, identity transform, the default
// bounding box and DefaultMaxArea.
func DefaultMeshParams() MeshParams {
	return MeshParams{
		Mode:      ModePoints,
		Transform: mgl32.Ident4(),
		Bounds:    DefaultBoundingBox(),
		MaxArea:   DefaultMaxArea,
	}
}

// BuildMesh projects points into a.Vertices and fills a.Indices for the
// requested mode. The arena must already be sized for width×height
// (see Arena.Ensure) and points must hold at least width*height entries;
// ProjectAndFilterPoints and BuildTriangleMesh check both. It returns the number of valid indices, also stored in
// a.Count.
func BuildMesh(a *Arena, points []mgl32.Vec3, width, height int, p MeshParams) int {
	n := width * height
	ProjectCloud(points[:n], p.Transform, a.Vertices)

	if p.Mode == ModeMesh {
		var normals []float32
		if p.WithNormals {
			normals = a.Normals
		}
		a.Count = triangulate(a.Vertices, normals, width, height, p.Bounds, p.MaxArea, a.Indices)
	} else {
		a.Count = filterPoints(a.Vertices, n, p.Bounds, a.Indices)
	}
	return a.Count
}

// filterPoints appends, in row-major order, the index of every vertex that
// lies inside bounds.
func filterPoints(vertices []float32, n int, bounds BoundingBox, indices []uint32) int {
	count := 0
	for i := 0; i < n; i++ {
		if bounds.Contains(vec3At(vertices, i)) {
			indices[count] = uint32(i)
			count++
		}
	}
	return count
}

// triangulate splits each grid quad along its a–d diagonal into (a,d,b) and
// (d,a,c) and keeps a triangle only when all of its corners are inside bounds
// and its area proxy (length of the edge cross product, twice the true area)
// is in (0, maxArea). The lower bound drops degenerate triangles at depth
// holes, the upper bound drops triangles spanning depth discontinuities.
//
// When normals is non-nil, accepted triangles write face normals to their
// corners. The second triangle blends with the first through a per-quad
// running value, so a vertex shared by several quads ends up with whatever
// the last quad touching it wrote. Vertices of rejected triangles are left
// unchanged.
func triangulate(vertices, normals []float32, width, height int, bounds BoundingBox, maxArea float32, indices []uint32) int {
	count := 0
	for y := 0; y < height-1; y++ {
		for x := 0; x < width-1; x++ {
			a := y*width + x
			b := a + 1
			c := a + width
			d := c + 1

			pa := vec3At(vertices, a)
			pb := vec3At(vertices, b)
			pc := vec3At(vertices, c)
			pd := vec3At(vertices, d)

			da := pd.Sub(pa)
			daba := da.Cross(pb.Sub(pa))
			cada := pc.Sub(pa).Cross(da)
			abd := daba.Len()
			acd := cada.Len()

			inA := bounds.Contains(pa)
			inD := bounds.Contains(pd)

			var n12 mgl32.Vec3
			if inA && inD && bounds.Contains(pb) && abd > 0 && abd < maxArea {
				indices[count] = uint32(a)
				indices[count+1] = uint32(d)
				indices[count+2] = uint32(b)
				count += 3
				if normals != nil {
					n := daba.Normalize()
					n12 = n
					setVec3(normals, a, n)
					setVec3(normals, b, n)
					setVec3(normals, d, n12)
				}
			}
			if inA && inD && bounds.Contains(pc) && acd > 0 && acd < maxArea {
				indices[count] = uint32(d)
				indices[count+1] = uint32(a)
				indices[count+2] = uint32(c)
				count += 3
				if normals != nil {
					n := cada.Normalize()
					n12 = n12.Add(n).Normalize()
					setVec3(normals, a, n12)
					setVec3(normals, c, n)
					setVec3(normals, d, n12)
				}
			}
		}
	}
	return count
}
