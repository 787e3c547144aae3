package depth

// Arena owns the per-session geometry buffers. Buffers are reallocated on the
// first frame, on any change of width or height (even one that keeps the
// pixel count), and when the output mode needs a different index capacity;
// otherwise they are reused in place so that steady-state frames never
// allocate.
//
// Resizing discards previous contents, including normals.
type Arena struct {
	// Vertices holds width*height packed xyz world positions.
	Vertices []float32
	// Normals has the same length as Vertices once normals are requested.
	// Entries are only overwritten for vertices of accepted triangles, so
	// untouched entries keep values from earlier frames.
	Normals []float32
	// Indices has capacity IndexCapacity(mode, width, height); only
	// Indices[:Count] are valid.
	Indices []uint32
	Count   int

	Width  int
	Height int
	Mode   Mode

	// Reallocations counts how many times any buffer was resized.
	Reallocations int
}

// NewArena returns an empty arena. Buffers are sized by the first Ensure.
func NewArena() *Arena {
	return &Arena{}
}

// IndexCapacity returns the number of index slots the given mode needs for a
// width×height grid: one per point in point mode, three per possible triangle
// in mesh mode.
func IndexCapacity(mode Mode, width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	if mode == ModeMesh {
		if width < 2 || height < 2 {
			return 0
		}
		return (width - 1) * (height - 1) * 2 * 3
	}
	return width * height
}

// Ensure sizes the buffers for a width×height frame in the given mode.
// Normals are allocated when withNormals is set and their length does not
// match. It reports whether anything was reallocated.
func (a *Arena) Ensure(width, height int, mode Mode, withNormals bool) bool {
	numFloats := width * height * 3
	numIndices := IndexCapacity(mode, width, height)
	resChanged := a.Width != width || a.Height != height
	resized := false

	if a.Vertices == nil || resChanged || len(a.Vertices) != numFloats {
		diagf("reallocating %d floats (%dx%d, %d vertices)", numFloats, width, height, width*height)
		a.Vertices = make([]float32, numFloats)
		// A resolution change invalidates any normals from the old grid.
		a.Normals = nil
		a.Count = 0
		resized = true
	}
	if withNormals && len(a.Normals) != numFloats {
		a.Normals = make([]float32, numFloats)
		resized = true
	}
	if a.Indices == nil || resChanged || len(a.Indices) != numIndices {
		diagf("reallocating %d indices (%s)", numIndices, mode)
		a.Indices = make([]uint32, numIndices)
		a.Count = 0
		resized = true
	}

	a.Width = width
	a.Height = height
	a.Mode = mode
	if resized {
		a.Reallocations++
	}
	return resized
}

// EnsureVoxels sizes g for dims, reallocating its cells only on a length
// mismatch. Reallocation clears the grid.
func (a *Arena) EnsureVoxels(g *VoxelGrid, dims [3]int) bool {
	n := dims[0] * dims[1] * dims[2]
	if n < 0 {
		n = 0
	}
	g.Dims = dims
	if g.Cells != nil && len(g.Cells) == n {
		return false
	}
	diagf("reallocating voxel grid %dx%dx%d (%d cells)", dims[0], dims[1], dims[2], n)
	g.Cells = make([]float32, n)
	return true
}

// Mesh returns a view of the arena's current contents.
func (a *Arena) Mesh() Mesh {
	return Mesh{
		Vertices: a.Vertices,
		Normals:  a.Normals,
		Indices:  a.Indices,
		Count:    a.Count,
		Width:    a.Width,
		Height:   a.Height,
		Mode:     a.Mode,
	}
}
