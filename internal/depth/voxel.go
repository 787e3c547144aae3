package depth

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// VoxelGrid is a flat scalar occupancy/density field addressed by
// x + y*DimX + z*DimX*DimY. The caller owns it across frames; Accumulate
// mutates it in place and never allocates.
type VoxelGrid struct {
	Cells []float32
	Dims  [3]int
}

// NewVoxelGrid allocates a zeroed grid.
func NewVoxelGrid(dimX, dimY, dimZ int) *VoxelGrid {
	return &VoxelGrid{
		Cells: make([]float32, dimX*dimY*dimZ),
		Dims:  [3]int{dimX, dimY, dimZ},
	}
}

// Validate checks that the dimensions are positive and match len(Cells).
func (g *VoxelGrid) Validate() error {
	if g.Dims[0] <= 0 || g.Dims[1] <= 0 || g.Dims[2] <= 0 {
		return fmt.Errorf("voxel dims must be positive, got %v", g.Dims)
	}
	if want := g.Dims[0] * g.Dims[1] * g.Dims[2]; len(g.Cells) != want {
		return fmt.Errorf("voxel grid has %d cells, dims %v need %d", len(g.Cells), g.Dims, want)
	}
	return nil
}

// Idx returns the flat index of integer grid coordinates.
func (g *VoxelGrid) Idx(x, y, z int) int {
	return x + y*g.Dims[0] + z*g.Dims[0]*g.Dims[1]
}

// At returns the value of a cell.
func (g *VoxelGrid) At(x, y, z int) float32 { return g.Cells[g.Idx(x, y, z)] }

// Decay multiplies every cell by mul.
func (g *VoxelGrid) Decay(mul float32) {
	for i := range g.Cells {
		g.Cells[i] *= mul
	}
}

// Cell maps a world point through the voxel transform (world -> normalized
// [0,1]^3) and scales by the dimensions. Coordinates are truncated toward
// zero. ok is false when the cell falls outside the grid.
func (g *VoxelGrid) Cell(world mgl32.Vec3, voxelTransform mgl32.Mat4) (x, y, z int, ok bool) {
	v := voxelTransform.Mul4x1(world.Vec4(1))
	x = int(v[0] * float32(g.Dims[0]))
	y = int(v[1] * float32(g.Dims[1]))
	z = int(v[2] * float32(g.Dims[2]))
	ok = x >= 0 && x < g.Dims[0] && y >= 0 && y < g.Dims[1] && z >= 0 && z < g.Dims[2]
	return x, y, z, ok
}

// VoxelParams are the per-call inputs of the voxel accumulator.
type VoxelParams struct {
	// Transform maps world space into normalized [0,1]^3 voxel space.
	Transform mgl32.Mat4
	// Decay multiplies every cell before accumulation.
	Decay float32
	// Increment is added to each occupied cell once per accepted index.
	Increment float32
}

// DefaultVoxelParams returns an identity transform, no decay and an
// increment of one.
func DefaultVoxelParams() VoxelParams {
	return VoxelParams{Transform: mgl32.Ident4(), Decay: 1, Increment: 1}
}

// Accumulate decays the whole grid, then adds p.Increment to the cell of each
// of the mesh's valid indices. In mesh mode a vertex is counted once per
// triangle that references it. Out-of-range projections are dropped. It
// returns how many increments were applied.
func (g *VoxelGrid) Accumulate(m Mesh, p VoxelParams) int {
	g.Decay(p.Decay)

	total := 0
	for _, i := range m.Indices[:m.Count] {
		x, y, z, ok := g.Cell(vec3At(m.Vertices, int(i)), p.Transform)
		if !ok {
			continue
		}
		g.Cells[g.Idx(x, y, z)] += p.Increment
		total++
	}
	if traceLogger != nil {
		tracef("voxels: %d of %d indices landed in grid %v", total, m.Count, g.Dims)
	}
	return total
}
