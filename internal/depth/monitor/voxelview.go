package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
)

// VoxelView holds a copy of the pipeline's voxel grid for the web handlers.
// The pipeline goroutine publishes into it; readers never see the live grid.
type VoxelView struct {
	mu      sync.RWMutex
	cells   []float32
	dims    [3]int
	summary depth.VoxelSummary
	updated time.Time
}

// Publish copies g into the view, reusing the buffer when the size matches.
func (v *VoxelView) Publish(g *depth.VoxelGrid, summary depth.VoxelSummary, at time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.cells) != len(g.Cells) {
		v.cells = make([]float32, len(g.Cells))
	}
	copy(v.cells, g.Cells)
	v.dims = g.Dims
	v.summary = summary
	v.updated = at
}

// Dims returns the published grid dimensions; zero before the first publish.
func (v *VoxelView) Dims() [3]int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dims
}

// Summary returns the summary and time of the last publish.
func (v *VoxelView) Summary() (depth.VoxelSummary, time.Time) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.summary, v.updated
}

// SliceZ copies layer z (DimX*DimY values, x fastest) into dst and returns it.
// ok is false when nothing was published or z is out of range.
func (v *VoxelView) SliceZ(z int, dst []float32) (slice []float32, dims [3]int, ok bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if len(v.cells) == 0 || z < 0 || z >= v.dims[2] {
		return dst[:0], v.dims, false
	}
	n := v.dims[0] * v.dims[1]
	dst = append(dst[:0], v.cells[z*n:(z+1)*n]...)
	return dst, v.dims, true
}
