package depth

import (
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FrameRecord summarises one processed frame.
type FrameRecord struct {
	Seq           uint64        `json:"seq"`
	Timestamp     time.Time     `json:"timestamp"`
	Width         int           `json:"width"`
	Height        int           `json:"height"`
	Mode          Mode          `json:"mode"`
	Count         int           `json:"count"` // valid indices
	Triangles     int           `json:"triangles"`
	VoxelsTouched int           `json:"voxels_touched"`
	Duration      time.Duration `json:"duration_ns"`
	Voxels        VoxelSummary  `json:"voxels"`
}

// VoxelSummary describes the current state of a voxel grid.
type VoxelSummary struct {
	Cells    int     `json:"cells"`
	Occupied int     `json:"occupied"` // cells with a value above OccupiedEpsilon
	Total    float64 `json:"total"`    // sum of all cells
	Mean     float64 `json:"mean"`
	Max      float64 `json:"max"`
}

// OccupiedEpsilon is the value below which a decayed cell counts as empty.
const OccupiedEpsilon = 1e-3

// VoxelSummarizer computes VoxelSummary values, reusing its scratch buffer
// between calls.
type VoxelSummarizer struct {
	scratch []float64
}

// Summarize computes the summary of g.
func (s *VoxelSummarizer) Summarize(g *VoxelGrid) VoxelSummary {
	n := len(g.Cells)
	if n == 0 {
		return VoxelSummary{}
	}
	if cap(s.scratch) < n {
		s.scratch = make([]float64, n)
	}
	xs := s.scratch[:n]
	occupied := 0
	for i, c := range g.Cells {
		xs[i] = float64(c)
		if xs[i] > OccupiedEpsilon {
			occupied++
		}
	}
	return VoxelSummary{
		Cells:    n,
		Occupied: occupied,
		Total:    floats.Sum(xs),
		Mean:     stat.Mean(xs, nil),
		Max:      floats.Max(xs),
	}
}
