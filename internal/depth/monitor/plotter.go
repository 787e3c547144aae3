package monitor

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/fsutil"
	"github.com/banshee-data/depthmesh/internal/security"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// VoxelSample is one frame's worth of plotted values.
type VoxelSample struct {
	FrameIdx  int
	Timestamp time.Time
	Count     int
	Triangles int
	Touched   int
	Occupied  int
	Total     float64
	Max       float64
}

// VoxelPlotter records voxel occupancy and geometry counts over a run and
// renders them as PNG time series. Individual cells can be tracked with
// Track to watch their decay and accumulation.
type VoxelPlotter struct {
	mu        sync.Mutex
	fs        fsutil.FileSystem
	root      string
	enabled   bool
	outputDir string

	frameIdx int
	samples  []VoxelSample
	tracked  [][3]int
	cells    map[[3]int]plotter.XYs
	written  []string
}

// NewVoxelPlotter writes runs below root on fs.
func NewVoxelPlotter(fs fsutil.FileSystem, root string) *VoxelPlotter {
	return &VoxelPlotter{fs: fs, root: root, cells: make(map[[3]int]plotter.XYs)}
}

// Root returns the directory runs are written below.
func (vp *VoxelPlotter) Root() string { return vp.root }

// Track adds a cell whose value is plotted per frame.
func (vp *VoxelPlotter) Track(x, y, z int) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.tracked = append(vp.tracked, [3]int{x, y, z})
}

// Start begins a run in root/<session>/<timestamp> and returns that
// directory. Samples from a previous run are discarded.
func (vp *VoxelPlotter) Start(sessionID string, at time.Time) (string, error) {
	vp.mu.Lock()
	defer vp.mu.Unlock()

	dir := filepath.Join(vp.root, security.SanitizeFilename(sessionID), at.Format("20060102_150405"))
	if err := vp.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	vp.outputDir = dir
	vp.enabled = true
	vp.frameIdx = 0
	vp.samples = vp.samples[:0]
	vp.cells = make(map[[3]int]plotter.XYs)
	vp.written = nil
	return dir, nil
}

// Stop disables sampling. GeneratePlots still renders what was recorded.
func (vp *VoxelPlotter) Stop() {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.enabled = false
}

// IsEnabled reports whether a run is recording.
func (vp *VoxelPlotter) IsEnabled() bool {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return vp.enabled
}

// OutputDir returns the current run directory.
func (vp *VoxelPlotter) OutputDir() string {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return vp.outputDir
}

// Written lists the files produced by the last GeneratePlots.
func (vp *VoxelPlotter) Written() []string {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return append([]string(nil), vp.written...)
}

// Sample records one frame. g may be nil when voxels are disabled.
func (vp *VoxelPlotter) Sample(r depth.FrameRecord, g *depth.VoxelGrid) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	if !vp.enabled {
		return
	}
	vp.frameIdx++
	vp.samples = append(vp.samples, VoxelSample{
		FrameIdx:  vp.frameIdx,
		Timestamp: r.Timestamp,
		Count:     r.Count,
		Triangles: r.Triangles,
		Touched:   r.VoxelsTouched,
		Occupied:  r.Voxels.Occupied,
		Total:     r.Voxels.Total,
		Max:       r.Voxels.Max,
	})
	if g == nil {
		return
	}
	for _, c := range vp.tracked {
		if c[0] < 0 || c[0] >= g.Dims[0] || c[1] < 0 || c[1] >= g.Dims[1] || c[2] < 0 || c[2] >= g.Dims[2] {
			continue
		}
		vp.cells[c] = append(vp.cells[c], plotter.XY{X: float64(vp.frameIdx), Y: float64(g.At(c[0], c[1], c[2]))})
	}
}

// GeneratePlots renders the recorded run and returns the files written.
func (vp *VoxelPlotter) GeneratePlots() ([]string, error) {
	vp.mu.Lock()
	defer vp.mu.Unlock()

	if vp.outputDir == "" {
		return nil, fmt.Errorf("no output directory configured")
	}
	if len(vp.samples) == 0 {
		return nil, nil
	}

	occupied := make(plotter.XYs, len(vp.samples))
	total := make(plotter.XYs, len(vp.samples))
	peak := make(plotter.XYs, len(vp.samples))
	indices := make(plotter.XYs, len(vp.samples))
	triangles := make(plotter.XYs, len(vp.samples))
	touched := make(plotter.XYs, len(vp.samples))
	for i, s := range vp.samples {
		x := float64(s.FrameIdx)
		occupied[i] = plotter.XY{X: x, Y: float64(s.Occupied)}
		total[i] = plotter.XY{X: x, Y: s.Total}
		peak[i] = plotter.XY{X: x, Y: s.Max}
		indices[i] = plotter.XY{X: x, Y: float64(s.Count)}
		triangles[i] = plotter.XY{X: x, Y: float64(s.Triangles)}
		touched[i] = plotter.XY{X: x, Y: float64(s.Touched)}
	}

	colors := generateColors(3)
	plots := []struct {
		file   string
		title  string
		ylabel string
		series []namedSeries
	}{
		{"occupancy.png", "Occupied Voxels", "Cells", []namedSeries{{"occupied", occupied}}},
		{"density.png", "Voxel Density", "Value", []namedSeries{{"total", total}, {"max", peak}}},
		{"geometry.png", "Mesh Output", "Count", []namedSeries{{"indices", indices}, {"triangles", triangles}, {"voxel hits", touched}}},
	}

	vp.written = vp.written[:0]
	for _, pd := range plots {
		p := newTimeSeriesPlot(pd.title, pd.ylabel)
		for i, s := range pd.series {
			if err := addLine(p, s.name, s.xys, colors[i%len(colors)]); err != nil {
				return vp.written, fmt.Errorf("%s: %w", pd.file, err)
			}
		}
		if err := vp.save(p, pd.file); err != nil {
			return vp.written, err
		}
	}

	if len(vp.cells) > 0 {
		p := newTimeSeriesPlot("Tracked Voxels", "Value")
		cellColors := generateColors(len(vp.tracked))
		for i, c := range vp.tracked {
			xys := vp.cells[c]
			if len(xys) == 0 {
				continue
			}
			if err := addLine(p, fmt.Sprintf("(%d,%d,%d)", c[0], c[1], c[2]), xys, cellColors[i]); err != nil {
				return vp.written, fmt.Errorf("cells.png: %w", err)
			}
		}
		if err := vp.save(p, "cells.png"); err != nil {
			return vp.written, err
		}
	}
	return append([]string(nil), vp.written...), nil
}

type namedSeries struct {
	name string
	xys  plotter.XYs
}

func newTimeSeriesPlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = ylabel
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	return p
}

func addLine(p *plot.Plot, name string, xys plotter.XYs, c color.Color) error {
	l, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	l.Color = c
	l.Width = vg.Points(1)
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

func (vp *VoxelPlotter) save(p *plot.Plot, file string) error {
	wt, err := p.WriterTo(14*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("render %s: %w", file, err)
	}
	path := filepath.Join(vp.outputDir, file)
	f, err := vp.fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", file, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", file, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", file, err)
	}
	vp.written = append(vp.written, path)
	return nil
}

// generateColors spreads n hues around the colour wheel.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := range colors {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255), uint8(hueToRGB(p, q, h) * 255), uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
