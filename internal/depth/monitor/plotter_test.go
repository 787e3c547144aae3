package monitor

import (
	"bytes"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/fsutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

func TestVoxelPlotter_StartStop(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	vp := NewVoxelPlotter(mfs, "/plots")
	assert.False(t, vp.IsEnabled())

	_, err := vp.GeneratePlots()
	assert.Error(t, err, "no run started")

	dir, err := vp.Start("cam 1/../x", time.Date(2026, 1, 7, 17, 31, 29, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/plots", "cam_1_.._x", "20260107_173129"), dir)
	assert.True(t, mfs.Exists(dir))
	assert.True(t, vp.IsEnabled())
	assert.Equal(t, dir, vp.OutputDir())

	vp.Stop()
	assert.False(t, vp.IsEnabled())
	vp.Sample(frameRecord(1, 3), nil)

	files, err := vp.GeneratePlots()
	assert.NoError(t, err)
	assert.Empty(t, files, "samples after Stop are ignored")
}

func TestVoxelPlotter_GeneratePlots(t *testing.T) {
	t.Parallel()
	mfs := fsutil.NewMemoryFileSystem()
	vp := NewVoxelPlotter(mfs, "/plots")
	vp.Track(1, 1, 0)
	vp.Track(9, 9, 9) // outside the grid, never sampled
	dir, err := vp.Start("sess-1", time.Unix(0, 0))
	require.NoError(t, err)

	g := depth.NewVoxelGrid(2, 2, 1)
	for i := 1; i <= 10; i++ {
		g.Cells[g.Idx(1, 1, 0)] = float32(i)
		r := frameRecord(uint64(i), 30*i)
		r.VoxelsTouched = i
		r.Voxels = depth.VoxelSummary{Cells: 4, Occupied: 1, Total: float64(i), Max: float64(i)}
		vp.Sample(r, g)
	}

	files, err := vp.GeneratePlots()
	require.NoError(t, err)
	want := []string{
		filepath.Join(dir, "occupancy.png"),
		filepath.Join(dir, "density.png"),
		filepath.Join(dir, "geometry.png"),
		filepath.Join(dir, "cells.png"),
	}
	assert.Equal(t, want, files)
	assert.Equal(t, want, vp.Written())

	for _, f := range files {
		data, err := mfs.ReadFile(f)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, pngMagic), f)
	}
}

func TestVoxelPlotter_NoTrackedCells(t *testing.T) {
	t.Parallel()
	vp := NewVoxelPlotter(fsutil.NewMemoryFileSystem(), "/plots")
	_, err := vp.Start("s", time.Unix(0, 0))
	require.NoError(t, err)
	vp.Sample(frameRecord(1, 3), depth.NewVoxelGrid(1, 1, 1))
	vp.Sample(frameRecord(2, 6), nil)

	files, err := vp.GeneratePlots()
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestVoxelPlotter_OSFileSystem(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	vp := NewVoxelPlotter(fsutil.OSFileSystem{}, root)
	_, err := vp.Start("sess", time.Unix(0, 0))
	require.NoError(t, err)
	vp.Sample(frameRecord(1, 3), nil)

	files, err := vp.GeneratePlots()
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.True(t, fsutil.OSFileSystem{}.Exists(files[0]))
}

func TestGenerateColors(t *testing.T) {
	t.Parallel()
	assert.Nil(t, generateColors(0))
	colors := generateColors(3)
	require.Len(t, colors, 3)
	assert.Equal(t, color.RGBA{R: 216, G: 38, B: 38, A: 255}, colors[0])
	assert.NotEqual(t, colors[0], colors[1])
}
