package source

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/timeutil"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynthetic(t *testing.T, clock timeutil.Clock) *SyntheticSource {
	t.Helper()
	cfg := DefaultSyntheticConfig()
	cfg.Intrinsics = IntrinsicsForFOV(32, 24, 70)
	cfg.Interval = 100 * time.Millisecond
	cfg.Clock = clock
	src, err := NewSyntheticSource(cfg)
	require.NoError(t, err)
	return src
}

func TestNewSyntheticSource_Validation(t *testing.T) {
	t.Parallel()
	cfg := DefaultSyntheticConfig()
	cfg.Intrinsics.Fx = 0
	_, err := NewSyntheticSource(cfg)
	assert.Error(t, err)

	cfg = DefaultSyntheticConfig()
	cfg.Interval = -time.Second
	_, err = NewSyntheticSource(cfg)
	assert.Error(t, err)

	cfg = DefaultSyntheticConfig()
	cfg.Scene.MaxRange = 0
	_, err = NewSyntheticSource(cfg)
	assert.Error(t, err)
}

func TestSyntheticSource_PollPacing(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	src := newTestSynthetic(t, clock)

	f, ok, err := src.PollForFrame()
	require.NoError(t, err)
	require.True(t, ok, "first poll renders immediately")
	assert.Equal(t, time.Unix(1000, 0), f.Timestamp)

	_, ok, err = src.PollForFrame()
	require.NoError(t, err)
	assert.False(t, ok, "next frame is not due yet")

	clock.Advance(100 * time.Millisecond)
	_, ok, err = src.PollForFrame()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(2), src.Frames())
}

func TestSyntheticSource_WaitUsesClock(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := newTestSynthetic(t, clock)
	ctx := context.Background()

	_, err := src.WaitForFrame(ctx)
	require.NoError(t, err)

	done := make(chan *depth.Frame)
	go func() {
		f, err := src.WaitForFrame(ctx)
		if err != nil {
			close(done)
			return
		}
		done <- f
	}()

	require.Eventually(t, func() bool { return clock.Waiters() == 1 }, time.Second, time.Millisecond)
	clock.Advance(100 * time.Millisecond)

	select {
	case f, ok := <-done:
		require.True(t, ok, "wait failed")
		assert.Equal(t, time.Unix(0, 0).Add(100*time.Millisecond), f.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("WaitForFrame did not return after the clock advanced")
	}
}

func TestSyntheticSource_WaitCancelled(t *testing.T) {
	t.Parallel()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := newTestSynthetic(t, clock)
	_, err := src.WaitForFrame(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.WaitForFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, clock.Waiters(), "timer is stopped on cancellation")
}

func TestSyntheticSource_FrameGeometry(t *testing.T) {
	t.Parallel()
	src := newTestSynthetic(t, timeutil.NewMockClock(time.Unix(0, 0)))
	f, ok, err := src.PollForFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 32*24, len(f.Points))
	require.NotNil(t, f.Accel)

	// The bottom row looks at the nearby floor; every pixel there has depth.
	scene := DefaultScene()
	for u := 0; u < f.Width; u++ {
		p := f.Points[(f.Height-1)*f.Width+u]
		require.Positive(t, p[2], "pixel %d", u)
		require.Less(t, p[2], scene.MaxRange)
	}

	// Floor hits satisfy up·p = -height.
	up := scene.up()
	p := f.Points[(f.Height-1)*f.Width]
	assert.InDelta(t, -scene.CameraHeight, up.Dot(p), 2e-3)

	// The centre pixel hits the sphere before the floor.
	c := f.Points[(f.Height/2)*f.Width+f.Width/2]
	dist := c.Sub(scene.SphereCenter).Len()
	assert.InDelta(t, scene.SphereRadius, dist, 0.01)
}

func TestSyntheticSource_MaxRangeDropsReturns(t *testing.T) {
	t.Parallel()
	cfg := DefaultSyntheticConfig()
	cfg.Intrinsics = IntrinsicsForFOV(16, 12, 70)
	cfg.Scene.Pitch = 0
	cfg.Scene.SphereRadius = 0
	cfg.Scene.MaxRange = 3
	src, err := NewSyntheticSource(cfg)
	require.NoError(t, err)

	f, _, err := src.PollForFrame()
	require.NoError(t, err)
	// A level camera sees no floor above the horizon.
	assert.Equal(t, mgl32.Vec3{}, f.Points[0])
	assert.Zero(t, src.Raw()[0])
}

func TestScene_Gravity(t *testing.T) {
	t.Parallel()
	level := Scene{}
	g := level.Gravity()
	assert.InDelta(t, -standardGravity, g.Y, 1e-4)
	assert.InDelta(t, 0, g.Z, 1e-4)

	down := Scene{Pitch: math.Pi / 2}
	g = down.Gravity()
	assert.InDelta(t, 0, g.Y, 1e-4)
	assert.InDelta(t, -standardGravity, g.Z, 1e-4)
}

func TestSyntheticSource_CalibratorLevelsFloor(t *testing.T) {
	t.Parallel()
	src := newTestSynthetic(t, timeutil.NewMockClock(time.Unix(0, 0)))
	f, _, err := src.PollForFrame()
	require.NoError(t, err)

	cal, err := depth.NewCalibrator(1, false)
	require.NoError(t, err)
	m := cal.Update(*f.Accel, mgl32.Vec3{}, 0)

	// Two floor points in the bottom row end up at the same world height.
	row := (f.Height - 1) * f.Width
	a := depth.ProjectPoint(f.Points[row], m)
	b := depth.ProjectPoint(f.Points[row+f.Width-1], m)
	assert.InDelta(t, a[1], b[1], 5e-3)
	assert.InDelta(t, -DefaultScene().CameraHeight, a[1], 5e-3)
}
