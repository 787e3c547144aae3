package depth

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCalibrator_BlendRange(t *testing.T) {
	t.Parallel()
	for _, blend := range []float32{0, -0.1, 1.5} {
		_, err := NewCalibrator(blend, false)
		assert.Error(t, err, "blend %v", blend)
	}
	c, err := NewCalibrator(1, false)
	require.NoError(t, err)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, c.Up())
}

func TestCalibrator_LevelCamera(t *testing.T) {
	t.Parallel()
	c, err := NewCalibrator(0.1, false)
	require.NoError(t, err)

	m := c.Update(AccelSample{Y: -10}, mgl32.Vec3{}, 0)
	want := mgl32.Diag4(mgl32.Vec4{-1, 1, 1, 1})
	for i := range want {
		assert.InDelta(t, want[i], m[i], 1e-6, "element %d", i)
	}
}

func TestCalibrator_UpsideDown(t *testing.T) {
	t.Parallel()
	c, err := NewCalibrator(1, true)
	require.NoError(t, err)

	c.Update(AccelSample{Y: 10}, mgl32.Vec3{}, 0)
	assertVec3Near(t, mgl32.Vec3{0, 1, 0}, c.Up(), 1e-6)
}

func TestCalibrator_PitchedCameraIsLeveled(t *testing.T) {
	t.Parallel()
	c, err := NewCalibrator(1, false)
	require.NoError(t, err)

	// Camera pointing straight down: gravity along its -Z.
	m := c.Update(DefaultAccel, mgl32.Vec3{}, 0)
	assertVec3Near(t, mgl32.Vec3{0, 0, 1}, c.Up(), 1e-6)

	leveled := m.Mul4x1(c.Up().Vec4(0)).Vec3()
	assertVec3Near(t, mgl32.Vec3{0, 1, 0}, leveled, 1e-6)
}

func TestCalibrator_BlendSmoothsUp(t *testing.T) {
	t.Parallel()
	c, err := NewCalibrator(0.5, false)
	require.NoError(t, err)

	c.Update(DefaultAccel, mgl32.Vec3{}, 0)
	h := float32(1 / math.Sqrt2)
	assertVec3Near(t, mgl32.Vec3{0, h, h}, c.Up(), 1e-6)
	assert.InDelta(t, 1.0, float64(c.Up().Len()), 1e-6)
}

func TestCalibrator_ZeroAccelKeepsUp(t *testing.T) {
	t.Parallel()
	c, err := NewCalibrator(1, false)
	require.NoError(t, err)
	c.Update(AccelSample{}, mgl32.Vec3{}, 0)
	assert.Equal(t, mgl32.Vec3{0, 1, 0}, c.Up())
}

func TestCalibrator_PositionAndRotation(t *testing.T) {
	t.Parallel()
	c, err := NewCalibrator(1, false)
	require.NoError(t, err)

	m := c.Matrix(mgl32.Vec3{1, 2, 3}, 0)
	got := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1}).Vec3()
	assertVec3Near(t, mgl32.Vec3{-1, 2, 3}, got, 1e-6)

	m = c.Matrix(mgl32.Vec3{}, mgl32.DegToRad(180))
	got = m.Mul4x1(mgl32.Vec4{0, 0, -1, 1}).Vec3()
	assertVec3Near(t, mgl32.Vec3{0, 0, 1}, got, 1e-6)
}
