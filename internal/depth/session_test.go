package depth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueSource hands out queued frames; an empty queue polls as "no frame".
type queueSource struct {
	frames  []*Frame
	pollErr error
	waitErr error
	polls   int
}

func (q *queueSource) next() (*Frame, bool) {
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

func (q *queueSource) WaitForFrame(ctx context.Context) (*Frame, error) {
	if q.waitErr != nil {
		return nil, q.waitErr
	}
	if f, ok := q.next(); ok {
		return f, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *queueSource) PollForFrame() (*Frame, bool, error) {
	q.polls++
	if q.pollErr != nil {
		return nil, false, q.pollErr
	}
	f, ok := q.next()
	return f, ok, nil
}

func planeFrame(w, h int, accel *AccelSample) *Frame {
	return &Frame{
		Points:    planeGrid(w, h, 0.01, 1),
		Width:     w,
		Height:    h,
		Timestamp: time.Unix(100, 0),
		Accel:     accel,
	}
}

func TestSession_GrabMesh(t *testing.T) {
	t.Parallel()
	src := &queueSource{frames: []*Frame{planeFrame(4, 3, nil)}}
	s := NewSession(src)
	assert.NotEmpty(t, s.ID)

	m, ok, err := s.Grab(context.Background(), FrameOptions{Wait: true, Mode: ModeMesh, WithNormals: true})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3*2*6, m.Count)
	assert.Equal(t, 3*2*2, m.Triangles())
	assert.Len(t, m.Normals, 4*3*3)
	assert.Equal(t, uint64(1), s.Frames())
	assert.Equal(t, time.Unix(100, 0), s.LastFrameTime())
}

func TestSession_PollWithoutFrameKeepsBuffers(t *testing.T) {
	t.Parallel()
	src := &queueSource{frames: []*Frame{planeFrame(3, 3, nil)}}
	s := NewSession(src)

	first, ok, err := s.Grab(context.Background(), FrameOptions{Mode: ModePoints})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 9, first.Count)

	hi := mgl32.Vec3{1, 1, 1}
	m, ok, err := s.Grab(context.Background(), FrameOptions{Mode: ModePoints, Max: &hi})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 9, m.Count, "previous frame's output is retained")
	assert.Equal(t, hi, s.Bounds().Max, "bounds are recorded even without a frame")
	assert.Equal(t, 2, src.polls)
}

func TestSession_BoundsCarryForward(t *testing.T) {
	t.Parallel()
	src := &queueSource{frames: []*Frame{planeFrame(3, 3, nil), planeFrame(3, 3, nil)}}
	s := NewSession(src)
	ctx := context.Background()

	// Reject everything with x >= 0.005: only column 0 survives.
	hi := mgl32.Vec3{0.005, 10, 10}
	m, ok, err := s.Grab(ctx, FrameOptions{Mode: ModePoints, Max: &hi})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []uint32{0, 3, 6}, m.ValidIndices())

	// No bounds given: the previous max still applies.
	m, ok, err = s.Grab(ctx, FrameOptions{Mode: ModePoints})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []uint32{0, 3, 6}, m.ValidIndices())
	assert.Equal(t, mgl32.Vec3{-10, -10, -10}, s.Bounds().Min)
}

func TestSession_AccelIsSticky(t *testing.T) {
	t.Parallel()
	sample := &AccelSample{X: 1, Y: -9.8, Z: 0}
	src := &queueSource{frames: []*Frame{planeFrame(2, 2, nil), planeFrame(2, 2, sample), planeFrame(2, 2, nil)}}
	s := NewSession(src)
	ctx := context.Background()

	_, _, err := s.Grab(ctx, FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultAccel, s.Accel())

	_, _, err = s.Grab(ctx, FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, *sample, s.Accel())

	_, _, err = s.Grab(ctx, FrameOptions{})
	require.NoError(t, err)
	assert.Equal(t, *sample, s.Accel(), "a frame without a sample keeps the last one")
}

func TestSession_PerCallDefaults(t *testing.T) {
	t.Parallel()
	src := &queueSource{frames: []*Frame{planeFrame(2, 2, nil), planeFrame(2, 2, nil)}}
	s := NewSession(src)
	ctx := context.Background()

	shift := mgl32.Translate3D(5, 0, 0)
	big := float32(1)
	m, _, err := s.Grab(ctx, FrameOptions{Mode: ModeMesh, Transform: &shift, MaxArea: &big})
	require.NoError(t, err)
	assert.Equal(t, float32(5), m.Vertices[0])

	// Transform and max area are not sticky.
	m, _, err = s.Grab(ctx, FrameOptions{Mode: ModeMesh})
	require.NoError(t, err)
	assert.Equal(t, float32(0), m.Vertices[0])
	assert.Equal(t, 6, m.Count)
}

func TestSession_ResolutionChange(t *testing.T) {
	t.Parallel()
	src := &queueSource{frames: []*Frame{planeFrame(4, 4, nil), planeFrame(2, 3, nil)}}
	s := NewSession(src)
	ctx := context.Background()

	_, _, err := s.Grab(ctx, FrameOptions{Mode: ModeMesh})
	require.NoError(t, err)
	m, ok, err := s.Grab(ctx, FrameOptions{Mode: ModeMesh})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, m.Vertices, 2*3*3)
	assert.Len(t, m.Indices, 1*2*6)
	assert.Equal(t, 2, s.Arena().Reallocations)
}

func TestSession_SourceErrors(t *testing.T) {
	t.Parallel()
	boom := errors.New("usb disconnected")

	s := NewSession(&queueSource{pollErr: boom})
	_, _, err := s.Grab(context.Background(), FrameOptions{})
	assert.ErrorIs(t, err, boom)

	s = NewSession(&queueSource{waitErr: boom})
	_, _, err = s.Grab(context.Background(), FrameOptions{Wait: true})
	assert.ErrorIs(t, err, boom)
}

func TestSession_WaitHonoursContext(t *testing.T) {
	t.Parallel()
	s := NewSession(&queueSource{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok, err := s.Grab(ctx, FrameOptions{Wait: true})
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSession_ShortFrameRejected(t *testing.T) {
	t.Parallel()
	f := planeFrame(3, 3, nil)
	f.Points = f.Points[:5]
	s := NewSession(&queueSource{frames: []*Frame{f}})

	_, ok, err := s.Grab(context.Background(), FrameOptions{})
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Frames())
}

func TestSession_Voxels(t *testing.T) {
	t.Parallel()
	src := &queueSource{frames: []*Frame{planeFrame(3, 3, nil)}}
	s := NewSession(src)
	g := NewVoxelGrid(4, 4, 4)
	g.Cells[0] = 8
	p := DefaultVoxelParams()
	p.Decay = 0.5
	p.Transform = mgl32.Translate3D(0.5, 0.6, 1.5)

	// Before any frame only decay happens.
	n, err := s.Voxels(g, p)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, float32(4), g.Cells[0])

	_, ok, err := s.Grab(context.Background(), FrameOptions{Mode: ModePoints})
	require.NoError(t, err)
	require.True(t, ok)

	n, err = s.Voxels(g, p)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, float32(9), g.At(2, 2, 2))
	assert.Equal(t, float32(2), g.Cells[0])
}

func TestSession_Close(t *testing.T) {
	t.Parallel()
	s := NewSession(&queueSource{frames: []*Frame{planeFrame(2, 2, nil)}})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	_, _, err := s.Grab(context.Background(), FrameOptions{})
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Voxels(NewVoxelGrid(1, 1, 1), DefaultVoxelParams())
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestProjectAndFilterPoints_HostOperation(t *testing.T) {
	t.Parallel()
	a := NewArena()
	pts := planeGrid(3, 2, 0.01, 1)
	bounds := DefaultBoundingBox()
	bounds.Max[0] = 0.015

	indices, count, err := ProjectAndFilterPoints(a, pts, 3, 2, mgl32.Ident4(), bounds)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 1, 3, 4}, indices[:count])
	assert.Len(t, indices, 6)
}

func TestBuildTriangleMesh_HostOperation(t *testing.T) {
	t.Parallel()
	a := NewArena()
	m, err := BuildTriangleMesh(a, planeGrid(3, 3, 0.01, 1), 3, 3, mgl32.Ident4(), DefaultBoundingBox(), DefaultMaxArea, true)
	require.NoError(t, err)
	assert.Equal(t, 24, m.Count)
	assert.Equal(t, ModeMesh, m.Mode)
	assertVec3Near(t, mgl32.Vec3{0, 0, 1}, m.Normal(4), 1e-6)
}

func TestHostOperations_RejectShortCloud(t *testing.T) {
	t.Parallel()
	a := NewArena()
	pts := planeGrid(3, 2, 0.01, 1)

	_, _, err := ProjectAndFilterPoints(a, pts, 3, 3, mgl32.Ident4(), DefaultBoundingBox())
	assert.ErrorContains(t, err, "needs 9")
	_, err = BuildTriangleMesh(a, pts, 4, 2, mgl32.Ident4(), DefaultBoundingBox(), DefaultMaxArea, true)
	assert.ErrorContains(t, err, "needs 8")
	_, _, err = ProjectAndFilterPoints(a, pts, -1, 2, mgl32.Ident4(), DefaultBoundingBox())
	assert.Error(t, err)
	assert.Nil(t, a.Vertices, "a rejected cloud must not size the arena")
}
