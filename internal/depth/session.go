package depth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// ErrSessionClosed is returned by a Session used after Close.
var ErrSessionClosed = errors.New("depth session closed")

// FrameOptions are the caller inputs for one Grab. Nil pointer fields have
// per-field defaults: Min and Max carry forward the session's previous
// bounds, Transform falls back to identity, MaxArea to DefaultMaxArea.
type FrameOptions struct {
	// Wait blocks for the next frame instead of polling.
	Wait        bool
	Mode        Mode
	WithNormals bool

	MaxArea   *float32
	Transform *mgl32.Mat4
	Min       *mgl32.Vec3
	Max       *mgl32.Vec3
}

// Session is one camera's processing state: its point source, geometry
// buffers and the values that persist from frame to frame (bounding box and
// last acceleration sample). A Session is not safe for concurrent use.
type Session struct {
	ID string

	source PointSource
	arena  *Arena
	bounds BoundingBox
	accel  AccelSample

	lastFrame time.Time
	frames    uint64
	closed    bool
}

// NewSession creates a session reading from src.
func NewSession(src PointSource) *Session {
	return &Session{
		ID:     uuid.NewString(),
		source: src,
		arena:  NewArena(),
		bounds: DefaultBoundingBox(),
		accel:  DefaultAccel,
	}
}

// Bounds returns the bounding box in effect for the last frame.
func (s *Session) Bounds() BoundingBox { return s.bounds }

// Accel returns the most recent acceleration sample.
func (s *Session) Accel() AccelSample { return s.accel }

// Arena exposes the session's buffers.
func (s *Session) Arena() *Arena { return s.arena }

// Mesh returns the current contents of the session's buffers.
func (s *Session) Mesh() Mesh { return s.arena.Mesh() }

// Frames returns the number of frames processed.
func (s *Session) Frames() uint64 { return s.frames }

// LastFrameTime returns the timestamp of the most recent frame.
func (s *Session) LastFrameTime() time.Time { return s.lastFrame }

// Grab acquires one frame and runs it through projection, filtering and
// triangulation. ok is false when polling found no frame; the buffers then
// still hold the previous frame's output.
func (s *Session) Grab(ctx context.Context, opts FrameOptions) (m Mesh, ok bool, err error) {
	if s.closed {
		return Mesh{}, false, ErrSessionClosed
	}

	// Bounds are updated from caller input before acquisition, so a skipped
	// frame still records them.
	s.bounds = s.bounds.Merge(opts.Min, opts.Max)

	var f *Frame
	if opts.Wait {
		f, err = s.source.WaitForFrame(ctx)
		if err != nil {
			return Mesh{}, false, fmt.Errorf("wait for frame: %w", err)
		}
		ok = f != nil
	} else {
		f, ok, err = s.source.PollForFrame()
		if err != nil {
			return Mesh{}, false, fmt.Errorf("poll for frame: %w", err)
		}
	}
	if !ok {
		return s.arena.Mesh(), false, nil
	}

	if f.Accel != nil {
		s.accel = *f.Accel
	}
	if err := checkFrame(f); err != nil {
		opsf("dropping frame: %v", err)
		return s.arena.Mesh(), false, err
	}

	if s.arena.Ensure(f.Width, f.Height, opts.Mode, opts.WithNormals) {
		diagf("session %s: buffers sized for %dx%d %s", s.ID, f.Width, f.Height, opts.Mode)
	}
	BuildMesh(s.arena, f.Points, f.Width, f.Height, s.meshParams(opts))

	s.frames++
	s.lastFrame = f.Timestamp
	if traceLogger != nil {
		tracef("session %s: frame %d %dx%d %s count=%d", s.ID, s.frames, f.Width, f.Height, opts.Mode, s.arena.Count)
	}
	return s.arena.Mesh(), true, nil
}

func (s *Session) meshParams(opts FrameOptions) MeshParams {
	p := MeshParams{
		Mode:        opts.Mode,
		Transform:   mgl32.Ident4(),
		Bounds:      s.bounds,
		MaxArea:     DefaultMaxArea,
		WithNormals: opts.WithNormals,
	}
	if opts.Transform != nil {
		p.Transform = *opts.Transform
	}
	if opts.MaxArea != nil {
		p.MaxArea = *opts.MaxArea
	}
	return p
}

// Voxels runs the voxel accumulator over the session's current buffers.
// g must already be sized (see Arena.EnsureVoxels). Before the first frame
// the grid is only decayed.
func (s *Session) Voxels(g *VoxelGrid, p VoxelParams) (int, error) {
	if s.closed {
		return 0, ErrSessionClosed
	}
	if s.arena.Vertices == nil {
		g.Decay(p.Decay)
		return 0, nil
	}
	return g.Accumulate(s.arena.Mesh(), p), nil
}

// Close releases the session. The buffers are dropped.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.arena = NewArena()
	diagf("session %s closed after %d frames", s.ID, s.frames)
	return nil
}

func checkFrame(f *Frame) error {
	return checkCloud(f.Points, f.Width, f.Height)
}

func checkCloud(points []mgl32.Vec3, width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	if len(points) < width*height {
		return fmt.Errorf("frame has %d points, %dx%d needs %d", len(points), width, height, width*height)
	}
	return nil
}
