package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/depthmesh/internal/config"
	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/depth/monitor"
	"github.com/banshee-data/depthmesh/internal/depth/source"
	"github.com/banshee-data/depthmesh/internal/depth/storage/sqlite"
	"github.com/banshee-data/depthmesh/internal/timeutil"
	"github.com/go-gl/mathgl/mgl32"
)

const defaultMaxConsecutiveErrors = 10

// Config wires a Runner. Only Stages and SessionID are required.
type Config struct {
	Stages    Stages
	SessionID string
	Device    source.DeviceInfo
	// Width and Height are the expected resolution, recorded with the session.
	Width, Height int

	// Tuning defaults to config.EmptyTuningConfig, i.e. built-in defaults.
	Tuning *config.TuningConfig

	Sink    SnapshotSink
	Stats   *monitor.FrameStats
	Voxels  *monitor.VoxelView
	Plotter *monitor.VoxelPlotter

	// RestoreFrom seeds the voxel grid from the latest snapshot of another
	// session. Ignored without a Sink.
	RestoreFrom string

	Clock timeutil.Clock
	// LogInterval is how often Stats.LogStats runs. Zero disables it.
	LogInterval time.Duration
	// MaxConsecutiveErrors ends Run after this many failed frames in a row.
	MaxConsecutiveErrors int
}

// Runner drives one session until its context is cancelled or its source
// closes. It is not safe for concurrent use.
type Runner struct {
	stages    Stages
	sessionID string
	cfg       Config
	clock     timeutil.Clock

	opts      depth.FrameOptions
	maxArea   float32
	bounds    depth.BoundingBox
	transform mgl32.Mat4
	interval  time.Duration

	grid        *depth.VoxelGrid
	dims        [3]int
	voxelParams depth.VoxelParams
	summarizer  depth.VoxelSummarizer

	cal        *depth.Calibrator
	calFrames  int
	calibrated int
	camPos     mgl32.Vec3
	camRot     float32

	snapshotInterval time.Duration
	lastSnapshot     time.Time
	lastLog          time.Time
	maxErrors        int

	seq uint64
}

// NewRunner resolves the tuning into per-frame options and allocates the
// voxel grid when voxels are enabled.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Stages == nil {
		return nil, errors.New("pipeline: no session stages")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("pipeline: empty session id")
	}
	if cfg.Tuning == nil {
		cfg.Tuning = config.EmptyTuningConfig()
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.MaxConsecutiveErrors <= 0 {
		cfg.MaxConsecutiveErrors = defaultMaxConsecutiveErrors
	}

	t := cfg.Tuning
	r := &Runner{
		stages:           cfg.Stages,
		sessionID:        cfg.SessionID,
		cfg:              cfg,
		clock:            cfg.Clock,
		maxArea:          t.GetMaxArea(),
		bounds:           t.GetBounds(),
		transform:        t.GetModelMatrix(),
		interval:         t.GetFrameInterval(),
		dims:             t.GetVoxelDims(),
		voxelParams:      t.GetVoxelParams(),
		calFrames:        t.GetCalibrationFrames(),
		camPos:           t.GetCameraPosition(),
		camRot:           t.GetCameraRotation(),
		snapshotInterval: t.GetSnapshotInterval(),
		maxErrors:        cfg.MaxConsecutiveErrors,
	}
	r.opts = depth.FrameOptions{
		Wait:        t.GetWaitForFrames(),
		Mode:        t.GetMode(),
		WithNormals: t.GetWithNormals(),
		MaxArea:     &r.maxArea,
		Transform:   &r.transform,
		Min:         &r.bounds.Min,
		Max:         &r.bounds.Max,
	}
	if !r.opts.Wait && r.interval <= 0 {
		return nil, errors.New("pipeline: polling needs a positive frame_interval")
	}
	if r.dims != ([3]int{}) {
		r.grid = &depth.VoxelGrid{}
	}
	if r.calFrames != 0 {
		cal, err := depth.NewCalibrator(t.GetCalibrationBlend(), t.GetCalibrationUpsideDown())
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		r.cal = cal
	}
	now := r.clock.Now()
	r.lastSnapshot, r.lastLog = now, now
	return r, nil
}

// SessionID returns the id frames and snapshots are recorded under.
func (r *Runner) SessionID() string { return r.sessionID }

// Frames returns the number of frames processed.
func (r *Runner) Frames() uint64 { return r.seq }

// Grid returns the voxel grid, or nil when voxels are disabled.
func (r *Runner) Grid() *depth.VoxelGrid { return r.grid }

// Transform returns the model matrix applied to the next frame.
func (r *Runner) Transform() mgl32.Mat4 { return r.transform }

// Run records the session start, processes frames until ctx is done or the
// source closes, then writes the shutdown snapshot, closes the session
// record and renders plots. A cancelled context is not an error.
func (r *Runner) Run(ctx context.Context) error {
	start := r.clock.Now()
	r.lastSnapshot, r.lastLog = start, start

	if r.cfg.Sink != nil {
		err := r.cfg.Sink.StartSession(sqlite.SessionRecord{
			SessionID:    r.sessionID,
			DeviceSerial: r.cfg.Device.Serial,
			DeviceName:   r.cfg.Device.Name,
			Width:        r.cfg.Width,
			Height:       r.cfg.Height,
			Mode:         r.opts.Mode,
			ConfigJSON:   r.cfg.Tuning.JSON(),
			StartedAt:    start,
		})
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		if r.cfg.RestoreFrom != "" {
			r.restore(r.cfg.RestoreFrom)
		}
	}
	if r.cfg.Plotter != nil {
		dir, err := r.cfg.Plotter.Start(r.sessionID, start)
		if err != nil {
			return fmt.Errorf("start plotter: %w", err)
		}
		diagf("session %s: plotting to %s", r.sessionID, dir)
	}
	opsf("session %s started: %s, wait=%v, voxels=%v, calibration frames=%d",
		r.sessionID, r.opts.Mode, r.opts.Wait, r.dims, r.calFrames)

	var tick timeutil.Ticker
	if !r.opts.Wait {
		tick = r.clock.NewTicker(r.interval)
		defer tick.Stop()
	}
	runErr := r.loop(ctx, tick)
	return errors.Join(runErr, r.finish())
}

func (r *Runner) loop(ctx context.Context, tick timeutil.Ticker) error {
	failures := 0
	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick.C():
			}
		} else if ctx.Err() != nil {
			return nil
		}

		_, _, err := r.Step(ctx)
		switch {
		case err == nil:
			failures = 0
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, source.ErrSourceClosed), errors.Is(err, depth.ErrSessionClosed):
			diagf("session %s: source ended: %v", r.sessionID, err)
			return nil
		default:
			failures++
			if r.cfg.Stats != nil {
				r.cfg.Stats.AddError()
			}
			opsf("session %s: frame error (%d in a row): %v", r.sessionID, failures, err)
			if failures >= r.maxErrors {
				return fmt.Errorf("session %s: %d consecutive frame errors: %w", r.sessionID, failures, err)
			}
		}
	}
}

// Step processes at most one frame. ok is false when polling found no frame.
func (r *Runner) Step(ctx context.Context) (rec depth.FrameRecord, ok bool, err error) {
	start := r.clock.Now()
	m, ok, err := r.stages.Grab(ctx, r.opts)
	if err != nil {
		return depth.FrameRecord{}, false, err
	}
	if !ok {
		if r.cfg.Stats != nil {
			r.cfg.Stats.AddSkipped()
		}
		return depth.FrameRecord{}, false, nil
	}

	r.seq++
	rec = depth.FrameRecord{
		Seq:       r.seq,
		Timestamp: r.stages.LastFrameTime(),
		Width:     m.Width,
		Height:    m.Height,
		Mode:      m.Mode,
		Count:     m.Count,
		Triangles: m.Triangles(),
	}
	if r.grid != nil {
		r.stages.Arena().EnsureVoxels(r.grid, r.dims)
		n, err := r.stages.Voxels(r.grid, r.voxelParams)
		if err != nil {
			return rec, false, fmt.Errorf("accumulate voxels: %w", err)
		}
		rec.VoxelsTouched = n
		rec.Voxels = r.summarizer.Summarize(r.grid)
	}
	now := r.clock.Now()
	rec.Duration = now.Sub(start)

	r.publish(rec)
	r.calibrate()
	r.maybeSnapshot(now)
	if r.cfg.Stats != nil && r.cfg.LogInterval > 0 && now.Sub(r.lastLog) >= r.cfg.LogInterval {
		r.lastLog = now
		r.cfg.Stats.LogStats()
	}
	if traceLogger != nil {
		tracef("session %s: frame %d count=%d touched=%d occupied=%d", r.sessionID, rec.Seq, rec.Count, rec.VoxelsTouched, rec.Voxels.Occupied)
	}
	return rec, true, nil
}

func (r *Runner) publish(rec depth.FrameRecord) {
	if r.cfg.Stats != nil {
		r.cfg.Stats.AddFrame(rec)
	}
	if r.cfg.Voxels != nil && r.grid != nil {
		r.cfg.Voxels.Publish(r.grid, rec.Voxels, rec.Timestamp)
	}
	if r.cfg.Plotter != nil {
		r.cfg.Plotter.Sample(rec, r.grid)
	}
	if r.cfg.Sink != nil {
		if err := r.cfg.Sink.RecordFrameStats(r.sessionID, rec); err != nil {
			opsf("session %s: record frame %d: %v", r.sessionID, rec.Seq, err)
		}
	}
}

// calibrate refines the model matrix from the latest accelerometer sample
// for the first calFrames frames, or forever when calFrames is negative.
func (r *Runner) calibrate() {
	if r.cal == nil || (r.calFrames > 0 && r.calibrated >= r.calFrames) {
		return
	}
	r.transform = r.cal.Update(r.stages.Accel(), r.camPos, r.camRot)
	r.calibrated++
	if r.calibrated == r.calFrames {
		diagf("session %s: calibration settled after %d frames, up=%v", r.sessionID, r.calibrated, r.cal.Up())
	}
}

func (r *Runner) maybeSnapshot(now time.Time) {
	if r.cfg.Sink == nil || r.grid == nil || r.snapshotInterval <= 0 {
		return
	}
	if now.Sub(r.lastSnapshot) < r.snapshotInterval {
		return
	}
	r.lastSnapshot = now
	if err := r.grid.Persist(r.cfg.Sink, r.sessionID, "periodic"); err != nil {
		opsf("session %s: periodic snapshot: %v", r.sessionID, err)
		return
	}
	diagf("session %s: periodic snapshot at frame %d", r.sessionID, r.seq)
}

func (r *Runner) restore(from string) {
	if r.grid == nil {
		return
	}
	g, err := depth.RestoreVoxelGrid(r.cfg.Sink, from)
	switch {
	case err != nil:
		opsf("session %s: restore voxels from %s: %v", r.sessionID, from, err)
	case g == nil:
		diagf("session %s: no voxel snapshot for %s", r.sessionID, from)
	case g.Dims != r.dims:
		opsf("session %s: snapshot of %s is %v, want %v; starting empty", r.sessionID, from, g.Dims, r.dims)
	default:
		*r.grid = *g
		diagf("session %s: restored %v voxels from %s", r.sessionID, g.Dims, from)
	}
}

func (r *Runner) finish() error {
	var errs []error
	if r.cfg.Sink != nil {
		if r.grid != nil && len(r.grid.Cells) > 0 {
			if err := r.grid.Persist(r.cfg.Sink, r.sessionID, "shutdown"); err != nil {
				errs = append(errs, fmt.Errorf("shutdown snapshot: %w", err))
			}
		}
		if err := r.cfg.Sink.EndSession(r.sessionID, r.clock.Now(), r.seq); err != nil {
			errs = append(errs, fmt.Errorf("end session: %w", err))
		}
	}
	if p := r.cfg.Plotter; p != nil && p.IsEnabled() {
		files, err := p.GeneratePlots()
		if err != nil {
			errs = append(errs, fmt.Errorf("generate plots: %w", err))
		} else if len(files) > 0 {
			diagf("session %s: wrote %d plots to %s", r.sessionID, len(files), p.OutputDir())
		}
		p.Stop()
	}
	opsf("session %s finished after %d frames", r.sessionID, r.seq)
	return errors.Join(errs...)
}
