package pipeline

import (
	"context"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/depth/storage/sqlite"
)

// AcquireStage pulls the next frame and turns it into mesh buffers.
type AcquireStage interface {
	Grab(ctx context.Context, opts depth.FrameOptions) (depth.Mesh, bool, error)
	// Accel is the most recent accelerometer sample, used for calibration.
	Accel() depth.AccelSample
	LastFrameTime() time.Time
}

// MeshStage exposes the buffers the acquire stage wrote into.
type MeshStage interface {
	Mesh() depth.Mesh
	Arena() *depth.Arena
}

// VoxelStage accumulates the current buffers into a grid.
type VoxelStage interface {
	Voxels(g *depth.VoxelGrid, p depth.VoxelParams) (int, error)
}

// Stages is everything the runner needs from a session.
type Stages interface {
	AcquireStage
	MeshStage
	VoxelStage
}

var _ Stages = (*depth.Session)(nil)

// SnapshotSink persists the session record, per-frame statistics and voxel
// snapshots. Implemented by storage/sqlite.Store.
type SnapshotSink interface {
	depth.SnapshotStore
	StartSession(r sqlite.SessionRecord) error
	EndSession(sessionID string, endedAt time.Time, frames uint64) error
	RecordFrameStats(sessionID string, r depth.FrameRecord) error
}

var _ SnapshotSink = (*sqlite.Store)(nil)
