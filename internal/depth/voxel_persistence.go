package depth

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VoxelSnapshot is the persisted form of a VoxelGrid.
type VoxelSnapshot struct {
	SnapshotID     string
	SessionID      string
	TakenUnixNanos int64
	DimX           int
	DimY           int
	DimZ           int
	CellsBlob      []byte // gob+gzip encoded []float32
	Occupied       int
	Reason         string // "periodic", "shutdown", "manual"
}

// SnapshotStore persists voxel snapshots. Implemented by storage/sqlite.Store.
type SnapshotStore interface {
	InsertVoxelSnapshot(s *VoxelSnapshot) error
	GetLatestVoxelSnapshot(sessionID string) (*VoxelSnapshot, error)
}

// serializeCells compresses the cells using gob encoding and gzip compression.
func serializeCells(cells []float32) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(cells); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeCells decompresses and decodes cells from a gob+gzip blob.
func deserializeCells(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty voxel blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var cells []float32
	if err := gob.NewDecoder(gz).Decode(&cells); err != nil {
		return nil, fmt.Errorf("failed to decode voxel cells: %w", err)
	}
	return cells, nil
}

// Snapshot copies and encodes the grid. It allocates and is meant for
// periodic or shutdown persistence, not the per-frame path.
func (g *VoxelGrid) Snapshot(sessionID, reason string) (*VoxelSnapshot, error) {
	blob, err := serializeCells(g.Cells)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize voxel grid: %w", err)
	}
	occupied := 0
	for _, c := range g.Cells {
		if float64(c) > OccupiedEpsilon {
			occupied++
		}
	}
	return &VoxelSnapshot{
		SnapshotID:     uuid.NewString(),
		SessionID:      sessionID,
		TakenUnixNanos: time.Now().UnixNano(),
		DimX:           g.Dims[0],
		DimY:           g.Dims[1],
		DimZ:           g.Dims[2],
		CellsBlob:      blob,
		Occupied:       occupied,
		Reason:         reason,
	}, nil
}

// Persist snapshots the grid and writes it through store.
func (g *VoxelGrid) Persist(store SnapshotStore, sessionID, reason string) error {
	if g == nil || store == nil {
		return nil
	}
	snap, err := g.Snapshot(sessionID, reason)
	if err != nil {
		return err
	}
	if err := store.InsertVoxelSnapshot(snap); err != nil {
		return fmt.Errorf("failed to persist voxel snapshot: %w", err)
	}
	diagf("persisted voxel snapshot %s (%s, %d occupied)", snap.SnapshotID, reason, snap.Occupied)
	return nil
}

// Restore decodes a snapshot into a new grid.
func (s *VoxelSnapshot) Restore() (*VoxelGrid, error) {
	cells, err := deserializeCells(s.CellsBlob)
	if err != nil {
		return nil, err
	}
	g := &VoxelGrid{Cells: cells, Dims: [3]int{s.DimX, s.DimY, s.DimZ}}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.SnapshotID, err)
	}
	return g, nil
}

// RestoreVoxelGrid loads the latest snapshot of a session. It returns
// (nil, nil) when the session has none.
func RestoreVoxelGrid(store SnapshotStore, sessionID string) (*VoxelGrid, error) {
	snap, err := store.GetLatestVoxelSnapshot(sessionID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	return snap.Restore()
}
