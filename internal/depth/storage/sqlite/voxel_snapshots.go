package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/depthmesh/internal/depth"
)

var _ depth.SnapshotStore = (*Store)(nil)

// InsertVoxelSnapshot persists a snapshot. The owning session must exist.
func (s *Store) InsertVoxelSnapshot(v *depth.VoxelSnapshot) error {
	if v == nil {
		return nil
	}
	_, err := s.db.Exec(`INSERT INTO voxel_snapshots
		(snapshot_id, session_id, taken_unix_nanos, dim_x, dim_y, dim_z, cells_blob, occupied, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.SnapshotID, v.SessionID, v.TakenUnixNanos, v.DimX, v.DimY, v.DimZ, v.CellsBlob, v.Occupied, v.Reason)
	if err != nil {
		return fmt.Errorf("insert voxel snapshot %s: %w", v.SnapshotID, err)
	}
	return nil
}

// GetLatestVoxelSnapshot returns the newest snapshot of a session, or
// (nil, nil) when it has none.
func (s *Store) GetLatestVoxelSnapshot(sessionID string) (*depth.VoxelSnapshot, error) {
	v := &depth.VoxelSnapshot{}
	err := s.db.QueryRow(`SELECT snapshot_id, session_id, taken_unix_nanos, dim_x, dim_y, dim_z, cells_blob, occupied, reason
		FROM voxel_snapshots WHERE session_id = ?
		ORDER BY taken_unix_nanos DESC, rowid DESC LIMIT 1`, sessionID).
		Scan(&v.SnapshotID, &v.SessionID, &v.TakenUnixNanos, &v.DimX, &v.DimY, &v.DimZ, &v.CellsBlob, &v.Occupied, &v.Reason)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest voxel snapshot of %s: %w", sessionID, err)
	}
	return v, nil
}

// CountVoxelSnapshots returns how many snapshots a session has.
func (s *Store) CountVoxelSnapshots(sessionID string) (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM voxel_snapshots WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count voxel snapshots: %w", err)
	}
	return n, nil
}
