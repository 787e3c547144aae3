package sqlite

import (
	"fmt"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
)

// RecordFrameStats stores the summary of one processed frame.
func (s *Store) RecordFrameStats(sessionID string, r depth.FrameRecord) error {
	_, err := s.db.Exec(`INSERT INTO frame_stats
		(session_id, seq, taken_unix_nanos, width, height, mode, valid_indices, triangles,
		 voxels_touched, duration_micros, voxels_occupied, voxel_total, voxel_max)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(r.Seq), r.Timestamp.UnixNano(), r.Width, r.Height, r.Mode.String(), r.Count, r.Triangles,
		r.VoxelsTouched, r.Duration.Microseconds(), r.Voxels.Occupied, r.Voxels.Total, r.Voxels.Max)
	if err != nil {
		return fmt.Errorf("record frame %d of %s: %w", r.Seq, sessionID, err)
	}
	return nil
}

// RecentFrameStats returns up to limit of the newest frames of a session in
// ascending sequence order.
func (s *Store) RecentFrameStats(sessionID string, limit int) ([]depth.FrameRecord, error) {
	rows, err := s.db.Query(`SELECT seq, taken_unix_nanos, width, height, mode, valid_indices, triangles,
			voxels_touched, duration_micros, voxels_occupied, voxel_total, voxel_max
		FROM (SELECT * FROM frame_stats WHERE session_id = ? ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query frame stats: %w", err)
	}
	defer rows.Close()

	var out []depth.FrameRecord
	for rows.Next() {
		var (
			r      depth.FrameRecord
			seq    int64
			taken  int64
			mode   string
			micros int64
		)
		if err := rows.Scan(&seq, &taken, &r.Width, &r.Height, &mode, &r.Count, &r.Triangles,
			&r.VoxelsTouched, &micros, &r.Voxels.Occupied, &r.Voxels.Total, &r.Voxels.Max); err != nil {
			return nil, fmt.Errorf("scan frame stats: %w", err)
		}
		r.Seq = uint64(seq)
		r.Timestamp = time.Unix(0, taken)
		r.Mode, _ = depth.ParseMode(mode)
		r.Duration = time.Duration(micros) * time.Microsecond
		out = append(out, r)
	}
	return out, rows.Err()
}
