package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
)

// SessionRecord is one row of depth_sessions.
type SessionRecord struct {
	SessionID    string     `json:"session_id"`
	DeviceSerial string     `json:"device_serial"`
	DeviceName   string     `json:"device_name"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	Mode         depth.Mode `json:"mode"`
	ConfigJSON   string     `json:"-"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"` // nil while the session is running
	Frames       uint64     `json:"frames"`
}

// StartSession inserts a running session.
func (s *Store) StartSession(r SessionRecord) error {
	if r.SessionID == "" {
		return errors.New("start session: empty session id")
	}
	if r.ConfigJSON == "" {
		r.ConfigJSON = "{}"
	}
	_, err := s.db.Exec(`INSERT INTO depth_sessions
		(session_id, device_serial, device_name, width, height, mode, config_json, started_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.DeviceSerial, r.DeviceName, r.Width, r.Height, r.Mode.String(), r.ConfigJSON, r.StartedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("start session %s: %w", r.SessionID, err)
	}
	return nil
}

// EndSession records the end time and final frame count of a session.
func (s *Store) EndSession(sessionID string, endedAt time.Time, frames uint64) error {
	res, err := s.db.Exec(`UPDATE depth_sessions SET ended_unix_nanos = ?, frames = ? WHERE session_id = ?`,
		endedAt.UnixNano(), int64(frames), sessionID)
	if err != nil {
		return fmt.Errorf("end session %s: %w", sessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end session %s: %w", sessionID, sql.ErrNoRows)
	}
	return nil
}

// GetSession loads one session. It returns (nil, nil) when it does not exist.
func (s *Store) GetSession(sessionID string) (*SessionRecord, error) {
	rows, err := s.querySessions(`WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// ListSessions returns the most recently started sessions first.
func (s *Store) ListSessions(limit int) ([]SessionRecord, error) {
	return s.querySessions(`ORDER BY started_unix_nanos DESC LIMIT ?`, limit)
}

func (s *Store) querySessions(where string, args ...interface{}) ([]SessionRecord, error) {
	rows, err := s.db.Query(`SELECT session_id, device_serial, device_name, width, height, mode,
		config_json, started_unix_nanos, ended_unix_nanos, frames FROM depth_sessions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			r       SessionRecord
			mode    string
			started int64
			ended   sql.NullInt64
			frames  int64
		)
		if err := rows.Scan(&r.SessionID, &r.DeviceSerial, &r.DeviceName, &r.Width, &r.Height, &mode,
			&r.ConfigJSON, &started, &ended, &frames); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.Mode, _ = depth.ParseMode(mode)
		r.StartedAt = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			r.EndedAt = &t
		}
		r.Frames = uint64(frames)
		out = append(out, r)
	}
	return out, rows.Err()
}
