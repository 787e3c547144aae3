package monitor

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/monitoring"
	"github.com/banshee-data/depthmesh/internal/timeutil"
)

// StatsSnapshot is the rate summary of one logging interval.
type StatsSnapshot struct {
	FramesPerSec    float64   `json:"frames_per_sec"`
	IndicesPerSec   float64   `json:"indices_per_sec"`
	TrianglesPerSec float64   `json:"triangles_per_sec"`
	AvgFrameMillis  float64   `json:"avg_frame_ms"`
	Skipped         int64     `json:"skipped"`
	Errors          int64     `json:"errors"`
	Timestamp       time.Time `json:"timestamp"`
}

// Counters are the totals accumulated since the last reset.
type Counters struct {
	Frames    int64
	Indices   int64
	Triangles int64
	Skipped   int64 // polls that found no frame
	Errors    int64
	Busy      time.Duration
}

// FrameStats tracks per-frame counters and keeps the most recent frame
// records in a fixed-size window. It is safe for concurrent use.
type FrameStats struct {
	mu    sync.Mutex
	clock timeutil.Clock

	counters  Counters
	lastReset time.Time
	startTime time.Time

	window []depth.FrameRecord
	next   int
	filled bool

	latestSnapshot *StatsSnapshot
}

// NewFrameStats keeps the last window frame records. A nil clock uses the
// real clock.
func NewFrameStats(window int, clock timeutil.Clock) *FrameStats {
	if window < 1 {
		window = 1
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	now := clock.Now()
	return &FrameStats{
		clock:     clock,
		lastReset: now,
		startTime: now,
		window:    make([]depth.FrameRecord, window),
	}
}

// AddFrame records a processed frame.
func (fs *FrameStats) AddFrame(r depth.FrameRecord) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.counters.Frames++
	fs.counters.Indices += int64(r.Count)
	fs.counters.Triangles += int64(r.Triangles)
	fs.counters.Busy += r.Duration

	fs.window[fs.next] = r
	fs.next++
	if fs.next == len(fs.window) {
		fs.next = 0
		fs.filled = true
	}
}

// AddSkipped counts a poll that found no frame.
func (fs *FrameStats) AddSkipped() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.counters.Skipped++
}

// AddError counts a failed acquisition.
func (fs *FrameStats) AddError() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.counters.Errors++
}

// GetAndReset returns the counters and the time they cover, then zeroes them.
// The frame window is not affected.
func (fs *FrameStats) GetAndReset() (Counters, time.Duration) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	now := fs.clock.Now()
	c, d := fs.counters, now.Sub(fs.lastReset)
	fs.counters = Counters{}
	fs.lastReset = now
	return c, d
}

// Recent returns the frame window oldest first.
func (fs *FrameStats) Recent() []depth.FrameRecord {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.filled {
		return append([]depth.FrameRecord(nil), fs.window[:fs.next]...)
	}
	out := make([]depth.FrameRecord, 0, len(fs.window))
	out = append(out, fs.window[fs.next:]...)
	return append(out, fs.window[:fs.next]...)
}

// Latest returns the most recent frame record.
func (fs *FrameStats) Latest() (depth.FrameRecord, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.filled && fs.next == 0 {
		return depth.FrameRecord{}, false
	}
	i := fs.next - 1
	if i < 0 {
		i = len(fs.window) - 1
	}
	return fs.window[i], true
}

// LogStats logs the rates since the last call and keeps them as the latest
// snapshot. Nothing is logged for an idle interval.
func (fs *FrameStats) LogStats() {
	c, d := fs.GetAndReset()
	if c.Frames == 0 && c.Skipped == 0 && c.Errors == 0 {
		return
	}
	secs := d.Seconds()
	if secs <= 0 {
		return
	}
	snap := &StatsSnapshot{
		FramesPerSec:    float64(c.Frames) / secs,
		IndicesPerSec:   float64(c.Indices) / secs,
		TrianglesPerSec: float64(c.Triangles) / secs,
		Skipped:         c.Skipped,
		Errors:          c.Errors,
		Timestamp:       fs.clock.Now(),
	}
	if c.Frames > 0 {
		snap.AvgFrameMillis = float64(c.Busy.Microseconds()) / 1000 / float64(c.Frames)
	}

	fs.mu.Lock()
	fs.latestSnapshot = snap
	fs.mu.Unlock()

	msg := fmt.Sprintf("Depth stats (/sec): %.1f frames, %s indices, %s triangles, %.2f ms/frame",
		snap.FramesPerSec, FormatWithCommas(int64(snap.IndicesPerSec)), FormatWithCommas(int64(snap.TrianglesPerSec)), snap.AvgFrameMillis)
	if c.Skipped > 0 {
		msg += fmt.Sprintf(", %d empty polls", c.Skipped)
	}
	if c.Errors > 0 {
		msg += fmt.Sprintf(", %d errors", c.Errors)
	}
	monitoring.Logf("%s", msg)
}

// GetLatestSnapshot returns a copy of the last logged snapshot, or nil.
func (fs *FrameStats) GetLatestSnapshot() *StatsSnapshot {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.latestSnapshot == nil {
		return nil
	}
	snap := *fs.latestSnapshot
	return &snap
}

// GetUptime returns the time since the stats were created.
func (fs *FrameStats) GetUptime() time.Duration {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.clock.Now().Sub(fs.startTime)
}

// FormatWithCommas formats n with thousands separators.
func FormatWithCommas(n int64) string {
	s := strconv.FormatInt(n, 10)
	sign := ""
	if n < 0 {
		sign, s = "-", s[1:]
	}
	if len(s) <= 3 {
		return sign + s
	}
	out := make([]byte, 0, len(s)+len(s)/3)
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return sign + string(out)
}
