// Package testutil provides fixtures and HTTP helpers shared by the tests of
// the depth subpackages.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/monitoring"
	"github.com/go-gl/mathgl/mgl32"
)

// PlaneFrame returns a w×h frame of a flat grid facing the camera at depth z,
// with points spacing apart, in sensor coordinates.
func PlaneFrame(w, h int, spacing, z float32, at time.Time) *depth.Frame {
	pts := make([]mgl32.Vec3, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			pts[y*w+x] = mgl32.Vec3{float32(x) * spacing, float32(y) * spacing, z}
		}
	}
	return &depth.Frame{Points: pts, Width: w, Height: h, Timestamp: at}
}

// Get serves a GET request for path and returns the recorder.
func Get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// GetJSON serves a GET request, requires status want and decodes the body
// into v.
func GetJSON(t *testing.T, h http.Handler, path string, want int, v interface{}) {
	t.Helper()
	rec := Get(h, path)
	if rec.Code != want {
		t.Fatalf("GET %s: status = %d, want %d; body %s", path, rec.Code, want, rec.Body.String())
	}
	if v == nil {
		return
	}
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: decode: %v", path, err)
	}
}

// LogCapture records monitoring.Logf output.
type LogCapture struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns the captured messages.
func (c *LogCapture) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// CaptureLogs redirects monitoring.Logf for the rest of the test. Tests that
// use it must not run in parallel.
func CaptureLogs(t *testing.T) *LogCapture {
	t.Helper()
	c := &LogCapture{}
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.lines = append(c.lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return c
}
