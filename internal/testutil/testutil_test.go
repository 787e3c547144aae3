package testutil

import (
	"net/http"
	"testing"
	"time"

	"github.com/banshee-data/depthmesh/internal/monitoring"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
)

func TestPlaneFrame(t *testing.T) {
	at := time.Unix(5, 0)
	f := PlaneFrame(3, 2, 0.5, 2, at)
	assert.Equal(t, 6, f.NumPoints())
	assert.Len(t, f.Points, 6)
	assert.Equal(t, mgl32.Vec3{1, 0.5, 2}, f.Points[5])
	assert.Equal(t, at, f.Timestamp)
	assert.Nil(t, f.Accel)
}

func TestGetJSON(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
	})
	var got map[string]string
	GetJSON(t, h, "/api/status", http.StatusOK, &got)
	assert.Equal(t, "/api/status", got["path"])
	assert.Equal(t, http.StatusOK, Get(h, "/").Code)
}

func TestCaptureLogs(t *testing.T) {
	c := CaptureLogs(t)
	monitoring.Logf("frame %d", 7)
	assert.Equal(t, []string{"frame 7"}, c.Lines())
}
