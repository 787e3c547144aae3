package monitor

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/depth/source"
	"github.com/banshee-data/depthmesh/internal/depth/storage/sqlite"
	"github.com/banshee-data/depthmesh/internal/httputil"
	"github.com/banshee-data/depthmesh/internal/monitoring"
	"github.com/banshee-data/depthmesh/internal/security"
	"github.com/banshee-data/depthmesh/internal/version"
)

// History is the persisted record of sessions and frames. *sqlite.Store
// implements it.
type History interface {
	ListSessions(limit int) ([]sqlite.SessionRecord, error)
	RecentFrameStats(sessionID string, limit int) ([]depth.FrameRecord, error)
}

// WebServer serves status, history and debug pages for one running session.
type WebServer struct {
	address   string
	stats     *FrameStats
	voxels    *VoxelView
	history   History
	plotter   *VoxelPlotter
	sessionID string
	device    *source.DeviceInfo
	server    *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address string
	Stats   *FrameStats
	Voxels  *VoxelView
	// History is optional; without it /api/frames serves the in-memory window.
	History History
	// Plotter is optional; its root is served under /debug/plots/.
	Plotter   *VoxelPlotter
	SessionID string
	Device    *source.DeviceInfo
	// AdminRoutes registers extra debug routes, such as the database admin
	// pages of the sqlite store.
	AdminRoutes func(*http.ServeMux) error
}

// NewWebServer builds the server and its routes.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address:   config.Address,
		stats:     config.Stats,
		voxels:    config.Voxels,
		history:   config.History,
		plotter:   config.Plotter,
		sessionID: config.SessionID,
		device:    config.Device,
	}
	mux := ws.setupRoutes()
	if config.AdminRoutes != nil {
		if err := config.AdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("attach admin routes: %w", err)
		}
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws, nil
}

// Handler exposes the routes for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Addr returns the bound address once Start is listening.
func (ws *WebServer) Addr() net.Addr {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.addr
}

// Start serves until ctx is cancelled, then shuts down. It returns early
// with an error if the listener cannot be opened.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", ws.address, err)
	}
	ws.mu.Lock()
	ws.addr = ln.Addr()
	ws.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("Starting HTTP server on %s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ws.handleIndex)
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/sessions", ws.handleSessions)
	mux.HandleFunc("/api/frames", ws.handleFrames)
	mux.HandleFunc("/api/plots", ws.handlePlots)
	mux.HandleFunc("/debug/plots/", ws.handlePlotFile)
	mux.HandleFunc("/debug/charts/frames", ws.handleFramesChart)
	mux.HandleFunc("/debug/charts/voxels", ws.handleVoxelSliceChart)
	return mux
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"status":    "ok",
		"service":   "depthmesh",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type voxelStatus struct {
	Dims    [3]int             `json:"dims"`
	Summary depth.VoxelSummary `json:"summary"`
	Updated time.Time          `json:"updated"`
}

type statusResponse struct {
	Service       string             `json:"service"`
	Version       string             `json:"version"`
	GitSHA        string             `json:"git_sha"`
	SessionID     string             `json:"session_id"`
	Device        *source.DeviceInfo `json:"device,omitempty"`
	UptimeSeconds float64            `json:"uptime_seconds"`
	Stats         *StatsSnapshot     `json:"stats,omitempty"`
	LastFrame     *depth.FrameRecord `json:"last_frame,omitempty"`
	Voxels        *voxelStatus       `json:"voxels,omitempty"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{
		Service:   "depthmesh",
		Version:   version.Version,
		GitSHA:    version.GitSHA,
		SessionID: ws.sessionID,
		Device:    ws.device,
	}
	if ws.stats != nil {
		resp.UptimeSeconds = ws.stats.GetUptime().Seconds()
		resp.Stats = ws.stats.GetLatestSnapshot()
		if last, ok := ws.stats.Latest(); ok {
			resp.LastFrame = &last
		}
	}
	if ws.voxels != nil {
		if dims := ws.voxels.Dims(); dims != [3]int{} {
			sum, at := ws.voxels.Summary()
			resp.Voxels = &voxelStatus{Dims: dims, Summary: sum, Updated: at}
		}
	}
	httputil.WriteJSONOK(w, resp)
}

// handleSessions lists recent sessions, newest first.
// Query params:
//
//	limit (optional, default 10, max 100)
func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.history == nil {
		httputil.NotFound(w, "no database configured")
		return
	}
	sessions, err := ws.history.ListSessions(httputil.QueryInt(r, "limit", 10, 1, 100))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("list sessions: %v", err))
		return
	}
	if sessions == nil {
		sessions = []sqlite.SessionRecord{}
	}
	httputil.WriteJSONOK(w, sessions)
}

// handleFrames returns recent frame records in ascending order.
// Query params:
//
//	session_id (optional, defaults to the running session)
//	limit (optional, default 100, max 5000)
func (ws *WebServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit := httputil.QueryInt(r, "limit", 100, 1, 5000)
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = ws.sessionID
	}

	var frames []depth.FrameRecord
	switch {
	case ws.history != nil:
		var err error
		frames, err = ws.history.RecentFrameStats(sessionID, limit)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("recent frames: %v", err))
			return
		}
	case ws.stats != nil && sessionID == ws.sessionID:
		frames = ws.stats.Recent()
		if len(frames) > limit {
			frames = frames[len(frames)-limit:]
		}
	default:
		httputil.NotFound(w, "no frame history for session")
		return
	}
	if frames == nil {
		frames = []depth.FrameRecord{}
	}
	httputil.WriteJSONOK(w, frames)
}

func (ws *WebServer) handlePlots(w http.ResponseWriter, r *http.Request) {
	if ws.plotter == nil {
		httputil.NotFound(w, "plotting disabled")
		return
	}
	root := ws.plotter.Root()
	files := []string{}
	for _, f := range ws.plotter.Written() {
		if rel, err := filepath.Rel(root, f); err == nil {
			files = append(files, "/debug/plots/"+filepath.ToSlash(rel))
		}
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"output_dir": ws.plotter.OutputDir(),
		"recording":  ws.plotter.IsEnabled(),
		"files":      files,
	})
}

// handlePlotFile serves a PNG from the plot root. Paths that resolve outside
// the root are rejected.
func (ws *WebServer) handlePlotFile(w http.ResponseWriter, r *http.Request) {
	if ws.plotter == nil {
		httputil.NotFound(w, "plotting disabled")
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/debug/plots/")
	if !strings.HasSuffix(name, ".png") {
		httputil.BadRequest(w, "only .png files are served")
		return
	}
	root := ws.plotter.Root()
	path := filepath.Join(root, filepath.FromSlash(name))
	if err := security.ValidatePathWithinDirectory(path, root); err != nil {
		httputil.WriteJSONError(w, http.StatusForbidden, "invalid plot path")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

func (ws *WebServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, indexHTML, html.EscapeString(ws.sessionID))
}

const indexHTML = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>depthmesh</title></head>
<body>
<h1>depthmesh</h1>
<p>session %s</p>
<ul>
<li><a href="/api/status">status</a></li>
<li><a href="/api/frames">recent frames</a></li>
<li><a href="/api/sessions">sessions</a></li>
<li><a href="/debug/charts/frames">frame chart</a></li>
<li><a href="/debug/charts/voxels">voxel slice</a></li>
<li><a href="/api/plots">plots</a></li>
</ul>
</body></html>
`
