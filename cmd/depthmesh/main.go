package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/depthmesh/internal/config"
	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/depth/monitor"
	"github.com/banshee-data/depthmesh/internal/depth/pipeline"
	"github.com/banshee-data/depthmesh/internal/depth/source"
	"github.com/banshee-data/depthmesh/internal/depth/storage/sqlite"
	"github.com/banshee-data/depthmesh/internal/fsutil"
	"github.com/banshee-data/depthmesh/internal/monitoring"
	"github.com/banshee-data/depthmesh/internal/version"
)

const syntheticSerial = "SIM-0001"

var (
	configPath  = flag.String("config", "", "Tuning config JSON (default: "+config.DefaultConfigPath+" if present)")
	listen      = flag.String("listen", ":8090", "Monitor listen address")
	dbPath      = flag.String("db", "", "SQLite database for sessions, frame stats and voxel snapshots (empty disables)")
	mode        = flag.String("mode", "", "Override the tuning mode: points or mesh")
	normals     = flag.Bool("normals", true, "Override the tuning with_normals setting")
	wait        = flag.Bool("wait", true, "Override the tuning wait_for_frames setting")
	width       = flag.Int("width", 160, "Synthetic camera width in pixels")
	height      = flag.Int("height", 120, "Synthetic camera height in pixels")
	hfov        = flag.Float64("hfov", 70, "Synthetic camera horizontal field of view in degrees")
	fps         = flag.Int("fps", 30, "Synthetic camera frame rate")
	plotDir     = flag.String("plots", "", "Write occupancy plots for the session under this directory")
	logInterval = flag.Duration("log-interval", 10*time.Second, "Interval between frame rate log lines (0 disables)")
	restore     = flag.String("restore", "", "Seed the voxel grid from the last snapshot of this session id")
	duration    = flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	diagLog     = flag.Bool("diag", false, "Log diagnostic streams as well as operational ones")
	debugLog    = flag.String("debug-log", "", "Write every depth log stream, including per-frame traces, to this file")
	listDevices = flag.Bool("list-devices", false, "Print the available devices as JSON and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		log.Fatalf("depthmesh: %v", err)
	}
}

// loadTuning reads the config file, falling back to the checked-in defaults
// and then to built-in defaults, and applies explicitly set flags on top.
func loadTuning(path string) (*config.TuningConfig, error) {
	var cfg *config.TuningConfig
	switch {
	case path != "":
		c, err := config.LoadTuningConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = c
	default:
		if _, err := os.Stat(config.DefaultConfigPath); err == nil {
			c, err := config.LoadTuningConfig(config.DefaultConfigPath)
			if err != nil {
				return nil, err
			}
			cfg = c
		} else {
			cfg = config.EmptyTuningConfig()
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			if *mode != "" {
				m := *mode
				cfg.Mode = &m
			}
		case "normals":
			n := *normals
			cfg.WithNormals = &n
		case "wait":
			w := *wait
			cfg.WaitForFrames = &w
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configureLogging routes the depth and pipeline streams. Operational
// messages always go through monitoring.Logf; diag joins them with -diag;
// -debug-log sends every stream to a file instead.
func configureLogging() (io.Closer, error) {
	if *debugLog != "" {
		f, err := os.OpenFile(*debugLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		depth.SetLegacyLogger(f)
		pipeline.SetLegacyLogger(f)
		return f, nil
	}
	var diag io.Writer
	if *diagLog {
		diag = monitoring.Writer()
	}
	depth.SetLogWriters(monitoring.Writer(), diag, nil)
	pipeline.SetLogWriters(monitoring.Writer(), diag, nil)
	return nil, nil
}

func newRegistry() (*source.Registry, error) {
	if *fps <= 0 {
		return nil, fmt.Errorf("fps must be positive, got %d", *fps)
	}
	syn := source.DefaultSyntheticConfig()
	syn.Intrinsics = source.IntrinsicsForFOV(*width, *height, *hfov)
	syn.Interval = time.Second / time.Duration(*fps)
	if err := syn.Intrinsics.Validate(); err != nil {
		return nil, err
	}
	reg := source.NewRegistry()
	if err := source.RegisterSynthetic(reg, syntheticSerial, syn); err != nil {
		return nil, err
	}
	return reg, nil
}

func run(ctx context.Context, out io.Writer) error {
	tuning, err := loadTuning(*configPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	closer, err := configureLogging()
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	reg, err := newRegistry()
	if err != nil {
		return err
	}
	if *listDevices {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reg.Devices())
	}

	src, device, err := reg.Open(syntheticSerial)
	if err != nil {
		return err
	}
	session := depth.NewSession(src)
	defer session.Close()

	var store *sqlite.Store
	if *dbPath != "" {
		store, err = sqlite.Open(*dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer store.Close()
	}

	var plotter *monitor.VoxelPlotter
	if *plotDir != "" {
		if err := os.MkdirAll(*plotDir, 0o755); err != nil {
			return fmt.Errorf("create plot dir: %w", err)
		}
		plotter = monitor.NewVoxelPlotter(fsutil.OSFileSystem{}, *plotDir)
		// Track the centre column of the grid.
		dims := tuning.GetVoxelDims()
		for y := 0; y < dims[1]; y += max(dims[1]/4, 1) {
			plotter.Track(dims[0]/2, y, dims[2]/2)
		}
	}

	stats := monitor.NewFrameStats(300, nil)
	view := &monitor.VoxelView{}

	pcfg := pipeline.Config{
		Stages:      session,
		SessionID:   session.ID,
		Device:      device,
		Width:       *width,
		Height:      *height,
		Tuning:      tuning,
		Stats:       stats,
		Voxels:      view,
		Plotter:     plotter,
		RestoreFrom: *restore,
		LogInterval: *logInterval,
	}
	wcfg := monitor.WebServerConfig{
		Address:   *listen,
		Stats:     stats,
		Voxels:    view,
		Plotter:   plotter,
		SessionID: session.ID,
		Device:    &device,
	}
	if store != nil {
		pcfg.Sink = store
		wcfg.History = store
		wcfg.AdminRoutes = store.AttachAdminRoutes
	}

	runner, err := pipeline.NewRunner(pcfg)
	if err != nil {
		return err
	}
	ws, err := monitor.NewWebServer(wcfg)
	if err != nil {
		return err
	}

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var runErr, webErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		// The web server stops with the pipeline.
		defer cancel()
		runErr = runner.Run(ctx)
		monitoring.Logf("pipeline routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if webErr = ws.Start(ctx); webErr != nil {
			cancel()
		}
	}()

	monitoring.Logf("%s: session %s on %s", version.String(), session.ID, device.Serial)
	wg.Wait()
	return errors.Join(runErr, webErr)
}
