// Package config loads the JSON tuning file that configures the depth
// pipeline: mesh builder, voxel accumulator, acquisition pacing, snapshot
// persistence and gravity calibration.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/fsutil"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

const maxFileSize = 1 << 20

// maxVoxelCells caps the grid size a tuning file may request.
const maxVoxelCells = 1 << 24

// TuningConfig is the tuning file schema. Every field is optional; the Get*
// methods fall back to the built-in default for fields left out, so partial
// files are safe. Matrices are 16 floats in column-major order.
type TuningConfig struct {
	// Mesh builder
	Mode        *string      `json:"mode,omitempty"` // "points" or "mesh"
	WithNormals *bool        `json:"with_normals,omitempty"`
	MaxArea     *float64     `json:"max_area,omitempty"`
	BoundsMin   *[3]float64  `json:"bounds_min,omitempty"`
	BoundsMax   *[3]float64  `json:"bounds_max,omitempty"`
	ModelMatrix *[16]float64 `json:"model_matrix,omitempty"`

	// Acquisition
	WaitForFrames *bool   `json:"wait_for_frames,omitempty"`
	FrameInterval *string `json:"frame_interval,omitempty"` // poll period when not waiting, e.g. "10ms"

	// Voxel accumulator
	VoxelDims      *[3]int      `json:"voxel_dims,omitempty"` // all zero disables voxels
	VoxelMatrix    *[16]float64 `json:"voxel_matrix,omitempty"`
	VoxelDecay     *float64     `json:"voxel_decay,omitempty"`
	VoxelIncrement *float64     `json:"voxel_increment,omitempty"`

	// Persistence
	SnapshotInterval *string `json:"snapshot_interval,omitempty"` // "0s" disables periodic snapshots

	// Gravity calibration
	CalibrationBlend      *float64    `json:"calibration_blend,omitempty"`
	CalibrationFrames     *int        `json:"calibration_frames,omitempty"` // 0 disables, -1 never stops
	CalibrationUpsideDown *bool       `json:"calibration_upside_down,omitempty"`
	CameraPosition        *[3]float64 `json:"camera_position,omitempty"`
	CameraRotationDeg     *float64    `json:"camera_rotation_deg,omitempty"`
}

// EmptyTuningConfig returns a config with every field unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads and validates a tuning file from disk.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	return LoadTuningConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadTuningConfigFS loads a tuning file from fs. The file must have a .json
// extension and be under 1 MB.
func LoadTuningConfigFS(fs fsutil.FileSystem, path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := fs.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := fs.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory
// or one of its parents. It panics when the file cannot be found and is meant
// for tests.
func MustLoadDefaultConfig() *TuningConfig {
	for _, prefix := range []string{"", "../", "../../", "../../../", "../../../../"} {
		if cfg, err := LoadTuningConfig(prefix + DefaultConfigPath); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// JSON encodes the config as stored with each session.
func (c *TuningConfig) JSON() string {
	b, err := json.Marshal(c)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Validate checks the values that are set.
func (c *TuningConfig) Validate() error {
	if c.Mode != nil {
		if _, ok := depth.ParseMode(*c.Mode); !ok {
			return fmt.Errorf("mode must be \"points\" or \"mesh\", got %q", *c.Mode)
		}
	}
	if c.MaxArea != nil && !(*c.MaxArea > 0) {
		return fmt.Errorf("max_area must be positive, got %g", *c.MaxArea)
	}
	lo, hi := c.GetBounds().Min, c.GetBounds().Max
	for i := 0; i < 3; i++ {
		if !(lo[i] < hi[i]) {
			return fmt.Errorf("bounds_min[%d] (%g) must be below bounds_max[%d] (%g)", i, lo[i], i, hi[i])
		}
	}
	if err := checkMatrix("model_matrix", c.ModelMatrix); err != nil {
		return err
	}
	if err := checkMatrix("voxel_matrix", c.VoxelMatrix); err != nil {
		return err
	}
	if err := checkDuration("frame_interval", c.FrameInterval); err != nil {
		return err
	}
	if err := checkDuration("snapshot_interval", c.SnapshotInterval); err != nil {
		return err
	}
	if c.VoxelDims != nil {
		d := *c.VoxelDims
		if d != [3]int{} {
			if d[0] <= 0 || d[1] <= 0 || d[2] <= 0 {
				return fmt.Errorf("voxel_dims must be positive or all zero, got %v", d)
			}
			if n := d[0] * d[1] * d[2]; n > maxVoxelCells {
				return fmt.Errorf("voxel_dims %v need %d cells (max %d)", d, n, maxVoxelCells)
			}
		}
	}
	if c.VoxelDecay != nil && (*c.VoxelDecay < 0 || *c.VoxelDecay > 1) {
		return fmt.Errorf("voxel_decay must be between 0 and 1, got %g", *c.VoxelDecay)
	}
	if c.CalibrationBlend != nil && (*c.CalibrationBlend <= 0 || *c.CalibrationBlend > 1) {
		return fmt.Errorf("calibration_blend must be in (0, 1], got %g", *c.CalibrationBlend)
	}
	if c.CalibrationFrames != nil && *c.CalibrationFrames < -1 {
		return fmt.Errorf("calibration_frames must be -1 or more, got %d", *c.CalibrationFrames)
	}
	return nil
}

func checkMatrix(name string, m *[16]float64) error {
	if m == nil {
		return nil
	}
	for i, v := range m {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s[%d] is not finite", name, i)
		}
	}
	return nil
}

func checkDuration(name string, s *string) error {
	if s == nil || *s == "" {
		return nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return fmt.Errorf("invalid %s '%s': %w", name, *s, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", name, *s)
	}
	return nil
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func toMat4(m *[16]float64, def mgl32.Mat4) mgl32.Mat4 {
	if m == nil {
		return def
	}
	var out mgl32.Mat4
	for i, v := range m {
		out[i] = float32(v)
	}
	return out
}

func toVec3(v [3]float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// GetMode returns the output mode (default mesh).
func (c *TuningConfig) GetMode() depth.Mode {
	if c.Mode == nil {
		return depth.ModeMesh
	}
	m, ok := depth.ParseMode(*c.Mode)
	if !ok {
		return depth.ModeMesh
	}
	return m
}

// GetWithNormals returns with_normals (default true).
func (c *TuningConfig) GetWithNormals() bool {
	if c.WithNormals == nil {
		return true
	}
	return *c.WithNormals
}

// GetMaxArea returns max_area (default depth.DefaultMaxArea).
func (c *TuningConfig) GetMaxArea() float32 {
	if c.MaxArea == nil {
		return depth.DefaultMaxArea
	}
	return float32(*c.MaxArea)
}

// GetBounds returns the bounding box, each side falling back to ±10.
func (c *TuningConfig) GetBounds() depth.BoundingBox {
	b := depth.DefaultBoundingBox()
	if c.BoundsMin != nil {
		b.Min = toVec3(*c.BoundsMin)
	}
	if c.BoundsMax != nil {
		b.Max = toVec3(*c.BoundsMax)
	}
	return b
}

// GetModelMatrix returns the camera model matrix (default identity).
func (c *TuningConfig) GetModelMatrix() mgl32.Mat4 {
	return toMat4(c.ModelMatrix, mgl32.Ident4())
}

// GetWaitForFrames returns wait_for_frames (default true).
func (c *TuningConfig) GetWaitForFrames() bool {
	if c.WaitForFrames == nil {
		return true
	}
	return *c.WaitForFrames
}

// GetFrameInterval returns the poll period used when not waiting (default 10ms).
func (c *TuningConfig) GetFrameInterval() time.Duration {
	return parseDuration(c.FrameInterval, 10*time.Millisecond)
}

// DefaultVoxelDims is the grid size used when voxel_dims is not set.
var DefaultVoxelDims = [3]int{64, 64, 64}

// GetVoxelDims returns voxel_dims. All zero means voxels are disabled.
func (c *TuningConfig) GetVoxelDims() [3]int {
	if c.VoxelDims == nil {
		return DefaultVoxelDims
	}
	return *c.VoxelDims
}

// GetVoxelParams returns the accumulator inputs. The default transform maps
// the cube [-4, 4]^3 onto the grid.
func (c *TuningConfig) GetVoxelParams() depth.VoxelParams {
	p := depth.VoxelParams{
		Transform: toMat4(c.VoxelMatrix, mgl32.Scale3D(0.125, 0.125, 0.125).Mul4(mgl32.Translate3D(4, 4, 4))),
		Decay:     0.95,
		Increment: 1,
	}
	if c.VoxelDecay != nil {
		p.Decay = float32(*c.VoxelDecay)
	}
	if c.VoxelIncrement != nil {
		p.Increment = float32(*c.VoxelIncrement)
	}
	return p
}

// GetSnapshotInterval returns how often the voxel grid is persisted
// (default 30s, zero disables).
func (c *TuningConfig) GetSnapshotInterval() time.Duration {
	return parseDuration(c.SnapshotInterval, 30*time.Second)
}

// GetCalibrationBlend returns calibration_blend (default 0.2).
func (c *TuningConfig) GetCalibrationBlend() float32 {
	if c.CalibrationBlend == nil {
		return 0.2
	}
	return float32(*c.CalibrationBlend)
}

// GetCalibrationFrames returns how many frames update the calibration
// (default 0, disabled; -1 keeps calibrating).
func (c *TuningConfig) GetCalibrationFrames() int {
	if c.CalibrationFrames == nil {
		return 0
	}
	return *c.CalibrationFrames
}

// GetCalibrationUpsideDown returns calibration_upside_down (default false).
func (c *TuningConfig) GetCalibrationUpsideDown() bool {
	return c.CalibrationUpsideDown != nil && *c.CalibrationUpsideDown
}

// GetCameraPosition returns the camera position used by calibration.
func (c *TuningConfig) GetCameraPosition() mgl32.Vec3 {
	if c.CameraPosition == nil {
		return mgl32.Vec3{}
	}
	return toVec3(*c.CameraPosition)
}

// GetCameraRotation returns the camera yaw in radians.
func (c *TuningConfig) GetCameraRotation() float32 {
	if c.CameraRotationDeg == nil {
		return 0
	}
	return float32(*c.CameraRotationDeg * math.Pi / 180)
}
