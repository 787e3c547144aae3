package source

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/banshee-data/depthmesh/internal/monitoring"
)

// ErrNoDevice is returned when no registered device matches.
var ErrNoDevice = errors.New("no depth device")

// DeviceInfo describes an attached depth camera.
type DeviceInfo struct {
	Name         string `json:"name"`
	Serial       string `json:"serial"`
	Firmware     string `json:"firmware"`
	PhysicalPort string `json:"physical_port"`
	ProductID    string `json:"product_id"`
	USBType      string `json:"usb_type"`
	ProductLine  string `json:"product_line"`
}

// Opener creates a fresh source for a device.
type Opener func() (depth.PointSource, error)

type registration struct {
	info DeviceInfo
	open Opener
}

// Registry maps device serials to openers. The zero value is not usable;
// call NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	devices []registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a device. Serials must be unique and non-empty.
func (r *Registry) Register(info DeviceInfo, open Opener) error {
	if info.Serial == "" {
		return fmt.Errorf("register device %q: empty serial", info.Name)
	}
	if open == nil {
		return fmt.Errorf("register device %s: nil opener", info.Serial)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.info.Serial == info.Serial {
			return fmt.Errorf("register device %s: serial already registered", info.Serial)
		}
	}
	r.devices = append(r.devices, registration{info: info, open: open})
	return nil
}

// Devices lists registered devices in registration order.
func (r *Registry) Devices() []DeviceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DeviceInfo, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.info
	}
	return out
}

// Open opens the device with the given serial, or the first registered
// device when serial is empty.
func (r *Registry) Open(serial string) (depth.PointSource, DeviceInfo, error) {
	r.mu.RLock()
	var found *registration
	for i := range r.devices {
		if serial == "" || r.devices[i].info.Serial == serial {
			found = &r.devices[i]
			break
		}
	}
	var reg registration
	if found != nil {
		reg = *found
	}
	r.mu.RUnlock()

	if found == nil {
		if serial == "" {
			return nil, DeviceInfo{}, ErrNoDevice
		}
		return nil, DeviceInfo{}, fmt.Errorf("%w with serial %s", ErrNoDevice, serial)
	}
	src, err := reg.open()
	if err != nil {
		return nil, reg.info, fmt.Errorf("open device %s: %w", reg.info.Serial, err)
	}
	monitoring.Logf("opened depth device %s (%s)", reg.info.Serial, reg.info.Name)
	return src, reg.info, nil
}

// RegisterSynthetic registers a synthetic camera under serial.
func RegisterSynthetic(r *Registry, serial string, cfg SyntheticConfig) error {
	in := cfg.Intrinsics
	return r.Register(DeviceInfo{
		Name:         "Synthetic Depth Camera",
		Serial:       serial,
		Firmware:     "sim",
		PhysicalPort: "none",
		ProductID:    fmt.Sprintf("%dx%d", in.Width, in.Height),
		USBType:      "none",
		ProductLine:  "synthetic",
	}, func() (depth.PointSource, error) {
		src, err := NewSyntheticSource(cfg)
		if err != nil {
			return nil, err
		}
		return src, nil
	})
}
