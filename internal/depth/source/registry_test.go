package source

import (
	"errors"
	"testing"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndOpen(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	_, _, err := r.Open("")
	assert.ErrorIs(t, err, ErrNoDevice)

	require.NoError(t, RegisterSynthetic(r, "SIM-0001", DefaultSyntheticConfig()))
	ch := NewChannelSource(1)
	require.NoError(t, r.Register(DeviceInfo{Name: "Replay", Serial: "REPLAY-1"}, func() (depth.PointSource, error) {
		return ch, nil
	}))

	devs := r.Devices()
	require.Len(t, devs, 2)
	assert.Equal(t, "SIM-0001", devs[0].Serial)
	assert.Equal(t, "synthetic", devs[0].ProductLine)
	assert.Equal(t, "160x120", devs[0].ProductID)

	src, info, err := r.Open("")
	require.NoError(t, err)
	assert.Equal(t, "SIM-0001", info.Serial, "empty serial opens the first device")
	assert.IsType(t, &SyntheticSource{}, src)

	src, info, err = r.Open("REPLAY-1")
	require.NoError(t, err)
	assert.Equal(t, "Replay", info.Name)
	assert.Same(t, ch, src)
}

func TestRegistry_Errors(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	open := func() (depth.PointSource, error) { return NewChannelSource(0), nil }

	assert.Error(t, r.Register(DeviceInfo{Name: "no serial"}, open))
	assert.Error(t, r.Register(DeviceInfo{Serial: "A"}, nil))
	require.NoError(t, r.Register(DeviceInfo{Serial: "A"}, open))
	assert.Error(t, r.Register(DeviceInfo{Serial: "A"}, open), "duplicate serial")

	_, _, err := r.Open("B")
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Contains(t, err.Error(), "B")

	boom := errors.New("usb busy")
	require.NoError(t, r.Register(DeviceInfo{Serial: "C"}, func() (depth.PointSource, error) { return nil, boom }))
	_, info, err := r.Open("C")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "C", info.Serial)
}
