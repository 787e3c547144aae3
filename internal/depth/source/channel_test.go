package source

import (
	"context"
	"testing"
	"time"

	"github.com/banshee-data/depthmesh/internal/depth"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelSource_PollAndWait(t *testing.T) {
	t.Parallel()
	c := NewChannelSource(2)
	f1 := &depth.Frame{Width: 1}
	f2 := &depth.Frame{Width: 2}

	_, ok, err := c.PollForFrame()
	require.NoError(t, err)
	assert.False(t, ok)

	require.True(t, c.TryPush(f1))
	require.True(t, c.TryPush(f2))
	assert.False(t, c.TryPush(&depth.Frame{}), "queue is full")

	got, ok, err := c.PollForFrame()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, f1, got)

	got, err = c.WaitForFrame(context.Background())
	require.NoError(t, err)
	assert.Same(t, f2, got)
}

func TestChannelSource_WaitBlocksUntilPush(t *testing.T) {
	t.Parallel()
	c := NewChannelSource(0)
	f := &depth.Frame{Width: 3}

	go func() {
		_ = c.Push(context.Background(), f)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := c.WaitForFrame(ctx)
	require.NoError(t, err)
	assert.Same(t, f, got)
}

func TestChannelSource_CloseDrainsQueue(t *testing.T) {
	t.Parallel()
	c := NewChannelSource(1)
	f := &depth.Frame{}
	require.NoError(t, c.Push(context.Background(), f))
	c.Close()
	c.Close()

	assert.ErrorIs(t, c.Push(context.Background(), f), ErrSourceClosed)
	assert.False(t, c.TryPush(f))

	got, err := c.WaitForFrame(context.Background())
	require.NoError(t, err)
	assert.Same(t, f, got)

	_, err = c.WaitForFrame(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
	_, ok, err := c.PollForFrame()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestChannelSource_ContextCancel(t *testing.T) {
	t.Parallel()
	c := NewChannelSource(0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.WaitForFrame(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, c.Push(ctx, &depth.Frame{}), context.DeadlineExceeded)
}

func TestChannelSource_DrivesSession(t *testing.T) {
	t.Parallel()
	c := NewChannelSource(1)
	s := depth.NewSession(c)
	in := IntrinsicsForFOV(4, 4, 60)
	raw := make([]uint16, in.NumPixels())
	for i := range raw {
		raw[i] = 1000
	}
	f := &depth.Frame{Width: 4, Height: 4, Points: make([]mgl32.Vec3, 16)}
	require.NoError(t, in.Deproject(raw, f.Points))
	require.True(t, c.TryPush(f))

	m, ok, err := s.Grab(context.Background(), depth.FrameOptions{Wait: true, Mode: depth.ModePoints})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 16, m.Count)
}
