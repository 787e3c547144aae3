package source

import (
	"context"
	"errors"
	"sync"

	"github.com/banshee-data/depthmesh/internal/depth"
)

// ErrSourceClosed is returned by a ChannelSource after Close once its queue
// has drained.
var ErrSourceClosed = errors.New("depth source closed")

// ChannelSource delivers frames pushed by a producer goroutine. It is used
// for replay and in tests. Push and Close may be called concurrently with
// the consumer.
type ChannelSource struct {
	frames chan *depth.Frame
	done   chan struct{}
	once   sync.Once
}

// NewChannelSource returns a source with room for buffer queued frames.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{
		frames: make(chan *depth.Frame, buffer),
		done:   make(chan struct{}),
	}
}

// Push queues f, blocking while the queue is full.
func (c *ChannelSource) Push(ctx context.Context, f *depth.Frame) error {
	select {
	case <-c.done:
		return ErrSourceClosed
	default:
	}
	select {
	case c.frames <- f:
		return nil
	case <-c.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush queues f without blocking and reports whether it was accepted.
func (c *ChannelSource) TryPush(f *depth.Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.frames <- f:
		return true
	default:
		return false
	}
}

// Close stops accepting frames. Frames already queued are still delivered.
func (c *ChannelSource) Close() {
	c.once.Do(func() { close(c.done) })
}

// WaitForFrame returns the next queued frame, blocking until one arrives,
// the source is closed, or ctx is done.
func (c *ChannelSource) WaitForFrame(ctx context.Context) (*depth.Frame, error) {
	select {
	case f := <-c.frames:
		return f, nil
	default:
	}
	select {
	case f := <-c.frames:
		return f, nil
	case <-c.done:
		return nil, ErrSourceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PollForFrame returns the next queued frame if there is one.
func (c *ChannelSource) PollForFrame() (*depth.Frame, bool, error) {
	select {
	case f := <-c.frames:
		return f, true, nil
	default:
	}
	select {
	case <-c.done:
		return nil, false, ErrSourceClosed
	default:
		return nil, false, nil
	}
}
