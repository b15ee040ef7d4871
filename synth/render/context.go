// Package render is the shared real-time rendering engine: a single Context
// owns the sample clock and the set of live processing nodes, nodes own
// automatable parameters, and the patch graph engine wires node outputs into
// node inputs or parameters at run time.
//
// The Context is passed explicitly into every module factory; there is no
// ambient singleton. Graph mutations happen on the control thread and take
// effect at the next rendered block; Render runs on the audio thread.
package render

import (
	"fmt"
	"sync"
)

const (
	defaultSampleRate = 48000.0
	defaultBlockSize  = 256
)

type config struct {
	sampleRate float64
	blockSize  int
}

func defaultConfig() config {
	return config{
		sampleRate: defaultSampleRate,
		blockSize:  defaultBlockSize,
	}
}

// Option mutates constructor configuration.
type Option func(*config) error

// WithSampleRate sets the render sample rate in Hz. Must be > 0.
func WithSampleRate(sampleRate float64) Option {
	return func(cfg *config) error {
		if sampleRate <= 0 {
			return fmt.Errorf("render: sample rate must be > 0: %f", sampleRate)
		}

		cfg.sampleRate = sampleRate

		return nil
	}
}

// WithBlockSize sets the processing block size in samples. Must be > 0.
func WithBlockSize(blockSize int) Option {
	return func(cfg *config) error {
		if blockSize <= 0 {
			return fmt.Errorf("render: block size must be > 0: %d", blockSize)
		}

		cfg.blockSize = blockSize

		return nil
	}
}

// Context is the shared rendering context. It owns the sample clock, the
// node registry, and the sink set. All public methods are safe to call from
// the control thread while Render runs on the audio thread.
type Context struct {
	cfg config

	mu       sync.Mutex
	frame    int64
	epoch    uint64
	nodes    map[*Node]struct{}
	sinks    map[*Node]struct{}
	deferred []func()
	disposed bool
}

// New creates a rendering context.
func New(opts ...Option) (*Context, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Context{
		cfg:   cfg,
		nodes: make(map[*Node]struct{}),
		sinks: make(map[*Node]struct{}),
	}, nil
}

// SampleRate returns the render sample rate in Hz.
func (c *Context) SampleRate() float64 { return c.cfg.sampleRate }

// BlockSize returns the processing block size in samples.
func (c *Context) BlockSize() int { return c.cfg.blockSize }

// Now returns the current render time in seconds.
func (c *Context) Now() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return float64(c.frame) / c.cfg.sampleRate
}

// Disposed reports whether the context has been torn down.
func (c *Context) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disposed
}

// Render fills dst with mono samples in [-1, 1], advancing the sample clock.
// It processes in block-size chunks, summing all sink nodes. Callbacks queued
// by processors (gate edges) run between blocks, outside the render lock.
func (c *Context) Render(dst []float32) {
	for len(dst) > 0 {
		n := c.cfg.blockSize
		if n > len(dst) {
			n = len(dst)
		}

		c.renderBlock(dst[:n])
		c.runDeferred()
		dst = dst[n:]
	}
}

func (c *Context) renderBlock(dst []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		for i := range dst {
			dst[i] = 0
		}

		return
	}

	c.epoch++
	for i := range dst {
		dst[i] = 0
	}

	for sink := range c.sinks {
		sink.render(c.epoch, len(dst))
		for i := range dst {
			dst[i] += float32(sink.out[i])
		}
	}

	for i := range dst {
		if dst[i] > 1 {
			dst[i] = 1
		} else if dst[i] < -1 {
			dst[i] = -1
		}
	}

	c.frame += int64(len(dst))
}

func (c *Context) runDeferred() {
	c.mu.Lock()
	pending := c.deferred
	c.deferred = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// defer queues fn to run after the current block, outside the render lock.
// Must be called with c.mu held (i.e. from a Processor).
func (c *Context) deferCallback(fn func()) {
	c.deferred = append(c.deferred, fn)
}

// AddSink registers n as a terminal node summed into Render output.
func (c *Context) AddSink(n *Node) {
	if n == nil || n.ctx != c {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if n.disposed || c.disposed {
		return
	}

	c.sinks[n] = struct{}{}
}

// RemoveSink unregisters n from the Render output sum.
func (c *Context) RemoveSink(n *Node) {
	if n == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sinks, n)
}

// Dispose tears down every node and marks the context unusable. Safe to call
// more than once.
func (c *Context) Dispose() {
	c.mu.Lock()
	nodes := make([]*Node, 0, len(c.nodes))
	for n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.disposed = true
	c.mu.Unlock()

	for _, n := range nodes {
		n.Dispose()
	}
}
