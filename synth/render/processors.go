package render

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-vecmath"
)

// Waveform selects the oscillator shape.
type Waveform int

const (
	// WaveSine is a pure sinusoid.
	WaveSine Waveform = iota
	// WaveSaw is a rising sawtooth.
	WaveSaw
	// WaveSquare is a 50% duty square.
	WaveSquare
	// WaveTriangle is a symmetric triangle.
	WaveTriangle
)

func (w Waveform) String() string {
	switch w {
	case WaveSine:
		return "sine"
	case WaveSaw:
		return "saw"
	case WaveSquare:
		return "square"
	case WaveTriangle:
		return "triangle"
	default:
		return "unknown"
	}
}

// ParseWaveform maps a waveform name to its Waveform value.
func ParseWaveform(name string) (Waveform, error) {
	switch name {
	case "sine":
		return WaveSine, nil
	case "saw":
		return WaveSaw, nil
	case "square":
		return WaveSquare, nil
	case "triangle":
		return WaveTriangle, nil
	default:
		return 0, fmt.Errorf("render: unknown waveform: %s", name)
	}
}

// Oscillator is a free-running periodic generator. Frequency is the base
// pitch in Hz; Pitch offsets it exponentially at 1 V/oct, so CV modulation
// wired into Pitch tracks the volt-per-octave convention.
type Oscillator struct {
	Frequency *Param
	Pitch     *Param

	ctx      *Context
	wave     Waveform
	phase    float64
	freqBuf  []float64
	pitchBuf []float64
}

// NewOscillator creates an oscillator node. The node starts producing output
// as soon as it is rendered; creation is not paused.
func NewOscillator(ctx *Context, wave Waveform, freqHz float64) (*Node, *Oscillator) {
	o := &Oscillator{
		ctx:      ctx,
		wave:     wave,
		freqBuf:  make([]float64, ctx.cfg.blockSize),
		pitchBuf: make([]float64, ctx.cfg.blockSize),
	}

	n := NewNode(ctx, o)
	o.Frequency = n.NewParam(freqHz)
	o.Pitch = n.NewParam(0)

	return n, o
}

// SetWaveform switches the oscillator shape.
func (o *Oscillator) SetWaveform(w Waveform) {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()

	o.wave = w
}

// Waveform returns the current oscillator shape.
func (o *Oscillator) Waveform() Waveform {
	o.ctx.mu.Lock()
	defer o.ctx.mu.Unlock()

	return o.wave
}

// Process implements Processor.
func (o *Oscillator) Process(n *Node, out []float64) {
	sr := o.ctx.cfg.sampleRate
	nyquist := 0.49 * sr

	freq := o.freqBuf[:len(out)]
	pitch := o.pitchBuf[:len(out)]
	o.Frequency.Sample(freq)
	o.Pitch.Sample(pitch)

	for i := range out {
		f := freq[i] * math.Exp2(pitch[i])
		if f < 0 {
			f = 0
		} else if f > nyquist {
			f = nyquist
		}

		o.phase += f / sr
		if o.phase >= 1 {
			o.phase -= math.Floor(o.phase)
		}

		out[i] = shape(o.wave, o.phase)
	}
}

func shape(w Waveform, phase float64) float64 {
	switch w {
	case WaveSine:
		return math.Sin(2 * math.Pi * phase)
	case WaveSaw:
		return 2*phase - 1
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}

		return -1
	case WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	default:
		return 0
	}
}

// Gain multiplies its summed input by the Level parameter, sample by sample.
// It doubles as a VCA: wiring an envelope or gate output into Level makes the
// level externally controlled.
type Gain struct {
	Level *Param

	buf []float64
}

// NewGain creates a gain node with the given initial level.
func NewGain(ctx *Context, level float64) (*Node, *Gain) {
	g := &Gain{buf: make([]float64, ctx.cfg.blockSize)}

	n := NewNode(ctx, g)
	g.Level = n.NewParam(level)

	return n, g
}

// Process implements Processor.
func (g *Gain) Process(n *Node, out []float64) {
	lv := g.buf[:len(out)]
	g.Level.Sample(lv)
	vecmath.MulBlock(out, n.In(), lv)
}

// ParamSource emits the Value parameter as a signal, making an automation
// timeline (an envelope level, a sequencer pitch) available as a CV output.
type ParamSource struct {
	Value *Param

	ctx    *Context
	invert bool
	buf    []float64
}

// NewParamSource creates a param-source node with the given initial value.
func NewParamSource(ctx *Context, initial float64) (*Node, *ParamSource) {
	s := &ParamSource{ctx: ctx, buf: make([]float64, ctx.cfg.blockSize)}

	n := NewNode(ctx, s)
	s.Value = n.NewParam(initial)

	return n, s
}

// SetInvert flips the output to 1-v, for inverted envelopes.
func (s *ParamSource) SetInvert(invert bool) {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	s.invert = invert
}

// Invert reports whether the output is flipped to 1-v.
func (s *ParamSource) Invert() bool {
	s.ctx.mu.Lock()
	defer s.ctx.mu.Unlock()

	return s.invert
}

// Process implements Processor.
func (s *ParamSource) Process(n *Node, out []float64) {
	s.Value.Sample(out)

	if s.invert {
		for i := range out {
			out[i] = 1 - out[i]
		}
	}
}

// EdgeDetector interprets a continuous input as a gate: a sample crossing
// above Threshold fires OnRise, a crossing back below fires OnFall. Callbacks
// run after the block, outside the render lock, exactly once per crossing.
// The input passes through unchanged so detectors can sit inline.
type EdgeDetector struct {
	threshold float64
	high      bool

	OnRise func()
	OnFall func()
}

// NewEdgeDetector creates an edge-detector node with the given threshold.
func NewEdgeDetector(ctx *Context, threshold float64) (*Node, *EdgeDetector) {
	d := &EdgeDetector{threshold: threshold}

	return NewNode(ctx, d), d
}

// Process implements Processor.
func (d *EdgeDetector) Process(n *Node, out []float64) {
	in := n.In()
	for i := range out {
		x := in[i]
		if !d.high && x >= d.threshold {
			d.high = true
			if d.OnRise != nil {
				n.Defer(d.OnRise)
			}
		} else if d.high && x < d.threshold {
			d.high = false
			if d.OnFall != nil {
				n.Defer(d.OnFall)
			}
		}

		out[i] = x
	}
}

// Tap is a terminal gain stage with a waveform capture ring, used by output
// modules: Level is the master volume, Mute silences without touching Level,
// and Waveform exposes the most recent samples for visualization.
type Tap struct {
	Level *Param

	ctx    *Context
	muted  bool
	ring   []float64
	write  int
	filled int
	buf    []float64
}

// NewTap creates a tap node capturing the last ringSize samples.
func NewTap(ctx *Context, level float64, ringSize int) (*Node, *Tap) {
	if ringSize < 1 {
		ringSize = 1
	}

	t := &Tap{
		ctx:  ctx,
		ring: make([]float64, ringSize),
		buf:  make([]float64, ctx.cfg.blockSize),
	}

	n := NewNode(ctx, t)
	t.Level = n.NewParam(level)

	return n, t
}

// SetMute silences the tap output; the capture ring keeps filling.
func (t *Tap) SetMute(muted bool) {
	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()

	t.muted = muted
}

// Muted reports whether the tap output is silenced.
func (t *Tap) Muted() bool {
	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()

	return t.muted
}

// Process implements Processor.
func (t *Tap) Process(n *Node, out []float64) {
	lv := t.buf[:len(out)]
	t.Level.Sample(lv)
	vecmath.MulBlock(out, n.In(), lv)

	for i := range out {
		t.ring[t.write] = out[i]

		t.write++
		if t.write >= len(t.ring) {
			t.write = 0
		}

		if t.filled < len(t.ring) {
			t.filled++
		}
	}

	if t.muted {
		for i := range out {
			out[i] = 0
		}
	}
}

// Waveform copies the captured ring, oldest sample first, into a new slice.
func (t *Tap) Waveform() []float64 {
	t.ctx.mu.Lock()
	defer t.ctx.mu.Unlock()

	out := make([]float64, t.filled)

	read := t.write - t.filled
	if read < 0 {
		read += len(t.ring)
	}

	for i := range out {
		out[i] = t.ring[read]

		read++
		if read >= len(t.ring) {
			read = 0
		}
	}

	return out
}
