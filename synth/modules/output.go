package modules

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/window"
	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
	"github.com/cwbudde/algo-modular/synth/smooth"
)

// TypeOutput is the registered module type name for the master output.
const TypeOutput = "output"

const (
	defaultOutputVolume = 0.7

	outputFFTSize = 2048

	spectrumMinDB = -130.0
	spectrumEps   = 1e-12
)

// Output is the master output stage: the only module registered as a render
// sink. It applies the smoothed master volume, captures the most recent
// samples for waveform display, and computes a windowed magnitude spectrum
// on demand. Mute silences the output without disturbing the volume
// automation, so unmuting restores the exact previous level.
type Output struct {
	ctxRef *render.Context
	base

	tap     *render.Tap
	tapNode *render.Node

	plan *algofft.Plan[complex128]
	win  []float64
	// Mean window value, for amplitude-correct spectrum normalization.
	winGain float64

	volume float64
	muted  bool
}

// NewOutput constructs a master output module and registers it as a sink.
func NewOutput(ctx *render.Context, id string, params map[string]any) (*Output, error) {
	ports := []signal.PortDef{
		{ID: "audio_in", Direction: signal.In, Kind: signal.KindAudio},
	}

	win := window.Generate(window.TypeHann, outputFFTSize, window.WithPeriodic())
	if len(win) != outputFFTSize {
		return nil, fmt.Errorf("modules: analyzer window size: %d", len(win))
	}

	sum := 0.0
	for _, w := range win {
		sum += w
	}

	plan, err := algofft.NewPlan64(outputFFTSize)
	if err != nil {
		return nil, fmt.Errorf("modules: analyzer fft plan: %w", err)
	}

	m := &Output{
		ctxRef:  ctx,
		base:    newBase(id, TypeOutput, "Output", ports),
		plan:    plan,
		win:     win,
		winGain: sum / outputFFTSize,
		volume:  defaultOutputVolume,
	}

	tapNode, tap := render.NewTap(ctx, defaultOutputVolume, outputFFTSize)
	m.tap = tap
	m.tapNode = tapNode
	m.own(tapNode)

	m.bind("audio_in", tapNode)

	ctx.AddSink(tapNode)

	m.UpdateParams(params)

	return m, nil
}

// UpdateParams applies a partial parameter update. Volume glides; mute is a
// hard switch by design, as it exists to cut output immediately.
func (m *Output) UpdateParams(params map[string]any) {
	if v, ok := getNum(params, "volume"); ok {
		m.volume = core.Clamp(v, 0, 1)
		smooth.Glide(m.tap.Level, v, smooth.WithClamp(0, 1))
	}

	if v, ok := getBool(params, "mute"); ok {
		m.muted = v
		m.tap.SetMute(v)
	}
}

// Params returns a full snapshot of the user-facing parameters.
func (m *Output) Params() map[string]any {
	return map[string]any{
		"volume": m.volume,
		"mute":   m.muted,
	}
}

// AnalyserData returns the most recently rendered output samples, oldest
// first. The capture keeps filling while muted.
func (m *Output) AnalyserData() []float64 {
	return m.tap.Waveform()
}

// SpectrumDB computes the magnitude spectrum of the captured output in dBFS,
// one value per bin up to Nyquist. Returns nil until a full analysis frame
// has been captured.
func (m *Output) SpectrumDB() []float64 {
	samples := m.tap.Waveform()
	if len(samples) < outputFFTSize {
		return nil
	}

	in := make([]complex128, outputFFTSize)
	for i := 0; i < outputFFTSize; i++ {
		in[i] = complex(samples[i]*m.win[i], 0)
	}

	out := make([]complex128, outputFFTSize)
	if err := m.plan.Forward(out, in); err != nil {
		return nil
	}

	norm := outputFFTSize * math.Max(m.winGain, spectrumEps)

	db := make([]float64, outputFFTSize/2+1)
	last := len(db) - 1
	for k := 0; k <= last; k++ {
		mag := cmplx.Abs(out[k]) / norm
		if k > 0 && k < last {
			mag *= 2
		}

		v := 20 * math.Log10(math.Max(spectrumEps, mag))
		if v < spectrumMinDB {
			v = spectrumMinDB
		}

		db[k] = v
	}

	return db
}

// BinHz returns the spectrum bin width in Hz.
func (m *Output) BinHz() float64 {
	return m.ctxRef.SampleRate() / outputFFTSize
}

// Dispose unregisters the sink before releasing the primitives.
func (m *Output) Dispose() {
	m.ctxRef.RemoveSink(m.tapNode)
	m.base.Dispose()
}

var _ engine.Module = (*Output)(nil)
var _ engine.Parameterized = (*Output)(nil)
var _ engine.Analysable = (*Output)(nil)
