package modules

import (
	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
	"github.com/cwbudde/algo-modular/synth/smooth"
)

// TypeVCO is the registered module type name for the oscillator.
const TypeVCO = "vco"

const (
	defaultVCOFrequency = 110.0
	defaultVCOLevel     = 0.8

	minVCOFrequency = 0.1
	maxVCOFrequency = 20000.0
)

// VCO is a voltage-controlled oscillator: a free-running generator with a
// 1 V/oct pitch input, a linear FM input, and a gated amplitude stage.
//
// While nothing drives gate_in the amplitude stage sits at the configured
// level, so a freshly created oscillator is audible immediately. The moment
// a real gate source attaches, the internal default flips to zero and the
// external signal takes over; summing both would double the drive.
type VCO struct {
	base

	osc *render.Oscillator
	amp *render.Gain

	wave        render.Waveform
	frequency   float64
	level       float64
	gateSources int
}

// NewVCO constructs an oscillator module.
func NewVCO(ctx *render.Context, id string, params map[string]any) (*VCO, error) {
	ports := []signal.PortDef{
		{ID: "audio_out", Direction: signal.Out, Kind: signal.KindAudio},
		{ID: "pitch_cv", Direction: signal.In, Kind: signal.KindCV, VoltPerOctave: true},
		{ID: "fm_in", Direction: signal.In, Kind: signal.KindCV, Range: signal.Range{Min: -5000, Max: 5000}},
		{ID: "gate_in", Direction: signal.In, Kind: signal.KindGate, Range: signal.Range{Min: 0, Max: 1}},
	}

	m := &VCO{
		base:      newBase(id, TypeVCO, "Oscillator", ports),
		wave:      render.WaveSaw,
		frequency: defaultVCOFrequency,
		level:     defaultVCOLevel,
	}

	oscNode, osc := render.NewOscillator(ctx, m.wave, m.frequency)
	ampNode, amp := render.NewGain(ctx, m.level)
	m.osc = osc
	m.amp = amp
	m.own(oscNode)
	m.own(ampNode)

	if err := render.Connect(oscNode, ampNode); err != nil {
		m.Dispose()
		return nil, err
	}

	m.bind("audio_out", ampNode)
	m.bind("pitch_cv", osc.Pitch)
	m.bind("fm_in", osc.Frequency)
	m.bind("gate_in", amp.Level)

	m.UpdateParams(params)

	return m, nil
}

// UpdateParams applies a partial parameter update. Every field is validated
// and clamped independently; unknown or wrong-typed fields are ignored.
func (m *VCO) UpdateParams(params map[string]any) {
	if name, ok := getStr(params, "wave"); ok {
		if w, err := render.ParseWaveform(name); err == nil {
			m.wave = w
			m.osc.SetWaveform(w)
		}
	}

	if f, ok := getNum(params, "frequency"); ok {
		smooth.Glide(m.osc.Frequency, f,
			smooth.WithMode(smooth.ModeExp),
			smooth.WithClamp(minVCOFrequency, maxVCOFrequency))
		m.frequency = core.Clamp(f, minVCOFrequency, maxVCOFrequency)
	}

	if lv, ok := getNum(params, "level"); ok {
		m.level = core.Clamp(lv, 0, 1)
		if m.gateSources == 0 {
			smooth.Glide(m.amp.Level, m.level, smooth.WithClamp(0, 1))
		}
	}
}

// Params returns a full snapshot of the user-facing parameters.
func (m *VCO) Params() map[string]any {
	return map[string]any{
		"wave":      m.wave.String(),
		"frequency": m.frequency,
		"level":     m.level,
	}
}

// OnIncomingConnection flips the amplitude default from free-running to
// externally controlled the instant the first gate source attaches.
func (m *VCO) OnIncomingConnection(portID string) {
	if portID != "gate_in" {
		return
	}

	m.gateSources++
	if m.gateSources == 1 {
		smooth.Glide(m.amp.Level, 0, smooth.WithMinDelta(0))
	}
}

// OnIncomingDisconnection restores the free-running amplitude default when
// the last gate source detaches.
func (m *VCO) OnIncomingDisconnection(portID string) {
	if portID != "gate_in" || m.gateSources == 0 {
		return
	}

	m.gateSources--
	if m.gateSources == 0 {
		smooth.Glide(m.amp.Level, m.level, smooth.WithMinDelta(0))
	}
}

var _ engine.Module = (*VCO)(nil)
var _ engine.Parameterized = (*VCO)(nil)
var _ engine.ConnectionObserver = (*VCO)(nil)
