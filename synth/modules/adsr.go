package modules

import (
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/core"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
	"github.com/cwbudde/algo-modular/synth/smooth"
)

// TypeADSR is the registered module type name for the envelope generator.
const TypeADSR = "adsr"

const (
	defaultADSRAttack  = 0.01
	defaultADSRHold    = 0.0
	defaultADSRDecay   = 0.1
	defaultADSRSustain = 0.7
	defaultADSRRelease = 0.3

	minEnvSeconds = 0.001
	maxEnvSeconds = 10.0

	envPeak = 1.0

	// One-pole segments land after four time constants, so dividing the
	// musical segment length by four makes decay and release take the stated
	// number of seconds end to end.
	envTauDivisor = 4.0
)

// ADSR is an attack-hold-decay-sustain-release envelope generator. The
// envelope level is a scheduled automation timeline emitted on cv_out; a
// signal on gate_in drives it through an edge detector, and GateOn/GateOff
// drive it directly for keyboard-style triggering without a patched gate.
//
// Retriggering mid-flight anchors the attack at the current envelope level,
// so fast gates never cause a level jump.
type ADSR struct {
	base

	src *render.ParamSource

	mu      sync.Mutex
	attack  float64
	hold    float64
	decay   float64
	sustain float64
	release float64
	invert  bool
}

// NewADSR constructs an envelope module.
func NewADSR(ctx *render.Context, id string, params map[string]any) (*ADSR, error) {
	ports := []signal.PortDef{
		{ID: "gate_in", Direction: signal.In, Kind: signal.KindGate, Range: signal.Range{Min: 0, Max: 1}},
		{ID: "cv_out", Direction: signal.Out, Kind: signal.KindCV, Range: signal.Range{Min: 0, Max: 1}},
	}

	m := &ADSR{
		base:    newBase(id, TypeADSR, "Envelope", ports),
		attack:  defaultADSRAttack,
		hold:    defaultADSRHold,
		decay:   defaultADSRDecay,
		sustain: defaultADSRSustain,
		release: defaultADSRRelease,
	}

	srcNode, src := render.NewParamSource(ctx, 0)
	m.src = src
	m.own(srcNode)

	detNode, det := render.NewEdgeDetector(ctx, 0.5)
	det.OnRise = m.GateOn
	det.OnFall = m.GateOff
	m.own(detNode)

	// The detector only runs when pulled, so feed it into the level source:
	// whenever cv_out is consumed, gate edges are scanned in the same block.
	// The level source ignores its audio input.
	if err := render.Connect(detNode, srcNode); err != nil {
		m.Dispose()
		return nil, err
	}

	m.bind("gate_in", detNode)
	m.bind("cv_out", srcNode)

	m.UpdateParams(params)

	return m, nil
}

// GateOn starts the attack-hold-decay sequence from the current envelope
// level. The decay segment is stacked behind the attack rather than replacing
// it, landing on the sustain level.
func (m *ADSR) GateOn() {
	m.mu.Lock()
	attack, hold, decay, sustain := m.attack, m.hold, m.decay, m.sustain
	m.mu.Unlock()

	smooth.Glide(m.src.Value, envPeak,
		smooth.WithMode(smooth.ModeLinear),
		smooth.WithDuration(attack),
		smooth.WithMinDelta(0))

	smooth.Glide(m.src.Value, sustain,
		smooth.WithoutCancel(),
		smooth.WithMode(smooth.ModeTarget),
		smooth.WithTimeConstant(decay/envTauDivisor),
		smooth.WithDelay(attack+hold),
		smooth.WithMinDelta(0))
}

// GateOff cancels whatever segment is in flight and releases toward zero
// from the current envelope level.
func (m *ADSR) GateOff() {
	m.mu.Lock()
	release := m.release
	m.mu.Unlock()

	smooth.Glide(m.src.Value, 0,
		smooth.WithMode(smooth.ModeTarget),
		smooth.WithTimeConstant(release/envTauDivisor),
		smooth.WithMinDelta(0))
}

// UpdateParams applies a partial parameter update. Segment times are clamped
// to [1 ms, 10 s]; sustain to [0, 1]. Updates affect the next gate, not the
// segment currently in flight.
func (m *ADSR) UpdateParams(params map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := getNum(params, "attack"); ok {
		m.attack = core.Clamp(v, minEnvSeconds, maxEnvSeconds)
	}

	if v, ok := getNum(params, "hold"); ok {
		m.hold = core.Clamp(v, 0, maxEnvSeconds)
	}

	if v, ok := getNum(params, "decay"); ok {
		m.decay = core.Clamp(v, minEnvSeconds, maxEnvSeconds)
	}

	if v, ok := getNum(params, "sustain"); ok {
		m.sustain = core.Clamp(v, 0, 1)
	}

	if v, ok := getNum(params, "release"); ok {
		m.release = core.Clamp(v, minEnvSeconds, maxEnvSeconds)
	}

	if v, ok := getBool(params, "invert"); ok {
		m.invert = v
		m.src.SetInvert(v)
	}
}

// Params returns a full snapshot of the user-facing parameters.
func (m *ADSR) Params() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"attack":  m.attack,
		"hold":    m.hold,
		"decay":   m.decay,
		"sustain": m.sustain,
		"release": m.release,
		"invert":  m.invert,
	}
}

var _ engine.Module = (*ADSR)(nil)
var _ engine.Parameterized = (*ADSR)(nil)
var _ engine.Gateable = (*ADSR)(nil)
