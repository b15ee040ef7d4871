package modules

import (
	"math"
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/meko-christian/algo-approx"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
)

// TypeSequencer is the registered module type name for the step sequencer.
const TypeSequencer = "sequencer"

const (
	// SequencerSteps is the fixed step count of the sequencer.
	SequencerSteps = 16

	defaultSeqTempo      = 120.0
	defaultSeqGateLength = 0.5

	minSeqTempo      = 30.0
	maxSeqTempo      = 300.0
	minSeqGateLength = 0.05
	maxSeqGateLength = 0.95

	// seqRefFreq is the 0 V reference of the pitch output, matching the
	// oscillator's default base frequency so an unconfigured patch plays the
	// step frequencies literally.
	seqRefFreq = 110.0
)

// defaultStepFreqs is an A-minor-pentatonic pattern over two octaves, so a
// freshly created sequencer produces a musical line out of the box.
var defaultStepFreqs = [SequencerSteps]float64{
	110.00, 130.81, 146.83, 164.81,
	196.00, 220.00, 196.00, 164.81,
	220.00, 261.63, 293.66, 329.63,
	392.00, 440.00, 329.63, 261.63,
}

// Step is one sequencer slot.
type Step struct {
	Enabled bool
	Freq    float64
}

// seqState is the transport shared by the gate and pitch output nodes. The
// first node rendered in a block advances the step clock and fills both
// output buffers; the other node only copies. Steps run as sixteenth notes
// at the configured tempo.
//
// The pitch output is a sample-and-hold: it keeps the last step's voltage
// through disabled steps and while the transport is stopped.
type seqState struct {
	mu sync.Mutex

	sampleRate float64
	steps      [SequencerSteps]Step
	tempo      float64
	gateLen    float64
	running    bool

	stepIdx    int
	intoStep   int
	volts      float64
	lastBlock  int64
	haveBlock  bool
	gateBuf    []float64
	voltsBuf   []float64
}

func (s *seqState) stepSamples() int {
	// Sixteenth notes: a quarter of a beat at the current tempo.
	n := int(s.sampleRate * 60 / s.tempo / 4)
	if n < 1 {
		n = 1
	}

	return n
}

// tick fills both output buffers for the block starting at frame start,
// unless that block was already produced by the sibling node.
func (s *seqState) tick(start int64, frames int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.haveBlock && s.lastBlock == start {
		return
	}

	s.lastBlock = start
	s.haveBlock = true

	gate := s.gateBuf[:frames]
	volts := s.voltsBuf[:frames]

	if !s.running {
		for i := 0; i < frames; i++ {
			gate[i] = 0
			volts[i] = s.volts
		}

		return
	}

	stepLen := s.stepSamples()
	gateSamples := int(float64(stepLen) * s.gateLen)

	for i := 0; i < frames; i++ {
		if s.intoStep == 0 {
			step := s.steps[s.stepIdx]
			if step.Enabled && step.Freq > 0 {
				s.volts = approx.FastLog(step.Freq/seqRefFreq) / math.Ln2
			}
		}

		step := s.steps[s.stepIdx]
		if step.Enabled && s.intoStep < gateSamples {
			gate[i] = 1
		} else {
			gate[i] = 0
		}

		volts[i] = s.volts

		s.intoStep++
		if s.intoStep >= stepLen {
			s.intoStep = 0
			s.stepIdx = (s.stepIdx + 1) % SequencerSteps
		}
	}
}

// seqGateProc and seqPitchProc are the two faces of one shared transport.
type seqGateProc struct{ s *seqState }

func (p *seqGateProc) Process(n *render.Node, out []float64) {
	p.s.tick(n.BlockStart(), len(out))
	copy(out, p.s.gateBuf[:len(out)])
}

type seqPitchProc struct{ s *seqState }

func (p *seqPitchProc) Process(n *render.Node, out []float64) {
	p.s.tick(n.BlockStart(), len(out))
	copy(out, p.s.voltsBuf[:len(out)])
}

// Sequencer is a 16-step gate and pitch sequencer. gate_out emits the step
// gate, cv_out emits the step pitch as a 1 V/oct voltage relative to 110 Hz.
// GateOn starts the transport from step one; GateOff stops it with the pitch
// output holding its last value.
type Sequencer struct {
	base

	state *seqState
}

// NewSequencer constructs a sequencer module. All steps start enabled with
// the default pattern; the transport starts running.
func NewSequencer(ctx *render.Context, id string, params map[string]any) (*Sequencer, error) {
	ports := []signal.PortDef{
		{ID: "gate_out", Direction: signal.Out, Kind: signal.KindGate, Range: signal.Range{Min: 0, Max: 1}},
		{ID: "cv_out", Direction: signal.Out, Kind: signal.KindCV, VoltPerOctave: true},
	}

	state := &seqState{
		sampleRate: ctx.SampleRate(),
		tempo:      defaultSeqTempo,
		gateLen:    defaultSeqGateLength,
		running:    true,
		gateBuf:    make([]float64, ctx.BlockSize()),
		voltsBuf:   make([]float64, ctx.BlockSize()),
	}

	for i := range state.steps {
		state.steps[i] = Step{Enabled: true, Freq: defaultStepFreqs[i]}
	}

	m := &Sequencer{
		base:  newBase(id, TypeSequencer, "Sequencer", ports),
		state: state,
	}

	gateNode := render.NewNode(ctx, &seqGateProc{s: state})
	pitchNode := render.NewNode(ctx, &seqPitchProc{s: state})
	m.own(gateNode)
	m.own(pitchNode)

	m.bind("gate_out", gateNode)
	m.bind("cv_out", pitchNode)

	m.UpdateParams(params)

	return m, nil
}

// GateOn starts the transport from the first step.
func (m *Sequencer) GateOn() {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	m.state.running = true
	m.state.stepIdx = 0
	m.state.intoStep = 0
}

// GateOff stops the transport. The pitch output holds its last value.
func (m *Sequencer) GateOff() {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	m.state.running = false
}

// SetStep replaces one step slot. Out-of-range indices and non-positive
// frequencies are ignored.
func (m *Sequencer) SetStep(index int, step Step) {
	if index < 0 || index >= SequencerSteps || step.Freq <= 0 {
		return
	}

	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	m.state.steps[index] = step
}

// Steps returns a snapshot of the step slots.
func (m *Sequencer) Steps() [SequencerSteps]Step {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	return m.state.steps
}

// UpdateParams applies a partial parameter update. Steps are supplied as a
// list of {enabled, freq} objects; fewer than sixteen entries update a
// prefix, extra entries are ignored.
func (m *Sequencer) UpdateParams(params map[string]any) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	if v, ok := getNum(params, "tempo"); ok {
		m.state.tempo = core.Clamp(v, minSeqTempo, maxSeqTempo)
	}

	if v, ok := getNum(params, "gateLength"); ok {
		m.state.gateLen = core.Clamp(v, minSeqGateLength, maxSeqGateLength)
	}

	if v, ok := getBool(params, "running"); ok {
		m.state.running = v
		if v {
			m.state.stepIdx = 0
			m.state.intoStep = 0
		}
	}

	if raw, ok := params["steps"].([]any); ok {
		for i, entry := range raw {
			if i >= SequencerSteps {
				break
			}

			fields, ok := entry.(map[string]any)
			if !ok {
				continue
			}

			if enabled, ok := getBool(fields, "enabled"); ok {
				m.state.steps[i].Enabled = enabled
			}

			if freq, ok := getNum(fields, "freq"); ok && freq > 0 {
				m.state.steps[i].Freq = freq
			}
		}
	}
}

// Params returns a full snapshot of the user-facing parameters.
func (m *Sequencer) Params() map[string]any {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()

	steps := make([]any, SequencerSteps)
	for i, s := range m.state.steps {
		steps[i] = map[string]any{"enabled": s.Enabled, "freq": s.Freq}
	}

	return map[string]any{
		"tempo":      m.state.tempo,
		"gateLength": m.state.gateLen,
		"running":    m.state.running,
		"steps":      steps,
	}
}

var _ engine.Module = (*Sequencer)(nil)
var _ engine.Parameterized = (*Sequencer)(nil)
var _ engine.Gateable = (*Sequencer)(nil)
