package modules

import (
	"sync"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"gitlab.com/gomidi/midi/v2"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
	"github.com/cwbudde/algo-modular/synth/smooth"
)

// TypeMIDIIn is the registered module type name for the MIDI note input.
const TypeMIDIIn = "midi_in"

const (
	maxPortamento = 2.0

	// midiRefNote is A2, the note sounding the 0 V reference of 110 Hz.
	midiRefNote = 45
)

// MIDIIn converts incoming MIDI note messages into pitch, gate, and velocity
// signals. Held notes form a stack with last-note priority: releasing the
// sounding note falls back to the most recent still-held one without
// retriggering the gate.
type MIDIIn struct {
	base

	pitch    *render.ParamSource
	gate     *render.ParamSource
	velocity *render.ParamSource

	mu         sync.Mutex
	held       []uint8
	portamento float64
	channel    int
}

// NewMIDIIn constructs a MIDI input module.
func NewMIDIIn(ctx *render.Context, id string, params map[string]any) (*MIDIIn, error) {
	ports := []signal.PortDef{
		{ID: "cv_out", Direction: signal.Out, Kind: signal.KindCV, VoltPerOctave: true},
		{ID: "gate_out", Direction: signal.Out, Kind: signal.KindGate, Range: signal.Range{Min: 0, Max: 1}},
		{ID: "velocity_out", Direction: signal.Out, Kind: signal.KindCV, Range: signal.Range{Min: 0, Max: 1}},
	}

	m := &MIDIIn{
		base: newBase(id, TypeMIDIIn, "MIDI In", ports),
	}

	pitchNode, pitch := render.NewParamSource(ctx, 0)
	gateNode, gate := render.NewParamSource(ctx, 0)
	velNode, vel := render.NewParamSource(ctx, 0)
	m.pitch = pitch
	m.gate = gate
	m.velocity = vel
	m.own(pitchNode)
	m.own(gateNode)
	m.own(velNode)

	m.bind("cv_out", pitchNode)
	m.bind("gate_out", gateNode)
	m.bind("velocity_out", velNode)

	m.UpdateParams(params)

	return m, nil
}

// HandleMessage feeds one raw MIDI message into the module. Only channel
// voice note messages are interpreted; a note-on with velocity zero counts
// as a note-off. Messages on foreign channels are ignored unless the module
// listens in omni mode.
func (m *MIDIIn) HandleMessage(msg midi.Message) {
	if len(msg) < 3 {
		return
	}

	status := msg[0] & 0xF0
	channel := int(msg[0]&0x0F) + 1
	note := msg[1] & 0x7F
	vel := msg[2] & 0x7F

	m.mu.Lock()
	if m.channel != 0 && m.channel != channel {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	switch {
	case status == 0x90 && vel > 0:
		m.noteOn(note, vel)
	case status == 0x80 || (status == 0x90 && vel == 0):
		m.noteOff(note)
	}
}

func (m *MIDIIn) noteOn(note, vel uint8) {
	m.mu.Lock()

	for i, held := range m.held {
		if held == note {
			m.held = append(m.held[:i], m.held[i+1:]...)
			break
		}
	}
	m.held = append(m.held, note)

	retrigger := len(m.held) == 1
	portamento := m.portamento
	m.mu.Unlock()

	m.setPitch(note, portamento)
	m.setNow(m.velocity.Value, float64(vel)/127)

	if retrigger {
		m.setNow(m.gate.Value, 1)
	}
}

func (m *MIDIIn) noteOff(note uint8) {
	m.mu.Lock()

	idx := -1
	for i, held := range m.held {
		if held == note {
			idx = i
			break
		}
	}

	if idx < 0 {
		m.mu.Unlock()
		return
	}

	wasTop := idx == len(m.held)-1
	m.held = append(m.held[:idx], m.held[idx+1:]...)

	var fallback uint8
	if wasTop && len(m.held) > 0 {
		fallback = m.held[len(m.held)-1]
	}

	empty := len(m.held) == 0
	portamento := m.portamento
	m.mu.Unlock()

	if empty {
		m.setNow(m.gate.Value, 0)
		return
	}

	// Legato fallback: re-pitch without retriggering.
	if wasTop {
		m.setPitch(fallback, portamento)
	}
}

// setPitch moves the pitch output to the note's 1 V/oct voltage, gliding
// over the portamento time when one is configured.
func (m *MIDIIn) setPitch(note uint8, portamento float64) {
	volts := float64(int(note)-midiRefNote) / 12

	if portamento > 0 {
		smooth.Glide(m.pitch.Value, volts,
			smooth.WithMode(smooth.ModeLinear),
			smooth.WithDuration(portamento),
			smooth.WithMinDelta(0))

		return
	}

	m.setNow(m.pitch.Value, volts)
}

// setNow replaces a parameter's timeline with an immediate value. Gates and
// velocities step rather than glide; the consumers downstream do their own
// declicking.
func (m *MIDIIn) setNow(p *render.Param, v float64) {
	now := p.Context().Now()
	p.CancelScheduledValues(now)
	p.SetValueAtTime(v, now)
}

// Notes returns the held notes, oldest first.
func (m *MIDIIn) Notes() []uint8 {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]uint8, len(m.held))
	copy(out, m.held)

	return out
}

// UpdateParams applies a partial parameter update. Portamento is clamped to
// [0, 2] seconds; channel 0 means omni, 1-16 selects one channel.
func (m *MIDIIn) UpdateParams(params map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := getNum(params, "portamento"); ok {
		m.portamento = core.Clamp(v, 0, maxPortamento)
	}

	if v, ok := getNum(params, "channel"); ok {
		ch := int(v)
		if ch >= 0 && ch <= 16 {
			m.channel = ch
		}
	}
}

// Params returns a full snapshot of the user-facing parameters.
func (m *MIDIIn) Params() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]any{
		"portamento": m.portamento,
		"channel":    m.channel,
	}
}

var _ engine.Module = (*MIDIIn)(nil)
var _ engine.Parameterized = (*MIDIIn)(nil)
