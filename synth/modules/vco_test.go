package modules

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-modular/synth/render"
)

func TestVCODefaults(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewVCO(ctx, "vco_1", nil)
	if err != nil {
		t.Fatalf("NewVCO: %v", err)
	}

	params := m.Params()
	if params["wave"] != "saw" {
		t.Errorf("wave = %v, want saw", params["wave"])
	}

	if params["frequency"] != defaultVCOFrequency {
		t.Errorf("frequency = %v, want %v", params["frequency"], defaultVCOFrequency)
	}
}

func TestVCOUpdateParamsClamps(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewVCO(ctx, "vco_1", nil)
	if err != nil {
		t.Fatalf("NewVCO: %v", err)
	}

	m.UpdateParams(map[string]any{
		"frequency": -5.0,
		"level":     2.0,
		"wave":      "square",
	})

	params := m.Params()
	if params["frequency"] != minVCOFrequency {
		t.Errorf("frequency = %v, want clamp to %v", params["frequency"], minVCOFrequency)
	}

	if params["level"] != 1.0 {
		t.Errorf("level = %v, want clamp to 1", params["level"])
	}

	if params["wave"] != "square" {
		t.Errorf("wave = %v, want square", params["wave"])
	}

	// Unknown waveforms and wrong-typed fields are ignored.
	m.UpdateParams(map[string]any{"wave": "noise", "frequency": "fast"})

	params = m.Params()
	if params["wave"] != "square" || params["frequency"] != minVCOFrequency {
		t.Errorf("params mutated by invalid update: %v", params)
	}
}

func TestVCORendersImmediately(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewVCO(ctx, "vco_1", map[string]any{"frequency": 440.0})
	if err != nil {
		t.Fatalf("NewVCO: %v", err)
	}

	ep, ok := m.PortNode("audio_out")
	if !ok {
		t.Fatal("audio_out port missing")
	}

	ctx.AddSink(ep.(*render.Node))

	buf := make([]float32, 4*ctx.BlockSize())
	ctx.Render(buf)

	peak := 0.0
	for _, s := range buf {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}

	if peak < 0.1 {
		t.Errorf("peak = %v, want free-running output", peak)
	}
}

func TestVCOGateConnectionFlipsDefault(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewVCO(ctx, "vco_1", nil)
	if err != nil {
		t.Fatalf("NewVCO: %v", err)
	}

	now := ctx.Now()

	// First gate source: the internal amplitude default heads to zero.
	m.OnIncomingConnection("gate_in")

	if got := m.amp.Level.ValueAt(now + 1); got != 0 {
		t.Errorf("level after gate connect = %v, want 0", got)
	}

	// Last gate source gone: the configured level returns.
	m.OnIncomingDisconnection("gate_in")

	if got := m.amp.Level.ValueAt(now + 2); got != defaultVCOLevel {
		t.Errorf("level after gate disconnect = %v, want %v", got, defaultVCOLevel)
	}

	// Hooks for other ports do nothing.
	m.OnIncomingConnection("pitch_cv")
	m.OnIncomingDisconnection("pitch_cv")

	if m.gateSources != 0 {
		t.Errorf("gateSources = %d, want 0", m.gateSources)
	}
}

func TestVCOPortTable(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewVCO(ctx, "vco_1", nil)
	if err != nil {
		t.Fatalf("NewVCO: %v", err)
	}

	ports := m.Ports()
	if len(ports) != 4 {
		t.Fatalf("len(Ports()) = %d, want 4", len(ports))
	}

	for _, id := range []string{"audio_out", "pitch_cv", "fm_in", "gate_in"} {
		if _, ok := m.PortNode(id); !ok {
			t.Errorf("port %s has no live endpoint", id)
		}
	}
}
