package modules

import (
	"testing"

	"github.com/cwbudde/algo-modular/internal/testutil"
	"github.com/cwbudde/algo-modular/synth/render"
)

func TestVCFUpdateParamsClamps(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewVCF(ctx, "vcf_1", nil)
	if err != nil {
		t.Fatalf("NewVCF: %v", err)
	}

	// An out-of-range cutoff clamps to the bottom of the audible band.
	m.UpdateParams(map[string]any{"cutoff": -50.0})

	if got := m.Params()["cutoff"]; got != minVCFCutoff {
		t.Errorf("cutoff = %v, want %v", got, minVCFCutoff)
	}

	m.UpdateParams(map[string]any{"resonance": 10.0, "drive": 100.0})

	params := m.Params()
	if params["resonance"] != maxVCFResonance {
		t.Errorf("resonance = %v, want %v", params["resonance"], maxVCFResonance)
	}

	if params["drive"] != maxVCFDrive {
		t.Errorf("drive = %v, want %v", params["drive"], maxVCFDrive)
	}
}

func TestVCFDefaults(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewVCF(ctx, "vcf_1", nil)
	if err != nil {
		t.Fatalf("NewVCF: %v", err)
	}

	params := m.Params()
	if params["cutoff"] != defaultVCFCutoff {
		t.Errorf("cutoff = %v, want %v", params["cutoff"], defaultVCFCutoff)
	}

	if params["resonance"] != defaultVCFResonance {
		t.Errorf("resonance = %v, want %v", params["resonance"], defaultVCFResonance)
	}
}

// rmsThroughFilter renders a sine through a filter configured with the given
// cutoff and returns the steady-state output RMS.
func rmsThroughFilter(t *testing.T, sineHz, cutoffHz float64) float64 {
	t.Helper()

	ctx := newTestContext(t)

	oscNode, _ := render.NewOscillator(ctx, render.WaveSine, sineHz)

	m, err := NewVCF(ctx, "vcf_1", map[string]any{"cutoff": cutoffHz, "resonance": 0.0})
	if err != nil {
		t.Fatalf("NewVCF: %v", err)
	}

	ep, _ := m.PortNode("audio_in")
	if err := render.Connect(oscNode, ep); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	outEp, _ := m.PortNode("audio_out")
	ctx.AddSink(outEp.(*render.Node))

	// Let the cutoff glide land and the filter settle, then measure.
	testutil.RenderSeconds(ctx, 0.3)

	return testutil.RMS(testutil.RenderSeconds(ctx, 0.2))
}

func TestVCFAttenuatesAboveCutoff(t *testing.T) {
	t.Parallel()

	open := rmsThroughFilter(t, 4000, 16000)
	closed := rmsThroughFilter(t, 4000, 100)

	if closed <= 0 {
		t.Fatal("closed filter produced no output at all")
	}

	if ratio := open / closed; ratio < 5 {
		t.Errorf("attenuation ratio = %v, want > 5 (open %v, closed %v)", ratio, open, closed)
	}
}

func TestVCFCutoffCVPort(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewVCF(ctx, "vcf_1", nil)
	if err != nil {
		t.Fatalf("NewVCF: %v", err)
	}

	ports := m.Ports()
	if len(ports) != 3 {
		t.Fatalf("len(Ports()) = %d, want 3", len(ports))
	}

	for _, id := range []string{"audio_in", "cutoff_cv", "audio_out"} {
		if _, ok := m.PortNode(id); !ok {
			t.Errorf("port %s has no live endpoint", id)
		}
	}
}
