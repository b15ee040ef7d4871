package modules

import (
	"testing"

	"github.com/cwbudde/algo-modular/internal/testutil"
	"github.com/cwbudde/algo-modular/synth/render"
)

func TestSaturatorUpdateParamsClamps(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewSaturator(ctx, "sat_1", nil)
	if err != nil {
		t.Fatalf("NewSaturator: %v", err)
	}

	m.UpdateParams(map[string]any{"drive": 100.0, "mix": -1.0})

	params := m.Params()
	if params["drive"] != maxSatDriveDB {
		t.Errorf("drive = %v, want clamp to %v", params["drive"], maxSatDriveDB)
	}

	if params["mix"] != 0.0 {
		t.Errorf("mix = %v, want clamp to 0", params["mix"])
	}
}

func TestSaturatorShapesAudio(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	oscNode, _ := render.NewOscillator(ctx, render.WaveSine, 220)

	m, err := NewSaturator(ctx, "sat_1", map[string]any{"drive": 24.0})
	if err != nil {
		t.Fatalf("NewSaturator: %v", err)
	}

	inEp, _ := m.PortNode("audio_in")
	if err := render.Connect(oscNode, inEp); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sinkPort(t, ctx, m, "audio_out")

	// Let the drive glide land before measuring.
	testutil.RenderSeconds(ctx, 0.2)

	buf := testutil.RenderSeconds(ctx, 0.1)
	testutil.RequireFinite(t, buf)

	peak := testutil.Peak(buf)
	if peak == 0 {
		t.Fatal("no output")
	}

	// Heavy tanh drive squares the sine up: RMS approaches the peak.
	if ratio := testutil.RMS(buf) / peak; ratio < 0.8 {
		t.Errorf("rms/peak = %v, want > 0.8 under heavy drive", ratio)
	}
}

func TestSaturatorMixZeroPassesDry(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := newConstNode(ctx, 0.25)

	m, err := NewSaturator(ctx, "sat_1", map[string]any{"mix": 0.0, "drive": 24.0})
	if err != nil {
		t.Fatalf("NewSaturator: %v", err)
	}

	inEp, _ := m.PortNode("audio_in")
	if err := render.Connect(src, inEp); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sinkPort(t, ctx, m, "audio_out")

	testutil.RenderSeconds(ctx, 0.2)

	buf := testutil.RenderFrames(ctx, ctx.BlockSize())
	testutil.RequireNear(t, buf[len(buf)-1], 0.25, 1e-3)
}

func TestSaturatorPorts(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	m, err := NewSaturator(ctx, "sat_1", nil)
	if err != nil {
		t.Fatalf("NewSaturator: %v", err)
	}

	for _, id := range []string{"audio_in", "drive_cv", "audio_out"} {
		if _, ok := m.PortNode(id); !ok {
			t.Errorf("port %s has no live endpoint", id)
		}
	}
}
