package render

import (
	"errors"
	"math"
	"testing"
)

func renderBlocks(ctx *Context, blocks int) []float32 {
	buf := make([]float32, blocks*ctx.BlockSize())
	ctx.Render(buf)

	return buf
}

func TestOscillatorProducesOutput(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	n, _ := NewOscillator(ctx, WaveSine, 440)
	ctx.AddSink(n)

	buf := renderBlocks(ctx, 4)

	peak := 0.0
	for _, s := range buf {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}

	if peak < 0.9 {
		t.Errorf("sine peak = %v, want close to 1", peak)
	}
}

func TestOscillatorPitchVoltPerOctave(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)
	n, osc := NewOscillator(ctx, WaveSine, 110)
	ctx.AddSink(n)

	// One volt up doubles the frequency: count zero crossings over a fixed
	// window at 0 V and at 1 V.
	crossingsAt := func(volts float64) int {
		osc.Pitch.SetValueAtTime(volts, ctx.Now())

		buf := renderBlocks(ctx, 40)

		count := 0
		for i := 1; i < len(buf); i++ {
			if buf[i-1] < 0 && buf[i] >= 0 {
				count++
			}
		}

		return count
	}

	base := crossingsAt(0)
	up := crossingsAt(1)

	ratio := float64(up) / float64(base)
	if ratio < 1.8 || ratio > 2.2 {
		t.Errorf("octave ratio = %v (%d vs %d crossings), want ~2", ratio, up, base)
	}
}

func TestGainScalesInput(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := NewNode(ctx, &constProc{v: 0.5})
	gainNode, _ := NewGain(ctx, 0.5)

	if err := Connect(src, gainNode); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx.AddSink(gainNode)

	buf := renderBlocks(ctx, 1)
	if got := buf[len(buf)-1]; math.Abs(float64(got)-0.25) > 1e-6 {
		t.Errorf("output = %v, want 0.25", got)
	}
}

func TestConnectFanInSums(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	a := NewNode(ctx, &constProc{v: 0.25})
	b := NewNode(ctx, &constProc{v: 0.35})
	gainNode, _ := NewGain(ctx, 1)

	if err := Connect(a, gainNode); err != nil {
		t.Fatalf("Connect a: %v", err)
	}

	if err := Connect(b, gainNode); err != nil {
		t.Fatalf("Connect b: %v", err)
	}

	ctx.AddSink(gainNode)

	buf := renderBlocks(ctx, 1)
	if got := buf[len(buf)-1]; math.Abs(float64(got)-0.6) > 1e-6 {
		t.Errorf("output = %v, want 0.6", got)
	}
}

func TestConnectDuplicateIsNoOp(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := NewNode(ctx, &constProc{v: 0.5})
	gainNode, _ := NewGain(ctx, 1)

	if err := Connect(src, gainNode); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	if err := Connect(src, gainNode); err != nil {
		t.Fatalf("duplicate Connect: %v", err)
	}

	ctx.AddSink(gainNode)

	buf := renderBlocks(ctx, 1)
	if got := buf[len(buf)-1]; math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("output = %v, want 0.5 (input summed once)", got)
	}
}

func TestDisconnectNeverLinked(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := NewNode(ctx, &constProc{})
	dst := NewNode(ctx, &constProc{})

	if err := Disconnect(src, dst); !errors.Is(err, errNotConnected) {
		t.Errorf("Disconnect = %v, want errNotConnected", err)
	}
}

func TestConnectAcrossContextsRejected(t *testing.T) {
	t.Parallel()

	ctx1 := newTestContext(t)
	ctx2 := newTestContext(t)

	src := NewNode(ctx1, &constProc{})
	dst := NewNode(ctx2, &constProc{})

	if err := Connect(src, dst); !errors.Is(err, errContext) {
		t.Errorf("Connect = %v, want errContext", err)
	}
}

func TestConnectDisposedSource(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := NewNode(ctx, &constProc{})
	dst := NewNode(ctx, &constProc{})

	src.Dispose()

	if err := Connect(src, dst); !errors.Is(err, errDisposed) {
		t.Errorf("Connect = %v, want errDisposed", err)
	}
}

func TestDisposeDetachesEverywhere(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := NewNode(ctx, &constProc{v: 0.5})
	gainNode, gain := NewGain(ctx, 1)

	if err := Connect(src, gainNode); err != nil {
		t.Fatalf("Connect input: %v", err)
	}

	if err := Connect(src, gain.Level); err != nil {
		t.Fatalf("Connect modulation: %v", err)
	}

	ctx.AddSink(gainNode)
	src.Dispose()

	buf := renderBlocks(ctx, 1)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0 after source disposal", i, s)
		}
	}

	if !src.Disposed() {
		t.Error("Disposed() = false after Dispose")
	}

	// Second disposal is a no-op.
	src.Dispose()
}

func TestSinkMixingAndClamp(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	a := NewNode(ctx, &constProc{v: 0.8})
	b := NewNode(ctx, &constProc{v: 0.7})
	ctx.AddSink(a)
	ctx.AddSink(b)

	buf := renderBlocks(ctx, 1)
	for i, s := range buf {
		if s != 1 {
			t.Fatalf("sample %d = %v, want clamp at 1", i, s)
		}
	}
}

func TestFeedbackCycleRendersWithDelay(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	a, _ := NewGain(ctx, 1)
	b, _ := NewGain(ctx, 1)

	if err := Connect(a, b); err != nil {
		t.Fatalf("Connect a->b: %v", err)
	}

	if err := Connect(b, a); err != nil {
		t.Fatalf("Connect b->a: %v", err)
	}

	ctx.AddSink(b)

	// A cyclic patch must render without recursing; output stays finite.
	buf := renderBlocks(ctx, 8)
	for i, s := range buf {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			t.Fatalf("sample %d is not finite: %v", i, s)
		}
	}
}

func TestEdgeDetectorFiresOnce(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := NewNode(ctx, &constProc{v: 1})
	detNode, det := NewEdgeDetector(ctx, 0.5)

	rises, falls := 0, 0
	det.OnRise = func() { rises++ }
	det.OnFall = func() { falls++ }

	if err := Connect(src, detNode); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx.AddSink(detNode)

	// A held high level fires exactly one rise across many blocks.
	renderBlocks(ctx, 4)

	if rises != 1 || falls != 0 {
		t.Errorf("rises = %d, falls = %d, want 1, 0", rises, falls)
	}
}

func TestTapCapturesWaveform(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := NewNode(ctx, &constProc{v: 0.5})
	tapNode, tap := NewTap(ctx, 1, 64)

	if err := Connect(src, tapNode); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx.AddSink(tapNode)
	renderBlocks(ctx, 1)

	wave := tap.Waveform()
	if len(wave) != 64 {
		t.Fatalf("len(Waveform()) = %d, want 64", len(wave))
	}

	for i, v := range wave {
		if math.Abs(v-0.5) > 1e-9 {
			t.Fatalf("captured sample %d = %v, want 0.5", i, v)
		}
	}
}

func TestTapMuteKeepsCapturing(t *testing.T) {
	t.Parallel()

	ctx := newTestContext(t)

	src := NewNode(ctx, &constProc{v: 0.5})
	tapNode, tap := NewTap(ctx, 1, 64)

	if err := Connect(src, tapNode); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx.AddSink(tapNode)
	tap.SetMute(true)

	buf := renderBlocks(ctx, 1)
	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v, want silence while muted", i, s)
		}
	}

	wave := tap.Waveform()
	if len(wave) == 0 || wave[len(wave)-1] == 0 {
		t.Error("capture ring should keep filling while muted")
	}
}

func TestContextDisposeSilences(t *testing.T) {
	t.Parallel()

	ctx, err := New(WithSampleRate(44100), WithBlockSize(128))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	n := NewNode(ctx, &constProc{v: 0.5})
	ctx.AddSink(n)

	ctx.Dispose()

	if !ctx.Disposed() {
		t.Fatal("Disposed() = false after Dispose")
	}

	buf := make([]float32, 128)
	ctx.Render(buf)

	for i, s := range buf {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0 after context disposal", i, s)
		}
	}

	// Second disposal is a no-op.
	ctx.Dispose()
}

func TestContextOptionValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(WithSampleRate(0)); err == nil {
		t.Error("expected error for zero sample rate")
	}

	if _, err := New(WithBlockSize(-1)); err == nil {
		t.Error("expected error for negative block size")
	}
}

func TestParseWaveform(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"sine", "saw", "square", "triangle"} {
		w, err := ParseWaveform(name)
		if err != nil {
			t.Fatalf("ParseWaveform(%q): %v", name, err)
		}

		if w.String() != name {
			t.Errorf("round trip %q -> %q", name, w.String())
		}
	}

	if _, err := ParseWaveform("noise"); err == nil {
		t.Error("expected error for unknown waveform")
	}
}
