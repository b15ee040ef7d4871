// Package testutil provides shared helpers for rendering and signal
// comparison in tests.
package testutil

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-modular/synth/render"
)

// RenderFrames pulls n frames from the context and returns them as float64
// for easier analysis.
func RenderFrames(ctx *render.Context, n int) []float64 {
	buf := make([]float32, n)
	ctx.Render(buf)

	out := make([]float64, n)
	for i, v := range buf {
		out[i] = float64(v)
	}

	return out
}

// RenderSeconds pulls the given duration from the context.
func RenderSeconds(ctx *render.Context, seconds float64) []float64 {
	return RenderFrames(ctx, int(seconds*ctx.SampleRate()))
}

// Peak returns the maximum absolute sample value.
func Peak(data []float64) float64 {
	peak := 0.0
	for _, v := range data {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	return peak
}

// RMS returns the root-mean-square level of the signal.
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range data {
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(data)))
}

// RequireNear fails t if got is not within eps of want.
func RequireNear(t *testing.T, got, want, eps float64) {
	t.Helper()

	if math.IsNaN(got) || math.Abs(got-want) > eps {
		t.Fatalf("got %v, want %v (eps %v)", got, want, eps)
	}
}

// RequireFinite fails t if any element is NaN or Inf.
func RequireFinite(t *testing.T, data []float64) {
	t.Helper()

	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("index %d: non-finite value %v", i, v)
		}
	}
}

// RequireSilent fails t if any sample exceeds eps in magnitude.
func RequireSilent(t *testing.T, data []float64, eps float64) {
	t.Helper()

	for i, v := range data {
		if math.Abs(v) > eps {
			t.Fatalf("index %d: expected silence, got %v", i, v)
		}
	}
}
