// Command modularplay builds a small sequenced synthesizer patch and plays
// it, either through the default audio device or as an offline render with a
// level report.
//
// The patch is sequencer -> envelope -> oscillator -> ladder filter ->
// saturator -> master output, with the sequencer driving both the envelope
// gate and the oscillator pitch.
//
// Examples:
//
//	modularplay
//	modularplay -tempo 140 -wave square -cutoff 800
//	modularplay -offline -duration 2
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/modules"
	"github.com/cwbudde/algo-modular/synth/render"
)

func main() {
	duration := flag.Float64("duration", 4, "play/render time in seconds")
	offline := flag.Bool("offline", false, "render offline and print levels instead of playing")
	sampleRate := flag.Float64("samplerate", 48000, "sample rate in Hz")
	tempo := flag.Float64("tempo", 120, "sequencer tempo in BPM")
	wave := flag.String("wave", "saw", "oscillator waveform (sine, saw, square, triangle)")
	cutoff := flag.Float64("cutoff", 1200, "filter cutoff in Hz")
	resonance := flag.Float64("resonance", 1.2, "filter resonance [0, 4]")
	drive := flag.Float64("drive", 6, "saturator drive in dB")
	volume := flag.Float64("volume", 0.7, "master volume [0, 1]")
	flag.Parse()

	if err := run(*duration, *offline, *sampleRate, *tempo, *wave, *cutoff, *resonance, *drive, *volume); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(duration float64, offline bool, sampleRate, tempo float64, wave string, cutoff, resonance, drive, volume float64) error {
	ctx, err := render.New(render.WithSampleRate(sampleRate))
	if err != nil {
		return err
	}
	defer ctx.Dispose()

	eng := engine.New(ctx)
	reg := modules.Registry()

	seq, err := eng.CreateModule(modules.TypeSequencer, reg.Lookup(modules.TypeSequencer), map[string]any{
		"tempo": tempo,
	})
	if err != nil {
		return err
	}

	env, err := eng.CreateModule(modules.TypeADSR, reg.Lookup(modules.TypeADSR), map[string]any{
		"attack":  0.005,
		"decay":   0.15,
		"sustain": 0.5,
		"release": 0.1,
	})
	if err != nil {
		return err
	}

	vco, err := eng.CreateModule(modules.TypeVCO, reg.Lookup(modules.TypeVCO), map[string]any{
		"wave": wave,
	})
	if err != nil {
		return err
	}

	vcf, err := eng.CreateModule(modules.TypeVCF, reg.Lookup(modules.TypeVCF), map[string]any{
		"cutoff":    cutoff,
		"resonance": resonance,
	})
	if err != nil {
		return err
	}

	sat, err := eng.CreateModule(modules.TypeSaturator, reg.Lookup(modules.TypeSaturator), map[string]any{
		"drive": drive,
	})
	if err != nil {
		return err
	}

	out, err := eng.CreateModule(modules.TypeOutput, reg.Lookup(modules.TypeOutput), map[string]any{
		"volume": volume,
	})
	if err != nil {
		return err
	}

	eng.Connect(seq, "cv_out", vco, "pitch_cv")
	eng.Connect(seq, "gate_out", env, "gate_in")
	eng.Connect(env, "cv_out", vco, "gate_in")
	eng.Connect(vco, "audio_out", vcf, "audio_in")
	eng.Connect(vcf, "audio_out", sat, "audio_in")
	eng.Connect(sat, "audio_out", out, "audio_in")

	if offline {
		return renderOffline(ctx, duration)
	}

	return play(ctx, duration)
}

func renderOffline(ctx *render.Context, duration float64) error {
	buf := make([]float32, int(duration*ctx.SampleRate()))
	ctx.Render(buf)

	peak, sum := 0.0, 0.0
	for _, s := range buf {
		v := float64(s)
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sum += v * v
	}

	rms := math.Sqrt(sum / float64(len(buf)))
	fmt.Printf("rendered %d samples: peak %.4f, rms %.4f\n", len(buf), peak, rms)

	return nil
}

// contextReader adapts the rendering context to the byte stream the audio
// device consumes: mono float32, little endian.
type contextReader struct {
	ctx *render.Context
	buf []float32
}

func (r *contextReader) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if frames == 0 {
		return 0, nil
	}

	if cap(r.buf) < frames {
		r.buf = make([]float32, frames)
	}

	buf := r.buf[:frames]
	r.ctx.Render(buf)

	for i, s := range buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}

	return frames * 4, nil
}

func play(ctx *render.Context, duration float64) error {
	op := &oto.NewContextOptions{
		SampleRate:   int(ctx.SampleRate()),
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	}

	octx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	player := octx.NewPlayer(&contextReader{ctx: ctx})
	player.Play()
	defer func() { _ = player.Close() }()

	time.Sleep(time.Duration(duration * float64(time.Second)))

	return nil
}
