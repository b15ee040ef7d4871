package modules

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/effects"
	"github.com/meko-christian/algo-approx"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
	"github.com/cwbudde/algo-modular/synth/smooth"
)

// TypeSaturator is the registered module type name for the waveshaper.
const TypeSaturator = "saturator"

const (
	defaultSatDriveDB = 6.0
	defaultSatMix     = 1.0

	minSatDriveDB = 0.0
	maxSatDriveDB = 24.0

	// Valid linear drive range of the underlying shaper.
	minSatDriveLinear = 0.01
	maxSatDriveLinear = 20.0

	// ln(10)/20: converts decibels to the natural-log domain so the
	// per-block dB-to-linear mapping can go through the fast exponential.
	dbToNat = math.Ln10 / 20
)

// satProc adapts the tanh waveshaper into a render node. Drive is expressed
// in decibels and modulated additively by the CV input; the linear drive fed
// to the shaper is recomputed once per block through the fast exponential.
type satProc struct {
	DriveDB *render.Param
	DriveCV *render.Param
	Mix     *render.Param

	d *effects.Distortion

	lastDrive float64
	lastMix   float64

	buf []float64
}

func (p *satProc) Process(n *render.Node, out []float64) {
	scratch := p.buf[:len(out)]

	p.DriveDB.Sample(scratch)
	db := scratch[0]

	p.DriveCV.Sample(scratch)
	db += scratch[0]

	p.Mix.Sample(scratch)
	mix := core.Clamp(scratch[0], 0, 1)

	drive := core.Clamp(approx.FastExp(db*dbToNat), minSatDriveLinear, maxSatDriveLinear)

	if !floatEq(drive, p.lastDrive) {
		if err := p.d.SetDrive(drive); err == nil {
			p.lastDrive = drive
		}
	}

	if !floatEq(mix, p.lastMix) {
		if err := p.d.SetMix(mix); err == nil {
			p.lastMix = mix
		}
	}

	copy(out, n.In())
	p.d.ProcessInPlace(out)
}

// Saturator is a tanh waveshaper with drive in decibels and a wet/dry mix.
// The drive CV input adds to the base drive in the decibel domain, so a
// bipolar modulator sweeps the saturation symmetrically around the knob.
type Saturator struct {
	base

	proc *satProc

	driveDB float64
	mix     float64
}

// NewSaturator constructs a waveshaper module.
func NewSaturator(ctx *render.Context, id string, params map[string]any) (*Saturator, error) {
	ports := []signal.PortDef{
		{ID: "audio_in", Direction: signal.In, Kind: signal.KindAudio},
		{ID: "drive_cv", Direction: signal.In, Kind: signal.KindCV, Range: signal.Range{Min: -maxSatDriveDB, Max: maxSatDriveDB}},
		{ID: "audio_out", Direction: signal.Out, Kind: signal.KindAudio},
	}

	drive := core.Clamp(approx.FastExp(defaultSatDriveDB*dbToNat), minSatDriveLinear, maxSatDriveLinear)

	d, err := effects.NewDistortion(
		ctx.SampleRate(),
		effects.WithDistortionMode(effects.DistortionModeTanh),
		effects.WithDistortionDrive(drive),
		effects.WithDistortionMix(defaultSatMix),
	)
	if err != nil {
		return nil, fmt.Errorf("modules: create waveshaper: %w", err)
	}

	m := &Saturator{
		base:    newBase(id, TypeSaturator, "Saturator", ports),
		driveDB: defaultSatDriveDB,
		mix:     defaultSatMix,
	}

	proc := &satProc{
		d:         d,
		lastDrive: drive,
		lastMix:   defaultSatMix,
		buf:       make([]float64, ctx.BlockSize()),
	}

	node := render.NewNode(ctx, proc)
	proc.DriveDB = node.NewParam(defaultSatDriveDB)
	proc.DriveCV = node.NewParam(0)
	proc.Mix = node.NewParam(defaultSatMix)
	m.proc = proc
	m.own(node)

	m.bind("audio_in", node)
	m.bind("audio_out", node)
	m.bind("drive_cv", proc.DriveCV)

	m.UpdateParams(params)

	return m, nil
}

// UpdateParams applies a partial parameter update; drive is clamped to
// [0, 24] dB and mix to [0, 1].
func (m *Saturator) UpdateParams(params map[string]any) {
	var batch []smooth.Item

	if db, ok := getNum(params, "drive"); ok {
		m.driveDB = core.Clamp(db, minSatDriveDB, maxSatDriveDB)
		batch = append(batch, smooth.Item{
			Param:  m.proc.DriveDB,
			Target: db,
			Opts:   []smooth.Option{smooth.WithClamp(minSatDriveDB, maxSatDriveDB)},
		})
	}

	if mix, ok := getNum(params, "mix"); ok {
		m.mix = core.Clamp(mix, 0, 1)
		batch = append(batch, smooth.Item{
			Param:  m.proc.Mix,
			Target: mix,
			Opts:   []smooth.Option{smooth.WithClamp(0, 1)},
		})
	}

	smooth.GlideBatch(batch)
}

// Params returns a full snapshot of the user-facing parameters.
func (m *Saturator) Params() map[string]any {
	return map[string]any{
		"drive": m.driveDB,
		"mix":   m.mix,
	}
}

var _ engine.Module = (*Saturator)(nil)
var _ engine.Parameterized = (*Saturator)(nil)
