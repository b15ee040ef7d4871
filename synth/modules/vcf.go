package modules

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-dsp/dsp/filter/moog"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
	"github.com/cwbudde/algo-modular/synth/smooth"
)

// TypeVCF is the registered module type name for the filter.
const TypeVCF = "vcf"

const (
	defaultVCFCutoff    = 1200.0
	defaultVCFResonance = 0.8
	defaultVCFDrive     = 1.0

	minVCFCutoff    = 20.0
	maxVCFCutoff    = 20000.0
	maxVCFResonance = 4.0
	minVCFDrive     = 0.1
	maxVCFDrive     = 24.0
)

// moogProc adapts the nonlinear Moog ladder into a render node. Cutoff,
// resonance, and drive are automatable parameters evaluated once per block;
// the cutoff CV input follows the 1 V/oct convention on top of the base
// cutoff. Ladder coefficients rebuild only when a value actually moved.
type moogProc struct {
	CutoffHz  *render.Param
	CutoffCV  *render.Param
	Resonance *render.Param
	Drive     *render.Param

	f          *moog.Filter
	sampleRate float64

	lastCutoff    float64
	lastResonance float64
	lastDrive     float64

	buf []float64
}

func (p *moogProc) Process(n *render.Node, out []float64) {
	scratch := p.buf[:len(out)]

	p.CutoffHz.Sample(scratch)
	hz := scratch[0]

	p.CutoffCV.Sample(scratch)
	cv := scratch[0]

	p.Resonance.Sample(scratch)
	res := core.Clamp(scratch[0], 0, maxVCFResonance)

	p.Drive.Sample(scratch)
	drive := core.Clamp(scratch[0], minVCFDrive, maxVCFDrive)

	cutoff := core.Clamp(hz*math.Exp2(cv), minVCFCutoff, 0.49*p.sampleRate)

	if !floatEq(cutoff, p.lastCutoff) {
		if err := p.f.SetCutoffHz(cutoff); err == nil {
			p.lastCutoff = cutoff
		}
	}

	if !floatEq(res, p.lastResonance) {
		if err := p.f.SetResonance(res); err == nil {
			p.lastResonance = res
		}
	}

	if !floatEq(drive, p.lastDrive) {
		if err := p.f.SetDrive(drive); err == nil {
			p.lastDrive = drive
		}
	}

	copy(out, n.In())
	p.f.ProcessInPlace(out)
}

// VCF is a voltage-controlled lowpass filter built on the Moog ladder.
type VCF struct {
	base

	proc *moogProc

	cutoff    float64
	resonance float64
	drive     float64
}

// NewVCF constructs a filter module.
func NewVCF(ctx *render.Context, id string, params map[string]any) (*VCF, error) {
	ports := []signal.PortDef{
		{ID: "audio_in", Direction: signal.In, Kind: signal.KindAudio},
		{ID: "cutoff_cv", Direction: signal.In, Kind: signal.KindCV, VoltPerOctave: true},
		{ID: "audio_out", Direction: signal.Out, Kind: signal.KindAudio},
	}

	cutoff := core.Clamp(defaultVCFCutoff, minVCFCutoff, 0.49*ctx.SampleRate())

	f, err := moog.New(
		ctx.SampleRate(),
		moog.WithVariant(moog.VariantHuovilainen),
		moog.WithCutoffHz(cutoff),
		moog.WithResonance(defaultVCFResonance),
		moog.WithDrive(defaultVCFDrive),
		moog.WithNormalizeOutput(true),
	)
	if err != nil {
		return nil, fmt.Errorf("modules: create ladder filter: %w", err)
	}

	m := &VCF{
		base:      newBase(id, TypeVCF, "Filter", ports),
		cutoff:    cutoff,
		resonance: defaultVCFResonance,
		drive:     defaultVCFDrive,
	}

	proc := &moogProc{
		f:             f,
		sampleRate:    ctx.SampleRate(),
		lastCutoff:    cutoff,
		lastResonance: defaultVCFResonance,
		lastDrive:     defaultVCFDrive,
		buf:           make([]float64, ctx.BlockSize()),
	}

	node := render.NewNode(ctx, proc)
	proc.CutoffHz = node.NewParam(cutoff)
	proc.CutoffCV = node.NewParam(0)
	proc.Resonance = node.NewParam(defaultVCFResonance)
	proc.Drive = node.NewParam(defaultVCFDrive)
	m.proc = proc
	m.own(node)

	m.bind("audio_in", node)
	m.bind("audio_out", node)
	m.bind("cutoff_cv", proc.CutoffCV)

	m.UpdateParams(params)

	return m, nil
}

// UpdateParams applies a partial parameter update; every field is clamped
// to its documented domain independently. Cutoff glides exponentially so a
// slider sweep is heard as a pitch-linear motion; resonance and drive move
// together through the batch variant since they interact in the ladder.
func (m *VCF) UpdateParams(params map[string]any) {
	if hz, ok := getNum(params, "cutoff"); ok {
		m.cutoff = core.Clamp(hz, minVCFCutoff, maxVCFCutoff)
		smooth.Glide(m.proc.CutoffHz, hz,
			smooth.WithMode(smooth.ModeExp),
			smooth.WithClamp(minVCFCutoff, maxVCFCutoff))
	}

	var batch []smooth.Item

	if res, ok := getNum(params, "resonance"); ok {
		m.resonance = core.Clamp(res, 0, maxVCFResonance)
		batch = append(batch, smooth.Item{
			Param:  m.proc.Resonance,
			Target: res,
			Opts:   []smooth.Option{smooth.WithClamp(0, maxVCFResonance)},
		})
	}

	if drive, ok := getNum(params, "drive"); ok {
		m.drive = core.Clamp(drive, minVCFDrive, maxVCFDrive)
		batch = append(batch, smooth.Item{
			Param:  m.proc.Drive,
			Target: drive,
			Opts:   []smooth.Option{smooth.WithClamp(minVCFDrive, maxVCFDrive)},
		})
	}

	smooth.GlideBatch(batch)
}

// Params returns a full snapshot of the user-facing parameters.
func (m *VCF) Params() map[string]any {
	return map[string]any{
		"cutoff":    m.cutoff,
		"resonance": m.resonance,
		"drive":     m.drive,
	}
}

func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

var _ engine.Module = (*VCF)(nil)
var _ engine.Parameterized = (*VCF)(nil)
