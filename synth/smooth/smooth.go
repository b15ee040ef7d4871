// Package smooth schedules click-free transitions on automatable parameters.
//
// Automatable parameters are mutated far more often than the render rate
// (slider drags, modulation), and an immediate value jump is audible. Glide
// replaces the jump with a short scheduled segment that always departs from
// the parameter's live instantaneous value, never from the target of a prior
// still-in-flight ramp.
package smooth

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/core"
	"github.com/cwbudde/algo-modular/synth/render"
)

// Mode selects the interpolation law.
type Mode int

const (
	// ModeTarget is a one-pole exponential approach with a time constant.
	// Because the approach is asymptotic, the exact target value is
	// force-set after landFactor time constants, so readers polling the
	// parameter shortly after scheduling observe the exact target rather
	// than a near value indefinitely.
	ModeTarget Mode = iota
	// ModeLinear is a constant-slope ramp over a fixed duration.
	ModeLinear
	// ModeExp is a one-pole approach with start and target floored to a
	// small positive epsilon, for strictly-positive quantities (frequency)
	// where zero is singular in the exponential domain. The literal target
	// is force-set after landFactor time constants.
	ModeExp
)

const (
	// DefaultDuration is the linear ramp length in seconds.
	DefaultDuration = 0.02
	// DefaultTimeConstant is the one-pole tau in seconds.
	DefaultTimeConstant = 0.03
	// DefaultMinDelta suppresses schedules whose distance to the current
	// value is imperceptible, keeping the automation queue small.
	DefaultMinDelta = 1e-4
	// DefaultEpsilon floors ModeExp endpoints away from zero.
	DefaultEpsilon = 1e-5

	// landFactor is how many time constants a one-pole segment runs before
	// the exact target is force-set.
	landFactor = 4
)

type options struct {
	mode         Mode
	duration     float64
	timeConstant float64
	minDelta     float64
	epsilon      float64
	delay        float64
	min, max     float64
	clamped      bool
	cancel       bool
}

func defaultOptions() options {
	return options{
		mode:         ModeTarget,
		duration:     DefaultDuration,
		timeConstant: DefaultTimeConstant,
		minDelta:     DefaultMinDelta,
		epsilon:      DefaultEpsilon,
		cancel:       true,
	}
}

// Option mutates scheduling options.
type Option func(*options)

// WithMode selects the interpolation law.
func WithMode(mode Mode) Option {
	return func(o *options) { o.mode = mode }
}

// WithDuration sets the ModeLinear ramp length in seconds.
func WithDuration(seconds float64) Option {
	return func(o *options) {
		if seconds > 0 {
			o.duration = seconds
		}
	}
}

// WithTimeConstant sets the one-pole tau in seconds.
func WithTimeConstant(seconds float64) Option {
	return func(o *options) {
		if seconds > 0 {
			o.timeConstant = seconds
		}
	}
}

// WithClamp clamps the target into [min, max] before anything else.
func WithClamp(min, max float64) Option {
	return func(o *options) {
		o.min = min
		o.max = max
		o.clamped = true
	}
}

// WithMinDelta overrides the suppression threshold. Zero disables
// suppression entirely.
func WithMinDelta(delta float64) Option {
	return func(o *options) {
		if delta >= 0 {
			o.minDelta = delta
		}
	}
}

// WithEpsilon overrides the ModeExp zero floor.
func WithEpsilon(eps float64) Option {
	return func(o *options) {
		if eps > 0 {
			o.epsilon = eps
		}
	}
}

// WithDelay starts the segment the given seconds in the future instead of
// now. The segment anchors at the value the timeline will have reached by
// then, so delayed segments stack onto in-flight ones.
func WithDelay(seconds float64) Option {
	return func(o *options) {
		if seconds > 0 {
			o.delay = seconds
		}
	}
}

// WithoutCancel keeps previously scheduled automation instead of replacing
// it, for deliberately stacking segments (multi-stage envelopes).
func WithoutCancel() Option {
	return func(o *options) { o.cancel = false }
}

// Glide schedules a smoothed transition of p toward target. It never fails:
// a nil parameter is ignored and a non-finite target passes through to the
// timeline untouched, as callers are responsible for not supplying one.
//
// Invocation contract, in order: clamp the target if requested; skip
// entirely when the target is within the suppression threshold of the live
// value; cancel pending automation and re-anchor at the live value unless
// the caller opted out; schedule the segment.
func Glide(p *render.Param, target float64, opts ...Option) {
	if p == nil {
		return
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.clamped && !math.IsNaN(target) {
		target = core.Clamp(target, o.min, o.max)
	}

	now := p.Context().Now()
	current := p.Value()

	if math.Abs(target-current) < o.minDelta {
		return
	}

	start := now + o.delay

	if o.cancel {
		p.CancelScheduledValues(start)
	}

	// Departure value: the live value, or for a delayed segment the value
	// the remaining timeline reaches by start.
	anchor := current
	if o.delay > 0 {
		anchor = p.ValueAt(start)
	}

	if o.cancel {
		p.SetValueAtTime(anchor, start)
	}

	switch o.mode {
	case ModeLinear:
		p.LinearRampToValueAtTime(target, start+o.duration)
	case ModeTarget:
		p.SetTargetAtTime(target, start, o.timeConstant)
		p.SetValueAtTime(target, start+landFactor*o.timeConstant)
	case ModeExp:
		floored := target
		if floored < o.epsilon {
			floored = o.epsilon
		}

		from := anchor
		if from < o.epsilon {
			from = o.epsilon
		}

		p.SetValueAtTime(from, start)
		p.SetTargetAtTime(floored, start, o.timeConstant)
		p.SetValueAtTime(target, start+landFactor*o.timeConstant)
	}
}

// Item is one parameter transition in a batch.
type Item struct {
	Param  *render.Param
	Target float64
	Opts   []Option
}

// GlideBatch applies Glide to every item, for modules that move several
// correlated parameters together (cutoff plus resonance).
func GlideBatch(items []Item) {
	for _, it := range items {
		Glide(it.Param, it.Target, it.Opts...)
	}
}
