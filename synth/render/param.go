package render

import "math"

type eventKind int

const (
	eventSet eventKind = iota
	eventRamp
	eventTarget
)

// event is one scheduled automation segment. Ramp and target events are
// anchored at insert time: startV is the automation value at start given all
// earlier events, so a segment always departs from where the timeline
// actually is, not from where a caller believes it is.
type event struct {
	kind    eventKind
	start   float64
	end     float64 // ramp only
	startV  float64 // ramp, target
	targetV float64
	tau     float64 // target only
}

// Param is an automatable scalar on a processing node. Its instantaneous
// value follows a scheduled automation timeline; node outputs wired into the
// param (CV modulation) are summed on top of the automation value at render
// time but are not part of the value read back by Value.
type Param struct {
	ctx     *Context
	initial float64
	events  []event
	mods    []*Node
}

func newParam(ctx *Context, initial float64) *Param {
	return &Param{ctx: ctx, initial: initial}
}

// Context returns the rendering context this parameter belongs to.
func (p *Param) Context() *Context { return p.ctx }

// Value returns the instantaneous automation value at the current render time.
func (p *Param) Value() float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()

	return p.automationValueAt(p.now())
}

// ValueAt returns the automation value at time t in seconds.
func (p *Param) ValueAt(t float64) float64 {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()

	return p.automationValueAt(t)
}

// EventCount returns the number of scheduled automation events.
func (p *Param) EventCount() int {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()

	return len(p.events)
}

// SetValueAtTime schedules an immediate jump to v at time t.
func (p *Param) SetValueAtTime(v, t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()

	p.insert(event{kind: eventSet, start: t, targetV: v})
}

// LinearRampToValueAtTime schedules a constant-slope ramp ending at v at time
// end. The ramp departs from the automation value at the last scheduled event
// (or now, whichever is later at insert time).
func (p *Param) LinearRampToValueAtTime(v, end float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()

	start := p.now()
	if n := len(p.events); n > 0 && p.events[n-1].start > start {
		start = p.events[n-1].start
	}

	if end <= start {
		p.insert(event{kind: eventSet, start: start, targetV: v})
		return
	}

	p.insert(event{kind: eventRamp, start: start, end: end, targetV: v})
}

// SetTargetAtTime schedules a one-pole exponential approach toward v
// starting at time t with time constant tau. The approach is asymptotic; it
// runs until the next scheduled event.
func (p *Param) SetTargetAtTime(v, t, tau float64) {
	if tau <= 0 {
		p.SetValueAtTime(v, t)
		return
	}

	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()

	p.insert(event{kind: eventTarget, start: t, targetV: v, tau: tau})
}

// CancelScheduledValues removes every event scheduled at or after time t.
// Segments already in flight before t keep running.
func (p *Param) CancelScheduledValues(t float64) {
	p.ctx.mu.Lock()
	defer p.ctx.mu.Unlock()

	for len(p.events) > 0 && p.events[len(p.events)-1].start >= t {
		p.events = p.events[:len(p.events)-1]
	}
}

// now must be called with the context lock held.
func (p *Param) now() float64 {
	return float64(p.ctx.frame) / p.ctx.cfg.sampleRate
}

// insert truncates any events scheduled after ev.start, anchors ev at the
// remaining timeline, and appends it. Lock must be held.
func (p *Param) insert(ev event) {
	for len(p.events) > 0 && p.events[len(p.events)-1].start > ev.start {
		p.events = p.events[:len(p.events)-1]
	}

	if ev.kind != eventSet {
		ev.startV = p.automationValueAt(ev.start)
	}

	p.events = append(p.events, ev)
}

// automationValueAt evaluates the timeline at time t. Lock must be held.
func (p *Param) automationValueAt(t float64) float64 {
	idx := -1
	for i := range p.events {
		if p.events[i].start <= t {
			idx = i
		} else {
			break
		}
	}

	if idx < 0 {
		return p.initial
	}

	ev := p.events[idx]
	switch ev.kind {
	case eventSet:
		return ev.targetV
	case eventRamp:
		if t >= ev.end {
			return ev.targetV
		}

		frac := (t - ev.start) / (ev.end - ev.start)

		return ev.startV + (ev.targetV-ev.startV)*frac
	case eventTarget:
		return ev.targetV + (ev.startV-ev.targetV)*math.Exp(-(t-ev.start)/ev.tau)
	default:
		return p.initial
	}
}

// Sample fills dst with the effective per-sample values for the block being
// rendered: the automation value plus every connected modulation output.
// Only valid from within a Processor, with the render lock held.
func (p *Param) Sample(dst []float64) {
	start := p.ctx.frame
	inv := 1.0 / p.ctx.cfg.sampleRate

	for i := range dst {
		dst[i] = p.automationValueAt(float64(start+int64(i)) * inv)
	}

	for _, m := range p.mods {
		m.render(p.ctx.epoch, len(dst))
		for i := range dst {
			dst[i] += m.out[i]
		}
	}
}

// attach and detach implement Endpoint; lock must be held by Connect/Disconnect.
func (p *Param) attach(src *Node) error {
	for _, m := range p.mods {
		if m == src {
			return nil
		}
	}

	p.mods = append(p.mods, src)

	return nil
}

func (p *Param) detach(src *Node) error {
	for i, m := range p.mods {
		if m == src {
			p.mods = append(p.mods[:i], p.mods[i+1:]...)
			return nil
		}
	}

	return errNotConnected
}

func (p *Param) context() *Context { return p.ctx }
