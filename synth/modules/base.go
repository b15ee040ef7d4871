// Package modules provides the canonical processing modules: oscillator,
// filter, envelope, saturator, sequencer, MIDI input, and master output.
// Each satisfies the engine module contract, owns its render primitives
// exclusively, and mutates live parameters only through smoothed schedules.
package modules

import (
	"math"

	"github.com/cwbudde/algo-modular/synth/engine"
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
)

// base carries the identity, port table, and port-endpoint lookup shared by
// every module, plus the default wiring delegation: Connect resolves its own
// output primitive and the target's endpoint and performs the node-level
// link, silently skipping anything unresolved.
type base struct {
	id    string
	typ   string
	label string
	ports []signal.PortDef
	nodes map[string]render.Endpoint
	owned []*render.Node
}

func newBase(id, typ, label string, ports []signal.PortDef) base {
	return base{
		id:    id,
		typ:   typ,
		label: label,
		ports: ports,
		nodes: make(map[string]render.Endpoint),
	}
}

func (b *base) ID() string    { return b.id }
func (b *base) Type() string  { return b.typ }
func (b *base) Label() string { return b.label }

func (b *base) Ports() []signal.PortDef {
	out := make([]signal.PortDef, len(b.ports))
	copy(out, b.ports)

	return out
}

func (b *base) PortNode(portID string) (render.Endpoint, bool) {
	ep, ok := b.nodes[portID]
	return ep, ok
}

// bind attaches the live endpoint realizing a port; own registers a node for
// disposal (whether or not it backs a port).
func (b *base) bind(portID string, ep render.Endpoint) { b.nodes[portID] = ep }

func (b *base) own(n *render.Node) *render.Node {
	b.owned = append(b.owned, n)
	return n
}

// Connect wires one of the module's own output primitives to the target's
// endpoint. A module may only wire from primitives it owns; a port realized
// by a parameter cannot act as a source, and unresolved endpoints on either
// side make this a no-op.
func (b *base) Connect(fromPortID string, target engine.Target) {
	src, ok := b.nodes[fromPortID].(*render.Node)
	if !ok || target.Module == nil {
		return
	}

	dst, ok := target.Module.PortNode(target.PortID)
	if !ok {
		return
	}

	_ = render.Connect(src, dst)
}

// Disconnect undoes Connect. The render layer rejects unwiring pairs that
// were never linked; that rejection is discarded here.
func (b *base) Disconnect(fromPortID string, target engine.Target) {
	src, ok := b.nodes[fromPortID].(*render.Node)
	if !ok || target.Module == nil {
		return
	}

	dst, ok := target.Module.PortNode(target.PortID)
	if !ok {
		return
	}

	_ = render.Disconnect(src, dst)
}

// Dispose releases every owned primitive. Node disposal is idempotent, so
// calling this twice, or on a partially initialized module, is safe.
func (b *base) Dispose() {
	for _, n := range b.owned {
		if n != nil {
			n.Dispose()
		}
	}
}

// getNum extracts a finite numeric field from an update map, tolerating the
// numeric types JSON and callers commonly supply. Wrong-typed or non-finite
// values report absence.
func getNum(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}

	return f, true
}

// getStr extracts a string field from an update map.
func getStr(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}

	s, ok := v.(string)

	return s, ok
}

// getBool extracts a boolean field, accepting numeric 0/1 as well.
func getBool(params map[string]any, key string) (bool, bool) {
	v, ok := params[key]
	if !ok {
		return false, false
	}

	switch t := v.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	default:
		return false, false
	}
}
