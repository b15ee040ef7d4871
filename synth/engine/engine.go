package engine

import (
	"fmt"
	"sync"

	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
)

// Connection is a directed edge in the patch graph, identified by its
// 4-tuple. An edge's existence implies the underlying live wiring has been
// established; the connection list and the live graph never diverge.
type Connection struct {
	FromModule string
	FromPort   string
	ToModule   string
	ToPort     string
}

// Engine owns the patch state for the lifetime of one rendering context:
// the module registry, the connection list, and the per-type id counters.
//
// All mutating operations are total over malformed input: invalid ids,
// missing ports, incompatible signal kinds, or an absent rendering context
// degrade to a no-op rather than failing.
//
// The registry and connection list are replaced wholesale on every mutation,
// so snapshots handed to readers never show a torn intermediate state.
type Engine struct {
	mu       sync.Mutex
	ctx      *render.Context
	modules  map[string]Module
	conns    []Connection
	counters map[string]int
}

// New creates a patch engine bound to the given rendering context. A nil
// context is allowed; module creation then reports no context until
// SetContext attaches one.
func New(ctx *render.Context) *Engine {
	return &Engine{
		ctx:      ctx,
		modules:  make(map[string]Module),
		counters: make(map[string]int),
	}
}

// SetContext attaches the shared rendering context. Replacing a context
// implies the previous patch state is disposed.
func (e *Engine) SetContext(ctx *render.Context) {
	e.ClearPatch()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.ctx = ctx
}

// Context returns the rendering context, or nil.
func (e *Engine) Context() *render.Context {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.ctx
}

// CreateModule allocates an id of the form type_N (N strictly increasing per
// type, never reused), invokes the factory with the shared rendering context,
// and registers the result. Returns nil, nil when no live rendering context
// exists yet: the caller retries later. Factory errors propagate unchanged.
//
// The returned module's primitives are live immediately; an oscillator
// module starts producing output as soon as it is rendered.
func (e *Engine) CreateModule(moduleType string, factory Factory, params map[string]any) (Module, error) {
	if moduleType == "" || factory == nil {
		return nil, nil
	}

	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()

	if ctx == nil || ctx.Disposed() {
		return nil, nil
	}

	e.mu.Lock()
	e.counters[moduleType]++
	id := fmt.Sprintf("%s_%d", moduleType, e.counters[moduleType])
	e.mu.Unlock()

	mod, err := factory(ctx, id, params)
	if err != nil {
		return nil, err
	}

	if mod == nil {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]Module, len(e.modules)+1)
	for k, v := range e.modules {
		next[k] = v
	}

	next[mod.ID()] = mod
	e.modules = next

	return mod, nil
}

// Connect validates and performs a connection between two module ports.
// Each step is a short-circuit gate: no-op self edges, unregistered or stale
// module references, duplicate edges, missing ports, wrong directions, and
// incompatible signal kinds all reject silently. The destination's
// incoming-connection hook runs before the actual wiring so the module can
// switch internal mode first; the source module then performs the live
// wiring from its own primitive; finally the connection record is appended.
func (e *Engine) Connect(from Module, fromPort string, to Module, toPort string) {
	if from == nil || to == nil || fromPort == "" || toPort == "" {
		return
	}

	if from.ID() == to.ID() && fromPort == toPort {
		return
	}

	conn := Connection{
		FromModule: from.ID(),
		FromPort:   fromPort,
		ToModule:   to.ID(),
		ToPort:     toPort,
	}

	e.mu.Lock()

	if e.hasConnection(conn) || !e.registered(from) || !e.registered(to) {
		e.mu.Unlock()
		return
	}

	e.mu.Unlock()

	src, ok := signal.FindPort(from.Ports(), fromPort)
	if !ok || src.Direction != signal.Out {
		return
	}

	dst, ok := signal.FindPort(to.Ports(), toPort)
	if !ok || dst.Direction != signal.In {
		return
	}

	if !signal.Compatible(src.Kind, dst.Kind) {
		return
	}

	if obs, ok := to.(ConnectionObserver); ok {
		obs.OnIncomingConnection(toPort)
	}

	from.Connect(fromPort, Target{Module: to, PortID: toPort})

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.hasConnection(conn) || !e.registered(from) || !e.registered(to) {
		return
	}

	next := make([]Connection, len(e.conns), len(e.conns)+1)
	copy(next, e.conns)
	e.conns = append(next, conn)
}

// RemoveConnection removes the logical record first, so concurrent readers
// never see a stale edge even if live unwiring fails, then invokes the
// destination's disconnection hook, then unwires the live primitives.
// Unwiring is best-effort: the render layer rejects unwiring pairs that were
// never actually linked, and that rejection is discarded here.
func (e *Engine) RemoveConnection(conn Connection) {
	e.mu.Lock()

	idx := -1
	for i, c := range e.conns {
		if c == conn {
			idx = i
			break
		}
	}

	if idx < 0 {
		e.mu.Unlock()
		return
	}

	next := make([]Connection, 0, len(e.conns)-1)
	next = append(next, e.conns[:idx]...)
	next = append(next, e.conns[idx+1:]...)
	e.conns = next

	from := e.modules[conn.FromModule]
	to := e.modules[conn.ToModule]
	e.mu.Unlock()

	if to != nil {
		if obs, ok := to.(ConnectionObserver); ok {
			obs.OnIncomingDisconnection(conn.ToPort)
		}
	}

	if from != nil {
		from.Disconnect(conn.FromPort, Target{Module: to, PortID: conn.ToPort})
	}
}

// RemoveModule disposes the module, removes it from the registry, and drops
// every connection touching it; no dangling edges survive. Destinations that
// lose their external driver are notified so they can revert to their
// free-running default.
func (e *Engine) RemoveModule(id string) {
	e.mu.Lock()

	mod, ok := e.modules[id]
	if !ok {
		e.mu.Unlock()
		return
	}

	next := make(map[string]Module, len(e.modules)-1)
	for k, v := range e.modules {
		if k != id {
			next[k] = v
		}
	}
	e.modules = next

	kept := make([]Connection, 0, len(e.conns))
	var dropped []Connection
	for _, c := range e.conns {
		if c.FromModule == id || c.ToModule == id {
			dropped = append(dropped, c)
		} else {
			kept = append(kept, c)
		}
	}
	e.conns = kept

	survivors := e.modules
	e.mu.Unlock()

	for _, c := range dropped {
		if c.FromModule != id {
			continue
		}

		if to := survivors[c.ToModule]; to != nil {
			if obs, ok := to.(ConnectionObserver); ok {
				obs.OnIncomingDisconnection(c.ToPort)
			}
		}
	}

	mod.Dispose()
}

// ClearPatch disposes every module and resets registry, connection list, and
// id counters to their initial empty state, for full-session reset.
func (e *Engine) ClearPatch() {
	e.mu.Lock()
	old := e.modules
	e.modules = make(map[string]Module)
	e.conns = nil
	e.counters = make(map[string]int)
	e.mu.Unlock()

	for _, mod := range old {
		mod.Dispose()
	}
}

// Modules returns a snapshot of the registered modules.
func (e *Engine) Modules() []Module {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Module, 0, len(e.modules))
	for _, m := range e.modules {
		out = append(out, m)
	}

	return out
}

// Module returns the registered module with the given id, or nil.
func (e *Engine) Module(id string) Module {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.modules[id]
}

// Connections returns a snapshot of the connection list.
func (e *Engine) Connections() []Connection {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Connection, len(e.conns))
	copy(out, e.conns)

	return out
}

// registered reports whether mod is the instance currently registered under
// its id. A reference to a removed module fails this check even if a new
// module of the same type exists, because ids are never reused. Lock must be
// held.
func (e *Engine) registered(mod Module) bool {
	return e.modules[mod.ID()] == mod
}

// hasConnection reports whether the exact 4-tuple already exists. Lock must
// be held.
func (e *Engine) hasConnection(conn Connection) bool {
	for _, c := range e.conns {
		if c == conn {
			return true
		}
	}

	return false
}
