// Package engine owns the patch graph: the module registry, the connection
// list, and the validated run-time wiring between live module ports. It is
// the only writer of patch state; the UI holds read-only snapshots.
package engine

import (
	"github.com/cwbudde/algo-modular/synth/render"
	"github.com/cwbudde/algo-modular/synth/signal"
)

// Target identifies the receiving end of a wiring request handed to a
// module's Connect method.
type Target struct {
	Module Module
	PortID string
}

// Module is the contract every processing module satisfies. Identity and
// port definitions are fixed at construction; PortNode resolves a port id to
// the live primitive or parameter realizing it. A port with no live endpoint
// yet is simply absent from the lookup and is skipped during connection.
type Module interface {
	ID() string
	Type() string
	Label() string
	Ports() []signal.PortDef

	PortNode(portID string) (render.Endpoint, bool)

	// Connect performs live wiring from one of the module's own output
	// primitives to the target's input primitive or parameter. It must
	// no-op, not fail, when either side is unresolved or of an unsupported
	// kind.
	Connect(fromPortID string, target Target)

	// Disconnect undoes Connect. Unwiring pairs that were never actually
	// linked must be tolerated silently.
	Disconnect(fromPortID string, target Target)

	// Dispose releases every primitive the module owns. It must be
	// idempotent and must not fail even on a partially initialized module.
	Dispose()
}

// Parameterized is implemented by modules exposing user-facing parameters.
// UpdateParams validates and clamps every field independently; unknown or
// wrong-typed fields are ignored. Params returns a full snapshot.
type Parameterized interface {
	UpdateParams(params map[string]any)
	Params() map[string]any
}

// Gateable is implemented by modules with transport-style triggers: an
// envelope's gate, a sequencer's run/stop.
type Gateable interface {
	GateOn()
	GateOff()
}

// Analysable is implemented by modules exposing read-only derived signal
// data for visualization. AnalyserData must not mutate module state.
type Analysable interface {
	AnalyserData() []float64
}

// ConnectionObserver is implemented by modules that switch internal mode
// when a port gains or loses its first external driver, e.g. a free-running
// oscillator whose amplitude default flips to externally controlled the
// moment a gate source attaches. The engine invokes each hook exactly once
// per connect/disconnect event targeting that port.
type ConnectionObserver interface {
	OnIncomingConnection(portID string)
	OnIncomingDisconnection(portID string)
}

// Factory builds one module instance. The engine allocates the id and passes
// the shared rendering context; construction errors propagate to the
// CreateModule caller since there is no local recovery.
type Factory func(ctx *render.Context, id string, params map[string]any) (Module, error)
