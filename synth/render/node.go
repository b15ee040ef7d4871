package render

import "errors"

var (
	errNotConnected = errors.New("render: endpoints were never linked")
	errDisposed     = errors.New("render: node is disposed")
	errContext      = errors.New("render: endpoints belong to different contexts")
)

// Processor is the per-node DSP callback. Process reads the summed audio
// inputs via n.In(), samples parameters via Param.Sample, and writes one
// block into out. It runs on the render thread with the render lock held.
type Processor interface {
	Process(n *Node, out []float64)
}

// Endpoint is anything a node output can be wired into: another node's audio
// input, or an automatable parameter.
type Endpoint interface {
	attach(src *Node) error
	detach(src *Node) error
	context() *Context
}

// Node is a live signal-processing primitive owned by exactly one module.
// Audio inputs fan in (summed); the single output fans out freely.
type Node struct {
	ctx  *Context
	proc Processor

	inputs []*Node
	params []*Param

	in  []float64
	out []float64

	renderedEpoch uint64
	rendering     bool
	disposed      bool
	sized         int
}

// NewNode creates a node driven by proc and registers it with the context.
func NewNode(ctx *Context, proc Processor) *Node {
	n := &Node{ctx: ctx, proc: proc}
	n.in = make([]float64, ctx.cfg.blockSize)
	n.out = make([]float64, ctx.cfg.blockSize)

	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if !ctx.disposed {
		ctx.nodes[n] = struct{}{}
	}

	return n
}

// NewParam creates an automatable parameter owned by this node.
func (n *Node) NewParam(initial float64) *Param {
	p := newParam(n.ctx, initial)

	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()

	n.params = append(n.params, p)

	return p
}

// Context returns the rendering context this node belongs to.
func (n *Node) Context() *Context { return n.ctx }

// In returns the summed audio inputs for the block being rendered. Only
// valid from within Processor.Process.
func (n *Node) In() []float64 { return n.in[:n.sized] }

// BlockStart returns the absolute frame index of the block being rendered.
// Only valid from within Processor.Process.
func (n *Node) BlockStart() int64 { return n.ctx.frame }

// Defer queues fn to run after the current block completes, outside the
// render lock. Only valid from within Processor.Process. This is how
// sample-level events (gate edges) reach control-level scheduling without
// re-entering the render lock.
func (n *Node) Defer(fn func()) { n.ctx.deferCallback(fn) }

// Disposed reports whether the node has been torn down.
func (n *Node) Disposed() bool {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()

	return n.disposed
}

// render produces this node's output block for the given epoch. Re-entrant
// renders (feedback cycles) return the previous block, giving cyclic patches
// a one-block delay instead of infinite recursion. Lock must be held.
func (n *Node) render(epoch uint64, frames int) {
	if n.disposed {
		n.sized = frames
		for i := 0; i < frames; i++ {
			n.out[i] = 0
		}

		return
	}

	if n.renderedEpoch == epoch || n.rendering {
		return
	}

	n.rendering = true
	n.sized = frames

	in := n.in[:frames]
	for i := range in {
		in[i] = 0
	}

	for _, src := range n.inputs {
		src.render(epoch, frames)
		for i := range in {
			in[i] += src.out[i]
		}
	}

	n.proc.Process(n, n.out[:frames])
	n.renderedEpoch = epoch
	n.rendering = false
}

// Connect wires src's output into dst. Connecting an already-connected pair
// is a no-op.
func Connect(src *Node, dst Endpoint) error {
	if src == nil || dst == nil {
		return errNotConnected
	}

	ctx := src.ctx
	if dst.context() != ctx {
		return errContext
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if src.disposed {
		return errDisposed
	}

	return dst.attach(src)
}

// Disconnect removes the wire from src's output to dst. Returns an error if
// the pair was never linked; callers performing best-effort cleanup are
// expected to discard it.
func Disconnect(src *Node, dst Endpoint) error {
	if src == nil || dst == nil {
		return errNotConnected
	}

	ctx := src.ctx
	if dst.context() != ctx {
		return errContext
	}

	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	return dst.detach(src)
}

func (n *Node) attach(src *Node) error {
	if n.disposed {
		return errDisposed
	}

	for _, in := range n.inputs {
		if in == src {
			return nil
		}
	}

	n.inputs = append(n.inputs, src)

	return nil
}

func (n *Node) detach(src *Node) error {
	for i, in := range n.inputs {
		if in == src {
			n.inputs = append(n.inputs[:i], n.inputs[i+1:]...)
			return nil
		}
	}

	return errNotConnected
}

func (n *Node) context() *Context { return n.ctx }

// Dispose releases the node: it stops rendering, detaches from every input
// list and modulation list in the context, and leaves the registry. Safe to
// call more than once.
func (n *Node) Dispose() {
	n.ctx.mu.Lock()
	defer n.ctx.mu.Unlock()

	if n.disposed {
		return
	}

	n.disposed = true
	delete(n.ctx.nodes, n)
	delete(n.ctx.sinks, n)

	for other := range n.ctx.nodes {
		_ = other.detach(n)
		for _, p := range other.params {
			_ = p.detach(n)
		}
	}

	n.inputs = nil
	n.params = nil
}
