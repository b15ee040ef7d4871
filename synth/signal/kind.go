// Package signal defines the typed-signal port model shared by every
// synthesizer module: the four signal kinds, the inter-kind compatibility
// rules, and the immutable port definitions a module declares once per type.
package signal

// Kind classifies what flows through a port.
type Kind int

const (
	// KindAudio is a sample-rate waveform.
	KindAudio Kind = iota
	// KindCV is a continuous control value, uni- or bipolar, optionally
	// following the 1 V/oct pitch convention.
	KindCV
	// KindGate is a sustained on/off level.
	KindGate
	// KindTrigger is a momentary pulse.
	KindTrigger
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindCV:
		return "cv"
	case KindGate:
		return "gate"
	case KindTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// Compatible reports whether a signal of kind from may legally drive a port
// of kind to.
//
// Audio stays isolated from control-rate consumers so a sample-rate signal is
// never misread as a slow control value. CV is the universal control currency
// and may drive any non-audio input. Gate and trigger accept each other: a
// sustained level is a valid degenerate pulse source and vice versa.
func Compatible(from, to Kind) bool {
	switch from {
	case KindAudio:
		return to == KindAudio
	case KindCV:
		return to == KindCV || to == KindGate || to == KindTrigger
	case KindGate, KindTrigger:
		return to == KindGate || to == KindTrigger
	default:
		return false
	}
}

// Direction marks a port as an input or an output.
type Direction int

const (
	// In accepts incoming connections.
	In Direction = iota
	// Out feeds outgoing connections.
	Out
)

func (d Direction) String() string {
	switch d {
	case In:
		return "in"
	case Out:
		return "out"
	default:
		return "unknown"
	}
}

// Range is a suggested value range for a port, for display purposes.
type Range struct {
	Min float64
	Max float64
}

// PortDef describes one attachment point on a module type. Port definitions
// are declared once per module type and never mutated.
type PortDef struct {
	ID            string
	Direction     Direction
	Kind          Kind
	Range         Range
	Default       float64
	VoltPerOctave bool
}

// FindPort returns the port definition with the given id, if present.
func FindPort(ports []PortDef, id string) (PortDef, bool) {
	for _, p := range ports {
		if p.ID == id {
			return p, true
		}
	}

	return PortDef{}, false
}
