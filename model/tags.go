package model

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownImplementor is returned for implementor values with no backend.
	ErrUnknownImplementor = errors.New("unknown implementor")
	// ErrUnknownTag is returned when a textual tag cannot be parsed.
	ErrUnknownTag = errors.New("unknown tag")
)

// Movement selects how a motor value is interpreted.
type Movement int

const (
	// Absolute sets the motor set-point directly.
	Absolute Movement = iota
	// Relative adds a signed delta to the current set-point.
	Relative
)

// Apply returns the new set-point for a command carrying value.
func (m Movement) Apply(current, value float64) (float64, error) {
	switch m {
	case Absolute:
		return value, nil
	case Relative:
		return current + value, nil
	default:
		return 0, fmt.Errorf("%w: movement %d", ErrUnknownTag, int(m))
	}
}

func (m Movement) String() string {
	switch m {
	case Absolute:
		return "absolute"
	case Relative:
		return "relative"
	default:
		return "unknown"
	}
}

// ParseMovement maps "absolute"/"abs" and "relative"/"rel" to a Movement.
func ParseMovement(text string) (Movement, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "absolute", "abs":
		return Absolute, nil
	case "relative", "rel":
		return Relative, nil
	default:
		return 0, fmt.Errorf("%w: movement %q", ErrUnknownTag, text)
	}
}

// Implementor identifies the simulation backend a beam belongs to.
type Implementor int

const (
	// Shadow is the ray-tracing backend.
	Shadow Implementor = iota + 1
	// SRW is the wavefront-propagation backend.
	SRW
)

func (i Implementor) String() string {
	switch i {
	case Shadow:
		return "shadow"
	case SRW:
		return "srw"
	default:
		return "unknown"
	}
}

// Validate reports ErrUnknownImplementor for values outside the two backends.
func (i Implementor) Validate() error {
	switch i {
	case Shadow, SRW:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrUnknownImplementor, int(i))
	}
}

func ParseImplementor(text string) (Implementor, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "shadow":
		return Shadow, nil
	case "srw":
		return SRW, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownImplementor, text)
	}
}

// ExecutionMode selects the facade variant. It is fixed for the lifetime of
// a focusing system.
type ExecutionMode int

const (
	Simulation ExecutionMode = iota + 1
	Hardware
)

func (m ExecutionMode) String() string {
	switch m {
	case Simulation:
		return "simulation"
	case Hardware:
		return "hardware"
	default:
		return "unknown"
	}
}

func ParseExecutionMode(text string) (ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "simulation", "sim":
		return Simulation, nil
	case "hardware", "hw":
		return Hardware, nil
	default:
		return 0, fmt.Errorf("%w: execution mode %q", ErrUnknownTag, text)
	}
}

// Layout selects the optical configuration a facade initializes against.
type Layout int

const (
	AutoAlignment Layout = iota
	AutoFocusing
)

func (l Layout) String() string {
	switch l {
	case AutoAlignment:
		return "auto_alignment"
	case AutoFocusing:
		return "auto_focusing"
	default:
		return "unknown"
	}
}

func ParseLayout(text string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "auto_alignment", "autoalignment":
		return AutoAlignment, nil
	case "auto_focusing", "autofocusing":
		return AutoFocusing, nil
	default:
		return 0, fmt.Errorf("%w: layout %q", ErrUnknownTag, text)
	}
}

// Direction is a transverse axis of the beam.
type Direction int

const (
	Horizontal Direction = iota
	Vertical
)

func (d Direction) String() string {
	if d == Vertical {
		return "vertical"
	}
	return "horizontal"
}

func ParseDirection(text string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "horizontal", "h", "x":
		return Horizontal, nil
	case "vertical", "v", "z", "y":
		return Vertical, nil
	default:
		return 0, fmt.Errorf("%w: direction %q", ErrUnknownTag, text)
	}
}
