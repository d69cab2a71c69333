package hardware

import (
	"context"
	"errors"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/model"
)

var (
	// ErrUnknownAxis is returned for axis names the device does not expose.
	ErrUnknownAxis = errors.New("unknown axis")
	// ErrUnreachablePosition is returned when a move would leave the travel
	// range of an axis. The axis does not move.
	ErrUnreachablePosition = errors.New("unreachable position")
	// ErrDetectorTimeout is returned when an acquisition does not complete
	// before its deadline.
	ErrDetectorTimeout = errors.New("detector timeout")
	// ErrDetectorUnavailable is returned when no detector can serve an
	// acquisition.
	ErrDetectorUnavailable = errors.New("detector unavailable")
)

// Controller commands motor axes. Values are in canonical units: radians for
// angular axes, metres for linear axes, backend units for shape axes.
type Controller interface {
	// Move applies value to axis and returns the new set-point.
	Move(ctx context.Context, axis Axis, value float64, movement model.Movement) (float64, error)
	Position(ctx context.Context, axis Axis) (float64, error)
}

// Detector reads the beam at the detection plane.
type Detector interface {
	Acquire(ctx context.Context) (beam.PhotonBeam, error)
	Scan(ctx context.Context, dir model.Direction) (beam.Scan, error)
	// Implementor reports which engine family produced the beams Acquire
	// returns: shadow for ray bundles, srw for wavefronts.
	Implementor(ctx context.Context) (model.Implementor, error)
}

// Device is a controller and detector behind one endpoint.
type Device interface {
	Controller
	Detector
}
