package hardware

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/model"
)

// ScanBins is the number of samples in a detector scan.
const ScanBins = 201

// EventType indicates what kind of change happened on the device.
type EventType int

const (
	EventAxisMoved EventType = iota
	EventAcquired
)

// Event is emitted to subscribers after an axis move or an acquisition.
type Event struct {
	Type     EventType
	Axis     Axis
	Position float64
	At       time.Time
}

// SimulatedDevice is an in-memory, thread-safe beamline: a registry of axis
// set-points with travel limits and a virtual detector that propagates a
// fixed input beam through the train described by those set-points.
type SimulatedDevice struct {
	mu sync.RWMutex

	positions map[Axis]float64
	limits    map[Axis]Limits
	subs      map[int]func(Event)
	nextSub   int

	input    beam.PhotonBeam
	backend  engine.Backend
	geometry engine.Geometry
	exposure time.Duration
	clock    Clock

	log     logging.Logger
	metrics *observability.DeviceCollector
}

// DeviceOption configures a SimulatedDevice.
type DeviceOption func(*SimulatedDevice)

// WithBackend sets the engine behind the virtual detector.
func WithBackend(b engine.Backend) DeviceOption {
	return func(d *SimulatedDevice) { d.backend = b }
}

// WithInputBeam sets the beam arriving at the coherence slits.
func WithInputBeam(b beam.PhotonBeam) DeviceOption {
	return func(d *SimulatedDevice) { d.input = b }
}

func WithGeometry(g engine.Geometry) DeviceOption {
	return func(d *SimulatedDevice) { d.geometry = g }
}

// WithLimits overrides the travel range of one axis.
func WithLimits(axis Axis, l Limits) DeviceOption {
	return func(d *SimulatedDevice) { d.limits[axis] = l }
}

// WithExposure makes every acquisition wait d on the device clock.
func WithExposure(exposure time.Duration) DeviceOption {
	return func(d *SimulatedDevice) { d.exposure = exposure }
}

func WithClock(c Clock) DeviceOption {
	return func(d *SimulatedDevice) { d.clock = c }
}

func WithDeviceLogger(l logging.Logger) DeviceOption {
	return func(d *SimulatedDevice) { d.log = logging.OrNoop(l) }
}

func WithDeviceCollector(c *observability.DeviceCollector) DeviceOption {
	return func(d *SimulatedDevice) { d.metrics = c }
}

// NewSimulatedDevice constructs a device with every axis at zero and both
// slit pairs fully open.
func NewSimulatedDevice(opts ...DeviceOption) *SimulatedDevice {
	d := &SimulatedDevice{
		positions: make(map[Axis]float64, len(axisKinds)),
		limits:    DefaultLimits(),
		subs:      make(map[int]func(Event)),
		geometry:  engine.DefaultGeometry(),
		clock:     SystemClock{},
		log:       logging.Noop(),
	}
	for _, a := range Axes() {
		d.positions[a] = 0
	}
	for _, opt := range opts {
		opt(d)
	}
	d.positions[SlitsHAperture] = d.limits[SlitsHAperture].Max
	d.positions[SlitsVAperture] = d.limits[SlitsVAperture].Max
	return d
}

var _ Device = (*SimulatedDevice)(nil)

// Move validates the target against the axis limits before committing it and
// notifies subscribers outside the lock.
func (d *SimulatedDevice) Move(ctx context.Context, axis Axis, value float64, movement model.Movement) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	d.mu.Lock()
	current, ok := d.positions[axis]
	if !ok {
		d.mu.Unlock()
		err := fmt.Errorf("%w: %q", ErrUnknownAxis, axis)
		d.metrics.ObserveMove(string(axis), 0, err)
		return 0, err
	}
	target, err := movement.Apply(current, value)
	if err != nil {
		d.mu.Unlock()
		d.metrics.ObserveMove(string(axis), current, err)
		return 0, err
	}
	if l, bounded := d.limits[axis]; bounded && !l.Contains(target) {
		d.mu.Unlock()
		err := fmt.Errorf("%w: %s to %g outside [%g, %g]", ErrUnreachablePosition, axis, target, l.Min, l.Max)
		d.metrics.ObserveMove(string(axis), current, err)
		return current, err
	}
	d.positions[axis] = target
	event := Event{Type: EventAxisMoved, Axis: axis, Position: target, At: d.clock.Now()}
	subs := d.snapshotSubsLocked()
	d.mu.Unlock()

	d.metrics.ObserveMove(string(axis), target, nil)
	d.log.Debug(ctx, "axis moved",
		logging.String("axis", string(axis)),
		logging.String("movement", movement.String()),
		logging.Float("position", target),
	)
	for _, sub := range subs {
		sub(event)
	}
	return target, nil
}

// Position returns the current set-point of axis.
func (d *SimulatedDevice) Position(ctx context.Context, axis Axis) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.positions[axis]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAxis, axis)
	}
	return v, nil
}

// Positions returns a snapshot of every axis set-point.
func (d *SimulatedDevice) Positions() map[Axis]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	res := make(map[Axis]float64, len(d.positions))
	for a, v := range d.positions {
		res[a] = v
	}
	return res
}

// Acquire exposes the virtual detector and propagates the input beam through
// the current train. Each acquisition draws a fresh seed, so repeated reads
// at a fixed state differ the way real detector frames do.
func (d *SimulatedDevice) Acquire(ctx context.Context) (beam.PhotonBeam, error) {
	d.mu.RLock()
	input, backend := d.input, d.backend
	train := d.trainLocked()
	d.mu.RUnlock()

	if input == nil || backend == nil {
		return nil, fmt.Errorf("%w: no beam or engine behind the virtual detector", ErrDetectorUnavailable)
	}
	if d.exposure > 0 {
		select {
		case <-d.clock.After(d.exposure):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrDetectorTimeout, ctx.Err())
		}
	}

	out, err := backend.Propagate(ctx, input, train, rand.Int64())
	if err != nil {
		return nil, err
	}
	d.metrics.IncAcquisitions()

	d.mu.RLock()
	subs := d.snapshotSubsLocked()
	d.mu.RUnlock()
	event := Event{Type: EventAcquired, At: d.clock.Now()}
	for _, sub := range subs {
		sub(event)
	}
	return out, nil
}

// Scan acquires a frame and reduces it to a profile along dir.
func (d *SimulatedDevice) Scan(ctx context.Context, dir model.Direction) (beam.Scan, error) {
	b, err := d.Acquire(ctx)
	if err != nil {
		return beam.Scan{}, err
	}
	return d.backend.Profile(b, dir, ScanBins)
}

// Implementor reports the engine behind the virtual detector.
func (d *SimulatedDevice) Implementor(context.Context) (model.Implementor, error) {
	d.mu.RLock()
	backend := d.backend
	d.mu.RUnlock()
	if backend == nil {
		return 0, fmt.Errorf("%w: no engine behind the virtual detector", ErrDetectorUnavailable)
	}
	return backend.Implementor(), nil
}

// Subscribe registers a callback for device events. It returns an
// unsubscribe function.
func (d *SimulatedDevice) Subscribe(fn func(Event)) (unsubscribe func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

func (d *SimulatedDevice) snapshotSubsLocked() []func(Event) {
	subs := make([]func(Event), 0, len(d.subs))
	for id := 0; id < d.nextSub; id++ {
		if fn, ok := d.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func (d *SimulatedDevice) trainLocked() engine.Train {
	return TrainFromPositions(d.geometry, d.positions)
}
