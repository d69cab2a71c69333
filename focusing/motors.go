package focusing

import (
	"context"
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/model"
)

const (
	elementHMirror = "h_bendable_mirror"
	elementVMirror = "v_bimorph_mirror"
	elementSlits   = "coherence_slits"
)

// actuator stores or commands axis set-points in canonical units.
type actuator interface {
	move(ctx context.Context, axis hardware.Axis, value float64, movement model.Movement) error
	position(ctx context.Context, axis hardware.Axis) (float64, error)
}

type mirrorAxes struct {
	element                          string
	pitch, translation               hardware.Axis
	benderUpstream, benderDownstream hardware.Axis
	shape                            hardware.Axis
}

var (
	hMirrorAxes = mirrorAxes{
		element:          elementHMirror,
		pitch:            hardware.HBPitch,
		translation:      hardware.HBTranslation,
		benderUpstream:   hardware.HBBenderUpstream,
		benderDownstream: hardware.HBBenderDownstream,
		shape:            hardware.HBShape,
	}
	vMirrorAxes = mirrorAxes{
		element:          elementVMirror,
		pitch:            hardware.VBPitch,
		translation:      hardware.VBTranslation,
		benderUpstream:   hardware.VBBenderUpstream,
		benderDownstream: hardware.VBBenderDownstream,
		shape:            hardware.VBShape,
	}
)

// motors implements the motor and slit operations shared by both variants
// on top of an actuator.
type motors struct {
	act         actuator
	initialized bool
	log         logging.Logger
	metrics     *observability.FocusingCollector
}

func (m *motors) ready() error {
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

// command runs one motor operation inside a span and records its outcome.
func (m *motors) command(ctx context.Context, element, action string, movement model.Movement, fn func(context.Context) error) error {
	if err := m.ready(); err != nil {
		return err
	}
	ctx, span := observability.StartSpan(ctx, "focusing."+element+"."+action,
		attribute.String("movement", movement.String()),
	)
	err := fn(ctx)
	observability.EndSpan(span, err)
	m.metrics.ObserveMotorCommand(element, action, movement.String(), err)
	if err != nil {
		m.log.Debug(ctx, "motor command failed",
			logging.String("element", element),
			logging.String("action", action),
			logging.Err(err),
		)
		return err
	}
	m.log.Debug(ctx, "motor command applied",
		logging.String("element", element),
		logging.String("action", action),
		logging.String("movement", movement.String()),
	)
	return nil
}

func (m *motors) changeShape(ctx context.Context, ax mirrorAxes, parameter float64, movement model.Movement) error {
	return m.command(ctx, ax.element, "shape", movement, func(ctx context.Context) error {
		return m.act.move(ctx, ax.shape, parameter, movement)
	})
}

func (m *motors) movePitch(ctx context.Context, ax mirrorAxes, angle float64, movement model.Movement, units model.AngularUnits) error {
	return m.command(ctx, ax.element, "pitch", movement, func(ctx context.Context) error {
		rad, err := units.ToRadians(angle)
		if err != nil {
			return err
		}
		return m.act.move(ctx, ax.pitch, rad, movement)
	})
}

func (m *motors) getPitch(ctx context.Context, ax mirrorAxes, units model.AngularUnits) (float64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	rad, err := m.act.position(ctx, ax.pitch)
	if err != nil {
		return 0, err
	}
	return units.FromRadians(rad)
}

func (m *motors) moveTranslation(ctx context.Context, ax mirrorAxes, distance float64, movement model.Movement, units model.DistanceUnits) error {
	return m.command(ctx, ax.element, "translation", movement, func(ctx context.Context) error {
		meters, err := units.ToMeters(distance)
		if err != nil {
			return err
		}
		return m.act.move(ctx, ax.translation, meters, movement)
	})
}

func (m *motors) getDistance(ctx context.Context, axis hardware.Axis, units model.DistanceUnits) (float64, error) {
	meters, err := m.act.position(ctx, axis)
	if err != nil {
		return 0, err
	}
	return units.FromMeters(meters)
}

func (m *motors) getTranslation(ctx context.Context, ax mirrorAxes, units model.DistanceUnits) (float64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	return m.getDistance(ctx, ax.translation, units)
}

// moveBender drives the upstream actuator then the downstream one. A failure
// on the second leaves the first applied.
func (m *motors) moveBender(ctx context.Context, ax mirrorAxes, upstream, downstream float64, movement model.Movement, units model.DistanceUnits) error {
	return m.command(ctx, ax.element, "bender", movement, func(ctx context.Context) error {
		up, err := units.ToMeters(upstream)
		if err != nil {
			return err
		}
		down, err := units.ToMeters(downstream)
		if err != nil {
			return err
		}
		if err := m.act.move(ctx, ax.benderUpstream, up, movement); err != nil {
			return err
		}
		return m.act.move(ctx, ax.benderDownstream, down, movement)
	})
}

func (m *motors) getBender(ctx context.Context, ax mirrorAxes, units model.DistanceUnits) (float64, float64, error) {
	if err := m.ready(); err != nil {
		return 0, 0, err
	}
	up, err := m.getDistance(ctx, ax.benderUpstream, units)
	if err != nil {
		return 0, 0, err
	}
	down, err := m.getDistance(ctx, ax.benderDownstream, units)
	if err != nil {
		return 0, 0, err
	}
	return up, down, nil
}

func (m *motors) ChangeHBendableMirrorShape(ctx context.Context, parameter float64, movement model.Movement) error {
	return m.changeShape(ctx, hMirrorAxes, parameter, movement)
}

func (m *motors) MoveHBendableMirrorMotorPitch(ctx context.Context, angle float64, movement model.Movement, units model.AngularUnits) error {
	return m.movePitch(ctx, hMirrorAxes, angle, movement, units)
}

func (m *motors) GetHBendableMirrorMotorPitch(ctx context.Context, units model.AngularUnits) (float64, error) {
	return m.getPitch(ctx, hMirrorAxes, units)
}

func (m *motors) MoveHBendableMirrorMotorTranslation(ctx context.Context, distance float64, movement model.Movement, units model.DistanceUnits) error {
	return m.moveTranslation(ctx, hMirrorAxes, distance, movement, units)
}

func (m *motors) GetHBendableMirrorMotorTranslation(ctx context.Context, units model.DistanceUnits) (float64, error) {
	return m.getTranslation(ctx, hMirrorAxes, units)
}

func (m *motors) MoveHBendableMirrorMotorBender(ctx context.Context, upstream, downstream float64, movement model.Movement, units model.DistanceUnits) error {
	return m.moveBender(ctx, hMirrorAxes, upstream, downstream, movement, units)
}

func (m *motors) GetHBendableMirrorMotorBender(ctx context.Context, units model.DistanceUnits) (float64, float64, error) {
	return m.getBender(ctx, hMirrorAxes, units)
}

func (m *motors) ChangeVBimorphMirrorShape(ctx context.Context, parameter float64, movement model.Movement) error {
	return m.changeShape(ctx, vMirrorAxes, parameter, movement)
}

func (m *motors) MoveVBimorphMirrorMotorPitch(ctx context.Context, angle float64, movement model.Movement, units model.AngularUnits) error {
	return m.movePitch(ctx, vMirrorAxes, angle, movement, units)
}

func (m *motors) GetVBimorphMirrorMotorPitch(ctx context.Context, units model.AngularUnits) (float64, error) {
	return m.getPitch(ctx, vMirrorAxes, units)
}

func (m *motors) MoveVBimorphMirrorMotorTranslation(ctx context.Context, distance float64, movement model.Movement, units model.DistanceUnits) error {
	return m.moveTranslation(ctx, vMirrorAxes, distance, movement, units)
}

func (m *motors) GetVBimorphMirrorMotorTranslation(ctx context.Context, units model.DistanceUnits) (float64, error) {
	return m.getTranslation(ctx, vMirrorAxes, units)
}

func (m *motors) MoveVBimorphMirrorMotorBender(ctx context.Context, upstream, downstream float64, movement model.Movement, units model.DistanceUnits) error {
	return m.moveBender(ctx, vMirrorAxes, upstream, downstream, movement, units)
}

func (m *motors) GetVBimorphMirrorMotorBender(ctx context.Context, units model.DistanceUnits) (float64, float64, error) {
	return m.getBender(ctx, vMirrorAxes, units)
}

// ModifyCoherenceSlits sets each slit parameter present in change. Values
// are absolute.
func (m *motors) ModifyCoherenceSlits(ctx context.Context, change SlitChange, units model.DistanceUnits) error {
	return m.command(ctx, elementSlits, "modify", model.Absolute, func(ctx context.Context) error {
		for _, c := range []struct {
			axis  hardware.Axis
			value *float64
		}{
			{hardware.SlitsHCenter, change.HCenter},
			{hardware.SlitsVCenter, change.VCenter},
			{hardware.SlitsHAperture, change.HAperture},
			{hardware.SlitsVAperture, change.VAperture},
		} {
			if c.value == nil {
				continue
			}
			meters, err := units.ToMeters(*c.value)
			if err != nil {
				return err
			}
			if err := m.act.move(ctx, c.axis, meters, model.Absolute); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *motors) GetCoherenceSlitsParameters(ctx context.Context, units model.DistanceUnits) (SlitParameters, error) {
	if err := m.ready(); err != nil {
		return SlitParameters{}, err
	}
	p := SlitParameters{Units: units}
	for _, c := range []struct {
		axis hardware.Axis
		dst  *float64
	}{
		{hardware.SlitsHCenter, &p.HCenter},
		{hardware.SlitsVCenter, &p.VCenter},
		{hardware.SlitsHAperture, &p.HAperture},
		{hardware.SlitsVAperture, &p.VAperture},
	} {
		v, err := m.getDistance(ctx, c.axis, units)
		if err != nil {
			return SlitParameters{}, err
		}
		*c.dst = v
	}
	return p, nil
}

// axisStore keeps simulated set-points in memory.
type axisStore struct {
	positions map[hardware.Axis]float64
}

func (s *axisStore) reset(p map[hardware.Axis]float64) { s.positions = maps.Clone(p) }

func (s *axisStore) snapshot() map[hardware.Axis]float64 { return maps.Clone(s.positions) }

func (s *axisStore) move(_ context.Context, axis hardware.Axis, value float64, movement model.Movement) error {
	current, ok := s.positions[axis]
	if !ok {
		return fmt.Errorf("%w: %q", hardware.ErrUnknownAxis, axis)
	}
	target, err := movement.Apply(current, value)
	if err != nil {
		return err
	}
	s.positions[axis] = target
	return nil
}

func (s *axisStore) position(_ context.Context, axis hardware.Axis) (float64, error) {
	v, ok := s.positions[axis]
	if !ok {
		return 0, fmt.Errorf("%w: %q", hardware.ErrUnknownAxis, axis)
	}
	return v, nil
}

// controllerActuator forwards set-points to a hardware controller.
type controllerActuator struct {
	ctrl hardware.Controller
}

func (c controllerActuator) move(ctx context.Context, axis hardware.Axis, value float64, movement model.Movement) error {
	_, err := c.ctrl.Move(ctx, axis, value, movement)
	return err
}

func (c controllerActuator) position(ctx context.Context, axis hardware.Axis) (float64, error) {
	return c.ctrl.Position(ctx, axis)
}
