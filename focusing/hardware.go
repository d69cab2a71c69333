package focusing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/model"
)

// beamline drives real motors and reads a real detector.
type beamline struct {
	motors

	impl       model.Implementor
	controller hardware.Controller
	detector   hardware.Detector
	layout     model.Layout
}

func newHardware(impl model.Implementor, ctrl hardware.Controller, det hardware.Detector, log logging.Logger, metrics *observability.FocusingCollector) *beamline {
	return &beamline{
		motors:     motors{act: controllerActuator{ctrl: ctrl}, log: log, metrics: metrics},
		impl:       impl,
		controller: ctrl,
		detector:   det,
	}
}

var _ System = (*beamline)(nil)

func (b *beamline) Mode() model.ExecutionMode      { return model.Hardware }
func (b *beamline) Implementor() model.Implementor { return b.impl }

// Initialize checks that the detector serves beams of the system's
// implementor, then drives every axis to its value in features, in axis
// order. The input beam and the geometry are ignored: the source and the
// optics layout are physical. A failed move leaves the system uninitialized.
func (b *beamline) Initialize(ctx context.Context, _ beam.PhotonBeam, features InputFeatures, layout model.Layout) (err error) {
	ctx, span := observability.StartSpan(ctx, "focusing.Initialize",
		attribute.String("mode", model.Hardware.String()),
		attribute.String("layout", layout.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	b.initialized = false
	if err := checkLayout(layout); err != nil {
		return err
	}
	served, err := b.detector.Implementor(ctx)
	if err != nil {
		return err
	}
	if served != b.impl {
		return fmt.Errorf("%w: detector serves %s beams, system uses %s", ErrConfiguration, served, b.impl)
	}

	positions := features.positions()
	for _, axis := range hardware.Axes() {
		if _, err := b.controller.Move(ctx, axis, positions[axis], model.Absolute); err != nil {
			return err
		}
	}
	b.layout = layout
	b.initialized = true

	b.log.Info(ctx, "focusing system initialized", logging.String("layout", layout.String()))
	return nil
}

// GetPhotonBeam triggers a detector acquisition. RandomSeed has no effect.
func (b *beamline) GetPhotonBeam(ctx context.Context, opts AcquisitionOptions) (out beam.PhotonBeam, err error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	ctx, span := observability.StartSpan(ctx, "focusing.GetPhotonBeam",
		attribute.String("implementor", b.impl.String()),
	)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		b.metrics.ObserveAcquisition(model.Hardware.String(), b.impl.String(), elapsed, err)
		observability.EndSpan(span, err)
		if err == nil && opts.Verbose {
			b.log.Info(ctx, "photon beam acquired",
				logging.String("layout", b.layout.String()),
				logging.Duration("duration", elapsed),
			)
		}
	}()
	out, err = b.detector.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if out.Implementor() != b.impl {
		return nil, fmt.Errorf("%w: detector returned a %s beam, system uses %s", ErrConfiguration, out.Implementor(), b.impl)
	}
	return out, nil
}

// PerturbateInputPhotonBeam does nothing on hardware beyond the
// initialization check.
func (b *beamline) PerturbateInputPhotonBeam(ctx context.Context, shiftH, shiftV float64, _ model.DistanceUnits) error {
	if err := b.ready(); err != nil {
		return err
	}
	b.log.Debug(ctx, "input beam perturbation ignored on hardware",
		logging.Float("shift_h", shiftH),
		logging.Float("shift_v", shiftV),
	)
	return nil
}

func (b *beamline) GetBeamScan(ctx context.Context, dir model.Direction) (beam.Scan, error) {
	if err := b.ready(); err != nil {
		return beam.Scan{}, err
	}
	return b.detector.Scan(ctx, dir)
}
