package focusing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/model"
)

// simulation re-runs the propagation engine on every acquisition.
type simulation struct {
	motors

	impl        model.Implementor
	backend     engine.Backend
	store       *axisStore
	geometry    engine.Geometry
	layout      model.Layout
	input       beam.PhotonBeam
	defaultSeed int64

	shiftH, shiftV float64
}

func newSimulation(impl model.Implementor, backend engine.Backend, seed int64, log logging.Logger, metrics *observability.FocusingCollector) *simulation {
	store := &axisStore{}
	return &simulation{
		motors:      motors{act: store, log: log, metrics: metrics},
		impl:        impl,
		backend:     backend,
		store:       store,
		defaultSeed: seed,
	}
}

var _ System = (*simulation)(nil)

func (s *simulation) Mode() model.ExecutionMode      { return model.Simulation }
func (s *simulation) Implementor() model.Implementor { return s.impl }

// Initialize validates the input beam and the train described by features
// before replacing any state, so a failed call leaves the system as it was.
func (s *simulation) Initialize(ctx context.Context, input beam.PhotonBeam, features InputFeatures, layout model.Layout) (err error) {
	ctx, span := observability.StartSpan(ctx, "focusing.Initialize",
		attribute.String("mode", model.Simulation.String()),
		attribute.String("layout", layout.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	if err := checkLayout(layout); err != nil {
		return err
	}
	if input == nil {
		return fmt.Errorf("%w: simulation needs an input beam", ErrConfiguration)
	}
	if input.Implementor() != s.impl {
		return fmt.Errorf("%w: input beam belongs to %s, system uses %s", ErrConfiguration, input.Implementor(), s.impl)
	}
	if err := features.train().Validate(); err != nil {
		return err
	}

	s.store.reset(features.positions())
	s.geometry = features.Geometry
	s.layout = layout
	s.input = input
	s.shiftH, s.shiftV = 0, 0
	s.initialized = true

	s.log.Info(ctx, "focusing system initialized", logging.String("layout", layout.String()))
	return nil
}

func (s *simulation) train() engine.Train {
	t := hardware.TrainFromPositions(s.geometry, s.store.snapshot())
	t.InputShiftH, t.InputShiftV = s.shiftH, s.shiftV
	return t
}

// GetPhotonBeam propagates the input beam through the current train. The
// same state and seed always produce the same beam.
func (s *simulation) GetPhotonBeam(ctx context.Context, opts AcquisitionOptions) (out beam.PhotonBeam, err error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	seed := s.defaultSeed
	if opts.RandomSeed != nil {
		seed = *opts.RandomSeed
	}

	ctx, span := observability.StartSpan(ctx, "focusing.GetPhotonBeam",
		attribute.String("implementor", s.impl.String()),
		attribute.Int64("seed", seed),
	)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		s.metrics.ObserveAcquisition(model.Simulation.String(), s.impl.String(), elapsed, err)
		observability.EndSpan(span, err)
		if err == nil {
			s.log.Info(ctx, "photon beam acquired",
				logging.String("implementor", s.impl.String()),
				logging.Duration("duration", elapsed),
			)
		}
	}()

	train := s.train()
	if opts.Verbose {
		s.log.Info(ctx, "acquisition set-points",
			logging.String("layout", s.layout.String()),
			logging.Float("h_pitch_rad", train.HMirror.Pitch),
			logging.Float("v_pitch_rad", train.VMirror.Pitch),
			logging.Float("h_shape", train.HMirror.Shape),
			logging.Float("v_shape", train.VMirror.Shape),
			logging.Float("input_shift_h_m", train.InputShiftH),
			logging.Float("input_shift_v_m", train.InputShiftV),
		)
	}
	if opts.DebugMode {
		s.log.Debug(ctx, "acquisition train", logging.Any("train", train), logging.Int("seed", int(seed)))
	}
	return s.backend.Propagate(ctx, s.input, train, seed)
}

// PerturbateInputPhotonBeam sets the input beam offset used by later
// acquisitions. Zero shifts restore the unperturbed beam.
func (s *simulation) PerturbateInputPhotonBeam(ctx context.Context, shiftH, shiftV float64, units model.DistanceUnits) error {
	if err := s.ready(); err != nil {
		return err
	}
	h, err := units.ToMeters(shiftH)
	if err != nil {
		return err
	}
	v, err := units.ToMeters(shiftV)
	if err != nil {
		return err
	}
	s.shiftH, s.shiftV = h, v
	s.metrics.IncPerturbations()
	s.log.Debug(ctx, "input beam perturbed",
		logging.Float("shift_h_m", h),
		logging.Float("shift_v_m", v),
	)
	return nil
}

// GetBeamScan acquires with the default seed and profiles the result.
func (s *simulation) GetBeamScan(ctx context.Context, dir model.Direction) (beam.Scan, error) {
	b, err := s.GetPhotonBeam(ctx, AcquisitionOptions{})
	if err != nil {
		return beam.Scan{}, err
	}
	return s.backend.Profile(b, dir, hardware.ScanBins)
}
