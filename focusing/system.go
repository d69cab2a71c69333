// Package focusing is the backend-agnostic facade over a pair of focusing
// mirrors and their coherence slits. One System drives either a simulated
// optical train or real beamline hardware; the variant is chosen once by New.
package focusing

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/hardware"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/internal/shadow"
	"github.com/signalsfoundry/autoalignment/internal/srw"
	"github.com/signalsfoundry/autoalignment/model"
)

var (
	// ErrConfiguration is returned by New for unsupported execution mode and
	// implementor combinations, and by Initialize for unusable inputs.
	ErrConfiguration = errors.New("focusing system configuration")
	// ErrNotInitialized is returned by every operation called before
	// Initialize.
	ErrNotInitialized = errors.New("focusing system not initialized")
)

// DefaultSeed seeds acquisitions that do not carry their own seed.
const DefaultSeed int64 = 2120

// AcquisitionOptions controls one GetPhotonBeam call.
type AcquisitionOptions struct {
	// Verbose logs the set-points used for the acquisition.
	Verbose bool
	// DebugMode logs the full optical train.
	DebugMode bool
	// RandomSeed makes simulated acquisitions reproducible. Nil uses the
	// system default. Hardware acquisitions ignore it.
	RandomSeed *int64
}

// Seed returns an AcquisitionOptions field value for seed.
func Seed(seed int64) *int64 { return &seed }

// SlitChange carries the slit parameters to modify. Nil fields are left
// unchanged.
type SlitChange struct {
	HCenter, VCenter     *float64
	HAperture, VAperture *float64
}

// SlitParameters is the state of the coherence slits in one distance unit.
type SlitParameters struct {
	HCenter, VCenter     float64
	HAperture, VAperture float64
	Units                model.DistanceUnits
}

// System is the focusing optics facade. A System is not safe for concurrent
// use; callers sharing one must serialise access themselves.
type System interface {
	Mode() model.ExecutionMode
	Implementor() model.Implementor

	// Initialize sets every motor and shape to the values in features and
	// enables the other operations. Calling it again replaces all state.
	Initialize(ctx context.Context, input beam.PhotonBeam, features InputFeatures, layout model.Layout) error

	ChangeHBendableMirrorShape(ctx context.Context, parameter float64, movement model.Movement) error
	MoveHBendableMirrorMotorPitch(ctx context.Context, angle float64, movement model.Movement, units model.AngularUnits) error
	GetHBendableMirrorMotorPitch(ctx context.Context, units model.AngularUnits) (float64, error)
	MoveHBendableMirrorMotorTranslation(ctx context.Context, distance float64, movement model.Movement, units model.DistanceUnits) error
	GetHBendableMirrorMotorTranslation(ctx context.Context, units model.DistanceUnits) (float64, error)
	MoveHBendableMirrorMotorBender(ctx context.Context, upstream, downstream float64, movement model.Movement, units model.DistanceUnits) error
	GetHBendableMirrorMotorBender(ctx context.Context, units model.DistanceUnits) (upstream, downstream float64, err error)

	ChangeVBimorphMirrorShape(ctx context.Context, parameter float64, movement model.Movement) error
	MoveVBimorphMirrorMotorPitch(ctx context.Context, angle float64, movement model.Movement, units model.AngularUnits) error
	GetVBimorphMirrorMotorPitch(ctx context.Context, units model.AngularUnits) (float64, error)
	MoveVBimorphMirrorMotorTranslation(ctx context.Context, distance float64, movement model.Movement, units model.DistanceUnits) error
	GetVBimorphMirrorMotorTranslation(ctx context.Context, units model.DistanceUnits) (float64, error)
	MoveVBimorphMirrorMotorBender(ctx context.Context, upstream, downstream float64, movement model.Movement, units model.DistanceUnits) error
	GetVBimorphMirrorMotorBender(ctx context.Context, units model.DistanceUnits) (upstream, downstream float64, err error)

	ModifyCoherenceSlits(ctx context.Context, change SlitChange, units model.DistanceUnits) error
	GetCoherenceSlitsParameters(ctx context.Context, units model.DistanceUnits) (SlitParameters, error)

	// GetPhotonBeam acquires the beam produced by the current state.
	GetPhotonBeam(ctx context.Context, opts AcquisitionOptions) (beam.PhotonBeam, error)
	// PerturbateInputPhotonBeam offsets the input beam before the next
	// acquisition. It has no effect on hardware.
	PerturbateInputPhotonBeam(ctx context.Context, shiftH, shiftV float64, units model.DistanceUnits) error
	GetBeamScan(ctx context.Context, dir model.Direction) (beam.Scan, error)
}

type config struct {
	log         logging.Logger
	metrics     *observability.FocusingCollector
	backend     engine.Backend
	controller  hardware.Controller
	detector    hardware.Detector
	defaultSeed int64
}

// Option configures New.
type Option func(*config)

func WithLogger(l logging.Logger) Option { return func(c *config) { c.log = logging.OrNoop(l) } }

func WithCollector(m *observability.FocusingCollector) Option {
	return func(c *config) { c.metrics = m }
}

// WithBackend replaces the reference engine of a simulation system. Its
// implementor must match the one passed to New.
func WithBackend(b engine.Backend) Option { return func(c *config) { c.backend = b } }

// WithController sets the motor controller of a hardware system.
func WithController(ctrl hardware.Controller) Option {
	return func(c *config) { c.controller = ctrl }
}

// WithDetector sets the detector of a hardware system.
func WithDetector(d hardware.Detector) Option { return func(c *config) { c.detector = d } }

// WithDevice sets both the controller and the detector.
func WithDevice(d hardware.Device) Option {
	return func(c *config) { c.controller, c.detector = d, d }
}

// WithDefaultSeed sets the seed used when an acquisition carries none.
func WithDefaultSeed(seed int64) Option { return func(c *config) { c.defaultSeed = seed } }

// New returns the System for mode and impl. Both modes accept either
// implementor; anything else fails with ErrConfiguration. Hardware systems
// need a controller and a detector, and Initialize checks that the detector
// serves impl's beams.
func New(mode model.ExecutionMode, impl model.Implementor, opts ...Option) (System, error) {
	cfg := config{log: logging.Noop(), defaultSeed: DefaultSeed}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.log.With(
		logging.String("mode", mode.String()),
		logging.String("implementor", impl.String()),
	)

	switch mode {
	case model.Simulation:
		backend := cfg.backend
		switch impl {
		case model.Shadow:
			if backend == nil {
				backend = shadow.New(shadow.WithLogger(log))
			}
		case model.SRW:
			if backend == nil {
				backend = srw.New(srw.WithLogger(log))
			}
		default:
			return nil, fmt.Errorf("%w: unknown implementor %d", ErrConfiguration, int(impl))
		}
		if backend.Implementor() != impl {
			return nil, fmt.Errorf("%w: backend implements %s, want %s", ErrConfiguration, backend.Implementor(), impl)
		}
		return newSimulation(impl, backend, cfg.defaultSeed, log, cfg.metrics), nil

	case model.Hardware:
		if impl != model.Shadow && impl != model.SRW {
			return nil, fmt.Errorf("%w: unknown implementor %d", ErrConfiguration, int(impl))
		}
		if cfg.controller == nil || cfg.detector == nil {
			return nil, fmt.Errorf("%w: hardware execution needs a controller and a detector", ErrConfiguration)
		}
		return newHardware(impl, cfg.controller, cfg.detector, log, cfg.metrics), nil

	default:
		return nil, fmt.Errorf("%w: unknown execution mode %d", ErrConfiguration, int(mode))
	}
}
