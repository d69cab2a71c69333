package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/model"
)

// ErrBeamMismatch is returned when the beam handed in does not belong to the
// requested implementor.
var ErrBeamMismatch = errors.New("beam does not match implementor")

// Dispatcher routes distribution requests to the analyzer of the owning
// backend.
type Dispatcher struct {
	rays      engine.RayAnalyzer
	wavefront engine.WavefrontAnalyzer
	renderer  engine.Renderer
	log       logging.Logger
	metrics   *observability.FocusingCollector
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithLogger(l logging.Logger) DispatcherOption { return func(d *Dispatcher) { d.log = logging.OrNoop(l) } }

func WithCollector(c *observability.FocusingCollector) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithRenderer sets the renderer used by Plot.
func WithRenderer(r engine.Renderer) DispatcherOption { return func(d *Dispatcher) { d.renderer = r } }

// NewDispatcher builds a dispatcher over the two analyzers.
func NewDispatcher(rays engine.RayAnalyzer, wavefront engine.WavefrontAnalyzer, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{rays: rays, wavefront: wavefront, log: logging.Noop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Compute returns the distribution of b. Wavefronts only use the ranges and
// the Gaussian fit flag; ray bundles use the whole resolved request.
func (d *Dispatcher) Compute(ctx context.Context, impl model.Implementor, b beam.PhotonBeam, req Request) (*engine.DistributionInfo, error) {
	res := req.Resolve()
	kind := "spatial"
	if impl == model.Shadow && res.Divergent {
		kind = Divergence
	}

	ctx, span := observability.StartSpan(ctx, "distribution.Compute",
		attribute.String("implementor", impl.String()),
		attribute.String("kind", kind),
	)
	start := time.Now()
	info, err := d.compute(ctx, impl, b, res)
	d.metrics.ObserveDistribution(impl.String(), kind, time.Since(start), err)
	observability.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	d.log.Debug(ctx, "distribution computed",
		logging.String("implementor", impl.String()),
		logging.String("kind", kind),
		logging.Float("fwhm_h", info.FWHMH),
		logging.Float("fwhm_v", info.FWHMV),
		logging.Bool("noise", res.Noise.Noise != nil),
	)
	return info, nil
}

func (d *Dispatcher) compute(ctx context.Context, impl model.Implementor, b beam.PhotonBeam, res Resolved) (*engine.DistributionInfo, error) {
	switch impl {
	case model.SRW:
		w, ok := b.(*beam.Wavefront)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a wavefront, got %T", ErrBeamMismatch, impl, b)
		}
		if d.wavefront == nil {
			return nil, fmt.Errorf("%w: no wavefront analyzer configured", model.ErrUnknownImplementor)
		}
		return d.wavefront.DistributionInfo(ctx, w, res.Histogram.XRange, res.Histogram.YRange, res.Histogram.GaussianFit)
	case model.Shadow:
		rb, ok := b.(*beam.RayBundle)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a ray bundle, got %T", ErrBeamMismatch, impl, b)
		}
		if d.rays == nil {
			return nil, fmt.Errorf("%w: no ray analyzer configured", model.ErrUnknownImplementor)
		}
		if res.Divergent {
			return d.rays.DivergenceDistribution(ctx, rb, res.Histogram)
		}
		return d.rays.SpatialDistribution(ctx, rb, res.Histogram, res.Noise)
	default:
		return nil, fmt.Errorf("%w: %d", model.ErrUnknownImplementor, int(impl))
	}
}

// Plot computes the distribution chosen by req and renders it with the
// request's plot mode, aspect ratio and colour map.
func (d *Dispatcher) Plot(ctx context.Context, impl model.Implementor, b beam.PhotonBeam, req Request) error {
	if d.renderer == nil {
		return fmt.Errorf("%w: no renderer configured", engine.ErrComputation)
	}
	info, err := d.Compute(ctx, impl, b, req)
	if err != nil {
		return err
	}
	return d.renderer.Render(ctx, info, req.Resolve().Style)
}
