package shadow

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/internal/logging"
	"github.com/signalsfoundry/autoalignment/internal/optics"
	"github.com/signalsfoundry/autoalignment/model"
)

// Engine traces ray bundles through an optical train.
type Engine struct {
	log logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.log = logging.OrNoop(l) }
}

// New constructs a ray-tracing engine.
func New(opts ...Option) *Engine {
	e := &Engine{log: logging.Noop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ engine.Backend = (*Engine)(nil)

func (e *Engine) Implementor() model.Implementor { return model.Shadow }

// Propagate traces every ray from the slit plane to the image plane. The
// per-ray figure errors are drawn from a generator seeded with seed, so the
// same input, train and seed always give the same bundle.
func (e *Engine) Propagate(ctx context.Context, input beam.PhotonBeam, train engine.Train, seed int64) (beam.PhotonBeam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, ok := input.(*beam.RayBundle)
	if !ok {
		return nil, fmt.Errorf("%w: ray tracing needs a ray bundle, got %T", beam.ErrInvalidBeam, input)
	}
	if err := train.Validate(); err != nil {
		return nil, err
	}

	g := train.Geometry
	hm := optics.Mirror{Geometry: g.HMirror, State: train.HMirror}
	vm := optics.Mirror{Geometry: g.VMirror, State: train.VMirror}
	rng := rand.New(rand.NewPCG(uint64(seed), seedStream))
	length := g.SlitsToHMirror + g.HMirrorToVMirror + g.VMirrorToImage

	rays := in.Rays()
	for i := range rays {
		r := &rays[i]
		// Draw both figure errors before any early exit so every ray consumes
		// the same number of samples.
		seH := rng.NormFloat64() * g.HMirror.SlopeError
		seV := rng.NormFloat64() * g.VMirror.SlopeError
		if r.Lost {
			continue
		}
		p := optics.Vec3{X: r.X + train.InputShiftH, Y: 0, Z: r.Z + train.InputShiftV}
		if !optics.SlitPasses(train.Slits.HCenter, train.Slits.HAperture, p.X) ||
			!optics.SlitPasses(train.Slits.VCenter, train.Slits.VAperture, p.Z) {
			r.X, r.Z, r.Lost = p.X, p.Z, true
			continue
		}

		p, _ = optics.Drift(p, r.Xp, r.Zp, g.SlitsToHMirror)
		var lost bool
		p.X, r.Xp, lost = hm.Reflect(p.X, r.Xp, seH)
		if !lost {
			p, _ = optics.Drift(p, r.Xp, r.Zp, g.HMirrorToVMirror)
			p.Z, r.Zp, lost = vm.Reflect(p.Z, r.Zp, seV)
		}
		if !lost {
			p, _ = optics.Drift(p, r.Xp, r.Zp, g.VMirrorToImage)
		}
		if lost {
			p.Y = length
		}
		r.X, r.Y, r.Z, r.Lost = p.X, p.Y, p.Z, lost
	}

	out := beam.NewRayBundle(rays, in.EnergyEV())
	e.log.Debug(ctx, "rays traced",
		logging.Int("rays", out.Len()),
		logging.Int("good_rays", out.GoodRays()),
		logging.Int("seed", int(seed)),
	)
	return out, nil
}

// Profile histograms the good rays of b along dir over their full extent.
func (e *Engine) Profile(b beam.PhotonBeam, dir model.Direction, bins int) (beam.Scan, error) {
	rb, ok := b.(*beam.RayBundle)
	if !ok {
		return beam.Scan{}, fmt.Errorf("%w: ray profile needs a ray bundle, got %T", beam.ErrInvalidBeam, b)
	}
	if bins <= 0 {
		return beam.Scan{}, fmt.Errorf("%w: profile needs a positive bin count, got %d", engine.ErrComputation, bins)
	}
	vals, weights := selectRays(rb, engine.GoodOnly, func(r beam.Ray) (float64, float64) {
		if dir == model.Vertical {
			return r.Z, 0
		}
		return r.X, 0
	})
	if len(vals) == 0 {
		return beam.Scan{}, fmt.Errorf("%w: no good rays to profile", engine.ErrComputation)
	}
	rng := extent(vals)
	pos := engine.BinCenters(rng, bins)
	hist := make([]float64, bins)
	for k, v := range vals {
		if i, ok := engine.BinIndex(rng, bins, v[0]); ok {
			hist[i] += weights[k]
		}
	}
	return beam.Scan{Direction: dir, Positions: pos, Intensity: hist}, nil
}

// selectRays applies the nolost policy and returns the projected coordinate
// pairs with their intensities.
func selectRays(b *beam.RayBundle, nolost int, project func(beam.Ray) (float64, float64)) ([][2]float64, []float64) {
	vals := make([][2]float64, 0, b.Len())
	weights := make([]float64, 0, b.Len())
	for i := 0; i < b.Len(); i++ {
		r := b.Ray(i)
		switch nolost {
		case engine.GoodOnly:
			if r.Lost {
				continue
			}
		case engine.LostOnly:
			if !r.Lost {
				continue
			}
		}
		h, v := project(r)
		vals = append(vals, [2]float64{h, v})
		weights = append(weights, r.Intensity)
	}
	return vals, weights
}

// extent returns the range of the first coordinate padded so a single-valued
// set still has a non-empty range.
func extent(vals [][2]float64) engine.Range {
	return extentOf(vals, 0)
}

func extentOf(vals [][2]float64, axis int) engine.Range {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range vals {
		lo = math.Min(lo, v[axis])
		hi = math.Max(hi, v[axis])
	}
	pad := (hi - lo) * 0.01
	if pad == 0 {
		pad = math.Max(math.Abs(lo)*1e-3, 1e-9)
	}
	return engine.Range{Min: lo - pad, Max: hi + pad}
}
