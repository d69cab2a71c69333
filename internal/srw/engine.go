package srw

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

const (
	// shotNoise is the relative rms intensity noise added to rendered grids.
	shotNoise = 1e-3
	// windowSigmas is the half width of a rendered grid in beam sigmas.
	windowSigmas = 6
	seedStream   = 0x5a7_0f3e
)

// WavefrontParams describes a Gaussian wavefront at the coherence slits.
type WavefrontParams struct {
	Nx, Ny         int
	SigmaH, SigmaV float64
	// HalfWidthH and HalfWidthV set the mesh extent.
	HalfWidthH, HalfWidthV float64
	EnergyEV               float64
}

// DefaultWavefrontParams matches the default ray-tracing source.
func DefaultWavefrontParams() WavefrontParams {
	return WavefrontParams{
		Nx: 101, Ny: 101,
		SigmaH: 60e-6, SigmaV: 15e-6,
		HalfWidthH: 360e-6, HalfWidthV: 90e-6,
		EnergyEV: 20000,
	}
}

// GenerateWavefront renders a centred Gaussian wavefront of unit peak.
func GenerateWavefront(p WavefrontParams) (*beam.Wavefront, error) {
	if p.SigmaH <= 0 || p.SigmaV <= 0 || p.EnergyEV <= 0 {
		return nil, fmt.Errorf("%w: wavefront needs positive sizes and energy", engine.ErrComputation)
	}
	xs := linspace(-p.HalfWidthH, p.HalfWidthH, p.Nx)
	ys := linspace(-p.HalfWidthV, p.HalfWidthV, p.Ny)
	grid := gaussianGrid(xs, ys, planeBeam{sxx: p.SigmaH * p.SigmaH}, planeBeam{sxx: p.SigmaV * p.SigmaV}, 1, nil)
	return beam.NewWavefront(xs, ys, grid, p.EnergyEV)
}

// Engine propagates wavefronts through an optical train.
type Engine struct {
	log logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.log = logging.OrNoop(l) }
}

// New constructs a wavefront engine.
func New(opts ...Option) *Engine {
	e := &Engine{log: logging.Noop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var _ engine.Backend = (*Engine)(nil)

func (e *Engine) Implementor() model.Implementor { return model.SRW }

// Propagate carries the Gaussian moments of input from the slits to the
// image plane and renders them on a grid of the same resolution. The grid
// carries seeded shot noise so distinct seeds give distinct samples.
func (e *Engine) Propagate(ctx context.Context, input beam.PhotonBeam, train engine.Train, seed int64) (beam.PhotonBeam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	in, ok := input.(*beam.Wavefront)
	if !ok {
		return nil, fmt.Errorf("%w: wavefront propagation needs a wavefront, got %T", beam.ErrInvalidBeam, input)
	}
	if err := train.Validate(); err != nil {
		return nil, err
	}
	if in.EnergyEV() <= 0 {
		return nil, fmt.Errorf("%w: wavefront energy must be positive", engine.ErrComputation)
	}
	stats, err := engine.NewDistributionInfo("spatial", in.XCoords(), in.YCoords(), in.Intensity(), false, nil)
	if err != nil {
		return nil, err
	}
	if stats.SigmaH == 0 || stats.SigmaV == 0 {
		return nil, fmt.Errorf("%w: wavefront has zero width", engine.ErrComputation)
	}

	g := train.Geometry
	lambda := hcEVm / in.EnergyEV()
	h := fromProfile(stats.CentroidH+train.InputShiftH, stats.SigmaH, g.SourceDistance, lambda)
	v := fromProfile(stats.CentroidV+train.InputShiftV, stats.SigmaV, g.SourceDistance, lambda)

	h = h.slit(train.Slits.HCenter, train.Slits.HAperture)
	v = v.slit(train.Slits.VCenter, train.Slits.VAperture)

	h = h.drift(g.SlitsToHMirror)
	v = v.drift(g.SlitsToHMirror)
	h = h.reflect(optics.Mirror{Geometry: g.HMirror, State: train.HMirror})
	h = h.drift(g.HMirrorToVMirror)
	v = v.drift(g.HMirrorToVMirror)
	v = v.reflect(optics.Mirror{Geometry: g.VMirror, State: train.VMirror})
	h = h.drift(g.VMirrorToImage)
	v = v.drift(g.VMirrorToImage)

	peak := stats.PeakIntensity * h.transmitted * v.transmitted * (stats.SigmaH * stats.SigmaV) / (h.sigma() * v.sigma())
	xs := linspace(-window(h), window(h), in.Nx())
	ys := linspace(-window(v), window(v), in.Ny())
	rng := rand.New(rand.NewPCG(uint64(seed), seedStream))
	out, err := beam.NewWavefront(xs, ys, gaussianGrid(xs, ys, h, v, peak, rng), in.EnergyEV())
	if err != nil {
		return nil, err
	}

	e.log.Debug(ctx, "wavefront propagated",
		logging.Float("sigma_h_m", h.sigma()),
		logging.Float("sigma_v_m", v.sigma()),
		logging.Float("transmission", h.transmitted*v.transmitted),
	)
	return out, nil
}

// Profile integrates the grid along the other direction and resamples the
// result linearly onto bins points spanning the grid. bins <= 0 keeps the
// grid resolution.
func (e *Engine) Profile(b beam.PhotonBeam, dir model.Direction, bins int) (beam.Scan, error) {
	w, ok := b.(*beam.Wavefront)
	if !ok {
		return beam.Scan{}, fmt.Errorf("%w: wavefront profile needs a wavefront, got %T", beam.ErrInvalidBeam, b)
	}
	info := &engine.DistributionInfo{HCoords: w.XCoords(), VCoords: w.YCoords(), Histogram: w.Intensity()}
	scan := info.Profile(dir)
	if bins <= 0 || bins == len(scan.Positions) {
		return scan, nil
	}
	return resample(scan, bins), nil
}

// resample interpolates scan onto n evenly spaced positions over its extent.
// Positions must be increasing.
func resample(scan beam.Scan, n int) beam.Scan {
	src := scan.Positions
	lo, hi := src[0], src[len(src)-1]
	pos := linspace(lo, hi, n)
	out := make([]float64, n)
	k := 0
	for i, p := range pos {
		for k < len(src)-2 && src[k+1] < p {
			k++
		}
		if len(src) == 1 {
			out[i] = scan.Intensity[0]
			continue
		}
		x0, x1 := src[k], src[k+1]
		t := 0.0
		if x1 > x0 {
			t = (p - x0) / (x1 - x0)
		}
		t = math.Max(0, math.Min(1, t))
		out[i] = scan.Intensity[k] + t*(scan.Intensity[k+1]-scan.Intensity[k])
	}
	return beam.Scan{Direction: scan.Direction, Positions: pos, Intensity: out}
}

func window(b planeBeam) float64 {
	return math.Abs(b.x) + windowSigmas*b.sigma()
}

func linspace(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = (lo + hi) / 2
		return out
	}
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

func gaussianGrid(xs, ys []float64, h, v planeBeam, peak float64, rng *rand.Rand) [][]float64 {
	sh, sv := h.sigma(), v.sigma()
	grid := make([][]float64, len(ys))
	for j, y := range ys {
		grid[j] = make([]float64, len(xs))
		dv := (y - v.x) / sv
		for i, x := range xs {
			dh := (x - h.x) / sh
			val := peak * math.Exp(-0.5*(dh*dh+dv*dv))
			if rng != nil {
				val = math.Max(0, val*(1+shotNoise*rng.NormFloat64()))
			}
			grid[j][i] = val
		}
	}
	return grid
}
