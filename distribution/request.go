// Package distribution turns photon beams into intensity distributions and
// plots, optionally injecting calibrated synthetic noise.
package distribution

import (
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/model"
)

// DefaultNoise is the noise level used when noise is requested without an
// explicit value: 70 counts over a 100/50000 signal calibration, about 0.14.
// It comes from one instrument and may not transfer to others.
const DefaultNoise = 70 * (100.0 / 50000.0)

// Divergence selects the angular distribution; any other value of
// Request.Distribution selects the spatial one.
const Divergence = "divergence"

// Documented request defaults.
const (
	DefaultNBins                 = 201
	DefaultNoLost                = engine.GoodOnly
	DefaultPercentageFluctuation = 10.0
	DefaultNoiseThreshold        = 1.5
	DefaultTitle                 = "X,Z"
)

// Request is the full parameter set of a distribution computation or plot.
type Request struct {
	NBinsH, NBinsV int
	// NoLost is 0 for all rays, 1 for good rays only, 2 for lost rays only.
	NoLost         int
	XRange, YRange *engine.Range
	Distribution   string
	DoGaussianFit  bool

	// PercentageFluctuation is in percent, for example 10 for ±10 %.
	PercentageFluctuation float64
	CalculateOverNoise    bool
	NoiseThreshold        float64
	AddNoise              bool
	// Noise is nil when no explicit level was given.
	Noise *float64
	// NoiseSeed makes the injected noise reproducible.
	NoiseSeed *uint64

	Title       string
	PlotMode    model.PlotMode
	AspectRatio model.AspectRatio
	ColorMap    model.ColorMap
}

// Option overrides one request field.
type Option func(*Request)

// DefaultRequest returns a request holding every documented default.
func DefaultRequest() Request {
	return Request{
		NBinsH:                DefaultNBins,
		NBinsV:                DefaultNBins,
		NoLost:                DefaultNoLost,
		PercentageFluctuation: DefaultPercentageFluctuation,
		NoiseThreshold:        DefaultNoiseThreshold,
		Title:                 DefaultTitle,
		PlotMode:              model.PlotInternal,
		AspectRatio:           model.AspectAuto,
		ColorMap:              model.Rainbow,
	}
}

// NewRequest layers opts over DefaultRequest.
func NewRequest(opts ...Option) Request {
	r := DefaultRequest()
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func WithBins(h, v int) Option { return func(r *Request) { r.NBinsH, r.NBinsV = h, v } }
func WithNoLost(n int) Option  { return func(r *Request) { r.NoLost = n } }

// WithRanges sets the horizontal and vertical coordinate ranges; a nil range
// keeps the automatic extent.
func WithRanges(x, y *engine.Range) Option {
	return func(r *Request) { r.XRange, r.YRange = x, y }
}

func WithDistribution(kind string) Option { return func(r *Request) { r.Distribution = kind } }
func WithGaussianFit(on bool) Option      { return func(r *Request) { r.DoGaussianFit = on } }

// WithAddNoise turns noise injection on or off.
func WithAddNoise(on bool) Option { return func(r *Request) { r.AddNoise = on } }

// WithNoise sets an explicit noise level. It only takes effect together with
// WithAddNoise(true).
func WithNoise(level float64) Option { return func(r *Request) { r.Noise = &level } }

func WithNoiseSeed(seed uint64) Option { return func(r *Request) { r.NoiseSeed = &seed } }

func WithPercentageFluctuation(pct float64) Option {
	return func(r *Request) { r.PercentageFluctuation = pct }
}

func WithCalculateOverNoise(on bool, threshold float64) Option {
	return func(r *Request) { r.CalculateOverNoise, r.NoiseThreshold = on, threshold }
}

// WithPlot sets the presentation options used by Plot.
func WithPlot(title string, mode model.PlotMode, aspect model.AspectRatio, cm model.ColorMap) Option {
	return func(r *Request) {
		r.Title, r.PlotMode, r.AspectRatio, r.ColorMap = title, mode, aspect, cm
	}
}

// Resolved is a request after defaulting rules are applied.
type Resolved struct {
	Histogram engine.HistogramParams
	Noise     engine.NoiseParams
	Divergent bool
	Style     engine.PlotStyle
}

// Resolve applies the noise and routing rules. With AddNoise the noise level
// is the explicit value or DefaultNoise; without it the level is absent
// whatever Noise holds. The fluctuation becomes a fraction.
func (r Request) Resolve() Resolved {
	var noise *float64
	if r.AddNoise {
		level := DefaultNoise
		if r.Noise != nil {
			level = *r.Noise
		}
		noise = &level
	}
	return Resolved{
		Histogram: engine.HistogramParams{
			NBinsH:      r.NBinsH,
			NBinsV:      r.NBinsV,
			NoLost:      r.NoLost,
			XRange:      r.XRange,
			YRange:      r.YRange,
			GaussianFit: r.DoGaussianFit,
		},
		Noise: engine.NoiseParams{
			Noise:              noise,
			Fluctuation:        r.PercentageFluctuation / 100,
			CalculateOverNoise: r.CalculateOverNoise,
			Threshold:          r.NoiseThreshold,
			Seed:               r.NoiseSeed,
		},
		Divergent: r.Distribution == Divergence,
		Style: engine.PlotStyle{
			Title:    r.Title,
			Mode:     r.PlotMode,
			Aspect:   r.AspectRatio,
			ColorMap: r.ColorMap,
		},
	}
}
