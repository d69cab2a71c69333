package distribution

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/model"
)

// fileRequest maps distribution.toml keys onto Request fields.
type fileRequest struct {
	NBinsH                int        `toml:"nbins_h"`
	NBinsV                int        `toml:"nbins_v"`
	NoLost                int        `toml:"nolost"`
	XRange                [2]float64 `toml:"xrange"`
	YRange                [2]float64 `toml:"yrange"`
	Distribution          string     `toml:"distribution"`
	DoGaussianFit         bool       `toml:"do_gaussian_fit"`
	PercentageFluctuation float64    `toml:"percentage_fluctuation"`
	CalculateOverNoise    bool       `toml:"calculate_over_noise"`
	NoiseThreshold        float64    `toml:"noise_threshold"`
	AddNoise              bool       `toml:"add_noise"`
	Noise                 float64    `toml:"noise"`
	NoiseSeed             uint64     `toml:"noise_seed"`
	Title                 string     `toml:"title"`
	PlotMode              string     `toml:"plot_mode"`
	AspectRatio           string     `toml:"aspect_ratio"`
	ColorMap              string     `toml:"color_map"`
}

// LoadRequest reads a TOML request file and layers the keys it defines over
// the defaults, then applies opts. Unrecognised keys are returned in
// ignored rather than treated as errors.
func LoadRequest(path string, opts ...Option) (req Request, ignored []string, err error) {
	req = DefaultRequest()

	var raw fileRequest
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Request{}, nil, fmt.Errorf("load distribution request: %w", err)
	}

	if meta.IsDefined("nbins_h") {
		req.NBinsH = raw.NBinsH
	}
	if meta.IsDefined("nbins_v") {
		req.NBinsV = raw.NBinsV
	}
	if meta.IsDefined("nolost") {
		req.NoLost = raw.NoLost
	}
	if meta.IsDefined("xrange") {
		req.XRange = &engine.Range{Min: raw.XRange[0], Max: raw.XRange[1]}
	}
	if meta.IsDefined("yrange") {
		req.YRange = &engine.Range{Min: raw.YRange[0], Max: raw.YRange[1]}
	}
	if meta.IsDefined("distribution") {
		req.Distribution = raw.Distribution
	}
	if meta.IsDefined("do_gaussian_fit") {
		req.DoGaussianFit = raw.DoGaussianFit
	}
	if meta.IsDefined("percentage_fluctuation") {
		req.PercentageFluctuation = raw.PercentageFluctuation
	}
	if meta.IsDefined("calculate_over_noise") {
		req.CalculateOverNoise = raw.CalculateOverNoise
	}
	if meta.IsDefined("noise_threshold") {
		req.NoiseThreshold = raw.NoiseThreshold
	}
	if meta.IsDefined("add_noise") {
		req.AddNoise = raw.AddNoise
	}
	if meta.IsDefined("noise") {
		noise := raw.Noise
		req.Noise = &noise
	}
	if meta.IsDefined("noise_seed") {
		seed := raw.NoiseSeed
		req.NoiseSeed = &seed
	}
	if meta.IsDefined("title") {
		req.Title = raw.Title
	}
	if meta.IsDefined("plot_mode") {
		if req.PlotMode, err = model.ParsePlotMode(raw.PlotMode); err != nil {
			return Request{}, nil, fmt.Errorf("load distribution request: %w", err)
		}
	}
	if meta.IsDefined("aspect_ratio") {
		if req.AspectRatio, err = model.ParseAspectRatio(raw.AspectRatio); err != nil {
			return Request{}, nil, fmt.Errorf("load distribution request: %w", err)
		}
	}
	if meta.IsDefined("color_map") {
		if req.ColorMap, err = model.ParseColorMap(raw.ColorMap); err != nil {
			return Request{}, nil, fmt.Errorf("load distribution request: %w", err)
		}
	}

	for _, key := range meta.Undecoded() {
		ignored = append(ignored, key.String())
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req, ignored, nil
}
