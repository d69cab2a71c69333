package main

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/signalsfoundry/autoalignment/model"
)

// demoConfig is the run description read from the -config file. Flags set on
// the command line override it.
type demoConfig struct {
	Mode        string `toml:"mode"`
	Implementor string `toml:"implementor"`
	Layout      string `toml:"layout"`

	RecordsDir string `toml:"records_dir"`
	InputBeam  string `toml:"input_beam"`
	PlotDir    string `toml:"plot_dir"`
	DeviceAddr string `toml:"device_addr"`

	RandomSeed int64 `toml:"random_seed"`
	Verbose    bool  `toml:"verbose"`

	// Detector binning. The pixel size sets the plotted range.
	NBinsH    int     `toml:"nbins_h"`
	NBinsV    int     `toml:"nbins_v"`
	PixelSize float64 `toml:"pixel_size"`

	PlotMode    string `toml:"plot_mode"`
	AspectRatio string `toml:"aspect_ratio"`
	ColorMap    string `toml:"color_map"`

	// DistributionRequest optionally names a distribution request file used
	// instead of the detector settings above.
	DistributionRequest string `toml:"distribution_request"`

	MetricsAddr string `toml:"metrics_addr"`
}

// defaultConfig mirrors the 28-ID auto-alignment run: a 2160x2560 detector
// with 0.65 um pixels, rebinned by ten for plotting.
func defaultConfig() demoConfig {
	return demoConfig{
		Mode:        "simulation",
		Implementor: "shadow",
		Layout:      "auto_alignment",
		RecordsDir:  "work",
		InputBeam:   "primary_optics_system_beam",
		PlotDir:     "plots",
		RandomSeed:  2120,
		NBinsH:      216,
		NBinsV:      256,
		PixelSize:   6.5e-6,
		PlotMode:    "internal",
		AspectRatio: "auto",
		ColorMap:    "viridis",
	}
}

// loadConfig decodes path over the defaults. An empty path keeps them.
func loadConfig(path string) (demoConfig, []string, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil, nil
	}
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return demoConfig{}, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	var ignored []string
	for _, key := range meta.Undecoded() {
		ignored = append(ignored, key.String())
	}
	return cfg, ignored, nil
}

// settings is a demoConfig with every tag parsed.
type settings struct {
	demoConfig

	mode   model.ExecutionMode
	impl   model.Implementor
	layout model.Layout
	plot   model.PlotMode
	aspect model.AspectRatio
	cmap   model.ColorMap
}

func (c demoConfig) parse() (settings, error) {
	s := settings{demoConfig: c}
	var err error
	if s.mode, err = model.ParseExecutionMode(c.Mode); err != nil {
		return settings{}, err
	}
	if s.impl, err = model.ParseImplementor(c.Implementor); err != nil {
		return settings{}, err
	}
	if s.layout, err = model.ParseLayout(c.Layout); err != nil {
		return settings{}, err
	}
	if s.plot, err = model.ParsePlotMode(c.PlotMode); err != nil {
		return settings{}, err
	}
	if s.aspect, err = model.ParseAspectRatio(c.AspectRatio); err != nil {
		return settings{}, err
	}
	if s.cmap, err = model.ParseColorMap(c.ColorMap); err != nil {
		return settings{}, err
	}
	if c.NBinsH <= 0 || c.NBinsV <= 0 || c.PixelSize <= 0 {
		return settings{}, fmt.Errorf("detector needs positive bins and pixel size, got %dx%d @ %g", c.NBinsH, c.NBinsV, c.PixelSize)
	}
	if s.mode == model.Hardware && c.DeviceAddr == "" {
		return settings{}, fmt.Errorf("hardware mode needs device_addr")
	}
	return s, nil
}
