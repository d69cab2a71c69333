package distribution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
	"github.com/signalsfoundry/autoalignment/internal/observability"
	"github.com/signalsfoundry/autoalignment/internal/render"
	"github.com/signalsfoundry/autoalignment/internal/shadow"
	"github.com/signalsfoundry/autoalignment/internal/srw"
	"github.com/signalsfoundry/autoalignment/model"
)

// recordingAnalyzer captures the parameters each entry point receives.
type recordingAnalyzer struct {
	spatial    int
	divergence int
	hp         engine.HistogramParams
	np         engine.NoiseParams
}

func (a *recordingAnalyzer) SpatialDistribution(_ context.Context, _ *beam.RayBundle, hp engine.HistogramParams, np engine.NoiseParams) (*engine.DistributionInfo, error) {
	a.spatial++
	a.hp, a.np = hp, np
	return &engine.DistributionInfo{Kind: "spatial"}, nil
}

func (a *recordingAnalyzer) DivergenceDistribution(_ context.Context, _ *beam.RayBundle, hp engine.HistogramParams) (*engine.DistributionInfo, error) {
	a.divergence++
	a.hp = hp
	return &engine.DistributionInfo{Kind: "divergence"}, nil
}

func TestDefaultRequestDocumentedValues(t *testing.T) {
	r := DefaultRequest()
	assert.Equal(t, 201, r.NBinsH)
	assert.Equal(t, 201, r.NBinsV)
	assert.Equal(t, 1, r.NoLost)
	assert.Equal(t, 10.0, r.PercentageFluctuation)
	assert.False(t, r.CalculateOverNoise)
	assert.Equal(t, 1.5, r.NoiseThreshold)
	assert.False(t, r.AddNoise)
	assert.Nil(t, r.Noise)
	assert.Equal(t, "X,Z", r.Title)
	assert.Equal(t, model.PlotInternal, r.PlotMode)
	assert.Equal(t, model.AspectAuto, r.AspectRatio)
	assert.Equal(t, model.Rainbow, r.ColorMap)
}

func TestResolveFluctuationIsFraction(t *testing.T) {
	res := NewRequest().Resolve()
	assert.InDelta(t, 0.1, res.Noise.Fluctuation, 1e-12)
	res = NewRequest(WithPercentageFluctuation(25)).Resolve()
	assert.InDelta(t, 0.25, res.Noise.Fluctuation, 1e-12)
}

func TestResolveNoiseDefaulting(t *testing.T) {
	assert.InDelta(t, 0.14, DefaultNoise, 1e-12)

	res := NewRequest(WithAddNoise(true)).Resolve()
	require.NotNil(t, res.Noise.Noise)
	assert.InDelta(t, 0.14, *res.Noise.Noise, 1e-12)

	res = NewRequest(WithAddNoise(true), WithNoise(0)).Resolve()
	require.NotNil(t, res.Noise.Noise, "explicit zero stays present")
	assert.Zero(t, *res.Noise.Noise)

	res = NewRequest(WithAddNoise(false), WithNoise(0.5)).Resolve()
	assert.Nil(t, res.Noise.Noise, "stray noise without add_noise is absent")
}

func TestComputeRoutesDistributionKind(t *testing.T) {
	rays := &recordingAnalyzer{}
	d := NewDispatcher(rays, srw.Analyzer{})
	b := beam.NewRayBundle(nil, 1)
	ctx := context.Background()

	for _, kind := range []string{"", "spatial", "Divergence", "angular"} {
		_, err := d.Compute(ctx, model.Shadow, b, NewRequest(WithDistribution(kind)))
		require.NoError(t, err)
	}
	_, err := d.Compute(ctx, model.Shadow, b, NewRequest(WithDistribution("divergence")))
	require.NoError(t, err)

	assert.Equal(t, 4, rays.spatial)
	assert.Equal(t, 1, rays.divergence)
}

func TestComputePassesResolvedParameters(t *testing.T) {
	rays := &recordingAnalyzer{}
	d := NewDispatcher(rays, nil)
	xr := &engine.Range{Min: -1, Max: 1}
	_, err := d.Compute(context.Background(), model.Shadow, beam.NewRayBundle(nil, 1),
		NewRequest(WithBins(50, 60), WithNoLost(0), WithRanges(xr, nil), WithAddNoise(true), WithNoiseSeed(3), WithCalculateOverNoise(true, 2)))
	require.NoError(t, err)

	assert.Equal(t, engine.HistogramParams{NBinsH: 50, NBinsV: 60, NoLost: 0, XRange: xr}, rays.hp)
	require.NotNil(t, rays.np.Noise)
	assert.InDelta(t, DefaultNoise, *rays.np.Noise, 1e-12)
	assert.True(t, rays.np.CalculateOverNoise)
	assert.Equal(t, 2.0, rays.np.Threshold)
	require.NotNil(t, rays.np.Seed)
	assert.Equal(t, uint64(3), *rays.np.Seed)
}

func TestComputeNoNoiseWhenDisabled(t *testing.T) {
	rays := &recordingAnalyzer{}
	d := NewDispatcher(rays, nil)
	_, err := d.Compute(context.Background(), model.Shadow, beam.NewRayBundle(nil, 1), NewRequest(WithNoise(0.3)))
	require.NoError(t, err)
	assert.Nil(t, rays.np.Noise)
}

func TestComputeErrors(t *testing.T) {
	d := NewDispatcher(&recordingAnalyzer{}, srw.Analyzer{})
	ctx := context.Background()

	_, err := d.Compute(ctx, model.Implementor(0), beam.NewRayBundle(nil, 1), NewRequest())
	assert.True(t, errors.Is(err, model.ErrUnknownImplementor))

	_, err = d.Compute(ctx, model.SRW, beam.NewRayBundle(nil, 1), NewRequest())
	assert.True(t, errors.Is(err, ErrBeamMismatch))

	// Engine errors come back unchanged.
	real := NewDispatcher(shadow.Analyzer{}, nil)
	_, err = real.Compute(ctx, model.Shadow, beam.NewRayBundle(nil, 1), NewRequest())
	assert.True(t, errors.Is(err, engine.ErrComputation))
}

func TestComputeWavefrontAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewFocusingCollector(reg)
	require.NoError(t, err)
	d := NewDispatcher(shadow.Analyzer{}, srw.Analyzer{}, WithCollector(collector))

	w, err := srw.GenerateWavefront(srw.DefaultWavefrontParams())
	require.NoError(t, err)
	info, err := d.Compute(context.Background(), model.SRW, w, NewRequest(WithGaussianFit(true), WithDistribution(Divergence)))
	require.NoError(t, err)
	assert.Equal(t, "spatial", info.Kind, "wavefronts ignore the distribution kind")
	assert.NotNil(t, info.GaussianFit)

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Distributions.WithLabelValues("srw", "spatial", "ok")))
}

func TestPlotWritesFiles(t *testing.T) {
	dir := t.TempDir()
	r := render.New(dir, nil)
	d := NewDispatcher(shadow.Analyzer{}, srw.Analyzer{}, WithRenderer(r))

	src, err := shadow.GenerateSource(shadow.SourceParams{Rays: 2000, EnergyEV: 8000, SigmaH: 1e-5, SigmaV: 5e-6, SigmaHp: 1e-6, SigmaVp: 1e-6, Distance: 30, Seed: 4})
	require.NoError(t, err)
	err = d.Plot(context.Background(), model.Shadow, src,
		NewRequest(WithBins(40, 40), WithAddNoise(true), WithPlot("Initial Beam", model.PlotBoth, model.AspectTrue, model.Viridis)))
	require.NoError(t, err)
	assert.Len(t, r.Files(), 2)

	assert.Error(t, NewDispatcher(shadow.Analyzer{}, nil).Plot(context.Background(), model.Shadow, src, NewRequest()))
}

func TestLoadRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "distribution.toml")
	content := `
nbins_h = 100
xrange = [-1e-5, 1e-5]
distribution = "divergence"
add_noise = true
percentage_fluctuation = 5
color_map = "viridis"
plot_mode = "both"
sparkle = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	req, ignored, err := LoadRequest(path, WithNoiseSeed(11))
	require.NoError(t, err)
	assert.Equal(t, 100, req.NBinsH)
	assert.Equal(t, DefaultNBins, req.NBinsV)
	assert.Equal(t, &engine.Range{Min: -1e-5, Max: 1e-5}, req.XRange)
	assert.Nil(t, req.YRange)
	assert.Equal(t, Divergence, req.Distribution)
	assert.True(t, req.AddNoise)
	assert.Nil(t, req.Noise)
	assert.Equal(t, 5.0, req.PercentageFluctuation)
	assert.Equal(t, model.Viridis, req.ColorMap)
	assert.Equal(t, model.PlotBoth, req.PlotMode)
	assert.Equal(t, DefaultTitle, req.Title)
	assert.Equal(t, []string{"sparkle"}, ignored)
	require.NotNil(t, req.NoiseSeed)
	assert.Equal(t, uint64(11), *req.NoiseSeed)

	res := req.Resolve()
	assert.InDelta(t, DefaultNoise, *res.Noise.Noise, 1e-12)
	assert.True(t, res.Divergent)
}

func TestLoadRequestBadTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`color_map = "plaid"`), 0o644))
	_, _, err := LoadRequest(path)
	assert.True(t, errors.Is(err, model.ErrUnknownTag))
}
