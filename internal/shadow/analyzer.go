package shadow

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
)

// Analyzer bins ray bundles into two-dimensional histograms.
type Analyzer struct{}

var _ engine.RayAnalyzer = Analyzer{}

// SpatialDistribution histograms the X, Z ray positions. When np.Noise is set
// every bin receives noise*peak scaled by a uniform fluctuation of
// ±np.Fluctuation; with CalculateOverNoise the statistics only count bins
// above np.Threshold times that noise level.
func (Analyzer) SpatialDistribution(ctx context.Context, b *beam.RayBundle, hp engine.HistogramParams, np engine.NoiseParams) (*engine.DistributionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, vs, hist, err := histogram(b, hp, func(r beam.Ray) (float64, float64) { return r.X, r.Z })
	if err != nil {
		return nil, err
	}

	var level float64
	var include func(float64) bool
	if np.Noise != nil {
		level = addNoise(hist, *np.Noise, np.Fluctuation, np.Seed)
		if np.CalculateOverNoise {
			cut := np.Threshold * level
			include = func(v float64) bool { return v > cut }
		}
	}

	info, err := engine.NewDistributionInfo("spatial", hs, vs, hist, hp.GaussianFit, include)
	if err != nil {
		return nil, err
	}
	info.NoiseLevel = level
	return info, nil
}

// DivergenceDistribution histograms the Xp, Zp ray slopes.
func (Analyzer) DivergenceDistribution(ctx context.Context, b *beam.RayBundle, hp engine.HistogramParams) (*engine.DistributionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hs, vs, hist, err := histogram(b, hp, func(r beam.Ray) (float64, float64) { return r.Xp, r.Zp })
	if err != nil {
		return nil, err
	}
	return engine.NewDistributionInfo("divergence", hs, vs, hist, hp.GaussianFit, nil)
}

func histogram(b *beam.RayBundle, hp engine.HistogramParams, project func(beam.Ray) (float64, float64)) ([]float64, []float64, [][]float64, error) {
	if b == nil {
		return nil, nil, nil, fmt.Errorf("%w: nil ray bundle", beam.ErrInvalidBeam)
	}
	if hp.NBinsH <= 0 || hp.NBinsV <= 0 {
		return nil, nil, nil, fmt.Errorf("%w: bin counts must be positive, got %dx%d", engine.ErrComputation, hp.NBinsH, hp.NBinsV)
	}
	if hp.NoLost < engine.AllRays || hp.NoLost > engine.LostOnly {
		return nil, nil, nil, fmt.Errorf("%w: nolost must be 0, 1 or 2, got %d", engine.ErrComputation, hp.NoLost)
	}
	vals, weights := selectRays(b, hp.NoLost, project)
	if len(vals) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no rays selected with nolost=%d", engine.ErrComputation, hp.NoLost)
	}

	hr := extentOf(vals, 0)
	if hp.XRange != nil {
		hr = *hp.XRange
	}
	vr := extentOf(vals, 1)
	if hp.YRange != nil {
		vr = *hp.YRange
	}
	if err := hr.Validate(); err != nil {
		return nil, nil, nil, err
	}
	if err := vr.Validate(); err != nil {
		return nil, nil, nil, err
	}

	hist := make([][]float64, hp.NBinsV)
	for j := range hist {
		hist[j] = make([]float64, hp.NBinsH)
	}
	for k, v := range vals {
		i, okH := engine.BinIndex(hr, hp.NBinsH, v[0])
		j, okV := engine.BinIndex(vr, hp.NBinsV, v[1])
		if okH && okV {
			hist[j][i] += weights[k]
		}
	}
	return engine.BinCenters(hr, hp.NBinsH), engine.BinCenters(vr, hp.NBinsV), hist, nil
}

// addNoise adds noise*peak*(1 + fluctuation*U(-1, 1)) to every bin and
// returns the mean level added.
func addNoise(hist [][]float64, noise, fluctuation float64, seed *uint64) float64 {
	var peak float64
	for _, row := range hist {
		for _, v := range row {
			peak = max(peak, v)
		}
	}
	uniform := rand.Float64
	if seed != nil {
		uniform = rand.New(rand.NewPCG(*seed, seedStream)).Float64
	}
	level := noise * peak
	for _, row := range hist {
		for i := range row {
			row[i] += level * (1 + fluctuation*(2*uniform()-1))
		}
	}
	return level
}
