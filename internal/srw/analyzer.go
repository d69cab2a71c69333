package srw

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/engine"
)

// Analyzer computes grid distributions of wavefronts.
type Analyzer struct{}

var _ engine.WavefrontAnalyzer = Analyzer{}

// DistributionInfo crops the grid to the optional ranges and computes its
// statistics.
func (Analyzer) DistributionInfo(ctx context.Context, w *beam.Wavefront, xr, yr *engine.Range, fit bool) (*engine.DistributionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("%w: nil wavefront", beam.ErrInvalidBeam)
	}
	xs, xi, err := crop(w.XCoords(), xr)
	if err != nil {
		return nil, err
	}
	ys, yi, err := crop(w.YCoords(), yr)
	if err != nil {
		return nil, err
	}
	grid := make([][]float64, len(yi))
	for j, sj := range yi {
		row := make([]float64, len(xi))
		for i, si := range xi {
			row[i] = w.At(si, sj)
		}
		grid[j] = row
	}
	return engine.NewDistributionInfo("spatial", xs, ys, grid, fit, nil)
}

func crop(coords []float64, r *engine.Range) ([]float64, []int, error) {
	if r == nil {
		idx := make([]int, len(coords))
		for i := range idx {
			idx[i] = i
		}
		return coords, idx, nil
	}
	if err := r.Validate(); err != nil {
		return nil, nil, err
	}
	var kept []float64
	var idx []int
	for i, c := range coords {
		if c >= r.Min && c <= r.Max {
			kept = append(kept, c)
			idx = append(idx, i)
		}
	}
	if len(kept) == 0 {
		return nil, nil, fmt.Errorf("%w: range [%g, %g] selects no mesh points", engine.ErrComputation, r.Min, r.Max)
	}
	return kept, idx, nil
}
