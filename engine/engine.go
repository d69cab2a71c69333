// Package engine defines the boundary between the focusing-system facade and
// the simulation engines it drives: beam propagation through the optical
// train, beam record persistence, distribution analysis and rendering.
//
// All lengths are metres and all angles radians.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/model"
)

var (
	// ErrComputation marks failures inside a simulation engine, such as a
	// degenerate geometry or an empty distribution.
	ErrComputation = errors.New("backend computation failed")
	// ErrRecordKind is returned when a stored record does not have the
	// requested shape.
	ErrRecordKind = errors.New("record shape mismatch")
)

// RecordKind is the on-disk shape of a stored beam.
type RecordKind int

const (
	// PropagatedRecord is a beam as it leaves an optical element.
	PropagatedRecord RecordKind = iota
	// SourceRecord is a beam as emitted by a source generator.
	SourceRecord
)

func (k RecordKind) String() string {
	if k == SourceRecord {
		return "source"
	}
	return "propagated"
}

// Backend propagates an input beam through an optical train.
type Backend interface {
	Implementor() model.Implementor
	// Propagate must be deterministic: the same input, train and seed give
	// an identical beam.
	Propagate(ctx context.Context, input beam.PhotonBeam, train Train, seed int64) (beam.PhotonBeam, error)
	// Profile projects a beam onto one transverse direction.
	Profile(b beam.PhotonBeam, dir model.Direction, bins int) (beam.Scan, error)
}

// RecordStore loads and saves beams in a backend's record formats.
type RecordStore interface {
	LoadRecord(ctx context.Context, name string, kind RecordKind) (beam.PhotonBeam, error)
	SaveRecord(ctx context.Context, b beam.PhotonBeam, name string, kind RecordKind) error
}

// Range is a closed coordinate interval.
type Range struct {
	Min, Max float64
}

// Validate rejects empty and inverted ranges.
func (r Range) Validate() error {
	if !(r.Max > r.Min) {
		return fmt.Errorf("%w: empty range [%g, %g]", ErrComputation, r.Min, r.Max)
	}
	return nil
}

// Lost-ray filtering policies for HistogramParams.NoLost.
const (
	AllRays  = 0
	GoodOnly = 1
	LostOnly = 2
)

// HistogramParams controls ray binning.
type HistogramParams struct {
	NBinsH, NBinsV int
	NoLost         int
	XRange, YRange *Range
	GaussianFit    bool
}

// NoiseParams controls synthetic noise injection. A nil Noise suppresses
// injection entirely; a zero value still runs it.
type NoiseParams struct {
	Noise              *float64
	Fluctuation        float64
	CalculateOverNoise bool
	Threshold          float64
	Seed               *uint64
}

// RayAnalyzer computes distributions of ray-tracing beams.
type RayAnalyzer interface {
	SpatialDistribution(ctx context.Context, b *beam.RayBundle, hp HistogramParams, np NoiseParams) (*DistributionInfo, error)
	DivergenceDistribution(ctx context.Context, b *beam.RayBundle, hp HistogramParams) (*DistributionInfo, error)
}

// WavefrontAnalyzer computes distributions of wavefront beams.
type WavefrontAnalyzer interface {
	DistributionInfo(ctx context.Context, w *beam.Wavefront, xr, yr *Range, fit bool) (*DistributionInfo, error)
}

// PlotStyle carries the presentation options of a rendered distribution.
type PlotStyle struct {
	Title    string
	Mode     model.PlotMode
	Aspect   model.AspectRatio
	ColorMap model.ColorMap
}

// Renderer draws a distribution.
type Renderer interface {
	Render(ctx context.Context, info *DistributionInfo, style PlotStyle) error
}
