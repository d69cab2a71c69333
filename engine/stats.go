package engine

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/autoalignment/beam"
	"github.com/signalsfoundry/autoalignment/model"
)

// fwhmPerSigma converts a Gaussian standard deviation to its full width at
// half maximum.
var fwhmPerSigma = 2 * math.Sqrt(2*math.Ln2)

// GaussianFit is a two-dimensional Gaussian estimate of a distribution.
type GaussianFit struct {
	Amplitude        float64
	CenterH, CenterV float64
	SigmaH, SigmaV   float64
}

// DistributionInfo is the result of a distribution computation. Histogram is
// indexed [v][h] with HCoords and VCoords holding the bin centres.
type DistributionInfo struct {
	Kind      string
	HCoords   []float64
	VCoords   []float64
	Histogram [][]float64

	CentroidH, CentroidV float64
	SigmaH, SigmaV       float64
	FWHMH, FWHMV         float64
	PeakIntensity        float64
	Integral             float64

	// NoiseLevel is the injected noise per bin, zero when none was added.
	NoiseLevel float64

	GaussianFit *GaussianFit
}

// NewDistributionInfo computes statistics over hist. Bins for which include
// returns false are left out of the statistics but kept in the histogram;
// a nil include keeps every bin.
func NewDistributionInfo(kind string, hs, vs []float64, hist [][]float64, fit bool, include func(v float64) bool) (*DistributionInfo, error) {
	if len(hist) != len(vs) {
		return nil, fmt.Errorf("%w: %d histogram rows for %d v bins", ErrComputation, len(hist), len(vs))
	}
	margH := make([]float64, len(hs))
	margV := make([]float64, len(vs))
	var total, peak float64
	for j, row := range hist {
		if len(row) != len(hs) {
			return nil, fmt.Errorf("%w: histogram row %d has %d bins, want %d", ErrComputation, j, len(row), len(hs))
		}
		for i, v := range row {
			if include != nil && !include(v) {
				continue
			}
			margH[i] += v
			margV[j] += v
			total += v
			if v > peak {
				peak = v
			}
		}
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: %s distribution has no intensity", ErrComputation, kind)
	}

	info := &DistributionInfo{
		Kind:          kind,
		HCoords:       append([]float64(nil), hs...),
		VCoords:       append([]float64(nil), vs...),
		Histogram:     copyGrid(hist),
		PeakIntensity: peak,
		Integral:      total,
	}
	info.CentroidH, info.SigmaH = moments(hs, margH)
	info.CentroidV, info.SigmaV = moments(vs, margV)
	info.FWHMH = fwhm(hs, margH)
	info.FWHMV = fwhm(vs, margV)
	if fit {
		info.GaussianFit = &GaussianFit{
			Amplitude: peak,
			CenterH:   info.CentroidH,
			CenterV:   info.CentroidV,
			SigmaH:    gaussianSigma(info.FWHMH, info.SigmaH),
			SigmaV:    gaussianSigma(info.FWHMV, info.SigmaV),
		}
	}
	return info, nil
}

// Profile projects the histogram onto one direction.
func (d *DistributionInfo) Profile(dir model.Direction) beam.Scan {
	if dir == model.Vertical {
		out := make([]float64, len(d.VCoords))
		for j, row := range d.Histogram {
			for _, v := range row {
				out[j] += v
			}
		}
		return beam.Scan{Direction: dir, Positions: append([]float64(nil), d.VCoords...), Intensity: out}
	}
	out := make([]float64, len(d.HCoords))
	for _, row := range d.Histogram {
		for i, v := range row {
			out[i] += v
		}
	}
	return beam.Scan{Direction: dir, Positions: append([]float64(nil), d.HCoords...), Intensity: out}
}

// BinCenters returns n bin centres evenly covering r.
func BinCenters(r Range, n int) []float64 {
	out := make([]float64, n)
	step := (r.Max - r.Min) / float64(n)
	for i := range out {
		out[i] = r.Min + (float64(i)+0.5)*step
	}
	return out
}

// BinIndex maps v to its bin in r, reporting false outside the range.
func BinIndex(r Range, n int, v float64) (int, bool) {
	if v < r.Min || v > r.Max {
		return 0, false
	}
	i := int((v - r.Min) / (r.Max - r.Min) * float64(n))
	if i == n {
		i--
	}
	return i, true
}

func moments(coords, weights []float64) (mean, sigma float64) {
	var sum, sw float64
	for i, w := range weights {
		sum += coords[i] * w
		sw += w
	}
	if sw == 0 {
		return 0, 0
	}
	mean = sum / sw
	var acc float64
	for i, w := range weights {
		d := coords[i] - mean
		acc += d * d * w
	}
	return mean, math.Sqrt(acc / sw)
}

// fwhm walks outward from the peak to the half-maximum crossings and
// interpolates linearly between samples.
func fwhm(coords, values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	ip := 0
	for i, v := range values {
		if v > values[ip] {
			ip = i
		}
	}
	half := values[ip] / 2
	if half <= 0 {
		return 0
	}
	left := coords[0]
	for i := ip; i > 0; i-- {
		if values[i-1] < half {
			left = interp(coords[i-1], coords[i], values[i-1], values[i], half)
			break
		}
	}
	right := coords[len(coords)-1]
	for i := ip; i < len(values)-1; i++ {
		if values[i+1] < half {
			right = interp(coords[i], coords[i+1], values[i], values[i+1], half)
			break
		}
	}
	return right - left
}

func interp(x0, x1, y0, y1, y float64) float64 {
	if y1 == y0 {
		return x0
	}
	return x0 + (y-y0)*(x1-x0)/(y1-y0)
}

func gaussianSigma(width, fallback float64) float64 {
	if width > 0 {
		return width / fwhmPerSigma
	}
	return fallback
}

func copyGrid(g [][]float64) [][]float64 {
	out := make([][]float64, len(g))
	for j, row := range g {
		out[j] = append([]float64(nil), row...)
	}
	return out
}
