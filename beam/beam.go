// Package beam holds the photon beam samples exchanged between the facade,
// the simulation engines, and the hardware detectors.
//
// Beams are immutable once constructed: constructors copy their inputs and
// accessors return copies, so a beam handed to a caller can never be changed
// by a later motor command or acquisition.
package beam

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/autoalignment/model"
)

// ErrInvalidBeam is returned when beam samples are structurally inconsistent.
var ErrInvalidBeam = errors.New("invalid beam")

// PhotonBeam is an opaque backend-specific sample set at a detection plane.
type PhotonBeam interface {
	// Implementor is the backend whose engine produces and consumes the beam.
	Implementor() model.Implementor
}

// Ray is one ray of a ray-tracing bundle. Positions are in metres with Y
// along the optical axis; Xp and Zp are the horizontal and vertical slopes in
// radians.
type Ray struct {
	X, Y, Z   float64
	Xp, Zp    float64
	Intensity float64
	Lost      bool
}

// RayBundle is the ray-tracing beam.
type RayBundle struct {
	rays     []Ray
	energyEV float64
}

// NewRayBundle copies rays into a new bundle.
func NewRayBundle(rays []Ray, energyEV float64) *RayBundle {
	cp := make([]Ray, len(rays))
	copy(cp, rays)
	return &RayBundle{rays: cp, energyEV: energyEV}
}

func (b *RayBundle) Implementor() model.Implementor { return model.Shadow }

// Len returns the total number of rays, lost ones included.
func (b *RayBundle) Len() int { return len(b.rays) }

// Ray returns ray i.
func (b *RayBundle) Ray(i int) Ray { return b.rays[i] }

// Rays returns a copy of all rays.
func (b *RayBundle) Rays() []Ray {
	cp := make([]Ray, len(b.rays))
	copy(cp, b.rays)
	return cp
}

// EnergyEV is the photon energy of the bundle.
func (b *RayBundle) EnergyEV() float64 { return b.energyEV }

// GoodRays counts rays that survived the optical path.
func (b *RayBundle) GoodRays() int {
	n := 0
	for _, r := range b.rays {
		if !r.Lost {
			n++
		}
	}
	return n
}

// Wavefront is an intensity grid sampled on a rectangular mesh. Intensity is
// indexed [y][x].
type Wavefront struct {
	xs        []float64
	ys        []float64
	intensity []float64
	energyEV  float64
}

// NewWavefront validates and copies a grid. xs and ys are the mesh
// coordinates in metres; intensity must have len(ys) rows of len(xs) values.
func NewWavefront(xs, ys []float64, intensity [][]float64, energyEV float64) (*Wavefront, error) {
	if len(xs) < 2 || len(ys) < 2 {
		return nil, fmt.Errorf("%w: mesh needs at least 2x2 points, got %dx%d", ErrInvalidBeam, len(xs), len(ys))
	}
	if len(intensity) != len(ys) {
		return nil, fmt.Errorf("%w: %d intensity rows for %d y points", ErrInvalidBeam, len(intensity), len(ys))
	}
	flat := make([]float64, 0, len(xs)*len(ys))
	for j, row := range intensity {
		if len(row) != len(xs) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d x points", ErrInvalidBeam, j, len(row), len(xs))
		}
		flat = append(flat, row...)
	}
	return &Wavefront{
		xs:        append([]float64(nil), xs...),
		ys:        append([]float64(nil), ys...),
		intensity: flat,
		energyEV:  energyEV,
	}, nil
}

func (w *Wavefront) Implementor() model.Implementor { return model.SRW }

func (w *Wavefront) Nx() int { return len(w.xs) }
func (w *Wavefront) Ny() int { return len(w.ys) }

func (w *Wavefront) XCoords() []float64 { return append([]float64(nil), w.xs...) }
func (w *Wavefront) YCoords() []float64 { return append([]float64(nil), w.ys...) }

// At returns the intensity at column i, row j.
func (w *Wavefront) At(i, j int) float64 { return w.intensity[j*len(w.xs)+i] }

// Intensity returns a copy of the grid indexed [y][x].
func (w *Wavefront) Intensity() [][]float64 {
	nx := len(w.xs)
	out := make([][]float64, len(w.ys))
	for j := range out {
		out[j] = append([]float64(nil), w.intensity[j*nx:(j+1)*nx]...)
	}
	return out
}

func (w *Wavefront) EnergyEV() float64 { return w.energyEV }

// Scan is a one-dimensional beam profile along one transverse direction.
type Scan struct {
	Direction model.Direction
	Positions []float64
	Intensity []float64
}
