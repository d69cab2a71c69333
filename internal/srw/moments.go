// Package srw is the reference wavefront engine. A wavefront is reduced to
// the first and second moments of a Gaussian beam in each transverse plane,
// those moments are carried through the optical train, and the result is
// rendered back onto an intensity grid.
package srw

import (
	"math"

	"github.com/signalsfoundry/autoalignment/internal/optics"
)

// hcEVm is Planck's constant times the speed of light in eV·m.
const hcEVm = 1.23984198e-6

// planeBeam is a Gaussian beam in one transverse plane: centroid position and
// slope plus the covariance of position and slope.
type planeBeam struct {
	x, xp       float64
	sxx, sxxp   float64
	sxpxp       float64
	transmitted float64
}

func (b planeBeam) sigma() float64 { return math.Sqrt(b.sxx) }

// fromProfile builds the plane beam at the slits from a measured size and
// centroid. The wavefront diverges from a source distance upstream and
// carries the diffraction-limited divergence for its size.
func fromProfile(centroid, sigma, sourceDistance, wavelength float64) planeBeam {
	intrinsic := wavelength / (4 * math.Pi * sigma)
	return planeBeam{
		x:           centroid,
		xp:          centroid / sourceDistance,
		sxx:         sigma * sigma,
		sxxp:        sigma * sigma / sourceDistance,
		sxpxp:       sigma*sigma/(sourceDistance*sourceDistance) + intrinsic*intrinsic,
		transmitted: 1,
	}
}

func (b planeBeam) drift(l float64) planeBeam {
	b.x += l * b.xp
	b.sxx += 2*l*b.sxxp + l*l*b.sxpxp
	b.sxxp += l * b.sxpxp
	return b
}

// slit applies a Gaussian-apodised aperture of half width aperture/2 centred
// at center.
func (b planeBeam) slit(center, aperture float64) planeBeam {
	if aperture <= 0 {
		b.transmitted = 0
		return b
	}
	s2 := aperture * aperture / 4
	total := b.sxx + s2
	shift := b.x - center
	b.transmitted *= math.Sqrt(s2/total) * math.Exp(-shift*shift/(2*total))

	// Condition the Gaussian on the aperture profile.
	g := 1 / total
	b.x -= b.sxx * shift * g
	b.xp -= b.sxxp * shift * g
	b.sxpxp -= b.sxxp * b.sxxp * g
	b.sxxp -= b.sxx * b.sxxp * g
	b.sxx -= b.sxx * b.sxx * g
	return b
}

// reflect applies the mirror as a thin lens with a pitch kick and a
// translation offset; the figure error widens the slope spread and the
// footprint clips the transmission.
func (b planeBeam) reflect(m optics.Mirror) planeBeam {
	acc := m.Acceptance()
	rel := b.x - m.State.Translation
	sig := b.sigma() * math.Sqrt2
	b.transmitted *= 0.5 * (math.Erf((acc-rel)/sig) + math.Erf((acc+rel)/sig))

	p := m.Power()
	b.xp = b.xp - p*rel + m.Kick()
	b.x += m.Offset()
	b.sxpxp += p*p*b.sxx - 2*p*b.sxxp
	b.sxxp -= p * b.sxx
	se := 2 * m.Geometry.SlopeError
	b.sxpxp += se * se
	return b
}
