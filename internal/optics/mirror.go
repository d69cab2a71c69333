package optics

import (
	"math"

	"github.com/signalsfoundry/autoalignment/engine"
)

// Mirror is a thin grazing-incidence mirror acting in one transverse plane.
// Positions and slopes passed to it are measured in that plane.
type Mirror struct {
	Geometry engine.MirrorGeometry
	State    engine.MirrorState
}

// Curvature is the meridional curvature after bender and shape actuation.
func (m Mirror) Curvature() float64 {
	var k float64
	if m.Geometry.Radius > 0 {
		k = 1 / m.Geometry.Radius
	}
	mean := (m.State.BenderUpstream + m.State.BenderDownstream) / 2
	return k + m.Geometry.BenderGain*mean + m.Geometry.ShapeGain*m.State.Shape
}

// Power is the inverse focal length.
func (m Mirror) Power() float64 {
	return 2 * m.Curvature() / math.Sin(m.State.Pitch)
}

// Kick is the slope change caused by pitching away from the nominal angle.
func (m Mirror) Kick() float64 {
	return 2 * (m.State.Pitch - m.Geometry.NominalPitch)
}

// Offset is the beam displacement caused by translating the mirror along its
// normal.
func (m Mirror) Offset() float64 {
	return 2 * m.State.Translation * math.Cos(m.State.Pitch)
}

// Acceptance is the transverse half width intercepted by the mirror.
func (m Mirror) Acceptance() float64 {
	return m.Geometry.Length / 2 * math.Sin(m.State.Pitch)
}

// Reflect maps a ray through the mirror. slopeError is one sample of the
// surface figure error at the footprint. The ray is lost when it misses the
// mirror surface.
func (m Mirror) Reflect(pos, slope, slopeError float64) (float64, float64, bool) {
	rel := pos - m.State.Translation
	if math.Abs(rel) > m.Acceptance() {
		return pos, slope, true
	}
	// Footprint coordinate along the mirror surface.
	u := rel / math.Sin(m.State.Pitch)
	asym := m.Geometry.AsymmetryGain * (m.State.BenderUpstream - m.State.BenderDownstream) * u * u

	outSlope := slope - m.Power()*rel + m.Kick() + asym + 2*slopeError
	return pos + m.Offset(), outSlope, false
}
