package engine

import "fmt"

// MirrorState is the actuated state of one focusing mirror.
type MirrorState struct {
	// Pitch is the grazing incidence angle.
	Pitch float64
	// Translation moves the mirror along its surface normal.
	Translation float64
	// BenderUpstream and BenderDownstream are the two bender actuator
	// positions.
	BenderUpstream   float64
	BenderDownstream float64
	// Shape is a backend-defined curvature actuation (bender force or
	// bimorph voltage); it is never unit converted.
	Shape float64
}

// SlitState is the state of the coherence slit pair.
type SlitState struct {
	HCenter, VCenter     float64
	HAperture, VAperture float64
}

// MirrorGeometry holds the fixed properties of a mirror.
type MirrorGeometry struct {
	NominalPitch float64
	Length       float64
	// Radius is the meridional radius at zero bender and shape.
	Radius float64
	// BenderGain is the curvature change per metre of mean bender travel.
	BenderGain float64
	// AsymmetryGain scales the second-order aberration caused by unequal
	// bender positions.
	AsymmetryGain float64
	// ShapeGain is the curvature change per shape unit.
	ShapeGain float64
	// SlopeError is the rms figure error sampled per ray.
	SlopeError float64
}

// Geometry is the fixed layout of the focusing optics. The input beam is
// defined at the coherence slit plane.
type Geometry struct {
	// SourceDistance is the distance from the photon source to the slits.
	SourceDistance   float64
	SlitsToHMirror   float64
	HMirrorToVMirror float64
	VMirrorToImage   float64
	HMirror          MirrorGeometry
	VMirror          MirrorGeometry
}

// DefaultGeometry is a Kirkpatrick-Baez pair focusing 1.6 m (horizontal) and
// 1.2 m (vertical) downstream of the mirrors.
func DefaultGeometry() Geometry {
	return Geometry{
		SourceDistance:   60.0,
		SlitsToHMirror:   2.0,
		HMirrorToVMirror: 0.4,
		VMirrorToImage:   1.2,
		HMirror: MirrorGeometry{
			NominalPitch:  3e-3,
			Length:        0.3,
			Radius:        1039.8,
			BenderGain:    1e-2,
			AsymmetryGain: 0.5,
			ShapeGain:     1e-7,
			SlopeError:    2e-7,
		},
		VMirror: MirrorGeometry{
			NominalPitch:  3e-3,
			Length:        0.3,
			Radius:        784.9,
			BenderGain:    1e-2,
			AsymmetryGain: 0.5,
			ShapeGain:     1e-7,
			SlopeError:    2e-7,
		},
	}
}

// Train is everything an engine needs to propagate a beam: the fixed
// geometry plus the current actuator state.
type Train struct {
	Geometry Geometry
	Slits    SlitState
	HMirror  MirrorState
	VMirror  MirrorState
	// InputShiftH and InputShiftV offset the input beam before propagation.
	InputShiftH, InputShiftV float64
}

// Validate rejects trains no engine can propagate.
func (t Train) Validate() error {
	for name, m := range map[string]MirrorState{"h mirror": t.HMirror, "v mirror": t.VMirror} {
		if m.Pitch <= 0 || m.Pitch >= 0.5 {
			return fmt.Errorf("%w: %s grazing angle %g rad outside (0, 0.5)", ErrComputation, name, m.Pitch)
		}
	}
	if t.Geometry.HMirror.Length <= 0 || t.Geometry.VMirror.Length <= 0 {
		return fmt.Errorf("%w: mirror length must be positive", ErrComputation)
	}
	return nil
}
