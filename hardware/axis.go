// Package hardware defines the motor and detector boundary of a physical
// focusing beamline and a simulated device that satisfies it.
package hardware

import (
	"fmt"
	"strings"
)

// Axis names one motorised degree of freedom.
type Axis string

const (
	HBPitch            Axis = "hb_pitch"
	HBTranslation      Axis = "hb_translation"
	HBBenderUpstream   Axis = "hb_bender_upstream"
	HBBenderDownstream Axis = "hb_bender_downstream"
	HBShape            Axis = "hb_shape"

	VBPitch            Axis = "vb_pitch"
	VBTranslation      Axis = "vb_translation"
	VBBenderUpstream   Axis = "vb_bender_upstream"
	VBBenderDownstream Axis = "vb_bender_downstream"
	VBShape            Axis = "vb_shape"

	SlitsHCenter   Axis = "coh_slits_h_center"
	SlitsVCenter   Axis = "coh_slits_v_center"
	SlitsHAperture Axis = "coh_slits_h_aperture"
	SlitsVAperture Axis = "coh_slits_v_aperture"
)

// Kind is the physical quantity an axis moves.
type Kind int

const (
	// Angular axes take radians.
	Angular Kind = iota
	// Linear axes take metres.
	Linear
	// Shape axes take backend-defined units.
	Shape
)

func (k Kind) String() string {
	switch k {
	case Angular:
		return "angular"
	case Linear:
		return "linear"
	default:
		return "shape"
	}
}

var axisKinds = map[Axis]Kind{
	HBPitch:            Angular,
	HBTranslation:      Linear,
	HBBenderUpstream:   Linear,
	HBBenderDownstream: Linear,
	HBShape:            Shape,
	VBPitch:            Angular,
	VBTranslation:      Linear,
	VBBenderUpstream:   Linear,
	VBBenderDownstream: Linear,
	VBShape:            Shape,
	SlitsHCenter:       Linear,
	SlitsVCenter:       Linear,
	SlitsHAperture:     Linear,
	SlitsVAperture:     Linear,
}

// Axes lists every known axis in a stable order.
func Axes() []Axis {
	return []Axis{
		HBPitch, HBTranslation, HBBenderUpstream, HBBenderDownstream, HBShape,
		VBPitch, VBTranslation, VBBenderUpstream, VBBenderDownstream, VBShape,
		SlitsHCenter, SlitsVCenter, SlitsHAperture, SlitsVAperture,
	}
}

// Kind reports the quantity a moves. Unknown axes report Shape.
func (a Axis) Kind() Kind {
	if k, ok := axisKinds[a]; ok {
		return k
	}
	return Shape
}

// Valid reports whether a is a known axis.
func (a Axis) Valid() bool {
	_, ok := axisKinds[a]
	return ok
}

// ParseAxis resolves an axis name, ignoring case and surrounding spaces.
func ParseAxis(name string) (Axis, error) {
	a := Axis(strings.ToLower(strings.TrimSpace(name)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAxis, name)
	}
	return a, nil
}

// Limits is the allowed travel of an axis, inclusive.
type Limits struct {
	Min, Max float64
}

// Contains reports whether v lies within the travel range.
func (l Limits) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

// DefaultLimits returns the travel ranges of the reference beamline. Pitch
// axes are measured from the nominal grazing angle.
func DefaultLimits() map[Axis]Limits {
	mirror := func(prefix string) map[Axis]Limits {
		return map[Axis]Limits{
			Axis(prefix + "_pitch"):             {Min: -2.5e-3, Max: 2.5e-3},
			Axis(prefix + "_translation"):       {Min: -5e-3, Max: 5e-3},
			Axis(prefix + "_bender_upstream"):   {Min: -1e-3, Max: 1e-3},
			Axis(prefix + "_bender_downstream"): {Min: -1e-3, Max: 1e-3},
			Axis(prefix + "_shape"):             {Min: -1000, Max: 1000},
		}
	}
	limits := mirror("hb")
	for a, l := range mirror("vb") {
		limits[a] = l
	}
	limits[SlitsHCenter] = Limits{Min: -5e-3, Max: 5e-3}
	limits[SlitsVCenter] = Limits{Min: -5e-3, Max: 5e-3}
	limits[SlitsHAperture] = Limits{Min: 0, Max: 10e-3}
	limits[SlitsVAperture] = Limits{Min: 0, Max: 10e-3}
	return limits
}
