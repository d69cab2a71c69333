package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrUnknownUnit is returned when a unit tag has no conversion factor.
var ErrUnknownUnit = errors.New("unknown unit")

// AngularUnits tags every angle passed to or returned from a motor operation.
// The canonical internal unit is the radian.
type AngularUnits int

const (
	Milliradians AngularUnits = iota
	Microradians
	Radians
	Degrees
)

// DistanceUnits tags every length passed to or returned from a motor operation.
// The canonical internal unit is the metre.
type DistanceUnits int

const (
	Micron DistanceUnits = iota
	Nanometers
	Millimeters
	Centimeters
	Meters
)

// radiansPer is the size of one unit expressed in radians.
func (u AngularUnits) radiansPer() (float64, error) {
	switch u {
	case Milliradians:
		return 1e-3, nil
	case Microradians:
		return 1e-6, nil
	case Radians:
		return 1, nil
	case Degrees:
		return math.Pi / 180, nil
	default:
		return 0, fmt.Errorf("%w: angular %d", ErrUnknownUnit, int(u))
	}
}

// metersPer is the size of one unit expressed in metres.
func (u DistanceUnits) metersPer() (float64, error) {
	switch u {
	case Micron:
		return 1e-6, nil
	case Nanometers:
		return 1e-9, nil
	case Millimeters:
		return 1e-3, nil
	case Centimeters:
		return 1e-2, nil
	case Meters:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: distance %d", ErrUnknownUnit, int(u))
	}
}

// ToRadians converts value expressed in u to radians.
func (u AngularUnits) ToRadians(value float64) (float64, error) {
	f, err := u.radiansPer()
	if err != nil {
		return 0, err
	}
	return value * f, nil
}

// FromRadians converts a value in radians to u.
func (u AngularUnits) FromRadians(rad float64) (float64, error) {
	f, err := u.radiansPer()
	if err != nil {
		return 0, err
	}
	return rad / f, nil
}

// ToMeters converts value expressed in u to metres.
func (u DistanceUnits) ToMeters(value float64) (float64, error) {
	f, err := u.metersPer()
	if err != nil {
		return 0, err
	}
	return value * f, nil
}

// FromMeters converts a value in metres to u.
func (u DistanceUnits) FromMeters(m float64) (float64, error) {
	f, err := u.metersPer()
	if err != nil {
		return 0, err
	}
	return m / f, nil
}

// ConvertAngle converts value from one angular unit to another.
func ConvertAngle(value float64, from, to AngularUnits) (float64, error) {
	rad, err := from.ToRadians(value)
	if err != nil {
		return 0, err
	}
	return to.FromRadians(rad)
}

// ConvertDistance converts value from one distance unit to another.
func ConvertDistance(value float64, from, to DistanceUnits) (float64, error) {
	m, err := from.ToMeters(value)
	if err != nil {
		return 0, err
	}
	return to.FromMeters(m)
}

func (u AngularUnits) String() string {
	switch u {
	case Milliradians:
		return "mrad"
	case Microradians:
		return "urad"
	case Radians:
		return "rad"
	case Degrees:
		return "deg"
	default:
		return "unknown"
	}
}

func (u DistanceUnits) String() string {
	switch u {
	case Micron:
		return "um"
	case Nanometers:
		return "nm"
	case Millimeters:
		return "mm"
	case Centimeters:
		return "cm"
	case Meters:
		return "m"
	default:
		return "unknown"
	}
}

// ParseAngularUnits accepts the short symbol or the long name of a unit.
func ParseAngularUnits(text string) (AngularUnits, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "mrad", "milliradians":
		return Milliradians, nil
	case "urad", "microradians":
		return Microradians, nil
	case "rad", "radians":
		return Radians, nil
	case "deg", "degrees":
		return Degrees, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, text)
	}
}

// ParseDistanceUnits accepts the short symbol or the long name of a unit.
func ParseDistanceUnits(text string) (DistanceUnits, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "um", "micron", "microns":
		return Micron, nil
	case "nm", "nanometers":
		return Nanometers, nil
	case "mm", "millimeters":
		return Millimeters, nil
	case "cm", "centimeters":
		return Centimeters, nil
	case "m", "meters":
		return Meters, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, text)
	}
}
