package model

import (
	"errors"
	"math"
	"testing"
)

func TestConvertAngleRoundTrip(t *testing.T) {
	units := []AngularUnits{Milliradians, Microradians, Radians, Degrees}
	for _, from := range units {
		for _, to := range units {
			got, err := ConvertAngle(2.5, from, to)
			if err != nil {
				t.Fatalf("ConvertAngle(%s->%s): %v", from, to, err)
			}
			back, err := ConvertAngle(got, to, from)
			if err != nil {
				t.Fatalf("ConvertAngle(%s->%s): %v", to, from, err)
			}
			if math.Abs(back-2.5) > 1e-12 {
				t.Fatalf("round trip %s->%s->%s = %v, want 2.5", from, to, from, back)
			}
		}
	}
}

func TestConvertAngleFactors(t *testing.T) {
	got, err := ConvertAngle(1, Milliradians, Microradians)
	if err != nil {
		t.Fatalf("ConvertAngle: %v", err)
	}
	if math.Abs(got-1000) > 1e-9 {
		t.Fatalf("1 mrad = %v urad, want 1000", got)
	}
	got, err = ConvertAngle(180, Degrees, Radians)
	if err != nil {
		t.Fatalf("ConvertAngle: %v", err)
	}
	if math.Abs(got-math.Pi) > 1e-12 {
		t.Fatalf("180 deg = %v rad, want pi", got)
	}
}

func TestConvertDistanceFactors(t *testing.T) {
	got, err := ConvertDistance(10, Micron, Millimeters)
	if err != nil {
		t.Fatalf("ConvertDistance: %v", err)
	}
	if math.Abs(got-0.01) > 1e-15 {
		t.Fatalf("10 um = %v mm, want 0.01", got)
	}
	got, err = ConvertDistance(1, Meters, Nanometers)
	if err != nil {
		t.Fatalf("ConvertDistance: %v", err)
	}
	if math.Abs(got-1e9) > 1e-3 {
		t.Fatalf("1 m = %v nm, want 1e9", got)
	}
}

func TestUnknownUnitsRejected(t *testing.T) {
	if _, err := AngularUnits(42).ToRadians(1); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("ToRadians(unknown) error = %v, want ErrUnknownUnit", err)
	}
	if _, err := DistanceUnits(42).FromMeters(1); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("FromMeters(unknown) error = %v, want ErrUnknownUnit", err)
	}
	if _, err := ParseDistanceUnits("furlong"); !errors.Is(err, ErrUnknownUnit) {
		t.Fatalf("ParseDistanceUnits error = %v, want ErrUnknownUnit", err)
	}
}

func TestParseUnits(t *testing.T) {
	if u, err := ParseAngularUnits("mrad"); err != nil || u != Milliradians {
		t.Fatalf("ParseAngularUnits(mrad) = %v, %v", u, err)
	}
	if u, err := ParseDistanceUnits("Micron"); err != nil || u != Micron {
		t.Fatalf("ParseDistanceUnits(Micron) = %v, %v", u, err)
	}
}
