package optics

import (
	"math"
	"testing"

	"github.com/signalsfoundry/autoalignment/engine"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestVec3DistanceAndDot(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 2}
	b := Vec3{}
	if got := a.DistanceTo(b); got != 3 {
		t.Fatalf("DistanceTo = %v, want 3", got)
	}
	if got := a.Dot(Vec3{X: 1}); got != 1 {
		t.Fatalf("Dot = %v, want 1", got)
	}
	if got := a.Add(a).Sub(a); got != a {
		t.Fatalf("Add/Sub = %v, want %v", got, a)
	}
}

func TestDriftFollowsSlopes(t *testing.T) {
	p, path := Drift(Vec3{X: 1e-3}, 1e-3, -2e-3, 2)
	if !almostEqual(p.X, 3e-3, 1e-12) || !almostEqual(p.Z, -4e-3, 1e-12) || !almostEqual(p.Y, 2, 1e-12) {
		t.Fatalf("Drift position = %+v", p)
	}
	if path <= 2 {
		t.Fatalf("path length = %v, want > 2", path)
	}
}

func TestSlitPasses(t *testing.T) {
	if !SlitPasses(0, 1e-4, 4e-5) {
		t.Fatalf("ray inside aperture blocked")
	}
	if SlitPasses(1e-5, 1e-4, -6e-5) {
		t.Fatalf("ray outside offset aperture passed")
	}
}

func nominalMirror() Mirror {
	g := engine.DefaultGeometry().HMirror
	return Mirror{Geometry: g, State: engine.MirrorState{Pitch: g.NominalPitch}}
}

func TestMirrorFocuses(t *testing.T) {
	m := nominalMirror()
	// A ray parallel to the axis crosses it one focal length downstream.
	f := 1 / m.Power()
	pos, slope, lost := m.Reflect(1e-5, 0, 0)
	if lost {
		t.Fatalf("on-mirror ray lost")
	}
	if !almostEqual(pos+slope*f, 0, 1e-12) {
		t.Fatalf("ray does not cross axis at f: %v", pos+slope*f)
	}
}

func TestMirrorPitchKick(t *testing.T) {
	m := nominalMirror()
	_, s0, _ := m.Reflect(0, 0, 0)
	m.State.Pitch += 1e-4
	_, s1, _ := m.Reflect(0, 0, 0)
	if !almostEqual(s1-s0, 2e-4, 1e-12) {
		t.Fatalf("pitch kick = %v, want 2e-4", s1-s0)
	}
}

func TestMirrorShapeChangesPower(t *testing.T) {
	m := nominalMirror()
	p0 := m.Power()
	m.State.Shape = 100
	if m.Power() <= p0 {
		t.Fatalf("positive shape should increase power: %v <= %v", m.Power(), p0)
	}
}

func TestMirrorAcceptance(t *testing.T) {
	m := nominalMirror()
	if _, _, lost := m.Reflect(m.Acceptance()*1.01, 0, 0); !lost {
		t.Fatalf("ray beyond mirror length not lost")
	}
}
