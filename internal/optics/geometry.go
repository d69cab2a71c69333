// Package optics holds the first-order optical elements shared by the
// reference engines: free-space drift, the coherence slits and the thin
// grazing-incidence mirror.
package optics

import "math"

// Vec3 is a position or direction in the beamline frame, in metres, with Y
// along the nominal optical axis, X horizontal and Z vertical.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	return v.Sub(other).Norm()
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Add returns v + other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v * k.
func (v Vec3) Scale(k float64) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Direction returns the unit propagation vector of a ray with horizontal
// slope xp and vertical slope zp.
func Direction(xp, zp float64) Vec3 {
	d := Vec3{X: xp, Y: 1, Z: zp}
	return d.Scale(1 / d.Norm())
}

// Drift advances p along the slopes until its Y coordinate has grown by
// length, and returns the new position and the path length travelled.
func Drift(p Vec3, xp, zp, length float64) (Vec3, float64) {
	d := Direction(xp, zp)
	t := length / d.Y
	return p.Add(d.Scale(t)), t
}

// SlitPasses reports whether pos lies inside a slit blade pair.
func SlitPasses(center, aperture, pos float64) bool {
	return math.Abs(pos-center) <= aperture/2
}
