package geom

import "math"

// Vec3 is a 3D point or direction.
type Vec3 struct {
	X, Y, Z float64
}

func (a Vec3) Add(b Vec3) Vec3    { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3    { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }
func (a Vec3) Mul(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }
func (a Vec3) Dot(b Vec3) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }
func (a Vec3) Len2() float64      { return a.Dot(a) }
func (a Vec3) Len() float64       { return math.Sqrt(a.Len2()) }

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a.Y*b.Z - a.Z*b.Y,
		a.Z*b.X - a.X*b.Z,
		a.X*b.Y - a.Y*b.X,
	}
}

// Normalize returns a unit vector, or the zero vector when the input is too
// short to carry a direction.
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l < 1e-12 {
		return Vec3{}
	}
	return a.Mul(1 / l)
}

// IsFinite reports whether all three components are finite numbers.
func (a Vec3) IsFinite() bool {
	return !math.IsNaN(a.X) && !math.IsInf(a.X, 0) &&
		!math.IsNaN(a.Y) && !math.IsInf(a.Y, 0) &&
		!math.IsNaN(a.Z) && !math.IsInf(a.Z, 0)
}

// RotateAround rotates a about the given axis by angle radians using the
// axis-angle (Rodrigues) formula. The axis must be unit length; a zero axis
// leaves the point unchanged.
func (a Vec3) RotateAround(axis Vec3, angle float64) Vec3 {
	if axis.Len2() < 1e-24 {
		return a
	}
	sin, cos := math.Sincos(angle)
	term1 := a.Mul(cos)
	term2 := axis.Cross(a).Mul(sin)
	term3 := axis.Mul(axis.Dot(a) * (1 - cos))
	return term1.Add(term2).Add(term3)
}
