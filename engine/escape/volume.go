package escape

import (
	"math"
	"math/rand"

	"orbitlab/server/engine/geom"
)

// BulbBailout is the orbit radius beyond which a triplex orbit counts as
// escaped.
const BulbBailout = 2.0

// BulbSpec describes a spherical power-map membership test.
type BulbSpec struct {
	Power   float64
	Bailout float64
	MaxIter int
	C       geom.Vec3 // julia-3d constant; ignored when Julia is false
	Julia   bool
}

// Normalized fills in defaults for unset numeric fields.
func (s BulbSpec) Normalized() BulbSpec {
	if s.Power <= 0 {
		s.Power = 8
	}
	if s.Bailout <= 0 {
		s.Bailout = BulbBailout
	}
	if s.MaxIter <= 0 {
		s.MaxIter = 16
	}
	return s
}

// bulbStep applies the spherical power map to z. A zero-length z maps to
// zero, so only the added constant survives the step.
func bulbStep(z geom.Vec3, power float64) geom.Vec3 {
	r := z.Len()
	if r < 1e-12 {
		return geom.Vec3{}
	}
	theta := math.Acos(z.Z/r) * power
	phi := math.Atan2(z.Y, z.X) * power
	rp := math.Pow(r, power)
	st, ct := math.Sincos(theta)
	sp, cp := math.Sincos(phi)
	return geom.Vec3{X: rp * st * cp, Y: rp * st * sp, Z: rp * ct}
}

// BulbRetained reports whether the orbit of p stays inside the bailout
// radius for the whole iteration budget. Points whose orbit escapes, or
// turns non-finite, are discarded. For the Mandelbulb the seed doubles as
// the added constant; the Julia variant adds the fixed constant from the
// spec instead.
func BulbRetained(p geom.Vec3, s BulbSpec) bool {
	s = s.Normalized()
	c := p
	if s.Julia {
		c = s.C
	}
	z := p
	for n := 0; n < s.MaxIter; n++ {
		if !z.IsFinite() {
			return false
		}
		if z.Len() > s.Bailout {
			return false
		}
		z = bulbStep(z, s.Power).Add(c)
	}
	return z.IsFinite() && z.Len() <= s.Bailout
}

// MengerRetained reports whether p, taken inside the cube [-half, half]^3,
// belongs to the Menger sponge at the given subdivision depth. The test
// walks base-3 digits: a cell is carved out as soon as two of its three
// coordinate digits equal 1 at the same level.
func MengerRetained(p geom.Vec3, half float64, depth int) bool {
	if half <= 0 {
		return false
	}
	// Map into the unit cube.
	x := (p.X + half) / (2 * half)
	y := (p.Y + half) / (2 * half)
	z := (p.Z + half) / (2 * half)
	if x < 0 || x >= 1 || y < 0 || y >= 1 || z < 0 || z >= 1 {
		return false
	}
	for level := 0; level < depth; level++ {
		x *= 3
		y *= 3
		z *= 3
		dx, dy, dz := int(x), int(y), int(z)
		mid := 0
		if dx == 1 {
			mid++
		}
		if dy == 1 {
			mid++
		}
		if dz == 1 {
			mid++
		}
		if mid >= 2 {
			return false
		}
		x -= float64(dx)
		y -= float64(dy)
		z -= float64(dz)
	}
	return true
}

// Cloud samples n points uniformly from the cube [-half, half]^3 and keeps
// those accepted by keep, preserving sample order. A nil rng or non-positive
// budget yields an empty slice.
func Cloud(rng *rand.Rand, n int, half float64, keep func(geom.Vec3) bool) []geom.Vec3 {
	if rng == nil || n <= 0 || half <= 0 || keep == nil {
		return nil
	}
	out := make([]geom.Vec3, 0, n/4)
	for i := 0; i < n; i++ {
		p := geom.Vec3{
			X: (rng.Float64()*2 - 1) * half,
			Y: (rng.Float64()*2 - 1) * half,
			Z: (rng.Float64()*2 - 1) * half,
		}
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
