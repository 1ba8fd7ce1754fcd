package chaos

import (
	"math/rand"

	"orbitlab/server/engine/geom"
)

// defaultJitter is the half-width of the continuous angle range used when an
// orbit spec does not set one.
const defaultJitter = 0.35

// OrbitSpec configures a symmetry-orbit random walk on the unit sphere.
type OrbitSpec struct {
	// Axes are candidate rotation axes; they are normalized before use
	// and zero-length entries are dropped.
	Axes []geom.Vec3
	// Angles is the discrete symmetry-angle set of the solid. When empty
	// every step draws a continuous angle instead.
	Angles []float64
	// Jitter is the half-width of the continuous angle range. Zero picks
	// a small default.
	Jitter float64
}

// AxesForSolid returns the union of a polyhedron's vertex, face-centroid,
// and edge-midpoint directions, the candidate rotation axes of its
// symmetry-orbit walk.
func AxesForSolid(p geom.Polyhedron) []geom.Vec3 {
	axes := make([]geom.Vec3, 0, len(p.Vertices)+len(p.Faces)*2)
	for _, v := range p.Vertices {
		axes = append(axes, v)
	}
	axes = append(axes, p.FaceCentroids()...)
	axes = append(axes, p.EdgeMidpoints()...)
	return axes
}

// SymmetryOrbit walks the unit sphere for n steps from start: each step
// rotates the current point about a randomly drawn axis, by either a
// randomly drawn angle from the discrete set or a continuous angle within
// the jitter range, then re-normalizes. A start without direction is lifted
// to the north pole. An empty axis set yields an empty sequence.
func SymmetryOrbit(rng *rand.Rand, spec OrbitSpec, n int, start geom.Vec3) []geom.Vec3 {
	axes := make([]geom.Vec3, 0, len(spec.Axes))
	for _, a := range spec.Axes {
		u := a.Normalize()
		if u != (geom.Vec3{}) {
			axes = append(axes, u)
		}
	}
	if len(axes) == 0 || n <= 0 {
		return nil
	}
	jitter := spec.Jitter
	if jitter <= 0 {
		jitter = defaultJitter
	}
	p := start.Normalize()
	if p == (geom.Vec3{}) {
		p = geom.Vec3{Z: 1}
	}
	out := make([]geom.Vec3, 0, n)
	for i := 0; i < n; i++ {
		axis := axes[rng.Intn(len(axes))]
		var angle float64
		if len(spec.Angles) > 0 && rng.Float64() < 0.5 {
			angle = spec.Angles[rng.Intn(len(spec.Angles))]
		} else {
			angle = (rng.Float64()*2 - 1) * jitter
		}
		p = p.RotateAround(axis, angle).Normalize()
		if p == (geom.Vec3{}) {
			p = geom.Vec3{Z: 1}
		}
		out = append(out, p)
	}
	return out
}
