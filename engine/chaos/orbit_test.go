package chaos

import (
	"math"
	"math/rand"
	"testing"

	"orbitlab/server/engine/geom"
)

func TestAxesForSolidCounts(t *testing.T) {
	cases := []struct {
		name geom.SolidName
		want int // vertices + faces + edges
	}{
		{geom.Tetrahedron, 4 + 4 + 6},
		{geom.Cube, 8 + 6 + 12},
		{geom.Octahedron, 6 + 8 + 12},
		{geom.Icosahedron, 12 + 20 + 30},
	}
	for _, tc := range cases {
		p, ok := geom.Solid(tc.name)
		if !ok {
			t.Fatalf("expected built-in solid %q", tc.name)
		}
		if got := len(AxesForSolid(p)); got != tc.want {
			t.Fatalf("%s: expected %d axes, got %d", tc.name, tc.want, got)
		}
	}
}

func TestSymmetryOrbitUnitSphere(t *testing.T) {
	p, _ := geom.Solid(geom.Cube)
	spec := OrbitSpec{Axes: AxesForSolid(p), Angles: geom.SymmetryAngles(geom.Cube)}
	points := SymmetryOrbit(rand.New(rand.NewSource(13)), spec, 1000, geom.Vec3{X: 1})
	if len(points) != 1000 {
		t.Fatalf("expected 1000 points, got %d", len(points))
	}
	for i, q := range points {
		if math.Abs(q.Len()-1) > 1e-9 {
			t.Fatalf("step %d left the unit sphere: %+v (radius %v)", i, q, q.Len())
		}
	}
}

func TestSymmetryOrbitDeterministic(t *testing.T) {
	p, _ := geom.Solid(geom.Icosahedron)
	spec := OrbitSpec{Axes: AxesForSolid(p), Angles: geom.SymmetryAngles(geom.Icosahedron)}
	a := SymmetryOrbit(rand.New(rand.NewSource(21)), spec, 500, geom.Vec3{Z: 1})
	b := SymmetryOrbit(rand.New(rand.NewSource(21)), spec, 500, geom.Vec3{Z: 1})
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical runs, step %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestSymmetryOrbitDegenerateInputs(t *testing.T) {
	if got := SymmetryOrbit(rand.New(rand.NewSource(1)), OrbitSpec{}, 100, geom.Vec3{X: 1}); got != nil {
		t.Fatalf("expected empty sequence without axes, got %d points", len(got))
	}
	// Zero-length axes are dropped rather than producing NaN points.
	spec := OrbitSpec{Axes: []geom.Vec3{{}, {X: 1}}}
	points := SymmetryOrbit(rand.New(rand.NewSource(1)), spec, 50, geom.Vec3{Z: 1})
	for i, q := range points {
		if !q.IsFinite() {
			t.Fatalf("step %d produced a non-finite point: %+v", i, q)
		}
	}
}

func TestSymmetryOrbitZeroStart(t *testing.T) {
	spec := OrbitSpec{Axes: []geom.Vec3{{X: 1}}, Jitter: 0.2}
	points := SymmetryOrbit(rand.New(rand.NewSource(4)), spec, 10, geom.Vec3{})
	if len(points) != 10 {
		t.Fatalf("expected 10 points, got %d", len(points))
	}
	for i, q := range points {
		if math.Abs(q.Len()-1) > 1e-9 {
			t.Fatalf("step %d not on the unit sphere: %+v", i, q)
		}
	}
}
