package geom

import (
	"math"
	"testing"
)

func TestSolidTable(t *testing.T) {
	cases := []struct {
		name     SolidName
		vertices int
		faces    int
		edges    int
	}{
		{Tetrahedron, 4, 4, 6},
		{Cube, 8, 6, 12},
		{Octahedron, 6, 8, 12},
		{Icosahedron, 12, 20, 30},
	}
	for _, tc := range cases {
		p, ok := Solid(tc.name)
		if !ok {
			t.Fatalf("expected built-in solid %q", tc.name)
		}
		if len(p.Vertices) != tc.vertices {
			t.Fatalf("%s: expected %d vertices, got %d", tc.name, tc.vertices, len(p.Vertices))
		}
		if len(p.Faces) != tc.faces {
			t.Fatalf("%s: expected %d faces, got %d", tc.name, tc.faces, len(p.Faces))
		}
		if got := len(p.EdgeMidpoints()); got != tc.edges {
			t.Fatalf("%s: expected %d edges, got %d", tc.name, tc.edges, got)
		}
	}
}

func TestSolidUnknown(t *testing.T) {
	if _, ok := Solid("dodecahedron"); ok {
		t.Fatalf("expected unknown solid to be rejected")
	}
}

func TestValidateRejectsBadFaces(t *testing.T) {
	cases := []struct {
		name string
		p    Polyhedron
	}{
		{"out of range", Polyhedron{Name: "bad", Vertices: []Vec3{{}, {}, {}}, Faces: [][]int{{0, 1, 3}}}},
		{"negative", Polyhedron{Name: "bad", Vertices: []Vec3{{}, {}, {}}, Faces: [][]int{{0, -1, 2}}}},
		{"degenerate", Polyhedron{Name: "bad", Vertices: []Vec3{{}, {}, {}}, Faces: [][]int{{0, 1}}}},
		{"repeated", Polyhedron{Name: "bad", Vertices: []Vec3{{}, {}, {}}, Faces: [][]int{{0, 1, 1}}}},
		{"empty", Polyhedron{Name: "bad"}},
	}
	for _, tc := range cases {
		if err := tc.p.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestFaceCentroidsTetrahedron(t *testing.T) {
	p, _ := Solid(Tetrahedron)
	centroids := p.FaceCentroids()
	if len(centroids) != 4 {
		t.Fatalf("expected 4 centroids, got %d", len(centroids))
	}
	// Centroids of a regular tetrahedron's faces all sit at the same radius.
	r0 := centroids[0].Len()
	for i, c := range centroids {
		if math.Abs(c.Len()-r0) > 1e-12 {
			t.Fatalf("centroid %d radius %v differs from %v", i, c.Len(), r0)
		}
	}
}

func TestSymmetryAngles(t *testing.T) {
	for _, name := range SolidNames() {
		angles := SymmetryAngles(name)
		if len(angles) == 0 {
			t.Fatalf("expected symmetry angles for %s", name)
		}
		for _, a := range angles {
			if a <= 0 || a >= 2*math.Pi {
				t.Fatalf("%s: angle %v outside (0, 2pi)", name, a)
			}
		}
	}
	if got := SymmetryAngles("teapot"); len(got) != 0 {
		t.Fatalf("expected no angles for unknown solid, got %v", got)
	}
}

func TestSolidNamesStable(t *testing.T) {
	a := SolidNames()
	b := SolidNames()
	if len(a) != 4 || len(b) != 4 {
		t.Fatalf("expected 4 solids, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected stable order, got %v vs %v", a, b)
		}
	}
}
