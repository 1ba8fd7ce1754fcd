package geom

import (
	"fmt"
	"math"
	"sort"
)

// Polyhedron is an immutable convex solid given by its vertices and faces.
// Faces index into Vertices. The built-in solids are constructed once at
// package init and must be treated as read-only.
type Polyhedron struct {
	Name     string
	Vertices []Vec3
	Faces    [][]int
}

// SolidName identifies one of the built-in solids.
type SolidName string

const (
	Tetrahedron SolidName = "tetrahedron"
	Cube        SolidName = "cube"
	Octahedron  SolidName = "octahedron"
	Icosahedron SolidName = "icosahedron"
)

var solids map[SolidName]Polyhedron

// symmetryAngles lists, per solid, the discrete rotation angles of its
// rotational symmetry group that the orbit walk may draw from.
var symmetryAngles = map[SolidName][]float64{
	Tetrahedron: {2 * math.Pi / 3, 4 * math.Pi / 3, math.Pi},
	Cube:        {math.Pi / 2, math.Pi, 3 * math.Pi / 2, 2 * math.Pi / 3},
	Octahedron:  {math.Pi / 2, math.Pi, 3 * math.Pi / 2, 2 * math.Pi / 3},
	Icosahedron: {2 * math.Pi / 5, 4 * math.Pi / 5, 2 * math.Pi / 3, math.Pi},
}

func init() {
	phi := (1 + math.Sqrt(5)) / 2

	solids = map[SolidName]Polyhedron{
		Tetrahedron: {
			Name: string(Tetrahedron),
			Vertices: []Vec3{
				{1, 1, 1}, {1, -1, -1}, {-1, 1, -1}, {-1, -1, 1},
			},
			Faces: [][]int{
				{0, 1, 2}, {0, 3, 1}, {0, 2, 3}, {1, 3, 2},
			},
		},
		Cube: {
			Name: string(Cube),
			Vertices: []Vec3{
				{-1, -1, -1}, {1, -1, -1}, {1, 1, -1}, {-1, 1, -1},
				{-1, -1, 1}, {1, -1, 1}, {1, 1, 1}, {-1, 1, 1},
			},
			Faces: [][]int{
				{0, 1, 2, 3}, {4, 5, 6, 7}, {0, 1, 5, 4},
				{2, 3, 7, 6}, {0, 3, 7, 4}, {1, 2, 6, 5},
			},
		},
		Octahedron: {
			Name: string(Octahedron),
			Vertices: []Vec3{
				{1, 0, 0}, {-1, 0, 0}, {0, 1, 0}, {0, -1, 0}, {0, 0, 1}, {0, 0, -1},
			},
			Faces: [][]int{
				{0, 2, 4}, {2, 1, 4}, {1, 3, 4}, {3, 0, 4},
				{2, 0, 5}, {1, 2, 5}, {3, 1, 5}, {0, 3, 5},
			},
		},
		Icosahedron: {
			Name: string(Icosahedron),
			Vertices: []Vec3{
				{-1, phi, 0}, {1, phi, 0}, {-1, -phi, 0}, {1, -phi, 0},
				{0, -1, phi}, {0, 1, phi}, {0, -1, -phi}, {0, 1, -phi},
				{phi, 0, -1}, {phi, 0, 1}, {-phi, 0, -1}, {-phi, 0, 1},
			},
			Faces: [][]int{
				{0, 11, 5}, {0, 5, 1}, {0, 1, 7}, {0, 7, 10}, {0, 10, 11},
				{1, 5, 9}, {5, 11, 4}, {11, 10, 2}, {10, 7, 6}, {7, 1, 8},
				{3, 9, 4}, {3, 4, 2}, {3, 2, 6}, {3, 6, 8}, {3, 8, 9},
				{4, 9, 5}, {2, 4, 11}, {6, 2, 10}, {8, 6, 7}, {9, 8, 1},
			},
		},
	}

	for name, p := range solids {
		if err := p.Validate(); err != nil {
			panic(fmt.Sprintf("geom: bad built-in solid %s: %v", name, err))
		}
	}
}

// Solid returns one of the built-in solids by name.
func Solid(name SolidName) (Polyhedron, bool) {
	p, ok := solids[name]
	return p, ok
}

// SolidNames lists the built-in solids in a stable order.
func SolidNames() []SolidName {
	names := make([]SolidName, 0, len(solids))
	for name := range solids {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// SymmetryAngles returns the discrete symmetry rotation angles for a built-in
// solid, or nil when the solid is unknown.
func SymmetryAngles(name SolidName) []float64 {
	angles := symmetryAngles[name]
	out := make([]float64, len(angles))
	copy(out, angles)
	return out
}

// Validate checks that every face references at least three distinct,
// in-range vertices.
func (p Polyhedron) Validate() error {
	if len(p.Vertices) == 0 {
		return fmt.Errorf("polyhedron %q has no vertices", p.Name)
	}
	for fi, face := range p.Faces {
		if len(face) < 3 {
			return fmt.Errorf("polyhedron %q face %d has %d vertices", p.Name, fi, len(face))
		}
		seen := make(map[int]struct{}, len(face))
		for _, vi := range face {
			if vi < 0 || vi >= len(p.Vertices) {
				return fmt.Errorf("polyhedron %q face %d references vertex %d of %d", p.Name, fi, vi, len(p.Vertices))
			}
			if _, dup := seen[vi]; dup {
				return fmt.Errorf("polyhedron %q face %d repeats vertex %d", p.Name, fi, vi)
			}
			seen[vi] = struct{}{}
		}
	}
	return nil
}

// FaceCentroids returns the centroid of every face, in face order.
func (p Polyhedron) FaceCentroids() []Vec3 {
	out := make([]Vec3, len(p.Faces))
	for fi, face := range p.Faces {
		var sum Vec3
		for _, vi := range face {
			sum = sum.Add(p.Vertices[vi])
		}
		out[fi] = sum.Mul(1 / float64(len(face)))
	}
	return out
}

// EdgeMidpoints returns the midpoint of every distinct edge. Edges shared by
// two faces are reported once, ordered by their (low, high) vertex pair.
func (p Polyhedron) EdgeMidpoints() []Vec3 {
	type edge struct{ a, b int }
	seen := make(map[edge]struct{})
	edges := make([]edge, 0, len(p.Faces)*3)
	for _, face := range p.Faces {
		for i, vi := range face {
			vj := face[(i+1)%len(face)]
			e := edge{vi, vj}
			if e.a > e.b {
				e.a, e.b = e.b, e.a
			}
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].a != edges[j].a {
			return edges[i].a < edges[j].a
		}
		return edges[i].b < edges[j].b
	})
	out := make([]Vec3, len(edges))
	for i, e := range edges {
		out[i] = p.Vertices[e.a].Add(p.Vertices[e.b]).Mul(0.5)
	}
	return out
}
