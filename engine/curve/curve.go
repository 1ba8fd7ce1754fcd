// Package curve enumerates space-filling curves: deterministic
// index-to-coordinate mappings that impose a total order on a grid, plus the
// triangle- and hexagon-based recursive curves. Emission order is part of
// each family's contract.
package curve

import (
	"fmt"
	"math"
	"sort"

	"seehuhn.de/go/geom/vec"
)

// Family names one curve construction.
type Family string

const (
	FamilyHilbert    Family = "hilbert"
	FamilyHilbertRec Family = "hilbert-recursive"
	FamilyMoore      Family = "moore"
	FamilyZOrder     Family = "z-order"
	FamilyGray       Family = "gray"
	FamilyPeano      Family = "peano"
	FamilyArrowhead  Family = "sierpinski-arrowhead"
	FamilyGosper     Family = "gosper"
)

// Cell is one grid coordinate of a cell-based curve.
type Cell struct {
	X, Y int
}

type tracer struct {
	maxOrder int
	trace    func(order int, w, h float64) []vec.Vec2
}

var tracers = map[Family]tracer{}

// register wires a family into the dispatch table. Called from init funcs
// only; the table is read-only afterwards.
func register(f Family, maxOrder int, trace func(order int, w, h float64) []vec.Vec2) {
	if _, dup := tracers[f]; dup {
		panic(fmt.Sprintf("curve: duplicate family %q", f))
	}
	tracers[f] = tracer{maxOrder: maxOrder, trace: trace}
}

// Families lists the registered curve families in a stable order.
func Families() []Family {
	out := make([]Family, 0, len(tracers))
	for f := range tracers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MaxOrder returns the deepest order accepted for a family.
func MaxOrder(f Family) (int, bool) {
	t, ok := tracers[f]
	return t.maxOrder, ok
}

// Trace produces the ordered point list of a curve family at the given
// order, scaled into a w by h box. Orders above the family cap are rejected
// to keep output size bounded; order 0 is the trivial single-cell curve.
func Trace(f Family, order int, w, h float64) ([]vec.Vec2, error) {
	t, ok := tracers[f]
	if !ok {
		return nil, fmt.Errorf("unknown curve family %q", f)
	}
	if order < 0 {
		return nil, fmt.Errorf("negative order %d", order)
	}
	if order > t.maxOrder {
		return nil, fmt.Errorf("order %d exceeds cap %d for family %q", order, t.maxOrder, f)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("degenerate box %vx%v", w, h)
	}
	return t.trace(order, w, h), nil
}

// scaleCells maps cell coordinates of an n by n grid onto cell centers of a
// w by h box, preserving order.
func scaleCells(cells []Cell, n int, w, h float64) []vec.Vec2 {
	out := make([]vec.Vec2, len(cells))
	sx := w / float64(n)
	sy := h / float64(n)
	for i, c := range cells {
		out[i] = vec.Vec2{
			X: (float64(c.X) + 0.5) * sx,
			Y: (float64(c.Y) + 0.5) * sy,
		}
	}
	return out
}

// fitPoints rescales free-form points into a w by h box, preserving aspect
// ratio and centering the drawing.
func fitPoints(pts []vec.Vec2, w, h float64) []vec.Vec2 {
	if len(pts) == 0 {
		return pts
	}
	minX, maxX := pts[0].X, pts[0].X
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	spanX := maxX - minX
	spanY := maxY - minY
	scale := 1.0
	switch {
	case spanX > 0 && spanY > 0:
		scale = math.Min(w/spanX, h/spanY)
	case spanX > 0:
		scale = w / spanX
	case spanY > 0:
		scale = h / spanY
	}
	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2
	out := make([]vec.Vec2, len(pts))
	for i, p := range pts {
		out[i] = vec.Vec2{
			X: (p.X-cx)*scale + w/2,
			Y: (p.Y-cy)*scale + h/2,
		}
	}
	return out
}
