package curve

import "seehuhn.de/go/geom/vec"

func init() {
	register(FamilyArrowhead, 16, arrowheadTrace)
}

// arrowheadTrace fills a right triangle spanning the box with the Sierpinski
// curve: each level splits the triangle at its hypotenuse midpoint into two
// mirror-oriented halves and visits them start-half then end-half, emitting
// triangle centroids at the leaves. Consecutive centroids always belong to
// triangles sharing the split corner, so the traversal stays continuous.
func arrowheadTrace(order int, w, h float64) []vec.Vec2 {
	pts := make([]vec.Vec2, 0, 1<<order)
	var rec func(depth int, ax, ay, bx, by, cx, cy float64)
	rec = func(depth int, ax, ay, bx, by, cx, cy float64) {
		if depth <= 0 {
			pts = append(pts, vec.Vec2{X: (ax + bx + cx) / 3, Y: (ay + by + cy) / 3})
			return
		}
		// Hypotenuse midpoint becomes the right-angle corner of both
		// halves.
		mx := (ax + bx) / 2
		my := (ay + by) / 2
		rec(depth-1, ax, ay, cx, cy, mx, my)
		rec(depth-1, cx, cy, bx, by, mx, my)
	}
	// Start corner, end corner, right-angle corner.
	rec(order, 0, 0, w, h, 0, h)
	return pts
}
