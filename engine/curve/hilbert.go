package curve

import "seehuhn.de/go/geom/vec"

func init() {
	register(FamilyHilbert, 10, func(order int, w, h float64) []vec.Vec2 {
		n := 1 << order
		return scaleCells(HilbertCells(order), n, w, h)
	})
	register(FamilyHilbertRec, 10, hilbertRecTrace)
	register(FamilyMoore, 10, func(order int, w, h float64) []vec.Vec2 {
		n := 1 << order
		return scaleCells(MooreCells(order), n, w, h)
	})
}

// HilbertD2XY decodes linear index d into the coordinates it occupies on the
// order-n Hilbert curve over an n by n grid (n a power of two). The decode
// walks 2-bit groups of d from the bottom, rotating and reflecting the
// partial coordinates per quadrant.
func HilbertD2XY(n, d int) (int, int) {
	x, y := 0, 0
	t := d
	for s := 1; s < n; s *= 2 {
		rx := 1 & (t / 2)
		ry := 1 & (t ^ rx)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
		x += s * rx
		y += s * ry
		t /= 4
	}
	return x, y
}

// HilbertCells enumerates the order-n Hilbert curve cell by cell.
func HilbertCells(order int) []Cell {
	n := 1 << order
	out := make([]Cell, n*n)
	for d := range out {
		x, y := HilbertD2XY(n, d)
		out[d] = Cell{X: x, Y: y}
	}
	return out
}

// hilbertRecTrace draws the Hilbert curve by direct geometric recursion: a
// quadrant is described by its origin and two half-frame basis vectors, and
// each level splits it into four re-oriented sub-frames. The traversal is
// the same curve as the bit decoder up to reflection.
func hilbertRecTrace(order int, w, h float64) []vec.Vec2 {
	pts := make([]vec.Vec2, 0, 1<<(2*order))
	var rec func(depth int, x0, y0, xi, xj, yi, yj float64)
	rec = func(depth int, x0, y0, xi, xj, yi, yj float64) {
		if depth <= 0 {
			pts = append(pts, vec.Vec2{X: x0 + (xi+yi)/2, Y: y0 + (xj+yj)/2})
			return
		}
		rec(depth-1, x0, y0, yi/2, yj/2, xi/2, xj/2)
		rec(depth-1, x0+xi/2, y0+xj/2, xi/2, xj/2, yi/2, yj/2)
		rec(depth-1, x0+xi/2+yi/2, y0+xj/2+yj/2, xi/2, xj/2, yi/2, yj/2)
		rec(depth-1, x0+xi/2+yi, y0+xj/2+yj, -yi/2, -yj/2, -xi/2, -xj/2)
	}
	rec(order, 0, 0, w, 0, 0, h)
	return pts
}

// MooreCells enumerates the closed Moore curve: four Hilbert copies of one
// order lower, the left pair rotated counter-clockwise and stacked upward,
// the right pair rotated clockwise and stacked downward, so the last cell
// neighbors the first.
func MooreCells(order int) []Cell {
	if order == 0 {
		return []Cell{{0, 0}}
	}
	half := 1 << (order - 1)
	sub := half * half
	out := make([]Cell, 0, 4*sub)
	for d := 0; d < sub; d++ {
		x, y := HilbertD2XY(half, d)
		out = append(out, Cell{X: half - 1 - y, Y: x})
	}
	for d := 0; d < sub; d++ {
		x, y := HilbertD2XY(half, d)
		out = append(out, Cell{X: half - 1 - y, Y: x + half})
	}
	for d := 0; d < sub; d++ {
		x, y := HilbertD2XY(half, d)
		out = append(out, Cell{X: y + half, Y: 2*half - 1 - x})
	}
	for d := 0; d < sub; d++ {
		x, y := HilbertD2XY(half, d)
		out = append(out, Cell{X: y + half, Y: half - 1 - x})
	}
	return out
}
