package curve

import "seehuhn.de/go/geom/vec"

func init() {
	register(FamilyZOrder, 10, func(order int, w, h float64) []vec.Vec2 {
		n := 1 << order
		return scaleCells(ZOrderCells(order), n, w, h)
	})
	register(FamilyGray, 10, func(order int, w, h float64) []vec.Vec2 {
		n := 1 << order
		return scaleCells(GrayCells(order), n, w, h)
	})
}

// deinterleave splits the bits of d into coordinates, low bit first into x.
func deinterleave(d int) (int, int) {
	x, y := 0, 0
	for bit := 0; d != 0; bit++ {
		x |= (d & 1) << bit
		d >>= 1
		y |= (d & 1) << bit
		d >>= 1
	}
	return x, y
}

// ZOrderPoint decodes linear index d on the Z-order (Lebesgue) curve.
func ZOrderPoint(d int) (int, int) {
	return deinterleave(d)
}

// GrayPoint decodes linear index d on the Gray-code curve: the same bit
// split applied to the Gray code of d instead of d itself.
func GrayPoint(d int) (int, int) {
	return deinterleave(d ^ (d >> 1))
}

// ZOrderCells enumerates the Z-order traversal of a 2^order grid. The order
// is index-ascending and deliberately not spatially continuous.
func ZOrderCells(order int) []Cell {
	n := 1 << order
	out := make([]Cell, n*n)
	for d := range out {
		x, y := ZOrderPoint(d)
		out[d] = Cell{X: x, Y: y}
	}
	return out
}

// GrayCells enumerates the Gray-code traversal of a 2^order grid.
func GrayCells(order int) []Cell {
	n := 1 << order
	out := make([]Cell, n*n)
	for d := range out {
		x, y := GrayPoint(d)
		out[d] = Cell{X: x, Y: y}
	}
	return out
}
