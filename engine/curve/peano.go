package curve

import "seehuhn.de/go/geom/vec"

func init() {
	register(FamilyPeano, 6, func(order int, w, h float64) []vec.Vec2 {
		n := 1
		for i := 0; i < order; i++ {
			n *= 3
		}
		return scaleCells(PeanoCells(order), n, w, h)
	})
}

// peanoSnake is the 9-cell visiting order of one subdivision level: up the
// first column, down the second, up the third.
var peanoSnake = [9]Cell{
	{0, 0}, {0, 1}, {0, 2},
	{1, 2}, {1, 1}, {1, 0},
	{2, 0}, {2, 1}, {2, 2},
}

// PeanoCells enumerates the Peano curve over a 3^order grid. Each level
// splits the square 3x3 and walks the snake; sub-squares in odd columns flip
// vertically and sub-squares in odd rows flip horizontally, which keeps
// consecutive cells adjacent across sub-square boundaries.
func PeanoCells(order int) []Cell {
	size := 1
	for i := 0; i < order; i++ {
		size *= 3
	}
	out := make([]Cell, 0, size*size)
	var rec func(x0, y0, size int, flipX, flipY bool)
	rec = func(x0, y0, size int, flipX, flipY bool) {
		if size == 1 {
			out = append(out, Cell{X: x0, Y: y0})
			return
		}
		third := size / 3
		for _, c := range peanoSnake {
			childFlipX := flipX != (c.Y == 1)
			childFlipY := flipY != (c.X == 1)
			cx, cy := c.X, c.Y
			if flipX {
				cx = 2 - cx
			}
			if flipY {
				cy = 2 - cy
			}
			rec(x0+cx*third, y0+cy*third, third, childFlipX, childFlipY)
		}
	}
	rec(0, 0, size, false, false)
	return out
}
