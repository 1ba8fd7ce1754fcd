package curve

import (
	"math"

	"seehuhn.de/go/geom/vec"
)

func init() {
	register(FamilyGosper, 7, gosperTrace)
}

// gosperTurns is the relative turn, in units of 60 degrees, applied before
// each of the seven sub-steps of one recursion level. The turns sum to zero,
// so a level leaves the heading where it found it.
var gosperTurns = [7]float64{0, -1, -1, 0, 1, 1, 0}

// gosperTrace walks the hexagonal Gosper curve: every step expands into
// seven steps of length 1/sqrt(7), turned per gosperTurns. The raw walk is
// rescaled into the box afterwards.
func gosperTrace(order int, w, h float64) []vec.Vec2 {
	count := 1
	for i := 0; i < order; i++ {
		count *= 7
	}
	walker := gosperWalker{pts: make([]vec.Vec2, 0, count)}
	walker.walk(order, 1)
	return fitPoints(walker.pts, w, h)
}

type gosperWalker struct {
	pos     vec.Vec2
	heading float64
	pts     []vec.Vec2
}

func (g *gosperWalker) walk(depth int, step float64) {
	if depth <= 0 {
		sin, cos := math.Sincos(g.heading)
		g.pos = vec.Vec2{X: g.pos.X + step*cos, Y: g.pos.Y + step*sin}
		g.pts = append(g.pts, g.pos)
		return
	}
	sub := step / math.Sqrt(7)
	for _, turn := range gosperTurns {
		g.heading += turn * math.Pi / 3
		g.walk(depth-1, sub)
	}
}
