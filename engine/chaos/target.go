package chaos

import (
	"fmt"
	"math/rand"

	"orbitlab/server/engine/geom"
)

const (
	// OppositeFaceDot is the rejection threshold for the no-opposite-face
	// constraint: a candidate whose direction dotted with the current
	// direction falls below it counts as nearly opposite.
	OppositeFaceDot = -0.2

	// drawRetryCap bounds the rejection loop. When every attempt within
	// the cap violates a constraint the last draw is accepted anyway, so
	// a run can occasionally carry a constraint violation rather than
	// spin forever.
	drawRetryCap = 20
)

// GameOptions configures the interpolated-target chaos game.
type GameOptions struct {
	// Lambda is the interpolation factor toward the drawn target,
	// strictly between 0 and 1.
	Lambda float64
	// NoRepeat rejects drawing the same target twice in a row.
	NoRepeat bool
	// NoOppositeFace rejects targets nearly opposite the current point.
	NoOppositeFace bool
}

// Validate rejects interpolation factors outside (0, 1).
func (o GameOptions) Validate() error {
	if o.Lambda <= 0 || o.Lambda >= 1 {
		return fmt.Errorf("lambda %v outside (0, 1)", o.Lambda)
	}
	return nil
}

// drawTarget picks a target index under the configured constraints, retrying
// up to the cap and then accepting whatever came last.
func drawTarget(rng *rand.Rand, targets []geom.Vec3, prev int, cur geom.Vec3, opts GameOptions) int {
	idx := 0
	dir := cur.Normalize()
	for attempt := 0; attempt < drawRetryCap; attempt++ {
		idx = rng.Intn(len(targets))
		if opts.NoRepeat && idx == prev {
			continue
		}
		if opts.NoOppositeFace && targets[idx].Normalize().Dot(dir) < OppositeFaceDot {
			continue
		}
		return idx
	}
	return idx
}

// TargetGame runs the interpolated-target chaos game for n steps from start:
// each step draws a target index (under the options' constraints) and moves
// the running point a fraction lambda of the way toward it. It returns the
// visited points together with the drawn indices. An empty target set yields
// empty sequences.
func TargetGame(rng *rand.Rand, targets []geom.Vec3, n int, start geom.Vec3, opts GameOptions) ([]geom.Vec3, []int, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	if len(targets) == 0 || n <= 0 {
		return nil, nil, nil
	}
	points := make([]geom.Vec3, 0, n)
	picks := make([]int, 0, n)
	p := start
	prev := -1
	for i := 0; i < n; i++ {
		idx := drawTarget(rng, targets, prev, p, opts)
		t := targets[idx]
		p = p.Mul(1 - opts.Lambda).Add(t.Mul(opts.Lambda))
		points = append(points, p)
		picks = append(picks, idx)
		prev = idx
	}
	return points, picks, nil
}
