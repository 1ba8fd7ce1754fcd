// Package chaos implements stochastic point generators: weighted affine
// iterated function systems, constrained interpolated-target chaos games
// over polyhedral target sets, and symmetry-orbit random walks.
package chaos

import (
	"fmt"
	"math/rand"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"
)

// AffineMap is one contraction of an iterated function system: an affine
// transform of the plane plus a selection weight.
type AffineMap struct {
	M      matrix.Matrix
	Weight float64
}

// NewAffineMap builds a map from the usual coefficient form
//
//	x' = a11*x + a12*y + b1
//	y' = a21*x + a22*y + b2
func NewAffineMap(a11, a12, a21, a22, b1, b2, weight float64) AffineMap {
	return AffineMap{
		M:      matrix.Matrix{a11, a21, a12, a22, b1, b2},
		Weight: weight,
	}
}

// Apply transforms p through the map.
func (m AffineMap) Apply(p vec.Vec2) vec.Vec2 {
	return vec.Vec2{
		X: p.X*m.M[0] + p.Y*m.M[2] + m.M[4],
		Y: p.X*m.M[1] + p.Y*m.M[3] + m.M[5],
	}
}

// NormalizeWeights returns a copy of maps with weights scaled to sum to 1.
// Negative weights, or a set whose weights sum to zero, are rejected.
func NormalizeWeights(maps []AffineMap) ([]AffineMap, error) {
	sum := 0.0
	for i, m := range maps {
		if m.Weight < 0 {
			return nil, fmt.Errorf("map %d has negative weight %v", i, m.Weight)
		}
		sum += m.Weight
	}
	if len(maps) > 0 && sum <= 0 {
		return nil, fmt.Errorf("map weights sum to %v", sum)
	}
	out := make([]AffineMap, len(maps))
	for i, m := range maps {
		m.Weight /= sum
		out[i] = m
	}
	return out, nil
}

// drawMap picks a map index by cumulative weight. Rounding may leave the
// running sum short of 1, so the last map catches any leftover probability
// mass.
func drawMap(rng *rand.Rand, maps []AffineMap) int {
	r := rng.Float64()
	acc := 0.0
	for i, m := range maps {
		acc += m.Weight
		if r < acc {
			return i
		}
	}
	return len(maps) - 1
}

// IFS runs the weighted affine chaos game for n steps from start, returning
// the visited points in order. Weights are normalized before drawing. An
// empty map set yields an empty sequence.
func IFS(rng *rand.Rand, maps []AffineMap, n int, start vec.Vec2) ([]vec.Vec2, error) {
	if len(maps) == 0 || n <= 0 {
		return nil, nil
	}
	maps, err := NormalizeWeights(maps)
	if err != nil {
		return nil, err
	}
	out := make([]vec.Vec2, 0, n)
	p := start
	for i := 0; i < n; i++ {
		p = maps[drawMap(rng, maps)].Apply(p)
		out = append(out, p)
	}
	return out, nil
}
