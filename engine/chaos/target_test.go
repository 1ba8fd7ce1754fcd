package chaos

import (
	"math"
	"math/rand"
	"testing"

	"orbitlab/server/engine/geom"
)

func tetraVertices(t *testing.T) []geom.Vec3 {
	t.Helper()
	p, ok := geom.Solid(geom.Tetrahedron)
	if !ok {
		t.Fatalf("expected built-in tetrahedron")
	}
	return p.Vertices
}

func TestTargetGameLambdaValidation(t *testing.T) {
	for _, lambda := range []float64{0, 1, -0.5, 1.5} {
		_, _, err := TargetGame(rand.New(rand.NewSource(1)), tetraVertices(t), 10, geom.Vec3{}, GameOptions{Lambda: lambda})
		if err == nil {
			t.Fatalf("expected lambda %v to be rejected", lambda)
		}
	}
}

func TestTargetGameEmptyTargets(t *testing.T) {
	points, picks, err := TargetGame(rand.New(rand.NewSource(1)), nil, 10, geom.Vec3{}, GameOptions{Lambda: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 0 || len(picks) != 0 {
		t.Fatalf("expected empty sequences, got %d points %d picks", len(points), len(picks))
	}
}

func TestTargetGameContraction(t *testing.T) {
	target := geom.Vec3{X: 1}
	points, _, err := TargetGame(rand.New(rand.NewSource(3)), []geom.Vec3{target}, 30, geom.Vec3{X: -1, Y: 2, Z: 0.5}, GameOptions{Lambda: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	prev := geom.Vec3{X: -1, Y: 2, Z: 0.5}.Sub(target).Len()
	for i, p := range points {
		d := p.Sub(target).Len()
		if math.Abs(d-0.5*prev) > 1e-12 {
			t.Fatalf("step %d: expected distance %v, got %v", i, 0.5*prev, d)
		}
		prev = d
	}
}

func TestTargetGameNoRepeat(t *testing.T) {
	// The bounded retry loop accepts a repeat only after exhausting its
	// cap, so for this seed the sequence is repeat-free.
	_, picks, err := TargetGame(rand.New(rand.NewSource(11)), tetraVertices(t), 5000, geom.Vec3{}, GameOptions{Lambda: 0.5, NoRepeat: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 1; i < len(picks); i++ {
		if picks[i] == picks[i-1] {
			t.Fatalf("steps %d and %d drew the same target %d", i-1, i, picks[i])
		}
	}
}

func TestTargetGameNoOppositeFace(t *testing.T) {
	targets := []geom.Vec3{{X: 1}, {X: -1}}
	points, picks, err := TargetGame(rand.New(rand.NewSource(7)), targets, 300, geom.Vec3{X: 0.9}, GameOptions{Lambda: 0.3, NoOppositeFace: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Starting on the +x side, the -x target is nearly opposite at every
	// step, so this seed should never accept it.
	for i, idx := range picks {
		if idx != 0 {
			t.Fatalf("step %d accepted the opposite target (point %+v)", i, points[i])
		}
	}
}

func TestTargetGameDeterministic(t *testing.T) {
	opts := GameOptions{Lambda: 0.5, NoRepeat: true}
	a, apicks, err := TargetGame(rand.New(rand.NewSource(9)), tetraVertices(t), 400, geom.Vec3{}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, bpicks, err := TargetGame(rand.New(rand.NewSource(9)), tetraVertices(t), 400, geom.Vec3{}, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] || apicks[i] != bpicks[i] {
			t.Fatalf("expected identical runs, step %d differs", i)
		}
	}
}

func TestTargetGameStaysInHull(t *testing.T) {
	verts := tetraVertices(t)
	points, _, err := TargetGame(rand.New(rand.NewSource(5)), verts, 2000, geom.Vec3{}, GameOptions{Lambda: 0.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Every vertex sits at radius sqrt(3); the attractor cannot leave
	// that ball.
	bound := math.Sqrt(3) + 1e-9
	for i, p := range points {
		if p.Len() > bound {
			t.Fatalf("step %d left the hull: %+v (radius %v)", i, p, p.Len())
		}
	}
}
