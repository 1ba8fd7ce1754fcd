package escape

import (
	"math"
	"math/cmplx"
	"testing"
)

func TestMandelbrotOriginNeverEscapes(t *testing.T) {
	for _, maxIter := range []int{1, 16, 256, 1000} {
		if got := Mandelbrot(0, maxIter); got != maxIter {
			t.Fatalf("expected origin to survive %d iterations, got %d", maxIter, got)
		}
	}
}

func TestMandelbrotFarPointEscapesFast(t *testing.T) {
	if got := Mandelbrot(complex(2, 2), 100); got > 2 {
		t.Fatalf("expected (2,2) to escape within 2 iterations, got %d", got)
	}
}

func TestJuliaSharesIterationCore(t *testing.T) {
	points := []complex128{
		complex(0.3, 0.5),
		complex(-1.2, 0.1),
		complex(0, 1),
		complex(-0.7, -0.3),
	}
	for _, p := range points {
		mandel := Mandelbrot(p, 64)
		julia := Julia(0, p, 64)
		if mandel != julia {
			t.Fatalf("point %v: mandelbrot %d != julia-with-swapped-roles %d", p, mandel, julia)
		}
	}
}

func TestEscapeIterNonFinite(t *testing.T) {
	n, _ := EscapeIter(cmplx.Inf(), 0, 50)
	if n != 0 {
		t.Fatalf("expected non-finite start to bail immediately, got %d", n)
	}
	n, _ = EscapeIter(cmplx.NaN(), 0, 50)
	if n != 0 {
		t.Fatalf("expected NaN start to bail immediately, got %d", n)
	}
}

func TestSmoothIterInterior(t *testing.T) {
	if got := SmoothIter(0, 0, 100); got != 100 {
		t.Fatalf("expected interior point to return maxIter, got %v", got)
	}
}

func TestSmoothIterEscapedInRange(t *testing.T) {
	p := complex(0.4, 0.4)
	n := Mandelbrot(p, 200)
	if n >= 200 {
		t.Fatalf("expected test point to escape, got %d", n)
	}
	mu := SmoothIter(0, p, 200)
	if mu < 0 || mu > float64(n)+2 {
		t.Fatalf("expected smooth count near %d, got %v", n, mu)
	}
}

func TestNewtonRootsOfUnity(t *testing.T) {
	reg := NewRootRegistry(1e-3)
	converged := 0
	for re := -2.0; re <= 2.0; re += 0.25 {
		for im := -2.0; im <= 2.0; im += 0.25 {
			z0 := complex(re, im)
			if z0 == 0 {
				continue
			}
			res := NewtonIterate(z0, 1, 64, 1e-9)
			if !res.Converged {
				continue
			}
			converged++
			idx := reg.Classify(res.Z)
			if idx < 0 || idx > 2 {
				t.Fatalf("expected root index in [0, 2], got %d for start %v", idx, z0)
			}
		}
	}
	if converged == 0 {
		t.Fatalf("expected some orbits to converge")
	}
	if reg.Len() != 3 {
		t.Fatalf("expected exactly 3 roots of unity, registry has %d: %v", reg.Len(), reg.Roots())
	}
	for _, root := range reg.Roots() {
		if math.Abs(cmplx.Abs(root)-1) > 1e-6 {
			t.Fatalf("expected roots on the unit circle, got %v", root)
		}
	}
}

func TestNewtonRootAtOne(t *testing.T) {
	// z = 1 solves z^3 + (k-1)z - k for every k.
	for _, k := range []complex128{1, complex(0.5, 0.3), complex(-1, 2)} {
		res := NewtonIterate(complex(1.1, 0.05), k, 128, 1e-9)
		if !res.Converged {
			t.Fatalf("k=%v: expected convergence near z=1", k)
		}
		if cmplx.Abs(res.Z-1) > 1e-3 {
			t.Fatalf("k=%v: expected root near 1, got %v", k, res.Z)
		}
	}
}

func TestNewtonDegenerateDerivative(t *testing.T) {
	// k=1 makes f'(z) = 3z^2, so the origin has a vanishing derivative.
	res := NewtonIterate(0, 1, 50, 1e-9)
	if res.Converged {
		t.Fatalf("expected degenerate start to report non-convergence")
	}
	if res.Iterations != 0 {
		t.Fatalf("expected immediate termination, got %d iterations", res.Iterations)
	}
}

func TestRootRegistryDiscoveryOrder(t *testing.T) {
	reg := NewRootRegistry(0.1)
	a := reg.Classify(complex(1, 0))
	b := reg.Classify(complex(-1, 0))
	c := reg.Classify(complex(1.05, 0)) // within match radius of the first root
	if a != 0 || b != 1 || c != 0 {
		t.Fatalf("expected indices 0,1,0 got %d,%d,%d", a, b, c)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 distinct roots, got %d", reg.Len())
	}
}
