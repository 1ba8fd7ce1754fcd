package escape

import "math/cmplx"

// Newton iteration defaults.
const (
	// NewtonTol is the default convergence threshold on |f(z)|.
	NewtonTol = 1e-6
	// newtonDerivFloor guards the division by f'(z); orbits whose
	// derivative collapses below it are abandoned as non-converged.
	newtonDerivFloor = 1e-14
)

// NewtonResult is the outcome of a single Newton orbit.
type NewtonResult struct {
	Iterations int
	Converged  bool
	Z          complex128 // final iterate
}

// NewtonIterate runs Newton's method on f(z) = z^3 + (k-1)z - k from z0.
// The polynomial always has a root at z = 1; the other two roots move with
// the parameter k. Iteration stops when |f(z)| drops below tol, the
// derivative degenerates, the iterate turns non-finite, or maxIter is
// reached.
func NewtonIterate(z0, k complex128, maxIter int, tol float64) NewtonResult {
	if tol <= 0 {
		tol = NewtonTol
	}
	z := z0
	for n := 0; n < maxIter; n++ {
		f := z*z*z + (k-1)*z - k
		if cmplx.Abs(f) < tol {
			return NewtonResult{Iterations: n, Converged: true, Z: z}
		}
		df := 3*z*z + (k - 1)
		if cmplx.Abs(df) < newtonDerivFloor {
			return NewtonResult{Iterations: n, Z: z}
		}
		z -= f / df
		if cmplx.IsNaN(z) || cmplx.IsInf(z) {
			return NewtonResult{Iterations: n, Z: z}
		}
	}
	return NewtonResult{Iterations: maxIter, Z: z}
}

// RootRegistry assigns stable indices to the roots discovered by Newton
// orbits. Roots are matched by proximity and appended in discovery order, so
// indices depend on the order points are classified. The registry is not
// safe for concurrent use; grid renders classify rows sequentially after the
// parallel iteration phase so that discovery order stays row-major.
type RootRegistry struct {
	roots []complex128
	match float64 // squared match radius
}

// NewRootRegistry returns an empty registry that matches roots within the
// given radius. A non-positive radius falls back to a default wide enough to
// absorb the jitter left by the convergence threshold.
func NewRootRegistry(radius float64) *RootRegistry {
	if radius <= 0 {
		radius = 1e-4
	}
	return &RootRegistry{match: radius * radius}
}

// Classify returns the index of the registered root nearest to z within the
// match radius, registering z as a new root when none is close enough.
func (r *RootRegistry) Classify(z complex128) int {
	for i, root := range r.roots {
		d := z - root
		if real(d)*real(d)+imag(d)*imag(d) <= r.match {
			return i
		}
	}
	r.roots = append(r.roots, z)
	return len(r.roots) - 1
}

// Len returns the number of distinct roots seen so far.
func (r *RootRegistry) Len() int { return len(r.roots) }

// Roots returns a copy of the registered roots in discovery order.
func (r *RootRegistry) Roots() []complex128 {
	out := make([]complex128, len(r.roots))
	copy(out, r.roots)
	return out
}
