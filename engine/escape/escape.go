// Package escape implements escape-time fractal iteration: the quadratic
// Mandelbrot and Julia families, Newton's method on cubic polynomials with
// root classification, and volumetric membership tests for their 3D
// relatives.
package escape

import (
	"math"
	"math/cmplx"
)

// Bailout is the squared orbit radius beyond which an orbit counts as
// escaped.
const Bailout = 4.0

// EscapeIter runs the quadratic iteration z <- z*z + c starting from z and
// reports how many steps the orbit stayed inside the bailout radius, capped
// at maxIter, together with the final iterate. A non-finite iterate counts as
// escaped on the step that produced it.
func EscapeIter(z, c complex128, maxIter int) (int, complex128) {
	for n := 0; n < maxIter; n++ {
		if real(z)*real(z)+imag(z)*imag(z) > Bailout {
			return n, z
		}
		if cmplx.IsNaN(z) || cmplx.IsInf(z) {
			return n, z
		}
		z = z*z + c
	}
	return maxIter, z
}

// Mandelbrot returns the escape iteration for the parameter point c. Points
// inside the set return maxIter.
func Mandelbrot(c complex128, maxIter int) int {
	n, _ := EscapeIter(0, c, maxIter)
	return n
}

// Julia returns the escape iteration for the seed z0 under the fixed
// constant c. Points inside the filled Julia set return maxIter.
func Julia(z0, c complex128, maxIter int) int {
	n, _ := EscapeIter(z0, c, maxIter)
	return n
}

// SmoothIter returns a fractional escape count for c, continuous across
// iteration bands. Non-escaping points return float64(maxIter).
func SmoothIter(z0, c complex128, maxIter int) float64 {
	n, z := EscapeIter(z0, c, maxIter)
	if n >= maxIter {
		return float64(maxIter)
	}
	r2 := real(z)*real(z) + imag(z)*imag(z)
	if r2 <= 1 || math.IsNaN(r2) || math.IsInf(r2, 0) {
		return float64(n)
	}
	// Double-log normalization of the final radius.
	mu := float64(n) + 1 - math.Log(math.Log(r2)/2)/math.Ln2
	if mu < 0 {
		mu = 0
	}
	return mu
}
