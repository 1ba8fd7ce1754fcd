package escape

import (
	"context"
	"fmt"

	"seehuhn.de/go/geom/matrix"
)

// Family selects the escape-time iteration.
type Family string

const (
	FamilyMandelbrot Family = "mandelbrot"
	FamilyJulia      Family = "julia"
	FamilyNewton     Family = "newton"
)

// Spec describes one grid render.
type Spec struct {
	Family  Family
	C       complex128 // julia constant
	K       complex128 // newton polynomial parameter
	MaxIter int
	Tol     float64 // newton convergence threshold
}

// Normalized fills in defaults for unset numeric fields.
func (s Spec) Normalized() Spec {
	if s.MaxIter <= 0 {
		s.MaxIter = 256
	}
	if s.Tol <= 0 {
		s.Tol = NewtonTol
	}
	return s
}

// Validate rejects specs naming an unknown family.
func (s Spec) Validate() error {
	switch s.Family {
	case FamilyMandelbrot, FamilyJulia, FamilyNewton:
		return nil
	default:
		return fmt.Errorf("unknown escape family %q", s.Family)
	}
}

// Field is a row-major grid of per-point iteration results. For the Newton
// family Roots carries the root classification, -1 where the orbit never
// converged.
type Field struct {
	W, H  int
	Iters []int32
	Roots []int32

	finals []complex128 // newton final iterates, pending classification
}

// NewField allocates a w by h field for the given family.
func NewField(w, h int, family Family) (*Field, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("degenerate field %dx%d", w, h)
	}
	f := &Field{W: w, H: h, Iters: make([]int32, w*h)}
	if family == FamilyNewton {
		f.Roots = make([]int32, w*h)
		f.finals = make([]complex128, w*h)
	}
	return f, nil
}

// Index returns the row-major offset of (x, y).
func (f *Field) Index(x, y int) int { return y*f.W + x }

// At returns the iteration count stored at (x, y).
func (f *Field) At(x, y int) int32 { return f.Iters[f.Index(x, y)] }

// RootAt returns the root index stored at (x, y), or -1 when the field has
// no root channel.
func (f *Field) RootAt(x, y int) int32 {
	if f.Roots == nil {
		return -1
	}
	return f.Roots[f.Index(x, y)]
}

// RenderRows fills rows y0 up to but excluding y1 of the field, mapping grid
// coordinates through m. It is safe to call concurrently for disjoint row
// bands. For the Newton family it records orbits only; root indices are
// assigned by a later ClassifyRoots pass so that discovery order does not
// depend on band scheduling. Cancellation is checked between rows.
func RenderRows(ctx context.Context, f *Field, m matrix.Matrix, s Spec, y0, y1 int) error {
	s = s.Normalized()
	if err := s.Validate(); err != nil {
		return err
	}
	if y0 < 0 || y1 > f.H || y0 > y1 {
		return fmt.Errorf("row band [%d, %d) outside field of height %d", y0, y1, f.H)
	}
	for y := y0; y < y1; y++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		base := y * f.W
		for x := 0; x < f.W; x++ {
			p := At(m, x, y)
			switch s.Family {
			case FamilyMandelbrot:
				f.Iters[base+x] = int32(Mandelbrot(p, s.MaxIter))
			case FamilyJulia:
				f.Iters[base+x] = int32(Julia(p, s.C, s.MaxIter))
			case FamilyNewton:
				res := NewtonIterate(p, s.K, s.MaxIter, s.Tol)
				f.Iters[base+x] = int32(res.Iterations)
				if res.Converged {
					f.finals[base+x] = res.Z
				} else {
					f.finals[base+x] = 0
					f.Roots[base+x] = -1
				}
			}
		}
	}
	return nil
}

// ClassifyRoots assigns root indices for a fully rendered Newton field,
// scanning row-major so the registry grows in a deterministic order. Calling
// it on fields of other families is a no-op.
func ClassifyRoots(f *Field, reg *RootRegistry) {
	if f.Roots == nil || reg == nil {
		return
	}
	for i := range f.finals {
		if f.Roots[i] == -1 {
			continue
		}
		f.Roots[i] = int32(reg.Classify(f.finals[i]))
	}
}

// Render fills the whole field sequentially and, for Newton, classifies
// roots into reg. reg may be nil for non-Newton families.
func Render(ctx context.Context, f *Field, m matrix.Matrix, s Spec, reg *RootRegistry) error {
	if err := RenderRows(ctx, f, m, s, 0, f.H); err != nil {
		return err
	}
	ClassifyRoots(f, reg)
	return nil
}
