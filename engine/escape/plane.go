package escape

import (
	"fmt"

	"seehuhn.de/go/geom/matrix"
)

// Plane is an axis-aligned window onto the complex plane. X spans the real
// axis, Y the imaginary axis.
type Plane struct {
	XMin, XMax float64
	YMin, YMax float64
}

// Valid reports whether the window has positive extent on both axes.
func (p Plane) Valid() bool {
	return p.XMax > p.XMin && p.YMax > p.YMin
}

// Width returns the real-axis extent.
func (p Plane) Width() float64 { return p.XMax - p.XMin }

// Height returns the imaginary-axis extent.
func (p Plane) Height() float64 { return p.YMax - p.YMin }

// Mapper returns the affine transform taking grid coordinates of a w by h
// raster into the window, with row 0 on the YMin edge.
func (p Plane) Mapper(w, h int) (matrix.Matrix, error) {
	if !p.Valid() {
		return matrix.Identity, fmt.Errorf("degenerate plane window %+v", p)
	}
	if w <= 0 || h <= 0 {
		return matrix.Identity, fmt.Errorf("degenerate raster %dx%d", w, h)
	}
	m := matrix.Scale(p.Width()/float64(w), p.Height()/float64(h))
	return m.Mul(matrix.Translate(p.XMin, p.YMin)), nil
}

// At maps one grid coordinate through m to a point of the plane.
func At(m matrix.Matrix, x, y int) complex128 {
	fx, fy := float64(x), float64(y)
	return complex(fx*m[0]+fy*m[2]+m[4], fx*m[1]+fy*m[3]+m[5])
}

// Named windows onto well-known neighborhoods of the Mandelbrot set.
var (
	// FullSet frames the whole set with a little margin.
	FullSet = Plane{XMin: -2.5, XMax: 1.0, YMin: -1.25, YMax: 1.25}
	// SeahorseValley is the cleft between the main cardioid and the
	// period-2 bulb.
	SeahorseValley = Plane{XMin: -0.80, XMax: -0.70, YMin: 0.05, YMax: 0.15}
	// ElephantValley sits on the eastern edge of the main cardioid.
	ElephantValley = Plane{XMin: 0.25, XMax: 0.35, YMin: -0.05, YMax: 0.05}
	// NeedleMinibrot is the largest satellite copy on the western spike.
	NeedleMinibrot = Plane{XMin: -1.80, XMax: -1.72, YMin: -0.04, YMax: 0.04}
	// TripleSpiral lies in the north filament field.
	TripleSpiral = Plane{XMin: -0.093, XMax: -0.085, YMin: 0.652, YMax: 0.660}
)

// Regions maps landmark names to their windows.
var Regions = map[string]Plane{
	"full":            FullSet,
	"seahorse-valley": SeahorseValley,
	"elephant-valley": ElephantValley,
	"needle-minibrot": NeedleMinibrot,
	"triple-spiral":   TripleSpiral,
}
