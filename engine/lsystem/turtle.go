package lsystem

import (
	"fmt"
	"math"
	"strings"

	"seehuhn.de/go/geom/matrix"
	"seehuhn.de/go/geom/vec"
)

// DefaultMoves lists the symbols that advance the turtle and draw.
const DefaultMoves = "FfGg"

// Pose is a turtle position plus heading in radians.
type Pose struct {
	X, Y    float64
	Heading float64
}

// Segment is one drawn turtle step.
type Segment struct {
	From, To vec.Vec2
}

// Turtle configures the interpretation of a rewritten symbol sequence.
type Turtle struct {
	Angle float64 // turn increment in radians
	Step  float64 // advance per move symbol
	Start Pose
	Moves string // symbols that advance and draw; empty means DefaultMoves
}

func (t Turtle) normalized() Turtle {
	if t.Step == 0 {
		t.Step = 1
	}
	if t.Moves == "" {
		t.Moves = DefaultMoves
	}
	return t
}

// walk runs the turtle over symbols, calling visit for every drawn segment.
// Both the bounds pass and the draw pass go through here so they cannot
// disagree about the traversal.
func walk(symbols string, t Turtle, visit func(from, to vec.Vec2)) error {
	t = t.normalized()
	pos := t.Start
	var stack []Pose
	for i, sym := range symbols {
		switch sym {
		case '+':
			pos.Heading += t.Angle
		case '-':
			pos.Heading -= t.Angle
		case '[':
			stack = append(stack, pos)
		case ']':
			if len(stack) == 0 {
				return fmt.Errorf("unbalanced brackets: %q at offset %d pops an empty stack", sym, i)
			}
			pos = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		default:
			if strings.ContainsRune(t.Moves, sym) {
				sin, cos := math.Sincos(pos.Heading)
				next := Pose{X: pos.X + t.Step*cos, Y: pos.Y + t.Step*sin, Heading: pos.Heading}
				visit(vec.Vec2{X: pos.X, Y: pos.Y}, vec.Vec2{X: next.X, Y: next.Y})
				pos = next
			}
			// Other symbols are grammar bookkeeping with no motion.
		}
	}
	return nil
}

// Interpret walks symbols and returns the drawn segments in order.
func Interpret(symbols string, t Turtle) ([]Segment, error) {
	var segs []Segment
	err := walk(symbols, t, func(from, to vec.Vec2) {
		segs = append(segs, Segment{From: from, To: to})
	})
	if err != nil {
		return nil, err
	}
	return segs, nil
}

// Bounds is an axis-aligned box around a turtle walk.
type Bounds struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (b Bounds) Width() float64  { return b.MaxX - b.MinX }
func (b Bounds) Height() float64 { return b.MaxY - b.MinY }

func (b *Bounds) extend(p vec.Vec2) {
	b.MinX = math.Min(b.MinX, p.X)
	b.MaxX = math.Max(b.MaxX, p.X)
	b.MinY = math.Min(b.MinY, p.Y)
	b.MaxY = math.Max(b.MaxY, p.Y)
}

// BoundsOf runs the same walk as Interpret but only tracks the extremes, so
// fit-to-viewport scaling is exact rather than approximate. The start pose
// is always included.
func BoundsOf(symbols string, t Turtle) (Bounds, error) {
	t = t.normalized()
	b := Bounds{MinX: t.Start.X, MaxX: t.Start.X, MinY: t.Start.Y, MaxY: t.Start.Y}
	err := walk(symbols, t, func(from, to vec.Vec2) {
		b.extend(from)
		b.extend(to)
	})
	if err != nil {
		return Bounds{}, err
	}
	return b, nil
}

// FitTransform returns the affine transform mapping the bounds into a w by h
// box, preserving aspect ratio and centering the drawing. Degenerate bounds
// map to the box center unscaled.
func (b Bounds) FitTransform(w, h float64) matrix.Matrix {
	scale := 1.0
	if b.Width() > 0 && b.Height() > 0 {
		scale = math.Min(w/b.Width(), h/b.Height())
	} else if b.Width() > 0 {
		scale = w / b.Width()
	} else if b.Height() > 0 {
		scale = h / b.Height()
	}
	cx := (b.MinX + b.MaxX) / 2
	cy := (b.MinY + b.MaxY) / 2
	m := matrix.Translate(-cx, -cy)
	m = m.Mul(matrix.Scale(scale, scale))
	return m.Mul(matrix.Translate(w/2, h/2))
}

// Project maps a point through an affine transform such as the one
// FitTransform returns.
func Project(m matrix.Matrix, p vec.Vec2) vec.Vec2 {
	return vec.Vec2{
		X: p.X*m[0] + p.Y*m[2] + m[4],
		Y: p.X*m[1] + p.Y*m[3] + m[5],
	}
}

// Transform maps both segment endpoints through m.
func (s Segment) Transform(m matrix.Matrix) Segment {
	return Segment{From: Project(m, s.From), To: Project(m, s.To)}
}
