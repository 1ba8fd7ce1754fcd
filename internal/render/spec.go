package render

import (
	"errors"
	"fmt"
	"sort"

	"orbitlab/server/engine/curve"
	"orbitlab/server/engine/escape"
	"orbitlab/server/engine/geom"
)

// Generator family identifiers accepted on the wire and in preset documents.
const (
	FamilyMandelbrot    = "mandelbrot"
	FamilyJulia         = "julia"
	FamilyNewton        = "newton"
	FamilyMandelbulb    = "mandelbulb"
	FamilyJulia3D       = "julia3d"
	FamilyMenger        = "menger"
	FamilyIFS           = "ifs"
	FamilyTargetGame    = "target-game"
	FamilySymmetryOrbit = "symmetry-orbit"
	FamilyLSystem       = "lsystem"
	FamilyCurve         = "curve"
)

// Command reject reasons reported back to clients.
const (
	RejectInvalidParams = "invalid_params"
	RejectUnknownFamily = "unknown_family"
	RejectUnknownPreset = "unknown_preset"
	RejectUnknownViewer = "unknown_viewer"
	RejectQueueFull     = "queue_full"
	RejectNoActiveJob   = "no_active_job"
)

var (
	// ErrUnknownFamily marks a spec naming no registered generator family.
	ErrUnknownFamily = errors.New("unknown family")
	// ErrInvalidParams marks a spec that fails numeric validation.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrQueueFull marks a scheduler at its concurrent job capacity.
	ErrQueueFull = errors.New("job queue full")
	// ErrSymbolBudget marks an L-system expansion that outgrew the limit.
	ErrSymbolBudget = errors.New("symbol budget exceeded")
)

var familySet = map[string]struct{}{
	FamilyMandelbrot:    {},
	FamilyJulia:         {},
	FamilyNewton:        {},
	FamilyMandelbulb:    {},
	FamilyJulia3D:       {},
	FamilyMenger:        {},
	FamilyIFS:           {},
	FamilyTargetGame:    {},
	FamilySymmetryOrbit: {},
	FamilyLSystem:       {},
	FamilyCurve:         {},
}

// Families lists the registered generator families in sorted order.
func Families() []string {
	names := make([]string, 0, len(familySet))
	for name := range familySet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KnownFamily reports whether name is a registered generator family.
func KnownFamily(name string) bool {
	_, ok := familySet[name]
	return ok
}

// RejectReason maps a staging error to its wire reject reason.
func RejectReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownFamily):
		return RejectUnknownFamily
	case errors.Is(err, ErrQueueFull):
		return RejectQueueFull
	default:
		return RejectInvalidParams
	}
}

// AffineMapSpec is one IFS contraction in the classic coefficient layout:
// x' = a*x + b*y + e, y' = c*x + d*y + f, drawn with the given weight.
type AffineMapSpec struct {
	A      float64 `json:"a"`
	B      float64 `json:"b"`
	C      float64 `json:"c"`
	D      float64 `json:"d"`
	E      float64 `json:"e"`
	F      float64 `json:"f"`
	Weight float64 `json:"weight"`
}

// Spec is the flat parameter block of one render job. Fields irrelevant to
// the chosen family are ignored; zero values mean "use the default".
type Spec struct {
	Family  string `json:"family"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	MaxIter int    `json:"maxIter,omitempty"`

	// Escape-time viewport: a named region or an explicit window.
	Region string  `json:"region,omitempty"`
	XMin   float64 `json:"xMin,omitempty"`
	XMax   float64 `json:"xMax,omitempty"`
	YMin   float64 `json:"yMin,omitempty"`
	YMax   float64 `json:"yMax,omitempty"`

	// Julia constant and Newton polynomial parameter.
	CRe float64 `json:"cRe,omitempty"`
	CIm float64 `json:"cIm,omitempty"`
	KRe float64 `json:"kRe,omitempty"`
	KIm float64 `json:"kIm,omitempty"`

	// Volume sampling (mandelbulb, julia3d, menger).
	Power   float64 `json:"power,omitempty"`
	Bailout float64 `json:"bailout,omitempty"`
	CX      float64 `json:"cx,omitempty"`
	CY      float64 `json:"cy,omitempty"`
	CZ      float64 `json:"cz,omitempty"`
	Half    float64 `json:"half,omitempty"`
	Samples int     `json:"samples,omitempty"`

	// Chaos games.
	Count          int             `json:"count,omitempty"`
	Lambda         float64         `json:"lambda,omitempty"`
	Solid          string          `json:"solid,omitempty"`
	NoRepeat       bool            `json:"noRepeat,omitempty"`
	NoOppositeFace bool            `json:"noOppositeFace,omitempty"`
	Jitter         float64         `json:"jitter,omitempty"`
	Maps           []AffineMapSpec `json:"maps,omitempty"`

	// L-systems.
	Axiom string            `json:"axiom,omitempty"`
	Rules map[string]string `json:"rules,omitempty"`
	Angle float64           `json:"angle,omitempty"`
	Step  float64           `json:"step,omitempty"`
	Depth int               `json:"depth,omitempty"`

	// Space-filling curves.
	Curve string `json:"curve,omitempty"`
	Order int    `json:"order,omitempty"`

	// Seed overrides the hub seed so a job can be reproduced exactly.
	Seed string `json:"seed,omitempty"`
}

// Clone deep-copies the spec including its map slice and rule table.
func (s Spec) Clone() Spec {
	out := s
	if len(s.Maps) > 0 {
		out.Maps = append([]AffineMapSpec(nil), s.Maps...)
	}
	if s.Rules != nil {
		out.Rules = make(map[string]string, len(s.Rules))
		for k, v := range s.Rules {
			out.Rules[k] = v
		}
	}
	return out
}

const (
	defaultGridSize   = 512
	defaultMaxIter    = 256
	defaultBulbIter   = 24
	defaultSamples    = 100000
	defaultCount      = 30000
	defaultMengerHalf = 1.5
	defaultBulbHalf   = 1.2
)

// Normalized fills family-appropriate defaults for unset fields. The
// returned spec is what jobAccepted echoes back, so clients always see the
// parameters that actually ran.
func (s Spec) Normalized() Spec {
	out := s.Clone()
	switch out.Family {
	case FamilyMandelbrot, FamilyJulia, FamilyNewton:
		if out.Width <= 0 {
			out.Width = defaultGridSize
		}
		if out.Height <= 0 {
			out.Height = defaultGridSize
		}
		if out.MaxIter <= 0 {
			out.MaxIter = defaultMaxIter
		}
		if out.Family == FamilyJulia && out.CRe == 0 && out.CIm == 0 {
			out.CRe, out.CIm = -0.8, 0.156
		}
		if out.Family == FamilyNewton && out.KRe == 0 && out.KIm == 0 {
			out.KRe = 1
		}
	case FamilyMandelbulb, FamilyJulia3D:
		if out.MaxIter <= 0 {
			out.MaxIter = defaultBulbIter
		}
		if out.Power == 0 {
			out.Power = 8
		}
		if out.Bailout == 0 {
			out.Bailout = escape.BulbBailout
		}
		if out.Half == 0 {
			out.Half = defaultBulbHalf
		}
		if out.Samples <= 0 {
			out.Samples = defaultSamples
		}
		if out.Family == FamilyJulia3D && out.CX == 0 && out.CY == 0 && out.CZ == 0 {
			out.CX, out.CY, out.CZ = -0.2, 0.6, 0.2
		}
	case FamilyMenger:
		if out.Depth <= 0 {
			out.Depth = 3
		}
		if out.Half == 0 {
			out.Half = defaultMengerHalf
		}
		if out.Samples <= 0 {
			out.Samples = defaultSamples
		}
	case FamilyIFS:
		if out.Count <= 0 {
			out.Count = defaultCount
		}
	case FamilyTargetGame:
		if out.Count <= 0 {
			out.Count = defaultCount
		}
		if out.Lambda == 0 {
			out.Lambda = 0.5
		}
		if out.Solid == "" {
			out.Solid = string(geom.Tetrahedron)
		}
	case FamilySymmetryOrbit:
		if out.Count <= 0 {
			out.Count = defaultCount
		}
		if out.Solid == "" {
			out.Solid = string(geom.Icosahedron)
		}
	case FamilyLSystem:
		if out.Depth <= 0 {
			out.Depth = 4
		}
		if out.Angle == 0 {
			out.Angle = 60
		}
		if out.Step == 0 {
			out.Step = 1
		}
		if out.Width <= 0 {
			out.Width = defaultGridSize
		}
		if out.Height <= 0 {
			out.Height = defaultGridSize
		}
	case FamilyCurve:
		if out.Order <= 0 {
			out.Order = 4
		}
		if out.Width <= 0 {
			out.Width = defaultGridSize
		}
		if out.Height <= 0 {
			out.Height = defaultGridSize
		}
	}
	return out
}

// Limits caps the resource footprint a single job may request. The intake
// layer validates against these before a job reaches the scheduler.
type Limits struct {
	MaxGridWidth    int `json:"maxGridWidth"`
	MaxGridHeight   int `json:"maxGridHeight"`
	MaxIterations   int `json:"maxIterations"`
	MaxPoints       int `json:"maxPoints"`
	MaxRewriteDepth int `json:"maxRewriteDepth"`
	MaxSymbols      int `json:"maxSymbols"`
	MaxJobs         int `json:"maxJobs"`
}

// Normalized fills zero limits with the shipped defaults.
func (l Limits) Normalized() Limits {
	if l.MaxGridWidth <= 0 {
		l.MaxGridWidth = 2048
	}
	if l.MaxGridHeight <= 0 {
		l.MaxGridHeight = 2048
	}
	if l.MaxIterations <= 0 {
		l.MaxIterations = 5000
	}
	if l.MaxPoints <= 0 {
		l.MaxPoints = 2000000
	}
	if l.MaxRewriteDepth <= 0 {
		l.MaxRewriteDepth = 12
	}
	if l.MaxSymbols <= 0 {
		l.MaxSymbols = 500000
	}
	if l.MaxJobs <= 0 {
		l.MaxJobs = 8
	}
	return l
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParams, fmt.Sprintf(format, args...))
}

// Validate checks a normalized spec against the limits. The engine assumes
// well-formed input, so everything a client can get wrong is rejected here.
func (s Spec) Validate(l Limits) error {
	l = l.Normalized()
	if !KnownFamily(s.Family) {
		return fmt.Errorf("%w: %q", ErrUnknownFamily, s.Family)
	}

	switch s.Family {
	case FamilyMandelbrot, FamilyJulia, FamilyNewton:
		if err := s.validateGrid(l); err != nil {
			return err
		}
		if s.Region != "" {
			if _, ok := escape.Regions[s.Region]; !ok {
				return invalidf("unknown region %q", s.Region)
			}
		} else if s.windowSet() {
			p := escape.Plane{XMin: s.XMin, XMax: s.XMax, YMin: s.YMin, YMax: s.YMax}
			if !p.Valid() {
				return invalidf("degenerate window [%g,%g]x[%g,%g]", s.XMin, s.XMax, s.YMin, s.YMax)
			}
		}
	case FamilyMandelbulb, FamilyJulia3D:
		if s.Power < 2 || s.Power > 20 {
			return invalidf("power %g outside [2,20]", s.Power)
		}
		if s.Bailout <= 0 || s.Bailout > 16 {
			return invalidf("bailout %g outside (0,16]", s.Bailout)
		}
		if s.MaxIter < 1 || s.MaxIter > l.MaxIterations {
			return invalidf("maxIter %d outside [1,%d]", s.MaxIter, l.MaxIterations)
		}
		if err := s.validateCube(l); err != nil {
			return err
		}
	case FamilyMenger:
		if s.Depth < 0 || s.Depth > 8 {
			return invalidf("depth %d outside [0,8]", s.Depth)
		}
		if err := s.validateCube(l); err != nil {
			return err
		}
	case FamilyIFS:
		if len(s.Maps) == 0 {
			return invalidf("empty map set")
		}
		if len(s.Maps) > 64 {
			return invalidf("%d maps exceeds 64", len(s.Maps))
		}
		sum := 0.0
		for i, m := range s.Maps {
			if m.Weight < 0 {
				return invalidf("map %d has negative weight %g", i, m.Weight)
			}
			sum += m.Weight
		}
		if sum <= 0 {
			return invalidf("map weights sum to %g", sum)
		}
		if err := s.validateCount(l); err != nil {
			return err
		}
	case FamilyTargetGame:
		if _, ok := geom.Solid(geom.SolidName(s.Solid)); !ok {
			return invalidf("unknown solid %q", s.Solid)
		}
		if s.Lambda <= 0 || s.Lambda >= 1 {
			return invalidf("lambda %g outside (0,1)", s.Lambda)
		}
		if err := s.validateCount(l); err != nil {
			return err
		}
	case FamilySymmetryOrbit:
		if _, ok := geom.Solid(geom.SolidName(s.Solid)); !ok {
			return invalidf("unknown solid %q", s.Solid)
		}
		if s.Jitter < 0 || s.Jitter > 3.2 {
			return invalidf("jitter %g outside [0,3.2]", s.Jitter)
		}
		if err := s.validateCount(l); err != nil {
			return err
		}
	case FamilyLSystem:
		if s.Axiom == "" {
			return invalidf("empty axiom")
		}
		if s.Depth < 0 || s.Depth > l.MaxRewriteDepth {
			return invalidf("depth %d outside [0,%d]", s.Depth, l.MaxRewriteDepth)
		}
		if s.Step <= 0 {
			return invalidf("step %g must be positive", s.Step)
		}
		for key := range s.Rules {
			if len([]rune(key)) != 1 {
				return invalidf("rule key %q is not a single symbol", key)
			}
		}
		if err := s.validateGrid(l); err != nil {
			return err
		}
	case FamilyCurve:
		max, ok := curve.MaxOrder(curve.Family(s.Curve))
		if !ok {
			return invalidf("unknown curve %q", s.Curve)
		}
		if s.Order < 0 || s.Order > max {
			return invalidf("order %d outside [0,%d] for %s", s.Order, max, s.Curve)
		}
		if err := s.validateGrid(l); err != nil {
			return err
		}
	}
	return nil
}

func (s Spec) windowSet() bool {
	return s.XMin != 0 || s.XMax != 0 || s.YMin != 0 || s.YMax != 0
}

func (s Spec) validateGrid(l Limits) error {
	if s.Width < 1 || s.Width > l.MaxGridWidth {
		return invalidf("width %d outside [1,%d]", s.Width, l.MaxGridWidth)
	}
	if s.Height < 1 || s.Height > l.MaxGridHeight {
		return invalidf("height %d outside [1,%d]", s.Height, l.MaxGridHeight)
	}
	if s.MaxIter < 0 || s.MaxIter > l.MaxIterations {
		return invalidf("maxIter %d outside [0,%d]", s.MaxIter, l.MaxIterations)
	}
	return nil
}

func (s Spec) validateCube(l Limits) error {
	if s.Half <= 0 || s.Half > 4 {
		return invalidf("half %g outside (0,4]", s.Half)
	}
	if s.Samples < 1 || s.Samples > l.MaxPoints {
		return invalidf("samples %d outside [1,%d]", s.Samples, l.MaxPoints)
	}
	return nil
}

func (s Spec) validateCount(l Limits) error {
	if s.Count < 1 || s.Count > l.MaxPoints {
		return invalidf("count %d outside [1,%d]", s.Count, l.MaxPoints)
	}
	return nil
}
