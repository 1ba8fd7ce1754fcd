package render

import "time"

// Frame is one unit of job output delivered through the frame sink. Each
// concrete frame maps to a wire message type.
type Frame interface {
	frame()
}

// GridChunk carries the iteration counts of one contiguous row band of an
// escape-time field. Bands of non-Newton grids stream as workers finish, so
// consecutive chunks are not guaranteed to be adjacent; the client assembles
// by Y0.
type GridChunk struct {
	Index int
	Y0    int
	Y1    int
	Width int
	Iters []int32
	Roots []int32
	Last  bool
}

// PointBatch carries a fixed-size slice of a point sequence, flattened as
// Dim coordinates per point.
type PointBatch struct {
	Index  int
	Dim    int
	Points []float64
	Last   bool
}

// SegmentBatch carries turtle segments flattened as x1 y1 x2 y2 quads.
type SegmentBatch struct {
	Index    int
	Segments []float64
	Last     bool
}

// Progress reports completed output cells or points against the job total.
type Progress struct {
	Done  int
	Total int
}

// Accepted echoes the normalized spec as the first frame of a job.
type Accepted struct {
	Spec Spec
}

// Done closes a job stream with its summary. Roots lists the Newton root
// registry in discovery order; it is nil for every other family.
type Done struct {
	Cells    int
	Points   int
	Segments int
	Roots    [][2]float64
	Elapsed  time.Duration
}

// Failure closes a job stream that did not complete. Reason uses the same
// vocabulary as command rejects plus "cancelled" and "internal".
type Failure struct {
	Reason string
}

func (GridChunk) frame()    {}
func (PointBatch) frame()   {}
func (SegmentBatch) frame() {}
func (Progress) frame()     {}
func (Accepted) frame()     {}
func (Done) frame()         {}
func (Failure) frame()      {}
