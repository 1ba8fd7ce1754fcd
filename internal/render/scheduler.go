package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"seehuhn.de/go/geom/vec"

	"orbitlab/server/engine/chaos"
	"orbitlab/server/engine/curve"
	"orbitlab/server/engine/escape"
	"orbitlab/server/engine/geom"
	"orbitlab/server/engine/lsystem"
	"orbitlab/server/logging"
	"orbitlab/server/logging/jobs"
	"orbitlab/server/internal/telemetry"
)

// Config tunes job execution.
type Config struct {
	// Workers bounds the row-band pool of one grid job.
	Workers int
	// BandRows is the height of one grid chunk.
	BandRows int
	// BatchPoints is the item budget of one point or segment batch.
	BatchPoints int
	Limits      Limits
}

// Normalized fills zero fields with defaults.
func (c Config) Normalized() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BandRows <= 0 {
		c.BandRows = 16
	}
	if c.BatchPoints <= 0 {
		c.BatchPoints = 4096
	}
	c.Limits = c.Limits.Normalized()
	return c
}

// Deps bundles the scheduler's collaborators. Zero values are tolerated.
type Deps struct {
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Clock     logging.Clock
}

// JobInfo identifies a job in frames, logs, and diagnostics.
type JobInfo struct {
	ID     uint64
	Viewer string
	Family string
}

// FrameSink receives every frame a job emits. Seq is monotonic per job
// starting at 1; calls for one job never overlap.
type FrameSink func(info JobInfo, seq uint64, frame Frame)

// Job is one running generation. Frames flow to the sink until Done or
// Failure closes the stream.
type Job struct {
	info    JobInfo
	spec    Spec
	rng     *rand.Rand
	ctx     context.Context
	cancel  context.CancelFunc
	sink    FrameSink
	seq     uint64
	started time.Time
	done    chan struct{}
}

// Info returns the job identity.
func (j *Job) Info() JobInfo {
	if j == nil {
		return JobInfo{}
	}
	return j.info
}

// Spec returns the normalized spec the job runs with.
func (j *Job) Spec() Spec {
	if j == nil {
		return Spec{}
	}
	return j.spec.Clone()
}

// Done closes once the job stream has ended for any reason.
func (j *Job) Done() <-chan struct{} {
	if j == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return j.done
}

// emit is called with the job's frame ordering already serialized by the
// single run goroutine (grid workers hand off under a mutex).
func (j *Job) emit(frame Frame) {
	if j.sink == nil {
		return
	}
	j.seq++
	j.sink(j.info, j.seq, frame)
}

// Scheduler runs at most one job per viewer and a bounded number overall.
// Starting a new job for a viewer cancels the running one.
type Scheduler struct {
	cfg  Config
	deps Deps

	mu      sync.Mutex
	active  map[string]*Job
	running int
	nextID  atomic.Uint64
}

// NewScheduler builds a scheduler from the normalized config.
func NewScheduler(cfg Config, deps Deps) *Scheduler {
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Clock == nil {
		deps.Clock = logging.SystemClock{}
	}
	return &Scheduler{
		cfg:    cfg.Normalized(),
		deps:   deps,
		active: make(map[string]*Job),
	}
}

// Limits returns the validated job limits.
func (s *Scheduler) Limits() Limits {
	if s == nil {
		return Limits{}.Normalized()
	}
	return s.cfg.Limits
}

// Deps exposes the resolved dependencies so callers can verify wiring.
func (s *Scheduler) Deps() Deps {
	if s == nil {
		return Deps{}
	}
	return s.deps
}

// Start launches spec for the viewer, replacing any running job. The spec
// must already be normalized and validated.
func (s *Scheduler) Start(viewer string, spec Spec, rng *rand.Rand, sink FrameSink) (*Job, error) {
	if s == nil {
		return nil, ErrQueueFull
	}
	s.mu.Lock()
	if prev, ok := s.active[viewer]; ok {
		prev.cancel()
		delete(s.active, viewer)
	} else if s.running >= s.cfg.Limits.MaxJobs {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d jobs running", ErrQueueFull, s.running)
	}
	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		info:    JobInfo{ID: s.nextID.Add(1), Viewer: viewer, Family: spec.Family},
		spec:    spec,
		rng:     rng,
		ctx:     ctx,
		cancel:  cancel,
		sink:    sink,
		started: s.deps.Clock.Now(),
		done:    make(chan struct{}),
	}
	s.active[viewer] = job
	s.running++
	s.mu.Unlock()

	go s.run(job)
	return job, nil
}

// Cancel stops the viewer's running job if there is one.
func (s *Scheduler) Cancel(viewer string) (uint64, bool) {
	if s == nil {
		return 0, false
	}
	s.mu.Lock()
	job, ok := s.active[viewer]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	job.cancel()
	return job.info.ID, true
}

// Active returns the viewer's running job identity.
func (s *Scheduler) Active(viewer string) (JobInfo, bool) {
	if s == nil {
		return JobInfo{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.active[viewer]
	if !ok {
		return JobInfo{}, false
	}
	return job.info, true
}

// ActiveCount reports how many jobs are running.
func (s *Scheduler) ActiveCount() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Shutdown cancels every running job.
func (s *Scheduler) Shutdown() {
	if s == nil {
		return
	}
	s.mu.Lock()
	for _, job := range s.active {
		job.cancel()
	}
	s.mu.Unlock()
}

func (s *Scheduler) release(j *Job) {
	s.mu.Lock()
	if cur, ok := s.active[j.info.Viewer]; ok && cur == j {
		delete(s.active, j.info.Viewer)
	}
	s.running--
	s.mu.Unlock()
	j.cancel()
}

func (s *Scheduler) run(j *Job) {
	defer close(j.done)
	defer s.release(j)

	actor := logging.EntityRef{ID: j.info.Viewer, Kind: logging.EntityKindViewer}
	jobs.Started(context.Background(), s.deps.Publisher, j.info.ID, actor, jobs.StartedPayload{
		Family: j.info.Family,
		Width:  j.spec.Width,
		Height: j.spec.Height,
	}, nil)
	s.metricAdd("render_jobs_started", 1)

	j.emit(Accepted{Spec: j.spec})

	var err error
	switch j.spec.Family {
	case FamilyMandelbrot, FamilyJulia, FamilyNewton:
		err = s.runGrid(j)
	case FamilyMandelbulb, FamilyJulia3D, FamilyMenger:
		err = s.runCloud(j)
	case FamilyIFS:
		err = s.runIFS(j)
	case FamilyTargetGame:
		err = s.runTargetGame(j)
	case FamilySymmetryOrbit:
		err = s.runOrbit(j)
	case FamilyLSystem:
		err = s.runLSystem(j)
	case FamilyCurve:
		err = s.runCurve(j)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFamily, j.spec.Family)
	}

	if err != nil {
		reason := failureReason(err)
		j.emit(Failure{Reason: reason})
		if reason == "cancelled" {
			jobs.Cancelled(context.Background(), s.deps.Publisher, j.info.ID, actor, nil)
			s.metricAdd("render_jobs_cancelled", 1)
		} else {
			jobs.Failed(context.Background(), s.deps.Publisher, j.info.ID, actor, jobs.FailedPayload{Reason: reason}, nil)
			s.metricAdd("render_jobs_failed", 1)
		}
		return
	}
	jobs.Completed(context.Background(), s.deps.Publisher, j.info.ID, actor, jobs.CompletedPayload{
		ElapsedMillis: s.deps.Clock.Now().Sub(j.started).Milliseconds(),
	}, nil)
	s.metricAdd("render_jobs_completed", 1)
}

func (s *Scheduler) metricAdd(key string, delta uint64) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.Add(key, delta)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrSymbolBudget):
		return "symbol_budget"
	case errors.Is(err, ErrInvalidParams), errors.Is(err, ErrUnknownFamily):
		return RejectInvalidParams
	default:
		return "internal"
	}
}

// planeFor resolves the domain window of an escape-time job: a named
// region wins, then an explicit window, then the family default.
func planeFor(s Spec) escape.Plane {
	if s.Region != "" {
		if p, ok := escape.Regions[s.Region]; ok {
			return p
		}
	}
	if s.windowSet() {
		return escape.Plane{XMin: s.XMin, XMax: s.XMax, YMin: s.YMin, YMax: s.YMax}
	}
	switch s.Family {
	case FamilyJulia:
		return escape.Plane{XMin: -1.6, XMax: 1.6, YMin: -1.2, YMax: 1.2}
	case FamilyNewton:
		return escape.Plane{XMin: -2, XMax: 2, YMin: -2, YMax: 2}
	default:
		return escape.FullSet
	}
}

func (s *Scheduler) runGrid(j *Job) error {
	spec := j.spec
	family := escape.Family(spec.Family)
	es := escape.Spec{
		Family:  family,
		C:       complex(spec.CRe, spec.CIm),
		K:       complex(spec.KRe, spec.KIm),
		MaxIter: spec.MaxIter,
	}.Normalized()
	if err := es.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	m, err := planeFor(spec).Mapper(spec.Width, spec.Height)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	field, err := escape.NewField(spec.Width, spec.Height, family)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	bands := make([][2]int, 0, (spec.Height+s.cfg.BandRows-1)/s.cfg.BandRows)
	for y0 := 0; y0 < spec.Height; y0 += s.cfg.BandRows {
		y1 := y0 + s.cfg.BandRows
		if y1 > spec.Height {
			y1 = spec.Height
		}
		bands = append(bands, [2]int{y0, y1})
	}

	workers := s.cfg.Workers
	if workers > len(bands) {
		workers = len(bands)
	}

	var (
		wg       sync.WaitGroup
		cursor   atomic.Int64
		mu       sync.Mutex
		firstErr error
		doneRows int
		chunks   int
	)
	total := spec.Width * spec.Height
	newton := family == escape.FamilyNewton

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(cursor.Add(1)) - 1
				if i >= len(bands) {
					return
				}
				band := bands[i]
				if err := escape.RenderRows(j.ctx, field, m, es, band[0], band[1]); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
				mu.Lock()
				doneRows += band[1] - band[0]
				if !newton {
					j.emit(GridChunk{
						Index: chunks,
						Y0:    band[0],
						Y1:    band[1],
						Width: spec.Width,
						Iters: copyRows(field.Iters, spec.Width, band[0], band[1]),
						Last:  doneRows == spec.Height,
					})
					chunks++
				}
				j.emit(Progress{Done: doneRows * spec.Width, Total: total})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if firstErr != nil {
		return firstErr
	}

	done := Done{Cells: total}
	if newton {
		// Root indices must not depend on band completion order, so
		// classification is a second, strictly row-major pass.
		reg := escape.NewRootRegistry(0)
		escape.ClassifyRoots(field, reg)
		for i, band := range bands {
			if err := j.ctx.Err(); err != nil {
				return err
			}
			j.emit(GridChunk{
				Index: i,
				Y0:    band[0],
				Y1:    band[1],
				Width: spec.Width,
				Iters: copyRows(field.Iters, spec.Width, band[0], band[1]),
				Roots: copyRows(field.Roots, spec.Width, band[0], band[1]),
				Last:  i == len(bands)-1,
			})
		}
		for _, root := range reg.Roots() {
			done.Roots = append(done.Roots, [2]float64{real(root), imag(root)})
		}
	}
	done.Elapsed = s.deps.Clock.Now().Sub(j.started)
	s.metricAdd("render_cells", uint64(total))
	j.emit(done)
	return nil
}

func copyRows(src []int32, width, y0, y1 int) []int32 {
	return append([]int32(nil), src[y0*width:y1*width]...)
}

// cloudSlice bounds how many candidate samples are drawn between
// cancellation checks. Chunking does not change the output: every
// candidate consumes the same random draws regardless of slicing.
const cloudSlice = 8192

func (s *Scheduler) runCloud(j *Job) error {
	spec := j.spec
	var keep func(geom.Vec3) bool
	switch spec.Family {
	case FamilyMandelbulb:
		bs := escape.BulbSpec{Power: spec.Power, Bailout: spec.Bailout, MaxIter: spec.MaxIter}.Normalized()
		keep = func(p geom.Vec3) bool { return escape.BulbRetained(p, bs) }
	case FamilyJulia3D:
		bs := escape.BulbSpec{
			Power:   spec.Power,
			Bailout: spec.Bailout,
			MaxIter: spec.MaxIter,
			C:       geom.Vec3{X: spec.CX, Y: spec.CY, Z: spec.CZ},
			Julia:   true,
		}.Normalized()
		keep = func(p geom.Vec3) bool { return escape.BulbRetained(p, bs) }
	case FamilyMenger:
		keep = func(p geom.Vec3) bool { return escape.MengerRetained(p, spec.Half, spec.Depth) }
	}

	batcher := newBatcher(j, 3, s.cfg.BatchPoints)
	for done := 0; done < spec.Samples; {
		if err := j.ctx.Err(); err != nil {
			return err
		}
		n := cloudSlice
		if spec.Samples-done < n {
			n = spec.Samples - done
		}
		for _, p := range escape.Cloud(j.rng, n, spec.Half, keep) {
			batcher.push(p.X, p.Y, p.Z)
		}
		done += n
		j.emit(Progress{Done: done, Total: spec.Samples})
	}
	retained := batcher.finish()
	s.metricAdd("render_points", uint64(retained))
	j.emit(Done{Points: retained, Elapsed: s.deps.Clock.Now().Sub(j.started)})
	return nil
}

func (s *Scheduler) runIFS(j *Job) error {
	spec := j.spec
	maps := make([]chaos.AffineMap, len(spec.Maps))
	for i, m := range spec.Maps {
		maps[i] = chaos.NewAffineMap(m.A, m.B, m.C, m.D, m.E, m.F, m.Weight)
	}
	pts, err := chaos.IFS(j.rng, maps, spec.Count, vec.Vec2{})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return s.streamVec2(j, pts)
}

func (s *Scheduler) runTargetGame(j *Job) error {
	spec := j.spec
	solid, ok := geom.Solid(geom.SolidName(spec.Solid))
	if !ok {
		return fmt.Errorf("%w: unknown solid %q", ErrInvalidParams, spec.Solid)
	}
	opts := chaos.GameOptions{
		Lambda:         spec.Lambda,
		NoRepeat:       spec.NoRepeat,
		NoOppositeFace: spec.NoOppositeFace,
	}
	pts, _, err := chaos.TargetGame(j.rng, solid.Vertices, spec.Count, geom.Vec3{}, opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return s.streamVec3(j, pts)
}

func (s *Scheduler) runOrbit(j *Job) error {
	spec := j.spec
	solid, ok := geom.Solid(geom.SolidName(spec.Solid))
	if !ok {
		return fmt.Errorf("%w: unknown solid %q", ErrInvalidParams, spec.Solid)
	}
	orbit := chaos.OrbitSpec{
		Axes:   chaos.AxesForSolid(solid),
		Angles: geom.SymmetryAngles(geom.SolidName(spec.Solid)),
		Jitter: spec.Jitter,
	}
	pts := chaos.SymmetryOrbit(j.rng, orbit, spec.Count, geom.Vec3{})
	return s.streamVec3(j, pts)
}

func (s *Scheduler) runLSystem(j *Job) error {
	spec := j.spec
	rules := make(map[rune]string, len(spec.Rules))
	for key, repl := range spec.Rules {
		rules[[]rune(key)[0]] = repl
	}

	seq := spec.Axiom
	for round := 0; round < spec.Depth; round++ {
		if err := j.ctx.Err(); err != nil {
			return err
		}
		seq = lsystem.Rewrite(seq, rules, 1)
		if len(seq) > s.cfg.Limits.MaxSymbols {
			return fmt.Errorf("%w: %d symbols after round %d", ErrSymbolBudget, len(seq), round+1)
		}
	}

	turtle := lsystem.Turtle{Angle: spec.Angle * math.Pi / 180, Step: spec.Step}
	// The bounds pass and the draw pass share one walk, so the fit
	// transform below is exact for the segments that follow.
	bounds, err := lsystem.BoundsOf(seq, turtle)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	segs, err := lsystem.Interpret(seq, turtle)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	fit := bounds.FitTransform(float64(spec.Width), float64(spec.Height))

	batch := make([]float64, 0, 4*s.cfg.BatchPoints)
	index := 0
	emitted := 0
	for i, seg := range segs {
		mapped := seg.Transform(fit)
		batch = append(batch, mapped.From.X, mapped.From.Y, mapped.To.X, mapped.To.Y)
		if len(batch) == cap(batch) || i == len(segs)-1 {
			if err := j.ctx.Err(); err != nil {
				return err
			}
			j.emit(SegmentBatch{
				Index:    index,
				Segments: append([]float64(nil), batch...),
				Last:     i == len(segs)-1,
			})
			index++
			emitted += len(batch) / 4
			j.emit(Progress{Done: emitted, Total: len(segs)})
			batch = batch[:0]
		}
	}
	if len(segs) == 0 {
		j.emit(SegmentBatch{Index: 0, Last: true})
	}
	s.metricAdd("render_segments", uint64(len(segs)))
	j.emit(Done{Segments: len(segs), Elapsed: s.deps.Clock.Now().Sub(j.started)})
	return nil
}

func (s *Scheduler) runCurve(j *Job) error {
	spec := j.spec
	pts, err := curve.Trace(curve.Family(spec.Curve), spec.Order, float64(spec.Width), float64(spec.Height))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return s.streamVec2(j, pts)
}

func (s *Scheduler) streamVec2(j *Job, pts []vec.Vec2) error {
	batcher := newBatcher(j, 2, s.cfg.BatchPoints)
	for i, p := range pts {
		if batcher.push(p.X, p.Y) {
			if err := j.ctx.Err(); err != nil {
				return err
			}
			j.emit(Progress{Done: i + 1, Total: len(pts)})
		}
	}
	n := batcher.finish()
	j.emit(Progress{Done: n, Total: len(pts)})
	s.metricAdd("render_points", uint64(n))
	j.emit(Done{Points: n, Elapsed: s.deps.Clock.Now().Sub(j.started)})
	return nil
}

func (s *Scheduler) streamVec3(j *Job, pts []geom.Vec3) error {
	batcher := newBatcher(j, 3, s.cfg.BatchPoints)
	for i, p := range pts {
		if batcher.push(p.X, p.Y, p.Z) {
			if err := j.ctx.Err(); err != nil {
				return err
			}
			j.emit(Progress{Done: i + 1, Total: len(pts)})
		}
	}
	n := batcher.finish()
	j.emit(Progress{Done: n, Total: len(pts)})
	s.metricAdd("render_points", uint64(n))
	j.emit(Done{Points: n, Elapsed: s.deps.Clock.Now().Sub(j.started)})
	return nil
}

// batcher accumulates flat coordinates and emits PointBatch frames of a
// fixed item budget.
type batcher struct {
	job     *Job
	dim     int
	budget  int
	pending []float64
	index   int
	total   int
	closed  bool
}

func newBatcher(job *Job, dim, budget int) *batcher {
	return &batcher{job: job, dim: dim, budget: budget, pending: make([]float64, 0, dim*budget)}
}

// push appends one item and reports whether it completed a batch.
func (b *batcher) push(coords ...float64) bool {
	b.pending = append(b.pending, coords...)
	b.total++
	if len(b.pending) == cap(b.pending) {
		b.flush(false)
		return true
	}
	return false
}

func (b *batcher) flush(last bool) {
	if len(b.pending) == 0 && !last {
		return
	}
	b.job.emit(PointBatch{
		Index:  b.index,
		Dim:    b.dim,
		Points: append([]float64(nil), b.pending...),
		Last:   last,
	})
	b.index++
	b.pending = b.pending[:0]
	if last {
		b.closed = true
	}
}

// finish flushes any remainder, marking it as the final batch, and
// returns the total item count.
func (b *batcher) finish() int {
	if !b.closed {
		b.flush(true)
	}
	return b.total
}
