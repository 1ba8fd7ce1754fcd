package journal

import (
	"sync"
	"time"
)

// Telemetry captures the metrics adapter used by the journal to report drops.
type Telemetry interface {
	RecordJournalDrop(metric string)
}

// Frame is one recorded wire payload of a render job stream. Payload is the
// already encoded message, stored so replay resends bytes identical to the
// original broadcast.
type Frame struct {
	Job        uint64
	Seq        uint64
	Payload    []byte
	RecordedAt time.Time
}

// Eviction describes a frame removed by retention.
type Eviction struct {
	Job    uint64
	Seq    uint64
	Reason string
}

// RecordResult reports the retention window after a Record call.
type RecordResult struct {
	Size      int
	OldestSeq uint64
	NewestSeq uint64
	Evicted   []Eviction
	Dropped   string
}

// Journal keeps a rolling buffer of the frames streamed to one viewer so a
// reconnecting client can be caught up without re-running the job. Only the
// most recent job is retained; starting a new job evicts the previous stream.
type Journal struct {
	mu        sync.RWMutex
	frames    []Frame
	job       uint64
	maxFrames int
	maxAge    time.Duration
	telemetry Telemetry
	resync    *Policy
}

// New constructs a journal with storage for the configured number of frames
// and retention window.
func New(frameCapacity int, maxAge time.Duration) Journal {
	if frameCapacity < 0 {
		frameCapacity = 0
	}
	if maxAge < 0 {
		maxAge = 0
	}
	return Journal{
		frames:    make([]Frame, 0, frameCapacity),
		maxFrames: frameCapacity,
		maxAge:    maxAge,
		resync:    NewPolicy(),
	}
}

const (
	metricJournalNonMonotonicSeq = "journal_nonmonotonic_seq"

	// Replay miss kinds reported to the resync policy.
	ReplayMissUnknownJob = "unknown_job"
	ReplayMissEvicted    = "evicted"
)

// Record stores one frame payload. Frames for a new job reset the buffer;
// frames whose sequence does not advance the stream are dropped.
func (j *Journal) Record(job, seq uint64, now time.Time, payload []byte) RecordResult {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.resync != nil {
		j.resync.NoteEvent()
	}

	if j.maxFrames == 0 {
		j.frames = j.frames[:0]
		j.job = job
		return RecordResult{}
	}

	evicted := make([]Eviction, 0)
	if job != j.job {
		for _, frame := range j.frames {
			evicted = append(evicted, Eviction{Job: frame.Job, Seq: frame.Seq, Reason: "superseded"})
		}
		j.frames = j.frames[:0]
		j.job = job
	}

	if n := len(j.frames); n > 0 && seq <= j.frames[n-1].Seq {
		j.recordJournalDropLocked(metricJournalNonMonotonicSeq)
		return j.windowLocked(RecordResult{Evicted: evicted, Dropped: metricJournalNonMonotonicSeq})
	}

	stored := Frame{
		Job:        job,
		Seq:        seq,
		Payload:    append([]byte(nil), payload...),
		RecordedAt: now,
	}
	j.frames = append(j.frames, stored)

	if j.maxAge > 0 {
		cutoff := now.Add(-j.maxAge)
		idx := 0
		for idx < len(j.frames) {
			if !j.frames[idx].RecordedAt.Before(cutoff) {
				break
			}
			evicted = append(evicted, Eviction{
				Job:    j.frames[idx].Job,
				Seq:    j.frames[idx].Seq,
				Reason: "expired",
			})
			idx++
		}
		if idx > 0 {
			copy(j.frames, j.frames[idx:])
			j.frames = j.frames[:len(j.frames)-idx]
		}
	}

	if len(j.frames) > j.maxFrames {
		overflow := len(j.frames) - j.maxFrames
		for i := 0; i < overflow; i++ {
			evicted = append(evicted, Eviction{
				Job:    j.frames[i].Job,
				Seq:    j.frames[i].Seq,
				Reason: "count",
			})
		}
		copy(j.frames, j.frames[overflow:])
		j.frames = j.frames[:len(j.frames)-overflow]
	}

	return j.windowLocked(RecordResult{Evicted: evicted})
}

func (j *Journal) windowLocked(result RecordResult) RecordResult {
	size := len(j.frames)
	result.Size = size
	if size > 0 {
		result.OldestSeq = j.frames[0].Seq
		result.NewestSeq = j.frames[size-1].Seq
	}
	return result
}

// ReplayFrom returns copies of the retained frames of job with sequence at or
// above from, or a miss kind naming why the request cannot be served. Misses
// feed the resync policy.
func (j *Journal) ReplayFrom(job, from uint64) ([]Frame, string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if job != j.job || len(j.frames) == 0 {
		if j.resync != nil {
			j.resync.NoteLostFrame(ReplayMissUnknownJob, job)
		}
		return nil, ReplayMissUnknownJob
	}
	if from < j.frames[0].Seq {
		if j.resync != nil {
			j.resync.NoteLostFrame(ReplayMissEvicted, job)
		}
		return nil, ReplayMissEvicted
	}
	out := make([]Frame, 0, len(j.frames))
	for _, frame := range j.frames {
		if frame.Seq < from {
			continue
		}
		cloned := frame
		cloned.Payload = append([]byte(nil), frame.Payload...)
		out = append(out, cloned)
	}
	return out, ""
}

// PruneThrough drops frames of job with sequence at or below seq. Called when
// a viewer acknowledges delivery so the buffer only holds unconfirmed frames.
func (j *Journal) PruneThrough(job, seq uint64) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	if job != j.job || len(j.frames) == 0 {
		return 0
	}
	idx := 0
	for idx < len(j.frames) && j.frames[idx].Seq <= seq {
		idx++
	}
	if idx == 0 {
		return 0
	}
	copy(j.frames, j.frames[idx:])
	j.frames = j.frames[:len(j.frames)-idx]
	return idx
}

// Window reports the current retention window.
func (j *Journal) Window() (job uint64, size int, oldest, newest uint64) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	job = j.job
	size = len(j.frames)
	if size == 0 {
		return job, size, 0, 0
	}
	oldest = j.frames[0].Seq
	newest = j.frames[size-1].Seq
	return job, size, oldest, newest
}

// ConsumeResyncHint reports whether replay misses crossed the threshold that
// should push the viewer toward restarting its render instead of replaying.
// Counters reset after each consumption.
func (j *Journal) ConsumeResyncHint() (ResyncSignal, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.resync == nil {
		return ResyncSignal{}, false
	}
	return j.resync.Consume()
}

func (j *Journal) recordJournalDropLocked(metric string) {
	if j.telemetry == nil || metric == "" {
		return
	}
	j.telemetry.RecordJournalDrop(metric)
}

func (j *Journal) AttachTelemetry(t Telemetry) {
	j.mu.Lock()
	j.telemetry = t
	j.mu.Unlock()
}
