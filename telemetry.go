package server

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"orbitlab/server/internal/journal"
	"orbitlab/server/internal/telemetry"
)

const (
	metricKeyBroadcastTotal = "network_broadcast_frames_total"
	metricKeyBroadcastBytes = "network_broadcast_bytes_total"
	metricKeyReplayRequests = "network_replay_requests_total"
	metricKeyReplayNacks    = "network_replay_nacks_total"
	metricKeyJournalFrames  = "journal_frames"
)

type telemetryCounters struct {
	bytesSent                  atomic.Uint64
	framesSent                 atomic.Uint64
	lastBroadcastBytes         atomic.Uint64
	lastBroadcastFrames        atomic.Uint64
	debug                      bool
	journalFrames              atomic.Uint64
	journalOldestSequence      atomic.Uint64
	journalNewestSequence      atomic.Uint64
	journalDrops               atomic.Uint64
	replayRequests             atomic.Uint64
	replayNacksUnknownJob      atomic.Uint64
	replayNacksEvicted         atomic.Uint64
	replayRequestLatencyMillis atomic.Uint64
	metrics                    telemetry.Metrics
}

type telemetrySnapshot struct {
	BytesSent              uint64 `json:"bytesSent"`
	FramesSent             uint64 `json:"framesSent"`
	JournalFrames          uint64 `json:"journalFrames"`
	JournalOldestSequence  uint64 `json:"journalOldestSequence"`
	JournalNewestSequence  uint64 `json:"journalNewestSequence"`
	JournalDrops           uint64 `json:"journalDrops"`
	ReplayRequests         uint64 `json:"replayRequests"`
	ReplayNacksUnknownJob  uint64 `json:"replayNacksUnknownJob"`
	ReplayNacksEvicted     uint64 `json:"replayNacksEvicted"`
	ReplayRequestLatencyMs uint64 `json:"replayRequestLatencyMs"`
}

func newTelemetryCounters(metrics telemetry.Metrics) *telemetryCounters {
	t := &telemetryCounters{metrics: metrics}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		t.debug = true
	}
	return t
}

func (t *telemetryCounters) RecordBroadcast(bytes, frames int) {
	if bytes < 0 {
		bytes = 0
	}
	if frames < 0 {
		frames = 0
	}
	t.bytesSent.Add(uint64(bytes))
	t.framesSent.Add(uint64(frames))
	t.lastBroadcastBytes.Store(uint64(bytes))
	t.lastBroadcastFrames.Store(uint64(frames))
	t.metricAdd(metricKeyBroadcastTotal, 1)
	t.metricAdd(metricKeyBroadcastBytes, uint64(bytes))
	if t.debug {
		fmt.Printf(
			"[telemetry] bytes=%d totalBytes=%d frames=%d totalFrames=%d\n",
			bytes,
			t.bytesSent.Load(),
			frames,
			t.framesSent.Load(),
		)
	}
}

func (t *telemetryCounters) RecordJournalWindow(size int, oldest, newest uint64) {
	if size < 0 {
		size = 0
	}
	t.journalFrames.Store(uint64(size))
	t.journalOldestSequence.Store(oldest)
	t.journalNewestSequence.Store(newest)
	t.metricStore(metricKeyJournalFrames, uint64(size))
}

func (t *telemetryCounters) RecordReplayRequest(latency time.Duration, success bool) {
	t.replayRequests.Add(1)
	t.metricAdd(metricKeyReplayRequests, 1)
	if success {
		millis := latency.Milliseconds()
		if millis < 0 {
			millis = 0
		}
		t.replayRequestLatencyMillis.Store(uint64(millis))
	}
}

func (t *telemetryCounters) IncrementReplayNack(kind string) {
	switch kind {
	case journal.ReplayMissUnknownJob:
		t.replayNacksUnknownJob.Add(1)
	case journal.ReplayMissEvicted:
		t.replayNacksEvicted.Add(1)
	}
	t.metricAdd(metricKeyReplayNacks, 1)
}

// RecordJournalDrop satisfies journal.Telemetry so per-viewer journals can
// report discarded frames through the shared counters.
func (t *telemetryCounters) RecordJournalDrop(metric string) {
	t.journalDrops.Add(1)
	t.metricAdd(metric, 1)
}

func (t *telemetryCounters) DebugEnabled() bool {
	return t.debug
}

func (t *telemetryCounters) metricAdd(key string, delta uint64) {
	if t.metrics != nil {
		t.metrics.Add(key, delta)
	}
}

func (t *telemetryCounters) metricStore(key string, value uint64) {
	if t.metrics != nil {
		t.metrics.Store(key, value)
	}
}

func (t *telemetryCounters) Snapshot() telemetrySnapshot {
	return telemetrySnapshot{
		BytesSent:              t.bytesSent.Load(),
		FramesSent:             t.framesSent.Load(),
		JournalFrames:          t.journalFrames.Load(),
		JournalOldestSequence:  t.journalOldestSequence.Load(),
		JournalNewestSequence:  t.journalNewestSequence.Load(),
		JournalDrops:           t.journalDrops.Load(),
		ReplayRequests:         t.replayRequests.Load(),
		ReplayNacksUnknownJob:  t.replayNacksUnknownJob.Load(),
		ReplayNacksEvicted:     t.replayNacksEvicted.Load(),
		ReplayRequestLatencyMs: t.replayRequestLatencyMillis.Load(),
	}
}
