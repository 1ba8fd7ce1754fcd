package server

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"orbitlab/server/catalog"
	"orbitlab/server/internal/journal"
	"orbitlab/server/internal/net/intake"
	"orbitlab/server/internal/net/proto"
	"orbitlab/server/internal/render"
	"orbitlab/server/internal/telemetry"
	"orbitlab/server/logging"
	"orbitlab/server/logging/lifecycle"
	"orbitlab/server/logging/network"
)

// HubConfig tunes hub construction. Zero values fall back to the defaults
// used by DefaultHubConfig.
type HubConfig struct {
	Seed            string
	Render          render.Config
	JournalCapacity int
	JournalMaxAge   time.Duration
	Catalog         *catalog.Resolver
	Logger          telemetry.Logger
	Metrics         telemetry.Metrics
}

// DefaultHubConfig returns the configuration used when no overrides are
// supplied. Journal bounds honor the environment overrides.
func DefaultHubConfig() HubConfig {
	capacity, maxAge := journalConfig()
	return HubConfig{
		Seed:            DefaultSeed,
		JournalCapacity: capacity,
		JournalMaxAge:   maxAge,
	}
}

// journalConfig resolves the frame journal bounds from the environment,
// falling back to the compiled defaults when unset or invalid.
func journalConfig() (int, time.Duration) {
	capacity := defaultJournalFrameCapacity
	if raw := os.Getenv(envJournalCapacity); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			capacity = parsed
		}
	}
	maxAge := defaultJournalFrameMaxAge
	if raw := os.Getenv(envJournalMaxAgeMS); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			maxAge = time.Duration(parsed) * time.Millisecond
		}
	}
	return capacity, maxAge
}

// Hub owns the viewer registry, their frame journals, and the render
// scheduler. All exported methods are safe for concurrent use.
type Hub struct {
	mu          sync.Mutex
	viewers     map[string]*viewerState
	subscribers map[string]*subscriber
	nextID      atomic.Uint64

	scheduler *render.Scheduler
	catalog   *catalog.Resolver
	telemetry *telemetryCounters
	publisher logging.Publisher
	clock     logging.Clock
	logger    telemetry.Logger

	seed       string
	journalCap int
	journalAge time.Duration
	started    time.Time
}

// viewerState tracks one joined viewer. The journal outlives the websocket
// connection so a reconnecting client can replay missed frames.
type viewerState struct {
	ID            string
	journal       *journal.Journal
	lastHeartbeat time.Time
	lastRTT       time.Duration
	lastAck       uint64
	detachedAt    time.Time
}

// subscriber wraps a websocket connection with a write lock so the frame
// sink and the read loop never interleave writes.
type subscriber struct {
	conn           *websocket.Conn
	mu             sync.Mutex
	lastCommandSeq atomic.Uint64
}

// WriteMessage sends one message, serializing writers and bounding each
// write with the shared deadline.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// LastCommandSeq returns the newest acknowledged command sequence.
func (s *subscriber) LastCommandSeq() uint64 {
	return s.lastCommandSeq.Load()
}

// StoreLastCommandSeq records the newest acknowledged command sequence.
func (s *subscriber) StoreLastCommandSeq(seq uint64) {
	s.lastCommandSeq.Store(seq)
}

func newHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig(), nil)
}

// NewHubWithConfig builds a hub from cfg, wiring structured events and
// metrics through router when one is supplied. A nil router leaves the hub
// fully functional with no-op instrumentation.
func NewHubWithConfig(cfg HubConfig, router *logging.Router) *Hub {
	if cfg.Seed == "" {
		cfg.Seed = DefaultSeed
	}
	publisher := logging.Publisher(logging.NopPublisher())
	clock := logging.Clock(logging.SystemClock{})
	if router != nil {
		publisher = router
		clock = router.Clock()
	}
	metrics := cfg.Metrics
	if metrics == nil && router != nil {
		metrics = telemetry.WrapMetrics(router.Metrics())
	}
	hub := &Hub{
		viewers:     make(map[string]*viewerState),
		subscribers: make(map[string]*subscriber),
		catalog:     cfg.Catalog,
		telemetry:   newTelemetryCounters(metrics),
		publisher:   publisher,
		clock:       clock,
		logger:      cfg.Logger,
		seed:        cfg.Seed,
		journalCap:  cfg.JournalCapacity,
		journalAge:  cfg.JournalMaxAge,
	}
	hub.started = clock.Now()
	hub.scheduler = render.NewScheduler(cfg.Render, render.Deps{
		Publisher: publisher,
		Metrics:   metrics,
		Clock:     clock,
	})
	return hub
}

func (h *Hub) now() time.Time {
	if h.clock != nil {
		return h.clock.Now()
	}
	return time.Now()
}

func (h *Hub) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Join allocates a viewer identity with a fresh frame journal and returns
// the payload advertised to the client.
func (h *Hub) Join() joinResponse {
	id := fmt.Sprintf("viewer-%d", h.nextID.Add(1))
	now := h.now()

	j := journal.New(h.journalCap, h.journalAge)
	j.AttachTelemetry(h.telemetry)
	state := &viewerState{
		ID:            id,
		journal:       &j,
		lastHeartbeat: now,
	}

	h.mu.Lock()
	h.viewers[id] = state
	h.mu.Unlock()

	lifecycle.ViewerJoined(context.Background(), h.publisher,
		logging.EntityRef{ID: id, Kind: logging.EntityKindViewer},
		lifecycle.ViewerJoinedPayload{Protocol: proto.Version},
		nil,
	)

	resp := joinResponse{
		Ver:             proto.Version,
		ID:              id,
		Families:        render.Families(),
		Limits:          h.scheduler.Limits(),
		HeartbeatMillis: heartbeatInterval.Milliseconds(),
	}
	if h.catalog != nil {
		resp.Presets = h.catalog.Summaries()
		resp.CatalogHash = h.catalog.Hash()
	}
	return resp
}

// Subscribe binds a websocket connection to a joined viewer. An existing
// connection for the same viewer is closed and replaced.
func (h *Hub) Subscribe(viewerID string, conn *websocket.Conn) (*subscriber, bool) {
	h.mu.Lock()
	state, ok := h.viewers[viewerID]
	if !ok {
		h.mu.Unlock()
		return nil, false
	}
	state.lastHeartbeat = h.now()
	state.detachedAt = time.Time{}
	previous := h.subscribers[viewerID]
	sub := &subscriber{conn: conn}
	h.subscribers[viewerID] = sub
	h.mu.Unlock()

	if previous != nil {
		previous.conn.Close()
	}
	return sub, true
}

// MarshalHello encodes the hello payload for a subscribed viewer. Resync is
// raised when the viewer's journal already holds frames, telling a
// reconnecting client that replay is worth attempting.
func (h *Hub) MarshalHello(viewerID string) ([]byte, error) {
	h.mu.Lock()
	state, ok := h.viewers[viewerID]
	h.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown viewer %s", viewerID)
	}
	_, size, _, _ := state.journal.Window()

	hello := proto.HelloV1{
		ID:              viewerID,
		Families:        render.Families(),
		Limits:          h.scheduler.Limits(),
		HeartbeatMillis: heartbeatInterval.Milliseconds(),
		Resync:          size > 0,
	}
	if h.catalog != nil {
		hello.Presets = h.catalog.Summaries()
		hello.CatalogHash = h.catalog.Hash()
	}
	return proto.EncodeHelloV1(hello)
}

// Detach drops the viewer's websocket subscription without forgetting the
// viewer. The registration is only removed when sub is still the active
// subscription, so a stale read loop cannot tear down a replacement. The
// journal is kept so a reconnect within the expiry window can replay
// missed frames.
func (h *Hub) Detach(viewerID string, sub *subscriber, reason string) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	current := h.subscribers[viewerID] == sub
	if current {
		delete(h.subscribers, viewerID)
		if state, ok := h.viewers[viewerID]; ok {
			state.detachedAt = h.now()
		}
	}
	h.mu.Unlock()

	sub.conn.Close()
	if !current {
		return
	}
	lifecycle.ViewerDisconnected(context.Background(), h.publisher,
		logging.EntityRef{ID: viewerID, Kind: logging.EntityKindViewer},
		lifecycle.ViewerDisconnectedPayload{Reason: reason},
		nil,
	)
}

// StageRender validates a render command and starts the job on success.
func (h *Hub) StageRender(viewerID string, msg proto.ClientMessage) (intake.Staged, bool, string) {
	return intake.StageRender(h.commandContext(), viewerID, msg)
}

// StagePreset resolves a preset command and starts the job on success.
func (h *Hub) StagePreset(viewerID string, msg proto.ClientMessage) (intake.Staged, bool, string) {
	return intake.StagePreset(h.commandContext(), viewerID, msg)
}

func (h *Hub) commandContext() intake.CommandContext {
	return intake.CommandContext{
		Catalog:   h.catalog,
		Limits:    h.scheduler.Limits(),
		HasViewer: h.hasViewer,
		Start:     h.startJob,
	}
}

func (h *Hub) hasViewer(viewerID string) bool {
	h.mu.Lock()
	_, ok := h.viewers[viewerID]
	h.mu.Unlock()
	return ok
}

// startJob launches spec for the viewer and resets their ack cursor so the
// new job's frames are never pruned by acks from the previous job.
func (h *Hub) startJob(viewerID string, spec render.Spec) (uint64, error) {
	job, err := h.scheduler.Start(viewerID, spec, h.jobRNG(spec), h.frameSink)
	if err != nil {
		return 0, err
	}
	h.mu.Lock()
	if state, ok := h.viewers[viewerID]; ok {
		state.lastAck = 0
	}
	h.mu.Unlock()
	return job.Info().ID, nil
}

// jobRNG derives the deterministic source for one job. A seed named by the
// spec overrides the hub seed, so the same spec replays the same stochastic
// output no matter which viewer submitted it.
func (h *Hub) jobRNG(spec render.Spec) *rand.Rand {
	seed := spec.Seed
	if seed == "" {
		seed = h.seed
	}
	return NewDeterministicRNG(seed, "render")
}

// CancelJob cancels the viewer's active job, reporting the cancelled job ID.
func (h *Hub) CancelJob(viewerID string) (uint64, bool) {
	if !h.hasViewer(viewerID) {
		return 0, false
	}
	return h.scheduler.Cancel(viewerID)
}

// UpdateHeartbeat records a heartbeat observation and returns the viewer's
// round-trip estimate. Client timestamps too far ahead of the server clock
// are ignored for RTT purposes.
func (h *Hub) UpdateHeartbeat(viewerID string, receivedAt time.Time, clientSent int64) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.viewers[viewerID]
	if !ok {
		return 0, false
	}
	state.lastHeartbeat = receivedAt
	if clientSent > 0 {
		clientTime := time.UnixMilli(clientSent)
		if clientTime.Before(receivedAt.Add(5 * time.Second)) {
			rtt := receivedAt.Sub(clientTime)
			if rtt < 0 {
				rtt = 0
			}
			state.lastRTT = rtt
		}
	}
	return state.lastRTT, true
}

// RecordAck advances the viewer's ack cursor and prunes journal frames the
// client has confirmed. Regressions are logged and otherwise ignored.
func (h *Hub) RecordAck(viewerID string, job, seq uint64) {
	h.mu.Lock()
	state, ok := h.viewers[viewerID]
	if !ok {
		h.mu.Unlock()
		return
	}
	previous := state.lastAck
	if seq > previous {
		state.lastAck = seq
	}
	h.mu.Unlock()

	ref := logging.EntityRef{ID: viewerID, Kind: logging.EntityKindViewer}
	if seq < previous {
		network.AckRegression(context.Background(), h.publisher, job, ref,
			network.AckPayload{Previous: previous, Ack: seq}, nil)
		return
	}
	if seq == previous {
		return
	}
	network.AckAdvanced(context.Background(), h.publisher, job, ref,
		network.AckPayload{Previous: previous, Ack: seq}, nil)

	if pruned := state.journal.PruneThrough(job, seq); pruned > 0 {
		_, size, oldest, newest := state.journal.Window()
		h.telemetry.RecordJournalWindow(size, oldest, newest)
	}
}

// HandleReplayRequest serves a replay of journaled frames starting at
// sequence from. On a miss it returns an encoded nack instead, flagging
// resync when the journal cannot bridge the gap.
func (h *Hub) HandleReplayRequest(viewerID string, job, from uint64) ([][]byte, []byte, bool) {
	h.mu.Lock()
	state, ok := h.viewers[viewerID]
	h.mu.Unlock()
	if !ok {
		return nil, nil, false
	}

	start := h.now()
	frames, miss := state.journal.ReplayFrom(job, from)
	elapsed := h.now().Sub(start)
	ref := logging.EntityRef{ID: viewerID, Kind: logging.EntityKindViewer}

	if miss != "" {
		h.telemetry.IncrementReplayNack(miss)
		h.telemetry.RecordReplayRequest(elapsed, false)
		resync := false
		if signal, crossed := state.journal.ConsumeResyncHint(); crossed {
			resync = true
			network.ResyncAdvised(context.Background(), h.publisher, job, ref,
				network.ResyncPayload{Reason: miss},
				map[string]any{"signal": signal.Summary()})
		}
		nack, err := proto.EncodeReplayNackV1(proto.ReplayNackV1{
			Job:    job,
			Reason: miss,
			Resync: resync,
		})
		if err != nil {
			h.logf("failed to encode replay nack for %s: %v", viewerID, err)
			return nil, nil, false
		}
		return nil, nack, true
	}

	payloads := make([][]byte, 0, len(frames))
	for _, frame := range frames {
		payloads = append(payloads, frame.Payload)
	}
	network.ReplayServed(context.Background(), h.publisher, job, ref,
		network.ReplayPayload{FromSeq: from, Frames: len(payloads)}, nil)
	h.telemetry.RecordReplayRequest(elapsed, true)
	return payloads, nil, true
}

// PresetSummaries lists the resolved preset catalog.
func (h *Hub) PresetSummaries() []catalog.Summary {
	return h.catalog.Summaries()
}

// CatalogHash returns the digest of the loaded preset sources.
func (h *Hub) CatalogHash() string {
	return h.catalog.Hash()
}

// ReloadCatalog re-parses the preset sources from disk. A load error leaves
// the previous catalog in place.
func (h *Hub) ReloadCatalog() error {
	return h.catalog.Reload()
}

// RecordTelemetryBroadcast feeds the broadcast counters from transports
// that write payloads outside the frame sink.
func (h *Hub) RecordTelemetryBroadcast(bytes, frames int) {
	h.telemetry.RecordBroadcast(bytes, frames)
}

// TelemetrySnapshot reports the hub's counters for diagnostics.
func (h *Hub) TelemetrySnapshot() telemetrySnapshot {
	return h.telemetry.Snapshot()
}

// Uptime reports how long the hub has been running.
func (h *Hub) Uptime() time.Duration {
	return h.now().Sub(h.started)
}

// DiagnosticsSnapshot summarizes every known viewer for the diagnostics
// endpoint.
func (h *Hub) DiagnosticsSnapshot() []diagnosticsViewer {
	h.mu.Lock()
	defer h.mu.Unlock()

	viewers := make([]diagnosticsViewer, 0, len(h.viewers))
	for id, state := range h.viewers {
		_, size, _, _ := state.journal.Window()
		entry := diagnosticsViewer{
			Ver:           proto.Version,
			ID:            id,
			Connected:     h.subscribers[id] != nil,
			LastHeartbeat: state.lastHeartbeat.UnixMilli(),
			RTTMillis:     state.lastRTT.Milliseconds(),
			LastAck:       state.lastAck,
			JournalFrames: size,
		}
		if info, ok := h.scheduler.Active(id); ok {
			entry.ActiveJob = info.ID
		}
		viewers = append(viewers, entry)
	}
	return viewers
}

// frameSink receives every frame the scheduler emits. Frames are journaled
// before delivery so a write failure never loses them, then pushed to the
// viewer's connection when one is attached.
func (h *Hub) frameSink(info render.JobInfo, seq uint64, frame render.Frame) {
	data, err := proto.EncodeFrame(info, seq, frame)
	if err != nil {
		h.logf("failed to encode frame %d for job %d: %v", seq, info.ID, err)
		return
	}

	h.mu.Lock()
	state, ok := h.viewers[info.Viewer]
	sub := h.subscribers[info.Viewer]
	h.mu.Unlock()
	if !ok {
		return
	}

	result := state.journal.Record(info.ID, seq, h.now(), data)
	h.telemetry.RecordJournalWindow(result.Size, result.OldestSeq, result.NewestSeq)

	if sub == nil {
		return
	}
	if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logf("failed to deliver frame %d to %s: %v", seq, info.Viewer, err)
		h.Detach(info.Viewer, sub, "write_failed")
		return
	}
	h.telemetry.RecordBroadcast(len(data), 1)
}

// Run drives the heartbeat sweep until stop closes, then shuts the
// scheduler down.
func (h *Hub) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			h.scheduler.Shutdown()
			return
		case now := <-ticker.C:
			h.sweep(now)
		}
	}
}

// sweep disconnects viewers whose heartbeats went silent and forgets
// viewers detached longer than the expiry window.
func (h *Hub) sweep(now time.Time) {
	type closing struct {
		id  string
		sub *subscriber
	}
	var timedOut []closing
	var expired []string

	h.mu.Lock()
	for id, sub := range h.subscribers {
		state, ok := h.viewers[id]
		if !ok {
			delete(h.subscribers, id)
			continue
		}
		if now.Sub(state.lastHeartbeat) > disconnectAfter {
			delete(h.subscribers, id)
			state.detachedAt = now
			timedOut = append(timedOut, closing{id: id, sub: sub})
		}
	}
	for id, state := range h.viewers {
		if h.subscribers[id] != nil {
			continue
		}
		anchor := state.detachedAt
		if anchor.IsZero() {
			anchor = state.lastHeartbeat
		}
		if now.Sub(anchor) > viewerExpiry {
			delete(h.viewers, id)
			expired = append(expired, id)
		}
	}
	h.mu.Unlock()

	for _, c := range timedOut {
		c.sub.conn.Close()
		h.logf("disconnecting %s due to heartbeat timeout", c.id)
		lifecycle.ViewerDisconnected(context.Background(), h.publisher,
			logging.EntityRef{ID: c.id, Kind: logging.EntityKindViewer},
			lifecycle.ViewerDisconnectedPayload{Reason: "heartbeat_timeout"},
			nil,
		)
	}
	for _, id := range expired {
		h.scheduler.Cancel(id)
		lifecycle.ViewerExpired(context.Background(), h.publisher,
			logging.EntityRef{ID: id, Kind: logging.EntityKindViewer},
			nil,
		)
	}
}
