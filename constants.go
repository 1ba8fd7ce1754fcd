package server

import "time"

const (
	writeWait         = 10 * time.Second
	heartbeatInterval = 2 * time.Second
	disconnectAfter   = 3 * heartbeatInterval
	viewerExpiry      = 2 * time.Minute

	// DefaultSeed feeds the deterministic RNG when neither the hub config
	// nor the incoming spec names one.
	DefaultSeed = "orbitlab"
)

const (
	defaultJournalFrameCapacity = 256
	defaultJournalFrameMaxAge   = 30 * time.Second
)

const (
	envJournalCapacity = "FRAME_JOURNAL_CAPACITY"
	envJournalMaxAgeMS = "FRAME_JOURNAL_MAX_AGE_MS"
)

// HeartbeatInterval reports the cadence clients are expected to ping at.
func HeartbeatInterval() time.Duration {
	return heartbeatInterval
}
