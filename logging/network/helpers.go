package network

import (
	"context"

	"orbitlab/server/logging"
)

const (
	// EventAckAdvanced is emitted when a viewer acknowledges a newer frame.
	EventAckAdvanced logging.EventType = "network.ack_advanced"
	// EventAckRegression is emitted when a viewer reports an older acknowledgement than previously recorded.
	EventAckRegression logging.EventType = "network.ack_regression"
	// EventReplayServed is emitted when a replay request is answered from the journal.
	EventReplayServed logging.EventType = "network.replay_served"
	// EventResyncAdvised is emitted when replay loss pushes a viewer toward a fresh render.
	EventResyncAdvised logging.EventType = "network.resync_advised"
)

// AckPayload captures acknowledgement progression details.
type AckPayload struct {
	Previous uint64 `json:"previous"`
	Ack      uint64 `json:"ack"`
}

// ReplayPayload captures how a replay request was answered.
type ReplayPayload struct {
	FromSeq uint64 `json:"fromSeq"`
	Frames  int    `json:"frames"`
}

// ResyncPayload captures why a resync was advised.
type ResyncPayload struct {
	Reason string `json:"reason"`
}

// AckAdvanced publishes a debug event when a viewer acknowledgement advances.
func AckAdvanced(ctx context.Context, pub logging.Publisher, job uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAckAdvanced,
		Job:      job,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// AckRegression publishes a warning event when a viewer acknowledgement regresses.
func AckRegression(ctx context.Context, pub logging.Publisher, job uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventAckRegression,
		Job:      job,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ReplayServed publishes a debug event describing a journal replay.
func ReplayServed(ctx context.Context, pub logging.Publisher, job uint64, actor logging.EntityRef, payload ReplayPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventReplayServed,
		Job:      job,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ResyncAdvised publishes a warning event when replay loss forces a resync.
func ResyncAdvised(ctx context.Context, pub logging.Publisher, job uint64, actor logging.EntityRef, payload ResyncPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventResyncAdvised,
		Job:      job,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
