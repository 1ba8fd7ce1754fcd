package jobs

import (
	"context"

	"orbitlab/server/logging"
)

const (
	// EventStarted is emitted when a render job begins.
	EventStarted logging.EventType = "jobs.started"
	// EventCompleted is emitted when a render job finishes its stream.
	EventCompleted logging.EventType = "jobs.completed"
	// EventFailed is emitted when a render job ends with a failure frame.
	EventFailed logging.EventType = "jobs.failed"
	// EventCancelled is emitted when a render job is cancelled.
	EventCancelled logging.EventType = "jobs.cancelled"
)

// StartedPayload captures the shape of a starting job.
type StartedPayload struct {
	Family string `json:"family"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// CompletedPayload captures completion timing.
type CompletedPayload struct {
	ElapsedMillis int64 `json:"elapsedMillis"`
}

// FailedPayload captures the failure reason sent to the viewer.
type FailedPayload struct {
	Reason string `json:"reason"`
}

// Started publishes a job start event.
func Started(ctx context.Context, pub logging.Publisher, job uint64, actor logging.EntityRef, payload StartedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventStarted,
		Job:      job,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryRender,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Completed publishes a job completion event.
func Completed(ctx context.Context, pub logging.Publisher, job uint64, actor logging.EntityRef, payload CompletedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCompleted,
		Job:      job,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryRender,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Failed publishes a job failure event.
func Failed(ctx context.Context, pub logging.Publisher, job uint64, actor logging.EntityRef, payload FailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFailed,
		Job:      job,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryRender,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Cancelled publishes a job cancellation event.
func Cancelled(ctx context.Context, pub logging.Publisher, job uint64, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventCancelled,
		Job:      job,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryRender,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
