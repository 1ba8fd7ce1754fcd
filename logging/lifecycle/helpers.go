package lifecycle

import (
	"context"

	"orbitlab/server/logging"
)

const (
	// EventViewerJoined is emitted when a viewer joins the service.
	EventViewerJoined logging.EventType = "lifecycle.viewer_joined"
	// EventViewerDisconnected is emitted when a viewer's socket goes away.
	EventViewerDisconnected logging.EventType = "lifecycle.viewer_disconnected"
	// EventViewerExpired is emitted when a detached viewer is removed.
	EventViewerExpired logging.EventType = "lifecycle.viewer_expired"
)

// ViewerJoinedPayload captures session metadata for a new viewer.
type ViewerJoinedPayload struct {
	Protocol uint16 `json:"protocol"`
}

// ViewerDisconnectedPayload captures the reason a viewer detached.
type ViewerDisconnectedPayload struct {
	Reason string `json:"reason"`
}

// ViewerJoined publishes a viewer join event.
func ViewerJoined(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ViewerJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventViewerJoined,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ViewerDisconnected publishes a viewer disconnect event.
func ViewerDisconnected(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload ViewerDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventViewerDisconnected,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// ViewerExpired publishes a viewer removal event.
func ViewerExpired(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventViewerExpired,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
