package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"chat-sync/internal/observability"
)

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}

// publishWSEvent emits one websocket lifecycle event (connect, disconnect,
// error) for observability consumers. Best-effort.
func publishWSEvent(ctx context.Context, kind, resourceID string, info ConnInfo, event, reason string) {
	observability.IncWSEvent(kind, event)
	_ = observability.PublishEvent(ctx, "ws_events."+kind, observability.EventEnvelope{
		SchemaVersion: 1,
		EventType:     "ws_events",
		EventName:     event,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload: map[string]any{
			"ws": map[string]any{
				"kind":        kind,
				"resource_id": resourceID,
				"event":       event,
				"conn_id":     info.ConnID,
				"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]any{
				"user_id":   info.UserID,
				"device_id": info.DeviceID,
				"ip":        info.IP,
			},
		},
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
}
