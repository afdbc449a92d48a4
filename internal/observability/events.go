package observability

import (
	"context"
	"time"
)

// EventEnvelope wraps every published event.
type EventEnvelope struct {
	SchemaVersion int    `json:"schema_version"`
	EventType     string `json:"event_type"`
	EventName     string `json:"event_name"`
	OccurredAt    string `json:"occurred_at"`
	Payload       any    `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// EmitChatEvent publishes a chat lifecycle event (thread_created,
// message_appended, thread_seen) on the chat_events topic. Best-effort.
func EmitChatEvent(ctx context.Context, name string, payload any) {
	_ = PublishEvent(ctx, "chat_events."+name, EventEnvelope{
		SchemaVersion: 1,
		EventType:     "chat_events",
		EventName:     name,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Payload:       payload,
	}, nil)
}
