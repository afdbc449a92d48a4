package models

// Message is one immutable entry of a thread's message log. Exactly one of
// Text and Image is set. CreatedAt is assigned by the writer at append time
// and is the display ordering key; equal timestamps fall back to append order.
type Message struct {
	SenderID  string `json:"senderId"`
	Text      string `json:"text,omitempty"`
	Image     string `json:"image,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// IsImage reports whether the message payload is an image URL.
func (m Message) IsImage() bool {
	return m.Image != ""
}

// MessageLog is the append-only message history for one thread, stored in the
// "messages" collection keyed by thread id. It is created empty at thread
// creation and only ever grows.
type MessageLog struct {
	CreatedAt int64     `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// ThreadEvent is pushed over a thread WebSocket on every message log change.
type ThreadEvent struct {
	Type     string    `json:"type"`
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`
}

// RosterEvent is pushed over a roster WebSocket on every roster change.
type RosterEvent struct {
	Type    string          `json:"type"`
	Entries []EnrichedEntry `json:"entries"`
}
