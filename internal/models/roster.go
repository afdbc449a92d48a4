package models

// RosterEntry is one participant's view of a thread: recency, unread state and
// a preview of the most recent message. Exactly two entries exist per thread,
// one in each participant's roster document, and they are written
// independently (no cross-document atomicity).
type RosterEntry struct {
	ThreadID    string       `json:"threadId"`
	PeerID      string       `json:"peerId"`
	LastMessage string       `json:"lastMessage"`
	UpdatedAt   int64        `json:"updatedAt"`
	Seen        bool         `json:"seen"`
	Peer        PeerSnapshot `json:"peer"`
}

// RosterDocument is the full roster collection owned by one user, stored in
// the "rosters" collection keyed by user id. Entries are keyed implicitly by
// ThreadID; writes replace the whole entries array.
type RosterDocument struct {
	Entries []RosterEntry `json:"entries"`
}

// EnrichedEntry is a roster entry joined with the peer's current profile.
// Profile is nil when the peer's user document is missing; the entry is still
// surfaced rather than dropped.
type EnrichedEntry struct {
	RosterEntry
	Profile *UserProfile `json:"profile"`
}
