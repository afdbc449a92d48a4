package models

// UserProfile is the public identity record stored in the "users" collection.
// Timestamps are Unix milliseconds.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Bio      string `json:"bio"`
	LastSeen int64  `json:"lastSeen"`
}

// PeerSnapshot is the partial profile copy embedded into a roster entry at
// thread creation time. The live profile is resolved separately on every
// roster notification; the snapshot is only a fallback.
type PeerSnapshot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Credentials is the private auth record stored in the "credentials"
// collection, keyed by user id.
type Credentials struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
}
