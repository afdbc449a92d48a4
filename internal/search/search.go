package search

import (
	"context"
	"strings"

	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

// PeerSearch resolves a username to a candidate chat peer. Matching is exact
// and case-insensitive (usernames are stored lowercase); self and users
// already present in the roster are filtered out. No pagination, no fuzzy
// matching.
type PeerSearch struct {
	store store.Store
}

func New(st store.Store) *PeerSearch {
	return &PeerSearch{store: st}
}

// Search returns the matched profile, or nil when there is no match, the
// match is the searching user, or the match is already a roster peer.
func (s *PeerSearch) Search(ctx context.Context, queryUsername, selfID string, existingPeerIDs []string) (*models.UserProfile, error) {
	username := strings.ToLower(strings.TrimSpace(queryUsername))
	if username == "" {
		return nil, nil
	}

	docs, err := s.store.Query(ctx, "users", "username", username)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var profile models.UserProfile
	if err := docs[0].Decode(&profile); err != nil {
		return nil, err
	}
	if profile.ID == "" {
		profile.ID = docs[0].ID
	}

	if profile.ID == selfID {
		return nil, nil
	}
	for _, peerID := range existingPeerIDs {
		if peerID == profile.ID {
			return nil, nil
		}
	}

	return &profile, nil
}
