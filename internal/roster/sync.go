package roster

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

// IdentitySource reports the signed-in user and identity changes. Satisfied
// by the auth manager.
type IdentitySource interface {
	CurrentIdentity() string
	OnIdentityChange(func(userID string)) (cancel func())
}

// Sync provides live, enriched views of per-user roster documents: every
// entry joined with the peer's current profile and the whole list ordered by
// recency.
type Sync struct {
	store store.Store
	log   *zap.Logger
}

func New(st store.Store, log *zap.Logger) *Sync {
	return &Sync{store: st, log: log}
}

// Subscribe delivers the enriched roster of userID on every change of the
// roster document, starting with the current state. A missing roster document
// yields an empty list.
func (s *Sync) Subscribe(userID string, onChange func([]models.EnrichedEntry), onError func(error)) func() {
	return s.store.Subscribe("rosters", userID, func(snap store.Snapshot) {
		if !snap.Exists {
			onChange(nil)
			return
		}
		var doc models.RosterDocument
		if err := snap.Decode(&doc); err != nil {
			s.log.Error("decode roster", zap.String("user_id", userID), zap.Error(err))
			if onError != nil {
				onError(fmt.Errorf("decode roster: %w", err))
			}
			return
		}
		onChange(s.Enrich(context.Background(), doc.Entries))
	}, func(err error) {
		s.log.Error("roster subscription error", zap.String("user_id", userID), zap.Error(err))
		if onError != nil {
			onError(err)
		}
	})
}

// Enrich resolves the current peer profile for every entry with concurrent
// point reads and returns the entries ordered by recency. An entry whose peer
// profile is missing or unreadable is kept with a nil profile rather than
// dropped.
func (s *Sync) Enrich(ctx context.Context, entries []models.RosterEntry) []models.EnrichedEntry {
	enriched := make([]models.EnrichedEntry, len(entries))

	var wg sync.WaitGroup
	for i, entry := range entries {
		enriched[i] = models.EnrichedEntry{RosterEntry: entry}

		wg.Add(1)
		go func(i int, peerID string) {
			defer wg.Done()
			doc, err := s.store.Get(ctx, "users", peerID)
			if err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					s.log.Warn("resolve peer profile", zap.String("peer_id", peerID), zap.Error(err))
				}
				return
			}
			var profile models.UserProfile
			if err := doc.Decode(&profile); err != nil {
				s.log.Warn("decode peer profile", zap.String("peer_id", peerID), zap.Error(err))
				return
			}
			enriched[i].Profile = &profile
		}(i, entry.PeerID)
	}
	wg.Wait()

	SortByRecency(enriched)
	return enriched
}

// SortByRecency orders entries by updatedAt descending. An entry without a
// usable timestamp carries updatedAt zero and therefore sorts oldest. Equal
// timestamps keep their arrival order: the sort is stable.
func SortByRecency(entries []models.EnrichedEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].UpdatedAt > entries[j].UpdatedAt
	})
}

// Follow keeps exactly one roster subscription live for the signed-in
// identity, cancelling and resubscribing whenever the identity changes.
// Sign-out (empty identity) just cancels. The returned cancel func tears the
// whole arrangement down.
func (s *Sync) Follow(ids IdentitySource, onChange func(userID string, entries []models.EnrichedEntry), onError func(error)) func() {
	var mu sync.Mutex
	var cancelSub func()

	apply := func(userID string) {
		mu.Lock()
		defer mu.Unlock()
		if cancelSub != nil {
			cancelSub()
			cancelSub = nil
		}
		if userID == "" {
			return
		}
		cancelSub = s.Subscribe(userID, func(entries []models.EnrichedEntry) {
			onChange(userID, entries)
		}, onError)
	}

	cancelWatch := ids.OnIdentityChange(apply)
	apply(ids.CurrentIdentity())

	return func() {
		cancelWatch()
		apply("")
	}
}
