package stream

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"chat-sync/internal/models"
	"chat-sync/internal/store"
)

// Stream provides live, ordered views of per-thread message logs. It owns the
// ordering of incoming snapshots; it performs no dedup beyond what the store
// guarantees, so replayed messages with identical (sender, payload, createdAt)
// surface as-is.
type Stream struct {
	store store.Store
	log   *zap.Logger
}

func New(st store.Store, log *zap.Logger) *Stream {
	return &Stream{store: st, log: log}
}

// Subscribe delivers the full chronological message sequence of a thread on
// every change of its log, starting with the current state. The returned
// cancel func stops delivery; callers keep exactly one live subscription per
// open thread and cancel it on thread close.
func (s *Stream) Subscribe(threadID string, onChange func([]models.Message), onError func(error)) func() {
	return s.store.Subscribe("messages", threadID, func(snap store.Snapshot) {
		if !snap.Exists {
			onChange(nil)
			return
		}
		var doc models.MessageLog
		if err := snap.Decode(&doc); err != nil {
			s.log.Error("decode message log", zap.String("thread_id", threadID), zap.Error(err))
			if onError != nil {
				onError(fmt.Errorf("decode message log: %w", err))
			}
			return
		}
		onChange(Order(doc.Messages))
	}, func(err error) {
		s.log.Error("message subscription error", zap.String("thread_id", threadID), zap.Error(err))
		if onError != nil {
			onError(err)
		}
	})
}

// Order returns the display ordering of a message log: chronological by the
// writer-assigned createdAt, with the underlying append order breaking ties.
// The sort is stable, so an identical log always produces an identical
// sequence. The input is not modified.
func Order(msgs []models.Message) []models.Message {
	ordered := make([]models.Message, len(msgs))
	copy(ordered, msgs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt < ordered[j].CreatedAt
	})
	return ordered
}
