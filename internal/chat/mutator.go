package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"chat-sync/internal/models"
	"chat-sync/internal/observability"
	"chat-sync/internal/store"
)

var (
	ErrEmptyMessage      = errors.New("empty message")
	ErrMissingThread     = errors.New("missing thread id")
	ErrMissingPartner    = errors.New("missing participant id")
	ErrSelfThread        = errors.New("cannot create thread with self")
	ErrThreadExists      = errors.New("thread already exists for peer")
	// ErrPartialCreate reports that exactly one of the two roster writes of a
	// thread creation succeeded. The thread and the written side exist;
	// re-invoking CreateThread is safe for the missing side.
	ErrPartialCreate = errors.New("thread created on one side only")
)

const (
	previewLimit = 30

	// ImagePreview is the roster preview marker for image messages.
	ImagePreview = "Image"
)

// Mutator is the only component that writes chat state: it creates threads,
// appends messages and images, maintains the two-sided roster metadata and
// flips seen flags. Every operation is independently fallible and nothing is
// rolled back on partial failure.
type Mutator struct {
	store store.Store
	log   *zap.Logger
}

func NewMutator(st store.Store, log *zap.Logger) *Mutator {
	return &Mutator{store: st, log: log}
}

// CreateThread creates a new thread between initiator and peer: an empty
// message log, then one roster entry on each side, written independently. The
// initiator's entry starts seen, the peer's unseen.
//
// The existence precheck reads only the initiator's roster immediately before
// writing; two initiators racing each other can still produce duplicate
// threads. Partial success (one roster write failing) returns the thread id
// together with an error matching ErrPartialCreate rather than silently
// succeeding.
func (m *Mutator) CreateThread(ctx context.Context, initiatorID, peerID string) (string, error) {
	if initiatorID == "" || peerID == "" {
		return "", ErrMissingPartner
	}
	if initiatorID == peerID {
		return "", ErrSelfThread
	}

	if threadID, exists, err := m.existingThread(ctx, initiatorID, peerID); err != nil {
		return "", fmt.Errorf("read initiator roster: %w", err)
	} else if exists {
		return threadID, ErrThreadExists
	}

	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generate thread id: %w", err)
	}
	threadID := id.String()
	now := nowMillis()

	if err := m.store.Set(ctx, "messages", threadID, models.MessageLog{CreatedAt: now, Messages: []models.Message{}}); err != nil {
		return "", fmt.Errorf("create message log: %w", err)
	}

	initiatorSnap := m.profileSnapshot(ctx, initiatorID)
	peerSnap := m.profileSnapshot(ctx, peerID)

	peerErr := m.appendRosterEntry(ctx, peerID, models.RosterEntry{
		ThreadID:  threadID,
		PeerID:    initiatorID,
		UpdatedAt: now,
		Seen:      false,
		Peer:      initiatorSnap,
	})
	initiatorErr := m.appendRosterEntry(ctx, initiatorID, models.RosterEntry{
		ThreadID:  threadID,
		PeerID:    peerID,
		UpdatedAt: now,
		Seen:      true,
		Peer:      peerSnap,
	})

	if peerErr != nil && initiatorErr != nil {
		return "", fmt.Errorf("create thread: %w", errors.Join(initiatorErr, peerErr))
	}
	if peerErr != nil || initiatorErr != nil {
		err := peerErr
		if err == nil {
			err = initiatorErr
		}
		m.log.Warn("asymmetric thread creation",
			zap.String("thread_id", threadID), zap.Error(err))
		return threadID, fmt.Errorf("%w: %v", ErrPartialCreate, err)
	}

	observability.EmitChatEvent(ctx, "thread_created", map[string]any{
		"thread_id":    threadID,
		"initiator_id": initiatorID,
		"peer_id":      peerID,
	})
	return threadID, nil
}

func (m *Mutator) existingThread(ctx context.Context, ownerID, peerID string) (string, bool, error) {
	doc, err := m.store.Get(ctx, "rosters", ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	var roster models.RosterDocument
	if err := doc.Decode(&roster); err != nil {
		return "", false, err
	}
	for _, entry := range roster.Entries {
		if entry.PeerID == peerID {
			return entry.ThreadID, true, nil
		}
	}
	return "", false, nil
}

// profileSnapshot reads the embedded creation-time copy of a profile. A
// missing or unreadable profile degrades to an id-only snapshot.
func (m *Mutator) profileSnapshot(ctx context.Context, userID string) models.PeerSnapshot {
	doc, err := m.store.Get(ctx, "users", userID)
	if err != nil {
		return models.PeerSnapshot{ID: userID}
	}
	var profile models.UserProfile
	if err := doc.Decode(&profile); err != nil {
		return models.PeerSnapshot{ID: userID}
	}
	return models.PeerSnapshot{ID: profile.ID, Name: profile.Name, Avatar: profile.Avatar}
}

// appendRosterEntry appends to an existing roster document, falling back to
// creating the document with a singleton entry list when it does not exist.
func (m *Mutator) appendRosterEntry(ctx context.Context, ownerID string, entry models.RosterEntry) error {
	err := m.store.Update(ctx, "rosters", ownerID, store.Merges{"entries": store.Append(entry)})
	if errors.Is(err, store.ErrNotFound) {
		return m.store.Set(ctx, "rosters", ownerID, models.RosterDocument{Entries: []models.RosterEntry{entry}})
	}
	return err
}

// AppendMessage appends one text message to the thread's log, then updates
// both participants' roster metadata. The append is a single atomic
// document-level operation; a failing metadata update is logged but does not
// undo the append.
func (m *Mutator) AppendMessage(ctx context.Context, threadID, senderID, peerID, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	return m.append(ctx, threadID, senderID, peerID,
		models.Message{SenderID: senderID, Text: trimmed, CreatedAt: nowMillis()}, trimmed)
}

// AppendImage appends one image message; the roster preview becomes the
// reserved image marker.
func (m *Mutator) AppendImage(ctx context.Context, threadID, senderID, peerID, imageURL string) error {
	if imageURL == "" {
		return ErrEmptyMessage
	}
	return m.append(ctx, threadID, senderID, peerID,
		models.Message{SenderID: senderID, Image: imageURL, CreatedAt: nowMillis()}, ImagePreview)
}

func (m *Mutator) append(ctx context.Context, threadID, senderID, peerID string, msg models.Message, previewText string) error {
	if threadID == "" {
		return ErrMissingThread
	}

	if err := m.store.Update(ctx, "messages", threadID, store.Merges{"messages": store.Append(msg)}); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	observability.EmitChatEvent(ctx, "message_appended", map[string]any{
		"thread_id": threadID,
		"sender_id": senderID,
		"image":     msg.IsImage(),
	})

	if err := m.UpdateRosterMetadata(ctx, threadID, []string{peerID, senderID}, senderID, previewText); err != nil {
		m.log.Warn("roster metadata update failed after append",
			zap.String("thread_id", threadID), zap.Error(err))
	}
	return nil
}

// UpdateRosterMetadata refreshes the thread's entry in each participant's
// roster: preview (truncated), updatedAt, and seen=false on the side that did
// not send. Participants are updated concurrently and independently; one side
// failing never blocks the other. Each side is a read-modify-write of the
// whole entries array, so two concurrent updates to the same roster document
// are last-writer-wins.
func (m *Mutator) UpdateRosterMetadata(ctx context.Context, threadID string, participantIDs []string, senderID, previewText string) error {
	preview := Preview(previewText)
	now := nowMillis()

	errs := make([]error, len(participantIDs))
	var wg sync.WaitGroup
	for i, ownerID := range participantIDs {
		if ownerID == "" {
			continue
		}
		wg.Add(1)
		go func(i int, ownerID string) {
			defer wg.Done()
			if err := m.updateEntry(ctx, ownerID, threadID, senderID, preview, now); err != nil {
				m.log.Warn("roster metadata update failed",
					zap.String("owner_id", ownerID), zap.String("thread_id", threadID), zap.Error(err))
				errs[i] = fmt.Errorf("roster %s: %w", ownerID, err)
			}
		}(i, ownerID)
	}
	wg.Wait()

	return errors.Join(errs...)
}

func (m *Mutator) updateEntry(ctx context.Context, ownerID, threadID, senderID, preview string, now int64) error {
	doc, err := m.store.Get(ctx, "rosters", ownerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var roster models.RosterDocument
	if err := doc.Decode(&roster); err != nil {
		return err
	}

	idx := -1
	for i, entry := range roster.Entries {
		if entry.ThreadID == threadID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return nil
	}

	roster.Entries[idx].LastMessage = preview
	// updatedAt never moves backward on an out-of-order update.
	if now > roster.Entries[idx].UpdatedAt {
		roster.Entries[idx].UpdatedAt = now
	}
	// The entry pointing back at the sender belongs to the recipient.
	if roster.Entries[idx].PeerID == senderID {
		roster.Entries[idx].Seen = false
	}

	return m.store.Update(ctx, "rosters", ownerID, store.Merges{"entries": roster.Entries})
}

// MarkSeen flips the seen flag of the user's entry for the thread to true.
// Idempotent: re-marking an already seen entry writes the same state again.
func (m *Mutator) MarkSeen(ctx context.Context, userID, threadID string) error {
	if threadID == "" {
		return ErrMissingThread
	}

	doc, err := m.store.Get(ctx, "rosters", userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var roster models.RosterDocument
	if err := doc.Decode(&roster); err != nil {
		return err
	}

	for i := range roster.Entries {
		if roster.Entries[i].ThreadID == threadID {
			roster.Entries[i].Seen = true
		}
	}

	if err := m.store.Update(ctx, "rosters", userID, store.Merges{"entries": roster.Entries}); err != nil {
		return err
	}

	observability.EmitChatEvent(ctx, "thread_seen", map[string]any{
		"thread_id": threadID,
		"user_id":   userID,
	})
	return nil
}

// Preview truncates message text to the roster preview length. Rune-safe.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit])
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
