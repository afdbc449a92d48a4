package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/chat"
	"chat-sync/internal/models"
	"chat-sync/internal/roster"
	"chat-sync/internal/store"
	"chat-sync/internal/stream"
)

// ChatHandler serves the roster and thread endpoints.
type ChatHandler struct {
	store   store.Store
	mutator *chat.Mutator
	roster  *roster.Sync
}

func NewChatHandler(st store.Store, mutator *chat.Mutator, rosterSync *roster.Sync) *ChatHandler {
	return &ChatHandler{store: st, mutator: mutator, roster: rosterSync}
}

// ListRoster returns the authenticated user's enriched roster, ordered by
// recency.
func (h *ChatHandler) ListRoster(c *gin.Context) {
	userID := c.GetString("userID")

	entries, err := rosterEntries(c.Request.Context(), h.store, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load roster"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"roster": h.roster.Enrich(c.Request.Context(), entries)})
}

// StartThread creates a thread between the caller and a peer.
func (h *ChatHandler) StartThread(c *gin.Context) {
	var req struct {
		PeerID string `json:"peer_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetString("userID")
	threadID, err := h.mutator.CreateThread(c.Request.Context(), userID, req.PeerID)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"thread_id": threadID})
	case errors.Is(err, chat.ErrThreadExists):
		c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "existing": true})
	case errors.Is(err, chat.ErrPartialCreate):
		// One roster side is missing; the thread is usable and retryable.
		c.JSON(http.StatusCreated, gin.H{"thread_id": threadID, "partial": true})
	case errors.Is(err, chat.ErrSelfThread), errors.Is(err, chat.ErrMissingPartner):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create thread"})
	}
}

// GetMessages returns the thread's messages in display order.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	threadID := c.Param("thread_id")
	userID := c.GetString("userID")

	entry, err := threadEntry(c.Request.Context(), h.store, userID, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a thread participant"})
		return
	}

	doc, err := h.store.Get(c.Request.Context(), "messages", threadID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	var log models.MessageLog
	if err := doc.Decode(&log); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": stream.Order(log.Messages)})
}

// PostMessage appends a text or image message to the thread.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	threadID := c.Param("thread_id")
	userID := c.GetString("userID")

	var req struct {
		Text  string `json:"text"`
		Image string `json:"image"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := threadEntry(c.Request.Context(), h.store, userID, threadID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if entry == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a thread participant"})
		return
	}

	if req.Image != "" {
		err = h.mutator.AppendImage(c.Request.Context(), threadID, userID, entry.PeerID, req.Image)
	} else {
		err = h.mutator.AppendMessage(c.Request.Context(), threadID, userID, entry.PeerID, req.Text)
	}
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
		return
	}

	c.Status(http.StatusCreated)
}

// MarkSeen marks the caller's entry for the thread as read.
func (h *ChatHandler) MarkSeen(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.mutator.MarkSeen(c.Request.Context(), userID, c.Param("thread_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark seen"})
		return
	}
	c.Status(http.StatusNoContent)
}

// rosterEntries loads a user's raw roster entries; a missing roster document
// reads as empty.
func rosterEntries(ctx context.Context, st store.Store, userID string) ([]models.RosterEntry, error) {
	doc, err := st.Get(ctx, "rosters", userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var roster models.RosterDocument
	if err := doc.Decode(&roster); err != nil {
		return nil, err
	}
	return roster.Entries, nil
}

// threadEntry returns the user's roster entry for a thread, or nil when the
// user is not a participant.
func threadEntry(ctx context.Context, st store.Store, userID, threadID string) (*models.RosterEntry, error) {
	entries, err := rosterEntries(ctx, st, userID)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		if entries[i].ThreadID == threadID {
			return &entries[i], nil
		}
	}
	return nil, nil
}
