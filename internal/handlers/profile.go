package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/models"
	"chat-sync/internal/presence"
	"chat-sync/internal/store"
)

// ProfileHandler serves user profiles and presence.
type ProfileHandler struct {
	store   store.Store
	tracker *presence.Tracker
}

func NewProfileHandler(st store.Store, tracker *presence.Tracker) *ProfileHandler {
	return &ProfileHandler{store: st, tracker: tracker}
}

// Me returns the authenticated user's profile.
func (h *ProfileHandler) Me(c *gin.Context) {
	h.serveProfile(c, c.GetString("userID"))
}

// GetUser returns another user's profile with derived presence.
func (h *ProfileHandler) GetUser(c *gin.Context) {
	h.serveProfile(c, c.Param("user_id"))
}

func (h *ProfileHandler) serveProfile(c *gin.Context, userID string) {
	doc, err := h.store.Get(c.Request.Context(), "users", userID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	var profile models.UserProfile
	if err := doc.Decode(&profile); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": profile, "online": presence.IsOnline(profile)})
}

// UpdateMe edits the authenticated user's display name, avatar and bio.
func (h *ProfileHandler) UpdateMe(c *gin.Context) {
	var req struct {
		Name   *string `json:"name"`
		Avatar *string `json:"avatar"`
		Bio    *string `json:"bio"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	merges := store.Merges{}
	if req.Name != nil {
		merges["name"] = *req.Name
	}
	if req.Avatar != nil {
		merges["avatar"] = *req.Avatar
	}
	if req.Bio != nil {
		merges["bio"] = *req.Bio
	}
	if len(merges) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}

	userID := c.GetString("userID")
	if err := h.store.Update(c.Request.Context(), "users", userID, merges); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Heartbeat records activity for the authenticated user. Clients call this
// periodically while in the foreground.
func (h *ProfileHandler) Heartbeat(c *gin.Context) {
	userID := c.GetString("userID")
	if err := h.tracker.Beat(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record heartbeat"})
		return
	}
	c.Status(http.StatusNoContent)
}
