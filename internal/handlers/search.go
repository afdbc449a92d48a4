package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/search"
	"chat-sync/internal/store"
)

// SearchHandler resolves usernames to candidate chat peers.
type SearchHandler struct {
	store  store.Store
	search *search.PeerSearch
}

func NewSearchHandler(st store.Store, peerSearch *search.PeerSearch) *SearchHandler {
	return &SearchHandler{store: st, search: peerSearch}
}

// Search finds a user by exact username, excluding the caller and users
// already present in the caller's roster.
func (h *SearchHandler) Search(c *gin.Context) {
	username := c.Query("username")
	if username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username"})
		return
	}

	userID := c.GetString("userID")
	entries, err := rosterEntries(c.Request.Context(), h.store, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load roster"})
		return
	}
	peerIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		peerIDs = append(peerIDs, entry.PeerID)
	}

	profile, err := h.search.Search(c.Request.Context(), username, userID, peerIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search failed"})
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no matching user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": profile})
}
