package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chat-sync/internal/chat"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
	"chat-sync/internal/roster"
)

func setupChatRouter(t *testing.T, st *mocks.MemStore, userID string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zaptest.NewLogger(t)
	handler := NewChatHandler(st, chat.NewMutator(st, log), roster.New(st, log))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	r.GET("/roster", handler.ListRoster)
	r.POST("/threads", handler.StartThread)
	r.GET("/threads/:thread_id/messages", handler.GetMessages)
	r.POST("/threads/:thread_id/messages", handler.PostMessage)
	r.POST("/threads/:thread_id/seen", handler.MarkSeen)
	return r
}

func seedUsers(t *testing.T, st *mocks.MemStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "users", "alice", models.UserProfile{ID: "alice", Username: "alice", Name: "Alice"}))
	require.NoError(t, st.Set(ctx, "users", "bob", models.UserProfile{ID: "bob", Username: "bob", Name: "Bob"}))
}

func startThread(t *testing.T, router *gin.Engine, peerID string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"peer_id": peerID})
	req := httptest.NewRequest(http.MethodPost, "/threads", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp["thread_id"].(string)
}

func TestStartThreadCreatesBothRosterSides(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	router := setupChatRouter(t, st, "alice")

	threadID := startThread(t, router, "bob")
	require.NotEmpty(t, threadID)

	ctx := context.Background()
	for owner, wantSeen := range map[string]bool{"alice": true, "bob": false} {
		doc, err := st.Get(ctx, "rosters", owner)
		require.NoError(t, err)
		var rd models.RosterDocument
		require.NoError(t, doc.Decode(&rd))
		require.Len(t, rd.Entries, 1)
		assert.Equal(t, threadID, rd.Entries[0].ThreadID)
		assert.Equal(t, wantSeen, rd.Entries[0].Seen, "owner %s", owner)
	}
}

func TestStartThreadExistingPeerReturnsSameThread(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	router := setupChatRouter(t, st, "alice")

	threadID := startThread(t, router, "bob")

	body, _ := json.Marshal(map[string]string{"peer_id": "bob"})
	req := httptest.NewRequest(http.MethodPost, "/threads", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, threadID, resp["thread_id"])
	assert.Equal(t, true, resp["existing"])
}

func TestStartThreadWithSelfRejected(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	router := setupChatRouter(t, st, "alice")

	body, _ := json.Marshal(map[string]string{"peer_id": "alice"})
	req := httptest.NewRequest(http.MethodPost, "/threads", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageAppendsAndUpdatesRoster(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	router := setupChatRouter(t, st, "alice")
	threadID := startThread(t, router, "bob")

	body, _ := json.Marshal(map[string]string{"text": "hello world"})
	req := httptest.NewRequest(http.MethodPost, "/threads/"+threadID+"/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	ctx := context.Background()
	doc, err := st.Get(ctx, "messages", threadID)
	require.NoError(t, err)
	var log models.MessageLog
	require.NoError(t, doc.Decode(&log))
	require.Len(t, log.Messages, 1)
	assert.Equal(t, "alice", log.Messages[0].SenderID)
	assert.Equal(t, "hello world", log.Messages[0].Text)

	doc, err = st.Get(ctx, "rosters", "bob")
	require.NoError(t, err)
	var rd models.RosterDocument
	require.NoError(t, doc.Decode(&rd))
	require.Len(t, rd.Entries, 1)
	assert.Equal(t, "hello world", rd.Entries[0].LastMessage)
	assert.False(t, rd.Entries[0].Seen)
}

func TestPostMessageEmptyTextRejected(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	router := setupChatRouter(t, st, "alice")
	threadID := startThread(t, router, "bob")

	body, _ := json.Marshal(map[string]string{"text": "   "})
	req := httptest.NewRequest(http.MethodPost, "/threads/"+threadID+"/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostMessageNonParticipantForbidden(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	aliceRouter := setupChatRouter(t, st, "alice")
	threadID := startThread(t, aliceRouter, "bob")

	eveRouter := setupChatRouter(t, st, "eve")
	body, _ := json.Marshal(map[string]string{"text": "hi"})
	req := httptest.NewRequest(http.MethodPost, "/threads/"+threadID+"/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	eveRouter.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetMessagesReturnsChronologicalOrder(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	router := setupChatRouter(t, st, "alice")
	threadID := startThread(t, router, "bob")

	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "messages", threadID, models.MessageLog{
		CreatedAt: 1,
		Messages: []models.Message{
			{SenderID: "bob", Text: "second", CreatedAt: 200},
			{SenderID: "alice", Text: "first", CreatedAt: 100},
		},
	}))

	req := httptest.NewRequest(http.MethodGet, "/threads/"+threadID+"/messages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "first", resp.Messages[0].Text)
	assert.Equal(t, "second", resp.Messages[1].Text)
}

func TestMarkSeenIsIdempotent(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	aliceRouter := setupChatRouter(t, st, "alice")
	threadID := startThread(t, aliceRouter, "bob")

	body, _ := json.Marshal(map[string]string{"text": "ping"})
	req := httptest.NewRequest(http.MethodPost, "/threads/"+threadID+"/messages", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	aliceRouter.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	bobRouter := setupChatRouter(t, st, "bob")
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/threads/"+threadID+"/seen", nil)
		rec := httptest.NewRecorder()
		bobRouter.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	doc, err := st.Get(context.Background(), "rosters", "bob")
	require.NoError(t, err)
	var rd models.RosterDocument
	require.NoError(t, doc.Decode(&rd))
	require.Len(t, rd.Entries, 1)
	assert.True(t, rd.Entries[0].Seen)
}

func TestListRosterEnrichesAndOrders(t *testing.T) {
	st := mocks.NewMemStore()
	seedUsers(t, st)
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "rosters", "alice", models.RosterDocument{Entries: []models.RosterEntry{
		{ThreadID: "t-old", PeerID: "bob", UpdatedAt: 100},
		{ThreadID: "t-new", PeerID: "ghost", UpdatedAt: 200},
	}}))

	router := setupChatRouter(t, st, "alice")
	req := httptest.NewRequest(http.MethodGet, "/roster", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Roster []models.EnrichedEntry `json:"roster"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Roster, 2)
	assert.Equal(t, "t-new", resp.Roster[0].ThreadID)
	assert.Nil(t, resp.Roster[0].Profile)
	require.NotNil(t, resp.Roster[1].Profile)
	assert.Equal(t, "Bob", resp.Roster[1].Profile.Name)
}
