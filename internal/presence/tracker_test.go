package presence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func TestOnlineWindowBoundary(t *testing.T) {
	const now = int64(1_000_000)

	assert.True(t, onlineAt(now, now))
	assert.True(t, onlineAt(now-69_999, now))
	assert.True(t, onlineAt(now-70_000, now), "boundary is inclusive")
	assert.False(t, onlineAt(now-70_001, now))
}

func TestBeatUpdatesLastSeen(t *testing.T) {
	st := mocks.NewMemStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "users", "alice", models.UserProfile{ID: "alice", Username: "alice", LastSeen: 1}))

	tracker := NewTracker(st, nil, zaptest.NewLogger(t))
	require.NoError(t, tracker.Beat(ctx, "alice"))

	doc, err := st.Get(ctx, "users", "alice")
	require.NoError(t, err)
	var profile models.UserProfile
	require.NoError(t, doc.Decode(&profile))
	assert.Greater(t, profile.LastSeen, int64(1))
	assert.Equal(t, "alice", profile.Username, "heartbeat touches only lastSeen")
}

func TestBeatMissingProfileFails(t *testing.T) {
	st := mocks.NewMemStore()
	tracker := NewTracker(st, nil, zaptest.NewLogger(t))
	assert.Error(t, tracker.Beat(context.Background(), "ghost"))
}

func TestStopIsIdempotent(t *testing.T) {
	st := mocks.NewMemStore()
	require.NoError(t, st.Set(context.Background(), "users", "alice", models.UserProfile{ID: "alice"}))

	tracker := NewTracker(st, nil, zaptest.NewLogger(t))
	tracker.Start("alice")
	tracker.Stop()
	tracker.Stop()
}
