package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func TestOrderSortsByCreatedAt(t *testing.T) {
	msgs := []models.Message{
		{SenderID: "b", Text: "third", CreatedAt: 300},
		{SenderID: "a", Text: "first", CreatedAt: 100},
		{SenderID: "a", Text: "second", CreatedAt: 200},
	}

	ordered := Order(msgs)

	require.Len(t, ordered, 3)
	assert.Equal(t, "first", ordered[0].Text)
	assert.Equal(t, "second", ordered[1].Text)
	assert.Equal(t, "third", ordered[2].Text)
	assert.Equal(t, "third", msgs[0].Text, "input is not modified")
}

func TestOrderIsStableOnEqualTimestamps(t *testing.T) {
	msgs := []models.Message{
		{SenderID: "a", Text: "one", CreatedAt: 100},
		{SenderID: "b", Text: "two", CreatedAt: 100},
		{SenderID: "a", Text: "three", CreatedAt: 100},
	}

	ordered := Order(msgs)

	assert.Equal(t, "one", ordered[0].Text)
	assert.Equal(t, "two", ordered[1].Text)
	assert.Equal(t, "three", ordered[2].Text)
}

func TestSubscribeMissingThreadDeliversEmpty(t *testing.T) {
	st := mocks.NewMemStore()
	s := New(st, zaptest.NewLogger(t))

	var got [][]models.Message
	cancel := s.Subscribe("no-such-thread", func(msgs []models.Message) {
		got = append(got, msgs)
	}, nil)
	defer cancel()

	require.Len(t, got, 1)
	assert.Empty(t, got[0])
}

func TestSubscribeDeliversOrderedSnapshots(t *testing.T) {
	st := mocks.NewMemStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "messages", "t1", models.MessageLog{CreatedAt: 1, Messages: []models.Message{}}))

	s := New(st, zaptest.NewLogger(t))

	var got [][]models.Message
	cancel := s.Subscribe("t1", func(msgs []models.Message) {
		got = append(got, msgs)
	}, nil)
	defer cancel()

	require.NoError(t, st.Set(ctx, "messages", "t1", models.MessageLog{CreatedAt: 1, Messages: []models.Message{
		{SenderID: "b", Text: "late", CreatedAt: 200},
		{SenderID: "a", Text: "early", CreatedAt: 100},
	}}))

	require.Len(t, got, 2)
	assert.Empty(t, got[0])
	require.Len(t, got[1], 2)
	assert.Equal(t, "early", got[1][0].Text)
	assert.Equal(t, "late", got[1][1].Text)
}

func TestCancelStopsDelivery(t *testing.T) {
	st := mocks.NewMemStore()
	ctx := context.Background()
	require.NoError(t, st.Set(ctx, "messages", "t1", models.MessageLog{CreatedAt: 1, Messages: []models.Message{}}))

	s := New(st, zaptest.NewLogger(t))

	var calls int
	cancel := s.Subscribe("t1", func([]models.Message) { calls++ }, nil)
	require.Equal(t, 1, calls)

	cancel()
	require.NoError(t, st.Set(ctx, "messages", "t1", models.MessageLog{CreatedAt: 1, Messages: []models.Message{
		{SenderID: "a", Text: "after cancel", CreatedAt: 100},
	}}))

	assert.Equal(t, 1, calls)
}
