package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func newTestManager(t *testing.T) (*Manager, *mocks.MemStore) {
	t.Helper()
	st := mocks.NewMemStore()
	return NewManager(st, []byte("test-secret"), time.Hour, zaptest.NewLogger(t)), st
}

func TestSignupCreatesProfileCredentialsAndRoster(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()

	profile, err := m.Signup(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username, "username is lowercase-normalized")
	assert.NotEmpty(t, profile.ID)
	assert.NotEmpty(t, profile.Bio)

	doc, err := st.Get(ctx, "credentials", profile.ID)
	require.NoError(t, err)
	var creds models.Credentials
	require.NoError(t, doc.Decode(&creds))
	assert.NotEqual(t, "hunter22", creds.PasswordHash, "password is stored hashed")

	doc, err = st.Get(ctx, "rosters", profile.ID)
	require.NoError(t, err)
	var roster models.RosterDocument
	require.NoError(t, doc.Decode(&roster))
	assert.Empty(t, roster.Entries)
}

func TestSignupRejectsDuplicates(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Signup(ctx, "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, err = m.Signup(ctx, "ALICE", "other@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = m.Signup(ctx, "alice2", "alice@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignupRejectsEmptyFields(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.Signup(context.Background(), "", "a@b.c", "pw")
	assert.ErrorIs(t, err, ErrEmptyField)
}

func TestLoginRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	created, err := m.Signup(ctx, "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	token, profile, err := m.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, created.ID, profile.ID)
	assert.Equal(t, created.ID, m.CurrentIdentity())

	subject, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, subject)
}

func TestLoginMasksFailures(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Signup(ctx, "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, _, err = m.Login(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = m.Login(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsForeignKey(t *testing.T) {
	m, _ := newTestManager(t)
	other := NewManager(mocks.NewMemStore(), []byte("other-secret"), time.Hour, zaptest.NewLogger(t))

	token, err := other.IssueToken("alice")
	require.NoError(t, err)

	_, err = m.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestIdentityListeners(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	profile, err := m.Signup(ctx, "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	var changes []string
	cancel := m.OnIdentityChange(func(userID string) {
		changes = append(changes, userID)
	})

	_, _, err = m.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	m.Logout()
	m.Logout()

	require.Equal(t, []string{profile.ID, ""}, changes, "repeated sign-out fires once")

	cancel()
	_, _, err = m.Login(ctx, "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Len(t, changes, 2, "cancelled listener is not called")
}

func TestRequestPasswordReset(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Signup(ctx, "alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	assert.NoError(t, m.RequestPasswordReset(ctx, "alice@example.com"))
	assert.ErrorIs(t, m.RequestPasswordReset(ctx, "nobody@example.com"), ErrEmailUnknown)
	assert.ErrorIs(t, m.RequestPasswordReset(ctx, ""), ErrEmptyField)
}
