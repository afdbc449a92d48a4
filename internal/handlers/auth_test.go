package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chat-sync/internal/auth"
	"chat-sync/internal/mocks"
)

func setupAuthRouter(t *testing.T) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	manager := auth.NewManager(mocks.NewMemStore(), []byte("test-secret"), time.Hour, zaptest.NewLogger(t))
	handler := NewAuthHandler(manager)

	r := gin.New()
	r.POST("/auth/signup", handler.Signup)
	r.POST("/auth/login", handler.Login)
	r.POST("/auth/reset-password", handler.ResetPassword)
	return r, manager
}

func postJSON(t *testing.T, router *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSignupAndLogin(t *testing.T) {
	router, manager := setupAuthRouter(t)

	rec := postJSON(t, router, "/auth/signup", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token   string `json:"token"`
		Profile struct {
			Username string `json:"username"`
		} `json:"profile"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp.Profile.Username)

	subject, err := manager.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.NotEmpty(t, subject)
}

func TestSignupConflicts(t *testing.T) {
	router, _ := setupAuthRouter(t)

	rec := postJSON(t, router, "/auth/signup", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/auth/signup", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "hunter22",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	router, _ := setupAuthRouter(t)

	rec := postJSON(t, router, "/auth/signup", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "hunter22",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = postJSON(t, router, "/auth/login", map[string]string{
		"email": "alice@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestResetPasswordUnknownEmail(t *testing.T) {
	router, _ := setupAuthRouter(t)

	rec := postJSON(t, router, "/auth/reset-password", map[string]string{
		"email": "nobody@example.com",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
