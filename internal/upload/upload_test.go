package upload

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestUploadPostsMultipartAndReturnsURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1 << 20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "pic.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"url":"https://cdn.example/pic.png"}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, zaptest.NewLogger(t))
	url, err := u.Upload(context.Background(), "pic.png", []byte{0x89, 0x50})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/pic.png", url)
}

func TestUploadWithoutEndpoint(t *testing.T) {
	u := NewHTTPUploader("", zaptest.NewLogger(t))
	_, err := u.Upload(context.Background(), "pic.png", nil)
	assert.ErrorIs(t, err, ErrNoUploadHost)
}

func TestUploadNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, zaptest.NewLogger(t))
	_, err := u.Upload(context.Background(), "pic.png", nil)
	assert.Error(t, err)
}

func TestUploadResponseMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, zaptest.NewLogger(t))
	_, err := u.Upload(context.Background(), "pic.png", nil)
	assert.Error(t, err)
}
