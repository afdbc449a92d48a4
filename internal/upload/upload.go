package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var ErrNoUploadHost = errors.New("upload host not configured")

// Uploader stores file bytes with an asset host and returns the hosted URL.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (string, error)
}

// HTTPUploader posts multipart form data to an external file host and reads
// the public URL from its JSON response.
type HTTPUploader struct {
	endpoint string
	client   *http.Client
	log      *zap.Logger
}

func NewHTTPUploader(endpoint string, log *zap.Logger) *HTTPUploader {
	return &HTTPUploader{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		log:      log,
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	if u.endpoint == "" {
		return "", ErrNoUploadHost
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if result.URL == "" {
		return "", errors.New("upload response missing url")
	}

	u.log.Debug("file uploaded", zap.String("filename", filename), zap.String("url", result.URL))
	return result.URL, nil
}
