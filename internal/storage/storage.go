package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ExternalURLBucket is the sentinel bucket value signaling that the
// stored path already is a fully resolved URL: the model returned a
// hosted URI instead of inline bytes. ResolveURL and FetchBase64 must
// short-circuit on it and never build provider credentials.
const ExternalURLBucket = "external-url"

// ErrNotConfigured is returned when an operation reaches a storage
// backend that is missing its credentials. A misconfigured backend
// fails the whole upload rather than silently degrading.
var ErrNotConfigured = errors.New("storage backend not configured")

// UploadResult describes a stored object.
type UploadResult struct {
	Path      string // path (or content address) the object is stored under
	PublicURL string // URL the object is reachable at
}

// Gateway is the uniform contract over the bucket-style and
// content-addressed pinning backends. The backend is chosen once at
// startup from configuration, not per call.
type Gateway interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) (UploadResult, error)
	ResolveURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, error)
	FetchBase64(ctx context.Context, bucket, path string) (string, error)
}

// FetchURLBase64 downloads url directly and returns its body base64
// encoded. Used by both backends for the external-url short circuit.
func FetchURLBase64(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: failed to build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("fetch: failed to read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch: unexpected status %d: %s", resp.StatusCode, body)
	}

	return base64.StdEncoding.EncodeToString(body), nil
}
