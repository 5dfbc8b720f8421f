package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pixmint/genapi/internal/storage"
)

// Mode selects how content reaches the pinning provider. The choice is
// made once from configuration, not per request.
const (
	// ModePin pins the file directly; the returned content address is
	// public on the gateway immediately.
	ModePin = "pin"
	// ModeUpload uploads the file; resolving an access URL is a
	// separate step performed by ResolveURL.
	ModeUpload = "upload"
)

// Storage is the content-addressed pinning backend. Objects are
// addressed by the content identifier the provider returns, served
// through a public gateway.
type Storage struct {
	apiURL     string
	gatewayURL string
	jwt        string
	mode       string
	client     *http.Client
}

// New creates the pinning backend. The JWT credential is required; an
// empty one surfaces as a configuration error on first use rather than
// a silent fallback.
func New(apiURL, gatewayURL, jwt, mode string) *Storage {
	if mode != ModeUpload {
		mode = ModePin
	}
	return &Storage{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		gatewayURL: strings.TrimSuffix(gatewayURL, "/"),
		jwt:        jwt,
		mode:       mode,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// pinResponse is the provider's reply to a pin or upload call. The two
// endpoints name the content identifier differently.
type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
	CID      string `json:"cid"`
}

func (r pinResponse) contentID() string {
	if r.IpfsHash != "" {
		return r.IpfsHash
	}
	return r.CID
}

// Upload sends data to the pinning provider and returns the content
// address it was stored under. The bucket argument is recorded by the
// caller but carries no meaning for a content-addressed store.
func (s *Storage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string, upsert bool) (storage.UploadResult, error) {
	if bucket == storage.ExternalURLBucket {
		return storage.UploadResult{}, fmt.Errorf("pinning: cannot upload to %s", storage.ExternalURLBucket)
	}
	if s.jwt == "" {
		return storage.UploadResult{}, fmt.Errorf("pinning: %w", storage.ErrNotConfigured)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", path)
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("pinning: failed to build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return storage.UploadResult{}, fmt.Errorf("pinning: failed to write form: %w", err)
	}
	if err := w.Close(); err != nil {
		return storage.UploadResult{}, fmt.Errorf("pinning: failed to close form: %w", err)
	}

	endpoint := s.apiURL + "/pinning/pinFileToIPFS"
	if s.mode == ModeUpload {
		endpoint = s.apiURL + "/uploads"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("pinning: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.jwt)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("pinning: upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return storage.UploadResult{}, fmt.Errorf("pinning: failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return storage.UploadResult{}, fmt.Errorf("pinning: upload failed with status %d: %s", resp.StatusCode, respBody)
	}

	var pr pinResponse
	if err := json.Unmarshal(respBody, &pr); err != nil {
		return storage.UploadResult{}, fmt.Errorf("pinning: failed to decode response: %w", err)
	}
	cid := pr.contentID()
	if cid == "" {
		return storage.UploadResult{}, fmt.Errorf("pinning: provider returned no content id: %s", respBody)
	}

	res := storage.UploadResult{Path: cid}
	if s.mode == ModePin {
		res.PublicURL = s.gatewayURL + "/ipfs/" + cid
	}
	return res, nil
}

// ResolveURL builds the gateway access URL for a content address, or
// returns the path verbatim for external-url entries. Gateway URLs are
// content addressed and do not embed the expiry.
func (s *Storage) ResolveURL(ctx context.Context, bucket, path string, expiry time.Duration) (string, error) {
	if bucket == storage.ExternalURLBucket {
		return path, nil
	}
	if s.gatewayURL == "" {
		return "", fmt.Errorf("pinning: %w", storage.ErrNotConfigured)
	}

	return s.gatewayURL + "/ipfs/" + path, nil
}

// FetchBase64 downloads the content from the gateway (or directly for
// external-url entries) and returns it base64 encoded.
func (s *Storage) FetchBase64(ctx context.Context, bucket, path string) (string, error) {
	if bucket == storage.ExternalURLBucket {
		return storage.FetchURLBase64(ctx, s.client, path)
	}

	url, err := s.ResolveURL(ctx, bucket, path, 0)
	if err != nil {
		return "", err
	}

	return storage.FetchURLBase64(ctx, s.client, url)
}
