package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNotConfigured is returned when the backend API key is missing.
var ErrNotConfigured = errors.New("generation backend not configured")

// Stream is a finite, ordered sequence of response chunks. Recv
// returns io.EOF after the last chunk. Streams are not restartable.
type Stream interface {
	Recv() (*Chunk, error)
	Close() error
}

// Client talks to a Gemini-style streaming generation endpoint.
type Client struct {
	apiBase    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates a backend client. The HTTP client carries no timeout:
// stream duration is bounded by the model, not by us.
func New(apiBase, apiKey, model string) *Client {
	return &Client{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{},
	}
}

type generateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

// StreamGenerate sends the ordered parts to the model and returns the
// response chunk stream. Both image and text modalities are requested.
func (c *Client) StreamGenerate(ctx context.Context, parts []Part) (Stream, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{
		Contents:         []Content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	})
	if err != nil {
		return nil, fmt.Errorf("genai: failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.apiBase, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genai: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genai: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("genai: backend returned status %d: %s", resp.StatusCode, respBody)
	}

	return newSSEStream(resp.Body), nil
}

// sseStream decodes server-sent events into chunks.
type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func newSSEStream(body io.ReadCloser) *sseStream {
	scanner := bufio.NewScanner(body)
	// Inline image payloads arrive as single data lines of several MB.
	scanner.Buffer(make([]byte, 64*1024), 32*1024*1024)

	return &sseStream{body: body, scanner: scanner}
}

// Recv returns the next chunk, or io.EOF once the stream is exhausted.
func (s *sseStream) Recv() (*Chunk, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("genai: failed to decode chunk: %w", err)
		}
		return &chunk, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("genai: stream read failed: %w", err)
	}
	return nil, io.EOF
}

func (s *sseStream) Close() error {
	return s.body.Close()
}

func encodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
