package genai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEStream_Recv(t *testing.T) {
	body := strings.Join([]string{
		`data: {"text":"first"}`,
		``,
		`: comment line`,
		`data: {"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"aW1n"}}]}}]}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	st := newSSEStream(io.NopCloser(strings.NewReader(body)))

	chunk, err := st.Recv()
	require.NoError(t, err)
	assert.Equal(t, "first", chunk.PlainText())

	chunk, err = st.Recv()
	require.NoError(t, err)
	require.NotNil(t, chunk.FirstPart())
	assert.Equal(t, "image/png", chunk.FirstPart().InlineData.MIMEType)

	_, err = st.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEStream_MalformedChunk(t *testing.T) {
	st := newSSEStream(io.NopCloser(strings.NewReader("data: {not json}\n")))

	_, err := st.Recv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode chunk")
}

func TestStreamGenerate_MissingKey(t *testing.T) {
	c := New("https://example.com", "", "model-x")

	_, err := c.StreamGenerate(context.Background(), []Part{TextPart("hi")})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStreamGenerate_ErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"quota exhausted"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "model-x")

	_, err := c.StreamGenerate(context.Background(), []Part{TextPart("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exhausted")
}

func TestStreamGenerate_StreamsChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("x-goog-api-key"))
		assert.Contains(t, r.URL.Path, "models/model-x:streamGenerateContent")

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"text\":\"streamed\"}\n\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, "key", "model-x")

	st, err := c.StreamGenerate(context.Background(), []Part{TextPart("hi")})
	require.NoError(t, err)
	defer st.Close()

	chunk, err := st.Recv()
	require.NoError(t, err)
	assert.Equal(t, "streamed", chunk.PlainText())

	_, err = st.Recv()
	assert.ErrorIs(t, err, io.EOF)
}
