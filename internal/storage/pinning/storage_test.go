package pinning

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixmint/genapi/internal/storage"
)

func TestUpload_PinMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pinning/pinFileToIPFS", r.URL.Path)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, _, err := r.FormFile("file")
		require.NoError(t, err)

		_, _ = w.Write([]byte(`{"IpfsHash":"QmTestHash"}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "https://gw.test", "jwt-token", ModePin)

	res, err := s.Upload(context.Background(), "generated", "tasks/x/0.png", []byte("img"), "image/png", true)
	require.NoError(t, err)
	assert.Equal(t, "QmTestHash", res.Path)
	assert.Equal(t, "https://gw.test/ipfs/QmTestHash", res.PublicURL)
}

func TestUpload_UploadModeDefersResolution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uploads", r.URL.Path)
		_, _ = w.Write([]byte(`{"cid":"bafyTest"}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "https://gw.test", "jwt-token", ModeUpload)

	res, err := s.Upload(context.Background(), "generated", "tasks/x/0.png", []byte("img"), "image/png", true)
	require.NoError(t, err)
	assert.Equal(t, "bafyTest", res.Path)
	assert.Empty(t, res.PublicURL)

	url, err := s.ResolveURL(context.Background(), "generated", res.Path, 300*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "https://gw.test/ipfs/bafyTest", url)
}

func TestUpload_MissingCredentialFailsFast(t *testing.T) {
	s := New("https://api.test", "https://gw.test", "", ModePin)

	_, err := s.Upload(context.Background(), "generated", "p", []byte("img"), "image/png", true)
	assert.ErrorIs(t, err, storage.ErrNotConfigured)
}

func TestUpload_ProviderErrorSurfacesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer srv.Close()

	s := New(srv.URL, "https://gw.test", "bad-jwt", ModePin)

	_, err := s.Upload(context.Background(), "generated", "p", []byte("img"), "image/png", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "invalid credentials")
}

func TestResolveURL_ExternalURLShortCircuits(t *testing.T) {
	s := New("https://api.test", "https://gw.test", "jwt", ModePin)

	url, err := s.ResolveURL(context.Background(), storage.ExternalURLBucket, "https://files.example.com/out.png", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/out.png", url)
}

func TestFetchBase64_ExternalURLDirectFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No credentials are sent for an external fetch.
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	s := New("https://api.test", "https://gw.test", "jwt", ModePin)

	b64, err := s.FetchBase64(context.Background(), storage.ExternalURLBucket, srv.URL+"/out.png")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("image-bytes")), b64)
}

func TestFetchBase64_GatewayFetch(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ipfs/QmTestHash", r.URL.Path)
		_, _ = w.Write([]byte("pinned"))
	}))
	defer gw.Close()

	s := New("https://api.test", gw.URL, "jwt", ModePin)

	b64, err := s.FetchBase64(context.Background(), "generated", "QmTestHash")
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("pinned")), b64)
}
