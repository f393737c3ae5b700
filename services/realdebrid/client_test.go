package realdebrid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webtor-io/audio-resolver/services/retry"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	r := retry.NewRetrier(retry.Config{
		Attempts:      3,
		Unit:          time.Millisecond,
		RateLimitWait: time.Millisecond,
	})
	return New(server.Client(), server.URL+"/", "secret", r)
}

func TestClient_AddMagnet(t *testing.T) {
	cl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/torrents/addMagnet", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "magnet:?xt=urn:btih:abc", r.PostForm.Get("magnet"))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(TorrentAddResponse{ID: "JOB1", URI: "https://example.com/JOB1"})
	})

	resp, err := cl.AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	require.NoError(t, err)
	assert.Equal(t, "JOB1", resp.ID)
}

func TestClient_InvalidCredential(t *testing.T) {
	var calls int32
	cl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad_token","error_code":8}`))
	})

	_, err := cl.AddMagnet(context.Background(), "magnet:?xt=urn:btih:abc")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidCredential))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "4xx must not be retried")
}

func TestClient_ErrorBodyWithOKStatus(t *testing.T) {
	cl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"unknown_ressource","error_code":7}`))
	})

	_, err := cl.GetTorrentInfo(context.Background(), "JOB1")
	require.Error(t, err)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusOK, pe.StatusCode)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_NotFound(t *testing.T) {
	cl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := cl.GetTorrentInfo(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_RetriesRateLimit(t *testing.T) {
	var calls int32
	cl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(User{ID: 1, Username: "listener", Type: "premium"})
	})

	user, err := cl.GetUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "listener", user.Username)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_RetriesServerErrorsThenFails(t *testing.T) {
	var calls int32
	cl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := cl.GetUser(context.Background())
	require.Error(t, err)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusBadGateway, pe.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_SelectTorrentFiles(t *testing.T) {
	cl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/torrents/selectFiles/JOB1", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "1,3", r.PostForm.Get("files"))
		w.WriteHeader(http.StatusNoContent)
	})

	err := cl.SelectTorrentFiles(context.Background(), "JOB1", []string{"1", "3"})
	require.NoError(t, err)
}

func TestClient_UnrestrictLink(t *testing.T) {
	cl := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/unrestrict/link", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "https://real-debrid.com/d/ABC", r.PostForm.Get("link"))
		_ = json.NewEncoder(w).Encode(Download{
			Filename: "01 - Track.flac",
			MimeType: "audio/flac",
			Filesize: 31457280,
			Download: "https://cdn.example.com/01.flac",
		})
	})

	d, err := cl.UnrestrictLink(context.Background(), "https://real-debrid.com/d/ABC")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/01.flac", d.Download)
	assert.Equal(t, "audio/flac", d.MimeType)
}
