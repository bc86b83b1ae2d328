package resume

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, token string) (*Server, *Marker) {
	t.Helper()
	marker := NewMarker(filepath.Join(t.TempDir(), "resume"))
	srv := NewServer("127.0.0.1", 0, token, marker, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Close)
	return srv, marker
}

func doResume(t *testing.T, srv *Server, method, path, auth string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, fmt.Sprintf("http://%s%s", srv.Addr(), path), nil)
	require.NoError(t, err)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestServer(t *testing.T) {
	t.Run("authorized resume creates the marker", func(t *testing.T) {
		srv, marker := startTestServer(t, "secret")

		resp, body := doResume(t, srv, http.MethodPost, "/resume", "Bearer secret")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["ok"])
		assert.True(t, marker.Exists())
	})

	t.Run("wrong token is rejected", func(t *testing.T) {
		srv, marker := startTestServer(t, "secret")

		resp, body := doResume(t, srv, http.MethodPost, "/resume", "Bearer wrong")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "unauthorized", body["error"])
		assert.False(t, marker.Exists())
	})

	t.Run("missing auth header is rejected", func(t *testing.T) {
		srv, marker := startTestServer(t, "secret")

		resp, _ := doResume(t, srv, http.MethodPost, "/resume", "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.False(t, marker.Exists())
	})

	t.Run("unknown path 404s", func(t *testing.T) {
		srv, _ := startTestServer(t, "secret")

		resp, body := doResume(t, srv, http.MethodPost, "/shutdown", "Bearer secret")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "not_found", body["error"])
	})

	t.Run("GET is not allowed", func(t *testing.T) {
		srv, _ := startTestServer(t, "secret")

		resp, _ := doResume(t, srv, http.MethodGet, "/resume", "Bearer secret")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("refuses to start without a token", func(t *testing.T) {
		marker := NewMarker(filepath.Join(t.TempDir(), "resume"))
		srv := NewServer("127.0.0.1", 0, "", marker, nil)
		require.Error(t, srv.Start())
	})

	t.Run("port zero binds an ephemeral port", func(t *testing.T) {
		srv, _ := startTestServer(t, "secret")
		assert.Positive(t, srv.Port())
		assert.NotEmpty(t, srv.Addr())
	})
}
