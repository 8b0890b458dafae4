package netx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPPinger_OK(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		assert.Equal(t, "/auth/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewHTTPPinger(srv.URL, "/auth/v1/health", "anon", time.Second)
	require.NoError(t, p.Ping(context.Background()))
	assert.Equal(t, "anon", gotKey)
}

func TestHTTPPinger_ServerErrorIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewHTTPPinger(srv.URL, "/auth/v1/health", "", time.Second)
	require.Error(t, p.Ping(context.Background()))
}

func TestHTTPPinger_UnreachableIsOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	p := NewHTTPPinger(url, "/auth/v1/health", "", 200*time.Millisecond)
	require.Error(t, p.Ping(context.Background()))
}
