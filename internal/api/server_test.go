package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shopassist/watchd/internal/storage/memory"
	"github.com/shopassist/watchd/internal/watcher"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.WatcherStore) {
	t.Helper()
	store := memory.NewWatcherStore()
	srv := httptest.NewServer(NewServer(store, zaptest.NewLogger(t)).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	var body map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &body))
	require.Equal(t, "ok", body["status"])
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/readyz", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListWatchers(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)

	var empty struct {
		Watchers []watcher.Watcher `json:"watchers"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/watchers", &empty))
	require.Empty(t, empty.Watchers)

	now := time.Now().UTC().Truncate(time.Second)
	store.Put(watcher.Watcher{
		ID: "w-1", Name: "Sneakers", URL: "https://shop.example.com/p/1",
		Domain: "shop.example.com", Status: watcher.StatusActive,
		Interval: 5 * time.Minute, LastCheckAt: &now,
	})
	store.Put(watcher.Watcher{ID: "w-2", Status: watcher.StatusPaused})

	var body struct {
		Watchers []watcher.Watcher `json:"watchers"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/watchers", &body))
	require.Len(t, body.Watchers, 2)
	require.Equal(t, "w-1", body.Watchers[0].ID)
	require.Equal(t, "Sneakers", body.Watchers[0].Name)
}

func TestGetWatcher(t *testing.T) {
	t.Parallel()

	srv, store := newTestServer(t)
	store.Put(watcher.Watcher{ID: "w-1", URL: "https://shop.example.com/p/1", Status: watcher.StatusActive})

	var found watcher.Watcher
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/v1/watchers/w-1", &found))
	require.Equal(t, "w-1", found.ID)

	require.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/v1/watchers/ghost", nil))
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
