package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/dino/pkg/models/api"
	"github.com/de-tools/dino/pkg/models/domain"
	"github.com/de-tools/dino/pkg/store/checkpoint"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := checkpoint.Open(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	saved := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	for _, cp := range []domain.Checkpoint{
		{Environment: "proj/dev", Step: domain.StepMetastore, RunID: "run-1", SavedAt: saved, Record: domain.Record{"metastore_id": "ms-1"}},
		{Environment: "proj/dev", Step: domain.StepCatalog, RunID: "run-1", SavedAt: saved.Add(time.Second), Record: domain.Record{"name": "proj_dev"}},
	} {
		require.NoError(t, store.Save(ctx, cp))
	}

	srv := httptest.NewServer(NewRouter(zerolog.Nop(), Dependencies{Checkpoints: store}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter_ListEnvironments(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/environments")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body []api.Environment
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "proj/dev", body[0].Name)
	assert.Equal(t, 2, body[0].Steps)
}

func TestRouter_GetEnvironment(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/environments/proj/dev")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body api.EnvironmentDetail
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Steps, 2)
	assert.Equal(t, domain.StepMetastore, body.Steps[0].Name)
	assert.Equal(t, "ms-1", body.Steps[0].Record["metastore_id"])
}

func TestRouter_UnknownEnvironment(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/environments/other/dev")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_UnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/workspaces")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewWebAPI_Defaults(t *testing.T) {
	web := NewWebAPI(zerolog.Nop(), Config{Addr: "127.0.0.1:0"})

	assert.Equal(t, "127.0.0.1:0", web.server.Addr)
	assert.Equal(t, 10*time.Second, web.shutdownTimeout)
}

func TestWebAPI_StartStopsWithContext(t *testing.T) {
	web := NewWebAPI(zerolog.Nop(), Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- web.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
