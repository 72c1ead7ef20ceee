package setup

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/dino/pkg/models/api"
	"github.com/de-tools/dino/pkg/models/domain"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Environments(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) Load(ctx context.Context, environment string) (map[string]domain.Checkpoint, error) {
	args := m.Called(ctx, environment)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Checkpoint), args.Error(1)
}

func newRouter(store CheckpointReader) http.Handler {
	h := NewHandler(store)
	r := chi.NewRouter()
	r.Get("/environments", h.ListEnvironments)
	r.Get("/environments/{project}/{environment}", h.GetEnvironment)
	return r
}

func serve(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ListEnvironments(t *testing.T) {
	saved := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	store := new(mockStore)
	store.On("Environments", mock.Anything).Return([]string{"proj/dev"}, nil)
	store.On("Load", mock.Anything, "proj/dev").Return(map[string]domain.Checkpoint{
		"metastore": {Step: "metastore", RunID: "run-1", SavedAt: saved},
	}, nil)

	rec := serve(t, newRouter(store), "/environments")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body []api.Environment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "proj/dev", body[0].Name)
	assert.Equal(t, 1, body[0].Steps)
	assert.Equal(t, "run-1", body[0].LastRunID)
	store.AssertExpectations(t)
}

func TestHandler_ListEnvironments_Empty(t *testing.T) {
	store := new(mockStore)
	store.On("Environments", mock.Anything).Return([]string{}, nil)

	rec := serve(t, newRouter(store), "/environments")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandler_ListEnvironments_StoreError(t *testing.T) {
	store := new(mockStore)
	store.On("Environments", mock.Anything).Return(nil, errors.New("database locked"))

	rec := serve(t, newRouter(store), "/environments")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database locked")
}

func TestHandler_GetEnvironment(t *testing.T) {
	store := new(mockStore)
	store.On("Load", mock.Anything, "proj/staging").Return(map[string]domain.Checkpoint{
		"warehouse": {Step: "warehouse", RunID: "run-1", Record: domain.Record{"id": "wh-1"}},
		"catalog":   {Step: "catalog", RunID: "run-1", Record: domain.Record{"name": "proj_staging"}},
	}, nil)

	rec := serve(t, newRouter(store), "/environments/proj/staging")

	require.Equal(t, http.StatusOK, rec.Code)
	var body api.EnvironmentDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "proj/staging", body.Name)
	require.Len(t, body.Steps, 2)
	assert.Equal(t, "catalog", body.Steps[0].Name)
	assert.Equal(t, "wh-1", body.Steps[1].Record["id"])
}

func TestHandler_GetEnvironment_InvalidEnvironment(t *testing.T) {
	store := new(mockStore)

	rec := serve(t, newRouter(store), "/environments/proj/qa")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	store.AssertNotCalled(t, "Load", mock.Anything, mock.Anything)
}

func TestHandler_GetEnvironment_NotFound(t *testing.T) {
	store := new(mockStore)
	store.On("Load", mock.Anything, "proj/prod").Return(map[string]domain.Checkpoint{}, nil)

	rec := serve(t, newRouter(store), "/environments/proj/prod")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body api.Error
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "no setup recorded for proj/prod", body.Message)
}
