package setup

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/de-tools/dino/pkg/adapters"
	"github.com/de-tools/dino/pkg/models/api"
	"github.com/de-tools/dino/pkg/models/domain"
)

// CheckpointReader is the read side of the checkpoint store.
type CheckpointReader interface {
	Environments(ctx context.Context) ([]string, error)
	Load(ctx context.Context, environment string) (map[string]domain.Checkpoint, error)
}

type Handler struct {
	store CheckpointReader
}

func NewHandler(store CheckpointReader) *Handler {
	return &Handler{store: store}
}

func (h *Handler) ListEnvironments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	names, err := h.store.Environments(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list environments")
		writeJSON(ctx, w, http.StatusInternalServerError, api.Error{Message: "failed to list environments"})
		return
	}

	response := make([]api.Environment, 0, len(names))
	for _, name := range names {
		recorded, err := h.store.Load(ctx, name)
		if err != nil {
			logger.Error().Err(err).Str("environment", name).Msg("failed to load checkpoints")
			writeJSON(ctx, w, http.StatusInternalServerError, api.Error{Message: "failed to load checkpoints"})
			return
		}
		response = append(response, adapters.MapCheckpointsToApiEnvironment(name, recorded))
	}

	writeJSON(ctx, w, http.StatusOK, response)
}

func (h *Handler) GetEnvironment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	project := chi.URLParam(r, "project")

	env, err := domain.ParseEnvironment(chi.URLParam(r, "environment"))
	if err != nil {
		writeJSON(ctx, w, http.StatusBadRequest, api.Error{Message: err.Error()})
		return
	}
	key := domain.ProvisioningRequest{Project: project, Environment: env}.Key()

	recorded, err := h.store.Load(ctx, key)
	if err != nil {
		logger.Error().Err(err).Str("environment", key).Msg("failed to load checkpoints")
		writeJSON(ctx, w, http.StatusInternalServerError, api.Error{Message: "failed to load checkpoints"})
		return
	}
	if len(recorded) == 0 {
		writeJSON(ctx, w, http.StatusNotFound, api.Error{Message: "no setup recorded for " + key})
		return
	}

	writeJSON(ctx, w, http.StatusOK, adapters.MapCheckpointsToApiDetail(key, recorded))
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to encode response")
	}
}
