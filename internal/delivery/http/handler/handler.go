package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/listing-harvester/internal/delivery/http/response"
	"github.com/user/listing-harvester/internal/entity"
	"github.com/user/listing-harvester/internal/repository"
)

// RunService is the part of the runner the HTTP layer needs.
type RunService interface {
	Start() (runID string, started bool)
	Latest(ctx context.Context) (*entity.RunStatus, error)
	Status(ctx context.Context, id string) (*entity.RunStatus, error)
}

type Handler struct {
	runs   RunService
	logger *zap.Logger
}

func NewHandler(runs RunService, logger *zap.Logger) *Handler {
	return &Handler{
		runs:   runs,
		logger: logger,
	}
}

// HandleTriggerRun starts a run in the background and answers immediately.
func (h *Handler) HandleTriggerRun(w http.ResponseWriter, r *http.Request) {
	runID, started := h.runs.Start()
	if !started && runID == "" {
		h.writeJSONError(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	if !started {
		h.writeJSON(w, http.StatusAccepted, response.TriggerRunResponse{
			Status:  response.StatusAlreadyRunning,
			Message: "A scraper run is already in progress",
			RunID:   runID,
		})
		return
	}

	h.logger.Info("run triggered", zap.String("run_id", runID), zap.String("remote_addr", r.RemoteAddr))
	h.writeJSON(w, http.StatusAccepted, response.TriggerRunResponse{
		Status:  response.StatusStarted,
		Message: "Scraper running in background",
		RunID:   runID,
	})
}

func (h *Handler) HandleLatestRun(w http.ResponseWriter, r *http.Request) {
	status, err := h.runs.Latest(r.Context())
	h.writeRunStatus(w, status, err, "")
}

func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.writeJSONError(w, "Run id is required", http.StatusBadRequest)
		return
	}
	status, err := h.runs.Status(r.Context(), id)
	h.writeRunStatus(w, status, err, id)
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeRunStatus(w http.ResponseWriter, status *entity.RunStatus, err error, id string) {
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			h.writeJSONError(w, "Run not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get run status", zap.String("run_id", id), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
