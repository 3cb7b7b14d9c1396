package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/api/shared"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
	"github.com/phrazzld/tasktrail-api/internal/service"
)

// ActivityService is the part of service.ActivityService the handlers use.
type ActivityService interface {
	GetTaskActivities(ctx context.Context, taskID uuid.UUID, page, limit int) (pagination.Page[domain.Activity], error)
	GetAllActivities(ctx context.Context, filter service.ActivityFilter, page, limit int) (pagination.Page[domain.Activity], error)
	UpdateDenormalizedFields(ctx context.Context, u service.DenormalizedUpdate) error
}

// ActivityHandler handles activity log HTTP requests
type ActivityHandler struct {
	activities ActivityService
	logger     *slog.Logger
}

// NewActivityHandler creates a new ActivityHandler
func NewActivityHandler(activities ActivityService, logger *slog.Logger) *ActivityHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for ActivityHandler")
	}
	return &ActivityHandler{
		activities: activities,
		logger:     logger.With(slog.String("component", "activity_handler")),
	}
}

// GetTaskActivities handles GET /api/activities/task/{taskId} requests.
// The task may already be deleted; its history is still returned.
func (h *ActivityHandler) GetTaskActivities(w http.ResponseWriter, r *http.Request) {
	taskID, err := getPathUUID(r, "taskId")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	page, limit, err := pageParams(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	if limit == 0 {
		limit = defaultActivityLimit
	}

	result, err := h.activities.GetTaskActivities(r.Context(), taskID, page, limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list activities")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// ListActivities handles GET /api/activities requests.
func (h *ActivityHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	q, err := parseListActivitiesQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.activities.GetAllActivities(r.Context(), q.filter(), q.Page, q.Limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list activities")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// UpdateDenormalizedFields handles PATCH /api/activities/denormalized
// requests, copying a task or user rename into existing activities.
func (h *ActivityHandler) UpdateDenormalizedFields(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req DenormalizedUpdateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.activities.UpdateDenormalizedFields(r.Context(), req.toInput()); err != nil {
		HandleAPIError(w, r, err, "Failed to update activities")
		return
	}

	log.Info("denormalized activity fields updated",
		slog.String("task_id", req.TaskID),
		slog.String("user_id", req.UserID))
	w.WriteHeader(http.StatusNoContent)
}
