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

// TaskService is the part of service.TaskService the handlers use.
type TaskService interface {
	FindAll(ctx context.Context, filter service.TaskFilter, page, limit int) (pagination.Page[domain.Task], error)
	FindOne(ctx context.Context, id uuid.UUID) (*domain.Task, error)
	Create(ctx context.Context, in service.CreateTaskInput, actorID *uuid.UUID) (*domain.Task, error)
	Update(ctx context.Context, id uuid.UUID, in service.UpdateTaskInput, actorID *uuid.UUID) (*domain.Task, error)
	Delete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error
}

// TaskHandler handles task-related HTTP requests
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// ListTasks handles GET /api/tasks requests.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q, err := parseListTasksQuery(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	page, err := h.tasks.FindAll(r.Context(), q.filter(), q.Page, q.Limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, page)
}

// GetTask handles GET /api/tasks/{id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	task, err := h.tasks.FindOne(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// CreateTask handles POST /api/tasks requests. The authenticated user is
// recorded as the actor.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.tasks.Create(r.Context(), req.toInput(), &userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	log.Debug("task created", slog.String("task_id", task.ID.String()), slog.String("user_id", userID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, task)
}

// UpdateTask handles PUT /api/tasks/{id} requests. Fields absent from the
// body are left unchanged.
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	var req UpdateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.tasks.Update(r.Context(), id, req.toInput(), &userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update task")
		return
	}

	log.Debug("task updated", slog.String("task_id", id.String()), slog.String("user_id", userID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// DeleteTask handles DELETE /api/tasks/{id} requests.
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.tasks.Delete(r.Context(), id, &userID); err != nil {
		HandleAPIError(w, r, err, "Failed to delete task")
		return
	}

	log.Debug("task deleted", slog.String("task_id", id.String()), slog.String("user_id", userID.String()))
	w.WriteHeader(http.StatusNoContent)
}
