package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/metrics"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
	"github.com/phrazzld/tasktrail-api/internal/store"
	"golang.org/x/sync/errgroup"
)

// ActivityCollection is the pagination cache namespace of activities.
const ActivityCollection = "activity"

// LogActivityParams describes one activity to record. TaskTitle and
// UserName are looked up when left empty.
type LogActivityParams struct {
	TaskID    uuid.UUID
	UserID    uuid.UUID
	Action    domain.ActivityAction
	Changes   domain.Changes
	TaskTitle string
	UserName  string
}

// ActivityFilter narrows GetAllActivities. Nil fields are not applied; the
// date bounds are inclusive and independent.
type ActivityFilter struct {
	UserID    *uuid.UUID
	Action    *domain.ActivityAction
	TaskID    *uuid.UUID
	StartDate *time.Time
	EndDate   *time.Time
}

// DenormalizedUpdate carries renames to copy into existing activities.
// A rename is applied only when both its id and its new value are set.
type DenormalizedUpdate struct {
	TaskID    *uuid.UUID
	TaskTitle string
	UserID    *uuid.UUID
	UserName  string
}

// ActivityService records and reads the task activity log.
type ActivityService struct {
	activities store.ActivityStore
	tasks      store.TaskStore
	users      store.UserStore
	paginator  *pagination.Paginator
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewActivityService creates an ActivityService. It returns an error if any
// of the required dependencies are nil.
func NewActivityService(
	activities store.ActivityStore,
	tasks store.TaskStore,
	users store.UserStore,
	paginator *pagination.Paginator,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*ActivityService, error) {
	switch {
	case activities == nil:
		return nil, &ActivityServiceError{Operation: "create_service", Message: "activities cannot be nil"}
	case tasks == nil:
		return nil, &ActivityServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	case users == nil:
		return nil, &ActivityServiceError{Operation: "create_service", Message: "users cannot be nil"}
	case paginator == nil:
		return nil, &ActivityServiceError{Operation: "create_service", Message: "paginator cannot be nil"}
	case logger == nil:
		return nil, &ActivityServiceError{Operation: "create_service", Message: "logger cannot be nil"}
	}

	return &ActivityService{
		activities: activities,
		tasks:      tasks,
		users:      users,
		paginator:  paginator,
		logger:     logger.With("component", "activity_service"),
		metrics:    m,
	}, nil
}

// LogActivity verifies the task and user exist, then appends the activity.
// Nothing is written when either lookup fails.
func (s *ActivityService) LogActivity(ctx context.Context, p LogActivityParams) (*domain.Activity, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	taskTitle, userName := p.TaskTitle, p.UserName
	g, gctx := errgroup.WithContext(ctx)
	if taskTitle == "" {
		g.Go(func() error {
			task, err := s.tasks.GetByID(gctx, p.TaskID)
			if err != nil {
				if errors.Is(err, store.ErrTaskNotFound) {
					return notFound("Task", p.TaskID, ErrTaskNotFound)
				}
				return err
			}
			taskTitle = task.Title
			return nil
		})
	}
	if userName == "" {
		g.Go(func() error {
			user, err := s.users.GetByID(gctx, p.UserID)
			if err != nil {
				if errors.Is(err, store.ErrUserNotFound) {
					return notFound("User", p.UserID, ErrUserNotFound)
				}
				return err
			}
			userName = user.Name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, NewActivityServiceError("log_activity", "failed to resolve task or user", err)
	}

	activity, err := domain.NewActivity(p.TaskID, p.UserID, p.Action, p.Changes, taskTitle, userName)
	if err != nil {
		return nil, NewActivityServiceError("log_activity", "invalid activity", err)
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		log.Error("failed to save activity",
			"task_id", p.TaskID,
			"action", p.Action,
			"error", err)
		return nil, NewActivityServiceError("log_activity", "failed to save activity", err)
	}

	s.metrics.ActivityLogged(string(p.Action))
	log.Debug("activity logged",
		"activity_id", activity.ID,
		"task_id", activity.TaskID,
		"action", activity.Action)

	formatted := formatActivity(*activity)
	return &formatted, nil
}

// GetTaskActivities returns one task's activities, newest first.
func (s *ActivityService) GetTaskActivities(
	ctx context.Context,
	taskID uuid.UUID,
	page, limit int,
) (pagination.Page[domain.Activity], error) {
	return s.paginate(ctx, "get_task_activities", pagination.Where{
		store.ActivityFieldTaskID: taskID,
	}, page, limit)
}

// GetAllActivities returns activities matching every set field of filter,
// newest first.
func (s *ActivityService) GetAllActivities(
	ctx context.Context,
	filter ActivityFilter,
	page, limit int,
) (pagination.Page[domain.Activity], error) {
	return s.paginate(ctx, "get_all_activities", filter.where(), page, limit)
}

func (f ActivityFilter) where() pagination.Where {
	w := pagination.Where{}
	if f.UserID != nil {
		w[store.ActivityFieldUserID] = *f.UserID
	}
	if f.Action != nil {
		w[store.ActivityFieldAction] = string(*f.Action)
	}
	if f.TaskID != nil {
		w[store.ActivityFieldTaskID] = *f.TaskID
	}
	if f.StartDate != nil || f.EndDate != nil {
		var r pagination.Range
		if f.StartDate != nil {
			r.Gte = f.StartDate.UTC()
		}
		if f.EndDate != nil {
			r.Lte = f.EndDate.UTC()
		}
		w[store.ActivityFieldCreatedAt] = r
	}
	return w
}

func (s *ActivityService) paginate(
	ctx context.Context,
	operation string,
	where pagination.Where,
	page, limit int,
) (pagination.Page[domain.Activity], error) {
	result, err := pagination.Paginate(ctx, s.paginator, ActivityCollection, s.activities, pagination.Query{
		Where:   where,
		OrderBy: []pagination.Order{{Field: store.ActivityFieldCreatedAt, Direction: pagination.Desc}},
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		return pagination.Page[domain.Activity]{}, NewActivityServiceError(operation, "failed to list activities", err)
	}

	for i := range result.Data {
		result.Data[i] = formatActivity(result.Data[i])
	}
	return result, nil
}

// UpdateDenormalizedFields copies a task rename and/or a user rename into
// the snapshots of existing activities. It is never called implicitly.
func (s *ActivityService) UpdateDenormalizedFields(ctx context.Context, u DenormalizedUpdate) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if u.TaskID != nil && u.TaskTitle != "" {
		n, err := s.activities.UpdateTaskTitle(ctx, *u.TaskID, u.TaskTitle)
		if err != nil {
			return NewActivityServiceError("update_denormalized_fields", "failed to update task titles", err)
		}
		log.Info("activity task titles updated", "task_id", *u.TaskID, "rows", n)
	}
	if u.UserID != nil && u.UserName != "" {
		n, err := s.activities.UpdateUserName(ctx, *u.UserID, u.UserName)
		if err != nil {
			return NewActivityServiceError("update_denormalized_fields", "failed to update user names", err)
		}
		log.Info("activity user names updated", "user_id", *u.UserID, "rows", n)
	}
	return nil
}

// formatActivity is the single shape activities leave the service in.
func formatActivity(a domain.Activity) domain.Activity {
	changes := a.Changes
	if changes == nil {
		changes = domain.Changes{}
	}
	return domain.Activity{
		ID:        a.ID,
		TaskID:    a.TaskID,
		TaskTitle: a.TaskTitle,
		UserID:    a.UserID,
		UserName:  a.UserName,
		Action:    a.Action,
		Changes:   changes,
		CreatedAt: a.CreatedAt.UTC(),
	}
}
