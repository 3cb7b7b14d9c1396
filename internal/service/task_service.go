package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/events"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
	"github.com/phrazzld/tasktrail-api/internal/store"
)

// TaskCollection is the pagination cache namespace of tasks.
const TaskCollection = "task"

// TaskFilter narrows FindAll. Nil or empty fields are not applied.
type TaskFilter struct {
	Status      *domain.TaskStatus
	Priority    *domain.TaskPriority
	AssigneeID  *uuid.UUID
	ProjectID   *uuid.UUID
	Search      string
	DueDateFrom *time.Time
	DueDateTo   *time.Time
}

// CreateTaskInput holds the fields of a new task. Empty Status and Priority
// take the domain defaults.
type CreateTaskInput struct {
	Title       string
	Description *string
	Status      domain.TaskStatus
	Priority    domain.TaskPriority
	DueDate     *time.Time
	ProjectID   uuid.UUID
	AssigneeID  *uuid.UUID
	TagIDs      []uuid.UUID
}

// UpdateTaskInput is a partial update: nil fields are left untouched.
// ClearDescription, ClearDueDate and ClearAssignee set their field to null
// and win over the matching value.
type UpdateTaskInput struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Status           *domain.TaskStatus
	Priority         *domain.TaskPriority
	DueDate          *time.Time
	ClearDueDate     bool
	AssigneeID       *uuid.UUID
	ClearAssignee    bool
	TagIDs           *[]uuid.UUID
}

// TaskService implements task CRUD with activity logging and assignment
// notifications.
//
// A mutation runs as an ordered sequence: write the task, log the activity,
// emit the assignment event. The steps share no transaction, so a failure
// after the write leaves the mutation without its activity or notification.
type TaskService struct {
	tasks      store.TaskStore
	users      store.UserStore
	projects   store.ProjectStore
	tags       store.TagStore
	activities *ActivityService
	paginator  *pagination.Paginator
	emitter    events.EventEmitter
	logger     *slog.Logger
}

// NewTaskService creates a TaskService. It returns an error if any of the
// required dependencies are nil.
func NewTaskService(
	tasks store.TaskStore,
	users store.UserStore,
	projects store.ProjectStore,
	tags store.TagStore,
	activities *ActivityService,
	paginator *pagination.Paginator,
	emitter events.EventEmitter,
	logger *slog.Logger,
) (*TaskService, error) {
	deps := []struct {
		name string
		nil  bool
	}{
		{"tasks", tasks == nil},
		{"users", users == nil},
		{"projects", projects == nil},
		{"tags", tags == nil},
		{"activities", activities == nil},
		{"paginator", paginator == nil},
		{"emitter", emitter == nil},
		{"logger", logger == nil},
	}
	for _, d := range deps {
		if d.nil {
			return nil, &TaskServiceError{Operation: "create_service", Message: d.name + " cannot be nil"}
		}
	}

	return &TaskService{
		tasks:      tasks,
		users:      users,
		projects:   projects,
		tags:       tags,
		activities: activities,
		paginator:  paginator,
		emitter:    emitter,
		logger:     logger.With("component", "task_service"),
	}, nil
}

// FindAll lists tasks matching filter, newest first, with assignee, project
// and tags loaded.
func (s *TaskService) FindAll(ctx context.Context, filter TaskFilter, page, limit int) (pagination.Page[domain.Task], error) {
	result, err := pagination.Paginate(ctx, s.paginator, TaskCollection, s.tasks, pagination.Query{
		Where:   filter.where(),
		Include: []string{store.TaskIncludeAssignee, store.TaskIncludeProject, store.TaskIncludeTags},
		OrderBy: []pagination.Order{{Field: store.TaskFieldCreatedAt, Direction: pagination.Desc}},
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		return pagination.Page[domain.Task]{}, NewTaskServiceError("find_all", "failed to list tasks", err)
	}
	return result, nil
}

func (f TaskFilter) where() pagination.Where {
	w := pagination.Where{}
	if f.Status != nil {
		w[store.TaskFieldStatus] = string(*f.Status)
	}
	if f.Priority != nil {
		w[store.TaskFieldPriority] = string(*f.Priority)
	}
	if f.AssigneeID != nil {
		w[store.TaskFieldAssigneeID] = *f.AssigneeID
	}
	if f.ProjectID != nil {
		w[store.TaskFieldProjectID] = *f.ProjectID
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		w[store.TaskFieldTitle] = pagination.Contains(search)
	}
	if f.DueDateFrom != nil || f.DueDateTo != nil {
		var r pagination.Range
		if f.DueDateFrom != nil {
			r.Gte = f.DueDateFrom.UTC()
		}
		if f.DueDateTo != nil {
			r.Lte = f.DueDateTo.UTC()
		}
		w[store.TaskFieldDueDate] = r
	}
	return w
}

// FindOne returns a task with its relations loaded.
func (s *TaskService) FindOne(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, notFound("Task", id, ErrTaskNotFound)
		}
		return nil, NewTaskServiceError("find_one", "failed to get task", err)
	}
	return task, nil
}

// actor identifies who a mutation is attributed to.
type actor struct {
	ID   uuid.UUID
	Name string
}

// resolveActor loads the explicit actor, or the system user when actorID
// is nil. It runs before any write so an unknown actor aborts the mutation.
func (s *TaskService) resolveActor(ctx context.Context, actorID *uuid.UUID) (actor, error) {
	if actorID != nil {
		user, err := s.users.GetByID(ctx, *actorID)
		if err != nil {
			if errors.Is(err, store.ErrUserNotFound) {
				return actor{}, notFound("User", *actorID, ErrUserNotFound)
			}
			return actor{}, err
		}
		return actor{ID: user.ID, Name: user.Name}, nil
	}
	user, err := s.users.GetEarliest(ctx)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return actor{}, ErrNoSystemUser
		}
		return actor{}, err
	}
	return actor{ID: user.ID, Name: user.Name}, nil
}

func (s *TaskService) resolveAssignee(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, notFound("Assignee", id, ErrAssigneeNotFound)
		}
		return nil, err
	}
	return user, nil
}

func (s *TaskService) resolveTags(ctx context.Context, ids []uuid.UUID) ([]domain.Tag, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return []domain.Tag{}, nil
	}
	tags, err := s.tags.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(tags) != len(ids) {
		found := make(map[uuid.UUID]bool, len(tags))
		for _, t := range tags {
			found[t.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, notFound("Tag", id, ErrTagNotFound)
			}
		}
	}
	return tags, nil
}

// Create validates the referenced project, assignee and tags, stores the
// task and logs a created activity.
func (s *TaskService) Create(ctx context.Context, in CreateTaskInput, actorID *uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	who, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, NewTaskServiceError("create_task", "failed to resolve acting user", err)
	}

	project, err := s.projects.GetByID(ctx, in.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrProjectNotFound) {
			return nil, notFound("Project", in.ProjectID, ErrProjectNotFound)
		}
		return nil, NewTaskServiceError("create_task", "failed to get project", err)
	}

	var assignee *domain.User
	if in.AssigneeID != nil {
		if assignee, err = s.resolveAssignee(ctx, *in.AssigneeID); err != nil {
			return nil, NewTaskServiceError("create_task", "failed to get assignee", err)
		}
	}

	tags, err := s.resolveTags(ctx, in.TagIDs)
	if err != nil {
		return nil, NewTaskServiceError("create_task", "failed to get tags", err)
	}

	task, err := domain.NewTask(in.Title, in.ProjectID)
	if err != nil {
		return nil, err
	}
	task.Description = in.Description
	if in.Status != "" {
		task.Status = in.Status
	}
	if in.Priority != "" {
		task.Priority = in.Priority
	}
	task.DueDate = utcPtr(in.DueDate)
	task.AssigneeID = in.AssigneeID
	task.TagIDs = tagIDs(tags)
	if err := task.Validate(); err != nil {
		return nil, err
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, NewTaskServiceError("create_task", "failed to save task", err)
	}
	log.Info("task created", "task_id", task.ID, "actor_id", who.ID)

	if _, err := s.activities.LogActivity(ctx, LogActivityParams{
		TaskID:    task.ID,
		UserID:    who.ID,
		Action:    domain.ActivityCreated,
		Changes:   createdChanges(task),
		TaskTitle: task.Title,
		UserName:  who.Name,
	}); err != nil {
		return nil, NewTaskServiceError("create_task", "task saved but activity was not logged", err)
	}

	if assignee != nil {
		s.notifyAssignee(ctx, assignee, task)
	}

	task.Assignee = assignee
	task.Project = project
	task.Tags = tags
	return task, nil
}

// Update applies the set fields of in, logs an updated activity holding
// the fields whose value actually changed, and notifies a new assignee.
// An update that changes nothing writes nothing.
func (s *TaskService) Update(ctx context.Context, id uuid.UUID, in UpdateTaskInput, actorID *uuid.UUID) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	before, err := s.FindOne(ctx, id)
	if err != nil {
		return nil, err
	}

	who, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, NewTaskServiceError("update_task", "failed to resolve acting user", err)
	}

	after := *before
	after.TagIDs = append([]uuid.UUID(nil), before.TagIDs...)
	var touched []string

	if in.Title != nil {
		after.Title = *in.Title
		touched = append(touched, FieldTitle)
	}
	switch {
	case in.ClearDescription:
		after.Description = nil
		touched = append(touched, FieldDescription)
	case in.Description != nil:
		after.Description = in.Description
		touched = append(touched, FieldDescription)
	}
	if in.Status != nil {
		after.Status = *in.Status
		touched = append(touched, FieldStatus)
	}
	if in.Priority != nil {
		after.Priority = *in.Priority
		touched = append(touched, FieldPriority)
	}
	switch {
	case in.ClearDueDate:
		after.DueDate = nil
		touched = append(touched, FieldDueDate)
	case in.DueDate != nil:
		after.DueDate = utcPtr(in.DueDate)
		touched = append(touched, FieldDueDate)
	}

	var newAssignee *domain.User
	switch {
	case in.ClearAssignee:
		after.AssigneeID = nil
		after.Assignee = nil
		touched = append(touched, FieldAssigneeID)
	case in.AssigneeID != nil:
		if newAssignee, err = s.resolveAssignee(ctx, *in.AssigneeID); err != nil {
			return nil, NewTaskServiceError("update_task", "failed to get assignee", err)
		}
		assigneeID := newAssignee.ID
		after.AssigneeID = &assigneeID
		after.Assignee = newAssignee
		touched = append(touched, FieldAssigneeID)
	}

	if in.TagIDs != nil {
		tags, err := s.resolveTags(ctx, *in.TagIDs)
		if err != nil {
			return nil, NewTaskServiceError("update_task", "failed to get tags", err)
		}
		after.TagIDs = tagIDs(tags)
		after.Tags = tags
		touched = append(touched, FieldTagIDs)
	}

	if err := after.Validate(); err != nil {
		return nil, err
	}

	changes := updatedChanges(before, &after, touched)
	if len(changes) == 0 {
		log.Debug("update changed nothing", "task_id", id)
		return before, nil
	}

	after.UpdatedAt = time.Now().UTC()
	if err := s.tasks.Update(ctx, &after); err != nil {
		return nil, NewTaskServiceError("update_task", "failed to save task", err)
	}
	log.Info("task updated", "task_id", id, "actor_id", who.ID, "fields", len(changes))

	if _, err := s.activities.LogActivity(ctx, LogActivityParams{
		TaskID:    after.ID,
		UserID:    who.ID,
		Action:    domain.ActivityUpdated,
		Changes:   changes,
		TaskTitle: after.Title,
		UserName:  who.Name,
	}); err != nil {
		return nil, NewTaskServiceError("update_task", "task saved but activity was not logged", err)
	}

	if _, changed := changes[FieldAssigneeID]; changed && newAssignee != nil {
		s.notifyAssignee(ctx, newAssignee, &after)
	}

	return &after, nil
}

// Delete removes a task and logs a deleted activity holding its final state.
func (s *TaskService) Delete(ctx context.Context, id uuid.UUID, actorID *uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	before, err := s.FindOne(ctx, id)
	if err != nil {
		return err
	}

	who, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return NewTaskServiceError("delete_task", "failed to resolve acting user", err)
	}

	if err := s.tasks.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return notFound("Task", id, ErrTaskNotFound)
		}
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}
	log.Info("task deleted", "task_id", id, "actor_id", who.ID)

	if _, err := s.activities.LogActivity(ctx, LogActivityParams{
		TaskID:    id,
		UserID:    who.ID,
		Action:    domain.ActivityDeleted,
		Changes:   deletedChanges(before),
		TaskTitle: before.Title,
		UserName:  who.Name,
	}); err != nil {
		return NewTaskServiceError("delete_task", "task deleted but activity was not logged", err)
	}
	return nil
}

// notifyAssignee emits the task-assigned event. Failures are logged and
// never undo the mutation.
func (s *TaskService) notifyAssignee(ctx context.Context, assignee *domain.User, task *domain.Task) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	event, err := events.NewTaskRequestEvent(events.TaskAssigned, events.TaskAssignedPayload{
		AssigneeEmail: assignee.Email,
		TaskTitle:     task.Title,
	})
	if err != nil {
		log.Error("failed to build task-assigned event", "task_id", task.ID, "error", err)
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		log.Error("failed to enqueue assignment notification",
			"task_id", task.ID,
			"assignee_id", assignee.ID,
			"error", err)
		return
	}
	log.Debug("assignment notification enqueued", "task_id", task.ID, "event_id", event.ID)
}

func tagIDs(tags []domain.Tag) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return ids
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
