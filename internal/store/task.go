package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
)

// Filter keys understood by TaskStore.Count and TaskStore.FindMany.
const (
	TaskFieldStatus     = "status"
	TaskFieldPriority   = "priority"
	TaskFieldAssigneeID = "assigneeId"
	TaskFieldProjectID  = "projectId"
	TaskFieldTitle      = "title"
	TaskFieldDueDate    = "dueDate"
	TaskFieldCreatedAt  = "createdAt"
)

// Relations TaskStore.FindMany can load.
const (
	TaskIncludeAssignee = "assignee"
	TaskIncludeProject  = "project"
	TaskIncludeTags     = "tags"
)

// TaskStore defines persistence for tasks and their tag links.
type TaskStore interface {
	pagination.Collection[domain.Task]

	// Create inserts the task and its tag links.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID returns the task with TagIDs populated and its assignee,
	// project and tags loaded. Returns ErrTaskNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update overwrites every column of the task and replaces its tag links.
	// Returns ErrTaskNotFound if it does not exist.
	Update(ctx context.Context, task *domain.Task) error

	// Delete removes the task and its tag links.
	// Returns ErrTaskNotFound if it does not exist.
	Delete(ctx context.Context, id uuid.UUID) error
}
