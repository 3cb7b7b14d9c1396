package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/domain"
	"github.com/phrazzld/tasktrail-api/internal/pagination"
)

// Filter keys understood by ActivityStore.Count and ActivityStore.FindMany.
const (
	ActivityFieldTaskID    = "taskId"
	ActivityFieldUserID    = "userId"
	ActivityFieldAction    = "action"
	ActivityFieldCreatedAt = "createdAt"
)

// ActivityStore defines persistence for the append-only activity log.
type ActivityStore interface {
	pagination.Collection[domain.Activity]

	// Create appends a new activity record.
	Create(ctx context.Context, activity *domain.Activity) error

	// UpdateTaskTitle rewrites the denormalized task title of every activity
	// for the task and returns how many rows changed.
	UpdateTaskTitle(ctx context.Context, taskID uuid.UUID, title string) (int64, error)

	// UpdateUserName rewrites the denormalized user name of every activity
	// by the user and returns how many rows changed.
	UpdateUserName(ctx context.Context, userID uuid.UUID, name string) (int64, error)
}
