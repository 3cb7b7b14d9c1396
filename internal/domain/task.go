package domain

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the workflow state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
)

// TaskPriority represents how urgent a task is
type TaskPriority string

// Possible task priority values
const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

// Common validation errors for Task
var (
	ErrEmptyTaskID        = errors.New("task ID cannot be empty")
	ErrEmptyTaskTitle     = errors.New("task title cannot be empty")
	ErrEmptyTaskProjectID = errors.New("task project ID cannot be empty")
)

// Task is the unit of work tracked by the service.
// Assignee, Project and Tags are only populated when a read asks for them.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description *string      `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	DueDate     *time.Time   `json:"dueDate"`
	ProjectID   uuid.UUID    `json:"projectId"`
	AssigneeID  *uuid.UUID   `json:"assigneeId"`
	TagIDs      []uuid.UUID  `json:"tagIds"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`

	Assignee *User    `json:"assignee,omitempty"`
	Project  *Project `json:"project,omitempty"`
	Tags     []Tag    `json:"tags,omitempty"`
}

// NewTask creates a Task with a fresh ID, timestamps and default
// status/priority when those are left empty.
func NewTask(title string, projectID uuid.UUID) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:        uuid.New(),
		Title:     title,
		Status:    TaskStatusTodo,
		Priority:  TaskPriorityMedium,
		ProjectID: projectID,
		TagIDs:    []uuid.UUID{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTaskTitle
	}
	if t.ProjectID == uuid.Nil {
		return ErrEmptyTaskProjectID
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	if !t.Priority.IsValid() {
		return ErrInvalidTaskPriority
	}
	return nil
}

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// IsValid reports whether p is a known priority.
func (p TaskPriority) IsValid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh:
		return true
	}
	return false
}

// SortedTagIDs returns the task's tag ids as sorted strings.
// Tag sets are compared order-insensitively, so this is the form used in diffs.
func (t *Task) SortedTagIDs() []string {
	return SortedIDStrings(t.TagIDs)
}

// SortedIDStrings converts ids to strings and sorts them.
func SortedIDStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	slices.Sort(out)
	return out
}
