package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewTask(t *testing.T) {
	t.Parallel()
	projectID := uuid.New()

	task, err := NewTask("Write report", projectID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task.ID == uuid.Nil {
		t.Error("Expected non-nil UUID, got nil UUID")
	}
	if task.Status != TaskStatusTodo {
		t.Errorf("Expected status %s, got %s", TaskStatusTodo, task.Status)
	}
	if task.Priority != TaskPriorityMedium {
		t.Errorf("Expected priority %s, got %s", TaskPriorityMedium, task.Priority)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Error("Expected non-zero timestamps")
	}

	if _, err := NewTask("   ", projectID); !errors.Is(err, ErrEmptyTaskTitle) {
		t.Errorf("Expected error %v, got %v", ErrEmptyTaskTitle, err)
	}
	if _, err := NewTask("Write report", uuid.Nil); !errors.Is(err, ErrEmptyTaskProjectID) {
		t.Errorf("Expected error %v, got %v", ErrEmptyTaskProjectID, err)
	}
}

func TestTaskValidate(t *testing.T) {
	t.Parallel()

	valid := func() Task {
		return Task{
			ID:        uuid.New(),
			Title:     "T1",
			Status:    TaskStatusInProgress,
			Priority:  TaskPriorityHigh,
			ProjectID: uuid.New(),
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Task)
		wantErr error
	}{
		{"valid", func(*Task) {}, nil},
		{"missing id", func(t *Task) { t.ID = uuid.Nil }, ErrEmptyTaskID},
		{"bad status", func(t *Task) { t.Status = "archived" }, ErrInvalidTaskStatus},
		{"bad priority", func(t *Task) { t.Priority = "urgent" }, ErrInvalidTaskPriority},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			task := valid()
			tc.mutate(&task)
			err := task.Validate()
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestSortedTagIDs(t *testing.T) {
	t.Parallel()
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	first := (&Task{TagIDs: []uuid.UUID{b, a}}).SortedTagIDs()
	second := (&Task{TagIDs: []uuid.UUID{a, b}}).SortedTagIDs()

	if len(first) != 2 || first[0] != second[0] || first[1] != second[1] {
		t.Errorf("Expected order-insensitive result, got %v and %v", first, second)
	}
	if first[0] != a.String() {
		t.Errorf("Expected %s first, got %s", a, first[0])
	}
}
