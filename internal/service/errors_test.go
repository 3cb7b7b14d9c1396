package service

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/tasktrail-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestNotFoundError(t *testing.T) {
	id := uuid.New()
	err := notFound("Task", id, ErrTaskNotFound)

	assert.Equal(t, "Task with ID "+id.String()+" not found", err.Error())
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}

func TestNewTaskServiceError(t *testing.T) {
	assert.NoError(t, NewTaskServiceError("op", "msg", nil))

	nf := notFound("Tag", uuid.New(), ErrTagNotFound)
	assert.Same(t, nf, NewTaskServiceError("op", "msg", nf))
	assert.Equal(t, ErrNoSystemUser, NewTaskServiceError("op", "msg", ErrNoSystemUser))
	assert.Equal(t, ErrTaskNotFound, NewTaskServiceError("op", "msg", store.ErrTaskNotFound))

	boom := errors.New("boom")
	err := NewTaskServiceError("update_task", "failed to save task", boom)
	var svcErr *TaskServiceError
	assert.ErrorAs(t, err, &svcErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "task service update_task failed: failed to save task: boom", err.Error())
}

func TestNewActivityServiceError(t *testing.T) {
	assert.NoError(t, NewActivityServiceError("op", "msg", nil))

	boom := errors.New("boom")
	err := NewActivityServiceError("log_activity", "failed", boom)
	var svcErr *ActivityServiceError
	assert.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "activity service log_activity failed: failed: boom", err.Error())
	assert.Equal(t, "activity service x failed: y", (&ActivityServiceError{Operation: "x", Message: "y"}).Error())
}
