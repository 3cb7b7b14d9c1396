package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/tasktrail-api/internal/events"
	"github.com/phrazzld/tasktrail-api/internal/job"
)

// TaskAssignedHandler emails the assignee of a task. It is registered under
// events.TaskAssigned.
type TaskAssignedHandler struct {
	sender EmailSender
	logger *slog.Logger
}

var _ job.Handler = (*TaskAssignedHandler)(nil)

// NewTaskAssignedHandler creates a TaskAssignedHandler.
func NewTaskAssignedHandler(sender EmailSender, logger *slog.Logger) *TaskAssignedHandler {
	return &TaskAssignedHandler{
		sender: sender,
		logger: logger.With("component", "task_assigned_handler"),
	}
}

// AssignmentSubject is the subject line of assignment emails.
func AssignmentSubject(taskTitle string) string {
	return "New task assigned: " + taskTitle
}

// Handle implements job.Handler.
func (h *TaskAssignedHandler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p events.TaskAssignedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode task-assigned payload: %w", err)
	}

	subject := AssignmentSubject(p.TaskTitle)
	err := h.sender.Send(ctx, Email{
		To:      p.AssigneeEmail,
		Subject: subject,
		Body:    subject + "\n",
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to send assignment email",
			"assignee_email", p.AssigneeEmail,
			"error", err)
		return err
	}

	h.logger.InfoContext(ctx, "assignment email sent", "assignee_email", p.AssigneeEmail)
	return nil
}
