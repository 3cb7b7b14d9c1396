package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/phrazzld/tasktrail-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, email Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func newHandler(sender EmailSender) *TaskAssignedHandler {
	return NewTaskAssignedHandler(sender, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
}

func TestTaskAssignedHandler_Handle(t *testing.T) {
	sender := new(MockEmailSender)
	sender.On("Send", mock.Anything, Email{
		To:      "bob@example.com",
		Subject: "New task assigned: Ship release",
		Body:    "New task assigned: Ship release\n",
	}).Return(nil).Once()

	payload, err := json.Marshal(events.TaskAssignedPayload{
		AssigneeEmail: "bob@example.com",
		TaskTitle:     "Ship release",
	})
	require.NoError(t, err)

	require.NoError(t, newHandler(sender).Handle(context.Background(), payload))
	sender.AssertExpectations(t)
}

func TestTaskAssignedHandler_SenderErrorIsReturned(t *testing.T) {
	sender := new(MockEmailSender)
	boom := errors.New("smtp down")
	sender.On("Send", mock.Anything, mock.Anything).Return(boom)

	err := newHandler(sender).Handle(context.Background(),
		json.RawMessage(`{"assigneeEmail":"bob@example.com","taskTitle":"Ship"}`))
	assert.ErrorIs(t, err, boom)
}

func TestTaskAssignedHandler_BadPayload(t *testing.T) {
	sender := new(MockEmailSender)

	err := newHandler(sender).Handle(context.Background(), json.RawMessage(`[1,2`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode task-assigned payload")
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}
