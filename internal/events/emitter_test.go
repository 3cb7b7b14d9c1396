package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryEventEmitter(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	newEvent := func(t *testing.T) *TaskRequestEvent {
		event, err := NewTaskRequestEvent(TaskAssigned, TaskAssignedPayload{TaskTitle: "T1"})
		require.NoError(t, err)
		return event
	}

	t.Run("no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		assert.NoError(t, emitter.EmitEvent(context.Background(), newEvent(t)))
	})

	t.Run("every handler receives the event", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		h1, h2 := &MockEventHandler{}, &MockEventHandler{}
		emitter.RegisterHandler(h1)
		emitter.RegisterHandler(h2)

		event := newEvent(t)
		require.NoError(t, emitter.EmitEvent(context.Background(), event))

		assert.Equal(t, 1, h1.HandledCount)
		assert.Equal(t, 1, h2.HandledCount)
		assert.Same(t, event, h2.LastEvent)
	})

	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		failing := &MockEventHandler{HandlerError: errors.New("enqueue failed")}
		ok := &MockEventHandler{}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(ok)

		err := emitter.EmitEvent(context.Background(), newEvent(t))
		assert.EqualError(t, err, "enqueue failed")
		assert.Equal(t, 1, ok.HandledCount)
	})
}
