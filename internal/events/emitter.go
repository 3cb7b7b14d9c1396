package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/phrazzld/tasktrail-api/internal/platform/logger"
)

// InMemoryEventEmitter hands each event to every registered handler in the
// caller's goroutine.
type InMemoryEventEmitter struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

var _ EventEmitter = (*InMemoryEventEmitter)(nil)

// NewInMemoryEventEmitter creates an emitter with no handlers.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{logger: logger.With("component", "event_emitter")}
}

// RegisterHandler subscribes handler to all later events.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	e.handlers = append(e.handlers, handler)
	n := len(e.handlers)
	e.mu.Unlock()

	e.logger.Debug("event handler registered", "handler_count", n)
}

// EmitEvent delivers event to all handlers. A failing handler does not stop
// delivery to the rest; their errors are joined.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskRequestEvent) error {
	e.mu.RLock()
	handlers := append([]EventHandler(nil), e.handlers...)
	e.mu.RUnlock()

	log := logger.FromContextOrDefault(ctx, e.logger).With(
		"event_id", event.ID,
		"event_type", event.Type)

	if len(handlers) == 0 {
		log.Warn("event dropped, no handlers registered")
		return nil
	}

	var errs []error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			log.Error("event handler failed", "handler_index", i, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
