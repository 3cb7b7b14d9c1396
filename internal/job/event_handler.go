package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/tasktrail-api/internal/events"
)

// EventHandler turns emitted events into queued jobs. Each routed event type
// becomes a job of the same name carrying the event payload unchanged.
type EventHandler struct {
	queue  Queue
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]Options
}

// NewEventHandler creates an EventHandler that enqueues onto queue.
func NewEventHandler(queue Queue, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		queue:  queue,
		logger: logger.With("component", "job_event_handler"),
		routes: make(map[string]Options),
	}
}

// Route enqueues events of eventType with the given retry options.
func (h *EventHandler) Route(eventType string, opts Options) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[eventType] = opts
}

// HandleEvent implements events.EventHandler.
func (h *EventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	h.mu.RLock()
	opts, ok := h.routes[event.Type]
	h.mu.RUnlock()

	if !ok {
		h.logger.Debug("ignoring event with unrouted type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	if err := h.queue.Enqueue(ctx, event.Type, event.Payload, opts); err != nil {
		h.logger.Error("failed to enqueue job for event",
			"error", err,
			"event_type", event.Type,
			"event_id", event.ID)
		return fmt.Errorf("failed to enqueue %s job: %w", event.Type, err)
	}

	h.logger.Debug("job enqueued for event",
		"event_type", event.Type,
		"event_id", event.ID,
		"attempts", opts.Attempts,
		"backoff", opts.Backoff)
	return nil
}

var _ events.EventHandler = (*EventHandler)(nil)
